package document

import (
	"errors"
	"testing"
	"time"

	"qagaz.org/internal/access"
)

var monday = time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)

func TestApplyWalksPrimaryWorkflow(t *testing.T) {
	doc := Document{ID: "d1", Status: StatusDraft}
	steps := []struct {
		action access.Action
		want   Status
	}{
		{access.ActionSubmit, StatusSent},
		{access.ActionAcknowledge, StatusAcknowledged},
		{access.ActionCompleteAdditionalDocs, StatusAdditionalDocsDone},
		{access.ActionCompleteVerification, StatusVerificationDone},
		{access.ActionMarkAllChecked, StatusAllChecked},
		{access.ActionSendBackToDistrict, StatusSentBackToDistrict},
		{access.ActionReceivePaper, StatusReceived},
	}
	for _, st := range steps {
		if err := Apply(&doc, st.action, monday); err != nil {
			t.Fatalf("Apply(%s): %v", st.action, err)
		}
		if doc.Status != st.want {
			t.Fatalf("after %s: status = %s, want %s", st.action, doc.Status, st.want)
		}
	}
	if doc.Deadline == nil {
		t.Fatal("sendBackToDistrict must stamp the return deadline")
	}
	if doc.ReceivedPaperAt == nil || !doc.ReceivedPaperAt.Equal(monday) {
		t.Fatalf("receivePaper must stamp the hand-over date, got %v", doc.ReceivedPaperAt)
	}
}

func TestApplyRejectsOutOfOrderActions(t *testing.T) {
	cases := []struct {
		status Status
		action access.Action
	}{
		{StatusDraft, access.ActionAcknowledge},
		{StatusSent, access.ActionSubmit},
		{StatusAcknowledged, access.ActionCompleteVerification},
		{StatusAllChecked, access.ActionReceivePaper},
		{StatusReceived, access.ActionReceivePaper}, // terminal
		{StatusDraft, access.ActionView},            // not a workflow action
	}
	for _, tc := range cases {
		doc := Document{ID: "d1", Status: tc.status}
		err := Apply(&doc, tc.action, monday)
		var inv *InvalidTransitionError
		if !errors.As(err, &inv) {
			t.Fatalf("Apply(%s from %s): want InvalidTransitionError, got %v", tc.action, tc.status, err)
		}
		if inv.Current != tc.status || inv.Action != tc.action {
			t.Fatalf("error carries %s/%s, want %s/%s", inv.Current, inv.Action, tc.status, tc.action)
		}
		if doc.Status != tc.status {
			t.Fatalf("rejected action must not move status, got %s", doc.Status)
		}
	}
}

func TestReceivePaperIsOneShot(t *testing.T) {
	doc := Document{ID: "d1", Status: StatusSentBackToDistrict}
	if err := Apply(&doc, access.ActionReceivePaper, monday); err != nil {
		t.Fatalf("first receivePaper: %v", err)
	}
	if doc.Status != StatusReceived {
		t.Fatalf("status = %s, want received", doc.Status)
	}

	err := Apply(&doc, access.ActionReceivePaper, monday.AddDate(0, 0, 1))
	var pre *PreconditionError
	if !errors.As(err, &pre) {
		t.Fatalf("second receivePaper: want PreconditionError, got %v", err)
	}
	if doc.Status != StatusReceived {
		t.Fatalf("status must not move, got %s", doc.Status)
	}
	if !doc.ReceivedPaperAt.Equal(monday) {
		t.Fatalf("hand-over date must keep the first stamp, got %v", doc.ReceivedPaperAt)
	}
}

func TestDisbursementProgression(t *testing.T) {
	doc := Document{ID: "d1", Status: StatusAllChecked}
	date := monday.AddDate(0, 0, 7)

	if err := SetDisbursementDate(&doc, date); err != nil {
		t.Fatalf("SetDisbursementDate: %v", err)
	}
	if doc.Disbursement.Stage != StageDateSet || doc.Disbursement.Date == nil {
		t.Fatalf("unexpected disbursement: %+v", doc.Disbursement)
	}

	// re-dating before confirmation is allowed
	if err := SetDisbursementDate(&doc, date.AddDate(0, 0, 1)); err != nil {
		t.Fatalf("re-dating: %v", err)
	}

	if err := ConfirmDisbursement(&doc); err != nil {
		t.Fatalf("ConfirmDisbursement: %v", err)
	}
	if doc.Disbursement.Stage != StageConfirmed {
		t.Fatalf("stage = %s, want confirmed", doc.Disbursement.Stage)
	}

	// confirmed disbursements cannot be re-dated or re-confirmed
	if err := SetDisbursementDate(&doc, date); err == nil {
		t.Fatal("re-dating a confirmed disbursement must fail")
	}
	if err := ConfirmDisbursement(&doc); err == nil {
		t.Fatal("double confirm must fail")
	}

	if err := MarkPaid(&doc); err != nil {
		t.Fatalf("MarkPaid: %v", err)
	}
	if doc.Disbursement.Stage != StagePaid {
		t.Fatalf("stage = %s, want paid", doc.Disbursement.Stage)
	}
	if err := MarkPaid(&doc); err == nil {
		t.Fatal("double pay must fail")
	}
	if doc.Disbursement.Date == nil {
		t.Fatal("a paid disbursement must keep its date")
	}
}

func TestDisbursementPreconditions(t *testing.T) {
	early := Document{ID: "d1", Status: StatusAcknowledged}
	var inv *InvalidTransitionError
	if err := SetDisbursementDate(&early, monday); !errors.As(err, &inv) {
		t.Fatalf("dating before all_checked: want InvalidTransitionError, got %v", err)
	}

	unset := Document{ID: "d2", Status: StatusAllChecked}
	var pre *PreconditionError
	if err := ConfirmDisbursement(&unset); !errors.As(err, &pre) {
		t.Fatalf("confirm without date: want PreconditionError, got %v", err)
	}
	if err := MarkPaid(&unset); !errors.As(err, &pre) {
		t.Fatalf("pay without confirm: want PreconditionError, got %v", err)
	}

	// disbursement continues while the primary workflow moves on
	sentBack := Document{ID: "d3", Status: StatusSentBackToDistrict}
	if err := SetDisbursementDate(&sentBack, monday); err != nil {
		t.Fatalf("dating after send-back: %v", err)
	}
}

func TestZeroStageCannotConfirmOrPay(t *testing.T) {
	// a Document literal or an unnormalized row carries an empty stage,
	// which must guard exactly like unset
	doc := Document{ID: "d1", Status: StatusAllChecked}
	if doc.Disbursement.Stage != "" {
		t.Fatalf("fixture stage = %q, want empty", doc.Disbursement.Stage)
	}

	var pre *PreconditionError
	if err := ConfirmDisbursement(&doc); !errors.As(err, &pre) {
		t.Fatalf("confirm on zero stage: want PreconditionError, got %v", err)
	}
	if err := MarkPaid(&doc); !errors.As(err, &pre) {
		t.Fatalf("pay on zero stage: want PreconditionError, got %v", err)
	}
	if doc.Disbursement.Stage != "" || doc.Disbursement.Date != nil {
		t.Fatalf("denied calls must not move the stage: %+v", doc.Disbursement)
	}

	// dating normalizes the zero stage
	if err := SetDisbursementDate(&doc, monday); err != nil {
		t.Fatalf("SetDisbursementDate: %v", err)
	}
	if doc.Disbursement.Stage != StageDateSet || doc.Disbursement.Date == nil {
		t.Fatalf("stage after dating: %+v", doc.Disbursement)
	}
}
