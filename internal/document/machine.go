package document

import (
	"time"

	"qagaz.org/internal/access"
)

// step is one edge of the primary workflow: the action is legal only in
// exactly one source status and always lands in exactly one target.
type step struct {
	from Status
	to   Status
}

var primarySteps = map[access.Action]step{
	access.ActionSubmit:                 {StatusDraft, StatusSent},
	access.ActionAcknowledge:            {StatusSent, StatusAcknowledged},
	access.ActionCompleteAdditionalDocs: {StatusAcknowledged, StatusAdditionalDocsDone},
	access.ActionCompleteVerification:   {StatusAdditionalDocsDone, StatusVerificationDone},
	access.ActionMarkAllChecked:         {StatusVerificationDone, StatusAllChecked},
	access.ActionSendBackToDistrict:     {StatusAllChecked, StatusSentBackToDistrict},
	access.ActionReceivePaper:           {StatusSentBackToDistrict, StatusReceived},
}

// IsWorkflowAction reports whether the action advances the primary status.
func IsWorkflowAction(action access.Action) bool {
	_, ok := primarySteps[action]
	return ok
}

// Apply advances the primary status of doc by action. today is the civil
// date of the operation and is stamped where the transition calls for it:
// sendBackToDistrict opens the return window, receivePaper records the
// hand-over date. Returns InvalidTransitionError when the current status
// does not admit the action.
func Apply(doc *Document, action access.Action, today time.Time) error {
	st, ok := primarySteps[action]
	if !ok {
		return &InvalidTransitionError{Current: doc.Status, Action: action}
	}
	if doc.Status != st.from {
		// a repeated receivePaper is a precondition failure, not an
		// out-of-order action: the paper was already handed over
		if action == access.ActionReceivePaper && doc.ReceivedPaperAt != nil {
			return &PreconditionError{DocumentID: doc.ID, Reason: "paper original already received"}
		}
		return &InvalidTransitionError{Current: doc.Status, Action: action}
	}

	switch action {
	case access.ActionSendBackToDistrict:
		w := ComputeReturnWindow(today)
		doc.Deadline = &Deadline{SentBackAt: w.SentBackAt, DueAt: w.DueAt}
	case access.ActionReceivePaper:
		if doc.ReceivedPaperAt != nil {
			return &PreconditionError{DocumentID: doc.ID, Reason: "paper original already received"}
		}
		t := today
		doc.ReceivedPaperAt = &t
	}

	doc.Status = st.to
	return nil
}

// SetDisbursementDate moves the payment sub-state to date_set. Allowed only
// once the primary workflow has reached all_checked and before the
// disbursement is confirmed; re-dating an unconfirmed disbursement is fine.
func SetDisbursementDate(doc *Document, date time.Time) error {
	if !primaryAtLeast(doc.Status, StatusAllChecked) {
		return &InvalidTransitionError{Current: doc.Status, Action: access.ActionSetDisbursementDate}
	}
	switch doc.Disbursement.Stage {
	case StageConfirmed:
		return &PreconditionError{DocumentID: doc.ID, Reason: "disbursement already confirmed"}
	case StagePaid:
		return &PreconditionError{DocumentID: doc.ID, Reason: "disbursement already paid"}
	}
	d := date
	doc.Disbursement = Disbursement{Stage: StageDateSet, Date: &d}
	return nil
}

// ConfirmDisbursement moves date_set to confirmed. Any stage other than
// date_set denies, including the empty stage a zero-valued Disbursement
// carries before normalization.
func ConfirmDisbursement(doc *Document) error {
	switch doc.Disbursement.Stage {
	case StageDateSet:
		doc.Disbursement.Stage = StageConfirmed
		return nil
	case StageConfirmed:
		return &PreconditionError{DocumentID: doc.ID, Reason: "disbursement already confirmed"}
	case StagePaid:
		return &PreconditionError{DocumentID: doc.ID, Reason: "disbursement already paid"}
	}
	return &PreconditionError{DocumentID: doc.ID, Reason: "disbursement date not set"}
}

// MarkPaid moves confirmed to paid, the terminal payment stage. Only
// confirmed admits payment; every other stage denies.
func MarkPaid(doc *Document) error {
	switch doc.Disbursement.Stage {
	case StageConfirmed:
		doc.Disbursement.Stage = StagePaid
		return nil
	case StagePaid:
		return &PreconditionError{DocumentID: doc.ID, Reason: "disbursement already paid"}
	}
	return &PreconditionError{DocumentID: doc.ID, Reason: "disbursement not confirmed"}
}

var statusOrder = func() map[Status]int {
	m := make(map[Status]int, len(Statuses))
	for i, s := range Statuses {
		m[s] = i
	}
	return m
}()

func primaryAtLeast(s, min Status) bool {
	return statusOrder[s] >= statusOrder[min]
}
