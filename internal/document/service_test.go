package document

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"qagaz.org/internal/access"
	"qagaz.org/internal/audit"
	"qagaz.org/internal/notify"
	"qagaz.org/internal/rbac"
)

type capturedEvents struct {
	events []notify.Event
}

func (c *capturedEvents) Notify(_ context.Context, ev notify.Event) error {
	c.events = append(c.events, ev)
	return nil
}

type fixture struct {
	svc      *Service
	store    *InMemory
	rbacSvc  *rbac.Service
	rbacMem  *rbac.InMemory
	recorder *audit.MemoryRecorder
	events   *capturedEvents
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()

	rbacMem := rbac.NewInMemory()
	rbacSvc, err := rbac.NewService(rbacMem)
	if err != nil {
		t.Fatalf("rbac.NewService: %v", err)
	}
	if err := rbacSvc.EnsureBuiltins(ctx); err != nil {
		t.Fatalf("EnsureBuiltins: %v", err)
	}

	gate, err := access.NewGate(rbacSvc)
	if err != nil {
		t.Fatalf("NewGate: %v", err)
	}

	store := NewInMemory()
	recorder := &audit.MemoryRecorder{}
	events := &capturedEvents{}
	svc, err := NewService(store, gate,
		WithRecorder(recorder),
		WithNotifier(events),
		WithClock(func() time.Time { return time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC) }),
	)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return &fixture{svc: svc, store: store, rbacSvc: rbacSvc, rbacMem: rbacMem, recorder: recorder, events: events}
}

func (f *fixture) addUser(t *testing.T, id string, branch int, roles ...string) {
	t.Helper()
	ctx := context.Background()
	if _, err := f.rbacMem.CreateUser(ctx, rbac.User{ID: id, Username: id, BranchCode: branch}); err != nil {
		t.Fatalf("CreateUser(%s): %v", id, err)
	}
	for _, name := range roles {
		role, err := f.rbacMem.GetRoleByName(ctx, name)
		if err != nil {
			t.Fatalf("GetRoleByName(%s): %v", name, err)
		}
		if _, err := f.rbacMem.AssignRole(ctx, id, role.ID); err != nil {
			t.Fatalf("AssignRole(%s, %s): %v", id, name, err)
		}
	}
}

func (f *fixture) createDraft(t *testing.T, actorID string, branch int) Document {
	t.Helper()
	doc, err := f.svc.CreateDraft(context.Background(), actorID, DraftInput{
		BranchCode: branch,
		RefNo:      "QG-2026-0001",
		RefDate:    time.Date(2026, 2, 27, 0, 0, 0, 0, time.UTC),
		Subject:    "Q1 disbursement order",
		Amount:     decimal.NewFromInt(1500000),
	})
	if err != nil {
		t.Fatalf("CreateDraft: %v", err)
	}
	return doc
}

func (f *fixture) advance(t *testing.T, actorID, docID string, actions ...access.Action) Document {
	t.Helper()
	var doc Document
	var err error
	for _, action := range actions {
		doc, err = f.svc.Transition(context.Background(), actorID, docID, action)
		if err != nil {
			t.Fatalf("Transition(%s): %v", action, err)
		}
	}
	return doc
}

var toAllChecked = []access.Action{
	access.ActionSubmit,
	access.ActionAcknowledge,
	access.ActionCompleteAdditionalDocs,
	access.ActionCompleteVerification,
	access.ActionMarkAllChecked,
}

func TestDraftVisibilityInListAndGet(t *testing.T) {
	f := newFixture(t)
	f.addUser(t, "upl", 1061, rbac.RoleUploader)
	f.addUser(t, "viewer", 1061, rbac.RoleBranchUser)
	ctx := context.Background()

	doc := f.createDraft(t, "upl", 1061)

	// the uploader sees the draft, the branch viewer does not
	docs, err := f.svc.List(ctx, "upl", Filter{})
	if err != nil || len(docs) != 1 {
		t.Fatalf("uploader list: %v, %d docs", err, len(docs))
	}
	docs, err = f.svc.List(ctx, "viewer", Filter{})
	if err != nil || len(docs) != 0 {
		t.Fatalf("viewer list: %v, %d docs", err, len(docs))
	}
	var denied *access.DeniedError
	if _, err := f.svc.Get(ctx, "viewer", doc.ID); !errors.As(err, &denied) {
		t.Fatalf("viewer Get draft: want DeniedError, got %v", err)
	}

	// once submitted the branch viewer sees it
	f.advance(t, "upl", doc.ID, access.ActionSubmit)
	if _, err := f.svc.Get(ctx, "viewer", doc.ID); err != nil {
		t.Fatalf("viewer Get after submit: %v", err)
	}

	// a viewer from another branch still cannot
	f.addUser(t, "foreign", 1062, rbac.RoleBranchUser)
	if _, err := f.svc.Get(ctx, "foreign", doc.ID); !errors.As(err, &denied) {
		t.Fatalf("foreign Get: want DeniedError, got %v", err)
	}
}

func TestWorkflowStampsDeadlineAndPaperDate(t *testing.T) {
	f := newFixture(t)
	f.addUser(t, "upl", 1061, rbac.RoleUploader)
	f.addUser(t, "dm", 0, rbac.RoleDistrictManager)

	doc := f.createDraft(t, "upl", 1061)
	doc = f.advance(t, "upl", doc.ID, toAllChecked...)
	doc = f.advance(t, "upl", doc.ID, access.ActionSendBackToDistrict)

	if doc.Deadline == nil {
		t.Fatal("send-back must stamp the return deadline")
	}
	// sent back on Monday 2026-03-02, five business days later is the next Monday
	wantDue := time.Date(2026, 3, 9, 0, 0, 0, 0, time.UTC)
	if !doc.Deadline.DueAt.Equal(wantDue) {
		t.Fatalf("DueAt = %s, want %s", doc.Deadline.DueAt, wantDue)
	}

	doc = f.advance(t, "dm", doc.ID, access.ActionReceivePaper)
	if doc.Status != StatusReceived || doc.ReceivedPaperAt == nil {
		t.Fatalf("after receivePaper: %+v", doc)
	}

	// audit carries one entry per mutation, notifications fired for the milestones
	var actions []string
	for _, e := range f.recorder.Entries() {
		actions = append(actions, e.Action)
	}
	joined := strings.Join(actions, ",")
	for _, want := range []string{"createDraft", "submit", "sendBackToDistrict", "receivePaper"} {
		if !strings.Contains(joined, want) {
			t.Fatalf("audit log misses %s: %s", want, joined)
		}
	}
	var kinds []string
	for _, ev := range f.events.events {
		kinds = append(kinds, string(ev.Kind))
	}
	for _, want := range []notify.Kind{notify.KindSubmitted, notify.KindSentBack, notify.KindReceived} {
		if !strings.Contains(strings.Join(kinds, ","), string(want)) {
			t.Fatalf("notifications miss %s: %v", want, kinds)
		}
	}
}

func TestTransitionDeniedForViewerTier(t *testing.T) {
	f := newFixture(t)
	f.addUser(t, "upl", 1061, rbac.RoleUploader)
	f.addUser(t, "viewer", 1061, rbac.RoleBranchUser)
	ctx := context.Background()

	doc := f.createDraft(t, "upl", 1061)
	f.advance(t, "upl", doc.ID, access.ActionSubmit)

	var denied *access.DeniedError
	if _, err := f.svc.Transition(ctx, "viewer", doc.ID, access.ActionAcknowledge); !errors.As(err, &denied) {
		t.Fatalf("viewer acknowledge: want DeniedError, got %v", err)
	}
	if denied.Reason != access.ReasonRole {
		t.Fatalf("deny reason = %s, want role", denied.Reason)
	}
}

func TestBatchDisbursementAllOrNothing(t *testing.T) {
	f := newFixture(t)
	f.addUser(t, "upl", 1061, rbac.RoleUploader)
	f.addUser(t, "dm", 0, rbac.RoleDistrictManager)
	ctx := context.Background()

	ready := f.createDraft(t, "upl", 1061)
	f.advance(t, "upl", ready.ID, toAllChecked...)

	early := f.createDraft(t, "upl", 1061)
	f.advance(t, "upl", early.ID, access.ActionSubmit)

	date := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	_, err := f.svc.SetDisbursementDates(ctx, "dm", []string{ready.ID, early.ID}, date)
	var batch *BatchError
	if !errors.As(err, &batch) {
		t.Fatalf("want BatchError, got %v", err)
	}
	if got := batch.DocumentIDs(); len(got) != 1 || got[0] != early.ID {
		t.Fatalf("batch must name exactly the offending document, got %v", got)
	}

	// nothing persisted, including the eligible document
	got, err := f.store.Get(ctx, ready.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Disbursement.Stage != StageUnset {
		t.Fatalf("eligible document must stay untouched, stage = %s", got.Disbursement.Stage)
	}

	// the clean batch goes through end to end
	docs, err := f.svc.SetDisbursementDates(ctx, "dm", []string{ready.ID}, date)
	if err != nil {
		t.Fatalf("SetDisbursementDates: %v", err)
	}
	if docs[0].Disbursement.Stage != StageDateSet {
		t.Fatalf("stage = %s", docs[0].Disbursement.Stage)
	}
	if _, err := f.svc.ConfirmDisbursements(ctx, "dm", []string{ready.ID}); err != nil {
		t.Fatalf("ConfirmDisbursements: %v", err)
	}
	docs, err = f.svc.MarkDisbursementsPaid(ctx, "dm", []string{ready.ID})
	if err != nil {
		t.Fatalf("MarkDisbursementsPaid: %v", err)
	}
	if docs[0].Disbursement.Stage != StagePaid || docs[0].Disbursement.Date == nil {
		t.Fatalf("final disbursement: %+v", docs[0].Disbursement)
	}
}

func TestBatchConfirmRequiresDateEverywhere(t *testing.T) {
	f := newFixture(t)
	f.addUser(t, "upl", 1061, rbac.RoleUploader)
	f.addUser(t, "dm", 0, rbac.RoleDistrictManager)
	ctx := context.Background()

	a := f.createDraft(t, "upl", 1061)
	f.advance(t, "upl", a.ID, toAllChecked...)
	b := f.createDraft(t, "upl", 1061)
	f.advance(t, "upl", b.ID, toAllChecked...)

	date := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	if _, err := f.svc.SetDisbursementDates(ctx, "dm", []string{a.ID}, date); err != nil {
		t.Fatalf("SetDisbursementDates: %v", err)
	}

	_, err := f.svc.ConfirmDisbursements(ctx, "dm", []string{a.ID, b.ID})
	var batch *BatchError
	if !errors.As(err, &batch) {
		t.Fatalf("want BatchError, got %v", err)
	}
	if got := batch.DocumentIDs(); len(got) != 1 || got[0] != b.ID {
		t.Fatalf("offenders = %v, want [%s]", got, b.ID)
	}
	gotA, _ := f.store.Get(ctx, a.ID)
	if gotA.Disbursement.Stage != StageDateSet {
		t.Fatalf("document with a date must stay unconfirmed, stage = %s", gotA.Disbursement.Stage)
	}
}

func TestBatchDeniedForUploader(t *testing.T) {
	f := newFixture(t)
	f.addUser(t, "upl", 1061, rbac.RoleUploader)
	ctx := context.Background()

	doc := f.createDraft(t, "upl", 1061)
	f.advance(t, "upl", doc.ID, toAllChecked...)

	var denied *access.DeniedError
	_, err := f.svc.SetDisbursementDates(ctx, "upl", []string{doc.ID}, time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC))
	if !errors.As(err, &denied) {
		t.Fatalf("uploader must not set disbursement dates, got %v", err)
	}
}

func TestDeleteDraftRules(t *testing.T) {
	f := newFixture(t)
	f.addUser(t, "upl", 1061, rbac.RoleUploader)
	f.addUser(t, "other", 1061, rbac.RoleUploader)
	f.addUser(t, "adm", 0, rbac.RoleAdmin)
	ctx := context.Background()

	// a foreign uploader cannot delete, the owner can
	doc := f.createDraft(t, "upl", 1061)
	var denied *access.DeniedError
	if err := f.svc.DeleteDraft(ctx, "other", doc.ID); !errors.As(err, &denied) {
		t.Fatalf("foreign uploader delete: want DeniedError, got %v", err)
	}
	if err := f.svc.DeleteDraft(ctx, "upl", doc.ID); err != nil {
		t.Fatalf("owner delete: %v", err)
	}
	if _, err := f.store.Get(ctx, doc.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("draft must be gone, got %v", err)
	}

	// an admin can delete any draft
	doc = f.createDraft(t, "upl", 1061)
	if err := f.svc.DeleteDraft(ctx, "adm", doc.ID); err != nil {
		t.Fatalf("admin delete: %v", err)
	}

	// submitted documents are no longer deletable
	doc = f.createDraft(t, "upl", 1061)
	f.advance(t, "upl", doc.ID, access.ActionSubmit)
	var inv *InvalidTransitionError
	if err := f.svc.DeleteDraft(ctx, "upl", doc.ID); !errors.As(err, &inv) {
		t.Fatalf("deleting a submitted document: want InvalidTransitionError, got %v", err)
	}
}

func TestCommentsRequirePermissionAndVisibility(t *testing.T) {
	f := newFixture(t)
	f.addUser(t, "upl", 1061, rbac.RoleUploader)
	f.addUser(t, "viewer", 1061, rbac.RoleBranchUser)
	f.addUser(t, "plain", 1061, rbac.RoleUser)
	ctx := context.Background()

	doc := f.createDraft(t, "upl", 1061)
	f.advance(t, "upl", doc.ID, access.ActionSubmit)

	// branch_user holds the comment permission
	c, err := f.svc.AddComment(ctx, "viewer", doc.ID, "missing invoice for item 3")
	if err != nil {
		t.Fatalf("AddComment: %v", err)
	}
	if c.AuthorID != "viewer" || c.DocumentID != doc.ID {
		t.Fatalf("unexpected comment: %+v", c)
	}

	// plain user can view but not comment
	var denied *access.DeniedError
	if _, err := f.svc.AddComment(ctx, "plain", doc.ID, "hi"); !errors.As(err, &denied) {
		t.Fatalf("plain user comment: want DeniedError, got %v", err)
	}
	if denied.Reason != access.ReasonPermission {
		t.Fatalf("deny reason = %s, want permission", denied.Reason)
	}

	comments, err := f.svc.Comments(ctx, "plain", doc.ID)
	if err != nil {
		t.Fatalf("Comments: %v", err)
	}
	if len(comments) != 1 || comments[0].Body != "missing invoice for item 3" {
		t.Fatalf("unexpected comments: %+v", comments)
	}
}

func TestUnknownActorIsAuthenticationRequired(t *testing.T) {
	f := newFixture(t)
	f.addUser(t, "upl", 1061, rbac.RoleUploader)
	doc := f.createDraft(t, "upl", 1061)

	if _, err := f.svc.Get(context.Background(), "ghost", doc.ID); !errors.Is(err, access.ErrAuthenticationRequired) {
		t.Fatalf("want ErrAuthenticationRequired, got %v", err)
	}
	if _, err := f.svc.List(context.Background(), "", Filter{}); !errors.Is(err, access.ErrAuthenticationRequired) {
		t.Fatalf("want ErrAuthenticationRequired for blank actor, got %v", err)
	}
}

func TestSweepDeadlines(t *testing.T) {
	ctx := context.Background()
	rbacMem := rbac.NewInMemory()
	rbacSvc, err := rbac.NewService(rbacMem)
	if err != nil {
		t.Fatalf("rbac.NewService: %v", err)
	}
	if err := rbacSvc.EnsureBuiltins(ctx); err != nil {
		t.Fatalf("EnsureBuiltins: %v", err)
	}
	gate, err := access.NewGate(rbacSvc)
	if err != nil {
		t.Fatalf("NewGate: %v", err)
	}

	store := NewInMemory()
	events := &capturedEvents{}
	// Monday 2026-03-02
	today := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	svc, err := NewService(store, gate,
		WithNotifier(events),
		WithClock(func() time.Time { return today }),
	)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}

	mk := func(id string, dueAt time.Time) {
		doc := Document{
			ID:         id,
			BranchCode: 1061,
			RefNo:      id,
			RefDate:    today,
			Subject:    "sweep",
			Amount:     decimal.NewFromInt(1000),
			Status:     StatusSentBackToDistrict,
			UploaderID: "upl",
			Deadline:   &Deadline{SentBackAt: dueAt.AddDate(0, 0, -7), DueAt: dueAt},
		}
		if err := store.Create(ctx, doc); err != nil {
			t.Fatalf("Create(%s): %v", id, err)
		}
	}
	mk("late", time.Date(2026, 2, 27, 0, 0, 0, 0, time.UTC))  // past Friday
	mk("close", time.Date(2026, 3, 3, 0, 0, 0, 0, time.UTC))  // tomorrow
	mk("far", time.Date(2026, 3, 20, 0, 0, 0, 0, time.UTC))   // weeks away

	n, err := svc.SweepDeadlines(ctx)
	if err != nil {
		t.Fatalf("SweepDeadlines: %v", err)
	}
	if n != 2 {
		t.Fatalf("emitted %d events, want 2", n)
	}
	kinds := map[string]notify.Kind{}
	for _, ev := range events.events {
		kinds[ev.DocumentID] = ev.Kind
	}
	if kinds["late"] != notify.KindDeadlineOverdue {
		t.Fatalf("late kind = %s, want overdue", kinds["late"])
	}
	if kinds["close"] != notify.KindDeadlineDueSoon {
		t.Fatalf("close kind = %s, want due_soon", kinds["close"])
	}
	if _, ok := kinds["far"]; ok {
		t.Fatal("on-track document must not notify")
	}
}
