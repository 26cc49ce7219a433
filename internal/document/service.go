package document

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"qagaz.org/internal/access"
	"qagaz.org/internal/audit"
	"qagaz.org/internal/filestore"
	"qagaz.org/internal/ids"
	"qagaz.org/internal/notify"
	"qagaz.org/internal/obs"
)

// Service orchestrates the document lifecycle: every operation authorizes
// through the access gate, mutates through the state machine, persists, and
// then appends to the activity log and notifies. Audit and notification
// failures are logged and never roll back the mutation.
type Service struct {
	store    Store
	gate     *access.Gate
	recorder audit.Recorder
	notifier notify.Notifier
	files    filestore.Storage
	loc      *time.Location
	now      func() time.Time
}

// Option customizes a Service.
type Option func(*Service) error

// WithRecorder sets the activity-log recorder.
func WithRecorder(r audit.Recorder) Option {
	return func(s *Service) error {
		if r == nil {
			return errors.New("recorder is nil")
		}
		s.recorder = r
		return nil
	}
}

// WithNotifier sets the workflow event notifier.
func WithNotifier(n notify.Notifier) Option {
	return func(s *Service) error {
		if n == nil {
			return errors.New("notifier is nil")
		}
		s.notifier = n
		return nil
	}
}

// WithFileStorage enables attachment uploads.
func WithFileStorage(fs filestore.Storage) Option {
	return func(s *Service) error {
		if fs == nil {
			return errors.New("file storage is nil")
		}
		s.files = fs
		return nil
	}
}

// WithLocation sets the civil-date calendar for workflow date stamps.
func WithLocation(loc *time.Location) Option {
	return func(s *Service) error {
		if loc == nil {
			return errors.New("location is nil")
		}
		s.loc = loc
		return nil
	}
}

// WithClock overrides the wall clock. Tests only.
func WithClock(now func() time.Time) Option {
	return func(s *Service) error {
		if now == nil {
			return errors.New("clock is nil")
		}
		s.now = now
		return nil
	}
}

// NewService constructs a Service with log-backed audit and notification
// defaults.
func NewService(store Store, gate *access.Gate, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, errors.New("document: store is required")
	}
	if gate == nil {
		return nil, errors.New("document: access gate is required")
	}
	s := &Service{
		store:    store,
		gate:     gate,
		recorder: audit.LogRecorder{},
		notifier: notify.LogNotifier{},
		loc:      time.UTC,
		now:      time.Now,
	}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, fmt.Errorf("document: %w", err)
		}
	}
	return s, nil
}

func (s *Service) today() time.Time {
	return CivilDate(s.now(), s.loc)
}

func resource(doc Document) access.Resource {
	return access.Resource{
		DocumentID: doc.ID,
		BranchCode: doc.BranchCode,
		Draft:      doc.Status == StatusDraft,
		OwnerID:    doc.UploaderID,
	}
}

func (s *Service) record(ctx context.Context, actorID string, doc Document, action access.Action) {
	meta := audit.MetaFromContext(ctx)
	err := s.recorder.Append(ctx, audit.Entry{
		ID:         ids.New(),
		ActorID:    actorID,
		DocumentID: doc.ID,
		BranchCode: doc.BranchCode,
		Action:     string(action),
		OccurredAt: s.now().UTC(),
		IP:         meta.IP,
		UserAgent:  meta.UserAgent,
	})
	if err != nil {
		obs.Logger().Printf(`{"type":"error","msg":"audit append failed","document_id":%q,"action":%q,"err":%q}`,
			doc.ID, action, err.Error())
	}
}

func (s *Service) emit(ctx context.Context, kind notify.Kind, actorID string, doc Document) {
	err := s.notifier.Notify(ctx, notify.Event{
		Kind:       kind,
		DocumentID: doc.ID,
		BranchCode: doc.BranchCode,
		Subject:    doc.Subject,
		ActorID:    actorID,
		At:         s.now().UTC(),
	})
	if err != nil {
		obs.Logger().Printf(`{"type":"error","msg":"notify failed","document_id":%q,"kind":%q,"err":%q}`,
			doc.ID, kind, err.Error())
	}
}

var workflowKinds = map[access.Action]notify.Kind{
	access.ActionSubmit:                 notify.KindSubmitted,
	access.ActionAcknowledge:            notify.KindAcknowledged,
	access.ActionCompleteAdditionalDocs: notify.KindAdditionalDocsDone,
	access.ActionCompleteVerification:   notify.KindVerificationCompleted,
	access.ActionMarkAllChecked:         notify.KindAllChecked,
	access.ActionSendBackToDistrict:     notify.KindSentBack,
	access.ActionReceivePaper:           notify.KindReceived,
}

// DraftInput carries the caller-supplied fields of a new draft.
type DraftInput struct {
	BranchCode int             `json:"branch_code"`
	RefNo      string          `json:"ref_no"`
	RefDate    time.Time       `json:"ref_date"`
	Subject    string          `json:"subject"`
	Amount     decimal.Decimal `json:"amount"`
}

func (in DraftInput) validate() error {
	if in.BranchCode <= 0 {
		return fmt.Errorf("%w: branch code is required", ErrInvalidInput)
	}
	if strings.TrimSpace(in.RefNo) == "" {
		return fmt.Errorf("%w: reference number is required", ErrInvalidInput)
	}
	if in.RefDate.IsZero() {
		return fmt.Errorf("%w: reference date is required", ErrInvalidInput)
	}
	if strings.TrimSpace(in.Subject) == "" {
		return fmt.Errorf("%w: subject is required", ErrInvalidInput)
	}
	if in.Amount.LessThanOrEqual(decimal.Zero) {
		return fmt.Errorf("%w: amount must be positive", ErrInvalidInput)
	}
	return nil
}

// CreateDraft creates a document in draft owned by the caller.
func (s *Service) CreateDraft(ctx context.Context, actorID string, in DraftInput) (Document, error) {
	dec, err := s.gate.Authorize(ctx, actorID, access.Resource{BranchCode: in.BranchCode}, access.ActionCreateDraft)
	if err != nil {
		return Document{}, err
	}
	if err := dec.Err(); err != nil {
		return Document{}, err
	}
	if err := in.validate(); err != nil {
		return Document{}, err
	}

	now := s.now().UTC()
	doc := Document{
		ID:           ids.New(),
		BranchCode:   in.BranchCode,
		RefNo:        strings.TrimSpace(in.RefNo),
		RefDate:      CivilDate(in.RefDate, s.loc),
		Subject:      strings.TrimSpace(in.Subject),
		Amount:       in.Amount,
		Status:       StatusDraft,
		Disbursement: Disbursement{Stage: StageUnset},
		UploaderID:   actorID,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.store.Create(ctx, doc); err != nil {
		return Document{}, err
	}
	s.record(ctx, actorID, doc, access.ActionCreateDraft)
	return doc, nil
}

// Get returns a single document the caller is allowed to see.
func (s *Service) Get(ctx context.Context, actorID, docID string) (Document, error) {
	doc, err := s.store.Get(ctx, docID)
	if err != nil {
		return Document{}, err
	}
	dec, err := s.gate.Authorize(ctx, actorID, resource(doc), access.ActionView)
	if err != nil {
		return Document{}, err
	}
	if err := dec.Err(); err != nil {
		return Document{}, err
	}
	return doc, nil
}

// List returns the documents matching the filter that the caller may see:
// branch scope and draft visibility are applied per document.
func (s *Service) List(ctx context.Context, actorID string, f Filter) ([]Document, error) {
	acc, err := s.gate.ResolveUser(ctx, actorID)
	if err != nil {
		return nil, err
	}
	docs, err := s.store.List(ctx, f)
	if err != nil {
		return nil, err
	}
	out := docs[:0]
	for _, doc := range docs {
		if access.Visible(acc, resource(doc)) {
			out = append(out, doc)
		}
	}
	return out, nil
}

// Transition performs a primary workflow action on a single document.
func (s *Service) Transition(ctx context.Context, actorID, docID string, action access.Action) (Document, error) {
	if !IsWorkflowAction(action) {
		return Document{}, fmt.Errorf("%w: %q is not a workflow action", ErrInvalidInput, action)
	}
	doc, err := s.store.Get(ctx, docID)
	if err != nil {
		return Document{}, err
	}
	dec, err := s.gate.Authorize(ctx, actorID, resource(doc), action)
	if err != nil {
		return Document{}, err
	}
	if err := dec.Err(); err != nil {
		obs.CountTransition(string(action), "denied")
		return Document{}, err
	}

	if err := Apply(&doc, action, s.today()); err != nil {
		obs.CountTransition(string(action), "rejected")
		return Document{}, err
	}
	doc.UpdatedAt = s.now().UTC()
	if err := s.store.Update(ctx, doc); err != nil {
		obs.CountTransition(string(action), "error")
		return Document{}, err
	}
	obs.CountTransition(string(action), "ok")

	s.record(ctx, actorID, doc, action)
	if kind, ok := workflowKinds[action]; ok {
		s.emit(ctx, kind, actorID, doc)
	}
	return doc, nil
}

// DeleteDraft removes a draft. Only the owning uploader or an admin may
// delete, and only while the document has not been submitted.
func (s *Service) DeleteDraft(ctx context.Context, actorID, docID string) error {
	doc, err := s.store.Get(ctx, docID)
	if err != nil {
		return err
	}
	dec, err := s.gate.Authorize(ctx, actorID, resource(doc), access.ActionDeleteDraft)
	if err != nil {
		return err
	}
	if err := dec.Err(); err != nil {
		return err
	}
	if doc.Status != StatusDraft {
		return &InvalidTransitionError{Current: doc.Status, Action: access.ActionDeleteDraft}
	}
	if err := s.store.Delete(ctx, docID); err != nil {
		return err
	}
	s.record(ctx, actorID, doc, access.ActionDeleteDraft)
	return nil
}

// SetDisbursementDates stamps the same disbursement date on every listed
// document. All-or-nothing: any authorization or precondition failure
// rejects the whole batch before anything persists.
func (s *Service) SetDisbursementDates(ctx context.Context, actorID string, docIDs []string, date time.Time) ([]Document, error) {
	if date.IsZero() {
		return nil, fmt.Errorf("%w: disbursement date is required", ErrInvalidInput)
	}
	civil := CivilDate(date, s.loc)
	return s.applyBatch(ctx, actorID, docIDs, access.ActionSetDisbursementDate, notify.KindDisbursementDateSet,
		func(doc *Document) error { return SetDisbursementDate(doc, civil) })
}

// ConfirmDisbursements confirms the disbursement of every listed document,
// all-or-nothing.
func (s *Service) ConfirmDisbursements(ctx context.Context, actorID string, docIDs []string) ([]Document, error) {
	return s.applyBatch(ctx, actorID, docIDs, access.ActionConfirmDisbursement, notify.KindDisbursementConfirmed,
		func(doc *Document) error { return ConfirmDisbursement(doc) })
}

// MarkDisbursementsPaid marks the disbursement of every listed document as
// paid, all-or-nothing.
func (s *Service) MarkDisbursementsPaid(ctx context.Context, actorID string, docIDs []string) ([]Document, error) {
	return s.applyBatch(ctx, actorID, docIDs, access.ActionMarkPaid, notify.KindDisbursementPaid,
		func(doc *Document) error { return MarkPaid(doc) })
}

func (s *Service) applyBatch(ctx context.Context, actorID string, docIDs []string, action access.Action, kind notify.Kind, apply func(*Document) error) ([]Document, error) {
	unique := dedupeIDs(docIDs)
	if len(unique) == 0 {
		return nil, fmt.Errorf("%w: at least one document id is required", ErrInvalidInput)
	}
	docs, err := s.store.GetBatch(ctx, unique)
	if err != nil {
		return nil, err
	}

	// Authorize and validate everything before the first write.
	var batchErr BatchError
	now := s.now().UTC()
	for i := range docs {
		dec, err := s.gate.Authorize(ctx, actorID, resource(docs[i]), action)
		if err != nil {
			return nil, err
		}
		if err := dec.Err(); err != nil {
			obs.CountTransition(string(action), "denied")
			return nil, err
		}
		if err := apply(&docs[i]); err != nil {
			var pre *PreconditionError
			if errors.As(err, &pre) {
				batchErr.Failures = append(batchErr.Failures, *pre)
				continue
			}
			var inv *InvalidTransitionError
			if errors.As(err, &inv) {
				batchErr.Failures = append(batchErr.Failures, PreconditionError{DocumentID: docs[i].ID, Reason: inv.Error()})
				continue
			}
			return nil, err
		}
		docs[i].UpdatedAt = now
	}
	if len(batchErr.Failures) > 0 {
		obs.CountTransition(string(action), "rejected")
		return nil, &batchErr
	}

	if err := s.store.UpdateBatch(ctx, docs); err != nil {
		obs.CountTransition(string(action), "error")
		return nil, err
	}
	obs.CountTransition(string(action), "ok")
	for _, doc := range docs {
		s.record(ctx, actorID, doc, action)
		s.emit(ctx, kind, actorID, doc)
	}
	return docs, nil
}

// AddComment appends a discussion note.
func (s *Service) AddComment(ctx context.Context, actorID, docID, body string) (Comment, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return Comment{}, fmt.Errorf("%w: comment body is required", ErrInvalidInput)
	}
	doc, err := s.store.Get(ctx, docID)
	if err != nil {
		return Comment{}, err
	}
	dec, err := s.gate.Authorize(ctx, actorID, resource(doc), access.ActionCreateComment)
	if err != nil {
		return Comment{}, err
	}
	if err := dec.Err(); err != nil {
		return Comment{}, err
	}

	c := Comment{
		ID:         ids.New(),
		DocumentID: doc.ID,
		AuthorID:   actorID,
		Body:       body,
		CreatedAt:  s.now().UTC(),
	}
	if err := s.store.AddComment(ctx, c); err != nil {
		return Comment{}, err
	}
	s.record(ctx, actorID, doc, access.ActionCreateComment)
	return c, nil
}

// Comments lists the discussion of a document the caller may see.
func (s *Service) Comments(ctx context.Context, actorID, docID string) ([]Comment, error) {
	if _, err := s.Get(ctx, actorID, docID); err != nil {
		return nil, err
	}
	return s.store.Comments(ctx, docID)
}

// AttachFile stores the payload and records it under the given slot.
// Slot 0 is the emendation slot for correction files.
func (s *Service) AttachFile(ctx context.Context, actorID, docID string, itemIndex int, name string, r io.Reader) (File, error) {
	if s.files == nil {
		return File{}, errors.New("document: file storage is not configured")
	}
	if itemIndex < 0 {
		return File{}, fmt.Errorf("%w: item index must not be negative", ErrInvalidInput)
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return File{}, fmt.Errorf("%w: file name is required", ErrInvalidInput)
	}
	doc, err := s.store.Get(ctx, docID)
	if err != nil {
		return File{}, err
	}
	dec, err := s.gate.Authorize(ctx, actorID, resource(doc), access.ActionAttachFile)
	if err != nil {
		return File{}, err
	}
	if err := dec.Err(); err != nil {
		return File{}, err
	}

	key, size, err := s.files.Store(r)
	if err != nil {
		return File{}, fmt.Errorf("store attachment: %w", err)
	}
	f := File{
		ID:         ids.New(),
		DocumentID: doc.ID,
		ItemIndex:  itemIndex,
		Name:       name,
		StorageKey: key,
		Size:       size,
		UploaderID: actorID,
		CreatedAt:  s.now().UTC(),
	}
	if err := s.store.AddFile(ctx, f); err != nil {
		_ = s.files.Delete(key)
		return File{}, err
	}
	s.record(ctx, actorID, doc, access.ActionAttachFile)
	return f, nil
}

// Files lists the attachment records of a document the caller may see.
func (s *Service) Files(ctx context.Context, actorID, docID string) ([]File, error) {
	if _, err := s.Get(ctx, actorID, docID); err != nil {
		return nil, err
	}
	return s.store.Files(ctx, docID)
}

// OpenFile returns the payload of an attachment after a view check.
func (s *Service) OpenFile(ctx context.Context, actorID, docID, fileID string) (File, io.ReadCloser, error) {
	if s.files == nil {
		return File{}, nil, errors.New("document: file storage is not configured")
	}
	if _, err := s.Get(ctx, actorID, docID); err != nil {
		return File{}, nil, err
	}
	records, err := s.store.Files(ctx, docID)
	if err != nil {
		return File{}, nil, err
	}
	for _, f := range records {
		if f.ID == fileID {
			rc, err := s.files.Retrieve(f.StorageKey)
			if err != nil {
				return File{}, nil, err
			}
			return f, rc, nil
		}
	}
	return File{}, nil, fmt.Errorf("%w: file %s", ErrNotFound, fileID)
}

// SweepDeadlines emits a notification for every document whose return window
// is due today, due soon or overdue. Meant to run periodically; delivery
// follows the usual best-effort rules. Returns how many events were emitted.
func (s *Service) SweepDeadlines(ctx context.Context) (int, error) {
	status := StatusSentBackToDistrict
	docs, err := s.store.List(ctx, Filter{Status: &status})
	if err != nil {
		return 0, err
	}
	emitted := 0
	for _, doc := range docs {
		var kind notify.Kind
		switch s.DueClassFor(doc) {
		case DueOverdue:
			kind = notify.KindDeadlineOverdue
		case DueToday, DueSoon:
			kind = notify.KindDeadlineDueSoon
		default:
			continue
		}
		s.emit(ctx, kind, "", doc)
		emitted++
	}
	return emitted, nil
}

// DueClassFor classifies the return deadline of a document against today.
// Documents without a deadline report on_track.
func (s *Service) DueClassFor(doc Document) DueClass {
	if doc.Deadline == nil || doc.Status == StatusReceived {
		return DueOnTrack
	}
	return ClassifyDeadline(doc.Deadline.DueAt, s.today())
}

func dedupeIDs(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, id := range in {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
