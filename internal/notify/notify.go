package notify

import (
	"context"
	"time"

	"qagaz.org/internal/audit"
)

// Kind names a workflow event worth telling people about.
type Kind string

const (
	KindSubmitted             Kind = "document.submitted"
	KindAcknowledged          Kind = "document.acknowledged"
	KindAdditionalDocsDone    Kind = "document.additional_docs_completed"
	KindVerificationCompleted Kind = "document.verification_completed"
	KindAllChecked            Kind = "document.all_checked"
	KindSentBack              Kind = "document.sent_back_to_district"
	KindReceived              Kind = "document.received"
	KindDisbursementDateSet   Kind = "disbursement.date_set"
	KindDisbursementConfirmed Kind = "disbursement.confirmed"
	KindDisbursementPaid      Kind = "disbursement.paid"
	KindDeadlineDueSoon       Kind = "deadline.due_soon"
	KindDeadlineOverdue       Kind = "deadline.overdue"
)

// Event is the flattened payload handed to notifiers. It deliberately carries
// plain fields rather than core document types so transports can serialize it
// without further lookups.
type Event struct {
	ID         string    `json:"id"`
	Kind       Kind      `json:"kind"`
	DocumentID string    `json:"document_id"`
	BranchCode int       `json:"branch_code"`
	Subject    string    `json:"subject,omitempty"`
	ActorID    string    `json:"actor_id,omitempty"`
	At         time.Time `json:"at"`
}

// Notifier delivers workflow events. Delivery is best-effort: the caller
// logs failures and never rolls back the state change that produced the event.
type Notifier interface {
	Notify(ctx context.Context, ev Event) error
}

// LogNotifier writes events to the structured log. The default when no
// transport is configured.
type LogNotifier struct{}

// Notify emits the event as an audit-style log line.
func (LogNotifier) Notify(ctx context.Context, ev Event) error {
	return audit.LogEvent(ctx, string(ev.Kind), map[string]any{
		"event_id":    ev.ID,
		"document_id": ev.DocumentID,
		"branch_code": ev.BranchCode,
		"subject":     ev.Subject,
		"actor_id":    ev.ActorID,
		"at":          ev.At.Format(time.RFC3339),
	})
}

// Discard drops every event. Useful in tests.
type Discard struct{}

// Notify does nothing.
func (Discard) Notify(context.Context, Event) error { return nil }
