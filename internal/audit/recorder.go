package audit

import (
	"context"
	"sync"
	"time"
)

// Entry is one immutable activity-log record: who did what to which document
// and branch. Written by every mutating operation of the core, never updated.
type Entry struct {
	ID         string    `json:"id"`
	ActorID    string    `json:"actor_id"`
	DocumentID string    `json:"document_id"`
	BranchCode int       `json:"branch_code"`
	Action     string    `json:"action"`
	OccurredAt time.Time `json:"occurred_at"`
	IP         string    `json:"ip,omitempty"`
	UserAgent  string    `json:"user_agent,omitempty"`
}

// Recorder persists activity-log entries append-only. Append failures are
// best-effort for callers: they are logged and never roll back the mutation
// that produced them.
type Recorder interface {
	Append(ctx context.Context, e Entry) error
}

// LogRecorder writes entries as structured audit log lines. Used when no
// database-backed recorder is configured.
type LogRecorder struct{}

// Append emits the entry through the shared audit event log.
func (LogRecorder) Append(ctx context.Context, e Entry) error {
	return LogEvent(ctx, "document.activity", map[string]any{
		"actor_id":    e.ActorID,
		"document_id": e.DocumentID,
		"branch_code": e.BranchCode,
		"action":      e.Action,
		"occurred_at": e.OccurredAt.Format(time.RFC3339),
	})
}

// MemoryRecorder collects entries in memory for tests.
type MemoryRecorder struct {
	mu      sync.Mutex
	entries []Entry
}

// Append stores the entry.
func (r *MemoryRecorder) Append(_ context.Context, e Entry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, e)
	return nil
}

// Entries returns a copy of everything appended so far.
func (r *MemoryRecorder) Entries() []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Entry, len(r.entries))
	copy(out, r.entries)
	return out
}
