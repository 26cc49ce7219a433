package document

import (
	"errors"
	"fmt"
	"strings"

	"qagaz.org/internal/access"
)

// ErrNotFound is returned when the referenced document does not exist.
var ErrNotFound = errors.New("document: not found")

// ErrInvalidInput marks validation failures on caller-supplied fields.
var ErrInvalidInput = errors.New("document: invalid input")

// InvalidTransitionError reports an action that the current primary status
// does not admit.
type InvalidTransitionError struct {
	Current Status
	Action  access.Action
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("document: action %s is not allowed from status %s", e.Action, e.Current)
}

// PreconditionError reports a state-dependent precondition failure, such as
// confirming a disbursement with no date set.
type PreconditionError struct {
	DocumentID string
	Reason     string
}

func (e *PreconditionError) Error() string {
	return fmt.Sprintf("document %s: %s", e.DocumentID, e.Reason)
}

// BatchError aggregates per-document precondition failures of a batch
// operation. The batch persists nothing when this error is returned.
type BatchError struct {
	Failures []PreconditionError
}

func (e *BatchError) Error() string {
	parts := make([]string, 0, len(e.Failures))
	for _, f := range e.Failures {
		parts = append(parts, fmt.Sprintf("%s (%s)", f.DocumentID, f.Reason))
	}
	return "document: batch rejected: " + strings.Join(parts, ", ")
}

// DocumentIDs lists the offending documents in input order.
func (e *BatchError) DocumentIDs() []string {
	ids := make([]string, 0, len(e.Failures))
	for _, f := range e.Failures {
		ids = append(ids, f.DocumentID)
	}
	return ids
}
