package httpapi

import (
	"errors"
	"net/http"

	"qagaz.org/internal/access"
	"qagaz.org/internal/document"
	"qagaz.org/internal/rbac"
)

// handleDomainError maps the error taxonomy of the core onto HTTP codes:
// authentication 401, denial 403, missing 404, illegal transition 409,
// state precondition 422, validation 400.
func handleDomainError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		denied *access.DeniedError
		inv    *document.InvalidTransitionError
		pre    *document.PreconditionError
		batch  *document.BatchError
	)
	switch {
	case errors.Is(err, access.ErrAuthenticationRequired):
		writeError(w, r, http.StatusUnauthorized, "authentication required")
	case errors.As(err, &denied):
		payload := map[string]any{
			"error":  denied.Detail,
			"reason": string(denied.Reason),
		}
		if rid := RequestIDFromContext(r.Context()); rid != "" {
			payload["request_id"] = rid
		}
		writeJSON(w, http.StatusForbidden, payload)
	case errors.Is(err, document.ErrNotFound), errors.Is(err, rbac.ErrNotFound):
		writeError(w, r, http.StatusNotFound, err.Error())
	case errors.As(err, &inv):
		writeError(w, r, http.StatusConflict, inv.Error())
	case errors.As(err, &batch):
		payload := map[string]any{
			"error":        batch.Error(),
			"document_ids": batch.DocumentIDs(),
		}
		if rid := RequestIDFromContext(r.Context()); rid != "" {
			payload["request_id"] = rid
		}
		writeJSON(w, http.StatusUnprocessableEntity, payload)
	case errors.As(err, &pre):
		writeError(w, r, http.StatusUnprocessableEntity, pre.Error())
	case errors.Is(err, document.ErrInvalidInput), errors.Is(err, rbac.ErrInvalidInput):
		writeError(w, r, http.StatusBadRequest, err.Error())
	case errors.Is(err, rbac.ErrConflict):
		writeError(w, r, http.StatusConflict, err.Error())
	default:
		writeError(w, r, http.StatusInternalServerError, "internal error")
	}
}
