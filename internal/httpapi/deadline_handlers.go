package httpapi

import (
	"net/http"
	"time"

	"qagaz.org/internal/document"
)

type deadlineItem struct {
	Document document.Document `json:"document"`
	DueClass document.DueClass `json:"due_class"`
}

// handleDeadlines lists documents waiting for their paper originals along
// with how close each return deadline is.
func (a *API) handleDeadlines(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}

	status := document.StatusSentBackToDistrict
	docs, err := a.docs.List(r.Context(), actorID(r), document.Filter{Status: &status})
	if err != nil {
		handleDomainError(w, r, err)
		return
	}

	items := make([]deadlineItem, 0, len(docs))
	for _, doc := range docs {
		items = append(items, deadlineItem{
			Document: doc,
			DueClass: a.docs.DueClassFor(doc),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"items": items,
		"as_of": time.Now().UTC(),
	})
}
