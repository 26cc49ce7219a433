package httpapi

import (
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"qagaz.org/internal/access"
	"qagaz.org/internal/document"
)

type createDraftRequest struct {
	BranchCode int    `json:"branch_code"`
	RefNo      string `json:"ref_no"`
	RefDate    string `json:"ref_date"`
	Subject    string `json:"subject"`
	Amount     string `json:"amount"`
}

type transitionRequest struct {
	Action string `json:"action"`
}

type commentRequest struct {
	Body string `json:"body"`
}

type documentListResponse struct {
	Items []document.Document `json:"items"`
	AsOf  time.Time           `json:"as_of"`
}

const dateLayout = "2006-01-02"

func (a *API) handleDocumentsCollection(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		a.createDraft(w, r)
	case http.MethodGet:
		a.listDocuments(w, r)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

// handleDocumentResource routes /v1/documents/{id} and its sub-resources:
// transitions, comments, files, activity.
func (a *API) handleDocumentResource(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/v1/documents/")
	if path == "" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	parts := strings.Split(strings.TrimSuffix(path, "/"), "/")
	id := parts[0]
	if id == "" {
		writeError(w, r, http.StatusNotFound, "document not found")
		return
	}

	switch {
	case len(parts) == 1:
		switch r.Method {
		case http.MethodGet:
			a.getDocument(w, r, id)
		case http.MethodDelete:
			a.deleteDraft(w, r, id)
		default:
			methodNotAllowed(w, r, http.MethodGet, http.MethodDelete)
		}
	case len(parts) == 2 && parts[1] == "transitions":
		if r.Method != http.MethodPost {
			methodNotAllowed(w, r, http.MethodPost)
			return
		}
		a.transition(w, r, id)
	case len(parts) == 2 && parts[1] == "comments":
		switch r.Method {
		case http.MethodGet:
			a.listComments(w, r, id)
		case http.MethodPost:
			a.createComment(w, r, id)
		default:
			methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
		}
	case len(parts) == 2 && parts[1] == "files":
		switch r.Method {
		case http.MethodGet:
			a.listFiles(w, r, id)
		case http.MethodPost:
			a.uploadFile(w, r, id)
		default:
			methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
		}
	case len(parts) == 3 && parts[1] == "files":
		if r.Method != http.MethodGet {
			methodNotAllowed(w, r, http.MethodGet)
			return
		}
		a.downloadFile(w, r, id, parts[2])
	case len(parts) == 2 && parts[1] == "activity":
		if r.Method != http.MethodGet {
			methodNotAllowed(w, r, http.MethodGet)
			return
		}
		a.listActivity(w, r, id)
	default:
		writeError(w, r, http.StatusNotFound, "resource not found")
	}
}

func (a *API) createDraft(w http.ResponseWriter, r *http.Request) {
	var req createDraftRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	refDate, err := time.Parse(dateLayout, strings.TrimSpace(req.RefDate))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "ref_date must be formatted as YYYY-MM-DD")
		return
	}
	amount, err := decimal.NewFromString(strings.TrimSpace(req.Amount))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "amount must be a decimal number")
		return
	}

	doc, err := a.docs.CreateDraft(r.Context(), actorID(r), document.DraftInput{
		BranchCode: req.BranchCode,
		RefNo:      req.RefNo,
		RefDate:    refDate,
		Subject:    req.Subject,
		Amount:     amount,
	})
	if err != nil {
		handleDomainError(w, r, err)
		return
	}

	w.Header().Set("Location", "/v1/documents/"+doc.ID)
	writeJSON(w, http.StatusCreated, doc)
}

func (a *API) getDocument(w http.ResponseWriter, r *http.Request, id string) {
	doc, err := a.docs.Get(r.Context(), actorID(r), id)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (a *API) listDocuments(w http.ResponseWriter, r *http.Request) {
	var f document.Filter
	if raw := strings.TrimSpace(r.URL.Query().Get("branch")); raw != "" {
		code, err := strconv.Atoi(raw)
		if err != nil || code <= 0 {
			writeError(w, r, http.StatusBadRequest, "branch must be a positive integer")
			return
		}
		f.BranchCode = &code
	}
	if raw := strings.TrimSpace(r.URL.Query().Get("status")); raw != "" {
		status := document.Status(raw)
		f.Status = &status
	}
	if raw := strings.TrimSpace(r.URL.Query().Get("stage")); raw != "" {
		stage := document.DisbursementStage(raw)
		f.Stage = &stage
	}

	docs, err := a.docs.List(r.Context(), actorID(r), f)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, documentListResponse{Items: docs, AsOf: time.Now().UTC()})
}

func (a *API) transition(w http.ResponseWriter, r *http.Request, id string) {
	var req transitionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	action := access.Action(strings.TrimSpace(req.Action))
	if !access.Known(action) {
		writeError(w, r, http.StatusBadRequest, "unknown action")
		return
	}

	doc, err := a.docs.Transition(r.Context(), actorID(r), id, action)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (a *API) deleteDraft(w http.ResponseWriter, r *http.Request, id string) {
	if err := a.docs.DeleteDraft(r.Context(), actorID(r), id); err != nil {
		handleDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) listComments(w http.ResponseWriter, r *http.Request, id string) {
	comments, err := a.docs.Comments(r.Context(), actorID(r), id)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": comments})
}

func (a *API) createComment(w http.ResponseWriter, r *http.Request, id string) {
	var req commentRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	c, err := a.docs.AddComment(r.Context(), actorID(r), id, req.Body)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

const maxUploadBytes = 32 << 20

func (a *API) listFiles(w http.ResponseWriter, r *http.Request, id string) {
	files, err := a.docs.Files(r.Context(), actorID(r), id)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": files})
}

// uploadFile accepts multipart form data with a "file" part and an
// "item_index" field. Index 0 is the emendation slot.
func (a *API) uploadFile(w http.ResponseWriter, r *http.Request, id string) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid multipart form")
		return
	}
	itemIndex := 0
	if raw := strings.TrimSpace(r.FormValue("item_index")); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 0 {
			writeError(w, r, http.StatusBadRequest, "item_index must be a non-negative integer")
			return
		}
		itemIndex = v
	}

	part, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "file part is required")
		return
	}
	defer part.Close()

	f, err := a.docs.AttachFile(r.Context(), actorID(r), id, itemIndex, header.Filename, part)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, f)
}

func (a *API) downloadFile(w http.ResponseWriter, r *http.Request, docID, fileID string) {
	f, rc, err := a.docs.OpenFile(r.Context(), actorID(r), docID, fileID)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	defer rc.Close()

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Disposition", `attachment; filename="`+f.Name+`"`)
	if f.Size > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(f.Size, 10))
	}
	_, _ = io.Copy(w, rc)
}

func (a *API) listActivity(w http.ResponseWriter, r *http.Request, id string) {
	if a.activity == nil {
		writeError(w, r, http.StatusNotFound, "activity log is not available")
		return
	}
	// a view check first so the log never leaks hidden documents
	if _, err := a.docs.Get(r.Context(), actorID(r), id); err != nil {
		handleDomainError(w, r, err)
		return
	}
	entries, err := a.activity.Activity(r.Context(), id, 100)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": entries})
}
