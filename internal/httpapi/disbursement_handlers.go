package httpapi

import (
	"context"
	"net/http"
	"strings"
	"time"

	"qagaz.org/internal/document"
)

type disbursementDateRequest struct {
	DocumentIDs []string `json:"document_ids"`
	Date        string   `json:"date"`
}

type disbursementBatchRequest struct {
	DocumentIDs []string `json:"document_ids"`
}

func (a *API) handleDisbursementDates(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req disbursementDateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	date, err := time.Parse(dateLayout, strings.TrimSpace(req.Date))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "date must be formatted as YYYY-MM-DD")
		return
	}

	docs, err := a.docs.SetDisbursementDates(r.Context(), actorID(r), req.DocumentIDs, date)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, documentListResponse{Items: docs, AsOf: time.Now().UTC()})
}

func (a *API) handleDisbursementConfirm(w http.ResponseWriter, r *http.Request) {
	a.disbursementBatch(w, r, a.docs.ConfirmDisbursements)
}

func (a *API) handleDisbursementPay(w http.ResponseWriter, r *http.Request) {
	a.disbursementBatch(w, r, a.docs.MarkDisbursementsPaid)
}

type batchOp func(ctx context.Context, actorID string, docIDs []string) ([]document.Document, error)

func (a *API) disbursementBatch(w http.ResponseWriter, r *http.Request, op batchOp) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req disbursementBatchRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	docs, err := op(r.Context(), actorID(r), req.DocumentIDs)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, documentListResponse{Items: docs, AsOf: time.Now().UTC()})
}
