package httpapi

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"qagaz.org/api/spec"
	"qagaz.org/internal/audit"
	"qagaz.org/internal/document"
	"qagaz.org/internal/notify"
	"qagaz.org/internal/obs"
	"qagaz.org/internal/rbac"
)

// ReadyProbe pings the backing database when one is configured.
type ReadyProbe struct {
	DB *sql.DB
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB == nil {
		return nil
	}
	return rp.DB.PingContext(ctx)
}

// ActivityReader serves the per-document activity log. Optional; nil when the
// deployment runs without a database.
type ActivityReader interface {
	Activity(ctx context.Context, documentID string, limit int) ([]audit.Entry, error)
}

// API is the HTTP layer: routing, authentication, request decoding and the
// error taxonomy mapping. All domain rules live below it.
type API struct {
	mux        *http.ServeMux
	readyProbe ReadyProbe
	version    string

	docs     *document.Service
	rbac     *rbac.Service
	hub      *notify.Hub
	activity ActivityReader
}

// Config carries the API dependencies.
type Config struct {
	ReadyProbe ReadyProbe
	Version    string
	Documents  *document.Service
	RBAC       *rbac.Service
	Hub        *notify.Hub
	Activity   ActivityReader
}

func New(cfg Config) (*API, error) {
	if cfg.Documents == nil {
		return nil, errors.New("httpapi: document service is required")
	}
	if cfg.RBAC == nil {
		return nil, errors.New("httpapi: rbac service is required")
	}
	a := &API{
		mux:        http.NewServeMux(),
		readyProbe: cfg.ReadyProbe,
		version:    cfg.Version,
		docs:       cfg.Documents,
		rbac:       cfg.RBAC,
		hub:        cfg.Hub,
		activity:   cfg.Activity,
	}

	// health/ready/info
	a.mux.HandleFunc("/healthz", a.Healthz)
	a.mux.HandleFunc("/readyz", a.Ready)
	a.mux.HandleFunc("/v1/info", a.Info)

	// OpenAPI YAML
	a.mux.HandleFunc("/openapi.yaml", a.OpenAPISpec)

	// Prometheus metrics
	a.mux.Handle("/metrics", obs.Handler())

	// session tokens
	a.mux.HandleFunc("/v1/auth/token", a.handleAuthToken)
	a.mux.HandleFunc("/v1/auth/login", a.handleAuthLogin)

	// documents
	a.mux.HandleFunc("/v1/documents", a.handleDocumentsCollection)
	a.mux.HandleFunc("/v1/documents/", a.handleDocumentResource)
	a.mux.HandleFunc("/v1/deadlines", a.handleDeadlines)

	// batch disbursement operations
	a.mux.HandleFunc("/v1/disbursements/date", a.handleDisbursementDates)
	a.mux.HandleFunc("/v1/disbursements/confirm", a.handleDisbursementConfirm)
	a.mux.HandleFunc("/v1/disbursements/pay", a.handleDisbursementPay)

	// reference data administration
	a.mux.HandleFunc("/v1/roles", a.handleRolesCollection)
	a.mux.HandleFunc("/v1/roles/", a.handleRoleResource)
	a.mux.HandleFunc("/v1/permissions", a.handlePermissions)
	a.mux.HandleFunc("/v1/users/", a.handleUserResource)
	a.mux.HandleFunc("/v1/branches", a.handleBranchesCollection)

	// live workflow events
	a.mux.HandleFunc("/v1/events", a.Events)

	a.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})

	return a, nil
}

// Handler wraps the mux with authentication and metrics.
func (a *API) Handler() http.Handler {
	return obs.Instrument(a.withAuth(a.mux))
}

// --- probes and metadata ---

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "qagaz-api",
		"version": a.version,
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	if err := a.readyProbe.Check(r.Context()); err != nil {
		obs.SetReady(false)
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	obs.SetReady(true)
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ready",
	})
}

func (a *API) Info(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":    "qagaz-api",
		"time":    time.Now().UTC().Format(time.RFC3339),
		"version": a.version,
	})
}

func (a *API) OpenAPISpec(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/yaml; charset=utf-8")
	_, _ = w.Write(spec.OpenAPI)
}

// --- helpers ---

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, code int, msg string) {
	payload := map[string]any{
		"error": msg,
	}
	if rid := RequestIDFromContext(r.Context()); rid != "" {
		payload["request_id"] = rid
	}
	writeJSON(w, code, payload)
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request, allowed ...string) {
	w.Header().Set("Allow", strings.Join(allowed, ", "))
	writeError(w, r, http.StatusMethodNotAllowed, "method not allowed")
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	reader := http.MaxBytesReader(w, r.Body, 1<<20)
	defer reader.Close()
	dec := json.NewDecoder(reader)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is required")
		}
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		if err == nil {
			return errors.New("unexpected data after JSON body")
		}
		return err
	}
	return nil
}
