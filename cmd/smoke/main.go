// Command smoke walks a document through the full review and disbursement
// workflow over the real HTTP surface, served in-process against in-memory
// stores. It fails loudly on the first broken invariant.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/http/httptest"
	"os"
	"time"

	"qagaz.org/internal/access"
	"qagaz.org/internal/audit"
	"qagaz.org/internal/auth"
	"qagaz.org/internal/document"
	"qagaz.org/internal/httpapi"
	"qagaz.org/internal/notify"
	"qagaz.org/internal/rbac"
)

func main() {
	if os.Getenv("QAGAZ_AUTH_SECRET") == "" {
		os.Setenv("QAGAZ_AUTH_SECRET", "smoke-secret")
	}

	ctx := context.Background()

	rbacMem := rbac.NewInMemory()
	rbacSvc, err := rbac.NewService(rbacMem)
	if err != nil {
		log.Fatalf("rbac service: %v", err)
	}
	if err := rbacSvc.EnsureBuiltins(ctx); err != nil {
		log.Fatalf("ensure builtins: %v", err)
	}
	gate, err := access.NewGate(rbacSvc)
	if err != nil {
		log.Fatalf("access gate: %v", err)
	}
	recorder := &audit.MemoryRecorder{}
	hub := notify.NewHub(notify.Discard{})
	docs, err := document.NewService(document.NewInMemory(), gate,
		document.WithRecorder(recorder),
		document.WithNotifier(hub),
	)
	if err != nil {
		log.Fatalf("document service: %v", err)
	}
	api, err := httpapi.New(httpapi.Config{
		Version:   "smoke",
		Documents: docs,
		RBAC:      rbacSvc,
		Hub:       hub,
	})
	if err != nil {
		log.Fatalf("httpapi: %v", err)
	}

	srv := httptest.NewServer(api.Handler())
	defer srv.Close()

	manager := makeUser(ctx, rbacMem, rbacSvc, "smoke-manager", 1000, rbac.RoleDistrictManager)
	token, err := auth.GenerateToken(manager, []string{rbac.RoleDistrictManager}, 5*time.Minute)
	if err != nil {
		log.Fatalf("token: %v", err)
	}
	c := &client{base: srv.URL, token: token, http: srv.Client()}

	doc := c.post("/v1/documents", map[string]any{
		"branch_code": 1061,
		"ref_no":      "SMOKE-1",
		"ref_date":    time.Now().Format("2006-01-02"),
		"subject":     "smoke disbursement",
		"amount":      "250000",
	}, http.StatusCreated)
	id, _ := doc["id"].(string)
	if id == "" {
		log.Fatal("created document has no id")
	}

	for _, action := range []string{
		"submit", "acknowledge", "completeAdditionalDocs",
		"completeVerification", "markAllChecked", "sendBackToDistrict",
	} {
		c.post("/v1/documents/"+id+"/transitions", map[string]any{"action": action}, http.StatusOK)
	}

	deadlines := c.get("/v1/deadlines", http.StatusOK)
	if items, _ := deadlines["items"].([]any); len(items) != 1 {
		log.Fatalf("deadlines listed %d documents, want 1", len(items))
	}

	received := c.post("/v1/documents/"+id+"/transitions", map[string]any{"action": "receivePaper"}, http.StatusOK)
	if received["received_paper_at"] == nil {
		log.Fatal("receive did not stamp the paper date")
	}

	c.post("/v1/disbursements/date", map[string]any{
		"document_ids": []string{id},
		"date":         time.Now().AddDate(0, 0, 1).Format("2006-01-02"),
	}, http.StatusOK)
	c.post("/v1/disbursements/confirm", map[string]any{"document_ids": []string{id}}, http.StatusOK)
	c.post("/v1/disbursements/pay", map[string]any{"document_ids": []string{id}}, http.StatusOK)

	final := c.get("/v1/documents/"+id, http.StatusOK)
	disb, _ := final["disbursement"].(map[string]any)
	if disb["stage"] != "paid" {
		log.Fatalf("final stage = %v, want paid", disb["stage"])
	}
	if len(recorder.Entries()) == 0 {
		log.Fatal("no activity recorded")
	}

	fmt.Printf("✅ workflow smoke passed: document=%s stage=paid\n", id)
}

type client struct {
	base  string
	token string
	http  *http.Client
}

func (c *client) do(method, path string, body any, wantStatus int) map[string]any {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			log.Fatalf("marshal %s %s: %v", method, path, err)
		}
	}
	req, err := http.NewRequest(method, c.base+path, bytes.NewReader(payload))
	if err != nil {
		log.Fatalf("request %s %s: %v", method, path, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	resp, err := c.http.Do(req)
	if err != nil {
		log.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != wantStatus {
		log.Fatalf("%s %s: status %d, want %d", method, path, resp.StatusCode, wantStatus)
	}
	var out map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		log.Fatalf("decode %s %s: %v", method, path, err)
	}
	return out
}

func (c *client) post(path string, body any, wantStatus int) map[string]any {
	return c.do(http.MethodPost, path, body, wantStatus)
}

func (c *client) get(path string, wantStatus int) map[string]any {
	return c.do(http.MethodGet, path, nil, wantStatus)
}

func makeUser(ctx context.Context, store rbac.Store, svc *rbac.Service, username string, branch int, role string) string {
	u, err := store.CreateUser(ctx, rbac.User{Username: username, BranchCode: branch})
	if err != nil {
		log.Fatalf("create user %s: %v", username, err)
	}
	r, err := store.GetRoleByName(ctx, role)
	if err != nil {
		log.Fatalf("lookup role %s: %v", role, err)
	}
	if _, err := svc.AssignRole(ctx, u.ID, r.ID); err != nil {
		log.Fatalf("assign role %s: %v", role, err)
	}
	return u.ID
}
