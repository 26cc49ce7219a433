package httpapi

import (
	"errors"
	"net/http"
	"sort"
	"strings"
	"time"

	"qagaz.org/internal/audit"
	"qagaz.org/internal/auth"
	"qagaz.org/internal/rbac"
)

type tokenRequest struct {
	User  string   `json:"user"`
	Roles []string `json:"roles"`
}

type tokenResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

const tokenTTL = 15 * time.Minute

// handleAuthToken issues a session token for a known user id. The role list
// is a display hint only; every authorization check re-resolves from the
// rbac store.
func (a *API) handleAuthToken(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}

	var req tokenRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	user := strings.TrimSpace(req.User)
	if user == "" {
		writeError(w, r, http.StatusBadRequest, "user is required")
		return
	}

	roles := make([]string, 0, len(req.Roles))
	for _, role := range req.Roles {
		role = strings.TrimSpace(role)
		if role == "" {
			continue
		}
		roles = append(roles, role)
	}

	token, err := auth.GenerateToken(user, roles, tokenTTL)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "token generation failed")
		return
	}

	expiresAt := time.Now().UTC().Add(tokenTTL)
	_ = audit.LogEvent(r.Context(), "auth.token.issued", map[string]any{
		"user":       user,
		"roles":      roles,
		"expires_at": expiresAt.Format(time.RFC3339),
	})

	writeJSON(w, http.StatusOK, tokenResponse{
		Token:     token,
		ExpiresAt: expiresAt,
	})
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// handleAuthLogin authenticates a username/password pair and issues a token
// for the matched user.
func (a *API) handleAuthLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}

	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	user, err := a.rbac.Authenticate(r.Context(), req.Username, req.Password)
	if err != nil {
		if errors.Is(err, rbac.ErrInvalidCredentials) {
			_ = audit.LogEvent(r.Context(), "auth.login.rejected", map[string]any{
				"username": strings.TrimSpace(req.Username),
			})
			writeError(w, r, http.StatusUnauthorized, "invalid credentials")
			return
		}
		writeError(w, r, http.StatusInternalServerError, "authentication error")
		return
	}

	acc, err := a.rbac.Resolve(r.Context(), user.ID)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "authentication error")
		return
	}
	roles := make([]string, 0, len(acc.Roles))
	for name := range acc.Roles {
		roles = append(roles, name)
	}
	sort.Strings(roles)

	token, err := auth.GenerateToken(user.ID, roles, tokenTTL)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "token generation failed")
		return
	}

	expiresAt := time.Now().UTC().Add(tokenTTL)
	_ = audit.LogEvent(r.Context(), "auth.login.succeeded", map[string]any{
		"user":       user.ID,
		"username":   user.Username,
		"expires_at": expiresAt.Format(time.RFC3339),
	})

	writeJSON(w, http.StatusOK, tokenResponse{
		Token:     token,
		ExpiresAt: expiresAt,
	})
}
