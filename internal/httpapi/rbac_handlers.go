package httpapi

import (
	"errors"
	"net/http"
	"sort"
	"strings"

	"qagaz.org/internal/rbac"
)

// requireAdmin resolves the caller and checks the admin.manage grant.
// Returns false after writing the error response.
func (a *API) requireAdmin(w http.ResponseWriter, r *http.Request) bool {
	actor := actorID(r)
	if actor == "" {
		writeError(w, r, http.StatusUnauthorized, "authentication required")
		return false
	}
	acc, err := a.rbac.Resolve(r.Context(), actor)
	if err != nil {
		if errors.Is(err, rbac.ErrNotFound) {
			writeError(w, r, http.StatusUnauthorized, "authentication required")
			return false
		}
		handleDomainError(w, r, err)
		return false
	}
	if !acc.HasPermission(rbac.PermAdminManage) {
		writeError(w, r, http.StatusForbidden, "admin.manage permission required")
		return false
	}
	return true
}

type createRoleRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

type rolePermissionsRequest struct {
	Permissions []string `json:"permissions"`
}

func (a *API) handleRolesCollection(w http.ResponseWriter, r *http.Request) {
	if !a.requireAdmin(w, r) {
		return
	}
	switch r.Method {
	case http.MethodGet:
		roles, err := a.rbac.ListRoles(r.Context())
		if err != nil {
			handleDomainError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": roles})
	case http.MethodPost:
		var req createRoleRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		role, err := a.rbac.CreateRole(r.Context(), req.Name, req.Description)
		if err != nil {
			handleDomainError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, role)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

// handleRoleResource routes /v1/roles/{id} and /v1/roles/{id}/permissions.
func (a *API) handleRoleResource(w http.ResponseWriter, r *http.Request) {
	if !a.requireAdmin(w, r) {
		return
	}
	path := strings.TrimPrefix(r.URL.Path, "/v1/roles/")
	parts := strings.Split(strings.TrimSuffix(path, "/"), "/")
	if len(parts) == 0 || parts[0] == "" {
		writeError(w, r, http.StatusNotFound, "role not found")
		return
	}
	roleID := parts[0]

	switch {
	case len(parts) == 1:
		if r.Method != http.MethodDelete {
			methodNotAllowed(w, r, http.MethodDelete)
			return
		}
		if err := a.rbac.DeleteRole(r.Context(), roleID); err != nil {
			handleDomainError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	case len(parts) == 2 && parts[1] == "permissions":
		if r.Method != http.MethodPut {
			methodNotAllowed(w, r, http.MethodPut)
			return
		}
		var req rolePermissionsRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		if err := a.rbac.SetRolePermissions(r.Context(), roleID, req.Permissions); err != nil {
			handleDomainError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"status": "updated"})
	default:
		writeError(w, r, http.StatusNotFound, "resource not found")
	}
}

func (a *API) handlePermissions(w http.ResponseWriter, r *http.Request) {
	if !a.requireAdmin(w, r) {
		return
	}
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	perms, err := a.rbac.ListPermissions(r.Context())
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": perms})
}

type assignRoleRequest struct {
	RoleID string `json:"role_id"`
}

// handleUserResource routes /v1/users/{id}/roles and
// /v1/users/{id}/roles/{roleID}.
func (a *API) handleUserResource(w http.ResponseWriter, r *http.Request) {
	if !a.requireAdmin(w, r) {
		return
	}
	path := strings.TrimPrefix(r.URL.Path, "/v1/users/")
	parts := strings.Split(strings.TrimSuffix(path, "/"), "/")
	if len(parts) == 0 || parts[0] == "" {
		writeError(w, r, http.StatusNotFound, "user not found")
		return
	}
	userID := parts[0]

	switch {
	case len(parts) == 1:
		if r.Method != http.MethodGet {
			methodNotAllowed(w, r, http.MethodGet)
			return
		}
		user, err := a.rbac.GetUser(r.Context(), userID)
		if err != nil {
			handleDomainError(w, r, err)
			return
		}
		acc, err := a.rbac.Resolve(r.Context(), userID)
		if err != nil {
			handleDomainError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"user":        user,
			"roles":       sortedKeys(acc.Roles),
			"permissions": sortedKeys(acc.Permissions),
		})
	case len(parts) == 2 && parts[1] == "roles":
		if r.Method != http.MethodPost {
			methodNotAllowed(w, r, http.MethodPost)
			return
		}
		var req assignRoleRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		assignment, err := a.rbac.AssignRole(r.Context(), userID, req.RoleID)
		if err != nil {
			handleDomainError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, assignment)
	case len(parts) == 3 && parts[1] == "roles":
		if r.Method != http.MethodDelete {
			methodNotAllowed(w, r, http.MethodDelete)
			return
		}
		if err := a.rbac.RevokeRole(r.Context(), userID, parts[2]); err != nil {
			handleDomainError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		writeError(w, r, http.StatusNotFound, "resource not found")
	}
}

type createBranchRequest struct {
	Code   int    `json:"code"`
	Name   string `json:"name"`
	Region string `json:"region"`
}

func (a *API) handleBranchesCollection(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		// branch reference data is readable by any authenticated user
		branches, err := a.rbac.ListBranches(r.Context())
		if err != nil {
			handleDomainError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": branches})
	case http.MethodPost:
		if !a.requireAdmin(w, r) {
			return
		}
		var req createBranchRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		branch, err := a.rbac.CreateBranch(r.Context(), rbac.Branch{
			Code:   req.Code,
			Name:   req.Name,
			Region: req.Region,
		})
		if err != nil {
			handleDomainError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, branch)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func sortedKeys(set map[string]struct{}) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
