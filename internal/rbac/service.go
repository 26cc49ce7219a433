package rbac

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"qagaz.org/internal/auth"
)

// Service provides role/permission resolution and administrator-managed
// reference data operations.
type Service struct {
	store Store
}

// NewService constructs a Service.
func NewService(store Store) (*Service, error) {
	if store == nil {
		return nil, errors.New("rbac store is required")
	}
	return &Service{store: store}, nil
}

// EnsureBuiltins ensures the builtin permission catalog, roles and their
// grants exist. Safe to run on every startup.
func (s *Service) EnsureBuiltins(ctx context.Context) error {
	if err := s.store.EnsurePermissions(ctx, BuiltinPermissions); err != nil {
		return err
	}
	for name, grants := range BuiltinRoleGrants {
		role, err := s.store.GetRoleByName(ctx, name)
		if errors.Is(err, ErrNotFound) {
			role, err = s.store.CreateRole(ctx, name, "builtin role")
		}
		if err != nil {
			return fmt.Errorf("ensure role %s: %w", name, err)
		}
		if err := s.store.SetRolePermissions(ctx, role.ID, grants); err != nil {
			return fmt.Errorf("grant role %s: %w", name, err)
		}
	}
	return nil
}

// Resolve loads the user's effective roles and permissions. The result is
// computed fresh from the persisted assignments on every call so that a
// revocation is honored on the very next check. A user with zero roles
// resolves to empty sets.
func (s *Service) Resolve(ctx context.Context, userID string) (Access, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return Access{}, fmt.Errorf("%w: user_id is required", ErrInvalidInput)
	}
	user, err := s.store.GetUser(ctx, userID)
	if err != nil {
		return Access{}, err
	}
	roles, err := s.store.RolesForUser(ctx, userID)
	if err != nil {
		return Access{}, err
	}
	perms, err := s.store.PermissionsForUser(ctx, userID)
	if err != nil {
		return Access{}, err
	}
	acc := Access{
		UserID:      user.ID,
		BranchCode:  user.BranchCode,
		Roles:       make(map[string]struct{}, len(roles)),
		Permissions: make(map[string]struct{}, len(perms)),
	}
	for _, r := range roles {
		acc.Roles[r.Name] = struct{}{}
	}
	for _, p := range perms {
		acc.Permissions[p] = struct{}{}
	}
	return acc, nil
}

// Authenticate verifies a username/password pair against the stored bcrypt
// hash. Disabled users and users without a hash cannot log in. Lookup and
// verification failures collapse into ErrInvalidCredentials so the response
// never reveals which part was wrong.
func (s *Service) Authenticate(ctx context.Context, username, password string) (User, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return User{}, ErrInvalidCredentials
	}
	user, err := s.store.GetUserByUsername(ctx, username)
	if errors.Is(err, ErrNotFound) {
		return User{}, ErrInvalidCredentials
	}
	if err != nil {
		return User{}, err
	}
	if user.Status != UserStatusActive || user.PasswordHash == "" {
		return User{}, ErrInvalidCredentials
	}
	if err := auth.VerifyPassword(user.PasswordHash, password); err != nil {
		return User{}, ErrInvalidCredentials
	}
	return user, nil
}

// CreateRole validates input and creates a role.
func (s *Service) CreateRole(ctx context.Context, name, description string) (Role, error) {
	name = strings.TrimSpace(strings.ToLower(name))
	if name == "" {
		return Role{}, fmt.Errorf("%w: role name is required", ErrInvalidInput)
	}
	return s.store.CreateRole(ctx, name, strings.TrimSpace(description))
}

// ListRoles lists all roles.
func (s *Service) ListRoles(ctx context.Context) ([]Role, error) {
	return s.store.ListRoles(ctx)
}

// DeleteRole removes a role and, through the store, its grants and assignments.
func (s *Service) DeleteRole(ctx context.Context, roleID string) error {
	roleID = strings.TrimSpace(roleID)
	if roleID == "" {
		return fmt.Errorf("%w: role_id is required", ErrInvalidInput)
	}
	return s.store.DeleteRole(ctx, roleID)
}

// ListPermissions lists the permission catalog.
func (s *Service) ListPermissions(ctx context.Context) ([]Permission, error) {
	return s.store.ListPermissions(ctx)
}

// SetRolePermissions replaces a role's grants with the given permission keys.
func (s *Service) SetRolePermissions(ctx context.Context, roleID string, keys []string) error {
	roleID = strings.TrimSpace(roleID)
	if roleID == "" {
		return fmt.Errorf("%w: role_id is required", ErrInvalidInput)
	}
	return s.store.SetRolePermissions(ctx, roleID, dedupe(keys))
}

// AssignRole assigns a role to a user.
func (s *Service) AssignRole(ctx context.Context, userID, roleID string) (Assignment, error) {
	userID = strings.TrimSpace(userID)
	roleID = strings.TrimSpace(roleID)
	if userID == "" || roleID == "" {
		return Assignment{}, fmt.Errorf("%w: user_id and role_id are required", ErrInvalidInput)
	}
	return s.store.AssignRole(ctx, userID, roleID)
}

// RevokeRole removes a role assignment from a user.
func (s *Service) RevokeRole(ctx context.Context, userID, roleID string) error {
	userID = strings.TrimSpace(userID)
	roleID = strings.TrimSpace(roleID)
	if userID == "" || roleID == "" {
		return fmt.Errorf("%w: user_id and role_id are required", ErrInvalidInput)
	}
	return s.store.RemoveAssignment(ctx, userID, roleID)
}

// CreateBranch validates input and creates a branch.
func (s *Service) CreateBranch(ctx context.Context, b Branch) (Branch, error) {
	b.Name = strings.TrimSpace(b.Name)
	b.Region = strings.TrimSpace(b.Region)
	if b.Code <= 0 {
		return Branch{}, fmt.Errorf("%w: branch code must be positive", ErrInvalidInput)
	}
	if b.Name == "" {
		return Branch{}, fmt.Errorf("%w: branch name is required", ErrInvalidInput)
	}
	return s.store.CreateBranch(ctx, b)
}

// GetBranch loads a branch by code.
func (s *Service) GetBranch(ctx context.Context, code int) (Branch, error) {
	if code <= 0 {
		return Branch{}, fmt.Errorf("%w: branch code must be positive", ErrInvalidInput)
	}
	return s.store.GetBranch(ctx, code)
}

// ListBranches lists all branches.
func (s *Service) ListBranches(ctx context.Context) ([]Branch, error) {
	return s.store.ListBranches(ctx)
}

// GetUser loads a user by id.
func (s *Service) GetUser(ctx context.Context, userID string) (User, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return User{}, fmt.Errorf("%w: user_id is required", ErrInvalidInput)
	}
	return s.store.GetUser(ctx, userID)
}

func dedupe(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	set := make(map[string]struct{}, len(values))
	result := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, ok := set[v]; ok {
			continue
		}
		set[v] = struct{}{}
		result = append(result, v)
	}
	return result
}
