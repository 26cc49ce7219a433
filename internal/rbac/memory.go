package rbac

import (
	"context"
	"fmt"
	"sync"
	"time"

	"qagaz.org/internal/ids"
)

// InMemory implements Store with in-process concurrency safety. Used by tests
// and local development; production uses the Postgres store.
type InMemory struct {
	mu          sync.RWMutex
	users       map[string]User
	roles       map[string]Role
	perms       map[string]Permission // key -> permission
	rolePerms   map[string]map[string]struct{}
	assignments map[string]map[string]time.Time // userID -> roleID -> assigned at
	branches    map[int]Branch
}

var _ Store = (*InMemory)(nil)

// NewInMemory creates an empty store.
func NewInMemory() *InMemory {
	return &InMemory{
		users:       make(map[string]User),
		roles:       make(map[string]Role),
		perms:       make(map[string]Permission),
		rolePerms:   make(map[string]map[string]struct{}),
		assignments: make(map[string]map[string]time.Time),
		branches:    make(map[int]Branch),
	}
}

func (s *InMemory) CreateUser(ctx context.Context, u User) (User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.users {
		if existing.Username == u.Username {
			return User{}, ErrConflict
		}
	}
	if u.ID == "" {
		u.ID = ids.New()
	}
	if u.Status == "" {
		u.Status = UserStatusActive
	}
	now := time.Now().UTC()
	u.CreatedAt = now
	u.UpdatedAt = now
	s.users[u.ID] = u
	return u, nil
}

func (s *InMemory) GetUser(ctx context.Context, userID string) (User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[userID]
	if !ok {
		return User{}, ErrNotFound
	}
	return u, nil
}

func (s *InMemory) GetUserByUsername(ctx context.Context, username string) (User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, u := range s.users {
		if u.Username == username {
			return u, nil
		}
	}
	return User{}, ErrNotFound
}

func (s *InMemory) ListUsers(ctx context.Context) ([]User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]User, 0, len(s.users))
	for _, u := range s.users {
		out = append(out, u)
	}
	return out, nil
}

func (s *InMemory) CreateRole(ctx context.Context, name, description string) (Role, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.roles {
		if r.Name == name {
			return Role{}, ErrConflict
		}
	}
	now := time.Now().UTC()
	role := Role{ID: ids.New(), Name: name, Description: description, CreatedAt: now, UpdatedAt: now}
	s.roles[role.ID] = role
	return role, nil
}

func (s *InMemory) GetRole(ctx context.Context, roleID string) (Role, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.roles[roleID]
	if !ok {
		return Role{}, ErrNotFound
	}
	return r, nil
}

func (s *InMemory) GetRoleByName(ctx context.Context, name string) (Role, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, r := range s.roles {
		if r.Name == name {
			return r, nil
		}
	}
	return Role{}, ErrNotFound
}

func (s *InMemory) ListRoles(ctx context.Context) ([]Role, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Role, 0, len(s.roles))
	for _, r := range s.roles {
		out = append(out, r)
	}
	return out, nil
}

func (s *InMemory) DeleteRole(ctx context.Context, roleID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.roles[roleID]; !ok {
		return ErrNotFound
	}
	delete(s.roles, roleID)
	delete(s.rolePerms, roleID)
	for userID := range s.assignments {
		delete(s.assignments[userID], roleID)
	}
	return nil
}

func (s *InMemory) EnsurePermissions(ctx context.Context, perms []Permission) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range perms {
		if _, ok := s.perms[p.Key]; ok {
			continue
		}
		if p.ID == "" {
			p.ID = ids.New()
		}
		p.CreatedAt = time.Now().UTC()
		s.perms[p.Key] = p
	}
	return nil
}

func (s *InMemory) ListPermissions(ctx context.Context) ([]Permission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Permission, 0, len(s.perms))
	for _, p := range s.perms {
		out = append(out, p)
	}
	return out, nil
}

func (s *InMemory) SetRolePermissions(ctx context.Context, roleID string, keys []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.roles[roleID]; !ok {
		return ErrNotFound
	}
	set := make(map[string]struct{}, len(keys))
	for _, key := range keys {
		if _, ok := s.perms[key]; !ok {
			return fmt.Errorf("%w: permission %s", ErrNotFound, key)
		}
		set[key] = struct{}{}
	}
	s.rolePerms[roleID] = set
	return nil
}

func (s *InMemory) PermissionsForRole(ctx context.Context, roleID string) ([]Permission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.roles[roleID]; !ok {
		return nil, ErrNotFound
	}
	var out []Permission
	for key := range s.rolePerms[roleID] {
		out = append(out, s.perms[key])
	}
	return out, nil
}

func (s *InMemory) AssignRole(ctx context.Context, userID, roleID string) (Assignment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[userID]; !ok {
		return Assignment{}, ErrNotFound
	}
	if _, ok := s.roles[roleID]; !ok {
		return Assignment{}, ErrNotFound
	}
	if s.assignments[userID] == nil {
		s.assignments[userID] = make(map[string]time.Time)
	}
	if _, ok := s.assignments[userID][roleID]; ok {
		return Assignment{}, ErrConflict
	}
	now := time.Now().UTC()
	s.assignments[userID][roleID] = now
	return Assignment{UserID: userID, RoleID: roleID, CreatedAt: now}, nil
}

func (s *InMemory) RemoveAssignment(ctx context.Context, userID, roleID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.assignments[userID][roleID]; !ok {
		return ErrNotFound
	}
	delete(s.assignments[userID], roleID)
	return nil
}

func (s *InMemory) Assignments(ctx context.Context, userID string) ([]Assignment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Assignment
	for roleID, at := range s.assignments[userID] {
		out = append(out, Assignment{UserID: userID, RoleID: roleID, CreatedAt: at})
	}
	return out, nil
}

func (s *InMemory) RolesForUser(ctx context.Context, userID string) ([]Role, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Role
	for roleID := range s.assignments[userID] {
		if r, ok := s.roles[roleID]; ok {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *InMemory) PermissionsForUser(ctx context.Context, userID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	set := make(map[string]struct{})
	for roleID := range s.assignments[userID] {
		for key := range s.rolePerms[roleID] {
			set[key] = struct{}{}
		}
	}
	out := make([]string, 0, len(set))
	for key := range set {
		out = append(out, key)
	}
	return out, nil
}

func (s *InMemory) CreateBranch(ctx context.Context, b Branch) (Branch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.branches[b.Code]; ok {
		return Branch{}, ErrConflict
	}
	now := time.Now().UTC()
	b.CreatedAt = now
	b.UpdatedAt = now
	s.branches[b.Code] = b
	return b, nil
}

func (s *InMemory) GetBranch(ctx context.Context, code int) (Branch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.branches[code]
	if !ok {
		return Branch{}, ErrNotFound
	}
	return b, nil
}

func (s *InMemory) ListBranches(ctx context.Context) ([]Branch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Branch, 0, len(s.branches))
	for _, b := range s.branches {
		out = append(out, b)
	}
	return out, nil
}
