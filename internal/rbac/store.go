package rbac

import "context"

// Store describes persistence operations required by the rbac subsystem.
// Implementations must answer role and permission lookups from the persisted
// join tables on every call; stale cached answers break revocation semantics.
type Store interface {
	CreateUser(ctx context.Context, u User) (User, error)
	GetUser(ctx context.Context, userID string) (User, error)
	GetUserByUsername(ctx context.Context, username string) (User, error)
	ListUsers(ctx context.Context) ([]User, error)

	CreateRole(ctx context.Context, name, description string) (Role, error)
	GetRole(ctx context.Context, roleID string) (Role, error)
	GetRoleByName(ctx context.Context, name string) (Role, error)
	ListRoles(ctx context.Context) ([]Role, error)
	DeleteRole(ctx context.Context, roleID string) error

	EnsurePermissions(ctx context.Context, perms []Permission) error
	ListPermissions(ctx context.Context) ([]Permission, error)
	SetRolePermissions(ctx context.Context, roleID string, keys []string) error
	PermissionsForRole(ctx context.Context, roleID string) ([]Permission, error)

	AssignRole(ctx context.Context, userID, roleID string) (Assignment, error)
	RemoveAssignment(ctx context.Context, userID, roleID string) error
	Assignments(ctx context.Context, userID string) ([]Assignment, error)
	RolesForUser(ctx context.Context, userID string) ([]Role, error)
	PermissionsForUser(ctx context.Context, userID string) ([]string, error)

	CreateBranch(ctx context.Context, b Branch) (Branch, error)
	GetBranch(ctx context.Context, code int) (Branch, error)
	ListBranches(ctx context.Context) ([]Branch, error)
}
