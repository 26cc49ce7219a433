package rbac

import "time"

// User is an identity record owned by the identity subsystem. The core reads
// it for authorization and mutates only role assignments.
type User struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	FullName     string    `json:"full_name,omitempty"`
	BranchCode   int       `json:"branch_code"`
	Status       string    `json:"status"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

const (
	UserStatusActive   = "active"
	UserStatusDisabled = "disabled"
)

// Role is a globally scoped bundle of permissions. Branch scoping is derived
// from the user's home branch, never from the role itself.
type Role struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Permission is an atomic capability key.
type Permission struct {
	ID          string    `json:"id"`
	Key         string    `json:"key"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Branch is an organizational unit: a field office or a district department,
// distinguished only by code range convention.
type Branch struct {
	Code      int       `json:"code"`
	Name      string    `json:"name"`
	Region    string    `json:"region,omitempty"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Assignment links a user to a role.
type Assignment struct {
	UserID    string    `json:"user_id"`
	RoleID    string    `json:"role_id"`
	CreatedAt time.Time `json:"created_at"`
}

// Builtin role names.
const (
	RoleAdmin           = "admin"
	RoleDistrictManager = "district_manager"
	RoleBranchManager   = "branch_manager"
	RoleBranchUser      = "branch_user"
	RoleUploader        = "uploader"
	RoleUser            = "user"
)

// Builtin permission keys.
const (
	PermReadBranchDocuments = "documents.read.branch"
	PermReadAllBranches     = "documents.read.all"
	PermCreateDocuments     = "documents.create"
	PermCreateComments      = "documents.comment.create"
	PermUploadFiles         = "documents.file.upload"
	PermAdminManage         = "admin.manage"
)

// BuiltinPermissions is the catalog ensured at startup.
var BuiltinPermissions = []Permission{
	{Key: PermReadBranchDocuments, Description: "Read documents of the user's home branch"},
	{Key: PermReadAllBranches, Description: "Read documents of every branch"},
	{Key: PermCreateDocuments, Description: "Create draft documents"},
	{Key: PermCreateComments, Description: "Comment on documents"},
	{Key: PermUploadFiles, Description: "Attach files to documents"},
	{Key: PermAdminManage, Description: "Manage roles, permissions and branches"},
}

// BuiltinRoleGrants maps builtin roles to their granted permission keys.
// A plain "user" is a per-branch viewer and is never upload-capable.
var BuiltinRoleGrants = map[string][]string{
	RoleAdmin:           {PermReadAllBranches, PermCreateDocuments, PermCreateComments, PermUploadFiles, PermAdminManage},
	RoleDistrictManager: {PermReadAllBranches, PermCreateDocuments, PermCreateComments, PermUploadFiles},
	RoleBranchManager:   {PermReadAllBranches, PermCreateComments},
	RoleBranchUser:      {PermReadBranchDocuments, PermCreateComments},
	RoleUploader:        {PermReadAllBranches, PermCreateDocuments, PermCreateComments, PermUploadFiles},
	RoleUser:            {PermReadBranchDocuments},
}

// Access is the result of resolving a user: effective role names and the
// transitive union of their permission keys.
type Access struct {
	UserID      string
	BranchCode  int
	Roles       map[string]struct{}
	Permissions map[string]struct{}
}

// HasRole reports whether the access set contains the role.
func (a Access) HasRole(name string) bool {
	_, ok := a.Roles[name]
	return ok
}

// HasAnyRole reports whether the access set contains at least one of the roles.
func (a Access) HasAnyRole(names ...string) bool {
	for _, n := range names {
		if a.HasRole(n) {
			return true
		}
	}
	return false
}

// HasPermission reports whether the access set contains the permission key.
func (a Access) HasPermission(key string) bool {
	_, ok := a.Permissions[key]
	return ok
}
