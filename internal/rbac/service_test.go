package rbac

import (
	"context"
	"errors"
	"testing"

	"qagaz.org/internal/auth"
)

func newServiceWithBuiltins(t *testing.T) (*Service, *InMemory) {
	t.Helper()
	store := NewInMemory()
	svc, err := NewService(store)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	if err := svc.EnsureBuiltins(context.Background()); err != nil {
		t.Fatalf("EnsureBuiltins: %v", err)
	}
	return svc, store
}

func TestResolveUnionsRolePermissions(t *testing.T) {
	svc, store := newServiceWithBuiltins(t)
	ctx := context.Background()

	user, err := store.CreateUser(ctx, User{Username: "aliya", BranchCode: 1061})
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	branchUser, _ := store.GetRoleByName(ctx, RoleBranchUser)
	uploader, _ := store.GetRoleByName(ctx, RoleUploader)
	if _, err := svc.AssignRole(ctx, user.ID, branchUser.ID); err != nil {
		t.Fatalf("AssignRole: %v", err)
	}
	if _, err := svc.AssignRole(ctx, user.ID, uploader.ID); err != nil {
		t.Fatalf("AssignRole: %v", err)
	}

	acc, err := svc.Resolve(ctx, user.ID)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if !acc.HasRole(RoleBranchUser) || !acc.HasRole(RoleUploader) {
		t.Fatalf("roles not resolved: %v", acc.Roles)
	}
	// union of branch_user and uploader grants
	for _, key := range []string{PermReadBranchDocuments, PermReadAllBranches, PermCreateDocuments, PermCreateComments, PermUploadFiles} {
		if !acc.HasPermission(key) {
			t.Fatalf("missing permission %s: %v", key, acc.Permissions)
		}
	}
	if acc.HasPermission(PermAdminManage) {
		t.Fatal("admin.manage should not be granted")
	}
	if acc.BranchCode != 1061 {
		t.Fatalf("unexpected branch code %d", acc.BranchCode)
	}
}

func TestResolveZeroRolesYieldsEmptySets(t *testing.T) {
	svc, store := newServiceWithBuiltins(t)
	ctx := context.Background()

	user, err := store.CreateUser(ctx, User{Username: "nobody", BranchCode: 1062})
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	acc, err := svc.Resolve(ctx, user.ID)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if len(acc.Roles) != 0 || len(acc.Permissions) != 0 {
		t.Fatalf("expected empty sets, got roles=%v perms=%v", acc.Roles, acc.Permissions)
	}
}

func TestResolveReflectsRevocationImmediately(t *testing.T) {
	svc, store := newServiceWithBuiltins(t)
	ctx := context.Background()

	user, _ := store.CreateUser(ctx, User{Username: "temp", BranchCode: 1061})
	admin, _ := store.GetRoleByName(ctx, RoleAdmin)
	if _, err := svc.AssignRole(ctx, user.ID, admin.ID); err != nil {
		t.Fatalf("AssignRole: %v", err)
	}

	acc, _ := svc.Resolve(ctx, user.ID)
	if !acc.HasRole(RoleAdmin) {
		t.Fatal("expected admin role before revocation")
	}

	if err := svc.RevokeRole(ctx, user.ID, admin.ID); err != nil {
		t.Fatalf("RevokeRole: %v", err)
	}
	acc, err := svc.Resolve(ctx, user.ID)
	if err != nil {
		t.Fatalf("Resolve after revoke: %v", err)
	}
	if acc.HasRole(RoleAdmin) || acc.HasPermission(PermAdminManage) {
		t.Fatal("revocation not reflected on the next resolve")
	}
}

func TestResolveUnknownUser(t *testing.T) {
	svc, _ := newServiceWithBuiltins(t)
	if _, err := svc.Resolve(context.Background(), "missing"); err == nil {
		t.Fatal("expected error for unknown user")
	}
}

func TestAuthenticate(t *testing.T) {
	svc, store := newServiceWithBuiltins(t)
	ctx := context.Background()

	hash, err := auth.HashPassword("s3cret")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	user, err := store.CreateUser(ctx, User{Username: "aliya", BranchCode: 1061, PasswordHash: hash})
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}

	got, err := svc.Authenticate(ctx, "aliya", "s3cret")
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if got.ID != user.ID {
		t.Fatalf("authenticated user = %s, want %s", got.ID, user.ID)
	}

	cases := []struct {
		name     string
		username string
		password string
	}{
		{"wrong password", "aliya", "guess"},
		{"unknown user", "nobody", "s3cret"},
		{"empty password", "aliya", ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := svc.Authenticate(ctx, tc.username, tc.password); !errors.Is(err, ErrInvalidCredentials) {
				t.Fatalf("want ErrInvalidCredentials, got %v", err)
			}
		})
	}

	// a user without a stored hash cannot log in at all
	if _, err := store.CreateUser(ctx, User{Username: "nohash", BranchCode: 1061}); err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	if _, err := svc.Authenticate(ctx, "nohash", "anything"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("want ErrInvalidCredentials for hashless user, got %v", err)
	}

	// disabled users are rejected even with the right password
	if _, err := store.CreateUser(ctx, User{Username: "gone", BranchCode: 1061, PasswordHash: hash, Status: UserStatusDisabled}); err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	if _, err := svc.Authenticate(ctx, "gone", "s3cret"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("want ErrInvalidCredentials for disabled user, got %v", err)
	}
}
