package access

import (
	"testing"

	"qagaz.org/internal/rbac"
)

func accessWith(branch int, roles []string, perms []string) rbac.Access {
	acc := rbac.Access{
		UserID:      "u1",
		BranchCode:  branch,
		Roles:       map[string]struct{}{},
		Permissions: map[string]struct{}{},
	}
	for _, r := range roles {
		acc.Roles[r] = struct{}{}
	}
	for _, p := range perms {
		acc.Permissions[p] = struct{}{}
	}
	return acc
}

func TestCanAccessBranchDecisionTable(t *testing.T) {
	cases := []struct {
		name   string
		acc    rbac.Access
		branch int
		want   bool
	}{
		{"branch_user own branch", accessWith(1061, []string{rbac.RoleBranchUser}, nil), 1061, true},
		{"branch_user foreign branch", accessWith(1061, []string{rbac.RoleBranchUser}, nil), 1062, false},
		{"admin any branch", accessWith(1061, []string{rbac.RoleAdmin}, nil), 1062, true},
		{"district_manager any branch", accessWith(0, []string{rbac.RoleDistrictManager}, nil), 1061, true},
		{"branch_manager any branch", accessWith(1061, []string{rbac.RoleBranchManager}, nil), 1062, true},
		{"uploader any branch", accessWith(1061, []string{rbac.RoleUploader}, nil), 1062, true},
		{"read-all permission any branch", accessWith(1061, nil, []string{rbac.PermReadAllBranches}), 1062, true},
		{"no roles home branch", accessWith(1061, nil, nil), 1061, true},
		{"no roles foreign branch", accessWith(1061, nil, nil), 1062, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := CanAccessBranch(tc.acc, tc.branch); got != tc.want {
				t.Fatalf("CanAccessBranch = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestDraftVisibility(t *testing.T) {
	draft := Resource{DocumentID: "d1", BranchCode: 1061, Draft: true}

	branchUser := accessWith(1061, []string{rbac.RoleBranchUser}, nil)
	if Visible(branchUser, draft) {
		t.Fatal("draft must be hidden from branch_user even on the home branch")
	}

	uploader := accessWith(1061, []string{rbac.RoleUploader}, nil)
	if !Visible(uploader, draft) {
		t.Fatal("draft must be visible to uploader")
	}

	sent := Resource{DocumentID: "d2", BranchCode: 1061, Draft: false}
	if !Visible(branchUser, sent) {
		t.Fatal("submitted document must be visible to branch_user of the same branch")
	}
}
