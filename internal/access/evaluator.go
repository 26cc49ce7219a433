package access

import "qagaz.org/internal/rbac"

// CanAccessBranch decides whether the access set may see documents of the
// given branch. Precedence, first match wins:
//
//  1. read-all permission, or admin/district_manager/branch_manager role
//  2. uploader role (uploaders route documents across all branches)
//  3. home branch equals the requested branch
//  4. deny
func CanAccessBranch(acc rbac.Access, branchCode int) bool {
	if acc.HasPermission(rbac.PermReadAllBranches) ||
		acc.HasAnyRole(rbac.RoleAdmin, rbac.RoleDistrictManager, rbac.RoleBranchManager) {
		return true
	}
	if acc.HasRole(rbac.RoleUploader) {
		return true
	}
	return acc.BranchCode == branchCode
}

// CanSeeDrafts reports whether the access set belongs to the uploader tier.
// Drafts are hidden from everyone else, even when branch access would
// otherwise be granted.
func CanSeeDrafts(acc rbac.Access) bool {
	return acc.HasAnyRole(rbac.RoleUploader, rbac.RoleAdmin, rbac.RoleDistrictManager)
}

// Visible composes the branch-scope and draft-hiding predicates for list
// filtering. Both predicates stay independently usable.
func Visible(acc rbac.Access, res Resource) bool {
	if !CanAccessBranch(acc, res.BranchCode) {
		return false
	}
	if res.Draft && !CanSeeDrafts(acc) {
		return false
	}
	return true
}
