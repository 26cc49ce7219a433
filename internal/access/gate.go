package access

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"qagaz.org/internal/rbac"
)

// Resolver loads a user's effective roles and permissions. Satisfied by
// *rbac.Service; implementations must not cache across calls.
type Resolver interface {
	Resolve(ctx context.Context, userID string) (rbac.Access, error)
}

// Gate composes the role-permission resolver and the branch access evaluator
// into a single "may user X perform action Y on document Z" decision. Every
// reading and mutating operation of the document service passes through it.
type Gate struct {
	resolver Resolver
}

// NewGate constructs a Gate.
func NewGate(resolver Resolver) (*Gate, error) {
	if resolver == nil {
		return nil, errors.New("access: resolver is required")
	}
	return &Gate{resolver: resolver}, nil
}

// ResolveUser resolves the caller's access set without authorizing a
// specific resource. Used for listing, where visibility is filtered per
// document afterwards.
func (g *Gate) ResolveUser(ctx context.Context, userID string) (rbac.Access, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return rbac.Access{}, ErrAuthenticationRequired
	}
	acc, err := g.resolver.Resolve(ctx, userID)
	if err != nil {
		if errors.Is(err, rbac.ErrNotFound) {
			return rbac.Access{}, ErrAuthenticationRequired
		}
		return rbac.Access{}, err
	}
	return acc, nil
}

// Authorize resolves the user fresh, then checks branch scope, draft
// visibility and the static action requirement table, in that order. The
// returned error is ErrAuthenticationRequired when no user can be resolved,
// or an infrastructure error from the store; denials are reported inside the
// Decision, never as the error value.
func (g *Gate) Authorize(ctx context.Context, userID string, res Resource, action Action) (Decision, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return Decision{}, ErrAuthenticationRequired
	}
	acc, err := g.resolver.Resolve(ctx, userID)
	if err != nil {
		if errors.Is(err, rbac.ErrNotFound) {
			return Decision{}, ErrAuthenticationRequired
		}
		return Decision{}, err
	}

	req, ok := actionRequirements[action]
	if !ok {
		return deny(acc, ReasonPermission, fmt.Sprintf("unknown action %q", action)), nil
	}

	// Branch scope does not apply to draft creation: the draft's branch is
	// chosen by the uploader as part of routing.
	if action != ActionCreateDraft {
		if !CanAccessBranch(acc, res.BranchCode) {
			return deny(acc, ReasonBranch, fmt.Sprintf("branch %d is outside the user's scope", res.BranchCode)), nil
		}
		if res.Draft && action != ActionDeleteDraft && !CanSeeDrafts(acc) {
			return deny(acc, ReasonRole, "draft documents are visible to the uploader tier only"), nil
		}
	}

	if req.ownerOK && res.OwnerID != "" && res.OwnerID == acc.UserID {
		return allow(acc), nil
	}
	if len(req.anyRole) > 0 {
		if !acc.HasAnyRole(req.anyRole...) {
			return deny(acc, ReasonRole, fmt.Sprintf("action %s requires one of roles %s", action, strings.Join(req.anyRole, ", "))), nil
		}
	}
	if req.perm != "" && !acc.HasPermission(req.perm) {
		return deny(acc, ReasonPermission, fmt.Sprintf("action %s requires permission %s", action, req.perm)), nil
	}
	return allow(acc), nil
}
