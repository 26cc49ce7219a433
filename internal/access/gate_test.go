package access

import (
	"context"
	"errors"
	"testing"

	"qagaz.org/internal/rbac"
)

type staticResolver struct {
	access map[string]rbac.Access
}

func (r *staticResolver) Resolve(_ context.Context, userID string) (rbac.Access, error) {
	acc, ok := r.access[userID]
	if !ok {
		return rbac.Access{}, rbac.ErrNotFound
	}
	return acc, nil
}

func newGateWith(t *testing.T, users map[string]rbac.Access) *Gate {
	t.Helper()
	gate, err := NewGate(&staticResolver{access: users})
	if err != nil {
		t.Fatalf("NewGate: %v", err)
	}
	return gate
}

func TestAuthorizeDenyReasons(t *testing.T) {
	gate := newGateWith(t, map[string]rbac.Access{
		"viewer": accessWith(1061, []string{rbac.RoleBranchUser}, []string{rbac.PermReadBranchDocuments}),
	})
	ctx := context.Background()

	// foreign branch: branch-denied
	dec, err := gate.Authorize(ctx, "viewer", Resource{BranchCode: 1062}, ActionView)
	if err != nil {
		t.Fatalf("Authorize: %v", err)
	}
	if dec.Allowed || dec.Reason != ReasonBranch {
		t.Fatalf("expected branch denial, got %+v", dec)
	}

	// workflow action without uploader-class role: role-denied
	dec, err = gate.Authorize(ctx, "viewer", Resource{BranchCode: 1061}, ActionSubmit)
	if err != nil {
		t.Fatalf("Authorize: %v", err)
	}
	if dec.Allowed || dec.Reason != ReasonRole {
		t.Fatalf("expected role denial, got %+v", dec)
	}

	// comment without the comment permission: permission-denied
	noComment := accessWith(1061, []string{rbac.RoleUser}, []string{rbac.PermReadBranchDocuments})
	gate2 := newGateWith(t, map[string]rbac.Access{"plain": noComment})
	dec, err = gate2.Authorize(ctx, "plain", Resource{BranchCode: 1061}, ActionCreateComment)
	if err != nil {
		t.Fatalf("Authorize: %v", err)
	}
	if dec.Allowed || dec.Reason != ReasonPermission {
		t.Fatalf("expected permission denial, got %+v", dec)
	}

	var denied *DeniedError
	if !errors.As(dec.Err(), &denied) {
		t.Fatalf("Err() should expose *DeniedError, got %v", dec.Err())
	}
}

func TestAuthorizeUnknownUser(t *testing.T) {
	gate := newGateWith(t, nil)
	if _, err := gate.Authorize(context.Background(), "ghost", Resource{BranchCode: 1}, ActionView); !errors.Is(err, ErrAuthenticationRequired) {
		t.Fatalf("expected ErrAuthenticationRequired, got %v", err)
	}
	if _, err := gate.Authorize(context.Background(), "  ", Resource{BranchCode: 1}, ActionView); !errors.Is(err, ErrAuthenticationRequired) {
		t.Fatalf("expected ErrAuthenticationRequired for blank user, got %v", err)
	}
}

func TestAuthorizeDeleteDraftOwnerOrAdmin(t *testing.T) {
	owner := accessWith(1061, []string{rbac.RoleUploader}, []string{rbac.PermCreateDocuments})
	owner.UserID = "owner-1"
	admin := accessWith(0, []string{rbac.RoleAdmin}, nil)
	admin.UserID = "admin-1"
	other := accessWith(1061, []string{rbac.RoleUploader}, nil)
	other.UserID = "other-1"

	gate := newGateWith(t, map[string]rbac.Access{
		"owner-1": owner,
		"admin-1": admin,
		"other-1": other,
	})
	draft := Resource{DocumentID: "d1", BranchCode: 1061, Draft: true, OwnerID: "owner-1"}
	ctx := context.Background()

	dec, _ := gate.Authorize(ctx, "owner-1", draft, ActionDeleteDraft)
	if !dec.Allowed {
		t.Fatalf("owner should delete own draft: %+v", dec)
	}
	dec, _ = gate.Authorize(ctx, "admin-1", draft, ActionDeleteDraft)
	if !dec.Allowed {
		t.Fatalf("admin should delete any draft: %+v", dec)
	}
	dec, _ = gate.Authorize(ctx, "other-1", draft, ActionDeleteDraft)
	if dec.Allowed {
		t.Fatal("non-owner uploader must not delete a foreign draft")
	}
}

func TestAuthorizeDisbursementRequiresDistrictTier(t *testing.T) {
	uploader := accessWith(1061, []string{rbac.RoleUploader}, nil)
	manager := accessWith(0, []string{rbac.RoleDistrictManager}, nil)
	gate := newGateWith(t, map[string]rbac.Access{"up": uploader, "dm": manager})
	res := Resource{DocumentID: "d1", BranchCode: 1061}
	ctx := context.Background()

	for _, action := range []Action{ActionSetDisbursementDate, ActionConfirmDisbursement, ActionMarkPaid, ActionReceivePaper} {
		dec, err := gate.Authorize(ctx, "up", res, action)
		if err != nil {
			t.Fatalf("Authorize(%s): %v", action, err)
		}
		if dec.Allowed {
			t.Fatalf("uploader must not perform %s", action)
		}
		dec, err = gate.Authorize(ctx, "dm", res, action)
		if err != nil {
			t.Fatalf("Authorize(%s): %v", action, err)
		}
		if !dec.Allowed {
			t.Fatalf("district_manager must perform %s: %+v", action, dec)
		}
	}
}
