package access

import (
	"errors"
	"fmt"

	"qagaz.org/internal/rbac"
)

// Action identifies an operation a user wants to perform on a document.
// The same vocabulary drives both authorization and the state machine.
type Action string

const (
	ActionView                   Action = "view"
	ActionCreateDraft            Action = "createDraft"
	ActionSubmit                 Action = "submit"
	ActionAcknowledge            Action = "acknowledge"
	ActionCompleteAdditionalDocs Action = "completeAdditionalDocs"
	ActionCompleteVerification   Action = "completeVerification"
	ActionMarkAllChecked         Action = "markAllChecked"
	ActionSendBackToDistrict     Action = "sendBackToDistrict"
	ActionReceivePaper           Action = "receivePaper"
	ActionSetDisbursementDate    Action = "setDisbursementDate"
	ActionConfirmDisbursement    Action = "confirmDisbursement"
	ActionMarkPaid               Action = "markPaid"
	ActionDeleteDraft            Action = "deleteDraft"
	ActionCreateComment          Action = "createComment"
	ActionAttachFile             Action = "attachFile"
)

// Reason distinguishes why access was denied so callers can render distinct
// messages without re-deriving the cause.
type Reason string

const (
	ReasonBranch     Reason = "branch"
	ReasonPermission Reason = "permission"
	ReasonRole       Reason = "role"
)

// ErrAuthenticationRequired is returned when no resolvable user backs the request.
var ErrAuthenticationRequired = errors.New("access: authentication required")

// DeniedError is the structured denial result.
type DeniedError struct {
	Reason Reason
	Detail string
}

func (e *DeniedError) Error() string {
	return fmt.Sprintf("access denied (%s): %s", e.Reason, e.Detail)
}

// Resource is the minimal view of a document the gate needs.
type Resource struct {
	DocumentID string
	BranchCode int
	Draft      bool
	OwnerID    string
}

// Decision is the outcome of an authorization check. When allowed it carries
// the freshly resolved access set so callers do not resolve twice.
type Decision struct {
	Allowed bool
	Reason  Reason
	Detail  string
	Access  rbac.Access
}

// Err returns nil when allowed, otherwise the structured denial.
func (d Decision) Err() error {
	if d.Allowed {
		return nil
	}
	return &DeniedError{Reason: d.Reason, Detail: d.Detail}
}

func allow(acc rbac.Access) Decision {
	return Decision{Allowed: true, Access: acc}
}

func deny(acc rbac.Access, reason Reason, detail string) Decision {
	return Decision{Allowed: false, Reason: reason, Detail: detail, Access: acc}
}

// requirement describes what an action demands beyond branch visibility.
// anyRole grants when the user holds one of the roles; perm grants when the
// user holds the permission; ownerOK additionally admits the resource owner.
type requirement struct {
	perm    string
	anyRole []string
	ownerOK bool
}

var uploaderClass = []string{rbac.RoleUploader, rbac.RoleAdmin, rbac.RoleDistrictManager}

var districtClass = []string{rbac.RoleAdmin, rbac.RoleDistrictManager}

var actionRequirements = map[Action]requirement{
	ActionView:                   {},
	ActionCreateDraft:            {perm: rbac.PermCreateDocuments},
	ActionSubmit:                 {anyRole: uploaderClass},
	ActionAcknowledge:            {anyRole: uploaderClass},
	ActionCompleteAdditionalDocs: {anyRole: uploaderClass},
	ActionCompleteVerification:   {anyRole: uploaderClass},
	ActionMarkAllChecked:         {anyRole: uploaderClass},
	ActionSendBackToDistrict:     {anyRole: uploaderClass},
	ActionReceivePaper:           {anyRole: districtClass},
	ActionSetDisbursementDate:    {anyRole: districtClass},
	ActionConfirmDisbursement:    {anyRole: districtClass},
	ActionMarkPaid:               {anyRole: districtClass},
	ActionDeleteDraft:            {anyRole: []string{rbac.RoleAdmin}, ownerOK: true},
	ActionCreateComment:          {perm: rbac.PermCreateComments},
	ActionAttachFile:             {perm: rbac.PermUploadFiles},
}

// Known reports whether the action is part of the gate's vocabulary.
func Known(action Action) bool {
	_, ok := actionRequirements[action]
	return ok
}
