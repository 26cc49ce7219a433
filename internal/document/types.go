package document

import (
	"time"

	"github.com/shopspring/decimal"
)

// Status is the primary workflow state of a disbursement document.
type Status string

const (
	StatusDraft               Status = "draft"
	StatusSent                Status = "sent"
	StatusAcknowledged        Status = "acknowledged"
	StatusAdditionalDocsDone  Status = "additional_docs_completed"
	StatusVerificationDone    Status = "verification_completed"
	StatusAllChecked          Status = "all_checked"
	StatusSentBackToDistrict  Status = "sent_back_to_district"
	StatusReceived            Status = "received"
)

// Statuses lists every primary status in workflow order.
var Statuses = []Status{
	StatusDraft,
	StatusSent,
	StatusAcknowledged,
	StatusAdditionalDocsDone,
	StatusVerificationDone,
	StatusAllChecked,
	StatusSentBackToDistrict,
	StatusReceived,
}

// DisbursementStage is the payment-side progression. It is orthogonal to the
// primary status and only advances, never regresses.
type DisbursementStage string

const (
	StageUnset     DisbursementStage = "unset"
	StageDateSet   DisbursementStage = "date_set"
	StageConfirmed DisbursementStage = "confirmed"
	StagePaid      DisbursementStage = "paid"
)

// Disbursement tracks the payment sub-state. Date is nil exactly when Stage
// is unset, so a confirmed or paid disbursement always has its date.
type Disbursement struct {
	Stage DisbursementStage `json:"stage"`
	Date  *time.Time        `json:"date,omitempty"`
}

// EmendationSlot is the reserved attachment index for correction files
// produced during verification. Regular required items start at 1.
const EmendationSlot = 0

// Document is a disbursement routing record moving between the district
// office and a branch. RefDate, ReceivedPaperAt and Disbursement.Date are
// civil dates: midnight values in the service's configured location.
type Document struct {
	ID              string          `json:"id"`
	BranchCode      int             `json:"branch_code"`
	RefNo           string          `json:"ref_no"`
	RefDate         time.Time       `json:"ref_date"`
	Subject         string          `json:"subject"`
	Amount          decimal.Decimal `json:"amount"`
	Status          Status          `json:"status"`
	Disbursement    Disbursement    `json:"disbursement"`
	UploaderID      string          `json:"uploader_id"`
	ReceivedPaperAt *time.Time      `json:"received_paper_at,omitempty"`
	Deadline        *Deadline       `json:"deadline,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// Deadline is the return window stamped when a document is sent back to the
// district: the branch has until DueAt to hand the paper original over.
type Deadline struct {
	SentBackAt time.Time `json:"sent_back_at"`
	DueAt      time.Time `json:"due_at"`
}

// Comment is a discussion note on a document.
type Comment struct {
	ID         string    `json:"id"`
	DocumentID string    `json:"document_id"`
	AuthorID   string    `json:"author_id"`
	Body       string    `json:"body"`
	CreatedAt  time.Time `json:"created_at"`
}

// File is an attachment slot entry. ItemIndex 0 is the emendation slot,
// indexes from 1 map to the required checklist items of the document type.
type File struct {
	ID         string    `json:"id"`
	DocumentID string    `json:"document_id"`
	ItemIndex  int       `json:"item_index"`
	Name       string    `json:"name"`
	StorageKey string    `json:"storage_key"`
	Size       int64     `json:"size"`
	UploaderID string    `json:"uploader_id"`
	CreatedAt  time.Time `json:"created_at"`
}
