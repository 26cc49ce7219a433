package document

import "context"

// Filter narrows List results. Nil fields match everything; visibility
// filtering happens above the store, in the service.
type Filter struct {
	BranchCode *int
	Status     *Status
	Stage      *DisbursementStage
}

// Store persists documents, comments and attachment records. UpdateBatch is
// atomic: either every document in the slice is written or none is.
type Store interface {
	Create(ctx context.Context, doc Document) error
	Get(ctx context.Context, id string) (Document, error)
	GetBatch(ctx context.Context, ids []string) ([]Document, error)
	Update(ctx context.Context, doc Document) error
	UpdateBatch(ctx context.Context, docs []Document) error
	Delete(ctx context.Context, id string) error
	List(ctx context.Context, f Filter) ([]Document, error)

	AddComment(ctx context.Context, c Comment) error
	Comments(ctx context.Context, documentID string) ([]Comment, error)

	AddFile(ctx context.Context, f File) error
	Files(ctx context.Context, documentID string) ([]File, error)
}
