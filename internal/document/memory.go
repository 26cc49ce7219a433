package document

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// InMemory is a Store backed by process memory. Used in tests and for local
// development without a database.
type InMemory struct {
	mu       sync.RWMutex
	docs     map[string]Document
	comments map[string][]Comment
	files    map[string][]File
}

var _ Store = (*InMemory)(nil)

// NewInMemory returns an empty in-memory store.
func NewInMemory() *InMemory {
	return &InMemory{
		docs:     make(map[string]Document),
		comments: make(map[string][]Comment),
		files:    make(map[string][]File),
	}
}

// Create stores a new document.
func (s *InMemory) Create(_ context.Context, doc Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.docs[doc.ID]; exists {
		return fmt.Errorf("document %s already exists", doc.ID)
	}
	s.docs[doc.ID] = doc
	return nil
}

// Get returns the document or ErrNotFound.
func (s *InMemory) Get(_ context.Context, id string) (Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.docs[id]
	if !ok {
		return Document{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return doc, nil
}

// GetBatch returns the documents in input order, failing on the first
// missing id.
func (s *InMemory) GetBatch(_ context.Context, ids []string) ([]Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Document, 0, len(ids))
	for _, id := range ids {
		doc, ok := s.docs[id]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		out = append(out, doc)
	}
	return out, nil
}

// Update overwrites an existing document.
func (s *InMemory) Update(_ context.Context, doc Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.docs[doc.ID]; !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, doc.ID)
	}
	s.docs[doc.ID] = doc
	return nil
}

// UpdateBatch overwrites every document or none: existence is checked for
// the whole slice before the first write.
func (s *InMemory) UpdateBatch(_ context.Context, docs []Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, doc := range docs {
		if _, ok := s.docs[doc.ID]; !ok {
			return fmt.Errorf("%w: %s", ErrNotFound, doc.ID)
		}
	}
	for _, doc := range docs {
		s.docs[doc.ID] = doc
	}
	return nil
}

// Delete removes the document and its comments and files.
func (s *InMemory) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.docs[id]; !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	delete(s.docs, id)
	delete(s.comments, id)
	delete(s.files, id)
	return nil
}

// List returns matching documents ordered by creation time, newest first.
func (s *InMemory) List(_ context.Context, f Filter) ([]Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Document, 0, len(s.docs))
	for _, doc := range s.docs {
		if f.BranchCode != nil && doc.BranchCode != *f.BranchCode {
			continue
		}
		if f.Status != nil && doc.Status != *f.Status {
			continue
		}
		if f.Stage != nil && doc.Disbursement.Stage != *f.Stage {
			continue
		}
		out = append(out, doc)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

// AddComment appends a comment to its document.
func (s *InMemory) AddComment(_ context.Context, c Comment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.docs[c.DocumentID]; !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, c.DocumentID)
	}
	s.comments[c.DocumentID] = append(s.comments[c.DocumentID], c)
	return nil
}

// Comments returns the comments of a document in insertion order.
func (s *InMemory) Comments(_ context.Context, documentID string) ([]Comment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	src := s.comments[documentID]
	out := make([]Comment, len(src))
	copy(out, src)
	return out, nil
}

// AddFile appends an attachment record to its document.
func (s *InMemory) AddFile(_ context.Context, f File) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.docs[f.DocumentID]; !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, f.DocumentID)
	}
	s.files[f.DocumentID] = append(s.files[f.DocumentID], f)
	return nil
}

// Files returns the attachment records of a document in insertion order.
func (s *InMemory) Files(_ context.Context, documentID string) ([]File, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	src := s.files[documentID]
	out := make([]File, len(src))
	copy(out, src)
	return out, nil
}
