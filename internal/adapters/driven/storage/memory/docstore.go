package memory

import (
	"cmp"
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/custodia-labs/mira/internal/core/domain"
	"github.com/custodia-labs/mira/internal/core/ports/driven"
)

// Ensure DocumentStore implements the interface.
var _ driven.DocumentStore = (*DocumentStore)(nil)

// DocumentStore keeps document records in a map. Records are copied on the
// way in and out so callers never share metadata maps with the store.
type DocumentStore struct {
	mu   sync.RWMutex
	docs map[string]domain.Document
}

// NewDocumentStore returns an empty store.
func NewDocumentStore() *DocumentStore {
	return &DocumentStore{docs: make(map[string]domain.Document)}
}

// SaveDocument inserts doc or replaces the record with the same id.
func (s *DocumentStore) SaveDocument(_ context.Context, doc *domain.Document) error {
	if doc == nil || doc.ID == "" {
		return fmt.Errorf("%w: document without an id", domain.ErrInvalidInput)
	}
	s.mu.Lock()
	s.docs[doc.ID] = copyDocument(doc)
	s.mu.Unlock()
	return nil
}

// GetDocument returns the record for id.
func (s *DocumentStore) GetDocument(_ context.Context, id string) (*domain.Document, error) {
	s.mu.RLock()
	doc, ok := s.docs[id]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("document %q: %w", id, domain.ErrNotFound)
	}
	out := copyDocument(&doc)
	return &out, nil
}

// DeleteDocument removes the record for id.
func (s *DocumentStore) DeleteDocument(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.docs[id]; !ok {
		return fmt.Errorf("document %q: %w", id, domain.ErrNotFound)
	}
	delete(s.docs, id)
	return nil
}

// ListDocuments returns every record ordered by id.
func (s *DocumentStore) ListDocuments(_ context.Context) ([]domain.Document, error) {
	s.mu.RLock()
	out := make([]domain.Document, 0, len(s.docs))
	for _, doc := range s.docs {
		out = append(out, copyDocument(&doc))
	}
	s.mu.RUnlock()

	slices.SortFunc(out, func(a, b domain.Document) int { return cmp.Compare(a.ID, b.ID) })
	return out, nil
}

func copyDocument(doc *domain.Document) domain.Document {
	out := *doc
	out.Metadata = maps.Clone(doc.Metadata)
	return out
}
