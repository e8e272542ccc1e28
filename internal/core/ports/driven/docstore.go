package driven

import (
	"context"

	"github.com/custodia-labs/mira/internal/core/domain"
)

// DocumentStore persists ingested document records.
// The record remembers the content hash and chunk count of the indexed
// version so re-ingestion can skip unchanged documents and delete stale chunks.
type DocumentStore interface {
	// SaveDocument stores or supersedes a document.
	SaveDocument(ctx context.Context, doc *domain.Document) error

	// GetDocument retrieves a document by ID.
	// Returns domain.ErrNotFound if it does not exist.
	GetDocument(ctx context.Context, id string) (*domain.Document, error)

	// DeleteDocument removes a document record.
	// Returns domain.ErrNotFound if it does not exist.
	DeleteDocument(ctx context.Context, id string) error

	// ListDocuments returns all stored documents ordered by ID.
	ListDocuments(ctx context.Context) ([]domain.Document, error)
}
