package driving

import (
	"context"

	"github.com/custodia-labs/mira/internal/core/domain"
)

// IngestService indexes documents into the knowledge base.
type IngestService interface {
	// Ingest chunks, embeds and indexes each document independently.
	// A failing document is reported and does not abort the batch; the
	// returned error is reserved for failures of the whole call (cancellation).
	Ingest(ctx context.Context, docs []domain.Document) (*domain.IngestionReport, error)

	// Delete removes documents and their index entries.
	Delete(ctx context.Context, documentIDs []string) (*domain.DeleteReport, error)

	// List returns the stored document records.
	List(ctx context.Context) ([]domain.Document, error)

	// Get returns one stored document, or domain.ErrNotFound.
	Get(ctx context.Context, documentID string) (*domain.Document, error)
}
