package driven

import (
	"context"

	"github.com/custodia-labs/mira/internal/core/domain"
)

// VectorIndex stores chunk vectors with metadata and answers nearest-neighbour
// queries by cosine similarity.
//
// The index is an explicit dependency: each instance is an isolated store and
// implementations must be safe for concurrent use.
type VectorIndex interface {
	// Upsert inserts or replaces entries by ID. A reader never observes a
	// half-written entry. Vectors must match Dimensions.
	// Returns the number of entries written.
	Upsert(ctx context.Context, entries []domain.IndexEntry) (int, error)

	// Query returns up to topK entries matching filter, ordered by descending
	// cosine similarity. Equal scores are ordered most recently upserted first.
	// Returns domain.ErrInvalidInput when topK < 1.
	Query(ctx context.Context, vector domain.Vector, topK int, filter domain.MetadataFilter) ([]domain.ScoredEntry, error)

	// Delete removes entries by ID and returns how many existed.
	Delete(ctx context.Context, ids []string) (int, error)

	// Count returns the number of stored entries.
	Count(ctx context.Context) (int, error)

	// Dimensions returns the configured vector size.
	Dimensions() int

	// Close releases resources.
	Close() error
}
