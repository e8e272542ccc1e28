package driven

import (
	"context"

	"github.com/custodia-labs/mira/internal/core/domain"
)

// PostProcessor is one stage of the chunking pipeline. The first stage is
// given nil chunks and creates them from doc; later stages rewrite the
// chunks they receive. Stages must keep DocumentID and Sequence intact.
type PostProcessor interface {
	// Name is the registry name, used in errors and configuration.
	Name() string

	Process(ctx context.Context, doc *domain.Document, chunks []domain.Chunk) ([]domain.Chunk, error)
}

// PostProcessorPipeline turns a document into its final chunks.
type PostProcessorPipeline interface {
	Process(ctx context.Context, doc *domain.Document) ([]domain.Chunk, error)
}
