package driving

import (
	"context"

	"github.com/custodia-labs/mira/internal/core/domain"
)

// QueryService answers questions from the knowledge base.
type QueryService interface {
	// Answer runs the query pipeline. Failures are *domain.StageError values.
	Answer(ctx context.Context, question string) (*domain.Answer, error)

	// AnswerWithOptions is Answer with per-query retrieval overrides.
	AnswerWithOptions(ctx context.Context, question string, opts domain.QueryOptions) (*domain.Answer, error)

	// Run executes the pipeline and returns the terminal outcome,
	// including the stage trace.
	Run(ctx context.Context, question string, opts domain.QueryOptions) *domain.QueryOutcome
}

// RetrievalService returns ranked passages without generation.
type RetrievalService interface {
	// Retrieve embeds the query and returns at most opts.TopK passages,
	// sorted by descending score.
	Retrieve(ctx context.Context, query string, opts domain.RetrieveOptions) ([]domain.RetrievedPassage, error)
}
