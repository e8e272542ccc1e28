// Package driven provides interfaces for infrastructure adapters (secondary/outbound ports).
package driven

import "context"

// EmbeddingService turns text into vectors for the VectorIndex.
//
// Implementations map provider failures onto domain errors: rate limits to
// domain.ErrRateLimited, 5xx and network failures to domain.ErrTransient,
// rejected credentials to domain.ErrAuthInvalid and oversized input to
// domain.ErrTooLong. Retrying is the caller's concern.
//
// Implementations may include:
//   - OpenAI (text-embedding-3-small, text-embedding-3-large)
//   - Gemini (text-embedding-004)
//   - Ollama (nomic-embed-text, all-minilm)
//   - Feature hashing (offline, deterministic)
type EmbeddingService interface {
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch embeds texts in one provider call where the provider
	// allows it. output[i] is the vector of texts[i].
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions is the vector size the model produces. The vector index
	// must be created with the same size.
	Dimensions() int

	ModelName() string

	// Ping checks reachability and credentials without embedding anything
	// billable where the provider allows it.
	Ping(ctx context.Context) error

	Close() error
}
