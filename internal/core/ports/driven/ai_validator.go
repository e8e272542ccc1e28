package driven

import "github.com/custodia-labs/mira/internal/core/domain"

// AIConfigValidator checks provider settings against the live provider
// before they are relied on. Settings without a provider pass.
type AIConfigValidator interface {
	// ValidateEmbedding fails with domain.ErrInvalidInput for unusable
	// settings and domain.ErrEmbeddingUnavailable for an unreachable provider.
	ValidateEmbedding(config *domain.EmbeddingSettings) error

	// ValidateLLM fails with domain.ErrInvalidInput for unusable settings
	// and domain.ErrGeneration for an unreachable provider.
	ValidateLLM(config *domain.LLMSettings) error
}
