package ai

import (
	"errors"
	"fmt"

	"github.com/custodia-labs/mira/internal/core/domain"
	"github.com/custodia-labs/mira/internal/core/ports/driven"
)

// Ensure ConfigValidator implements the interface.
var _ driven.AIConfigValidator = (*ConfigValidator)(nil)

// ConfigValidator checks provider settings by building the adapter and
// pinging it. A reachable-but-failing embedding provider is reported as
// domain.ErrEmbeddingUnavailable and a failing LLM as domain.ErrGeneration;
// settings the factory rejects keep domain.ErrInvalidInput.
type ConfigValidator struct {
	embedding func(*domain.EmbeddingSettings) error
	llm       func(*domain.LLMSettings) error
}

// NewConfigValidator creates a validator that pings the real providers.
func NewConfigValidator() *ConfigValidator {
	return &ConfigValidator{
		embedding: ValidateEmbeddingConfig,
		llm:       ValidateLLMConfig,
	}
}

// ValidateEmbedding validates an embedding configuration by pinging the provider.
func (v *ConfigValidator) ValidateEmbedding(settings *domain.EmbeddingSettings) error {
	err := v.embedding(settings)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, domain.ErrInvalidInput):
		return fmt.Errorf("%s embedding: %w", settings.Provider, err)
	default:
		return fmt.Errorf("%w: %s embedding %q: %w",
			domain.ErrEmbeddingUnavailable, settings.Provider, settings.Model, err)
	}
}

// ValidateLLM validates an LLM configuration by pinging the provider.
func (v *ConfigValidator) ValidateLLM(settings *domain.LLMSettings) error {
	err := v.llm(settings)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, domain.ErrInvalidInput):
		return fmt.Errorf("%s llm: %w", settings.Provider, err)
	default:
		return fmt.Errorf("%w: %s llm %q: %w", domain.ErrGeneration, settings.Provider, settings.Model, err)
	}
}
