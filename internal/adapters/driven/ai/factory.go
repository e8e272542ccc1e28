// Package ai builds the embedding and LLM adapters named in settings.
package ai

import (
	"context"
	"fmt"
	"time"

	geminiembed "github.com/custodia-labs/mira/internal/adapters/driven/embedding/gemini"
	hashembed "github.com/custodia-labs/mira/internal/adapters/driven/embedding/hash"
	ollamaembed "github.com/custodia-labs/mira/internal/adapters/driven/embedding/ollama"
	openaiembed "github.com/custodia-labs/mira/internal/adapters/driven/embedding/openai"
	anthropicllm "github.com/custodia-labs/mira/internal/adapters/driven/llm/anthropic"
	geminillm "github.com/custodia-labs/mira/internal/adapters/driven/llm/gemini"
	ollamallm "github.com/custodia-labs/mira/internal/adapters/driven/llm/ollama"
	openaillm "github.com/custodia-labs/mira/internal/adapters/driven/llm/openai"
	"github.com/custodia-labs/mira/internal/core/domain"
	"github.com/custodia-labs/mira/internal/core/ports/driven"
)

// pingTimeout bounds a connectivity check.
const pingTimeout = 5 * time.Second

// settingsHint is appended to construction failures.
const settingsHint = "run 'mira settings' to check the configuration"

type embeddingBuilder func(s *domain.EmbeddingSettings) (driven.EmbeddingService, error)

type llmBuilder func(s *domain.LLMSettings) (driven.LLMService, error)

var embeddingBuilders = map[domain.AIProvider]embeddingBuilder{
	domain.AIProviderHash: func(s *domain.EmbeddingSettings) (driven.EmbeddingService, error) {
		return hashembed.NewEmbeddingService(s.ResolveDimensions()), nil
	},
	domain.AIProviderOllama: func(s *domain.EmbeddingSettings) (driven.EmbeddingService, error) {
		dims := s.ResolveDimensions()
		if dims == 0 {
			dims = ollamaembed.DefaultDimensions
		}
		return ollamaembed.NewEmbeddingService(ollamaembed.Config{
			BaseURL:    s.BaseURL,
			Model:      s.Model,
			Dimensions: dims,
		}), nil
	},
	domain.AIProviderOpenAI: func(s *domain.EmbeddingSettings) (driven.EmbeddingService, error) {
		return openaiembed.NewEmbeddingService(openaiembed.Config{
			APIKey:     s.APIKey,
			BaseURL:    s.BaseURL,
			Model:      s.Model,
			Dimensions: s.Dimensions,
		})
	},
	domain.AIProviderGemini: func(s *domain.EmbeddingSettings) (driven.EmbeddingService, error) {
		return geminiembed.NewEmbeddingService(context.Background(), geminiembed.Config{
			APIKey:     s.APIKey,
			BaseURL:    s.BaseURL,
			Model:      s.Model,
			Dimensions: s.Dimensions,
		})
	},
}

var llmBuilders = map[domain.AIProvider]llmBuilder{
	domain.AIProviderOllama: func(s *domain.LLMSettings) (driven.LLMService, error) {
		return ollamallm.NewLLMService(ollamallm.LLMConfig{BaseURL: s.BaseURL, Model: s.Model}), nil
	},
	domain.AIProviderOpenAI: func(s *domain.LLMSettings) (driven.LLMService, error) {
		return openaillm.NewLLMService(openaillm.LLMConfig{APIKey: s.APIKey, BaseURL: s.BaseURL, Model: s.Model})
	},
	domain.AIProviderAnthropic: func(s *domain.LLMSettings) (driven.LLMService, error) {
		return anthropicllm.NewLLMService(anthropicllm.Config{APIKey: s.APIKey, BaseURL: s.BaseURL, Model: s.Model})
	},
	domain.AIProviderGemini: func(s *domain.LLMSettings) (driven.LLMService, error) {
		return geminillm.NewLLMService(context.Background(), geminillm.Config{
			APIKey:  s.APIKey,
			BaseURL: s.BaseURL,
			Model:   s.Model,
		})
	},
}

// CreateEmbeddingService builds the embedding adapter selected by settings
// without contacting it.
func CreateEmbeddingService(settings *domain.EmbeddingSettings) (driven.EmbeddingService, error) {
	if settings == nil || settings.Provider == "" {
		return nil, fmt.Errorf("%w: no embedding provider configured", domain.ErrInvalidInput)
	}
	build, ok := embeddingBuilders[settings.Provider]
	switch {
	case ok:
		return build(settings)
	case settings.Provider == domain.AIProviderAnthropic:
		return nil, fmt.Errorf("%w: anthropic does not support embeddings, use openai, gemini, ollama or hash",
			domain.ErrInvalidInput)
	default:
		return nil, fmt.Errorf("%w: unsupported embedding provider: %s", domain.ErrInvalidInput, settings.Provider)
	}
}

// CreateLLMService builds the LLM adapter selected by settings without
// contacting it.
func CreateLLMService(settings *domain.LLMSettings) (driven.LLMService, error) {
	if settings == nil || settings.Provider == "" {
		return nil, fmt.Errorf("%w: no LLM provider configured", domain.ErrInvalidInput)
	}
	build, ok := llmBuilders[settings.Provider]
	switch {
	case ok:
		return build(settings)
	case settings.Provider == domain.AIProviderHash:
		return nil, fmt.Errorf("%w: hash is an embedding-only provider", domain.ErrInvalidInput)
	default:
		return nil, fmt.Errorf("%w: unsupported LLM provider: %s", domain.ErrInvalidInput, settings.Provider)
	}
}

// CreateAndValidateEmbeddingService builds the embedding adapter and pings
// it. Every failure wraps domain.ErrEmbeddingUnavailable.
func CreateAndValidateEmbeddingService(settings *domain.EmbeddingSettings) (driven.EmbeddingService, error) {
	svc, err := CreateEmbeddingService(settings)
	if err != nil {
		return nil, fmt.Errorf("%w: %w; %s", domain.ErrEmbeddingUnavailable, err, settingsHint)
	}
	if err := ping(svc); err != nil {
		return nil, fmt.Errorf("%w: service unreachable (%w)", domain.ErrEmbeddingUnavailable, err)
	}
	return svc, nil
}

// CreateAndValidateLLMService builds the LLM adapter and pings it. Every
// failure wraps domain.ErrGeneration.
func CreateAndValidateLLMService(settings *domain.LLMSettings) (driven.LLMService, error) {
	svc, err := CreateLLMService(settings)
	if err != nil {
		return nil, fmt.Errorf("%w: %w; %s", domain.ErrGeneration, err, settingsHint)
	}
	if err := ping(svc); err != nil {
		return nil, fmt.Errorf("%w: service unreachable (%w)", domain.ErrGeneration, err)
	}
	return svc, nil
}

// ValidateEmbeddingConfig builds the embedding adapter, pings it and
// closes it. Unconfigured settings pass; settings validation reports them.
func ValidateEmbeddingConfig(settings *domain.EmbeddingSettings) error {
	if settings == nil || !settings.IsConfigured() {
		return nil
	}
	svc, err := CreateEmbeddingService(settings)
	if err != nil {
		return err
	}
	if err := ping(svc); err != nil {
		return err
	}
	return svc.Close()
}

// ValidateLLMConfig builds the LLM adapter, pings it and closes it.
func ValidateLLMConfig(settings *domain.LLMSettings) error {
	if settings == nil || !settings.IsConfigured() {
		return nil
	}
	svc, err := CreateLLMService(settings)
	if err != nil {
		return err
	}
	if err := ping(svc); err != nil {
		return err
	}
	return svc.Close()
}

// pinger is what both adapter kinds offer for connectivity checks.
type pinger interface {
	Ping(ctx context.Context) error
	Close() error
}

// ping checks svc within pingTimeout and closes it on failure.
func ping(svc pinger) error {
	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()
	if err := svc.Ping(ctx); err != nil {
		_ = svc.Close()
		return err
	}
	return nil
}
