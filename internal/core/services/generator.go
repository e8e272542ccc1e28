package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/custodia-labs/mira/internal/core/domain"
	"github.com/custodia-labs/mira/internal/core/ports/driven"
	"github.com/custodia-labs/mira/internal/logger"
	"github.com/custodia-labs/mira/internal/retry"
)

// GeneratorConfig controls generation retries and timeouts.
type GeneratorConfig struct {
	// Retry governs transient failures. Retry.AttemptTimeout bounds each request.
	Retry retry.Policy
}

// DefaultGeneratorConfig returns the generator configuration derived from defaults.
func DefaultGeneratorConfig() GeneratorConfig {
	s := domain.DefaultAppSettings()
	return GeneratorConfig{
		Retry: retry.FromSettings("generate", s.Retry, s.LLM.Timeout),
	}
}

// Generator sends assembled prompts to an LLM and returns grounded answers.
type Generator struct {
	llm driven.LLMService
	cfg GeneratorConfig
}

// NewGenerator creates a generator over the given LLM backend.
func NewGenerator(llm driven.LLMService, cfg GeneratorConfig) *Generator {
	if cfg.Retry.Name == "" {
		cfg.Retry.Name = "generate"
	}
	return &Generator{llm: llm, cfg: cfg}
}

// Generate completes req. Transient failures (rate limits, 5xx, network,
// timeouts) are retried with backoff; anything else fails at once with
// domain.ErrGeneration. Citations are the document IDs supplied in req,
// never parsed from the model output.
func (g *Generator) Generate(ctx context.Context, req domain.GenerationRequest) (*domain.Answer, error) {
	if strings.TrimSpace(req.User) == "" {
		return nil, fmt.Errorf("%w: prompt is empty", domain.ErrInvalidInput)
	}

	completionReq := driven.CompletionRequest{
		System:      req.System,
		Messages:    []driven.ChatMessage{{Role: driven.RoleUser, Content: req.User}},
		MaxTokens:   req.Params.MaxTokens,
		Temperature: req.Params.Temperature,
	}

	completion, err := retry.DoValue(ctx, g.cfg.Retry, func(ctx context.Context) (*driven.Completion, error) {
		return g.llm.Complete(ctx, completionReq)
	})
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil, fmt.Errorf("generate: %w", err)
		}
		return nil, fmt.Errorf("%w: %w", domain.ErrGeneration, err)
	}
	if completion == nil || strings.TrimSpace(completion.Text) == "" {
		return nil, fmt.Errorf("%w: model returned an empty answer", domain.ErrGeneration)
	}

	model := completion.Model
	if model == "" {
		model = g.llm.ModelName()
	}

	citations := make([]string, len(req.CitedDocumentIDs))
	copy(citations, req.CitedDocumentIDs)

	answer := &domain.Answer{
		Text:      strings.TrimSpace(completion.Text),
		Citations: citations,
		Usage: domain.Usage{
			PromptTokens:     completion.PromptTokens,
			CompletionTokens: completion.CompletionTokens,
			TotalTokens:      completion.PromptTokens + completion.CompletionTokens,
			Model:            model,
		},
		NoContext: req.NoContext,
	}

	logger.Debug("generator: %s answered with %d tokens (%d prompt)",
		model, completion.CompletionTokens, completion.PromptTokens)
	return answer, nil
}
