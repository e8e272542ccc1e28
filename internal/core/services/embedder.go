package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/time/rate"

	"github.com/custodia-labs/mira/internal/core/domain"
	"github.com/custodia-labs/mira/internal/core/ports/driven"
	"github.com/custodia-labs/mira/internal/logger"
	"github.com/custodia-labs/mira/internal/retry"
	"github.com/custodia-labs/mira/internal/tokenizer"
)

// EmbedderConfig controls batching, limits and retries of embedding calls.
type EmbedderConfig struct {
	// BatchSize is the number of texts sent per backend call.
	BatchSize int

	// MaxInputTokens rejects longer texts with domain.ErrTooLong.
	MaxInputTokens int

	// RatePerSecond throttles backend calls. Zero disables throttling.
	RatePerSecond float64

	// Retry governs transient failures.
	Retry retry.Policy
}

// DefaultEmbedderConfig returns the embedder configuration derived from defaults.
func DefaultEmbedderConfig() EmbedderConfig {
	s := domain.DefaultAppSettings()
	return EmbedderConfig{
		BatchSize:      s.Embedding.BatchSize,
		MaxInputTokens: s.Embedding.MaxInputTokens,
		Retry:          retry.FromSettings("embed", s.Retry, s.Embedding.Timeout),
	}
}

// Embedder maps texts to vectors through an EmbeddingService with
// validation, batching, throttling and retries.
type Embedder struct {
	backend driven.EmbeddingService
	cfg     EmbedderConfig
	limiter *rate.Limiter
}

// NewEmbedder creates an embedder over the given backend.
func NewEmbedder(backend driven.EmbeddingService, cfg EmbedderConfig) *Embedder {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = domain.DefaultEmbeddingBatchSize
	}
	if cfg.MaxInputTokens <= 0 {
		cfg.MaxInputTokens = domain.DefaultEmbeddingTokenLimit
	}
	if cfg.Retry.Name == "" {
		cfg.Retry.Name = "embed"
	}

	e := &Embedder{backend: backend, cfg: cfg}
	if cfg.RatePerSecond > 0 {
		burst := max(int(cfg.RatePerSecond), 1)
		e.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSecond), burst)
	}
	return e
}

// Dimensions returns the backend vector size.
func (e *Embedder) Dimensions() int {
	return e.backend.Dimensions()
}

// ModelName returns the backend model name.
func (e *Embedder) ModelName() string {
	return e.backend.ModelName()
}

// NormalizeText collapses runs of whitespace to single spaces and trims the ends.
func NormalizeText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// Embed returns one vector per text, in input order.
//
// Empty texts fail with domain.ErrInvalidInput and texts longer than the
// model limit fail with domain.ErrTooLong before any backend call is made.
// Backend failures that survive retries fail with domain.ErrEmbeddingUnavailable.
func (e *Embedder) Embed(ctx context.Context, texts []string) ([]domain.Vector, error) {
	if len(texts) == 0 {
		return []domain.Vector{}, nil
	}

	normalized := make([]string, len(texts))
	for i, text := range texts {
		n := NormalizeText(text)
		if n == "" {
			return nil, fmt.Errorf("%w: text %d is empty", domain.ErrInvalidInput, i)
		}
		if tokens := tokenizer.Count(n); tokens > e.cfg.MaxInputTokens {
			return nil, fmt.Errorf("%w: text %d has %d tokens, limit is %d; shorten the text",
				domain.ErrTooLong, i, tokens, e.cfg.MaxInputTokens)
		}
		normalized[i] = n
	}

	vectors := make([]domain.Vector, 0, len(texts))
	for start := 0; start < len(normalized); start += e.cfg.BatchSize {
		end := min(start+e.cfg.BatchSize, len(normalized))
		batch := normalized[start:end]

		vecs, err := e.embedBatch(ctx, batch)
		if err != nil {
			return nil, err
		}
		vectors = append(vectors, vecs...)
	}

	logger.Debug("embedder: %d texts embedded with %s", len(vectors), e.backend.ModelName())
	return vectors, nil
}

// EmbedQuery embeds a single query string.
func (e *Embedder) EmbedQuery(ctx context.Context, query string) (domain.Vector, error) {
	vecs, err := e.Embed(ctx, []string{query})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

func (e *Embedder) embedBatch(ctx context.Context, batch []string) ([]domain.Vector, error) {
	if e.limiter != nil {
		if err := e.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("embedding rate limiter: %w", err)
		}
	}

	vecs, err := retry.DoValue(ctx, e.cfg.Retry, func(ctx context.Context) ([][]float32, error) {
		return e.backend.EmbedBatch(ctx, batch)
	})
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrTooLong), errors.Is(err, context.Canceled):
			return nil, fmt.Errorf("embed: %w", err)
		default:
			return nil, fmt.Errorf("%w: %w", domain.ErrEmbeddingUnavailable, err)
		}
	}

	if len(vecs) != len(batch) {
		return nil, fmt.Errorf("%w: backend returned %d vectors for %d texts",
			domain.ErrEmbeddingUnavailable, len(vecs), len(batch))
	}
	dims := e.backend.Dimensions()
	for i, v := range vecs {
		if len(v) == 0 || (dims > 0 && len(v) != dims) {
			return nil, fmt.Errorf("%w: %w: vector %d has %d dimensions, expected %d",
				domain.ErrEmbeddingUnavailable, domain.ErrDimensionMismatch, i, len(v), dims)
		}
	}

	return vecs, nil
}
