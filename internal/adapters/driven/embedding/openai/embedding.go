// Package openai embeds text with the OpenAI embeddings API.
package openai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/custodia-labs/mira/internal/adapters/driven/apierr"
	"github.com/custodia-labs/mira/internal/core/domain"
	"github.com/custodia-labs/mira/internal/core/ports/driven"
)

var _ driven.EmbeddingService = (*EmbeddingService)(nil)

const (
	DefaultModel   = string(openai.SmallEmbedding3)
	DefaultTimeout = 60 * time.Second

	// fallbackDimensions is assumed for models missing from knownModels.
	fallbackDimensions = 1536
)

// modelInfo describes an embedding model's output.
type modelInfo struct {
	dimensions int
	// shortenable models accept a smaller "dimensions" request parameter.
	shortenable bool
}

var knownModels = map[string]modelInfo{
	string(openai.SmallEmbedding3): {dimensions: 1536, shortenable: true},
	string(openai.LargeEmbedding3): {dimensions: 3072, shortenable: true},
	string(openai.AdaEmbeddingV2):  {dimensions: 1536},
}

// Config configures the OpenAI embedding service.
type Config struct {
	APIKey string
	// BaseURL points at an OpenAI-compatible endpoint such as Azure.
	BaseURL string
	Model   string
	Timeout time.Duration
	// Dimensions shortens text-embedding-3 vectors. Zero keeps the model's
	// native size.
	Dimensions int
}

// EmbeddingService implements driven.EmbeddingService over go-openai.
type EmbeddingService struct {
	client     *openai.Client
	model      string
	dimensions int
	// sendDimensions is set when the request must carry the dimensions field.
	sendDimensions bool
}

// NewEmbeddingService validates cfg and builds the client. A Dimensions value
// the model cannot produce is rejected here rather than on the first call.
func NewEmbeddingService(cfg Config) (*EmbeddingService, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: openai: API key is required", domain.ErrInvalidInput)
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}

	info, known := knownModels[cfg.Model]
	if !known {
		info = modelInfo{dimensions: fallbackDimensions}
	}
	dimensions := info.dimensions
	send := false
	if cfg.Dimensions > 0 && cfg.Dimensions != info.dimensions {
		if known && (!info.shortenable || cfg.Dimensions > info.dimensions) {
			return nil, fmt.Errorf("%w: openai: %s cannot produce %d dimensions (native %d)",
				domain.ErrInvalidInput, cfg.Model, cfg.Dimensions, info.dimensions)
		}
		dimensions = cfg.Dimensions
		send = true
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = strings.TrimSuffix(cfg.BaseURL, "/")
	}
	clientCfg.HTTPClient = &http.Client{Timeout: cfg.Timeout}

	return &EmbeddingService{
		client:         openai.NewClientWithConfig(clientCfg),
		model:          cfg.Model,
		dimensions:     dimensions,
		sendDimensions: send,
	}, nil
}

func (s *EmbeddingService) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := s.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch embeds texts in one request. Vectors are placed by the index the
// API reports, and each must have Dimensions() components.
func (s *EmbeddingService) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	req := openai.EmbeddingRequestStrings{
		Input: texts,
		Model: openai.EmbeddingModel(s.model),
	}
	if s.sendDimensions {
		req.Dimensions = s.dimensions
	}

	resp, err := s.client.CreateEmbeddings(ctx, req)
	if err != nil {
		return nil, mapError(err)
	}

	vecs := make([][]float32, len(texts))
	for _, d := range resp.Data {
		switch {
		case d.Index < 0 || d.Index >= len(texts):
			return nil, fmt.Errorf("openai: embedding index %d out of range", d.Index)
		case len(d.Embedding) != s.dimensions:
			return nil, fmt.Errorf("%w: openai %s returned %d components for input %d, want %d",
				domain.ErrDimensionMismatch, s.model, len(d.Embedding), d.Index, s.dimensions)
		}
		vecs[d.Index] = d.Embedding
	}
	for i, v := range vecs {
		if v == nil {
			return nil, fmt.Errorf("openai: no embedding returned for input %d", i)
		}
	}
	return vecs, nil
}

func (s *EmbeddingService) Dimensions() int {
	return s.dimensions
}

func (s *EmbeddingService) ModelName() string {
	return s.model
}

// Ping checks the key by listing models, which costs no tokens.
func (s *EmbeddingService) Ping(ctx context.Context) error {
	if _, err := s.client.ListModels(ctx); err != nil {
		return mapError(err)
	}
	return nil
}

func (s *EmbeddingService) Close() error {
	return nil
}

// mapError classifies go-openai errors by HTTP status.
func mapError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apierr.Wrap("openai", apiErr.HTTPStatusCode, err)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return apierr.Wrap("openai", reqErr.HTTPStatusCode, err)
	}
	return apierr.FromTransport("openai", err)
}
