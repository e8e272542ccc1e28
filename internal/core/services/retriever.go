package services

import (
	"context"
	"fmt"
	"sort"

	"github.com/custodia-labs/mira/internal/core/domain"
	"github.com/custodia-labs/mira/internal/core/ports/driven"
	"github.com/custodia-labs/mira/internal/core/ports/driving"
	"github.com/custodia-labs/mira/internal/logger"
	"github.com/custodia-labs/mira/internal/retry"
)

// Ensure Retriever implements the interface.
var _ driving.RetrievalService = (*Retriever)(nil)

// RetrieverConfig controls candidate selection.
type RetrieverConfig struct {
	// TopK is used when a request does not set one.
	TopK int

	// OversampleFactor multiplies TopK when querying the index so that
	// deduplication and thresholding still leave TopK passages.
	OversampleFactor int

	// DedupeByDocument keeps only the best chunk of each document.
	DedupeByDocument bool

	// Retry governs transient index failures.
	Retry retry.Policy
}

// DefaultRetrieverConfig returns the retriever configuration derived from defaults.
func DefaultRetrieverConfig() RetrieverConfig {
	s := domain.DefaultAppSettings()
	return RetrieverConfig{
		TopK:             s.Retrieval.TopK,
		OversampleFactor: s.Retrieval.OversampleFactor,
		DedupeByDocument: s.Retrieval.DedupeByDocument,
		Retry:            retry.FromSettings("vector query", s.Retry, 0),
	}
}

// Retriever produces ranked, deduplicated passages for a query.
type Retriever struct {
	embedder *Embedder
	index    driven.VectorIndex
	cfg      RetrieverConfig
}

// NewRetriever creates a retriever.
func NewRetriever(embedder *Embedder, index driven.VectorIndex, cfg RetrieverConfig) *Retriever {
	if cfg.TopK <= 0 {
		cfg.TopK = domain.DefaultTopK
	}
	if cfg.OversampleFactor <= 0 {
		cfg.OversampleFactor = domain.DefaultOversampleFactor
	}
	if cfg.Retry.Name == "" {
		cfg.Retry.Name = "vector query"
	}
	return &Retriever{embedder: embedder, index: index, cfg: cfg}
}

// Retrieve embeds query and returns at most opts.TopK passages sorted by
// descending score. No passage clearing the threshold is an empty result,
// not an error.
func (r *Retriever) Retrieve(
	ctx context.Context, query string, opts domain.RetrieveOptions,
) ([]domain.RetrievedPassage, error) {
	if _, err := r.topK(opts); err != nil {
		return nil, err
	}

	vector, err := r.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	return r.RetrieveByVector(ctx, vector, opts)
}

// RetrieveByVector is Retrieve for an already embedded query.
func (r *Retriever) RetrieveByVector(
	ctx context.Context, vector domain.Vector, opts domain.RetrieveOptions,
) ([]domain.RetrievedPassage, error) {
	topK, err := r.topK(opts)
	if err != nil {
		return nil, err
	}

	candidates := topK * r.cfg.OversampleFactor
	logger.Debug("retriever: top_k=%d candidates=%d threshold=%.3f dedupe=%t",
		topK, candidates, opts.ScoreThreshold, r.cfg.DedupeByDocument)

	entries, err := retry.DoValue(ctx, r.cfg.Retry, func(ctx context.Context) ([]domain.ScoredEntry, error) {
		return r.index.Query(ctx, vector, candidates, opts.Filter)
	})
	if err != nil {
		return nil, fmt.Errorf("query index: %w", err)
	}

	// Stable sort keeps the index's recency order among equal scores.
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Score > entries[j].Score
	})

	passages := make([]domain.RetrievedPassage, 0, topK)
	seen := make(map[string]bool)
	for _, e := range entries {
		if e.Score < opts.ScoreThreshold {
			break
		}
		if r.cfg.DedupeByDocument {
			if seen[e.DocumentID] {
				continue
			}
			seen[e.DocumentID] = true
		}
		passages = append(passages, domain.PassageFromEntry(e))
		if len(passages) == topK {
			break
		}
	}

	logger.Debug("retriever: %d candidates -> %d passages", len(entries), len(passages))
	return passages, nil
}

func (r *Retriever) topK(opts domain.RetrieveOptions) (int, error) {
	switch {
	case opts.TopK < 0:
		return 0, fmt.Errorf("%w: top_k must be >= 1, got %d", domain.ErrInvalidInput, opts.TopK)
	case opts.TopK == 0:
		return r.cfg.TopK, nil
	default:
		return opts.TopK, nil
	}
}
