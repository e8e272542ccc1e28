package postprocessors

import (
	"fmt"

	"github.com/custodia-labs/mira/internal/core/domain"
	"github.com/custodia-labs/mira/internal/core/ports/driven"
	"github.com/custodia-labs/mira/internal/postprocessors/chunker"
)

// ChunkerName is the registry name of the sentence-aware chunker.
const ChunkerName = "chunker"

// RegisterDefaults registers the built-in processors with the registry.
func RegisterDefaults(r *Registry) error {
	return r.Register(ChunkerName, buildChunker)
}

// BuildPipeline assembles a pipeline from configuration using the registry.
func BuildPipeline(r *Registry, cfg domain.PipelineConfig) (*Pipeline, error) {
	if len(cfg.Processors) == 0 {
		return nil, fmt.Errorf("%w: pipeline has no processors", domain.ErrInvalidInput)
	}

	pipeline := NewPipeline()
	for _, name := range cfg.Processors {
		proc, err := r.Build(name, cfg.GetProcessorConfig(name))
		if err != nil {
			return nil, err
		}
		pipeline.Add(proc)
	}
	return pipeline, nil
}

// buildChunker creates a chunker processor from generic config.
// Supported config keys:
//   - max_tokens (int): Tokens per chunk (default: 256)
//   - overlap_tokens (int): Tokens repeated from the previous chunk (default: 48)
func buildChunker(cfg map[string]any) (driven.PostProcessor, error) {
	var opts []chunker.Option

	if size, ok := getIntFromConfig(cfg, "max_tokens"); ok {
		opts = append(opts, chunker.WithMaxTokens(size))
	}
	if overlap, ok := getIntFromConfig(cfg, "overlap_tokens"); ok {
		opts = append(opts, chunker.WithOverlap(overlap))
	}

	p := chunker.New(opts...)
	if p.MaxTokens() <= 0 || p.OverlapTokens() < 0 || p.OverlapTokens() >= p.MaxTokens() {
		return nil, fmt.Errorf("%w: chunker max_tokens=%d overlap_tokens=%d",
			domain.ErrInvalidInput, p.MaxTokens(), p.OverlapTokens())
	}
	return p, nil
}

// getIntFromConfig safely extracts an int from generic config map.
// Handles int, int64, and float64 types that may come from TOML/JSON parsing.
func getIntFromConfig(cfg map[string]any, key string) (int, bool) {
	val, ok := cfg[key]
	if !ok {
		return 0, false
	}

	switch v := val.(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	default:
		return 0, false
	}
}
