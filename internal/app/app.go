// Package app wires settings, adapters and core services into a runnable
// application.
package app

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/custodia-labs/mira/internal/adapters/driven/ai"
	"github.com/custodia-labs/mira/internal/adapters/driven/config/file"
	"github.com/custodia-labs/mira/internal/adapters/driven/storage/memory"
	"github.com/custodia-labs/mira/internal/adapters/driven/storage/sqlite"
	"github.com/custodia-labs/mira/internal/adapters/driven/vector/qdrant"
	"github.com/custodia-labs/mira/internal/core/domain"
	"github.com/custodia-labs/mira/internal/core/ports/driven"
	"github.com/custodia-labs/mira/internal/core/services"
	"github.com/custodia-labs/mira/internal/logger"
	"github.com/custodia-labs/mira/internal/postprocessors"
	"github.com/custodia-labs/mira/internal/retry"
)

// Options configures New.
type Options struct {
	// Dir is the mira home directory holding config.toml, prompts and data.
	// Empty uses file.DefaultDir().
	Dir string
}

// App holds the application components.
type App struct {
	Settings *services.SettingsService

	// Ingest and Retriever are nil when no embedding provider is usable.
	Ingest    *services.IngestService
	Retriever *services.Retriever

	// Query is additionally nil when no LLM provider is usable.
	Query *services.QueryService

	// Unavailable explains why Ingest, Retriever or Query are nil.
	Unavailable error

	closers []func() error
}

// New builds the application. Only an unreadable configuration is an error:
// when providers or storage are unusable the affected services stay nil and
// Unavailable says why, so settings commands keep working.
func New(ctx context.Context, opts Options) (*App, error) {
	dir := opts.Dir
	if dir == "" {
		d, err := file.DefaultDir()
		if err != nil {
			return nil, fmt.Errorf("resolving mira home: %w", err)
		}
		dir = d
	}

	configStore, err := file.NewConfigStore(dir)
	if err != nil {
		return nil, fmt.Errorf("opening config: %w", err)
	}

	settingsService := services.NewSettingsService(configStore, ai.NewConfigValidator())
	a := &App{Settings: settingsService}

	settings, err := settingsService.Get()
	if err != nil {
		return nil, fmt.Errorf("loading settings: %w", err)
	}

	if err := a.build(ctx, dir, settings); err != nil {
		_ = a.Close()
		a.Ingest, a.Retriever, a.Query = nil, nil, nil
		a.Unavailable = err
		logger.Debug("pipelines unavailable: %v", err)
	}
	return a, nil
}

// build creates the ingestion and query pipelines. Ingest and Retriever are
// kept when only the LLM is missing.
func (a *App) build(ctx context.Context, dir string, settings *domain.AppSettings) error {
	if !settings.Embedding.IsConfigured() {
		return fmt.Errorf("%w: no usable embedding provider, run 'mira settings embedding'", domain.ErrInvalidInput)
	}

	embedBackend, err := ai.CreateEmbeddingService(&settings.Embedding)
	if err != nil {
		return fmt.Errorf("embedding provider: %w", err)
	}
	a.closers = append(a.closers, embedBackend.Close)

	embedder := services.NewEmbedder(embedBackend, services.EmbedderConfig{
		BatchSize:      settings.Embedding.BatchSize,
		MaxInputTokens: settings.Embedding.MaxInputTokens,
		RatePerSecond:  settings.Embedding.RatePerSecond,
		Retry:          retry.FromSettings("embed", settings.Retry, settings.Embedding.Timeout),
	})

	index, docStore, err := a.openStorage(ctx, dir, settings.VectorIndex, embedder.Dimensions())
	if err != nil {
		return err
	}

	registry := postprocessors.NewRegistry()
	if err := postprocessors.RegisterDefaults(registry); err != nil {
		return fmt.Errorf("registering processors: %w", err)
	}
	pipeline, err := postprocessors.BuildPipeline(registry, domain.PipelineConfigFor(settings.Chunking))
	if err != nil {
		return fmt.Errorf("building pipeline: %w", err)
	}

	a.Ingest = services.NewIngestService(pipeline, embedder, index, docStore, services.IngestConfig{
		Concurrency: settings.Ingest.Concurrency,
		Fingerprint: Fingerprint(settings.Chunking, embedder.ModelName(), embedder.Dimensions()),
		Retry:       retry.FromSettings("vector upsert", settings.Retry, 0),
	})
	a.Retriever = services.NewRetriever(embedder, index, services.RetrieverConfig{
		TopK:             settings.Retrieval.TopK,
		OversampleFactor: settings.Retrieval.OversampleFactor,
		DedupeByDocument: settings.Retrieval.DedupeByDocument,
		Retry:            retry.FromSettings("vector query", settings.Retry, 0),
	})

	if !settings.LLM.IsConfigured() {
		a.Unavailable = fmt.Errorf("%w: no usable LLM provider, run 'mira settings llm'", domain.ErrInvalidInput)
		return nil
	}
	llm, err := ai.CreateLLMService(&settings.LLM)
	if err != nil {
		a.Unavailable = fmt.Errorf("LLM provider: %w", err)
		return nil
	}
	a.closers = append(a.closers, llm.Close)

	prompts, err := file.NewPromptStore(filepath.Join(dir, "prompts"))
	if err != nil {
		return fmt.Errorf("opening prompts: %w", err)
	}
	assembler := services.NewContextAssembler()
	assembler.SetPromptStore(prompts)

	generator := services.NewGenerator(llm, services.GeneratorConfig{
		Retry: retry.FromSettings("generate", settings.Retry, settings.LLM.Timeout),
	})
	a.Query = services.NewQueryService(embedder, a.Retriever, assembler, generator, services.QueryConfig{
		TopK:             settings.Retrieval.TopK,
		ScoreThreshold:   settings.Retrieval.ScoreThreshold,
		MaxContextTokens: settings.Generation.MaxContextTokens,
		Generation: domain.GenerationParams{
			Temperature: settings.Generation.Temperature,
			MaxTokens:   settings.Generation.MaxTokens,
		},
	})

	logger.Debug("app ready: embedding=%s llm=%s index=%s",
		embedder.ModelName(), llm.ModelName(), settings.VectorIndex.Backend)
	return nil
}

// openStorage opens the vector index and document store for backend.
// The memory backend keeps both in process; the others record documents
// in the local SQLite database.
func (a *App) openStorage(
	ctx context.Context,
	dir string,
	cfg domain.VectorIndexSettings,
	dims int,
) (driven.VectorIndex, driven.DocumentStore, error) {
	if cfg.Backend == domain.VectorBackendMemory {
		return memory.NewVectorIndex(dims), memory.NewDocumentStore(), nil
	}

	store, err := sqlite.NewStore(filepath.Join(dir, "data"))
	if err != nil {
		return nil, nil, fmt.Errorf("opening database: %w", err)
	}
	a.closers = append(a.closers, store.Close)

	switch cfg.Backend {
	case domain.VectorBackendQdrant:
		index, err := qdrant.NewVectorIndex(ctx, qdrant.Config{
			URL:        cfg.URL,
			APIKey:     cfg.APIKey,
			Collection: cfg.Collection,
			Dimensions: dims,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("opening qdrant index: %w", err)
		}
		a.closers = append(a.closers, index.Close)
		return index, store.DocumentStore(), nil

	default:
		index, err := store.VectorIndex(ctx, dims)
		if err != nil {
			return nil, nil, fmt.Errorf("opening vector index: %w", err)
		}
		return index, store.DocumentStore(), nil
	}
}

// Close releases adapters in reverse order of creation.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

// Fingerprint identifies the chunking parameters and embedding model a
// document was indexed with.
func Fingerprint(chunking domain.ChunkingSettings, model string, dims int) string {
	return fmt.Sprintf("chunk=%d/%d;model=%s;dims=%d", chunking.MaxTokens, chunking.OverlapTokens, model, dims)
}
