package domain

import "time"

const unknownDescription = "Unknown"

// AIProvider identifies an AI service provider for embeddings or LLM.
type AIProvider string

// Available AI providers.
const (
	// AIProviderOllama is local Ollama instance.
	AIProviderOllama AIProvider = "ollama"

	// AIProviderOpenAI is OpenAI cloud API.
	AIProviderOpenAI AIProvider = "openai"

	// AIProviderAnthropic is Anthropic cloud API.
	AIProviderAnthropic AIProvider = "anthropic"

	// AIProviderGemini is Google Gemini API.
	AIProviderGemini AIProvider = "gemini"

	// AIProviderHash is the built-in feature-hashing embedder.
	// Embeddings only; needs no network access.
	AIProviderHash AIProvider = "hash"
)

// IsValid returns true if the AI provider is recognised.
func (p AIProvider) IsValid() bool {
	switch p {
	case AIProviderOllama, AIProviderOpenAI, AIProviderAnthropic, AIProviderGemini, AIProviderHash:
		return true
	default:
		return false
	}
}

// RequiresAPIKey returns true if this provider needs an API key.
func (p AIProvider) RequiresAPIKey() bool {
	return p == AIProviderOpenAI || p == AIProviderAnthropic || p == AIProviderGemini
}

// IsLocal returns true if this provider runs locally.
func (p AIProvider) IsLocal() bool {
	return p == AIProviderOllama || p == AIProviderHash
}

// String returns the string representation.
func (p AIProvider) String() string {
	return string(p)
}

// Description returns a human-readable description of the provider.
func (p AIProvider) Description() string {
	switch p {
	case AIProviderOllama:
		return "Ollama (local)"
	case AIProviderOpenAI:
		return "OpenAI (cloud)"
	case AIProviderAnthropic:
		return "Anthropic (cloud)"
	case AIProviderGemini:
		return "Google Gemini (cloud)"
	case AIProviderHash:
		return "Feature hashing (built-in, offline)"
	default:
		return unknownDescription
	}
}

// VectorBackend identifies a vector index implementation.
type VectorBackend string

// Available vector backends.
const (
	// VectorBackendMemory keeps vectors in process memory.
	VectorBackendMemory VectorBackend = "memory"

	// VectorBackendSQLite persists vectors in the local SQLite database.
	VectorBackendSQLite VectorBackend = "sqlite"

	// VectorBackendQdrant stores vectors in a Qdrant collection.
	VectorBackendQdrant VectorBackend = "qdrant"
)

// IsValid returns true if the backend is recognised.
func (b VectorBackend) IsValid() bool {
	switch b {
	case VectorBackendMemory, VectorBackendSQLite, VectorBackendQdrant:
		return true
	default:
		return false
	}
}

// String returns the string representation.
func (b VectorBackend) String() string {
	return string(b)
}

// Description returns a human-readable description of the backend.
func (b VectorBackend) Description() string {
	switch b {
	case VectorBackendMemory:
		return "In memory (lost on exit)"
	case VectorBackendSQLite:
		return "SQLite (local file)"
	case VectorBackendQdrant:
		return "Qdrant (server)"
	default:
		return unknownDescription
	}
}

// AllVectorBackends returns every supported vector backend.
func AllVectorBackends() []VectorBackend {
	return []VectorBackend{VectorBackendSQLite, VectorBackendMemory, VectorBackendQdrant}
}

// EmbeddingSettings holds embedding provider configuration.
type EmbeddingSettings struct {
	// Provider is the embedding service provider.
	Provider AIProvider `validate:"required"`

	// Model is the embedding model name.
	Model string

	// BaseURL is the API endpoint (for Ollama or OpenAI-compatible gateways).
	BaseURL string `validate:"omitempty,url"`

	// APIKey is the API key (for OpenAI/Gemini).
	APIKey string

	// Dimensions is the output vector size. Zero uses the model default.
	Dimensions int `validate:"gte=0"`

	// BatchSize is the number of texts sent per backend call.
	BatchSize int `validate:"gte=1,lte=2048"`

	// MaxInputTokens is the per-text token limit. Longer texts are rejected.
	MaxInputTokens int `validate:"gte=1"`

	// RatePerSecond throttles backend calls. Zero disables throttling.
	RatePerSecond float64 `validate:"gte=0"`

	// Timeout bounds a single backend call.
	Timeout time.Duration `validate:"gte=0"`
}

// IsConfigured returns true if the embedding provider is set up.
func (e EmbeddingSettings) IsConfigured() bool {
	if !e.Provider.IsValid() || e.Provider == AIProviderAnthropic {
		return false
	}
	if e.Provider.RequiresAPIKey() && e.APIKey == "" {
		return false
	}
	return true
}

// LLMSettings holds LLM provider configuration.
type LLMSettings struct {
	// Provider is the LLM service provider.
	Provider AIProvider `validate:"required"`

	// Model is the LLM model name.
	Model string

	// BaseURL is the API endpoint (for Ollama).
	BaseURL string `validate:"omitempty,url"`

	// APIKey is the API key (for OpenAI/Anthropic/Gemini).
	APIKey string

	// Timeout bounds a single generation attempt.
	Timeout time.Duration `validate:"gte=0"`
}

// IsConfigured returns true if the LLM provider is set up.
func (l LLMSettings) IsConfigured() bool {
	if !l.Provider.IsValid() || l.Provider == AIProviderHash {
		return false
	}
	if l.Provider.RequiresAPIKey() && l.APIKey == "" {
		return false
	}
	return true
}

// VectorIndexSettings holds vector index configuration.
type VectorIndexSettings struct {
	// Backend selects the index implementation.
	Backend VectorBackend `validate:"required"`

	// Dimensions is the embedding vector size.
	Dimensions int `validate:"gte=1"`

	// URL is the Qdrant gRPC endpoint (host:port).
	URL string

	// APIKey authenticates against Qdrant Cloud.
	APIKey string

	// Collection is the Qdrant collection name.
	Collection string
}

// ChunkingSettings controls how documents are split.
type ChunkingSettings struct {
	// MaxTokens is the upper bound per chunk.
	MaxTokens int `validate:"gte=1"`

	// OverlapTokens is the overlap carried from the previous chunk.
	OverlapTokens int `validate:"gte=0,ltfield=MaxTokens"`
}

// RetrievalSettings controls passage retrieval.
type RetrievalSettings struct {
	// TopK is the number of passages fed to the generator.
	TopK int `validate:"gte=1,lte=100"`

	// ScoreThreshold drops passages below this similarity.
	ScoreThreshold float64 `validate:"gte=-1,lte=1"`

	// OversampleFactor multiplies TopK when querying the index.
	OversampleFactor int `validate:"gte=1,lte=20"`

	// DedupeByDocument keeps only the best chunk per document.
	DedupeByDocument bool
}

// GenerationSettings controls answer generation.
type GenerationSettings struct {
	// Temperature is the sampling temperature.
	Temperature float64 `validate:"gte=0,lte=2"`

	// MaxTokens caps the completion length.
	MaxTokens int `validate:"gte=0"`

	// MaxContextTokens is the token budget for retrieved context.
	MaxContextTokens int `validate:"gte=1"`
}

// IngestSettings controls ingestion batches.
type IngestSettings struct {
	// Concurrency is the number of documents processed in parallel.
	Concurrency int `validate:"gte=1,lte=64"`
}

// RetrySettings controls retries of backend calls.
type RetrySettings struct {
	// MaxAttempts includes the first attempt.
	MaxAttempts int `validate:"gte=1,lte=10"`

	// BaseDelay is the delay before the second attempt.
	BaseDelay time.Duration `validate:"gte=0"`

	// MaxDelay caps the backoff.
	MaxDelay time.Duration `validate:"gtefield=BaseDelay"`

	// Jitter is the +/- fraction applied to each delay.
	Jitter float64 `validate:"gte=0,lte=1"`
}

// AppSettings holds all application settings.
type AppSettings struct {
	// Embedding holds embedding provider settings.
	Embedding EmbeddingSettings

	// LLM holds LLM provider settings.
	LLM LLMSettings

	// VectorIndex holds vector index settings.
	VectorIndex VectorIndexSettings

	// Chunking holds chunker settings.
	Chunking ChunkingSettings

	// Retrieval holds retriever settings.
	Retrieval RetrievalSettings

	// Generation holds generator settings.
	Generation GenerationSettings

	// Ingest holds ingestion settings.
	Ingest IngestSettings

	// Retry holds backend retry settings.
	Retry RetrySettings
}

// Default values applied when the config file is silent.
const (
	DefaultChunkMaxTokens       = 256
	DefaultChunkOverlapTokens   = 48
	DefaultEmbeddingBatchSize   = 64
	DefaultEmbeddingTokenLimit  = 8191
	DefaultTopK                 = 5
	DefaultOversampleFactor     = 3
	DefaultTemperature          = 0.5
	DefaultMaxContextTokens     = 3000
	DefaultIngestConcurrency    = 4
	DefaultRetryAttempts        = 3
	DefaultRetryBaseDelay       = time.Second
	DefaultRetryMaxDelay        = 30 * time.Second
	DefaultRetryJitter          = 0.2
	DefaultLLMTimeout           = 60 * time.Second
	DefaultEmbeddingTimeout     = 30 * time.Second
	DefaultQdrantCollection     = "mira"
	DefaultHashEmbedDimensions  = 512
	DefaultVectorIndexDimension = 1536
)

// DefaultAppSettings returns settings with sensible defaults.
// Providers are left unset; the settings service fills them from
// configuration and the environment.
func DefaultAppSettings() AppSettings {
	return AppSettings{
		Embedding: EmbeddingSettings{
			BatchSize:      DefaultEmbeddingBatchSize,
			MaxInputTokens: DefaultEmbeddingTokenLimit,
			Timeout:        DefaultEmbeddingTimeout,
		},
		LLM: LLMSettings{
			Timeout: DefaultLLMTimeout,
		},
		VectorIndex: VectorIndexSettings{
			Backend:    VectorBackendSQLite,
			Dimensions: DefaultVectorIndexDimension,
			Collection: DefaultQdrantCollection,
		},
		Chunking: ChunkingSettings{
			MaxTokens:     DefaultChunkMaxTokens,
			OverlapTokens: DefaultChunkOverlapTokens,
		},
		Retrieval: RetrievalSettings{
			TopK:             DefaultTopK,
			OversampleFactor: DefaultOversampleFactor,
			DedupeByDocument: true,
		},
		Generation: GenerationSettings{
			Temperature:      DefaultTemperature,
			MaxContextTokens: DefaultMaxContextTokens,
		},
		Ingest: IngestSettings{
			Concurrency: DefaultIngestConcurrency,
		},
		Retry: RetrySettings{
			MaxAttempts: DefaultRetryAttempts,
			BaseDelay:   DefaultRetryBaseDelay,
			MaxDelay:    DefaultRetryMaxDelay,
			Jitter:      DefaultRetryJitter,
		},
	}
}

// AllEmbeddingProviders returns providers that support embeddings.
func AllEmbeddingProviders() []AIProvider {
	return []AIProvider{
		AIProviderOpenAI,
		AIProviderGemini,
		AIProviderOllama,
		AIProviderHash,
	}
}

// AllLLMProviders returns providers that support LLM operations.
func AllLLMProviders() []AIProvider {
	return []AIProvider{
		AIProviderOpenAI,
		AIProviderAnthropic,
		AIProviderGemini,
		AIProviderOllama,
	}
}

// DefaultEmbeddingModels returns default models for each embedding provider.
func DefaultEmbeddingModels() map[AIProvider]string {
	return map[AIProvider]string{
		AIProviderOllama: "nomic-embed-text",
		AIProviderOpenAI: "text-embedding-3-small",
		AIProviderGemini: "text-embedding-004",
		AIProviderHash:   "hash-v1",
	}
}

// DefaultLLMModels returns default models for each LLM provider.
func DefaultLLMModels() map[AIProvider]string {
	return map[AIProvider]string{
		AIProviderOllama:    "llama3.2",
		AIProviderOpenAI:    "gpt-4o",
		AIProviderAnthropic: "claude-sonnet-4-5",
		AIProviderGemini:    "gemini-2.5-flash",
	}
}

// EmbeddingDimensions returns the vector dimensions for known models.
func EmbeddingDimensions() map[string]int {
	return map[string]int{
		// Ollama models
		"nomic-embed-text":  768,
		"mxbai-embed-large": 1024,
		"all-minilm":        384,
		// OpenAI models
		"text-embedding-3-small": 1536,
		"text-embedding-3-large": 3072,
		"text-embedding-ada-002": 1536,
		// Gemini models
		"text-embedding-004":   768,
		"gemini-embedding-001": 3072,
		// Built-in
		"hash-v1": DefaultHashEmbedDimensions,
	}
}

// ResolveDimensions returns the configured dimension, or the known
// default for the model, or zero when neither is available.
func (e EmbeddingSettings) ResolveDimensions() int {
	if e.Dimensions > 0 {
		return e.Dimensions
	}
	return EmbeddingDimensions()[e.Model]
}

// PipelineConfig holds post-processor pipeline configuration.
// Uses generic map-based config for extensibility - new processors can be added
// without modifying this struct.
type PipelineConfig struct {
	// Processors is the ordered list of processor names to run.
	Processors []string

	// ProcessorConfigs holds per-processor configuration as generic maps.
	// Key is processor name, value is processor-specific config.
	ProcessorConfigs map[string]map[string]any
}

// GetProcessorConfig returns config for a specific processor, or nil if not set.
func (c *PipelineConfig) GetProcessorConfig(name string) map[string]any {
	if c.ProcessorConfigs == nil {
		return nil
	}
	return c.ProcessorConfigs[name]
}

// PipelineConfigFor returns the pipeline configuration derived from chunking settings.
func PipelineConfigFor(c ChunkingSettings) PipelineConfig {
	return PipelineConfig{
		Processors: []string{"chunker"},
		ProcessorConfigs: map[string]map[string]any{
			"chunker": {
				"max_tokens":     c.MaxTokens,
				"overlap_tokens": c.OverlapTokens,
			},
		},
	}
}

// DefaultPipelineConfig returns the default pipeline configuration.
// Works out-of-the-box with chunker using sensible defaults.
func DefaultPipelineConfig() PipelineConfig {
	return PipelineConfigFor(DefaultAppSettings().Chunking)
}
