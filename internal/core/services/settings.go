package services

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/custodia-labs/mira/internal/core/domain"
	"github.com/custodia-labs/mira/internal/core/ports/driven"
	"github.com/custodia-labs/mira/internal/core/ports/driving"
)

// Ensure SettingsService implements the interface.
var _ driving.SettingsService = (*SettingsService)(nil)

// Config keys for settings storage.
//
//nolint:gosec // G101: These are config key names, not actual credentials.
const (
	keyEmbedProvider   = "embedding.provider"
	keyEmbedModel      = "embedding.model"
	keyEmbedBaseURL    = "embedding.base_url"
	keyEmbedAPIKey     = "embedding.api_key"
	keyEmbedDims       = "embedding.dimensions"
	keyEmbedBatchSize  = "embedding.batch_size"
	keyEmbedMaxTokens  = "embedding.max_input_tokens"
	keyEmbedRate       = "embedding.rate_per_second"
	keyEmbedTimeout    = "embedding.timeout"
	keyLLMProvider     = "llm.provider"
	keyLLMModel        = "llm.model"
	keyLLMBaseURL      = "llm.base_url"
	keyLLMAPIKey       = "llm.api_key"
	keyLLMTimeout      = "llm.timeout"
	keyVectorBackend   = "vector_index.backend"
	keyVectorDims      = "vector_index.dimensions"
	keyVectorURL       = "vector_index.url"
	keyVectorAPIKey    = "vector_index.api_key"
	keyVectorColl      = "vector_index.collection"
	keyChunkMaxTokens  = "chunking.max_tokens"
	keyChunkOverlap    = "chunking.overlap_tokens"
	keyRetrievalTopK   = "retrieval.top_k"
	keyRetrievalThresh = "retrieval.score_threshold"
	keyRetrievalOver   = "retrieval.oversample_factor"
	keyRetrievalDedupe = "retrieval.dedupe_by_document"
	keyGenTemperature  = "generation.temperature"
	keyGenMaxTokens    = "generation.max_tokens"
	keyGenMaxContext   = "generation.max_context_tokens"
	keyIngestConc      = "ingest.concurrency"
	keyRetryAttempts   = "retry.max_attempts"
	keyRetryBase       = "retry.base_delay"
	keyRetryMax        = "retry.max_delay"
	keyRetryJitter     = "retry.jitter"
)

// Environment variables consulted by Get. Provider keys fill in an empty
// api_key for the matching provider; MIRA_* variables override the file.
//
//nolint:gosec // G101: These are environment variable names.
const (
	EnvOpenAIKey         = "OPENAI_API_KEY"
	EnvAnthropicKey      = "ANTHROPIC_API_KEY"
	EnvGeminiKey         = "GEMINI_API_KEY"
	EnvGoogleKey         = "GOOGLE_API_KEY"
	EnvOllamaHost        = "OLLAMA_HOST"
	EnvQdrantURL         = "QDRANT_URL"
	EnvQdrantAPIKey      = "QDRANT_API_KEY"
	EnvEmbeddingProvider = "MIRA_EMBEDDING_PROVIDER"
	EnvEmbeddingModel    = "MIRA_EMBEDDING_MODEL"
	EnvLLMProvider       = "MIRA_LLM_PROVIDER"
	EnvLLMModel          = "MIRA_LLM_MODEL"
	EnvVectorBackend     = "MIRA_VECTOR_BACKEND"
)

const defaultOllamaURL = "http://localhost:11434"

// SettingsService manages application settings.
type SettingsService struct {
	configStore driven.ConfigStore
	aiValidator driven.AIConfigValidator
	validate    *validator.Validate
	lookupEnv   func(string) (string, bool)
}

// NewSettingsService creates a new settings service.
func NewSettingsService(configStore driven.ConfigStore, aiValidator driven.AIConfigValidator) *SettingsService {
	return &SettingsService{
		configStore: configStore,
		aiValidator: aiValidator,
		validate:    validator.New(validator.WithRequiredStructEnabled()),
		lookupEnv:   os.LookupEnv,
	}
}

// Get retrieves current application settings.
func (s *SettingsService) Get() (*domain.AppSettings, error) {
	d := domain.DefaultAppSettings()

	settings := &domain.AppSettings{
		Embedding: domain.EmbeddingSettings{
			Provider:       s.getProvider(keyEmbedProvider, d.Embedding.Provider),
			Model:          s.getString(keyEmbedModel, d.Embedding.Model),
			BaseURL:        s.configStore.GetString(keyEmbedBaseURL),
			APIKey:         s.configStore.GetString(keyEmbedAPIKey),
			Dimensions:     s.getInt(keyEmbedDims, d.Embedding.Dimensions),
			BatchSize:      s.getInt(keyEmbedBatchSize, d.Embedding.BatchSize),
			MaxInputTokens: s.getInt(keyEmbedMaxTokens, d.Embedding.MaxInputTokens),
			RatePerSecond:  s.getFloat(keyEmbedRate, d.Embedding.RatePerSecond),
			Timeout:        s.getDuration(keyEmbedTimeout, d.Embedding.Timeout),
		},
		LLM: domain.LLMSettings{
			Provider: s.getProvider(keyLLMProvider, d.LLM.Provider),
			Model:    s.getString(keyLLMModel, d.LLM.Model),
			BaseURL:  s.configStore.GetString(keyLLMBaseURL),
			APIKey:   s.configStore.GetString(keyLLMAPIKey),
			Timeout:  s.getDuration(keyLLMTimeout, d.LLM.Timeout),
		},
		VectorIndex: domain.VectorIndexSettings{
			Backend:    s.getBackend(d.VectorIndex.Backend),
			Dimensions: s.getInt(keyVectorDims, 0),
			URL:        s.configStore.GetString(keyVectorURL),
			APIKey:     s.configStore.GetString(keyVectorAPIKey),
			Collection: s.getString(keyVectorColl, d.VectorIndex.Collection),
		},
		Chunking: domain.ChunkingSettings{
			MaxTokens:     s.getInt(keyChunkMaxTokens, d.Chunking.MaxTokens),
			OverlapTokens: s.getIntAllowZero(keyChunkOverlap, d.Chunking.OverlapTokens),
		},
		Retrieval: domain.RetrievalSettings{
			TopK:             s.getInt(keyRetrievalTopK, d.Retrieval.TopK),
			ScoreThreshold:   s.getFloat(keyRetrievalThresh, d.Retrieval.ScoreThreshold),
			OversampleFactor: s.getInt(keyRetrievalOver, d.Retrieval.OversampleFactor),
			DedupeByDocument: s.getBool(keyRetrievalDedupe, d.Retrieval.DedupeByDocument),
		},
		Generation: domain.GenerationSettings{
			Temperature:      s.getFloat(keyGenTemperature, d.Generation.Temperature),
			MaxTokens:        s.getInt(keyGenMaxTokens, d.Generation.MaxTokens),
			MaxContextTokens: s.getInt(keyGenMaxContext, d.Generation.MaxContextTokens),
		},
		Ingest: domain.IngestSettings{
			Concurrency: s.getInt(keyIngestConc, d.Ingest.Concurrency),
		},
		Retry: domain.RetrySettings{
			MaxAttempts: s.getInt(keyRetryAttempts, d.Retry.MaxAttempts),
			BaseDelay:   s.getDuration(keyRetryBase, d.Retry.BaseDelay),
			MaxDelay:    s.getDuration(keyRetryMax, d.Retry.MaxDelay),
			Jitter:      s.getFloat(keyRetryJitter, d.Retry.Jitter),
		},
	}

	s.applyEnv(settings)

	if settings.Embedding.Model == "" {
		settings.Embedding.Model = domain.DefaultEmbeddingModels()[settings.Embedding.Provider]
	}
	if settings.LLM.Model == "" {
		settings.LLM.Model = domain.DefaultLLMModels()[settings.LLM.Provider]
	}
	if settings.Embedding.Provider == domain.AIProviderOllama && settings.Embedding.BaseURL == "" {
		settings.Embedding.BaseURL = defaultOllamaURL
	}
	if settings.LLM.Provider == domain.AIProviderOllama && settings.LLM.BaseURL == "" {
		settings.LLM.BaseURL = defaultOllamaURL
	}
	if settings.VectorIndex.Dimensions == 0 {
		settings.VectorIndex.Dimensions = settings.Embedding.ResolveDimensions()
	}
	if settings.VectorIndex.Dimensions == 0 {
		settings.VectorIndex.Dimensions = d.VectorIndex.Dimensions
	}

	return settings, nil
}

// applyEnv overlays environment variables on settings.
func (s *SettingsService) applyEnv(settings *domain.AppSettings) {
	if v := s.env(EnvEmbeddingProvider); v != "" {
		settings.Embedding.Provider = domain.AIProvider(v)
	}
	if v := s.env(EnvEmbeddingModel); v != "" {
		settings.Embedding.Model = v
	}
	if v := s.env(EnvLLMProvider); v != "" {
		settings.LLM.Provider = domain.AIProvider(v)
	}
	if v := s.env(EnvLLMModel); v != "" {
		settings.LLM.Model = v
	}
	if v := s.env(EnvVectorBackend); v != "" {
		settings.VectorIndex.Backend = domain.VectorBackend(v)
	}
	if v := s.env(EnvQdrantURL); v != "" {
		settings.VectorIndex.URL = v
	}
	if v := s.env(EnvQdrantAPIKey); v != "" {
		settings.VectorIndex.APIKey = v
	}

	// An unset provider is inferred from whichever cloud key is present.
	if settings.Embedding.Provider == "" {
		for _, p := range []domain.AIProvider{domain.AIProviderOpenAI, domain.AIProviderGemini} {
			if s.providerKey(p) != "" {
				settings.Embedding.Provider = p
				break
			}
		}
	}
	if settings.LLM.Provider == "" {
		for _, p := range []domain.AIProvider{
			domain.AIProviderOpenAI, domain.AIProviderAnthropic, domain.AIProviderGemini,
		} {
			if s.providerKey(p) != "" {
				settings.LLM.Provider = p
				break
			}
		}
	}

	if settings.Embedding.APIKey == "" {
		settings.Embedding.APIKey = s.providerKey(settings.Embedding.Provider)
	}
	if settings.LLM.APIKey == "" {
		settings.LLM.APIKey = s.providerKey(settings.LLM.Provider)
	}
	if host := s.env(EnvOllamaHost); host != "" {
		if !strings.Contains(host, "://") {
			host = "http://" + host
		}
		if settings.Embedding.Provider == domain.AIProviderOllama && settings.Embedding.BaseURL == "" {
			settings.Embedding.BaseURL = host
		}
		if settings.LLM.Provider == domain.AIProviderOllama && settings.LLM.BaseURL == "" {
			settings.LLM.BaseURL = host
		}
	}
}

// providerKey returns the API key exported for provider, if any.
func (s *SettingsService) providerKey(provider domain.AIProvider) string {
	switch provider {
	case domain.AIProviderOpenAI:
		return s.env(EnvOpenAIKey)
	case domain.AIProviderAnthropic:
		return s.env(EnvAnthropicKey)
	case domain.AIProviderGemini:
		if v := s.env(EnvGeminiKey); v != "" {
			return v
		}
		return s.env(EnvGoogleKey)
	default:
		return ""
	}
}

func (s *SettingsService) env(name string) string {
	v, _ := s.lookupEnv(name)
	return strings.TrimSpace(v)
}

// Save persists application settings.
func (s *SettingsService) Save(settings *domain.AppSettings) error {
	values := []struct {
		key   string
		value any
	}{
		{keyEmbedProvider, settings.Embedding.Provider.String()},
		{keyEmbedModel, settings.Embedding.Model},
		{keyEmbedBaseURL, settings.Embedding.BaseURL},
		{keyEmbedDims, settings.Embedding.Dimensions},
		{keyEmbedBatchSize, settings.Embedding.BatchSize},
		{keyEmbedMaxTokens, settings.Embedding.MaxInputTokens},
		{keyEmbedRate, settings.Embedding.RatePerSecond},
		{keyEmbedTimeout, settings.Embedding.Timeout.String()},
		{keyLLMProvider, settings.LLM.Provider.String()},
		{keyLLMModel, settings.LLM.Model},
		{keyLLMBaseURL, settings.LLM.BaseURL},
		{keyLLMTimeout, settings.LLM.Timeout.String()},
		{keyVectorBackend, settings.VectorIndex.Backend.String()},
		{keyVectorDims, settings.VectorIndex.Dimensions},
		{keyVectorURL, settings.VectorIndex.URL},
		{keyVectorColl, settings.VectorIndex.Collection},
		{keyChunkMaxTokens, settings.Chunking.MaxTokens},
		{keyChunkOverlap, settings.Chunking.OverlapTokens},
		{keyRetrievalTopK, settings.Retrieval.TopK},
		{keyRetrievalThresh, settings.Retrieval.ScoreThreshold},
		{keyRetrievalOver, settings.Retrieval.OversampleFactor},
		{keyRetrievalDedupe, settings.Retrieval.DedupeByDocument},
		{keyGenTemperature, settings.Generation.Temperature},
		{keyGenMaxTokens, settings.Generation.MaxTokens},
		{keyGenMaxContext, settings.Generation.MaxContextTokens},
		{keyIngestConc, settings.Ingest.Concurrency},
		{keyRetryAttempts, settings.Retry.MaxAttempts},
		{keyRetryBase, settings.Retry.BaseDelay.String()},
		{keyRetryMax, settings.Retry.MaxDelay.String()},
		{keyRetryJitter, settings.Retry.Jitter},
	}
	for _, v := range values {
		if err := s.configStore.Set(v.key, v.value); err != nil {
			return fmt.Errorf("save %s: %w", v.key, err)
		}
	}

	// Secrets are only written when explicitly provided.
	secrets := map[string]string{
		keyEmbedAPIKey:  settings.Embedding.APIKey,
		keyLLMAPIKey:    settings.LLM.APIKey,
		keyVectorAPIKey: settings.VectorIndex.APIKey,
	}
	for key, value := range secrets {
		if value == "" {
			continue
		}
		if err := s.configStore.Set(key, value); err != nil {
			return fmt.Errorf("save %s: %w", key, err)
		}
	}

	return nil
}

// SetEmbeddingProvider configures the embedding provider.
func (s *SettingsService) SetEmbeddingProvider(provider domain.AIProvider, model, apiKey string) error {
	if !provider.IsValid() {
		return fmt.Errorf("invalid embedding provider: %s", provider)
	}
	if !slices.Contains(domain.AllEmbeddingProviders(), provider) {
		return fmt.Errorf("provider %s does not support embeddings", provider)
	}
	if provider.RequiresAPIKey() && apiKey == "" && s.providerKey(provider) == "" {
		return fmt.Errorf("API key required for %s", provider)
	}

	settings, err := s.Get()
	if err != nil {
		return err
	}

	settings.Embedding.Provider = provider
	if model != "" {
		settings.Embedding.Model = model
	} else {
		settings.Embedding.Model = domain.DefaultEmbeddingModels()[provider]
	}

	if provider.IsLocal() {
		if settings.Embedding.BaseURL == "" && provider == domain.AIProviderOllama {
			settings.Embedding.BaseURL = defaultOllamaURL
		}
	} else {
		settings.Embedding.BaseURL = ""
	}
	settings.Embedding.APIKey = apiKey

	// A new model invalidates any explicit dimension.
	settings.Embedding.Dimensions = 0
	if d := settings.Embedding.ResolveDimensions(); d > 0 {
		settings.VectorIndex.Dimensions = d
	}

	return s.Save(settings)
}

// SetLLMProvider configures the LLM provider.
func (s *SettingsService) SetLLMProvider(provider domain.AIProvider, model, apiKey string) error {
	if !provider.IsValid() {
		return fmt.Errorf("invalid LLM provider: %s", provider)
	}
	if !slices.Contains(domain.AllLLMProviders(), provider) {
		return fmt.Errorf("provider %s does not support text generation", provider)
	}
	if provider.RequiresAPIKey() && apiKey == "" && s.providerKey(provider) == "" {
		return fmt.Errorf("API key required for %s", provider)
	}

	settings, err := s.Get()
	if err != nil {
		return err
	}

	settings.LLM.Provider = provider
	if model != "" {
		settings.LLM.Model = model
	} else {
		settings.LLM.Model = domain.DefaultLLMModels()[provider]
	}

	if provider.IsLocal() {
		if settings.LLM.BaseURL == "" {
			settings.LLM.BaseURL = defaultOllamaURL
		}
	} else {
		settings.LLM.BaseURL = ""
	}
	settings.LLM.APIKey = apiKey

	return s.Save(settings)
}

// Validate checks the current settings: struct constraints, provider
// capabilities, credentials and the embedding/index dimension agreement.
func (s *SettingsService) Validate() error {
	settings, err := s.Get()
	if err != nil {
		return err
	}
	return s.ValidateSettings(settings)
}

// ValidateSettings checks settings without reading the config store.
func (s *SettingsService) ValidateSettings(settings *domain.AppSettings) error {
	if err := s.validate.Struct(settings); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				fields = append(fields, fmt.Sprintf("%s (%s)", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("%w: invalid settings: %s", domain.ErrInvalidInput, strings.Join(fields, ", "))
		}
		return fmt.Errorf("%w: %w", domain.ErrInvalidInput, err)
	}

	if !slices.Contains(domain.AllEmbeddingProviders(), settings.Embedding.Provider) {
		return fmt.Errorf("%w: embedding provider %q is not supported",
			domain.ErrInvalidInput, settings.Embedding.Provider)
	}
	if !slices.Contains(domain.AllLLMProviders(), settings.LLM.Provider) {
		return fmt.Errorf("%w: llm provider %q is not supported", domain.ErrInvalidInput, settings.LLM.Provider)
	}
	if !settings.VectorIndex.Backend.IsValid() {
		return fmt.Errorf("%w: vector backend %q is not supported",
			domain.ErrInvalidInput, settings.VectorIndex.Backend)
	}
	if !settings.Embedding.IsConfigured() {
		return fmt.Errorf("%w: embedding provider %s is not fully configured",
			domain.ErrInvalidInput, settings.Embedding.Provider)
	}
	if !settings.LLM.IsConfigured() {
		return fmt.Errorf("%w: llm provider %s is not fully configured", domain.ErrInvalidInput, settings.LLM.Provider)
	}
	if settings.VectorIndex.Backend == domain.VectorBackendQdrant && settings.VectorIndex.URL == "" {
		return fmt.Errorf("%w: qdrant backend requires vector_index.url", domain.ErrInvalidInput)
	}
	if d := settings.Embedding.ResolveDimensions(); d > 0 && d != settings.VectorIndex.Dimensions {
		return fmt.Errorf("%w: embedding model %s produces %d dimensions, index expects %d",
			domain.ErrDimensionMismatch, settings.Embedding.Model, d, settings.VectorIndex.Dimensions)
	}

	return nil
}

// GetDefaults returns default settings.
func (s *SettingsService) GetDefaults() domain.AppSettings {
	return domain.DefaultAppSettings()
}

// ValidateEmbeddingConfig validates the current embedding configuration by pinging the provider.
func (s *SettingsService) ValidateEmbeddingConfig() error {
	if s.aiValidator == nil {
		return nil
	}
	settings, err := s.Get()
	if err != nil {
		return err
	}
	return s.aiValidator.ValidateEmbedding(&settings.Embedding)
}

// ValidateLLMConfig validates the current LLM configuration by pinging the provider.
func (s *SettingsService) ValidateLLMConfig() error {
	if s.aiValidator == nil {
		return nil
	}
	settings, err := s.Get()
	if err != nil {
		return err
	}
	return s.aiValidator.ValidateLLM(&settings.LLM)
}

// GetPipelineConfig returns the post-processor pipeline configuration.
func (s *SettingsService) GetPipelineConfig() domain.PipelineConfig {
	settings, err := s.Get()
	if err != nil {
		return domain.DefaultPipelineConfig()
	}
	return domain.PipelineConfigFor(settings.Chunking)
}

// Helper methods for reading config with defaults.

func (s *SettingsService) getString(key, defaultVal string) string {
	val := s.configStore.GetString(key)
	if val == "" {
		return defaultVal
	}
	return val
}

func (s *SettingsService) getInt(key string, defaultVal int) int {
	val := s.configStore.GetInt(key)
	if val == 0 {
		return defaultVal
	}
	return val
}

// getIntAllowZero distinguishes an explicit zero from an absent key.
func (s *SettingsService) getIntAllowZero(key string, defaultVal int) int {
	if _, exists := s.configStore.Get(key); !exists {
		return defaultVal
	}
	return s.configStore.GetInt(key)
}

func (s *SettingsService) getBool(key string, defaultVal bool) bool {
	if _, exists := s.configStore.Get(key); !exists {
		return defaultVal
	}
	return s.configStore.GetBool(key)
}

func (s *SettingsService) getFloat(key string, defaultVal float64) float64 {
	val, exists := s.configStore.Get(key)
	if !exists {
		return defaultVal
	}
	switch v := val.(type) {
	case float64:
		return v
	case float32:
		return float64(v)
	case int64:
		return float64(v)
	case int:
		return float64(v)
	default:
		return defaultVal
	}
}

// getDuration accepts a duration string ("30s", "1m") or whole seconds.
func (s *SettingsService) getDuration(key string, defaultVal time.Duration) time.Duration {
	val, exists := s.configStore.Get(key)
	if !exists {
		return defaultVal
	}
	switch v := val.(type) {
	case string:
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	case int64:
		return time.Duration(v) * time.Second
	case int:
		return time.Duration(v) * time.Second
	case float64:
		return time.Duration(v * float64(time.Second))
	}
	return defaultVal
}

func (s *SettingsService) getProvider(key string, defaultVal domain.AIProvider) domain.AIProvider {
	val := s.configStore.GetString(key)
	if val == "" {
		return defaultVal
	}
	provider := domain.AIProvider(val)
	if !provider.IsValid() {
		return defaultVal
	}
	return provider
}

func (s *SettingsService) getBackend(defaultVal domain.VectorBackend) domain.VectorBackend {
	val := s.configStore.GetString(keyVectorBackend)
	if val == "" {
		return defaultVal
	}
	backend := domain.VectorBackend(val)
	if !backend.IsValid() {
		return defaultVal
	}
	return backend
}
