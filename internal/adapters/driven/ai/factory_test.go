package ai

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/mira/internal/core/domain"
)

func TestCreateEmbeddingService(t *testing.T) {
	tests := []struct {
		name      string
		settings  *domain.EmbeddingSettings
		wantModel string
		wantDims  int
		wantErr   error
	}{
		{
			name:    "nil settings",
			wantErr: domain.ErrInvalidInput,
		},
		{
			name:     "no provider",
			settings: &domain.EmbeddingSettings{},
			wantErr:  domain.ErrInvalidInput,
		},
		{
			name:      "hash provider",
			settings:  &domain.EmbeddingSettings{Provider: domain.AIProviderHash, Model: "hash-v1"},
			wantModel: "hash-v1",
			wantDims:  domain.DefaultHashEmbedDimensions,
		},
		{
			name:      "hash provider with custom dimensions",
			settings:  &domain.EmbeddingSettings{Provider: domain.AIProviderHash, Dimensions: 64},
			wantModel: "hash-v1",
			wantDims:  64,
		},
		{
			name: "ollama provider",
			settings: &domain.EmbeddingSettings{
				Provider: domain.AIProviderOllama,
				BaseURL:  "http://localhost:11434",
				Model:    "all-minilm",
			},
			wantModel: "all-minilm",
			wantDims:  384,
		},
		{
			name: "openai provider",
			settings: &domain.EmbeddingSettings{
				Provider: domain.AIProviderOpenAI,
				APIKey:   "test-key",
				Model:    "text-embedding-3-large",
			},
			wantModel: "text-embedding-3-large",
			wantDims:  3072,
		},
		{
			name: "gemini provider",
			settings: &domain.EmbeddingSettings{
				Provider: domain.AIProviderGemini,
				APIKey:   "test-key",
				Model:    "text-embedding-004",
			},
			wantModel: "text-embedding-004",
			wantDims:  768,
		},
		{
			name:     "openai without key",
			settings: &domain.EmbeddingSettings{Provider: domain.AIProviderOpenAI},
			wantErr:  nil,
		},
		{
			name:     "anthropic has no embeddings",
			settings: &domain.EmbeddingSettings{Provider: domain.AIProviderAnthropic, APIKey: "k"},
			wantErr:  domain.ErrInvalidInput,
		},
		{
			name:     "unknown provider",
			settings: &domain.EmbeddingSettings{Provider: "bert"},
			wantErr:  domain.ErrInvalidInput,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, err := CreateEmbeddingService(tt.settings)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, svc)
				return
			}
			if tt.wantModel == "" {
				// Adapter constructor rejected the settings.
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			defer svc.Close()
			assert.Equal(t, tt.wantModel, svc.ModelName())
			assert.Equal(t, tt.wantDims, svc.Dimensions())
		})
	}
}

func TestCreateLLMService(t *testing.T) {
	tests := []struct {
		name      string
		settings  *domain.LLMSettings
		wantModel string
		wantErr   bool
	}{
		{name: "nil settings", wantErr: true},
		{name: "no provider", settings: &domain.LLMSettings{}, wantErr: true},
		{
			name:      "ollama",
			settings:  &domain.LLMSettings{Provider: domain.AIProviderOllama, Model: "llama3.2"},
			wantModel: "llama3.2",
		},
		{
			name:      "openai",
			settings:  &domain.LLMSettings{Provider: domain.AIProviderOpenAI, APIKey: "k", Model: "gpt-4o"},
			wantModel: "gpt-4o",
		},
		{
			name:      "anthropic",
			settings:  &domain.LLMSettings{Provider: domain.AIProviderAnthropic, APIKey: "k", Model: "claude-sonnet-4-5"},
			wantModel: "claude-sonnet-4-5",
		},
		{
			name:      "gemini",
			settings:  &domain.LLMSettings{Provider: domain.AIProviderGemini, APIKey: "k", Model: "gemini-2.5-flash"},
			wantModel: "gemini-2.5-flash",
		},
		{name: "openai without key", settings: &domain.LLMSettings{Provider: domain.AIProviderOpenAI}, wantErr: true},
		{name: "hash is embedding only", settings: &domain.LLMSettings{Provider: domain.AIProviderHash}, wantErr: true},
		{name: "unknown", settings: &domain.LLMSettings{Provider: "gpt-j"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, err := CreateLLMService(tt.settings)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			defer svc.Close()
			assert.Equal(t, tt.wantModel, svc.ModelName())
		})
	}
}

func TestValidateEmbeddingConfig_Unconfigured(t *testing.T) {
	assert.NoError(t, ValidateEmbeddingConfig(nil))
	assert.NoError(t, ValidateEmbeddingConfig(&domain.EmbeddingSettings{}))
	assert.NoError(t, ValidateEmbeddingConfig(&domain.EmbeddingSettings{Provider: domain.AIProviderAnthropic}))
}

func TestValidateEmbeddingConfig_Hash(t *testing.T) {
	assert.NoError(t, ValidateEmbeddingConfig(&domain.EmbeddingSettings{Provider: domain.AIProviderHash}))
}

func TestValidateLLMConfig_Unconfigured(t *testing.T) {
	assert.NoError(t, ValidateLLMConfig(nil))
	assert.NoError(t, ValidateLLMConfig(&domain.LLMSettings{}))
}

func TestValidateLLMConfig_OllamaReachable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/tags", r.URL.Path)
		_, _ = w.Write([]byte(`{"models":[{"name":"llama3.2:latest"}]}`))
	}))
	defer server.Close()

	err := ValidateLLMConfig(&domain.LLMSettings{Provider: domain.AIProviderOllama, BaseURL: server.URL})
	assert.NoError(t, err)
}

func TestCreateAndValidateEmbeddingService(t *testing.T) {
	svc, err := CreateAndValidateEmbeddingService(&domain.EmbeddingSettings{Provider: domain.AIProviderHash})
	require.NoError(t, err)
	vec, err := svc.Embed(context.Background(), "transcript")
	require.NoError(t, err)
	assert.Len(t, vec, domain.DefaultHashEmbedDimensions)

	_, err = CreateAndValidateEmbeddingService(&domain.EmbeddingSettings{})
	assert.ErrorIs(t, err, domain.ErrEmbeddingUnavailable)
}

func TestCreateAndValidateEmbeddingService_Unreachable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := server.URL
	server.Close()

	_, err := CreateAndValidateEmbeddingService(&domain.EmbeddingSettings{
		Provider: domain.AIProviderOllama,
		BaseURL:  url,
	})
	assert.ErrorIs(t, err, domain.ErrEmbeddingUnavailable)
	assert.ErrorIs(t, err, domain.ErrTransient)
}

func TestCreateAndValidateLLMService_StatusError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	_, err := CreateAndValidateLLMService(&domain.LLMSettings{Provider: domain.AIProviderOllama, BaseURL: server.URL})
	assert.ErrorIs(t, err, domain.ErrGeneration)
	assert.ErrorIs(t, err, domain.ErrTransient)
}

func TestBuilders_CoverSelectableProviders(t *testing.T) {
	for _, p := range domain.AllEmbeddingProviders() {
		_, ok := embeddingBuilders[p]
		assert.True(t, ok, "no embedding builder for %s", p)
	}
	for _, p := range domain.AllLLMProviders() {
		_, ok := llmBuilders[p]
		assert.True(t, ok, "no LLM builder for %s", p)
	}
}

func TestCreateAndValidate_HintsAtSettingsCommand(t *testing.T) {
	_, err := CreateAndValidateLLMService(&domain.LLMSettings{Provider: domain.AIProviderHash})

	require.ErrorIs(t, err, domain.ErrGeneration)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
	assert.Contains(t, err.Error(), "mira settings")
}
