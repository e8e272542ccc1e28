package driving

import "github.com/custodia-labs/mira/internal/core/domain"

// SettingsService reads and edits the persisted configuration. Every read
// applies defaults first, then the config file, then environment overrides.
type SettingsService interface {
	Get() (*domain.AppSettings, error)
	GetDefaults() domain.AppSettings

	// Save writes every field of settings back to the config file.
	Save(settings *domain.AppSettings) error

	// SetEmbeddingProvider and SetLLMProvider switch provider and model in
	// one step. apiKey may be empty when the provider's key is set in the
	// environment.
	SetEmbeddingProvider(provider domain.AIProvider, model, apiKey string) error
	SetLLMProvider(provider domain.AIProvider, model, apiKey string) error

	// Validate checks the settings offline; the Validate*Config methods
	// also contact the configured provider.
	Validate() error
	ValidateEmbeddingConfig() error
	ValidateLLMConfig() error
}
