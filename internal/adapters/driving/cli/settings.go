package cli

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/custodia-labs/mira/internal/core/domain"
)

var settingsCmd = &cobra.Command{
	Use:   "settings",
	Short: "Manage application settings",
	Long: `View and configure AI providers, the vector index, and retrieval options.

Settings are stored in ~/.mira/config.toml. Environment variables such as
OPENAI_API_KEY or MIRA_LLM_PROVIDER override the file.

Use subcommands to configure specific settings or run the interactive wizard.`,
	RunE: runSettingsShow,
}

var settingsShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current settings",
	RunE:  runSettingsShow,
}

var settingsWizardCmd = &cobra.Command{
	Use:   "wizard",
	Short: "Interactive setup wizard",
	Long:  `Configure the embedding provider, the LLM and the vector index step by step.`,
	RunE:  runSettingsWizard,
}

var settingsEmbeddingCmd = &cobra.Command{
	Use:   "embedding",
	Short: "Configure embedding provider",
	Long:  `Configure the embedding provider used to index documents and questions.`,
	RunE:  runSettingsEmbedding,
}

var settingsLLMCmd = &cobra.Command{
	Use:   "llm",
	Short: "Configure LLM provider",
	Long:  `Configure the LLM provider that writes answers from retrieved passages.`,
	RunE:  runSettingsLLM,
}

var settingsVectorCmd = &cobra.Command{
	Use:   "vector",
	Short: "Configure the vector index",
	Long: `Choose where chunk vectors are stored. Changing the backend does not move
existing vectors; re-run 'mira ingest' afterwards.`,
	RunE: runSettingsVector,
}

var settingsSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Change a single setting",
	Long: `Change one retrieval, chunking, generation or index setting, for example:

  mira settings set retrieval.top_k 8
  mira settings set chunking.overlap_tokens 0
  mira settings set vector_index.backend qdrant`,
	Args: cobra.ExactArgs(2),
	RunE: runSettingsSet,
}

func init() {
	settingsCmd.AddCommand(settingsShowCmd)
	settingsCmd.AddCommand(settingsWizardCmd)
	settingsCmd.AddCommand(settingsEmbeddingCmd)
	settingsCmd.AddCommand(settingsLLMCmd)
	settingsCmd.AddCommand(settingsVectorCmd)
	settingsCmd.AddCommand(settingsSetCmd)
	rootCmd.AddCommand(settingsCmd)
}

var errSettingsNotConfigured = errors.New("settings service not configured")

// settingLine is one "label: value" row of settings show.
type settingLine struct {
	label string
	value string
}

func printSection(cmd *cobra.Command, title string, lines []settingLine) {
	cmd.Printf("[%s]\n", title)
	for _, l := range lines {
		if l.value == "" {
			continue
		}
		cmd.Printf("  %s: %s\n", l.label, l.value)
	}
	cmd.Println()
}

func runSettingsShow(cmd *cobra.Command, _ []string) error {
	if settingsService == nil {
		return errSettingsNotConfigured
	}

	settings, err := settingsService.Get()
	if err != nil {
		return fmt.Errorf("failed to get settings: %w", err)
	}

	cmd.Println("Current Settings")
	cmd.Println("================")
	cmd.Println()

	emb := settings.Embedding
	printSection(cmd, "Embedding", []settingLine{
		{"Provider", emb.Provider.Description()},
		{"Model", emb.Model},
		{"Base URL", emb.BaseURL},
		{"API Key", apiKeyDisplay(emb.Provider, emb.APIKey)},
		{"Status", statusDisplay(emb.IsConfigured())},
	})

	llm := settings.LLM
	printSection(cmd, "LLM", []settingLine{
		{"Provider", llm.Provider.Description()},
		{"Model", llm.Model},
		{"Base URL", llm.BaseURL},
		{"API Key", apiKeyDisplay(llm.Provider, llm.APIKey)},
		{"Status", statusDisplay(llm.IsConfigured())},
	})

	vec := []settingLine{
		{"Backend", vectorBackendDisplay(settings.VectorIndex.Backend)},
		{"Dimensions", strconv.Itoa(settings.VectorIndex.Dimensions)},
	}
	if settings.VectorIndex.Backend == domain.VectorBackendQdrant {
		vec = append(vec,
			settingLine{"URL", settings.VectorIndex.URL},
			settingLine{"Collection", settings.VectorIndex.Collection})
	}
	printSection(cmd, "Vector Index", vec)

	printSection(cmd, "Retrieval", []settingLine{
		{"Chunk size", fmt.Sprintf("%d tokens (overlap %d)",
			settings.Chunking.MaxTokens, settings.Chunking.OverlapTokens)},
		{"Top K", strconv.Itoa(settings.Retrieval.TopK)},
		{"Score threshold", fmt.Sprintf("%.2f", settings.Retrieval.ScoreThreshold)},
		{"Oversample factor", strconv.Itoa(settings.Retrieval.OversampleFactor)},
		{"One passage per document", strconv.FormatBool(settings.Retrieval.DedupeByDocument)},
		{"Context budget", fmt.Sprintf("%d tokens", settings.Generation.MaxContextTokens)},
	})

	if err := settingsService.Validate(); err != nil {
		cmd.Printf("Warning: %v\n", err)
		cmd.Println("Run 'mira settings wizard' to fix configuration issues.")
	} else {
		cmd.Println("Configuration is valid.")
	}

	return nil
}

// vectorBackendDisplay shows the backend name followed by its description.
func vectorBackendDisplay(b domain.VectorBackend) string {
	return fmt.Sprintf("%s - %s", b, b.Description())
}

func apiKeyDisplay(provider domain.AIProvider, key string) string {
	switch {
	case !provider.RequiresAPIKey():
		return ""
	case key == "":
		return "(not set)"
	default:
		return maskAPIKey(key)
	}
}

func statusDisplay(configured bool) string {
	if configured {
		return "configured"
	}
	return "not configured"
}

func runSettingsWizard(cmd *cobra.Command, _ []string) error {
	if settingsService == nil {
		return errSettingsNotConfigured
	}

	cmd.Println("Mira Settings Wizard")
	cmd.Println("====================")
	cmd.Println()

	p := newPrompter(cmd)
	steps := []struct {
		title string
		intro string
		run   func(*prompter) error
	}{
		{"Embedding Provider", "Documents and questions are embedded to find relevant passages.",
			func(p *prompter) error { return configureProvider(p, embeddingStep()) }},
		{"LLM Provider", "The LLM writes answers from the retrieved passages.",
			func(p *prompter) error { return configureProvider(p, llmStep()) }},
		{"Vector Index", "Chunk vectors are stored in the vector index.", configureVectorIndex},
	}
	for i, step := range steps {
		heading := fmt.Sprintf("Step %d: Configure %s", i+1, step.title)
		cmd.Println(heading)
		cmd.Println(strings.Repeat("-", len(heading)))
		cmd.Println(step.intro)
		cmd.Println()
		if err := step.run(p); err != nil {
			return err
		}
	}

	cmd.Println("Configuration Complete!")
	cmd.Println("=======================")
	if err := settingsService.Validate(); err != nil {
		cmd.Printf("Warning: %v\n", err)
	} else {
		cmd.Println("All settings are valid and saved.")
	}

	return nil
}

func runSettingsEmbedding(cmd *cobra.Command, _ []string) error {
	if settingsService == nil {
		return errSettingsNotConfigured
	}
	return configureProvider(newPrompter(cmd), embeddingStep())
}

func runSettingsLLM(cmd *cobra.Command, _ []string) error {
	if settingsService == nil {
		return errSettingsNotConfigured
	}
	return configureProvider(newPrompter(cmd), llmStep())
}

func runSettingsVector(cmd *cobra.Command, _ []string) error {
	if settingsService == nil {
		return errSettingsNotConfigured
	}
	return configureVectorIndex(newPrompter(cmd))
}

// providerStep describes the provider prompt for embeddings or the LLM.
type providerStep struct {
	kind      string
	providers []domain.AIProvider
	models    map[domain.AIProvider]string
	apply     func(provider domain.AIProvider, model, apiKey string) error
	validate  func() error
}

func embeddingStep() providerStep {
	return providerStep{
		kind:      "Embedding",
		providers: domain.AllEmbeddingProviders(),
		models:    domain.DefaultEmbeddingModels(),
		apply:     settingsService.SetEmbeddingProvider,
		validate:  settingsService.ValidateEmbeddingConfig,
	}
}

func llmStep() providerStep {
	return providerStep{
		kind:      "LLM",
		providers: domain.AllLLMProviders(),
		models:    domain.DefaultLLMModels(),
		apply:     settingsService.SetLLMProvider,
		validate:  settingsService.ValidateLLMConfig,
	}
}

func configureProvider(p *prompter, step providerStep) error {
	options := make([]string, len(step.providers))
	for i, provider := range step.providers {
		options[i] = provider.Description()
	}
	provider := step.providers[p.choose("Select "+step.kind+" Provider", options)]

	model := p.ask("Enter model name", step.models[provider])

	var apiKey string
	if provider.RequiresAPIKey() {
		apiKey = p.secret("Enter API key")
		if apiKey == "" {
			return fmt.Errorf("API key is required for %s", provider)
		}
	}

	if err := step.apply(provider, model, apiKey); err != nil {
		return fmt.Errorf("failed to configure %s provider: %w", strings.ToLower(step.kind), err)
	}

	p.cmd.Print("Validating configuration... ")
	if err := step.validate(); err != nil {
		p.cmd.Printf("FAILED: %v\n", err)
		return fmt.Errorf("%s configuration validation failed: %w", strings.ToLower(step.kind), err)
	}
	p.cmd.Println("OK")

	p.cmd.Printf("%s provider configured: %s (%s)\n\n", step.kind, provider.Description(), model)
	return nil
}

func configureVectorIndex(p *prompter) error {
	settings, err := settingsService.Get()
	if err != nil {
		return fmt.Errorf("failed to get settings: %w", err)
	}

	backends := domain.AllVectorBackends()
	options := make([]string, len(backends))
	for i, b := range backends {
		options[i] = vectorBackendDisplay(b)
	}
	backend := backends[p.choose("Select Vector Index", options)]
	settings.VectorIndex.Backend = backend

	if backend == domain.VectorBackendQdrant {
		url := settings.VectorIndex.URL
		if url == "" {
			url = "localhost:6334"
		}
		settings.VectorIndex.URL = p.ask("Enter Qdrant address", url)
		settings.VectorIndex.Collection = p.ask("Enter collection name", settings.VectorIndex.Collection)
		if key := p.secret("Enter API key (empty for none)"); key != "" {
			settings.VectorIndex.APIKey = key
		}
	}

	if err := settingsService.Save(settings); err != nil {
		return fmt.Errorf("failed to save vector index: %w", err)
	}
	p.cmd.Printf("Vector index configured: %s\n\n", backend.Description())
	return nil
}

func runSettingsSet(cmd *cobra.Command, args []string) error {
	if settingsService == nil {
		return errSettingsNotConfigured
	}

	key, value := strings.TrimSpace(args[0]), strings.TrimSpace(args[1])
	set, ok := settingSetters[key]
	if !ok {
		return fmt.Errorf("%w: unknown setting %q (settable: %s)",
			domain.ErrInvalidInput, key, strings.Join(settableKeys(), ", "))
	}

	settings, err := settingsService.Get()
	if err != nil {
		return fmt.Errorf("failed to get settings: %w", err)
	}
	if err := set(settings, value); err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	if err := settingsService.Save(settings); err != nil {
		return fmt.Errorf("failed to save %s: %w", key, err)
	}

	cmd.Printf("%s = %s\n", key, value)
	if err := settingsService.Validate(); err != nil {
		cmd.Printf("Warning: %v\n", err)
	}
	return nil
}

// settingSetter parses a command-line value into one field of the settings.
type settingSetter func(s *domain.AppSettings, value string) error

var settingSetters = map[string]settingSetter{
	"retrieval.top_k":             intSetting(func(s *domain.AppSettings) *int { return &s.Retrieval.TopK }),
	"retrieval.score_threshold":   floatSetting(func(s *domain.AppSettings) *float64 { return &s.Retrieval.ScoreThreshold }),
	"retrieval.oversample_factor": intSetting(func(s *domain.AppSettings) *int { return &s.Retrieval.OversampleFactor }),
	"retrieval.dedupe_by_document": func(s *domain.AppSettings, v string) error {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%w: %q is not true or false", domain.ErrInvalidInput, v)
		}
		s.Retrieval.DedupeByDocument = b
		return nil
	},
	"chunking.max_tokens":           intSetting(func(s *domain.AppSettings) *int { return &s.Chunking.MaxTokens }),
	"chunking.overlap_tokens":       intSetting(func(s *domain.AppSettings) *int { return &s.Chunking.OverlapTokens }),
	"generation.temperature":        floatSetting(func(s *domain.AppSettings) *float64 { return &s.Generation.Temperature }),
	"generation.max_tokens":         intSetting(func(s *domain.AppSettings) *int { return &s.Generation.MaxTokens }),
	"generation.max_context_tokens": intSetting(func(s *domain.AppSettings) *int { return &s.Generation.MaxContextTokens }),
	"ingest.concurrency":            intSetting(func(s *domain.AppSettings) *int { return &s.Ingest.Concurrency }),
	"retry.max_attempts":            intSetting(func(s *domain.AppSettings) *int { return &s.Retry.MaxAttempts }),
	"retry.base_delay":              durationSetting(func(s *domain.AppSettings) *time.Duration { return &s.Retry.BaseDelay }),
	"retry.max_delay":               durationSetting(func(s *domain.AppSettings) *time.Duration { return &s.Retry.MaxDelay }),
	"vector_index.backend": func(s *domain.AppSettings, v string) error {
		b := domain.VectorBackend(strings.ToLower(v))
		if !b.IsValid() {
			return fmt.Errorf("%w: unknown backend %q", domain.ErrInvalidInput, v)
		}
		s.VectorIndex.Backend = b
		return nil
	},
	"vector_index.url":        stringSetting(func(s *domain.AppSettings) *string { return &s.VectorIndex.URL }),
	"vector_index.collection": stringSetting(func(s *domain.AppSettings) *string { return &s.VectorIndex.Collection }),
}

func settableKeys() []string {
	keys := make([]string, 0, len(settingSetters))
	for k := range settingSetters {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func intSetting(field func(*domain.AppSettings) *int) settingSetter {
	return func(s *domain.AppSettings, v string) error {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: %q is not a whole number", domain.ErrInvalidInput, v)
		}
		*field(s) = n
		return nil
	}
}

func floatSetting(field func(*domain.AppSettings) *float64) settingSetter {
	return func(s *domain.AppSettings, v string) error {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("%w: %q is not a number", domain.ErrInvalidInput, v)
		}
		*field(s) = f
		return nil
	}
}

func durationSetting(field func(*domain.AppSettings) *time.Duration) settingSetter {
	return func(s *domain.AppSettings, v string) error {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%w: %q is not a duration such as 500ms or 2s", domain.ErrInvalidInput, v)
		}
		*field(s) = d
		return nil
	}
}

func stringSetting(field func(*domain.AppSettings) *string) settingSetter {
	return func(s *domain.AppSettings, v string) error {
		if v == "" {
			return fmt.Errorf("%w: value is empty", domain.ErrInvalidInput)
		}
		*field(s) = v
		return nil
	}
}

// prompter reads interactive answers from the command's input.
type prompter struct {
	cmd    *cobra.Command
	reader *bufio.Reader
	tty    *os.File
}

func newPrompter(cmd *cobra.Command) *prompter {
	in := cmd.InOrStdin()
	p := &prompter{cmd: cmd, reader: bufio.NewReader(in)}
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		p.tty = f
	}
	return p
}

//nolint:errcheck // a short read is treated as an empty answer
func (p *prompter) line() string {
	input, _ := p.reader.ReadString('\n')
	return strings.TrimSpace(input)
}

// ask prompts for a value and returns def when the answer is empty.
func (p *prompter) ask(label, def string) string {
	if def != "" {
		p.cmd.Printf("%s [%s]: ", label, def)
	} else {
		p.cmd.Printf("%s: ", label)
	}
	if v := p.line(); v != "" {
		return v
	}
	return def
}

// choose lists options and returns the zero-based index of the pick.
func (p *prompter) choose(title string, options []string) int {
	p.cmd.Println(title)
	for i, o := range options {
		p.cmd.Printf("  %d. %s\n", i+1, o)
	}
	p.cmd.Print("\nEnter choice [1]: ")
	return parseChoice(p.line(), len(options), 1) - 1
}

// secret reads a value without echo when the input is a terminal.
func (p *prompter) secret(label string) string {
	p.cmd.Printf("%s: ", label)
	defer p.cmd.Println()
	if p.tty != nil {
		if b, err := term.ReadPassword(int(p.tty.Fd())); err == nil {
			return strings.TrimSpace(string(b))
		}
	}
	return p.line()
}

func parseChoice(input string, maxVal, defaultVal int) int {
	if input == "" {
		return defaultVal
	}
	val, err := strconv.Atoi(input)
	if err != nil || val < 1 || val > maxVal {
		return defaultVal
	}
	return val
}

func maskAPIKey(key string) string {
	if len(key) <= 8 {
		return "****"
	}
	return key[:4] + "..." + key[len(key)-4:]
}
