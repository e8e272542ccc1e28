package cli

import (
	"context"
	"sync"

	"github.com/custodia-labs/mira/internal/core/domain"
	"github.com/custodia-labs/mira/internal/loader"
)

// mockIngestService implements driving.IngestService for testing.
type mockIngestService struct {
	mu        sync.Mutex
	ingested  [][]domain.Document
	deleted   [][]string
	documents []domain.Document
	report    *domain.IngestionReport
	err       error
	notify    chan struct{}
}

func (m *mockIngestService) Ingest(_ context.Context, docs []domain.Document) (*domain.IngestionReport, error) {
	m.mu.Lock()
	m.ingested = append(m.ingested, docs)
	m.mu.Unlock()
	m.signal()

	if m.err != nil {
		return nil, m.err
	}
	if m.report != nil {
		return m.report, nil
	}
	return &domain.IngestionReport{Accepted: len(docs), ChunksWritten: len(docs)}, nil
}

func (m *mockIngestService) Delete(_ context.Context, ids []string) (*domain.DeleteReport, error) {
	m.mu.Lock()
	m.deleted = append(m.deleted, ids)
	m.mu.Unlock()
	m.signal()

	if m.err != nil {
		return nil, m.err
	}
	report := &domain.DeleteReport{}
	for _, id := range ids {
		found := false
		for i := range m.documents {
			if m.documents[i].ID == id {
				found = true
				report.Documents++
				report.Chunks += m.documents[i].ChunkCount
			}
		}
		if !found {
			report.Missing = append(report.Missing, id)
		}
	}
	return report, nil
}

func (m *mockIngestService) List(_ context.Context) ([]domain.Document, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.documents, nil
}

func (m *mockIngestService) Get(_ context.Context, id string) (*domain.Document, error) {
	if m.err != nil {
		return nil, m.err
	}
	for i := range m.documents {
		if m.documents[i].ID == id {
			return &m.documents[i], nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *mockIngestService) signal() {
	if m.notify != nil {
		m.notify <- struct{}{}
	}
}

func (m *mockIngestService) calls() ([][]domain.Document, [][]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ingested, m.deleted
}

// mockQueryService implements driving.QueryService for testing.
type mockQueryService struct {
	outcome  *domain.QueryOutcome
	question string
	opts     domain.QueryOptions
}

func (m *mockQueryService) Answer(ctx context.Context, question string) (*domain.Answer, error) {
	return m.AnswerWithOptions(ctx, question, domain.QueryOptions{})
}

func (m *mockQueryService) AnswerWithOptions(
	ctx context.Context,
	question string,
	opts domain.QueryOptions,
) (*domain.Answer, error) {
	outcome := m.Run(ctx, question, opts)
	if outcome.Err != nil {
		return nil, outcome.Err
	}
	return outcome.Answer, nil
}

func (m *mockQueryService) Run(_ context.Context, question string, opts domain.QueryOptions) *domain.QueryOutcome {
	m.question = question
	m.opts = opts
	if m.outcome != nil {
		m.outcome.Question = question
		return m.outcome
	}
	return &domain.QueryOutcome{
		ID:       "q-test",
		Question: question,
		Stage:    domain.StageDone,
		Answer:   testAnswer(),
	}
}

// mockRetrievalService implements driving.RetrievalService for testing.
type mockRetrievalService struct {
	passages []domain.RetrievedPassage
	err      error
	query    string
	opts     domain.RetrieveOptions
}

func (m *mockRetrievalService) Retrieve(
	_ context.Context,
	query string,
	opts domain.RetrieveOptions,
) ([]domain.RetrievedPassage, error) {
	m.query = query
	m.opts = opts
	return m.passages, m.err
}

// mockSettingsService implements driving.SettingsService for testing.
type mockSettingsService struct {
	settings    domain.AppSettings
	validateErr error
}

func (m *mockSettingsService) Get() (*domain.AppSettings, error) {
	s := m.settings
	return &s, nil
}

func (m *mockSettingsService) Save(settings *domain.AppSettings) error {
	m.settings = *settings
	return nil
}

func (m *mockSettingsService) SetEmbeddingProvider(provider domain.AIProvider, model, apiKey string) error {
	m.settings.Embedding.Provider = provider
	m.settings.Embedding.Model = model
	m.settings.Embedding.APIKey = apiKey
	return nil
}

func (m *mockSettingsService) SetLLMProvider(provider domain.AIProvider, model, apiKey string) error {
	m.settings.LLM.Provider = provider
	m.settings.LLM.Model = model
	m.settings.LLM.APIKey = apiKey
	return nil
}

func (m *mockSettingsService) Validate() error { return m.validateErr }
func (m *mockSettingsService) GetDefaults() domain.AppSettings { return domain.DefaultAppSettings() }
func (m *mockSettingsService) ValidateEmbeddingConfig() error { return nil }
func (m *mockSettingsService) ValidateLLMConfig() error { return nil }

func testPassage(docID string, score float64) domain.RetrievedPassage {
	return domain.RetrievedPassage{
		ChunkID:    docID + "#0",
		DocumentID: docID,
		Text:       "Passage   from\n" + docID,
		Score:      score,
		Metadata:   map[string]any{domain.MetaSource: docID + ".txt"},
	}
}

func testAnswer() *domain.Answer {
	return &domain.Answer{
		Text:       "Northeastern treats it as equivalent to a U.S. Bachelor's degree.",
		Citations:  []string{"northeastern_india"},
		Confidence: 0.82,
		Passages:   1,
		Usage:      domain.Usage{Model: "gpt-4o", PromptTokens: 100, CompletionTokens: 20, TotalTokens: 120},
		Sources:    []domain.RetrievedPassage{testPassage("northeastern_india", 0.82)},
	}
}

// testServices holds the mocks installed by setupTestServices.
type testServices struct {
	ingest    *mockIngestService
	query     *mockQueryService
	retrieval *mockRetrievalService
	settings  *mockSettingsService
}

// setupTestServices installs mock services and returns a cleanup function
// that restores the previous services and resets command flags.
func setupTestServices() func() {
	_, cleanup := setupTestServicesWithMocks()
	return cleanup
}

func setupTestServicesWithMocks() (*testServices, func()) {
	oldIngest, oldQuery, oldRetrieval, oldSettings := ingestService, queryService, retrievalService, settingsService
	oldUnavailable, oldClose, oldBootstrap := servicesUnavailable, closeServices, bootstrap

	mocks := &testServices{
		ingest:    &mockIngestService{},
		query:     &mockQueryService{},
		retrieval: &mockRetrievalService{passages: []domain.RetrievedPassage{testPassage("india", 0.9)}},
		settings:  &mockSettingsService{settings: domain.DefaultAppSettings()},
	}
	SetServices(&Services{
		Ingest:    mocks.ingest,
		Query:     mocks.query,
		Retrieval: mocks.retrieval,
		Settings:  mocks.settings,
	})
	bootstrap = nil

	return mocks, func() {
		ingestService, queryService, retrievalService, settingsService = oldIngest, oldQuery, oldRetrieval, oldSettings
		servicesUnavailable, closeServices, bootstrap = oldUnavailable, oldClose, oldBootstrap
		resetFlags()
	}
}

// resetFlags restores command flag variables to their defaults.
func resetFlags() {
	askJSON, askTopK, askThreshold, askFilter = false, 0, 0, map[string]string{}
	searchLimit, searchThreshold, searchFilter, searchJSON = 5, 0, map[string]string{}, false
	ingestWatch, ingestExtensions = false, loader.DefaultExtensions
	mcpPort, mcpHost = 0, "127.0.0.1"
	versionVerbose = false
	verbose = false
}
