package services

import (
	"context"
	"strings"
	"sync"

	"github.com/custodia-labs/mira/internal/core/domain"
	"github.com/custodia-labs/mira/internal/core/ports/driven"
	"github.com/custodia-labs/mira/internal/retry"
)

// --- Mock implementations ---

// mockEmbeddingService implements driven.EmbeddingService for testing.
// Each text maps to a one-hot vector chosen by the first keyword it contains.
type mockEmbeddingService struct {
	mu       sync.Mutex
	dims     int
	keywords []string
	errs     []error // returned by successive EmbedBatch calls before succeeding
	batches  [][]string
	short    bool // return one vector fewer than requested
	wrongDim bool // return vectors of the wrong size
}

func newMockEmbedder(keywords ...string) *mockEmbeddingService {
	return &mockEmbeddingService{dims: len(keywords) + 1, keywords: keywords}
}

func (m *mockEmbeddingService) vector(text string) []float32 {
	v := make([]float32, m.dims)
	lower := strings.ToLower(text)
	for i, kw := range m.keywords {
		if strings.Contains(lower, kw) {
			v[i] = 1
			return v
		}
	}
	v[m.dims-1] = 1
	return v
}

func (m *mockEmbeddingService) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := m.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

func (m *mockEmbeddingService) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.batches = append(m.batches, append([]string(nil), texts...))
	if len(m.errs) > 0 {
		err := m.errs[0]
		m.errs = m.errs[1:]
		return nil, err
	}

	out := make([][]float32, 0, len(texts))
	for _, t := range texts {
		if m.wrongDim {
			out = append(out, make([]float32, m.dims+1))
			continue
		}
		out = append(out, m.vector(t))
	}
	if m.short && len(out) > 0 {
		out = out[:len(out)-1]
	}
	return out, nil
}

func (m *mockEmbeddingService) calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.batches)
}

func (m *mockEmbeddingService) Dimensions() int { return m.dims }
func (m *mockEmbeddingService) ModelName() string { return "mock-embed" }
func (m *mockEmbeddingService) Ping(_ context.Context) error { return nil }
func (m *mockEmbeddingService) Close() error { return nil }

// mockLLMService implements driven.LLMService for testing.
type mockLLMService struct {
	mu       sync.Mutex
	errs     []error
	reply    func(req driven.CompletionRequest) string
	requests []driven.CompletionRequest
	block    bool // wait for ctx to end before answering
}

func (m *mockLLMService) Complete(ctx context.Context, req driven.CompletionRequest) (*driven.Completion, error) {
	if m.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = append(m.requests, req)
	if len(m.errs) > 0 {
		err := m.errs[0]
		m.errs = m.errs[1:]
		return nil, err
	}
	text := "ok"
	if m.reply != nil {
		text = m.reply(req)
	}
	return &driven.Completion{Text: text, PromptTokens: 10, CompletionTokens: 5}, nil
}

func (m *mockLLMService) calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests)
}

func (m *mockLLMService) ModelName() string { return "mock-llm" }
func (m *mockLLMService) Ping(_ context.Context) error { return nil }
func (m *mockLLMService) Close() error { return nil }

// echoContext answers with the context block of the user prompt, standing in
// for a model that grounds its answer in the supplied passages.
func echoContext(req driven.CompletionRequest) string {
	user := req.Messages[len(req.Messages)-1].Content
	if strings.Contains(user, domain.NoContextMarker) {
		return "I could not find relevant information in the knowledge base."
	}
	return user
}

// mockVectorIndex implements driven.VectorIndex with canned results.
type mockVectorIndex struct {
	results  []domain.ScoredEntry
	queryErr []error
	lastTopK int
	queries  int
}

func (m *mockVectorIndex) Upsert(_ context.Context, entries []domain.IndexEntry) (int, error) {
	return len(entries), nil
}

func (m *mockVectorIndex) Query(
	_ context.Context, _ domain.Vector, topK int, _ domain.MetadataFilter,
) ([]domain.ScoredEntry, error) {
	m.queries++
	m.lastTopK = topK
	if len(m.queryErr) > 0 {
		err := m.queryErr[0]
		m.queryErr = m.queryErr[1:]
		return nil, err
	}
	out := make([]domain.ScoredEntry, len(m.results))
	copy(out, m.results)
	if len(out) > topK {
		out = out[:topK]
	}
	return out, nil
}

func (m *mockVectorIndex) Delete(_ context.Context, ids []string) (int, error) { return len(ids), nil }
func (m *mockVectorIndex) Count(_ context.Context) (int, error) { return len(m.results), nil }
func (m *mockVectorIndex) Dimensions() int { return 0 }
func (m *mockVectorIndex) Close() error { return nil }

// mockPromptStore implements driven.PromptStore from a map.
type mockPromptStore struct {
	prompts map[string]string
}

func (m *mockPromptStore) Load(name string) (string, error) {
	if p, ok := m.prompts[name]; ok {
		return p, nil
	}
	return "", domain.ErrNotFound
}

func (m *mockPromptStore) Reload() {}

// fastRetry retries without waiting.
func fastRetry(attempts int) retry.Policy {
	return retry.Policy{Name: "test", MaxAttempts: attempts}
}

func scored(id, docID string, score float64) domain.ScoredEntry {
	return domain.ScoredEntry{
		IndexEntry: domain.IndexEntry{
			ID:         id,
			DocumentID: docID,
			Text:       "text of " + id,
			Metadata:   map[string]any{domain.MetaSource: docID + ".txt"},
		},
		Score: score,
	}
}

var (
	_ driven.EmbeddingService = (*mockEmbeddingService)(nil)
	_ driven.LLMService       = (*mockLLMService)(nil)
	_ driven.VectorIndex      = (*mockVectorIndex)(nil)
	_ driven.PromptStore      = (*mockPromptStore)(nil)
)
