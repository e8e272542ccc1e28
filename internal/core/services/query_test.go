package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	hashembed "github.com/custodia-labs/mira/internal/adapters/driven/embedding/hash"
	"github.com/custodia-labs/mira/internal/adapters/driven/storage/memory"
	"github.com/custodia-labs/mira/internal/core/domain"
	"github.com/custodia-labs/mira/internal/core/ports/driven"
	"github.com/custodia-labs/mira/internal/postprocessors"
	"github.com/custodia-labs/mira/internal/postprocessors/chunker"
)

type queryFixture struct {
	ingest *IngestService
	query  *QueryService
	llm    *mockLLMService
}

func newQueryFixture(t *testing.T, embedBackend driven.EmbeddingService, llm *mockLLMService) *queryFixture {
	t.Helper()
	embedder := NewEmbedder(embedBackend, EmbedderConfig{Retry: fastRetry(1)})
	index := memory.NewVectorIndex(embedBackend.Dimensions())
	pipeline := postprocessors.NewPipeline(chunker.New())

	ingest := NewIngestService(pipeline, embedder, index, memory.NewDocumentStore(), IngestConfig{
		Retry: fastRetry(1),
	})
	retriever := NewRetriever(embedder, index, RetrieverConfig{Retry: fastRetry(1)})
	generator := NewGenerator(llm, GeneratorConfig{Retry: fastRetry(2)})
	query := NewQueryService(embedder, retriever, NewContextAssembler(), generator, QueryConfig{
		TopK:             3,
		MaxContextTokens: 1000,
	})
	query.newID = func() string { return "q-1" }

	return &queryFixture{ingest: ingest, query: query, llm: llm}
}

const northeasternText = "Northeastern evaluates a three-year Bachelor's degree from India as " +
	"equivalent to a U.S. Bachelor's degree."

func TestQueryService_AnswerEndToEnd(t *testing.T) {
	f := newQueryFixture(t, hashembed.NewEmbeddingService(0), &mockLLMService{reply: echoContext})
	ctx := context.Background()

	report, err := f.ingest.Ingest(ctx, []domain.Document{
		{ID: "northeastern_india", URI: "policies/northeastern.txt", Text: northeasternText},
		{ID: "ghana_waec", Text: "The West African Senior School Certificate is awarded after secondary school in Ghana."},
	})
	require.NoError(t, err)
	require.Equal(t, 2, report.Accepted)

	answer, err := f.query.Answer(ctx, "What is Northeastern's equivalency for a three-year Indian Bachelor's degree?")

	require.NoError(t, err)
	assert.Contains(t, answer.Citations, "northeastern_india")
	assert.Contains(t, answer.Text, "equivalent to a U.S. Bachelor's degree")
	assert.False(t, answer.NoContext)
	assert.Positive(t, answer.Confidence)
	require.NotEmpty(t, answer.Sources)
	assert.Equal(t, "northeastern_india", answer.Sources[0].DocumentID)
	assert.Equal(t, len(answer.Sources), answer.Passages)
	assert.Equal(t, "mock-llm", answer.Usage.Model)
}

func TestQueryService_EmptyIndexAnswersWithoutContext(t *testing.T) {
	f := newQueryFixture(t, hashembed.NewEmbeddingService(0), &mockLLMService{reply: echoContext})

	answer, err := f.query.Answer(context.Background(), "Is a Nepali SLC equivalent to a U.S. high school diploma?")

	require.NoError(t, err)
	assert.True(t, answer.NoContext)
	assert.Empty(t, answer.Citations)
	assert.Zero(t, answer.Confidence)
	assert.Zero(t, answer.Passages)
	assert.Contains(t, answer.Text, "could not find relevant information")

	require.Len(t, f.llm.requests, 1)
	assert.Contains(t, f.llm.requests[0].Messages[0].Content, domain.NoContextMarker)
}

func TestQueryService_RunTrace(t *testing.T) {
	f := newQueryFixture(t, hashembed.NewEmbeddingService(0), &mockLLMService{})

	outcome := f.query.Run(context.Background(), "  question   text ", domain.QueryOptions{})

	require.True(t, outcome.Succeeded())
	assert.Equal(t, "q-1", outcome.ID)
	assert.Equal(t, "question text", outcome.Question)
	assert.Nil(t, outcome.Err)
	assert.Equal(t, []domain.QueryStage{
		domain.StagePending,
		domain.StageEmbedding,
		domain.StageRetrieving,
		domain.StageAssembling,
		domain.StageGenerating,
		domain.StageDone,
	}, outcome.Trace)
}

func TestQueryService_StageFailures(t *testing.T) {
	tests := []struct {
		name      string
		question  string
		embedErrs []error
		llmErrs   []error
		wantStage domain.QueryStage
		wantKind  domain.ErrorKind
	}{
		{
			name:      "empty question",
			question:  "   ",
			wantStage: domain.StageEmbedding,
			wantKind:  domain.KindInvalidInput,
		},
		{
			name:      "embedding backend down",
			question:  "q",
			embedErrs: []error{domain.ErrTransient},
			wantStage: domain.StageEmbedding,
			wantKind:  domain.KindEmbeddingUnavailable,
		},
		{
			name:      "generation rejected",
			question:  "q",
			llmErrs:   []error{domain.ErrAuthInvalid},
			wantStage: domain.StageGenerating,
			wantKind:  domain.KindGeneration,
		},
		{
			name:      "generation exhausted retries",
			question:  "q",
			llmErrs:   []error{domain.ErrRateLimited, domain.ErrRateLimited},
			wantStage: domain.StageGenerating,
			wantKind:  domain.KindGeneration,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Errors are queued twice: once for Run and once for Answer.
			backend := newMockEmbedder("q")
			backend.errs = append(append([]error{}, tt.embedErrs...), tt.embedErrs...)
			llmErrs := append(append([]error{}, tt.llmErrs...), tt.llmErrs...)
			f := newQueryFixture(t, backend, &mockLLMService{errs: llmErrs})

			outcome := f.query.Run(context.Background(), tt.question, domain.QueryOptions{})

			assert.False(t, outcome.Succeeded())
			assert.Nil(t, outcome.Answer)
			assert.Equal(t, domain.StageFailed, outcome.Stage)
			assert.Equal(t, domain.StageFailed, outcome.Trace[len(outcome.Trace)-1])
			require.NotNil(t, outcome.Err)
			assert.Equal(t, tt.wantStage, outcome.Err.Stage)
			assert.Equal(t, tt.wantKind, outcome.Err.Kind())

			answer, err := f.query.Answer(context.Background(), tt.question)
			assert.Nil(t, answer)
			stage, ok := domain.FailedStage(err)
			require.True(t, ok)
			assert.Equal(t, tt.wantStage, stage)
		})
	}
}

func TestQueryService_Canceled(t *testing.T) {
	f := newQueryFixture(t, hashembed.NewEmbeddingService(0), &mockLLMService{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	outcome := f.query.Run(ctx, "question", domain.QueryOptions{})

	require.NotNil(t, outcome.Err)
	assert.Equal(t, domain.StageEmbedding, outcome.Err.Stage)
	assert.Equal(t, domain.KindCanceled, outcome.Err.Kind())
	assert.Equal(t, 0, f.llm.calls())
}

func TestQueryService_DeadlineDuringGeneration(t *testing.T) {
	f := newQueryFixture(t, hashembed.NewEmbeddingService(0), &mockLLMService{block: true})
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	outcome := f.query.Run(ctx, "question", domain.QueryOptions{})

	require.NotNil(t, outcome.Err)
	assert.Equal(t, domain.StageGenerating, outcome.Err.Stage)
	assert.Equal(t, domain.KindTimeout, outcome.Err.Kind())
	assert.Nil(t, outcome.Answer)
}

func TestQueryService_OptionsOverrideDefaults(t *testing.T) {
	backend := newMockEmbedder("degree")
	embedder := NewEmbedder(backend, EmbedderConfig{})
	index := &mockVectorIndex{results: []domain.ScoredEntry{
		scored("a#0", "a", 0.9),
		scored("b#0", "b", 0.6),
		scored("c#0", "c", 0.3),
	}}
	retriever := NewRetriever(embedder, index, RetrieverConfig{OversampleFactor: 1})
	llm := &mockLLMService{}
	q := NewQueryService(embedder, retriever, NewContextAssembler(), NewGenerator(llm, GeneratorConfig{}),
		QueryConfig{TopK: 3, ScoreThreshold: 0.1})

	answer, err := q.AnswerWithOptions(context.Background(), "degree", domain.QueryOptions{
		TopK:           2,
		ScoreThreshold: 0.5,
	})

	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, answer.Citations)
	assert.Equal(t, 2, index.lastTopK)
	assert.InDelta(t, 0.9, answer.Confidence, 1e-9)
}
