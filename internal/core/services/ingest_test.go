package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	hashembed "github.com/custodia-labs/mira/internal/adapters/driven/embedding/hash"
	"github.com/custodia-labs/mira/internal/adapters/driven/storage/memory"
	"github.com/custodia-labs/mira/internal/core/domain"
	"github.com/custodia-labs/mira/internal/core/ports/driven"
	"github.com/custodia-labs/mira/internal/postprocessors"
	"github.com/custodia-labs/mira/internal/postprocessors/chunker"
)

type ingestFixture struct {
	service  *IngestService
	embedder *Embedder
	index    *memory.VectorIndex
	docs     *memory.DocumentStore
}

func newIngestFixture(t *testing.T, fingerprint string) *ingestFixture {
	t.Helper()
	backend := hashembed.NewEmbeddingService(0)
	embedder := NewEmbedder(backend, EmbedderConfig{Retry: fastRetry(1)})
	index := memory.NewVectorIndex(backend.Dimensions())
	docs := memory.NewDocumentStore()
	pipeline := postprocessors.NewPipeline(chunker.New(chunker.WithMaxTokens(40), chunker.WithOverlap(5)))

	return &ingestFixture{
		service: NewIngestService(pipeline, embedder, index, docs, IngestConfig{
			Concurrency: 2,
			Fingerprint: fingerprint,
			Retry:       fastRetry(1),
		}),
		embedder: embedder,
		index:    index,
		docs:     docs,
	}
}

func (f *ingestFixture) count(t *testing.T) int {
	t.Helper()
	n, err := f.index.Count(context.Background())
	require.NoError(t, err)
	return n
}

// sentences returns n distinct sentences of about ten tokens each.
func sentences(n int) string {
	parts := make([]string, n)
	for i := range parts {
		parts[i] = fmt.Sprintf("Sentence number %d describes grading scale rule %d in detail.", i, i)
	}
	return strings.Join(parts, " ")
}

func TestIngestService_IsolatesFailures(t *testing.T) {
	f := newIngestFixture(t, "fp")
	docs := []domain.Document{
		{ID: "india", URI: "aacrao/asia/india.txt", Text: sentences(3)},
		{ID: "nepal", Text: sentences(2)},
		{ID: "empty", Text: "   "},
		{ID: "ghana", Text: sentences(1)},
		{ID: "kenya", Text: sentences(6)},
	}

	report, err := f.service.Ingest(context.Background(), docs)

	require.NoError(t, err)
	assert.Equal(t, 4, report.Accepted)
	assert.Equal(t, 1, report.Rejected)
	assert.Equal(t, 0, report.Skipped)
	require.Len(t, report.Errors, 1)
	assert.Equal(t, "empty", report.Errors[0].DocumentID)
	assert.Equal(t, domain.KindInvalidInput, report.Errors[0].Kind)
	assert.Equal(t, report.ChunksWritten, f.count(t))

	stored, err := f.docs.ListDocuments(context.Background())
	require.NoError(t, err)
	assert.Len(t, stored, 4)

	for _, id := range []string{"india", "nepal", "ghana", "kenya"} {
		vec, err := f.embedder.EmbedQuery(context.Background(), "grading scale rule")
		require.NoError(t, err)
		hits, err := f.index.Query(context.Background(), vec, 10,
			domain.MetadataFilter{domain.MetaDocumentID: id})
		require.NoError(t, err)
		assert.NotEmpty(t, hits, "no chunks retrievable for %s", id)
	}
}

func TestIngestService_ReingestUnchangedIsSkipped(t *testing.T) {
	f := newIngestFixture(t, "fp")
	docs := []domain.Document{{ID: "india", Text: sentences(8)}}

	first, err := f.service.Ingest(context.Background(), docs)
	require.NoError(t, err)
	require.Equal(t, 1, first.Accepted)
	before := f.count(t)
	stored, err := f.docs.GetDocument(context.Background(), "india")
	require.NoError(t, err)

	second, err := f.service.Ingest(context.Background(), docs)

	require.NoError(t, err)
	assert.Equal(t, 1, second.Accepted)
	assert.Equal(t, 1, second.Skipped)
	assert.Equal(t, 0, second.ChunksWritten)
	assert.Equal(t, before, f.count(t))

	again, err := f.docs.GetDocument(context.Background(), "india")
	require.NoError(t, err)
	assert.Equal(t, stored.ContentHash, again.ContentHash)
	assert.Equal(t, stored.UpdatedAt, again.UpdatedAt)
}

func TestIngestService_FingerprintChangeReindexes(t *testing.T) {
	f := newIngestFixture(t, "v1")
	docs := []domain.Document{{ID: "india", Text: sentences(2)}}
	_, err := f.service.Ingest(context.Background(), docs)
	require.NoError(t, err)

	before := f.count(t)

	f.service.cfg.Fingerprint = "v2"
	report, err := f.service.Ingest(context.Background(), docs)

	require.NoError(t, err)
	assert.Equal(t, 0, report.Skipped)
	assert.Equal(t, before, report.ChunksWritten)
	assert.Equal(t, 0, report.ChunksDeleted)
	assert.Equal(t, before, f.count(t))
}

func TestIngestService_ShrinkingDocumentRemovesStaleChunks(t *testing.T) {
	f := newIngestFixture(t, "fp")
	ctx := context.Background()

	_, err := f.service.Ingest(ctx, []domain.Document{{ID: "india", Text: sentences(12)}})
	require.NoError(t, err)
	long := f.count(t)
	require.Greater(t, long, 2)

	report, err := f.service.Ingest(ctx, []domain.Document{{ID: "india", Text: sentences(1)}})

	require.NoError(t, err)
	assert.Equal(t, 1, report.ChunksWritten)
	assert.Equal(t, long-1, report.ChunksDeleted)
	assert.Equal(t, 1, f.count(t))

	stored, err := f.docs.GetDocument(ctx, "india")
	require.NoError(t, err)
	assert.Equal(t, 1, stored.ChunkCount)
}

// failingDocStore fails the nth SaveDocument call.
type failingDocStore struct {
	driven.DocumentStore

	mu     sync.Mutex
	saves  int
	failOn int
}

func (s *failingDocStore) SaveDocument(ctx context.Context, doc *domain.Document) error {
	s.mu.Lock()
	s.saves++
	fail := s.saves == s.failOn
	s.mu.Unlock()
	if fail {
		return errors.New("disk full")
	}
	return s.DocumentStore.SaveDocument(ctx, doc)
}

func TestIngestService_FailedSaveKeepsChunksTracked(t *testing.T) {
	f := newIngestFixture(t, "fp")
	ctx := context.Background()
	f.service.docStore = &failingDocStore{DocumentStore: f.docs, failOn: 2}

	report, err := f.service.Ingest(ctx, []domain.Document{{ID: "india", Text: sentences(12)}})

	require.NoError(t, err)
	assert.Equal(t, 1, report.Rejected)
	assert.Equal(t, domain.KindInternal, report.Errors[0].Kind)
	written := f.count(t)
	require.Greater(t, written, 2)

	pending, err := f.docs.GetDocument(ctx, "india")
	require.NoError(t, err)
	assert.Empty(t, pending.ContentHash)
	assert.Equal(t, written, pending.ChunkCount)

	deleted, err := f.service.Delete(ctx, []string{"india"})
	require.NoError(t, err)
	assert.Equal(t, written, deleted.Chunks)
	assert.Equal(t, 0, f.count(t))
}

func TestIngestService_FailedSaveAfterShrinkIsRecoverable(t *testing.T) {
	f := newIngestFixture(t, "fp")
	ctx := context.Background()
	docs := []domain.Document{{ID: "india", Text: sentences(12)}}
	_, err := f.service.Ingest(ctx, docs)
	require.NoError(t, err)
	long := f.count(t)
	require.Greater(t, long, 2)

	f.service.docStore = &failingDocStore{DocumentStore: f.docs, failOn: 2}
	report, err := f.service.Ingest(ctx, []domain.Document{{ID: "india", Text: sentences(1)}})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Rejected)

	pending, err := f.docs.GetDocument(ctx, "india")
	require.NoError(t, err)
	assert.Equal(t, long, pending.ChunkCount)

	// The original text is no longer what the index holds, so it is re-indexed.
	f.service.docStore = f.docs
	again, err := f.service.Ingest(ctx, docs)
	require.NoError(t, err)
	assert.Equal(t, 0, again.Skipped)
	assert.Equal(t, long, again.ChunksWritten)
	assert.Equal(t, long, f.count(t))

	_, err = f.service.Delete(ctx, []string{"india"})
	require.NoError(t, err)
	assert.Equal(t, 0, f.count(t))
}

func TestIngestService_FailedPendingSaveWritesNothing(t *testing.T) {
	f := newIngestFixture(t, "fp")
	ctx := context.Background()
	f.service.docStore = &failingDocStore{DocumentStore: f.docs, failOn: 1}

	report, err := f.service.Ingest(ctx, []domain.Document{{ID: "india", Text: sentences(4)}})

	require.NoError(t, err)
	assert.Equal(t, 1, report.Rejected)
	assert.Contains(t, report.Errors[0].Message, "save pending document")
	assert.Equal(t, 0, f.count(t))
	_, err = f.docs.GetDocument(ctx, "india")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestIngestService_DuplicateIDsInBatch(t *testing.T) {
	f := newIngestFixture(t, "fp")

	report, err := f.service.Ingest(context.Background(), []domain.Document{
		{ID: "india", Text: sentences(1)},
		{ID: "india", Text: sentences(2)},
	})

	require.NoError(t, err)
	assert.Equal(t, 1, report.Accepted)
	assert.Equal(t, 1, report.Rejected)
	assert.Contains(t, report.Errors[0].Message, "duplicate")
}

func TestIngestService_EntryMetadata(t *testing.T) {
	f := newIngestFixture(t, "fp")
	ctx := context.Background()
	_, err := f.service.Ingest(ctx, []domain.Document{{
		ID:       "aacrao_asia_india",
		URI:      "aacrao/asia/india.txt",
		Title:    "India",
		Text:     "India awards the three-year Bachelor of Commerce.",
		Metadata: map[string]any{"country": "india", "region": "asia"},
	}})
	require.NoError(t, err)

	vec, err := f.embedder.EmbedQuery(ctx, "Bachelor of Commerce")
	require.NoError(t, err)
	hits, err := f.index.Query(ctx, vec, 1, domain.MetadataFilter{"country": "india"})
	require.NoError(t, err)
	require.Len(t, hits, 1)

	meta := hits[0].Metadata
	assert.Equal(t, "aacrao/asia/india.txt", meta[domain.MetaSource])
	assert.Equal(t, "aacrao_asia_india", meta[domain.MetaDocumentID])
	assert.Equal(t, "India", meta[domain.MetaTitle])
	assert.Equal(t, "asia", meta["region"])
	assert.Equal(t, 0, meta[domain.MetaChunkIndex])
}

func TestIngestService_Delete(t *testing.T) {
	f := newIngestFixture(t, "fp")
	ctx := context.Background()
	_, err := f.service.Ingest(ctx, []domain.Document{
		{ID: "india", Text: sentences(6)},
		{ID: "nepal", Text: sentences(1)},
	})
	require.NoError(t, err)
	total := f.count(t)

	report, err := f.service.Delete(ctx, []string{"india", "unknown"})

	require.NoError(t, err)
	assert.Equal(t, 1, report.Documents)
	assert.Equal(t, total-1, report.Chunks)
	assert.Equal(t, []string{"unknown"}, report.Missing)
	assert.Equal(t, 1, f.count(t))

	docs, err := f.service.List(ctx)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "nepal", docs[0].ID)
}

func TestIngestService_Get(t *testing.T) {
	f := newIngestFixture(t, "fp")
	ctx := context.Background()
	_, err := f.service.Ingest(ctx, []domain.Document{{ID: "ghana", Title: "Ghana", Text: sentences(2)}})
	require.NoError(t, err)

	doc, err := f.service.Get(ctx, "ghana")
	require.NoError(t, err)
	assert.Equal(t, "Ghana", doc.Title)
	assert.NotEmpty(t, doc.ContentHash)

	_, err = f.service.Get(ctx, "togo")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = f.service.Get(ctx, "  ")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestIngestService_Canceled(t *testing.T) {
	f := newIngestFixture(t, "fp")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report, err := f.service.Ingest(ctx, []domain.Document{{ID: "india", Text: sentences(1)}})

	require.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, report)
	assert.Equal(t, 0, report.Accepted)
	assert.Equal(t, 0, f.count(t))
}
