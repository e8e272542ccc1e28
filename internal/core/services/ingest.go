package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/custodia-labs/mira/internal/core/domain"
	"github.com/custodia-labs/mira/internal/core/ports/driven"
	"github.com/custodia-labs/mira/internal/core/ports/driving"
	"github.com/custodia-labs/mira/internal/logger"
	"github.com/custodia-labs/mira/internal/retry"
)

// Ensure IngestService implements the interface.
var _ driving.IngestService = (*IngestService)(nil)

// IngestConfig controls ingestion batches.
type IngestConfig struct {
	// Concurrency is the number of documents processed in parallel.
	Concurrency int

	// Fingerprint identifies the chunking parameters and embedding model.
	// It is folded into every content hash so changing either re-indexes
	// documents that are otherwise unchanged.
	Fingerprint string

	// Retry governs transient index failures.
	Retry retry.Policy
}

// DefaultIngestConfig returns the ingestion configuration derived from defaults.
func DefaultIngestConfig() IngestConfig {
	s := domain.DefaultAppSettings()
	return IngestConfig{
		Concurrency: s.Ingest.Concurrency,
		Retry:       retry.FromSettings("vector upsert", s.Retry, 0),
	}
}

// IngestService orchestrates chunking, embedding and indexing of documents.
type IngestService struct {
	pipeline driven.PostProcessorPipeline
	embedder *Embedder
	index    driven.VectorIndex
	docStore driven.DocumentStore
	cfg      IngestConfig
	now      func() time.Time
}

// NewIngestService creates a new ingestion service.
func NewIngestService(
	pipeline driven.PostProcessorPipeline,
	embedder *Embedder,
	index driven.VectorIndex,
	docStore driven.DocumentStore,
	cfg IngestConfig,
) *IngestService {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = domain.DefaultIngestConcurrency
	}
	if cfg.Retry.Name == "" {
		cfg.Retry.Name = "vector upsert"
	}
	return &IngestService{
		pipeline: pipeline,
		embedder: embedder,
		index:    index,
		docStore: docStore,
		cfg:      cfg,
		now:      time.Now,
	}
}

// docResult is the outcome of ingesting one document.
type docResult struct {
	skipped bool
	written int
	deleted int
	err     error
}

// Ingest indexes each document independently with bounded parallelism.
// A failing document is recorded in the report and the batch continues.
// The returned error is non-nil only when ctx ends before the batch completes.
func (s *IngestService) Ingest(ctx context.Context, docs []domain.Document) (*domain.IngestionReport, error) {
	logger.Section("Ingestion")
	logger.Debug("Documents: %d, concurrency: %d", len(docs), s.cfg.Concurrency)

	results := make([]docResult, len(docs))

	// Later duplicates of an ID in the same batch are rejected so two
	// workers never race on one document.
	firstIndex := make(map[string]int, len(docs))
	for i := range docs {
		id := strings.TrimSpace(docs[i].ID)
		if j, dup := firstIndex[id]; dup && id != "" {
			results[i].err = fmt.Errorf("%w: duplicate document id %q (first at position %d)",
				domain.ErrInvalidInput, id, j)
			continue
		}
		firstIndex[id] = i
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Concurrency)
	for i := range docs {
		if results[i].err != nil {
			continue
		}
		g.Go(func() error {
			results[i] = s.ingestOne(gctx, &docs[i])
			return nil
		})
	}
	_ = g.Wait()

	report := &domain.IngestionReport{Errors: []domain.DocumentError{}}
	for i, r := range results {
		if r.err != nil {
			report.Rejected++
			report.Errors = append(report.Errors, domain.DocumentError{
				DocumentID: docs[i].ID,
				Kind:       domain.KindOf(r.err),
				Message:    r.err.Error(),
			})
			logger.Warn("Rejected %s: %v", docs[i].ID, r.err)
			continue
		}
		report.Accepted++
		report.ChunksWritten += r.written
		report.ChunksDeleted += r.deleted
		if r.skipped {
			report.Skipped++
		}
	}

	logger.Info("Ingestion complete: %d accepted (%d unchanged), %d rejected, %d chunks written, %d removed",
		report.Accepted, report.Skipped, report.Rejected, report.ChunksWritten, report.ChunksDeleted)

	if err := ctx.Err(); err != nil {
		return report, fmt.Errorf("ingest: %w", err)
	}
	return report, nil
}

// ingestOne validates, chunks and embeds one document, then records it as
// pending, upserts its chunks, prunes stale ones and saves the final record.
func (s *IngestService) ingestOne(ctx context.Context, doc *domain.Document) docResult {
	if err := ctx.Err(); err != nil {
		return docResult{err: err}
	}
	if strings.TrimSpace(doc.ID) == "" {
		return docResult{err: fmt.Errorf("%w: document id is empty", domain.ErrInvalidInput)}
	}

	logger.Debug("Processing: %s", doc.ID)

	hash := s.contentHash(doc)
	prev, err := s.docStore.GetDocument(ctx, doc.ID)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		prev = nil
	case err != nil:
		return docResult{err: fmt.Errorf("load stored document: %w", err)}
	}

	if prev != nil && prev.ContentHash == hash {
		logger.Debug("Unchanged: %s", doc.ID)
		return docResult{skipped: true}
	}

	chunks, err := s.pipeline.Process(ctx, doc)
	if err != nil {
		return docResult{err: fmt.Errorf("chunk: %w", err)}
	}
	if len(chunks) == 0 {
		return docResult{err: fmt.Errorf("%w: document produced no chunks", domain.ErrInvalidInput)}
	}

	texts := make([]string, len(chunks))
	for i := range chunks {
		texts[i] = chunks[i].Text
	}
	vectors, err := s.embedder.Embed(ctx, texts)
	if err != nil {
		return docResult{err: fmt.Errorf("embed: %w", err)}
	}

	entries := make([]domain.IndexEntry, len(chunks))
	for i := range chunks {
		entries[i] = domain.IndexEntry{
			ID:         chunks[i].ID,
			DocumentID: doc.ID,
			Sequence:   chunks[i].Sequence,
			Text:       chunks[i].Text,
			Vector:     vectors[i],
			Metadata:   entryMetadata(doc, &chunks[i]),
		}
	}

	// The pending record covers every chunk id the index may hold until the
	// final record is saved. Its empty hash forces a re-index next time.
	now := s.now()
	pending := s.newRecord(doc, prev, "", max(len(chunks), prevChunkCount(prev)), now)
	if err := s.docStore.SaveDocument(ctx, pending); err != nil {
		return docResult{err: fmt.Errorf("save pending document: %w", err)}
	}

	written, err := retry.DoValue(ctx, s.cfg.Retry, func(ctx context.Context) (int, error) {
		return s.index.Upsert(ctx, entries)
	})
	if err != nil {
		return docResult{err: fmt.Errorf("upsert: %w", err)}
	}

	deleted := 0
	if prev != nil && prev.ChunkCount > len(chunks) {
		stale := make([]string, 0, prev.ChunkCount-len(chunks))
		for seq := len(chunks); seq < prev.ChunkCount; seq++ {
			stale = append(stale, domain.ChunkID(doc.ID, seq))
		}
		deleted, err = retry.DoValue(ctx, s.cfg.Retry, func(ctx context.Context) (int, error) {
			return s.index.Delete(ctx, stale)
		})
		if err != nil {
			return docResult{err: fmt.Errorf("delete stale chunks: %w", err)}
		}
	}

	if err := s.docStore.SaveDocument(ctx, s.newRecord(doc, prev, hash, len(chunks), now)); err != nil {
		return docResult{err: fmt.Errorf("save document: %w", err)}
	}

	logger.Debug("Indexed %s: %d chunks, %d stale removed", doc.ID, written, deleted)
	return docResult{written: written, deleted: deleted}
}

// newRecord builds the stored form of doc, keeping the creation time of prev.
func (s *IngestService) newRecord(doc, prev *domain.Document, hash string, chunkCount int, now time.Time) *domain.Document {
	record := *doc
	record.Metadata = copyMetadata(doc.Metadata)
	record.ContentHash = hash
	record.ChunkCount = chunkCount
	record.CreatedAt = now
	if prev != nil && !prev.CreatedAt.IsZero() {
		record.CreatedAt = prev.CreatedAt
	}
	record.UpdatedAt = now
	return &record
}

func prevChunkCount(prev *domain.Document) int {
	if prev == nil {
		return 0
	}
	return prev.ChunkCount
}

// Delete removes documents and their index entries.
func (s *IngestService) Delete(ctx context.Context, documentIDs []string) (*domain.DeleteReport, error) {
	report := &domain.DeleteReport{Missing: []string{}}

	for _, id := range documentIDs {
		doc, err := s.docStore.GetDocument(ctx, id)
		if errors.Is(err, domain.ErrNotFound) {
			report.Missing = append(report.Missing, id)
			continue
		}
		if err != nil {
			return report, fmt.Errorf("load document %s: %w", id, err)
		}

		ids := make([]string, doc.ChunkCount)
		for seq := range ids {
			ids[seq] = domain.ChunkID(id, seq)
		}
		if len(ids) > 0 {
			n, err := retry.DoValue(ctx, s.cfg.Retry, func(ctx context.Context) (int, error) {
				return s.index.Delete(ctx, ids)
			})
			if err != nil {
				return report, fmt.Errorf("delete chunks of %s: %w", id, err)
			}
			report.Chunks += n
		}

		if err := s.docStore.DeleteDocument(ctx, id); err != nil {
			return report, fmt.Errorf("delete document %s: %w", id, err)
		}
		report.Documents++
		logger.Debug("Deleted %s (%d chunks)", id, len(ids))
	}

	return report, nil
}

// List returns the stored document records.
func (s *IngestService) List(ctx context.Context) ([]domain.Document, error) {
	return s.docStore.ListDocuments(ctx)
}

// Get returns the stored record for documentID.
func (s *IngestService) Get(ctx context.Context, documentID string) (*domain.Document, error) {
	if strings.TrimSpace(documentID) == "" {
		return nil, fmt.Errorf("%w: document id is empty", domain.ErrInvalidInput)
	}
	return s.docStore.GetDocument(ctx, documentID)
}

// contentHash fingerprints everything that ends up in the index for doc.
func (s *IngestService) contentHash(doc *domain.Document) string {
	h := sha256.New()
	meta, _ := json.Marshal(doc.Metadata) //nolint:errchkjson // map of JSON-compatible values
	for _, part := range []string{s.cfg.Fingerprint, doc.URI, doc.Title, doc.Text, string(meta)} {
		h.Write([]byte(part))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// entryMetadata merges document source fields with chunk fields.
func entryMetadata(doc *domain.Document, chunk *domain.Chunk) map[string]any {
	meta := copyMetadata(doc.Metadata)
	for k, v := range chunk.Metadata {
		meta[k] = v
	}
	meta[domain.MetaDocumentID] = doc.ID
	meta[domain.MetaSource] = doc.SourceLabel()
	if doc.Title != "" {
		meta[domain.MetaTitle] = doc.Title
	}
	return meta
}

func copyMetadata(src map[string]any) map[string]any {
	dst := make(map[string]any, len(src)+5)
	for k, v := range src {
		dst[k] = v
	}
	return dst
}
