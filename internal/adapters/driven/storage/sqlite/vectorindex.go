package sqlite

import (
	"context"
	"database/sql"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"

	"github.com/custodia-labs/mira/internal/core/domain"
	"github.com/custodia-labs/mira/internal/core/ports/driven"
)

const metaDimensions = "dimensions"

// vectorIndex implements driven.VectorIndex with exact cosine search over
// embeddings stored as little-endian float32 blobs.
type vectorIndex struct {
	store *Store
	dims  int
}

var _ driven.VectorIndex = (*vectorIndex)(nil)

// VectorIndex returns a VectorIndex backed by this store. The dimension is
// recorded on first use; reopening with a different dimension while chunks
// exist fails with domain.ErrDimensionMismatch.
func (s *Store) VectorIndex(ctx context.Context, dimensions int) (driven.VectorIndex, error) {
	if dimensions < 1 {
		return nil, fmt.Errorf("%w: dimensions must be >= 1, got %d", domain.ErrInvalidInput, dimensions)
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	var stored string
	err := s.db.QueryRowContext(ctx, "SELECT value FROM index_meta WHERE key = ?", metaDimensions).Scan(&stored)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return nil, fmt.Errorf("reading index dimensions: %w", err)
	default:
		if prev, _ := strconv.Atoi(stored); prev != dimensions {
			var count int
			if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM chunks").Scan(&count); err != nil {
				return nil, fmt.Errorf("counting chunks: %w", err)
			}
			if count > 0 {
				return nil, fmt.Errorf("%w: index holds %d-dimensional vectors, embedder produces %d",
					domain.ErrDimensionMismatch, prev, dimensions)
			}
		}
	}

	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO index_meta (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, metaDimensions, strconv.Itoa(dimensions)); err != nil {
		return nil, fmt.Errorf("recording index dimensions: %w", err)
	}

	return &vectorIndex{store: s, dims: dimensions}, nil
}

// Upsert writes all entries in one transaction.
func (v *vectorIndex) Upsert(ctx context.Context, entries []domain.IndexEntry) (int, error) {
	for i := range entries {
		if entries[i].ID == "" {
			return 0, fmt.Errorf("%w: entry %d has no id", domain.ErrInvalidInput, i)
		}
		if err := domain.ValidateVector(entries[i].Vector, v.dims); err != nil {
			return 0, fmt.Errorf("entry %s: %w", entries[i].ID, err)
		}
	}
	if len(entries) == 0 {
		return 0, nil
	}

	v.store.writeMu.Lock()
	defer v.store.writeMu.Unlock()

	tx, err := v.store.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	var revision int64
	if err := tx.QueryRowContext(ctx, "SELECT COALESCE(MAX(revision), 0) FROM chunks").Scan(&revision); err != nil {
		return 0, fmt.Errorf("reading revision: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO chunks (id, document_id, sequence, content, embedding, metadata, revision)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			document_id = excluded.document_id,
			sequence = excluded.sequence,
			content = excluded.content,
			embedding = excluded.embedding,
			metadata = excluded.metadata,
			revision = excluded.revision
	`)
	if err != nil {
		return 0, fmt.Errorf("preparing statement: %w", err)
	}
	defer stmt.Close()

	for i := range entries {
		e := &entries[i]
		metadataJSON, err := encodeMetadata(e.Metadata)
		if err != nil {
			return 0, err
		}
		revision++
		if _, err := stmt.ExecContext(ctx, e.ID, e.DocumentID, e.Sequence, e.Text,
			float32SliceToBytes(e.Vector), metadataJSON, revision); err != nil {
			return 0, fmt.Errorf("saving chunk %s: %w", e.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing transaction: %w", err)
	}
	return len(entries), nil
}

// Query scans all chunks, scores them and keeps the best topK.
func (v *vectorIndex) Query(
	ctx context.Context, vector domain.Vector, topK int, filter domain.MetadataFilter,
) ([]domain.ScoredEntry, error) {
	if topK < 1 {
		return nil, fmt.Errorf("%w: top_k must be >= 1, got %d", domain.ErrInvalidInput, topK)
	}
	if err := domain.ValidateVector(vector, v.dims); err != nil {
		return nil, fmt.Errorf("query vector: %w", err)
	}

	query := "SELECT id, document_id, sequence, content, embedding, metadata, revision FROM chunks"
	var args []any
	if docID, ok := filter[domain.MetaDocumentID]; ok {
		query += " WHERE document_id = ?"
		args = append(args, docID)
	}

	rows, err := v.store.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying chunks: %w", err)
	}
	defer rows.Close()

	type candidate struct {
		scored   domain.ScoredEntry
		revision int64
	}
	var candidates []candidate
	for rows.Next() {
		var e domain.IndexEntry
		var blob []byte
		var metadataJSON string
		var revision int64
		if err := rows.Scan(&e.ID, &e.DocumentID, &e.Sequence, &e.Text, &blob, &metadataJSON, &revision); err != nil {
			return nil, fmt.Errorf("scanning chunk: %w", err)
		}
		meta, err := decodeMetadata(metadataJSON)
		if err != nil {
			return nil, err
		}
		if !filter.Matches(meta) {
			continue
		}
		e.Metadata = meta
		e.Vector = bytesToFloat32Slice(blob)
		candidates = append(candidates, candidate{
			scored:   domain.ScoredEntry{IndexEntry: e, Score: domain.CosineSimilarity(vector, e.Vector)},
			revision: revision,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating chunks: %w", err)
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].scored.Score != candidates[j].scored.Score {
			return candidates[i].scored.Score > candidates[j].scored.Score
		}
		return candidates[i].revision > candidates[j].revision
	})
	if len(candidates) > topK {
		candidates = candidates[:topK]
	}

	results := make([]domain.ScoredEntry, len(candidates))
	for i := range candidates {
		results[i] = candidates[i].scored
	}
	return results, nil
}

// Delete removes chunks by ID.
func (v *vectorIndex) Delete(ctx context.Context, ids []string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	v.store.writeMu.Lock()
	defer v.store.writeMu.Unlock()

	tx, err := v.store.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	removed := 0
	for _, id := range ids {
		res, err := tx.ExecContext(ctx, "DELETE FROM chunks WHERE id = ?", id)
		if err != nil {
			return 0, fmt.Errorf("deleting chunk %s: %w", id, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, fmt.Errorf("counting deleted rows: %w", err)
		}
		removed += int(n)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing transaction: %w", err)
	}
	return removed, nil
}

// Count returns the number of stored chunks.
func (v *vectorIndex) Count(ctx context.Context) (int, error) {
	var count int
	if err := v.store.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM chunks").Scan(&count); err != nil {
		return 0, fmt.Errorf("counting chunks: %w", err)
	}
	return count, nil
}

// Dimensions returns the configured vector size.
func (v *vectorIndex) Dimensions() int {
	return v.dims
}

// Close is a no-op; the owning Store holds the connection.
func (v *vectorIndex) Close() error {
	return nil
}

// float32SliceToBytes converts a []float32 to a byte slice for storage.
func float32SliceToBytes(floats []float32) []byte {
	if len(floats) == 0 {
		return nil
	}
	buf := make([]byte, len(floats)*4)
	for i, f := range floats {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// bytesToFloat32Slice converts a byte slice back to []float32.
func bytesToFloat32Slice(data []byte) []float32 {
	if len(data) == 0 {
		return nil
	}
	floats := make([]float32, len(data)/4)
	for i := range floats {
		floats[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return floats
}
