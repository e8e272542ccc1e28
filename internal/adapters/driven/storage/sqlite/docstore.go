package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/custodia-labs/mira/internal/core/domain"
	"github.com/custodia-labs/mira/internal/core/ports/driven"
)

var _ driven.DocumentStore = (*documentStore)(nil)

// documentStore keeps one row per document in the documents table.
type documentStore struct {
	store *Store
}

const documentColumns = `id, uri, title, content, metadata, content_hash, chunk_count, created_at, updated_at`

// SaveDocument upserts doc. created_at is kept from the first save.
func (d *documentStore) SaveDocument(ctx context.Context, doc *domain.Document) error {
	if doc == nil || doc.ID == "" {
		return fmt.Errorf("%w: document without an id", domain.ErrInvalidInput)
	}
	meta, err := encodeMetadata(doc.Metadata)
	if err != nil {
		return err
	}

	d.store.writeMu.Lock()
	defer d.store.writeMu.Unlock()

	_, err = d.store.db.ExecContext(ctx, `
		INSERT INTO documents (`+documentColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			uri = excluded.uri,
			title = excluded.title,
			content = excluded.content,
			metadata = excluded.metadata,
			content_hash = excluded.content_hash,
			chunk_count = excluded.chunk_count,
			updated_at = excluded.updated_at
	`, doc.ID, doc.URI, doc.Title, doc.Text, meta,
		doc.ContentHash, doc.ChunkCount, doc.CreatedAt, doc.UpdatedAt)
	if err != nil {
		return fmt.Errorf("saving document %s: %w", doc.ID, err)
	}
	return nil
}

// GetDocument returns the record for id.
func (d *documentStore) GetDocument(ctx context.Context, id string) (*domain.Document, error) {
	row := d.store.db.QueryRowContext(ctx, `SELECT `+documentColumns+` FROM documents WHERE id = ?`, id)
	doc, err := scanDocument(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("document %q: %w", id, domain.ErrNotFound)
	}
	return doc, err
}

// DeleteDocument removes the record for id.
func (d *documentStore) DeleteDocument(ctx context.Context, id string) error {
	d.store.writeMu.Lock()
	defer d.store.writeMu.Unlock()

	res, err := d.store.db.ExecContext(ctx, "DELETE FROM documents WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting document %s: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("document %q: %w", id, domain.ErrNotFound)
	}
	return nil
}

// ListDocuments returns every record ordered by id.
func (d *documentStore) ListDocuments(ctx context.Context) ([]domain.Document, error) {
	rows, err := d.store.db.QueryContext(ctx, `SELECT `+documentColumns+` FROM documents ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("querying documents: %w", err)
	}
	defer rows.Close()

	docs := []domain.Document{}
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, *doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating documents: %w", err)
	}
	return docs, nil
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row rowScanner) (*domain.Document, error) {
	var (
		doc  domain.Document
		meta string
	)
	err := row.Scan(&doc.ID, &doc.URI, &doc.Title, &doc.Text, &meta,
		&doc.ContentHash, &doc.ChunkCount, &doc.CreatedAt, &doc.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("scanning document: %w", err)
	}

	if doc.Metadata, err = decodeMetadata(meta); err != nil {
		return nil, fmt.Errorf("document %s: %w", doc.ID, err)
	}
	return &doc, nil
}

// encodeMetadata stores metadata as a JSON object; nil and empty maps both
// become "{}".
func encodeMetadata(meta map[string]any) (string, error) {
	if len(meta) == 0 {
		return "{}", nil
	}
	data, err := json.Marshal(meta)
	if err != nil {
		return "", fmt.Errorf("encoding metadata: %w", err)
	}
	return string(data), nil
}

func decodeMetadata(data string) (map[string]any, error) {
	meta := map[string]any{}
	if data == "" {
		return meta, nil
	}
	if err := json.Unmarshal([]byte(data), &meta); err != nil {
		return nil, fmt.Errorf("decoding metadata: %w", err)
	}
	return meta, nil
}
