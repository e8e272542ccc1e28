package domain

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// Document represents a knowledge-base document submitted for ingestion.
// A stored Document is never mutated; re-ingesting the same ID supersedes it.
type Document struct {
	// ID is the unique identifier for the document.
	ID string

	// URI is the original location (object key, file path, URL).
	URI string

	// Title is the human-readable title.
	Title string

	// Text is the full raw text content before chunking.
	Text string

	// Metadata contains source-specific fields such as institution,
	// country, region or document_type.
	Metadata map[string]any

	// ContentHash fingerprints Text and the chunking parameters used to index it.
	// Set by the ingestion pipeline when the document is stored.
	ContentHash string

	// ChunkCount is the number of chunks indexed for the stored version.
	ChunkCount int

	// CreatedAt is when the document was first ingested.
	CreatedAt time.Time

	// UpdatedAt is when the stored version was last superseded.
	UpdatedAt time.Time
}

// SourceLabel returns the label used when citing the document in a prompt.
func (d *Document) SourceLabel() string {
	if d.URI != "" {
		return d.URI
	}
	return d.ID
}

// Chunk represents a bounded text segment within a document.
// Chunks exist only as ingestion-time artifacts feeding the index.
type Chunk struct {
	// ID is derived deterministically from DocumentID and Sequence.
	ID string

	// DocumentID links to the parent Document.
	DocumentID string

	// Sequence is the zero-based ordinal position within the document.
	Sequence int

	// Text is the chunk content, including any overlap prefix.
	Text string

	// Offset is the byte offset in the document where this chunk's own span begins.
	Offset int

	// OverlapLen is the number of leading bytes of Text repeated from the previous chunk.
	OverlapLen int

	// TokenCount is the number of tokens in Text.
	TokenCount int

	// Metadata contains chunk-specific key-value pairs.
	Metadata map[string]any
}

// OwnText returns the part of the chunk that is not shared with its predecessor.
func (c *Chunk) OwnText() string {
	return c.Text[c.OverlapLen:]
}

// ChunkID derives the stable identifier of the chunk at sequence in documentID.
func ChunkID(documentID string, sequence int) string {
	return fmt.Sprintf("%s#%d", documentID, sequence)
}

// Reassemble rebuilds the original document text from its chunks.
// Chunks may be supplied in any order; they are joined by Sequence.
func Reassemble(chunks []Chunk) string {
	ordered := make([]Chunk, len(chunks))
	copy(ordered, chunks)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Sequence < ordered[j].Sequence
	})

	var b strings.Builder
	for i := range ordered {
		b.WriteString(ordered[i].OwnText())
	}
	return b.String()
}

// Vector is a fixed-dimension embedding.
type Vector = []float32

// IndexEntry is a chunk vector plus the metadata stored alongside it.
type IndexEntry struct {
	// ID is the chunk ID. Upserting an existing ID replaces the entry.
	ID string

	// DocumentID links to the parent Document.
	DocumentID string

	// Sequence is the chunk's position within the document.
	Sequence int

	// Text is the chunk content returned as retrieval context.
	Text string

	// Vector is the chunk embedding.
	Vector Vector

	// Metadata holds document source fields plus chunk fields.
	Metadata map[string]any
}

// ScoredEntry is an IndexEntry returned from a similarity query.
type ScoredEntry struct {
	IndexEntry

	// Score is the cosine similarity to the query vector.
	Score float64
}

// MetadataFilter is an equality predicate over entry metadata.
// Every key must be present and its value, formatted with %v, must match.
type MetadataFilter map[string]string

// Matches reports whether metadata satisfies the filter.
// A nil or empty filter matches everything.
func (f MetadataFilter) Matches(metadata map[string]any) bool {
	for key, want := range f {
		got, ok := metadata[key]
		if !ok {
			return false
		}
		if fmt.Sprintf("%v", got) != want {
			return false
		}
	}
	return true
}

// Well-known metadata keys written on every index entry.
const (
	MetaDocumentID  = "document_id"
	MetaChunkIndex  = "chunk_index"
	MetaTotalChunks = "total_chunks"
	MetaSource      = "source"
	MetaTitle       = "title"
)
