package domain

// RetrieveOptions configures a retrieval query.
type RetrieveOptions struct {
	// TopK is the maximum number of passages returned. Must be >= 1.
	TopK int

	// ScoreThreshold drops passages scoring below it. Zero keeps everything
	// with a non-negative similarity.
	ScoreThreshold float64

	// Filter restricts candidates by metadata equality.
	Filter MetadataFilter
}

// RetrievedPassage is a chunk returned for a query, with its relevance score.
// Passages are produced fresh per query and never persisted.
type RetrievedPassage struct {
	// ChunkID is the index entry identifier.
	ChunkID string

	// DocumentID is the parent document.
	DocumentID string

	// Text is the chunk content.
	Text string

	// Score is the cosine similarity to the query.
	Score float64

	// Metadata is the entry metadata (source, country, chunk_index, ...).
	Metadata map[string]any
}

// Source returns the label shown in prompt context and CLI output.
// Falls back to the document ID when no source URI was recorded.
func (p *RetrievedPassage) Source() string {
	if s, ok := p.Metadata[MetaSource].(string); ok && s != "" {
		return s
	}
	return p.DocumentID
}

// PassageFromEntry converts a scored index entry into a passage.
func PassageFromEntry(e ScoredEntry) RetrievedPassage {
	return RetrievedPassage{
		ChunkID:    e.ID,
		DocumentID: e.DocumentID,
		Text:       e.Text,
		Score:      e.Score,
		Metadata:   e.Metadata,
	}
}
