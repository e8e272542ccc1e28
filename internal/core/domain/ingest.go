package domain

// IngestionReport summarises one ingestion batch.
type IngestionReport struct {
	// Accepted counts documents indexed successfully, including skipped ones.
	Accepted int

	// Rejected counts documents that failed.
	Rejected int

	// Skipped counts accepted documents whose content was unchanged.
	Skipped int

	// ChunksWritten is the number of index entries upserted.
	ChunksWritten int

	// ChunksDeleted is the number of stale entries removed.
	ChunksDeleted int

	// Errors holds one entry per rejected document, in input order.
	Errors []DocumentError
}

// DocumentError records why a single document was rejected.
type DocumentError struct {
	DocumentID string
	Kind       ErrorKind
	Message    string
}

// Error implements error.
func (e DocumentError) Error() string {
	return e.DocumentID + ": " + e.Message
}

// DeleteReport summarises an explicit document deletion.
type DeleteReport struct {
	// Documents is the number of document records removed.
	Documents int

	// Chunks is the number of index entries removed.
	Chunks int

	// Missing lists requested IDs that were not stored.
	Missing []string
}
