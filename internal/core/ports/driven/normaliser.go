package driven

// NormaliseResult is the plain text extracted from a source file.
type NormaliseResult struct {
	// Text is the content to chunk and embed.
	Text string

	// Title is the title declared by the content, or empty.
	Title string

	// Format names the source format, e.g. "markdown".
	Format string
}

// Normaliser converts the content of one file format into plain text.
type Normaliser interface {
	// Extensions returns the file extensions handled, lower case with a leading dot.
	Extensions() []string

	// Normalise extracts text from content.
	// Returns domain.ErrInvalidInput for content that is not text.
	Normalise(content []byte) (*NormaliseResult, error)
}
