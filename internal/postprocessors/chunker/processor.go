// Package chunker splits documents into token-bounded chunks on paragraph
// and sentence boundaries.
package chunker

import (
	"context"

	"github.com/custodia-labs/mira/internal/core/domain"
	"github.com/custodia-labs/mira/internal/core/ports/driven"
)

// DefaultMaxTokens is the default number of tokens per chunk.
const DefaultMaxTokens = domain.DefaultChunkMaxTokens

// DefaultOverlapTokens is the default number of tokens repeated between chunks.
const DefaultOverlapTokens = domain.DefaultChunkOverlapTokens

// Ensure Processor implements the interface.
var _ driven.PostProcessor = (*Processor)(nil)

// Processor splits document text into chunks.
// It implements the PostProcessor interface.
type Processor struct {
	maxTokens     int
	overlapTokens int
}

// Option configures the chunker processor.
type Option func(*Processor)

// WithMaxTokens sets the chunk size in tokens.
func WithMaxTokens(n int) Option {
	return func(p *Processor) {
		p.maxTokens = n
	}
}

// WithOverlap sets the overlap between chunks in tokens.
func WithOverlap(n int) Option {
	return func(p *Processor) {
		p.overlapTokens = n
	}
}

// New creates a new chunker processor with the given options.
// Parameters are validated when documents are processed.
func New(opts ...Option) *Processor {
	p := &Processor{
		maxTokens:     DefaultMaxTokens,
		overlapTokens: DefaultOverlapTokens,
	}

	for _, opt := range opts {
		opt(p)
	}

	return p
}

// Name returns the processor name.
func (p *Processor) Name() string {
	return "chunker"
}

// MaxTokens returns the configured chunk size.
func (p *Processor) MaxTokens() int {
	return p.maxTokens
}

// OverlapTokens returns the configured overlap.
func (p *Processor) OverlapTokens() int {
	return p.overlapTokens
}

// Process splits the document text into chunks.
// Input chunks are ignored; this processor creates new chunks from document text.
func (p *Processor) Process(ctx context.Context, doc *domain.Document, _ []domain.Chunk) ([]domain.Chunk, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return Split(doc, p.maxTokens, p.overlapTokens)
}
