// Package postprocessors turns normalised documents into indexable chunks.
package postprocessors

import (
	"context"
	"fmt"

	"github.com/custodia-labs/mira/internal/core/domain"
	"github.com/custodia-labs/mira/internal/core/ports/driven"
)

// Ensure Pipeline implements the interface.
var _ driven.PostProcessorPipeline = (*Pipeline)(nil)

// Pipeline runs processors in order. The first stage receives nil and
// creates the chunks; later stages rewrite them. After every stage the
// chunks must still belong to the document and be numbered 0..n-1, since
// chunk ids and reassembly depend on both.
type Pipeline struct {
	stages []driven.PostProcessor
}

// NewPipeline returns a pipeline over the given stages.
func NewPipeline(stages ...driven.PostProcessor) *Pipeline {
	return &Pipeline{stages: stages}
}

// Add appends a stage.
func (p *Pipeline) Add(stage driven.PostProcessor) {
	p.stages = append(p.stages, stage)
}

// Len returns the number of stages.
func (p *Pipeline) Len() int {
	return len(p.stages)
}

// Names lists the stages in run order.
func (p *Pipeline) Names() []string {
	names := make([]string, len(p.stages))
	for i, stage := range p.stages {
		names[i] = stage.Name()
	}
	return names
}

// Process chunks doc. It stops between stages once ctx is done.
func (p *Pipeline) Process(ctx context.Context, doc *domain.Document) ([]domain.Chunk, error) {
	if doc == nil {
		return nil, fmt.Errorf("%w: document is nil", domain.ErrInvalidInput)
	}

	var chunks []domain.Chunk
	for _, stage := range p.stages {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out, err := stage.Process(ctx, doc, chunks)
		if err != nil {
			return nil, fmt.Errorf("processor %s: %w", stage.Name(), err)
		}
		if err := checkChunks(doc.ID, out); err != nil {
			return nil, fmt.Errorf("processor %s: %w", stage.Name(), err)
		}
		chunks = out
	}
	return chunks, nil
}

func checkChunks(docID string, chunks []domain.Chunk) error {
	for i, c := range chunks {
		if c.DocumentID != docID {
			return fmt.Errorf("chunk %d belongs to %q, not %q", i, c.DocumentID, docID)
		}
		if c.Sequence != i {
			return fmt.Errorf("chunk %d has sequence %d", i, c.Sequence)
		}
	}
	return nil
}
