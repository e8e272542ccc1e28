package normalisers

import "github.com/custodia-labs/mira/internal/core/ports/driven"

type stub struct{}

func (stub) Extensions() []string { return []string{".md"} }

func (stub) Normalise(content []byte) (*driven.NormaliseResult, error) {
	return &driven.NormaliseResult{Text: string(content), Format: "stub"}, nil
}
