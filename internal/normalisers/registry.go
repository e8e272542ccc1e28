package normalisers

import (
	"sort"
	"strings"

	"github.com/custodia-labs/mira/internal/core/ports/driven"
	"github.com/custodia-labs/mira/internal/normalisers/html"
	"github.com/custodia-labs/mira/internal/normalisers/markdown"
	"github.com/custodia-labs/mira/internal/normalisers/plaintext"
)

// Registry selects a normaliser by file extension.
type Registry struct {
	byExt    map[string]driven.Normaliser
	fallback driven.Normaliser
}

// NewRegistry creates a registry. Files with no registered normaliser use fallback.
func NewRegistry(fallback driven.Normaliser) *Registry {
	return &Registry{
		byExt:    make(map[string]driven.Normaliser),
		fallback: fallback,
	}
}

// Default returns a registry with the built-in normalisers.
func Default() *Registry {
	r := NewRegistry(plaintext.New())
	r.Register(plaintext.New())
	r.Register(markdown.New())
	r.Register(html.New())
	return r
}

// Register adds n for each of its extensions, replacing earlier registrations.
func (r *Registry) Register(n driven.Normaliser) {
	for _, ext := range n.Extensions() {
		r.byExt[strings.ToLower(ext)] = n
	}
}

// For returns the normaliser for ext.
func (r *Registry) For(ext string) driven.Normaliser {
	if n, ok := r.byExt[strings.ToLower(ext)]; ok {
		return n
	}
	return r.fallback
}

// Extensions returns the registered extensions in sorted order.
func (r *Registry) Extensions() []string {
	exts := make([]string, 0, len(r.byExt))
	for ext := range r.byExt {
		exts = append(exts, ext)
	}
	sort.Strings(exts)
	return exts
}
