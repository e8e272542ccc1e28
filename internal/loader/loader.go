// Package loader reads a credential-evaluation corpus from the local
// filesystem into documents ready for ingestion.
//
// Documents are identified by their path relative to the corpus root, and
// metadata is derived from the directory layout:
//
//	aacrao/<region>/<country>.txt              region, country
//	FCE Regulations*/<category>/<file>.txt     document_type=regulation, category
//
// File content is converted to plain text by the normaliser registered for
// its extension, so markdown and HTML sources are chunked without markup.
package loader

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/custodia-labs/mira/internal/core/domain"
	"github.com/custodia-labs/mira/internal/logger"
	"github.com/custodia-labs/mira/internal/normalisers"
)

// DefaultExtensions are the file extensions loaded when none are configured.
var DefaultExtensions = []string{".txt", ".md"}

// ErrClosed is returned by operations on a closed loader.
var ErrClosed = errors.New("loader is closed")

// Loader walks a corpus directory and watches it for changes.
type Loader struct {
	root        string
	extensions  map[string]bool
	normalisers *normalisers.Registry

	mu      sync.Mutex
	closed  bool
	watcher *fsnotify.Watcher
}

// Option configures a Loader.
type Option func(*Loader)

// WithExtensions restricts loading to files with the given extensions.
func WithExtensions(exts ...string) Option {
	return func(l *Loader) {
		l.extensions = make(map[string]bool, len(exts))
		for _, ext := range exts {
			ext = strings.ToLower(ext)
			if !strings.HasPrefix(ext, ".") {
				ext = "." + ext
			}
			l.extensions[ext] = true
		}
	}
}

// New creates a loader rooted at root.
func New(root string, opts ...Option) *Loader {
	l := &Loader{root: root, normalisers: normalisers.Default()}
	WithExtensions(DefaultExtensions...)(l)
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Root returns the corpus root directory.
func (l *Loader) Root() string {
	return l.root
}

// Validate checks that the root exists and is a directory.
func (l *Loader) Validate() error {
	info, err := os.Stat(l.root)
	if err != nil {
		return fmt.Errorf("root path error: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("root path error: %s is not a directory", l.root)
	}
	return nil
}

// Load reads every matching file under the root. Unreadable files are
// logged and skipped.
func (l *Loader) Load(ctx context.Context) ([]domain.Document, error) {
	if err := l.Validate(); err != nil {
		return nil, err
	}

	var docs []domain.Document
	err := filepath.WalkDir(l.root, func(path string, d fs.DirEntry, walkErr error) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if walkErr != nil {
			logger.Warn("skipping %s: %v", path, walkErr)
			return nil
		}
		if d.IsDir() {
			if path != l.root && isHidden(d.Name()) {
				return filepath.SkipDir
			}
			return nil
		}
		if !l.accepts(path) {
			return nil
		}

		doc, err := l.Document(path)
		if err != nil {
			logger.Warn("skipping %s: %v", path, err)
			return nil
		}
		docs = append(docs, doc)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking %s: %w", l.root, err)
	}

	logger.Debug("loaded %d documents from %s", len(docs), l.root)
	return docs, nil
}

// WithNormalisers sets the registry used to convert file content to text.
func WithNormalisers(r *normalisers.Registry) Option {
	return func(l *Loader) {
		l.normalisers = r
	}
}

// Document reads a single file into a document.
func (l *Loader) Document(path string) (domain.Document, error) {
	rel, err := l.relative(path)
	if err != nil {
		return domain.Document{}, err
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return domain.Document{}, fmt.Errorf("reading file: %w", err)
	}

	result, err := l.normalisers.For(filepath.Ext(rel)).Normalise(content)
	if err != nil {
		return domain.Document{}, fmt.Errorf("normalising %s: %w", rel, err)
	}

	title := result.Title
	if title == "" {
		title = Title(rel)
	}
	metadata := Metadata(rel)
	metadata["format"] = result.Format

	return domain.Document{
		ID:       DocumentID(rel),
		URI:      rel,
		Title:    title,
		Text:     result.Text,
		Metadata: metadata,
	}, nil
}

// DocumentIDForPath returns the document ID a file under the root is
// ingested as.
func (l *Loader) DocumentIDForPath(path string) (string, error) {
	rel, err := l.relative(path)
	if err != nil {
		return "", err
	}
	return DocumentID(rel), nil
}

func (l *Loader) relative(path string) (string, error) {
	rel, err := filepath.Rel(l.root, path)
	if err != nil {
		return "", fmt.Errorf("resolving relative path: %w", err)
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%s is outside %s", path, l.root)
	}
	return filepath.ToSlash(rel), nil
}

func (l *Loader) accepts(path string) bool {
	if isHidden(filepath.Base(path)) {
		return false
	}
	return l.extensions[strings.ToLower(filepath.Ext(path))]
}

// DocumentID converts a slash-separated relative path into a document ID.
func DocumentID(rel string) string {
	return strings.ReplaceAll(rel, "/", "_")
}

// Title returns the file name without its extension.
func Title(rel string) string {
	base := filepath.Base(rel)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// Metadata derives region, country and regulation fields from a relative path.
func Metadata(rel string) map[string]any {
	parts := strings.Split(rel, "/")
	meta := map[string]any{}

	switch {
	case parts[0] == "aacrao":
		if len(parts) >= 3 {
			meta["region"] = parts[1]
			meta["country"] = Title(parts[len(parts)-1])
		}
	case strings.HasPrefix(parts[0], "FCE Regulations"):
		meta["document_type"] = "regulation"
		if len(parts) >= 3 {
			meta["category"] = parts[1]
		}
	}
	return meta
}

// isHidden reports whether any element of path starts with a dot.
// "." and ".." are not hidden.
func isHidden(path string) bool {
	for _, part := range strings.Split(filepath.ToSlash(path), "/") {
		if part == "" || part == "." || part == ".." {
			continue
		}
		if strings.HasPrefix(part, ".") {
			return true
		}
	}
	return false
}
