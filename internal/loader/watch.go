package loader

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"github.com/custodia-labs/mira/internal/core/domain"
	"github.com/custodia-labs/mira/internal/logger"
)

// ChangeType classifies a corpus change.
type ChangeType string

const (
	// ChangeUpserted means the document was created or modified.
	ChangeUpserted ChangeType = "upserted"

	// ChangeDeleted means the document was removed or renamed away.
	ChangeDeleted ChangeType = "deleted"
)

// Change is a corpus file change. Document carries the new content for
// upserts and only ID and URI for deletions.
type Change struct {
	Type     ChangeType
	Document domain.Document
}

// Watch reports changes under the root until ctx is canceled or the loader
// is closed. The returned channel is closed when watching stops.
func (l *Loader) Watch(ctx context.Context) (<-chan Change, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return nil, ErrClosed
	}
	if err := l.Validate(); err != nil {
		return nil, err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating watcher: %w", err)
	}
	if err := addDirs(watcher, l.root); err != nil {
		watcher.Close()
		return nil, err
	}
	l.watcher = watcher

	changes := make(chan Change)
	go l.watchLoop(ctx, watcher, changes)
	return changes, nil
}

func (l *Loader) watchLoop(ctx context.Context, watcher *fsnotify.Watcher, changes chan<- Change) {
	defer close(changes)
	defer watcher.Close()

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if event.Has(fsnotify.Create) {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() && !isHidden(info.Name()) {
					if err := addDirs(watcher, event.Name); err != nil {
						logger.Warn("watching %s: %v", event.Name, err)
					}
					continue
				}
			}
			change := l.handleFsEvent(event)
			if change == nil {
				continue
			}
			select {
			case changes <- *change:
			case <-ctx.Done():
				return
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			logger.Warn("watch error: %v", err)
		}
	}
}

// handleFsEvent converts a filesystem event into a change, or nil when the
// event is irrelevant.
func (l *Loader) handleFsEvent(event fsnotify.Event) *Change {
	if !l.accepts(event.Name) {
		return nil
	}

	switch {
	case event.Has(fsnotify.Remove), event.Has(fsnotify.Rename):
		rel, err := l.relative(event.Name)
		if err != nil {
			return nil
		}
		return &Change{
			Type:     ChangeDeleted,
			Document: domain.Document{ID: DocumentID(rel), URI: rel},
		}

	case event.Has(fsnotify.Create), event.Has(fsnotify.Write):
		info, err := os.Stat(event.Name)
		if err != nil || info.IsDir() {
			return nil
		}
		doc, err := l.Document(event.Name)
		if err != nil {
			logger.Warn("reading %s: %v", event.Name, err)
			return nil
		}
		return &Change{Type: ChangeUpserted, Document: doc}
	}

	return nil
}

// Close stops any active watch. It is safe to call more than once.
func (l *Loader) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return nil
	}
	l.closed = true
	if l.watcher != nil {
		err := l.watcher.Close()
		l.watcher = nil
		if err != nil && !errors.Is(err, fsnotify.ErrClosed) {
			return err
		}
	}
	return nil
}

func addDirs(watcher *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && isHidden(d.Name()) {
			return filepath.SkipDir
		}
		if err := watcher.Add(path); err != nil {
			return fmt.Errorf("watching %s: %w", path, err)
		}
		return nil
	})
}
