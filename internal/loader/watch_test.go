package loader

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandleFsEvent(t *testing.T) {
	tests := []struct {
		name         string
		file         string
		create       bool
		operation    fsnotify.Op
		expectChange bool
		expectedType ChangeType
	}{
		{"create file", "new.txt", true, fsnotify.Create, true, ChangeUpserted},
		{"write file", "new.txt", true, fsnotify.Write, true, ChangeUpserted},
		{"write and chmod", "new.txt", true, fsnotify.Write | fsnotify.Chmod, true, ChangeUpserted},
		{"remove file", "gone.txt", false, fsnotify.Remove, true, ChangeDeleted},
		{"rename file", "gone.txt", false, fsnotify.Rename, true, ChangeDeleted},
		{"chmod only", "new.txt", true, fsnotify.Chmod, false, ""},
		{"unsupported extension", "image.png", true, fsnotify.Create, false, ""},
		{"hidden file", ".hidden.txt", true, fsnotify.Write, false, ""},
		{"create vanished file", "vanished.txt", false, fsnotify.Create, false, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			root := t.TempDir()
			path := filepath.Join(root, tt.file)
			if tt.create {
				writeFile(t, root, tt.file, "content")
			}

			change := New(root).handleFsEvent(fsnotify.Event{Name: path, Op: tt.operation})

			if !tt.expectChange {
				assert.Nil(t, change)
				return
			}
			require.NotNil(t, change)
			assert.Equal(t, tt.expectedType, change.Type)
			assert.Equal(t, DocumentID(tt.file), change.Document.ID)
			if tt.expectedType == ChangeUpserted {
				assert.Equal(t, "content", change.Document.Text)
			}
		})
	}
}

func TestLoader_Watch(t *testing.T) {
	t.Run("reports new files", func(t *testing.T) {
		root := t.TempDir()
		l := New(root)
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		defer l.Close()

		changes, err := l.Watch(ctx)
		require.NoError(t, err)

		go func() {
			time.Sleep(50 * time.Millisecond)
			os.WriteFile(filepath.Join(root, "new-file.txt"), []byte("content"), 0o644)
		}()

		select {
		case change := <-changes:
			assert.Equal(t, ChangeUpserted, change.Type)
			assert.Equal(t, "new-file.txt", change.Document.ID)
		case <-time.After(2 * time.Second):
			t.Fatal("timeout waiting for file change event")
		}
	})

	t.Run("reports deletions in subdirectories", func(t *testing.T) {
		root := t.TempDir()
		path := writeFile(t, root, "aacrao/asia/nepal.txt", "Nepal")
		l := New(root)
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		defer l.Close()

		changes, err := l.Watch(ctx)
		require.NoError(t, err)

		go func() {
			time.Sleep(50 * time.Millisecond)
			os.Remove(path)
		}()

		select {
		case change := <-changes:
			assert.Equal(t, ChangeDeleted, change.Type)
			assert.Equal(t, "aacrao_asia_nepal.txt", change.Document.ID)
		case <-time.After(2 * time.Second):
			t.Fatal("timeout waiting for file deletion event")
		}
	})

	t.Run("closes channel when context is canceled", func(t *testing.T) {
		l := New(t.TempDir())
		defer l.Close()
		ctx, cancel := context.WithCancel(context.Background())

		changes, err := l.Watch(ctx)
		require.NoError(t, err)
		cancel()

		select {
		case _, ok := <-changes:
			if ok {
				for range changes {
				}
			}
		case <-time.After(time.Second):
			t.Fatal("channel did not close after context cancellation")
		}
	})

	t.Run("returns error for non-existent directory", func(t *testing.T) {
		changes, err := New("/non/existent/path").Watch(context.Background())
		assert.Error(t, err)
		assert.Nil(t, changes)
	})

	t.Run("returns error when closed", func(t *testing.T) {
		l := New(t.TempDir())
		require.NoError(t, l.Close())
		require.NoError(t, l.Close())

		changes, err := l.Watch(context.Background())
		assert.ErrorIs(t, err, ErrClosed)
		assert.Nil(t, changes)
	})
}
