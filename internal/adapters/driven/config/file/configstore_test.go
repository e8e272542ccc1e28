package file

import (
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewConfigStore_Success(t *testing.T) {
	tmpDir := t.TempDir()

	store, err := NewConfigStore(tmpDir)

	require.NoError(t, err)
	require.NotNil(t, store)
	assert.Equal(t, filepath.Join(tmpDir, "config.toml"), store.Path())
}

func TestNewConfigStore_DefaultDir(t *testing.T) {
	home := t.TempDir()
	t.Setenv(HomeEnv, home)

	store, err := NewConfigStore("")

	require.NoError(t, err)
	require.NotNil(t, store)
	assert.Equal(t, filepath.Join(home, "config.toml"), store.Path())
}

func TestDefaultDir_FallsBackToHome(t *testing.T) {
	t.Setenv(HomeEnv, "")
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("Cannot determine home directory")
	}

	dir, err := DefaultDir()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, ".mira"), dir)
}

func TestNewConfigStore_CreatesNestedHome(t *testing.T) {
	home := filepath.Join(t.TempDir(), "evaluator", ".mira")

	store, err := NewConfigStore(home)

	require.NoError(t, err)
	require.NoError(t, store.Set("vector_index.backend", "sqlite"))
	info, err := os.Stat(home)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestNewConfigStore_UnusableDir(t *testing.T) {
	store, err := NewConfigStore("/dev/null/mira")

	assert.Error(t, err)
	assert.Nil(t, store)
}

func TestNewConfigStore_CorruptedFile(t *testing.T) {
	tmpDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(tmpDir, "config.toml"), []byte("[retrieval\ntop_k = "), 0600))

	store, err := NewConfigStore(tmpDir)

	assert.Error(t, err)
	assert.Nil(t, store)
}

func TestConfigStore_SavesDottedKeysAsTables(t *testing.T) {
	tmpDir := t.TempDir()
	store, err := NewConfigStore(tmpDir)
	require.NoError(t, err)

	require.NoError(t, store.Set("embedding.provider", "openai"))
	require.NoError(t, store.Set("embedding.dimensions", 1536))
	require.NoError(t, store.Set("retrieval.top_k", 5))

	data, err := os.ReadFile(store.Path())
	require.NoError(t, err)
	assert.Contains(t, string(data), "[embedding]")
	assert.Contains(t, string(data), "[retrieval]")

	reloaded, err := NewConfigStore(tmpDir)
	require.NoError(t, err)
	assert.Equal(t, "openai", reloaded.GetString("embedding.provider"))
	assert.Equal(t, 1536, reloaded.GetInt("embedding.dimensions"))
	assert.Equal(t, 5, reloaded.GetInt("retrieval.top_k"))
}

func TestNestMap(t *testing.T) {
	nested := nestMap(map[string]any{
		"a.b":   1,
		"a.c.d": "x",
		"top":   true,
		"top.x": 2,
	})

	assert.Equal(t, map[string]any{
		"a": map[string]any{
			"b": 1,
			"c": map[string]any{"d": "x"},
		},
		"top":   true,
		"top.x": 2,
	}, nested)
	assert.Equal(t, map[string]any{"a.b": 1, "a.c.d": "x", "top": true, "top.x": 2}, flattenMap(map[string]any{
		"a":     map[string]any{"b": 1, "c": map[string]any{"d": "x"}},
		"top":   true,
		"top.x": 2,
	}, ""))
}

func TestConfigStore_ReadsHandWrittenFile(t *testing.T) {
	tmpDir := t.TempDir()
	content := `
[vector_index]
backend = "qdrant"
url = "http://localhost:6334"
collection = "aacrao"

[chunking]
max_tokens = 256
overlap_tokens = 0

[retrieval]
top_k = 8
score_threshold = 0.35
oversample_factor = 3
dedupe_by_document = false

[retry]
base_delay = "250ms"
`
	require.NoError(t, os.WriteFile(filepath.Join(tmpDir, "config.toml"), []byte(content), 0600))

	store, err := NewConfigStore(tmpDir)
	require.NoError(t, err)

	assert.Equal(t, "qdrant", store.GetString("vector_index.backend"))
	assert.Equal(t, "http://localhost:6334", store.GetString("vector_index.url"))
	assert.Equal(t, 256, store.GetInt("chunking.max_tokens"))
	assert.Equal(t, 3, store.GetInt("retrieval.oversample_factor"))
	assert.False(t, store.GetBool("retrieval.dedupe_by_document"))
	assert.Equal(t, "250ms", store.GetString("retry.base_delay"))

	overlap, ok := store.Get("chunking.overlap_tokens")
	assert.True(t, ok)
	assert.Equal(t, int64(0), overlap)

	threshold, ok := store.Get("retrieval.score_threshold")
	assert.True(t, ok)
	assert.InDelta(t, 0.35, threshold, 1e-9)
}

func TestConfigStore_TypedGetters(t *testing.T) {
	store, err := NewConfigStore(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, store.Set("llm.provider", "anthropic"))
	require.NoError(t, store.Set("chunking.max_tokens", 512))
	require.NoError(t, store.Set("retrieval.oversample_factor", int64(4)))
	require.NoError(t, store.Set("embedding.rate_per_second", 2.5))
	require.NoError(t, store.Set("retrieval.dedupe_by_document", true))

	tests := []struct {
		name string
		got  any
		want any
	}{
		{"string", store.GetString("llm.provider"), "anthropic"},
		{"string of int", store.GetString("chunking.max_tokens"), ""},
		{"missing string", store.GetString("llm.model"), ""},
		{"int", store.GetInt("chunking.max_tokens"), 512},
		{"int64", store.GetInt("retrieval.oversample_factor"), 4},
		{"float truncated", store.GetInt("embedding.rate_per_second"), 2},
		{"int of string", store.GetInt("llm.provider"), 0},
		{"missing int", store.GetInt("chunking.overlap_tokens"), 0},
		{"bool", store.GetBool("retrieval.dedupe_by_document"), true},
		{"bool of string", store.GetBool("llm.provider"), false},
		{"missing bool", store.GetBool("retrieval.unknown"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.got)
		})
	}
}

func TestConfigStore_SetOverwritesAndPersists(t *testing.T) {
	tmpDir := t.TempDir()
	store, err := NewConfigStore(tmpDir)
	require.NoError(t, err)

	require.NoError(t, store.Set("vector_index.backend", "memory"))
	require.NoError(t, store.Set("vector_index.backend", "sqlite"))

	reloaded, err := NewConfigStore(tmpDir)
	require.NoError(t, err)
	assert.Equal(t, "sqlite", reloaded.GetString("vector_index.backend"))
}

func TestConfigStore_LoadPicksUpExternalEdits(t *testing.T) {
	tmpDir := t.TempDir()
	store, err := NewConfigStore(tmpDir)
	require.NoError(t, err)
	require.NoError(t, store.Set("chunking.max_tokens", 512))

	require.NoError(t, os.WriteFile(store.Path(), []byte("[chunking]\nmax_tokens = 128\n"), 0600))
	require.NoError(t, store.Load())

	assert.Equal(t, 128, store.GetInt("chunking.max_tokens"))
}

func TestConfigStore_LoadMissingFileStartsEmpty(t *testing.T) {
	store, err := NewConfigStore(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, store.Set("retrieval.top_k", 5))
	require.NoError(t, os.Remove(store.Path()))

	require.NoError(t, store.Load())

	_, ok := store.Get("retrieval.top_k")
	assert.False(t, ok)
}

func TestConfigStore_FilePermissions(t *testing.T) {
	store, err := NewConfigStore(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, store.Set("llm.api_key", "sk-test"))

	info, err := os.Stat(store.Path())
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
}

func TestConfigStore_SaveFailsWhenDirRemoved(t *testing.T) {
	tmpDir := filepath.Join(t.TempDir(), "home")
	store, err := NewConfigStore(tmpDir)
	require.NoError(t, err)
	require.NoError(t, os.RemoveAll(tmpDir))

	assert.Error(t, store.Set("retrieval.top_k", 5))
	assert.Error(t, store.Save())
}

func TestConfigStore_ConcurrentSettings(t *testing.T) {
	store, err := NewConfigStore(t.TempDir())
	require.NoError(t, err)

	keys := []string{"retrieval.top_k", "chunking.max_tokens", "chunking.overlap_tokens", "ingest.concurrency"}
	var wg sync.WaitGroup
	for i, key := range keys {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, store.Set(key, i+1))
			_ = store.GetInt(key)
		}()
	}
	wg.Wait()

	for i, key := range keys {
		assert.Equal(t, i+1, store.GetInt(key))
	}
}

func TestConfigStore_SetLeavesNoTempFiles(t *testing.T) {
	tmpDir := t.TempDir()
	store, err := NewConfigStore(tmpDir)
	require.NoError(t, err)

	for i := range 3 {
		require.NoError(t, store.Set("retrieval.top_k", i+1))
	}

	entries, err := os.ReadDir(tmpDir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "config.toml", entries[0].Name())
}

func TestConfigStore_ParseErrorNamesFile(t *testing.T) {
	tmpDir := t.TempDir()
	store, err := NewConfigStore(tmpDir)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(store.Path(), []byte("top_k = = 5"), 0600))

	err = store.Load()

	require.Error(t, err)
	assert.Contains(t, err.Error(), store.Path())
}
