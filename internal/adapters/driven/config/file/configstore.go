package file

import (
	"errors"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/pelletier/go-toml/v2"

	"github.com/custodia-labs/mira/internal/core/ports/driven"
)

// Ensure ConfigStore implements the interface.
var _ driven.ConfigStore = (*ConfigStore)(nil)

// HomeEnv overrides the mira home directory.
const HomeEnv = "MIRA_HOME"

// configFile is the settings file name inside the mira home.
const configFile = "config.toml"

// ConfigStore keeps settings in config.toml under the mira home. Keys are
// dotted paths ("retrieval.top_k") held flat in memory and written back as
// TOML tables. Every Set rewrites the file atomically.
type ConfigStore struct {
	mu   sync.RWMutex
	path string
	kv   map[string]any
}

// DefaultDir returns $MIRA_HOME, or ~/.mira when it is unset.
func DefaultDir() (string, error) {
	if dir := os.Getenv(HomeEnv); dir != "" {
		return dir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".mira"), nil
}

// NewConfigStore opens dir/config.toml, creating dir when needed. An empty
// dir means DefaultDir(). A missing file is an empty configuration; a file
// that does not parse is an error.
func NewConfigStore(dir string) (*ConfigStore, error) {
	if dir == "" {
		home, err := DefaultDir()
		if err != nil {
			return nil, fmt.Errorf("resolve mira home: %w", err)
		}
		dir = home
	}
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("create mira home: %w", err)
	}

	s := &ConfigStore{
		path: filepath.Join(dir, configFile),
		kv:   make(map[string]any),
	}
	if err := s.Load(); err != nil {
		return nil, err
	}
	return s, nil
}

// Path returns the configuration file path.
func (s *ConfigStore) Path() string {
	return s.path
}

// Get returns the raw value stored under key.
func (s *ConfigStore) Get(key string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.kv[key]
	return v, ok
}

// lookup returns the value under key when it has type T.
func lookup[T any](s *ConfigStore, key string) (T, bool) {
	raw, _ := s.Get(key)
	v, ok := raw.(T)
	return v, ok
}

// GetString returns key as a string, or "" when absent or not a string.
func (s *ConfigStore) GetString(key string) string {
	v, _ := lookup[string](s, key)
	return v
}

// GetInt returns key as an int. The TOML decoder yields int64 and callers
// may Set plain ints or floats; anything else reads as 0.
func (s *ConfigStore) GetInt(key string) int {
	raw, _ := s.Get(key)
	switch v := raw.(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return 0
}

// GetBool returns key as a bool, or false when absent or not a bool.
func (s *ConfigStore) GetBool(key string) bool {
	v, _ := lookup[bool](s, key)
	return v
}

// Set stores value under key and writes the file.
func (s *ConfigStore) Set(key string, value any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.kv[key] = value
	return s.writeLocked()
}

// Save writes the current settings to disk.
func (s *ConfigStore) Save() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writeLocked()
}

// writeLocked replaces config.toml through a temporary file in the same
// directory so a crash never leaves a half-written file. Callers hold mu.
func (s *ConfigStore) writeLocked() error {
	encoded, err := toml.Marshal(nestMap(s.kv))
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), configFile+".*")
	if err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(encoded); err != nil {
		tmp.Close()
		return fmt.Errorf("write config: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	if err := os.Chmod(tmp.Name(), 0600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// Load re-reads config.toml, replacing everything held in memory. A missing
// file empties the store.
func (s *ConfigStore) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		s.kv = make(map[string]any)
		return nil
	}
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}

	tables := make(map[string]any)
	if err := toml.Unmarshal(raw, &tables); err != nil {
		return fmt.Errorf("parse %s: %w", s.path, err)
	}
	s.kv = flattenMap(tables, "")
	return nil
}

// flattenMap turns decoded TOML tables into dotted keys:
// {"retrieval": {"top_k": 5}} becomes {"retrieval.top_k": 5}.
func flattenMap(tables map[string]any, prefix string) map[string]any {
	flat := make(map[string]any, len(tables))
	for name, value := range tables {
		key := name
		if prefix != "" {
			key = prefix + "." + name
		}
		sub, isTable := value.(map[string]any)
		if !isTable {
			flat[key] = value
			continue
		}
		maps.Copy(flat, flattenMap(sub, key))
	}
	return flat
}

// nestMap is the inverse of flattenMap. A key whose path collides with an
// existing value is kept verbatim at the top level.
func nestMap(flat map[string]any) map[string]any {
	keys := make([]string, 0, len(flat))
	for k := range flat {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	root := make(map[string]any)
	for _, key := range keys {
		parts := strings.Split(key, ".")
		node := root
		placed := true
		for _, part := range parts[:len(parts)-1] {
			next, exists := node[part]
			if !exists {
				child := make(map[string]any)
				node[part] = child
				node = child
				continue
			}
			child, ok := next.(map[string]any)
			if !ok {
				placed = false
				break
			}
			node = child
		}
		leaf := parts[len(parts)-1]
		if _, isTable := node[leaf].(map[string]any); !placed || isTable {
			root[key] = flat[key]
			continue
		}
		node[leaf] = flat[key]
	}
	return root
}
