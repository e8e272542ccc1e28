package file

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/custodia-labs/mira/internal/core/domain"
	"github.com/custodia-labs/mira/internal/core/ports/driven"
	"github.com/custodia-labs/mira/internal/logger"
)

// Ensure PromptStore implements the interface.
var _ driven.PromptStore = (*PromptStore)(nil)

// PromptStore serves the answer prompts from <name>.txt files in a directory.
// The directory is seeded with the built-in prompts on first use. A file is
// re-read whenever its modification time changes, so edits reach a running
// MCP server without a restart. Templates the assembler cannot fill are
// rejected with domain.ErrInvalidInput.
type PromptStore struct {
	dir string

	seedOnce sync.Once

	mu    sync.Mutex
	cache map[string]cachedPrompt
}

// cachedPrompt is a parsed prompt file and the mtime it was read at.
type cachedPrompt struct {
	text    string
	err     error
	modTime time.Time
}

var defaultPrompts = map[string]string{
	driven.PromptAnswerSystem: driven.DefaultAnswerSystemPrompt,
	driven.PromptAnswerUser:   driven.DefaultAnswerUserPrompt,
}

// promptChecks reject templates that would produce a malformed request.
var promptChecks = map[string]func(string) error{
	driven.PromptAnswerSystem: func(p string) error {
		if p == "" {
			return errors.New("prompt is empty")
		}
		return nil
	},
	driven.PromptAnswerUser: func(p string) error {
		if n := strings.Count(p, "%s"); n != 2 || strings.Count(p, "%") != 2 {
			return fmt.Errorf("template needs exactly two %%s placeholders (context, question) and no other %%, found %d", n)
		}
		return nil
	},
}

// NewPromptStore creates a prompt store over dir, or DefaultDir()/prompts
// when dir is empty. Nothing is written until the first Load.
func NewPromptStore(dir string) (*PromptStore, error) {
	if dir == "" {
		home, err := DefaultDir()
		if err != nil {
			return nil, fmt.Errorf("get home directory: %w", err)
		}
		dir = filepath.Join(home, "prompts")
	}

	return &PromptStore{
		dir:   dir,
		cache: make(map[string]cachedPrompt),
	}, nil
}

// Load returns the prompt called name. A missing or unreadable file yields
// the built-in prompt; an unknown name without a file is an error.
func (s *PromptStore) Load(name string) (string, error) {
	s.seedOnce.Do(s.seed)

	builtin, known := defaultPrompts[name]
	path := s.path(name)
	info, err := os.Stat(path)
	if err != nil {
		if known {
			return builtin, nil
		}
		return "", fmt.Errorf("load prompt %q: %w", name, err)
	}

	s.mu.Lock()
	cached, ok := s.cache[name]
	s.mu.Unlock()
	if ok && cached.modTime.Equal(info.ModTime()) {
		return cached.text, cached.err
	}

	loaded := s.read(name, path, info.ModTime())
	if loaded.err != nil && errors.Is(loaded.err, os.ErrNotExist) && known {
		return builtin, nil
	}

	s.mu.Lock()
	s.cache[name] = loaded
	s.mu.Unlock()
	return loaded.text, loaded.err
}

// Reload forgets every cached prompt.
func (s *PromptStore) Reload() {
	s.mu.Lock()
	s.cache = make(map[string]cachedPrompt)
	s.mu.Unlock()
}

// Dir returns the prompt directory path.
func (s *PromptStore) Dir() string {
	return s.dir
}

func (s *PromptStore) path(name string) string {
	return filepath.Join(s.dir, name+".txt")
}

func (s *PromptStore) read(name, path string, modTime time.Time) cachedPrompt {
	data, err := os.ReadFile(path)
	if err != nil {
		return cachedPrompt{err: fmt.Errorf("load prompt %q: %w", name, err), modTime: modTime}
	}
	text := strings.TrimSpace(string(data))
	if check, ok := promptChecks[name]; ok {
		if err := check(text); err != nil {
			logger.Warn("Ignoring %s: %v", path, err)
			return cachedPrompt{err: fmt.Errorf("%w: prompt %s: %w", domain.ErrInvalidInput, path, err), modTime: modTime}
		}
	}
	return cachedPrompt{text: text, modTime: modTime}
}

// seed writes the built-in prompts and a README without touching files the
// user already has. Failure only means the built-ins are served from memory.
func (s *PromptStore) seed() {
	if err := os.MkdirAll(s.dir, 0700); err != nil {
		logger.Debug("Prompt directory unavailable: %v", err)
		return
	}

	files := map[string]string{"README.md": promptReadme}
	for name, content := range defaultPrompts {
		files[name+".txt"] = content + "\n"
	}
	for file, content := range files {
		path := filepath.Join(s.dir, file)
		if _, err := os.Stat(path); !os.IsNotExist(err) {
			continue
		}
		if err := os.WriteFile(path, []byte(content), 0600); err != nil {
			logger.Debug("Could not write %s: %v", path, err)
		}
	}
}

const promptReadme = `# Mira Prompts

These files control how Mira words its answers.

- answer_system.txt: the system instruction. Keep the rule that answers come
  only from the provided context and cite their [Source: ...] labels.
- answer_user.txt: wraps the retrieved passages and the question. It must
  contain exactly two %s placeholders, the context first and the question
  second, and no other % characters.

Edits apply on the next question, including in a running 'mira mcp serve'.
A file that breaks these rules is ignored and the built-in prompt is used.
Delete a file to restore the built-in version on the next run.
`
