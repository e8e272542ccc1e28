package cli

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCmd_Use(t *testing.T) {
	assert.Equal(t, "mira", rootCmd.Use)
}

func TestRootCmd_HasCommands(t *testing.T) {
	names := make([]string, 0)
	for _, cmd := range rootCmd.Commands() {
		names = append(names, cmd.Name())
	}

	for _, want := range []string{"ask", "search", "ingest", "document", "mcp", "settings", "version"} {
		assert.Contains(t, names, want)
	}
}

func TestRootCmd_HasPersistentFlags(t *testing.T) {
	flag := rootCmd.PersistentFlags().Lookup("verbose")
	require.NotNil(t, flag)
	assert.Equal(t, "v", flag.Shorthand)

	flag = rootCmd.PersistentFlags().Lookup("env-file")
	require.NotNil(t, flag)
	assert.Equal(t, ".env", flag.DefValue)
}

func TestRootCmd_BootstrapsAndCloses(t *testing.T) {
	_, cleanup := setupTestServicesWithMocks()
	defer cleanup()
	SetServices(nil)

	retrieval := &mockRetrievalService{}
	bootstrapCalls, closeCalls := 0, 0
	SetBootstrap(func(_ context.Context) (*Services, error) {
		bootstrapCalls++
		return &Services{
			Retrieval: retrieval,
			Settings:  &mockSettingsService{},
			Close: func() error {
				closeCalls++
				return nil
			},
		}, nil
	})

	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetArgs([]string{"search", "grading scale"})
	defer rootCmd.SetArgs(nil)

	err := rootCmd.Execute()

	require.NoError(t, err)
	assert.Equal(t, 1, bootstrapCalls)
	assert.Equal(t, 1, closeCalls)
	assert.Equal(t, "grading scale", retrieval.query)
	assert.Contains(t, buf.String(), "No results found.")
}

func TestRootCmd_BootstrapError(t *testing.T) {
	_, cleanup := setupTestServicesWithMocks()
	defer cleanup()
	SetServices(nil)
	SetBootstrap(func(_ context.Context) (*Services, error) {
		return nil, errors.New("config unreadable")
	})

	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	rootCmd.SetArgs([]string{"search", "q"})
	defer rootCmd.SetArgs(nil)

	err := rootCmd.Execute()

	require.Error(t, err)
	assert.Contains(t, err.Error(), "config unreadable")
}

func TestRootCmd_VersionSkipsBootstrap(t *testing.T) {
	_, cleanup := setupTestServicesWithMocks()
	defer cleanup()
	SetServices(nil)
	SetBootstrap(func(_ context.Context) (*Services, error) {
		return nil, errors.New("should not be called")
	})

	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetArgs([]string{"version"})
	defer rootCmd.SetArgs(nil)

	err := rootCmd.Execute()

	require.NoError(t, err)
	assert.Contains(t, buf.String(), "mira version")
}

func TestNotConfigured(t *testing.T) {
	_, cleanup := setupTestServicesWithMocks()
	defer cleanup()

	SetServices(&Services{})
	assert.EqualError(t, notConfigured("query"), "query service not configured")

	reason := errors.New("no usable LLM provider")
	SetServices(&Services{Unavailable: reason})
	err := notConfigured("query")
	assert.ErrorIs(t, err, reason)
	assert.Contains(t, err.Error(), "query service not configured")
}

func TestLoadEnvFile(t *testing.T) {
	t.Run("missing file is ignored", func(t *testing.T) {
		assert.NoError(t, loadEnvFile(filepath.Join(t.TempDir(), ".env")))
	})

	t.Run("empty path is ignored", func(t *testing.T) {
		assert.NoError(t, loadEnvFile(""))
	})

	t.Run("loads variables", func(t *testing.T) {
		const key = "MIRA_CLI_TEST_ENV_FILE"
		path := filepath.Join(t.TempDir(), ".env")
		require.NoError(t, os.WriteFile(path, []byte(key+"=loaded\n"), 0o600))
		t.Cleanup(func() { os.Unsetenv(key) })

		require.NoError(t, loadEnvFile(path))
		assert.Equal(t, "loaded", os.Getenv(key))
	})
}
