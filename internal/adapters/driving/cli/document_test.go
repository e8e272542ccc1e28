package cli

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/mira/internal/core/domain"
)

func testDocuments() []domain.Document {
	created := time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)
	return []domain.Document{
		{
			ID:         "aacrao_asia_nepal.txt",
			URI:        "aacrao/asia/nepal.txt",
			Title:      "nepal",
			Text:       "Nepal awards the School Leaving Certificate.",
			Metadata:   map[string]any{"region": "asia", "country": "nepal"},
			ChunkCount: 2,
			CreatedAt:  created,
			UpdatedAt:  created,
		},
		{
			ID:         "aacrao_africa_ghana.txt",
			URI:        "aacrao/africa/ghana.txt",
			Title:      "ghana",
			Text:       "Ghana awards the WASSCE.",
			ChunkCount: 1,
			CreatedAt:  created,
			UpdatedAt:  created,
		},
	}
}

// Document Command Tests

func TestDocumentCmd_Use(t *testing.T) {
	assert.Equal(t, "document", documentCmd.Use)
}

func TestDocumentCmd_Short(t *testing.T) {
	assert.Equal(t, "Manage indexed documents", documentCmd.Short)
}

func TestDocumentCmd_HasSubcommands(t *testing.T) {
	commands := documentCmd.Commands()
	commandNames := make([]string, 0, len(commands))
	for _, cmd := range commands {
		commandNames = append(commandNames, cmd.Name())
	}

	assert.Contains(t, commandNames, "list")
	assert.Contains(t, commandNames, "get")
	assert.Contains(t, commandNames, "content")
	assert.Contains(t, commandNames, "delete")
}

// Document List Tests

func TestDocumentListCmd_Use(t *testing.T) {
	assert.Equal(t, "list", documentListCmd.Use)
}

func TestDocumentListCmd_SortedOutput(t *testing.T) {
	mocks, cleanup := setupTestServicesWithMocks()
	defer cleanup()
	mocks.ingest.documents = testDocuments()

	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetArgs([]string{"document", "list"})
	defer rootCmd.SetArgs(nil)

	err := rootCmd.Execute()

	require.NoError(t, err)
	out := buf.String()
	assert.Contains(t, out, "Documents:")
	assert.Contains(t, out, "Title: nepal")
	assert.Contains(t, out, "Chunks: 2")
	assert.Contains(t, out, "Total: 2 documents")
	assert.Less(t, bytes.Index(buf.Bytes(), []byte("aacrao_africa_ghana.txt")),
		bytes.Index(buf.Bytes(), []byte("aacrao_asia_nepal.txt")))
}

func TestDocumentListCmd_Empty(t *testing.T) {
	cleanup := setupTestServices()
	defer cleanup()

	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetArgs([]string{"document", "list"})
	defer rootCmd.SetArgs(nil)

	err := rootCmd.Execute()

	require.NoError(t, err)
	assert.Contains(t, buf.String(), "No documents indexed.")
}

func TestDocumentListCmd_Error(t *testing.T) {
	mocks, cleanup := setupTestServicesWithMocks()
	defer cleanup()
	mocks.ingest.err = errors.New("store closed")

	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	rootCmd.SetArgs([]string{"document", "list"})
	defer rootCmd.SetArgs(nil)

	err := rootCmd.Execute()

	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to list documents: store closed")
}

// Document Get Tests

func TestDocumentGetCmd_RequiresArg(t *testing.T) {
	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	rootCmd.SetArgs([]string{"document", "get"})
	defer rootCmd.SetArgs(nil)

	err := rootCmd.Execute()

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "accepts 1 arg(s)")
}

func TestDocumentGetCmd_ShowsInfo(t *testing.T) {
	mocks, cleanup := setupTestServicesWithMocks()
	defer cleanup()
	mocks.ingest.documents = testDocuments()

	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetArgs([]string{"document", "get", "aacrao_asia_nepal.txt"})
	defer rootCmd.SetArgs(nil)

	err := rootCmd.Execute()

	require.NoError(t, err)
	out := buf.String()
	assert.Contains(t, out, "Document: aacrao_asia_nepal.txt")
	assert.Contains(t, out, "URI:      aacrao/asia/nepal.txt")
	assert.Contains(t, out, "Chunks:   2")
	assert.Contains(t, out, "Created:  2026-03-01 09:30:00")
	assert.Contains(t, out, "Metadata:")
	assert.Less(t, bytes.Index(buf.Bytes(), []byte("country: nepal")),
		bytes.Index(buf.Bytes(), []byte("region: asia")))
}

func TestDocumentGetCmd_NotFound(t *testing.T) {
	mocks, cleanup := setupTestServicesWithMocks()
	defer cleanup()
	mocks.ingest.documents = testDocuments()

	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	rootCmd.SetArgs([]string{"document", "get", "missing"})
	defer rootCmd.SetArgs(nil)

	err := rootCmd.Execute()

	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.Contains(t, err.Error(), "document missing")
}

// Document Content Tests

func TestDocumentContentCmd_PrintsText(t *testing.T) {
	mocks, cleanup := setupTestServicesWithMocks()
	defer cleanup()
	mocks.ingest.documents = testDocuments()

	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetArgs([]string{"document", "content", "aacrao_africa_ghana.txt"})
	defer rootCmd.SetArgs(nil)

	err := rootCmd.Execute()

	require.NoError(t, err)
	assert.Equal(t, "Ghana awards the WASSCE.\n", buf.String())
}

// Document Delete Tests

func TestDocumentDeleteCmd_RequiresArg(t *testing.T) {
	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	rootCmd.SetArgs([]string{"document", "delete"})
	defer rootCmd.SetArgs(nil)

	err := rootCmd.Execute()

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "requires at least 1 arg(s)")
}

func TestDocumentDeleteCmd_ReportsMissing(t *testing.T) {
	mocks, cleanup := setupTestServicesWithMocks()
	defer cleanup()
	mocks.ingest.documents = testDocuments()

	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetArgs([]string{"document", "delete", "aacrao_asia_nepal.txt", "missing"})
	defer rootCmd.SetArgs(nil)

	err := rootCmd.Execute()

	require.NoError(t, err)
	_, deleted := mocks.ingest.calls()
	assert.Equal(t, [][]string{{"aacrao_asia_nepal.txt", "missing"}}, deleted)
	assert.Contains(t, buf.String(), "Deleted 1 documents (2 chunks).")
	assert.Contains(t, buf.String(), "not found: missing")
}

func TestDocumentCmd_ServiceNotConfigured(t *testing.T) {
	_, cleanup := setupTestServicesWithMocks()
	defer cleanup()
	ingestService = nil

	for _, args := range [][]string{
		{"document", "list"},
		{"document", "get", "x"},
		{"document", "delete", "x"},
	} {
		buf := new(bytes.Buffer)
		rootCmd.SetOut(buf)
		rootCmd.SetErr(buf)
		rootCmd.SetArgs(args)

		err := rootCmd.Execute()

		require.Error(t, err, args)
		assert.Contains(t, err.Error(), "document service not configured")
	}
	rootCmd.SetArgs(nil)
}
