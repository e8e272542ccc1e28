package mcp

import (
	"context"
	"errors"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/custodia-labs/mira/internal/core/domain"
)

// defaultSearchLimit applies when the search tool is called without a limit.
const defaultSearchLimit = 5

// AskInput is the input schema for the ask tool.
type AskInput struct {
	Question string            `json:"question" jsonschema:"the credential evaluation question to answer"`
	TopK     int               `json:"top_k,omitempty" jsonschema:"number of passages to use as context"`
	Filter   map[string]string `json:"filter,omitempty" jsonschema:"metadata equality filter, e.g. country or region"`
}

// AskOutput is the output schema for the ask tool.
type AskOutput struct {
	Answer     string          `json:"answer"`
	Citations  []string        `json:"citations"`
	Confidence float64         `json:"confidence"`
	NoContext  bool            `json:"no_context"`
	Model      string          `json:"model,omitempty"`
	Sources    []PassageOutput `json:"sources,omitempty"`
}

// SearchInput is the input schema for the search tool.
type SearchInput struct {
	Query     string            `json:"query" jsonschema:"the text to find relevant passages for"`
	Limit     int               `json:"limit,omitempty" jsonschema:"maximum number of passages to return (default 5)"`
	Threshold float64           `json:"threshold,omitempty" jsonschema:"minimum similarity score between -1 and 1"`
	Filter    map[string]string `json:"filter,omitempty" jsonschema:"metadata equality filter, e.g. country or region"`
}

// SearchOutput is the output schema for the search tool.
type SearchOutput struct {
	Results []PassageOutput `json:"results"`
	Count   int             `json:"count"`
}

// PassageOutput represents one retrieved passage.
type PassageOutput struct {
	DocumentID string  `json:"document_id"`
	ChunkID    string  `json:"chunk_id"`
	Source     string  `json:"source"`
	Score      float64 `json:"score"`
	Content    string  `json:"content"`
}

// registerTools registers all tool handlers with the MCP server.
func (s *Server) registerTools() {
	mcp.AddTool(s.server, &mcp.Tool{
		Name: "ask",
		Description: "Answer a question about foreign academic credential evaluation " +
			"using the knowledge base. Returns the answer and the documents it was grounded on.",
	}, s.handleAsk)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "search",
		Description: "Find knowledge base passages relevant to a query without generating an answer",
	}, s.handleSearch)
}

// handleAsk handles the ask tool invocation.
func (s *Server) handleAsk(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input AskInput,
) (*mcp.CallToolResult, AskOutput, error) {
	answer, err := s.ports.Query.AnswerWithOptions(ctx, input.Question, domain.QueryOptions{
		TopK:   input.TopK,
		Filter: domain.MetadataFilter(input.Filter),
	})
	if err != nil {
		return nil, AskOutput{}, toolError(err)
	}

	output := AskOutput{
		Answer:     answer.Text,
		Citations:  answer.Citations,
		Confidence: answer.Confidence,
		NoContext:  answer.NoContext,
		Model:      answer.Usage.Model,
		Sources:    passageOutputs(answer.Sources),
	}
	if output.Citations == nil {
		output.Citations = []string{}
	}
	return nil, output, nil
}

// handleSearch handles the search tool invocation.
func (s *Server) handleSearch(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input SearchInput,
) (*mcp.CallToolResult, SearchOutput, error) {
	limit := input.Limit
	if limit <= 0 {
		limit = defaultSearchLimit
	}

	passages, err := s.ports.Retrieval.Retrieve(ctx, input.Query, domain.RetrieveOptions{
		TopK:           limit,
		ScoreThreshold: input.Threshold,
		Filter:         domain.MetadataFilter(input.Filter),
	})
	if err != nil {
		return nil, SearchOutput{}, toolError(err)
	}

	results := passageOutputs(passages)
	if results == nil {
		results = []PassageOutput{}
	}
	return nil, SearchOutput{Results: results, Count: len(results)}, nil
}

func passageOutputs(passages []domain.RetrievedPassage) []PassageOutput {
	if len(passages) == 0 {
		return nil
	}
	out := make([]PassageOutput, len(passages))
	for i := range passages {
		out[i] = PassageOutput{
			DocumentID: passages[i].DocumentID,
			ChunkID:    passages[i].ChunkID,
			Source:     passages[i].Source(),
			Score:      passages[i].Score,
			Content:    passages[i].Text,
		}
	}
	return out
}

// toolError prefixes err with its stable kind so clients can branch on it.
func toolError(err error) error {
	var se *domain.StageError
	if errors.As(err, &se) {
		return fmt.Errorf("%s during %s: %w", se.Kind(), se.Stage, se.Err)
	}
	return fmt.Errorf("%s: %w", domain.KindOf(err), err)
}
