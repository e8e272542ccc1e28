package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/mira/internal/core/domain"
	"github.com/custodia-labs/mira/internal/logger"
)

var (
	askJSON      bool
	askTopK      int
	askThreshold float64
	askFilter    map[string]string
)

var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Answer a question from the knowledge base",
	Long: `Embeds the question, retrieves the most relevant passages and asks the
configured LLM to answer using only those passages. The documents supplied
as context are listed as citations.

Examples:
  mira ask "Is a three-year Indian Bachelor's degree equivalent to a U.S. Bachelor's?"
  mira ask --filter country=ghana "What does the WASSCE correspond to?"`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAsk,
}

func init() {
	askCmd.Flags().BoolVar(&askJSON, "json", false, "output the answer as JSON")
	askCmd.Flags().IntVarP(&askTopK, "top-k", "k", 0, "number of passages to use (0 = configured default)")
	askCmd.Flags().Float64Var(&askThreshold, "threshold", 0, "minimum similarity score for passages")
	askCmd.Flags().StringToStringVar(&askFilter, "filter", nil, "metadata filter, e.g. country=india")
	rootCmd.AddCommand(askCmd)
}

// askResult is the JSON form of an answer.
type askResult struct {
	Question   string         `json:"question"`
	Answer     string         `json:"answer"`
	Citations  []string       `json:"citations"`
	Confidence float64        `json:"confidence"`
	NoContext  bool           `json:"no_context"`
	Model      string         `json:"model,omitempty"`
	Sources    []passageJSON  `json:"sources"`
	Usage      map[string]int `json:"usage,omitempty"`
}

// passageJSON is the JSON form of a retrieved passage.
type passageJSON struct {
	DocumentID string  `json:"document_id"`
	ChunkID    string  `json:"chunk_id"`
	Source     string  `json:"source"`
	Score      float64 `json:"score"`
	Text       string  `json:"text"`
}

func runAsk(cmd *cobra.Command, args []string) error {
	if queryService == nil {
		return notConfigured("query")
	}

	question := strings.Join(args, " ")
	outcome := queryService.Run(cmd.Context(), question, domain.QueryOptions{
		TopK:           askTopK,
		ScoreThreshold: askThreshold,
		Filter:         domain.MetadataFilter(askFilter),
	})
	logger.Debug("query %s trace: %v", outcome.ID, outcome.Trace)

	if !outcome.Succeeded() {
		if outcome.Err == nil {
			return fmt.Errorf("query %s ended at stage %s without an answer", outcome.ID, outcome.Stage)
		}
		return describeError(outcome.Err)
	}

	if askJSON {
		return outputAskJSON(cmd, outcome.Question, outcome.Answer)
	}
	outputAskText(cmd, outcome.Answer)
	return nil
}

func outputAskJSON(cmd *cobra.Command, question string, answer *domain.Answer) error {
	result := askResult{
		Question:   question,
		Answer:     answer.Text,
		Citations:  answer.Citations,
		Confidence: answer.Confidence,
		NoContext:  answer.NoContext,
		Model:      answer.Usage.Model,
		Sources:    passagesJSON(answer.Sources),
		Usage: map[string]int{
			"prompt_tokens":     answer.Usage.PromptTokens,
			"completion_tokens": answer.Usage.CompletionTokens,
			"total_tokens":      answer.Usage.TotalTokens,
		},
	}
	if result.Citations == nil {
		result.Citations = []string{}
	}

	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal answer: %w", err)
	}
	cmd.Println(string(data))
	return nil
}

func outputAskText(cmd *cobra.Command, answer *domain.Answer) {
	st := stylesFor(cmd.OutOrStdout())

	cmd.Println(st.Answer(strings.TrimSpace(answer.Text)))
	cmd.Println()

	if answer.NoContext {
		cmd.Println(st.Warning("No relevant passages were found in the knowledge base."))
		return
	}

	cmd.Println(st.Subtitle("Sources:"))
	for i := range answer.Sources {
		p := &answer.Sources[i]
		cmd.Printf("  [%d] %s %s\n", i+1, p.Source(), st.Muted(fmt.Sprintf("(%.2f)", p.Score)))
	}
	cmd.Println()
	cmd.Println(st.Muted(fmt.Sprintf("Confidence: %.2f", answer.Confidence)))
}

func passagesJSON(passages []domain.RetrievedPassage) []passageJSON {
	out := make([]passageJSON, len(passages))
	for i := range passages {
		out[i] = passageJSON{
			DocumentID: passages[i].DocumentID,
			ChunkID:    passages[i].ChunkID,
			Source:     passages[i].Source(),
			Score:      passages[i].Score,
			Text:       passages[i].Text,
		}
	}
	return out
}

// describeError prefixes err with its stable kind and, for pipeline
// failures, the stage that failed.
func describeError(err error) error {
	var se *domain.StageError
	if errors.As(err, &se) {
		return fmt.Errorf("%s during %s: %w", se.Kind(), se.Stage, se.Err)
	}
	return fmt.Errorf("%s: %w", domain.KindOf(err), err)
}
