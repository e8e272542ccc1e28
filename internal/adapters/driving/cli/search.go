package cli

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/mira/internal/core/domain"
)

var (
	searchLimit     int
	searchThreshold float64
	searchFilter    map[string]string
	searchJSON      bool
)

var searchCmd = &cobra.Command{
	Use:   "search [query]",
	Short: "Search the knowledge base",
	Long: `Retrieves the passages most similar to the query without generating an
answer. Useful for checking what context 'mira ask' would use.`,
	Args: cobra.ExactArgs(1),
	RunE: runSearch,
}

func init() {
	searchCmd.Flags().IntVarP(&searchLimit, "limit", "n", 5, "maximum number of results")
	searchCmd.Flags().Float64Var(&searchThreshold, "threshold", 0, "minimum similarity score")
	searchCmd.Flags().StringToStringVar(&searchFilter, "filter", nil, "metadata filter, e.g. region=asia")
	searchCmd.Flags().BoolVar(&searchJSON, "json", false, "output results as JSON")
	rootCmd.AddCommand(searchCmd)
}

func runSearch(cmd *cobra.Command, args []string) error {
	if retrievalService == nil {
		return notConfigured("retrieval")
	}

	passages, err := retrievalService.Retrieve(cmd.Context(), args[0], domain.RetrieveOptions{
		TopK:           searchLimit,
		ScoreThreshold: searchThreshold,
		Filter:         domain.MetadataFilter(searchFilter),
	})
	if err != nil {
		return fmt.Errorf("search failed: %w", describeError(err))
	}

	if searchJSON {
		return outputSearchJSON(cmd, passages)
	}

	outputSearchTable(cmd, passages)
	return nil
}

func outputSearchJSON(cmd *cobra.Command, passages []domain.RetrievedPassage) error {
	data, err := json.MarshalIndent(passagesJSON(passages), "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal results: %w", err)
	}
	cmd.Println(string(data))
	return nil
}

func outputSearchTable(cmd *cobra.Command, passages []domain.RetrievedPassage) {
	if len(passages) == 0 {
		cmd.Println("No results found.")
		return
	}

	st := stylesFor(cmd.OutOrStdout())
	cmd.Println(st.Title("Results:"))
	cmd.Println()
	for i := range passages {
		// Format: [N] Source (Score)
		cmd.Printf("  [%d] %s %s\n", i+1, passages[i].Source(), st.Muted(fmt.Sprintf("(%.2f)", passages[i].Score)))
		cmd.Printf("      %s\n", snippet(passages[i].Text, 160))
		cmd.Println()
	}
}

// snippet collapses whitespace and truncates text to at most n runes.
func snippet(text string, n int) string {
	text = strings.Join(strings.Fields(text), " ")
	runes := []rune(text)
	if len(runes) <= n {
		return text
	}
	return string(runes[:n]) + "..."
}
