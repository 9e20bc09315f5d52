package cli

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/jarvis/internal/core/domain"
)

var (
	searchLimit   int
	searchOffset  int
	searchKeyword bool
	searchKinds   []string
	searchJSON    bool
)

var searchCmd = &cobra.Command{
	Use:   "search [query]",
	Short: "Search indexed chunks",
	Long: `Searches the text chunks produced by semantic indexing.
Combines keyword (FTS5) and semantic (vector) retrieval when embeddings
are available, falling back to keyword search otherwise.`,
	Args: cobra.ExactArgs(1),
	RunE: runSearch,
}

func init() {
	searchCmd.Flags().IntVarP(&searchLimit, "limit", "n", 10, "maximum number of results")
	searchCmd.Flags().IntVar(&searchOffset, "offset", 0, "skip the first results")
	searchCmd.Flags().BoolVar(&searchKeyword, "keyword", false, "keyword search only")
	searchCmd.Flags().StringSliceVar(&searchKinds, "kind", nil, "restrict to content kinds (message, attachment, file)")
	searchCmd.Flags().BoolVar(&searchJSON, "json", false, "output results as JSON")
	rootCmd.AddCommand(searchCmd)
}

func runSearch(cmd *cobra.Command, args []string) error {
	if services == nil || services.Search == nil {
		return errors.New("search service not configured")
	}

	opts := domain.SearchOptions{
		Limit:       searchLimit,
		Offset:      searchOffset,
		KeywordOnly: searchKeyword,
	}
	for _, k := range searchKinds {
		kind := domain.ContentKind(k)
		if !kind.Valid() {
			return fmt.Errorf("unknown content kind %q", k)
		}
		opts.Kinds = append(opts.Kinds, kind)
	}

	results, mode, err := services.Search.Search(commandContext(cmd), args[0], opts)
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}

	if searchJSON {
		return outputSearchJSON(cmd, results)
	}
	return outputSearchTable(cmd, results, mode)
}

func outputSearchJSON(cmd *cobra.Command, results []domain.SearchResult) error {
	data, err := json.MarshalIndent(results, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal results: %w", err)
	}
	cmd.Println(string(data))
	return nil
}

func outputSearchTable(cmd *cobra.Command, results []domain.SearchResult, mode domain.SearchMode) error {
	if len(results) == 0 {
		cmd.Println("No results found.")
		return nil
	}

	st := newStyler(cmd.OutOrStdout())
	cmd.Println(st.header(fmt.Sprintf("Results (%s):", mode.Description())))
	cmd.Println()
	for i := range results {
		r := &results[i]
		title := r.Item.Provenance.Filename
		if title == "" {
			title = r.Item.Provenance.Subject
		}
		if title == "" {
			title = r.Item.ContentID
		}

		cmd.Printf("  [%d] %s #%d (%.3f)\n", i+1, title, r.Chunk.ChunkIndex, r.Score)
		cmd.Printf("      %s\n", r.Item.ContentID)
		if len(r.Highlights) > 0 {
			cmd.Printf("      %s\n", r.Highlights[0])
		}
		cmd.Println()
	}
	return nil
}
