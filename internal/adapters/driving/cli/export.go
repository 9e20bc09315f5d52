package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the entity graph",
}

var exportNeo4jCmd = &cobra.Command{
	Use:   "neo4j",
	Short: "Copy entities and relations to Neo4j or Memgraph",
	Long: `Merges every graph entity and relation into the configured Bolt
database. Exports are idempotent: running twice leaves the same graph.`,
	Args: cobra.NoArgs,
	RunE: runExportNeo4j,
}

func init() {
	exportCmd.AddCommand(exportNeo4jCmd)
	rootCmd.AddCommand(exportCmd)
}

func runExportNeo4j(cmd *cobra.Command, _ []string) error {
	if services == nil || services.NewExporter == nil {
		return errors.New("graph export not configured")
	}
	ctx := commandContext(cmd)

	exporter, closeFn, err := services.NewExporter(ctx)
	if err != nil {
		return fmt.Errorf("failed to connect to graph database: %w", err)
	}
	defer closeFn()

	summary, err := exporter.Export(ctx)
	if err != nil {
		return fmt.Errorf("export failed: %w", err)
	}
	cmd.Printf("Exported %d entities and %d relations\n", summary.Entities, summary.Relations)
	return nil
}
