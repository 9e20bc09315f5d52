package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

var mentionsCmd = &cobra.Command{
	Use:   "mentions",
	Short: "Manage extracted entity mentions",
}

var mentionsPurgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Delete every mention produced by a backend",
	Long: `Deletes the mentions an extraction backend produced, so content can be
re-extracted with a different ruleset or model. Other backends' mentions are
left untouched.`,
	Args: cobra.NoArgs,
	RunE: runMentionsPurge,
}

var mentionsPurgeBackend string

func init() {
	mentionsPurgeCmd.Flags().StringVar(&mentionsPurgeBackend, "backend", "", "backend name, e.g. rules:default (default: active backend)")

	mentionsCmd.AddCommand(mentionsPurgeCmd)
	rootCmd.AddCommand(mentionsCmd)
}

func runMentionsPurge(cmd *cobra.Command, _ []string) error {
	if services == nil || services.Extractor == nil {
		return errors.New("entity extractor not configured")
	}

	backend := mentionsPurgeBackend
	if backend == "" {
		backend = services.Extractor.Backend()
	}

	n, err := services.Extractor.PurgeBackend(commandContext(cmd), backend)
	if err != nil {
		return fmt.Errorf("failed to purge mentions: %w", err)
	}
	cmd.Printf("Deleted %d mention(s) from backend %s\n", n, backend)
	return nil
}
