package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/jarvis/internal/core/domain"
)

var (
	registerKind         string
	registerMessageID    string
	registerAttachmentID string
	registerMIME         string
	registerSource       string
)

var registerCmd = &cobra.Command{
	Use:   "register <file>",
	Short: "Register one file as a content item",
	Long: `Registers the bytes of a file in the content registry and queues it for
semantic indexing. Registering bytes that are already known is a no-op and
prints the existing content id.`,
	Args: cobra.ExactArgs(1),
	RunE: runRegister,
}

func init() {
	registerCmd.Flags().StringVar(&registerKind, "kind", string(domain.KindFile), "content kind: file, message or attachment")
	registerCmd.Flags().StringVar(&registerMessageID, "message-id", "", "parent message id (message and attachment kinds)")
	registerCmd.Flags().StringVar(&registerAttachmentID, "attachment-id", "", "attachment id (attachment kind)")
	registerCmd.Flags().StringVar(&registerMIME, "mime", "", "MIME type (detected from the file when empty)")
	registerCmd.Flags().StringVar(&registerSource, "source", "local", "provenance source name")
	rootCmd.AddCommand(registerCmd)
}

func runRegister(cmd *cobra.Command, args []string) error {
	if services == nil || services.Registry == nil {
		return errors.New("content registry not configured")
	}

	path, err := filepath.Abs(args[0])
	if err != nil {
		return fmt.Errorf("resolve path: %w", err)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read file: %w", err)
	}

	kind := domain.ContentKind(registerKind)
	prov := domain.Provenance{
		Source:       registerSource,
		MessageID:    registerMessageID,
		AttachmentID: registerAttachmentID,
		Filename:     filepath.Base(path),
	}
	if kind == domain.KindFile {
		prov.Path = path
	}
	if registerMIME != "" {
		prov.Extra = map[string]string{domain.ExtraMIMEType: registerMIME}
	}

	id, err := services.Registry.Register(commandContext(cmd), raw, kind, prov)
	if err != nil {
		return err
	}
	cmd.Println(id)
	return nil
}
