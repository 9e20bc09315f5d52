package cli

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/jarvis/internal/core/ports/driving"
	"github.com/custodia-labs/jarvis/internal/normalisers/eml"
)

var (
	ingestWatch  bool
	ingestEML    []string
	ingestSource string
)

var ingestCmd = &cobra.Command{
	Use:   "ingest [dir...]",
	Short: "Register local files and email messages",
	Long: `Walks each directory and registers every supported file. With no
directory the configured local sources are scanned. Email files given with
--eml are registered as a message plus one item per attachment.

With --watch, ingest keeps running and registers files as they change.`,
	RunE: runIngest,
}

func init() {
	ingestCmd.Flags().BoolVar(&ingestWatch, "watch", false, "keep watching directories for changes")
	ingestCmd.Flags().StringSliceVar(&ingestEML, "eml", nil, "RFC 822 message files to register")
	ingestCmd.Flags().StringVar(&ingestSource, "source", "eml", "provenance source name for --eml messages")
	rootCmd.AddCommand(ingestCmd)
}

func runIngest(cmd *cobra.Command, args []string) error {
	if services == nil || services.Ingestor == nil {
		return errors.New("ingestor not configured")
	}
	ctx := commandContext(cmd)

	var total driving.IngestSummary
	for _, path := range ingestEML {
		msg, err := readMessage(path, ingestSource)
		if err != nil {
			return err
		}
		summary, err := services.Ingestor.IngestMessage(ctx, msg)
		if err != nil {
			return fmt.Errorf("ingest %s: %w", path, err)
		}
		addSummary(&total, summary)
	}

	dirs := args
	if len(dirs) == 0 && len(ingestEML) == 0 {
		dirs = services.LocalDirs
	}
	if len(dirs) == 0 && len(ingestEML) == 0 {
		return errors.New("no directories given and no local sources configured")
	}

	for _, dir := range dirs {
		summary, err := services.Ingestor.IngestPath(ctx, dir)
		if err != nil {
			return fmt.Errorf("ingest %s: %w", dir, err)
		}
		addSummary(&total, summary)
	}

	cmd.Printf("Seen: %d  Registered: %d  Duplicates: %d  Errors: %d\n",
		total.Seen, total.Registered, total.Duplicates, total.Errors)

	if !ingestWatch || len(dirs) == 0 {
		return nil
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	cmd.Printf("Watching %d director(ies), press Ctrl+C to stop\n", len(dirs))
	if err := services.Ingestor.Watch(ctx, dirs); err != nil && !errors.Is(err, ctx.Err()) {
		return err
	}
	return nil
}

// readMessage parses an email file into an ingestion message.
func readMessage(path, source string) (driving.Message, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return driving.Message{}, fmt.Errorf("read %s: %w", path, err)
	}
	parsed, err := eml.Parse(raw)
	if err != nil {
		return driving.Message{}, fmt.Errorf("parse %s: %w", filepath.Base(path), err)
	}

	msg := driving.Message{
		MessageID: parsed.MessageID,
		Subject:   parsed.Subject,
		Source:    source,
		Body:      []byte(parsed.Text),
		BodyMIME:  "text/plain",
	}
	for _, a := range parsed.Attachments {
		msg.Attachments = append(msg.Attachments, driving.Attachment{
			AttachmentID: a.ID,
			Filename:     a.Filename,
			MIMEType:     a.MIMEType,
			Content:      a.Content,
		})
	}
	return msg, nil
}

func addSummary(total *driving.IngestSummary, s driving.IngestSummary) {
	total.Seen += s.Seen
	total.Registered += s.Registered
	total.Duplicates += s.Duplicates
	total.Errors += s.Errors
}
