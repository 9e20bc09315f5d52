package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/custodia-labs/jarvis/internal/core/domain"
	"github.com/custodia-labs/jarvis/internal/core/ports/driven"
	"github.com/custodia-labs/jarvis/internal/core/ports/driving"
)

// Ensure Ingestor implements the interface.
var _ driving.Ingestor = (*Ingestor)(nil)

// SourceLocal tags content registered from the local filesystem.
const SourceLocal = "local"

// Ingestor feeds local files and messages into the content registry.
type Ingestor struct {
	registry driving.ContentRegistry
	content  driven.ContentStore
	files    driven.FileSource
	logger   *slog.Logger
}

// NewIngestor creates an ingestor. files may be nil when only messages are
// ingested.
func NewIngestor(
	registry driving.ContentRegistry,
	content driven.ContentStore,
	files driven.FileSource,
	logger *slog.Logger,
) *Ingestor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Ingestor{
		registry: registry,
		content:  content,
		files:    files,
		logger:   logger.With("component", "ingest"),
	}
}

// IngestPath registers every readable file under root. Per-file failures are
// counted and logged; only walk failures are returned.
func (g *Ingestor) IngestPath(ctx context.Context, root string) (driving.IngestSummary, error) {
	var summary driving.IngestSummary
	if g.files == nil {
		return summary, fmt.Errorf("%w: no file source configured", domain.ErrInvalidInput)
	}

	err := g.files.Walk(ctx, root, func(doc domain.RawDocument) error {
		summary.Seen++
		created, err := g.register(ctx, doc.Content, domain.KindFile, fileProvenance(doc))
		switch {
		case err != nil:
			summary.Errors++
			g.logger.Warn("file not registered", "path", doc.URI, "error", err)
		case created:
			summary.Registered++
		default:
			summary.Duplicates++
		}
		return nil
	})
	if err != nil {
		return summary, fmt.Errorf("walk %s: %w", root, err)
	}

	g.logger.Info("path ingested", "root", root, "seen", summary.Seen,
		"registered", summary.Registered, "duplicates", summary.Duplicates, "errors", summary.Errors)
	return summary, nil
}

// IngestMessage registers a message body and each of its attachments.
func (g *Ingestor) IngestMessage(ctx context.Context, msg driving.Message) (driving.IngestSummary, error) {
	var summary driving.IngestSummary
	if msg.MessageID == "" {
		return summary, fmt.Errorf("%w: message id required", domain.ErrInvalidInput)
	}

	record := func(created bool, err error) error {
		summary.Seen++
		switch {
		case err != nil:
			summary.Errors++
			return err
		case created:
			summary.Registered++
		default:
			summary.Duplicates++
		}
		return nil
	}

	var errs []error
	if len(msg.Body) > 0 {
		bodyMIME := msg.BodyMIME
		if bodyMIME == "" {
			bodyMIME = "text/plain"
		}
		prov := domain.Provenance{
			Source:    msg.Source,
			MessageID: msg.MessageID,
			Subject:   msg.Subject,
			Extra:     map[string]string{domain.ExtraMIMEType: bodyMIME},
		}
		if err := record(g.register(ctx, msg.Body, domain.KindMessage, prov)); err != nil {
			errs = append(errs, err)
		}
	}

	for _, att := range msg.Attachments {
		prov := domain.Provenance{
			Source:       msg.Source,
			MessageID:    msg.MessageID,
			AttachmentID: att.AttachmentID,
			Filename:     att.Filename,
			Subject:      msg.Subject,
		}
		if att.MIMEType != "" {
			prov.Extra = map[string]string{domain.ExtraMIMEType: att.MIMEType}
		}
		if err := record(g.register(ctx, att.Content, domain.KindAttachment, prov)); err != nil {
			errs = append(errs, err)
		}
	}

	g.logger.Info("message ingested", "message_id", msg.MessageID,
		"registered", summary.Registered, "duplicates", summary.Duplicates, "errors", summary.Errors)
	return summary, errors.Join(errs...)
}

// IngestRaw registers one raw document as a local file.
func (g *Ingestor) IngestRaw(ctx context.Context, doc domain.RawDocument) (string, error) {
	return g.registry.Register(ctx, doc.Content, domain.KindFile, fileProvenance(doc))
}

// Watch registers files as they are created or modified under roots.
func (g *Ingestor) Watch(ctx context.Context, roots []string) error {
	if g.files == nil {
		return fmt.Errorf("%w: no file source configured", domain.ErrInvalidInput)
	}
	changes, err := g.files.Watch(ctx, roots)
	if err != nil {
		return fmt.Errorf("watch: %w", err)
	}
	g.logger.Info("watching", "roots", roots)

	for {
		select {
		case <-ctx.Done():
			return nil
		case change, ok := <-changes:
			if !ok {
				return nil
			}
			if change.Type == domain.ChangeDeleted {
				// Registered content is immutable.
				g.logger.Debug("file removed", "path", change.Document.URI)
				continue
			}
			id, err := g.IngestRaw(ctx, change.Document)
			if err != nil {
				g.logger.Warn("file not registered", "path", change.Document.URI,
					"change", change.Type, "error", err)
				continue
			}
			g.logger.Info("file registered", "path", change.Document.URI, "content_id", id,
				"change", change.Type)
		}
	}
}

// register reports whether raw was new to the registry.
func (g *Ingestor) register(ctx context.Context, raw []byte, kind domain.ContentKind, prov domain.Provenance) (bool, error) {
	if g.content != nil {
		existing, err := g.content.GetContentByHash(ctx, domain.HashContent(raw))
		if err == nil && existing != nil {
			return false, nil
		}
		if err != nil && !errors.Is(err, domain.ErrNotFound) {
			return false, err
		}
	}
	if _, err := g.registry.Register(ctx, raw, kind, prov); err != nil {
		return false, err
	}
	return true, nil
}

func fileProvenance(doc domain.RawDocument) domain.Provenance {
	path := doc.URI
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	filename := doc.Filename
	if filename == "" {
		filename = filepath.Base(path)
	}
	prov := domain.Provenance{
		Source:   SourceLocal,
		Path:     path,
		Filename: filename,
	}
	if doc.MIMEType != "" {
		prov.Extra = map[string]string{domain.ExtraMIMEType: doc.MIMEType}
	}
	return prov
}
