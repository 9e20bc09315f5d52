package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/custodia-labs/jarvis/internal/core/domain"
	"github.com/custodia-labs/jarvis/internal/core/ports/driven"
	"github.com/custodia-labs/jarvis/internal/core/ports/driving"
)

// Ensure Registry implements the interface.
var _ driving.ContentRegistry = (*Registry)(nil)

// Registry assigns content ids, deduplicates by content hash and enqueues the
// first pipeline stage.
type Registry struct {
	store  driven.ContentStore
	now    func() time.Time
	logger *slog.Logger
}

// NewRegistry creates a content registry backed by store.
func NewRegistry(store driven.ContentStore, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		store:  store,
		now:    time.Now,
		logger: logger.With("component", "registry"),
	}
}

// Register stores raw as a content item. See driving.ContentRegistry.
func (r *Registry) Register(
	ctx context.Context,
	raw []byte,
	kind domain.ContentKind,
	prov domain.Provenance,
) (string, error) {
	hash := domain.HashContent(raw)
	contentID, err := domain.BuildContentID(kind, prov, hash)
	if err != nil {
		return "", &domain.RegistrationError{Err: err}
	}
	if r.store == nil {
		return "", &domain.RegistrationError{
			ContentID: contentID,
			Err:       fmt.Errorf("%w: content store not configured", domain.ErrInvalidInput),
		}
	}

	now := r.now().UTC()
	item := &domain.ContentItem{
		ContentID:   contentID,
		Kind:        kind,
		ContentHash: hash,
		MIMEType:    domain.DetectMIMEType(prov.Filename, raw),
		Size:        int64(len(raw)),
		Provenance:  prov,
		CreatedAt:   now,
	}
	if mime := prov.Extra[domain.ExtraMIMEType]; mime != "" {
		item.MIMEType = mime
	}

	first := &domain.Task{
		TaskID:        uuid.NewString(),
		Type:          domain.TaskSemanticIndex,
		ContentID:     contentID,
		Status:        domain.TaskPending,
		NextAttemptAt: now,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	id, created, err := r.store.RegisterContent(ctx, item, raw, first)
	if err != nil {
		return "", &domain.RegistrationError{ContentID: contentID, Err: err}
	}
	if created {
		r.logger.Info("content registered",
			"content_id", id, "kind", kind, "mime_type", item.MIMEType, "size", item.Size)
	} else {
		r.logger.Debug("duplicate content", "content_id", id, "candidate", contentID)
	}
	return id, nil
}

// Get returns a registered item.
func (r *Registry) Get(ctx context.Context, contentID string) (*domain.ContentItem, error) {
	if strings.TrimSpace(contentID) == "" {
		return nil, fmt.Errorf("%w: content id required", domain.ErrInvalidInput)
	}
	return r.store.GetContent(ctx, contentID)
}

// List returns registered items.
func (r *Registry) List(ctx context.Context, filter domain.ContentFilter) ([]domain.ContentItem, error) {
	return r.store.ListContent(ctx, filter)
}
