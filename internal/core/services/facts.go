package services

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/custodia-labs/jarvis/internal/core/domain"
	"github.com/custodia-labs/jarvis/internal/core/ports/driven"
	"github.com/custodia-labs/jarvis/internal/core/ports/driving"
)

// Ensure Facts implements the interface.
var _ driving.FactService = (*Facts)(nil)

// Facts runs fact builders over stored mentions and persists their rows.
type Facts struct {
	content        driven.ContentStore
	mentions       driven.MentionStore
	facts          driven.FactStore
	builders       map[domain.TaskType]driven.FactBuilder
	defaultBackend string
	logger         *slog.Logger
}

// NewFacts creates the fact service. defaultBackend is used for tasks whose
// payload names no backend.
func NewFacts(
	content driven.ContentStore,
	mentions driven.MentionStore,
	facts driven.FactStore,
	builders []driven.FactBuilder,
	defaultBackend string,
	logger *slog.Logger,
) *Facts {
	if logger == nil {
		logger = slog.Default()
	}
	byType := make(map[domain.TaskType]driven.FactBuilder, len(builders))
	for _, b := range builders {
		byType[b.TaskType()] = b
	}
	return &Facts{
		content:        content,
		mentions:       mentions,
		facts:          facts,
		builders:       byType,
		defaultBackend: defaultBackend,
		logger:         logger.With("component", "facts"),
	}
}

// TaskTypes returns the task types with a registered builder.
func (f *Facts) TaskTypes() []domain.TaskType {
	var out []domain.TaskType
	for _, t := range domain.FactTaskTypes() {
		if _, ok := f.builders[t]; ok {
			out = append(out, t)
		}
	}
	return out
}

// Handle runs a fact-builder task.
func (f *Facts) Handle(ctx context.Context, task *domain.Task) error {
	backend := task.Backend()
	if backend == "" {
		backend = f.defaultBackend
	}
	_, err := f.Build(ctx, task.Type, task.ContentID, backend)
	return err
}

// Build reduces the mentions of contentID into rows and replaces the stored
// rows of the same domain, content and backend.
func (f *Facts) Build(ctx context.Context, taskType domain.TaskType, contentID, backend string) ([]domain.FactRow, error) {
	builder, ok := f.builders[taskType]
	if !ok {
		return nil, fmt.Errorf("%w: no fact builder for %s", domain.ErrUnsupportedType, taskType)
	}
	if backend == "" {
		return nil, fmt.Errorf("%w: backend required", domain.ErrInvalidInput)
	}

	item, err := f.content.GetContent(ctx, contentID)
	if err != nil {
		return nil, fmt.Errorf("load content: %w", err)
	}
	mentions, err := f.mentions.ListMentions(ctx, contentID, backend)
	if err != nil {
		return nil, fmt.Errorf("load mentions: %w", err)
	}

	rows, err := builder.Build(ctx, domain.FactInput{
		Item:     item,
		Backend:  backend,
		Mentions: mentions,
	})
	if err != nil {
		return nil, fmt.Errorf("build %s: %w", taskType, err)
	}

	if err := f.facts.ReplaceFacts(ctx, taskType, contentID, backend, rows); err != nil {
		return nil, fmt.Errorf("store %s: %w", taskType, err)
	}
	f.logger.Info("facts built", "type", taskType, "content_id", contentID,
		"backend", backend, "rows", len(rows))
	return rows, nil
}

// List returns the stored rows of factDomain, optionally for one content id.
func (f *Facts) List(ctx context.Context, factDomain domain.FactDomain, contentID string) ([]domain.FactRow, error) {
	var rows []domain.FactRow
	switch factDomain {
	case domain.TaskLabResults:
		found, err := f.facts.ListLabResults(ctx, contentID)
		if err != nil {
			return nil, err
		}
		for _, r := range found {
			rows = append(rows, r)
		}
	case domain.TaskFinancialRecords:
		found, err := f.facts.ListFinancialRecords(ctx, contentID)
		if err != nil {
			return nil, err
		}
		for _, r := range found {
			rows = append(rows, r)
		}
	case domain.TaskMedicalEvents:
		found, err := f.facts.ListMedicalEvents(ctx, contentID)
		if err != nil {
			return nil, err
		}
		for _, r := range found {
			rows = append(rows, r)
		}
	default:
		return nil, fmt.Errorf("%w: fact domain %s", domain.ErrUnsupportedType, factDomain)
	}
	return rows, nil
}
