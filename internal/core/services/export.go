package services

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/custodia-labs/jarvis/internal/core/domain"
	"github.com/custodia-labs/jarvis/internal/core/ports/driven"
	"github.com/custodia-labs/jarvis/internal/core/ports/driving"
)

// Ensure GraphExport implements the interface.
var _ driving.GraphExportService = (*GraphExport)(nil)

// GraphExport copies the persisted entity graph to a graph database.
type GraphExport struct {
	graph    driven.GraphStore
	exporter driven.GraphExporter
	logger   *slog.Logger
}

// NewGraphExport creates the export service. exporter may be nil, in which
// case Export returns domain.ErrGraphUnavailable.
func NewGraphExport(graph driven.GraphStore, exporter driven.GraphExporter, logger *slog.Logger) *GraphExport {
	if logger == nil {
		logger = slog.Default()
	}
	return &GraphExport{graph: graph, exporter: exporter, logger: logger.With("component", "export")}
}

// Export writes every entity, then every relation. Nodes go first so edge
// endpoints can be matched.
func (s *GraphExport) Export(ctx context.Context) (driving.ExportSummary, error) {
	var summary driving.ExportSummary
	if s.exporter == nil {
		return summary, domain.ErrGraphUnavailable
	}

	entities, err := s.graph.ListEntities(ctx)
	if err != nil {
		return summary, fmt.Errorf("list entities: %w", err)
	}
	relations, err := s.graph.ListRelations(ctx)
	if err != nil {
		return summary, fmt.Errorf("list relations: %w", err)
	}

	if summary.Entities, err = s.exporter.ExportEntities(ctx, entities); err != nil {
		return summary, fmt.Errorf("export entities: %w", err)
	}
	if summary.Relations, err = s.exporter.ExportRelations(ctx, relations); err != nil {
		return summary, fmt.Errorf("export relations: %w", err)
	}

	s.logger.Info("graph exported", "entities", summary.Entities, "relations", summary.Relations)
	return summary, nil
}
