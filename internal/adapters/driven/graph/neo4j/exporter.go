// Package neo4j exports the entity graph to Neo4j or Memgraph over Bolt.
package neo4j

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strings"
	"unicode"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/custodia-labs/jarvis/internal/core/domain"
	"github.com/custodia-labs/jarvis/internal/core/ports/driven"
)

// Ensure Exporter implements the interface.
var _ driven.GraphExporter = (*Exporter)(nil)

// DefaultBatchSize is the number of rows sent per UNWIND statement.
const DefaultBatchSize = 500

// nodeLabel is carried by every exported node so relations can match
// endpoints through one index.
const nodeLabel = "Node"

var invalidName = regexp.MustCompile(`[^A-Za-z0-9_]`)

// Config addresses the graph database.
type Config struct {
	URI      string
	User     string
	Password string
	// Database selects a named database; empty uses the server default.
	Database  string
	BatchSize int
}

// runFunc executes one write statement.
type runFunc func(ctx context.Context, query string, params map[string]any) error

// Exporter MERGEs entities and relations so repeated exports converge.
type Exporter struct {
	driver    neo4j.DriverWithContext
	run       runFunc
	batchSize int
	logger    *slog.Logger
}

// NewExporter connects to cfg.URI and verifies connectivity.
func NewExporter(ctx context.Context, cfg Config) (*Exporter, error) {
	driver, err := neo4j.NewDriverWithContext(cfg.URI, neo4j.BasicAuth(cfg.User, cfg.Password, ""))
	if err != nil {
		return nil, fmt.Errorf("neo4j: create driver: %w", err)
	}
	if err := driver.VerifyConnectivity(ctx); err != nil {
		_ = driver.Close(ctx)
		return nil, fmt.Errorf("neo4j: verify connectivity: %w", err)
	}

	var queryOpts []neo4j.ExecuteQueryConfigurationOption
	if cfg.Database != "" {
		queryOpts = append(queryOpts, neo4j.ExecuteQueryWithDatabase(cfg.Database))
	}
	run := func(ctx context.Context, query string, params map[string]any) error {
		_, err := neo4j.ExecuteQuery(ctx, driver, query, params, neo4j.EagerResultTransformer, queryOpts...)
		return err
	}

	e := newExporter(run, cfg.BatchSize)
	e.driver = driver
	return e, nil
}

func newExporter(run runFunc, batchSize int) *Exporter {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &Exporter{
		run:       run,
		batchSize: batchSize,
		logger:    slog.Default().With("component", "neo4j-exporter"),
	}
}

// ExportEntities merges nodes grouped by label.
func (e *Exporter) ExportEntities(ctx context.Context, entities []domain.GraphEntity) (int, error) {
	if err := e.run(ctx, "CREATE INDEX node_entity_id IF NOT EXISTS FOR (n:"+nodeLabel+") ON (n.entity_id)", nil); err != nil {
		// Memgraph uses a different index syntax; exporting still works without it.
		e.logger.Warn("creating entity index failed", "error", err)
	}

	byLabel := make(map[string][]map[string]any)
	for _, ent := range entities {
		label := SanitiseName(ent.Label, "Entity")
		byLabel[label] = append(byLabel[label], map[string]any{
			"entity_id":  ent.EntityID,
			"properties": entityProperties(ent),
		})
	}

	written := 0
	for _, label := range sortedKeys(byLabel) {
		query := "UNWIND $rows AS row " +
			"MERGE (n:" + nodeLabel + " {entity_id: row.entity_id}) " +
			"SET n:" + label + ", n += row.properties"
		n, err := e.batched(ctx, query, byLabel[label])
		written += n
		if err != nil {
			return written, fmt.Errorf("neo4j: merge %s nodes: %w", label, err)
		}
	}
	return written, nil
}

// ExportRelations merges edges grouped by type. Edges whose endpoints were
// not exported are skipped by the MATCH.
func (e *Exporter) ExportRelations(ctx context.Context, relations []domain.GraphRelation) (int, error) {
	byType := make(map[string][]map[string]any)
	for _, rel := range relations {
		relType := SanitiseName(rel.Type, "RELATED_TO")
		byType[relType] = append(byType[relType], map[string]any{
			"relation_id": rel.RelationID,
			"source_id":   rel.SourceID,
			"target_id":   rel.TargetID,
			"properties":  stringMap(rel.Properties),
		})
	}

	written := 0
	for _, relType := range sortedKeys(byType) {
		query := "UNWIND $rows AS row " +
			"MATCH (src:" + nodeLabel + " {entity_id: row.source_id}), (dst:" + nodeLabel + " {entity_id: row.target_id}) " +
			"MERGE (src)-[r:" + relType + " {relation_id: row.relation_id}]->(dst) " +
			"SET r += row.properties"
		n, err := e.batched(ctx, query, byType[relType])
		written += n
		if err != nil {
			return written, fmt.Errorf("neo4j: merge %s relations: %w", relType, err)
		}
	}
	return written, nil
}

// Close releases the driver.
func (e *Exporter) Close(ctx context.Context) error {
	if e.driver == nil {
		return nil
	}
	return e.driver.Close(ctx)
}

func (e *Exporter) batched(ctx context.Context, query string, rows []map[string]any) (int, error) {
	written := 0
	for start := 0; start < len(rows); start += e.batchSize {
		end := min(start+e.batchSize, len(rows))
		if err := e.run(ctx, query, map[string]any{"rows": rows[start:end]}); err != nil {
			return written, err
		}
		written += end - start
	}
	return written, nil
}

// SanitiseName makes a label or relationship type safe to splice into
// Cypher: invalid characters become underscores and a leading digit gets an
// underscore prefix. Empty results fall back to def.
func SanitiseName(name, def string) string {
	name = invalidName.ReplaceAllString(strings.TrimSpace(name), "_")
	name = strings.Trim(name, "_")
	if name == "" {
		return def
	}
	if unicode.IsDigit(rune(name[0])) {
		name = "_" + name
	}
	return name
}

func entityProperties(ent domain.GraphEntity) map[string]any {
	props := stringMap(ent.Properties)
	props["name"] = ent.Name
	props["original_label"] = ent.Label
	if len(ent.Aliases) > 0 {
		props["aliases"] = ent.Aliases
	}
	return props
}

func stringMap(in map[string]string) map[string]any {
	out := make(map[string]any, len(in)+3)
	for k, v := range in {
		out[k] = v
	}
	return out
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
