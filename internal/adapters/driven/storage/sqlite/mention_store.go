package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/custodia-labs/jarvis/internal/core/domain"
	"github.com/custodia-labs/jarvis/internal/core/ports/driven"
)

// ==================== Mention Store ====================

// mentionStore implements driven.MentionStore and driven.GraphStore.
type mentionStore struct {
	store *Store
}

var (
	_ driven.MentionStore = (*mentionStore)(nil)
	_ driven.GraphStore   = (*mentionStore)(nil)
)

const mentionColumns = `mention_id, backend, content_id, chunk_index, entity_id, label, text,
	start_char, end_char, confidence, attributes, created_at`

// PendingChunks returns chunks backend has not scanned in their current form.
func (s *mentionStore) PendingChunks(ctx context.Context, contentID, backend string) ([]domain.TextChunk, error) {
	return queryChunks(ctx, s.store.db, `
		SELECT c.content_id, c.chunk_index, c.page, c.text, c.token_count, c.text_hash
		FROM text_chunks c
		LEFT JOIN extraction_runs r
			ON r.content_id = c.content_id AND r.chunk_index = c.chunk_index AND r.backend = ?
		WHERE c.content_id = ? AND (r.text_hash IS NULL OR r.text_hash != c.text_hash)
		ORDER BY c.chunk_index
	`, backend, contentID)
}

// SaveChunkExtraction replaces one backend's view of one chunk.
func (s *mentionStore) SaveChunkExtraction(ctx context.Context, ex driven.ChunkExtraction) error {
	if ex.Backend == "" || ex.Chunk.ContentID == "" {
		return domain.ErrInvalidInput
	}
	now := time.Now().UTC().UnixNano()
	chunk := ex.Chunk

	return s.store.withTx(ctx, func(tx *sql.Tx) error {
		previous, err := mentionedEntities(ctx, tx, chunk.ContentID, chunk.ChunkIndex, ex.Backend)
		if err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx, `
			DELETE FROM graph_relations WHERE relation_id IN (
				SELECT 'mention:' || mention_id FROM entity_mentions
				WHERE content_id = ? AND chunk_index = ? AND backend = ?
			)
		`, chunk.ContentID, chunk.ChunkIndex, ex.Backend); err != nil {
			return fmt.Errorf("deleting previous mention relations: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			"DELETE FROM entity_mentions WHERE content_id = ? AND chunk_index = ? AND backend = ?",
			chunk.ContentID, chunk.ChunkIndex, ex.Backend,
		); err != nil {
			return fmt.Errorf("deleting previous mentions: %w", err)
		}

		for i := range ex.Entities {
			if err := upsertEntity(ctx, tx, &ex.Entities[i], now); err != nil {
				return err
			}
		}

		for i := range ex.Mentions {
			m := &ex.Mentions[i]
			attrs, err := marshalJSON(m.Attributes, "{}")
			if err != nil {
				return err
			}
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO entity_mentions (`+mentionColumns+`)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
				ON CONFLICT(mention_id) DO NOTHING
			`, m.MentionID, ex.Backend, m.ContentID, m.ChunkIndex, m.EntityID, m.Label, m.Text,
				m.Start, m.End, m.Confidence, attrs, toNanosOr(m.CreatedAt, now)); err != nil {
				return fmt.Errorf("inserting mention: %w", err)
			}
		}

		for i := range ex.Relations {
			r := &ex.Relations[i]
			props, err := marshalJSON(r.Properties, "{}")
			if err != nil {
				return err
			}
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO graph_relations (relation_id, source_id, target_id, relation_type, backend, properties, created_at)
				VALUES (?, ?, ?, ?, ?, ?, ?)
				ON CONFLICT(relation_id) DO UPDATE SET
					source_id = excluded.source_id,
					target_id = excluded.target_id,
					relation_type = excluded.relation_type,
					backend = excluded.backend,
					properties = excluded.properties
			`, r.RelationID, r.SourceID, r.TargetID, r.Type, ex.Backend, props, now); err != nil {
				return fmt.Errorf("upserting relation: %w", err)
			}
		}

		if _, err := tx.ExecContext(ctx, `
			INSERT INTO extraction_runs (content_id, chunk_index, backend, text_hash, mention_count, processed_at)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT(content_id, chunk_index, backend) DO UPDATE SET
				text_hash = excluded.text_hash,
				mention_count = excluded.mention_count,
				processed_at = excluded.processed_at
		`, chunk.ContentID, chunk.ChunkIndex, ex.Backend, chunk.TextHash, len(ex.Mentions), now); err != nil {
			return fmt.Errorf("recording extraction run: %w", err)
		}

		return dropOrphans(ctx, tx, previous)
	})
}

// ListMentions returns mentions for contentID. An empty backend matches all.
func (s *mentionStore) ListMentions(ctx context.Context, contentID, backend string) ([]domain.EntityMention, error) {
	query := "SELECT " + mentionColumns + " FROM entity_mentions WHERE content_id = ?"
	args := []any{contentID}
	if backend != "" {
		query += " AND backend = ?"
		args = append(args, backend)
	}
	query += " ORDER BY chunk_index, start_char, mention_id"

	rows, err := s.store.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying mentions: %w", err)
	}
	defer rows.Close()

	var out []domain.EntityMention
	for rows.Next() {
		var (
			m          domain.EntityMention
			confidence sql.NullFloat64
			attrs      string
			created    int64
		)
		if err := rows.Scan(&m.MentionID, &m.Backend, &m.ContentID, &m.ChunkIndex, &m.EntityID,
			&m.Label, &m.Text, &m.Start, &m.End, &confidence, &attrs, &created); err != nil {
			return nil, fmt.Errorf("scanning mention: %w", err)
		}
		m.Confidence = confidence.Float64
		m.Attributes = unmarshalStringMap(attrs)
		m.CreatedAt = fromNanos(sql.NullInt64{Int64: created, Valid: true})
		out = append(out, m)
	}
	return out, rows.Err()
}

// PurgeBackend removes everything backend produced and the entities left
// without mentions.
func (s *mentionStore) PurgeBackend(ctx context.Context, backend string) (int64, error) {
	if backend == "" {
		return 0, domain.ErrInvalidInput
	}
	var removed int64
	err := s.store.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, "DELETE FROM graph_relations WHERE backend = ?", backend); err != nil {
			return fmt.Errorf("deleting relations: %w", err)
		}
		res, err := tx.ExecContext(ctx, "DELETE FROM entity_mentions WHERE backend = ?", backend)
		if err != nil {
			return fmt.Errorf("deleting mentions: %w", err)
		}
		removed, _ = res.RowsAffected()
		if _, err := tx.ExecContext(ctx, "DELETE FROM extraction_runs WHERE backend = ?", backend); err != nil {
			return fmt.Errorf("deleting extraction runs: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `
			DELETE FROM graph_entities
			WHERE label != ? AND NOT EXISTS (
				SELECT 1 FROM entity_mentions m WHERE m.entity_id = graph_entities.entity_id
			)
		`, domain.ContentNodeLabel); err != nil {
			return fmt.Errorf("deleting orphan entities: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `
			DELETE FROM graph_entities
			WHERE label = ? AND NOT EXISTS (
				SELECT 1 FROM graph_relations r WHERE r.target_id = graph_entities.entity_id
			)
		`, domain.ContentNodeLabel); err != nil {
			return fmt.Errorf("deleting orphan content nodes: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return removed, nil
}

// ListEntities returns every graph node ordered by id.
func (s *mentionStore) ListEntities(ctx context.Context) ([]domain.GraphEntity, error) {
	rows, err := s.store.db.QueryContext(ctx,
		"SELECT entity_id, label, name, aliases, properties FROM graph_entities ORDER BY entity_id")
	if err != nil {
		return nil, fmt.Errorf("querying entities: %w", err)
	}
	defer rows.Close()

	var out []domain.GraphEntity
	for rows.Next() {
		var (
			e             domain.GraphEntity
			aliases, prop string
		)
		if err := rows.Scan(&e.EntityID, &e.Label, &e.Name, &aliases, &prop); err != nil {
			return nil, fmt.Errorf("scanning entity: %w", err)
		}
		e.Aliases = unmarshalStrings(aliases)
		e.Properties = unmarshalStringMap(prop)
		out = append(out, e)
	}
	return out, rows.Err()
}

// ListRelations returns every graph edge ordered by id.
func (s *mentionStore) ListRelations(ctx context.Context) ([]domain.GraphRelation, error) {
	rows, err := s.store.db.QueryContext(ctx,
		"SELECT relation_id, source_id, target_id, relation_type, properties FROM graph_relations ORDER BY relation_id")
	if err != nil {
		return nil, fmt.Errorf("querying relations: %w", err)
	}
	defer rows.Close()

	var out []domain.GraphRelation
	for rows.Next() {
		var (
			r    domain.GraphRelation
			prop string
		)
		if err := rows.Scan(&r.RelationID, &r.SourceID, &r.TargetID, &r.Type, &prop); err != nil {
			return nil, fmt.Errorf("scanning relation: %w", err)
		}
		r.Properties = unmarshalStringMap(prop)
		out = append(out, r)
	}
	return out, rows.Err()
}

// upsertEntity inserts a node or merges the new name into its aliases.
func upsertEntity(ctx context.Context, tx *sql.Tx, e *domain.GraphEntity, now int64) error {
	var (
		name          string
		aliases, prop string
	)
	err := tx.QueryRowContext(ctx,
		"SELECT name, aliases, properties FROM graph_entities WHERE entity_id = ?", e.EntityID,
	).Scan(&name, &aliases, &prop)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		name = e.Name
	case err != nil:
		return fmt.Errorf("reading entity %s: %w", e.EntityID, err)
	}

	merged := mergeAliases(name, unmarshalStrings(aliases), append([]string{e.Name}, e.Aliases...))
	props := unmarshalStringMap(prop)
	if props == nil {
		props = make(map[string]string, len(e.Properties))
	}
	for k, v := range e.Properties {
		props[k] = v
	}

	aliasJSON, err := marshalJSON(merged, "[]")
	if err != nil {
		return err
	}
	propJSON, err := marshalJSON(props, "{}")
	if err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO graph_entities (entity_id, label, name, aliases, properties, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(entity_id) DO UPDATE SET
			aliases = excluded.aliases,
			properties = excluded.properties,
			updated_at = excluded.updated_at
	`, e.EntityID, e.Label, name, aliasJSON, propJSON, now, now); err != nil {
		return fmt.Errorf("upserting entity %s: %w", e.EntityID, err)
	}
	return nil
}

// mergeAliases returns the sorted surface forms other than name.
func mergeAliases(name string, existing, incoming []string) []string {
	seen := map[string]bool{name: true}
	var out []string
	for _, a := range append(existing, incoming...) {
		if a == "" || seen[a] {
			continue
		}
		seen[a] = true
		out = append(out, a)
	}
	sort.Strings(out)
	return out
}

func mentionedEntities(ctx context.Context, tx *sql.Tx, contentID string, chunkIndex int, backend string) ([]string, error) {
	rows, err := tx.QueryContext(ctx, `
		SELECT DISTINCT entity_id FROM entity_mentions
		WHERE content_id = ? AND chunk_index = ? AND backend = ?
	`, contentID, chunkIndex, backend)
	if err != nil {
		return nil, fmt.Errorf("querying previous mentions: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning entity id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// dropOrphans deletes the given entities if nothing mentions them anymore.
func dropOrphans(ctx context.Context, tx *sql.Tx, entityIDs []string) error {
	if len(entityIDs) == 0 {
		return nil
	}
	args := make([]any, len(entityIDs))
	for i, id := range entityIDs {
		args[i] = id
	}
	_, err := tx.ExecContext(ctx, `
		DELETE FROM graph_entities
		WHERE entity_id IN (`+placeholders(len(entityIDs))+`) AND NOT EXISTS (
			SELECT 1 FROM entity_mentions m WHERE m.entity_id = graph_entities.entity_id
		)
	`, args...)
	if err != nil {
		return fmt.Errorf("deleting orphan entities: %w", err)
	}
	return nil
}

// toNanosOr returns t in unix nanoseconds, or fallback for the zero time.
func toNanosOr(t time.Time, fallback int64) int64 {
	if t.IsZero() {
		return fallback
	}
	return t.UnixNano()
}
