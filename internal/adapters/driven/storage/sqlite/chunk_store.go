package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/custodia-labs/jarvis/internal/core/domain"
	"github.com/custodia-labs/jarvis/internal/core/ports/driven"
)

// ==================== Chunk Store ====================

// chunkStore implements driven.ChunkStore.
type chunkStore struct {
	store *Store
}

var _ driven.ChunkStore = (*chunkStore)(nil)

const chunkColumns = `content_id, chunk_index, page, text, token_count, text_hash`

// ReplaceChunks upserts chunks and embeddings and drops trailing indexes.
// Chunks whose text changed keep their old mentions until the extractor
// sees the new text hash.
func (s *chunkStore) ReplaceChunks(
	ctx context.Context,
	contentID string,
	chunks []domain.TextChunk,
	embeddings []domain.Embedding,
) error {
	return s.store.withTx(ctx, func(tx *sql.Tx) error {
		for i := range chunks {
			c := &chunks[i]
			if c.ContentID != contentID {
				return fmt.Errorf("%w: chunk %d belongs to %s", domain.ErrInvalidInput, c.ChunkIndex, c.ContentID)
			}
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO text_chunks (`+chunkColumns+`)
				VALUES (?, ?, ?, ?, ?, ?)
				ON CONFLICT(content_id, chunk_index) DO UPDATE SET
					page = excluded.page,
					text = excluded.text,
					token_count = excluded.token_count,
					text_hash = excluded.text_hash
				WHERE text_chunks.text_hash != excluded.text_hash OR text_chunks.page != excluded.page
			`, c.ContentID, c.ChunkIndex, c.Page, c.Text, c.TokenCount, c.TextHash); err != nil {
				return fmt.Errorf("upserting chunk %d: %w", c.ChunkIndex, err)
			}
		}

		// Mention edges are not covered by the chunk cascade.
		if _, err := tx.ExecContext(ctx, `
			DELETE FROM graph_relations WHERE relation_id IN (
				SELECT 'mention:' || mention_id FROM entity_mentions
				WHERE content_id = ? AND chunk_index >= ?
			)
		`, contentID, len(chunks)); err != nil {
			return fmt.Errorf("deleting stale mention relations: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			"DELETE FROM text_chunks WHERE content_id = ? AND chunk_index >= ?", contentID, len(chunks),
		); err != nil {
			return fmt.Errorf("deleting stale chunks: %w", err)
		}

		for i := range embeddings {
			e := &embeddings[i]
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO embeddings (`+embeddingColumns+`)
				VALUES (?, ?, ?, ?, ?, ?, ?)
				ON CONFLICT(content_id, chunk_index) DO UPDATE SET
					model = excluded.model,
					dimensions = excluded.dimensions,
					vector = excluded.vector,
					filename = excluded.filename,
					created_at = excluded.created_at
			`, contentID, e.ChunkIndex, e.Model, e.Dimensions, float32SliceToBytes(e.Vector),
				nullString(e.Filename), e.CreatedAt.UnixNano()); err != nil {
				return fmt.Errorf("upserting embedding %d: %w", e.ChunkIndex, err)
			}
		}
		return nil
	})
}

// GetChunks returns the chunks of a content item ordered by index.
func (s *chunkStore) GetChunks(ctx context.Context, contentID string) ([]domain.TextChunk, error) {
	return queryChunks(ctx, s.store.db,
		"SELECT "+chunkColumns+" FROM text_chunks WHERE content_id = ? ORDER BY chunk_index", contentID)
}

// GetChunk returns one chunk. Returns domain.ErrNotFound if absent.
func (s *chunkStore) GetChunk(ctx context.Context, contentID string, chunkIndex int) (*domain.TextChunk, error) {
	chunks, err := queryChunks(ctx, s.store.db,
		"SELECT "+chunkColumns+" FROM text_chunks WHERE content_id = ? AND chunk_index = ?", contentID, chunkIndex)
	if err != nil {
		return nil, err
	}
	if len(chunks) == 0 {
		return nil, domain.ErrNotFound
	}
	return &chunks[0], nil
}

const embeddingColumns = `content_id, chunk_index, model, dimensions, vector, filename, created_at`

// GetEmbeddings returns the embeddings of a content item ordered by index.
func (s *chunkStore) GetEmbeddings(ctx context.Context, contentID string) ([]domain.Embedding, error) {
	return s.queryEmbeddings(ctx,
		"SELECT "+embeddingColumns+" FROM embeddings WHERE content_id = ? ORDER BY chunk_index", contentID)
}

// ListEmbeddings returns every embedding produced by model.
func (s *chunkStore) ListEmbeddings(ctx context.Context, model string) ([]domain.Embedding, error) {
	return s.queryEmbeddings(ctx,
		"SELECT "+embeddingColumns+" FROM embeddings WHERE model = ? ORDER BY content_id, chunk_index", model)
}

func (s *chunkStore) queryEmbeddings(ctx context.Context, query string, args ...any) ([]domain.Embedding, error) {
	rows, err := s.store.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying embeddings: %w", err)
	}
	defer rows.Close()

	var out []domain.Embedding
	for rows.Next() {
		var (
			e        domain.Embedding
			vector   []byte
			filename sql.NullString
			created  int64
		)
		if err := rows.Scan(&e.ContentID, &e.ChunkIndex, &e.Model, &e.Dimensions, &vector, &filename, &created); err != nil {
			return nil, fmt.Errorf("scanning embedding: %w", err)
		}
		e.Vector = bytesToFloat32Slice(vector)
		e.Filename = filename.String
		e.CreatedAt = fromNanos(sql.NullInt64{Int64: created, Valid: true})
		out = append(out, e)
	}
	return out, rows.Err()
}

// SearchChunks runs an FTS5 query over chunk text, best match first.
// Every whitespace-separated term must match.
func (s *chunkStore) SearchChunks(ctx context.Context, query string, limit int) ([]domain.TextChunk, error) {
	match := ftsQuery(query)
	if match == "" {
		return nil, nil
	}
	if limit <= 0 {
		limit = 20
	}
	return queryChunks(ctx, s.store.db, `
		SELECT c.content_id, c.chunk_index, c.page, c.text, c.token_count, c.text_hash
		FROM chunk_search
		JOIN text_chunks c ON c.rowid = chunk_search.rowid
		WHERE chunk_search MATCH ?
		ORDER BY chunk_search.rank
		LIMIT ?
	`, match, limit)
}

// ftsQuery quotes each term so user input never parses as FTS syntax.
func ftsQuery(query string) string {
	terms := strings.Fields(query)
	quoted := make([]string, 0, len(terms))
	for _, t := range terms {
		quoted = append(quoted, `"`+strings.ReplaceAll(t, `"`, `""`)+`"`)
	}
	return strings.Join(quoted, " ")
}

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func queryChunks(ctx context.Context, q querier, query string, args ...any) ([]domain.TextChunk, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying chunks: %w", err)
	}
	defer rows.Close()

	var out []domain.TextChunk
	for rows.Next() {
		var c domain.TextChunk
		if err := rows.Scan(&c.ContentID, &c.ChunkIndex, &c.Page, &c.Text, &c.TokenCount, &c.TextHash); err != nil {
			return nil, fmt.Errorf("scanning chunk: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
