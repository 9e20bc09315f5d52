package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/custodia-labs/jarvis/internal/core/domain"
	"github.com/custodia-labs/jarvis/internal/core/ports/driven"
)

// ==================== Content Store ====================

// contentStore implements driven.ContentStore.
type contentStore struct {
	store *Store
}

var _ driven.ContentStore = (*contentStore)(nil)

const contentColumns = `content_id, kind, content_hash, mime_type, size, provenance, created_at`

// RegisterContent stores the item, its bytes and its first task atomically.
func (s *contentStore) RegisterContent(
	ctx context.Context,
	item *domain.ContentItem,
	raw []byte,
	first *domain.Task,
) (string, bool, error) {
	if item == nil || item.ContentID == "" || item.ContentHash == "" {
		return "", false, domain.ErrInvalidInput
	}

	provJSON, err := json.Marshal(item.Provenance)
	if err != nil {
		return "", false, fmt.Errorf("marshalling provenance: %w", err)
	}

	var (
		contentID = item.ContentID
		created   bool
	)
	err = s.store.withTx(ctx, func(tx *sql.Tx) error {
		var existing string
		err := tx.QueryRowContext(ctx,
			"SELECT content_id FROM content_registry WHERE content_hash = ?", item.ContentHash,
		).Scan(&existing)
		switch {
		case err == nil:
			contentID = existing
			return nil
		case !errors.Is(err, sql.ErrNoRows):
			return fmt.Errorf("looking up content hash: %w", err)
		}

		res, err := tx.ExecContext(ctx, `
			INSERT INTO content_registry (`+contentColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(content_id) DO NOTHING
		`, item.ContentID, string(item.Kind), item.ContentHash, item.MIMEType, item.Size,
			string(provJSON), item.CreatedAt.UnixNano())
		if err != nil {
			return fmt.Errorf("inserting content: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			// Same id, different bytes: items are immutable, keep the first.
			return fmt.Errorf("%w: content id %s already registered with different content",
				domain.ErrInvalidInput, item.ContentID)
		}

		if _, err := tx.ExecContext(ctx,
			"INSERT INTO content_blobs (content_id, data) VALUES (?, ?)", item.ContentID, raw,
		); err != nil {
			return fmt.Errorf("inserting content blob: %w", err)
		}

		if first != nil {
			first.ContentID = item.ContentID
			if _, _, err := insertTask(ctx, tx, first); err != nil {
				return err
			}
		}

		created = true
		return nil
	})
	if err != nil {
		return "", false, err
	}
	return contentID, created, nil
}

// GetContent retrieves an item by id.
func (s *contentStore) GetContent(ctx context.Context, contentID string) (*domain.ContentItem, error) {
	row := s.store.db.QueryRowContext(ctx,
		"SELECT "+contentColumns+" FROM content_registry WHERE content_id = ?", contentID)
	return scanContent(row)
}

// GetContentByHash retrieves an item by content hash.
func (s *contentStore) GetContentByHash(ctx context.Context, hash string) (*domain.ContentItem, error) {
	row := s.store.db.QueryRowContext(ctx,
		"SELECT "+contentColumns+" FROM content_registry WHERE content_hash = ?", hash)
	return scanContent(row)
}

// GetRaw returns the raw bytes of an item.
func (s *contentStore) GetRaw(ctx context.Context, contentID string) ([]byte, error) {
	var data []byte
	err := s.store.db.QueryRowContext(ctx,
		"SELECT data FROM content_blobs WHERE content_id = ?", contentID).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("reading content blob: %w", err)
	}
	return data, nil
}

// ListContent returns items ordered by creation time.
func (s *contentStore) ListContent(ctx context.Context, filter domain.ContentFilter) ([]domain.ContentItem, error) {
	var (
		query strings.Builder
		args  []any
	)
	query.WriteString("SELECT " + contentColumns + " FROM content_registry")
	if filter.Kind != "" {
		query.WriteString(" WHERE kind = ?")
		args = append(args, string(filter.Kind))
	}
	query.WriteString(" ORDER BY created_at, content_id")
	if filter.Limit > 0 {
		query.WriteString(" LIMIT ?")
		args = append(args, filter.Limit)
	}

	rows, err := s.store.db.QueryContext(ctx, query.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("querying content: %w", err)
	}
	defer rows.Close()

	var items []domain.ContentItem //nolint:prealloc // size unknown from query
	for rows.Next() {
		item, err := scanContent(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, *item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating content: %w", err)
	}
	return items, nil
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanContent(row rowScanner) (*domain.ContentItem, error) {
	var (
		item      domain.ContentItem
		kind      string
		provJSON  string
		createdAt int64
	)
	err := row.Scan(&item.ContentID, &kind, &item.ContentHash, &item.MIMEType, &item.Size, &provJSON, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning content: %w", err)
	}
	item.Kind = domain.ContentKind(kind)
	if provJSON != "" {
		if err := json.Unmarshal([]byte(provJSON), &item.Provenance); err != nil {
			return nil, fmt.Errorf("decoding provenance: %w", err)
		}
	}
	item.CreatedAt = fromNanos(sql.NullInt64{Int64: createdAt, Valid: true})
	return &item, nil
}
