package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/custodia-labs/jarvis/internal/core/domain"
	"github.com/custodia-labs/jarvis/internal/core/ports/driven"
)

// ==================== Fact Store ====================

// factStore implements driven.FactStore.
type factStore struct {
	store *Store
}

var _ driven.FactStore = (*factStore)(nil)

// factTables maps a fact domain to its table and key column.
var factTables = map[domain.FactDomain]struct{ table, key string }{
	domain.TaskLabResults:       {"lab_results", "result_id"},
	domain.TaskFinancialRecords: {"financial_records", "record_id"},
	domain.TaskMedicalEvents:    {"medical_events", "event_id"},
}

// ReplaceFacts upserts rows and removes the ones the latest run dropped.
func (s *factStore) ReplaceFacts(
	ctx context.Context,
	factDomain domain.FactDomain,
	contentID, backend string,
	rows []domain.FactRow,
) error {
	target, ok := factTables[factDomain]
	if !ok {
		return fmt.Errorf("%w: unknown fact domain %q", domain.ErrInvalidInput, factDomain)
	}
	for _, row := range rows {
		if row.Domain() != factDomain {
			return fmt.Errorf("%w: %s row in %s batch", domain.ErrInvalidInput, row.Domain(), factDomain)
		}
		src := row.Source()
		if err := src.Validate(); err != nil {
			return err
		}
		if src.ContentID != contentID || src.Backend != backend {
			return fmt.Errorf("%w: row %s does not belong to %s/%s", domain.ErrInvalidInput, row.Key(), contentID, backend)
		}
	}

	now := time.Now().UTC().UnixNano()
	return s.store.withTx(ctx, func(tx *sql.Tx) error {
		keys := make([]any, 0, len(rows)+2)
		keys = append(keys, contentID, backend)
		for _, row := range rows {
			var err error
			switch r := row.(type) {
			case domain.LabResult:
				err = upsertLabResult(ctx, tx, &r, now)
			case *domain.LabResult:
				err = upsertLabResult(ctx, tx, r, now)
			case domain.FinancialRecord:
				err = upsertFinancialRecord(ctx, tx, &r, now)
			case *domain.FinancialRecord:
				err = upsertFinancialRecord(ctx, tx, r, now)
			case domain.MedicalEvent:
				err = upsertMedicalEvent(ctx, tx, &r, now)
			case *domain.MedicalEvent:
				err = upsertMedicalEvent(ctx, tx, r, now)
			default:
				err = fmt.Errorf("%w: unsupported fact row %T", domain.ErrInvalidInput, row)
			}
			if err != nil {
				return err
			}
			keys = append(keys, row.Key())
		}

		query := "DELETE FROM " + target.table + " WHERE content_id = ? AND backend = ?"
		if len(rows) > 0 {
			query += " AND " + target.key + " NOT IN (" + placeholders(len(rows)) + ")"
		}
		if _, err := tx.ExecContext(ctx, query, keys...); err != nil {
			return fmt.Errorf("deleting superseded %s: %w", target.table, err)
		}
		return nil
	})
}

func upsertLabResult(ctx context.Context, tx *sql.Tx, r *domain.LabResult, now int64) error {
	p := r.Provenance
	ids, err := marshalJSON(p.MentionIDs, "[]")
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO lab_results (result_id, backend, test_entity_id, measurement_entity_id,
			reference_entity_id, test_name, measurement_text, measurement_value, measurement_units,
			reference_range, date_raw, date_parsed, patient, content_id, chunk_index, mention_ids,
			filename, message_id, attachment_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(result_id) DO UPDATE SET
			test_entity_id = excluded.test_entity_id,
			measurement_entity_id = excluded.measurement_entity_id,
			reference_entity_id = excluded.reference_entity_id,
			test_name = excluded.test_name,
			measurement_text = excluded.measurement_text,
			measurement_value = excluded.measurement_value,
			measurement_units = excluded.measurement_units,
			reference_range = excluded.reference_range,
			date_raw = excluded.date_raw,
			date_parsed = excluded.date_parsed,
			patient = excluded.patient,
			chunk_index = excluded.chunk_index,
			mention_ids = excluded.mention_ids,
			filename = excluded.filename,
			message_id = excluded.message_id,
			attachment_id = excluded.attachment_id,
			updated_at = excluded.updated_at
	`, r.ResultID, p.Backend, nullString(r.TestEntityID), nullString(r.MeasurementEntityID),
		nullString(r.ReferenceEntityID), nullString(r.TestName), nullString(r.MeasurementText),
		nullFloat(r.MeasurementValue), nullString(r.MeasurementUnits), nullString(r.ReferenceRange),
		nullString(r.DateRaw), nullString(r.DateParsed), nullString(r.Patient), p.ContentID,
		p.ChunkIndex, ids, nullString(p.Filename), nullString(p.MessageID), nullString(p.AttachmentID),
		toNanosOr(r.CreatedAt, now), now)
	if err != nil {
		return fmt.Errorf("upserting lab result: %w", err)
	}
	return nil
}

func upsertFinancialRecord(ctx context.Context, tx *sql.Tx, r *domain.FinancialRecord, now int64) error {
	p := r.Provenance
	ids, err := marshalJSON(p.MentionIDs, "[]")
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO financial_records (record_id, backend, record_type, amount_value, amount_text,
			currency, counterparty, reference, date_raw, date_parsed, content_id, chunk_index,
			mention_ids, filename, message_id, attachment_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(record_id) DO UPDATE SET
			record_type = excluded.record_type,
			amount_value = excluded.amount_value,
			amount_text = excluded.amount_text,
			currency = excluded.currency,
			counterparty = excluded.counterparty,
			reference = excluded.reference,
			date_raw = excluded.date_raw,
			date_parsed = excluded.date_parsed,
			chunk_index = excluded.chunk_index,
			mention_ids = excluded.mention_ids,
			filename = excluded.filename,
			message_id = excluded.message_id,
			attachment_id = excluded.attachment_id,
			updated_at = excluded.updated_at
	`, r.RecordID, p.Backend, r.RecordType, nullFloat(r.AmountValue), nullString(r.AmountText),
		nullString(r.Currency), nullString(r.Counterparty), nullString(r.Reference),
		nullString(r.DateRaw), nullString(r.DateParsed), p.ContentID, p.ChunkIndex, ids,
		nullString(p.Filename), nullString(p.MessageID), nullString(p.AttachmentID),
		toNanosOr(r.CreatedAt, now), now)
	if err != nil {
		return fmt.Errorf("upserting financial record: %w", err)
	}
	return nil
}

func upsertMedicalEvent(ctx context.Context, tx *sql.Tx, e *domain.MedicalEvent, now int64) error {
	p := e.Provenance
	ids, err := marshalJSON(p.MentionIDs, "[]")
	if err != nil {
		return err
	}
	attrs, err := marshalJSON(e.Attributes, "{}")
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO medical_events (event_id, backend, event_type, description, attributes,
			patient, clinician, facility, date_raw, date_parsed, content_id, chunk_index,
			mention_ids, filename, message_id, attachment_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(event_id) DO UPDATE SET
			event_type = excluded.event_type,
			description = excluded.description,
			attributes = excluded.attributes,
			patient = excluded.patient,
			clinician = excluded.clinician,
			facility = excluded.facility,
			date_raw = excluded.date_raw,
			date_parsed = excluded.date_parsed,
			chunk_index = excluded.chunk_index,
			mention_ids = excluded.mention_ids,
			filename = excluded.filename,
			message_id = excluded.message_id,
			attachment_id = excluded.attachment_id,
			updated_at = excluded.updated_at
	`, e.EventID, p.Backend, e.EventType, nullString(e.Description), attrs,
		nullString(e.Patient), nullString(e.Clinician), nullString(e.Facility),
		nullString(e.DateRaw), nullString(e.DateParsed), p.ContentID, p.ChunkIndex, ids,
		nullString(p.Filename), nullString(p.MessageID), nullString(p.AttachmentID),
		toNanosOr(e.CreatedAt, now), now)
	if err != nil {
		return fmt.Errorf("upserting medical event: %w", err)
	}
	return nil
}

// ListLabResults returns lab results, optionally for one content item.
func (s *factStore) ListLabResults(ctx context.Context, contentID string) ([]domain.LabResult, error) {
	query, args := factQuery(`SELECT result_id, backend, test_entity_id, measurement_entity_id,
		reference_entity_id, test_name, measurement_text, measurement_value, measurement_units,
		reference_range, date_raw, date_parsed, patient, content_id, chunk_index, mention_ids,
		filename, message_id, attachment_id, created_at FROM lab_results`, contentID)
	rows, err := s.store.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying lab results: %w", err)
	}
	defer rows.Close()

	var out []domain.LabResult
	for rows.Next() {
		var (
			r       domain.LabResult
			p       provenanceColumns
			text    [10]sql.NullString
			value   sql.NullFloat64
			created int64
		)
		if err := rows.Scan(&r.ResultID, &p.backend, &text[0], &text[1], &text[2], &text[3], &text[4],
			&value, &text[5], &text[6], &text[7], &text[8], &text[9], &p.contentID, &p.chunkIndex,
			&p.mentionIDs, &p.filename, &p.messageID, &p.attachmentID, &created); err != nil {
			return nil, fmt.Errorf("scanning lab result: %w", err)
		}
		r.TestEntityID, r.MeasurementEntityID, r.ReferenceEntityID = text[0].String, text[1].String, text[2].String
		r.TestName, r.MeasurementText = text[3].String, text[4].String
		if value.Valid {
			v := value.Float64
			r.MeasurementValue = &v
		}
		r.MeasurementUnits, r.ReferenceRange = text[5].String, text[6].String
		r.DateRaw, r.DateParsed, r.Patient = text[7].String, text[8].String, text[9].String
		r.Provenance = p.provenance()
		r.CreatedAt = fromNanos(sql.NullInt64{Int64: created, Valid: true})
		out = append(out, r)
	}
	return out, rows.Err()
}

// ListFinancialRecords returns financial records, optionally for one content item.
func (s *factStore) ListFinancialRecords(ctx context.Context, contentID string) ([]domain.FinancialRecord, error) {
	query, args := factQuery(`SELECT record_id, backend, record_type, amount_value, amount_text,
		currency, counterparty, reference, date_raw, date_parsed, content_id, chunk_index,
		mention_ids, filename, message_id, attachment_id, created_at FROM financial_records`, contentID)
	rows, err := s.store.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying financial records: %w", err)
	}
	defer rows.Close()

	var out []domain.FinancialRecord
	for rows.Next() {
		var (
			r       domain.FinancialRecord
			p       provenanceColumns
			text    [6]sql.NullString
			value   sql.NullFloat64
			created int64
		)
		if err := rows.Scan(&r.RecordID, &p.backend, &r.RecordType, &value, &text[0], &text[1],
			&text[2], &text[3], &text[4], &text[5], &p.contentID, &p.chunkIndex, &p.mentionIDs,
			&p.filename, &p.messageID, &p.attachmentID, &created); err != nil {
			return nil, fmt.Errorf("scanning financial record: %w", err)
		}
		if value.Valid {
			v := value.Float64
			r.AmountValue = &v
		}
		r.AmountText, r.Currency, r.Counterparty = text[0].String, text[1].String, text[2].String
		r.Reference, r.DateRaw, r.DateParsed = text[3].String, text[4].String, text[5].String
		r.Provenance = p.provenance()
		r.CreatedAt = fromNanos(sql.NullInt64{Int64: created, Valid: true})
		out = append(out, r)
	}
	return out, rows.Err()
}

// ListMedicalEvents returns medical events, optionally for one content item.
func (s *factStore) ListMedicalEvents(ctx context.Context, contentID string) ([]domain.MedicalEvent, error) {
	query, args := factQuery(`SELECT event_id, backend, event_type, description, attributes,
		patient, clinician, facility, date_raw, date_parsed, content_id, chunk_index,
		mention_ids, filename, message_id, attachment_id, created_at FROM medical_events`, contentID)
	rows, err := s.store.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying medical events: %w", err)
	}
	defer rows.Close()

	var out []domain.MedicalEvent
	for rows.Next() {
		var (
			e       domain.MedicalEvent
			p       provenanceColumns
			text    [6]sql.NullString
			attrs   string
			created int64
		)
		if err := rows.Scan(&e.EventID, &p.backend, &e.EventType, &text[0], &attrs, &text[1],
			&text[2], &text[3], &text[4], &text[5], &p.contentID, &p.chunkIndex, &p.mentionIDs,
			&p.filename, &p.messageID, &p.attachmentID, &created); err != nil {
			return nil, fmt.Errorf("scanning medical event: %w", err)
		}
		e.Description, e.Patient, e.Clinician = text[0].String, text[1].String, text[2].String
		e.Facility, e.DateRaw, e.DateParsed = text[3].String, text[4].String, text[5].String
		e.Attributes = unmarshalStringMap(attrs)
		e.Provenance = p.provenance()
		e.CreatedAt = fromNanos(sql.NullInt64{Int64: created, Valid: true})
		out = append(out, e)
	}
	return out, rows.Err()
}

// provenanceColumns holds the shared provenance columns of fact tables.
type provenanceColumns struct {
	backend      string
	contentID    string
	chunkIndex   int
	mentionIDs   string
	filename     sql.NullString
	messageID    sql.NullString
	attachmentID sql.NullString
}

func (p provenanceColumns) provenance() domain.FactProvenance {
	return domain.FactProvenance{
		ContentID:    p.contentID,
		ChunkIndex:   p.chunkIndex,
		Backend:      p.backend,
		MentionIDs:   unmarshalStrings(p.mentionIDs),
		Filename:     p.filename.String,
		MessageID:    p.messageID.String,
		AttachmentID: p.attachmentID.String,
	}
}

func factQuery(base, contentID string) (string, []any) {
	if contentID == "" {
		return base + " ORDER BY content_id, chunk_index, created_at", nil
	}
	return base + " WHERE content_id = ? ORDER BY chunk_index, created_at", []any{contentID}
}

func nullFloat(v *float64) any {
	if v == nil {
		return nil
	}
	return *v
}
