package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/tariff-cli/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS codes (
	code           TEXT PRIMARY KEY,
	description_en TEXT NOT NULL DEFAULT '',
	description_he TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS regulatory_records (
	code              TEXT PRIMARY KEY,
	authorities       TEXT NOT NULL DEFAULT '[]',
	requires_standard INTEGER NOT NULL DEFAULT 0,
	fta_countries     TEXT NOT NULL DEFAULT '[]',
	directives        TEXT NOT NULL DEFAULT '[]'
);

CREATE TABLE IF NOT EXISTS classification_attempts (
	thread_key    TEXT PRIMARY KEY,
	attempt_count INTEGER NOT NULL DEFAULT 0,
	codes_tried   TEXT NOT NULL DEFAULT '[]',
	updated_at    DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS audit_events (
	id         TEXT PRIMARY KEY,
	run_id     TEXT NOT NULL,
	thread_key TEXT NOT NULL DEFAULT '',
	item       INTEGER NOT NULL DEFAULT 0,
	kind       TEXT NOT NULL,
	code       TEXT NOT NULL DEFAULT '',
	summary    TEXT NOT NULL DEFAULT '',
	payload    TEXT,
	created_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_audit_events_run_id ON audit_events(run_id);
CREATE INDEX IF NOT EXISTS idx_audit_events_kind ON audit_events(kind);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.db.PingContext(ctx), "sqlite: ping")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) LookupCode(ctx context.Context, code string) (*model.CodeRecord, error) {
	var r model.CodeRecord
	err := s.db.QueryRowContext(ctx,
		`SELECT code, description_en, description_he FROM codes WHERE code = ?`, code,
	).Scan(&r.Code, &r.Description.EN, &r.Description.HE)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: lookup code %s", code)
	}
	return &r, nil
}

func (s *SQLiteStore) RegulatoryRecord(ctx context.Context, code string) (*model.RegulatoryRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT code, authorities, requires_standard, fta_countries, directives FROM regulatory_records WHERE code = ?`, code,
	)
	rec, err := scanRegulatory(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: regulatory record %s", code)
	}
	return rec, nil
}

func (s *SQLiteStore) ImportCodes(ctx context.Context, recs []model.CodeRecord) (int64, error) {
	return s.importRows(ctx, "codes", len(recs),
		`INSERT INTO codes (code, description_en, description_he) VALUES (?, ?, ?)
		 ON CONFLICT(code) DO UPDATE SET description_en = excluded.description_en, description_he = excluded.description_he`,
		func(i int) ([]any, error) {
			r := recs[i]
			return []any{r.Code, r.Description.EN, r.Description.HE}, nil
		})
}

func (s *SQLiteStore) ImportRegulatory(ctx context.Context, recs []model.RegulatoryRecord) (int64, error) {
	return s.importRows(ctx, "regulatory_records", len(recs),
		`INSERT INTO regulatory_records (code, authorities, requires_standard, fta_countries, directives) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(code) DO UPDATE SET authorities = excluded.authorities, requires_standard = excluded.requires_standard,
		 fta_countries = excluded.fta_countries, directives = excluded.directives`,
		func(i int) ([]any, error) {
			r := recs[i]
			authorities, fta, directives, err := regulatoryRow(r)
			if err != nil {
				return nil, err
			}
			return []any{r.Code, authorities, r.RequiresStandard, fta, directives}, nil
		})
}

// importRows upserts n rows in one transaction through a prepared statement.
func (s *SQLiteStore) importRows(ctx context.Context, table string, n int, query string, row func(int) ([]any, error)) (int64, error) {
	if n == 0 {
		return 0, nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrapf(err, "sqlite: begin import %s", table)
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return 0, eris.Wrapf(err, "sqlite: prepare import %s", table)
	}
	defer stmt.Close() //nolint:errcheck

	var total int64
	for i := 0; i < n; i++ {
		args, err := row(i)
		if err != nil {
			return 0, eris.Wrapf(err, "sqlite: encode %s row %d", table, i)
		}
		res, err := stmt.ExecContext(ctx, args...)
		if err != nil {
			return 0, eris.Wrapf(err, "sqlite: import %s row %d", table, i)
		}
		affected, _ := res.RowsAffected()
		total += affected
	}
	if err := tx.Commit(); err != nil {
		return 0, eris.Wrapf(err, "sqlite: commit import %s", table)
	}
	return total, nil
}

func (s *SQLiteStore) Next(ctx context.Context, key string, limit int) (*model.ClassificationAttempt, error) {
	now := time.Now().UTC()
	var tried string
	a := model.ClassificationAttempt{ThreadKey: key, UpdatedAt: now}
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO classification_attempts (thread_key, attempt_count, codes_tried, updated_at) VALUES (?, 1, '[]', ?)
		 ON CONFLICT(thread_key) DO UPDATE SET attempt_count = MIN(attempt_count + 1, ?), updated_at = excluded.updated_at
		 RETURNING attempt_count, codes_tried`,
		key, now, limit,
	).Scan(&a.AttemptCount, &tried)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: next attempt %s", key)
	}
	if a.CodesTried, err = unmarshalList([]byte(tried)); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal codes tried")
	}
	return &a, nil
}

func (s *SQLiteStore) RecordCodes(ctx context.Context, key string, codes []string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin record codes")
	}
	defer tx.Rollback() //nolint:errcheck

	var raw string
	err = tx.QueryRowContext(ctx, `SELECT codes_tried FROM classification_attempts WHERE thread_key = ?`, key).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return eris.Errorf("sqlite: no attempts recorded for %s", key)
	}
	if err != nil {
		return eris.Wrapf(err, "sqlite: read codes tried %s", key)
	}
	tried, err := unmarshalList([]byte(raw))
	if err != nil {
		return eris.Wrap(err, "sqlite: unmarshal codes tried")
	}
	merged, changed := mergeCodes(tried, codes)
	if !changed {
		return nil
	}
	enc, err := marshalList(merged)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal codes tried")
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE classification_attempts SET codes_tried = ?, updated_at = ? WHERE thread_key = ?`,
		enc, time.Now().UTC(), key,
	); err != nil {
		return eris.Wrapf(err, "sqlite: update codes tried %s", key)
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit record codes")
}

func (s *SQLiteStore) Record(ctx context.Context, ev model.AuditEvent) error {
	if ev.ID == "" {
		ev.ID = uuid.New().String()
	}
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now().UTC()
	}
	var payload sql.NullString
	if ev.Payload != nil {
		b, err := json.Marshal(ev.Payload)
		if err != nil {
			return eris.Wrap(err, "sqlite: marshal audit payload")
		}
		payload = sql.NullString{String: string(b), Valid: true}
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO audit_events (id, run_id, thread_key, item, kind, code, summary, payload, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ev.ID, ev.RunID, ev.ThreadKey, ev.Item, string(ev.Kind), ev.Code, ev.Summary, payload, ev.CreatedAt,
	)
	return eris.Wrapf(err, "sqlite: insert audit event %s", ev.Kind)
}

func (s *SQLiteStore) ListAudit(ctx context.Context, runID string) ([]model.AuditEvent, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, run_id, thread_key, item, kind, code, summary, payload, created_at
		 FROM audit_events WHERE run_id = ? ORDER BY created_at, rowid`, runID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: list audit %s", runID)
	}
	defer rows.Close() //nolint:errcheck

	var out []model.AuditEvent
	for rows.Next() {
		var ev model.AuditEvent
		var kind string
		var payload sql.NullString
		if err := rows.Scan(&ev.ID, &ev.RunID, &ev.ThreadKey, &ev.Item, &kind, &ev.Code, &ev.Summary, &payload, &ev.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan audit event")
		}
		ev.Kind = model.AuditKind(kind)
		if payload.Valid {
			ev.Payload = json.RawMessage(payload.String)
		}
		out = append(out, ev)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate audit events")
}
