package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/tariff-cli/internal/db"
	"github.com/sells-group/tariff-cli/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool db.Pool
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

const (
	sqlLookupCode = `SELECT code, description_en, description_he FROM codes WHERE code = $1`

	sqlRegulatory = `SELECT code, authorities, requires_standard, fta_countries, directives FROM regulatory_records WHERE code = $1`

	sqlNextAttempt = `INSERT INTO classification_attempts (thread_key, attempt_count, codes_tried, updated_at)
VALUES ($1, 1, '[]'::jsonb, now())
ON CONFLICT (thread_key) DO UPDATE SET attempt_count = LEAST(classification_attempts.attempt_count + 1, $2), updated_at = now()
RETURNING attempt_count, codes_tried, updated_at`

	sqlInsertAudit = `INSERT INTO audit_events (id, run_id, thread_key, item, kind, code, summary, payload, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
)

// preparedStatements are prepared on each new connection.
var preparedStatements = map[string]string{
	"lookup_code":  sqlLookupCode,
	"regulatory":   sqlRegulatory,
	"next_attempt": sqlNextAttempt,
	"insert_audit": sqlInsertAudit,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				// Tables may not exist before the first migrate.
				if isUndefinedTable(err) {
					continue
				}
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool}, nil
}

// NewPostgresFromPool wraps an existing pool.
func NewPostgresFromPool(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS codes (
	code           TEXT PRIMARY KEY,
	description_en TEXT NOT NULL DEFAULT '',
	description_he TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS regulatory_records (
	code              TEXT PRIMARY KEY,
	authorities       JSONB NOT NULL DEFAULT '[]',
	requires_standard BOOLEAN NOT NULL DEFAULT false,
	fta_countries     JSONB NOT NULL DEFAULT '[]',
	directives        JSONB NOT NULL DEFAULT '[]'
);

CREATE TABLE IF NOT EXISTS classification_attempts (
	thread_key    TEXT PRIMARY KEY,
	attempt_count INTEGER NOT NULL DEFAULT 0,
	codes_tried   JSONB NOT NULL DEFAULT '[]',
	updated_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS audit_events (
	id         TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	run_id     TEXT NOT NULL,
	thread_key TEXT NOT NULL DEFAULT '',
	item       INTEGER NOT NULL DEFAULT 0,
	kind       TEXT NOT NULL,
	code       TEXT NOT NULL DEFAULT '',
	summary    TEXT NOT NULL DEFAULT '',
	payload    JSONB,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_audit_events_run_id ON audit_events(run_id);
CREATE INDEX IF NOT EXISTS idx_audit_events_kind ON audit_events(kind);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.pool.Ping(ctx), "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) LookupCode(ctx context.Context, code string) (*model.CodeRecord, error) {
	var r model.CodeRecord
	err := s.pool.QueryRow(ctx, sqlLookupCode, code).Scan(&r.Code, &r.Description.EN, &r.Description.HE)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: lookup code %s", code)
	}
	return &r, nil
}

func (s *PostgresStore) RegulatoryRecord(ctx context.Context, code string) (*model.RegulatoryRecord, error) {
	rec, err := scanRegulatory(s.pool.QueryRow(ctx, sqlRegulatory, code))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: regulatory record %s", code)
	}
	return rec, nil
}

func (s *PostgresStore) ImportCodes(ctx context.Context, recs []model.CodeRecord) (int64, error) {
	rows := make([][]any, len(recs))
	for i, r := range recs {
		rows[i] = []any{r.Code, r.Description.EN, r.Description.HE}
	}
	n, err := db.BulkUpsert(ctx, s.pool, db.UpsertConfig{
		Table:        "codes",
		Columns:      []string{"code", "description_en", "description_he"},
		ConflictKeys: []string{"code"},
	}, rows)
	return n, eris.Wrap(err, "postgres: import codes")
}

func (s *PostgresStore) ImportRegulatory(ctx context.Context, recs []model.RegulatoryRecord) (int64, error) {
	rows := make([][]any, len(recs))
	for i, r := range recs {
		authorities, fta, directives, err := regulatoryRow(r)
		if err != nil {
			return 0, eris.Wrapf(err, "postgres: encode regulatory row %d", i)
		}
		rows[i] = []any{r.Code, authorities, r.RequiresStandard, fta, directives}
	}
	n, err := db.BulkUpsert(ctx, s.pool, db.UpsertConfig{
		Table:        "regulatory_records",
		Columns:      []string{"code", "authorities", "requires_standard", "fta_countries", "directives"},
		ConflictKeys: []string{"code"},
	}, rows)
	return n, eris.Wrap(err, "postgres: import regulatory records")
}

func (s *PostgresStore) Next(ctx context.Context, key string, limit int) (*model.ClassificationAttempt, error) {
	a := model.ClassificationAttempt{ThreadKey: key}
	var tried []byte
	err := s.pool.QueryRow(ctx, sqlNextAttempt, key, limit).Scan(&a.AttemptCount, &tried, &a.UpdatedAt)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: next attempt %s", key)
	}
	if a.CodesTried, err = unmarshalList(tried); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal codes tried")
	}
	return &a, nil
}

// RecordCodes locks the attempt row so concurrent requests on one thread
// merge their codes instead of overwriting each other.
func (s *PostgresStore) RecordCodes(ctx context.Context, key string, codes []string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin record codes")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	var raw []byte
	err = tx.QueryRow(ctx, `SELECT codes_tried FROM classification_attempts WHERE thread_key = $1 FOR UPDATE`, key).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return eris.Errorf("postgres: no attempts recorded for %s", key)
	}
	if err != nil {
		return eris.Wrapf(err, "postgres: read codes tried %s", key)
	}
	tried, err := unmarshalList(raw)
	if err != nil {
		return eris.Wrap(err, "postgres: unmarshal codes tried")
	}
	merged, changed := mergeCodes(tried, codes)
	if !changed {
		return nil
	}
	enc, err := marshalList(merged)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal codes tried")
	}
	if _, err := tx.Exec(ctx,
		`UPDATE classification_attempts SET codes_tried = $1::jsonb, updated_at = now() WHERE thread_key = $2`,
		enc, key,
	); err != nil {
		return eris.Wrapf(err, "postgres: update codes tried %s", key)
	}
	return eris.Wrap(tx.Commit(ctx), "postgres: commit record codes")
}

func (s *PostgresStore) Record(ctx context.Context, ev model.AuditEvent) error {
	if ev.ID == "" {
		ev.ID = uuid.New().String()
	}
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now().UTC()
	}
	var payload []byte
	if ev.Payload != nil {
		b, err := json.Marshal(ev.Payload)
		if err != nil {
			return eris.Wrap(err, "postgres: marshal audit payload")
		}
		payload = b
	}
	_, err := s.pool.Exec(ctx, sqlInsertAudit,
		ev.ID, ev.RunID, ev.ThreadKey, ev.Item, string(ev.Kind), ev.Code, ev.Summary, payload, ev.CreatedAt,
	)
	return eris.Wrapf(err, "postgres: insert audit event %s", ev.Kind)
}

func (s *PostgresStore) ListAudit(ctx context.Context, runID string) ([]model.AuditEvent, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, run_id, thread_key, item, kind, code, summary, payload, created_at
		 FROM audit_events WHERE run_id = $1 ORDER BY created_at, id`, runID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: list audit %s", runID)
	}
	defer rows.Close()

	var out []model.AuditEvent
	for rows.Next() {
		var ev model.AuditEvent
		var kind string
		var payload []byte
		if err := rows.Scan(&ev.ID, &ev.RunID, &ev.ThreadKey, &ev.Item, &kind, &ev.Code, &ev.Summary, &payload, &ev.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan audit event")
		}
		ev.Kind = model.AuditKind(kind)
		if len(payload) > 0 {
			ev.Payload = json.RawMessage(payload)
		}
		out = append(out, ev)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate audit events")
}

func isUndefinedTable(err error) bool {
	var pgErr interface{ SQLState() string }
	return errors.As(err, &pgErr) && pgErr.SQLState() == "42P01"
}
