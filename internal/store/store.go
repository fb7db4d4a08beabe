// Package store persists reference data, attempt counts and the audit log.
package store

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/tariff-cli/internal/model"
)

// Store is the persistence surface of the classification core. Lookups
// return (nil, nil) when nothing is on record.
type Store interface {
	// Reference data
	LookupCode(ctx context.Context, code string) (*model.CodeRecord, error)
	RegulatoryRecord(ctx context.Context, code string) (*model.RegulatoryRecord, error)
	ImportCodes(ctx context.Context, recs []model.CodeRecord) (int64, error)
	ImportRegulatory(ctx context.Context, recs []model.RegulatoryRecord) (int64, error)

	// Attempts
	Next(ctx context.Context, key string, limit int) (*model.ClassificationAttempt, error)
	RecordCodes(ctx context.Context, key string, codes []string) error

	// Audit
	Record(ctx context.Context, ev model.AuditEvent) error
	ListAudit(ctx context.Context, runID string) ([]model.AuditEvent, error)

	// Lifecycle
	Ping(ctx context.Context) error
	Migrate(ctx context.Context) error
	Close() error
}

// Config selects and configures the backing database.
type Config struct {
	Driver      string     `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string     `yaml:"database_url" mapstructure:"database_url"`
	Path        string     `yaml:"path" mapstructure:"path"`
	Pool        PoolConfig `yaml:"pool" mapstructure:"pool"`
}

// Open creates the store named by cfg.Driver ("sqlite" or "postgres").
func Open(ctx context.Context, cfg Config) (Store, error) {
	switch strings.ToLower(cfg.Driver) {
	case "", "sqlite":
		path := cfg.Path
		if path == "" {
			path = "tariff.db"
		}
		return NewSQLite(path)
	case "postgres", "postgresql":
		if cfg.DatabaseURL == "" {
			return nil, eris.New("store: postgres driver requires database_url")
		}
		return NewPostgres(ctx, cfg.DatabaseURL, &cfg.Pool)
	default:
		return nil, eris.Errorf("store: unknown driver %q", cfg.Driver)
	}
}

type scannable interface {
	Scan(dest ...any) error
}

// mergeCodes appends codes not already in tried, preserving order.
func mergeCodes(tried, codes []string) ([]string, bool) {
	seen := make(map[string]bool, len(tried))
	for _, c := range tried {
		seen[c] = true
	}
	changed := false
	for _, c := range codes {
		if c == "" || seen[c] {
			continue
		}
		seen[c] = true
		tried = append(tried, c)
		changed = true
	}
	return tried, changed
}

func marshalList(v []string) (string, error) {
	if v == nil {
		v = []string{}
	}
	b, err := json.Marshal(v)
	return string(b), err
}

func unmarshalList(raw []byte) ([]string, error) {
	out := []string{}
	if len(raw) == 0 {
		return out, nil
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// regulatoryRow flattens a record into column values with JSON lists.
func regulatoryRow(r model.RegulatoryRecord) (authorities, fta, directives string, err error) {
	if authorities, err = marshalList(r.Authorities); err != nil {
		return
	}
	if fta, err = marshalList(r.FTACountries); err != nil {
		return
	}
	ds := r.Directives
	if ds == nil {
		ds = []model.Directive{}
	}
	b, err := json.Marshal(ds)
	return authorities, fta, string(b), err
}

func scanRegulatory(row scannable) (*model.RegulatoryRecord, error) {
	var r model.RegulatoryRecord
	var authorities, fta, directives []byte
	if err := row.Scan(&r.Code, &authorities, &r.RequiresStandard, &fta, &directives); err != nil {
		return nil, err
	}
	var err error
	if r.Authorities, err = unmarshalList(authorities); err != nil {
		return nil, eris.Wrap(err, "unmarshal authorities")
	}
	if r.FTACountries, err = unmarshalList(fta); err != nil {
		return nil, eris.Wrap(err, "unmarshal fta countries")
	}
	if len(directives) > 0 {
		if err := json.Unmarshal(directives, &r.Directives); err != nil {
			return nil, eris.Wrap(err, "unmarshal directives")
		}
	}
	return &r, nil
}
