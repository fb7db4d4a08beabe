package store

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/tariff-cli/internal/model"
)

// newMockPostgresStore creates a PostgresStore backed by pgxmock.
func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })
	return NewPostgresFromPool(mock), mock
}

func TestPostgres_LookupCode(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT code, description_en, description_he FROM codes WHERE code = \$1`).
		WithArgs("7326900000").
		WillReturnRows(pgxmock.NewRows([]string{"code", "description_en", "description_he"}).
			AddRow("7326900000", "Other articles of iron or steel", "פריטים אחרים מברזל או מפלדה"))

	rec, err := s.LookupCode(context.Background(), "7326900000")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "Other articles of iron or steel", rec.Description.EN)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_LookupCode_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`FROM codes WHERE code`).WithArgs("9999000000").WillReturnError(pgx.ErrNoRows)

	rec, err := s.LookupCode(context.Background(), "9999000000")
	require.NoError(t, err)
	assert.Nil(t, rec)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_RegulatoryRecord(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`FROM regulatory_records WHERE code = \$1`).
		WithArgs("7326900000").
		WillReturnRows(pgxmock.NewRows([]string{"code", "authorities", "requires_standard", "fta_countries", "directives"}).
			AddRow("7326900000", []byte(`["Standards Institution"]`), true, []byte(`["TR"]`),
				[]byte(`[{"id":"d1","authority":"Standards Institution","requirement":"standard"}]`)))

	rec, err := s.RegulatoryRecord(context.Background(), "7326900000")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.True(t, rec.RequiresStandard)
	assert.Equal(t, []string{"TR"}, rec.FTACountries)
	require.Len(t, rec.Directives, 1)
	assert.Equal(t, "standard", rec.Directives[0].Requirement)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_Next(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	now := time.Now().UTC()

	mock.ExpectQuery(`INSERT INTO classification_attempts .* LEAST\(classification_attempts.attempt_count \+ 1, \$2\)`).
		WithArgs("subj:steel box", 3).
		WillReturnRows(pgxmock.NewRows([]string{"attempt_count", "codes_tried", "updated_at"}).
			AddRow(2, []byte(`["7326900000"]`), now))

	a, err := s.Next(context.Background(), "subj:steel box", 3)
	require.NoError(t, err)
	assert.Equal(t, 2, a.AttemptCount)
	assert.Equal(t, []string{"7326900000"}, a.CodesTried)
	assert.Equal(t, now, a.UpdatedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_RecordCodes(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT codes_tried FROM classification_attempts WHERE thread_key = \$1 FOR UPDATE`).
		WithArgs("subj:steel box").
		WillReturnRows(pgxmock.NewRows([]string{"codes_tried"}).AddRow([]byte(`["7326900000"]`)))
	mock.ExpectExec(`UPDATE classification_attempts SET codes_tried`).
		WithArgs(`["7326900000","7310100000"]`, "subj:steel box").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCommit()

	err := s.RecordCodes(context.Background(), "subj:steel box", []string{"7310100000", "7326900000"})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_RecordCodes_NothingNew(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT codes_tried`).
		WithArgs("subj:steel box").
		WillReturnRows(pgxmock.NewRows([]string{"codes_tried"}).AddRow([]byte(`["7326900000"]`)))
	mock.ExpectRollback()

	require.NoError(t, s.RecordCodes(context.Background(), "subj:steel box", []string{"7326900000"}))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_Record(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`INSERT INTO audit_events`).
		WithArgs(pgxmock.AnyArg(), "run-1", "", 0, "cross_check", "8510100000", "majority", []byte(`{"tier":"majority"}`), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := s.Record(context.Background(), model.AuditEvent{
		RunID: "run-1", Kind: model.AuditCrossCheck, Code: "8510100000", Summary: "majority",
		Payload: map[string]string{"tier": "majority"},
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_ImportCodes(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(`CREATE TEMP TABLE "_tmp_upsert_codes"`).WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"_tmp_upsert_codes"}, []string{"code", "description_en", "description_he"}).WillReturnResult(2)
	mock.ExpectExec(`INSERT INTO "codes"`).WillReturnResult(pgxmock.NewResult("INSERT", 2))
	mock.ExpectCommit()

	n, err := s.ImportCodes(context.Background(), []model.CodeRecord{
		{Code: "7326900000", Description: model.Bilingual{EN: "Other articles of iron or steel"}},
		{Code: "8310000000", Description: model.Bilingual{EN: "Sign-plates"}},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_MigrateAndPing(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS codes`).WillReturnResult(pgxmock.NewResult("CREATE", 0))

	require.NoError(t, s.Migrate(context.Background()))
	require.NoError(t, s.Ping(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}
