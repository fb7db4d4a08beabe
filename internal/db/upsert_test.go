package db

import (
	"context"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMock(t *testing.T) pgxmock.PgxPoolIface {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return mock
}

func TestCopyFrom_EmptyRows(t *testing.T) {
	n, err := CopyFrom(context.Background(), nil, "codes", []string{"code"}, nil)
	assert.NoError(t, err)
	assert.Zero(t, n)
}

func TestCopyFrom(t *testing.T) {
	mock := newMock(t)
	mock.ExpectCopyFrom(pgx.Identifier{"ref", "codes"}, []string{"code", "description_en"}).WillReturnResult(2)

	n, err := CopyFrom(context.Background(), mock, "ref.codes", []string{"code", "description_en"},
		[][]any{{"7326900000", "Other articles of steel"}, {"8310000000", "Sign-plates"}})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCopyFrom_Error(t *testing.T) {
	mock := newMock(t)
	mock.ExpectCopyFrom(pgx.Identifier{"codes"}, []string{"code"}).WillReturnError(fmt.Errorf("permission denied"))

	_, err := CopyFrom(context.Background(), mock, "codes", []string{"code"}, [][]any{{"7326900000"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "COPY INTO codes")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBulkUpsert(t *testing.T) {
	mock := newMock(t)
	mock.ExpectBegin()
	mock.ExpectExec(`CREATE TEMP TABLE "_tmp_upsert_codes" \(LIKE "codes" INCLUDING DEFAULTS\)`).
		WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"_tmp_upsert_codes"}, []string{"code", "description_en"}).WillReturnResult(1)
	mock.ExpectExec(`INSERT INTO "codes" \("code", "description_en"\) SELECT .* ON CONFLICT \("code"\) DO UPDATE SET "description_en" = EXCLUDED."description_en"`).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()
	mock.ExpectRollback()

	n, err := BulkUpsert(context.Background(), mock, UpsertConfig{
		Table:        "codes",
		Columns:      []string{"code", "description_en"},
		ConflictKeys: []string{"code"},
	}, [][]any{{"7326900000", "Other articles of steel"}})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestBulkUpsert_CopyFailureRollsBack(t *testing.T) {
	mock := newMock(t)
	mock.ExpectBegin()
	mock.ExpectExec(`CREATE TEMP TABLE`).WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"_tmp_upsert_codes"}, []string{"code"}).WillReturnError(fmt.Errorf("bad row"))
	mock.ExpectRollback()

	_, err := BulkUpsert(context.Background(), mock, UpsertConfig{
		Table: "codes", Columns: []string{"code"}, ConflictKeys: []string{"code"}, UpdateCols: []string{},
	}, [][]any{{"7326900000"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "COPY into temp table")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBulkUpsert_Validation(t *testing.T) {
	n, err := BulkUpsert(context.Background(), nil, UpsertConfig{Table: "codes"}, nil)
	assert.NoError(t, err)
	assert.Zero(t, n)

	_, err = BulkUpsert(context.Background(), nil, UpsertConfig{Table: "codes", ConflictKeys: []string{"code"}}, [][]any{{1}})
	assert.ErrorContains(t, err, "no columns specified")

	_, err = BulkUpsert(context.Background(), nil, UpsertConfig{Table: "codes", Columns: []string{"code"}}, [][]any{{1}})
	assert.ErrorContains(t, err, "no conflict keys specified")
}

func TestIdentifier(t *testing.T) {
	assert.Equal(t, `"codes"`, identifier("codes").Sanitize())
	assert.Equal(t, `"ref"."codes"`, identifier("ref.codes").Sanitize())
	assert.Equal(t, `"a", "b"`, quoteAndJoin([]string{"a", "b"}))
}
