package main

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/tariff-cli/internal/sheet"
	"github.com/sells-group/tariff-cli/internal/store"
)

func writeXLSX(t *testing.T, name string, rows [][]string) string {
	t.Helper()
	f := xlsx.NewFile()
	s, err := f.AddSheet("Sheet1")
	require.NoError(t, err)
	for _, rowData := range rows {
		row := s.AddRow()
		for _, cell := range rowData {
			row.AddCell().SetString(cell)
		}
	}
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, f.Save(path))
	return path
}

func TestImportRefdata(t *testing.T) {
	ctx := context.Background()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "ref.db"))
	require.NoError(t, err)
	defer st.Close() //nolint:errcheck
	require.NoError(t, st.Migrate(ctx))

	codes := writeXLSX(t, "codes.xlsx", [][]string{
		{"Code", "Description (EN)", "Description (HE)"},
		{"7326.9000", "Other articles of iron or steel", "פריטים אחרים מברזל או מפלדה"},
		{"8310.00", "Sign-plates", ""},
	})
	regs := writeXLSX(t, "regs.xlsx", [][]string{
		{"Code", "Authorities", "Requires Standard", "FTA Countries"},
		{"7326.9000", "Standards Institution", "yes", "EU"},
	})

	require.NoError(t, importRefdata(ctx, st, codes, regs, sheet.Options{}))

	rec, err := st.LookupCode(ctx, "7326900000")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "Other articles of iron or steel", rec.Description.EN)

	reg, err := st.RegulatoryRecord(ctx, "7326900000")
	require.NoError(t, err)
	require.NotNil(t, reg)
	assert.True(t, reg.RequiresStandard)
}

func TestImportRefdata_BadCode(t *testing.T) {
	ctx := context.Background()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "ref.db"))
	require.NoError(t, err)
	defer st.Close() //nolint:errcheck
	require.NoError(t, st.Migrate(ctx))

	codes := writeXLSX(t, "codes.xlsx", [][]string{
		{"Code", "Description"},
		{"abc", "nonsense"},
	})
	err = importRefdata(ctx, st, codes, "", sheet.Options{})
	assert.ErrorContains(t, err, "row 2")
}
