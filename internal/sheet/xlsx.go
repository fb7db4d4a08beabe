// Package sheet reads batch item sheets and reference code books from XLSX
// workbooks.
package sheet

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
)

// Options selects the sheet to read.
type Options struct {
	SheetIndex int    // default 0
	SheetName  string // if set, overrides SheetIndex
	SkipRows   int    // rows to skip before the header
}

// Record is one data row keyed by normalized header name.
type Record struct {
	Line   int // 1-based row number in the sheet
	fields map[string]string
}

// Get returns the first non-empty value among the given column names.
func (r Record) Get(names ...string) string {
	for _, n := range names {
		if v := strings.TrimSpace(r.fields[n]); v != "" {
			return v
		}
	}
	return ""
}

// Empty reports whether every cell of the row is blank.
func (r Record) Empty() bool {
	for _, v := range r.fields {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

// ReadRows reads an XLSX file and returns all rows after SkipRows as string slices.
func ReadRows(path string, opts Options) ([][]string, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "sheet: open file")
	}

	s, err := getSheet(f, opts)
	if err != nil {
		return nil, err
	}

	var rows [][]string
	for i, row := range s.Rows {
		if i < opts.SkipRows {
			continue
		}
		rows = append(rows, rowToStrings(row))
	}
	return rows, nil
}

// ReadTable reads a sheet whose first row (after SkipRows) is a header and
// returns the remaining non-blank rows as records.
func ReadTable(path string, opts Options) ([]Record, error) {
	rows, err := ReadRows(path, opts)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, eris.Errorf("sheet: %s has no header row", path)
	}

	header := make([]string, len(rows[0]))
	for i, h := range rows[0] {
		header[i] = HeaderKey(h)
	}

	var out []Record
	for i, row := range rows[1:] {
		rec := Record{Line: opts.SkipRows + i + 2, fields: make(map[string]string, len(header))}
		for j, v := range row {
			if j < len(header) && header[j] != "" {
				rec.fields[header[j]] = v
			}
		}
		if rec.Empty() {
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}

// HeaderKey normalizes a column title: "Description (EN)" becomes
// "description_en".
func HeaderKey(h string) string {
	var b strings.Builder
	sep := false
	for _, r := range strings.ToLower(strings.TrimSpace(h)) {
		switch {
		case r == ' ' || r == '-' || r == '_' || r == '/':
			sep = b.Len() > 0
		case r == '(' || r == ')' || r == '.':
			sep = sep || b.Len() > 0
		default:
			if sep {
				b.WriteByte('_')
				sep = false
			}
			b.WriteRune(r)
		}
	}
	return b.String()
}

func getSheet(f *xlsx.File, opts Options) (*xlsx.Sheet, error) {
	if opts.SheetName != "" {
		s, ok := f.Sheet[opts.SheetName]
		if !ok {
			return nil, eris.Errorf("sheet: %q not found", opts.SheetName)
		}
		return s, nil
	}

	if opts.SheetIndex >= len(f.Sheets) {
		return nil, eris.Errorf("sheet: index %d out of range (file has %d sheets)", opts.SheetIndex, len(f.Sheets))
	}
	return f.Sheets[opts.SheetIndex], nil
}

func rowToStrings(row *xlsx.Row) []string {
	cells := make([]string, len(row.Cells))
	for j, cell := range row.Cells {
		cells[j] = cell.String()
	}
	return cells
}

// splitList splits a multi-value cell on semicolons, commas and newlines.
func splitList(s string) []string {
	parts := strings.FieldsFunc(s, func(r rune) bool {
		return r == ';' || r == ',' || r == '\n'
	})
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func parseBool(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "y", "yes", "true", "x", "כן":
		return true
	}
	return false
}
