package sheet

import (
	"slices"

	"github.com/rotisserie/eris"

	"github.com/sells-group/tariff-cli/internal/hscode"
	"github.com/sells-group/tariff-cli/internal/model"
)

// ReadCodes reads a code book sheet with the columns code, description_en
// and description_he.
func ReadCodes(path string, opts Options) ([]model.CodeRecord, error) {
	recs, err := ReadTable(path, opts)
	if err != nil {
		return nil, err
	}

	out := make([]model.CodeRecord, 0, len(recs))
	for _, rec := range recs {
		code, err := hscode.Normalize(rec.Get("code", "hs_code", "tariff_code"))
		if err != nil {
			return nil, eris.Wrapf(err, "sheet: row %d", rec.Line)
		}
		out = append(out, model.CodeRecord{
			Code: code,
			Description: model.Bilingual{
				EN: rec.Get("description_en", "description"),
				HE: rec.Get("description_he"),
			},
		})
	}
	return out, nil
}

// ReadRegulatory reads a regulatory sheet. Each row carries the code-level
// columns (authorities, requires_standard, fta_countries) and optionally one
// directive (directive_id, directive_authority, requirement, directive_text).
// Rows for the same code are merged in sheet order.
func ReadRegulatory(path string, opts Options) ([]model.RegulatoryRecord, error) {
	recs, err := ReadTable(path, opts)
	if err != nil {
		return nil, err
	}

	var out []model.RegulatoryRecord
	index := make(map[string]int)
	for _, rec := range recs {
		code, err := hscode.Normalize(rec.Get("code", "hs_code", "tariff_code"))
		if err != nil {
			return nil, eris.Wrapf(err, "sheet: row %d", rec.Line)
		}

		i, ok := index[code]
		if !ok {
			i = len(out)
			index[code] = i
			out = append(out, model.RegulatoryRecord{Code: code})
		}
		r := &out[i]
		r.Authorities = appendNew(r.Authorities, splitList(rec.Get("authorities", "authority"))...)
		r.FTACountries = appendNew(r.FTACountries, splitList(rec.Get("fta_countries"))...)
		r.RequiresStandard = r.RequiresStandard || parseBool(rec.Get("requires_standard", "standard"))

		if id := rec.Get("directive_id", "directive"); id != "" {
			d := model.Directive{
				ID:          id,
				Authority:   rec.Get("directive_authority"),
				Requirement: rec.Get("requirement"),
				Text:        rec.Get("directive_text"),
			}
			if d.Authority != "" {
				r.Authorities = appendNew(r.Authorities, d.Authority)
			}
			r.Directives = append(r.Directives, d)
		}
	}
	return out, nil
}

func appendNew(list []string, vals ...string) []string {
	for _, v := range vals {
		if !slices.Contains(list, v) {
			list = append(list, v)
		}
	}
	return list
}
