package sheet

import (
	"strconv"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/tariff-cli/internal/hscode"
	"github.com/sells-group/tariff-cli/internal/model"
)

// ReadRequests reads a batch item sheet. Consecutive rows that share a
// subject and message id become the items of one request; rows with neither
// are requests of their own.
//
// Recognized columns: subject, message_id, description_en, description_he,
// material, form, intended_use, origin, fta and candidates. The candidates
// cell lists "code[:confidence]" entries separated by semicolons or newlines.
func ReadRequests(path string, opts Options) ([]model.Request, error) {
	recs, err := ReadTable(path, opts)
	if err != nil {
		return nil, err
	}

	var out []model.Request
	for _, rec := range recs {
		item, err := itemFromRecord(rec)
		if err != nil {
			return nil, err
		}

		subject := rec.Get("subject")
		msgID := rec.Get("message_id", "message")
		tracked := subject != "" || msgID != ""
		if n := len(out); tracked && n > 0 && out[n-1].Subject == subject && out[n-1].MessageID == msgID {
			out[n-1].Items = append(out[n-1].Items, item)
			continue
		}
		out = append(out, model.Request{Subject: subject, MessageID: msgID, Items: []model.Item{item}})
	}
	return out, nil
}

func itemFromRecord(rec Record) (model.Item, error) {
	item := model.Item{
		Product: model.ProductInfo{
			Material:      rec.Get("material"),
			Form:          rec.Get("form"),
			IntendedUse:   rec.Get("intended_use", "use"),
			OriginCountry: strings.ToUpper(rec.Get("origin", "origin_country", "country")),
			Description: model.Bilingual{
				EN: rec.Get("description_en", "description"),
				HE: rec.Get("description_he"),
			},
		},
		FTAEligible: parseBool(rec.Get("fta", "fta_eligible")),
	}
	if item.Product.Description.EN == "" && item.Product.Description.HE == "" {
		return item, eris.Errorf("sheet: row %d: missing description", rec.Line)
	}

	cands, err := ParseCandidates(rec.Get("candidates", "codes"))
	if err != nil {
		return item, eris.Wrapf(err, "sheet: row %d", rec.Line)
	}
	item.Candidates = cands
	return item, nil
}

// ParseCandidates parses "7326.9000:80; 9403.2000" into live candidates.
// Codes that do not normalize are kept verbatim for the code gate to reject.
func ParseCandidates(cell string) ([]model.Candidate, error) {
	var out []model.Candidate
	for _, entry := range strings.FieldsFunc(cell, func(r rune) bool { return r == ';' || r == '\n' }) {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		raw, conf := entry, 50.0
		if idx := strings.LastIndex(entry, ":"); idx >= 0 {
			raw = strings.TrimSpace(entry[:idx])
			f, err := strconv.ParseFloat(strings.TrimSpace(entry[idx+1:]), 64)
			if err != nil || f < 0 || f > 100 {
				return nil, eris.Errorf("candidate %q: confidence must be between 0 and 100", entry)
			}
			conf = f
		}

		c := model.Candidate{
			Code:       raw,
			Confidence: conf,
			Provenance: model.ProvenanceCustomer,
			Alive:      true,
		}
		if code, err := hscode.Normalize(raw); err == nil {
			c.Code = code
			c.Locator = hscode.Locate(code)
		}
		out = append(out, c)
	}
	return out, nil
}
