package pipeline

import (
	"context"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/tariff-cli/internal/budget"
	"github.com/sells-group/tariff-cli/internal/hscode"
	"github.com/sells-group/tariff-cli/internal/model"
	"github.com/sells-group/tariff-cli/internal/oracle"
)

// DefaultMaxCandidates caps how many codes OracleSource proposes.
const DefaultMaxCandidates = 5

// OracleSource proposes candidates by asking an oracle. Proposed codes are
// tagged with the AI provenance so rulings and book entries win ties.
type OracleSource struct {
	oracle oracle.Oracle
	max    int
}

// NewOracleSource wraps o. A max below one takes DefaultMaxCandidates.
func NewOracleSource(o oracle.Oracle, max int) *OracleSource {
	if max < 1 {
		max = DefaultMaxCandidates
	}
	return &OracleSource{oracle: o, max: max}
}

const sourceSystem = `You are a customs tariff classification specialist.
Propose the most likely tariff codes for the product, best first.
Reply with JSON only: {"candidates":[{"code":"<8-10 digit code>","confidence":<0-100>,"description":"<heading text>"}]}`

func (s *OracleSource) prompt(product model.ProductInfo) oracle.Prompt {
	var b strings.Builder
	b.WriteString("Product:\n")
	b.WriteString(product.Text())
	if product.OriginCountry != "" {
		fmt.Fprintf(&b, "\nOrigin: %s", product.OriginCountry)
	}
	fmt.Fprintf(&b, "\n\nPropose at most %d codes.", s.max)
	return oracle.Prompt{System: sourceSystem, User: b.String(), MaxTokens: 500}
}

// Candidates implements CandidateSource. The call is metered on ledger; a
// reply without usable codes yields no candidates and no error.
func (s *OracleSource) Candidates(ctx context.Context, ledger *budget.Ledger, product model.ProductInfo) ([]model.Candidate, error) {
	p := s.prompt(product)
	ans, err := budget.Metered(ctx, ledger, budget.CategoryOracle, s.oracle.Estimate(p),
		func(ctx context.Context) (*oracle.Answer, float64, error) {
			a, err := s.oracle.Ask(ctx, p)
			if a == nil {
				return nil, 0, err
			}
			return a, a.CostUSD, err
		})
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: candidate search")
	}
	ledger.AddTokens(ans.InputTokens, ans.OutputTokens)

	var reply struct {
		Candidates []struct {
			Code        string  `json:"code"`
			Confidence  float64 `json:"confidence"`
			Description string  `json:"description"`
		} `json:"candidates"`
	}
	if err := oracle.DecodeJSON(ans.Text, &reply); err != nil {
		return nil, nil
	}

	seen := make(map[string]bool)
	var out []model.Candidate
	for _, c := range reply.Candidates {
		code, err := hscode.Normalize(c.Code)
		if err != nil || seen[code] {
			continue
		}
		seen[code] = true
		out = append(out, model.Candidate{
			Code:        code,
			Confidence:  min(max(c.Confidence, 0), 100),
			Locator:     hscode.Locate(code),
			Description: model.Bilingual{EN: c.Description},
			Provenance:  model.ProvenanceAI,
			Alive:       true,
		})
		if len(out) == s.max {
			break
		}
	}
	return out, nil
}
