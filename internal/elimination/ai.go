package elimination

import (
	"context"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/tariff-cli/internal/budget"
	"github.com/sells-group/tariff-cli/internal/hscode"
	"github.com/sells-group/tariff-cli/internal/model"
	"github.com/sells-group/tariff-cli/internal/oracle"
)

// Narrower performs AI-assisted semantic narrowing over the survivors of the
// deterministic levels.
type Narrower interface {
	Estimate(product model.ProductInfo, survivors []model.Candidate) float64
	Narrow(ctx context.Context, product model.ProductInfo, survivors []model.Candidate) (*Narrowing, error)
}

// Narrowing is the narrower's verdict.
type Narrowing struct {
	// Keep lists the codes that remain plausible.
	Keep []string
	// Reasons maps a dropped code to why it was dropped.
	Reasons      map[string]string
	CostUSD      float64
	InputTokens  int64
	OutputTokens int64
}

// aiLevel runs semantic narrowing when more than one candidate survives and
// the ledger allows a paid call. It reports whether narrowing ran.
func (e *Engine) aiLevel(ctx context.Context, r *run, ledger *budget.Ledger) bool {
	var alive []model.Candidate
	for _, c := range r.cands {
		if c.Alive {
			alive = append(alive, c)
		}
	}
	if len(alive) <= 1 {
		r.noop(model.LevelAI, model.RuleSemantic, "single candidate remains; semantic narrowing not needed")
		return true
	}
	if e.narrower == nil || ledger == nil {
		r.noop(model.LevelAI, model.RuleSemantic, "semantic narrowing unavailable")
		return false
	}

	est := e.narrower.Estimate(r.product, alive)
	if !ledger.CanAfford(est) {
		r.noop(model.LevelAI, model.RuleSemantic, fmt.Sprintf("skipped: budget does not allow a $%.4f call", est))
		return false
	}

	nr, err := budget.Metered(ctx, ledger, budget.CategoryOracle, est, func(ctx context.Context) (*Narrowing, float64, error) {
		n, err := e.narrower.Narrow(ctx, r.product, alive)
		if err != nil {
			return nil, 0, err
		}
		return n, n.CostUSD, nil
	})
	if err != nil {
		zap.L().Warn("elimination: semantic narrowing failed", zap.Error(err))
		r.noop(model.LevelAI, model.RuleSemantic, "semantic narrowing failed: "+err.Error())
		return false
	}
	ledger.AddTokens(nr.InputTokens, nr.OutputTokens)

	keep := make(map[string]bool, len(nr.Keep))
	for _, c := range nr.Keep {
		keep[c] = true
	}
	if len(keep) == 0 {
		r.noop(model.LevelAI, model.RuleSemantic, "semantic review retained every candidate")
		return true
	}

	acted := r.pass(model.LevelAI, model.RuleSemantic, func(c *model.Candidate) (string, bool) {
		if keep[c.Code] {
			return "", false
		}
		if why := nr.Reasons[c.Code]; why != "" {
			return "semantic review: " + why, true
		}
		return "semantic review did not retain this code", true
	})
	if !acted {
		r.noop(model.LevelAI, model.RuleSemantic, "semantic review retained every candidate")
	}
	return true
}

// OracleNarrower asks an oracle which candidates remain plausible.
type OracleNarrower struct {
	oracle oracle.Oracle
}

// NewOracleNarrower wraps o.
func NewOracleNarrower(o oracle.Oracle) *OracleNarrower {
	return &OracleNarrower{oracle: o}
}

const narrowSystem = `You are a customs tariff classification specialist applying the General Interpretative Rules.
Given a product and candidate tariff codes, keep only codes that can legally describe the product.
Reply with JSON only: {"keep":["<code>"],"eliminate":[{"code":"<code>","reason":"<one sentence>"}]}`

func narrowPrompt(product model.ProductInfo, cands []model.Candidate) oracle.Prompt {
	var b strings.Builder
	b.WriteString("Product:\n")
	b.WriteString(product.Text())
	if product.OriginCountry != "" {
		fmt.Fprintf(&b, "\nOrigin: %s", product.OriginCountry)
	}
	b.WriteString("\n\nCandidates:\n")
	for _, c := range cands {
		fmt.Fprintf(&b, "- %s (%s) confidence %.0f: %s\n", c.Code, hscode.Display(c.Code), c.Confidence, c.Description.Joined())
	}
	return oracle.Prompt{System: narrowSystem, User: b.String(), MaxTokens: 400}
}

// Estimate implements Narrower.
func (n *OracleNarrower) Estimate(product model.ProductInfo, cands []model.Candidate) float64 {
	return n.oracle.Estimate(narrowPrompt(product, cands))
}

// Narrow implements Narrower. Codes in the reply that are not among the
// candidates are ignored.
func (n *OracleNarrower) Narrow(ctx context.Context, product model.ProductInfo, cands []model.Candidate) (*Narrowing, error) {
	ans, err := n.oracle.Ask(ctx, narrowPrompt(product, cands))
	if err != nil {
		return nil, eris.Wrap(err, "elimination: narrow")
	}

	var reply struct {
		Keep      []string `json:"keep"`
		Eliminate []struct {
			Code   string `json:"code"`
			Reason string `json:"reason"`
		} `json:"eliminate"`
	}
	out := &Narrowing{
		Reasons:      make(map[string]string),
		CostUSD:      ans.CostUSD,
		InputTokens:  ans.InputTokens,
		OutputTokens: ans.OutputTokens,
	}
	if err := oracle.DecodeJSON(ans.Text, &reply); err != nil {
		return out, nil
	}

	known := make(map[string]bool, len(cands))
	for _, c := range cands {
		known[c.Code] = true
	}
	for _, raw := range reply.Keep {
		if code, err := hscode.Normalize(raw); err == nil && known[code] {
			out.Keep = append(out.Keep, code)
		}
	}
	for _, el := range reply.Eliminate {
		if code, err := hscode.Normalize(el.Code); err == nil && known[code] {
			out.Reasons[code] = el.Reason
		}
	}
	return out, nil
}
