package pipeline

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/sells-group/tariff-cli/internal/crosscheck"
	"github.com/sells-group/tariff-cli/internal/hscode"
	"github.com/sells-group/tariff-cli/internal/model"
	"github.com/sells-group/tariff-cli/internal/verify"
)

// classifyItem runs every per-item stage in order. Stages that cannot run
// are recorded as skipped and explained in the item's caveats.
func (p *Pipeline) classifyItem(ctx context.Context, rc *RunContext, i int, item model.Item) *model.ItemResult {
	ir := &model.ItemResult{Index: i}
	product := item.Product
	log := rc.log.With(zap.Int("item", i))

	cands := p.candidates(ctx, rc, i, item, ir)

	var kept []model.Candidate
	rc.phase("code_gate", i, func() (map[string]any, error) {
		var issues []model.CodeIssue
		kept, issues = rc.gate.Candidates(ctx, cands)
		ir.Issues = append(ir.Issues, issues...)
		return map[string]any{"input": len(cands), "kept": len(kept), "issues": len(issues)}, nil
	})
	if len(cands) > 0 && len(kept) == 0 {
		ir.Caveats = append(ir.Caveats, "None of the proposed codes exists in the tariff code book.")
	}

	rc.phase("elimination", i, func() (map[string]any, error) {
		ir.Elimination = p.eliminator.Run(ctx, rc.ledger, product, kept)
		return map[string]any{
			"survivors":        len(ir.Elimination.Survivors),
			"steps":            len(ir.Elimination.Steps),
			"challenge_passed": ir.Elimination.Challenge.Passed,
		}, nil
	})
	elim := ir.Elimination
	rc.record(ctx, model.AuditEvent{
		Item:    i,
		Kind:    model.AuditElimination,
		Code:    winnerCode(elim),
		Summary: fmt.Sprintf("%d of %d candidate(s) survived %d step(s)", len(elim.Survivors), elim.InputCount, len(elim.Steps)),
		Payload: elim,
	})
	ir.Caveats = append(ir.Caveats, eliminationCaveats(elim)...)

	winner := elim.Winner()
	if winner == nil {
		ir.Caveats = append(ir.Caveats, "No tariff code could be determined automatically; this item needs manual classification.")
		p.explain(ctx, rc, ir, nil, product)
		log.Warn("pipeline: item has no winner")
		return ir
	}

	code, issue := rc.gate.Check(ctx, winner.Code)
	if issue != nil {
		ir.Issues = append(ir.Issues, *issue)
		if issue.Blocking {
			ir.Caveats = append(ir.Caveats, issue.Message)
			p.explain(ctx, rc, ir, nil, product)
			return ir
		}
	}
	ir.Code = code
	ir.DisplayCode = hscode.Display(code)
	conf := winner.Confidence / 100

	if p.crosscheck != nil && p.crosscheck.Allowed(rc.crossChecked) {
		rc.crossChecked++
		rc.phase("cross_check", i, func() (map[string]any, error) {
			ir.CrossCheck = p.crosscheck.Check(ctx, rc.ledger, crosscheck.Input{
				RunID:       rc.ID,
				Item:        i,
				Code:        code,
				Description: product.Description,
				Origin:      product.OriginCountry,
			})
			return map[string]any{"tier": string(ir.CrossCheck.Tier)}, nil
		})
		conf += ir.CrossCheck.ConfidenceAdjustment
		ir.Caveats = append(ir.Caveats, crossCheckCaveats(ir.CrossCheck)...)
	} else {
		rc.skip("cross_check", i, "item beyond the cross-check cap")
	}

	rc.phase("verification", i, func() (map[string]any, error) {
		ir.Verification = p.verifier.Verify(ctx, rc.cache, verify.Input{
			Code:        code,
			Description: product.Description,
			Origin:      product.OriginCountry,
			FTAEligible: item.FTAEligible,
		})
		return map[string]any{
			"verified": ir.Verification.Knowledge.Verified,
			"flags":    len(ir.Verification.Flags),
		}, nil
	})
	conf += ir.Verification.Knowledge.ConfidenceAdjustment
	rc.record(ctx, model.AuditEvent{
		Item:    i,
		Kind:    model.AuditVerify,
		Code:    code,
		Summary: fmt.Sprintf("verified=%t with %d flag(s)", ir.Verification.Knowledge.Verified, len(ir.Verification.Flags)),
		Payload: ir.Verification,
	})

	ir.Confidence = clamp(conf)
	p.explain(ctx, rc, ir, winner, product)

	log.Info("pipeline: item classified",
		zap.String("code", ir.DisplayCode),
		zap.Float64("confidence", ir.Confidence),
		zap.Int("caveats", len(ir.Caveats)),
	)
	return ir
}

// candidates returns the item's candidates, asking the candidate source when
// the item arrived without any.
func (p *Pipeline) candidates(ctx context.Context, rc *RunContext, i int, item model.Item, ir *model.ItemResult) []model.Candidate {
	if len(item.Candidates) > 0 {
		return item.Candidates
	}
	if p.source == nil {
		rc.skip("candidate_search", i, "no candidate source configured")
		return nil
	}

	var cands []model.Candidate
	rc.phase("candidate_search", i, func() (map[string]any, error) {
		var err error
		cands, err = p.source.Candidates(ctx, rc.ledger, item.Product)
		if err != nil {
			ir.Caveats = append(ir.Caveats, "Candidate search failed; no codes were proposed for this item.")
			return nil, err
		}
		return map[string]any{"candidates": len(cands)}, nil
	})
	return cands
}

// explain renders and sanitizes the user-facing explanation.
func (p *Pipeline) explain(ctx context.Context, rc *RunContext, ir *model.ItemResult, winner *model.Candidate, product model.ProductInfo) {
	text := renderExplanation(ir, winner, product)
	if p.sanitizer == nil {
		ir.Explanation = text
		return
	}
	s := p.sanitizer.Sanitize(text)
	ir.Explanation = s.Text
	if s.WasModified {
		rc.record(ctx, model.AuditEvent{
			Item:    ir.Index,
			Kind:    model.AuditSanitize,
			Code:    ir.Code,
			Summary: fmt.Sprintf("removed %d hedging phrase(s)", len(s.Found)),
			Payload: s.Found,
		})
	}
}

func renderExplanation(ir *model.ItemResult, winner *model.Candidate, product model.ProductInfo) string {
	var b strings.Builder
	name := product.Description.EN
	if name == "" {
		name = product.Description.HE
	}
	fmt.Fprintf(&b, "Item %d: %s\n", ir.Index+1, name)

	if winner == nil || ir.Code == "" {
		b.WriteString("Classification: pending manual review\n")
	} else {
		fmt.Fprintf(&b, "Classification: %s (confidence %.2f)\n", ir.DisplayCode, ir.Confidence)
		if d := winner.Description.Joined(); d != "" {
			fmt.Fprintf(&b, "Code description: %s\n", strings.ReplaceAll(d, "\n", " / "))
		}
		if reason := basis(ir.Elimination); reason != "" {
			fmt.Fprintf(&b, "Basis: %s\n", reason)
		}
		if ir.CrossCheck != nil {
			fmt.Fprintf(&b, "Cross-check: %s\n", ir.CrossCheck.Rationale)
		}
		if ir.Verification != nil {
			b.WriteString(verify.Render(ir.Verification))
		}
	}

	for _, c := range ir.Caveats {
		fmt.Fprintf(&b, "Note: %s\n", c)
	}
	return strings.TrimRight(b.String(), "\n")
}

// basis returns the reasoning of the last step that acted on candidates.
func basis(elim *model.EliminationResult) string {
	if elim == nil {
		return ""
	}
	for i := len(elim.Steps) - 1; i >= 0; i-- {
		st := elim.Steps[i]
		if st.Action == model.ActionEliminate && len(st.AffectedCodes) > 0 && st.Reasoning != "" {
			return st.Reasoning
		}
	}
	return ""
}

func eliminationCaveats(elim *model.EliminationResult) []string {
	var out []string
	if n := elim.Challenge.UnresolvedCount; n > 0 {
		var codes []string
		for _, alt := range elim.Challenge.Alternatives {
			if alt.ReasonAgainst == "" {
				codes = append(codes, hscode.Display(alt.Code))
			}
		}
		out = append(out, fmt.Sprintf("%d alternative code(s) could not be ruled out: %s.", n, strings.Join(codes, ", ")))
	}
	if elim.NeedsQuestions {
		out = append(out, "More than one code remains plausible; a clarifying question to the customer is recommended.")
	}
	return out
}

func crossCheckCaveats(cc *model.CrossCheckResult) []string {
	switch cc.Tier {
	case model.TierDisagreement:
		return []string{"Independent models disagree on the heading; review before filing."}
	case model.TierNoResponse:
		return []string{"Independent models were unavailable; the code was not cross-checked."}
	case model.TierMajority:
		if len(cc.Minority) > 0 {
			return []string{fmt.Sprintf("Dissenting models: %s.", strings.Join(cc.Minority, ", "))}
		}
	}
	return nil
}

func winnerCode(elim *model.EliminationResult) string {
	if w := elim.Winner(); w != nil {
		return w.Code
	}
	return ""
}

func clamp(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
