package elimination

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/sells-group/tariff-cli/internal/budget"
	"github.com/sells-group/tariff-cli/internal/hscode"
	"github.com/sells-group/tariff-cli/internal/model"
	"github.com/sells-group/tariff-cli/internal/oracle"
)

const (
	// DefaultChallengeThreshold is the confidence above which an eliminated
	// candidate must be re-argued.
	DefaultChallengeThreshold = 30
	// nearestPerSurvivor caps the alternatives drawn for each survivor.
	nearestPerSurvivor = 3
)

// Challenge sources.
const (
	SourceLog     = "elimination_log"
	SourceRanking = "ranking"
	SourceOracle  = "oracle"
)

// Challenger re-argues plausible alternatives to the survivors and requires a
// documented reason against each one.
type Challenger struct {
	threshold float64
	oracle    oracle.Oracle
}

// NewChallenger creates a challenger. A nil oracle keeps it deterministic.
func NewChallenger(threshold float64, o oracle.Oracle) *Challenger {
	return &Challenger{threshold: threshold, oracle: o}
}

// Challenge builds the alternatives for res and the log step describing the
// pass. It never changes which candidates are alive.
func (ch *Challenger) Challenge(ctx context.Context, ledger *budget.Ledger, product model.ProductInfo, res *model.EliminationResult) (model.ChallengeFindings, model.EliminationStep) {
	findings := model.ChallengeFindings{Alternatives: []model.Challenge{}}
	if len(res.Survivors) == 0 {
		findings.Passed = true
		return findings, ch.step(res, findings)
	}

	winner := res.Survivors[0]
	seen := map[string]bool{winner.Code: true}

	for _, c := range res.Eliminated {
		if c.Confidence <= ch.threshold || seen[c.Code] {
			continue
		}
		seen[c.Code] = true
		findings.Alternatives = append(findings.Alternatives, model.Challenge{
			Code:          c.Code,
			AgainstCode:   winner.Code,
			ReasonFor:     reasonFor(c),
			ReasonAgainst: reasonFromLog(c),
			Source:        SourceLog,
		})
	}

	all := append(append([]model.Candidate{}, res.Survivors...), res.Eliminated...)
	survivorRank := make(map[string]int, len(res.Survivors))
	for i, s := range res.Survivors {
		survivorRank[s.Code] = i
	}

	for si, s := range res.Survivors {
		for _, a := range nearest(s, all, seen) {
			alt := model.Challenge{Code: a.Code, AgainstCode: s.Code, ReasonFor: reasonFor(a)}
			if !a.Alive {
				alt.ReasonAgainst = reasonFromLog(a)
				alt.Source = SourceLog
			} else {
				if survivorRank[a.Code] < si {
					continue
				}
				alt.ReasonAgainst = reasonFromRank(s, a)
				alt.Source = SourceRanking
			}
			seen[a.Code] = true
			findings.Alternatives = append(findings.Alternatives, alt)
		}
	}

	for _, s := range res.Survivors[1:] {
		if seen[s.Code] {
			continue
		}
		seen[s.Code] = true
		findings.Alternatives = append(findings.Alternatives, model.Challenge{
			Code:          s.Code,
			AgainstCode:   winner.Code,
			ReasonFor:     reasonFor(s),
			ReasonAgainst: reasonFromRank(winner, s),
			Source:        SourceRanking,
		})
	}

	ch.fillFromOracle(ctx, ledger, product, &findings)

	for _, a := range findings.Alternatives {
		if a.ReasonAgainst == "" {
			findings.UnresolvedCount++
		}
	}
	findings.Passed = findings.UnresolvedCount == 0
	return findings, ch.step(res, findings)
}

func (ch *Challenger) step(res *model.EliminationResult, f model.ChallengeFindings) model.EliminationStep {
	codes := make([]string, len(f.Alternatives))
	for i, a := range f.Alternatives {
		codes[i] = a.Code
	}
	n := len(res.Survivors)
	return model.EliminationStep{
		Level:         model.LevelChallenge,
		RuleType:      model.RuleDevilsAdvocate,
		Action:        model.ActionKeep,
		CountBefore:   n,
		CountAfter:    n,
		AffectedCodes: codes,
		Reasoning:     fmt.Sprintf("%d alternatives re-argued, %d unresolved", len(f.Alternatives), f.UnresolvedCount),
	}
}

// nearest returns up to nearestPerSurvivor unseen candidates sharing s's
// heading, then its chapter.
func nearest(s model.Candidate, all []model.Candidate, seen map[string]bool) []model.Candidate {
	var heading, chapter []model.Candidate
	for _, c := range all {
		if c.Code == s.Code || seen[c.Code] {
			continue
		}
		switch {
		case hscode.SameHeading(c.Code, s.Code):
			heading = append(heading, c)
		case hscode.Chapter(c.Code) == hscode.Chapter(s.Code):
			chapter = append(chapter, c)
		}
	}
	byConfidence := func(cs []model.Candidate) {
		sort.SliceStable(cs, func(i, j int) bool { return cs[i].Confidence > cs[j].Confidence })
	}
	byConfidence(heading)
	byConfidence(chapter)

	out := append(heading, chapter...)
	if len(out) > nearestPerSurvivor {
		out = out[:nearestPerSurvivor]
	}
	return out
}

func reasonFor(c model.Candidate) string {
	desc := c.Description.Joined()
	if desc == "" {
		desc = "no reference description"
	}
	src := string(c.Provenance)
	if src == "" {
		src = "unknown source"
	}
	return fmt.Sprintf("%s proposed at confidence %.0f: %s", src, c.Confidence, desc)
}

func reasonFromLog(c model.Candidate) string {
	if c.EliminatedReason == "" {
		return ""
	}
	return fmt.Sprintf("eliminated at %s level: %s", c.EliminatedLevel, c.EliminatedReason)
}

// reasonFromRank explains why a ranks below s. Candidates tied on confidence
// and provenance have no deterministic discriminator.
func reasonFromRank(s, a model.Candidate) string {
	switch {
	case s.Confidence > a.Confidence:
		return fmt.Sprintf("ranked below %s (confidence %.0f vs %.0f)", s.Code, a.Confidence, s.Confidence)
	case s.Provenance.Priority() < a.Provenance.Priority():
		return fmt.Sprintf("ranked below %s (source %s outranks %s)", s.Code, s.Provenance, a.Provenance)
	default:
		return ""
	}
}

const challengeSystem = `You are a customs tariff reviewer arguing against an alternative classification.
State the strongest legal or factual reason the alternative code does not fit the product better than the chosen code.
Reply with JSON only: {"reason_against":"<one sentence, empty if none>"}`

// fillFromOracle asks the oracle for each missing reason_against while the
// ledger allows it.
func (ch *Challenger) fillFromOracle(ctx context.Context, ledger *budget.Ledger, product model.ProductInfo, f *model.ChallengeFindings) {
	if ch.oracle == nil || ledger == nil {
		return
	}
	for i := range f.Alternatives {
		alt := &f.Alternatives[i]
		if alt.ReasonAgainst != "" {
			continue
		}
		p := oracle.Prompt{
			System: challengeSystem,
			User: fmt.Sprintf("Product:\n%s\n\nChosen code: %s\nAlternative code: %s\nCase for the alternative: %s",
				product.Text(), hscode.Display(alt.AgainstCode), hscode.Display(alt.Code), alt.ReasonFor),
			MaxTokens: 200,
		}
		est := ch.oracle.Estimate(p)
		ans, err := budget.Metered(ctx, ledger, budget.CategoryOracle, est, func(ctx context.Context) (*oracle.Answer, float64, error) {
			a, err := ch.oracle.Ask(ctx, p)
			if err != nil {
				return nil, 0, err
			}
			return a, a.CostUSD, nil
		})
		if budget.IsExhausted(err) {
			return
		}
		if err != nil {
			zap.L().Warn("elimination: challenge oracle failed", zap.String("code", alt.Code), zap.Error(err))
			continue
		}
		ledger.AddTokens(ans.InputTokens, ans.OutputTokens)

		var reply struct {
			ReasonAgainst string `json:"reason_against"`
		}
		if err := oracle.DecodeJSON(ans.Text, &reply); err == nil && reply.ReasonAgainst != "" {
			alt.ReasonAgainst = reply.ReasonAgainst
			alt.Source = SourceOracle
		}
	}
}
