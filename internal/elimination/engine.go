// Package elimination narrows a candidate set to survivors with ordered
// deterministic rules, an optional AI narrowing step and a devil's-advocate
// pass. Every level logs its step before touching any candidate.
package elimination

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/sells-group/tariff-cli/internal/budget"
	"github.com/sells-group/tariff-cli/internal/hscode"
	"github.com/sells-group/tariff-cli/internal/model"
	"github.com/sells-group/tariff-cli/internal/textnorm"
)

// Engine runs the elimination levels. It holds no per-run state and is safe
// to share.
type Engine struct {
	rules      *Rules
	narrower   Narrower
	challenger *Challenger
}

// Option configures an Engine.
type Option func(*Engine)

// WithNarrower enables AI-assisted semantic narrowing.
func WithNarrower(n Narrower) Option {
	return func(e *Engine) { e.narrower = n }
}

// WithChallenger replaces the default deterministic challenger.
func WithChallenger(c *Challenger) Option {
	return func(e *Engine) { e.challenger = c }
}

// NewEngine creates an engine. A nil rules value uses DefaultRules.
func NewEngine(rules *Rules, opts ...Option) *Engine {
	if rules == nil {
		rules = DefaultRules()
	}
	e := &Engine{rules: rules, challenger: NewChallenger(DefaultChallengeThreshold, nil)}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Run eliminates candidates for product. The ledger gates paid steps; a nil
// ledger disables them.
func (e *Engine) Run(ctx context.Context, ledger *budget.Ledger, product model.ProductInfo, input []model.Candidate) *model.EliminationResult {
	r := newRun(product, input)
	if len(r.cands) == 0 {
		return &model.EliminationResult{
			Survivors:      []model.Candidate{},
			Eliminated:     []model.Candidate{},
			Steps:          []model.EliminationStep{},
			Challenge:      model.ChallengeFindings{Passed: true},
			NeedsAI:        true,
			NeedsQuestions: true,
		}
	}

	res := &model.EliminationResult{InputCount: len(r.cands)}

	res.SectionsChecked = r.distinct(func(c *model.Candidate) string { return c.Locator.Section })
	e.sectionLevel(r)

	res.ChaptersChecked = r.distinct(func(c *model.Candidate) string { return c.Locator.Chapter })
	e.chapterLevel(r)

	e.headingLevel(r)
	res.NeedsAI = !e.aiLevel(ctx, r, ledger)

	for _, c := range r.cands {
		if c.Alive {
			res.Survivors = append(res.Survivors, c)
		} else {
			res.Eliminated = append(res.Eliminated, c)
		}
	}
	rank(res.Survivors)
	if res.Eliminated == nil {
		res.Eliminated = []model.Candidate{}
	}
	res.NeedsQuestions = len(res.Survivors) > 1

	findings, step := e.challenger.Challenge(ctx, ledger, product, res)
	res.Challenge = findings
	r.steps = append(r.steps, step)
	res.Steps = r.steps

	zap.L().Debug("elimination: complete",
		zap.Int("input", res.InputCount),
		zap.Int("survivors", len(res.Survivors)),
		zap.Bool("needs_ai", res.NeedsAI),
		zap.Bool("needs_questions", res.NeedsQuestions),
		zap.Int("unresolved", findings.UnresolvedCount),
	)
	return res
}

// run is the mutable state of one elimination.
type run struct {
	product  model.ProductInfo
	cands    []model.Candidate
	steps    []model.EliminationStep
	material *textnorm.Matcher
	form     *textnorm.Matcher
	use      *textnorm.Matcher
	all      *textnorm.Matcher
}

func newRun(product model.ProductInfo, input []model.Candidate) *run {
	byCode := make(map[string]int, len(input))
	var cands []model.Candidate
	for _, c := range input {
		if c.Code == "" {
			continue
		}
		if i, ok := byCode[c.Code]; ok {
			if c.Confidence > cands[i].Confidence {
				cands[i].Confidence = c.Confidence
			}
			continue
		}
		c.Alive = true
		c.EliminatedLevel = ""
		c.EliminatedReason = ""
		if c.Locator.Heading == "" {
			c.Locator = hscode.Locate(c.Code)
		}
		byCode[c.Code] = len(cands)
		cands = append(cands, c)
	}

	full := product.Text()
	material := product.Material
	if material == "" {
		material = full
	}
	return &run{
		product:  product,
		cands:    cands,
		material: textnorm.NewMatcher(material),
		form:     textnorm.NewMatcher(product.Form + "\n" + product.Description.Joined()),
		use:      textnorm.NewMatcher(product.IntendedUse + "\n" + product.Description.Joined()),
		all:      textnorm.NewMatcher(full),
	}
}

func (r *run) aliveCount() int {
	n := 0
	for i := range r.cands {
		if r.cands[i].Alive {
			n++
		}
	}
	return n
}

func (r *run) distinct(key func(*model.Candidate) string) []string {
	seen := make(map[string]bool)
	var out []string
	for i := range r.cands {
		c := &r.cands[i]
		if k := key(c); c.Alive && k != "" && !seen[k] {
			seen[k] = true
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out
}

type target struct {
	idx    int
	reason string
}

// pass evaluates check against every alive candidate and eliminates the ones
// it rejects. It reports whether anything was targeted.
func (r *run) pass(level model.Level, rule model.RuleType, check func(c *model.Candidate) (string, bool)) bool {
	var targets []target
	for i := range r.cands {
		if !r.cands[i].Alive {
			continue
		}
		if reason, reject := check(&r.cands[i]); reject {
			targets = append(targets, target{idx: i, reason: reason})
		}
	}
	if len(targets) == 0 {
		return false
	}
	r.eliminate(level, rule, targets)
	return true
}

// eliminate logs and applies one elimination. If it would remove every alive
// candidate the best-ranked target is retained and a Keep step is logged.
func (r *run) eliminate(level model.Level, rule model.RuleType, targets []target) {
	before := r.aliveCount()

	var kept *target
	if len(targets) >= before {
		best := 0
		for i := 1; i < len(targets); i++ {
			if less(&r.cands[targets[i].idx], &r.cands[targets[best].idx]) {
				best = i
			}
		}
		k := targets[best]
		kept = &k
		targets = append(targets[:best:best], targets[best+1:]...)
	}

	after := before - len(targets)
	if len(targets) > 0 {
		codes := make([]string, len(targets))
		reasons := make([]string, len(targets))
		for i, t := range targets {
			codes[i] = r.cands[t.idx].Code
			reasons[i] = codes[i] + ": " + t.reason
		}
		r.steps = append(r.steps, model.EliminationStep{
			Level:         level,
			RuleType:      rule,
			Action:        model.ActionEliminate,
			CountBefore:   before,
			CountAfter:    after,
			AffectedCodes: codes,
			Reasoning:     strings.Join(reasons, "; "),
		})
	}
	if kept != nil {
		c := &r.cands[kept.idx]
		r.steps = append(r.steps, model.EliminationStep{
			Level:         level,
			RuleType:      model.RuleLastCandidate,
			Action:        model.ActionKeep,
			CountBefore:   after,
			CountAfter:    after,
			AffectedCodes: []string{c.Code},
			Reasoning:     fmt.Sprintf("retained %s as the last candidate despite: %s", c.Code, kept.reason),
		})
	}

	for _, t := range targets {
		r.cands[t.idx].Eliminate(level, t.reason)
	}
}

// noop logs a level that changed nothing.
func (r *run) noop(level model.Level, rule model.RuleType, reasoning string) {
	n := r.aliveCount()
	r.steps = append(r.steps, model.EliminationStep{
		Level:         level,
		RuleType:      rule,
		Action:        model.ActionKeep,
		CountBefore:   n,
		CountAfter:    n,
		AffectedCodes: []string{},
		Reasoning:     reasoning,
	})
}

func (e *Engine) productFamilies(r *run) []string {
	var fams []string
	for fam, kws := range e.rules.Materials {
		if r.material.First(kws) != "" {
			fams = append(fams, fam)
		}
	}
	sort.Strings(fams)
	return fams
}

func (e *Engine) sectionLevel(r *run) {
	fams := e.productFamilies(r)
	if len(fams) == 0 {
		r.noop(model.LevelSection, model.RuleSectionMaterial, "material family unknown; no section excluded")
		return
	}

	acted := r.pass(model.LevelSection, model.RuleSectionMaterial, func(c *model.Candidate) (string, bool) {
		rule, ok := e.rules.Sections[c.Locator.Section]
		if !ok || rule.FunctionBased || len(rule.Families) == 0 {
			return "", false
		}
		for _, f := range rule.Families {
			for _, pf := range fams {
				if f == pf {
					return "", false
				}
			}
		}
		return fmt.Sprintf("section %s (%s) holds %s, product is %s",
			c.Locator.Section, rule.Note, strings.Join(rule.Families, "/"), strings.Join(fams, "/")), true
	})
	if !acted {
		r.noop(model.LevelSection, model.RuleSectionMaterial, "every candidate section admits "+strings.Join(fams, "/"))
	}
}

func (e *Engine) chapterLevel(r *run) {
	materialKnown := len(e.productFamilies(r)) > 0
	acted := false

	if materialKnown {
		acted = r.pass(model.LevelChapter, model.RuleChapterMaterial, func(c *model.Candidate) (string, bool) {
			rule, ok := e.rules.Chapters[c.Locator.Chapter]
			if !ok || len(rule.RequiresMaterial) == 0 || r.material.First(rule.RequiresMaterial) != "" {
				return "", false
			}
			return fmt.Sprintf("chapter %s (%s) requires %s", c.Locator.Chapter, rule.Note, strings.Join(rule.RequiresMaterial[:min(3, len(rule.RequiresMaterial))], "/")), true
		}) || acted
	}

	acted = r.pass(model.LevelChapter, model.RuleChapterForm, func(c *model.Candidate) (string, bool) {
		rule, ok := e.rules.Chapters[c.Locator.Chapter]
		if !ok {
			return "", false
		}
		if kw := r.form.First(rule.ExcludesForm); kw != "" {
			return fmt.Sprintf("chapter %s (%s) excludes form %q", c.Locator.Chapter, rule.Note, kw), true
		}
		return "", false
	}) || acted

	acted = r.pass(model.LevelChapter, model.RuleChapterUse, func(c *model.Candidate) (string, bool) {
		rule, ok := e.rules.Chapters[c.Locator.Chapter]
		if !ok || len(rule.RequiresUse) == 0 || r.use.First(rule.RequiresUse) != "" {
			return "", false
		}
		return fmt.Sprintf("chapter %s (%s) requires a matching use", c.Locator.Chapter, rule.Note), true
	}) || acted

	if !acted {
		r.noop(model.LevelChapter, model.RuleChapterMaterial, "no chapter rule excluded any candidate")
	}
}

func (e *Engine) headingLevel(r *run) {
	acted := r.pass(model.LevelHeading, model.RuleHeadingExclude, func(c *model.Candidate) (string, bool) {
		rule, ok := e.rules.Headings[c.Locator.Heading]
		if !ok {
			return "", false
		}
		if kw := r.all.First(rule.Excludes); kw != "" {
			return fmt.Sprintf("heading %s (%s) excluded by %q", c.Locator.Heading, rule.Note, kw), true
		}
		return "", false
	})

	acted = r.pass(model.LevelHeading, model.RuleHeadingKeyword, func(c *model.Candidate) (string, bool) {
		rule, ok := e.rules.Headings[c.Locator.Heading]
		if !ok || len(rule.Requires) == 0 || hscode.IsResidual(c.Code) {
			return "", false
		}
		if r.all.First(rule.Requires) != "" {
			return "", false
		}
		return fmt.Sprintf("heading %s covers %s; no matching term in the description", c.Locator.Heading, rule.Note), true
	}) || acted

	var boosted []int
	for i := range r.cands {
		c := &r.cands[i]
		if !c.Alive {
			continue
		}
		if rule, ok := e.rules.Headings[c.Locator.Heading]; ok && r.all.First(rule.Boosts) != "" {
			boosted = append(boosted, i)
		}
	}
	if len(boosted) > 0 {
		acted = true
		codes := make([]string, len(boosted))
		for i, idx := range boosted {
			codes[i] = r.cands[idx].Code
		}
		n := r.aliveCount()
		r.steps = append(r.steps, model.EliminationStep{
			Level:         model.LevelHeading,
			RuleType:      model.RuleHeadingKeyword,
			Action:        model.ActionBoost,
			CountBefore:   n,
			CountAfter:    n,
			AffectedCodes: codes,
			Reasoning:     fmt.Sprintf("description matches boost terms; confidence +%.0f", e.rules.BoostBy),
		})
		for _, idx := range boosted {
			r.cands[idx].Confidence = min(100, r.cands[idx].Confidence+e.rules.BoostBy)
		}
	}

	if !acted {
		r.noop(model.LevelHeading, model.RuleHeadingKeyword, "no heading rule matched")
	}
}

// rank sorts by confidence desc, provenance priority, then code.
func rank(cands []model.Candidate) {
	sort.SliceStable(cands, func(i, j int) bool { return less(&cands[i], &cands[j]) })
}

func less(a, b *model.Candidate) bool {
	if a.Confidence != b.Confidence {
		return a.Confidence > b.Confidence
	}
	if pa, pb := a.Provenance.Priority(), b.Provenance.Priority(); pa != pb {
		return pa < pb
	}
	return a.Code < b.Code
}
