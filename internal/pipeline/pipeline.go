// Package pipeline runs one classification request end to end: loop breaker,
// code gate, elimination, cross-check, verification and sanitizing.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/tariff-cli/internal/budget"
	"github.com/sells-group/tariff-cli/internal/crosscheck"
	"github.com/sells-group/tariff-cli/internal/elimination"
	"github.com/sells-group/tariff-cli/internal/model"
	"github.com/sells-group/tariff-cli/internal/safety"
	"github.com/sells-group/tariff-cli/internal/verify"
)

// CandidateSource proposes ranked candidate codes for a product. It is used
// for items that arrive without candidates.
type CandidateSource interface {
	Candidates(ctx context.Context, ledger *budget.Ledger, product model.ProductInfo) ([]model.Candidate, error)
}

// EscalationSink receives conversations handed over to a human.
type EscalationSink interface {
	Escalate(ctx context.Context, runID string, esc *model.Escalation) error
}

// AuditLog receives write-only audit events.
type AuditLog interface {
	Record(ctx context.Context, ev model.AuditEvent) error
}

// Notifier is told about every finished run.
type Notifier interface {
	Notify(ctx context.Context, res *model.RunResult) int
}

// Config holds the per-run limits.
type Config struct {
	LimitUSD        float64
	SafetyMarginUSD float64
	StoreReadUSD    float64
}

// Pipeline wires the classification stages. It holds no per-run state and
// is safe for concurrent use; each Run gets its own RunContext.
type Pipeline struct {
	cfg        Config
	codes      verify.CodeStore
	regs       verify.RegulatoryStore
	loop       *safety.LoopBreaker
	eliminator *elimination.Engine
	crosscheck *crosscheck.Engine
	verifier   *verify.Engine
	sanitizer  *safety.Sanitizer

	audit       AuditLog
	source      CandidateSource
	escalations EscalationSink
	notifier    Notifier
}

// Option configures optional collaborators.
type Option func(*Pipeline)

// WithAudit records stage decisions to a.
func WithAudit(a AuditLog) Option {
	return func(p *Pipeline) { p.audit = a }
}

// WithCandidateSource fills in candidates for items that have none.
func WithCandidateSource(s CandidateSource) Option {
	return func(p *Pipeline) { p.source = s }
}

// WithEscalationSink forwards escalations to s.
func WithEscalationSink(s EscalationSink) Option {
	return func(p *Pipeline) { p.escalations = s }
}

// WithNotifier reports finished runs to n.
func WithNotifier(n Notifier) Option {
	return func(p *Pipeline) { p.notifier = n }
}

// New creates a Pipeline.
func New(
	cfg Config,
	codes verify.CodeStore,
	regs verify.RegulatoryStore,
	loop *safety.LoopBreaker,
	eliminator *elimination.Engine,
	cc *crosscheck.Engine,
	verifier *verify.Engine,
	sanitizer *safety.Sanitizer,
	opts ...Option,
) *Pipeline {
	p := &Pipeline{
		cfg:        cfg,
		codes:      codes,
		regs:       regs,
		loop:       loop,
		eliminator: eliminator,
		crosscheck: cc,
		verifier:   verifier,
		sanitizer:  sanitizer,
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Run classifies every item of req. It never fails: problems surface as
// caveats, issues and flags on the result.
func (p *Pipeline) Run(ctx context.Context, req model.Request) *model.RunResult {
	rc := p.newRunContext()
	res := rc.result
	rc.log.Info("pipeline: starting run", zap.Int("items", len(req.Items)))

	adm := p.admit(ctx, rc, req)
	if !adm.Allowed {
		p.escalate(ctx, rc, adm)
		return p.finish(ctx, rc, model.RunStatusEscalated)
	}

	if len(req.Items) == 0 {
		res.Caveats = append(res.Caveats, "The request contains no items to classify.")
	}

	status := model.RunStatusComplete
	var codes []string
	for i, item := range req.Items {
		if err := ctx.Err(); err != nil {
			res.Caveats = append(res.Caveats, fmt.Sprintf("Run cancelled before item %d was classified.", i+1))
			status = model.RunStatusFailed
			break
		}
		ir := p.classifyItem(ctx, rc, i, item)
		res.Items = append(res.Items, *ir)
		if ir.Code != "" {
			codes = append(codes, ir.Code)
		}
	}

	if err := p.loop.Record(ctx, adm, codes); err != nil {
		rc.log.Warn("pipeline: failed to record codes tried", zap.Error(err))
	}
	if rc.ledger.Stopped() {
		res.Caveats = append(res.Caveats,
			"The run budget was exhausted; checks after that point were skipped and are flagged.")
	}
	return p.finish(ctx, rc, status)
}

// admit runs the loop breaker and records its verdict.
func (p *Pipeline) admit(ctx context.Context, rc *RunContext, req model.Request) *safety.Admission {
	var adm *safety.Admission
	rc.phase("loop_breaker", -1, func() (map[string]any, error) {
		adm = p.loop.Admit(ctx, req.Subject, req.MessageID)
		return map[string]any{
			"tracked": adm.Tracked,
			"attempt": adm.Attempt,
			"allowed": adm.Allowed,
		}, nil
	})

	res := rc.result
	res.ThreadKey = adm.ThreadKey
	res.Attempt = adm.Attempt
	rc.threadKey = adm.ThreadKey
	rc.log = rc.log.With(zap.String("thread_key", adm.ThreadKey))
	if adm.Caveat != "" {
		res.Caveats = append(res.Caveats, adm.Caveat)
	}

	summary := fmt.Sprintf("attempt %d of %d admitted", adm.Attempt, p.loop.Max())
	switch {
	case !adm.Tracked:
		summary = "untracked conversation admitted"
	case !adm.Allowed:
		summary = fmt.Sprintf("attempt %d exceeds %d, escalated", adm.Attempt, p.loop.Max())
	}
	rc.record(ctx, model.AuditEvent{Item: -1, Kind: model.AuditLoop, Summary: summary, Payload: adm})
	return adm
}

func (p *Pipeline) escalate(ctx context.Context, rc *RunContext, adm *safety.Admission) {
	rc.result.Escalation = adm.Escalation
	rc.result.Caveats = append(rc.result.Caveats, adm.Escalation.Summary)
	rc.log.Warn("pipeline: conversation escalated",
		zap.Int("attempt", adm.Attempt),
		zap.Strings("codes_tried", adm.Escalation.CodesTried),
	)

	if p.escalations == nil {
		rc.skip("escalation", -1, "no escalation sink configured")
		return
	}
	rc.phase("escalation", -1, func() (map[string]any, error) {
		return nil, p.escalations.Escalate(ctx, rc.ID, adm.Escalation)
	})
}

func (p *Pipeline) finish(ctx context.Context, rc *RunContext, status model.RunStatus) *model.RunResult {
	res := rc.result
	res.Status = status
	res.Budget = rc.ledger.Snapshot()
	res.Usage = rc.ledger.Usage()
	res.CompletedAt = time.Now().UTC()

	rc.record(ctx, model.AuditEvent{
		Item:    -1,
		Kind:    model.AuditRun,
		Summary: fmt.Sprintf("run %s with %d item(s), spent $%.4f", status, len(res.Items), res.Budget.SpentUSD),
		Payload: res.Budget,
	})

	rc.log.Info("pipeline: run finished",
		zap.String("status", string(status)),
		zap.Int("items", len(res.Items)),
		zap.Float64("spent_usd", res.Budget.SpentUSD),
		zap.Bool("budget_stopped", res.Budget.Stopped),
		zap.Duration("duration", res.CompletedAt.Sub(res.StartedAt)),
	)

	if p.notifier != nil {
		if n := p.notifier.Notify(ctx, res); n > 0 {
			rc.log.Info("pipeline: alerts sent", zap.Int("count", n))
		}
	}
	return res
}
