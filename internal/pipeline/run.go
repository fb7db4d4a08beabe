package pipeline

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sells-group/tariff-cli/internal/budget"
	"github.com/sells-group/tariff-cli/internal/model"
	"github.com/sells-group/tariff-cli/internal/safety"
	"github.com/sells-group/tariff-cli/internal/verify"
)

// RunContext is the state of one invocation. Nothing in it outlives the run.
type RunContext struct {
	ID        string
	ledger    *budget.Ledger
	cache     *verify.Cache
	gate      *safety.Gate
	log       *zap.Logger
	threadKey string
	result    *model.RunResult
	audit     AuditLog

	// crossChecked counts items sent to cross-check so far.
	crossChecked int
}

func (p *Pipeline) newRunContext() *RunContext {
	id := uuid.New().String()
	ledger := budget.NewLedger(p.cfg.LimitUSD, p.cfg.SafetyMarginUSD)
	cache := verify.NewCache(p.codes, p.regs, ledger, p.cfg.StoreReadUSD)
	return &RunContext{
		ID:     id,
		ledger: ledger,
		cache:  cache,
		gate:   safety.NewGate(cache),
		log:    zap.L().With(zap.String("run_id", id)),
		audit:  p.audit,
		result: &model.RunResult{
			RunID:     id,
			Status:    model.RunStatusQueued,
			StartedAt: time.Now().UTC(),
		},
	}
}

// phase times fn and appends its outcome to the run's phase list. item is -1
// for run-level phases.
func (rc *RunContext) phase(name string, item int, fn func() (map[string]any, error)) {
	start := time.Now()
	meta, err := fn()
	pr := model.PhaseResult{
		Name:     name,
		Item:     item,
		Status:   model.PhaseStatusComplete,
		Duration: time.Since(start).Milliseconds(),
		Metadata: meta,
	}
	if err != nil {
		pr.Status = model.PhaseStatusFailed
		pr.Error = err.Error()
		rc.log.Error("pipeline: phase failed",
			zap.String("phase", name),
			zap.Int("item", item),
			zap.Int64("duration_ms", pr.Duration),
			zap.Error(err),
		)
	} else {
		rc.log.Debug("pipeline: phase complete",
			zap.String("phase", name),
			zap.Int("item", item),
			zap.Int64("duration_ms", pr.Duration),
		)
	}
	rc.result.Phases = append(rc.result.Phases, pr)
}

func (rc *RunContext) skip(name string, item int, reason string) {
	rc.result.Phases = append(rc.result.Phases, model.PhaseResult{
		Name:     name,
		Item:     item,
		Status:   model.PhaseStatusSkipped,
		Metadata: map[string]any{"reason": reason},
	})
}

// record writes an audit event. Failures are logged only.
func (rc *RunContext) record(ctx context.Context, ev model.AuditEvent) {
	if rc.audit == nil {
		return
	}
	ev.ID = uuid.New().String()
	ev.RunID = rc.ID
	ev.ThreadKey = rc.threadKey
	ev.CreatedAt = time.Now().UTC()
	if err := rc.audit.Record(ctx, ev); err != nil {
		rc.log.Warn("pipeline: audit write failed", zap.String("kind", string(ev.Kind)), zap.Error(err))
	}
}
