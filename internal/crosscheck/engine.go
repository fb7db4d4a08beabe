// Package crosscheck corroborates the elimination winner against three
// independently configured oracles and grades their agreement.
package crosscheck

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/tariff-cli/internal/budget"
	"github.com/sells-group/tariff-cli/internal/hscode"
	"github.com/sells-group/tariff-cli/internal/model"
	"github.com/sells-group/tariff-cli/internal/oracle"
	"github.com/sells-group/tariff-cli/internal/resilience"
)

// AuditLog receives every cross-check outcome.
type AuditLog interface {
	Record(ctx context.Context, ev model.AuditEvent) error
}

// Config tunes the engine.
type Config struct {
	// Timeout bounds each oracle call.
	Timeout time.Duration
	// MaxItems caps how many items of one run are cross-checked.
	MaxItems int
}

// Engine fans one prompt out to the oracles and computes the tier.
type Engine struct {
	oracles []oracle.Oracle
	cfg     Config
	audit   AuditLog
}

// NewEngine creates an engine. audit may be nil.
func NewEngine(oracles []oracle.Oracle, cfg Config, audit AuditLog) *Engine {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxItems <= 0 {
		cfg.MaxItems = 3
	}
	return &Engine{oracles: oracles, cfg: cfg, audit: audit}
}

// Allowed reports whether one more item may be cross-checked in a run that
// has already cross-checked checked items.
func (e *Engine) Allowed(checked int) bool {
	return checked >= 0 && checked < e.cfg.MaxItems
}

// Input is the classification being corroborated.
type Input struct {
	RunID       string
	Item        int
	Code        string
	Description model.Bilingual
	Origin      string
}

// Check queries every oracle concurrently and returns the graded result.
// Oracle failures become votes carrying an error tag; Check never fails.
func (e *Engine) Check(ctx context.Context, ledger *budget.Ledger, in Input) *model.CrossCheckResult {
	p := buildPrompt(in)
	votes := make([]model.ModelVote, len(e.oracles))

	g, gctx := errgroup.WithContext(ctx)
	for i, o := range e.oracles {
		g.Go(func() error {
			votes[i] = e.ask(gctx, ledger, o, p)
			return nil
		})
	}
	_ = g.Wait()

	res := Decide(in.Code, votes)

	zap.L().Info("crosscheck: tier decided",
		zap.String("run_id", in.RunID),
		zap.Int("item", in.Item),
		zap.String("code", in.Code),
		zap.String("tier", string(res.Tier)),
		zap.Float64("adjustment", res.ConfidenceAdjustment),
		zap.Strings("minority", res.Minority),
	)

	if e.audit != nil {
		ev := model.AuditEvent{
			ID:        uuid.New().String(),
			RunID:     in.RunID,
			Item:      in.Item,
			Kind:      model.AuditCrossCheck,
			Code:      in.Code,
			Summary:   res.Rationale,
			Payload:   res,
			CreatedAt: time.Now().UTC(),
		}
		if err := e.audit.Record(ctx, ev); err != nil {
			zap.L().Warn("crosscheck: audit write failed", zap.String("run_id", in.RunID), zap.Error(err))
		}
	}
	return &res
}

// ask performs one metered oracle call under its own timeout.
func (e *Engine) ask(ctx context.Context, ledger *budget.Ledger, o oracle.Oracle, p oracle.Prompt) model.ModelVote {
	vote := model.ModelVote{Oracle: o.Name()}

	var res *budget.Reservation
	if ledger != nil {
		var err error
		if res, err = ledger.Reserve(budget.CategoryOracle, o.Estimate(p)); err != nil {
			vote.Error = model.VoteErrBudget
			return vote
		}
	}

	cctx, cancel := context.WithTimeout(ctx, e.cfg.Timeout)
	defer cancel()

	ans, err := o.Ask(cctx, p)
	if ans != nil {
		res.Settle(ans.CostUSD)
		if ledger != nil {
			ledger.AddTokens(ans.InputTokens, ans.OutputTokens)
		}
	} else {
		res.Settle(0)
	}

	if err != nil {
		vote.Error = classifyError(cctx, err)
		zap.L().Warn("crosscheck: oracle call failed",
			zap.String("oracle", o.Name()),
			zap.String("vote_error", string(vote.Error)),
			zap.Error(err),
		)
		return vote
	}
	return parseVote(vote, ans.Text)
}

func classifyError(ctx context.Context, err error) model.VoteError {
	switch {
	case errors.Is(err, oracle.ErrNoCredentials):
		return model.VoteErrNoCredentials
	case errors.Is(err, resilience.ErrOpen):
		return model.VoteErrCircuitOpen
	case budget.IsExhausted(err):
		return model.VoteErrBudget
	case errors.Is(err, context.DeadlineExceeded) || ctx.Err() != nil:
		return model.VoteErrTimeout
	default:
		return model.VoteErrUnavailable
	}
}

const systemPrompt = `You are an experienced customs classification officer applying the Harmonized System and the General Interpretative Rules.
Classify the product independently. A proposed code is given for context only; do not defer to it.
Reply with JSON only: {"hs_code":"<6 to 10 digits>","confidence":<0.0-1.0>,"reason":"<one sentence>"}`

func buildPrompt(in Input) oracle.Prompt {
	var b strings.Builder
	if in.Description.EN != "" {
		fmt.Fprintf(&b, "Product (EN): %s\n", in.Description.EN)
	}
	if in.Description.HE != "" {
		fmt.Fprintf(&b, "Product (HE): %s\n", in.Description.HE)
	}
	if in.Origin != "" {
		fmt.Fprintf(&b, "Country of origin: %s\n", in.Origin)
	}
	fmt.Fprintf(&b, "Proposed code: %s\n", hscode.Display(in.Code))
	return oracle.Prompt{System: systemPrompt, User: b.String(), MaxTokens: 300}
}
