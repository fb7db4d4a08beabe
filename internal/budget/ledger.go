// Package budget enforces the hard spending cap of one unattended run.
package budget

import (
	"context"
	"sync"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/tariff-cli/internal/model"
)

// Category groups spend in the ledger breakdown.
type Category string

const (
	CategoryOracle     Category = "oracle"
	CategoryStoreRead  Category = "store_read"
	CategoryStoreWrite Category = "store_write"
	CategoryImage      Category = "image"
)

var (
	// ErrStopped is returned for every metered call once the ledger has tripped.
	ErrStopped = eris.New("budget: ledger stopped")
	// ErrInsufficient is returned when an estimate does not fit the remaining budget.
	ErrInsufficient = eris.New("budget: estimate exceeds remaining budget")
)

// Ledger meters every paid call of a run. Spend reaching limit minus the
// safety margin trips a sticky stop. All methods are safe for concurrent use;
// the reserve/settle pair makes check-then-act atomic.
type Ledger struct {
	mu         sync.Mutex
	limit      float64
	margin     float64
	spent      float64
	reserved   float64
	byCategory map[Category]float64
	stopped    bool

	inTokens  int64
	outTokens int64
}

// NewLedger creates a ledger with a hard limit and a safety margin in USD.
// A limit at or below the margin starts stopped.
func NewLedger(limit, margin float64) *Ledger {
	if margin < 0 {
		margin = 0
	}
	l := &Ledger{
		limit:      limit,
		margin:     margin,
		byCategory: make(map[Category]float64),
	}
	if l.threshold() <= 0 {
		l.stopped = true
	}
	return l
}

func (l *Ledger) threshold() float64 {
	return l.limit - l.margin
}

// CanAfford reports whether a call estimated at estimate USD may be issued.
func (l *Ledger) CanAfford(estimate float64) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.canAffordLocked(estimate)
}

func (l *Ledger) canAffordLocked(estimate float64) bool {
	if l.stopped {
		return false
	}
	if estimate < 0 {
		estimate = 0
	}
	return l.spent+l.reserved+estimate <= l.threshold()
}

// Record adds actual spend after a call. Actual usage may exceed the estimate.
func (l *Ledger) Record(cat Category, actual float64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.recordLocked(cat, actual)
}

func (l *Ledger) recordLocked(cat Category, actual float64) {
	if actual < 0 {
		actual = 0
	}
	l.spent += actual
	l.byCategory[cat] += actual
	if !l.stopped && l.spent >= l.threshold() {
		l.stopped = true
		zap.L().Warn("budget: ledger stopped",
			zap.Float64("spent_usd", l.spent),
			zap.Float64("limit_usd", l.limit),
			zap.Float64("safety_margin_usd", l.margin),
			zap.String("category", string(cat)),
		)
	}
}

// Reserve atomically checks the estimate and holds it until the reservation
// is settled.
func (l *Ledger) Reserve(cat Category, estimate float64) (*Reservation, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.stopped {
		return nil, ErrStopped
	}
	if estimate < 0 {
		estimate = 0
	}
	if !l.canAffordLocked(estimate) {
		return nil, eris.Wrapf(ErrInsufficient, "estimate %.4f, remaining %.4f", estimate, l.threshold()-l.spent-l.reserved)
	}
	l.reserved += estimate
	return &Reservation{ledger: l, cat: cat, estimate: estimate}, nil
}

// Stopped reports whether the ledger has tripped.
func (l *Ledger) Stopped() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.stopped
}

// Remaining returns limit minus recorded spend. It never increases.
func (l *Ledger) Remaining() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.limit - l.spent
}

// AddTokens tallies token usage of a completed call.
func (l *Ledger) AddTokens(input, output int64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.inTokens += input
	l.outTokens += output
}

// Usage returns the tokens tallied so far with the recorded spend.
func (l *Ledger) Usage() model.TokenUsage {
	l.mu.Lock()
	defer l.mu.Unlock()
	return model.TokenUsage{InputTokens: l.inTokens, OutputTokens: l.outTokens, Cost: l.spent}
}

// Snapshot returns a read-only copy of the ledger state.
func (l *Ledger) Snapshot() model.BudgetSnapshot {
	l.mu.Lock()
	defer l.mu.Unlock()

	byCat := make(map[string]float64, len(l.byCategory))
	for k, v := range l.byCategory {
		byCat[string(k)] = v
	}
	return model.BudgetSnapshot{
		LimitUSD:     l.limit,
		MarginUSD:    l.margin,
		SpentUSD:     l.spent,
		RemainingUSD: l.limit - l.spent,
		ByCategory:   byCat,
		Stopped:      l.stopped,
	}
}

// Reservation is an estimate held against the ledger for one in-flight call.
type Reservation struct {
	ledger   *Ledger
	cat      Category
	estimate float64
	settled  bool
}

// Settle releases the held estimate and records the actual cost. Only the
// first call has any effect.
func (r *Reservation) Settle(actual float64) {
	if r == nil {
		return
	}
	l := r.ledger
	l.mu.Lock()
	defer l.mu.Unlock()

	if r.settled {
		return
	}
	r.settled = true
	l.reserved -= r.estimate
	l.recordLocked(r.cat, actual)
}

// Metered runs fn under a reservation. fn reports the actual cost of the call,
// which is recorded even when fn fails.
func Metered[T any](ctx context.Context, l *Ledger, cat Category, estimate float64, fn func(ctx context.Context) (T, float64, error)) (T, error) {
	var zero T
	res, err := l.Reserve(cat, estimate)
	if err != nil {
		return zero, err
	}
	val, actual, err := fn(ctx)
	res.Settle(actual)
	if err != nil {
		return zero, err
	}
	return val, nil
}

// IsExhausted reports whether err means the ledger refused a call.
func IsExhausted(err error) bool {
	return eris.Is(err, ErrStopped) || eris.Is(err, ErrInsufficient)
}
