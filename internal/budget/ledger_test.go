package budget

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLedger_CanAffordAndRecord(t *testing.T) {
	t.Parallel()
	l := NewLedger(1.0, 0.1)

	assert.True(t, l.CanAfford(0.5))
	assert.True(t, l.CanAfford(0.9))
	assert.False(t, l.CanAfford(0.95))

	l.Record(CategoryOracle, 0.3)
	assert.InDelta(t, 0.7, l.Remaining(), 1e-9)
	assert.False(t, l.Stopped())
	assert.False(t, l.CanAfford(0.7))
}

func TestLedger_StopIsSticky(t *testing.T) {
	t.Parallel()
	l := NewLedger(1.0, 0.1)

	// Actual spend exceeding the estimate trips the ledger.
	require.True(t, l.CanAfford(0.2))
	l.Record(CategoryOracle, 0.95)
	assert.True(t, l.Stopped())

	// Free calls are refused as well.
	assert.False(t, l.CanAfford(0))
	_, err := l.Reserve(CategoryStoreRead, 0)
	assert.ErrorIs(t, err, ErrStopped)

	l.Record(CategoryStoreRead, 0)
	assert.True(t, l.Stopped())
}

func TestLedger_StopsExactlyAtThreshold(t *testing.T) {
	t.Parallel()
	l := NewLedger(1.0, 0.25)

	l.Record(CategoryOracle, 0.5)
	assert.False(t, l.Stopped())
	l.Record(CategoryOracle, 0.25)
	assert.True(t, l.Stopped())
}

func TestLedger_ZeroLimitStartsStopped(t *testing.T) {
	t.Parallel()
	l := NewLedger(0.1, 0.1)
	assert.True(t, l.Stopped())
}

func TestLedger_RemainingNeverIncreases(t *testing.T) {
	t.Parallel()
	l := NewLedger(5.0, 0.5)

	prev := l.Remaining()
	for _, amt := range []float64{0.1, 0, -1, 0.4, 2.0, 0.01} {
		l.Record(CategoryOracle, amt)
		cur := l.Remaining()
		assert.LessOrEqual(t, cur, prev)
		prev = cur
	}
}

func TestLedger_ReserveHoldsEstimate(t *testing.T) {
	t.Parallel()
	l := NewLedger(1.0, 0)

	res, err := l.Reserve(CategoryOracle, 0.6)
	require.NoError(t, err)

	// The held estimate counts against later callers.
	_, err = l.Reserve(CategoryOracle, 0.6)
	assert.ErrorIs(t, err, ErrInsufficient)
	assert.True(t, IsExhausted(err))

	res.Settle(0.2)
	res.Settle(5.0) // ignored

	snap := l.Snapshot()
	assert.InDelta(t, 0.2, snap.SpentUSD, 1e-9)
	assert.InDelta(t, 0.2, snap.ByCategory[string(CategoryOracle)], 1e-9)
	assert.True(t, l.CanAfford(0.8))
}

func TestLedger_ConcurrentReservationsNeverOverspend(t *testing.T) {
	t.Parallel()
	l := NewLedger(1.0, 0)

	var granted atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := l.Reserve(CategoryOracle, 0.1)
			if err != nil {
				return
			}
			granted.Add(1)
			res.Settle(0.1)
		}()
	}
	wg.Wait()

	assert.LessOrEqual(t, int(granted.Load()), 10)
	assert.LessOrEqual(t, l.Snapshot().SpentUSD, 1.0+1e-9)
}

func TestMetered(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	l := NewLedger(1.0, 0.1)

	got, err := Metered(ctx, l, CategoryOracle, 0.1, func(_ context.Context) (string, float64, error) {
		return "ok", 0.05, nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", got)
	assert.InDelta(t, 0.05, l.Snapshot().SpentUSD, 1e-9)

	// Failed calls still record their cost.
	_, err = Metered(ctx, l, CategoryOracle, 0.1, func(_ context.Context) (string, float64, error) {
		return "", 0.02, errors.New("boom")
	})
	require.Error(t, err)
	assert.InDelta(t, 0.07, l.Snapshot().SpentUSD, 1e-9)

	// Refused calls never run.
	l.Record(CategoryOracle, 1.0)
	called := false
	_, err = Metered(ctx, l, CategoryOracle, 0, func(_ context.Context) (string, float64, error) {
		called = true
		return "", 0, nil
	})
	assert.ErrorIs(t, err, ErrStopped)
	assert.False(t, called)
}

func TestLedger_Usage(t *testing.T) {
	t.Parallel()
	l := NewLedger(1.0, 0)
	l.AddTokens(100, 20)
	l.AddTokens(50, 5)
	l.Record(CategoryOracle, 0.25)

	u := l.Usage()
	assert.Equal(t, int64(150), u.InputTokens)
	assert.Equal(t, int64(25), u.OutputTokens)
	assert.InDelta(t, 0.25, u.Cost, 1e-9)
}
