package safety

import (
	"context"
	"errors"
	"slices"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/tariff-cli/internal/hscode"
	"github.com/sells-group/tariff-cli/internal/model"
)

type memAttempts struct {
	mu   sync.Mutex
	rows map[string]*model.ClassificationAttempt
	err  error
}

func newMemAttempts() *memAttempts {
	return &memAttempts{rows: make(map[string]*model.ClassificationAttempt)}
}

func (m *memAttempts) Next(_ context.Context, key string, limit int) (*model.ClassificationAttempt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	row, ok := m.rows[key]
	if !ok {
		row = &model.ClassificationAttempt{ThreadKey: key}
		m.rows[key] = row
	}
	if row.AttemptCount < limit {
		row.AttemptCount++
	}
	cp := *row
	cp.CodesTried = slices.Clone(row.CodesTried)
	return &cp, nil
}

func (m *memAttempts) RecordCodes(_ context.Context, key string, codes []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	row := m.rows[key]
	for _, c := range codes {
		if !slices.Contains(row.CodesTried, c) {
			row.CodesTried = append(row.CodesTried, c)
		}
	}
	return nil
}

func TestLoopBreaker_ThirdAttemptEscalates(t *testing.T) {
	ctx := context.Background()
	store := newMemAttempts()
	lb := NewLoopBreaker(store, 2)

	first := lb.Admit(ctx, "Steel box", "<1@mail>")
	require.True(t, first.Allowed)
	assert.Equal(t, 1, first.Attempt)
	require.NoError(t, lb.Record(ctx, first, []string{hscode.MustNormalize("7326.9000")}))

	second := lb.Admit(ctx, "Re: Steel box", "<2@mail>")
	require.True(t, second.Allowed)
	assert.Equal(t, 2, second.Attempt)
	assert.Equal(t, first.ThreadKey, second.ThreadKey)
	require.NoError(t, lb.Record(ctx, second, []string{hscode.MustNormalize("7310.1000"), hscode.MustNormalize("7326.9000")}))

	third := lb.Admit(ctx, "RE: RE: steel box", "<3@mail>")
	assert.False(t, third.Allowed)
	require.NotNil(t, third.Escalation)
	assert.Equal(t, 3, third.Escalation.AttemptCount)
	assert.Equal(t, []string{"7326900000", "7310100000"}, third.Escalation.CodesTried)
	assert.Contains(t, third.Escalation.Summary, "7326.90.0000")
	assert.Contains(t, third.Escalation.Summary, "7310.10.0000")

	fourth := lb.Admit(ctx, "Steel box", "<4@mail>")
	assert.False(t, fourth.Allowed)
	assert.Equal(t, 3, fourth.Attempt, "count is capped at max+1")
}

func TestLoopBreaker_DistinctKeysIndependent(t *testing.T) {
	ctx := context.Background()
	lb := NewLoopBreaker(newMemAttempts(), 1)
	assert.True(t, lb.Admit(ctx, "Chairs", "").Allowed)
	assert.True(t, lb.Admit(ctx, "Tables", "").Allowed)
	assert.False(t, lb.Admit(ctx, "Chairs", "").Allowed)
}

func TestLoopBreaker_Untracked(t *testing.T) {
	store := newMemAttempts()
	lb := NewLoopBreaker(store, 0)
	assert.Equal(t, DefaultMaxAttempts, lb.Max())

	adm := lb.Admit(context.Background(), "", "")
	assert.True(t, adm.Allowed)
	assert.False(t, adm.Tracked)
	assert.NotEmpty(t, adm.Caveat)
	assert.Empty(t, store.rows)
	assert.NoError(t, lb.Record(context.Background(), adm, []string{"7326900000"}))
}

func TestLoopBreaker_StoreFailureAdmitsWithCaveat(t *testing.T) {
	store := newMemAttempts()
	store.err = errors.New("database is locked")
	adm := NewLoopBreaker(store, 2).Admit(context.Background(), "Steel box", "")
	assert.True(t, adm.Allowed)
	assert.True(t, adm.Tracked)
	assert.Contains(t, adm.Caveat, "attempt history unavailable")
}
