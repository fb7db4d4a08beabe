package verify

import (
	"context"
	"sync"

	"github.com/rotisserie/eris"

	"github.com/sells-group/tariff-cli/internal/budget"
	"github.com/sells-group/tariff-cli/internal/model"
)

// CodeStore is the authoritative code lookup. A nil record with a nil error
// means the code does not exist.
type CodeStore interface {
	LookupCode(ctx context.Context, code string) (*model.CodeRecord, error)
}

// RegulatoryStore returns import requirements by code. A nil record with a
// nil error means there is no record.
type RegulatoryStore interface {
	RegulatoryRecord(ctx context.Context, code string) (*model.RegulatoryRecord, error)
}

// Cache memoizes store lookups for one run. Create a new Cache per
// invocation; it must never outlive the run whose ledger it meters.
type Cache struct {
	codes  CodeStore
	regs   RegulatoryStore
	ledger *budget.Ledger
	price  float64

	mu      sync.Mutex
	codeHit map[string]*model.CodeRecord
	regHit  map[string]*model.RegulatoryRecord
}

// NewCache creates a per-run cache. Each uncached lookup is metered as a
// store read at price USD. A nil ledger leaves lookups unmetered.
func NewCache(codes CodeStore, regs RegulatoryStore, ledger *budget.Ledger, price float64) *Cache {
	return &Cache{
		codes:   codes,
		regs:    regs,
		ledger:  ledger,
		price:   price,
		codeHit: make(map[string]*model.CodeRecord),
		regHit:  make(map[string]*model.RegulatoryRecord),
	}
}

// Code looks up a code record.
func (c *Cache) Code(ctx context.Context, code string) (*model.CodeRecord, error) {
	c.mu.Lock()
	rec, ok := c.codeHit[code]
	c.mu.Unlock()
	if ok {
		return rec, nil
	}
	if c.codes == nil {
		return nil, eris.New("verify: no code store configured")
	}

	rec, err := metered(ctx, c, func(ctx context.Context) (*model.CodeRecord, error) {
		return c.codes.LookupCode(ctx, code)
	})
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.codeHit[code] = rec
	c.mu.Unlock()
	return rec, nil
}

// Regulatory looks up a regulatory record.
func (c *Cache) Regulatory(ctx context.Context, code string) (*model.RegulatoryRecord, error) {
	c.mu.Lock()
	rec, ok := c.regHit[code]
	c.mu.Unlock()
	if ok {
		return rec, nil
	}
	if c.regs == nil {
		return nil, eris.New("verify: no regulatory store configured")
	}

	rec, err := metered(ctx, c, func(ctx context.Context) (*model.RegulatoryRecord, error) {
		return c.regs.RegulatoryRecord(ctx, code)
	})
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.regHit[code] = rec
	c.mu.Unlock()
	return rec, nil
}

func metered[T any](ctx context.Context, c *Cache, fn func(context.Context) (T, error)) (T, error) {
	if c.ledger == nil {
		return fn(ctx)
	}
	return budget.Metered(ctx, c.ledger, budget.CategoryStoreRead, c.price, func(ctx context.Context) (T, float64, error) {
		v, err := fn(ctx)
		return v, c.price, err
	})
}
