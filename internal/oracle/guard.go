package oracle

import (
	"context"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/sells-group/tariff-cli/internal/resilience"
)

// Guarded wraps an oracle with a rate limiter, a circuit breaker and retries.
type Guarded struct {
	inner   Oracle
	limiter *rate.Limiter
	breaker *resilience.Breaker
	policy  resilience.RetryPolicy
}

// Guard wraps o. A nil limiter disables rate limiting; a nil breaker disables
// the breaker.
func Guard(o Oracle, limiter *rate.Limiter, breaker *resilience.Breaker, policy resilience.RetryPolicy) *Guarded {
	return &Guarded{inner: o, limiter: limiter, breaker: breaker, policy: policy}
}

// Name implements Oracle.
func (g *Guarded) Name() string { return g.inner.Name() }

// Estimate implements Oracle.
func (g *Guarded) Estimate(p Prompt) float64 { return g.inner.Estimate(p) }

// Ask implements Oracle. The returned answer's cost covers only the
// successful attempt.
func (g *Guarded) Ask(ctx context.Context, p Prompt) (*Answer, error) {
	return resilience.Retry(ctx, g.policy, g.inner.Name()+".ask", func(ctx context.Context) (*Answer, error) {
		if g.limiter != nil {
			if err := g.limiter.Wait(ctx); err != nil {
				return nil, eris.Wrap(err, "oracle: rate limit wait")
			}
		}
		if g.breaker == nil {
			return g.inner.Ask(ctx, p)
		}
		return resilience.Call(ctx, g.breaker, func(ctx context.Context) (*Answer, error) {
			return g.inner.Ask(ctx, p)
		})
	})
}
