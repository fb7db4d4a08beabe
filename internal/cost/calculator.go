// Package cost prices oracle calls and store operations in USD.
package cost

import "unicode/utf8"

// Rates holds per-provider pricing configuration.
type Rates struct {
	Anthropic  map[string]ModelRate `yaml:"anthropic" mapstructure:"anthropic"`
	Gemini     map[string]ModelRate `yaml:"gemini" mapstructure:"gemini"`
	Perplexity PerplexityRate       `yaml:"perplexity" mapstructure:"perplexity"`
	StoreRead  float64              `yaml:"store_read" mapstructure:"store_read"`
}

// ModelRate holds per-model token pricing (per million tokens).
type ModelRate struct {
	Input         float64 `yaml:"input" mapstructure:"input"`
	Output        float64 `yaml:"output" mapstructure:"output"`
	CacheWriteMul float64 `yaml:"cache_write_mul" mapstructure:"cache_write_mul"`
	CacheReadMul  float64 `yaml:"cache_read_mul" mapstructure:"cache_read_mul"`
}

// PerplexityRate holds Perplexity pricing: a flat request fee plus tokens.
type PerplexityRate struct {
	PerQuery float64 `yaml:"per_query" mapstructure:"per_query"`
	Input    float64 `yaml:"input" mapstructure:"input"`
	Output   float64 `yaml:"output" mapstructure:"output"`
}

// Calculator computes costs for API usage.
type Calculator struct {
	rates Rates
}

// NewCalculator creates a Calculator with the given rates.
func NewCalculator(rates Rates) *Calculator {
	return &Calculator{rates: rates}
}

// unpricedRate is charged for models missing from the rate table unless a
// listed model costs more.
var unpricedRate = ModelRate{Input: 15.00, Output: 75.00, CacheWriteMul: 1.25, CacheReadMul: 0.1}

// lookup returns the rate for model, or the costliest known rate when the
// model is not priced.
func lookup(rates map[string]ModelRate, model string) ModelRate {
	if rate, ok := rates[model]; ok {
		return rate
	}
	best := unpricedRate
	for _, r := range rates {
		if r.Input+r.Output > best.Input+best.Output {
			best = r
		}
	}
	return best
}

// Priced reports whether the rate table lists model for provider
// ("anthropic" or "gemini").
func (r Rates) Priced(provider, model string) bool {
	var ok bool
	switch provider {
	case "anthropic":
		_, ok = r.Anthropic[model]
	case "gemini":
		_, ok = r.Gemini[model]
	}
	return ok
}

// Claude computes the cost for a Claude API call. Unpriced models are
// charged at the costliest known rate.
func (c *Calculator) Claude(model string, input, output, cacheWrite, cacheRead int64) float64 {
	rate := lookup(c.rates.Anthropic, model)

	inCost := (float64(input) / 1e6) * rate.Input
	outCost := (float64(output) / 1e6) * rate.Output
	cwCost := (float64(cacheWrite) / 1e6) * rate.Input * rate.CacheWriteMul
	crCost := (float64(cacheRead) / 1e6) * rate.Input * rate.CacheReadMul

	return inCost + outCost + cwCost + crCost
}

// Gemini computes the cost for a Gemini API call. Unpriced models are
// charged at the costliest known rate.
func (c *Calculator) Gemini(model string, input, output int64) float64 {
	rate := lookup(c.rates.Gemini, model)
	return (float64(input)/1e6)*rate.Input + (float64(output)/1e6)*rate.Output
}

// Perplexity computes the cost for one Perplexity chat completion.
func (c *Calculator) Perplexity(input, output int64) float64 {
	r := c.rates.Perplexity
	return r.PerQuery + (float64(input)/1e6)*r.Input + (float64(output)/1e6)*r.Output
}

// StoreRead returns the flat cost of one metered reference-store read.
func (c *Calculator) StoreRead() float64 {
	return c.rates.StoreRead
}

// EstimateTokens approximates the token count of text. Hebrew script
// tokenizes denser than Latin, so runes are divided by three rather than four.
func EstimateTokens(text string) int64 {
	runes := utf8.RuneCountInString(text)
	if runes == 0 {
		return 0
	}
	return int64(runes/3) + 1
}

// DefaultRates returns the default pricing rates.
func DefaultRates() Rates {
	return Rates{
		Anthropic: map[string]ModelRate{
			"claude-haiku-4-5-20251001": {
				Input: 0.80, Output: 4.00, CacheWriteMul: 1.25, CacheReadMul: 0.1,
			},
			"claude-sonnet-4-5-20250929": {
				Input: 3.00, Output: 15.00, CacheWriteMul: 1.25, CacheReadMul: 0.1,
			},
		},
		Gemini: map[string]ModelRate{
			"gemini-2.5-flash": {Input: 0.30, Output: 2.50},
			"gemini-2.5-pro":   {Input: 1.25, Output: 10.00},
		},
		Perplexity: PerplexityRate{PerQuery: 0.005, Input: 3.00, Output: 15.00},
	}
}
