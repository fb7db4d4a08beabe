package cost

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func testRates() Rates {
	return Rates{
		Anthropic: map[string]ModelRate{
			"haiku": {
				Input: 0.80, Output: 4.00, CacheWriteMul: 1.25, CacheReadMul: 0.1,
			},
			"sonnet": {
				Input: 3.00, Output: 15.00, CacheWriteMul: 1.25, CacheReadMul: 0.1,
			},
		},
		Gemini: map[string]ModelRate{
			"flash": {Input: 0.30, Output: 2.50},
		},
		Perplexity: PerplexityRate{PerQuery: 0.005, Input: 1.0, Output: 1.0},
		StoreRead:  0.0001,
	}
}

func TestClaude(t *testing.T) {
	t.Parallel()
	calc := NewCalculator(testRates())

	tests := []struct {
		name       string
		model      string
		input      int64
		output     int64
		cacheWrite int64
		cacheRead  int64
		want       float64
	}{
		{
			name:  "haiku simple",
			model: "haiku", input: 1000000, output: 100000,
			want: 0.80 + 0.40,
		},
		{
			name:  "haiku with cache",
			model: "haiku", input: 500000, output: 50000,
			cacheWrite: 200000, cacheRead: 300000,
			// in 0.40, out 0.20, cw 0.20, cr 0.024
			want: 0.40 + 0.20 + 0.20 + 0.024,
		},
		{
			name:  "sonnet",
			model: "sonnet", input: 1000000, output: 100000,
			want: 3.00 + 1.50,
		},
		{
			name:  "unknown model charged at the unpriced rate",
			model: "unknown", input: 1000000, output: 1000000,
			want: 15.00 + 75.00,
		},
		{
			name:  "zero tokens returns 0",
			model: "haiku",
			want:  0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := calc.Claude(tt.model, tt.input, tt.output, tt.cacheWrite, tt.cacheRead)
			assert.InDelta(t, tt.want, got, 0.001)
		})
	}
}

func TestGemini(t *testing.T) {
	t.Parallel()
	calc := NewCalculator(testRates())

	assert.InDelta(t, 0.30+0.25, calc.Gemini("flash", 1000000, 100000), 0.0001)
	assert.InDelta(t, 15.00+7.50, calc.Gemini("unknown", 1000000, 100000), 0.0001)
}

func TestUnpricedModelUsesCostliestRate(t *testing.T) {
	t.Parallel()
	rates := testRates()
	rates.Anthropic["premium"] = ModelRate{Input: 30, Output: 150}
	calc := NewCalculator(rates)

	assert.InDelta(t, 30+150, calc.Claude("claude-opus-4-6", 1000000, 1000000, 0, 0), 0.001)
	assert.Greater(t, NewCalculator(DefaultRates()).Claude("claude-opus-4-6", 200000, 20000, 0, 0), 0.0)
}

func TestRatesPriced(t *testing.T) {
	t.Parallel()
	rates := testRates()

	assert.True(t, rates.Priced("anthropic", "haiku"))
	assert.False(t, rates.Priced("anthropic", "claude-opus-4-6"))
	assert.True(t, rates.Priced("gemini", "flash"))
	assert.False(t, rates.Priced("gemini", "haiku"))
	assert.False(t, rates.Priced("perplexity", "sonar"))
}

func TestPerplexity(t *testing.T) {
	t.Parallel()
	calc := NewCalculator(testRates())

	assert.InDelta(t, 0.005, calc.Perplexity(0, 0), 0.0001)
	assert.InDelta(t, 0.005+1.0+0.5, calc.Perplexity(1000000, 500000), 0.0001)
}

func TestStoreRead(t *testing.T) {
	t.Parallel()
	assert.InDelta(t, 0.0001, NewCalculator(testRates()).StoreRead(), 1e-9)
}

func TestEstimateTokens(t *testing.T) {
	t.Parallel()

	assert.Equal(t, int64(0), EstimateTokens(""))
	assert.Equal(t, int64(4), EstimateTokens("steel box"))
	// Runes, not bytes: five Hebrew letters are ten bytes.
	assert.Equal(t, int64(2), EstimateTokens("קופסה"))
}

func TestDefaultRates(t *testing.T) {
	t.Parallel()
	rates := DefaultRates()

	assert.Contains(t, rates.Anthropic, "claude-haiku-4-5-20251001")
	assert.Contains(t, rates.Anthropic, "claude-sonnet-4-5-20250929")
	assert.Contains(t, rates.Gemini, "gemini-2.5-flash")
	assert.InDelta(t, 0.005, rates.Perplexity.PerQuery, 0.001)
}
