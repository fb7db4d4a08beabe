package oracle

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/tariff-cli/internal/cost"
	"github.com/sells-group/tariff-cli/pkg/perplexity"
)

// Perplexity asks a Perplexity search-grounded model.
type Perplexity struct {
	client perplexity.Client
	calc   *cost.Calculator
}

// NewPerplexity returns a Perplexity oracle.
func NewPerplexity(client perplexity.Client, calc *cost.Calculator) *Perplexity {
	return &Perplexity{client: client, calc: calc}
}

// Name implements Oracle.
func (p *Perplexity) Name() string { return "perplexity" }

// Estimate implements Oracle.
func (p *Perplexity) Estimate(pr Prompt) float64 {
	in := cost.EstimateTokens(pr.System) + cost.EstimateTokens(pr.User)
	return p.calc.Perplexity(in, int64(maxTokens(pr, 512)))
}

// Ask implements Oracle. Errors from the client that report Retryable are
// picked up by resilience.IsTransient unchanged.
func (p *Perplexity) Ask(ctx context.Context, pr Prompt) (*Answer, error) {
	mt := maxTokens(pr, 512)
	temp := 0.0
	resp, err := p.client.ChatCompletion(ctx, perplexity.ChatCompletionRequest{
		Messages: []perplexity.Message{
			{Role: "system", Content: pr.System},
			{Role: "user", Content: pr.User},
		},
		Temperature: &temp,
		MaxTokens:   &mt,
	})
	if err != nil {
		return nil, eris.Wrap(err, "perplexity oracle")
	}

	in, out := int64(resp.Usage.PromptTokens), int64(resp.Usage.CompletionTokens)
	return &Answer{
		Text:         resp.Text(),
		CostUSD:      p.calc.Perplexity(in, out),
		InputTokens:  in,
		OutputTokens: out,
	}, nil
}
