package oracle

import (
	"context"
	"errors"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/rotisserie/eris"

	"github.com/sells-group/tariff-cli/internal/cost"
	"github.com/sells-group/tariff-cli/internal/resilience"
	"github.com/sells-group/tariff-cli/pkg/anthropic"
)

// Claude asks an Anthropic model.
type Claude struct {
	client anthropic.Client
	model  string
	calc   *cost.Calculator
}

// NewClaude returns a Claude oracle for model.
func NewClaude(client anthropic.Client, model string, calc *cost.Calculator) *Claude {
	return &Claude{client: client, model: model, calc: calc}
}

// Name implements Oracle.
func (c *Claude) Name() string { return "claude" }

// Estimate implements Oracle.
func (c *Claude) Estimate(p Prompt) float64 {
	in := cost.EstimateTokens(p.System) + cost.EstimateTokens(p.User)
	return c.calc.Claude(c.model, in, int64(maxTokens(p, 512)), 0, 0)
}

// Ask implements Oracle.
func (c *Claude) Ask(ctx context.Context, p Prompt) (*Answer, error) {
	temp := 0.0
	resp, err := c.client.CreateMessage(ctx, anthropic.MessageRequest{
		Model:       c.model,
		MaxTokens:   int64(maxTokens(p, 512)),
		System:      anthropic.BuildCachedSystemBlocks(p.System),
		Messages:    []anthropic.Message{{Role: "user", Content: p.User}},
		Temperature: &temp,
	})
	if err != nil {
		var apiErr *sdk.Error
		if errors.As(err, &apiErr) && resilience.IsTransientStatus(apiErr.StatusCode) {
			return nil, resilience.Transient(err, apiErr.StatusCode)
		}
		return nil, eris.Wrap(err, "claude oracle")
	}

	u := resp.Usage
	return &Answer{
		Text:         resp.Text(),
		CostUSD:      c.calc.Claude(c.model, u.InputTokens, u.OutputTokens, u.CacheCreationInputTokens, u.CacheReadInputTokens),
		InputTokens:  u.InputTokens + u.CacheCreationInputTokens + u.CacheReadInputTokens,
		OutputTokens: u.OutputTokens,
	}, nil
}
