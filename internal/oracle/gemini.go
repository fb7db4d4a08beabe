package oracle

import (
	"context"
	"errors"

	"github.com/rotisserie/eris"
	"google.golang.org/genai"

	"github.com/sells-group/tariff-cli/internal/cost"
	"github.com/sells-group/tariff-cli/internal/resilience"
	"github.com/sells-group/tariff-cli/pkg/gemini"
)

// Gemini asks a Google Gemini model.
type Gemini struct {
	client gemini.Client
	model  string
	calc   *cost.Calculator
}

// NewGemini returns a Gemini oracle for model.
func NewGemini(client gemini.Client, model string, calc *cost.Calculator) *Gemini {
	return &Gemini{client: client, model: model, calc: calc}
}

// Name implements Oracle.
func (g *Gemini) Name() string { return "gemini" }

// Estimate implements Oracle.
func (g *Gemini) Estimate(p Prompt) float64 {
	in := cost.EstimateTokens(p.System) + cost.EstimateTokens(p.User)
	return g.calc.Gemini(g.model, in, int64(maxTokens(p, 512)))
}

// Ask implements Oracle.
func (g *Gemini) Ask(ctx context.Context, p Prompt) (*Answer, error) {
	temp := float32(0)
	resp, err := g.client.Generate(ctx, gemini.GenerateRequest{
		Model:       g.model,
		System:      p.System,
		User:        p.User,
		MaxTokens:   int32(maxTokens(p, 512)),
		Temperature: &temp,
		JSON:        true,
	})
	if err != nil {
		var apiErr genai.APIError
		if errors.As(err, &apiErr) && resilience.IsTransientStatus(apiErr.Code) {
			return nil, resilience.Transient(err, apiErr.Code)
		}
		return nil, eris.Wrap(err, "gemini oracle")
	}

	return &Answer{
		Text:         resp.Text,
		CostUSD:      g.calc.Gemini(g.model, resp.InputTokens, resp.OutputTokens),
		InputTokens:  resp.InputTokens,
		OutputTokens: resp.OutputTokens,
	}, nil
}
