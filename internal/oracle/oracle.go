// Package oracle adapts the external language-model backends to one
// request/response interface: a system instruction plus a user prompt in,
// free text out.
package oracle

import (
	"context"

	"github.com/rotisserie/eris"
)

// ErrNoCredentials is returned by an oracle whose backend is not configured.
var ErrNoCredentials = eris.New("oracle: no credentials configured")

// Prompt is one request to an oracle.
type Prompt struct {
	System    string
	User      string
	MaxTokens int
}

// Answer is the raw text reply plus what it cost.
type Answer struct {
	Text         string
	CostUSD      float64
	InputTokens  int64
	OutputTokens int64
}

// Oracle is an opaque text backend.
type Oracle interface {
	Name() string
	// Estimate returns the expected cost of p in USD before it is sent.
	Estimate(p Prompt) float64
	Ask(ctx context.Context, p Prompt) (*Answer, error)
}

type unconfigured struct{ name string }

// Unconfigured returns an oracle that fails every call with ErrNoCredentials.
func Unconfigured(name string) Oracle { return unconfigured{name: name} }

func (u unconfigured) Name() string           { return u.name }
func (u unconfigured) Estimate(Prompt) float64 { return 0 }

func (u unconfigured) Ask(context.Context, Prompt) (*Answer, error) {
	return nil, eris.Wrap(ErrNoCredentials, u.name)
}

func maxTokens(p Prompt, def int) int {
	if p.MaxTokens > 0 {
		return p.MaxTokens
	}
	return def
}
