package crosscheck

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"

	"github.com/sells-group/tariff-cli/internal/hscode"
	"github.com/sells-group/tariff-cli/internal/model"
)

func votes(codes ...string) []model.ModelVote {
	names := []string{"claude", "gemini", "perplexity"}
	out := make([]model.ModelVote, len(codes))
	for i, c := range codes {
		out[i] = model.ModelVote{Oracle: names[i]}
		if c == "" {
			out[i].Error = model.VoteErrTimeout
			continue
		}
		out[i].Code = hscode.MustNormalize(c)
	}
	return out
}

func TestDecide(t *testing.T) {
	tests := []struct {
		name      string
		primary   string
		votes     []model.ModelVote
		tier      model.Tier
		adj       float64
		consensus string
		minority  []string
	}{
		{
			name: "full match", primary: "851010",
			votes: votes("8510.10.0000", "851010", "85101000"),
			tier:  model.TierFullMatch, adj: 0.10, consensus: "8510100000",
		},
		{
			name: "heading match", primary: "851010",
			votes: votes("851020", "851030", "851010"),
			tier:  model.TierHeadingMatch, adj: 0.05, consensus: "8510100000",
		},
		{
			name: "majority scenario", primary: "851060",
			votes: votes("851010", "851010", "870380"),
			tier:  model.TierMajority, adj: -0.05, consensus: "8510100000", minority: []string{"perplexity"},
		},
		{
			name: "two of four agree, other two differ", primary: "851010",
			votes: votes("870380", "851020", "940370"),
			tier:  model.TierMajority, adj: -0.05, consensus: "8510100000", minority: []string{"claude", "perplexity"},
		},
		{
			name: "majority without primary", primary: "732690",
			votes: votes("731010", "731021", "851010"),
			tier:  model.TierMajority, adj: -0.05, consensus: "7310100000", minority: []string{"primary", "perplexity"},
		},
		{
			name: "disagreement", primary: "732690",
			votes: votes("731010", "851010", "940370"),
			tier:  model.TierDisagreement, adj: -0.15,
		},
		{
			name: "no response", primary: "732690",
			votes: votes("", "", ""),
			tier:  model.TierNoResponse, adj: 0,
		},
		{
			name: "one response agreeing", primary: "732690",
			votes: votes("", "732690", ""),
			tier:  model.TierMajority, adj: -0.05, consensus: "7326900000",
		},
		{
			name: "one response disagreeing", primary: "732690",
			votes: votes("", "731010", ""),
			tier:  model.TierDisagreement, adj: -0.15,
		},
		{
			name: "two agree with primary but one missing is never full match", primary: "732690",
			votes: votes("732690", "732690", ""),
			tier:  model.TierMajority, adj: -0.05, consensus: "7326900000",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			primary := hscode.MustNormalize(tt.primary)
			res := Decide(primary, tt.votes)
			assert.Equal(t, tt.tier, res.Tier)
			assert.Equal(t, tt.adj, res.ConfidenceAdjustment)
			assert.Equal(t, tt.consensus, res.ConsensusCode)
			if diff := cmp.Diff(tt.minority, res.Minority); diff != "" {
				t.Errorf("minority mismatch (-want +got):\n%s", diff)
			}
			assert.NotEmpty(t, res.Rationale)
			assert.Equal(t, primary, res.PrimaryCode)
			assert.Len(t, res.Votes, 3)
		})
	}
}

func TestDecide_NoResponseIsNotDisagreement(t *testing.T) {
	res := Decide(hscode.MustNormalize("851060"), votes("", "", ""))
	assert.Equal(t, model.TierNoResponse, res.Tier)
	assert.NotEqual(t, model.TierDisagreement, res.Tier)
	assert.Zero(t, res.ConfidenceAdjustment)
	assert.Empty(t, res.ConsensusCode)
}
