package model

// VoteError tags why an oracle produced no vote.
type VoteError string

const (
	VoteErrNone          VoteError = ""
	VoteErrTimeout       VoteError = "timeout"
	VoteErrUnavailable   VoteError = "unavailable"
	VoteErrNoCredentials VoteError = "no_credentials"
	VoteErrUnparseable   VoteError = "unparseable"
	VoteErrBudget        VoteError = "budget_stopped"
	VoteErrCircuitOpen   VoteError = "circuit_open"
)

// ModelVote is one oracle's opinion on the classification.
type ModelVote struct {
	Oracle     string    `json:"oracle"`
	Code       string    `json:"code,omitempty"`
	Confidence float64   `json:"confidence"`
	Reason     string    `json:"reason,omitempty"`
	Raw        string    `json:"raw,omitempty"`
	Error      VoteError `json:"error,omitempty"`
}

// Responded reports whether the vote carries a code.
func (v ModelVote) Responded() bool {
	return v.Code != ""
}

// Tier is the discrete agreement level of a cross-check.
type Tier string

const (
	TierFullMatch    Tier = "full_match"
	TierHeadingMatch Tier = "heading_match"
	TierMajority     Tier = "majority"
	TierDisagreement Tier = "disagreement"
	TierNoResponse   Tier = "no_response"
)

// Adjustment returns the confidence adjustment attached to a tier.
func (t Tier) Adjustment() float64 {
	switch t {
	case TierFullMatch:
		return 0.10
	case TierHeadingMatch:
		return 0.05
	case TierMajority:
		return -0.05
	case TierDisagreement:
		return -0.15
	default:
		return 0
	}
}

// CrossCheckResult is the outcome of querying the three oracles.
type CrossCheckResult struct {
	Tier                 Tier        `json:"tier"`
	PrimaryCode          string      `json:"primary_code"`
	Votes                []ModelVote `json:"votes"`
	ConsensusCode        string      `json:"consensus_code,omitempty"`
	Minority             []string    `json:"minority,omitempty"`
	ConfidenceAdjustment float64     `json:"confidence_adjustment"`
	Rationale            string      `json:"rationale"`
}
