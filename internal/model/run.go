package model

import "time"

// RunStatus represents the current state of a classification run.
type RunStatus string

const (
	RunStatusQueued        RunStatus = "queued"
	RunStatusEliminating   RunStatus = "eliminating"
	RunStatusCrossChecking RunStatus = "cross_checking"
	RunStatusVerifying     RunStatus = "verifying"
	RunStatusComplete      RunStatus = "complete"
	RunStatusEscalated     RunStatus = "escalated"
	RunStatusFailed        RunStatus = "failed"
)

// PhaseStatus represents the current state of a pipeline phase.
type PhaseStatus string

const (
	PhaseStatusComplete PhaseStatus = "complete"
	PhaseStatusFailed   PhaseStatus = "failed"
	PhaseStatusSkipped  PhaseStatus = "skipped"
)

// PhaseResult holds the outcome of a pipeline phase.
type PhaseResult struct {
	Name     string         `json:"name"`
	Item     int            `json:"item"`
	Status   PhaseStatus    `json:"status"`
	Duration int64          `json:"duration_ms"`
	Error    string         `json:"error,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// TokenUsage tracks token consumption and cost for oracle calls.
type TokenUsage struct {
	InputTokens  int64   `json:"input_tokens"`
	OutputTokens int64   `json:"output_tokens"`
	Cost         float64 `json:"cost"`
}

// Add merges token usage from another instance.
func (t *TokenUsage) Add(other TokenUsage) {
	t.InputTokens += other.InputTokens
	t.OutputTokens += other.OutputTokens
	t.Cost += other.Cost
}

// Item is one product to classify, typically an invoice line.
type Item struct {
	Product    ProductInfo `json:"product"`
	Candidates []Candidate `json:"candidates"`
	// FTAEligible is set when the shipper asserted trade-agreement origin.
	FTAEligible bool `json:"fta_eligible,omitempty"`
}

// Request is the input of one pipeline invocation.
type Request struct {
	Subject   string `json:"subject"`
	MessageID string `json:"message_id"`
	Items     []Item `json:"items"`
}

// BudgetSnapshot is a read-only view of the budget ledger.
type BudgetSnapshot struct {
	LimitUSD     float64            `json:"limit_usd"`
	MarginUSD    float64            `json:"safety_margin_usd"`
	SpentUSD     float64            `json:"spent_usd"`
	RemainingUSD float64            `json:"remaining_usd"`
	ByCategory   map[string]float64 `json:"by_category"`
	Stopped      bool               `json:"stopped"`
}

// CodeIssue is a problem found by the code validation gate.
type CodeIssue struct {
	Code     string `json:"code"`
	Blocking bool   `json:"blocking"`
	Message  string `json:"message"`
}

// ItemResult is the final classification for one item.
type ItemResult struct {
	Index        int                `json:"index"`
	Code         string             `json:"code"`
	DisplayCode  string             `json:"display_code"`
	Confidence   float64            `json:"confidence"`
	Elimination  *EliminationResult `json:"elimination"`
	CrossCheck   *CrossCheckResult  `json:"cross_check,omitempty"`
	Verification *Verification      `json:"verification,omitempty"`
	Issues       []CodeIssue        `json:"issues,omitempty"`
	Explanation  string             `json:"explanation"`
	Caveats      []string           `json:"caveats,omitempty"`
}

// RunResult is the final output of one pipeline invocation.
type RunResult struct {
	RunID       string         `json:"run_id"`
	ThreadKey   string         `json:"thread_key,omitempty"`
	Attempt     int            `json:"attempt"`
	Status      RunStatus      `json:"status"`
	Items       []ItemResult   `json:"items,omitempty"`
	Escalation  *Escalation    `json:"escalation,omitempty"`
	Budget      BudgetSnapshot `json:"budget"`
	Usage       TokenUsage     `json:"usage"`
	Phases      []PhaseResult  `json:"phases"`
	Caveats     []string       `json:"caveats,omitempty"`
	StartedAt   time.Time      `json:"started_at"`
	CompletedAt time.Time      `json:"completed_at"`
}
