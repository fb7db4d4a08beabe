package model

// FlagType classifies a verification flag.
type FlagType string

const (
	FlagAntidumping     FlagType = "antidumping"
	FlagStandard        FlagType = "standard"
	FlagFTA             FlagType = "fta"
	FlagConflict        FlagType = "conflict"
	FlagUnverified      FlagType = "unverified"
	FlagBudgetExhausted FlagType = "budget_exhausted"
)

// Severity grades a flag.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// VerificationFlag is a compliance or risk notice attached to a code.
type VerificationFlag struct {
	Type     FlagType `json:"type"`
	Severity Severity `json:"severity"`
	Message  string   `json:"message"`
}

// CodeRecord is an entry in the authoritative code store.
type CodeRecord struct {
	Code        string    `json:"code"`
	Description Bilingual `json:"description"`
}

// Directive is one regulatory requirement attached to a code.
type Directive struct {
	ID          string `json:"id"`
	Authority   string `json:"authority"`
	Requirement string `json:"requirement"` // "permit", "license", "standard", "exempt", "prohibited"
	Text        string `json:"text,omitempty"`
}

// RegulatoryRecord collects the import requirements for a code.
type RegulatoryRecord struct {
	Code             string      `json:"code"`
	Authorities      []string    `json:"authorities"`
	RequiresStandard bool        `json:"requires_standard"`
	FTACountries     []string    `json:"fta_countries,omitempty"`
	Directives       []Directive `json:"directives,omitempty"`
}

// BilingualMatch is the result of comparing a description to reference text.
type BilingualMatch struct {
	SimilarityEN float64 `json:"similarity_en"`
	SimilarityHE float64 `json:"similarity_he"`
	Matched      bool    `json:"bilingual_match"`
}

// KnowledgeCheck is the result of the regulatory lookup phase.
type KnowledgeCheck struct {
	Verified             bool              `json:"verified"`
	ConfidenceAdjustment float64           `json:"confidence_adjustment"`
	Record               *RegulatoryRecord `json:"record,omitempty"`
	Note                 string            `json:"note,omitempty"`
}

// Verification bundles every verification phase for one code.
type Verification struct {
	Code      string             `json:"code"`
	Match     BilingualMatch     `json:"match"`
	Knowledge KnowledgeCheck     `json:"knowledge"`
	Flags     []VerificationFlag `json:"flags"`
}
