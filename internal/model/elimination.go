package model

// Level is the rule category at which a candidate is kept or dropped.
type Level string

const (
	LevelSection   Level = "section"
	LevelChapter   Level = "chapter"
	LevelHeading   Level = "heading"
	LevelAI        Level = "ai"
	LevelChallenge Level = "challenge"
)

// Action is what an elimination step did to the candidates it touched.
type Action string

const (
	ActionEliminate Action = "eliminate"
	ActionKeep      Action = "keep"
	ActionBoost     Action = "boost"
)

// RuleType names the family of rule that produced a step.
type RuleType string

const (
	RuleSectionMaterial RuleType = "section_material"
	RuleChapterMaterial RuleType = "chapter_material"
	RuleChapterForm     RuleType = "chapter_form"
	RuleChapterUse      RuleType = "chapter_use"
	RuleHeadingKeyword  RuleType = "heading_keyword"
	RuleHeadingExclude  RuleType = "heading_exclude"
	RuleSemantic        RuleType = "semantic"
	RuleDevilsAdvocate  RuleType = "devils_advocate"
	RuleLastCandidate   RuleType = "last_candidate"
)

// EliminationStep is one entry of the append-only elimination audit log.
type EliminationStep struct {
	Level         Level    `json:"level"`
	RuleType      RuleType `json:"rule_type"`
	Action        Action   `json:"action"`
	CountBefore   int      `json:"count_before"`
	CountAfter    int      `json:"count_after"`
	AffectedCodes []string `json:"affected_codes"`
	Reasoning     string   `json:"reasoning"`
}

// Challenge is one alternative re-argued by the devil's-advocate pass.
type Challenge struct {
	Code          string `json:"code"`
	AgainstCode   string `json:"against_code"`
	ReasonFor     string `json:"reason_for"`
	ReasonAgainst string `json:"reason_against,omitempty"`
	Source        string `json:"source"`
}

// ChallengeFindings summarizes the devil's-advocate pass.
type ChallengeFindings struct {
	Alternatives    []Challenge `json:"alternatives"`
	Passed          bool        `json:"challenge_passed"`
	UnresolvedCount int         `json:"unresolved_count"`
}

// EliminationResult is the output of the candidate elimination engine.
type EliminationResult struct {
	InputCount      int               `json:"input_count"`
	Survivors       []Candidate       `json:"survivors"`
	Eliminated      []Candidate       `json:"eliminated"`
	Steps           []EliminationStep `json:"steps"`
	Challenge       ChallengeFindings `json:"challenge"`
	NeedsAI         bool              `json:"needs_ai"`
	NeedsQuestions  bool              `json:"needs_questions"`
	SectionsChecked []string          `json:"sections_checked"`
	ChaptersChecked []string          `json:"chapters_checked"`
}

// Winner returns the top-ranked survivor, or nil when there is none.
func (r *EliminationResult) Winner() *Candidate {
	if r == nil || len(r.Survivors) == 0 {
		return nil
	}
	return &r.Survivors[0]
}
