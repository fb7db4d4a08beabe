package model

// Provenance identifies where a candidate code came from.
type Provenance string

const (
	ProvenanceTariffBook Provenance = "tariff_book"
	ProvenanceRuling     Provenance = "ruling"
	ProvenancePrecedent  Provenance = "precedent"
	ProvenanceKnowledge  Provenance = "knowledge"
	ProvenanceAI         Provenance = "ai"
	ProvenanceCustomer   Provenance = "customer"
)

// provenancePriority ranks sources when confidences tie. Lower wins.
var provenancePriority = map[Provenance]int{
	ProvenanceTariffBook: 0,
	ProvenanceRuling:     1,
	ProvenancePrecedent:  2,
	ProvenanceKnowledge:  3,
	ProvenanceCustomer:   4,
	ProvenanceAI:         5,
}

// Priority returns the tie-break rank for p. Unknown sources sort last.
func (p Provenance) Priority() int {
	if v, ok := provenancePriority[p]; ok {
		return v
	}
	return len(provenancePriority)
}

// Locator places a code in the tariff hierarchy.
type Locator struct {
	Section    string `json:"section"`
	Chapter    string `json:"chapter"`
	Heading    string `json:"heading"`
	Subheading string `json:"subheading"`
}

// Bilingual holds the same text in English and Hebrew. Either side may be empty.
type Bilingual struct {
	EN string `json:"en,omitempty"`
	HE string `json:"he,omitempty"`
}

// Joined returns both languages separated by a newline.
func (b Bilingual) Joined() string {
	switch {
	case b.EN == "":
		return b.HE
	case b.HE == "":
		return b.EN
	default:
		return b.EN + "\n" + b.HE
	}
}

// Candidate is one proposed classification code subject to elimination.
type Candidate struct {
	Code             string     `json:"code"`
	Confidence       float64    `json:"confidence"`
	Locator          Locator    `json:"locator"`
	Description      Bilingual  `json:"description"`
	Provenance       Provenance `json:"provenance"`
	Alive            bool       `json:"alive"`
	EliminatedReason string     `json:"eliminated_reason,omitempty"`
	EliminatedLevel  Level      `json:"eliminated_level,omitempty"`
}

// Eliminate marks the candidate dead. It reports false and changes nothing
// if the candidate was already eliminated.
func (c *Candidate) Eliminate(level Level, reason string) bool {
	if !c.Alive {
		return false
	}
	c.Alive = false
	c.EliminatedLevel = level
	c.EliminatedReason = reason
	return true
}

// ProductInfo carries the normalized attributes of the product being classified.
type ProductInfo struct {
	Material      string    `json:"material"`
	Form          string    `json:"form"`
	IntendedUse   string    `json:"intended_use"`
	OriginCountry string    `json:"origin_country"`
	Description   Bilingual `json:"description"`
}

// Text returns every free-text attribute joined for keyword matching.
func (p ProductInfo) Text() string {
	out := p.Description.Joined()
	for _, s := range []string{p.Material, p.Form, p.IntendedUse} {
		if s != "" {
			out += "\n" + s
		}
	}
	return out
}
