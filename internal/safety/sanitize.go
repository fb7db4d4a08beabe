package safety

import (
	"regexp"
	"slices"
	"strings"
)

// DefaultFallback is appended to sanitized text.
const DefaultFallback = "For any further question about this classification, reply to this message and a licensed customs broker will follow up."

// DefaultPhrases are hedging phrases that must not appear in a final answer.
var DefaultPhrases = []string{
	"I'm not sure",
	"I am not sure",
	"I cannot determine",
	"I can't determine",
	"I don't know",
	"it is unclear",
	"it's unclear",
	"hard to say",
	"difficult to determine",
	"cannot be certain",
	"may or may not",
	"unable to classify",
	"consult a customs broker",
	"אני לא בטוח",
	"אני לא בטוחה",
	"איני בטוח",
	"לא ניתן לקבוע",
	"קשה לקבוע",
	"אינני יודע",
	"לא ברור",
	"יש להתייעץ עם עמיל מכס",
}

// Sanitized is the outcome of one sanitizer pass.
type Sanitized struct {
	Text        string   `json:"text"`
	WasModified bool     `json:"was_modified"`
	Found       []string `json:"found,omitempty"`
}

type phrase struct {
	text string
	re   *regexp.Regexp
}

// Sanitizer strips hedging phrases from generated explanations.
type Sanitizer struct {
	phrases  []phrase
	fallback string
}

var (
	multiSpace    = regexp.MustCompile(`[ \t]{2,}`)
	spaceBeforeP  = regexp.MustCompile(`[ \t]+([.,;:!?])`)
	repeatedPunct = regexp.MustCompile(`([.,;:])\s*([.,;:])`)
)

// NewSanitizer creates a sanitizer. Empty phrases or fallback take the
// defaults.
func NewSanitizer(phrases []string, fallback string) *Sanitizer {
	if len(phrases) == 0 {
		phrases = DefaultPhrases
	}
	if strings.TrimSpace(fallback) == "" {
		fallback = DefaultFallback
	}
	s := &Sanitizer{fallback: fallback}
	for _, p := range phrases {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		pat := strings.ReplaceAll(regexp.QuoteMeta(p), "'", "['’]")
		s.phrases = append(s.phrases, phrase{text: p, re: regexp.MustCompile(`(?i)` + pat)})
	}
	// Longest first, so a phrase is never left half removed by one it contains.
	slices.SortStableFunc(s.phrases, func(a, b phrase) int { return len(b.text) - len(a.text) })
	return s
}

// Sanitize removes every hedging phrase from text. When anything was
// removed the fallback instruction is appended, once.
func (s *Sanitizer) Sanitize(text string) Sanitized {
	out := text
	var found []string
	for _, p := range s.phrases {
		if p.re.MatchString(out) {
			found = append(found, p.text)
			out = p.re.ReplaceAllString(out, "")
		}
	}
	if len(found) == 0 {
		return Sanitized{Text: text}
	}

	out = multiSpace.ReplaceAllString(out, " ")
	out = spaceBeforeP.ReplaceAllString(out, "$1")
	out = repeatedPunct.ReplaceAllString(out, "$1")
	out = strings.TrimLeft(strings.TrimSpace(out), ".,;: ")
	if !strings.Contains(out, s.fallback) {
		if out != "" {
			out += "\n\n"
		}
		out += s.fallback
	}
	return Sanitized{Text: out, WasModified: true, Found: found}
}
