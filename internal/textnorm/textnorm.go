// Package textnorm folds and tokenizes bilingual (English/Hebrew) product text.
package textnorm

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// hebrewPrefixes are single-letter prefixes that attach to Hebrew words
// (the, and, in, to, from, that, as).
const hebrewPrefixes = "הובלמשכ"

// Fold applies NFKC normalization and Unicode case folding, then collapses
// whitespace.
func Fold(s string) string {
	s = cases.Fold().String(norm.NFKC.String(s))
	return strings.Join(strings.Fields(s), " ")
}

// Tokens folds s and splits it on anything that is not a letter or digit.
// Hebrew niqqud marks are dropped.
func Tokens(s string) []string {
	folded := Fold(s)
	return strings.FieldsFunc(folded, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && !unicode.Is(unicode.Mn, r)
	})
}

// TokenSet returns the distinct tokens of s minus stop words.
func TokenSet(s string, stop map[string]bool) map[string]struct{} {
	out := make(map[string]struct{})
	for _, t := range Tokens(s) {
		t = stripMarks(t)
		if t == "" || stop[t] {
			continue
		}
		out[t] = struct{}{}
	}
	return out
}

func stripMarks(t string) string {
	return strings.Map(func(r rune) rune {
		if unicode.Is(unicode.Mn, r) {
			return -1
		}
		return r
	}, t)
}

// IsHebrew reports whether the token starts with a Hebrew letter.
func IsHebrew(t string) bool {
	r, _ := utf8.DecodeRuneInString(t)
	return r != utf8.RuneError && unicode.Is(unicode.Hebrew, r)
}

// Matcher answers keyword questions about one folded text.
type Matcher struct {
	tokens []string
}

// NewMatcher prepares text for repeated keyword lookups.
func NewMatcher(text string) *Matcher {
	toks := Tokens(text)
	for i := range toks {
		toks[i] = stripMarks(toks[i])
	}
	return &Matcher{tokens: toks}
}

// Has reports whether kw occurs as whole tokens. The last keyword word also
// matches its plural ("box" matches "boxes" but not "boxer"), and the first
// may carry one Hebrew prefix letter. Multi-word keywords must match
// consecutive tokens.
func (m *Matcher) Has(kw string) bool {
	kt := Tokens(kw)
	if len(kt) == 0 {
		return false
	}
	for i := 0; i+len(kt) <= len(m.tokens); i++ {
		ok := true
		for j, k := range kt {
			if !tokenMatches(m.tokens[i+j], stripMarks(k), j == 0, j == len(kt)-1) {
				ok = false
				break
			}
		}
		if ok {
			return true
		}
	}
	return false
}

func tokenMatches(t, k string, allowPrefix, allowPlural bool) bool {
	if sameWord(t, k, allowPlural) {
		return true
	}
	if !allowPrefix || !IsHebrew(t) {
		return false
	}
	r, size := utf8.DecodeRuneInString(t)
	if len(t) == size || !strings.ContainsRune(hebrewPrefixes, r) {
		return false
	}
	return sameWord(t[size:], k, allowPlural)
}

func sameWord(t, k string, allowPlural bool) bool {
	if t == k {
		return true
	}
	return allowPlural && (t == k+"s" || t == k+"es")
}

// First returns the first keyword in kws that occurs, or "".
func (m *Matcher) First(kws []string) string {
	for _, k := range kws {
		if m.Has(k) {
			return k
		}
	}
	return ""
}
