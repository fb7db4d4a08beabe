// Package hscode normalizes, locates and formats tariff classification codes.
//
// Every code crosses package boundaries in one canonical form: ten digits,
// right-padded with zeros, with no separators and no check digit.
package hscode

import (
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/tariff-cli/internal/model"
)

// CanonicalLength is the digit count of a normalized code.
const CanonicalLength = 10

var (
	// ErrEmpty is returned for blank input.
	ErrEmpty = eris.New("hscode: empty code")
	// ErrMalformed is returned when the input is not a digit code of 4-10 digits.
	ErrMalformed = eris.New("hscode: malformed code")
	// ErrUnknownChapter is returned when the first two digits are not a chapter.
	ErrUnknownChapter = eris.New("hscode: unknown chapter")
)

// Normalize converts raw input such as "7326.9000", "73 26 90 00" or
// "8510.100000/4" into the canonical ten-digit form.
func Normalize(raw string) (string, error) {
	code := strings.TrimSpace(raw)
	if code == "" {
		return "", ErrEmpty
	}
	// Drop the trailing check digit ("/4").
	if idx := strings.Index(code, "/"); idx >= 0 {
		code = code[:idx]
	}

	var b strings.Builder
	for _, r := range code {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '.' || r == ' ' || r == '-':
		default:
			return "", eris.Wrapf(ErrMalformed, "%q", raw)
		}
	}
	digits := b.String()
	if len(digits) < 4 || len(digits) > CanonicalLength {
		return "", eris.Wrapf(ErrMalformed, "%q has %d digits", raw, len(digits))
	}
	if _, ok := chapterSections[digits[:2]]; !ok {
		return "", eris.Wrapf(ErrUnknownChapter, "%q", raw)
	}
	return digits + strings.Repeat("0", CanonicalLength-len(digits)), nil
}

// MustNormalize is Normalize for trusted literals. It panics on bad input.
func MustNormalize(raw string) string {
	code, err := Normalize(raw)
	if err != nil {
		panic(err)
	}
	return code
}

// Chapter returns the two-digit chapter of a canonical code.
func Chapter(code string) string { return prefix(code, 2) }

// Heading returns the four-digit heading of a canonical code.
func Heading(code string) string { return prefix(code, 4) }

// Subheading returns the six-digit subheading of a canonical code.
func Subheading(code string) string { return prefix(code, 6) }

// Section returns the roman-numeral section holding the code's chapter.
func Section(code string) string {
	return chapterSections[Chapter(code)]
}

// IsResidual reports whether the heading is a residual "other articles"
// heading, which never needs a positive keyword match.
func IsResidual(code string) bool {
	return residualHeadings[Heading(code)]
}

// SameHeading reports whether two canonical codes share a four-digit heading.
func SameHeading(a, b string) bool {
	h := Heading(a)
	return h != "" && h == Heading(b)
}

// Display renders a canonical code as "XXXX.XX.XXXX". Input that does not
// normalize is returned unchanged.
func Display(code string) string {
	n, err := Normalize(code)
	if err != nil {
		return code
	}
	return n[:4] + "." + n[4:6] + "." + n[6:]
}

func prefix(code string, n int) string {
	if len(code) < n {
		return ""
	}
	return code[:n]
}

// Locate fills the hierarchy locator for a canonical code.
func Locate(code string) model.Locator {
	return model.Locator{
		Section:    Section(code),
		Chapter:    Chapter(code),
		Heading:    Heading(code),
		Subheading: Subheading(code),
	}
}
