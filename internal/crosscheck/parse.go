package crosscheck

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/sells-group/tariff-cli/internal/hscode"
	"github.com/sells-group/tariff-cli/internal/model"
	"github.com/sells-group/tariff-cli/internal/oracle"
)

const rawSnippetLen = 240

// codePattern finds a dotted or plain code of at least six digits.
var codePattern = regexp.MustCompile(`\b(\d{4})[.\s]?(\d{2})(?:[.\s]?(\d{2,4}))?\b`)

type reply struct {
	HSCode     string          `json:"hs_code"`
	Code       string          `json:"code"`
	Confidence json.RawMessage `json:"confidence"`
	Reason     string          `json:"reason"`
}

// parseVote fills vote from an oracle reply: strict JSON first, then the
// first code-shaped token in the text, otherwise an unparseable no-vote.
func parseVote(vote model.ModelVote, text string) model.ModelVote {
	vote.Raw = snippet(text)

	var r reply
	if err := oracle.DecodeJSON(text, &r); err == nil {
		raw := r.HSCode
		if raw == "" {
			raw = r.Code
		}
		if code, err := hscode.Normalize(raw); err == nil && len(digitsOnly(raw)) >= 6 {
			vote.Code = code
			vote.Confidence = parseConfidence(r.Confidence)
			vote.Reason = strings.TrimSpace(r.Reason)
			return vote
		}
	}

	for _, m := range codePattern.FindAllStringSubmatch(text, -1) {
		if code, err := hscode.Normalize(m[1] + m[2] + m[3]); err == nil {
			vote.Code = code
			vote.Reason = "code extracted from free text"
			return vote
		}
	}

	vote.Error = model.VoteErrUnparseable
	return vote
}

// parseConfidence accepts 0-1 fractions, 0-100 percentages and quoted numbers.
func parseConfidence(raw json.RawMessage) float64 {
	s := strings.Trim(strings.TrimSpace(string(raw)), `"%`)
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f < 0 {
		return 0
	}
	if f > 1 {
		f /= 100
	}
	if f > 1 {
		f = 1
	}
	return f
}

func digitsOnly(s string) string {
	return strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, s)
}

func snippet(s string) string {
	s = strings.TrimSpace(s)
	if utf8.RuneCountInString(s) <= rawSnippetLen {
		return s
	}
	return string([]rune(s)[:rawSnippetLen]) + "…"
}
