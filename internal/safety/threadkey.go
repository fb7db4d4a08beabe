// Package safety holds the deterministic guards around a classification
// run: the per-conversation loop breaker, the code validation gate and the
// output sanitizer.
package safety

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"strings"

	"github.com/sells-group/tariff-cli/internal/textnorm"
)

var (
	// Reply and forward markers in English, Hebrew, German, French and the
	// Nordic languages, optionally numbered ("Re[2]:").
	replyPrefix = regexp.MustCompile(`(?i)^\s*(re|fwd?|fw|tr|aw|wg|sv|vs|vb|antw|réf|השב|הועבר|תשובה|תגובה)\s*(\[\d+\])?\s*:\s*`)

	trackingIDs = []*regexp.Regexp{
		regexp.MustCompile(`\[[A-Za-z]+-\d+\]`),
		regexp.MustCompile(`\[#\d+\]`),
		regexp.MustCompile(`(?i)\(\s*ticket\s*#\s*\d+\s*\)`),
	}
)

// ThreadKey derives the stable key of a conversation. Reply and forward
// prefixes and tracking ids are stripped from subject before folding. When
// nothing is left the key is derived from messageID. Both empty yields
// ("", false): the conversation is untracked.
func ThreadKey(subject, messageID string) (string, bool) {
	if s := normalizeSubject(subject); s != "" {
		return "subj:" + s, true
	}
	if id := strings.TrimSpace(messageID); id != "" {
		sum := sha256.Sum256([]byte(id))
		return "msg:" + hex.EncodeToString(sum[:])[:16], true
	}
	return "", false
}

func normalizeSubject(subject string) string {
	s := subject
	for _, re := range trackingIDs {
		s = re.ReplaceAllString(s, " ")
	}
	for {
		stripped := replyPrefix.ReplaceAllString(s, "")
		if stripped == s {
			break
		}
		s = stripped
	}
	return textnorm.Fold(s)
}
