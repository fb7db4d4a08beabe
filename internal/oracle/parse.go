package oracle

import (
	"encoding/json"
	"strings"

	"github.com/rotisserie/eris"
)

// ExtractJSON pulls the JSON object out of a model reply: code fences are
// dropped and the text is cut to the outermost braces. Text without braces is
// returned trimmed.
func ExtractJSON(text string) string {
	text = strings.TrimSpace(text)

	if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```")
		text = strings.TrimPrefix(text, "json")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
	}

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start >= 0 && end > start {
		text = text[start : end+1]
	}
	return strings.TrimSpace(text)
}

// DecodeJSON unmarshals the JSON object embedded in text into v.
func DecodeJSON(text string, v any) error {
	body := ExtractJSON(text)
	if !strings.HasPrefix(body, "{") {
		return eris.New("oracle: reply contains no JSON object")
	}
	if err := json.Unmarshal([]byte(body), v); err != nil {
		return eris.Wrap(err, "oracle: decode reply")
	}
	return nil
}
