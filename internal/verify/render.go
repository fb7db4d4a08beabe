package verify

import (
	"fmt"
	"strings"

	"github.com/sells-group/tariff-cli/internal/hscode"
	"github.com/sells-group/tariff-cli/internal/model"
)

// Render writes every flag of v as plain text, most severe first within the
// original order of each severity.
func Render(v *model.Verification) string {
	if v == nil {
		return ""
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Verification for %s: ", hscode.Display(v.Code))
	switch {
	case v.Knowledge.Verified:
		b.WriteString("verified against regulatory records")
	default:
		b.WriteString("not verified against regulatory records")
	}
	if v.Match.Matched {
		b.WriteString("; description matches the code book")
	}
	b.WriteString("\n")

	for _, sev := range []model.Severity{model.SeverityCritical, model.SeverityWarning, model.SeverityInfo} {
		for _, f := range v.Flags {
			if f.Severity == sev {
				fmt.Fprintf(&b, "- [%s] %s: %s\n", strings.ToUpper(string(f.Severity)), f.Type, f.Message)
			}
		}
	}
	for _, f := range v.Flags {
		if f.Severity != model.SeverityCritical && f.Severity != model.SeverityWarning && f.Severity != model.SeverityInfo {
			fmt.Fprintf(&b, "- [%s] %s: %s\n", strings.ToUpper(string(f.Severity)), f.Type, f.Message)
		}
	}
	return b.String()
}
