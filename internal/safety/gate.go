package safety

import (
	"context"
	"fmt"

	"github.com/sells-group/tariff-cli/internal/budget"
	"github.com/sells-group/tariff-cli/internal/hscode"
	"github.com/sells-group/tariff-cli/internal/model"
)

// CodeLookup resolves a canonical code. A nil record with a nil error
// means the code does not exist.
type CodeLookup interface {
	Code(ctx context.Context, code string) (*model.CodeRecord, error)
}

// Gate normalizes codes and checks them against the code store.
type Gate struct {
	codes CodeLookup
}

// NewGate creates a code validation gate.
func NewGate(codes CodeLookup) *Gate {
	return &Gate{codes: codes}
}

// Check validates one code. It returns the canonical code and, when the
// code cannot be accepted as-is, the issue found.
func (g *Gate) Check(ctx context.Context, raw string) (string, *model.CodeIssue) {
	code, err := hscode.Normalize(raw)
	if err != nil {
		return "", &model.CodeIssue{Code: raw, Blocking: true, Message: fmt.Sprintf("malformed code %q", raw)}
	}

	rec, err := g.codes.Code(ctx, code)
	switch {
	case err != nil && budget.IsExhausted(err):
		return code, &model.CodeIssue{Code: code, Message: hscode.Display(code) + " not checked against the code book: run budget exhausted"}
	case err != nil:
		return code, &model.CodeIssue{Code: code, Message: fmt.Sprintf("%s not checked against the code book: %v", hscode.Display(code), err)}
	case rec == nil:
		return code, &model.CodeIssue{Code: code, Blocking: true, Message: hscode.Display(code) + " does not exist in the code book"}
	}
	return code, nil
}

// Candidates validates every candidate. Candidates with blocking issues are
// dropped; the rest come back with canonical codes.
func (g *Gate) Candidates(ctx context.Context, cands []model.Candidate) ([]model.Candidate, []model.CodeIssue) {
	out := make([]model.Candidate, 0, len(cands))
	var issues []model.CodeIssue
	for _, c := range cands {
		code, issue := g.Check(ctx, c.Code)
		if issue != nil {
			issues = append(issues, *issue)
			if issue.Blocking {
				continue
			}
		}
		c.Code = code
		out = append(out, c)
	}
	return out, issues
}
