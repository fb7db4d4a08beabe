package crosscheck

import (
	"fmt"
	"sort"
	"strings"

	"github.com/sells-group/tariff-cli/internal/hscode"
	"github.com/sells-group/tariff-cli/internal/model"
)

// PrimaryVoter names the elimination winner among the voters.
const PrimaryVoter = "primary"

type voter struct {
	name string
	code string
}

// Decide computes the agreement tier over the primary code and the oracle
// votes. Tiers are tested in a fixed order with NoResponse first; FullMatch
// and HeadingMatch need every oracle to have answered.
func Decide(primary string, votes []model.ModelVote) model.CrossCheckResult {
	res := model.CrossCheckResult{PrimaryCode: primary, Votes: votes}

	voters := []voter{{name: PrimaryVoter, code: primary}}
	for _, v := range votes {
		if v.Responded() {
			voters = append(voters, voter{name: v.Oracle, code: v.Code})
		}
	}

	switch {
	case len(voters) == 1:
		res.Tier = model.TierNoResponse
		res.Rationale = "No oracle responded; the classification stands on elimination alone."
	case len(voters) == len(votes)+1 && allEqual(voters, hscode.Subheading):
		res.Tier = model.TierFullMatch
		res.ConsensusCode = consensus(voters, primary)
		res.Rationale = "All four voters agree on the six-digit subheading."
	case len(voters) == len(votes)+1 && allEqual(voters, hscode.Heading):
		res.Tier = model.TierHeadingMatch
		res.ConsensusCode = consensus(voters, primary)
		res.Rationale = "All four voters agree on the heading but differ below it."
	default:
		group, heading := majority(voters)
		if group == nil {
			res.Tier = model.TierDisagreement
			res.Rationale = "No heading received two or more votes; the voters disagree."
			break
		}
		res.Tier = model.TierMajority
		res.ConsensusCode = consensus(group, primary)
		in := make(map[string]bool, len(group))
		for _, v := range group {
			in[v.name] = true
		}
		for _, v := range voters {
			if !in[v.name] {
				res.Minority = append(res.Minority, v.name)
			}
		}
		res.Rationale = fmt.Sprintf("%d of %d voters share heading %s; minority: %s.",
			len(group), len(voters), heading, minorityText(res.Minority))
	}

	res.ConfidenceAdjustment = res.Tier.Adjustment()
	return res
}

func allEqual(vs []voter, key func(string) string) bool {
	k := key(vs[0].code)
	for _, v := range vs[1:] {
		if key(v.code) != k {
			return false
		}
	}
	return k != ""
}

// majority returns the largest heading group with at least two voters. Ties
// go to the group holding the primary, then to the lower heading.
func majority(vs []voter) ([]voter, string) {
	groups := make(map[string][]voter)
	for _, v := range vs {
		h := hscode.Heading(v.code)
		groups[h] = append(groups[h], v)
	}

	headings := make([]string, 0, len(groups))
	for h := range groups {
		headings = append(headings, h)
	}
	sort.Strings(headings)

	primaryHeading := hscode.Heading(vs[0].code)
	best := ""
	for _, h := range headings {
		n := len(groups[h])
		if n < 2 {
			continue
		}
		switch {
		case best == "":
			best = h
		case n > len(groups[best]):
			best = h
		case n == len(groups[best]) && h == primaryHeading:
			best = h
		}
	}
	if best == "" {
		return nil, ""
	}
	return groups[best], best
}

// consensus returns the most common code in the group. Ties go to the
// primary code when it is tied, otherwise to the lower code.
func consensus(vs []voter, primary string) string {
	counts := make(map[string]int)
	for _, v := range vs {
		counts[v.code]++
	}
	best := ""
	for code, n := range counts {
		switch {
		case best == "" || n > counts[best]:
			best = code
		case n == counts[best] && code == primary:
			best = code
		case n == counts[best] && best != primary && code < best:
			best = code
		}
	}
	return best
}

func minorityText(names []string) string {
	if len(names) == 0 {
		return "none"
	}
	return strings.Join(names, ", ")
}
