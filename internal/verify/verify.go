// Package verify checks a finalized classification against reference text
// and regulatory records and raises compliance flags. It makes no oracle
// calls.
package verify

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"go.uber.org/zap"

	"github.com/sells-group/tariff-cli/internal/budget"
	"github.com/sells-group/tariff-cli/internal/hscode"
	"github.com/sells-group/tariff-cli/internal/model"
)

// Config holds the thresholds and risk tables.
type Config struct {
	SimilarityThreshold float64  `mapstructure:"similarity_threshold"`
	AntidumpingChapters []string `mapstructure:"antidumping_chapters"`
	AntidumpingOrigins  []string `mapstructure:"antidumping_origins"`
	VerifiedBonus       float64  `mapstructure:"verified_bonus"`
	UnverifiedPenalty   float64  `mapstructure:"unverified_penalty"`
}

// DefaultConfig returns the built-in thresholds and risk tables.
func DefaultConfig() Config {
	return Config{
		SimilarityThreshold: 0.3,
		AntidumpingChapters: []string{"39", "40", "48", "69", "70", "72", "73", "76"},
		AntidumpingOrigins:  []string{"CN", "VN", "TR", "IN", "ID", "TH", "MY", "UA", "KR", "TW"},
		VerifiedBonus:       0.05,
		UnverifiedPenalty:   -0.05,
	}
}

// Input is one finalized classification.
type Input struct {
	Code        string
	Description model.Bilingual
	Origin      string
	FTAEligible bool
}

// Engine runs the verification phases.
type Engine struct {
	cfg Config
}

// NewEngine creates an engine. A zero threshold takes the default.
func NewEngine(cfg Config) *Engine {
	if cfg.SimilarityThreshold <= 0 {
		cfg.SimilarityThreshold = DefaultConfig().SimilarityThreshold
	}
	return &Engine{cfg: cfg}
}

// Verify runs the bilingual match, knowledge and flagging phases for in.
func (e *Engine) Verify(ctx context.Context, cache *Cache, in Input) *model.Verification {
	v := &model.Verification{Code: in.Code, Flags: []model.VerificationFlag{}}

	ref, err := cache.Code(ctx, in.Code)
	switch {
	case err != nil:
		v.Flags = append(v.Flags, lookupFlag(err, "reference text"))
	case ref == nil:
		v.Flags = append(v.Flags, model.VerificationFlag{
			Type: model.FlagUnverified, Severity: model.SeverityCritical,
			Message: fmt.Sprintf("%s is not in the code book", hscode.Display(in.Code)),
		})
	default:
		v.Match = Match(ref.Description, in.Description, e.cfg.SimilarityThreshold)
		if !v.Match.Matched {
			v.Flags = append(v.Flags, model.VerificationFlag{
				Type: model.FlagUnverified, Severity: model.SeverityWarning,
				Message: fmt.Sprintf("description does not match the reference text of %s (EN %.2f, HE %.2f)",
					hscode.Display(in.Code), v.Match.SimilarityEN, v.Match.SimilarityHE),
			})
		}
	}

	rec, err := cache.Regulatory(ctx, in.Code)
	switch {
	case err != nil:
		v.Knowledge = model.KnowledgeCheck{Note: "regulatory lookup skipped: " + err.Error()}
		v.Flags = append(v.Flags, lookupFlag(err, "regulatory record"))
	case rec == nil:
		v.Knowledge = model.KnowledgeCheck{
			ConfidenceAdjustment: e.cfg.UnverifiedPenalty,
			Note:                 "no regulatory record for this code",
		}
	default:
		v.Knowledge = model.KnowledgeCheck{
			Verified:             true,
			ConfidenceAdjustment: e.cfg.VerifiedBonus,
			Record:               rec,
			Note:                 fmt.Sprintf("%d directive(s) on record", len(rec.Directives)),
		}
	}

	v.Flags = append(v.Flags, e.Flags(in, rec)...)

	zap.L().Debug("verify: complete",
		zap.String("code", in.Code),
		zap.Bool("bilingual_match", v.Match.Matched),
		zap.Bool("verified", v.Knowledge.Verified),
		zap.Int("flags", len(v.Flags)),
	)
	return v
}

func lookupFlag(err error, what string) model.VerificationFlag {
	if budget.IsExhausted(err) {
		return model.VerificationFlag{
			Type: model.FlagBudgetExhausted, Severity: model.SeverityWarning,
			Message: fmt.Sprintf("%s not checked: run budget exhausted", what),
		}
	}
	return model.VerificationFlag{
		Type: model.FlagUnverified, Severity: model.SeverityWarning,
		Message: fmt.Sprintf("%s lookup failed: %v", what, err),
	}
}

// Flags applies the proactive flag rules. rec may be nil.
func (e *Engine) Flags(in Input, rec *model.RegulatoryRecord) []model.VerificationFlag {
	var flags []model.VerificationFlag
	origin := strings.ToUpper(strings.TrimSpace(in.Origin))
	chapter := hscode.Chapter(in.Code)

	if origin != "" && slices.Contains(e.cfg.AntidumpingChapters, chapter) && slices.Contains(e.cfg.AntidumpingOrigins, origin) {
		flags = append(flags, model.VerificationFlag{
			Type: model.FlagAntidumping, Severity: model.SeverityCritical,
			Message: fmt.Sprintf("chapter %s goods of %s origin may carry antidumping or safeguard duty", chapter, origin),
		})
	}

	if rec != nil && rec.RequiresStandard {
		by := strings.Join(rec.Authorities, ", ")
		if by == "" {
			by = "the standards authority"
		}
		flags = append(flags, model.VerificationFlag{
			Type: model.FlagStandard, Severity: model.SeverityWarning,
			Message: "conformity testing required before release (" + by + ")",
		})
	}

	if in.FTAEligible {
		msg := "trade-agreement eligibility asserted; a valid proof of origin is required"
		if rec != nil && origin != "" && slices.Contains(rec.FTACountries, origin) {
			msg = fmt.Sprintf("preferential rate may apply for %s origin; a valid proof of origin is required", origin)
		}
		flags = append(flags, model.VerificationFlag{Type: model.FlagFTA, Severity: model.SeverityInfo, Message: msg})
	}

	if rec != nil {
		if f, ok := conflict(rec.Directives); ok {
			flags = append(flags, f)
		}
	}
	return flags
}

// conflict detects directives that cannot all hold: an exemption next to a
// requirement, or a prohibition next to a permit or license.
func conflict(ds []model.Directive) (model.VerificationFlag, bool) {
	byReq := make(map[string][]string)
	for _, d := range ds {
		byReq[d.Requirement] = append(byReq[d.Requirement], d.Authority)
	}

	if ex := byReq["exempt"]; len(ex) > 0 {
		for _, req := range []string{"permit", "license", "standard", "prohibited"} {
			if other := byReq[req]; len(other) > 0 {
				return model.VerificationFlag{
					Type: model.FlagConflict, Severity: model.SeverityWarning,
					Message: fmt.Sprintf("conflicting directives: exemption (%s) versus %s (%s)",
						strings.Join(ex, ", "), req, strings.Join(other, ", ")),
				}, true
			}
		}
	}
	if pr := byReq["prohibited"]; len(pr) > 0 {
		for _, req := range []string{"permit", "license"} {
			if other := byReq[req]; len(other) > 0 {
				return model.VerificationFlag{
					Type: model.FlagConflict, Severity: model.SeverityCritical,
					Message: fmt.Sprintf("conflicting directives: prohibition (%s) versus %s (%s)",
						strings.Join(pr, ", "), req, strings.Join(other, ", ")),
				}, true
			}
		}
	}
	return model.VerificationFlag{}, false
}
