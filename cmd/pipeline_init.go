package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/tariff-cli/internal/config"
	"github.com/sells-group/tariff-cli/internal/cost"
	"github.com/sells-group/tariff-cli/internal/crosscheck"
	"github.com/sells-group/tariff-cli/internal/elimination"
	"github.com/sells-group/tariff-cli/internal/monitoring"
	"github.com/sells-group/tariff-cli/internal/oracle"
	"github.com/sells-group/tariff-cli/internal/pipeline"
	"github.com/sells-group/tariff-cli/internal/resilience"
	"github.com/sells-group/tariff-cli/internal/safety"
	"github.com/sells-group/tariff-cli/internal/store"
	"github.com/sells-group/tariff-cli/internal/verify"
	anthropicpkg "github.com/sells-group/tariff-cli/pkg/anthropic"
	"github.com/sells-group/tariff-cli/pkg/gemini"
	"github.com/sells-group/tariff-cli/pkg/notion"
	"github.com/sells-group/tariff-cli/pkg/perplexity"
)

// pipelineEnv holds the store and the pipeline needed by the classify,
// batch and serve commands.
type pipelineEnv struct {
	Store    store.Store
	Pipeline *pipeline.Pipeline
	Breakers *resilience.Breakers
}

// Close releases resources held by the pipeline environment.
func (pe *pipelineEnv) Close() {
	if pe.Store != nil {
		_ = pe.Store.Close()
	}
}

// initStore opens the configured store and applies migrations.
func initStore(ctx context.Context) (store.Store, error) {
	st, err := store.Open(ctx, cfg.Store)
	if err != nil {
		return nil, eris.Wrap(err, "open store")
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}
	return st, nil
}

// oracleSet is the oracles built from config. Narrow is nil when no
// Anthropic key is configured.
type oracleSet struct {
	Cross  []oracle.Oracle
	Narrow oracle.Oracle
}

// buildOracles creates one guarded oracle per provider. Providers without a
// key are kept as unconfigured oracles so cross-check counts them as absent.
func buildOracles(ctx context.Context, c *config.Config, breakers *resilience.Breakers) (*oracleSet, error) {
	calc := cost.NewCalculator(c.Pricing)
	policy := resilience.RetryPolicy{Attempts: c.Resilience.RetryAttempts}
	guard := func(o oracle.Oracle) oracle.Oracle {
		var limiter *rate.Limiter
		if c.CrossCheck.RatePerSec > 0 {
			limiter = rate.NewLimiter(rate.Limit(c.CrossCheck.RatePerSec), max(c.CrossCheck.Burst, 1))
		}
		return oracle.Guard(o, limiter, breakers.For(o.Name()), policy)
	}

	set := &oracleSet{}

	if c.Anthropic.Key != "" {
		client := anthropicpkg.NewClient(c.Anthropic.Key)
		set.Cross = append(set.Cross, guard(oracle.NewClaude(client, c.Anthropic.Model, calc)))
		set.Narrow = oracle.Guard(oracle.NewClaude(client, c.Anthropic.NarrowModel, calc), nil, breakers.For("claude-narrow"), policy)
	} else {
		zap.L().Warn("anthropic key not set, narrowing and candidate search disabled")
		set.Cross = append(set.Cross, oracle.Unconfigured("claude"))
	}

	if c.Gemini.Key != "" {
		var opts []gemini.Option
		if c.Gemini.BaseURL != "" {
			opts = append(opts, gemini.WithBaseURL(c.Gemini.BaseURL))
		}
		client, err := gemini.NewClient(ctx, c.Gemini.Key, c.Gemini.Model, opts...)
		if err != nil {
			return nil, eris.Wrap(err, "create gemini client")
		}
		set.Cross = append(set.Cross, guard(oracle.NewGemini(client, c.Gemini.Model, calc)))
	} else {
		set.Cross = append(set.Cross, oracle.Unconfigured("gemini"))
	}

	if c.Perplexity.Key != "" {
		client := perplexity.NewClient(c.Perplexity.Key,
			perplexity.WithBaseURL(c.Perplexity.BaseURL),
			perplexity.WithModel(c.Perplexity.Model),
		)
		set.Cross = append(set.Cross, guard(oracle.NewPerplexity(client, calc)))
	} else {
		set.Cross = append(set.Cross, oracle.Unconfigured("perplexity"))
	}

	return set, nil
}

// buildPipeline wires every stage from c on top of st.
func buildPipeline(c *config.Config, st store.Store, oracles *oracleSet) (*pipeline.Pipeline, error) {
	rules, err := elimination.LoadRules(c.Elimination.RulesPath)
	if err != nil {
		return nil, err
	}

	var elimOpts []elimination.Option
	if oracles.Narrow != nil {
		elimOpts = append(elimOpts,
			elimination.WithNarrower(elimination.NewOracleNarrower(oracles.Narrow)),
			elimination.WithChallenger(elimination.NewChallenger(c.Elimination.ChallengeThreshold, oracles.Narrow)),
		)
	} else {
		elimOpts = append(elimOpts, elimination.WithChallenger(elimination.NewChallenger(c.Elimination.ChallengeThreshold, nil)))
	}
	eliminator := elimination.NewEngine(rules, elimOpts...)

	cc := crosscheck.NewEngine(oracles.Cross, crosscheck.Config{
		Timeout:  time.Duration(c.CrossCheck.TimeoutSecs) * time.Second,
		MaxItems: c.CrossCheck.MaxItems,
	}, st)

	phrases := c.Sanitizer.Phrases
	if len(phrases) == 0 {
		phrases = safety.DefaultPhrases
	}

	opts := []pipeline.Option{
		pipeline.WithAudit(st),
		pipeline.WithNotifier(monitoring.NewAlerter(c.Monitoring)),
	}
	if oracles.Narrow != nil {
		opts = append(opts, pipeline.WithCandidateSource(pipeline.NewOracleSource(oracles.Narrow, pipeline.DefaultMaxCandidates)))
	}
	if c.Notion.Token != "" && c.Notion.EscalationDB != "" {
		opts = append(opts, pipeline.WithEscalationSink(pipeline.NewNotionSink(notion.NewClient(c.Notion.Token, notion.WithRateLimit(c.Notion.RatePerSec)), c.Notion.EscalationDB)))
	} else {
		zap.L().Debug("notion escalation queue not configured, escalations stay in run results")
	}

	return pipeline.New(
		pipeline.Config{
			LimitUSD:        c.Budget.LimitUSD,
			SafetyMarginUSD: c.Budget.SafetyMarginUSD,
			StoreReadUSD:    c.Pricing.StoreRead,
		},
		st, st,
		safety.NewLoopBreaker(st, c.Loop.MaxAttempts),
		eliminator,
		cc,
		verify.NewEngine(c.Verify),
		safety.NewSanitizer(phrases, c.Sanitizer.Fallback),
		opts...,
	), nil
}

// initPipeline validates config for mode, opens the store and builds the
// Pipeline. Callers should defer env.Close().
func initPipeline(ctx context.Context, mode string) (*pipelineEnv, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}

	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}

	breakers := resilience.NewBreakers(resilience.BreakerConfig{
		Failures: cfg.Resilience.BreakerFailures,
		Cooldown: time.Duration(cfg.Resilience.BreakerCooldownSecs) * time.Second,
		Counts:   resilience.IsTransient,
	})

	oracles, err := buildOracles(ctx, cfg, breakers)
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	p, err := buildPipeline(cfg, st, oracles)
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	return &pipelineEnv{Store: st, Pipeline: p, Breakers: breakers}, nil
}
