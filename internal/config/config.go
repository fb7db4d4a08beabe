// Package config loads tariff-cli configuration from config.yaml, TARIFF_*
// environment variables and built-in defaults.
package config

import (
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/sells-group/tariff-cli/internal/cost"
	"github.com/sells-group/tariff-cli/internal/safety"
	"github.com/sells-group/tariff-cli/internal/store"
	"github.com/sells-group/tariff-cli/internal/verify"
)

// Config holds the full application configuration.
type Config struct {
	Store       store.Config      `yaml:"store" mapstructure:"store"`
	Anthropic   AnthropicConfig   `yaml:"anthropic" mapstructure:"anthropic"`
	Gemini      GeminiConfig      `yaml:"gemini" mapstructure:"gemini"`
	Perplexity  PerplexityConfig  `yaml:"perplexity" mapstructure:"perplexity"`
	Notion      NotionConfig      `yaml:"notion" mapstructure:"notion"`
	Monitoring  MonitoringConfig  `yaml:"monitoring" mapstructure:"monitoring"`
	Pricing     cost.Rates        `yaml:"pricing" mapstructure:"pricing"`
	Budget      BudgetConfig      `yaml:"budget" mapstructure:"budget"`
	Elimination EliminationConfig `yaml:"elimination" mapstructure:"elimination"`
	CrossCheck  CrossCheckConfig  `yaml:"crosscheck" mapstructure:"crosscheck"`
	Verify      verify.Config     `yaml:"verify" mapstructure:"verify"`
	Loop        LoopConfig        `yaml:"loop" mapstructure:"loop"`
	Sanitizer   SanitizerConfig   `yaml:"sanitizer" mapstructure:"sanitizer"`
	Resilience  ResilienceConfig  `yaml:"resilience" mapstructure:"resilience"`
	Batch       BatchConfig       `yaml:"batch" mapstructure:"batch"`
	Server      ServerConfig      `yaml:"server" mapstructure:"server"`
	Log         LogConfig         `yaml:"log" mapstructure:"log"`
}

// AnthropicConfig holds Anthropic API settings. Model answers cross-checks;
// NarrowModel handles semantic narrowing and challenge reasoning.
type AnthropicConfig struct {
	Key         string `yaml:"key" mapstructure:"key"`
	Model       string `yaml:"model" mapstructure:"model"`
	NarrowModel string `yaml:"narrow_model" mapstructure:"narrow_model"`
}

// GeminiConfig holds Google Gemini API settings.
type GeminiConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	Model   string `yaml:"model" mapstructure:"model"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
}

// PerplexityConfig holds Perplexity API settings.
type PerplexityConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
	Model   string `yaml:"model" mapstructure:"model"`
}

// NotionConfig holds the escalation review queue settings.
type NotionConfig struct {
	Token        string  `yaml:"token" mapstructure:"token"`
	EscalationDB string  `yaml:"escalation_db" mapstructure:"escalation_db"`
	RatePerSec   float64 `yaml:"rate_per_sec" mapstructure:"rate_per_sec"`
}

// MonitoringConfig configures webhook alerting.
type MonitoringConfig struct {
	WebhookURL       string  `yaml:"webhook_url" mapstructure:"webhook_url"`
	CostThresholdUSD float64 `yaml:"cost_threshold_usd" mapstructure:"cost_threshold_usd"`
}

// BudgetConfig caps spend for one run.
type BudgetConfig struct {
	LimitUSD        float64 `yaml:"limit_usd" mapstructure:"limit_usd"`
	SafetyMarginUSD float64 `yaml:"safety_margin_usd" mapstructure:"safety_margin_usd"`
}

// EliminationConfig configures the elimination engine.
type EliminationConfig struct {
	ChallengeThreshold float64 `yaml:"challenge_threshold" mapstructure:"challenge_threshold"`
	RulesPath          string  `yaml:"rules_path" mapstructure:"rules_path"`
}

// CrossCheckConfig configures the consensus engine and oracle rate limits.
type CrossCheckConfig struct {
	MaxItems    int     `yaml:"max_items" mapstructure:"max_items"`
	TimeoutSecs int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	RatePerSec  float64 `yaml:"rate_per_sec" mapstructure:"rate_per_sec"`
	Burst       int     `yaml:"burst" mapstructure:"burst"`
}

// LoopConfig configures the loop breaker.
type LoopConfig struct {
	MaxAttempts int `yaml:"max_attempts" mapstructure:"max_attempts"`
}

// SanitizerConfig configures the output sanitizer. Empty Phrases keeps the
// built-in list.
type SanitizerConfig struct {
	Fallback string   `yaml:"fallback" mapstructure:"fallback"`
	Phrases  []string `yaml:"phrases" mapstructure:"phrases"`
}

// ResilienceConfig tunes retries and circuit breakers around oracles.
type ResilienceConfig struct {
	RetryAttempts       int `yaml:"retry_attempts" mapstructure:"retry_attempts"`
	BreakerFailures     int `yaml:"breaker_failures" mapstructure:"breaker_failures"`
	BreakerCooldownSecs int `yaml:"breaker_cooldown_secs" mapstructure:"breaker_cooldown_secs"`
}

// BatchConfig configures batch processing.
type BatchConfig struct {
	MaxConcurrent int `yaml:"max_concurrent" mapstructure:"max_concurrent"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("TARIFF")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	def := cost.DefaultRates()
	if len(cfg.Pricing.Anthropic) == 0 {
		cfg.Pricing.Anthropic = def.Anthropic
	}
	if len(cfg.Pricing.Gemini) == 0 {
		cfg.Pricing.Gemini = def.Gemini
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	vd := verify.DefaultConfig()
	rates := cost.DefaultRates()

	// Secrets have empty defaults so TARIFF_* variables bind.
	for _, k := range []string{"anthropic.key", "gemini.key", "perplexity.key", "notion.token", "notion.escalation_db",
		"monitoring.webhook_url", "store.database_url"} {
		v.SetDefault(k, "")
	}

	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.path", "tariff.db")
	v.SetDefault("anthropic.model", "claude-sonnet-4-5-20250929")
	v.SetDefault("anthropic.narrow_model", "claude-haiku-4-5-20251001")
	v.SetDefault("gemini.model", "gemini-2.5-flash")
	v.SetDefault("perplexity.base_url", "https://api.perplexity.ai")
	v.SetDefault("perplexity.model", "sonar")
	v.SetDefault("notion.rate_per_sec", 3)
	v.SetDefault("monitoring.cost_threshold_usd", 0)
	v.SetDefault("pricing.perplexity.per_query", rates.Perplexity.PerQuery)
	v.SetDefault("pricing.perplexity.input", rates.Perplexity.Input)
	v.SetDefault("pricing.perplexity.output", rates.Perplexity.Output)
	v.SetDefault("pricing.store_read", rates.StoreRead)
	v.SetDefault("budget.limit_usd", 2.0)
	v.SetDefault("budget.safety_margin_usd", 0.1)
	v.SetDefault("elimination.challenge_threshold", 30)
	v.SetDefault("elimination.rules_path", "")
	v.SetDefault("crosscheck.max_items", 3)
	v.SetDefault("crosscheck.timeout_secs", 30)
	v.SetDefault("crosscheck.rate_per_sec", 2)
	v.SetDefault("crosscheck.burst", 2)
	v.SetDefault("verify.similarity_threshold", vd.SimilarityThreshold)
	v.SetDefault("verify.antidumping_chapters", vd.AntidumpingChapters)
	v.SetDefault("verify.antidumping_origins", vd.AntidumpingOrigins)
	v.SetDefault("verify.verified_bonus", vd.VerifiedBonus)
	v.SetDefault("verify.unverified_penalty", vd.UnverifiedPenalty)
	v.SetDefault("loop.max_attempts", safety.DefaultMaxAttempts)
	v.SetDefault("sanitizer.fallback", safety.DefaultFallback)
	v.SetDefault("resilience.retry_attempts", 3)
	v.SetDefault("resilience.breaker_failures", 5)
	v.SetDefault("resilience.breaker_cooldown_secs", 30)
	v.SetDefault("batch.max_concurrent", 4)
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
}

// Validate checks the settings a command mode depends on. Modes are
// "classify", "batch", "serve", "migrate" and "import".
func (c *Config) Validate(mode string) error {
	var errs []string
	needDB := func() {
		if strings.EqualFold(c.Store.Driver, "postgres") && c.Store.DatabaseURL == "" {
			errs = append(errs, "store.database_url is required for the postgres driver")
		}
	}
	classify := func() {
		needDB()
		if c.Budget.LimitUSD <= 0 {
			errs = append(errs, "budget.limit_usd must be > 0")
		}
		if c.Budget.SafetyMarginUSD < 0 || c.Budget.SafetyMarginUSD >= c.Budget.LimitUSD {
			errs = append(errs, "budget.safety_margin_usd must be >= 0 and below budget.limit_usd")
		}
		if c.CrossCheck.MaxItems < 0 {
			errs = append(errs, "crosscheck.max_items must be >= 0")
		}
		if c.CrossCheck.TimeoutSecs <= 0 {
			errs = append(errs, "crosscheck.timeout_secs must be > 0")
		}
		if c.Verify.SimilarityThreshold <= 0 || c.Verify.SimilarityThreshold > 1 {
			errs = append(errs, "verify.similarity_threshold must be in (0, 1]")
		}
		if c.Loop.MaxAttempts < 1 {
			errs = append(errs, "loop.max_attempts must be >= 1")
		}
		if c.Anthropic.Key != "" {
			for _, key := range []struct{ name, model string }{
				{"anthropic.model", c.Anthropic.Model},
				{"anthropic.narrow_model", c.Anthropic.NarrowModel},
			} {
				if !c.Pricing.Priced("anthropic", key.model) {
					errs = append(errs, fmt.Sprintf("%s %q has no entry in pricing.anthropic", key.name, key.model))
				}
			}
		}
		if c.Gemini.Key != "" && !c.Pricing.Priced("gemini", c.Gemini.Model) {
			errs = append(errs, fmt.Sprintf("gemini.model %q has no entry in pricing.gemini", c.Gemini.Model))
		}
	}

	switch mode {
	case "classify":
		classify()
	case "batch":
		classify()
		if c.Batch.MaxConcurrent < 1 || c.Batch.MaxConcurrent > 32 {
			errs = append(errs, "batch.max_concurrent must be between 1 and 32")
		}
	case "serve":
		classify()
		if c.Server.Port <= 0 {
			errs = append(errs, "server.port must be > 0")
		}
	case "migrate", "import":
		needDB()
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(errs) > 0 {
		return eris.New(fmt.Sprintf("config: invalid for %s: %s", mode, strings.Join(errs, "; ")))
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
