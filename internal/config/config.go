package config

import (
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	LLM        LLMConfig        `yaml:"llm" mapstructure:"llm"`
	Gemini     GeminiConfig     `yaml:"gemini" mapstructure:"gemini"`
	Perplexity PerplexityConfig `yaml:"perplexity" mapstructure:"perplexity"`
	Anthropic  AnthropicConfig  `yaml:"anthropic" mapstructure:"anthropic"`
	Pipeline   PipelineConfig   `yaml:"pipeline" mapstructure:"pipeline"`
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Registry   RegistryConfig   `yaml:"registry" mapstructure:"registry"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Session    SessionConfig    `yaml:"session" mapstructure:"session"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// LLMConfig selects the generation provider and guards every call to it.
type LLMConfig struct {
	Provider           string        `yaml:"provider" mapstructure:"provider"`
	ResolveTimeoutSecs int           `yaml:"resolve_timeout_secs" mapstructure:"resolve_timeout_secs"`
	ExtractTimeoutSecs int           `yaml:"extract_timeout_secs" mapstructure:"extract_timeout_secs"`
	VerifyTimeoutSecs  int           `yaml:"verify_timeout_secs" mapstructure:"verify_timeout_secs"`
	RateLimitPerSec    float64       `yaml:"rate_limit_per_sec" mapstructure:"rate_limit_per_sec"`
	RateBurst          int           `yaml:"rate_burst" mapstructure:"rate_burst"`
	Retry              RetryConfig   `yaml:"retry" mapstructure:"retry"`
	Circuit            CircuitConfig `yaml:"circuit" mapstructure:"circuit"`
}

// RetryConfig configures retries around provider calls.
type RetryConfig struct {
	MaxAttempts      int `yaml:"max_attempts" mapstructure:"max_attempts"`
	InitialBackoffMs int `yaml:"initial_backoff_ms" mapstructure:"initial_backoff_ms"`
	MaxBackoffMs     int `yaml:"max_backoff_ms" mapstructure:"max_backoff_ms"`
}

// CircuitConfig configures the provider circuit breaker.
type CircuitConfig struct {
	FailureThreshold int `yaml:"failure_threshold" mapstructure:"failure_threshold"`
	ResetTimeoutSecs int `yaml:"reset_timeout_secs" mapstructure:"reset_timeout_secs"`
}

// GeminiConfig holds Gemini API settings.
type GeminiConfig struct {
	Key       string `yaml:"key" mapstructure:"key"`
	BaseURL   string `yaml:"base_url" mapstructure:"base_url"`
	FastModel string `yaml:"fast_model" mapstructure:"fast_model"`
	DeepModel string `yaml:"deep_model" mapstructure:"deep_model"`
}

// PerplexityConfig holds Perplexity API settings.
type PerplexityConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
	Model   string `yaml:"model" mapstructure:"model"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	Key         string `yaml:"key" mapstructure:"key"`
	HaikuModel  string `yaml:"haiku_model" mapstructure:"haiku_model"`
	SonnetModel string `yaml:"sonnet_model" mapstructure:"sonnet_model"`
	MaxTokens   int    `yaml:"max_tokens" mapstructure:"max_tokens"`
}

// PipelineConfig configures resolution and extraction behavior.
type PipelineConfig struct {
	MinVideoMinutes        int `yaml:"min_video_minutes" mapstructure:"min_video_minutes"`
	MinVideos              int `yaml:"min_videos" mapstructure:"min_videos"`
	MaxVideos              int `yaml:"max_videos" mapstructure:"max_videos"`
	LookbackMonths         int `yaml:"lookback_months" mapstructure:"lookback_months"`
	AnalysisHeavyThreshold int `yaml:"analysis_heavy_threshold" mapstructure:"analysis_heavy_threshold"`
	AuditConcurrency       int `yaml:"audit_concurrency" mapstructure:"audit_concurrency"`
}

// StoreConfig configures the key-value backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	RedisURL    string `yaml:"redis_url" mapstructure:"redis_url"`
}

// RegistryConfig configures demo seeding.
type RegistryConfig struct {
	SeedPolicy      string `yaml:"seed_policy" mapstructure:"seed_policy"`
	RecentSearchCap int    `yaml:"recent_search_cap" mapstructure:"recent_search_cap"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
}

// SessionConfig configures in-memory session expiry and the live session cap.
type SessionConfig struct {
	IdleTimeoutMins int `yaml:"idle_timeout_mins" mapstructure:"idle_timeout_mins"`
	MaxSessions     int `yaml:"max_sessions" mapstructure:"max_sessions"`
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
	v.SetEnvPrefix("AUDIT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Credentials have empty defaults so AutomaticEnv picks them up on Unmarshal.
	for _, key := range []string{"gemini.key", "perplexity.key", "anthropic.key", "store.redis_url"} {
		v.SetDefault(key, "")
	}

	// Defaults
	v.SetDefault("llm.provider", "gemini")
	v.SetDefault("llm.resolve_timeout_secs", 90)
	v.SetDefault("llm.extract_timeout_secs", 120)
	v.SetDefault("llm.verify_timeout_secs", 90)
	v.SetDefault("llm.rate_limit_per_sec", 2.0)
	v.SetDefault("llm.rate_burst", 2)
	v.SetDefault("llm.retry.max_attempts", 1)
	v.SetDefault("llm.retry.initial_backoff_ms", 500)
	v.SetDefault("llm.retry.max_backoff_ms", 20000)
	v.SetDefault("llm.circuit.failure_threshold", 5)
	v.SetDefault("llm.circuit.reset_timeout_secs", 30)
	v.SetDefault("gemini.base_url", "https://generativelanguage.googleapis.com/v1beta")
	v.SetDefault("gemini.fast_model", "gemini-3-flash-preview")
	v.SetDefault("gemini.deep_model", "gemini-3-pro-preview")
	v.SetDefault("perplexity.base_url", "https://api.perplexity.ai")
	v.SetDefault("perplexity.model", "sonar-pro")
	v.SetDefault("anthropic.haiku_model", "claude-haiku-4-5-20251001")
	v.SetDefault("anthropic.sonnet_model", "claude-sonnet-4-5-20250929")
	v.SetDefault("anthropic.max_tokens", 4096)
	v.SetDefault("pipeline.min_video_minutes", 6)
	v.SetDefault("pipeline.min_videos", 10)
	v.SetDefault("pipeline.max_videos", 20)
	v.SetDefault("pipeline.lookback_months", 12)
	v.SetDefault("pipeline.analysis_heavy_threshold", 5)
	v.SetDefault("pipeline.audit_concurrency", 3)
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "audit.db")
	v.SetDefault("registry.seed_policy", "if_empty")
	v.SetDefault("registry.recent_search_cap", 10)
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("session.idle_timeout_mins", 60)
	v.SetDefault("session.max_sessions", 10000)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

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

	return &cfg, nil
}

// Validate checks the settings a command mode needs. Modes: "serve",
// "pipeline" (resolve/extract/verify/audit), "registry".
func (c *Config) Validate(mode string) error {
	var errs []string

	switch mode {
	case "serve":
		if c.Server.Port <= 0 {
			errs = append(errs, "server.port must be > 0")
		}
		errs = append(errs, c.validateStore()...)
		errs = append(errs, c.validatePipeline()...)
		if c.Session.IdleTimeoutMins <= 0 {
			errs = append(errs, "session.idle_timeout_mins must be > 0")
		}
		if c.Session.MaxSessions <= 0 {
			errs = append(errs, "session.max_sessions must be > 0")
		}
	case "pipeline":
		errs = append(errs, c.validateProvider()...)
		errs = append(errs, c.validatePipeline()...)
	case "registry":
		errs = append(errs, c.validateStore()...)
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	switch c.Registry.SeedPolicy {
	case "if_empty", "always", "off":
	default:
		errs = append(errs, fmt.Sprintf("registry.seed_policy %q must be if_empty, always, or off", c.Registry.SeedPolicy))
	}

	if len(errs) > 0 {
		return eris.New("config: " + strings.Join(errs, "; "))
	}
	return nil
}

// ProviderKey returns the credential for the selected provider and the
// environment variable that supplies it.
func (c *Config) ProviderKey() (key, envVar string) {
	switch c.LLM.Provider {
	case "perplexity":
		return c.Perplexity.Key, "AUDIT_PERPLEXITY_KEY"
	case "anthropic":
		return c.Anthropic.Key, "AUDIT_ANTHROPIC_KEY"
	default:
		return c.Gemini.Key, "AUDIT_GEMINI_KEY"
	}
}

func (c *Config) validateProvider() []string {
	switch c.LLM.Provider {
	case "gemini", "perplexity", "anthropic":
	default:
		return []string{fmt.Sprintf("llm.provider %q is not supported", c.LLM.Provider)}
	}
	if key, env := c.ProviderKey(); key == "" {
		return []string{fmt.Sprintf("%s.key is required (set %s)", c.LLM.Provider, env)}
	}
	return nil
}

func (c *Config) validatePipeline() []string {
	var errs []string
	p := c.Pipeline
	if p.MinVideos < 1 || p.MaxVideos < p.MinVideos {
		errs = append(errs, "pipeline.min_videos must be >= 1 and <= pipeline.max_videos")
	}
	if p.AuditConcurrency < 1 || p.AuditConcurrency > 10 {
		errs = append(errs, "pipeline.audit_concurrency must be between 1 and 10")
	}
	if p.AnalysisHeavyThreshold < 0 {
		errs = append(errs, "pipeline.analysis_heavy_threshold must be >= 0")
	}
	if c.LLM.Retry.MaxAttempts < 1 {
		errs = append(errs, "llm.retry.max_attempts must be >= 1")
	}
	return errs
}

func (c *Config) validateStore() []string {
	switch c.Store.Driver {
	case "memory":
	case "sqlite", "postgres":
		if c.Store.DatabaseURL == "" {
			return []string{"store.database_url is required"}
		}
	case "redis":
		if c.Store.RedisURL == "" {
			return []string{"store.redis_url is required"}
		}
	default:
		return []string{fmt.Sprintf("store.driver %q is not supported", c.Store.Driver)}
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
