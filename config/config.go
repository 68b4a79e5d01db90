package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the enrichment service.
type Config struct {
	General   GeneralConfig   `mapstructure:"general"`
	LLM       LLMConfig       `mapstructure:"llm"`
	Search    SearchConfig    `mapstructure:"search"`
	Cache     CacheConfig     `mapstructure:"cache"`
	Budget    BudgetConfig    `mapstructure:"budget"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	Server    ServerConfig    `mapstructure:"server"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
}

// GeneralConfig contains general application settings.
type GeneralConfig struct {
	Debug          bool          `mapstructure:"debug"`
	LogLevel       string        `mapstructure:"log_level"`
	DefaultTimeout time.Duration `mapstructure:"default_timeout"`
}

// LLMConfig contains completion API settings. Two models are configured:
// the primary model used for normal enrichment and a cheaper model used
// once the daily spend threshold is crossed or for the search-augmented
// retry.
type LLMConfig struct {
	APIKey       string        `mapstructure:"api_key"`
	BaseURL      string        `mapstructure:"base_url"`
	MaxTokens    int           `mapstructure:"max_tokens"`
	Timeout      time.Duration `mapstructure:"timeout"`
	PrimaryModel LLMModel      `mapstructure:"primary_model"`
	CheapModel   LLMModel      `mapstructure:"cheap_model"`
}

// LLMModel is a single model identity plus its static pricing pair.
type LLMModel struct {
	Name            string  `mapstructure:"name"`
	CostPer1KInput  float64 `mapstructure:"cost_per_1k_input"`
	CostPer1KOutput float64 `mapstructure:"cost_per_1k_output"`
}

// SearchConfig contains web search settings.
type SearchConfig struct {
	APIKey     string        `mapstructure:"api_key"`
	EngineID   string        `mapstructure:"engine_id"`
	BaseURL    string        `mapstructure:"base_url"`
	MaxResults int           `mapstructure:"max_results"`
	DailyLimit int           `mapstructure:"daily_limit"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

// CacheConfig selects and tunes the enrichment cache backend.
type CacheConfig struct {
	Backend string        `mapstructure:"backend"` // memory or redis
	TTL     time.Duration `mapstructure:"ttl"`
	Redis   RedisConfig   `mapstructure:"redis"`
}

// RedisConfig contains Redis connection settings.
type RedisConfig struct {
	Host     string        `mapstructure:"host"`
	Port     int           `mapstructure:"port"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// BudgetConfig contains the spend guardrails.
type BudgetConfig struct {
	DailyLimit     float64 `mapstructure:"daily_limit"`
	RequestLimit   float64 `mapstructure:"request_limit"`
	CheaperAtShare float64 `mapstructure:"cheaper_at_share"`
	EnforcePerCall bool    `mapstructure:"enforce_per_call"`
}

// RateLimitConfig holds the two fixed-window limiter shapes.
type RateLimitConfig struct {
	EnrichmentPerMinute int `mapstructure:"enrichment_per_minute"`
	APIPerMinute        int `mapstructure:"api_per_minute"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Addr        string `mapstructure:"addr"`
	CleanupCron string `mapstructure:"cleanup_cron"`
}

// TelemetryConfig contains metrics settings.
type TelemetryConfig struct {
	Enabled      bool `mapstructure:"enabled"`
	PeriodicLogs bool `mapstructure:"periodic_logs"`
}

// LoadConfig loads configuration from file and environment variables.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("enricher")
		v.SetConfigType("yaml")
		v.AddConfigPath("./config")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("ENRICHER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	// Config file is optional; defaults plus env cover the common case.
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	overrideFromEnv(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := validateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default configuration values.
func setDefaults(v *viper.Viper) {
	v.SetDefault("general.debug", false)
	v.SetDefault("general.log_level", "info")
	v.SetDefault("general.default_timeout", "30s")

	v.SetDefault("llm.base_url", "https://api.anthropic.com")
	v.SetDefault("llm.max_tokens", 1024)
	v.SetDefault("llm.timeout", "60s")
	v.SetDefault("llm.primary_model.name", "claude-sonnet-4-20250514")
	v.SetDefault("llm.primary_model.cost_per_1k_input", 0.003)
	v.SetDefault("llm.primary_model.cost_per_1k_output", 0.015)
	v.SetDefault("llm.cheap_model.name", "claude-3-5-haiku-20241022")
	v.SetDefault("llm.cheap_model.cost_per_1k_input", 0.0008)
	v.SetDefault("llm.cheap_model.cost_per_1k_output", 0.004)

	v.SetDefault("search.base_url", "https://www.googleapis.com/customsearch/v1")
	v.SetDefault("search.max_results", 5)
	v.SetDefault("search.daily_limit", 100)
	v.SetDefault("search.timeout", "15s")

	v.SetDefault("cache.backend", "memory")
	v.SetDefault("cache.ttl", "168h")
	v.SetDefault("cache.redis.host", "localhost")
	v.SetDefault("cache.redis.port", 6379)
	v.SetDefault("cache.redis.db", 0)
	v.SetDefault("cache.redis.timeout", "5s")

	v.SetDefault("budget.daily_limit", 5.0)
	v.SetDefault("budget.request_limit", 0.05)
	v.SetDefault("budget.cheaper_at_share", 0.8)
	v.SetDefault("budget.enforce_per_call", true)

	v.SetDefault("rate_limit.enrichment_per_minute", 60)
	v.SetDefault("rate_limit.api_per_minute", 100)

	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.cleanup_cron", "0 * * * *")

	v.SetDefault("telemetry.enabled", true)
	v.SetDefault("telemetry.periodic_logs", false)
}

// overrideFromEnv overrides configuration with the well-known environment
// variables for sensitive data.
func overrideFromEnv(v *viper.Viper) {
	if apiKey := os.Getenv("ANTHROPIC_API_KEY"); apiKey != "" {
		v.Set("llm.api_key", apiKey)
	}
	if apiKey := os.Getenv("GOOGLE_SEARCH_API_KEY"); apiKey != "" {
		v.Set("search.api_key", apiKey)
	}
	if engineID := os.Getenv("GOOGLE_SEARCH_ENGINE_ID"); engineID != "" {
		v.Set("search.engine_id", engineID)
	}
	if host := os.Getenv("REDIS_HOST"); host != "" {
		v.Set("cache.redis.host", host)
	}
	if password := os.Getenv("REDIS_PASSWORD"); password != "" {
		v.Set("cache.redis.password", password)
	}
}

// validateConfig validates the configuration. A missing LLM API key is
// deliberately not an error: the service degrades to fallback-only mode.
func validateConfig(cfg *Config) error {
	if cfg.LLM.PrimaryModel.Name == "" || cfg.LLM.CheapModel.Name == "" {
		return fmt.Errorf("both llm.primary_model.name and llm.cheap_model.name must be set")
	}
	if cfg.Budget.DailyLimit <= 0 {
		return fmt.Errorf("budget.daily_limit must be positive")
	}
	if cfg.Budget.CheaperAtShare <= 0 || cfg.Budget.CheaperAtShare > 1 {
		return fmt.Errorf("budget.cheaper_at_share must be in (0, 1]")
	}
	if cfg.Search.DailyLimit <= 0 {
		return fmt.Errorf("search.daily_limit must be positive")
	}
	switch cfg.Cache.Backend {
	case "memory", "redis":
	default:
		return fmt.Errorf("unsupported cache backend: %s", cfg.Cache.Backend)
	}
	return nil
}
