package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfighcl"
)

const EnvPrefix = "NEWSPAPER"

var DefaultFiles = []string{"./config.hcl", "./config.local.hcl"}

type Config struct {
	// App settings
	HTTPAddr  string `hcl:"http_addr" env:"HTTP_ADDR" default:":8080"`
	Debug     bool   `hcl:"debug" env:"DEBUG"`
	LogFormat string `hcl:"log_format" env:"LOG_FORMAT" default:"text"`

	// AI settings: provider is gemini, openai, ollama or mock
	AIProvider       string        `hcl:"ai_provider" env:"AI_PROVIDER" default:"mock"`
	AIKey            string        `hcl:"ai_key" env:"AI_KEY"`
	AIBaseURL        string        `hcl:"ai_base_url" env:"AI_BASE_URL"`
	FastModel        string        `hcl:"fast_model" env:"FAST_MODEL" default:"gemini-1.5-flash"`
	CapableModel     string        `hcl:"capable_model" env:"CAPABLE_MODEL" default:"gemini-1.5-pro"`
	FilterTimeout    time.Duration `hcl:"filter_timeout" env:"FILTER_TIMEOUT" default:"5s"`
	ScoreTimeout     time.Duration `hcl:"score_timeout" env:"SCORE_TIMEOUT" default:"8s"`
	SummaryTimeout   time.Duration `hcl:"summary_timeout" env:"SUMMARY_TIMEOUT" default:"10s"`
	SuggestTimeout   time.Duration `hcl:"suggest_timeout" env:"SUGGEST_TIMEOUT" default:"10s"`
	MaxDailyRequests int           `hcl:"max_daily_requests" env:"MAX_DAILY_REQUESTS" default:"500"`
	RetryAttempts    int           `hcl:"retry_attempts" env:"RETRY_ATTEMPTS" default:"3"`
	RetryDelay       time.Duration `hcl:"retry_delay" env:"RETRY_DELAY" default:"1s"`

	// Feed settings
	FeedTimeout     time.Duration `hcl:"feed_timeout" env:"FEED_TIMEOUT" default:"5s"`
	ValidateTimeout time.Duration `hcl:"validate_timeout" env:"VALIDATE_TIMEOUT" default:"5s"`
	CatalogPath     string        `hcl:"catalog_path" env:"CATALOG_PATH"`

	// Translate headlines of feeds whose language differs from the locale
	TranslateHeadlines bool `hcl:"translate_headlines" env:"TRANSLATE_HEADLINES" default:"true"`

	// Cache settings
	SuggestionCache    bool          `hcl:"suggestion_cache" env:"SUGGESTION_CACHE" default:"true"`
	SuggestionCacheTTL time.Duration `hcl:"suggestion_cache_ttl" env:"SUGGESTION_CACHE_TTL" default:"1h"`
	PopularCacheTTL    time.Duration `hcl:"popular_cache_ttl" env:"POPULAR_CACHE_TTL" default:"10m"`

	// Telegram publishing is enabled when both are set
	TelegramToken  string `hcl:"telegram_token" env:"TELEGRAM_TOKEN"`
	TelegramChatID string `hcl:"telegram_chat_id" env:"TELEGRAM_CHAT_ID"`

	// Database settings: driver is postgres or sqlite
	DatabaseDriver string `hcl:"database_driver" env:"DATABASE_DRIVER" default:"sqlite"`
	DatabaseDSN    string `hcl:"database_dsn" env:"DATABASE_DSN" default:"file:newspaper.db?_pragma=busy_timeout(5000)"`
}

// Load reads defaults, then the given HCL files (DefaultFiles when none),
// then NEWSPAPER_* environment variables.
func Load(files ...string) (*Config, error) {
	if len(files) == 0 {
		files = DefaultFiles
	}

	var cfg Config
	loader := aconfig.LoaderFor(&cfg, aconfig.Config{
		EnvPrefix: EnvPrefix,
		SkipFlags: true,
		Files:     files,
		FileDecoders: map[string]aconfig.FileDecoder{
			".hcl": aconfighcl.New(),
		},
	})
	if err := loader.Load(); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	cfg.AIProvider = strings.ToLower(strings.TrimSpace(cfg.AIProvider))
	cfg.DatabaseDriver = strings.ToLower(strings.TrimSpace(cfg.DatabaseDriver))
	cfg.LogFormat = strings.ToLower(strings.TrimSpace(cfg.LogFormat))
	return &cfg, cfg.Validate()
}

func (c *Config) Validate() error {
	switch c.AIProvider {
	case "mock":
	case "gemini", "openai":
		if c.AIKey == "" {
			return fmt.Errorf("AI_KEY is required when AI_PROVIDER is %q", c.AIProvider)
		}
	case "ollama":
		if c.AIBaseURL == "" {
			return fmt.Errorf("AI_BASE_URL is required when AI_PROVIDER is \"ollama\"")
		}
	default:
		return fmt.Errorf("AI_PROVIDER must be one of gemini, openai, ollama, mock (got %q)", c.AIProvider)
	}

	timeouts := map[string]time.Duration{
		"FILTER_TIMEOUT":   c.FilterTimeout,
		"SCORE_TIMEOUT":    c.ScoreTimeout,
		"SUMMARY_TIMEOUT":  c.SummaryTimeout,
		"SUGGEST_TIMEOUT":  c.SuggestTimeout,
		"FEED_TIMEOUT":     c.FeedTimeout,
		"VALIDATE_TIMEOUT": c.ValidateTimeout,
	}
	for name, d := range timeouts {
		if d <= 0 {
			return fmt.Errorf("%s must be positive", name)
		}
	}
	if c.RetryAttempts < 1 {
		return fmt.Errorf("RETRY_ATTEMPTS must be at least 1")
	}
	if c.MaxDailyRequests < 0 {
		return fmt.Errorf("MAX_DAILY_REQUESTS must not be negative")
	}

	if c.LogFormat != "text" && c.LogFormat != "json" {
		return fmt.Errorf("LOG_FORMAT must be 'text' or 'json'")
	}

	if c.DatabaseDriver != "postgres" && c.DatabaseDriver != "sqlite" {
		return fmt.Errorf("DATABASE_DRIVER must be 'postgres' or 'sqlite'")
	}
	if c.DatabaseDSN == "" {
		return fmt.Errorf("DATABASE_DSN is required")
	}
	return nil
}

// MockMode reports whether every LLM call should take its fallback path.
func (c *Config) MockMode() bool {
	return c.AIProvider == "mock"
}
