package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// ErrMissingAPIKey is returned by Validate when WALLET_API_KEY is unset.
var ErrMissingAPIKey = errors.New("WALLET_API_KEY is required")

// Config holds settings for the trader. Values come from defaults, then the
// optional YAML file, then the environment (.env included).
type Config struct {
	Port      string `yaml:"port"`
	StaticDir string `yaml:"static_dir"`

	// Market
	Symbol          string        `yaml:"symbol"`
	FeedBaseURL     string        `yaml:"feed_base_url"`
	HistoryInterval string        `yaml:"history_interval"`
	HistoryLimit    int           `yaml:"history_limit"`
	FeedRateLimit   float64       `yaml:"feed_rate_limit"` // requests per second
	UseMockFeed     bool          `yaml:"use_mock_feed"`
	PollInterval    time.Duration `yaml:"poll_interval"`
	FeedMode        string        `yaml:"feed_mode"` // "rest" or "stream"
	StreamBaseURL   string        `yaml:"stream_base_url"`
	StreamMaxAge    time.Duration `yaml:"stream_max_age"`

	// Band
	BandK             float64 `yaml:"band_k"`
	BootstrapAttempts int     `yaml:"bootstrap_attempts"`

	// Execution
	VenueBaseURL    string  `yaml:"venue_base_url"`
	VenueTestnet    bool    `yaml:"venue_testnet"`
	OrderQty        float64 `yaml:"order_qty"`
	AutoStart       bool    `yaml:"auto_start"`
	DryRun          bool    `yaml:"dry_run"`
	WalletAPIKey    string  `yaml:"-"`
	WalletAPISecret string  `yaml:"-"`

	// Dry-run simulation
	DryRunSlippageBps  float64 `yaml:"dry_run_slippage_bps"`
	DryRunLatencyMinMs int     `yaml:"dry_run_latency_min_ms"`
	DryRunLatencyMaxMs int     `yaml:"dry_run_latency_max_ms"`

	// Alerts
	TelegramBotToken string `yaml:"-"`
	TelegramChatID   int64  `yaml:"telegram_chat_id"`

	// Logging
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`

	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// Defaults returns the configuration used when nothing is set.
func Defaults() *Config {
	return &Config{
		Port:              "8000",
		StaticDir:         "static",
		Symbol:            "SOLUSDT",
		HistoryInterval:   "1h",
		HistoryLimit:      100,
		FeedRateLimit:     5,
		PollInterval:      60 * time.Second,
		FeedMode:          "rest",
		StreamMaxAge:      15 * time.Second,
		BandK:             2.0,
		BootstrapAttempts: 3,
		OrderQty:          1,
		DryRun:            true,
		DryRunSlippageBps: 2,
		LogLevel:          "info",
		LogFormat:         "text",
		ShutdownTimeout:   10 * time.Second,
	}
}

// Load reads environment variables (optionally via .env) into Config.
func Load() (*Config, error) {
	// Ignore error so the app still starts when .env is missing.
	_ = godotenv.Load()

	cfg := Defaults()
	path := getEnv("CONFIG_FILE", "trader.yaml")
	if err := cfg.loadFile(path); err != nil {
		return nil, err
	}
	cfg.applyEnv()
	return cfg, nil
}

// loadFile overlays path onto cfg. A missing file is not an error.
func (c *Config) loadFile(path string) error {
	raw, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(raw, c); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() {
	c.Port = getEnv("PORT", c.Port)
	c.StaticDir = getEnv("STATIC_DIR", c.StaticDir)

	c.Symbol = strings.ToUpper(getEnv("SYMBOL", c.Symbol))
	c.FeedBaseURL = getEnv("FEED_BASE_URL", c.FeedBaseURL)
	c.HistoryInterval = getEnv("HISTORY_INTERVAL", c.HistoryInterval)
	c.HistoryLimit = getEnvInt("HISTORY_LIMIT", c.HistoryLimit)
	c.FeedRateLimit = getEnvFloat("FEED_RATE_LIMIT", c.FeedRateLimit)
	c.UseMockFeed = getEnvBool("USE_MOCK_FEED", c.UseMockFeed)
	c.PollInterval = getEnvDuration("POLL_INTERVAL", c.PollInterval)
	c.FeedMode = strings.ToLower(getEnv("FEED_MODE", c.FeedMode))
	c.StreamBaseURL = getEnv("STREAM_BASE_URL", c.StreamBaseURL)
	c.StreamMaxAge = getEnvDuration("STREAM_MAX_AGE", c.StreamMaxAge)

	c.BandK = getEnvFloat("BAND_K", c.BandK)
	c.BootstrapAttempts = getEnvInt("BOOTSTRAP_ATTEMPTS", c.BootstrapAttempts)

	c.VenueBaseURL = getEnv("VENUE_BASE_URL", c.VenueBaseURL)
	c.VenueTestnet = getEnvBool("VENUE_TESTNET", c.VenueTestnet)
	c.OrderQty = getEnvFloat("ORDER_QTY", c.OrderQty)
	c.AutoStart = getEnvBool("AUTO_START", c.AutoStart)
	c.DryRun = getEnvBool("DRY_RUN", c.DryRun)
	c.WalletAPIKey = os.Getenv("WALLET_API_KEY")
	c.WalletAPISecret = os.Getenv("WALLET_API_SECRET")

	c.DryRunSlippageBps = getEnvFloat("DRY_RUN_SLIPPAGE_BPS", c.DryRunSlippageBps)
	c.DryRunLatencyMinMs = getEnvInt("DRY_RUN_LATENCY_MIN_MS", c.DryRunLatencyMinMs)
	c.DryRunLatencyMaxMs = getEnvInt("DRY_RUN_LATENCY_MAX_MS", c.DryRunLatencyMaxMs)

	c.TelegramBotToken = os.Getenv("TELEGRAM_BOT_TOKEN")
	c.TelegramChatID = int64(getEnvInt("TELEGRAM_CHAT_ID", int(c.TelegramChatID)))

	c.LogLevel = strings.ToLower(getEnv("LOG_LEVEL", c.LogLevel))
	c.LogFormat = strings.ToLower(getEnv("LOG_FORMAT", c.LogFormat))
	c.ShutdownTimeout = getEnvDuration("SHUTDOWN_TIMEOUT", c.ShutdownTimeout)
}

// Validate reports the first setting that would keep the trader from running.
func (c *Config) Validate() error {
	switch {
	case c.WalletAPIKey == "":
		return ErrMissingAPIKey
	case c.BandK <= 0:
		return fmt.Errorf("BAND_K must be positive, got %v", c.BandK)
	case c.PollInterval <= 0:
		return fmt.Errorf("POLL_INTERVAL must be positive, got %v", c.PollInterval)
	case c.OrderQty <= 0:
		return fmt.Errorf("ORDER_QTY must be positive, got %v", c.OrderQty)
	case c.HistoryLimit <= 0:
		return fmt.Errorf("HISTORY_LIMIT must be positive, got %d", c.HistoryLimit)
	case c.Symbol == "":
		return errors.New("SYMBOL is required")
	case c.FeedMode != "rest" && c.FeedMode != "stream":
		return fmt.Errorf("FEED_MODE must be rest or stream, got %q", c.FeedMode)
	}
	return nil
}

// TelegramEnabled reports whether both the bot token and chat are set.
func (c *Config) TelegramEnabled() bool {
	return c.TelegramBotToken != "" && c.TelegramChatID != 0
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func getEnvFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

// getEnvDuration accepts Go durations ("90s") or a bare number of seconds.
func getEnvDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second
	}
	return def
}
