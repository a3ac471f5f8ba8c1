package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config holds all application configuration
type Config struct {
	// Feed provider
	FeedAPIKey  string        `envconfig:"FEED_API_KEY" required:"true"`
	FeedBaseURL string        `envconfig:"FEED_BASE_URL" default:"https://api.sportsdata.io/v3/nfl"`
	FeedTimeout time.Duration `envconfig:"FEED_TIMEOUT" default:"30s"`

	// Database
	DatabaseHost     string `envconfig:"DATABASE_HOST" default:"localhost"`
	DatabasePort     int    `envconfig:"DATABASE_PORT" default:"5432"`
	DatabaseName     string `envconfig:"DATABASE_NAME" default:"gridirondb"`
	DatabaseUser     string `envconfig:"DATABASE_USER" default:"gridiron"`
	DatabasePassword string `envconfig:"DATABASE_PASSWORD" required:"true"`
	DatabaseSSLMode  string `envconfig:"DATABASE_SSL_MODE" default:"disable"`

	// Redis
	CacheEnabled  bool   `envconfig:"CACHE_ENABLED" default:"true"`
	RedisHost     string `envconfig:"REDIS_HOST" default:"localhost"`
	RedisPort     int    `envconfig:"REDIS_PORT" default:"6379"`
	RedisPassword string `envconfig:"REDIS_PASSWORD" default:""`
	RedisDB       int    `envconfig:"REDIS_DB" default:"0"`

	// Application
	AppEnv   string `envconfig:"APP_ENV" default:"development"`
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`

	// Poll cycle
	PollInterval    time.Duration `envconfig:"POLL_INTERVAL" default:"30s"`
	PollTimeout     time.Duration `envconfig:"POLL_TIMEOUT" default:"2m"`
	PollConcurrency int           `envconfig:"POLL_CONCURRENCY" default:"4"`

	// Synchronization
	GapRetryBudget    int  `envconfig:"GAP_RETRY_BUDGET" default:"3"`
	EnablePlayerStats bool `envconfig:"ENABLE_PLAYER_STATS" default:"true"`

	// Rosters
	RosterRefreshInterval time.Duration `envconfig:"ROSTER_REFRESH_INTERVAL" default:"12h"`
	RosterSweepCron       string        `envconfig:"ROSTER_SWEEP_CRON" default:"15 * * * *"`

	// Monitoring
	EnableMetrics bool `envconfig:"ENABLE_METRICS" default:"true"`
	MetricsPort   int  `envconfig:"METRICS_PORT" default:"9090"`
}

// Load loads configuration from environment variables
// It first attempts to load from .env file if in development mode
func Load() (*Config, error) {
	// Try to load .env file (ignore error if doesn't exist)
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process environment config: %w", err)
	}

	// Validate
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.FeedAPIKey == "" {
		return fmt.Errorf("FEED_API_KEY is required")
	}

	if c.DatabasePassword == "" {
		return fmt.Errorf("DATABASE_PASSWORD is required")
	}

	if c.PollInterval < 5*time.Second {
		return fmt.Errorf("POLL_INTERVAL must be at least 5s, got %s", c.PollInterval)
	}

	if c.GapRetryBudget < 1 {
		return fmt.Errorf("GAP_RETRY_BUDGET must be at least 1, got %d", c.GapRetryBudget)
	}

	if c.IsProduction() && c.DatabaseSSLMode == "disable" {
		return fmt.Errorf("DATABASE_SSL_MODE must not be disable in production")
	}

	return nil
}

// RedisAddr returns the Redis address
func (c *Config) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.RedisHost, c.RedisPort)
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.AppEnv == "development"
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}

// MustLoad loads configuration or panics on error
// Use this in main() where we want to fail fast
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	return cfg
}
