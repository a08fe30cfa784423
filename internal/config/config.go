// Package config provides application configuration management.
// Configuration is loaded from environment variables following 12-factor principles.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"

	"github.com/penletter/penletter/internal/secret"
)

// Email providers.
const (
	EmailProviderPostmark = "postmark"
	EmailProviderSES      = "ses"
)

// ErrInvalidConfig indicates a value that parsed but is not usable.
var ErrInvalidConfig = errors.New("invalid configuration")

// Config holds all application configuration.
// All fields are populated from environment variables.
type Config struct {
	// Application settings
	AppEnv  string `env:"APP_ENV" envDefault:"development"`
	AppPort int    `env:"APP_PORT" envDefault:"8080"`

	// Database (PostgreSQL)
	DatabaseURL string `env:"DATABASE_URL,required"`

	// Cache (Redis)
	RedisURL string `env:"REDIS_URL,required"`

	// Public base URL used in confirmation links (e.g., https://news.example.com)
	BaseURL string `env:"BASE_URL" envDefault:"http://localhost:8080"`

	// Logging
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`

	// Server timeouts
	ReadTimeout     time.Duration `env:"READ_TIMEOUT" envDefault:"5s"`
	WriteTimeout    time.Duration `env:"WRITE_TIMEOUT" envDefault:"120s"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"30s"`

	// Outbound email
	EmailProvider  string        `env:"EMAIL_PROVIDER" envDefault:"postmark"`
	EmailSender    string        `env:"EMAIL_SENDER" envDefault:"newsletter@localhost.localdomain"`
	EmailBaseURL   string        `env:"EMAIL_BASE_URL" envDefault:"https://api.postmarkapp.com"`
	EmailAuthToken secret.String `env:"EMAIL_AUTH_TOKEN"`
	EmailTimeout   time.Duration `env:"EMAIL_TIMEOUT" envDefault:"10s"`
	SESRegion      string        `env:"SES_REGION" envDefault:"us-east-1"`
	SESAccessKey   string        `env:"SES_ACCESS_KEY"`
	SESSecretKey   secret.String `env:"SES_SECRET_KEY"`

	// Authentication
	// HashWorkers bounds concurrent password hash comparisons (0 = GOMAXPROCS).
	HashWorkers    int           `env:"HASH_WORKERS" envDefault:"0"`
	SessionTTL     time.Duration `env:"SESSION_TTL" envDefault:"12h"`
	IdempotencyTTL time.Duration `env:"IDEMPOTENCY_TTL" envDefault:"24h"`

	// Login rate limiting (per client IP)
	LoginRateLimitEnabled   bool `env:"LOGIN_RATE_LIMIT_ENABLED" envDefault:"true"`
	LoginRateLimitPerMinute int  `env:"LOGIN_RATE_LIMIT_RPM" envDefault:"10"`
	LoginRateLimitBurst     int  `env:"LOGIN_RATE_LIMIT_BURST" envDefault:"5"`

	// CORS configuration
	// Comma-separated list of allowed origins (e.g., "https://example.com,https://app.example.com")
	CORSAllowedOrigins string `env:"CORS_ALLOWED_ORIGINS" envDefault:""`

	// Request body size limit in bytes (default 1MB)
	MaxRequestBodySize int64 `env:"MAX_REQUEST_BODY_SIZE" envDefault:"1048576"`
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.AppEnv == "development"
}

// IsProduction returns true if running in production mode.
func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}

// GetCORSAllowedOrigins parses the comma-separated origins string into a slice.
func (c *Config) GetCORSAllowedOrigins() []string {
	if c.CORSAllowedOrigins == "" {
		return nil
	}

	origins := strings.Split(c.CORSAllowedOrigins, ",")
	result := make([]string, 0, len(origins))

	for _, origin := range origins {
		trimmed := strings.TrimSpace(origin)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}

// Validate checks values that env parsing cannot express.
func (c *Config) Validate() error {
	switch c.EmailProvider {
	case EmailProviderPostmark:
		if c.IsProduction() && c.EmailAuthToken.IsEmpty() {
			return fmt.Errorf("%w: EMAIL_AUTH_TOKEN is required for postmark in production", ErrInvalidConfig)
		}
	case EmailProviderSES:
	default:
		return fmt.Errorf("%w: unknown EMAIL_PROVIDER %q", ErrInvalidConfig, c.EmailProvider)
	}

	if c.HashWorkers < 0 {
		return fmt.Errorf("%w: HASH_WORKERS must not be negative", ErrInvalidConfig)
	}
	if c.SessionTTL <= 0 || c.IdempotencyTTL <= 0 {
		return fmt.Errorf("%w: SESSION_TTL and IDEMPOTENCY_TTL must be positive", ErrInvalidConfig)
	}

	return nil
}

// Load reads an optional .env file, parses environment variables and
// returns a validated Config. Variables already set in the environment
// take precedence over the .env file.
func Load() (*Config, error) {
	if err := loadDotEnv(".env"); err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadDotEnv(path string) error {
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}
