package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config configures cmd/api, the configuration service backed by PostgreSQL.
type Config struct {
	// Server
	Port        int    `envconfig:"PORT" default:"3000"`
	Environment string `envconfig:"ENV" default:"development"`

	// Database
	DatabaseURL  string `envconfig:"DATABASE_URL" required:"true"`
	DatabaseName string `envconfig:"DATABASE_NAME" default:"rekko_dev"`
	DBMaxConns   int    `envconfig:"DB_MAX_CONNS" default:"25"`

	// Security
	JWTSecret    string        `envconfig:"JWT_SECRET" required:"true"`
	JWTIssuer    string        `envconfig:"JWT_ISSUER" default:"rekko"`
	JWTExpiresIn time.Duration `envconfig:"JWT_EXPIRES_IN" default:"8h"`
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return &cfg, nil
}

func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// ConsoleConfig configures cmd/console, the dashboard backend.
type ConsoleConfig struct {
	// Server
	Port        int    `envconfig:"CONSOLE_PORT" default:"3100"`
	Environment string `envconfig:"ENV" default:"development"`
	CORSOrigins string `envconfig:"CORS_ORIGINS" default:"*"`

	// Configuration service
	APIBaseURL      string        `envconfig:"API_BASE_URL" default:"http://localhost:3000"`
	APIToken        string        `envconfig:"API_TOKEN"`
	APITimeout      time.Duration `envconfig:"API_TIMEOUT" default:"10s"`
	APIRetryCount   int           `envconfig:"API_RETRY_COUNT" default:"2"`
	APIRetryBackoff time.Duration `envconfig:"API_RETRY_BACKOFF" default:"200ms"`

	// Response cache, disabled when REDIS_URL is empty
	RedisURL string        `envconfig:"REDIS_URL"`
	CacheTTL time.Duration `envconfig:"CACHE_TTL" default:"30s"`

	// Registry and lifecycle
	ProbeConcurrency int           `envconfig:"PROBE_CONCURRENCY" default:"12"`
	IntentTTL        time.Duration `envconfig:"INTENT_TTL" default:"2m"`
	RefreshTimeout   time.Duration `envconfig:"REFRESH_TIMEOUT" default:"30s"`

	// Mutations allowed per operator per minute
	MutationRateLimit int `envconfig:"MUTATION_RATE_LIMIT" default:"60"`

	// Security
	JWTSecret string `envconfig:"JWT_SECRET" required:"true"`
	JWTIssuer string `envconfig:"JWT_ISSUER" default:"rekko"`
}

func LoadConsole() (*ConsoleConfig, error) {
	var cfg ConsoleConfig
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("load console config: %w", err)
	}
	return &cfg, nil
}

func (c *ConsoleConfig) IsDevelopment() bool {
	return c.Environment == "development"
}

// CacheEnabled reports whether responses from the configuration service are cached.
func (c *ConsoleConfig) CacheEnabled() bool {
	return c.RedisURL != ""
}
