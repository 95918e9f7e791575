package config

import (
	"fmt"
	"time"

	pkgconfig "github.com/tan-res-space/draft-genie-sub004/pkg/config"
	"github.com/tan-res-space/draft-genie-sub004/pkg/database"
	"github.com/tan-res-space/draft-genie-sub004/pkg/httpclient"
	"github.com/tan-res-space/draft-genie-sub004/pkg/kafka"
	"github.com/tan-res-space/draft-genie-sub004/pkg/tracing"
)

const (
	defaultJWTSecret = "your-secret-key-change-in-production"
	minJWTSecretLen  = 32
)

// Storage backends.
const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
)

// Config holds all configuration for the API gateway service.
type Config struct {
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`
	HTTPPort    int    `env:"GATEWAY_HTTP_PORT" envDefault:"8080"`

	// Authentication
	JWTSecret         string        `env:"JWT_SECRET" envDefault:"your-secret-key-change-in-production"`
	JWTIssuer         string        `env:"JWT_ISSUER" envDefault:"draftgenie-gateway"`
	AccessTokenExpiry time.Duration `env:"JWT_EXPIRES_IN" envDefault:"24h"`
	APIKeys           []string      `env:"API_KEYS" envSeparator:","`
	BcryptCost        int           `env:"BCRYPT_COST" envDefault:"12"`
	HashConcurrency   int64         `env:"HASH_CONCURRENCY" envDefault:"4"`

	// Bootstrap administrator
	AdminEmail    string `env:"ADMIN_EMAIL" envDefault:"admin@draftgenie.com"`
	AdminPassword string `env:"ADMIN_PASSWORD" envDefault:"admin123"`
	AdminName     string `env:"ADMIN_NAME" envDefault:"Admin"`

	// Storage
	UserStore          string                  `env:"USER_STORE" envDefault:"memory"`
	RefreshTokenStore  string                  `env:"REFRESH_TOKEN_STORE" envDefault:"memory"`
	Postgres           database.PostgresConfig `envPrefix:"POSTGRES_"`
	Redis              database.RedisConfig    `envPrefix:"REDIS_"`
	SlowQueryThreshold time.Duration           `env:"SLOW_QUERY_THRESHOLD" envDefault:"200ms"`

	// Events
	KafkaEnabled bool                 `env:"KAFKA_ENABLED" envDefault:"false"`
	Kafka        kafka.ProducerConfig `envPrefix:"KAFKA_"`

	// Tracing
	OTEL tracing.Config `envPrefix:"OTEL_"`

	// Backend service URLs
	SpeakerServiceURL    string        `env:"SPEAKER_SERVICE_URL" envDefault:"http://localhost:3001"`
	DraftServiceURL      string        `env:"DRAFT_SERVICE_URL" envDefault:"http://localhost:3002"`
	EvaluationServiceURL string        `env:"EVALUATION_SERVICE_URL" envDefault:"http://localhost:3003"`
	RAGServiceURL        string        `env:"RAG_SERVICE_URL" envDefault:"http://localhost:3004"`
	ProxyTimeout         time.Duration `env:"PROXY_TIMEOUT" envDefault:"30s"`

	// Downstream readiness probes
	Downstream httpclient.Config `envPrefix:"DOWNSTREAM_"`

	// Rate limiting
	RateLimitRPS       int `env:"RATE_LIMIT_RPS" envDefault:"100"`
	RateLimitBurst     int `env:"RATE_LIMIT_BURST" envDefault:"200"`
	AuthRateLimitRPS   int `env:"AUTH_RATE_LIMIT_RPS" envDefault:"5"`
	AuthRateLimitBurst int `env:"AUTH_RATE_LIMIT_BURST" envDefault:"10"`

	// CORS
	CORSAllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envSeparator:"," envDefault:"*"`
	CORSMaxAge         int      `env:"CORS_MAX_AGE" envDefault:"3600"`

	// Metrics
	MetricsAllowedCIDRs []string `env:"METRICS_ALLOWED_CIDRS" envSeparator:"," envDefault:"127.0.0.0/8,10.0.0.0/8,172.16.0.0/12,192.168.0.0/16"`
}

// Load reads configuration from a .env file, if present, and the environment.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := pkgconfig.LoadFile(pkgconfig.DefaultEnvFile, cfg); err != nil {
		return nil, fmt.Errorf("load gateway config: %w", err)
	}
	cfg.OTEL.ServiceName = "gateway"
	cfg.OTEL.Environment = cfg.Environment
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// IsDevelopment reports whether the gateway runs in the development environment.
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// validate checks configuration invariants.
func (c *Config) validate() error {
	if !c.IsDevelopment() {
		if c.JWTSecret == defaultJWTSecret {
			return fmt.Errorf("JWT_SECRET must be changed from default value in %s environment", c.Environment)
		}
		if len(c.JWTSecret) < minJWTSecretLen {
			return fmt.Errorf("JWT_SECRET must be at least %d characters in %s environment", minJWTSecretLen, c.Environment)
		}
	}
	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET must not be empty")
	}
	if c.AccessTokenExpiry <= 0 {
		return fmt.Errorf("JWT_EXPIRES_IN must be positive, got %s", c.AccessTokenExpiry)
	}
	if c.HashConcurrency < 1 {
		return fmt.Errorf("HASH_CONCURRENCY must be at least 1, got %d", c.HashConcurrency)
	}
	switch c.UserStore {
	case BackendMemory, BackendPostgres:
	default:
		return fmt.Errorf("USER_STORE must be %q or %q, got %q", BackendMemory, BackendPostgres, c.UserStore)
	}
	switch c.RefreshTokenStore {
	case BackendMemory, BackendPostgres, BackendRedis:
	default:
		return fmt.Errorf("REFRESH_TOKEN_STORE must be %q, %q or %q, got %q",
			BackendMemory, BackendPostgres, BackendRedis, c.RefreshTokenStore)
	}
	// refresh_tokens.user_id references users(id).
	if c.RefreshTokenStore == BackendPostgres && c.UserStore != BackendPostgres {
		return fmt.Errorf("REFRESH_TOKEN_STORE=%q requires USER_STORE=%q", BackendPostgres, BackendPostgres)
	}
	return nil
}

// NeedsPostgres reports whether any store is backed by Postgres.
func (c *Config) NeedsPostgres() bool {
	return c.UserStore == BackendPostgres || c.RefreshTokenStore == BackendPostgres
}

// NeedsRedis reports whether any store is backed by Redis.
func (c *Config) NeedsRedis() bool {
	return c.RefreshTokenStore == BackendRedis
}

// ServiceURLs maps each proxied backend service to its base URL.
func (c *Config) ServiceURLs() map[string]string {
	return map[string]string{
		"speaker":    c.SpeakerServiceURL,
		"draft":      c.DraftServiceURL,
		"evaluation": c.EvaluationServiceURL,
		"rag":        c.RAGServiceURL,
	}
}
