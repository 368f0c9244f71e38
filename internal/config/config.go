package config

import (
	"fmt"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config holds application configuration.
type Config struct {
	AppName     string `env:"APP_SERVICE" envDefault:"pricing"`
	AppVersion  string `env:"APP_VERSION" envDefault:"0.1.0"`
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	HTTPAddr    string `env:"HTTP_ADDR" envDefault:":8080"`

	SnowflakeNode int64 `env:"SNOWFLAKE_NODE" envDefault:"1"`

	DBType            string `env:"DATABASE_TYPE" envDefault:"postgres"`
	DBHost            string `env:"DATABASE_HOST" envDefault:"localhost"`
	DBPort            string `env:"DATABASE_PORT" envDefault:"5432"`
	DBName            string `env:"DATABASE_NAME" envDefault:"postgres"`
	DBUser            string `env:"DATABASE_USER" envDefault:"postgres"`
	DBPassword        string `env:"DATABASE_PASSWORD"`
	DBSSLMode         string `env:"DATABASE_SSLMODE" envDefault:"disable"`
	DBMaxIdleConn     int    `env:"DATABASE_MAX_IDLE_CONN" envDefault:"5"`
	DBMaxOpenConn     int    `env:"DATABASE_MAX_OPEN_CONN" envDefault:"20"`
	DBConnMaxLifetime int    `env:"DATABASE_CONN_MAX_LIFETIME" envDefault:"300"`
	DBConnMaxIdleTime int    `env:"DATABASE_CONN_MAX_IDLE_TIME" envDefault:"60"`
	RunMigrations     bool   `env:"RUN_MIGRATIONS" envDefault:"true"`

	// RedisURL enables the shared rule-set cache. Empty keeps the cache in-process.
	RedisURL string `env:"REDIS_URL"`

	PricingConfigPath string `env:"PRICING_CONFIG_PATH"`

	RateLimit     RateLimitConfig `envPrefix:"RATE_LIMIT_"`
	Observability ObservabilityConfig
}

// ObservabilityConfig reads the standard OpenTelemetry variable names.
type ObservabilityConfig struct {
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`

	OtelEnabled        bool    `env:"OTEL_ENABLED" envDefault:"true"`
	OTLPEndpoint       string  `env:"OTEL_EXPORTER_OTLP_ENDPOINT" envDefault:"localhost:4317"`
	OTLPProtocol       string  `env:"OTEL_EXPORTER_OTLP_PROTOCOL" envDefault:"grpc"`
	OTLPTracesProtocol string  `env:"OTEL_EXPORTER_OTLP_TRACES_PROTOCOL"`
	SamplingRatio      float64 `env:"OTEL_SAMPLING_RATIO" envDefault:"0.1"`
}

// RateLimitConfig throttles breakdown requests per account. Requires REDIS_URL.
type RateLimitConfig struct {
	Enabled             bool    `env:"ENABLED" envDefault:"false"`
	BreakdownRate       float64 `env:"BREAKDOWN_RATE" envDefault:"20"`
	BreakdownBurst      int     `env:"BREAKDOWN_BURST" envDefault:"40"`
	QuoteLockTTLSeconds int     `env:"QUOTE_LOCK_TTL_SECONDS" envDefault:"10"`
}

// Load loads configuration from environment variables and .env file.
func Load() (Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	cfg.DBType = strings.ToLower(strings.TrimSpace(cfg.DBType))
	return cfg, nil
}

func (c Config) IsProduction() bool {
	return strings.EqualFold(strings.TrimSpace(c.Environment), "production")
}
