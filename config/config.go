// Package config loads gateway configuration with the precedence
// defaults -> YAML file -> environment variables.
//
// Usage:
//
//	cfg, err := config.NewLoader().
//	    WithConfigPath("config.yaml").
//	    WithEnvPrefix("AIGATEWAY").
//	    Load()
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/venturelink/aigateway/quota"
	"github.com/venturelink/aigateway/vectorstore"
)

// Config is the complete gateway configuration.
type Config struct {
	Server      ServerConfig       `yaml:"server" env:"SERVER"`
	Redis       RedisConfig        `yaml:"redis" env:"REDIS"`
	Database    DatabaseConfig     `yaml:"database" env:"DATABASE"`
	VectorStore vectorstore.Config `yaml:"vector_store" env:"VECTOR_STORE"`
	LLM         LLMConfig          `yaml:"llm" env:"LLM"`
	Embedding   EmbeddingConfig    `yaml:"embedding" env:"EMBEDDING"`
	Quota       QuotaConfig        `yaml:"quota" env:"-"`
	Log         LogConfig          `yaml:"log" env:"LOG"`
	Telemetry   TelemetryConfig    `yaml:"telemetry" env:"TELEMETRY"`
}

// ServerConfig holds the HTTP listener settings.
type ServerConfig struct {
	HTTPPort        int           `yaml:"http_port" env:"HTTP_PORT"`
	MetricsPort     int           `yaml:"metrics_port" env:"METRICS_PORT"`
	ReadTimeout     time.Duration `yaml:"read_timeout" env:"READ_TIMEOUT"`
	WriteTimeout    time.Duration `yaml:"write_timeout" env:"WRITE_TIMEOUT"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`
	// IPRateLimit throttles per-client-IP request rates at the edge,
	// before tenant quotas apply. Zero disables it.
	IPRateLimit float64 `yaml:"ip_rate_limit" env:"IP_RATE_LIMIT"`
	IPRateBurst int     `yaml:"ip_rate_burst" env:"IP_RATE_BURST"`
	// APIKeys holds the accepted gateway keys. Empty disables the auth
	// middleware, which is only acceptable behind a trusted proxy.
	APIKeys            []string `yaml:"api_keys" env:"API_KEYS"`
	CORSAllowedOrigins []string `yaml:"cors_allowed_origins" env:"CORS_ALLOWED_ORIGINS"`
}

// RedisConfig configures the shared counter store.
type RedisConfig struct {
	Addr     string `yaml:"addr" env:"ADDR"`
	Password string `yaml:"password" env:"PASSWORD"`
	DB       int    `yaml:"db" env:"DB"`
	PoolSize int    `yaml:"pool_size" env:"POOL_SIZE"`
}

// DatabaseConfig configures the template table storage.
type DatabaseConfig struct {
	Driver   string `yaml:"driver" env:"DRIVER"` // postgres or sqlite
	Host     string `yaml:"host" env:"HOST"`
	Port     int    `yaml:"port" env:"PORT"`
	User     string `yaml:"user" env:"USER"`
	Password string `yaml:"password" env:"PASSWORD"`
	Name     string `yaml:"name" env:"NAME"`
	SSLMode  string `yaml:"ssl_mode" env:"SSL_MODE"`
}

// DSN returns the connection string for the configured driver.
func (d *DatabaseConfig) DSN() string {
	switch d.Driver {
	case "postgres":
		return fmt.Sprintf(
			"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode,
		)
	case "sqlite":
		return d.Name
	default:
		return ""
	}
}

// LLMConfig configures the completion provider.
type LLMConfig struct {
	APIKey  string        `yaml:"api_key" env:"API_KEY"`
	BaseURL string        `yaml:"base_url" env:"BASE_URL"`
	Model   string        `yaml:"model" env:"MODEL"`
	Timeout time.Duration `yaml:"timeout" env:"TIMEOUT"`
}

// EmbeddingConfig configures the embedding provider.
type EmbeddingConfig struct {
	APIKey     string        `yaml:"api_key" env:"API_KEY"`
	BaseURL    string        `yaml:"base_url" env:"BASE_URL"`
	Model      string        `yaml:"model" env:"MODEL"`
	Dimensions int           `yaml:"dimensions" env:"DIMENSIONS"`
	Timeout    time.Duration `yaml:"timeout" env:"TIMEOUT"`
}

// QuotaConfig overrides the built-in tier table. Only reachable via YAML;
// maps do not map onto flat environment variables.
type QuotaConfig struct {
	Tiers map[string]quota.TierLimits `yaml:"tiers"`
}

// LogConfig configures zap.
type LogConfig struct {
	Level            string   `yaml:"level" env:"LEVEL"`   // debug, info, warn, error
	Format           string   `yaml:"format" env:"FORMAT"` // json or console
	OutputPaths      []string `yaml:"output_paths" env:"OUTPUT_PATHS"`
	EnableCaller     bool     `yaml:"enable_caller" env:"ENABLE_CALLER"`
	EnableStacktrace bool     `yaml:"enable_stacktrace" env:"ENABLE_STACKTRACE"`
}

// TelemetryConfig configures OTLP export.
type TelemetryConfig struct {
	Enabled      bool    `yaml:"enabled" env:"ENABLED"`
	OTLPEndpoint string  `yaml:"otlp_endpoint" env:"OTLP_ENDPOINT"`
	ServiceName  string  `yaml:"service_name" env:"SERVICE_NAME"`
	SampleRate   float64 `yaml:"sample_rate" env:"SAMPLE_RATE"`
}

// Validate checks the loaded configuration for obvious mistakes.
func (c *Config) Validate() error {
	var errs []string

	if c.Server.HTTPPort <= 0 || c.Server.HTTPPort > 65535 {
		errs = append(errs, "invalid HTTP port")
	}
	if c.Server.MetricsPort < 0 || c.Server.MetricsPort > 65535 {
		errs = append(errs, "invalid metrics port")
	}
	if c.Database.Driver != "" && c.Database.Driver != "postgres" && c.Database.Driver != "sqlite" {
		errs = append(errs, fmt.Sprintf("unsupported database driver %q", c.Database.Driver))
	}
	for tier, limits := range c.Quota.Tiers {
		if limits.RequestsPerHour <= 0 {
			errs = append(errs, fmt.Sprintf("tier %s has non-positive requests_per_hour", tier))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors: %s", strings.Join(errs, "; "))
	}
	return nil
}
