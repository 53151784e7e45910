package config

import (
	"time"

	"github.com/venturelink/aigateway/quota"
	"github.com/venturelink/aigateway/vectorstore"
)

// DefaultConfig returns a configuration suitable for local development. A
// production deployment overrides the external endpoints via YAML or
// environment.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			HTTPPort:        8080,
			MetricsPort:     9090,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    120 * time.Second,
			ShutdownTimeout: 15 * time.Second,
			IPRateLimit:     50,
			IPRateBurst:     100,
		},
		Redis: RedisConfig{
			Addr:     "localhost:6379",
			DB:       0,
			PoolSize: 10,
		},
		Database: DatabaseConfig{
			Driver:  "sqlite",
			Name:    "aigateway.db",
			SSLMode: "disable",
		},
		VectorStore: vectorstore.Config{
			Backend: "memory",
			Qdrant: vectorstore.QdrantConfig{
				Host: "localhost",
				Port: 6333,
			},
		},
		LLM: LLMConfig{
			Model:   "gpt-4o-mini",
			Timeout: 60 * time.Second,
		},
		Embedding: EmbeddingConfig{
			Model:      "text-embedding-3-small",
			Dimensions: 1536,
			Timeout:    30 * time.Second,
		},
		Quota: QuotaConfig{
			Tiers: quota.DefaultTiers(),
		},
		Log: LogConfig{
			Level:       "info",
			Format:      "json",
			OutputPaths: []string{"stdout"},
		},
		Telemetry: TelemetryConfig{
			Enabled:     false,
			ServiceName: "aigateway",
			SampleRate:  1.0,
		},
	}
}
