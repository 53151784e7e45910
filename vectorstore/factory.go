package vectorstore

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Config selects the vector store backend at startup.
type Config struct {
	// Backend is "memory" or "qdrant". Empty means memory.
	Backend string       `yaml:"backend" json:"backend"`
	Qdrant  QdrantConfig `yaml:"qdrant" json:"qdrant"`
}

// New builds the configured Store. When the external backend is configured
// but unreachable it falls back to the in-memory store with a warning, so a
// broken index never blocks startup.
func New(ctx context.Context, cfg Config, logger *zap.Logger) Store {
	if logger == nil {
		logger = zap.NewNop()
	}

	switch cfg.Backend {
	case "qdrant":
		store := NewQdrantStore(cfg.Qdrant, logger)

		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := store.Ping(pingCtx); err != nil {
			logger.Warn("qdrant unreachable, falling back to in-memory vector store",
				zap.String("base_url", store.baseURL),
				zap.Error(err))
			return NewMemoryStore(logger)
		}

		logger.Info("using qdrant vector store", zap.String("base_url", store.baseURL))
		return store
	default:
		logger.Info("using in-memory vector store")
		return NewMemoryStore(logger)
	}
}
