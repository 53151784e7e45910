package main

import (
	"context"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/venturelink/aigateway/api/handlers"
	"github.com/venturelink/aigateway/batcher"
	"github.com/venturelink/aigateway/config"
	"github.com/venturelink/aigateway/internal/metrics"
	"github.com/venturelink/aigateway/internal/server"
	"github.com/venturelink/aigateway/internal/telemetry"
	"github.com/venturelink/aigateway/llm"
	"github.com/venturelink/aigateway/llm/embedding"
	"github.com/venturelink/aigateway/llm/tokenizer"
	"github.com/venturelink/aigateway/prompt"
	"github.com/venturelink/aigateway/quota"
	"github.com/venturelink/aigateway/retrieval"
	"github.com/venturelink/aigateway/vectorstore"
)

// Server assembles the gateway's components and owns their lifecycle.
type Server struct {
	cfg    *config.Config
	logger *zap.Logger
	otel   *telemetry.Providers
	db     *gorm.DB

	httpManager    *server.Manager
	metricsManager *server.Manager

	redisClient *redis.Client
	collector   *metrics.Collector

	healthHandler    *handlers.HealthHandler
	ingestHandler    *handlers.IngestHandler
	searchHandler    *handlers.SearchHandler
	ragHandler       *handlers.RAGHandler
	batchHandler     *handlers.BatchHandler
	usageHandler     *handlers.UsageHandler
	templatesHandler *handlers.TemplatesHandler

	rateLimiterCancel context.CancelFunc
}

// NewServer creates a Server from loaded configuration. db may be nil,
// which disables the prompt registry surface.
func NewServer(cfg *config.Config, logger *zap.Logger, otelProviders *telemetry.Providers, db *gorm.DB) *Server {
	return &Server{
		cfg:    cfg,
		logger: logger,
		otel:   otelProviders,
		db:     db,
	}
}

// Start brings up all components and both listeners.
func (s *Server) Start() error {
	s.collector = metrics.NewCollector("aigateway", s.logger)

	if err := s.initHandlers(); err != nil {
		return fmt.Errorf("failed to init handlers: %w", err)
	}
	if err := s.startHTTPServer(); err != nil {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}
	if err := s.startMetricsServer(); err != nil {
		return fmt.Errorf("failed to start metrics server: %w", err)
	}

	s.logger.Info("all servers started",
		zap.Int("http_port", s.cfg.Server.HTTPPort),
		zap.Int("metrics_port", s.cfg.Server.MetricsPort),
	)
	return nil
}

func (s *Server) initHandlers() error {
	s.healthHandler = handlers.NewHealthHandler(s.logger)

	// Redis backs the quota counters and is probed for readiness.
	s.redisClient = redis.NewClient(&redis.Options{
		Addr:     s.cfg.Redis.Addr,
		Password: s.cfg.Redis.Password,
		DB:       s.cfg.Redis.DB,
		PoolSize: s.cfg.Redis.PoolSize,
	})
	s.healthHandler.RegisterCheck(handlers.NewPingCheck("redis", func(ctx context.Context) error {
		return s.redisClient.Ping(ctx).Err()
	}))

	if s.db != nil {
		s.healthHandler.RegisterCheck(handlers.NewPingCheck("database", func(ctx context.Context) error {
			sqlDB, err := s.db.DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		}))
	}

	limiter := quota.NewLimiter(s.redisClient, s.cfg.Quota.Tiers, s.logger)

	store := vectorstore.New(context.Background(), s.cfg.VectorStore, s.logger)

	provider := llm.NewOpenAIProvider(llm.OpenAIConfig{
		APIKey:  s.cfg.LLM.APIKey,
		BaseURL: s.cfg.LLM.BaseURL,
		Model:   s.cfg.LLM.Model,
		Timeout: s.cfg.LLM.Timeout,
	}, s.logger)

	embedder := embedding.NewResilient(embedding.NewOpenAIProvider(embedding.OpenAIConfig{
		APIKey:     s.cfg.Embedding.APIKey,
		BaseURL:    s.cfg.Embedding.BaseURL,
		Model:      s.cfg.Embedding.Model,
		Dimensions: s.cfg.Embedding.Dimensions,
		Timeout:    s.cfg.Embedding.Timeout,
	}), s.logger)

	pipeline := retrieval.NewPipeline(store, embedder, provider, s.logger)
	tok := tokenizer.ForModel(s.cfg.LLM.Model)

	s.ingestHandler = handlers.NewIngestHandler(pipeline, s.collector, s.logger)
	s.searchHandler = handlers.NewSearchHandler(pipeline, s.collector, s.logger)
	s.ragHandler = handlers.NewRAGHandler(pipeline, limiter, tok, s.collector, s.logger)
	s.usageHandler = handlers.NewUsageHandler(limiter, s.logger)

	var registry *prompt.Registry
	if s.db != nil {
		registry = prompt.NewRegistry(s.db, nil, s.logger)
		s.templatesHandler = handlers.NewTemplatesHandler(registry, s.logger)
	} else {
		s.logger.Info("prompt registry disabled, template routes not registered")
	}

	b := batcher.New(provider, batchSystemPrompt(registry), s.logger)
	s.batchHandler = handlers.NewBatchHandler(b, limiter, s.collector, s.logger)

	s.logger.Info("handlers initialized")
	return nil
}

// batchSystemPrompt resolves batch system prompts from the registry's
// active template for a task type, via the read-only lookup so the
// template's use counter is untouched. Falls back to the batcher's
// builtin prompt when the registry is absent or has no template.
func batchSystemPrompt(registry *prompt.Registry) batcher.SystemPromptFunc {
	if registry == nil {
		return nil
	}
	return func(ctx context.Context, taskType string) string {
		system, err := registry.SystemPrompt(ctx, taskType)
		if err != nil {
			return ""
		}
		return system
	}
}

func (s *Server) startHTTPServer() error {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.healthHandler.HandleHealth)
	mux.HandleFunc("GET /healthz", s.healthHandler.HandleHealth)
	mux.HandleFunc("GET /ready", s.healthHandler.HandleReady)
	mux.HandleFunc("GET /readyz", s.healthHandler.HandleReady)
	mux.HandleFunc("GET /version", s.healthHandler.HandleVersion(Version, BuildTime, GitCommit))

	mux.HandleFunc("POST /v1/ingest", s.ingestHandler.HandleIngest)
	mux.HandleFunc("POST /v1/search", s.searchHandler.HandleSearch)
	mux.HandleFunc("POST /v1/rag", s.ragHandler.HandleRAG)
	mux.HandleFunc("POST /v1/batch", s.batchHandler.HandleBatch)
	mux.HandleFunc("GET /v1/usage", s.usageHandler.HandleUsage)

	if s.templatesHandler != nil {
		mux.HandleFunc("POST /v1/templates", s.templatesHandler.HandleCreate)
		mux.HandleFunc("GET /v1/templates", s.templatesHandler.HandleList)
		mux.HandleFunc("POST /v1/templates/{id}/deactivate", s.templatesHandler.HandleDeactivate)
		s.logger.Info("template admin routes registered")
	}

	skipAuthPaths := []string{"/health", "/healthz", "/ready", "/readyz", "/version"}
	rateLimiterCtx, cancel := context.WithCancel(context.Background())
	s.rateLimiterCancel = cancel

	handler := Chain(mux,
		Recovery(s.logger),
		RequestID(),
		SecurityHeaders(),
		RequestLogger(s.logger),
		MetricsMiddleware(s.collector),
		OTelTracing(),
		CORS(s.cfg.Server.CORSAllowedOrigins),
		RateLimiter(rateLimiterCtx, s.cfg.Server.IPRateLimit, s.cfg.Server.IPRateBurst, s.logger),
		APIKeyAuth(s.cfg.Server.APIKeys, skipAuthPaths, s.logger),
	)

	serverConfig := server.Config{
		Addr:            fmt.Sprintf(":%d", s.cfg.Server.HTTPPort),
		ReadTimeout:     s.cfg.Server.ReadTimeout,
		WriteTimeout:    s.cfg.Server.WriteTimeout,
		IdleTimeout:     2 * s.cfg.Server.ReadTimeout,
		MaxHeaderBytes:  1 << 20,
		ShutdownTimeout: s.cfg.Server.ShutdownTimeout,
	}

	s.httpManager = server.NewManager(serverConfig, handler, s.logger)
	if err := s.httpManager.Start(); err != nil {
		return err
	}

	s.logger.Info("HTTP server started", zap.Int("port", s.cfg.Server.HTTPPort))
	return nil
}

func (s *Server) startMetricsServer() error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	serverConfig := server.Config{
		Addr:            fmt.Sprintf(":%d", s.cfg.Server.MetricsPort),
		ReadTimeout:     s.cfg.Server.ReadTimeout,
		WriteTimeout:    s.cfg.Server.WriteTimeout,
		ShutdownTimeout: s.cfg.Server.ShutdownTimeout,
	}

	s.metricsManager = server.NewManager(serverConfig, mux, s.logger)
	if err := s.metricsManager.Start(); err != nil {
		return err
	}

	s.logger.Info("metrics server started", zap.Int("port", s.cfg.Server.MetricsPort))
	return nil
}

// WaitForShutdown blocks until a signal arrives, then shuts everything
// down.
func (s *Server) WaitForShutdown() {
	if s.httpManager != nil {
		s.httpManager.WaitForShutdown()
	}
	s.Shutdown()
}

// Shutdown stops both listeners and releases component resources.
func (s *Server) Shutdown() {
	s.logger.Info("starting graceful shutdown")
	ctx := context.Background()

	if s.rateLimiterCancel != nil {
		s.rateLimiterCancel()
	}
	if s.httpManager != nil {
		if err := s.httpManager.Shutdown(ctx); err != nil {
			s.logger.Error("HTTP server shutdown error", zap.Error(err))
		}
	}
	if s.metricsManager != nil {
		if err := s.metricsManager.Shutdown(ctx); err != nil {
			s.logger.Error("metrics server shutdown error", zap.Error(err))
		}
	}
	if s.redisClient != nil {
		if err := s.redisClient.Close(); err != nil {
			s.logger.Error("redis close error", zap.Error(err))
		}
	}
	if s.otel != nil {
		if err := s.otel.Shutdown(ctx); err != nil {
			s.logger.Error("telemetry shutdown error", zap.Error(err))
		}
	}

	s.logger.Info("graceful shutdown completed")
}
