// Package metrics provides Prometheus metrics collection for the gateway.
// This package is internal and should not be imported by external projects.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// Collector registers and records the gateway's Prometheus metrics.
// All vectors are registered on the default registry via promauto, so a
// Collector must be created at most once per namespace per process.
type Collector struct {
	// HTTP metrics
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// Completion metrics
	llmRequestsTotal   *prometheus.CounterVec
	llmRequestDuration *prometheus.HistogramVec
	llmTokensUsed      *prometheus.CounterVec

	// Retrieval metrics
	ingestedChunks     *prometheus.CounterVec
	retrievalQueries   *prometheus.CounterVec
	retrievalDuration  *prometheus.HistogramVec
	degradedEmbeddings *prometheus.CounterVec

	// Batching metrics
	batchGroups    *prometheus.CounterVec
	batchFallbacks *prometheus.CounterVec

	// Quota metrics
	quotaRejections *prometheus.CounterVec

	// Prompt registry metrics
	templateCacheHits   *prometheus.CounterVec
	templateCacheMisses *prometheus.CounterVec

	logger *zap.Logger
}

// NewCollector creates a Collector with all metric vectors registered
// under the given namespace.
func NewCollector(namespace string, logger *zap.Logger) *Collector {
	c := &Collector{
		logger: logger.With(zap.String("component", "metrics")),
	}

	c.httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	c.httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	c.llmRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_requests_total",
			Help:      "Total number of LLM completion requests",
		},
		[]string{"provider", "model", "status"},
	)

	c.llmRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "llm_request_duration_seconds",
			Help:      "LLM completion request duration in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"provider", "model"},
	)

	c.llmTokensUsed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_tokens_used_total",
			Help:      "Total number of tokens used",
		},
		[]string{"provider", "model", "type"}, // type: prompt, completion
	)

	c.ingestedChunks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ingested_chunks_total",
			Help:      "Total number of document chunks stored",
		},
		[]string{"index_type"},
	)

	c.retrievalQueries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "retrieval_queries_total",
			Help:      "Total number of retrieval queries",
		},
		[]string{"index_type", "status"},
	)

	c.retrievalDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "retrieval_query_duration_seconds",
			Help:      "Retrieval query duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"index_type"},
	)

	c.degradedEmbeddings = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "degraded_embeddings_total",
			Help:      "Total number of texts embedded with stub vectors",
		},
		[]string{"provider"},
	)

	c.batchGroups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "batch_groups_total",
			Help:      "Total number of batch completion groups processed",
		},
		[]string{"task_type", "status"},
	)

	c.batchFallbacks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "batch_fallbacks_total",
			Help:      "Total number of batch groups retried as individual calls",
		},
		[]string{"task_type", "reason"},
	)

	c.quotaRejections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "quota_rejections_total",
			Help:      "Total number of requests rejected by tenant quotas",
		},
		[]string{"tier", "scope"},
	)

	c.templateCacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "template_cache_hits_total",
			Help:      "Total number of prompt template cache hits",
		},
		[]string{"task_type"},
	)

	c.templateCacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "template_cache_misses_total",
			Help:      "Total number of prompt template cache misses",
		},
		[]string{"task_type"},
	)

	c.logger.Info("metrics collector initialized", zap.String("namespace", namespace))
	return c
}

// RecordHTTPRequest records one served HTTP request.
func (c *Collector) RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	c.httpRequestsTotal.WithLabelValues(method, path, statusClass(status)).Inc()
	c.httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordLLMRequest records one completion call against an upstream provider.
func (c *Collector) RecordLLMRequest(provider, model, status string, duration time.Duration, promptTokens, completionTokens int) {
	c.llmRequestsTotal.WithLabelValues(provider, model, status).Inc()
	c.llmRequestDuration.WithLabelValues(provider, model).Observe(duration.Seconds())
	c.llmTokensUsed.WithLabelValues(provider, model, "prompt").Add(float64(promptTokens))
	c.llmTokensUsed.WithLabelValues(provider, model, "completion").Add(float64(completionTokens))
}

// RecordIngestedChunks records chunks stored during document ingestion.
func (c *Collector) RecordIngestedChunks(indexType string, count int) {
	c.ingestedChunks.WithLabelValues(indexType).Add(float64(count))
}

// RecordRetrievalQuery records one retrieval query and its duration.
func (c *Collector) RecordRetrievalQuery(indexType, status string, duration time.Duration) {
	c.retrievalQueries.WithLabelValues(indexType, status).Inc()
	c.retrievalDuration.WithLabelValues(indexType).Observe(duration.Seconds())
}

// RecordDegradedEmbeddings records texts that fell back to stub vectors.
func (c *Collector) RecordDegradedEmbeddings(provider string, count int) {
	c.degradedEmbeddings.WithLabelValues(provider).Add(float64(count))
}

// RecordBatchGroup records one processed batch group.
func (c *Collector) RecordBatchGroup(taskType, status string) {
	c.batchGroups.WithLabelValues(taskType, status).Inc()
}

// RecordBatchFallback records a batch group that was retried individually.
func (c *Collector) RecordBatchFallback(taskType, reason string) {
	c.batchFallbacks.WithLabelValues(taskType, reason).Inc()
}

// RecordQuotaRejection records a request rejected by tenant quotas.
func (c *Collector) RecordQuotaRejection(tier, scope string) {
	c.quotaRejections.WithLabelValues(tier, scope).Inc()
}

// RecordTemplateCacheHit records a prompt selection served from cache.
func (c *Collector) RecordTemplateCacheHit(taskType string) {
	c.templateCacheHits.WithLabelValues(taskType).Inc()
}

// RecordTemplateCacheMiss records a prompt selection that hit the database.
func (c *Collector) RecordTemplateCacheMiss(taskType string) {
	c.templateCacheMisses.WithLabelValues(taskType).Inc()
}

// statusClass buckets an HTTP status code into its class to keep label
// cardinality bounded.
func statusClass(code int) string {
	switch {
	case code >= 200 && code < 300:
		return "2xx"
	case code >= 300 && code < 400:
		return "3xx"
	case code >= 400 && code < 500:
		return "4xx"
	case code >= 500:
		return "5xx"
	default:
		return "unknown"
	}
}
