package handlers

import (
	"net/http"
	"time"

	"github.com/venturelink/aigateway/api"
	"github.com/venturelink/aigateway/internal/metrics"
	"github.com/venturelink/aigateway/llm/tokenizer"
	"github.com/venturelink/aigateway/quota"
	"github.com/venturelink/aigateway/retrieval"
	"go.uber.org/zap"
)

// RAGHandler serves retrieval-augmented completions.
type RAGHandler struct {
	pipeline *retrieval.Pipeline
	limiter  *quota.Limiter
	tok      tokenizer.Tokenizer
	metrics  *metrics.Collector
	logger   *zap.Logger
}

// NewRAGHandler creates the RAG endpoint handler. limiter and metrics
// may be nil.
func NewRAGHandler(pipeline *retrieval.Pipeline, limiter *quota.Limiter, tok tokenizer.Tokenizer, collector *metrics.Collector, logger *zap.Logger) *RAGHandler {
	return &RAGHandler{
		pipeline: pipeline,
		limiter:  limiter,
		tok:      tok,
		metrics:  collector,
		logger:   logger.With(zap.String("component", "api.rag")),
	}
}

// HandleRAG handles POST /v1/rag.
func (h *RAGHandler) HandleRAG(w http.ResponseWriter, r *http.Request) {
	if !ValidateContentType(w, r, h.logger) {
		return
	}

	var req api.RAGRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}

	if req.OrgID == "" {
		WriteErrorMessage(w, http.StatusBadRequest, "INVALID_REQUEST", "org_id is required", h.logger)
		return
	}
	if req.Query == "" {
		WriteErrorMessage(w, http.StatusBadRequest, "INVALID_REQUEST", "query is required", h.logger)
		return
	}
	if req.TopK <= 0 {
		req.TopK = defaultTopK
	}

	tier := TierFromRequest(r)
	if h.limiter != nil {
		if err := h.limiter.CheckAndIncrement(r.Context(), req.OrgID, tier); err != nil {
			h.rejectQuota(w, err, tier)
			return
		}
		if err := h.limiter.CheckTokenBudget(r.Context(), req.OrgID, tier); err != nil {
			h.rejectQuota(w, err, tier)
			return
		}
	}

	start := time.Now()
	result, err := h.pipeline.CompleteWithContext(r.Context(), retrieval.CompletionRequest{
		Query:        req.Query,
		OrgID:        req.OrgID,
		IndexType:    req.IndexType,
		Filters:      req.Filters,
		TopK:         req.TopK,
		SystemPrompt: req.SystemPrompt,
		Model:        req.Model,
		Temperature:  req.Temperature,
		MaxTokens:    req.MaxTokens,
	})
	if err != nil {
		WriteError(w, err, h.logger)
		return
	}

	h.recordTokenUsage(r, req.OrgID, req.Query, result)

	h.logger.Info("rag completion",
		zap.String("org_id", req.OrgID),
		zap.String("model", result.ModelUsed),
		zap.Int("context_chunks", result.ChunksUsed),
		zap.Int("sources", len(result.SourceDocuments)),
		zap.Duration("duration", time.Since(start)),
	)

	WriteSuccess(w, api.RAGResponse{
		Content:        result.Content,
		ModelUsed:      result.ModelUsed,
		ContextChunks:  result.ChunksUsed,
		ContextSources: result.SourceDocuments,
		Usage: api.Usage{
			PromptTokens:     result.Usage.PromptTokens,
			CompletionTokens: result.Usage.CompletionTokens,
			TotalTokens:      result.Usage.TotalTokens,
		},
	})
}

func (h *RAGHandler) rejectQuota(w http.ResponseWriter, err error, tier string) {
	if h.metrics != nil {
		scope := "requests_per_hour"
		if qe, ok := err.(*quota.QuotaExceededError); ok {
			scope = qe.Scope
		}
		h.metrics.RecordQuotaRejection(tier, scope)
	}
	WriteError(w, err, h.logger)
}

// recordTokenUsage feeds the daily token counters from the provider's
// usage report, falling back to a tokenizer estimate when the provider
// returned none. Estimation failures are ignored.
func (h *RAGHandler) recordTokenUsage(r *http.Request, orgID, query string, result *retrieval.CompletionResult) {
	if h.limiter == nil {
		return
	}
	if result.Usage.TotalTokens > 0 {
		h.limiter.AddTokenUsage(r.Context(), orgID, result.Usage.TotalTokens)
		return
	}
	if h.tok == nil {
		return
	}
	prompt, err := h.tok.CountTokens(query)
	if err != nil {
		return
	}
	completion, err := h.tok.CountTokens(result.Content)
	if err != nil {
		return
	}
	h.limiter.AddTokenUsage(r.Context(), orgID, prompt+completion)
}
