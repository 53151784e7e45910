package handlers

import (
	"net/http"
	"time"

	"github.com/venturelink/aigateway/api"
	"github.com/venturelink/aigateway/batcher"
	"github.com/venturelink/aigateway/internal/metrics"
	"github.com/venturelink/aigateway/quota"
	"go.uber.org/zap"
)

const maxBatchContexts = 100

// BatchHandler submits same-type task lists for grouped completion.
type BatchHandler struct {
	batcher *batcher.Batcher
	limiter *quota.Limiter
	metrics *metrics.Collector
	logger  *zap.Logger
}

// NewBatchHandler creates the batch endpoint handler. limiter and
// metrics may be nil.
func NewBatchHandler(b *batcher.Batcher, limiter *quota.Limiter, collector *metrics.Collector, logger *zap.Logger) *BatchHandler {
	return &BatchHandler{
		batcher: b,
		limiter: limiter,
		metrics: collector,
		logger:  logger.With(zap.String("component", "api.batch")),
	}
}

// HandleBatch handles POST /v1/batch. The whole submission counts as
// one request against the tenant's hourly quota.
func (h *BatchHandler) HandleBatch(w http.ResponseWriter, r *http.Request) {
	if !ValidateContentType(w, r, h.logger) {
		return
	}

	var req api.BatchRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}

	if req.OrgID == "" {
		WriteErrorMessage(w, http.StatusBadRequest, "INVALID_REQUEST", "org_id is required", h.logger)
		return
	}
	if req.TaskType == "" {
		WriteErrorMessage(w, http.StatusBadRequest, "INVALID_REQUEST", "task_type is required", h.logger)
		return
	}
	if len(req.Contexts) == 0 {
		WriteErrorMessage(w, http.StatusBadRequest, "INVALID_REQUEST", "contexts must not be empty", h.logger)
		return
	}
	if len(req.Contexts) > maxBatchContexts {
		WriteErrorMessage(w, http.StatusBadRequest, "INVALID_REQUEST", "too many contexts in one submission", h.logger)
		return
	}

	tier := TierFromRequest(r)
	if h.limiter != nil {
		if err := h.limiter.CheckAndIncrement(r.Context(), req.OrgID, tier); err != nil {
			if h.metrics != nil {
				scope := "requests_per_hour"
				if qe, ok := err.(*quota.QuotaExceededError); ok {
					scope = qe.Scope
				}
				h.metrics.RecordQuotaRejection(tier, scope)
			}
			WriteError(w, err, h.logger)
			return
		}
	}

	start := time.Now()
	results, err := h.batcher.BatchComplete(r.Context(), req.TaskType, req.Contexts)
	if err != nil {
		WriteError(w, err, h.logger)
		return
	}

	apiResults := make([]api.BatchResult, 0, len(results))
	batched := 0
	for _, res := range results {
		out := api.BatchResult{
			Index:   res.Index,
			Data:    res.Data,
			Batched: res.Batched,
		}
		if res.Err != nil {
			out.Error = res.Err.Error()
		}
		if res.Batched {
			batched++
		}
		apiResults = append(apiResults, out)
	}

	if h.metrics != nil {
		status := "batched"
		if batched < len(results) {
			status = "partial"
		}
		h.metrics.RecordBatchGroup(req.TaskType, status)
	}

	h.logger.Info("batch completion",
		zap.String("org_id", req.OrgID),
		zap.String("task_type", req.TaskType),
		zap.Int("contexts", len(req.Contexts)),
		zap.Int("batched", batched),
		zap.Duration("duration", time.Since(start)),
	)

	WriteSuccess(w, api.BatchResponse{
		TaskType: req.TaskType,
		Results:  apiResults,
	})
}
