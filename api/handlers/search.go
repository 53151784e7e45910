package handlers

import (
	"net/http"
	"time"

	"github.com/venturelink/aigateway/api"
	"github.com/venturelink/aigateway/internal/metrics"
	"github.com/venturelink/aigateway/retrieval"
	"go.uber.org/zap"
)

const defaultTopK = 5

// SearchHandler serves hybrid retrieval queries.
type SearchHandler struct {
	pipeline *retrieval.Pipeline
	metrics  *metrics.Collector
	logger   *zap.Logger
}

// NewSearchHandler creates the search endpoint handler. metrics may be
// nil.
func NewSearchHandler(pipeline *retrieval.Pipeline, collector *metrics.Collector, logger *zap.Logger) *SearchHandler {
	return &SearchHandler{
		pipeline: pipeline,
		metrics:  collector,
		logger:   logger.With(zap.String("component", "api.search")),
	}
}

// HandleSearch handles POST /v1/search. Retrieval fails open: backend
// errors yield an empty result list, never a 5xx.
func (h *SearchHandler) HandleSearch(w http.ResponseWriter, r *http.Request) {
	if !ValidateContentType(w, r, h.logger) {
		return
	}

	var req api.SearchRequest
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

	start := time.Now()
	chunks := h.pipeline.Query(r.Context(), req.Query, req.OrgID, req.IndexType, req.Filters, req.TopK)
	duration := time.Since(start)

	status := "success"
	if len(chunks) == 0 {
		status = "empty"
	}
	if h.metrics != nil {
		h.metrics.RecordRetrievalQuery(req.IndexType, status, duration)
	}

	h.logger.Info("search query",
		zap.String("org_id", req.OrgID),
		zap.String("index_type", req.IndexType),
		zap.Int("results", len(chunks)),
		zap.Duration("duration", duration),
	)

	results := make([]api.SearchResult, 0, len(chunks))
	for _, c := range chunks {
		results = append(results, api.SearchResult{
			ID:         c.ID,
			DocumentID: c.DocumentID,
			Text:       c.Text,
			ChunkIndex: c.ChunkIndex,
			PageNumber: c.PageNumber,
			Score:      c.Score,
			Metadata:   c.Metadata,
		})
	}

	WriteSuccess(w, api.SearchResponse{Results: results, Total: len(results)})
}
