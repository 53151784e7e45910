package handlers

import (
	"net/http"
	"time"

	"github.com/venturelink/aigateway/api"
	"github.com/venturelink/aigateway/internal/metrics"
	"github.com/venturelink/aigateway/retrieval"
	"go.uber.org/zap"
)

// IngestHandler accepts documents for chunking, embedding, and storage.
type IngestHandler struct {
	pipeline *retrieval.Pipeline
	metrics  *metrics.Collector
	logger   *zap.Logger
}

// NewIngestHandler creates the ingest endpoint handler. metrics may be
// nil.
func NewIngestHandler(pipeline *retrieval.Pipeline, collector *metrics.Collector, logger *zap.Logger) *IngestHandler {
	return &IngestHandler{
		pipeline: pipeline,
		metrics:  collector,
		logger:   logger.With(zap.String("component", "api.ingest")),
	}
}

// HandleIngest handles POST /v1/ingest.
func (h *IngestHandler) HandleIngest(w http.ResponseWriter, r *http.Request) {
	if !ValidateContentType(w, r, h.logger) {
		return
	}

	var req api.IngestRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}

	if req.OrgID == "" {
		WriteErrorMessage(w, http.StatusBadRequest, "INVALID_REQUEST", "org_id is required", h.logger)
		return
	}
	if req.DocumentID == "" {
		WriteErrorMessage(w, http.StatusBadRequest, "INVALID_REQUEST", "document_id is required", h.logger)
		return
	}
	if req.Text == "" {
		WriteErrorMessage(w, http.StatusBadRequest, "INVALID_REQUEST", "text is required", h.logger)
		return
	}

	start := time.Now()
	stored, err := h.pipeline.IngestDocument(r.Context(), req.DocumentID, req.Text, req.OrgID, req.Metadata, req.IndexType)
	if err != nil {
		WriteError(w, err, h.logger)
		return
	}

	if h.metrics != nil {
		h.metrics.RecordIngestedChunks(req.IndexType, stored)
	}

	h.logger.Info("document ingested",
		zap.String("org_id", req.OrgID),
		zap.String("document_id", req.DocumentID),
		zap.Int("chunks_stored", stored),
		zap.Duration("duration", time.Since(start)),
	)

	WriteSuccess(w, api.IngestResponse{
		DocumentID:   req.DocumentID,
		ChunksStored: stored,
	})
}
