package handlers

import (
	"net/http"

	"github.com/venturelink/aigateway/api"
	"github.com/venturelink/aigateway/quota"
	"go.uber.org/zap"
)

// UsageHandler exposes a tenant's current quota consumption.
type UsageHandler struct {
	limiter *quota.Limiter
	logger  *zap.Logger
}

// NewUsageHandler creates the usage endpoint handler.
func NewUsageHandler(limiter *quota.Limiter, logger *zap.Logger) *UsageHandler {
	return &UsageHandler{
		limiter: limiter,
		logger:  logger.With(zap.String("component", "api.usage")),
	}
}

// HandleUsage handles GET /v1/usage?org_id=.
func (h *UsageHandler) HandleUsage(w http.ResponseWriter, r *http.Request) {
	orgID := r.URL.Query().Get("org_id")
	if orgID == "" {
		WriteErrorMessage(w, http.StatusBadRequest, "INVALID_REQUEST", "org_id is required", h.logger)
		return
	}

	tier := TierFromRequest(r)
	usage := h.limiter.GetUsage(r.Context(), orgID)
	limits := h.limiter.Limits(tier)

	WriteSuccess(w, api.UsageResponse{
		OrgID:           orgID,
		Tier:            tier,
		HourRequests:    usage.HourRequests,
		DayRequests:     usage.DayRequests,
		DayTokens:       usage.DayTokens,
		RequestsPerHour: limits.RequestsPerHour,
		TokensPerDay:    limits.TokensPerDay,
	})
}
