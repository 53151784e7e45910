package handlers

import (
	"net/http"
	"strconv"

	"github.com/venturelink/aigateway/api"
	"github.com/venturelink/aigateway/prompt"
	"go.uber.org/zap"
)

// TemplatesHandler is the administrative surface of the prompt
// registry: versioned creation, deactivation, and listing.
type TemplatesHandler struct {
	registry *prompt.Registry
	logger   *zap.Logger
}

// NewTemplatesHandler creates the template admin handler.
func NewTemplatesHandler(registry *prompt.Registry, logger *zap.Logger) *TemplatesHandler {
	return &TemplatesHandler{
		registry: registry,
		logger:   logger.With(zap.String("component", "api.templates")),
	}
}

// HandleCreate handles POST /v1/templates. The version is assigned by
// the registry.
func (h *TemplatesHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	if !ValidateContentType(w, r, h.logger) {
		return
	}

	var req api.CreateTemplateRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}

	tmpl := &prompt.Template{
		TaskType:           req.TaskType,
		SystemPrompt:       req.SystemPrompt,
		UserPromptTemplate: req.UserPromptTemplate,
		Variables:          req.Variables,
		TrafficPercentage:  req.TrafficPercentage,
		IsActive:           true,
	}
	if err := h.registry.Create(r.Context(), tmpl); err != nil {
		WriteErrorMessage(w, http.StatusBadRequest, "INVALID_REQUEST", err.Error(), h.logger)
		return
	}

	h.logger.Info("template created",
		zap.String("task_type", tmpl.TaskType),
		zap.Int("version", tmpl.Version),
		zap.Uint("id", tmpl.ID),
	)

	WriteJSON(w, http.StatusCreated, Response{
		Success: true,
		Data:    toTemplateResponse(tmpl),
	})
}

// HandleDeactivate handles POST /v1/templates/{id}/deactivate.
func (h *TemplatesHandler) HandleDeactivate(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseUint(r.PathValue("id"), 10, 32)
	if err != nil {
		WriteErrorMessage(w, http.StatusBadRequest, "INVALID_REQUEST", "invalid template id", h.logger)
		return
	}

	if _, err := h.registry.Get(r.Context(), uint(id)); err != nil {
		WriteErrorMessage(w, http.StatusNotFound, "NOT_FOUND", "template not found", h.logger)
		return
	}
	if err := h.registry.Deactivate(r.Context(), uint(id)); err != nil {
		WriteError(w, err, h.logger)
		return
	}

	h.logger.Info("template deactivated", zap.Uint64("id", id))
	WriteSuccess(w, map[string]any{"id": id, "is_active": false})
}

// HandleList handles GET /v1/templates?task_type=.
func (h *TemplatesHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	taskType := r.URL.Query().Get("task_type")
	if taskType == "" {
		WriteErrorMessage(w, http.StatusBadRequest, "INVALID_REQUEST", "task_type is required", h.logger)
		return
	}

	templates, err := h.registry.List(r.Context(), taskType)
	if err != nil {
		WriteError(w, err, h.logger)
		return
	}

	out := make([]api.TemplateResponse, 0, len(templates))
	for i := range templates {
		out = append(out, toTemplateResponse(&templates[i]))
	}
	WriteSuccess(w, out)
}

func toTemplateResponse(t *prompt.Template) api.TemplateResponse {
	return api.TemplateResponse{
		ID:                 t.ID,
		TaskType:           t.TaskType,
		Version:            t.Version,
		SystemPrompt:       t.SystemPrompt,
		UserPromptTemplate: t.UserPromptTemplate,
		Variables:          t.Variables,
		TrafficPercentage:  t.TrafficPercentage,
		IsActive:           t.IsActive,
		TotalUses:          t.TotalUses,
		AvgConfidence:      t.AvgConfidence,
	}
}
