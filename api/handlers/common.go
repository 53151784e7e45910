// Package handlers implements the gateway's HTTP endpoints.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/venturelink/aigateway/llm"
	"github.com/venturelink/aigateway/prompt"
	"github.com/venturelink/aigateway/quota"
	"go.uber.org/zap"
)

// Response is the envelope every endpoint writes.
type Response struct {
	Success   bool       `json:"success"`
	Data      any        `json:"data,omitempty"`
	Error     *ErrorInfo `json:"error,omitempty"`
	Timestamp time.Time  `json:"timestamp"`
	RequestID string     `json:"request_id,omitempty"`
}

// ErrorInfo is the serialized error body.
type ErrorInfo struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable,omitempty"`
}

// WriteJSON writes data as a JSON response with the given status.
func WriteJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// WriteSuccess writes a success envelope around data.
func WriteSuccess(w http.ResponseWriter, data any) {
	WriteJSON(w, http.StatusOK, Response{
		Success:   true,
		Data:      data,
		Timestamp: time.Now(),
	})
}

// WriteError maps a domain error to an HTTP status and writes the error
// envelope. Unknown errors become 500 INTERNAL without leaking detail.
func WriteError(w http.ResponseWriter, err error, logger *zap.Logger) {
	status, info := classifyError(err)

	if logger != nil {
		logger.Error("API error",
			zap.String("code", info.Code),
			zap.Int("status", status),
			zap.Error(err),
		)
	}

	WriteJSON(w, status, Response{
		Success:   false,
		Error:     info,
		Timestamp: time.Now(),
	})
}

// WriteErrorMessage writes a plain error envelope with the given status.
func WriteErrorMessage(w http.ResponseWriter, status int, code, message string, logger *zap.Logger) {
	if logger != nil {
		logger.Warn("API error",
			zap.String("code", code),
			zap.String("message", message),
			zap.Int("status", status),
		)
	}
	WriteJSON(w, status, Response{
		Success:   false,
		Error:     &ErrorInfo{Code: code, Message: message},
		Timestamp: time.Now(),
	})
}

func classifyError(err error) (int, *ErrorInfo) {
	var llmErr *llm.Error
	if errors.As(err, &llmErr) {
		status := llmErr.HTTPStatus
		if status == 0 {
			status = mapErrorCodeToHTTPStatus(llmErr.Code)
		}
		return status, &ErrorInfo{
			Code:      string(llmErr.Code),
			Message:   llmErr.Message,
			Retryable: llmErr.Retryable,
		}
	}

	var quotaErr *quota.QuotaExceededError
	if errors.As(err, &quotaErr) {
		return http.StatusTooManyRequests, &ErrorInfo{
			Code:    "QUOTA_EXCEEDED",
			Message: quotaErr.Error(),
		}
	}

	var missingErr *prompt.MissingVariablesError
	if errors.As(err, &missingErr) {
		return http.StatusBadRequest, &ErrorInfo{
			Code:    "MISSING_VARIABLES",
			Message: missingErr.Error(),
		}
	}

	return http.StatusInternalServerError, &ErrorInfo{
		Code:    "INTERNAL",
		Message: "internal server error",
	}
}

func mapErrorCodeToHTTPStatus(code llm.ErrorCode) int {
	switch code {
	case llm.ErrInvalidRequest:
		return http.StatusBadRequest
	case llm.ErrUnauthorized:
		return http.StatusUnauthorized
	case llm.ErrForbidden:
		return http.StatusForbidden
	case llm.ErrRateLimited:
		return http.StatusTooManyRequests
	case llm.ErrQuotaExceeded:
		return http.StatusPaymentRequired
	case llm.ErrUpstreamTimeout:
		return http.StatusGatewayTimeout
	case llm.ErrProviderUnavailable:
		return http.StatusServiceUnavailable
	case llm.ErrUpstreamError:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// DecodeJSONBody decodes the request body into dst, rejecting unknown
// fields. On failure it writes a 400 response and returns the error.
func DecodeJSONBody(w http.ResponseWriter, r *http.Request, dst any, logger *zap.Logger) error {
	if r.Body == nil {
		err := &llm.Error{Code: llm.ErrInvalidRequest, Message: "request body is empty", HTTPStatus: http.StatusBadRequest}
		WriteError(w, err, logger)
		return err
	}

	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()

	if err := decoder.Decode(dst); err != nil {
		apiErr := &llm.Error{Code: llm.ErrInvalidRequest, Message: "invalid JSON body", HTTPStatus: http.StatusBadRequest}
		WriteError(w, apiErr, logger)
		return apiErr
	}
	return nil
}

// ValidateContentType rejects requests without a JSON content type.
func ValidateContentType(w http.ResponseWriter, r *http.Request, logger *zap.Logger) bool {
	contentType := r.Header.Get("Content-Type")
	if !strings.HasPrefix(contentType, "application/json") {
		WriteErrorMessage(w, http.StatusBadRequest, "INVALID_REQUEST", "Content-Type must be application/json", logger)
		return false
	}
	return true
}

// TierFromRequest reads the tenant tier resolved by the auth middleware.
// Unknown or absent tiers fall back to free.
func TierFromRequest(r *http.Request) string {
	if tier := r.Header.Get("X-Tier"); tier != "" {
		return tier
	}
	return "free"
}

// ResponseWriter wraps http.ResponseWriter to capture the status code
// for middleware logging and metrics.
type ResponseWriter struct {
	http.ResponseWriter
	StatusCode int
	Written    bool
}

// NewResponseWriter wraps w with a default 200 status.
func NewResponseWriter(w http.ResponseWriter) *ResponseWriter {
	return &ResponseWriter{ResponseWriter: w, StatusCode: http.StatusOK}
}

func (rw *ResponseWriter) WriteHeader(code int) {
	if !rw.Written {
		rw.StatusCode = code
		rw.Written = true
		rw.ResponseWriter.WriteHeader(code)
	}
}

func (rw *ResponseWriter) Write(b []byte) (int, error) {
	if !rw.Written {
		rw.WriteHeader(http.StatusOK)
	}
	return rw.ResponseWriter.Write(b)
}
