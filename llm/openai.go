package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	defaultOpenAIBaseURL = "https://api.openai.com/v1"
	defaultOpenAITimeout = 60 * time.Second
)

// OpenAIConfig configures the OpenAI-compatible completion client. BaseURL
// may point at any endpoint speaking the chat completions dialect.
type OpenAIConfig struct {
	APIKey  string        `yaml:"api_key" json:"api_key"`
	BaseURL string        `yaml:"base_url" json:"base_url"`
	Model   string        `yaml:"model" json:"model"`
	Timeout time.Duration `yaml:"timeout" json:"timeout"`
}

// OpenAIProvider implements Provider against an OpenAI-compatible API.
type OpenAIProvider struct {
	cfg    OpenAIConfig
	client *http.Client
	logger *zap.Logger
}

var _ Provider = (*OpenAIProvider)(nil)

func NewOpenAIProvider(cfg OpenAIConfig, logger *zap.Logger) *OpenAIProvider {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultOpenAIBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultOpenAITimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OpenAIProvider{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		logger: logger.With(zap.String("component", "llm.openai")),
	}
}

func (p *OpenAIProvider) Name() string { return "openai" }

type openAIChatRequest struct {
	Model       string          `json:"model"`
	Messages    []openAIMessage `json:"messages"`
	MaxTokens   int             `json:"max_tokens,omitempty"`
	Temperature float32         `json:"temperature,omitempty"`
}

type openAIMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIChatResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Created int64  `json:"created"`
	Choices []struct {
		Index        int           `json:"index"`
		FinishReason string        `json:"finish_reason"`
		Message      openAIMessage `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

func (p *OpenAIProvider) Completion(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	if req == nil || len(req.Messages) == 0 {
		return nil, &Error{Code: ErrInvalidRequest, Message: "completion request requires at least one message", HTTPStatus: http.StatusBadRequest, Provider: p.Name()}
	}

	model := req.Model
	if model == "" {
		model = p.cfg.Model
	}

	body := openAIChatRequest{
		Model:       model,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
	}
	for _, m := range req.Messages {
		body.Messages = append(body.Messages, openAIMessage{Role: string(m.Role), Content: m.Content})
	}

	var out openAIChatResponse
	if err := p.doJSON(ctx, http.MethodPost, "/chat/completions", body, &out); err != nil {
		return nil, err
	}

	resp := &ChatResponse{
		ID:        out.ID,
		Provider:  p.Name(),
		Model:     out.Model,
		CreatedAt: time.Unix(out.Created, 0),
		Usage: ChatUsage{
			PromptTokens:     out.Usage.PromptTokens,
			CompletionTokens: out.Usage.CompletionTokens,
			TotalTokens:      out.Usage.TotalTokens,
		},
	}
	for _, c := range out.Choices {
		resp.Choices = append(resp.Choices, ChatChoice{
			Index:        c.Index,
			FinishReason: c.FinishReason,
			Message:      Message{Role: Role(c.Message.Role), Content: c.Message.Content},
		})
	}
	return resp, nil
}

func (p *OpenAIProvider) HealthCheck(ctx context.Context) (*HealthStatus, error) {
	start := time.Now()
	var out struct {
		Data []json.RawMessage `json:"data"`
	}
	err := p.doJSON(ctx, http.MethodGet, "/models", nil, &out)
	status := &HealthStatus{Healthy: err == nil, Latency: time.Since(start)}
	return status, err
}

// doJSON issues a request against the provider API and decodes the response
// into out. Non-2xx responses are mapped to typed errors.
func (p *OpenAIProvider) doJSON(ctx context.Context, method, path string, in, out any) error {
	var reqBody io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return &Error{Code: ErrInvalidRequest, Message: fmt.Sprintf("encode request: %v", err), HTTPStatus: http.StatusBadRequest, Provider: p.Name()}
		}
		reqBody = bytes.NewReader(data)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, p.cfg.BaseURL+path, reqBody)
	if err != nil {
		return &Error{Code: ErrInvalidRequest, Message: err.Error(), HTTPStatus: http.StatusBadRequest, Provider: p.Name()}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+p.cfg.APIKey)

	httpResp, err := p.client.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return &Error{Code: ErrUpstreamTimeout, Message: err.Error(), HTTPStatus: http.StatusGatewayTimeout, Retryable: true, Provider: p.Name()}
		}
		return &Error{Code: ErrProviderUnavailable, Message: err.Error(), HTTPStatus: http.StatusBadGateway, Retryable: true, Provider: p.Name()}
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		msg := readErrorMessage(httpResp.Body)
		p.logger.Warn("upstream returned error",
			zap.Int("status", httpResp.StatusCode),
			zap.String("path", path))
		return mapHTTPError(httpResp.StatusCode, msg, p.Name())
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(httpResp.Body).Decode(out); err != nil {
		return &Error{Code: ErrUpstreamError, Message: fmt.Sprintf("decode response: %v", err), HTTPStatus: http.StatusBadGateway, Retryable: true, Provider: p.Name()}
	}
	return nil
}

// mapHTTPError maps an upstream HTTP status to a typed error with the
// appropriate retry flag.
func mapHTTPError(status int, msg, provider string) *Error {
	switch status {
	case http.StatusUnauthorized:
		return &Error{Code: ErrUnauthorized, Message: msg, HTTPStatus: status, Provider: provider}
	case http.StatusForbidden:
		return &Error{Code: ErrForbidden, Message: msg, HTTPStatus: status, Provider: provider}
	case http.StatusTooManyRequests:
		return &Error{Code: ErrRateLimited, Message: msg, HTTPStatus: status, Retryable: true, Provider: provider}
	case http.StatusBadRequest:
		lower := strings.ToLower(msg)
		if strings.Contains(lower, "quota") || strings.Contains(lower, "credit") || strings.Contains(lower, "limit") {
			return &Error{Code: ErrQuotaExceeded, Message: msg, HTTPStatus: status, Provider: provider}
		}
		return &Error{Code: ErrInvalidRequest, Message: msg, HTTPStatus: status, Provider: provider}
	case http.StatusServiceUnavailable, http.StatusBadGateway, http.StatusGatewayTimeout:
		return &Error{Code: ErrUpstreamError, Message: msg, HTTPStatus: status, Retryable: true, Provider: provider}
	default:
		return &Error{Code: ErrUpstreamError, Message: msg, HTTPStatus: status, Retryable: status >= 500, Provider: provider}
	}
}

// readErrorMessage extracts the error message from an upstream error body,
// falling back to the raw text when it is not the usual JSON envelope.
func readErrorMessage(body io.Reader) string {
	data, err := io.ReadAll(body)
	if err != nil {
		return "failed to read error response"
	}
	var errResp struct {
		Error struct {
			Message string `json:"message"`
			Type    string `json:"type"`
		} `json:"error"`
	}
	if err := json.Unmarshal(data, &errResp); err == nil && errResp.Error.Message != "" {
		if errResp.Error.Type != "" {
			return fmt.Sprintf("%s (type: %s)", errResp.Error.Message, errResp.Error.Type)
		}
		return errResp.Error.Message
	}
	return string(data)
}
