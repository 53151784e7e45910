package llm

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenAIProviderCompletion(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"id": "cmpl-1",
			"model": "gpt-4o-mini",
			"created": 1700000000,
			"choices": [{"index": 0, "finish_reason": "stop", "message": {"role": "assistant", "content": "hello"}}],
			"usage": {"prompt_tokens": 10, "completion_tokens": 2, "total_tokens": 12}
		}`))
	}))
	defer srv.Close()

	p := NewOpenAIProvider(OpenAIConfig{APIKey: "test-key", BaseURL: srv.URL, Model: "gpt-4o-mini"}, nil)

	resp, err := p.Completion(context.Background(), &ChatRequest{
		Messages: []Message{{Role: RoleUser, Content: "hi"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "hello", resp.Content())
	assert.Equal(t, 12, resp.Usage.TotalTokens)
	assert.Equal(t, "openai", resp.Provider)
}

func TestOpenAIProviderEmptyRequest(t *testing.T) {
	p := NewOpenAIProvider(OpenAIConfig{APIKey: "k"}, nil)

	_, err := p.Completion(context.Background(), &ChatRequest{})
	require.Error(t, err)

	var gwErr *Error
	require.ErrorAs(t, err, &gwErr)
	assert.Equal(t, ErrInvalidRequest, gwErr.Code)
}

func TestOpenAIProviderErrorMapping(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		body      string
		wantCode  ErrorCode
		retryable bool
	}{
		{"rate limited", http.StatusTooManyRequests, `{"error":{"message":"slow down"}}`, ErrRateLimited, true},
		{"unauthorized", http.StatusUnauthorized, `{"error":{"message":"bad key"}}`, ErrUnauthorized, false},
		{"quota in 400", http.StatusBadRequest, `{"error":{"message":"quota exceeded"}}`, ErrQuotaExceeded, false},
		{"bad request", http.StatusBadRequest, `{"error":{"message":"missing model"}}`, ErrInvalidRequest, false},
		{"bad gateway", http.StatusBadGateway, `upstream down`, ErrUpstreamError, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			p := NewOpenAIProvider(OpenAIConfig{APIKey: "k", BaseURL: srv.URL}, nil)
			_, err := p.Completion(context.Background(), &ChatRequest{
				Messages: []Message{{Role: RoleUser, Content: "hi"}},
			})
			require.Error(t, err)

			var gwErr *Error
			require.ErrorAs(t, err, &gwErr)
			assert.Equal(t, tt.wantCode, gwErr.Code)
			assert.Equal(t, tt.retryable, gwErr.Retryable)
		})
	}
}

func TestOpenAIProviderTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	p := NewOpenAIProvider(OpenAIConfig{APIKey: "k", BaseURL: srv.URL}, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := p.Completion(ctx, &ChatRequest{Messages: []Message{{Role: RoleUser, Content: "hi"}}})
	require.Error(t, err)

	var gwErr *Error
	require.ErrorAs(t, err, &gwErr)
	assert.Equal(t, ErrUpstreamTimeout, gwErr.Code)
	assert.True(t, gwErr.Retryable)
}

func TestOpenAIProviderHealthCheck(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/models", r.URL.Path)
		w.Write([]byte(`{"data":[]}`))
	}))
	defer srv.Close()

	p := NewOpenAIProvider(OpenAIConfig{APIKey: "k", BaseURL: srv.URL}, nil)

	status, err := p.HealthCheck(context.Background())
	require.NoError(t, err)
	assert.True(t, status.Healthy)
	assert.Greater(t, status.Latency, time.Duration(0))
}

func TestReadErrorMessageFallback(t *testing.T) {
	assert.Equal(t, "plain text failure", readErrorMessage(strings.NewReader("plain text failure")))
	assert.Equal(t, "boom (type: server_error)",
		readErrorMessage(strings.NewReader(`{"error":{"message":"boom","type":"server_error"}}`)))
}
