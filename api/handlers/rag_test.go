package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/venturelink/aigateway/api"
	"github.com/venturelink/aigateway/llm"
	"github.com/venturelink/aigateway/llm/tokenizer"
	"github.com/venturelink/aigateway/quota"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestLimiter(t *testing.T, tiers map[string]quota.TierLimits) *quota.Limiter {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return quota.NewLimiter(client, tiers, zap.NewNop())
}

func ragBody() api.RAGRequest {
	return api.RAGRequest{
		OrgID: "org1",
		Query: "What are the renewal terms?",
	}
}

func TestRAGHandler_Success(t *testing.T) {
	provider := &mockProvider{
		completionFunc: func(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
			return textResponse("Sixty days notice is required."), nil
		},
	}
	pipeline := newTestPipeline(provider)
	ingest := NewIngestHandler(pipeline, nil, zap.NewNop())

	text := strings.Repeat("Contract renewal terms require sixty days notice. ", 40)
	rec := postJSON(t, ingest.HandleIngest, "/v1/ingest", api.IngestRequest{
		OrgID: "org1", DocumentID: "doc1", Text: text,
	})
	require.Equal(t, http.StatusOK, rec.Code)

	h := NewRAGHandler(pipeline, newTestLimiter(t, nil), tokenizer.ForModel("gpt-4o-mini"), nil, zap.NewNop())
	rec = postJSON(t, h.HandleRAG, "/v1/rag", ragBody())

	assert.Equal(t, http.StatusOK, rec.Code)
	var out api.RAGResponse
	dataAs(t, decodeResponse(t, rec), &out)
	assert.Equal(t, "Sixty days notice is required.", out.Content)
	assert.Equal(t, "mock-model", out.ModelUsed)
	assert.Greater(t, out.ContextChunks, 0)
	assert.Equal(t, []string{"doc1"}, out.ContextSources)
}

func TestRAGHandler_WireContract(t *testing.T) {
	provider := &mockProvider{
		completionFunc: func(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
			resp := textResponse("An answer.")
			resp.Model = req.Model
			resp.Usage = llm.ChatUsage{PromptTokens: 80, CompletionTokens: 20, TotalTokens: 100}
			return resp, nil
		},
	}
	h := NewRAGHandler(newTestPipeline(provider), nil, nil, nil, zap.NewNop())

	body := `{"org_id":"org1","query":"renewal terms","model":"gpt-4o","temperature":0.3,"max_tokens":256}`
	req := httptest.NewRequest(http.MethodPost, "/v1/rag", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.HandleRAG(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	resp := decodeResponse(t, rec)
	data, ok := resp.Data.(map[string]any)
	require.True(t, ok)
	for _, key := range []string{"content", "model_used", "context_chunks", "context_sources", "usage"} {
		assert.Contains(t, data, key)
	}

	var out api.RAGResponse
	dataAs(t, resp, &out)
	assert.Equal(t, "An answer.", out.Content)
	assert.Equal(t, "gpt-4o", out.ModelUsed)
	assert.Equal(t, 100, out.Usage.TotalTokens)
	assert.Equal(t, 80, out.Usage.PromptTokens)
}

func TestRAGHandler_QuotaExceeded(t *testing.T) {
	pipeline := newTestPipeline(&mockProvider{
		completionFunc: func(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
			return textResponse("ok"), nil
		},
	})
	limiter := newTestLimiter(t, map[string]quota.TierLimits{
		"free": {RequestsPerHour: 1, TokensPerDay: 1000},
	})
	h := NewRAGHandler(pipeline, limiter, tokenizer.ForModel("gpt-4o-mini"), nil, zap.NewNop())

	rec := postJSON(t, h.HandleRAG, "/v1/rag", ragBody())
	require.Equal(t, http.StatusOK, rec.Code)

	rec = postJSON(t, h.HandleRAG, "/v1/rag", ragBody())
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	resp := decodeResponse(t, rec)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "QUOTA_EXCEEDED", resp.Error.Code)
}

func TestRAGHandler_TokenUsageRecorded(t *testing.T) {
	pipeline := newTestPipeline(&mockProvider{
		completionFunc: func(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
			return textResponse("A short answer."), nil
		},
	})
	limiter := newTestLimiter(t, nil)
	h := NewRAGHandler(pipeline, limiter, tokenizer.ForModel("gpt-4o-mini"), nil, zap.NewNop())

	rec := postJSON(t, h.HandleRAG, "/v1/rag", ragBody())
	require.Equal(t, http.StatusOK, rec.Code)

	usage := limiter.GetUsage(context.Background(), "org1")
	assert.Greater(t, usage.DayTokens, int64(0))
}

func TestRAGHandler_ProviderUsagePreferred(t *testing.T) {
	pipeline := newTestPipeline(&mockProvider{
		completionFunc: func(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
			resp := textResponse("counted upstream")
			resp.Usage = llm.ChatUsage{PromptTokens: 90, CompletionTokens: 10, TotalTokens: 100}
			return resp, nil
		},
	})
	limiter := newTestLimiter(t, nil)
	h := NewRAGHandler(pipeline, limiter, nil, nil, zap.NewNop())

	rec := postJSON(t, h.HandleRAG, "/v1/rag", ragBody())
	require.Equal(t, http.StatusOK, rec.Code)

	usage := limiter.GetUsage(context.Background(), "org1")
	assert.Equal(t, int64(100), usage.DayTokens)
}

func TestRAGHandler_ProviderErrorPropagates(t *testing.T) {
	pipeline := newTestPipeline(&mockProvider{
		completionFunc: func(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
			return nil, &llm.Error{Code: llm.ErrUpstreamError, Message: "bad gateway", HTTPStatus: http.StatusBadGateway}
		},
	})
	h := NewRAGHandler(pipeline, newTestLimiter(t, nil), tokenizer.ForModel("gpt-4o-mini"), nil, zap.NewNop())

	rec := postJSON(t, h.HandleRAG, "/v1/rag", ragBody())
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestRAGHandler_Validation(t *testing.T) {
	h := NewRAGHandler(newTestPipeline(&mockProvider{}), nil, nil, nil, zap.NewNop())

	rec := postJSON(t, h.HandleRAG, "/v1/rag", api.RAGRequest{Query: "q"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = postJSON(t, h.HandleRAG, "/v1/rag", api.RAGRequest{OrgID: "o"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRAGHandler_RejectsNonJSON(t *testing.T) {
	h := NewRAGHandler(newTestPipeline(&mockProvider{}), nil, nil, nil, zap.NewNop())

	req := httptest.NewRequest(http.MethodPost, "/v1/rag", strings.NewReader("plain"))
	req.Header.Set("Content-Type", "text/plain")
	rec := httptest.NewRecorder()
	h.HandleRAG(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
