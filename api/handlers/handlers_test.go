package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/venturelink/aigateway/llm"
	"github.com/venturelink/aigateway/llm/embedding"
	"github.com/venturelink/aigateway/retrieval"
	"github.com/venturelink/aigateway/vectorstore"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type mockProvider struct {
	completionFunc func(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error)
}

func (m *mockProvider) Completion(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
	if m.completionFunc != nil {
		return m.completionFunc(ctx, req)
	}
	return nil, errors.New("not implemented")
}

func (m *mockProvider) HealthCheck(ctx context.Context) (*llm.HealthStatus, error) {
	return &llm.HealthStatus{Healthy: true}, nil
}

func (m *mockProvider) Name() string { return "mock" }

func textResponse(content string) *llm.ChatResponse {
	return &llm.ChatResponse{
		Model: "mock-model",
		Choices: []llm.ChatChoice{
			{Message: llm.Message{Role: llm.RoleAssistant, Content: content}},
		},
	}
}

// mockEmbedder maps every text to a fixed two-dimensional vector so
// retrieval ordering is deterministic.
type mockEmbedder struct{}

func (mockEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([]embedding.EmbedResult, error) {
	out := make([]embedding.EmbedResult, len(texts))
	for i := range texts {
		out[i] = embedding.EmbedResult{Vector: []float64{1, 0}}
	}
	return out, nil
}

func (mockEmbedder) EmbedQuery(ctx context.Context, query string) ([]float64, error) {
	return []float64{1, 0}, nil
}

func newTestPipeline(provider llm.Provider) *retrieval.Pipeline {
	store := vectorstore.NewMemoryStore(zap.NewNop())
	return retrieval.NewPipeline(store, mockEmbedder{}, provider, zap.NewNop())
}

func postJSON(t *testing.T, handler http.HandlerFunc, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler(rec, req)
	return rec
}

func decodeResponse(t *testing.T, rec *httptest.ResponseRecorder) Response {
	t.Helper()
	var resp Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func dataAs(t *testing.T, resp Response, dst any) {
	t.Helper()
	raw, err := json.Marshal(resp.Data)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(raw, dst))
}
