package retrieval

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/venturelink/aigateway/llm"
	"github.com/venturelink/aigateway/llm/embedding"
	"github.com/venturelink/aigateway/vectorstore"
)

// testEmbedder maps texts to fixed vectors by keyword so tests control
// similarity ordering.
type testEmbedder struct {
	queryErr error
	docErr   bool
}

func (e *testEmbedder) vectorFor(text string) []float64 {
	switch {
	case strings.Contains(text, "alpha"):
		return []float64{1, 0}
	case strings.Contains(text, "beta"):
		return []float64{0, 1}
	default:
		return []float64{0.5, 0.5}
	}
}

func (e *testEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([]embedding.EmbedResult, error) {
	results := make([]embedding.EmbedResult, len(texts))
	for i, t := range texts {
		if e.docErr {
			results[i] = embedding.EmbedResult{Vector: embedding.StubVector(t, 2), Degraded: true}
		} else {
			results[i] = embedding.EmbedResult{Vector: e.vectorFor(t)}
		}
	}
	return results, nil
}

func (e *testEmbedder) EmbedQuery(ctx context.Context, query string) ([]float64, error) {
	if e.queryErr != nil {
		return nil, e.queryErr
	}
	return e.vectorFor(query), nil
}

type capturingProvider struct {
	lastReq *llm.ChatRequest
	err     error
}

func (p *capturingProvider) Completion(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
	p.lastReq = req
	if p.err != nil {
		return nil, p.err
	}
	return &llm.ChatResponse{
		Model: "test",
		Choices: []llm.ChatChoice{
			{Message: llm.Message{Role: llm.RoleAssistant, Content: "generated answer"}},
		},
		Usage: llm.ChatUsage{PromptTokens: 120, CompletionTokens: 30, TotalTokens: 150},
	}, nil
}

func (p *capturingProvider) HealthCheck(ctx context.Context) (*llm.HealthStatus, error) {
	return &llm.HealthStatus{Healthy: true}, nil
}

func (p *capturingProvider) Name() string { return "capturing" }

func ingestTestDoc(t *testing.T, pl *Pipeline, docID, orgID string) int {
	t.Helper()
	text := strings.Repeat("alpha reasoning segment ", 4) + "\n\n" + strings.Repeat("beta analysis segment ", 4)
	stored, err := pl.IngestDocument(context.Background(), docID, text, orgID, map[string]any{"kind": "memo"}, "default")
	require.NoError(t, err)
	return stored
}

func TestPipelineIngestStoresChunks(t *testing.T) {
	store := vectorstore.NewMemoryStore(nil)
	pl := NewPipeline(store, &testEmbedder{}, &capturingProvider{}, nil)

	stored := ingestTestDoc(t, pl, "doc1", "org1")
	assert.Equal(t, 2, stored)
	assert.Equal(t, 2, store.Count(vectorstore.Namespace("org1", "default")))

	// Re-ingesting the same document overwrites the same record keys.
	stored = ingestTestDoc(t, pl, "doc1", "org1")
	assert.Equal(t, 2, stored)
	assert.Equal(t, 2, store.Count(vectorstore.Namespace("org1", "default")))
}

func TestPipelineIngestDegradedEmbeddings(t *testing.T) {
	store := vectorstore.NewMemoryStore(nil)
	pl := NewPipeline(store, &testEmbedder{docErr: true}, &capturingProvider{}, nil)

	stored := ingestTestDoc(t, pl, "doc1", "org1")
	assert.Equal(t, 2, stored)

	matches, err := store.Query(context.Background(), vectorstore.Namespace("org1", "default"), embedding.StubVector("probe", 2), 2, nil)
	require.NoError(t, err)
	for _, m := range matches {
		assert.Equal(t, true, m.Metadata["degraded"])
	}
}

func TestPipelineIngestValidation(t *testing.T) {
	pl := NewPipeline(vectorstore.NewMemoryStore(nil), &testEmbedder{}, &capturingProvider{}, nil)

	_, err := pl.IngestDocument(context.Background(), "", "text", "org", nil, "default")
	require.Error(t, err)

	stored, err := pl.IngestDocument(context.Background(), "doc", "Short.", "org", nil, "default")
	require.NoError(t, err)
	assert.Equal(t, 0, stored)
}

func TestPipelineQueryRanksSemanticMatchesFirst(t *testing.T) {
	store := vectorstore.NewMemoryStore(nil)
	pl := NewPipeline(store, &testEmbedder{}, &capturingProvider{}, nil)
	ingestTestDoc(t, pl, "doc1", "org1")

	chunks := pl.Query(context.Background(), "alpha reasoning", "org1", "default", nil, 2)
	require.Len(t, chunks, 2)
	assert.Contains(t, chunks[0].Text, "alpha")
	assert.Equal(t, "doc1", chunks[0].DocumentID)
	assert.Equal(t, 0, chunks[0].ChunkIndex)
	assert.Equal(t, 1, chunks[1].ChunkIndex)
	assert.Greater(t, chunks[0].Score, chunks[1].Score)
}

func TestPipelineQueryTenantIsolation(t *testing.T) {
	store := vectorstore.NewMemoryStore(nil)
	pl := NewPipeline(store, &testEmbedder{}, &capturingProvider{}, nil)
	ingestTestDoc(t, pl, "doc1", "org1")

	assert.Empty(t, pl.Query(context.Background(), "alpha", "org2", "default", nil, 5))
	assert.Empty(t, pl.Query(context.Background(), "alpha", "org1", "legal", nil, 5))
}

func TestPipelineQueryFailOpenOnEmbedError(t *testing.T) {
	store := vectorstore.NewMemoryStore(nil)
	pl := NewPipeline(store, &testEmbedder{queryErr: errors.New("embed down")}, &capturingProvider{}, nil)
	ingestTestDoc(t, pl, "doc1", "org1")

	chunks := pl.Query(context.Background(), "alpha", "org1", "default", nil, 5)
	assert.NotNil(t, chunks)
	assert.Empty(t, chunks)
}

type failingStore struct{}

func (failingStore) Upsert(ctx context.Context, ns string, records []vectorstore.Record) error {
	return errors.New("store down")
}

func (failingStore) Query(ctx context.Context, ns string, vector []float64, topK int, filters map[string]string) ([]vectorstore.Match, error) {
	return nil, errors.New("store down")
}

func (failingStore) Delete(ctx context.Context, ns string, ids []string) error {
	return errors.New("store down")
}

func TestPipelineQueryFailOpenOnStoreError(t *testing.T) {
	pl := NewPipeline(failingStore{}, &testEmbedder{}, &capturingProvider{}, nil)
	chunks := pl.Query(context.Background(), "alpha", "org1", "default", nil, 5)
	assert.Empty(t, chunks)
}

func TestPipelineIngestCountsOnlyStoredChunks(t *testing.T) {
	pl := NewPipeline(failingStore{}, &testEmbedder{}, &capturingProvider{}, nil)
	text := strings.Repeat("alpha reasoning segment ", 4)

	stored, err := pl.IngestDocument(context.Background(), "doc1", text, "org1", nil, "default")
	require.NoError(t, err)
	assert.Equal(t, 0, stored)
}

func TestPipelineCompleteWithContext(t *testing.T) {
	store := vectorstore.NewMemoryStore(nil)
	provider := &capturingProvider{}
	pl := NewPipeline(store, &testEmbedder{}, provider, nil)
	ingestTestDoc(t, pl, "doc1", "org1")
	ingestTestDoc(t, pl, "doc2", "org1")

	result, err := pl.CompleteWithContext(context.Background(), CompletionRequest{
		Query: "alpha reasoning", OrgID: "org1", IndexType: "default", TopK: 3,
	})
	require.NoError(t, err)
	assert.Equal(t, "generated answer", result.Content)
	assert.Equal(t, "test", result.ModelUsed)
	assert.Equal(t, 3, result.ChunksUsed)
	assert.Equal(t, []string{"doc1", "doc2"}, result.SourceDocuments)
	assert.Equal(t, 150, result.Usage.TotalTokens)

	require.NotNil(t, provider.lastReq)
	system := provider.lastReq.Messages[0].Content
	assert.Contains(t, system, "[source: doc1]")
	assert.Contains(t, system, "Context:")
}

func TestPipelineCompleteWithContextForwardsModelOptions(t *testing.T) {
	store := vectorstore.NewMemoryStore(nil)
	provider := &capturingProvider{}
	pl := NewPipeline(store, &testEmbedder{}, provider, nil)

	_, err := pl.CompleteWithContext(context.Background(), CompletionRequest{
		Query: "alpha", OrgID: "org1", IndexType: "default", TopK: 3,
		Model: "gpt-4o", Temperature: 0.2, MaxTokens: 512,
	})
	require.NoError(t, err)

	require.NotNil(t, provider.lastReq)
	assert.Equal(t, "gpt-4o", provider.lastReq.Model)
	assert.Equal(t, float32(0.2), provider.lastReq.Temperature)
	assert.Equal(t, 512, provider.lastReq.MaxTokens)
}

func TestPipelineCompleteWithContextPropagatesError(t *testing.T) {
	store := vectorstore.NewMemoryStore(nil)
	provider := &capturingProvider{err: &llm.Error{Code: llm.ErrUpstreamError, Message: "boom"}}
	pl := NewPipeline(store, &testEmbedder{}, provider, nil)

	_, err := pl.CompleteWithContext(context.Background(), CompletionRequest{
		Query: "question", OrgID: "org1", IndexType: "default", TopK: 3,
	})
	require.Error(t, err)
}
