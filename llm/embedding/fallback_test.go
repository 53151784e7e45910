package embedding

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeProvider struct {
	vectors [][]float64
	err     error
	dims    int
}

var _ Provider = (*fakeProvider)(nil)

func (f *fakeProvider) Embed(ctx context.Context, req *EmbeddingRequest) (*EmbeddingResponse, error) {
	if f.err != nil {
		return nil, f.err
	}
	data := make([]EmbeddingData, len(f.vectors))
	for i, v := range f.vectors {
		data[i] = EmbeddingData{Index: i, Embedding: v}
	}
	return &EmbeddingResponse{Provider: f.Name(), Embeddings: data}, nil
}

func (f *fakeProvider) EmbedQuery(ctx context.Context, query string) ([]float64, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.vectors[0], nil
}

func (f *fakeProvider) EmbedDocuments(ctx context.Context, documents []string) ([][]float64, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.vectors, nil
}

func (f *fakeProvider) Name() string      { return "fake" }
func (f *fakeProvider) Dimensions() int   { return f.dims }
func (f *fakeProvider) MaxBatchSize() int { return 100 }

func TestResilientEmbedDocumentsHealthy(t *testing.T) {
	inner := &fakeProvider{
		vectors: [][]float64{{0.1, 0.2}, {0.3, 0.4}},
		dims:    2,
	}
	r := NewResilient(inner, nil)

	results, err := r.EmbedDocuments(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.False(t, results[0].Degraded)
	assert.False(t, results[1].Degraded)
	assert.Equal(t, []float64{0.1, 0.2}, results[0].Vector)
}

func TestResilientEmbedDocumentsFallback(t *testing.T) {
	inner := &fakeProvider{err: errors.New("upstream down"), dims: 8}
	r := NewResilient(inner, nil)

	results, err := r.EmbedDocuments(context.Background(), []string{"first chunk", "second chunk"})
	require.NoError(t, err)
	require.Len(t, results, 2)
	for _, res := range results {
		assert.True(t, res.Degraded)
		assert.Len(t, res.Vector, 8)
	}
	assert.NotEqual(t, results[0].Vector, results[1].Vector)
}

func TestResilientEmbedQueryNoFallback(t *testing.T) {
	inner := &fakeProvider{err: errors.New("upstream down"), dims: 4}
	r := NewResilient(inner, nil)

	_, err := r.EmbedQuery(context.Background(), "query")
	require.Error(t, err)
}

func TestStubVectorDeterministic(t *testing.T) {
	a := StubVector("same text", 16)
	b := StubVector("same text", 16)
	c := StubVector("other text", 16)

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)

	var norm float64
	for _, v := range a {
		norm += v * v
	}
	assert.InDelta(t, 1.0, math.Sqrt(norm), 1e-9)
}
