// Package embedding provides the unified embedding provider interface, the
// OpenAI-compatible implementation, and a degradation-aware wrapper used by
// the retrieval pipeline.
package embedding

import (
	"context"
	"time"
)

// EmbeddingRequest represents a request to generate embeddings.
type EmbeddingRequest struct {
	Input      []string          `json:"input"`
	Model      string            `json:"model,omitempty"`
	Dimensions int               `json:"dimensions,omitempty"`
	InputType  InputType         `json:"input_type,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// InputType specifies what the embedding is optimized for.
type InputType string

const (
	InputTypeQuery    InputType = "query"
	InputTypeDocument InputType = "document"
)

// EmbeddingResponse represents the response to an embedding request.
type EmbeddingResponse struct {
	Provider   string          `json:"provider"`
	Model      string          `json:"model"`
	Embeddings []EmbeddingData `json:"embeddings"`
	Usage      EmbeddingUsage  `json:"usage"`
	CreatedAt  time.Time       `json:"created_at,omitempty"`
}

// EmbeddingData represents a single embedding result.
type EmbeddingData struct {
	Index     int       `json:"index"`
	Embedding []float64 `json:"embedding"`
}

// EmbeddingUsage represents token usage for an embedding request.
type EmbeddingUsage struct {
	PromptTokens int `json:"prompt_tokens"`
	TotalTokens  int `json:"total_tokens"`
}

// Provider defines the unified embedding provider interface.
type Provider interface {
	// Embed generates embeddings for the given inputs.
	Embed(ctx context.Context, req *EmbeddingRequest) (*EmbeddingResponse, error)

	// EmbedQuery is a convenience for embedding a single query.
	EmbedQuery(ctx context.Context, query string) ([]float64, error)

	// EmbedDocuments is a convenience for embedding multiple documents.
	EmbedDocuments(ctx context.Context, documents []string) ([][]float64, error)

	// Name returns the provider name.
	Name() string

	// Dimensions returns the default embedding dimensionality.
	Dimensions() int

	// MaxBatchSize returns the maximum supported batch size.
	MaxBatchSize() int
}

// EmbedResult is the outcome of embedding one text. Degraded is true when
// the provider failed and the vector is a deterministic stub, so callers see
// quality degradation in the type instead of inferring it from logs.
type EmbedResult struct {
	Vector   []float64 `json:"vector"`
	Degraded bool      `json:"degraded"`
}
