// Package api defines the request and response types of the gateway's
// HTTP surface.
package api

// IngestRequest asks the gateway to chunk, embed, and store a document.
type IngestRequest struct {
	OrgID      string         `json:"org_id"`
	DocumentID string         `json:"document_id"`
	Text       string         `json:"text"`
	IndexType  string         `json:"index_type,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// IngestResponse reports how much of the document was stored.
type IngestResponse struct {
	DocumentID   string `json:"document_id"`
	ChunksStored int    `json:"chunks_stored"`
}

// SearchRequest runs a hybrid retrieval query within one tenant's index.
type SearchRequest struct {
	OrgID     string            `json:"org_id"`
	Query     string            `json:"query"`
	IndexType string            `json:"index_type,omitempty"`
	TopK      int               `json:"top_k,omitempty"`
	Filters   map[string]string `json:"filters,omitempty"`
}

// SearchResult is one retrieved chunk.
type SearchResult struct {
	ID         string         `json:"id"`
	DocumentID string         `json:"document_id"`
	Text       string         `json:"text"`
	ChunkIndex int            `json:"chunk_index"`
	PageNumber int            `json:"page_number"`
	Score      float64        `json:"score"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// SearchResponse returns ranked results. Results may be empty when the
// query matched nothing or retrieval degraded.
type SearchResponse struct {
	Results []SearchResult `json:"results"`
	Total   int            `json:"total"`
}

// RAGRequest asks for a completion grounded in retrieved context. Model,
// Temperature and MaxTokens are optional overrides forwarded to the
// completion provider.
type RAGRequest struct {
	OrgID        string            `json:"org_id"`
	Query        string            `json:"query"`
	IndexType    string            `json:"index_type,omitempty"`
	TopK         int               `json:"top_k,omitempty"`
	Filters      map[string]string `json:"filters,omitempty"`
	SystemPrompt string            `json:"system_prompt,omitempty"`
	Model        string            `json:"model,omitempty"`
	Temperature  float32           `json:"temperature,omitempty"`
	MaxTokens    int               `json:"max_tokens,omitempty"`
}

// Usage reports the provider's token accounting for one completion.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// RAGResponse carries the grounded answer and its provenance.
type RAGResponse struct {
	Content        string   `json:"content"`
	ModelUsed      string   `json:"model_used"`
	ContextChunks  int      `json:"context_chunks"`
	ContextSources []string `json:"context_sources"`
	Usage          Usage    `json:"usage"`
}

// BatchRequest submits same-type task contexts for batched completion.
type BatchRequest struct {
	OrgID    string   `json:"org_id"`
	TaskType string   `json:"task_type"`
	Contexts []string `json:"contexts"`
}

// BatchResult is the outcome for one input context, in input order.
type BatchResult struct {
	Index   int            `json:"index"`
	Data    map[string]any `json:"data,omitempty"`
	Batched bool           `json:"batched"`
	Error   string         `json:"error,omitempty"`
}

// BatchResponse returns one result per submitted context.
type BatchResponse struct {
	TaskType string        `json:"task_type"`
	Results  []BatchResult `json:"results"`
}

// UsageResponse reports a tenant's current consumption against its
// tier limits.
type UsageResponse struct {
	OrgID           string `json:"org_id"`
	Tier            string `json:"tier"`
	HourRequests    int64  `json:"hour_requests"`
	DayRequests     int64  `json:"day_requests"`
	DayTokens       int64  `json:"day_tokens"`
	RequestsPerHour int    `json:"requests_per_hour"`
	TokensPerDay    int    `json:"tokens_per_day"`
}

// CreateTemplateRequest registers a new prompt template version.
type CreateTemplateRequest struct {
	TaskType           string   `json:"task_type"`
	SystemPrompt       string   `json:"system_prompt,omitempty"`
	UserPromptTemplate string   `json:"user_prompt_template"`
	Variables          []string `json:"variables,omitempty"`
	TrafficPercentage  float64  `json:"traffic_percentage,omitempty"`
}

// TemplateResponse is the API view of a stored template.
type TemplateResponse struct {
	ID                 uint     `json:"id"`
	TaskType           string   `json:"task_type"`
	Version            int      `json:"version"`
	SystemPrompt       string   `json:"system_prompt,omitempty"`
	UserPromptTemplate string   `json:"user_prompt_template"`
	Variables          []string `json:"variables,omitempty"`
	TrafficPercentage  float64  `json:"traffic_percentage"`
	IsActive           bool     `json:"is_active"`
	TotalUses          int64    `json:"total_uses"`
	AvgConfidence      float64  `json:"avg_confidence"`
}
