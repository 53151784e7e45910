package retrieval

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/venturelink/aigateway/llm"
	"github.com/venturelink/aigateway/llm/embedding"
	"github.com/venturelink/aigateway/vectorstore"
)

const (
	// embedBatchSize caps how many chunks go into one embedding call.
	embedBatchSize = 64
	// embedConcurrency bounds parallel embedding calls during ingestion.
	embedConcurrency = 4
	// candidateMultiplier widens the semantic candidate set so keyword
	// ranking has enough texts to rescore before fusion.
	candidateMultiplier = 3
)

// Embedder is the slice of embedding.Resilient the pipeline needs.
type Embedder interface {
	EmbedDocuments(ctx context.Context, texts []string) ([]embedding.EmbedResult, error)
	EmbedQuery(ctx context.Context, query string) ([]float64, error)
}

// RetrievedChunk is one search hit returned by Query.
type RetrievedChunk struct {
	ID         string         `json:"id"`
	DocumentID string         `json:"document_id"`
	Text       string         `json:"text"`
	ChunkIndex int            `json:"chunk_index"`
	PageNumber int            `json:"page_number"`
	Score      float64        `json:"score"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// CompletionRequest parameterizes a context-augmented completion. Model,
// Temperature and MaxTokens pass through to the provider unchanged; zero
// values leave the provider defaults in place.
type CompletionRequest struct {
	Query        string
	OrgID        string
	IndexType    string
	Filters      map[string]string
	TopK         int
	SystemPrompt string
	Model        string
	Temperature  float32
	MaxTokens    int
}

// CompletionResult is the outcome of a context-augmented completion.
type CompletionResult struct {
	Content         string        `json:"content"`
	ModelUsed       string        `json:"model_used"`
	ChunksUsed      int           `json:"chunks_used"`
	SourceDocuments []string      `json:"source_documents"`
	Usage           llm.ChatUsage `json:"usage"`
}

// Pipeline ties chunking, embedding, the vector store and the completion
// provider together.
type Pipeline struct {
	store    vectorstore.Store
	embedder Embedder
	provider llm.Provider
	logger   *zap.Logger
}

func NewPipeline(store vectorstore.Store, embedder Embedder, provider llm.Provider, logger *zap.Logger) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{
		store:    store,
		embedder: embedder,
		provider: provider,
		logger:   logger.With(zap.String("component", "retrieval.pipeline")),
	}
}

// chunkRecordID gives re-ingested documents the same record keys so the
// upsert overwrites prior vectors.
func chunkRecordID(documentID string, index int) string {
	return fmt.Sprintf("%s:%d", documentID, index)
}

// IngestDocument chunks, embeds and stores one document into the tenant
// namespace for indexType. Per-chunk store failures are logged and skipped
// rather than aborting the ingestion; the return value counts chunks
// actually stored.
func (p *Pipeline) IngestDocument(ctx context.Context, documentID, text, orgID string, metadata map[string]any, indexType string) (int, error) {
	if documentID == "" || orgID == "" {
		return 0, fmt.Errorf("document_id and org_id are required")
	}

	chunker := NewChunker(ConfigForIndexType(indexType), p.logger)
	chunks := chunker.Split(documentID, orgID, text, metadata)
	if len(chunks) == 0 {
		return 0, nil
	}

	results := make([]embedding.EmbedResult, len(chunks))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(embedConcurrency)
	for start := 0; start < len(chunks); start += embedBatchSize {
		end := start + embedBatchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		start, end := start, end
		g.Go(func() error {
			texts := make([]string, end-start)
			for i, ch := range chunks[start:end] {
				texts[i] = ch.Text
			}
			batch, err := p.embedder.EmbedDocuments(gctx, texts)
			if err != nil {
				return err
			}
			copy(results[start:end], batch)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}

	namespace := vectorstore.Namespace(orgID, indexType)
	stored := 0
	degraded := 0
	for i, ch := range chunks {
		res := results[i]
		if res.Degraded {
			degraded++
		}
		md := map[string]any{
			"document_id": ch.DocumentID,
			"org_id":      ch.OrgID,
			"chunk_index": ch.Index,
			"page_number": ch.PageNumber,
			"text":        ch.Text,
			"degraded":    res.Degraded,
		}
		for k, v := range ch.Metadata {
			if _, reserved := md[k]; !reserved {
				md[k] = v
			}
		}
		record := vectorstore.Record{
			ID:       chunkRecordID(ch.DocumentID, ch.Index),
			Vector:   res.Vector,
			Metadata: md,
		}
		if err := p.store.Upsert(ctx, namespace, []vectorstore.Record{record}); err != nil {
			p.logger.Warn("chunk upsert failed",
				zap.String("document_id", ch.DocumentID),
				zap.Int("chunk_index", ch.Index),
				zap.Error(err))
			continue
		}
		stored++
	}

	p.logger.Info("document ingested",
		zap.String("document_id", documentID),
		zap.String("org_id", orgID),
		zap.String("index_type", indexType),
		zap.Int("chunks", len(chunks)),
		zap.Int("stored", stored),
		zap.Int("degraded_embeddings", degraded))
	return stored, nil
}

// Query runs hybrid retrieval against the tenant namespace: a semantic
// nearest-neighbor search plus a keyword rescoring of the candidates, merged
// by Reciprocal Rank Fusion. Every failure path returns an empty list
// instead of an error so retrieval never takes a request down.
func (p *Pipeline) Query(ctx context.Context, query, orgID, indexType string, filters map[string]string, topK int) []RetrievedChunk {
	if topK <= 0 {
		return []RetrievedChunk{}
	}

	queryVector, err := p.embedder.EmbedQuery(ctx, query)
	if err != nil {
		p.logger.Warn("query embedding failed, returning empty result",
			zap.String("org_id", orgID),
			zap.Error(err))
		return []RetrievedChunk{}
	}

	namespace := vectorstore.Namespace(orgID, indexType)
	matches, err := p.store.Query(ctx, namespace, queryVector, topK*candidateMultiplier, filters)
	if err != nil {
		p.logger.Warn("vector query failed, returning empty result",
			zap.String("namespace", namespace),
			zap.Error(err))
		return []RetrievedChunk{}
	}
	if len(matches) == 0 {
		return []RetrievedChunk{}
	}

	byID := make(map[string]vectorstore.Match, len(matches))
	semantic := make([]RankedItem, 0, len(matches))
	texts := make(map[string]string, len(matches))
	for _, m := range matches {
		byID[m.ID] = m
		semantic = append(semantic, RankedItem{ID: m.ID, Score: m.Score})
		if text, ok := m.Metadata["text"].(string); ok {
			texts[m.ID] = text
		}
	}

	fused := FuseRRF(semantic, keywordRank(query, texts))

	out := make([]RetrievedChunk, 0, topK)
	for _, f := range fused {
		if len(out) == topK {
			break
		}
		m, ok := byID[f.ID]
		if !ok {
			continue
		}
		out = append(out, toRetrievedChunk(m, f.Score))
	}
	return out
}

func toRetrievedChunk(m vectorstore.Match, score float64) RetrievedChunk {
	rc := RetrievedChunk{ID: m.ID, Score: score, Metadata: m.Metadata}
	if v, ok := m.Metadata["document_id"].(string); ok {
		rc.DocumentID = v
	}
	if v, ok := m.Metadata["text"].(string); ok {
		rc.Text = v
	}
	rc.ChunkIndex = metadataInt(m.Metadata, "chunk_index")
	rc.PageNumber = metadataInt(m.Metadata, "page_number")
	return rc
}

// metadataInt reads an integer metadata value that may come back as a
// float64 after a JSON round trip through the store.
func metadataInt(md map[string]any, key string) int {
	switch v := md[key].(type) {
	case int:
		return v
	case float64:
		return int(v)
	}
	return 0
}

// CompleteWithContext retrieves context for the query and issues one
// completion with the retrieved chunks folded into the system prompt. Unlike
// Query, a completion failure propagates to the caller.
func (p *Pipeline) CompleteWithContext(ctx context.Context, req CompletionRequest) (*CompletionResult, error) {
	chunks := p.Query(ctx, req.Query, req.OrgID, req.IndexType, req.Filters, req.TopK)

	var sb strings.Builder
	if req.SystemPrompt != "" {
		sb.WriteString(req.SystemPrompt)
	} else {
		sb.WriteString("Answer using the provided context. Cite sources when possible.")
	}
	if len(chunks) > 0 {
		sb.WriteString("\n\nContext:\n")
		for _, ch := range chunks {
			fmt.Fprintf(&sb, "[source: %s]\n%s\n\n", ch.DocumentID, ch.Text)
		}
	}

	resp, err := p.provider.Completion(ctx, &llm.ChatRequest{
		OrgID:       req.OrgID,
		Model:       req.Model,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: sb.String()},
			{Role: llm.RoleUser, Content: req.Query},
		},
	})
	if err != nil {
		return nil, err
	}

	sourceSet := make(map[string]struct{})
	for _, ch := range chunks {
		if ch.DocumentID != "" {
			sourceSet[ch.DocumentID] = struct{}{}
		}
	}
	sources := make([]string, 0, len(sourceSet))
	for id := range sourceSet {
		sources = append(sources, id)
	}
	sort.Strings(sources)

	return &CompletionResult{
		Content:         resp.Content(),
		ModelUsed:       resp.Model,
		ChunksUsed:      len(chunks),
		SourceDocuments: sources,
		Usage:           resp.Usage,
	}, nil
}
