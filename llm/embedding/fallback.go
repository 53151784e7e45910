package embedding

import (
	"context"
	"hash/fnv"
	"math"
	"math/rand"

	"go.uber.org/zap"
)

// Resilient wraps a Provider and substitutes deterministic stub vectors when
// the upstream fails, keeping document ingestion operative in degraded mode
// at the cost of search quality. Each result carries the Degraded flag so
// callers can surface the loss.
type Resilient struct {
	inner  Provider
	logger *zap.Logger
}

func NewResilient(inner Provider, logger *zap.Logger) *Resilient {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resilient{
		inner:  inner,
		logger: logger.With(zap.String("component", "embedding.resilient")),
	}
}

func (r *Resilient) Dimensions() int { return r.inner.Dimensions() }

// EmbedDocuments embeds texts through the wrapped provider. On provider
// failure every text receives a stub vector seeded from its own content, so
// repeated ingestion of the same text lands on the same point.
func (r *Resilient) EmbedDocuments(ctx context.Context, texts []string) ([]EmbedResult, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	vectors, err := r.inner.EmbedDocuments(ctx, texts)
	if err != nil || len(vectors) != len(texts) {
		r.logger.Warn("embedding provider failed, substituting stub vectors",
			zap.Int("texts", len(texts)),
			zap.Error(err))
		results := make([]EmbedResult, len(texts))
		for i, text := range texts {
			results[i] = EmbedResult{
				Vector:   StubVector(text, r.inner.Dimensions()),
				Degraded: true,
			}
		}
		return results, nil
	}

	results := make([]EmbedResult, len(texts))
	for i, v := range vectors {
		results[i] = EmbedResult{Vector: v}
	}
	return results, nil
}

// EmbedQuery embeds a single query without stub fallback. Query-time
// degradation is handled by the caller's fail-open policy instead, since a
// stub query vector would return arbitrary matches.
func (r *Resilient) EmbedQuery(ctx context.Context, query string) ([]float64, error) {
	return r.inner.EmbedQuery(ctx, query)
}

// StubVector produces a unit-length pseudo-random vector seeded from a hash
// of the text. The same text always maps to the same vector.
func StubVector(text string, dimensions int) []float64 {
	if dimensions <= 0 {
		dimensions = 1536
	}
	h := fnv.New64a()
	h.Write([]byte(text))
	rng := rand.New(rand.NewSource(int64(h.Sum64())))

	vec := make([]float64, dimensions)
	var norm float64
	for i := range vec {
		vec[i] = rng.Float64()*2 - 1
		norm += vec[i] * vec[i]
	}
	norm = math.Sqrt(norm)
	if norm == 0 {
		return vec
	}
	for i := range vec {
		vec[i] /= norm
	}
	return vec
}
