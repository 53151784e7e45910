// Package vectorstore provides the namespaced vector index abstraction with
// an in-memory brute-force implementation and a Qdrant-backed one.
package vectorstore

import (
	"context"
	"fmt"
	"math"
	"sort"
)

// Record is one stored vector with its payload.
type Record struct {
	ID       string         `json:"id"`
	Vector   []float64      `json:"vector"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Match is one query result, ordered by descending similarity.
type Match struct {
	ID       string         `json:"id"`
	Score    float64        `json:"score"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Store is the single choke point for vector persistence. Every operation is
// scoped to a namespace; implementations must never let reads or writes cross
// namespaces, since the namespace is the tenant-isolation boundary.
type Store interface {
	// Upsert writes records into the namespace, replacing same-ID records.
	Upsert(ctx context.Context, namespace string, records []Record) error

	// Query returns up to topK nearest neighbors of vector within the
	// namespace, optionally restricted to records whose metadata matches
	// every filter entry.
	Query(ctx context.Context, namespace string, vector []float64, topK int, filters map[string]string) ([]Match, error)

	// Delete removes records by ID from the namespace. Missing IDs are not
	// an error.
	Delete(ctx context.Context, namespace string, ids []string) error
}

// Namespace derives the tenant-and-type-scoped namespace name. All callers
// must go through this so the isolation boundary has one definition.
func Namespace(orgID, indexType string) string {
	return fmt.Sprintf("org_%s_%s", orgID, indexType)
}

// cosineSimilarity computes the cosine similarity of two vectors, returning 0
// when dimensions mismatch or either vector is zero.
func cosineSimilarity(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

func sortByScore(matches []Match) {
	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Score > matches[j].Score
	})
}

// matchesFilters reports whether metadata satisfies every filter entry by
// string equality.
func matchesFilters(metadata map[string]any, filters map[string]string) bool {
	for k, want := range filters {
		v, ok := metadata[k]
		if !ok {
			return false
		}
		if fmt.Sprintf("%v", v) != want {
			return false
		}
	}
	return true
}
