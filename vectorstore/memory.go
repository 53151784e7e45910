package vectorstore

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// MemoryStore is a process-local brute-force cosine-similarity store. It is
// the fallback when no external index is configured or reachable, suitable
// only for single-instance or development deployments.
type MemoryStore struct {
	mu         sync.RWMutex
	namespaces map[string]map[string]Record
	logger     *zap.Logger
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore(logger *zap.Logger) *MemoryStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MemoryStore{
		namespaces: make(map[string]map[string]Record),
		logger:     logger.With(zap.String("component", "vectorstore.memory")),
	}
}

func (s *MemoryStore) Upsert(ctx context.Context, namespace string, records []Record) error {
	if namespace == "" {
		return fmt.Errorf("namespace is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	ns, ok := s.namespaces[namespace]
	if !ok {
		ns = make(map[string]Record)
		s.namespaces[namespace] = ns
	}
	for i, r := range records {
		if r.ID == "" {
			return fmt.Errorf("record[%d] has empty id", i)
		}
		if len(r.Vector) == 0 {
			return fmt.Errorf("record[%d] has no vector", i)
		}
		ns[r.ID] = r
	}

	s.logger.Debug("records upserted",
		zap.String("namespace", namespace),
		zap.Int("count", len(records)),
		zap.Int("total", len(ns)))
	return nil
}

func (s *MemoryStore) Query(ctx context.Context, namespace string, vector []float64, topK int, filters map[string]string) ([]Match, error) {
	if topK <= 0 {
		return []Match{}, nil
	}
	if len(vector) == 0 {
		return nil, fmt.Errorf("query vector is required")
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	ns := s.namespaces[namespace]
	if len(ns) == 0 {
		return []Match{}, nil
	}

	matches := make([]Match, 0, len(ns))
	for _, r := range ns {
		if !matchesFilters(r.Metadata, filters) {
			continue
		}
		matches = append(matches, Match{
			ID:       r.ID,
			Score:    cosineSimilarity(vector, r.Vector),
			Metadata: r.Metadata,
		})
	}
	sortByScore(matches)

	if topK > len(matches) {
		topK = len(matches)
	}
	return matches[:topK], nil
}

func (s *MemoryStore) Delete(ctx context.Context, namespace string, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ns := s.namespaces[namespace]
	if ns == nil {
		return nil
	}
	deleted := 0
	for _, id := range ids {
		if _, ok := ns[id]; ok {
			delete(ns, id)
			deleted++
		}
	}

	s.logger.Debug("records deleted",
		zap.String("namespace", namespace),
		zap.Int("deleted", deleted),
		zap.Int("remaining", len(ns)))
	return nil
}

// Count returns the record count for one namespace.
func (s *MemoryStore) Count(namespace string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.namespaces[namespace])
}
