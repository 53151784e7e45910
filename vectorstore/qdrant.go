package vectorstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// QdrantConfig configures the Qdrant-backed Store. One namespace maps to one
// Qdrant collection.
type QdrantConfig struct {
	Host       string        `yaml:"host" json:"host"`
	Port       int           `yaml:"port" json:"port"`
	BaseURL    string        `yaml:"base_url" json:"base_url,omitempty"`
	APIKey     string        `yaml:"api_key" json:"api_key,omitempty"`
	Timeout    time.Duration `yaml:"timeout" json:"timeout,omitempty"`
	Distance   string        `yaml:"distance" json:"distance,omitempty"`
	VectorSize int           `yaml:"vector_size" json:"vector_size,omitempty"`
}

// QdrantStore implements Store against Qdrant's REST API. Qdrant point IDs
// must be UUIDs, so a stable UUID is derived from each record ID and the
// original ID is kept in the payload.
type QdrantStore struct {
	cfg     QdrantConfig
	baseURL string
	client  *http.Client
	logger  *zap.Logger

	mu      sync.Mutex
	ensured map[string]bool
}

var _ Store = (*QdrantStore)(nil)

const (
	payloadRecordIDField = "record_id"
	payloadMetadataField = "metadata"
)

func NewQdrantStore(cfg QdrantConfig, logger *zap.Logger) *QdrantStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Host == "" {
		cfg.Host = "localhost"
	}
	if cfg.Port == 0 {
		cfg.Port = 6333
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.Distance == "" {
		cfg.Distance = "Cosine"
	}

	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = fmt.Sprintf("http://%s:%d", cfg.Host, cfg.Port)
	}

	return &QdrantStore{
		cfg:     cfg,
		baseURL: baseURL,
		client:  &http.Client{Timeout: cfg.Timeout},
		logger:  logger.With(zap.String("component", "vectorstore.qdrant")),
		ensured: make(map[string]bool),
	}
}

var qdrantIDNamespace = uuid.MustParse("7f1c2a9e-9b64-4c57-8a43-6d1f0e2b5c88")

// pointID derives a stable UUID from a record ID, supporting any string input.
func pointID(recordID string) string {
	return uuid.NewSHA1(qdrantIDNamespace, []byte(recordID)).String()
}

// Ping verifies the Qdrant endpoint is reachable. The factory uses it to
// decide whether to fall back to the in-memory store.
func (s *QdrantStore) Ping(ctx context.Context) error {
	return s.doJSON(ctx, http.MethodGet, "/collections", nil, nil)
}

// ensureCollection creates the collection for a namespace once per process.
func (s *QdrantStore) ensureCollection(ctx context.Context, namespace string, vectorSize int) error {
	s.mu.Lock()
	if s.ensured[namespace] {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	body := map[string]any{
		"vectors": map[string]any{
			"size":     vectorSize,
			"distance": s.cfg.Distance,
		},
	}

	endpoint := fmt.Sprintf("%s/collections/%s", s.baseURL, url.PathEscape(namespace))
	reqBody, _ := json.Marshal(body)
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, endpoint, bytes.NewReader(reqBody))
	if err != nil {
		return err
	}
	s.applyHeaders(req)

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	// Qdrant returns 409 if the collection already exists.
	if resp.StatusCode != http.StatusConflict && (resp.StatusCode < 200 || resp.StatusCode >= 300) {
		raw, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("qdrant create collection failed: status=%d body=%s", resp.StatusCode, string(raw))
	}

	s.mu.Lock()
	s.ensured[namespace] = true
	s.mu.Unlock()
	return nil
}

func (s *QdrantStore) applyHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	if strings.TrimSpace(s.cfg.APIKey) != "" {
		req.Header.Set("api-key", s.cfg.APIKey)
	}
}

func (s *QdrantStore) doJSON(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.baseURL+path, body)
	if err != nil {
		return err
	}
	s.applyHeaders(req)

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("qdrant request failed: method=%s path=%s status=%d body=%s", method, path, resp.StatusCode, string(raw))
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (s *QdrantStore) Upsert(ctx context.Context, namespace string, records []Record) error {
	if len(records) == 0 {
		return nil
	}
	if namespace == "" {
		return fmt.Errorf("namespace is required")
	}

	vectorSize := s.cfg.VectorSize
	for i, r := range records {
		if r.ID == "" {
			return fmt.Errorf("record[%d] has empty id", i)
		}
		if len(r.Vector) == 0 {
			return fmt.Errorf("record[%d] has no vector", i)
		}
		if vectorSize == 0 {
			vectorSize = len(r.Vector)
		}
		if len(r.Vector) != vectorSize {
			return fmt.Errorf("record[%d] vector dimension mismatch: got=%d want=%d", i, len(r.Vector), vectorSize)
		}
	}

	if err := s.ensureCollection(ctx, namespace, vectorSize); err != nil {
		return err
	}

	type point struct {
		ID      string         `json:"id"`
		Vector  []float64      `json:"vector"`
		Payload map[string]any `json:"payload,omitempty"`
	}

	points := make([]point, 0, len(records))
	for _, r := range records {
		points = append(points, point{
			ID:     pointID(r.ID),
			Vector: r.Vector,
			Payload: map[string]any{
				payloadRecordIDField: r.ID,
				payloadMetadataField: r.Metadata,
			},
		})
	}

	path := fmt.Sprintf("/collections/%s/points?wait=true", url.PathEscape(namespace))
	req := struct {
		Points []point `json:"points"`
	}{Points: points}

	if err := s.doJSON(ctx, http.MethodPut, path, req, nil); err != nil {
		return err
	}

	s.logger.Debug("qdrant upsert completed",
		zap.String("namespace", namespace),
		zap.Int("count", len(records)))
	return nil
}

func (s *QdrantStore) Query(ctx context.Context, namespace string, vector []float64, topK int, filters map[string]string) ([]Match, error) {
	if topK <= 0 {
		return []Match{}, nil
	}
	if len(vector) == 0 {
		return nil, fmt.Errorf("query vector is required")
	}

	type matchCondition struct {
		Key   string `json:"key"`
		Match struct {
			Value string `json:"value"`
		} `json:"match"`
	}

	req := map[string]any{
		"vector":       vector,
		"limit":        topK,
		"with_payload": true,
		"with_vector":  false,
	}
	if len(filters) > 0 {
		must := make([]matchCondition, 0, len(filters))
		for k, v := range filters {
			cond := matchCondition{Key: payloadMetadataField + "." + k}
			cond.Match.Value = v
			must = append(must, cond)
		}
		req["filter"] = map[string]any{"must": must}
	}

	var resp struct {
		Result []struct {
			ID      any            `json:"id"`
			Score   float64        `json:"score"`
			Payload map[string]any `json:"payload"`
		} `json:"result"`
	}

	path := fmt.Sprintf("/collections/%s/points/search", url.PathEscape(namespace))
	if err := s.doJSON(ctx, http.MethodPost, path, req, &resp); err != nil {
		return nil, err
	}

	out := make([]Match, 0, len(resp.Result))
	for _, r := range resp.Result {
		m := Match{Score: r.Score}
		if r.Payload != nil {
			if v, ok := r.Payload[payloadRecordIDField].(string); ok {
				m.ID = v
			}
			if md, ok := r.Payload[payloadMetadataField].(map[string]any); ok {
				m.Metadata = md
			}
		}
		if m.ID == "" {
			m.ID = fmt.Sprintf("%v", r.ID)
		}
		out = append(out, m)
	}
	return out, nil
}

func (s *QdrantStore) Delete(ctx context.Context, namespace string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	points := make([]string, len(ids))
	for i, id := range ids {
		points[i] = pointID(id)
	}

	path := fmt.Sprintf("/collections/%s/points/delete?wait=true", url.PathEscape(namespace))
	req := struct {
		Points []string `json:"points"`
	}{Points: points}

	return s.doJSON(ctx, http.MethodPost, path, req, nil)
}
