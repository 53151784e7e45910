package vectorstore

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQdrantStoreUpsert(t *testing.T) {
	var createdCollection bool
	var upsertBody map[string]any

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPut && r.URL.Path == "/collections/org_o1_default":
			createdCollection = true
			w.Write([]byte(`{"result":true,"status":"ok"}`))
		case r.Method == http.MethodPut && strings.HasPrefix(r.URL.Path, "/collections/org_o1_default/points"):
			assert.Equal(t, "true", r.URL.Query().Get("wait"))
			require.NoError(t, json.NewDecoder(r.Body).Decode(&upsertBody))
			w.Write([]byte(`{"result":{"status":"acknowledged"},"status":"ok"}`))
		default:
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
	}))
	defer srv.Close()

	s := NewQdrantStore(QdrantConfig{BaseURL: srv.URL}, nil)
	err := s.Upsert(context.Background(), "org_o1_default", []Record{
		{ID: "doc1:0", Vector: []float64{0.1, 0.2}, Metadata: map[string]any{"document_id": "doc1"}},
	})
	require.NoError(t, err)
	assert.True(t, createdCollection)

	points := upsertBody["points"].([]any)
	require.Len(t, points, 1)
	point := points[0].(map[string]any)
	// Point IDs are stable UUIDs derived from the record ID.
	id, err := uuid.Parse(point["id"].(string))
	require.NoError(t, err)
	assert.Equal(t, pointID("doc1:0"), id.String())
	payload := point["payload"].(map[string]any)
	assert.Equal(t, "doc1:0", payload["record_id"])
}

func TestQdrantStoreQueryWithFilters(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/collections/ns/points/search", r.URL.Path)

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		filter := body["filter"].(map[string]any)
		must := filter["must"].([]any)
		require.Len(t, must, 1)
		cond := must[0].(map[string]any)
		assert.Equal(t, "metadata.document_id", cond["key"])

		w.Write([]byte(`{
			"result": [
				{"id": "x", "score": 0.92, "payload": {"record_id": "doc1:3", "metadata": {"document_id": "d1"}}},
				{"id": "y", "score": 0.81, "payload": {"record_id": "doc1:7", "metadata": {"document_id": "d1"}}}
			],
			"status": "ok"
		}`))
	}))
	defer srv.Close()

	s := NewQdrantStore(QdrantConfig{BaseURL: srv.URL}, nil)
	matches, err := s.Query(context.Background(), "ns", []float64{0.1, 0.2}, 5, map[string]string{"document_id": "d1"})
	require.NoError(t, err)
	require.Len(t, matches, 2)
	assert.Equal(t, "doc1:3", matches[0].ID)
	assert.Equal(t, 0.92, matches[0].Score)
	assert.Equal(t, "d1", matches[0].Metadata["document_id"])
}

func TestQdrantStoreDelete(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/collections/ns/points/delete", r.URL.Path)
		var body struct {
			Points []string `json:"points"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, []string{pointID("a"), pointID("b")}, body.Points)
		w.Write([]byte(`{"result":{"status":"acknowledged"},"status":"ok"}`))
	}))
	defer srv.Close()

	s := NewQdrantStore(QdrantConfig{BaseURL: srv.URL}, nil)
	require.NoError(t, s.Delete(context.Background(), "ns", []string{"a", "b"}))
}

func TestQdrantStoreErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"status":{"error":"wrong shape"}}`, http.StatusBadRequest)
	}))
	defer srv.Close()

	s := NewQdrantStore(QdrantConfig{BaseURL: srv.URL}, nil)
	_, err := s.Query(context.Background(), "ns", []float64{0.1}, 5, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status=400")
}

func TestFactoryFallsBackToMemory(t *testing.T) {
	// Unreachable endpoint forces the in-memory fallback.
	store := New(context.Background(), Config{
		Backend: "qdrant",
		Qdrant:  QdrantConfig{BaseURL: "http://127.0.0.1:1"},
	}, nil)
	_, ok := store.(*MemoryStore)
	assert.True(t, ok)
}

func TestFactorySelectsQdrantWhenReachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"result":{"collections":[]},"status":"ok"}`))
	}))
	defer srv.Close()

	store := New(context.Background(), Config{
		Backend: "qdrant",
		Qdrant:  QdrantConfig{BaseURL: srv.URL},
	}, nil)
	_, ok := store.(*QdrantStore)
	assert.True(t, ok)
}

func TestFactoryDefaultsToMemory(t *testing.T) {
	store := New(context.Background(), Config{}, nil)
	_, ok := store.(*MemoryStore)
	assert.True(t, ok)
}
