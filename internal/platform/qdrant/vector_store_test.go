package qdrant

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/yungbote/deepmed-backend/internal/pkg/logger"
)

type fakeQdrant struct {
	mu         sync.Mutex
	exists     bool
	size       int
	distance   string
	created    map[string]any
	lastBody   map[string]any
	lastPath   string
	searchResp []map[string]any
	failSearch bool
}

func (f *fakeQdrant) handler(t *testing.T) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		var body map[string]any
		if r.Body != nil {
			_ = json.NewDecoder(r.Body).Decode(&body)
		}
		f.lastBody = body
		f.lastPath = r.URL.RequestURI()

		switch {
		case r.URL.Path == "/readyz":
			w.WriteHeader(http.StatusOK)
		case r.URL.Path == "/collections/chunks" && r.Method == http.MethodGet:
			if !f.exists {
				w.WriteHeader(http.StatusNotFound)
				_, _ = w.Write([]byte(`{"status":{"error":"Not found: Collection chunks doesn't exist!"}}`))
				return
			}
			writeResult(t, w, map[string]any{"config": map[string]any{"params": map[string]any{
				"vectors": map[string]any{"size": f.size, "distance": f.distance},
			}}})
		case r.URL.Path == "/collections/chunks" && r.Method == http.MethodPut:
			f.created = body
			f.exists = true
			writeResult(t, w, true)
		case r.URL.Path == "/collections/chunks/points/search":
			if f.failSearch {
				w.WriteHeader(http.StatusInternalServerError)
				_, _ = w.Write([]byte(`{"status":{"error":"boom"}}`))
				return
			}
			writeResult(t, w, f.searchResp)
		default:
			writeResult(t, w, map[string]any{"status": "acknowledged"})
		}
	})
}

func writeResult(t *testing.T, w http.ResponseWriter, result any) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]any{"result": result, "status": "ok", "time": 0.001}); err != nil {
		t.Fatalf("encode response: %v", err)
	}
}

func newTestStore(t *testing.T, f *fakeQdrant) *vectorStore {
	t.Helper()
	srv := httptest.NewServer(f.handler(t))
	t.Cleanup(srv.Close)
	s, err := newVectorStore(context.Background(), logger.Nop(), Config{
		URL:              srv.URL,
		Collection:       "chunks",
		VectorDim:        3,
		CreateCollection: true,
	}, srv.Client())
	if err != nil {
		t.Fatalf("newVectorStore: %v", err)
	}
	return s
}

func TestBootstrapCreatesMissingCollection(t *testing.T) {
	f := &fakeQdrant{}
	s := newTestStore(t, f)
	if f.created == nil {
		t.Fatalf("collection was not created")
	}
	vectors := f.created["vectors"].(map[string]any)
	if vectors["size"] != float64(3) || vectors["distance"] != "Cosine" {
		t.Fatalf("unexpected create body: %+v", f.created)
	}
	if s.nsPrefix != DefaultNamespacePrefix {
		t.Fatalf("nsPrefix: got=%q", s.nsPrefix)
	}
}

func TestBootstrapRejectsSizeMismatch(t *testing.T) {
	f := &fakeQdrant{exists: true, size: 1536, distance: "Cosine"}
	srv := httptest.NewServer(f.handler(t))
	defer srv.Close()
	_, err := newVectorStore(context.Background(), logger.Nop(), Config{URL: srv.URL, Collection: "chunks", VectorDim: 3}, srv.Client())
	var oe *OperationError
	if !errors.As(err, &oe) || oe.Code != OperationErrorValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestUpsertWritesNamespacedPayload(t *testing.T) {
	f := &fakeQdrant{exists: true, size: 3, distance: "Cosine"}
	s := newTestStore(t, f)

	meta := map[string]any{"document_id": "doc-1"}
	err := s.Upsert(context.Background(), "kb-1", []Vector{{ID: "chunk-1", Values: []float32{1, 0, 0}, Payload: meta}})
	if err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if f.lastPath != "/collections/chunks/points?wait=true" {
		t.Fatalf("path: got=%q", f.lastPath)
	}
	point := f.lastBody["points"].([]any)[0].(map[string]any)
	if point["id"] != s.pointID("dm:kb-1", "chunk-1") {
		t.Fatalf("point id: got=%v", point["id"])
	}
	payload := point["payload"].(map[string]any)
	if payload[payloadNamespaceKey] != "dm:kb-1" || payload[payloadVectorIDKey] != "chunk-1" || payload["document_id"] != "doc-1" {
		t.Fatalf("payload: %+v", payload)
	}
	if _, ok := meta[payloadNamespaceKey]; ok {
		t.Fatalf("input payload mutated")
	}

	err = s.Upsert(context.Background(), "kb-1", []Vector{{ID: "chunk-2", Values: []float32{1, 0}}})
	var oe *OperationError
	if !errors.As(err, &oe) || oe.Code != OperationErrorValidation {
		t.Fatalf("expected dimension error, got %v", err)
	}
}

func TestSearchFiltersByNamespaceAndSorts(t *testing.T) {
	f := &fakeQdrant{exists: true, size: 3, distance: "Cosine", searchResp: []map[string]any{
		{"id": "p1", "score": 0.4, "payload": map[string]any{payloadVectorIDKey: "chunk-a", "document_id": "d"}},
		{"id": "p2", "score": 0.9, "payload": map[string]any{payloadVectorIDKey: "chunk-b"}},
		{"id": "p3", "score": -0.2, "payload": map[string]any{payloadVectorIDKey: "chunk-c"}},
	}}
	s := newTestStore(t, f)

	matches, err := s.Search(context.Background(), "kb-1", []float32{0, 1, 0}, 5, &Filter{Must: []Condition{Match("document_id", "d")}})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(matches) != 3 || matches[0].ID != "chunk-b" || matches[1].ID != "chunk-a" || matches[2].Score != 0 {
		t.Fatalf("unexpected matches: %+v", matches)
	}
	if _, ok := matches[1].Payload[payloadVectorIDKey]; ok {
		t.Fatalf("internal payload keys should be stripped")
	}

	must := f.lastBody["filter"].(map[string]any)["must"].([]any)
	if len(must) != 2 {
		t.Fatalf("expected namespace + document conditions, got %+v", must)
	}
	ns := must[0].(map[string]any)
	if ns["key"] != payloadNamespaceKey || ns["match"].(map[string]any)["value"] != "dm:kb-1" {
		t.Fatalf("namespace condition: %+v", ns)
	}
}

func TestSearchErrorIsTyped(t *testing.T) {
	f := &fakeQdrant{exists: true, size: 3, distance: "Cosine", failSearch: true}
	s := newTestStore(t, f)
	_, err := s.Search(context.Background(), "kb-1", []float32{0, 1, 0}, 5, nil)
	var oe *OperationError
	if !errors.As(err, &oe) || oe.Code != OperationErrorQueryFailed || oe.StatusCode != http.StatusInternalServerError {
		t.Fatalf("expected query_failed, got %v", err)
	}
}

func TestDeleteIDsDedupes(t *testing.T) {
	f := &fakeQdrant{exists: true, size: 3, distance: "Cosine"}
	s := newTestStore(t, f)
	if err := s.DeleteIDs(context.Background(), "kb-1", []string{"a", " a ", "", "b"}); err != nil {
		t.Fatalf("DeleteIDs: %v", err)
	}
	points := f.lastBody["points"].([]any)
	if len(points) != 2 {
		t.Fatalf("expected 2 point ids, got %v", points)
	}
	if err := s.DeleteByFilter(context.Background(), "kb-1", Filter{}); err == nil {
		t.Fatalf("expected refusal for empty filter")
	}
	if err := s.DeleteByFilter(context.Background(), "kb-1", Filter{Must: []Condition{Match("document_id", "d"), Match("generation", 2)}}); err != nil {
		t.Fatalf("DeleteByFilter: %v", err)
	}
	must := f.lastBody["filter"].(map[string]any)["must"].([]any)
	if len(must) != 3 {
		t.Fatalf("expected namespace + 2 conditions, got %+v", must)
	}
	gen := must[2].(map[string]any)
	if gen["key"] != "generation" || gen["match"].(map[string]any)["value"] != float64(2) {
		t.Fatalf("generation condition: %+v", gen)
	}
}

func TestValidateConfig(t *testing.T) {
	cases := []struct {
		cfg  Config
		code ConfigErrorCode
	}{
		{Config{}, ConfigErrorMissingURL},
		{Config{URL: "qdrant:6333", Collection: "c", VectorDim: 3}, ConfigErrorInvalidURL},
		{Config{URL: "http://qdrant:6333", VectorDim: 3}, ConfigErrorMissingCollection},
		{Config{URL: "http://qdrant:6333", Collection: "c"}, ConfigErrorInvalidVectorDim},
	}
	for _, tc := range cases {
		err := ValidateConfig(tc.cfg)
		var ce *ConfigError
		if !errors.As(err, &ce) || ce.Code != tc.code {
			t.Fatalf("ValidateConfig(%+v): want %s got %v", tc.cfg, tc.code, err)
		}
	}
}
