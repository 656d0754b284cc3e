package vectorstore

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestEnsureCollection_CreatesWhenAbsent(t *testing.T) {
	var putBody map[string]any
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/collections/docs":
			w.WriteHeader(http.StatusNotFound)
		case r.Method == http.MethodPut && r.URL.Path == "/collections/docs":
			_ = json.NewDecoder(r.Body).Decode(&putBody)
			w.Write([]byte(`{"result":true}`))
		default:
			t.Fatalf("unexpected request %s %s", r.Method, r.URL.Path)
		}
	}))
	defer ts.Close()

	s := New(ts.URL, "", nil)
	if err := s.EnsureCollection(context.Background(), "docs", 1024, "cosine", false); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if putBody == nil {
		t.Fatalf("expected collection creation request")
	}
}

func TestUpsert_BatchesAtThousand(t *testing.T) {
	var calls int
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		var body struct {
			Points []Point `json:"points"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		if len(body.Points) > maxBatchSize {
			t.Fatalf("batch too large: %d", len(body.Points))
		}
		w.Write([]byte(`{"result":{"status":"completed"}}`))
	}))
	defer ts.Close()

	s := New(ts.URL, "", nil)
	points := make([]Point, 1500)
	for i := range points {
		points[i] = Point{ID: "id", Vector: []float32{0.1}}
	}
	if err := s.Upsert(context.Background(), "docs", points); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 2 {
		t.Fatalf("expected 2 batched calls, got %d", calls)
	}
}

func TestCheckConnection(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	s := New(ts.URL, "", nil)
	ok, err := s.CheckConnection(context.Background(), 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok {
		t.Fatalf("expected connection to be available")
	}
}
