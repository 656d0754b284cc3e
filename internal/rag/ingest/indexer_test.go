package ingest

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"ragqa/internal/platform"
	"ragqa/internal/vectorstore"
)

type fakeStore struct {
	upserted []vectorstore.Point
	deleted  []string
	ensured  bool
	scrollAt map[string][]vectorstore.Point
}

func (f *fakeStore) EnsureCollection(ctx context.Context, name string, vectorSize int, distance string, recreate bool) error {
	f.ensured = true
	return nil
}

func (f *fakeStore) Upsert(ctx context.Context, collection string, points []vectorstore.Point) error {
	f.upserted = append(f.upserted, points...)
	return nil
}

func (f *fakeStore) DeleteByIDs(ctx context.Context, collection string, ids []string) error {
	f.deleted = append(f.deleted, ids...)
	return nil
}

func (f *fakeStore) Scroll(ctx context.Context, collection string, filter vectorstore.Filter, limit int, withPayload, withVectors bool, offset any) ([]vectorstore.Point, any, error) {
	docID, _ := filter["document_id"].(string)
	return f.scrollAt[docID], nil, nil
}

type fakeEmbedder struct{}

func (fakeEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{0.1, 0.2}
	}
	return out, nil
}

func newPlatformFixture(t *testing.T) (*platform.Client, *httptest.Server) {
	t.Helper()
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasSuffix(r.URL.Path, "/irv/doc1"):
			json.NewEncoder(w).Encode(map[string]any{
				"id": "doc1",
				"files": []map[string]any{
					{"irvfId": "f1", "name": "readme.md"},
					{"irvfId": "f2", "name": "image.png"},
				},
			})
		case strings.Contains(r.URL.Path, "/file/f1/read"):
			w.Write([]byte("# Title\nSome body text long enough to chunk.\n"))
		default:
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
	}))
	c, err := platform.New(ts.URL, "sess", 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return c, ts
}

func TestAdd_FiltersExtensionsAndIndexes(t *testing.T) {
	c, ts := newPlatformFixture(t)
	defer ts.Close()

	store := &fakeStore{scrollAt: map[string][]vectorstore.Point{}}
	idx := New(c, store, fakeEmbedder{}, Config{Collection: "docs", VectorSize: 2, BatchSize: 10})

	result, err := idx.Add(context.Background(), "doc1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.FilesProcessed != 1 {
		t.Fatalf("expected exactly 1 processed file (non-.md filtered out), got %d", result.FilesProcessed)
	}
	if result.ChunksSaved == 0 {
		t.Fatalf("expected chunks saved")
	}
	if !store.ensured {
		t.Fatalf("expected collection to be ensured")
	}
	for _, p := range store.upserted {
		if p.Payload["document_id"] != "doc1" {
			t.Fatalf("expected document_id payload on every point, got %+v", p.Payload)
		}
	}
}

func TestAdd_IdempotentReindexDeletesPriorPoints(t *testing.T) {
	c, ts := newPlatformFixture(t)
	defer ts.Close()

	store := &fakeStore{scrollAt: map[string][]vectorstore.Point{
		"doc1": {{ID: "old1"}, {ID: "old2"}},
	}}
	idx := New(c, store, fakeEmbedder{}, Config{Collection: "docs", VectorSize: 2})

	if _, err := idx.Add(context.Background(), "doc1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(store.deleted) != 2 {
		t.Fatalf("expected prior points deleted, got %v", store.deleted)
	}
}
