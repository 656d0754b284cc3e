package retrieve

import (
	"context"
	"testing"

	"ragqa/internal/vectorstore"
)

type fakeStore struct {
	searchResults []vectorstore.Point
	scrollResults []vectorstore.Point
	queryErr      error
}

func (f *fakeStore) Search(ctx context.Context, collection string, vector []float32, filter vectorstore.Filter, limit int, withPayload bool) ([]vectorstore.Point, error) {
	return f.searchResults, nil
}

func (f *fakeStore) QueryText(ctx context.Context, collection, text string, filter vectorstore.Filter, limit int) ([]vectorstore.Point, error) {
	return nil, f.queryErr
}

func (f *fakeStore) Scroll(ctx context.Context, collection string, filter vectorstore.Filter, limit int, withPayload, withVectors bool, offset any) ([]vectorstore.Point, any, error) {
	return f.scrollResults, nil, nil
}

type fakeEmbedder struct{}

func (fakeEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	return [][]float32{{0.1, 0.2}}, nil
}

func TestRetrieve_MergesDenseAndLexicalFallback(t *testing.T) {
	store := &fakeStore{
		searchResults: []vectorstore.Point{
			{ID: "a", Score: 0.9, Payload: map[string]any{"text": "alpha section"}},
		},
		scrollResults: []vectorstore.Point{
			{ID: "a", Payload: map[string]any{"text": "alpha section"}},
			{ID: "b", Payload: map[string]any{"text": "beta gamma alpha alpha"}},
		},
	}
	r := New(store, fakeEmbedder{}, nil, "docs")
	items, err := r.Retrieve(context.Background(), "alpha", Options{TopK: 10})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("expected 2 merged items, got %d: %+v", len(items), items)
	}
	if items[0].ID != "a" {
		t.Fatalf("expected dense result first (first-seen wins), got %s", items[0].ID)
	}
}

type fakeReranker struct{}

func (fakeReranker) Score(ctx context.Context, query, text string) (float64, error) {
	if text == "beta gamma alpha alpha" {
		return 1.0, nil
	}
	return 0.0, nil
}

func TestRetrieve_RerankBlendsScoreAndSorts(t *testing.T) {
	store := &fakeStore{
		searchResults: []vectorstore.Point{
			{ID: "a", Score: 1.0, Payload: map[string]any{"text": "alpha section"}},
		},
		scrollResults: []vectorstore.Point{
			{ID: "b", Payload: map[string]any{"text": "beta gamma alpha alpha"}},
		},
	}
	r := New(store, fakeEmbedder{}, fakeReranker{}, "docs")
	items, err := r.Retrieve(context.Background(), "alpha", Options{TopK: 10})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(items))
	}
	if items[0].ID != "b" {
		t.Fatalf("expected reranked item b first, got %s (scores %+v)", items[0].ID, items)
	}
}

func TestRetrieve_DisableLexicalSkipsLexicalLeg(t *testing.T) {
	store := &fakeStore{
		searchResults: []vectorstore.Point{
			{ID: "a", Score: 0.9, Payload: map[string]any{"text": "alpha section"}},
		},
		scrollResults: []vectorstore.Point{
			{ID: "b", Payload: map[string]any{"text": "beta gamma alpha alpha"}},
		},
	}
	r := New(store, fakeEmbedder{}, nil, "docs")
	items, err := r.Retrieve(context.Background(), "alpha", Options{TopK: 10, DisableLexical: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(items) != 1 || items[0].ID != "a" {
		t.Fatalf("expected only dense result a, got %+v", items)
	}
}

func TestRetrieve_TopKTruncates(t *testing.T) {
	store := &fakeStore{
		searchResults: []vectorstore.Point{
			{ID: "a", Score: 0.9, Payload: map[string]any{"text": "alpha"}},
			{ID: "b", Score: 0.8, Payload: map[string]any{"text": "alpha alpha"}},
		},
	}
	r := New(store, fakeEmbedder{}, nil, "docs")
	items, err := r.Retrieve(context.Background(), "alpha", Options{TopK: 1, VectorTopK: 5})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("expected truncation to 1 item, got %d", len(items))
	}
}
