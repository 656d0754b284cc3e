// Package retrieve implements hybrid (dense + lexical) retrieval over a
// vector store collection, with an optional reranking stage.
package retrieve

import (
	"context"
	"sort"
	"strings"

	"ragqa/internal/vectorstore"
)

// Embedder turns query text into a vector. Satisfied by *embedding.Client.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Store is the subset of vectorstore.Store the retriever needs.
type Store interface {
	Search(ctx context.Context, collection string, vector []float32, filter vectorstore.Filter, limit int, withPayload bool) ([]vectorstore.Point, error)
	QueryText(ctx context.Context, collection, text string, filter vectorstore.Filter, limit int) ([]vectorstore.Point, error)
	Scroll(ctx context.Context, collection string, filter vectorstore.Filter, limit int, withPayload, withVectors bool, offset any) ([]vectorstore.Point, any, error)
}

// Reranker scores a candidate against the query, returning a value in
// [0, 1]. A nil Reranker disables the rerank stage.
type Reranker interface {
	Score(ctx context.Context, query, text string) (float64, error)
}

// Item is one ranked retrieval result.
type Item struct {
	ID       string
	Text     string
	Score    float64
	Metadata map[string]any
}

// Options configures one retrieval call.
type Options struct {
	TopK           int
	VectorTopK     int // default 20
	TextTopK       int // default 20
	FilterMetadata vectorstore.Filter
	DisableLexical bool // skips the lexical leg when rag.hybrid_search.enabled is false
}

// Retriever performs hybrid retrieval against one collection.
type Retriever struct {
	store      Store
	embedder   Embedder
	reranker   Reranker
	collection string
}

// New builds a Retriever. reranker may be nil to disable the rerank stage.
func New(store Store, embedder Embedder, reranker Reranker, collection string) *Retriever {
	return &Retriever{store: store, embedder: embedder, reranker: reranker, collection: collection}
}

// Retrieve runs dense search, lexical search, merges by id (first-seen
// wins), optionally reranks, and truncates to top_k.
func (r *Retriever) Retrieve(ctx context.Context, query string, opt Options) ([]Item, error) {
	vectorTopK := opt.VectorTopK
	if vectorTopK <= 0 {
		vectorTopK = 20
	}
	textTopK := opt.TextTopK
	if textTopK <= 0 {
		textTopK = 20
	}
	topK := opt.TopK
	if topK <= 0 {
		topK = vectorTopK
	}

	dense, err := r.denseSearch(ctx, query, opt.FilterMetadata, vectorTopK)
	if err != nil {
		return nil, err
	}
	var lexical []Item
	if !opt.DisableLexical {
		lexical, err = r.lexicalSearch(ctx, query, opt.FilterMetadata, textTopK, vectorTopK)
		if err != nil {
			return nil, err
		}
	}

	merged := mergeByID(dense, lexical)

	if r.reranker != nil {
		for i := range merged {
			score, err := r.reranker.Score(ctx, query, merged[i].Text)
			if err != nil {
				continue
			}
			if score < 0 {
				score = 0
			}
			if score > 1 {
				score = 1
			}
			merged[i].Score = 0.3*merged[i].Score + 0.7*score
		}
		sort.SliceStable(merged, func(i, j int) bool { return merged[i].Score > merged[j].Score })
	}

	if len(merged) > topK {
		merged = merged[:topK]
	}
	return merged, nil
}

func (r *Retriever) denseSearch(ctx context.Context, query string, filter vectorstore.Filter, limit int) ([]Item, error) {
	vecs, err := r.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, err
	}
	if len(vecs) == 0 {
		return nil, nil
	}
	points, err := r.store.Search(ctx, r.collection, vecs[0], filter, limit, true)
	if err != nil {
		return nil, err
	}
	out := make([]Item, 0, len(points))
	for _, p := range points {
		out = append(out, pointToItem(p, p.Score))
	}
	return out, nil
}

// lexicalSearch attempts a full-text query; if the backend returns nothing
// usable it falls back to scroll-and-substring scoring.
func (r *Retriever) lexicalSearch(ctx context.Context, query string, filter vectorstore.Filter, limit, vectorTopK int) ([]Item, error) {
	points, err := r.store.QueryText(ctx, r.collection, query, filter, limit)
	if err == nil && len(points) > 0 {
		out := make([]Item, 0, len(points))
		for _, p := range points {
			out = append(out, pointToItem(p, 1.0))
		}
		return out, nil
	}

	// Fallback: scroll up to 10x vector_top_k candidates, keep substring
	// matches, score by normalized occurrence count.
	needle := strings.ToLower(strings.TrimSpace(query))
	if needle == "" {
		return nil, nil
	}
	candidates, _, err := r.store.Scroll(ctx, r.collection, filter, 10*vectorTopK, true, false, nil)
	if err != nil {
		return nil, err
	}
	var out []Item
	for _, p := range candidates {
		text, _ := p.Payload["text"].(string)
		if text == "" {
			continue
		}
		lower := strings.ToLower(text)
		count := strings.Count(lower, needle)
		if count == 0 {
			continue
		}
		score := float64(count) / float64(len(lower))
		if score > 1 {
			score = 1
		}
		out = append(out, pointToItem(p, score))
	}
	return out, nil
}

func pointToItem(p vectorstore.Point, score float64) Item {
	text, _ := p.Payload["text"].(string)
	return Item{ID: p.ID, Text: text, Score: score, Metadata: p.Payload}
}

// mergeByID unions two result sets by id, dense first, keeping the
// first-seen occurrence (and its score/metadata).
func mergeByID(sets ...[]Item) []Item {
	seen := make(map[string]struct{})
	var out []Item
	for _, set := range sets {
		for _, it := range set {
			if _, ok := seen[it.ID]; ok {
				continue
			}
			seen[it.ID] = struct{}{}
			out = append(out, it)
		}
	}
	return out
}
