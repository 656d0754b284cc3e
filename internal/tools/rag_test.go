package tools

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ragqa/internal/config"
	"ragqa/internal/rag/retrieve"
	"ragqa/internal/vectorstore"
)

type recordingStore struct {
	searchLimit int
	textLimit   int
}

func (s *recordingStore) Search(ctx context.Context, collection string, vector []float32, filter vectorstore.Filter, limit int, withPayload bool) ([]vectorstore.Point, error) {
	s.searchLimit = limit
	return []vectorstore.Point{{ID: "a", Score: 1, Payload: map[string]any{"text": "alpha"}}}, nil
}

func (s *recordingStore) QueryText(ctx context.Context, collection, text string, filter vectorstore.Filter, limit int) ([]vectorstore.Point, error) {
	s.textLimit = limit
	return nil, nil
}

func (s *recordingStore) Scroll(ctx context.Context, collection string, filter vectorstore.Filter, limit int, withPayload, withVectors bool, offset any) ([]vectorstore.Point, any, error) {
	return nil, nil, nil
}

type stubEmbedder struct{}

func (stubEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	return [][]float32{{0.1}}, nil
}

func TestRAGTool_ThreadsHybridSearchPoolSizes(t *testing.T) {
	store := &recordingStore{}
	r := retrieve.New(store, stubEmbedder{}, nil, "docs")
	tool := NewRAGTool(r, config.RAGConfig{
		TopK:         5,
		HybridSearch: config.HybridSearchConfig{Enabled: true, VectorTopK: 33, TextTopK: 17},
	}, 5)

	_, err := tool.Call(context.Background(), json.RawMessage(`{"query":"alpha"}`))
	require.NoError(t, err)

	assert.Equal(t, 33, store.searchLimit)
	assert.Equal(t, 17, store.textLimit)
}

func TestRAGTool_DisablesLexicalWhenHybridSearchDisabled(t *testing.T) {
	store := &recordingStore{}
	r := retrieve.New(store, stubEmbedder{}, nil, "docs")
	tool := NewRAGTool(r, config.RAGConfig{
		TopK:         5,
		HybridSearch: config.HybridSearchConfig{Enabled: false, VectorTopK: 33, TextTopK: 17},
	}, 5)

	_, err := tool.Call(context.Background(), json.RawMessage(`{"query":"alpha"}`))
	require.NoError(t, err)

	assert.Equal(t, 0, store.textLimit, "QueryText should never be called when hybrid search is disabled")
}
