package tools

import (
	"context"
	"encoding/json"

	"ragqa/internal/config"
	"ragqa/internal/rag/retrieve"
	"ragqa/internal/vectorstore"
)

// RAGTool performs hybrid retrieval against the knowledge base and returns a
// formatted snippet list.
type RAGTool struct {
	retriever      *retrieve.Retriever
	topK           int
	vectorTopK     int
	textTopK       int
	disableLexical bool
}

// NewRAGTool builds a RAGTool against cfg's hybrid-search pool sizes and
// lexical toggle. defaultTopK overrides cfg.TopK when positive.
func NewRAGTool(retriever *retrieve.Retriever, cfg config.RAGConfig, defaultTopK int) *RAGTool {
	if defaultTopK <= 0 {
		defaultTopK = cfg.TopK
	}
	if defaultTopK <= 0 {
		defaultTopK = 5
	}
	return &RAGTool{
		retriever:      retriever,
		topK:           defaultTopK,
		vectorTopK:     cfg.HybridSearch.VectorTopK,
		textTopK:       cfg.HybridSearch.TextTopK,
		disableLexical: !cfg.HybridSearch.Enabled,
	}
}

func (t *RAGTool) Name() string { return "rag" }

func (t *RAGTool) JSONSchema() map[string]any {
	return map[string]any{
		"name":        t.Name(),
		"description": "Search the indexed knowledge base for passages relevant to a query.",
		"parameters": map[string]any{
			"type": "object",
			"properties": map[string]any{
				"query":       map[string]any{"type": "string", "description": "Search query"},
				"max_results": map[string]any{"type": "integer", "minimum": 1, "maximum": 20},
				"document_id": map[string]any{"type": "string", "description": "Restrict results to a single document id"},
			},
			"required": []string{"query"},
		},
	}
}

type ragArgs struct {
	Query      string `json:"query"`
	MaxResults int    `json:"max_results"`
	DocumentID string `json:"document_id"`
}

type ragSnippet struct {
	ID       string         `json:"id"`
	Text     string         `json:"text"`
	Score    float64        `json:"score"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

func (t *RAGTool) Call(ctx context.Context, raw json.RawMessage) (any, error) {
	var args ragArgs
	if err := json.Unmarshal(raw, &args); err != nil {
		return nil, err
	}
	topK := args.MaxResults
	if topK <= 0 {
		topK = t.topK
	}
	if t.retriever == nil {
		return map[string]any{"ok": false, "error": "knowledge base retriever is not configured"}, nil
	}
	var filter vectorstore.Filter
	if args.DocumentID != "" {
		filter = vectorstore.Filter{"document_id": args.DocumentID}
	}

	items, err := t.retriever.Retrieve(ctx, args.Query, retrieve.Options{
		TopK:           topK,
		VectorTopK:     t.vectorTopK,
		TextTopK:       t.textTopK,
		FilterMetadata: filter,
		DisableLexical: t.disableLexical,
	})
	if err != nil {
		return map[string]any{"ok": false, "error": err.Error()}, nil
	}

	snippets := make([]ragSnippet, 0, len(items))
	for _, it := range items {
		snippets = append(snippets, ragSnippet{ID: it.ID, Text: it.Text, Score: it.Score, Metadata: it.Metadata})
	}
	return map[string]any{"ok": true, "results": snippets}, nil
}
