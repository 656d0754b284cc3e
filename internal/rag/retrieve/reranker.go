package retrieve

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// HTTPReranker scores query/document pairs against a cross-encoder-style
// rerank endpoint exposing the llama.cpp-compatible /v1/rerank contract.
type HTTPReranker struct {
	baseURL string
	model   string
	http    *http.Client
}

// NewHTTPReranker builds a Reranker backed by an HTTP rerank endpoint.
func NewHTTPReranker(baseURL, model string, httpClient *http.Client) *HTTPReranker {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &HTTPReranker{baseURL: strings.TrimSuffix(baseURL, "/"), model: model, http: httpClient}
}

type rerankRequest struct {
	Model     string   `json:"model"`
	Query     string   `json:"query"`
	TopN      int      `json:"top_n"`
	Documents []string `json:"documents"`
}

type rerankResult struct {
	Index          int     `json:"index"`
	RelevanceScore float64 `json:"relevance_score"`
}

type rerankResponse struct {
	Results []rerankResult `json:"results"`
}

// Score asks the reranker for the relevance of text to query, clamped to
// [0, 1] by the caller.
func (r *HTTPReranker) Score(ctx context.Context, query, text string) (float64, error) {
	reqBody := rerankRequest{Model: r.model, Query: query, TopN: 1, Documents: []string{text}}
	b, err := json.Marshal(reqBody)
	if err != nil {
		return 0, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+"/v1/rerank", bytes.NewReader(b))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.http.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, err
	}
	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("rerank failed with status %d: %s", resp.StatusCode, string(body))
	}

	var parsed rerankResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return 0, err
	}
	if len(parsed.Results) == 0 {
		return 0, fmt.Errorf("rerank returned no results")
	}
	return parsed.Results[0].RelevanceScore, nil
}
