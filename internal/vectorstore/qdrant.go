// Package vectorstore adapts a Qdrant-compatible backend over its REST
// wire protocol (not the gRPC client the rest of the ecosystem favors).
package vectorstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"ragqa/internal/errs"
)

// PayloadIDField carries the caller-supplied original id, since Qdrant point
// ids must be UUIDs or unsigned integers.
const PayloadIDField = "_original_id"

// Point is one vector + payload entry.
type Point struct {
	ID      string         `json:"id"`
	Vector  []float32      `json:"vector"`
	Payload map[string]any `json:"payload,omitempty"`
	Score   float64        `json:"-"`
}

// Filter is a flat AND-combined set of exact-match conditions over payload
// fields, the only shape the retriever and indexer need.
type Filter map[string]any

// CollectionInfo summarizes one collection for list_collections.
type CollectionInfo struct {
	Name        string
	PointsCount int64
	Status      string
	VectorSize  int
	Distance    string
}

// Store talks to one Qdrant-compatible REST endpoint.
type Store struct {
	baseURL string
	http    *http.Client
	apiKey  string
}

// New builds a Store. baseURL should be the REST root, e.g.
// "http://localhost:6333".
func New(baseURL, apiKey string, httpClient *http.Client) *Store {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Store{baseURL: strings.TrimSuffix(baseURL, "/"), http: httpClient, apiKey: apiKey}
}

func (s *Store) do(ctx context.Context, method, path string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return errs.Wrap(errs.KindQdrantError, false, err)
		}
		reader = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, s.baseURL+path, reader)
	if err != nil {
		return errs.Wrap(errs.KindQdrantConnectionError, false, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.apiKey != "" {
		req.Header.Set("api-key", s.apiKey)
	}

	resp, err := s.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return errs.Wrap(errs.KindQdrantTimeout, true, err)
		}
		return errs.Wrap(errs.KindQdrantConnectionError, true, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return errs.Wrap(errs.KindQdrantError, true, err)
	}
	if resp.StatusCode/100 != 2 {
		return errs.Wrap(errs.KindQdrantError, resp.StatusCode >= 500, fmt.Errorf("%d: %s", resp.StatusCode, truncate(respBody, 300)))
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return errs.Wrap(errs.KindQdrantError, false, err)
	}
	return nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n])
}

// EnsureCollection creates the collection if absent. When recreate is set
// it is dropped and recreated unconditionally.
func (s *Store) EnsureCollection(ctx context.Context, name string, vectorSize int, distance string, recreate bool) error {
	if recreate {
		_ = s.DeleteCollection(ctx, name)
	} else {
		var info struct {
			Result struct {
				Status string `json:"status"`
			} `json:"result"`
		}
		if err := s.do(ctx, http.MethodGet, "/collections/"+name, nil, &info); err == nil {
			return nil
		}
	}
	body := map[string]any{
		"vectors": map[string]any{
			"size":     vectorSize,
			"distance": qdrantDistance(distance),
		},
	}
	return s.do(ctx, http.MethodPut, "/collections/"+name, body, nil)
}

func qdrantDistance(d string) string {
	switch strings.ToLower(strings.TrimSpace(d)) {
	case "l2", "euclidean":
		return "Euclid"
	case "ip", "dot":
		return "Dot"
	case "manhattan":
		return "Manhattan"
	default:
		return "Cosine"
	}
}

// DeleteCollection drops a collection entirely.
func (s *Store) DeleteCollection(ctx context.Context, name string) error {
	return s.do(ctx, http.MethodDelete, "/collections/"+name, nil, nil)
}

// ListCollections reports summary info for every collection the server holds.
func (s *Store) ListCollections(ctx context.Context) ([]CollectionInfo, error) {
	var names struct {
		Result struct {
			Collections []struct {
				Name string `json:"name"`
			} `json:"collections"`
		} `json:"result"`
	}
	if err := s.do(ctx, http.MethodGet, "/collections", nil, &names); err != nil {
		return nil, err
	}
	out := make([]CollectionInfo, 0, len(names.Result.Collections))
	for _, c := range names.Result.Collections {
		var detail struct {
			Result struct {
				Status        string `json:"status"`
				PointsCount   int64  `json:"points_count"`
				Config        struct {
					Params struct {
						Vectors struct {
							Size     int    `json:"size"`
							Distance string `json:"distance"`
						} `json:"vectors"`
					} `json:"params"`
				} `json:"config"`
			} `json:"result"`
		}
		if err := s.do(ctx, http.MethodGet, "/collections/"+c.Name, nil, &detail); err != nil {
			continue
		}
		out = append(out, CollectionInfo{
			Name:        c.Name,
			PointsCount: detail.Result.PointsCount,
			Status:      detail.Result.Status,
			VectorSize:  detail.Result.Config.Params.Vectors.Size,
			Distance:    detail.Result.Config.Params.Vectors.Distance,
		})
	}
	return out, nil
}

const maxBatchSize = 1000

// Upsert writes points in batches of at most 1000.
func (s *Store) Upsert(ctx context.Context, collection string, points []Point) error {
	for start := 0; start < len(points); start += maxBatchSize {
		end := start + maxBatchSize
		if end > len(points) {
			end = len(points)
		}
		body := map[string]any{"points": points[start:end]}
		if err := s.do(ctx, http.MethodPut, "/collections/"+collection+"/points?wait=true", body, nil); err != nil {
			return err
		}
	}
	return nil
}

// DeleteByIDs removes points by id, in batches of at most 1000.
func (s *Store) DeleteByIDs(ctx context.Context, collection string, ids []string) error {
	for start := 0; start < len(ids); start += maxBatchSize {
		end := start + maxBatchSize
		if end > len(ids) {
			end = len(ids)
		}
		body := map[string]any{"points": ids[start:end]}
		if err := s.do(ctx, http.MethodPost, "/collections/"+collection+"/points/delete?wait=true", body, nil); err != nil {
			return err
		}
	}
	return nil
}

func qdrantFilter(f Filter) map[string]any {
	if len(f) == 0 {
		return nil
	}
	must := make([]map[string]any, 0, len(f))
	for k, v := range f {
		must = append(must, map[string]any{"key": k, "match": map[string]any{"value": v}})
	}
	return map[string]any{"must": must}
}

// Search performs a dense vector similarity search.
func (s *Store) Search(ctx context.Context, collection string, vector []float32, filter Filter, limit int, withPayload bool) ([]Point, error) {
	body := map[string]any{
		"vector":       vector,
		"limit":        limit,
		"with_payload": withPayload,
	}
	if qf := qdrantFilter(filter); qf != nil {
		body["filter"] = qf
	}
	var resp struct {
		Result []struct {
			ID      any            `json:"id"`
			Score   float64        `json:"score"`
			Payload map[string]any `json:"payload"`
		} `json:"result"`
	}
	if err := s.do(ctx, http.MethodPost, "/collections/"+collection+"/points/search", body, &resp); err != nil {
		return nil, err
	}
	out := make([]Point, 0, len(resp.Result))
	for _, r := range resp.Result {
		out = append(out, Point{ID: idString(r.ID, r.Payload), Payload: r.Payload, Score: r.Score})
	}
	return out, nil
}

// QueryText performs a lexical (full-text) query where the backend supports
// it. Qdrant's filter-based text match condition is used.
func (s *Store) QueryText(ctx context.Context, collection, text string, filter Filter, limit int) ([]Point, error) {
	must := []map[string]any{{"key": "text", "match": map[string]any{"text": text}}}
	if qf := qdrantFilter(filter); qf != nil {
		must = append(must, qf["must"].([]map[string]any)...)
	}
	body := map[string]any{
		"filter":       map[string]any{"must": must},
		"limit":        limit,
		"with_payload": true,
	}
	var resp struct {
		Result struct {
			Points []struct {
				ID      any            `json:"id"`
				Payload map[string]any `json:"payload"`
			} `json:"points"`
		} `json:"result"`
	}
	if err := s.do(ctx, http.MethodPost, "/collections/"+collection+"/points/scroll", body, &resp); err != nil {
		return nil, err
	}
	out := make([]Point, 0, len(resp.Result.Points))
	for _, r := range resp.Result.Points {
		out = append(out, Point{ID: idString(r.ID, r.Payload), Payload: r.Payload})
	}
	return out, nil
}

// Scroll pages through points matching filter. A nil offset starts at the
// beginning; the returned offset, when non-nil, is passed back in to
// continue.
func (s *Store) Scroll(ctx context.Context, collection string, filter Filter, limit int, withPayload, withVectors bool, offset any) (points []Point, nextOffset any, err error) {
	body := map[string]any{
		"limit":        limit,
		"with_payload": withPayload,
		"with_vector":  withVectors,
	}
	if qf := qdrantFilter(filter); qf != nil {
		body["filter"] = qf
	}
	if offset != nil {
		body["offset"] = offset
	}
	var resp struct {
		Result struct {
			Points []struct {
				ID      any            `json:"id"`
				Payload map[string]any `json:"payload"`
				Vector  []float32      `json:"vector"`
			} `json:"points"`
			NextPageOffset any `json:"next_page_offset"`
		} `json:"result"`
	}
	if err := s.do(ctx, http.MethodPost, "/collections/"+collection+"/points/scroll", body, &resp); err != nil {
		return nil, nil, err
	}
	out := make([]Point, 0, len(resp.Result.Points))
	for _, r := range resp.Result.Points {
		out = append(out, Point{ID: idString(r.ID, r.Payload), Payload: r.Payload, Vector: r.Vector})
	}
	return out, resp.Result.NextPageOffset, nil
}

// CheckConnection performs a fast health probe against the server root.
func (s *Store) CheckConnection(ctx context.Context, timeout time.Duration) (bool, error) {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(cctx, http.MethodGet, s.baseURL+"/", nil)
	if err != nil {
		return false, err
	}
	resp, err := s.http.Do(req)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()
	return resp.StatusCode/100 == 2, nil
}

// idString prefers the caller-supplied original id stashed in the payload,
// falling back to the server-assigned id's string form.
func idString(raw any, payload map[string]any) string {
	if payload != nil {
		if v, ok := payload[PayloadIDField].(string); ok && v != "" {
			return v
		}
	}
	switch v := raw.(type) {
	case string:
		return v
	case float64:
		return fmt.Sprintf("%d", int64(v))
	default:
		return fmt.Sprintf("%v", v)
	}
}
