// Package embedding turns batches of text into vectors via a remote
// embedding endpoint gated by OAuth2 client-credentials.
package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"time"

	"ragqa/internal/cachestore"
	"ragqa/internal/errs"
	"ragqa/internal/observability"
)

// Config describes one embedding endpoint and its credentials.
type Config struct {
	BaseURL    string // embedding endpoint, e.g. https://host/embeddings
	TokenURL   string // OAuth2 token endpoint
	AuthKey    string // base64("client_id:client_secret")
	Scope      string
	Model      string
	BatchSize  int // default 10
	MaxRetries int // default 3
	Timeout    time.Duration
	TokenCache cachestore.Store // optional; shares the bearer token across processes
}

// Client embeds text through the configured endpoint, managing its own
// OAuth2 token lifecycle.
type Client struct {
	cfg    Config
	tokens *tokenSource
	http   *http.Client
}

func New(cfg Config, httpClient *http.Client) *Client {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 10
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	tokens := newTokenSource(cfg.TokenURL, cfg.AuthKey, cfg.Scope, httpClient)
	if cfg.TokenCache != nil {
		tokens = tokens.withSharedStore(cfg.TokenCache)
	}
	return &Client{
		cfg:    cfg,
		tokens: tokens,
		http:   httpClient,
	}
}

type embedReq struct {
	Model string `json:"model"`
	Input string `json:"input"`
}

type embedResp struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

// Embed processes texts in batches of cfg.BatchSize, embedding each text as
// its own request within a batch. All texts must succeed; a single failure
// aborts the call.
func (c *Client) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	out := make([][]float32, len(texts))
	for start := 0; start < len(texts); start += c.cfg.BatchSize {
		end := start + c.cfg.BatchSize
		if end > len(texts) {
			end = len(texts)
		}
		for i := start; i < end; i++ {
			vec, err := c.embedOne(ctx, texts[i])
			if err != nil {
				return nil, fmt.Errorf("embedding batch [%d:%d], item %d: %w", start, end, i, err)
			}
			out[i] = vec
		}
	}
	return out, nil
}

func (c *Client) embedOne(ctx context.Context, text string) ([]float32, error) {
	var lastErr error
	allowRefresh := true
	for attempt := 0; attempt < c.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(math.Pow(2, float64(attempt))) * time.Second
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
		vec, retriedAuth, err := c.tryEmbed(ctx, text, allowRefresh)
		if err == nil {
			return vec, nil
		}
		lastErr = err
		if retriedAuth {
			// The one permitted 401-refresh-retry is consumed; loop again
			// immediately without burning a backoff slot or another refresh.
			allowRefresh = false
			attempt--
			continue
		}
		if !errs.IsRetryable(err) {
			return nil, err
		}
	}
	return nil, lastErr
}

// tryEmbed performs one request, refreshing the token once on 401 when
// allowRefresh is set (until the one refresh per text is used, per the
// retry-once-on-401 policy).
func (c *Client) tryEmbed(ctx context.Context, text string, allowRefresh bool) (vec []float32, retriedAuth bool, err error) {
	log := observability.LoggerWithTrace(ctx)
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return nil, false, err
	}

	cctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	reqBody, _ := json.Marshal(embedReq{Model: c.cfg.Model, Input: text})
	req, err := http.NewRequestWithContext(cctx, http.MethodPost, c.cfg.BaseURL, bytes.NewReader(reqBody))
	if err != nil {
		return nil, false, errs.Wrap(errs.KindConnectionError, false, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, false, errs.Wrap(errs.KindConnectionError, true, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized && allowRefresh {
		log.Warn().Msg("embedding token rejected, refreshing once")
		c.tokens.Invalidate()
		if _, rerr := c.tokens.Refresh(ctx); rerr != nil {
			return nil, false, rerr
		}
		return nil, true, errs.New(errs.KindAuthError, "retrying after token refresh")
	}
	if resp.StatusCode == http.StatusUnauthorized {
		return nil, false, errs.New(errs.KindAuthError, "embedding endpoint rejected refreshed token")
	}
	if resp.StatusCode/100 != 2 {
		body, _ := io.ReadAll(resp.Body)
		return nil, false, errs.Wrap(errs.KindProviderError, resp.StatusCode >= 500, errNonOKBody(resp.StatusCode, body))
	}

	var er embedResp
	if err := decodeJSON(resp.Body, &er); err != nil {
		return nil, false, errs.Wrap(errs.KindProviderError, false, err)
	}
	if len(er.Data) == 0 {
		return nil, false, errs.New(errs.KindProviderError, "embedding response contained no data")
	}
	return er.Data[0].Embedding, false, nil
}

// CheckReachability verifies the endpoint is reachable by embedding a
// one-word probe text.
func (c *Client) CheckReachability(ctx context.Context) error {
	_, err := c.Embed(ctx, []string{"ping"})
	return err
}

func decodeJSON(r io.Reader, v any) error {
	return json.NewDecoder(r).Decode(v)
}

func errNonOK(status int) error {
	return fmt.Errorf("unexpected status %d", status)
}

func errNonOKBody(status int, body []byte) error {
	n := len(body)
	if n > 300 {
		n = 300
	}
	return fmt.Errorf("unexpected status %d: %s", status, string(body[:n]))
}
