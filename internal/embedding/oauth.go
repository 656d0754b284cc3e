package embedding

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"ragqa/internal/cachestore"
	"ragqa/internal/errs"
)

const tokenValidity = 30 * time.Minute

// tokenSource obtains and caches an OAuth2 client-credentials bearer token
// for the embedding endpoint. The authorization key is the base64-encoded
// "client_id:client_secret" pair, passed as-is via HTTP Basic auth. shared,
// when set, lets multiple processes agree on one token instead of each
// minting its own (spec §5's cache backend, applied to this token).
type tokenSource struct {
	tokenURL string
	authKey  string
	scope    string
	client   *http.Client
	shared   cachestore.Store

	mu       sync.Mutex
	token    string
	issuedAt time.Time
}

func newTokenSource(tokenURL, authKey, scope string, client *http.Client) *tokenSource {
	if client == nil {
		client = http.DefaultClient
	}
	return &tokenSource{tokenURL: tokenURL, authKey: authKey, scope: scope, client: client}
}

// withSharedStore attaches a cache backend the token is mirrored through.
func (t *tokenSource) withSharedStore(store cachestore.Store) *tokenSource {
	t.shared = store
	return t
}

func (t *tokenSource) sharedKey() string {
	return "embedding-token:" + t.tokenURL + ":" + keyPrefix(t.authKey)
}

func keyPrefix(s string) string {
	if len(s) <= 10 {
		return s
	}
	return s[:10]
}

// Token returns a cached token if still within validity, else fetches one.
func (t *tokenSource) Token(ctx context.Context) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.token != "" && time.Since(t.issuedAt) < tokenValidity {
		return t.token, nil
	}
	if t.shared != nil {
		if v, ok, err := t.shared.Get(ctx, t.sharedKey()); err == nil && ok {
			t.token = v
			t.issuedAt = time.Now()
			return t.token, nil
		}
	}
	return t.refreshLocked(ctx)
}

// Invalidate forces the next Token call to fetch a fresh token.
func (t *tokenSource) Invalidate() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.token = ""
	if t.shared != nil {
		_ = t.shared.Delete(context.Background(), t.sharedKey())
	}
}

// Refresh unconditionally fetches a new token, replacing any cached one.
func (t *tokenSource) Refresh(ctx context.Context) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.refreshLocked(ctx)
}

func (t *tokenSource) refreshLocked(ctx context.Context) (string, error) {
	form := url.Values{"scope": {t.scope}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", errs.Wrap(errs.KindConnectionError, false, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Authorization", "Basic "+t.authKey)
	req.Header.Set("RqUID", uuid.NewString())
	req.Header.Set("Accept", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return "", errs.Wrap(errs.KindConnectionError, true, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return "", errs.New(errs.KindAuthError, "token endpoint rejected authorization key")
	}
	if resp.StatusCode/100 != 2 {
		return "", errs.Wrap(errs.KindProviderError, resp.StatusCode >= 500, errNonOK(resp.StatusCode))
	}

	var body struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := decodeJSON(resp.Body, &body); err != nil {
		return "", errs.Wrap(errs.KindProviderError, false, err)
	}
	if body.AccessToken == "" {
		return "", errs.New(errs.KindProviderError, "token response missing access_token")
	}
	t.token = body.AccessToken
	t.issuedAt = time.Now()
	if t.shared != nil {
		_ = t.shared.Set(ctx, t.sharedKey(), t.token, tokenValidity)
	}
	return t.token, nil
}
