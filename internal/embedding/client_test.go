package embedding

import (
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"context"
)

func tokenServer(t *testing.T, wantAuthKey string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Basic "+wantAuthKey {
			t.Fatalf("expected Basic auth with key %q, got %q", wantAuthKey, got)
		}
		if r.Header.Get("RqUID") == "" {
			t.Fatalf("expected RqUID header to be set")
		}
		if err := r.ParseForm(); err != nil {
			t.Fatalf("parse form: %v", err)
		}
		if r.FormValue("scope") == "" {
			t.Fatalf("expected scope form value")
		}
		resp := map[string]any{"access_token": "tok-123", "expires_in": 1800}
		b, _ := json.Marshal(resp)
		w.Write(b)
	}))
}

func TestEmbed_FetchesTokenAndSendsBearer(t *testing.T) {
	authKey := base64.StdEncoding.EncodeToString([]byte("client:secret"))
	tokSrv := tokenServer(t, authKey)
	defer tokSrv.Close()

	embedSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer tok-123" {
			t.Fatalf("expected Bearer tok-123, got %q", got)
		}
		resp := map[string]any{"data": []map[string]any{{"embedding": []float32{0.1, 0.2}}}}
		b, _ := json.Marshal(resp)
		w.Write(b)
	}))
	defer embedSrv.Close()

	c := New(Config{BaseURL: embedSrv.URL, TokenURL: tokSrv.URL, AuthKey: authKey, Scope: "embed", Model: "m"}, nil)
	vecs, err := c.Embed(context.Background(), []string{"hello"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(vecs) != 1 || len(vecs[0]) != 2 {
		t.Fatalf("unexpected vectors: %+v", vecs)
	}
}

func TestEmbed_RefreshesOnceOn401(t *testing.T) {
	authKey := base64.StdEncoding.EncodeToString([]byte("client:secret"))
	tokenCalls := 0
	tokSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenCalls++
		resp := map[string]any{"access_token": "tok", "expires_in": 1800}
		b, _ := json.Marshal(resp)
		w.Write(b)
	}))
	defer tokSrv.Close()

	embedCalls := 0
	embedSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		embedCalls++
		if embedCalls == 1 {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		resp := map[string]any{"data": []map[string]any{{"embedding": []float32{0.1}}}}
		b, _ := json.Marshal(resp)
		w.Write(b)
	}))
	defer embedSrv.Close()

	c := New(Config{BaseURL: embedSrv.URL, TokenURL: tokSrv.URL, AuthKey: authKey, Scope: "embed", Model: "m", MaxRetries: 3}, nil)
	vecs, err := c.Embed(context.Background(), []string{"hello"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(vecs) != 1 {
		t.Fatalf("unexpected vectors: %+v", vecs)
	}
	if tokenCalls < 2 {
		t.Fatalf("expected token to be refreshed, calls=%d", tokenCalls)
	}
}
