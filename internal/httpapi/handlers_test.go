package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"ragqa/internal/config"
	"ragqa/internal/errs"
)

func newTestServer() *Server {
	return NewServer(Deps{Config: &config.Config{}})
}

func TestHandleHealth_AlwaysOK(t *testing.T) {
	srv := newTestServer()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()

	srv.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"status":"ok"`)
}

func TestHandleGenerate_MissingCurrentMessageReturns200WithErrorBody(t *testing.T) {
	srv := newTestServer()
	req := httptest.NewRequest(http.MethodPost, "/v1/generate", bodyOf(t, map[string]any{}))
	rec := httptest.NewRecorder()

	srv.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), string(errs.KindMissingCurrentMsg))
}

func TestHandleRAGManage_InvalidActionReturns200WithErrorBody(t *testing.T) {
	srv := newTestServer()
	req := httptest.NewRequest(http.MethodPost, "/v1/rag/manage", bodyOf(t, map[string]any{
		"action": "explode",
		"irv_id": "doc1",
	}))
	rec := httptest.NewRecorder()

	srv.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), string(errs.KindInvalidAction))
}

func TestHandleRAGManage_MissingVDBURLReturns200WithErrorBody(t *testing.T) {
	srv := newTestServer()
	req := httptest.NewRequest(http.MethodPost, "/v1/rag/manage", bodyOf(t, map[string]any{
		"action": "remove",
		"irv_id": "doc1",
	}))
	rec := httptest.NewRecorder()

	srv.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), string(errs.KindMissingVDBURL))
}

func TestHandleDeleteCollection_MissingNameReturns200WithErrorBody(t *testing.T) {
	srv := newTestServer()
	req := httptest.NewRequest(http.MethodDelete, "/v1/rag/collections/%20", nil)
	rec := httptest.NewRecorder()

	srv.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), string(errs.KindMissingCollection))
}

func TestHandleCacheInfoAndClear(t *testing.T) {
	srv := newTestServer()

	infoReq := httptest.NewRequest(http.MethodGet, "/v1/cache/info", nil)
	infoRec := httptest.NewRecorder()
	srv.ServeHTTP(infoRec, infoReq)
	require.Equal(t, http.StatusOK, infoRec.Code)
	require.Contains(t, infoRec.Body.String(), `"count":0`)

	clearReq := httptest.NewRequest(http.MethodDelete, "/v1/cache/clear", nil)
	clearRec := httptest.NewRecorder()
	srv.ServeHTTP(clearRec, clearReq)
	require.Equal(t, http.StatusOK, clearRec.Code)
	require.Contains(t, clearRec.Body.String(), `"ok":true`)
}

func TestAdminAuth_DisabledWithNoIssuerPassesThrough(t *testing.T) {
	srv := newTestServer()

	infoReq := httptest.NewRequest(http.MethodGet, "/v1/cache/info", nil)
	infoRec := httptest.NewRecorder()
	srv.ServeHTTP(infoRec, infoReq)

	require.Equal(t, http.StatusOK, infoRec.Code)
	require.Contains(t, infoRec.Body.String(), `"count":0`)
}

func TestAdminAuth_MissingBearerTokenRejectedWhenIssuerConfigured(t *testing.T) {
	srv := NewServer(Deps{Config: &config.Config{
		HTTPAPI: config.HTTPAPIConfig{
			AdminOIDC: config.AdminOIDCConfig{Issuer: "https://issuer.example.test", Audience: "ragqa"},
		},
	}})

	req := httptest.NewRequest(http.MethodGet, "/v1/cache/info", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "unauthorized")
}

func TestErrorBodyFor_WrapsPlainErrorsAsInternal(t *testing.T) {
	body := errorBodyFor(errNotAnErrsError{})
	require.Equal(t, string(errs.KindInternalError), body.Error)
	require.Equal(t, "boom", body.Detail)
}

type errNotAnErrsError struct{}

func (errNotAnErrsError) Error() string { return "boom" }

func bodyOf(t *testing.T, v any) *bytes.Reader {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return bytes.NewReader(b)
}
