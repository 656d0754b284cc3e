package transcript

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"ragqa/internal/platform"
)

func newPlatformServer(t *testing.T, handler http.HandlerFunc) (*platform.Client, *httptest.Server) {
	t.Helper()
	ts := httptest.NewServer(handler)
	c, err := platform.New(ts.URL, "sess", 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return c, ts
}

func TestLoad_NoPriorID(t *testing.T) {
	c, ts := newPlatformServer(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatalf("should not make any requests when chat_history_irv_id is empty")
	})
	defer ts.Close()

	s := New(c)
	messages, exists := s.Load(context.Background(), "")
	if messages != nil || exists {
		t.Fatalf("expected no messages and exists=false")
	}
}

func TestLoad_ParsesWrappedMessages(t *testing.T) {
	c, ts := newPlatformServer(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasSuffix(r.URL.Path, "/irv/abc"):
			json.NewEncoder(w).Encode(map[string]any{
				"id": "abc", "name": "prior",
				"files": []map[string]any{{"irvfId": "f1", "name": fileName}},
			})
		case strings.Contains(r.URL.Path, "/file/f1/read"):
			json.NewEncoder(w).Encode(map[string]any{"messages": []map[string]string{
				{"role": "user", "content": "hi"},
				{"role": "assistant", "content": "hello"},
			}})
		default:
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
	})
	defer ts.Close()

	s := New(c)
	messages, exists := s.Load(context.Background(), "abc")
	if !exists {
		t.Fatalf("expected object to exist")
	}
	if len(messages) != 2 || messages[0].Role != "user" {
		t.Fatalf("unexpected messages: %+v", messages)
	}
}

func TestSave_CreatesNewObjectWhenNoPrior(t *testing.T) {
	var createdBody []byte
	c, ts := newPlatformServer(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasSuffix(r.URL.Path, "/irv/doc1"):
			json.NewEncoder(w).Encode(map[string]any{"id": "doc1", "parentId": "p1", "nauId": "n1"})
		case strings.Contains(r.URL.Path, "/childs/find"):
			json.NewEncoder(w).Encode(map[string]any{"error": "not found"})
		case strings.HasSuffix(r.URL.Path, "/folder/p1/childs"):
			json.NewEncoder(w).Encode(map[string]any{"id": "folder1"})
		case strings.HasSuffix(r.URL.Path, "/folder/folder1/irvs"):
			json.NewEncoder(w).Encode(map[string]any{"id": "new1"})
		case strings.HasSuffix(r.URL.Path, "/irv/new1"):
			json.NewEncoder(w).Encode(map[string]any{"id": "new1", "files": []map[string]any{{"irvfId": "f9", "name": fileName}}})
		case strings.Contains(r.URL.Path, "/file/f9/write"):
			createdBody, _ = io.ReadAll(r.Body)
			json.NewEncoder(w).Encode(map[string]any{"ok": true})
		default:
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
	})
	defer ts.Close()

	s := New(c)
	result, err := s.Save(context.Background(), SaveInput{
		IRVID:        "doc1",
		ChatTitle:    "My chat",
		FullMessages: []Message{{Role: "user", Content: "hi"}},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.NewIRVID != "new1" {
		t.Fatalf("expected new1, got %s", result.NewIRVID)
	}
	if len(createdBody) == 0 {
		t.Fatalf("expected file content to be written")
	}
}
