package platform

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestNew_RequiresRefererAndSession(t *testing.T) {
	if _, err := New("", "sess", 0); err == nil {
		t.Fatalf("expected error for missing referer")
	}
	if _, err := New("http://host", "", 0); err == nil {
		t.Fatalf("expected error for missing jsessionid")
	}
}

func TestGetObjectVersion_SendsSessionCookie(t *testing.T) {
	var gotCookie string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if c, err := r.Cookie("JSESSIONID"); err == nil {
			gotCookie = c.Value
		}
		w.Write([]byte(`{"id":"abc","name":"doc1","files":[{"irvfId":"f1","name":"a.md"}]}`))
	}))
	defer ts.Close()

	c, err := New(ts.URL, "sess-123", 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	ov, err := c.GetObjectVersion(context.Background(), "abc", true, true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotCookie != "sess-123" {
		t.Fatalf("expected session cookie forwarded, got %q", gotCookie)
	}
	if ov.ID != "abc" || len(ov.Files) != 1 {
		t.Fatalf("unexpected object version: %+v", ov)
	}
}

func TestPutFileContent_IncludesChecksum(t *testing.T) {
	var gotQuery string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		w.Write([]byte(`{"ok":true}`))
	}))
	defer ts.Close()

	c, _ := New(ts.URL, "sess", 0)
	if err := c.PutFileContent(context.Background(), FileDescriptor{ID: "f1", Name: "x.json"}, []byte("hello")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotQuery == "" {
		t.Fatalf("expected query string with crc")
	}
}
