package transcript

import (
	"context"
	"testing"
)

func TestOpenPostgresMirror_EmptyDSNReturnsNil(t *testing.T) {
	m, err := OpenPostgresMirror(context.Background(), "")
	if err != nil {
		t.Fatalf("expected no error for empty dsn, got %v", err)
	}
	if m != nil {
		t.Fatalf("expected nil mirror for empty dsn")
	}
}

func TestPostgresMirror_NilReceiverMethodsAreSafe(t *testing.T) {
	var m *PostgresMirror
	m.Record(context.Background(), "obj", "irv", "prior", "title")
	if _, err := m.Versions(context.Background(), "obj"); err != nil {
		t.Fatalf("expected nil-receiver Versions to be a no-op, got %v", err)
	}
	if err := m.Init(context.Background()); err != nil {
		t.Fatalf("expected nil-receiver Init to be a no-op, got %v", err)
	}
	m.Close()
}
