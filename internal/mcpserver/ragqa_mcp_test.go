package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
)

type fakeTool struct {
	name    string
	result  any
	err     error
	lastRaw json.RawMessage
}

func (f *fakeTool) Name() string                 { return f.name }
func (f *fakeTool) JSONSchema() map[string]any   { return map[string]any{} }
func (f *fakeTool) Call(ctx context.Context, raw json.RawMessage) (any, error) {
	f.lastRaw = raw
	return f.result, f.err
}

func TestRunTool_MarshalsArgsAndResult(t *testing.T) {
	tool := &fakeTool{name: "rag", result: map[string]any{"ok": true}}
	res, _, err := runTool(context.Background(), tool, ragArgs{Query: "hello"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.IsError {
		t.Fatalf("expected success result")
	}
	if len(res.Content) != 1 {
		t.Fatalf("expected one content item, got %d", len(res.Content))
	}
	if tool.lastRaw == nil {
		t.Fatalf("expected args to reach the underlying tool")
	}
}

func TestRunTool_ToolErrorBecomesErrorResult(t *testing.T) {
	tool := &fakeTool{name: "rag", err: errors.New("boom")}
	res, _, err := runTool(context.Background(), tool, ragArgs{Query: "hello"})
	if err != nil {
		t.Fatalf("runTool itself should not error on a tool-level failure: %v", err)
	}
	if !res.IsError {
		t.Fatalf("expected IsError result")
	}
}
