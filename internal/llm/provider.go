package llm

import (
	"context"
	"encoding/json"
)

// ToolCall is a single function-call the model asked the caller to perform.
type ToolCall struct {
	Name string
	Args json.RawMessage
	ID   string
}

// Message is a portable chat turn, role-tagged, carrying tool-call/result
// descriptors when present.
type Message struct {
	Role    string // "system" | "user" | "assistant" | "tool"
	Content string
	// ToolID identifies which prior tool call a "tool" role message answers.
	ToolID    string
	ToolCalls []ToolCall
}

// ToolSchema is the JSON-schema exposure of one tool's input, derived from
// its declared fields.
type ToolSchema struct {
	Name        string
	Description string
	Parameters  map[string]any
}

type ToolChoiceMode int

const (
	ToolChoiceAuto ToolChoiceMode = iota
	ToolChoiceRequired
	ToolChoiceNamed
)

// ToolChoice constrains which tool (if any) the model must call.
type ToolChoice struct {
	Mode ToolChoiceMode
	Name string
}

// StreamHandler receives incremental output during a streamed call. Only used
// internally for UX; the agent loop's external contract is request/response.
type StreamHandler interface {
	OnDelta(content string)
	OnToolCall(tc ToolCall)
}

// Request is one chat-completion call.
type Request struct {
	Messages    []Message
	Model       string
	Temperature float64
	MaxTokens   int
	Tools       []ToolSchema
	ToolChoice  ToolChoice
	Extra       map[string]any
}

// Provider talks to any OpenAI-compatible (or adapted) chat-completions
// endpoint with function calling and optional streaming.
type Provider interface {
	Chat(ctx context.Context, req Request) (Message, error)
	ChatStream(ctx context.Context, req Request, h StreamHandler) error
}
