package tools

import (
	"context"
	"encoding/json"
)

// FinalAnswerTool is the terminal tool of an agent loop. Its fields are the
// structured output contract; the agent driver recognizes this tool by name
// and transitions to the completed state when it fires.
type FinalAnswerTool struct{}

func NewFinalAnswerTool() *FinalAnswerTool { return &FinalAnswerTool{} }

// Name is also the sentinel the agent driver checks for.
func (t *FinalAnswerTool) Name() string { return "final_answer" }

func (t *FinalAnswerTool) JSONSchema() map[string]any {
	return map[string]any{
		"name":        t.Name(),
		"description": "Deliver the final answer to the user and end the task.",
		"parameters": map[string]any{
			"type": "object",
			"properties": map[string]any{
				"answer":       map[string]any{"type": "string", "description": "The complete answer to the user's request"},
				"chat_title":   map[string]any{"type": "string", "description": "A short title summarizing the conversation"},
				"chat_summary": map[string]any{"type": "string", "description": "A one- or two-sentence summary of the conversation"},
			},
			"required": []string{"answer"},
		},
	}
}

// FinalAnswer is the parsed structured-output contract this tool produces.
type FinalAnswer struct {
	Answer      string `json:"answer"`
	ChatTitle   string `json:"chat_title,omitempty"`
	ChatSummary string `json:"chat_summary,omitempty"`
}

func (t *FinalAnswerTool) Call(ctx context.Context, raw json.RawMessage) (any, error) {
	var fa FinalAnswer
	if err := json.Unmarshal(raw, &fa); err != nil {
		return nil, err
	}
	return fa, nil
}
