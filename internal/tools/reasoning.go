package tools

import (
	"context"
	"encoding/json"
	"fmt"
)

// ReasoningTool is pure bookkeeping: the model reports its plan and the
// tool's return value is a short human-readable summary of it, appended to
// the conversation as that reasoning artifact's tool-result.
type ReasoningTool struct{}

func NewReasoningTool() *ReasoningTool { return &ReasoningTool{} }

func (t *ReasoningTool) Name() string { return "reasoning" }

func (t *ReasoningTool) JSONSchema() map[string]any {
	return map[string]any{
		"name":        t.Name(),
		"description": "Record the current reasoning step before choosing the next action.",
		"parameters": map[string]any{
			"type": "object",
			"properties": map[string]any{
				"reasoning_steps":   map[string]any{"type": "string", "description": "What has been figured out so far"},
				"current_situation": map[string]any{"type": "string", "description": "Where the task stands right now"},
				"plan_status":       map[string]any{"type": "string", "description": "on_track | revised | blocked"},
				"enough_data":       map[string]any{"type": "boolean", "description": "Whether enough information has been gathered to answer"},
				"remaining_steps":   map[string]any{"type": "integer", "description": "Estimated steps remaining"},
				"task_completed":    map[string]any{"type": "boolean", "description": "Whether the task is already complete"},
				"next_step":         map[string]any{"type": "string", "description": "Free-form hint about what to do next"},
			},
			"required": []string{"reasoning_steps", "current_situation", "plan_status", "enough_data", "remaining_steps", "task_completed"},
		},
	}
}

type reasoningArgs struct {
	ReasoningSteps   string `json:"reasoning_steps"`
	CurrentSituation string `json:"current_situation"`
	PlanStatus       string `json:"plan_status"`
	EnoughData       bool   `json:"enough_data"`
	RemainingSteps   int    `json:"remaining_steps"`
	TaskCompleted    bool   `json:"task_completed"`
	NextStep         string `json:"next_step"`
}

func (t *ReasoningTool) Call(ctx context.Context, raw json.RawMessage) (any, error) {
	var args reasoningArgs
	if err := json.Unmarshal(raw, &args); err != nil {
		return nil, err
	}
	summary := fmt.Sprintf("Situation: %s. Plan status: %s. Enough data: %v.",
		args.CurrentSituation, args.PlanStatus, args.EnoughData)
	if args.NextStep != "" {
		summary += " Next: " + args.NextStep
	}
	return summary, nil
}
