package openai

import (
	"encoding/json"
	"testing"

	sdk "github.com/openai/openai-go/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ragqa/internal/llm"
)

func TestAdaptMessages_RolesAndEmptyContentFallbacks(t *testing.T) {
	msgs := []llm.Message{
		{Role: "system", Content: ""},
		{Role: "user", Content: ""},
		{Role: "assistant", Content: "hi"},
		{Role: "tool", Content: "", ToolID: "call_1"},
	}
	out := AdaptMessages(msgs)
	require.Len(t, out, 4)

	assert.Equal(t, sdk.SystemMessage("You are a helpful assistant."), out[0])
	require.NotNil(t, out[1].OfUser)
	require.NotNil(t, out[2].OfAssistant)
	assert.Equal(t, sdk.ToolMessage(`{"error": "empty tool response"}`, "call_1"), out[3])
}

func TestAdaptMessages_AssistantWithToolCalls(t *testing.T) {
	msgs := []llm.Message{
		{
			Role:    "assistant",
			Content: "",
			ToolCalls: []llm.ToolCall{
				{ID: "call_1", Name: "rag", Args: json.RawMessage(`{"query":"x"}`)},
			},
		},
	}
	out := AdaptMessages(msgs)
	require.Len(t, out, 1)
	require.NotNil(t, out[0].OfAssistant)
	require.Len(t, out[0].OfAssistant.ToolCalls, 1)
	assert.Equal(t, "rag", out[0].OfAssistant.ToolCalls[0].OfFunction.Function.Name)
}

func TestAdaptSchemas(t *testing.T) {
	schemas := []llm.ToolSchema{
		{Name: "rag", Description: "search", Parameters: map[string]any{"type": "object"}},
	}
	out := AdaptSchemas(schemas)
	require.Len(t, out, 1)
}

func TestAdaptToolChoice(t *testing.T) {
	required := AdaptToolChoice(llm.ToolChoice{Mode: llm.ToolChoiceRequired})
	assert.Equal(t, "required", *required.OfAuto)

	named := AdaptToolChoice(llm.ToolChoice{Mode: llm.ToolChoiceNamed, Name: "rag"})
	require.NotNil(t, named.OfChatCompletionNamedToolChoice)
	assert.Equal(t, "rag", named.OfChatCompletionNamedToolChoice.Function.Name)

	auto := AdaptToolChoice(llm.ToolChoice{})
	assert.Equal(t, "auto", *auto.OfAuto)
}

func TestIsEmptyArgs(t *testing.T) {
	assert.True(t, isEmptyArgs(""))
	assert.True(t, isEmptyArgs("{}"))
	assert.True(t, isEmptyArgs("null"))
	assert.False(t, isEmptyArgs(`{"query":"x"}`))
}
