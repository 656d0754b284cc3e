package googleprovider

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"

	"ragqa/internal/llm"
)

func TestAdaptContents_SystemIsHoistedOut(t *testing.T) {
	system, contents := adaptContents([]llm.Message{
		{Role: "system", Content: "be terse"},
		{Role: "user", Content: "hi"},
	})
	assert.Equal(t, "be terse", system)
	require.Len(t, contents, 1)
	assert.Equal(t, genai.RoleUser, contents[0].Role)
}

func TestAdaptContents_AssistantWithToolCall(t *testing.T) {
	_, contents := adaptContents([]llm.Message{
		{
			Role: "assistant",
			ToolCalls: []llm.ToolCall{
				{Name: "rag", Args: json.RawMessage(`{"query":"x"}`)},
			},
		},
	})
	require.Len(t, contents, 1)
	assert.Equal(t, genai.RoleModel, contents[0].Role)
	require.Len(t, contents[0].Parts, 1)
	require.NotNil(t, contents[0].Parts[0].FunctionCall)
	assert.Equal(t, "rag", contents[0].Parts[0].FunctionCall.Name)
}

func TestAdaptContents_ToolResponse(t *testing.T) {
	_, contents := adaptContents([]llm.Message{
		{Role: "tool", ToolID: "call_1", Content: "result text"},
	})
	require.Len(t, contents, 1)
	assert.Equal(t, genai.RoleUser, contents[0].Role)
	require.Len(t, contents[0].Parts, 1)
	assert.NotNil(t, contents[0].Parts[0].FunctionResponse)
}

func TestAdaptTools_EmptyReturnsNil(t *testing.T) {
	assert.Nil(t, adaptTools(nil))
}

func TestAdaptTools_BuildsFunctionDeclarations(t *testing.T) {
	tools := adaptTools([]llm.ToolSchema{{Name: "rag", Description: "search"}})
	require.Len(t, tools, 1)
	require.Len(t, tools[0].FunctionDeclarations, 1)
	assert.Equal(t, "rag", tools[0].FunctionDeclarations[0].Name)
}

func TestAdaptToolConfig(t *testing.T) {
	required := adaptToolConfig(llm.ToolChoice{Mode: llm.ToolChoiceRequired})
	assert.Equal(t, genai.FunctionCallingConfigModeAny, required.FunctionCallingConfig.Mode)

	named := adaptToolConfig(llm.ToolChoice{Mode: llm.ToolChoiceNamed, Name: "rag"})
	assert.Equal(t, []string{"rag"}, named.FunctionCallingConfig.AllowedFunctionNames)

	auto := adaptToolConfig(llm.ToolChoice{})
	assert.Equal(t, genai.FunctionCallingConfigModeAuto, auto.FunctionCallingConfig.Mode)
}
