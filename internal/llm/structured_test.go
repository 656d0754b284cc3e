package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseStructured_BareObject(t *testing.T) {
	obj, raw, ok := ParseStructured(`{"answer":"42"}`)
	require.True(t, ok)
	assert.Equal(t, "42", obj["answer"])
	assert.Equal(t, `{"answer":"42"}`, raw)
}

func TestParseStructured_FencedJSON(t *testing.T) {
	content := "```json\n{\"answer\": \"42\"}\n```"
	obj, _, ok := ParseStructured(content)
	require.True(t, ok)
	assert.Equal(t, "42", obj["answer"])
}

func TestParseStructured_BareFenceNoLanguageTag(t *testing.T) {
	content := "```\n{\"answer\": \"hi\"}\n```"
	obj, _, ok := ParseStructured(content)
	require.True(t, ok)
	assert.Equal(t, "hi", obj["answer"])
}

func TestParseStructured_PlainTextReturnsUnparsed(t *testing.T) {
	obj, raw, ok := ParseStructured("just some prose, no JSON here")
	assert.False(t, ok)
	assert.Nil(t, obj)
	assert.Equal(t, "just some prose, no JSON here", raw)
}

func TestParseStructured_EmptyContent(t *testing.T) {
	obj, _, ok := ParseStructured("   ")
	assert.False(t, ok)
	assert.Nil(t, obj)
}

func TestParseStructured_InvalidJSON(t *testing.T) {
	obj, _, ok := ParseStructured("{not valid json")
	assert.False(t, ok)
	assert.Nil(t, obj)
}

func TestHasAnswerField(t *testing.T) {
	assert.False(t, HasAnswerField(nil))
	assert.False(t, HasAnswerField(map[string]any{}))
	assert.False(t, HasAnswerField(map[string]any{"answer": ""}))
	assert.False(t, HasAnswerField(map[string]any{"answer": "   "}))
	assert.True(t, HasAnswerField(map[string]any{"answer": "42"}))
	assert.True(t, HasAnswerField(map[string]any{"answer": 42}))
}
