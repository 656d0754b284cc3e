package tools

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultRegistry_DispatchUnknownTool(t *testing.T) {
	r := NewRegistry()
	payload, err := r.Dispatch(context.Background(), "nope", nil)
	require.NoError(t, err)
	assert.JSONEq(t, `{"error":"tool not found"}`, string(payload))
}

func TestDefaultRegistry_DispatchRoutesToRegisteredTool(t *testing.T) {
	r := NewRegistry()
	r.Register(NewFinalAnswerTool())

	payload, err := r.Dispatch(context.Background(), "final_answer", json.RawMessage(`{"answer":"42"}`))
	require.NoError(t, err)

	var got FinalAnswer
	require.NoError(t, json.Unmarshal(payload, &got))
	assert.Equal(t, "42", got.Answer)
}

func TestDefaultRegistry_Schemas(t *testing.T) {
	r := NewRegistry()
	r.Register(NewFinalAnswerTool())

	schemas := r.Schemas()
	require.Len(t, schemas, 1)
	assert.Equal(t, "final_answer", schemas[0].Name)
	assert.NotEmpty(t, schemas[0].Description)
}

func TestRecordingRegistry_CallsHookOnDispatch(t *testing.T) {
	base := NewRegistry()
	base.Register(NewFinalAnswerTool())

	var events []DispatchEvent
	rec := NewRecordingRegistry(base, func(e DispatchEvent) { events = append(events, e) })

	_, err := rec.Dispatch(context.Background(), "final_answer", json.RawMessage(`{"answer":"hi"}`))
	require.NoError(t, err)

	require.Len(t, events, 1)
	assert.Equal(t, "final_answer", events[0].Name)
	assert.NoError(t, events[0].Err)
}

func TestFinalAnswerTool_CallParsesStructuredOutput(t *testing.T) {
	tool := NewFinalAnswerTool()
	result, err := tool.Call(context.Background(), json.RawMessage(`{"answer":"done","chat_title":"t"}`))
	require.NoError(t, err)

	fa, ok := result.(FinalAnswer)
	require.True(t, ok)
	assert.Equal(t, "done", fa.Answer)
	assert.Equal(t, "t", fa.ChatTitle)
}

func TestFinalAnswerTool_CallRejectsInvalidJSON(t *testing.T) {
	tool := NewFinalAnswerTool()
	_, err := tool.Call(context.Background(), json.RawMessage(`not json`))
	assert.Error(t, err)
}
