package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"ragqa/internal/errs"
	"ragqa/internal/llm"
	"ragqa/internal/observability"
	"ragqa/internal/tools"
)

// Engine drives the reasoning/action cycle against an LLM provider until the
// final_answer tool fires or the iteration cap is reached.
type Engine struct {
	LLM   llm.Provider
	Tools tools.Registry
	Hooks Hooks
	// StepLog, when set (execution.logs_dir), receives one entry per
	// reasoning/action/tool-dispatch step in addition to the trace logger.
	StepLog *zerolog.Logger
}

// Execute runs one agent task to completion (or failure).
func (e *Engine) Execute(ctx context.Context, taskMessages []llm.Message, cfg Config) Result {
	cfg = cfg.withDefaults()
	conversation := append([]llm.Message(nil), taskMessages...)
	logger := observability.LoggerWithTrace(ctx)
	var toolsUsed []string

	for iter := 1; iter <= cfg.MaxIterations; iter++ {
		reasoningMsg, reasoningResultMsg, err := e.reasoningPhase(ctx, conversation, cfg)
		if err != nil {
			return Result{State: StateFailed, Err: err, Iterations: iter, ToolsUsed: toolsUsed}
		}
		conversation = append(conversation, reasoningMsg, reasoningResultMsg)
		e.emit(reasoningMsg)
		e.emit(reasoningResultMsg)
		if e.StepLog != nil {
			e.StepLog.Info().Int("iteration", iter).Str("phase", "reasoning").Str("summary", reasoningResultMsg.Content).Msg("agent_step")
		}

		assistantMsg, toolCall, err := e.actionSelectionPhase(ctx, conversation, cfg)
		if err != nil {
			return Result{State: StateFailed, Err: err, Iterations: iter, ToolsUsed: toolsUsed}
		}
		conversation = append(conversation, assistantMsg)
		e.emit(assistantMsg)

		toolsUsed = append(toolsUsed, toolCall.Name)

		toolResult, err := e.Tools.Dispatch(ctx, toolCall.Name, toolCall.Args)
		toolResultMsg := llm.Message{Role: "tool", Content: string(toolResult), ToolID: toolCall.ID}
		conversation = append(conversation, toolResultMsg)
		e.emit(toolResultMsg)
		if e.Hooks.OnTool != nil {
			e.Hooks.OnTool(toolCall.Name, toolCall.Args, toolResult)
		}
		if e.StepLog != nil {
			e.StepLog.Info().Int("iteration", iter).Str("phase", "action").Str("tool", toolCall.Name).RawJSON("args", toolCall.Args).Msg("agent_step")
		}
		if err != nil {
			logger.Warn().Err(err).Str("tool", toolCall.Name).Msg("tool_dispatch_error")
		}

		if toolCall.Name == "final_answer" {
			result := finalAnswerResult(toolResult)
			result.Iterations = iter
			result.ToolsUsed = toolsUsed
			return result
		}
	}

	return Result{
		State:      StateFailed,
		Err:        errs.New(errs.KindAgentIncomplete, fmt.Sprintf("reached iteration cap of %d without a final answer", cfg.MaxIterations)),
		Iterations: cfg.MaxIterations,
		ToolsUsed:  toolsUsed,
	}
}

// ProvideClarification would resume an execution left in
// StateWaitingForClarification with the user's answer. Reserved shape only:
// execution.max_clarifications defaults to 0 and no phase ever produces
// StateWaitingForClarification, so this always errors.
func (e *Engine) ProvideClarification(ctx context.Context, answer string) (Result, error) {
	return Result{}, errs.New(errs.KindAgentExecutionError, "clarification flow is not implemented")
}

func finalAnswerResult(payload []byte) Result {
	var fa tools.FinalAnswer
	if err := json.Unmarshal(payload, &fa); err != nil {
		return Result{State: StateFailed, Err: errs.Wrap(errs.KindAgentExecutionError, false, err)}
	}
	return Result{State: StateCompleted, Answer: fa.Answer, ChatTitle: fa.ChatTitle, ChatSummary: fa.ChatSummary}
}

func (e *Engine) emit(msg llm.Message) {
	if e.Hooks.OnAssistant != nil {
		e.Hooks.OnAssistant(msg)
	}
}

// reasoningPhase forces exactly one "reasoning" tool call and renders its
// textual tool-result.
func (e *Engine) reasoningPhase(ctx context.Context, conversation []llm.Message, cfg Config) (llm.Message, llm.Message, error) {
	req := llm.Request{
		Messages:    conversation,
		Model:       cfg.Model,
		Temperature: cfg.Temperature,
		MaxTokens:   cfg.MaxTokens,
		Tools:       e.Tools.Schemas(),
		ToolChoice:  llm.ToolChoice{Mode: llm.ToolChoiceNamed, Name: "reasoning"},
	}
	msg, err := e.callWithRetry(ctx, req, cfg.MaxRetries)
	if err != nil {
		return llm.Message{}, llm.Message{}, err
	}
	if len(msg.ToolCalls) == 0 {
		return llm.Message{}, llm.Message{}, errs.New(errs.KindAgentExecutionError, "provider did not return a reasoning tool call")
	}
	tc := msg.ToolCalls[0]

	rendered, dispatchErr := e.Tools.Dispatch(ctx, "reasoning", tc.Args)
	if dispatchErr != nil {
		return llm.Message{}, llm.Message{}, errs.Wrap(errs.KindAgentExecutionError, false, dispatchErr)
	}
	resultText := rendered
	var summary string
	if json.Unmarshal(resultText, &summary) != nil {
		summary = string(resultText)
	}
	return msg, llm.Message{Role: "tool", Content: summary, ToolID: tc.ID}, nil
}

// actionSelectionPhase forces the model to pick exactly one tool from the
// full toolkit.
func (e *Engine) actionSelectionPhase(ctx context.Context, conversation []llm.Message, cfg Config) (llm.Message, llm.ToolCall, error) {
	req := llm.Request{
		Messages:    conversation,
		Model:       cfg.Model,
		Temperature: cfg.Temperature,
		MaxTokens:   cfg.MaxTokens,
		Tools:       e.Tools.Schemas(),
		ToolChoice:  llm.ToolChoice{Mode: llm.ToolChoiceRequired},
	}
	msg, err := e.callWithRetry(ctx, req, cfg.MaxRetries)
	if err != nil {
		return llm.Message{}, llm.ToolCall{}, err
	}
	if len(msg.ToolCalls) == 0 {
		return llm.Message{}, llm.ToolCall{}, errs.New(errs.KindAgentExecutionError, "provider did not return a tool call")
	}
	return msg, msg.ToolCalls[0], nil
}

// callWithRetry applies the agent loop's retry policy: bounded retries on
// transport errors, timeouts, and generic provider errors; immediate
// surfacing of auth/rate-limit/malformed-request errors.
func (e *Engine) callWithRetry(ctx context.Context, req llm.Request, maxRetries int) (llm.Message, error) {
	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		msg, err := e.LLM.Chat(ctx, req)
		if err == nil {
			return msg, nil
		}
		lastErr = err
		if !errs.IsRetryable(err) || isRateLimit(err) {
			return llm.Message{}, err
		}
	}
	return llm.Message{}, lastErr
}

func isRateLimit(err error) bool {
	var e *errs.Error
	return errors.As(err, &e) && e.Kind == errs.KindRateLimit
}
