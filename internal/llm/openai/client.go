// Package openai adapts an OpenAI-compatible chat-completions endpoint to
// the portable llm.Provider interface.
package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	sdk "github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"

	"ragqa/internal/errs"
	"ragqa/internal/llm"
	"ragqa/internal/observability"
)

// Config carries the per-client settings the adapter needs. Built from
// whatever configuration source the caller uses; kept independent of the
// config package to avoid an import cycle.
type Config struct {
	APIKey      string
	BaseURL     string
	Model       string
	ExtraParams map[string]any
}

// Client implements llm.Provider against an OpenAI-compatible endpoint.
type Client struct {
	sdk   sdk.Client
	model string
	extra map[string]any
}

// New builds a Client. httpClient may be nil, in which case http.DefaultClient
// is used (already wrapped with tracing by the caller in the common case).
func New(c Config, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	opts := []option.RequestOption{option.WithAPIKey(c.APIKey)}
	if c.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(c.BaseURL))
	}
	opts = append(opts, option.WithHTTPClient(httpClient))
	return &Client{
		sdk:   sdk.NewClient(opts...),
		model: c.Model,
		extra: c.ExtraParams,
	}
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func (c *Client) buildParams(req llm.Request) sdk.ChatCompletionNewParams {
	model := firstNonEmpty(req.Model, c.model)
	params := sdk.ChatCompletionNewParams{Model: sdk.ChatModel(model)}
	params.Messages = AdaptMessages(req.Messages)
	if len(req.Tools) > 0 {
		params.Tools = AdaptSchemas(req.Tools)
		params.ToolChoice = AdaptToolChoice(req.ToolChoice)
	}
	if req.Temperature > 0 {
		params.Temperature = sdk.Float(req.Temperature)
	}
	if req.MaxTokens > 0 {
		params.MaxTokens = sdk.Int(int64(req.MaxTokens))
	}
	extra := c.extra
	if len(req.Extra) > 0 {
		merged := make(map[string]any, len(c.extra)+len(req.Extra))
		for k, v := range c.extra {
			merged[k] = v
		}
		for k, v := range req.Extra {
			merged[k] = v
		}
		extra = merged
	}
	if len(extra) > 0 {
		params.SetExtraFields(extra)
	}
	return params
}

// Chat performs a single non-streamed completion call.
func (c *Client) Chat(ctx context.Context, req llm.Request) (llm.Message, error) {
	log := observability.LoggerWithTrace(ctx)
	params := c.buildParams(req)

	ctx, span := llm.StartRequestSpan(ctx, "OpenAI Chat", string(params.Model), len(req.Tools), len(req.Messages))
	defer span.End()
	llm.LogRedactedPrompt(ctx, req.Messages)

	start := time.Now()
	comp, err := c.sdk.Chat.Completions.New(ctx, params)
	dur := time.Since(start)
	if err != nil {
		log.Error().Err(err).Str("model", string(params.Model)).Dur("duration", dur).Msg("chat_completion_error")
		span.RecordError(err)
		return llm.Message{}, classifyAPIError(err)
	}

	log.Debug().Str("model", string(params.Model)).Dur("duration", dur).
		Int64("prompt_tokens", comp.Usage.PromptTokens).
		Int64("completion_tokens", comp.Usage.CompletionTokens).
		Msg("chat_completion_ok")

	llm.LogRedactedResponse(ctx, comp.Choices)
	llm.RecordTokenAttributes(span, int(comp.Usage.PromptTokens), int(comp.Usage.CompletionTokens), int(comp.Usage.TotalTokens))
	llm.RecordTokenMetrics(string(params.Model), int(comp.Usage.PromptTokens), int(comp.Usage.CompletionTokens))

	if len(comp.Choices) == 0 {
		return llm.Message{}, llm.ClassifyEmptyResponse()
	}

	msg := comp.Choices[0].Message
	out := llm.Message{Role: "assistant", Content: msg.Content}
	for _, tc := range msg.ToolCalls {
		switch v := tc.AsAny().(type) {
		case sdk.ChatCompletionMessageFunctionToolCall:
			if isEmptyArgs(v.Function.Arguments) {
				log.Warn().Str("tool", v.Function.Name).Str("id", v.ID).Msg("skipping tool call with empty arguments")
				continue
			}
			out.ToolCalls = append(out.ToolCalls, llm.ToolCall{
				Name: v.Function.Name,
				Args: json.RawMessage(v.Function.Arguments),
				ID:   v.ID,
			})
		case sdk.ChatCompletionMessageCustomToolCall:
			if isEmptyArgs(v.Custom.Input) {
				continue
			}
			out.ToolCalls = append(out.ToolCalls, llm.ToolCall{
				Name: v.Custom.Name,
				Args: json.RawMessage(v.Custom.Input),
				ID:   v.ID,
			})
		}
	}
	return out, nil
}

// ChatStream performs a streamed completion call, delivering deltas and
// accumulated tool calls to h as they arrive.
func (c *Client) ChatStream(ctx context.Context, req llm.Request, h llm.StreamHandler) error {
	log := observability.LoggerWithTrace(ctx)
	params := c.buildParams(req)

	ctx, span := llm.StartRequestSpan(ctx, "OpenAI ChatStream", string(params.Model), len(req.Tools), len(req.Messages))
	defer span.End()
	llm.LogRedactedPrompt(ctx, req.Messages)

	stream := c.sdk.Chat.Completions.NewStreaming(ctx, params)
	acc := sdk.ChatCompletionAccumulator{}
	for stream.Next() {
		chunk := stream.Current()
		acc.AddChunk(chunk)
		for _, choice := range chunk.Choices {
			if choice.Delta.Content != "" {
				h.OnDelta(choice.Delta.Content)
			}
		}
	}
	if err := stream.Err(); err != nil {
		span.RecordError(err)
		return classifyAPIError(err)
	}
	if len(acc.Choices) == 0 {
		return llm.ClassifyEmptyResponse()
	}
	msg := acc.Choices[0].Message
	for _, tc := range msg.ToolCalls {
		switch v := tc.AsAny().(type) {
		case sdk.ChatCompletionMessageFunctionToolCall:
			if isEmptyArgs(v.Function.Arguments) {
				continue
			}
			h.OnToolCall(llm.ToolCall{Name: v.Function.Name, Args: json.RawMessage(v.Function.Arguments), ID: v.ID})
		}
	}
	llm.RecordTokenAttributes(span, int(acc.Usage.PromptTokens), int(acc.Usage.CompletionTokens), int(acc.Usage.TotalTokens))
	llm.RecordTokenMetrics(string(params.Model), int(acc.Usage.PromptTokens), int(acc.Usage.CompletionTokens))
	log.Debug().Str("model", string(params.Model)).Msg("chat_stream_ok")
	return nil
}

func classifyAPIError(err error) *errs.Error {
	var apiErr *sdk.Error
	if ok := sdk.IsAPIError(err, &apiErr); ok {
		return llm.ClassifyHTTPStatus(apiErr.StatusCode, apiErr.Message)
	}
	if strings.Contains(err.Error(), "context deadline exceeded") {
		return errs.Wrap(errs.KindTimeout, true, err)
	}
	return errs.Wrap(errs.KindConnectionError, true, err)
}
