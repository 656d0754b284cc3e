// Package anthropicprovider adapts the Anthropic Messages API to the
// portable llm.Provider interface, used as the secondary model backend.
package anthropicprovider

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"ragqa/internal/errs"
	"ragqa/internal/llm"
	"ragqa/internal/observability"
)

// Config carries the per-client settings the adapter needs.
type Config struct {
	APIKey  string
	BaseURL string
	Model   string
}

// Client implements llm.Provider against the Anthropic Messages API.
type Client struct {
	sdk   anthropic.Client
	model string
}

func New(c Config, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	opts := []option.RequestOption{option.WithAPIKey(c.APIKey), option.WithHTTPClient(httpClient)}
	if c.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(c.BaseURL))
	}
	return &Client{sdk: anthropic.NewClient(opts...), model: c.Model}
}

func adaptMessages(msgs []llm.Message) (system string, out []anthropic.MessageParam) {
	for _, m := range msgs {
		switch m.Role {
		case "system":
			if system != "" {
				system += "\n"
			}
			system += m.Content
		case "user":
			out = append(out, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)))
		case "assistant":
			if len(m.ToolCalls) == 0 {
				out = append(out, anthropic.NewAssistantMessage(anthropic.NewTextBlock(m.Content)))
				continue
			}
			blocks := []anthropic.ContentBlockParamUnion{}
			if m.Content != "" {
				blocks = append(blocks, anthropic.NewTextBlock(m.Content))
			}
			for _, tc := range m.ToolCalls {
				var input any
				_ = json.Unmarshal(tc.Args, &input)
				blocks = append(blocks, anthropic.NewToolUseBlock(tc.ID, input, tc.Name))
			}
			out = append(out, anthropic.NewAssistantMessage(blocks...))
		case "tool":
			out = append(out, anthropic.NewUserMessage(anthropic.NewToolResultBlock(m.ToolID, m.Content, false)))
		}
	}
	return system, out
}

func adaptTools(schemas []llm.ToolSchema) []anthropic.ToolUnionParam {
	out := make([]anthropic.ToolUnionParam, 0, len(schemas))
	for _, s := range schemas {
		out = append(out, anthropic.ToolUnionParamOfTool(anthropic.ToolInputSchemaParam{
			Properties: s.Parameters["properties"],
		}, s.Name))
	}
	return out
}

func adaptToolChoice(tc llm.ToolChoice) anthropic.ToolChoiceUnionParam {
	switch tc.Mode {
	case llm.ToolChoiceRequired:
		return anthropic.ToolChoiceUnionParam{OfAny: &anthropic.ToolChoiceAnyParam{}}
	case llm.ToolChoiceNamed:
		return anthropic.ToolChoiceUnionParam{OfTool: &anthropic.ToolChoiceToolParam{Name: tc.Name}}
	default:
		return anthropic.ToolChoiceUnionParam{OfAuto: &anthropic.ToolChoiceAutoParam{}}
	}
}

func (c *Client) Chat(ctx context.Context, req llm.Request) (llm.Message, error) {
	log := observability.LoggerWithTrace(ctx)
	model := req.Model
	if model == "" {
		model = c.model
	}
	system, messages := adaptMessages(req.Messages)
	maxTokens := int64(req.MaxTokens)
	if maxTokens == 0 {
		maxTokens = 4096
	}
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		MaxTokens: maxTokens,
		Messages:  messages,
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}
	if len(req.Tools) > 0 {
		params.Tools = adaptTools(req.Tools)
		params.ToolChoice = adaptToolChoice(req.ToolChoice)
	}

	ctx, span := llm.StartRequestSpan(ctx, "Anthropic Chat", model, len(req.Tools), len(req.Messages))
	defer span.End()
	llm.LogRedactedPrompt(ctx, req.Messages)

	start := time.Now()
	msg, err := c.sdk.Messages.New(ctx, params)
	dur := time.Since(start)
	if err != nil {
		log.Error().Err(err).Str("model", model).Dur("duration", dur).Msg("anthropic_chat_error")
		span.RecordError(err)
		return llm.Message{}, classifyAPIError(err)
	}

	out := llm.Message{Role: "assistant"}
	for _, block := range msg.Content {
		switch v := block.AsAny().(type) {
		case anthropic.TextBlock:
			out.Content += v.Text
		case anthropic.ToolUseBlock:
			out.ToolCalls = append(out.ToolCalls, llm.ToolCall{
				Name: v.Name,
				Args: json.RawMessage(v.Input),
				ID:   v.ID,
			})
		}
	}
	llm.LogRedactedResponse(ctx, msg.Content)
	llm.RecordTokenAttributes(span, int(msg.Usage.InputTokens), int(msg.Usage.OutputTokens), int(msg.Usage.InputTokens+msg.Usage.OutputTokens))
	llm.RecordTokenMetrics(model, int(msg.Usage.InputTokens), int(msg.Usage.OutputTokens))
	return out, nil
}

// ChatStream is not used by the agent loop's action-selection contract
// (which requires a fully materialized tool call). It makes one
// non-streaming Chat call and replays the reply as a single text delta
// followed by its tool calls.
func (c *Client) ChatStream(ctx context.Context, req llm.Request, h llm.StreamHandler) error {
	msg, err := c.Chat(ctx, req)
	if err != nil {
		return err
	}
	if msg.Content != "" {
		h.OnDelta(msg.Content)
	}
	for _, tc := range msg.ToolCalls {
		h.OnToolCall(tc)
	}
	return nil
}

func classifyAPIError(err error) *errs.Error {
	var apiErr *anthropic.Error
	if ok := anthropic.IsAPIError(err, &apiErr); ok {
		return llm.ClassifyHTTPStatus(apiErr.StatusCode, apiErr.Message)
	}
	return llm.ClassifyTransportError(err)
}
