// Package googleprovider adapts the Gemini API (google.golang.org/genai) to
// the portable llm.Provider interface, used as the third model backend.
package googleprovider

import (
	"context"
	"encoding/json"
	"time"

	"google.golang.org/genai"

	"ragqa/internal/errs"
	"ragqa/internal/llm"
	"ragqa/internal/observability"
)

// Config carries the per-client settings the adapter needs.
type Config struct {
	APIKey string
	Model  string
}

// Client implements llm.Provider against the Gemini generative-language API.
type Client struct {
	sdk   *genai.Client
	model string
}

func New(ctx context.Context, c Config) (*Client, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  c.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, errs.Wrap(errs.KindProviderError, false, err)
	}
	return &Client{sdk: client, model: c.Model}, nil
}

func adaptContents(msgs []llm.Message) (system string, out []*genai.Content) {
	for _, m := range msgs {
		switch m.Role {
		case "system":
			if system != "" {
				system += "\n"
			}
			system += m.Content
		case "user":
			out = append(out, genai.NewContentFromText(m.Content, genai.RoleUser))
		case "assistant":
			parts := []*genai.Part{}
			if m.Content != "" {
				parts = append(parts, genai.NewPartFromText(m.Content))
			}
			for _, tc := range m.ToolCalls {
				var args map[string]any
				_ = json.Unmarshal(tc.Args, &args)
				parts = append(parts, genai.NewPartFromFunctionCall(tc.Name, args))
			}
			out = append(out, genai.NewContentFromParts(parts, genai.RoleModel))
		case "tool":
			resp := map[string]any{"content": m.Content}
			out = append(out, genai.NewContentFromParts(
				[]*genai.Part{genai.NewPartFromFunctionResponse(m.ToolID, resp)}, genai.RoleUser))
		}
	}
	return system, out
}

func adaptTools(schemas []llm.ToolSchema) []*genai.Tool {
	if len(schemas) == 0 {
		return nil
	}
	decls := make([]*genai.FunctionDeclaration, 0, len(schemas))
	for _, s := range schemas {
		decls = append(decls, &genai.FunctionDeclaration{
			Name:        s.Name,
			Description: s.Description,
		})
	}
	return []*genai.Tool{{FunctionDeclarations: decls}}
}

func adaptToolConfig(tc llm.ToolChoice) *genai.ToolConfig {
	mode := genai.FunctionCallingConfigModeAuto
	switch tc.Mode {
	case llm.ToolChoiceRequired:
		mode = genai.FunctionCallingConfigModeAny
	case llm.ToolChoiceNamed:
		return &genai.ToolConfig{FunctionCallingConfig: &genai.FunctionCallingConfig{
			Mode:                 genai.FunctionCallingConfigModeAny,
			AllowedFunctionNames: []string{tc.Name},
		}}
	}
	return &genai.ToolConfig{FunctionCallingConfig: &genai.FunctionCallingConfig{Mode: mode}}
}

func (c *Client) Chat(ctx context.Context, req llm.Request) (llm.Message, error) {
	log := observability.LoggerWithTrace(ctx)
	model := req.Model
	if model == "" {
		model = c.model
	}
	system, contents := adaptContents(req.Messages)
	cfg := &genai.GenerateContentConfig{}
	if system != "" {
		cfg.SystemInstruction = genai.NewContentFromText(system, genai.RoleUser)
	}
	if len(req.Tools) > 0 {
		cfg.Tools = adaptTools(req.Tools)
		cfg.ToolConfig = adaptToolConfig(req.ToolChoice)
	}
	if req.Temperature > 0 {
		t := float32(req.Temperature)
		cfg.Temperature = &t
	}

	ctx, span := llm.StartRequestSpan(ctx, "Gemini Chat", model, len(req.Tools), len(req.Messages))
	defer span.End()
	llm.LogRedactedPrompt(ctx, req.Messages)

	start := time.Now()
	resp, err := c.sdk.Models.GenerateContent(ctx, model, contents, cfg)
	dur := time.Since(start)
	if err != nil {
		log.Error().Err(err).Str("model", model).Dur("duration", dur).Msg("gemini_chat_error")
		span.RecordError(err)
		return llm.Message{}, errs.Wrap(errs.KindProviderError, true, err)
	}
	if len(resp.Candidates) == 0 {
		return llm.Message{}, llm.ClassifyEmptyResponse()
	}

	out := llm.Message{Role: "assistant"}
	for _, part := range resp.Candidates[0].Content.Parts {
		if part.Text != "" {
			out.Content += part.Text
		}
		if part.FunctionCall != nil {
			args, _ := json.Marshal(part.FunctionCall.Args)
			out.ToolCalls = append(out.ToolCalls, llm.ToolCall{
				Name: part.FunctionCall.Name,
				Args: args,
				ID:   part.FunctionCall.Name,
			})
		}
	}
	llm.LogRedactedResponse(ctx, resp.Candidates)
	if resp.UsageMetadata != nil {
		llm.RecordTokenAttributes(span, int(resp.UsageMetadata.PromptTokenCount), int(resp.UsageMetadata.CandidatesTokenCount), int(resp.UsageMetadata.TotalTokenCount))
		llm.RecordTokenMetrics(model, int(resp.UsageMetadata.PromptTokenCount), int(resp.UsageMetadata.CandidatesTokenCount))
	}
	return out, nil
}

// ChatStream makes one non-streaming Chat call and replays the reply through
// the handler as a single text delta followed by its tool calls. The agent
// loop does not call it.
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
