// Package mcpserver exposes the same rag/web_search capabilities the HTTP
// agent loop uses, over the Model Context Protocol, so external MCP clients
// (editors, other agents) can call them directly without going through
// /v1/generate. It is an additional transport, not a replacement for the
// in-process tool dispatch the agent engine uses.
package mcpserver

import (
	"context"
	"encoding/json"
	"net/http"

	mcppkg "github.com/modelcontextprotocol/go-sdk/mcp"

	"ragqa/internal/config"
	"ragqa/internal/observability"
	"ragqa/internal/rag/retrieve"
	"ragqa/internal/tools"
	"ragqa/internal/tools/web"
)

const serverName = "ragqa"

// Deps are the config-wide (not per-request) handles the exposed tools run
// against. Unlike the HTTP edge, an MCP client supplies no per-call
// credentials, so these are the only credentials the tools ever use.
type Deps struct {
	Retriever    *retrieve.Retriever
	RAGConfig    config.RAGConfig
	SearchURL    string
	UseHeadless  bool
	BuildVersion string
}

// Server wraps an MCP server exposing the rag and web_search tools over
// Streamable HTTP.
type Server struct {
	mcp     *mcppkg.Server
	addr    string
	handler http.Handler
}

// New builds the MCP server and registers its tools. Retriever may be nil if
// knowledge_base access was never configured; the rag tool then always
// returns an error result rather than panicking.
func New(addr string, deps Deps) *Server {
	impl := &mcppkg.Implementation{Name: serverName, Version: deps.BuildVersion}
	server := mcppkg.NewServer(impl, nil)

	ragTool := tools.NewRAGTool(deps.Retriever, deps.RAGConfig, deps.RAGConfig.TopK)
	mcppkg.AddTool(server, &mcppkg.Tool{
		Name:        ragTool.Name(),
		Description: "Search the indexed knowledge base for passages relevant to a query.",
	}, ragHandler(ragTool))

	searchTool := web.NewTool(deps.SearchURL).UseHeadlessBrowser(deps.UseHeadless)
	mcppkg.AddTool(server, &mcppkg.Tool{
		Name:        searchTool.Name(),
		Description: "Run a web search and return ranked results.",
	}, searchHandler(searchTool))

	handler := mcppkg.NewStreamableHTTPHandler(func(*http.Request) *mcppkg.Server { return server }, nil)

	return &Server{mcp: server, addr: addr, handler: handler}
}

// ServeHTTP lets Server mount directly on an http.ServeMux.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// Run starts a dedicated HTTP listener for the MCP transport at s.addr. It
// blocks until the context is cancelled or the listener fails.
func (s *Server) Run(ctx context.Context) error {
	httpServer := &http.Server{Addr: s.addr, Handler: s.handler}
	errCh := make(chan error, 1)
	go func() { errCh <- httpServer.ListenAndServe() }()

	select {
	case <-ctx.Done():
		return httpServer.Shutdown(context.Background())
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}

// ragArgs mirrors tools.RAGTool's unexported argument shape; jsonschema tags
// let the SDK derive the tool's input schema by reflection instead of us
// hand-building one.
type ragArgs struct {
	Query      string `json:"query" jsonschema:"required,description=Search query"`
	MaxResults int    `json:"max_results,omitempty" jsonschema:"description=Maximum number of results to return"`
	DocumentID string `json:"document_id,omitempty" jsonschema:"description=Restrict results to a single document id"`
}

// searchArgs mirrors web.tool's unexported argument shape.
type searchArgs struct {
	Query             string `json:"query" jsonschema:"required,description=Search query"`
	MaxResults        int    `json:"max_results,omitempty" jsonschema:"description=Maximum number of results to return"`
	Category          string `json:"category,omitempty" jsonschema:"description=SearXNG result category"`
	IncludeRawContent bool   `json:"include_raw_content,omitempty" jsonschema:"description=Fetch and include full page content for each result"`
}

func ragHandler(t *tools.RAGTool) mcppkg.ToolHandlerFor[ragArgs, any] {
	return func(ctx context.Context, req *mcppkg.CallToolRequest, args ragArgs) (*mcppkg.CallToolResult, any, error) {
		return runTool(ctx, t, args)
	}
}

func searchHandler(t tools.Tool) mcppkg.ToolHandlerFor[searchArgs, any] {
	return func(ctx context.Context, req *mcppkg.CallToolRequest, args searchArgs) (*mcppkg.CallToolResult, any, error) {
		return runTool(ctx, t, args)
	}
}

// runTool re-marshals the typed args back to raw JSON so the rag and
// web_search tools run through the exact same tools.Tool.Call path the agent
// loop's in-process dispatch uses, whatever transport invoked them.
func runTool(ctx context.Context, t tools.Tool, args any) (*mcppkg.CallToolResult, any, error) {
	raw, err := json.Marshal(args)
	if err != nil {
		return nil, nil, err
	}
	result, err := t.Call(ctx, raw)
	if err != nil {
		observability.LoggerWithTrace(ctx).Warn().Err(err).Str("tool", t.Name()).Msg("mcp_tool_call_failed")
		return &mcppkg.CallToolResult{
			IsError: true,
			Content: []mcppkg.Content{&mcppkg.TextContent{Text: err.Error()}},
		}, nil, nil
	}
	b, err := json.Marshal(result)
	if err != nil {
		return nil, nil, err
	}
	return &mcppkg.CallToolResult{
		Content: []mcppkg.Content{&mcppkg.TextContent{Text: string(b)}},
	}, nil, nil
}
