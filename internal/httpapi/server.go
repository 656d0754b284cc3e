// Package httpapi exposes the service's HTTP surface: chat generation
// (plain or agent-driven), collection management, and cache introspection.
// Every endpoint always answers 200; success or failure is signaled by the
// presence of an "error" field in the body.
package httpapi

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"ragqa/internal/cachestore"
	"ragqa/internal/config"
	"ragqa/internal/llm"
	"ragqa/internal/llm/anthropicprovider"
	"ragqa/internal/llm/googleprovider"
	"ragqa/internal/llm/openai"
	"ragqa/internal/observability"
	"ragqa/internal/rag/ingest"
	"ragqa/internal/transcript"
	"ragqa/internal/vectorstore"
)

// Deps collects the long-lived handles one Server shares across requests.
type Deps struct {
	Config       *config.Config
	LLMCache     *llm.ClientCache
	StoreCache   *vectorstore.StoreCache
	HTTPClient   *http.Client
	EmbedFactory EmbedFactory
	// TokenCache shares the embedding OAuth2 token across processes when
	// cache.backend is "redis"; nil leaves each process minting its own.
	TokenCache cachestore.Store
	// Queue, when set, makes /v1/rag/manage add enqueue a Kafka job instead
	// of running the indexing pipeline inline (ingestion.async_queue.enabled).
	Queue *ingest.Queue
	// Analytics records one row per completed agent execution when
	// telemetry.clickhouse.dsn is configured; nil falls back to a no-op.
	Analytics observability.AnalyticsSink
	// TranscriptMirror indexes transcript metadata in Postgres when
	// postgres.dsn is configured; nil leaves Store mirror-less.
	TranscriptMirror *transcript.PostgresMirror
	// StepLog receives the agent loop's per-step trace when execution.logs_dir
	// is configured; nil (the default) disables step logging.
	StepLog *zerolog.Logger
}

// EmbedFactory builds an Embedder for one request's credentials. When set,
// it replaces the embedding.Client that buildEmbedder constructs otherwise.
type EmbedFactory func(apiKey, url, model string) Embedder

// Server is the HTTP edge described by the generate/rag/cache/health routes.
type Server struct {
	deps  Deps
	mux   *http.ServeMux
	admin *adminAuth
}

// NewServer builds a Server wired to deps.
func NewServer(deps Deps) *Server {
	if deps.HTTPClient == nil {
		deps.HTTPClient = &http.Client{Timeout: 60 * time.Second}
	}
	if deps.LLMCache == nil {
		deps.LLMCache = llm.NewClientCache()
	}
	if deps.StoreCache == nil {
		deps.StoreCache = vectorstore.NewStoreCache()
	}
	if deps.Analytics == nil {
		deps.Analytics = observability.NewNoopAnalyticsSink()
	}
	s := &Server{deps: deps, mux: http.NewServeMux()}
	if deps.Config != nil {
		s.admin = newAdminAuth(deps.Config.HTTPAPI.AdminOIDC)
		if s.deps.StepLog == nil {
			s.deps.StepLog = observability.OpenStepLog(deps.Config.Execution.LogsDir)
		}
	} else {
		s.admin = newAdminAuth(config.AdminOIDCConfig{})
	}
	s.registerRoutes()
	return s
}

// ServeHTTP satisfies http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("POST /v1/generate", s.handleGenerate)
	s.mux.HandleFunc("POST /v1/rag/manage", s.handleRAGManage)
	s.mux.HandleFunc("POST /v1/rag/health", s.handleRAGHealth)
	s.mux.HandleFunc("POST /v1/rag/collections", s.handleListCollections)
	s.mux.HandleFunc("DELETE /v1/rag/collections/{name}", s.handleDeleteCollection)
	s.mux.HandleFunc("GET /v1/cache/info", s.admin.middleware(s.handleCacheInfo))
	s.mux.HandleFunc("DELETE /v1/cache/clear", s.admin.middleware(s.handleCacheClear))
	s.mux.HandleFunc("GET /health", s.handleHealth)
}

// buildLLMProvider resolves per-request credentials against the configured
// defaults and returns a cached provider handle. The model name's prefix
// selects the wire adapter: "claude-" talks the Anthropic Messages API,
// "gemini-" talks the Gemini API, anything else is treated as an
// OpenAI-compatible chat-completions endpoint (the common case for
// self-hosted and gateway deployments).
func (s *Server) buildLLMProvider(ctx context.Context, apiKey, baseURL, model string) (llm.Provider, error) {
	if apiKey == "" {
		apiKey = s.deps.Config.LLM.DefaultAPIKey
	}
	if baseURL == "" {
		baseURL = s.deps.Config.LLM.DefaultURL
	}
	if model == "" {
		model = s.deps.Config.LLM.DefaultModel
	}

	switch {
	case strings.HasPrefix(model, "claude-"):
		return s.deps.LLMCache.GetOrCreate(apiKey, baseURL, func() llm.Provider {
			return anthropicprovider.New(anthropicprovider.Config{APIKey: apiKey, BaseURL: baseURL, Model: model}, s.deps.HTTPClient)
		}), nil
	case strings.HasPrefix(model, "gemini-"):
		var buildErr error
		provider := s.deps.LLMCache.GetOrCreate(apiKey, baseURL, func() llm.Provider {
			client, err := googleprovider.New(ctx, googleprovider.Config{APIKey: apiKey, Model: model})
			if err != nil {
				buildErr = err
				return nil
			}
			return client
		})
		if buildErr != nil {
			return nil, buildErr
		}
		return provider, nil
	default:
		return s.deps.LLMCache.GetOrCreate(apiKey, baseURL, func() llm.Provider {
			return openai.New(openai.Config{APIKey: apiKey, BaseURL: baseURL, Model: model}, s.deps.HTTPClient)
		}), nil
	}
}
