package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"ragqa/internal/cachestore"
	"ragqa/internal/config"
	"ragqa/internal/embedding"
	"ragqa/internal/httpapi"
	"ragqa/internal/llm"
	"ragqa/internal/mcpserver"
	"ragqa/internal/observability"
	"ragqa/internal/platform"
	"ragqa/internal/rag/ingest"
	"ragqa/internal/rag/retrieve"
	"ragqa/internal/transcript"
	"ragqa/internal/vectorstore"
)

func main() {
	cfg, err := config.Load("config.yaml", ".env")
	if err != nil {
		fmt.Printf("failed to load config: %v\n", err)
		os.Exit(1)
	}

	observability.InitLogger(cfg.Telemetry.LogPath, cfg.Telemetry.LogLevel)

	shutdown, err := observability.InitOTel(context.Background(), cfg.Observability(version(), environment()))
	if err != nil {
		// Observability failures never abort startup.
		log.Warn().Err(err).Msg("otel init failed, continuing without tracing")
		shutdown = nil
	}
	if shutdown != nil {
		defer func() { _ = shutdown(context.Background()) }()
	}

	httpClient := observability.NewHTTPClient(nil)

	tokenCache, err := cachestore.NewFromConfig(cfg.Cache.Backend, cfg.Cache.RedisURL, "ragqa")
	if err != nil {
		log.Warn().Err(err).Msg("cache backend init failed, falling back to in-process cache")
		tokenCache = cachestore.NewMemory()
	}

	storeCache := vectorstore.NewStoreCache()

	transcriptMirror, err := transcript.OpenPostgresMirror(context.Background(), cfg.Postgres.DSN)
	if err != nil {
		log.Warn().Err(err).Msg("transcript postgres mirror init failed, running without it")
		transcriptMirror = nil
	} else if transcriptMirror != nil {
		if err := transcriptMirror.Init(context.Background()); err != nil {
			log.Warn().Err(err).Msg("transcript postgres mirror schema init failed")
		}
		defer transcriptMirror.Close()
	}

	var analytics observability.AnalyticsSink = observability.NewNoopAnalyticsSink()
	if sink, err := observability.NewClickHouseAnalyticsSink(context.Background(), cfg.Telemetry.ClickHouse.DSN, cfg.Telemetry.ClickHouse.Table); err != nil {
		log.Warn().Err(err).Msg("clickhouse analytics sink init failed, running without execution analytics")
	} else if sink != nil {
		analytics = sink
		defer func() { _ = sink.Close() }()
	}

	if cfg.MCP.Enabled {
		embedder := embedding.New(embedding.Config{
			BaseURL:    cfg.Embeddings.URL,
			TokenURL:   cfg.Embeddings.TokenURL,
			AuthKey:    cfg.Embeddings.APIKey,
			Scope:      cfg.Embeddings.Scope,
			Model:      cfg.Embeddings.ModelName,
			BatchSize:  cfg.Embeddings.BatchSize,
			TokenCache: tokenCache,
		}, httpClient)
		store := storeCache.GetOrCreate(cfg.Qdrant.URL, cfg.Qdrant.CollectionName, cfg.Qdrant.VectorSize, cfg.Qdrant.APIKey, httpClient)
		var reranker retrieve.Reranker
		if cfg.RAG.Reranker.Enabled {
			reranker = retrieve.NewHTTPReranker(cfg.RAG.Reranker.URL, cfg.RAG.Reranker.Model, httpClient)
		}
		retriever := retrieve.New(store, embedder, reranker, cfg.Qdrant.CollectionName)

		mcpSrv := mcpserver.New(cfg.MCP.Addr, mcpserver.Deps{
			Retriever:    retriever,
			RAGConfig:    cfg.RAG,
			SearchURL:    cfg.Search.URL,
			UseHeadless:  cfg.Search.UseHeadlessBrowser,
			BuildVersion: buildVersion,
		})
		go func() {
			if err := mcpSrv.Run(context.Background()); err != nil {
				log.Error().Err(err).Msg("mcp server stopped")
			}
		}()
		log.Info().Str("addr", cfg.MCP.Addr).Msg("mcp server listening")
	}

	var queue *ingest.Queue
	if cfg.Ingestion.AsyncQueue.Enabled {
		queueCfg := ingest.QueueConfig{
			Brokers: cfg.Ingestion.AsyncQueue.Brokers,
			Topic:   cfg.Ingestion.AsyncQueue.Topic,
			GroupID: cfg.Ingestion.AsyncQueue.GroupID,
		}
		queue = ingest.NewQueue(queueCfg)
		defer func() { _ = queue.Close() }()

		consumer := ingest.NewConsumer(queueCfg, func(job ingest.AddJob) (*ingest.Indexer, error) {
			platformClient, err := platform.New(job.Referer, job.JSessionID, 10*time.Second)
			if err != nil {
				return nil, err
			}
			store := storeCache.GetOrCreate(cfg.Qdrant.URL, cfg.Qdrant.CollectionName, cfg.Qdrant.VectorSize, cfg.Qdrant.APIKey, httpClient)
			embedder := embedding.New(embedding.Config{
				BaseURL:    cfg.Embeddings.URL,
				TokenURL:   cfg.Embeddings.TokenURL,
				AuthKey:    cfg.Embeddings.APIKey,
				Scope:      cfg.Embeddings.Scope,
				Model:      cfg.Embeddings.ModelName,
				BatchSize:  cfg.Embeddings.BatchSize,
				TokenCache: tokenCache,
			}, httpClient)
			return ingest.New(platformClient, store, embedder, ingest.Config{
				Collection: cfg.Qdrant.CollectionName,
				VectorSize: cfg.Qdrant.VectorSize,
				BatchSize:  cfg.Embeddings.BatchSize,
			}), nil
		})
		go func() {
			err := consumer.Run(context.Background(), func(job ingest.AddJob, result ingest.AddResult, err error) {
				if err != nil {
					log.Error().Err(err).Str("document_id", job.DocumentID).Msg("async_index_failed")
					return
				}
				log.Info().Str("document_id", job.DocumentID).Int("files_processed", result.FilesProcessed).Msg("async_index_completed")
			})
			if err != nil {
				log.Error().Err(err).Msg("async indexing consumer stopped")
			}
		}()
	}

	srv := httpapi.NewServer(httpapi.Deps{
		Config:           cfg,
		LLMCache:         llm.NewClientCache(),
		StoreCache:       storeCache,
		HTTPClient:       httpClient,
		TokenCache:       tokenCache,
		Queue:            queue,
		Analytics:        analytics,
		TranscriptMirror: transcriptMirror,
	})

	httpServer := &http.Server{Addr: cfg.HTTPAPI.Addr, Handler: srv}

	go func() {
		log.Info().Str("addr", cfg.HTTPAPI.Addr).Msg("ragqa listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("listen failed")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("shutdown error")
	} else {
		log.Info().Msg("ragqa stopped")
	}
}

// version and environment have no YAML home; they are build-time/deploy-time
// facts stamped via ldflags and env, respectively, not request-time config.
var buildVersion = "dev"

func version() string { return buildVersion }

func environment() string {
	if v := os.Getenv("RAGQA_ENVIRONMENT"); v != "" {
		return v
	}
	return "development"
}
