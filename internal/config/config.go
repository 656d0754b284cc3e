// Package config loads the service's YAML configuration, overlaying
// environment variables loaded from an optional .env file.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// LLMConfig controls retry behavior and default credentials for the LLM
// Client Adapter. Per-request overrides in /v1/generate take precedence
// over these defaults.
type LLMConfig struct {
	MaxRetries    int    `yaml:"max_retries"`     // retry cap for LLM calls within the agent loop
	MaxRetryCount int    `yaml:"max_retry_count"` // retry cap for single-shot calls on missing-answer
	DefaultAPIKey string `yaml:"default_api_key"`
	DefaultURL    string `yaml:"default_url"`
	DefaultModel  string `yaml:"default_model_name"`
}

// ExecutionConfig controls the Agent Loop Driver.
type ExecutionConfig struct {
	MaxIterations     int    `yaml:"max_iterations"`
	MaxClarifications int    `yaml:"max_clarifications"`
	LogsDir           string `yaml:"logs_dir"`
}

// HybridSearchConfig controls the Hybrid Retriever's lexical leg.
type HybridSearchConfig struct {
	Enabled    bool `yaml:"enabled"`
	VectorTopK int  `yaml:"vector_top_k"`
	TextTopK   int  `yaml:"text_top_k"`
}

// RerankerConfig controls the optional cross-encoder reranking pass.
type RerankerConfig struct {
	Enabled bool   `yaml:"enabled"`
	URL     string `yaml:"url"`
	Model   string `yaml:"model"`
	APIKey  string `yaml:"api_key"`
}

// RAGConfig controls the Hybrid Retriever and rag tool.
type RAGConfig struct {
	TopK         int                `yaml:"top_k"`
	HybridSearch HybridSearchConfig `yaml:"hybrid_search"`
	Reranker     RerankerConfig     `yaml:"reranker"`
}

// QdrantConfig addresses the Vector Store Adapter.
type QdrantConfig struct {
	URL            string `yaml:"url"`
	APIKey         string `yaml:"api_key"`
	CollectionName string `yaml:"collection_name"`
	VectorSize     int    `yaml:"vector_size"`
}

// EmbeddingsConfig controls the Embedding Client. APIKey is the pre-joined
// base64("client_id:client_secret") Basic-auth key the OAuth2 token
// endpoint expects; TokenURL and Scope have no per-request override in
// /v1/generate and so only ever come from here.
type EmbeddingsConfig struct {
	APIKey    string `yaml:"api_key"`
	URL       string `yaml:"url"`
	TokenURL  string `yaml:"token_url"`
	Scope     string `yaml:"scope"`
	ModelName string `yaml:"model_name"`
	BatchSize int    `yaml:"batch_size"`
}

// SearchConfig controls the web_search tool's default provider credentials.
type SearchConfig struct {
	APIKey             string `yaml:"api_key"`
	URL                string `yaml:"url"`
	UseHeadlessBrowser bool   `yaml:"use_headless_browser"`
}

// AdminOIDCConfig protects the /v1/cache/* operator endpoints.
type AdminOIDCConfig struct {
	Issuer   string `yaml:"issuer"`
	Audience string `yaml:"audience"`
}

// HTTPAPIConfig controls the HTTP edge.
type HTTPAPIConfig struct {
	Addr      string          `yaml:"addr"`
	AdminOIDC AdminOIDCConfig `yaml:"admin_oidc"`
}

// AsyncQueueConfig enables the optional Kafka-backed indexing queue.
type AsyncQueueConfig struct {
	Enabled bool     `yaml:"enabled"`
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
	GroupID string   `yaml:"group_id"`
}

// ScratchConfig controls where the indexer stages downloaded file bytes.
type ScratchConfig struct {
	S3Bucket string `yaml:"s3_bucket"`
	S3Region string `yaml:"s3_region"`
}

// IngestionConfig controls the Indexer's optional extras.
type IngestionConfig struct {
	AsyncQueue AsyncQueueConfig `yaml:"async_queue"`
	Scratch    ScratchConfig    `yaml:"scratch"`
}

// CacheConfig controls the process-wide client cache backend (spec §5).
// Backend "memory" (default) keeps the in-process mutex-guarded map;
// "redis" moves embedding-token entries to a shared Redis store; the LLM
// client cache stays in-process either way.
type CacheConfig struct {
	Backend  string `yaml:"backend"`
	RedisURL string `yaml:"redis_url"`
}

// ClickHouseConfig enables the optional execution-analytics sink.
type ClickHouseConfig struct {
	DSN   string `yaml:"dsn"`
	Table string `yaml:"table"`
}

// PostgresConfig enables the optional transcript metadata mirror.
type PostgresConfig struct {
	DSN string `yaml:"dsn"`
}

// TelemetryConfig controls logging and tracing.
type TelemetryConfig struct {
	LogLevel     string           `yaml:"log_level"`
	LogPath      string           `yaml:"log_path"`
	OTLPEndpoint string           `yaml:"otlp_endpoint"`
	ServiceName  string           `yaml:"service_name"`
	ClickHouse   ClickHouseConfig `yaml:"clickhouse"`
}

// MCPConfig controls the optional Model Context Protocol transport.
type MCPConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

// ObsConfig is the shape observability.InitOTel consumes; kept distinct
// from TelemetryConfig since it also carries a build-stamped version that
// has no YAML home.
type ObsConfig struct {
	OTLP           string
	ServiceName    string
	ServiceVersion string
	Environment    string
}

// Observability builds an ObsConfig from this Config plus a version string
// supplied by the caller (e.g. a build-time ldflag).
func (c *Config) Observability(version, environment string) ObsConfig {
	return ObsConfig{
		OTLP:           c.Telemetry.OTLPEndpoint,
		ServiceName:    c.Telemetry.ServiceName,
		ServiceVersion: version,
		Environment:    environment,
	}
}

// Config is the top-level service configuration.
type Config struct {
	LLM        LLMConfig        `yaml:"llm"`
	Execution  ExecutionConfig  `yaml:"execution"`
	RAG        RAGConfig        `yaml:"rag"`
	Qdrant     QdrantConfig     `yaml:"qdrant"`
	Embeddings EmbeddingsConfig `yaml:"embeddings"`
	Search     SearchConfig     `yaml:"search"`
	HTTPAPI    HTTPAPIConfig    `yaml:"httpapi"`
	Ingestion  IngestionConfig  `yaml:"ingestion"`
	Cache      CacheConfig      `yaml:"cache"`
	Postgres   PostgresConfig   `yaml:"postgres"`
	Telemetry  TelemetryConfig  `yaml:"telemetry"`
	MCP        MCPConfig        `yaml:"mcp"`
}

// Load reads filename as YAML into a Config, applies environment overrides
// (loading envFile first if it exists, silently skipping it otherwise),
// and fills in defaults for anything left unset.
func Load(filename, envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("load env file %s: %w", envFile, err)
		}
	}

	cfg := &Config{}
	cfg.RAG.HybridSearch.Enabled = true
	if filename != "" {
		data, err := os.ReadFile(filename)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("read config %s: %w", filename, err)
			}
		} else if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", filename, err)
		}
	}

	applyEnvOverrides(cfg)
	applyDefaults(cfg)
	return cfg, nil
}

// applyEnvOverrides lets deployment secrets (API keys, DSNs) live outside
// the committed YAML file.
func applyEnvOverrides(cfg *Config) {
	overrideString(&cfg.LLM.DefaultAPIKey, "RAGQA_LLM_API_KEY")
	overrideString(&cfg.LLM.DefaultURL, "RAGQA_LLM_URL")
	overrideString(&cfg.Embeddings.APIKey, "RAGQA_EMBED_API_KEY")
	overrideString(&cfg.Embeddings.URL, "RAGQA_EMBED_URL")
	overrideString(&cfg.Search.APIKey, "RAGQA_SEARCH_API_KEY")
	overrideString(&cfg.Qdrant.URL, "RAGQA_VDB_URL")
	overrideString(&cfg.Qdrant.APIKey, "RAGQA_VDB_API_KEY")
	overrideString(&cfg.RAG.Reranker.URL, "RAGQA_RERANKER_URL")
	overrideString(&cfg.Cache.RedisURL, "RAGQA_REDIS_URL")
	overrideString(&cfg.Telemetry.ClickHouse.DSN, "RAGQA_CLICKHOUSE_DSN")
	overrideString(&cfg.Postgres.DSN, "RAGQA_POSTGRES_DSN")
}

func overrideString(dst *string, envKey string) {
	if v, ok := os.LookupEnv(envKey); ok && strings.TrimSpace(v) != "" {
		*dst = v
	}
}

func overrideInt(dst *int, envKey string) {
	if v, ok := os.LookupEnv(envKey); ok {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func applyDefaults(cfg *Config) {
	if cfg.LLM.MaxRetries <= 0 {
		cfg.LLM.MaxRetries = 3
	}
	if cfg.LLM.MaxRetryCount <= 0 {
		cfg.LLM.MaxRetryCount = 3
	}
	if cfg.Execution.MaxIterations <= 0 {
		cfg.Execution.MaxIterations = 10
	}
	if cfg.RAG.TopK <= 0 {
		cfg.RAG.TopK = 5
	}
	if cfg.RAG.HybridSearch.VectorTopK <= 0 {
		cfg.RAG.HybridSearch.VectorTopK = 20
	}
	if cfg.RAG.HybridSearch.TextTopK <= 0 {
		cfg.RAG.HybridSearch.TextTopK = 20
	}
	if cfg.Qdrant.CollectionName == "" {
		cfg.Qdrant.CollectionName = "smart_rag_documents"
	}
	if cfg.Qdrant.VectorSize <= 0 {
		cfg.Qdrant.VectorSize = 1024
	}
	if cfg.Embeddings.BatchSize <= 0 {
		cfg.Embeddings.BatchSize = 10
	}
	if cfg.HTTPAPI.Addr == "" {
		cfg.HTTPAPI.Addr = ":8080"
	}
	if cfg.Telemetry.LogLevel == "" {
		cfg.Telemetry.LogLevel = "info"
	}
	if cfg.Telemetry.ServiceName == "" {
		cfg.Telemetry.ServiceName = "ragqa"
	}
	if cfg.Cache.Backend == "" {
		cfg.Cache.Backend = "memory"
	}
	if cfg.MCP.Enabled && cfg.MCP.Addr == "" {
		cfg.MCP.Addr = ":9090"
	}

	overrideInt(&cfg.Execution.MaxIterations, "RAGQA_MAX_ITERATIONS")
	overrideInt(&cfg.RAG.TopK, "RAGQA_TOP_K")
}
