package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoad_DefaultsWhenFileMissing(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"), "")
	require.NoError(t, err)
	require.Equal(t, 3, cfg.LLM.MaxRetries)
	require.Equal(t, 10, cfg.Execution.MaxIterations)
	require.Equal(t, "smart_rag_documents", cfg.Qdrant.CollectionName)
	require.Equal(t, 1024, cfg.Qdrant.VectorSize)
	require.Equal(t, 10, cfg.Embeddings.BatchSize)
	require.True(t, cfg.RAG.HybridSearch.Enabled, "lexical leg stays on when hybrid_search.enabled is unset")
}

func TestLoad_HybridSearchExplicitlyDisabled(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("rag:\n  hybrid_search:\n    enabled: false\n"), 0o644))

	cfg, err := Load(path, "")
	require.NoError(t, err)
	require.False(t, cfg.RAG.HybridSearch.Enabled)
}

func TestLoad_ParsesYAMLAndKeepsOverridesAboveDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
llm:
  max_retries: 7
rag:
  top_k: 8
  hybrid_search:
    enabled: true
    vector_top_k: 40
qdrant:
  collection_name: custom_docs
  vector_size: 768
`), 0o644))

	cfg, err := Load(path, "")
	require.NoError(t, err)
	require.Equal(t, 7, cfg.LLM.MaxRetries)
	require.Equal(t, 8, cfg.RAG.TopK)
	require.True(t, cfg.RAG.HybridSearch.Enabled)
	require.Equal(t, 40, cfg.RAG.HybridSearch.VectorTopK)
	require.Equal(t, 20, cfg.RAG.HybridSearch.TextTopK) // unset, default applied
	require.Equal(t, "custom_docs", cfg.Qdrant.CollectionName)
	require.Equal(t, 768, cfg.Qdrant.VectorSize)
}

func TestLoad_EnvOverridesWinOverYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("qdrant:\n  url: http://from-yaml:6333\n"), 0o644))

	t.Setenv("RAGQA_VDB_URL", "http://from-env:6333")
	cfg, err := Load(path, "")
	require.NoError(t, err)
	require.Equal(t, "http://from-env:6333", cfg.Qdrant.URL)
}
