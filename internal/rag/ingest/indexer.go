// Package ingest makes a vector store collection reflect the current
// attached files of one document-platform object version.
package ingest

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"ragqa/internal/errs"
	"ragqa/internal/observability"
	"ragqa/internal/platform"
	"ragqa/internal/rag/chunker"
	"ragqa/internal/vectorstore"
)

var supportedExtensions = map[string]bool{
	".docx": true,
	".txt":  true,
	".md":   true,
	".html": true,
	".htm":  true,
}

// Embedder turns texts into vectors in batches of its own configured size.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Store is the subset of vectorstore.Store the indexer needs.
type Store interface {
	EnsureCollection(ctx context.Context, name string, vectorSize int, distance string, recreate bool) error
	Upsert(ctx context.Context, collection string, points []vectorstore.Point) error
	DeleteByIDs(ctx context.Context, collection string, ids []string) error
	Scroll(ctx context.Context, collection string, filter vectorstore.Filter, limit int, withPayload, withVectors bool, offset any) ([]vectorstore.Point, any, error)
}

// Indexer adds and removes one document's chunks in a vector store
// collection.
type Indexer struct {
	platform   *platform.Client
	store      Store
	embedder   Embedder
	chunker    *chunker.Adapter
	html       *htmlNormalizer
	scratch    ScratchStore
	collection string
	vectorSize int
	batchSize  int
}

// Config configures one Indexer.
type Config struct {
	Collection string
	VectorSize int
	BatchSize  int // texts per embedding sub-batch, default 10
	Scratch    ScratchStore
}

func New(p *platform.Client, store Store, embedder Embedder, cfg Config) *Indexer {
	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = 10
	}
	scratch := cfg.Scratch
	if scratch == nil {
		scratch = noopScratch{}
	}
	return &Indexer{
		platform:   p,
		store:      store,
		embedder:   embedder,
		chunker:    chunker.New(),
		html:       newHTMLNormalizer(),
		scratch:    scratch,
		collection: cfg.Collection,
		vectorSize: cfg.VectorSize,
		batchSize:  batchSize,
	}
}

// FileResult reports one file's outcome within an Add call.
type FileResult struct {
	FileName    string
	TextChunks  int
	TOCChunks   int
	TableChunks int
	Err         error
}

// AddResult summarizes one Add call.
type AddResult struct {
	FilesProcessed   int
	ChunksSaved      int
	TOCChunksSaved   int
	TableChunksSaved int
	Files            []FileResult
}

// Add makes the collection reflect the current files attached to
// documentID (an external object-version id).
func (idx *Indexer) Add(ctx context.Context, documentID string) (AddResult, error) {
	logger := observability.LoggerWithTrace(ctx)

	if err := idx.store.EnsureCollection(ctx, idx.collection, idx.vectorSize, "cosine", false); err != nil {
		return AddResult{}, err
	}

	ov, err := idx.platform.GetObjectVersion(ctx, documentID, true, true)
	if err != nil {
		return AddResult{}, err
	}

	files := filterSupported(ov.Files)

	if err := idx.deletePriorPoints(ctx, documentID); err != nil {
		logger.Warn().Err(err).Str("document_id", documentID).Msg("index_delete_prior_failed")
	}

	result := AddResult{}
	var failures []string

	for _, file := range files {
		fr := idx.indexFile(ctx, documentID, file)
		result.Files = append(result.Files, fr)
		if fr.Err != nil {
			failures = append(failures, fmt.Sprintf("%s: %v", file.Name, fr.Err))
			continue
		}
		result.FilesProcessed++
		result.ChunksSaved += fr.TextChunks
		result.TOCChunksSaved += fr.TOCChunks
		result.TableChunksSaved += fr.TableChunks
	}

	if len(failures) > 0 {
		return result, errs.New(errs.KindRAGProcessingError, "one or more files failed to index: "+strings.Join(failures, "; "))
	}
	return result, nil
}

func (idx *Indexer) indexFile(ctx context.Context, documentID string, file platform.FileDescriptor) FileResult {
	fr := FileResult{FileName: file.Name}

	content, err := idx.platform.GetFileContent(ctx, file)
	if err != nil {
		fr.Err = err
		return fr
	}

	if err := idx.scratch.Put(ctx, documentID, file.Name, content); err != nil {
		observability.LoggerWithTrace(ctx).Warn().Err(err).Str("file", file.Name).Msg("scratch_write_failed")
	}

	text := string(content)
	ext := strings.ToLower(filepath.Ext(file.Name))
	if ext == ".html" || ext == ".htm" {
		normalized, err := idx.html.ToMarkdown(text)
		if err != nil {
			fr.Err = fmt.Errorf("html normalize: %w", err)
			return fr
		}
		text = normalized
	}

	textChunks, tocChunks, tableChunks := idx.chunker.Process(text, chunker.Options{})
	fr.TOCChunks = len(tocChunks)
	fr.TableChunks = len(tableChunks)

	// Per current semantics only the main text collection is embedded and
	// indexed; toc/table counts are reported but not stored.
	points, err := idx.embedAndBuildPoints(ctx, documentID, file, textChunks)
	if err != nil {
		fr.Err = err
		return fr
	}
	if len(points) == 0 {
		return fr
	}
	if err := idx.store.Upsert(ctx, idx.collection, points); err != nil {
		fr.Err = err
		return fr
	}
	fr.TextChunks = len(points)
	return fr
}

func (idx *Indexer) embedAndBuildPoints(ctx context.Context, documentID string, file platform.FileDescriptor, chunks []chunker.Chunk) ([]vectorstore.Point, error) {
	var points []vectorstore.Point
	for start := 0; start < len(chunks); start += idx.batchSize {
		end := start + idx.batchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		sub := chunks[start:end]
		texts := make([]string, len(sub))
		for i, c := range sub {
			texts[i] = c.Text
		}
		vectors, err := idx.embedder.Embed(ctx, texts)
		if err != nil {
			return nil, err
		}
		for i, c := range sub {
			points = append(points, vectorstore.Point{
				ID:     uuid.NewString(),
				Vector: vectors[i],
				Payload: map[string]any{
					"text":            c.Text,
					"document_id":     documentID,
					"file_id":         file.ID,
					"file_name":       file.Name,
					"chunk_index":     c.Index,
					"chunk_type":      string(c.Category),
					"hierarchy_level": c.HierarchyLevel,
					"section_number":  c.SectionNumber,
					"parent_section":  c.ParentSection,
				},
			})
		}
	}
	return points, nil
}

// Remove deletes every point belonging to documentID.
func (idx *Indexer) Remove(ctx context.Context, documentID string) error {
	return idx.deletePriorPoints(ctx, documentID)
}

func (idx *Indexer) deletePriorPoints(ctx context.Context, documentID string) error {
	var ids []string
	var offset any
	for {
		points, next, err := idx.store.Scroll(ctx, idx.collection, vectorstore.Filter{"document_id": documentID}, 1000, false, false, offset)
		if err != nil {
			return err
		}
		for _, p := range points {
			ids = append(ids, p.ID)
		}
		if next == nil || len(points) == 0 {
			break
		}
		offset = next
	}
	if len(ids) == 0 {
		return nil
	}
	return idx.store.DeleteByIDs(ctx, idx.collection, ids)
}

func filterSupported(files []platform.FileDescriptor) []platform.FileDescriptor {
	var out []platform.FileDescriptor
	for _, f := range files {
		ext := strings.ToLower(filepath.Ext(f.Name))
		if supportedExtensions[ext] {
			out = append(out, f)
		}
	}
	return out
}
