package ingest

import "context"

// ScratchStore stages one file's raw bytes between the platform fetch and
// chunking, the scratch-directory step of the indexing pipeline. The local
// implementation is a no-op passthrough; an S3-backed one keeps a copy of
// each staged file in a bucket. The indexer chunks the fetched bytes
// directly and never reads a staged copy back.
type ScratchStore interface {
	Put(ctx context.Context, documentID, fileName string, content []byte) error
}

// noopScratch discards writes; used when no scratch backend is configured.
type noopScratch struct{}

func (noopScratch) Put(context.Context, string, string, []byte) error { return nil }
