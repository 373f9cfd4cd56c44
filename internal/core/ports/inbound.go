package ports

import (
	"context"
	"io"

	"github.com/kirillkom/confident-retrieval/internal/core/domain"
)

// DocumentIngestor is the inbound contract for document upload orchestration.
type DocumentIngestor interface {
	Upload(ctx context.Context, filename, mimeType string, meta domain.ChunkMetadata, body io.Reader) (*domain.Document, error)
	// Reprocess re-runs extraction and indexing for a stored document; the
	// resulting tree and index entries fully replace the previous ones.
	Reprocess(ctx context.Context, documentID string) error
}

// DocumentProcessor is the inbound contract for asynchronous structure
// extraction and indexing.
type DocumentProcessor interface {
	ProcessByID(ctx context.Context, documentID string) error
}

// SearchService is the inbound contract for confidence-gated retrieval.
type SearchService interface {
	Search(ctx context.Context, req domain.QueryRequest) (*domain.QueryResult, error)
}

// DocumentReader is the inbound read model for document metadata and trees.
type DocumentReader interface {
	GetByID(ctx context.Context, id string) (*domain.Document, error)
	GetTree(ctx context.Context, documentID string) (*domain.DocumentTree, error)
}

// CaseMemoryReader exposes case memory lookups to callers.
type CaseMemoryReader interface {
	Lookup(ctx context.Context, querySignature string) (*domain.CaseMemoryEntry, error)
}

// ChunkReembedder re-embeds a single chunk in place without touching
// unrelated chunks.
type ChunkReembedder interface {
	ReembedChunk(ctx context.Context, chunkID string) error
}
