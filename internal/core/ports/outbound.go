package ports

import (
	"context"
	"io"

	"github.com/kirillkom/confident-retrieval/internal/core/domain"
)

// DocumentRepository persists and reads document state.
type DocumentRepository interface {
	Create(ctx context.Context, doc *domain.Document) error
	GetByID(ctx context.Context, id string) (*domain.Document, error)
	UpdateStatus(ctx context.Context, id string, status domain.DocumentStatus, errMessage string) error
	SaveExtractionResult(ctx context.Context, id string, mode domain.ExtractionMode, nodeCount, chunkCount int, degraded bool) error
}

// NodeRepository persists extracted document trees. ReplaceTree is a full
// replace: re-extraction never patches an existing tree.
type NodeRepository interface {
	ReplaceTree(ctx context.Context, tree *domain.DocumentTree) error
	GetTree(ctx context.Context, documentID string) (*domain.DocumentTree, error)
}

// ObjectStorage stores raw source documents.
type ObjectStorage interface {
	Save(ctx context.Context, key string, data io.Reader) error
	Open(ctx context.Context, key string) (io.ReadCloser, error)
}

// MessageQueue publishes/consumes ingestion events.
type MessageQueue interface {
	PublishDocumentIngested(ctx context.Context, documentID string) error
	SubscribeDocumentIngested(ctx context.Context, handler func(context.Context, string) error) error
}

// TextExtractor extracts plain text from a stored document.
type TextExtractor interface {
	Extract(ctx context.Context, doc *domain.Document) (string, error)
}

// OutlineExtractor is the structure-reasoning collaborator: document text in,
// tree-shaped outline with per-node confidence out, or an explicit failure.
type OutlineExtractor interface {
	ExtractOutline(ctx context.Context, text string) (domain.Outline, error)
}

// Embedder builds vectors for chunks and query text. Deterministic for
// identical input within one model version.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
	ModelVersion() string
}

// Chunker is the deterministic fixed-window fallback splitter.
type Chunker interface {
	Split(text string) []string
	WindowSize() int
}

// VectorIndex stores chunk embeddings and performs the broad candidate
// search. Mutations exclude concurrent reads of the same index through a
// single-writer discipline; reads never observe torn state.
type VectorIndex interface {
	// ReplaceDocument atomically swaps all chunks of one document,
	// making repeated ingestion of identical content idempotent.
	ReplaceDocument(ctx context.Context, documentID string, chunks []domain.Chunk) error
	// Add appends chunks without touching existing entries.
	Add(ctx context.Context, chunks []domain.Chunk) error
	// Reembed replaces the embedding of exactly one chunk.
	Reembed(ctx context.Context, chunkID string, embedding []float32) error
	GetChunk(ctx context.Context, chunkID string) (domain.Chunk, error)
	Search(ctx context.Context, queryVector []float32, k int, filter domain.MetadataFilter) ([]domain.Candidate, error)
	// SearchLexical ranks candidates by token overlap only; used when the
	// embedding collaborator is unavailable.
	SearchLexical(ctx context.Context, queryText string, k int, filter domain.MetadataFilter) ([]domain.Candidate, error)
}

// CaseMemoryStore is the append-only record of gate-passing queries.
type CaseMemoryStore interface {
	Record(ctx context.Context, entry domain.CaseMemoryEntry) error
	Lookup(ctx context.Context, querySignature string) (*domain.CaseMemoryEntry, error)
}
