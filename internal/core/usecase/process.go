package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/kirillkom/confident-retrieval/internal/core/domain"
	"github.com/kirillkom/confident-retrieval/internal/core/ports"
)

// ProcessDocumentUseCase runs the asynchronous pipeline for one uploaded
// document: extract text, derive the structure tree, persist it, build and
// embed chunks, and atomically replace the document's slice of the vector
// index. An unavailable embedding collaborator degrades the document to
// lexical-only indexing instead of failing it.
type ProcessDocumentUseCase struct {
	repo      ports.DocumentRepository
	nodes     ports.NodeRepository
	extractor ports.TextExtractor
	structure *StructureExtractUseCase
	embedder  ports.Embedder
	index     ports.VectorIndex
}

func NewProcessDocumentUseCase(
	repo ports.DocumentRepository,
	nodes ports.NodeRepository,
	extractor ports.TextExtractor,
	structure *StructureExtractUseCase,
	embedder ports.Embedder,
	index ports.VectorIndex,
) *ProcessDocumentUseCase {
	return &ProcessDocumentUseCase{
		repo:      repo,
		nodes:     nodes,
		extractor: extractor,
		structure: structure,
		embedder:  embedder,
		index:     index,
	}
}

func (uc *ProcessDocumentUseCase) ProcessByID(ctx context.Context, documentID string) error {
	if err := uc.markStatus(ctx, documentID, domain.StatusProcessing, ""); err != nil {
		return fmt.Errorf("set status=processing: %w", err)
	}

	if err := uc.processPipeline(ctx, documentID); err != nil {
		if failErr := uc.markFailed(ctx, documentID, err); failErr != nil {
			return fmt.Errorf("%w; mark failed status: %v", err, failErr)
		}
		return err
	}

	if err := uc.markStatus(ctx, documentID, domain.StatusReady, ""); err != nil {
		return fmt.Errorf("set status=ready: %w", err)
	}
	return nil
}

func (uc *ProcessDocumentUseCase) processPipeline(ctx context.Context, documentID string) error {
	doc, err := uc.loadDocument(ctx, documentID)
	if err != nil {
		return err
	}

	text, err := uc.extractText(ctx, doc)
	if err != nil {
		return err
	}

	tree, err := uc.structure.ExtractTree(ctx, doc, text)
	if err != nil {
		return fmt.Errorf("extract structure: %w", err)
	}

	if err := uc.nodes.ReplaceTree(ctx, tree); err != nil {
		return fmt.Errorf("persist tree: %w", err)
	}

	chunks := chunksFromTree(doc, tree)
	if len(chunks) == 0 {
		return domain.WrapError(domain.ErrInvalidInput, "build chunks", errors.New("tree has no content nodes"))
	}

	degraded, err := uc.embedChunks(ctx, chunks)
	if err != nil {
		return err
	}

	if err := uc.index.ReplaceDocument(ctx, doc.ID, chunks); err != nil {
		return fmt.Errorf("replace document in index: %w", err)
	}

	nodeCount := len(tree.Nodes) - 1 // content nodes, the root is structural
	if err := uc.repo.SaveExtractionResult(ctx, doc.ID, tree.Mode, nodeCount, len(chunks), degraded); err != nil {
		return fmt.Errorf("save extraction result: %w", err)
	}
	return nil
}

// embedChunks fills embeddings in place. A collaborator failure leaves the
// chunks vectorless and reports the document as degraded; such chunks stay
// reachable through lexical search until re-embedding.
func (uc *ProcessDocumentUseCase) embedChunks(ctx context.Context, chunks []domain.Chunk) (degraded bool, err error) {
	texts := make([]string, len(chunks))
	for i := range chunks {
		texts[i] = chunks[i].Text
	}

	vectors, err := uc.embedder.Embed(ctx, texts)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return false, err
		}
		return true, nil
	}
	if len(vectors) != len(chunks) {
		return false, domain.WrapError(
			domain.ErrInvalidInput,
			"embed chunks",
			fmt.Errorf("vectors/chunks mismatch: %d/%d", len(vectors), len(chunks)),
		)
	}
	for i := range chunks {
		chunks[i].Embedding = vectors[i]
	}
	return false, nil
}

// chunksFromTree derives one chunk per content-bearing node. Chunk ids are
// deterministic in the node id, so reprocessing identical content produces
// an identical chunk set.
func chunksFromTree(doc *domain.Document, tree *domain.DocumentTree) []domain.Chunk {
	chunks := make([]domain.Chunk, 0, len(tree.Nodes))
	for _, node := range tree.Nodes {
		content := strings.TrimSpace(node.Content)
		if content == "" {
			continue
		}
		chunks = append(chunks, domain.Chunk{
			ID:         chunkID(doc.ID, node.ID),
			DocumentID: doc.ID,
			Text:       content,
			Metadata:   doc.Metadata,
			Node: domain.NodeRef{
				NodeID:               node.ID,
				Depth:                node.Depth,
				HasParent:            node.ParentID != "",
				ExtractionConfidence: node.ExtractionConfidence,
				Mode:                 node.Mode,
			},
		})
	}
	return chunks
}

func chunkID(docID, nodeID string) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(docID+":chunk:"+nodeID)).String()
}

func (uc *ProcessDocumentUseCase) loadDocument(ctx context.Context, documentID string) (*domain.Document, error) {
	doc, err := uc.repo.GetByID(ctx, documentID)
	if err != nil {
		return nil, fmt.Errorf("fetch document by id: %w", err)
	}
	return doc, nil
}

func (uc *ProcessDocumentUseCase) extractText(ctx context.Context, doc *domain.Document) (string, error) {
	text, err := uc.extractor.Extract(ctx, doc)
	if err != nil {
		return "", fmt.Errorf("extract text: %w", err)
	}
	if text == "" {
		return "", domain.WrapError(domain.ErrInvalidInput, "extract text", errors.New("empty extracted text"))
	}
	return text, nil
}

func (uc *ProcessDocumentUseCase) markStatus(ctx context.Context, documentID string, status domain.DocumentStatus, errMessage string) error {
	return uc.repo.UpdateStatus(ctx, documentID, status, errMessage)
}

func (uc *ProcessDocumentUseCase) markFailed(ctx context.Context, documentID string, processErr error) error {
	if processErr == nil {
		return nil
	}
	return uc.markStatus(ctx, documentID, domain.StatusFailed, processErr.Error())
}
