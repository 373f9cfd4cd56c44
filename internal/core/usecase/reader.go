package usecase

import (
	"context"

	"github.com/kirillkom/confident-retrieval/internal/core/domain"
	"github.com/kirillkom/confident-retrieval/internal/core/ports"
)

// DocumentReadUseCase is the read model for document metadata and extracted
// trees.
type DocumentReadUseCase struct {
	repo  ports.DocumentRepository
	nodes ports.NodeRepository
}

func NewDocumentReadUseCase(repo ports.DocumentRepository, nodes ports.NodeRepository) *DocumentReadUseCase {
	return &DocumentReadUseCase{repo: repo, nodes: nodes}
}

func (uc *DocumentReadUseCase) GetByID(ctx context.Context, id string) (*domain.Document, error) {
	return uc.repo.GetByID(ctx, id)
}

func (uc *DocumentReadUseCase) GetTree(ctx context.Context, documentID string) (*domain.DocumentTree, error) {
	// Tree reads require the document to exist even when extraction has not
	// produced nodes yet.
	if _, err := uc.repo.GetByID(ctx, documentID); err != nil {
		return nil, err
	}
	return uc.nodes.GetTree(ctx, documentID)
}

// CaseMemoryReadUseCase exposes case memory lookups by signature.
type CaseMemoryReadUseCase struct {
	memory ports.CaseMemoryStore
}

func NewCaseMemoryReadUseCase(memory ports.CaseMemoryStore) *CaseMemoryReadUseCase {
	return &CaseMemoryReadUseCase{memory: memory}
}

func (uc *CaseMemoryReadUseCase) Lookup(ctx context.Context, querySignature string) (*domain.CaseMemoryEntry, error) {
	return uc.memory.Lookup(ctx, querySignature)
}
