package usecase

import (
	"context"
	"errors"
	"fmt"

	"github.com/kirillkom/confident-retrieval/internal/core/domain"
	"github.com/kirillkom/confident-retrieval/internal/core/ports"
)

// ReembedChunkUseCase refreshes the embedding of a single chunk, e.g. after
// an embedding model upgrade or to repair a degraded document chunk by
// chunk. Unrelated chunks are untouched.
type ReembedChunkUseCase struct {
	embedder ports.Embedder
	index    ports.VectorIndex
}

func NewReembedChunkUseCase(embedder ports.Embedder, index ports.VectorIndex) *ReembedChunkUseCase {
	return &ReembedChunkUseCase{embedder: embedder, index: index}
}

func (uc *ReembedChunkUseCase) ReembedChunk(ctx context.Context, chunkID string) error {
	if chunkID == "" {
		return domain.WrapError(domain.ErrInvalidInput, "reembed chunk", errors.New("empty chunk id"))
	}

	chunk, err := uc.index.GetChunk(ctx, chunkID)
	if err != nil {
		return fmt.Errorf("fetch chunk: %w", err)
	}

	vectors, err := uc.embedder.Embed(ctx, []string{chunk.Text})
	if err != nil {
		return fmt.Errorf("embed chunk: %w", err)
	}
	if len(vectors) != 1 {
		return domain.WrapError(domain.ErrInvalidInput, "reembed chunk",
			fmt.Errorf("expected 1 vector, got %d", len(vectors)))
	}

	if err := uc.index.Reembed(ctx, chunkID, vectors[0]); err != nil {
		return fmt.Errorf("replace embedding: %w", err)
	}
	return nil
}
