package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/confident-retrieval/internal/core/domain"
	"github.com/kirillkom/confident-retrieval/internal/core/ports"
)

// MIMEChecker reports whether an upload's MIME type has an extractor.
type MIMEChecker interface {
	Supported(mimeType string) bool
}

// IngestDocumentUseCase accepts an upload, persists the raw bytes and the
// document record, and hands processing off to the queue. Extraction and
// indexing happen asynchronously in the worker.
type IngestDocumentUseCase struct {
	repo    ports.DocumentRepository
	storage ports.ObjectStorage
	queue   ports.MessageQueue
	mimes   MIMEChecker
}

func NewIngestDocumentUseCase(
	repo ports.DocumentRepository,
	storage ports.ObjectStorage,
	queue ports.MessageQueue,
	mimes MIMEChecker,
) *IngestDocumentUseCase {
	return &IngestDocumentUseCase{
		repo:    repo,
		storage: storage,
		queue:   queue,
		mimes:   mimes,
	}
}

func (uc *IngestDocumentUseCase) Upload(
	ctx context.Context,
	filename, mimeType string,
	meta domain.ChunkMetadata,
	body io.Reader,
) (*domain.Document, error) {
	if filename == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "upload document", errors.New("empty filename"))
	}
	if !uc.mimes.Supported(mimeType) {
		return nil, domain.WrapError(domain.ErrInvalidInput, "upload document",
			fmt.Errorf("unsupported mime type %q", mimeType))
	}

	id := uuid.NewString()
	storageKey := fmt.Sprintf("%s_%s", id, sanitizeFilename(filename))
	now := time.Now().UTC()

	if err := uc.storage.Save(ctx, storageKey, body); err != nil {
		return nil, fmt.Errorf("save to object storage: %w", err)
	}

	doc := &domain.Document{
		ID:          id,
		Filename:    filename,
		MimeType:    mimeType,
		StoragePath: storageKey,
		Status:      domain.StatusUploaded,
		Metadata:    meta,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := uc.repo.Create(ctx, doc); err != nil {
		return nil, fmt.Errorf("create document metadata: %w", err)
	}

	if err := uc.queue.PublishDocumentIngested(ctx, doc.ID); err != nil {
		return nil, fmt.Errorf("publish ingestion event: %w", err)
	}

	return doc, nil
}

// Reprocess republishes the ingestion event for an already stored document.
// The worker re-runs extraction against the stored bytes; the new tree and
// index entries fully replace the previous ones.
func (uc *IngestDocumentUseCase) Reprocess(ctx context.Context, documentID string) error {
	if documentID == "" {
		return domain.WrapError(domain.ErrInvalidInput, "reprocess document", errors.New("empty document id"))
	}
	if _, err := uc.repo.GetByID(ctx, documentID); err != nil {
		return fmt.Errorf("load document: %w", err)
	}
	if err := uc.queue.PublishDocumentIngested(ctx, documentID); err != nil {
		return fmt.Errorf("publish ingestion event: %w", err)
	}
	return nil
}

func sanitizeFilename(name string) string {
	base := filepath.Base(name)
	base = strings.ReplaceAll(base, " ", "_")
	base = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z':
			return r
		case r >= 'A' && r <= 'Z':
			return r
		case r >= '0' && r <= '9':
			return r
		case r == '.', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, base)
	if base == "" {
		return "document.bin"
	}
	return base
}
