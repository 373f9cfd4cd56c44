package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/kirillkom/confident-retrieval/internal/core/domain"
)

type DocumentRepository struct {
	db *sql.DB
}

func NewDocumentRepository(db *sql.DB) *DocumentRepository {
	return &DocumentRepository{db: db}
}

func OpenDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql open: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return db, nil
}

func (r *DocumentRepository) EnsureSchema(ctx context.Context) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// Serialize bootstrap DDL across api/worker startups.
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(2026082601)); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}

	const query = `
CREATE TABLE IF NOT EXISTS documents (
	id TEXT PRIMARY KEY,
	filename TEXT NOT NULL,
	mime_type TEXT NOT NULL,
	storage_path TEXT NOT NULL,
	status TEXT NOT NULL,
	extraction_mode TEXT NOT NULL DEFAULT '',
	node_count INTEGER NOT NULL DEFAULT 0,
	chunk_count INTEGER NOT NULL DEFAULT 0,
	degraded BOOLEAN NOT NULL DEFAULT FALSE,
	error_message TEXT,
	metadata JSONB NOT NULL DEFAULT '{}'::jsonb,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_documents_status ON documents(status);
CREATE INDEX IF NOT EXISTS idx_documents_created_at ON documents(created_at DESC);

CREATE TABLE IF NOT EXISTS document_nodes (
	id TEXT PRIMARY KEY,
	document_id TEXT NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
	parent_id TEXT,
	label TEXT NOT NULL,
	content TEXT NOT NULL DEFAULT '',
	depth INTEGER NOT NULL,
	position INTEGER NOT NULL,
	extraction_confidence DOUBLE PRECISION NOT NULL,
	mode TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_document_nodes_document ON document_nodes(document_id, depth, position);

CREATE TABLE IF NOT EXISTS case_memory (
	id BIGSERIAL PRIMARY KEY,
	query_signature TEXT NOT NULL,
	result_ids JSONB NOT NULL,
	composite_confidence DOUBLE PRECISION NOT NULL,
	embed_model_version TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_case_memory_signature ON case_memory(query_signature, created_at DESC);
`
	if _, err := tx.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}

func (r *DocumentRepository) Create(ctx context.Context, doc *domain.Document) error {
	metadataJSON, err := json.Marshal(doc.Metadata)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
INSERT INTO documents (
	id, filename, mime_type, storage_path, status, extraction_mode, node_count, chunk_count, degraded, error_message, metadata, created_at, updated_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
`,
		doc.ID, doc.Filename, doc.MimeType, doc.StoragePath, string(doc.Status), string(doc.ExtractionMode),
		doc.NodeCount, doc.ChunkCount, doc.Degraded, doc.Error, metadataJSON, doc.CreatedAt, doc.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert document: %w", err)
	}
	return nil
}

func (r *DocumentRepository) GetByID(ctx context.Context, id string) (*domain.Document, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT id, filename, mime_type, storage_path, status, extraction_mode, node_count, chunk_count, degraded, error_message, metadata, created_at, updated_at
FROM documents
WHERE id = $1
`, id)

	var doc domain.Document
	var metadataRaw []byte
	var status, mode string

	err := row.Scan(
		&doc.ID, &doc.Filename, &doc.MimeType, &doc.StoragePath, &status, &mode,
		&doc.NodeCount, &doc.ChunkCount, &doc.Degraded, &doc.Error, &metadataRaw, &doc.CreatedAt, &doc.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrDocumentNotFound, "get document", fmt.Errorf("id %s", id))
		}
		return nil, fmt.Errorf("scan document: %w", err)
	}

	if err := json.Unmarshal(metadataRaw, &doc.Metadata); err != nil {
		return nil, fmt.Errorf("unmarshal metadata: %w", err)
	}
	doc.Status = domain.DocumentStatus(status)
	doc.ExtractionMode = domain.ExtractionMode(mode)
	return &doc, nil
}

func (r *DocumentRepository) UpdateStatus(ctx context.Context, id string, status domain.DocumentStatus, errMessage string) error {
	res, err := r.db.ExecContext(ctx, `
UPDATE documents
SET status = $2, error_message = $3, updated_at = $4
WHERE id = $1
`, id, string(status), errMessage, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update document status: %w", err)
	}
	return requireDocumentUpdated(res, "update document status", id)
}

func (r *DocumentRepository) SaveExtractionResult(ctx context.Context, id string, mode domain.ExtractionMode, nodeCount, chunkCount int, degraded bool) error {
	res, err := r.db.ExecContext(ctx, `
UPDATE documents
SET extraction_mode = $2, node_count = $3, chunk_count = $4, degraded = $5, updated_at = $6
WHERE id = $1
`, id, string(mode), nodeCount, chunkCount, degraded, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("save extraction result: %w", err)
	}
	return requireDocumentUpdated(res, "save extraction result", id)
}

func requireDocumentUpdated(res sql.Result, operation, id string) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s rows affected: %w", operation, err)
	}
	if affected == 0 {
		return domain.WrapError(domain.ErrDocumentNotFound, operation, fmt.Errorf("id %s", id))
	}
	return nil
}
