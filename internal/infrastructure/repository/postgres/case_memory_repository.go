package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/kirillkom/confident-retrieval/internal/core/domain"
)

// CaseMemoryRepository is append-only: Record always inserts, Lookup returns
// the most recent entry for a signature. History is never rewritten.
type CaseMemoryRepository struct {
	db *sql.DB
}

func NewCaseMemoryRepository(db *sql.DB) *CaseMemoryRepository {
	return &CaseMemoryRepository{db: db}
}

func (r *CaseMemoryRepository) Record(ctx context.Context, entry domain.CaseMemoryEntry) error {
	resultIDs, err := json.Marshal(entry.ResultIDs)
	if err != nil {
		return fmt.Errorf("marshal result ids: %w", err)
	}
	_, err = r.db.ExecContext(ctx, `
INSERT INTO case_memory (query_signature, result_ids, composite_confidence, embed_model_version, created_at)
VALUES ($1,$2,$3,$4,$5)
`, entry.QuerySignature, resultIDs, entry.CompositeConfidence, entry.EmbedModelVersion, entry.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert case memory entry: %w", err)
	}
	return nil
}

func (r *CaseMemoryRepository) Lookup(ctx context.Context, querySignature string) (*domain.CaseMemoryEntry, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT query_signature, result_ids, composite_confidence, embed_model_version, created_at
FROM case_memory
WHERE query_signature = $1
ORDER BY created_at DESC, id DESC
LIMIT 1
`, querySignature)

	var entry domain.CaseMemoryEntry
	var resultIDsRaw []byte
	err := row.Scan(&entry.QuerySignature, &resultIDsRaw, &entry.CompositeConfidence, &entry.EmbedModelVersion, &entry.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrEntryNotFound, "lookup case memory", fmt.Errorf("signature %s", querySignature))
		}
		return nil, fmt.Errorf("scan case memory entry: %w", err)
	}
	if err := json.Unmarshal(resultIDsRaw, &entry.ResultIDs); err != nil {
		return nil, fmt.Errorf("unmarshal result ids: %w", err)
	}
	return &entry, nil
}
