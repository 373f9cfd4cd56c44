package memindex

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"github.com/kirillkom/confident-retrieval/internal/core/domain"
)

const schema = `
CREATE TABLE IF NOT EXISTS chunks (
	id            TEXT PRIMARY KEY,
	document_id   TEXT NOT NULL,
	seq           INTEGER NOT NULL,
	text          TEXT NOT NULL,
	embedding     BLOB,
	metadata_json TEXT NOT NULL,
	node_json     TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_chunks_document ON chunks(document_id);
`

// store write-through-persists the index to a single SQLite file. Embeddings
// are stored as little-endian float32 blobs.
type store struct {
	db *sql.DB
}

func openStore(path string) (*store, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create index directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open index snapshot: %w", err)
	}
	// The pool must stay at one connection so every statement sees the same
	// database, including in-memory paths used by tests.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, domain.WrapError(domain.ErrIndexCorruption, "open index snapshot", err)
	}
	return &store{db: db}, nil
}

func (s *store) close() error {
	return s.db.Close()
}

// load rebuilds the in-memory snapshot. Any malformed row fails the whole
// load with ErrIndexCorruption: a partially loaded index must never serve
// queries.
func (s *store) load() (*snapshot, error) {
	rows, err := s.db.Query(`SELECT id, document_id, seq, text, embedding, metadata_json, node_json FROM chunks ORDER BY seq`)
	if err != nil {
		return nil, domain.WrapError(domain.ErrIndexCorruption, "load index snapshot", err)
	}
	defer rows.Close()

	snap := emptySnapshot()
	for rows.Next() {
		var (
			chunk    domain.Chunk
			seq      int64
			blob     []byte
			metaJSON string
			nodeJSON string
		)
		if err := rows.Scan(&chunk.ID, &chunk.DocumentID, &seq, &chunk.Text, &blob, &metaJSON, &nodeJSON); err != nil {
			return nil, domain.WrapError(domain.ErrIndexCorruption, "load index snapshot", err)
		}
		if err := json.Unmarshal([]byte(metaJSON), &chunk.Metadata); err != nil {
			return nil, domain.WrapError(domain.ErrIndexCorruption, "load index snapshot",
				fmt.Errorf("chunk %s metadata: %w", chunk.ID, err))
		}
		if err := json.Unmarshal([]byte(nodeJSON), &chunk.Node); err != nil {
			return nil, domain.WrapError(domain.ErrIndexCorruption, "load index snapshot",
				fmt.Errorf("chunk %s node: %w", chunk.ID, err))
		}
		chunk.Embedding, err = decodeEmbedding(blob)
		if err != nil {
			return nil, domain.WrapError(domain.ErrIndexCorruption, "load index snapshot",
				fmt.Errorf("chunk %s: %w", chunk.ID, err))
		}
		if _, dup := snap.byID[chunk.ID]; dup {
			return nil, domain.WrapError(domain.ErrIndexCorruption, "load index snapshot",
				fmt.Errorf("duplicate chunk id %s", chunk.ID))
		}
		if len(chunk.Embedding) > 0 {
			if snap.dim == 0 {
				snap.dim = len(chunk.Embedding)
			} else if len(chunk.Embedding) != snap.dim {
				return nil, domain.WrapError(domain.ErrIndexCorruption, "load index snapshot",
					fmt.Errorf("chunk %s embedding dim %d, index dim %d", chunk.ID, len(chunk.Embedding), snap.dim))
			}
		}
		snap.byID[chunk.ID] = len(snap.entries)
		snap.entries = append(snap.entries, entry{
			chunk:  chunk,
			seq:    seq,
			norm:   vectorNorm(chunk.Embedding),
			tokens: tokenSet(chunk.Text),
		})
		if seq >= snap.nextSeq {
			snap.nextSeq = seq + 1
		}
	}
	if err := rows.Err(); err != nil {
		return nil, domain.WrapError(domain.ErrIndexCorruption, "load index snapshot", err)
	}
	return snap, nil
}

func (s *store) insert(ctx context.Context, entries []entry) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("persist index: %w", err)
	}
	defer tx.Rollback()
	if err := insertEntries(ctx, tx, entries); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("persist index: %w", err)
	}
	return nil
}

func (s *store) replaceDocument(ctx context.Context, documentID string, entries []entry) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("persist index: %w", err)
	}
	defer tx.Rollback()
	if _, err := tx.ExecContext(ctx, `DELETE FROM chunks WHERE document_id = ?`, documentID); err != nil {
		return fmt.Errorf("persist index: %w", err)
	}
	if err := insertEntries(ctx, tx, entries); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("persist index: %w", err)
	}
	return nil
}

func (s *store) updateEmbedding(ctx context.Context, chunkID string, embedding []float32) error {
	if _, err := s.db.ExecContext(ctx,
		`UPDATE chunks SET embedding = ? WHERE id = ?`,
		encodeEmbedding(embedding), chunkID); err != nil {
		return fmt.Errorf("persist index: %w", err)
	}
	return nil
}

func insertEntries(ctx context.Context, tx *sql.Tx, entries []entry) error {
	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO chunks (id, document_id, seq, text, embedding, metadata_json, node_json) VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("persist index: %w", err)
	}
	defer stmt.Close()
	for _, e := range entries {
		metaJSON, err := json.Marshal(e.chunk.Metadata)
		if err != nil {
			return fmt.Errorf("persist index: %w", err)
		}
		nodeJSON, err := json.Marshal(e.chunk.Node)
		if err != nil {
			return fmt.Errorf("persist index: %w", err)
		}
		if _, err := stmt.ExecContext(ctx, e.chunk.ID, e.chunk.DocumentID, e.seq, e.chunk.Text,
			encodeEmbedding(e.chunk.Embedding), string(metaJSON), string(nodeJSON)); err != nil {
			return fmt.Errorf("persist index: %w", err)
		}
	}
	return nil
}

func encodeEmbedding(v []float32) []byte {
	if len(v) == 0 {
		return nil
	}
	buf := make([]byte, 4*len(v))
	for i, x := range v {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(x))
	}
	return buf
}

func decodeEmbedding(blob []byte) ([]float32, error) {
	if len(blob) == 0 {
		return nil, nil
	}
	if len(blob)%4 != 0 {
		return nil, fmt.Errorf("embedding blob length %d not a multiple of 4", len(blob))
	}
	v := make([]float32, len(blob)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(blob[4*i:]))
	}
	return v, nil
}
