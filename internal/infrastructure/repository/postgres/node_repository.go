package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/kirillkom/confident-retrieval/internal/core/domain"
)

type NodeRepository struct {
	db *sql.DB
}

func NewNodeRepository(db *sql.DB) *NodeRepository {
	return &NodeRepository{db: db}
}

// ReplaceTree swaps the stored tree in one transaction: re-extraction never
// patches, it replaces.
func (r *NodeRepository) ReplaceTree(ctx context.Context, tree *domain.DocumentTree) error {
	if err := tree.Validate(); err != nil {
		return domain.WrapError(domain.ErrInvalidInput, "replace tree", err)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tree tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx, `DELETE FROM document_nodes WHERE document_id = $1`, tree.DocumentID); err != nil {
		return fmt.Errorf("delete old nodes: %w", err)
	}

	for _, node := range tree.Nodes {
		var parentID any
		if node.ParentID != "" {
			parentID = node.ParentID
		}
		_, err := tx.ExecContext(ctx, `
INSERT INTO document_nodes (id, document_id, parent_id, label, content, depth, position, extraction_confidence, mode)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
`, node.ID, tree.DocumentID, parentID, node.Label, node.Content, node.Depth, node.Position, node.ExtractionConfidence, string(node.Mode))
		if err != nil {
			return fmt.Errorf("insert node %s: %w", node.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tree tx: %w", err)
	}
	return nil
}

func (r *NodeRepository) GetTree(ctx context.Context, documentID string) (*domain.DocumentTree, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT id, parent_id, label, content, depth, position, extraction_confidence, mode
FROM document_nodes
WHERE document_id = $1
ORDER BY depth, position
`, documentID)
	if err != nil {
		return nil, fmt.Errorf("query nodes: %w", err)
	}
	defer rows.Close()

	tree := &domain.DocumentTree{DocumentID: documentID}
	children := map[string][]string{}
	for rows.Next() {
		var node domain.DocumentNode
		var parentID sql.NullString
		var mode string
		if err := rows.Scan(&node.ID, &parentID, &node.Label, &node.Content, &node.Depth, &node.Position, &node.ExtractionConfidence, &mode); err != nil {
			return nil, fmt.Errorf("scan node: %w", err)
		}
		node.DocumentID = documentID
		node.Mode = domain.ExtractionMode(mode)
		if parentID.Valid {
			node.ParentID = parentID.String
			children[parentID.String] = append(children[parentID.String], node.ID)
		} else {
			tree.RootID = node.ID
			tree.Mode = node.Mode
		}
		tree.Nodes = append(tree.Nodes, node)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate nodes: %w", err)
	}
	if len(tree.Nodes) == 0 {
		return nil, domain.WrapError(domain.ErrDocumentNotFound, "get tree", fmt.Errorf("document %s has no nodes", documentID))
	}

	for i := range tree.Nodes {
		tree.Nodes[i].ChildrenIDs = children[tree.Nodes[i].ID]
	}
	return tree, nil
}
