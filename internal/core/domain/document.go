package domain

import (
	"errors"
	"fmt"
	"time"
)

type DocumentStatus string

const (
	StatusUploaded   DocumentStatus = "uploaded"
	StatusProcessing DocumentStatus = "processing"
	StatusReady      DocumentStatus = "ready"
	StatusFailed     DocumentStatus = "failed"
)

// ExtractionMode distinguishes LLM-driven structure extraction from the
// deterministic fixed-window fallback. The two paths must stay visibly
// distinguishable downstream, so the mode travels with every node and chunk.
type ExtractionMode string

const (
	ExtractionLLM      ExtractionMode = "llm"
	ExtractionFallback ExtractionMode = "fallback"
)

// FallbackConfidence is assigned to every node produced by the fixed-window
// chunker when the structure-reasoning collaborator is unavailable.
const FallbackConfidence = 0.70

// DefaultLLMConfidence is used when the outline collaborator omits a
// per-node confidence.
const DefaultLLMConfidence = 0.85

type Document struct {
	ID             string         `json:"id"`
	Filename       string         `json:"filename"`
	MimeType       string         `json:"mime_type"`
	StoragePath    string         `json:"storage_path"`
	Status         DocumentStatus `json:"status"`
	ExtractionMode ExtractionMode `json:"extraction_mode,omitempty"`
	NodeCount      int            `json:"node_count,omitempty"`
	ChunkCount     int            `json:"chunk_count,omitempty"`
	Degraded       bool           `json:"degraded,omitempty"`
	Error          string         `json:"error,omitempty"`
	Metadata       ChunkMetadata  `json:"metadata"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

// DocumentNode is one labeled node of an extracted document tree. The root
// has depth 0 and an empty ParentID; depth strictly increases from parent to
// child.
type DocumentNode struct {
	ID                   string         `json:"id"`
	DocumentID           string         `json:"document_id"`
	ParentID             string         `json:"parent_id,omitempty"`
	ChildrenIDs          []string       `json:"children_ids,omitempty"`
	Label                string         `json:"label"`
	Content              string         `json:"content,omitempty"`
	Depth                int            `json:"depth"`
	Position             int            `json:"position"`
	ExtractionConfidence float64        `json:"extraction_confidence"`
	Mode                 ExtractionMode `json:"mode"`
}

// DocumentTree is the full extraction result for one document. Nodes are
// ordered root-first (parents always precede their children).
type DocumentTree struct {
	DocumentID string
	RootID     string
	Nodes      []DocumentNode
	Mode       ExtractionMode
}

// Validate checks the structural invariants: a single root, exactly one
// parent per non-root node, no cycles, and depth strictly increasing from
// parent to child.
func (t *DocumentTree) Validate() error {
	if len(t.Nodes) == 0 {
		return errors.New("tree has no nodes")
	}

	byID := make(map[string]*DocumentNode, len(t.Nodes))
	for i := range t.Nodes {
		node := &t.Nodes[i]
		if node.ID == "" {
			return errors.New("node with empty id")
		}
		if _, dup := byID[node.ID]; dup {
			return fmt.Errorf("duplicate node id %s", node.ID)
		}
		byID[node.ID] = node
	}

	root, ok := byID[t.RootID]
	if !ok {
		return fmt.Errorf("root %s not among nodes", t.RootID)
	}
	if root.ParentID != "" || root.Depth != 0 {
		return errors.New("root must have no parent and depth 0")
	}

	for i := range t.Nodes {
		node := &t.Nodes[i]
		if node.ID == t.RootID {
			continue
		}
		parent, ok := byID[node.ParentID]
		if !ok {
			return fmt.Errorf("node %s references unknown parent %s", node.ID, node.ParentID)
		}
		if node.Depth <= parent.Depth {
			return fmt.Errorf("node %s depth %d does not exceed parent depth %d", node.ID, node.Depth, parent.Depth)
		}
	}

	// Every node must be reachable from the root exactly once; together with
	// the single-parent check above this rules out cycles.
	seen := make(map[string]bool, len(t.Nodes))
	stack := []string{t.RootID}
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if seen[id] {
			return fmt.Errorf("node %s reached twice", id)
		}
		seen[id] = true
		node := byID[id]
		for _, child := range node.ChildrenIDs {
			if _, ok := byID[child]; !ok {
				return fmt.Errorf("node %s references unknown child %s", id, child)
			}
			stack = append(stack, child)
		}
	}
	if len(seen) != len(t.Nodes) {
		return fmt.Errorf("tree has %d nodes but only %d reachable from root", len(t.Nodes), len(seen))
	}
	return nil
}

// Leaves returns the nodes without children, in tree order.
func (t *DocumentTree) Leaves() []DocumentNode {
	out := make([]DocumentNode, 0, len(t.Nodes))
	for _, node := range t.Nodes {
		if len(node.ChildrenIDs) == 0 {
			out = append(out, node)
		}
	}
	return out
}

// ChunkMetadata carries the fixed filterable attributes of a chunk. All
// values are optional; zero values mean "not set".
type ChunkMetadata struct {
	EffectiveDate *time.Time `json:"effective_date,omitempty"`
	Version       string     `json:"version,omitempty"`
	SourceType    string     `json:"source_type,omitempty"`
	IsArchived    bool       `json:"is_archived,omitempty"`
}

// NodeRef denormalizes the scoring-relevant attributes of a chunk's source
// node so the query path never has to load trees from the repository.
type NodeRef struct {
	NodeID               string         `json:"node_id"`
	Depth                int            `json:"depth"`
	HasParent            bool           `json:"has_parent"`
	ExtractionConfidence float64        `json:"extraction_confidence"`
	Mode                 ExtractionMode `json:"mode"`
}

// Chunk is the leaf-level unit stored in the vector index. A chunk maps to
// exactly one DocumentNode; the embedding is owned by the chunk and its
// dimensionality is constant across one index instance.
type Chunk struct {
	ID         string        `json:"id"`
	DocumentID string        `json:"document_id"`
	Text       string        `json:"text"`
	Embedding  []float32     `json:"embedding,omitempty"`
	Metadata   ChunkMetadata `json:"metadata"`
	Node       NodeRef       `json:"node"`
}
