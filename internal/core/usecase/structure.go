package usecase

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/kirillkom/confident-retrieval/internal/core/domain"
	"github.com/kirillkom/confident-retrieval/internal/core/ports"
)

// StructureExtractUseCase turns raw document text into a validated
// DocumentTree. The structure-reasoning collaborator is the primary path;
// when it is unavailable or returns an unusable outline, the deterministic
// fixed-window fallback takes over. A collaborator failure is therefore
// never an extraction failure.
type StructureExtractUseCase struct {
	outline ports.OutlineExtractor
	chunker ports.Chunker
}

func NewStructureExtractUseCase(outline ports.OutlineExtractor, chunker ports.Chunker) *StructureExtractUseCase {
	return &StructureExtractUseCase{outline: outline, chunker: chunker}
}

func (uc *StructureExtractUseCase) ExtractTree(ctx context.Context, doc *domain.Document, text string) (*domain.DocumentTree, error) {
	if text == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "extract structure", errors.New("empty document text"))
	}

	outline, err := uc.outline.ExtractOutline(ctx, text)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		return uc.fallbackTree(doc, text)
	}
	if outline.Empty() {
		return uc.fallbackTree(doc, text)
	}

	tree := materializeOutline(doc, outline)
	if err := tree.Validate(); err != nil {
		// The collaborator proposed a malformed hierarchy; degrade rather
		// than fail the document.
		return uc.fallbackTree(doc, text)
	}
	return tree, nil
}

// materializeOutline assigns deterministic node ids and depths to the
// collaborator's proposal. Ids derive from the document id and the node's
// position path, so re-extracting identical content yields identical ids.
func materializeOutline(doc *domain.Document, outline domain.Outline) *domain.DocumentTree {
	rootID := nodeID(doc.ID, "root")
	label := outline.Title
	if label == "" {
		label = doc.Filename
	}
	tree := &domain.DocumentTree{
		DocumentID: doc.ID,
		RootID:     rootID,
		Mode:       domain.ExtractionLLM,
	}
	root := domain.DocumentNode{
		ID:                   rootID,
		DocumentID:           doc.ID,
		Label:                label,
		Depth:                0,
		Position:             0,
		ExtractionConfidence: nodeConfidence(outline.Confidence),
		Mode:                 domain.ExtractionLLM,
	}
	tree.Nodes = append(tree.Nodes, root)
	appendSections(tree, doc.ID, rootID, "root", 1, outline.Sections)
	return tree
}

func appendSections(tree *domain.DocumentTree, docID, parentID, parentPath string, depth int, sections []domain.OutlineSection) {
	parentIdx := -1
	for i := range tree.Nodes {
		if tree.Nodes[i].ID == parentID {
			parentIdx = i
			break
		}
	}
	for pos, section := range sections {
		path := fmt.Sprintf("%s.%d", parentPath, pos)
		id := nodeID(docID, path)
		tree.Nodes = append(tree.Nodes, domain.DocumentNode{
			ID:                   id,
			DocumentID:           docID,
			ParentID:             parentID,
			Label:                section.Label,
			Content:              section.Content,
			Depth:                depth,
			Position:             pos,
			ExtractionConfidence: nodeConfidence(section.Confidence),
			Mode:                 domain.ExtractionLLM,
		})
		if parentIdx >= 0 {
			tree.Nodes[parentIdx].ChildrenIDs = append(tree.Nodes[parentIdx].ChildrenIDs, id)
		}
		appendSections(tree, docID, id, path, depth+1, section.Children)
	}
}

// fallbackTree is the deterministic degraded shape: one root plus one child
// per fixed window, every node at FallbackConfidence.
func (uc *StructureExtractUseCase) fallbackTree(doc *domain.Document, text string) (*domain.DocumentTree, error) {
	windows := uc.chunker.Split(text)
	if len(windows) == 0 {
		return nil, domain.WrapError(domain.ErrInvalidInput, "extract structure", errors.New("chunking produced zero windows"))
	}

	rootID := nodeID(doc.ID, "root")
	tree := &domain.DocumentTree{
		DocumentID: doc.ID,
		RootID:     rootID,
		Mode:       domain.ExtractionFallback,
	}
	root := domain.DocumentNode{
		ID:                   rootID,
		DocumentID:           doc.ID,
		Label:                doc.Filename,
		Depth:                0,
		Position:             0,
		ExtractionConfidence: domain.FallbackConfidence,
		Mode:                 domain.ExtractionFallback,
	}
	for pos, window := range windows {
		id := nodeID(doc.ID, fmt.Sprintf("root.%d", pos))
		root.ChildrenIDs = append(root.ChildrenIDs, id)
		tree.Nodes = append(tree.Nodes, domain.DocumentNode{
			ID:                   id,
			DocumentID:           doc.ID,
			ParentID:             rootID,
			Label:                fmt.Sprintf("Span %d", pos+1),
			Content:              window,
			Depth:                1,
			Position:             pos,
			ExtractionConfidence: domain.FallbackConfidence,
			Mode:                 domain.ExtractionFallback,
		})
	}
	tree.Nodes = append([]domain.DocumentNode{root}, tree.Nodes...)
	return tree, nil
}

func nodeID(docID, path string) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(docID+":"+path)).String()
}

func nodeConfidence(v float64) float64 {
	if v <= 0 {
		return domain.DefaultLLMConfidence
	}
	return clamp01(v)
}
