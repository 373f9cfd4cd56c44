package usecase

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/kirillkom/confident-retrieval/internal/core/domain"
)

type outlineFake struct {
	outline domain.Outline
	err     error
}

func (f *outlineFake) ExtractOutline(context.Context, string) (domain.Outline, error) {
	return f.outline, f.err
}

type windowChunkerFake struct {
	window int
}

func (f *windowChunkerFake) WindowSize() int { return f.window }
func (f *windowChunkerFake) Split(text string) []string {
	runes := []rune(text)
	var out []string
	for start := 0; start < len(runes); start += f.window {
		end := start + f.window
		if end > len(runes) {
			end = len(runes)
		}
		out = append(out, string(runes[start:end]))
	}
	return out
}

func testDoc() *domain.Document {
	return &domain.Document{ID: "doc-1", Filename: "contract.txt"}
}

func TestExtractTreeFromOutline(t *testing.T) {
	outline := domain.Outline{
		Title:      "Contract",
		Confidence: 0.95,
		Sections: []domain.OutlineSection{
			{Label: "Term", Content: "the term is one year", Confidence: 0.9},
			{Label: "Termination", Content: "either party may terminate", Children: []domain.OutlineSection{
				{Label: "Notice", Content: "thirty days notice", Confidence: 0.8},
			}},
		},
	}
	uc := NewStructureExtractUseCase(&outlineFake{outline: outline}, &windowChunkerFake{window: 1500})

	tree, err := uc.ExtractTree(context.Background(), testDoc(), "full text")
	if err != nil {
		t.Fatalf("ExtractTree() error = %v", err)
	}
	if tree.Mode != domain.ExtractionLLM {
		t.Fatalf("mode = %s, want llm", tree.Mode)
	}
	if err := tree.Validate(); err != nil {
		t.Fatalf("tree invalid: %v", err)
	}
	if len(tree.Nodes) != 4 {
		t.Fatalf("expected 4 nodes, got %d", len(tree.Nodes))
	}

	// Omitted section confidence falls back to the default, provided ones
	// are kept.
	var termination, notice *domain.DocumentNode
	for i := range tree.Nodes {
		switch tree.Nodes[i].Label {
		case "Termination":
			termination = &tree.Nodes[i]
		case "Notice":
			notice = &tree.Nodes[i]
		}
	}
	if termination == nil || notice == nil {
		t.Fatal("expected Termination and Notice nodes")
	}
	if termination.ExtractionConfidence != domain.DefaultLLMConfidence {
		t.Fatalf("default confidence = %f, want %f", termination.ExtractionConfidence, domain.DefaultLLMConfidence)
	}
	if notice.ExtractionConfidence != 0.8 {
		t.Fatalf("notice confidence = %f, want 0.8", notice.ExtractionConfidence)
	}
	if notice.Depth != 2 || notice.ParentID != termination.ID {
		t.Fatalf("nesting wrong: %+v", notice)
	}
}

func TestExtractTreeNodeIDsAreDeterministic(t *testing.T) {
	outline := domain.Outline{Title: "T", Sections: []domain.OutlineSection{{Label: "A", Content: "a"}}}
	uc := NewStructureExtractUseCase(&outlineFake{outline: outline}, &windowChunkerFake{window: 1500})

	first, err := uc.ExtractTree(context.Background(), testDoc(), "text")
	if err != nil {
		t.Fatalf("first ExtractTree() error = %v", err)
	}
	second, err := uc.ExtractTree(context.Background(), testDoc(), "text")
	if err != nil {
		t.Fatalf("second ExtractTree() error = %v", err)
	}
	for i := range first.Nodes {
		if first.Nodes[i].ID != second.Nodes[i].ID {
			t.Fatalf("node ids differ at %d: %s vs %s", i, first.Nodes[i].ID, second.Nodes[i].ID)
		}
	}
}

func TestExtractTreeFallsBackWhenCollaboratorFails(t *testing.T) {
	uc := NewStructureExtractUseCase(&outlineFake{err: domain.ErrCollaboratorUnavailable}, &windowChunkerFake{window: 4})

	text := strings.Repeat("a", 10) // 3 windows of 4
	tree, err := uc.ExtractTree(context.Background(), testDoc(), text)
	if err != nil {
		t.Fatalf("ExtractTree() error = %v", err)
	}
	if tree.Mode != domain.ExtractionFallback {
		t.Fatalf("mode = %s, want fallback", tree.Mode)
	}
	if err := tree.Validate(); err != nil {
		t.Fatalf("tree invalid: %v", err)
	}
	// ceil(10/4) = 3 content nodes plus the root.
	if len(tree.Nodes) != 4 {
		t.Fatalf("expected 4 nodes, got %d", len(tree.Nodes))
	}
	for _, node := range tree.Nodes {
		if node.ExtractionConfidence != domain.FallbackConfidence {
			t.Fatalf("node %s confidence %f, want %f", node.ID, node.ExtractionConfidence, domain.FallbackConfidence)
		}
		if node.Mode != domain.ExtractionFallback {
			t.Fatalf("node %s mode %s, want fallback", node.ID, node.Mode)
		}
	}
}

func TestExtractTreeFallsBackOnEmptyOutline(t *testing.T) {
	uc := NewStructureExtractUseCase(&outlineFake{outline: domain.Outline{Title: "T"}}, &windowChunkerFake{window: 100})

	tree, err := uc.ExtractTree(context.Background(), testDoc(), "some text")
	if err != nil {
		t.Fatalf("ExtractTree() error = %v", err)
	}
	if tree.Mode != domain.ExtractionFallback {
		t.Fatalf("mode = %s, want fallback", tree.Mode)
	}
}

func TestExtractTreePropagatesContextCancellation(t *testing.T) {
	uc := NewStructureExtractUseCase(&outlineFake{err: context.Canceled}, &windowChunkerFake{window: 100})

	_, err := uc.ExtractTree(context.Background(), testDoc(), "some text")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestExtractTreeRejectsEmptyText(t *testing.T) {
	uc := NewStructureExtractUseCase(&outlineFake{}, &windowChunkerFake{window: 100})

	_, err := uc.ExtractTree(context.Background(), testDoc(), "")
	if !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}
