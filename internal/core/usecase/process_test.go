package usecase

import (
	"context"
	"errors"
	"testing"

	"github.com/kirillkom/confident-retrieval/internal/core/domain"
)

type docRepoFake struct {
	doc        *domain.Document
	statuses   []domain.DocumentStatus
	lastError  string
	mode       domain.ExtractionMode
	nodeCount  int
	chunkCount int
	degraded   bool
	saved      bool
}

func (f *docRepoFake) Create(_ context.Context, doc *domain.Document) error {
	f.doc = doc
	return nil
}
func (f *docRepoFake) GetByID(_ context.Context, id string) (*domain.Document, error) {
	if f.doc == nil || f.doc.ID != id {
		return nil, domain.WrapError(domain.ErrDocumentNotFound, "get document", errors.New(id))
	}
	return f.doc, nil
}
func (f *docRepoFake) UpdateStatus(_ context.Context, _ string, status domain.DocumentStatus, errMessage string) error {
	f.statuses = append(f.statuses, status)
	f.lastError = errMessage
	return nil
}
func (f *docRepoFake) SaveExtractionResult(_ context.Context, _ string, mode domain.ExtractionMode, nodeCount, chunkCount int, degraded bool) error {
	f.mode, f.nodeCount, f.chunkCount, f.degraded, f.saved = mode, nodeCount, chunkCount, degraded, true
	return nil
}

type nodeRepoFake struct {
	tree *domain.DocumentTree
}

func (f *nodeRepoFake) ReplaceTree(_ context.Context, tree *domain.DocumentTree) error {
	f.tree = tree
	return nil
}
func (f *nodeRepoFake) GetTree(_ context.Context, _ string) (*domain.DocumentTree, error) {
	if f.tree == nil {
		return nil, domain.ErrDocumentNotFound
	}
	return f.tree, nil
}

type textExtractorFake struct {
	text string
	err  error
}

func (f *textExtractorFake) Extract(context.Context, *domain.Document) (string, error) {
	return f.text, f.err
}

type processEmbedderFake struct {
	err   error
	texts []string
}

func (f *processEmbedderFake) Embed(_ context.Context, texts []string) ([][]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.texts = texts
	vectors := make([][]float32, len(texts))
	for i := range vectors {
		vectors[i] = []float32{float32(i), 1}
	}
	return vectors, nil
}
func (f *processEmbedderFake) EmbedQuery(context.Context, string) ([]float32, error) {
	return []float32{0, 1}, nil
}
func (f *processEmbedderFake) ModelVersion() string { return "nomic-embed-text" }

type processIndexFake struct {
	replacedDoc string
	chunks      []domain.Chunk
}

func (f *processIndexFake) ReplaceDocument(_ context.Context, documentID string, chunks []domain.Chunk) error {
	f.replacedDoc = documentID
	f.chunks = chunks
	return nil
}
func (f *processIndexFake) Add(context.Context, []domain.Chunk) error        { return nil }
func (f *processIndexFake) Reembed(context.Context, string, []float32) error { return nil }
func (f *processIndexFake) GetChunk(context.Context, string) (domain.Chunk, error) {
	return domain.Chunk{}, domain.ErrChunkNotFound
}
func (f *processIndexFake) Search(context.Context, []float32, int, domain.MetadataFilter) ([]domain.Candidate, error) {
	return nil, nil
}
func (f *processIndexFake) SearchLexical(context.Context, string, int, domain.MetadataFilter) ([]domain.Candidate, error) {
	return nil, nil
}

func newProcessFixture(outline *outlineFake, embedder *processEmbedderFake) (*ProcessDocumentUseCase, *docRepoFake, *nodeRepoFake, *processIndexFake) {
	repo := &docRepoFake{doc: &domain.Document{
		ID: "doc-1", Filename: "contract.txt", MimeType: "text/plain",
		Status:   domain.StatusUploaded,
		Metadata: domain.ChunkMetadata{Version: "v1", SourceType: "contract"},
	}}
	nodes := &nodeRepoFake{}
	index := &processIndexFake{}
	structure := NewStructureExtractUseCase(outline, &windowChunkerFake{window: 1500})
	uc := NewProcessDocumentUseCase(repo, nodes, &textExtractorFake{text: "the term is one year"}, structure, embedder, index)
	return uc, repo, nodes, index
}

func TestProcessByIDHappyPath(t *testing.T) {
	outline := &outlineFake{outline: domain.Outline{
		Title: "Contract",
		Sections: []domain.OutlineSection{
			{Label: "Term", Content: "the term is one year", Confidence: 0.9},
			{Label: "Termination", Content: "either party may terminate", Confidence: 0.85},
		},
	}}
	embedder := &processEmbedderFake{}
	uc, repo, nodes, index := newProcessFixture(outline, embedder)

	if err := uc.ProcessByID(context.Background(), "doc-1"); err != nil {
		t.Fatalf("ProcessByID() error = %v", err)
	}

	if len(repo.statuses) != 2 || repo.statuses[0] != domain.StatusProcessing || repo.statuses[1] != domain.StatusReady {
		t.Fatalf("status transitions = %v", repo.statuses)
	}
	if nodes.tree == nil || nodes.tree.Mode != domain.ExtractionLLM {
		t.Fatalf("tree not persisted: %+v", nodes.tree)
	}
	if index.replacedDoc != "doc-1" {
		t.Fatalf("index not replaced for doc-1: %s", index.replacedDoc)
	}
	if len(index.chunks) != 2 {
		t.Fatalf("expected 2 chunks, got %d", len(index.chunks))
	}
	for _, chunk := range index.chunks {
		if len(chunk.Embedding) == 0 {
			t.Fatalf("chunk %s missing embedding", chunk.ID)
		}
		if chunk.Metadata.Version != "v1" || chunk.Metadata.SourceType != "contract" {
			t.Fatalf("document metadata not propagated: %+v", chunk.Metadata)
		}
		if chunk.Node.Mode != domain.ExtractionLLM || chunk.Node.NodeID == "" {
			t.Fatalf("node ref not populated: %+v", chunk.Node)
		}
	}
	if !repo.saved || repo.mode != domain.ExtractionLLM || repo.nodeCount != 2 || repo.chunkCount != 2 || repo.degraded {
		t.Fatalf("extraction result wrong: mode=%s nodes=%d chunks=%d degraded=%v", repo.mode, repo.nodeCount, repo.chunkCount, repo.degraded)
	}
}

func TestProcessByIDEmbedFailureDegradesInsteadOfFailing(t *testing.T) {
	outline := &outlineFake{outline: domain.Outline{
		Title:    "Contract",
		Sections: []domain.OutlineSection{{Label: "Term", Content: "the term is one year"}},
	}}
	embedder := &processEmbedderFake{err: domain.ErrCollaboratorUnavailable}
	uc, repo, _, index := newProcessFixture(outline, embedder)

	if err := uc.ProcessByID(context.Background(), "doc-1"); err != nil {
		t.Fatalf("ProcessByID() error = %v", err)
	}
	if repo.statuses[len(repo.statuses)-1] != domain.StatusReady {
		t.Fatalf("degraded document must still become ready, got %v", repo.statuses)
	}
	if !repo.degraded {
		t.Fatal("document must be marked degraded")
	}
	for _, chunk := range index.chunks {
		if len(chunk.Embedding) != 0 {
			t.Fatalf("degraded chunk must have no embedding: %+v", chunk)
		}
	}
}

func TestProcessByIDExtractionFailureMarksFailed(t *testing.T) {
	repo := &docRepoFake{doc: &domain.Document{ID: "doc-1", Filename: "contract.txt"}}
	structure := NewStructureExtractUseCase(&outlineFake{}, &windowChunkerFake{window: 1500})
	uc := NewProcessDocumentUseCase(repo, &nodeRepoFake{}, &textExtractorFake{err: errors.New("parse failure")}, structure, &processEmbedderFake{}, &processIndexFake{})

	if err := uc.ProcessByID(context.Background(), "doc-1"); err == nil {
		t.Fatal("expected error")
	}
	if repo.statuses[len(repo.statuses)-1] != domain.StatusFailed {
		t.Fatalf("expected failed status, got %v", repo.statuses)
	}
	if repo.lastError == "" {
		t.Fatal("failure reason must be recorded")
	}
}

func TestProcessByIDIsIdempotentForIdenticalContent(t *testing.T) {
	outline := &outlineFake{outline: domain.Outline{
		Title:    "Contract",
		Sections: []domain.OutlineSection{{Label: "Term", Content: "the term is one year"}},
	}}
	uc, _, _, index := newProcessFixture(outline, &processEmbedderFake{})

	if err := uc.ProcessByID(context.Background(), "doc-1"); err != nil {
		t.Fatalf("first ProcessByID() error = %v", err)
	}
	firstIDs := make([]string, len(index.chunks))
	for i, chunk := range index.chunks {
		firstIDs[i] = chunk.ID
	}

	if err := uc.ProcessByID(context.Background(), "doc-1"); err != nil {
		t.Fatalf("second ProcessByID() error = %v", err)
	}
	if len(index.chunks) != len(firstIDs) {
		t.Fatalf("chunk count changed: %d vs %d", len(index.chunks), len(firstIDs))
	}
	for i, chunk := range index.chunks {
		if chunk.ID != firstIDs[i] {
			t.Fatalf("chunk id changed on reprocess: %s vs %s", chunk.ID, firstIDs[i])
		}
	}
}
