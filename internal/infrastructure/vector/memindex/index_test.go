package memindex

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"

	"github.com/kirillkom/confident-retrieval/internal/core/domain"
)

func chunk(id, docID, text string, embedding []float32) domain.Chunk {
	return domain.Chunk{
		ID:         id,
		DocumentID: docID,
		Text:       text,
		Embedding:  embedding,
		Metadata:   domain.ChunkMetadata{SourceType: "test"},
	}
}

func TestSearchOrdersBySimilarityThenInsertion(t *testing.T) {
	idx := New()
	err := idx.Add(context.Background(), []domain.Chunk{
		chunk("a", "doc1", "alpha", []float32{0, 1}),
		chunk("b", "doc1", "beta", []float32{1, 0}),
		chunk("c", "doc1", "gamma", []float32{1, 0}), // same direction as b, inserted later
	})
	if err != nil {
		t.Fatalf("add: %v", err)
	}

	got, err := idx.Search(context.Background(), []float32{1, 0}, 10, domain.MetadataFilter{})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 candidates, got %d", len(got))
	}
	if got[0].Chunk.ID != "b" || got[1].Chunk.ID != "c" {
		t.Fatalf("tie must break by insertion order, got %s then %s", got[0].Chunk.ID, got[1].Chunk.ID)
	}
	if got[0].RawSimilarity <= got[2].RawSimilarity {
		t.Fatalf("expected descending similarity, got %f then %f", got[0].RawSimilarity, got[2].RawSimilarity)
	}
	if !got[0].HasSimilarity {
		t.Fatal("semantic candidates must carry a raw similarity")
	}
}

func TestSearchRespectsKAndFilter(t *testing.T) {
	idx := New()
	archived := chunk("arch", "doc1", "archived text", []float32{1, 0})
	archived.Metadata.IsArchived = true
	err := idx.Add(context.Background(), []domain.Chunk{
		chunk("a", "doc1", "alpha", []float32{1, 0}),
		archived,
		chunk("b", "doc2", "beta", []float32{0.9, 0.1}),
	})
	if err != nil {
		t.Fatalf("add: %v", err)
	}

	excludeArchived := false
	got, err := idx.Search(context.Background(), []float32{1, 0}, 1, domain.MetadataFilter{IsArchived: &excludeArchived})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(got) != 1 || got[0].Chunk.ID != "a" {
		t.Fatalf("expected single unarchived best match, got %+v", got)
	}
}

func TestSearchSkipsChunksWithoutEmbeddings(t *testing.T) {
	idx := New()
	err := idx.Add(context.Background(), []domain.Chunk{
		chunk("plain", "doc1", "degraded ingest chunk about contracts", nil),
		chunk("vec", "doc1", "embedded chunk", []float32{1, 0}),
	})
	if err != nil {
		t.Fatalf("add: %v", err)
	}

	semantic, err := idx.Search(context.Background(), []float32{1, 0}, 10, domain.MetadataFilter{})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(semantic) != 1 || semantic[0].Chunk.ID != "vec" {
		t.Fatalf("semantic search must skip vectorless chunks, got %+v", semantic)
	}

	lexical, err := idx.SearchLexical(context.Background(), "contracts", 10, domain.MetadataFilter{})
	if err != nil {
		t.Fatalf("lexical search: %v", err)
	}
	if len(lexical) != 1 || lexical[0].Chunk.ID != "plain" {
		t.Fatalf("lexical search must reach vectorless chunks, got %+v", lexical)
	}
	if lexical[0].HasSimilarity {
		t.Fatal("lexical candidates must not claim a raw similarity")
	}
}

func TestSearchLexicalRanksByOverlap(t *testing.T) {
	idx := New()
	err := idx.Add(context.Background(), []domain.Chunk{
		chunk("one", "doc1", "termination clause", nil),
		chunk("two", "doc1", "termination clause notice period", nil),
		chunk("none", "doc1", "unrelated content", nil),
	})
	if err != nil {
		t.Fatalf("add: %v", err)
	}

	got, err := idx.SearchLexical(context.Background(), "termination notice", 10, domain.MetadataFilter{})
	if err != nil {
		t.Fatalf("lexical search: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 overlapping chunks, got %d", len(got))
	}
	if got[0].Chunk.ID != "two" {
		t.Fatalf("expected highest-overlap chunk first, got %s", got[0].Chunk.ID)
	}
}

func TestReplaceDocumentDropsOldChunks(t *testing.T) {
	idx := New()
	ctx := context.Background()
	if err := idx.ReplaceDocument(ctx, "doc1", []domain.Chunk{chunk("old", "doc1", "old text", []float32{1, 0})}); err != nil {
		t.Fatalf("replace: %v", err)
	}
	if err := idx.ReplaceDocument(ctx, "doc1", []domain.Chunk{chunk("new", "doc1", "new text", []float32{1, 0})}); err != nil {
		t.Fatalf("replace: %v", err)
	}

	if _, err := idx.GetChunk(ctx, "old"); !errors.Is(err, domain.ErrChunkNotFound) {
		t.Fatalf("expected old chunk gone, got %v", err)
	}
	got, err := idx.Search(ctx, []float32{1, 0}, 10, domain.MetadataFilter{})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(got) != 1 || got[0].Chunk.ID != "new" {
		t.Fatalf("expected only replacement chunk, got %+v", got)
	}
}

func TestReembedUpdatesRanking(t *testing.T) {
	idx := New()
	ctx := context.Background()
	err := idx.Add(ctx, []domain.Chunk{
		chunk("a", "doc1", "alpha", []float32{0, 1}),
		chunk("b", "doc1", "beta", []float32{1, 0}),
	})
	if err != nil {
		t.Fatalf("add: %v", err)
	}

	if err := idx.Reembed(ctx, "a", []float32{1, 0}); err != nil {
		t.Fatalf("reembed: %v", err)
	}
	got, err := idx.Search(ctx, []float32{1, 0}, 1, domain.MetadataFilter{})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if got[0].Chunk.ID != "a" {
		t.Fatalf("expected reembedded chunk to rank first, got %s", got[0].Chunk.ID)
	}

	if err := idx.Reembed(ctx, "missing", []float32{1, 0}); !errors.Is(err, domain.ErrChunkNotFound) {
		t.Fatalf("expected ErrChunkNotFound, got %v", err)
	}
	if err := idx.Reembed(ctx, "a", []float32{1, 0, 0}); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected dimension mismatch rejection, got %v", err)
	}
}

func TestAddRejectsDimensionMismatch(t *testing.T) {
	idx := New()
	ctx := context.Background()
	if err := idx.Add(ctx, []domain.Chunk{chunk("a", "doc1", "alpha", []float32{1, 0})}); err != nil {
		t.Fatalf("add: %v", err)
	}
	err := idx.Add(ctx, []domain.Chunk{chunk("b", "doc1", "beta", []float32{1, 0, 0})})
	if !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestSearchEmptyIndexReturnsNoCandidates(t *testing.T) {
	idx := New()
	got, err := idx.Search(context.Background(), []float32{1, 0}, 10, domain.MetadataFilter{})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected empty result, got %d candidates", len(got))
	}
}

func TestSnapshotRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.db")
	ctx := context.Background()

	idx, err := Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	meta := domain.ChunkMetadata{Version: "v2", SourceType: "contract"}
	c := chunk("a", "doc1", "persisted chunk", []float32{0.5, 0.25})
	c.Metadata = meta
	if err := idx.Add(ctx, []domain.Chunk{c, chunk("b", "doc1", "vectorless", nil)}); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := idx.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	reopened, err := Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()

	got, err := reopened.GetChunk(ctx, "a")
	if err != nil {
		t.Fatalf("get chunk: %v", err)
	}
	if got.Text != "persisted chunk" || got.Metadata != meta {
		t.Fatalf("chunk did not survive round trip: %+v", got)
	}
	if len(got.Embedding) != 2 || got.Embedding[0] != 0.5 || got.Embedding[1] != 0.25 {
		t.Fatalf("embedding did not survive round trip: %v", got.Embedding)
	}

	hits, err := reopened.Search(ctx, []float32{0.5, 0.25}, 10, domain.MetadataFilter{})
	if err != nil {
		t.Fatalf("search after reopen: %v", err)
	}
	if len(hits) != 1 || hits[0].Chunk.ID != "a" {
		t.Fatalf("expected persisted vector to be searchable, got %+v", hits)
	}
}

func TestOpenRejectsCorruptSnapshot(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.db")

	idx, err := Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := idx.Add(context.Background(), []domain.Chunk{chunk("a", "doc1", "alpha", []float32{1, 0})}); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := idx.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("open raw: %v", err)
	}
	// Truncated blob: length is no longer a multiple of four.
	if _, err := db.Exec(`UPDATE chunks SET embedding = ? WHERE id = 'a'`, []byte{1, 2, 3}); err != nil {
		t.Fatalf("corrupt: %v", err)
	}
	if err := db.Close(); err != nil {
		t.Fatalf("close raw: %v", err)
	}

	if _, err := Open(path); !errors.Is(err, domain.ErrIndexCorruption) {
		t.Fatalf("expected ErrIndexCorruption, got %v", err)
	}
}
