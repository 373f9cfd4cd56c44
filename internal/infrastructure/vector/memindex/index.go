package memindex

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/kirillkom/confident-retrieval/internal/core/domain"
)

// Index is the in-process vector index. Readers work against immutable
// snapshots published through an atomic pointer, so searches never block and
// never observe torn state; writers serialize on a mutex and write through
// to the SQLite snapshot before publishing.
type Index struct {
	mu    sync.Mutex
	snap  atomic.Pointer[snapshot]
	store *store // nil for a purely ephemeral index
}

type entry struct {
	chunk  domain.Chunk
	seq    int64
	norm   float64
	tokens map[string]struct{}
}

type snapshot struct {
	entries []entry // insertion order
	byID    map[string]int
	dim     int
	nextSeq int64
}

func emptySnapshot() *snapshot {
	return &snapshot{byID: map[string]int{}}
}

// New returns an ephemeral index with no durability. Used in tests and as a
// building block for Open.
func New() *Index {
	idx := &Index{}
	idx.snap.Store(emptySnapshot())
	return idx
}

// Open loads (or creates) a durable index at path. A malformed snapshot is
// fatal: the operator gets ErrIndexCorruption, never a silently empty index.
func Open(path string) (*Index, error) {
	st, err := openStore(path)
	if err != nil {
		return nil, err
	}
	snap, err := st.load()
	if err != nil {
		st.close()
		return nil, err
	}
	idx := &Index{store: st}
	idx.snap.Store(snap)
	return idx, nil
}

func (i *Index) Close() error {
	if i.store == nil {
		return nil
	}
	return i.store.close()
}

func (i *Index) ReplaceDocument(ctx context.Context, documentID string, chunks []domain.Chunk) error {
	if documentID == "" {
		return domain.WrapError(domain.ErrInvalidInput, "replace document", fmt.Errorf("empty document id"))
	}
	i.mu.Lock()
	defer i.mu.Unlock()

	cur := i.snap.Load()
	next := &snapshot{
		entries: make([]entry, 0, len(cur.entries)+len(chunks)),
		byID:    make(map[string]int, len(cur.byID)+len(chunks)),
		dim:     cur.dim,
		nextSeq: cur.nextSeq,
	}
	for _, e := range cur.entries {
		if e.chunk.DocumentID == documentID {
			continue
		}
		next.byID[e.chunk.ID] = len(next.entries)
		next.entries = append(next.entries, e)
	}
	if err := appendChunks(next, chunks); err != nil {
		return err
	}

	if i.store != nil {
		if err := i.store.replaceDocument(ctx, documentID, tailEntries(next, len(chunks))); err != nil {
			return err
		}
	}
	i.snap.Store(next)
	return nil
}

func (i *Index) Add(ctx context.Context, chunks []domain.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	i.mu.Lock()
	defer i.mu.Unlock()

	cur := i.snap.Load()
	next := cloneSnapshot(cur, len(chunks))
	if err := appendChunks(next, chunks); err != nil {
		return err
	}

	if i.store != nil {
		if err := i.store.insert(ctx, tailEntries(next, len(chunks))); err != nil {
			return err
		}
	}
	i.snap.Store(next)
	return nil
}

// Reembed swaps the embedding of exactly one chunk without touching
// unrelated entries.
func (i *Index) Reembed(ctx context.Context, chunkID string, embedding []float32) error {
	if len(embedding) == 0 {
		return domain.WrapError(domain.ErrInvalidInput, "reembed", fmt.Errorf("empty embedding"))
	}
	i.mu.Lock()
	defer i.mu.Unlock()

	cur := i.snap.Load()
	pos, ok := cur.byID[chunkID]
	if !ok {
		return domain.WrapError(domain.ErrChunkNotFound, "reembed", fmt.Errorf("chunk %s", chunkID))
	}
	if cur.dim != 0 && len(embedding) != cur.dim {
		return domain.WrapError(domain.ErrInvalidInput, "reembed",
			fmt.Errorf("embedding dim %d, index dim %d", len(embedding), cur.dim))
	}

	next := cloneSnapshot(cur, 0)
	e := next.entries[pos]
	e.chunk.Embedding = append([]float32(nil), embedding...)
	e.norm = vectorNorm(e.chunk.Embedding)
	next.entries[pos] = e
	if next.dim == 0 {
		next.dim = len(embedding)
	}

	if i.store != nil {
		if err := i.store.updateEmbedding(ctx, chunkID, e.chunk.Embedding); err != nil {
			return err
		}
	}
	i.snap.Store(next)
	return nil
}

func (i *Index) GetChunk(_ context.Context, chunkID string) (domain.Chunk, error) {
	snap := i.snap.Load()
	pos, ok := snap.byID[chunkID]
	if !ok {
		return domain.Chunk{}, domain.WrapError(domain.ErrChunkNotFound, "get chunk", fmt.Errorf("chunk %s", chunkID))
	}
	return snap.entries[pos].chunk, nil
}

// Search returns up to k candidates ordered by descending cosine similarity;
// ties break by insertion order. Chunks without embeddings are only
// reachable through SearchLexical.
func (i *Index) Search(ctx context.Context, queryVector []float32, k int, filter domain.MetadataFilter) ([]domain.Candidate, error) {
	if len(queryVector) == 0 {
		return nil, domain.WrapError(domain.ErrInvalidQuery, "search", fmt.Errorf("empty query vector"))
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	snap := i.snap.Load()
	if snap.dim != 0 && len(queryVector) != snap.dim {
		return nil, domain.WrapError(domain.ErrInvalidQuery, "search",
			fmt.Errorf("query dim %d, index dim %d", len(queryVector), snap.dim))
	}

	queryNorm := vectorNorm(queryVector)
	type scored struct {
		pos int
		sim float64
	}
	hits := make([]scored, 0, len(snap.entries))
	for pos, e := range snap.entries {
		if len(e.chunk.Embedding) == 0 {
			continue
		}
		if !filter.Matches(e.chunk.Metadata) {
			continue
		}
		hits = append(hits, scored{pos: pos, sim: cosine(queryVector, queryNorm, e.chunk.Embedding, e.norm)})
	}

	sort.SliceStable(hits, func(a, b int) bool {
		if hits[a].sim != hits[b].sim {
			return hits[a].sim > hits[b].sim
		}
		return snap.entries[hits[a].pos].seq < snap.entries[hits[b].pos].seq
	})
	if k > 0 && len(hits) > k {
		hits = hits[:k]
	}

	out := make([]domain.Candidate, 0, len(hits))
	for _, h := range hits {
		out = append(out, domain.Candidate{
			Chunk:         snap.entries[h.pos].chunk,
			RawSimilarity: h.sim,
			HasSimilarity: true,
		})
	}
	return out, nil
}

// SearchLexical ranks by query-token overlap. It is the degraded path when
// the embedding collaborator is unavailable, and the only path to chunks
// indexed without vectors.
func (i *Index) SearchLexical(ctx context.Context, queryText string, k int, filter domain.MetadataFilter) ([]domain.Candidate, error) {
	queryTokens := tokenSet(queryText)
	if len(queryTokens) == 0 {
		return nil, domain.WrapError(domain.ErrInvalidQuery, "lexical search", fmt.Errorf("no query tokens"))
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	snap := i.snap.Load()

	type scored struct {
		pos     int
		overlap float64
	}
	hits := make([]scored, 0, len(snap.entries))
	for pos, e := range snap.entries {
		if !filter.Matches(e.chunk.Metadata) {
			continue
		}
		overlap := tokenOverlap(queryTokens, e.tokens)
		if overlap <= 0 {
			continue
		}
		hits = append(hits, scored{pos: pos, overlap: overlap})
	}

	sort.SliceStable(hits, func(a, b int) bool {
		if hits[a].overlap != hits[b].overlap {
			return hits[a].overlap > hits[b].overlap
		}
		return snap.entries[hits[a].pos].seq < snap.entries[hits[b].pos].seq
	})
	if k > 0 && len(hits) > k {
		hits = hits[:k]
	}

	out := make([]domain.Candidate, 0, len(hits))
	for _, h := range hits {
		out = append(out, domain.Candidate{Chunk: snap.entries[h.pos].chunk})
	}
	return out, nil
}

func cloneSnapshot(cur *snapshot, extra int) *snapshot {
	next := &snapshot{
		entries: make([]entry, len(cur.entries), len(cur.entries)+extra),
		byID:    make(map[string]int, len(cur.byID)+extra),
		dim:     cur.dim,
		nextSeq: cur.nextSeq,
	}
	copy(next.entries, cur.entries)
	for id, pos := range cur.byID {
		next.byID[id] = pos
	}
	return next
}

func appendChunks(snap *snapshot, chunks []domain.Chunk) error {
	for _, chunk := range chunks {
		if chunk.ID == "" {
			return domain.WrapError(domain.ErrInvalidInput, "index chunk", fmt.Errorf("empty chunk id"))
		}
		if _, dup := snap.byID[chunk.ID]; dup {
			return domain.WrapError(domain.ErrInvalidInput, "index chunk", fmt.Errorf("duplicate chunk id %s", chunk.ID))
		}
		if len(chunk.Embedding) > 0 {
			if snap.dim == 0 {
				snap.dim = len(chunk.Embedding)
			} else if len(chunk.Embedding) != snap.dim {
				return domain.WrapError(domain.ErrInvalidInput, "index chunk",
					fmt.Errorf("chunk %s embedding dim %d, index dim %d", chunk.ID, len(chunk.Embedding), snap.dim))
			}
		}
		c := chunk
		c.Embedding = append([]float32(nil), chunk.Embedding...)
		snap.byID[c.ID] = len(snap.entries)
		snap.entries = append(snap.entries, entry{
			chunk:  c,
			seq:    snap.nextSeq,
			norm:   vectorNorm(c.Embedding),
			tokens: tokenSet(c.Text),
		})
		snap.nextSeq++
	}
	return nil
}

func tailEntries(snap *snapshot, n int) []entry {
	if n <= 0 {
		return nil
	}
	return snap.entries[len(snap.entries)-n:]
}

func vectorNorm(v []float32) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}

func cosine(q []float32, qNorm float64, v []float32, vNorm float64) float64 {
	if qNorm == 0 || vNorm == 0 {
		return 0
	}
	var dot float64
	for i := range q {
		dot += float64(q[i]) * float64(v[i])
	}
	return dot / (qNorm * vNorm)
}
