package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/kirillkom/confident-retrieval/internal/core/domain"
	"github.com/kirillkom/confident-retrieval/internal/core/ports"
)

// QueryUseCase is the broad-then-deep retrieval orchestrator. The broad
// stage pulls a deliberately large candidate set from the index; the deep
// stage scores every candidate on five confidence components and ranks by
// the composite, never by raw similarity. Queries whose best result clears
// the gate are recorded in case memory.
type QueryUseCase struct {
	embedder ports.Embedder
	index    ports.VectorIndex
	memory   ports.CaseMemoryStore
	scorer   *ConfidenceScorer
	logger   *slog.Logger
}

func NewQueryUseCase(
	embedder ports.Embedder,
	index ports.VectorIndex,
	memory ports.CaseMemoryStore,
	scorer *ConfidenceScorer,
	logger *slog.Logger,
) *QueryUseCase {
	return &QueryUseCase{
		embedder: embedder,
		index:    index,
		memory:   memory,
		scorer:   scorer,
		logger:   logger,
	}
}

func (uc *QueryUseCase) Search(ctx context.Context, req domain.QueryRequest) (*domain.QueryResult, error) {
	req.Normalize()
	if len(TermsOf(req.Text)) == 0 {
		return nil, domain.WrapError(domain.ErrInvalidQuery, "search", errors.New("query has no searchable terms"))
	}
	if err := req.Filter.Validate(); err != nil {
		return nil, err
	}

	candidates, mode, err := uc.broadStage(ctx, req)
	if err != nil {
		return nil, err
	}

	results := uc.deepStage(req, candidates)

	if mode == domain.RetrievalSemantic {
		uc.recordCaseMemory(ctx, req, results)
	}

	return &domain.QueryResult{Mode: mode, Results: results}, nil
}

// broadStage embeds the query and runs the approximate search. An
// unavailable embedding collaborator degrades to lexical retrieval; it never
// fails the query.
func (uc *QueryUseCase) broadStage(ctx context.Context, req domain.QueryRequest) ([]domain.Candidate, domain.RetrievalMode, error) {
	queryVector, err := uc.embedder.EmbedQuery(ctx, req.Text)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, "", err
		}
		uc.logger.Warn("embedding unavailable, using lexical retrieval", "error", err)
		candidates, lexErr := uc.index.SearchLexical(ctx, req.Text, req.TopK, req.Filter)
		if lexErr != nil {
			return nil, "", fmt.Errorf("lexical search: %w", lexErr)
		}
		return candidates, domain.RetrievalLexical, nil
	}

	candidates, err := uc.index.Search(ctx, queryVector, req.TopK, req.Filter)
	if err != nil {
		return nil, "", fmt.Errorf("search index: %w", err)
	}
	return candidates, domain.RetrievalSemantic, nil
}

// deepStage scores all candidates concurrently, then ranks by composite
// confidence. Ties keep the broad-stage order.
func (uc *QueryUseCase) deepStage(req domain.QueryRequest, candidates []domain.Candidate) []domain.SearchResult {
	terms := TermsOf(req.Text)
	results := make([]domain.SearchResult, len(candidates))

	var wg sync.WaitGroup
	for i := range candidates {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			profile := uc.scorer.Score(terms, candidates[i])
			results[i] = domain.SearchResult{
				ChunkID:       candidates[i].Chunk.ID,
				DocumentID:    candidates[i].Chunk.DocumentID,
				Text:          candidates[i].Chunk.Text,
				RawSimilarity: candidates[i].RawSimilarity,
				Confidence:    profile,
				PassedGate:    profile.Composite >= req.ConfidenceThreshold,
			}
		}(i)
	}
	wg.Wait()

	sort.SliceStable(results, func(a, b int) bool {
		return results[a].Confidence.Composite > results[b].Confidence.Composite
	})
	for i := range results {
		results[i].Rank = i + 1
	}
	return results
}

// recordCaseMemory appends an entry when at least one result cleared the
// gate. Recording is best-effort: a store failure must never fail the query.
func (uc *QueryUseCase) recordCaseMemory(ctx context.Context, req domain.QueryRequest, results []domain.SearchResult) {
	var passed []string
	best := 0.0
	for _, r := range results {
		if !r.PassedGate {
			continue
		}
		passed = append(passed, r.ChunkID)
		if r.Confidence.Composite > best {
			best = r.Confidence.Composite
		}
	}
	if len(passed) == 0 {
		return
	}

	entry := domain.CaseMemoryEntry{
		QuerySignature:      QuerySignature(req.Text, uc.embedder.ModelVersion()),
		ResultIDs:           passed,
		CompositeConfidence: best,
		EmbedModelVersion:   uc.embedder.ModelVersion(),
		CreatedAt:           time.Now().UTC(),
	}
	if err := uc.memory.Record(ctx, entry); err != nil {
		uc.logger.Warn("case memory record failed", "signature", entry.QuerySignature, "error", err)
	}
}
