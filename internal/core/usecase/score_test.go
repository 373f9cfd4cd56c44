package usecase

import (
	"math"
	"testing"
	"time"

	"github.com/kirillkom/confident-retrieval/internal/core/domain"
)

func fullCandidate(similarity float64) domain.Candidate {
	effective := time.Now().Add(-24 * time.Hour)
	return domain.Candidate{
		Chunk: domain.Chunk{
			ID:         "chunk-1",
			DocumentID: "doc-1",
			Text:       "The termination clause requires ninety days of written notice before the effective date.",
			Metadata:   domain.ChunkMetadata{Version: "v2", SourceType: "contract", EffectiveDate: &effective},
			Node:       domain.NodeRef{NodeID: "node-1", Depth: 2, HasParent: true, ExtractionConfidence: 0.9, Mode: domain.ExtractionLLM},
		},
		RawSimilarity: similarity,
		HasSimilarity: true,
	}
}

func TestScoreCompositeIsWeightedSum(t *testing.T) {
	scorer := NewConfidenceScorer(domain.ReferenceWeights(), 0.9)
	profile := scorer.Score(TermsOf("termination notice"), fullCandidate(0.8))

	w := domain.ReferenceWeights()
	want := w.Semantic*profile.Semantic +
		w.Authority*profile.Authority +
		w.Relevance*profile.Relevance +
		w.Structure*profile.Structure +
		w.Model*profile.Model
	if math.Abs(profile.Composite-want) > 1e-12 {
		t.Fatalf("composite %f, want weighted sum %f", profile.Composite, want)
	}
}

func TestScoreComponentsStayInUnitInterval(t *testing.T) {
	scorer := NewConfidenceScorer(domain.ReferenceWeights(), 1.5) // out-of-range trust clamps

	for _, sim := range []float64{-1.5, -1, 0, 1, 1.5} {
		profile := scorer.Score(TermsOf("termination"), fullCandidate(sim))
		for name, v := range map[string]float64{
			"semantic": profile.Semantic, "authority": profile.Authority, "relevance": profile.Relevance,
			"structure": profile.Structure, "model": profile.Model, "composite": profile.Composite,
		} {
			if v < 0 || v > 1 {
				t.Fatalf("sim=%f: %s=%f out of [0,1]", sim, name, v)
			}
		}
	}
}

func TestScoreMonotonicInSimilarity(t *testing.T) {
	scorer := NewConfidenceScorer(domain.ReferenceWeights(), 0.9)
	terms := TermsOf("termination notice")

	low := scorer.Score(terms, fullCandidate(0.2))
	high := scorer.Score(terms, fullCandidate(0.8))
	if high.Composite <= low.Composite {
		t.Fatalf("composite must grow with similarity: %f vs %f", high.Composite, low.Composite)
	}
}

func TestScoreMonotonicInExtractionConfidence(t *testing.T) {
	scorer := NewConfidenceScorer(domain.ReferenceWeights(), 0.9)
	terms := TermsOf("termination notice")

	weak := fullCandidate(0.5)
	weak.Chunk.Node.ExtractionConfidence = domain.FallbackConfidence
	strong := fullCandidate(0.5)
	strong.Chunk.Node.ExtractionConfidence = 0.95

	if scorer.Score(terms, strong).Composite <= scorer.Score(terms, weak).Composite {
		t.Fatal("composite must grow with extraction confidence")
	}
}

func TestScoreMissingComponentsTakeConservativeMinimum(t *testing.T) {
	scorer := NewConfidenceScorer(domain.ReferenceWeights(), 0.9)

	// Lexical candidate without metadata or node: only relevance is known.
	cand := domain.Candidate{
		Chunk: domain.Chunk{ID: "chunk-1", Text: "termination clause"},
	}
	profile := scorer.Score(TermsOf("termination alpha beta gamma"), cand)

	if profile.Relevance != 0.25 {
		t.Fatalf("relevance = %f, want 0.25", profile.Relevance)
	}
	// All absent components must equal the minimum present one, never more.
	for name, v := range map[string]float64{
		"semantic": profile.Semantic, "authority": profile.Authority,
		"structure": profile.Structure, "model": profile.Model,
	} {
		if v != profile.Relevance {
			t.Fatalf("absent %s = %f, want conservative %f", name, v, profile.Relevance)
		}
	}
	if profile.Composite > profile.Relevance+1e-12 {
		t.Fatalf("composite %f must not exceed the only known component %f", profile.Composite, profile.Relevance)
	}
}

func TestScoreAuthorityIsNodeExtractionConfidence(t *testing.T) {
	scorer := NewConfidenceScorer(domain.ReferenceWeights(), 0.9)
	terms := TermsOf("termination notice")

	// Rich chunk metadata must not inflate authority past the fallback
	// constant: authority tracks how the node was extracted, nothing else.
	effective := time.Now().Add(-24 * time.Hour)
	cand := fullCandidate(0.6)
	cand.Chunk.Metadata = domain.ChunkMetadata{Version: "v3", SourceType: "official", EffectiveDate: &effective}
	cand.Chunk.Node.ExtractionConfidence = domain.FallbackConfidence
	cand.Chunk.Node.Mode = domain.ExtractionFallback

	profile := scorer.Score(terms, cand)
	if profile.Authority != domain.FallbackConfidence {
		t.Fatalf("authority = %f, want node extraction confidence %f", profile.Authority, domain.FallbackConfidence)
	}

	llm := fullCandidate(0.6)
	llm.Chunk.Node.ExtractionConfidence = 0.9
	if got := scorer.Score(terms, llm).Authority; got != 0.9 {
		t.Fatalf("authority = %f, want 0.9", got)
	}
}

func TestScoreStructureRewardsWellFormedHierarchy(t *testing.T) {
	scorer := NewConfidenceScorer(domain.ReferenceWeights(), 0.9)
	terms := TermsOf("termination notice")

	wellFormed := fullCandidate(0.6) // parented, depth 2, sized text, llm mode
	fallbackFlat := fullCandidate(0.6)
	fallbackFlat.Chunk.Node.Mode = domain.ExtractionFallback
	orphan := fullCandidate(0.6)
	orphan.Chunk.Node.HasParent = false
	orphan.Chunk.Node.Depth = 0
	fragment := fullCandidate(0.6)
	fragment.Chunk.Text = "notice"

	wellFormedScore := scorer.Score(terms, wellFormed).Structure
	if wellFormedScore != 1.0 {
		t.Fatalf("well-formed structure = %f, want 1.0", wellFormedScore)
	}
	for name, cand := range map[string]domain.Candidate{
		"fallback": fallbackFlat,
		"orphan":   orphan,
		"fragment": fragment,
	} {
		if got := scorer.Score(terms, cand).Structure; got >= wellFormedScore {
			t.Fatalf("%s structure = %f, must be below well-formed %f", name, got, wellFormedScore)
		}
	}
}
