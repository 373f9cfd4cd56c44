package usecase

import (
	"math"
	"unicode/utf8"

	"github.com/kirillkom/confident-retrieval/internal/core/domain"
)

// Bounds for the structure heuristic's "reasonable text length" check, in
// runes. Fragments and walls of text both hint at a poorly placed chunk.
const (
	minWellFormedRunes = 40
	maxWellFormedRunes = 4000
)

// ConfidenceScorer turns one broad-stage candidate into a five-component
// confidence profile. Scoring is pure: no I/O, no shared state, safe for
// concurrent fan-out across candidates.
type ConfidenceScorer struct {
	weights    domain.ConfidenceWeights
	modelTrust float64
}

func NewConfidenceScorer(weights domain.ConfidenceWeights, modelTrust float64) *ConfidenceScorer {
	return &ConfidenceScorer{
		weights:    weights,
		modelTrust: clamp01(modelTrust),
	}
}

// component is a score that may be absent. An absent component never
// contributes optimism: it is replaced by the minimum of the present ones.
type component struct {
	value   float64
	present bool
}

func present(v float64) component { return component{value: clamp01(v), present: true} }

// Score computes the confidence profile for one candidate. Each component
// lies in [0,1]; the composite is the weighted sum and is monotonic in every
// component.
func (s *ConfidenceScorer) Score(query QueryTerms, cand domain.Candidate) domain.ConfidenceProfile {
	components := [5]component{
		s.semantic(cand),
		s.authority(cand.Chunk.Node),
		s.relevance(query, cand.Chunk.Text),
		s.structure(cand.Chunk.Node, cand.Chunk.Text),
		s.model(cand),
	}

	// Conservative floor for absent components: the minimum of what is
	// actually known about this candidate.
	floor := 1.0
	anyPresent := false
	for _, c := range components {
		if c.present {
			anyPresent = true
			if c.value < floor {
				floor = c.value
			}
		}
	}
	if !anyPresent {
		floor = 0
	}
	for i := range components {
		if !components[i].present {
			components[i].value = floor
		}
	}

	weights := [5]float64{s.weights.Semantic, s.weights.Authority, s.weights.Relevance, s.weights.Structure, s.weights.Model}
	composite := 0.0
	for i := range components {
		composite += weights[i] * components[i].value
	}

	return domain.ConfidenceProfile{
		Semantic:  components[0].value,
		Authority: components[1].value,
		Relevance: components[2].value,
		Structure: components[3].value,
		Model:     components[4].value,
		Composite: clamp01(composite),
	}
}

// semantic maps cosine similarity from [-1,1] to [0,1]. Absent when the
// candidate came from lexical retrieval.
func (s *ConfidenceScorer) semantic(cand domain.Candidate) component {
	if !cand.HasSimilarity {
		return component{}
	}
	return present((cand.RawSimilarity + 1) / 2)
}

// authority is the extraction confidence of the chunk's source node: the
// collaborator's per-node confidence, or the fixed fallback constant. Absent
// when the chunk has no node provenance.
func (s *ConfidenceScorer) authority(node domain.NodeRef) component {
	if node.NodeID == "" {
		return component{}
	}
	return present(node.ExtractionConfidence)
}

// relevance is plain query-token coverage of the chunk text.
func (s *ConfidenceScorer) relevance(query QueryTerms, text string) component {
	if len(query) == 0 {
		return component{}
	}
	return present(tokenOverlap(query, text))
}

// structure rewards chunks from well-formed hierarchy positions: attached to
// a parent, below the root, reasonably sized, and carved out by the outline
// collaborator rather than the flat fallback windows. Absent when the chunk
// has no node provenance.
func (s *ConfidenceScorer) structure(node domain.NodeRef, text string) component {
	if node.NodeID == "" {
		return component{}
	}
	score := 0.0
	if node.HasParent {
		score += 0.3
	}
	if node.Depth > 0 {
		score += 0.2
	}
	if n := utf8.RuneCountInString(text); n >= minWellFormedRunes && n <= maxWellFormedRunes {
		score += 0.3
	}
	if node.Mode == domain.ExtractionLLM {
		score += 0.2
	}
	return present(score)
}

// model reflects trust in the embedding model behind the raw similarity.
// Absent in lexical retrieval, where no model was involved.
func (s *ConfidenceScorer) model(cand domain.Candidate) component {
	if !cand.HasSimilarity {
		return component{}
	}
	return present(s.modelTrust)
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Min(1, math.Max(0, v))
}
