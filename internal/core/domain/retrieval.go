package domain

import "time"

const (
	// DefaultTopK is the broad-stage candidate count: intentionally large
	// and inclusive, precision is deferred to confidence scoring.
	DefaultTopK = 100
	// DefaultConfidenceThreshold gates which results are recorded and
	// marked trustworthy. A runtime parameter; callers may override per
	// domain.
	DefaultConfidenceThreshold = 0.80
)

// QueryRequest is one retrieval request against the orchestrator.
type QueryRequest struct {
	Text                string         `json:"query"`
	TopK                int            `json:"top_k,omitempty"`
	ConfidenceThreshold float64        `json:"confidence_threshold,omitempty"`
	Filter              MetadataFilter `json:"filters"`
}

// Normalize fills defaults in place.
func (r *QueryRequest) Normalize() {
	if r.TopK <= 0 {
		r.TopK = DefaultTopK
	}
	if r.ConfidenceThreshold <= 0 {
		r.ConfidenceThreshold = DefaultConfidenceThreshold
	}
}

// MetadataFilter narrows the candidate set before nearest-neighbor search.
// Zero-valued fields do not constrain.
type MetadataFilter struct {
	EffectiveFrom *time.Time `json:"effective_from,omitempty"`
	EffectiveTo   *time.Time `json:"effective_to,omitempty"`
	Version       string     `json:"version,omitempty"`
	SourceType    string     `json:"source_type,omitempty"`
	IsArchived    *bool      `json:"is_archived,omitempty"`
}

func (f MetadataFilter) Validate() error {
	if f.EffectiveFrom != nil && f.EffectiveTo != nil && f.EffectiveFrom.After(*f.EffectiveTo) {
		return WrapError(ErrInvalidQuery, "validate filter", errEffectiveRange)
	}
	return nil
}

// Matches reports whether chunk metadata satisfies the filter.
func (f MetadataFilter) Matches(m ChunkMetadata) bool {
	if f.Version != "" && f.Version != m.Version {
		return false
	}
	if f.SourceType != "" && f.SourceType != m.SourceType {
		return false
	}
	if f.IsArchived != nil && *f.IsArchived != m.IsArchived {
		return false
	}
	if f.EffectiveFrom != nil {
		if m.EffectiveDate == nil || m.EffectiveDate.Before(*f.EffectiveFrom) {
			return false
		}
	}
	if f.EffectiveTo != nil {
		if m.EffectiveDate == nil || m.EffectiveDate.After(*f.EffectiveTo) {
			return false
		}
	}
	return true
}

// Candidate is one broad-stage hit: a chunk plus its raw similarity to the
// query. RawSimilarity is meaningless (zero) in lexical-only retrieval.
type Candidate struct {
	Chunk         Chunk
	RawSimilarity float64
	HasSimilarity bool
}

// SearchResult is the deep-stage output for one candidate. Ephemeral:
// created per query and discarded after the response, except that gated
// results feed a CaseMemoryEntry.
type SearchResult struct {
	ChunkID       string            `json:"chunk_id"`
	DocumentID    string            `json:"document_id"`
	Rank          int               `json:"rank"`
	Text          string            `json:"text"`
	RawSimilarity float64           `json:"raw_similarity"`
	Confidence    ConfidenceProfile `json:"confidence"`
	PassedGate    bool              `json:"passed_gate"`
}

// RetrievalMode tags whether a response came from the real semantic path or
// the degraded lexical fallback. Callers must be able to tell the two apart.
type RetrievalMode string

const (
	RetrievalSemantic RetrievalMode = "semantic"
	RetrievalLexical  RetrievalMode = "lexical_fallback"
)

// QueryResult is the full ranked, annotated response for one query.
type QueryResult struct {
	Mode    RetrievalMode  `json:"mode"`
	Results []SearchResult `json:"results"`
}
