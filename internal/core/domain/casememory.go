package domain

import "time"

// CaseMemoryEntry records a query whose best result cleared the confidence
// gate. Entries are append-only and never mutated; eviction policy is owned
// by the operator.
type CaseMemoryEntry struct {
	QuerySignature      string    `json:"query_signature"`
	ResultIDs           []string  `json:"result_ids"`
	CompositeConfidence float64   `json:"composite_confidence"`
	EmbedModelVersion   string    `json:"embed_model_version"`
	CreatedAt           time.Time `json:"created_at"`
}
