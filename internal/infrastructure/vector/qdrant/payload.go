package qdrant

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/kirillkom/confident-retrieval/internal/core/domain"
)

// payloadFromChunk flattens chunk metadata into filterable payload keys. The
// effective date is duplicated as unix seconds so range conditions work
// without a datetime index.
func payloadFromChunk(chunk domain.Chunk) (map[string]any, error) {
	nodeJSON, err := json.Marshal(chunk.Node)
	if err != nil {
		return nil, fmt.Errorf("marshal node ref: %w", err)
	}
	payload := map[string]any{
		"doc_id":      chunk.DocumentID,
		"text":        chunk.Text,
		"version":     chunk.Metadata.Version,
		"source_type": chunk.Metadata.SourceType,
		"is_archived": chunk.Metadata.IsArchived,
		"node":        string(nodeJSON),
	}
	if chunk.Metadata.EffectiveDate != nil {
		payload["effective_date"] = chunk.Metadata.EffectiveDate.UTC().Format(time.RFC3339)
		payload["effective_date_unix"] = chunk.Metadata.EffectiveDate.Unix()
	}
	return payload, nil
}

func chunkFromPayload(id string, payload map[string]any) (domain.Chunk, error) {
	chunk := domain.Chunk{
		ID:         id,
		DocumentID: getStringPayload(payload, "doc_id"),
		Text:       getStringPayload(payload, "text"),
		Metadata: domain.ChunkMetadata{
			Version:    getStringPayload(payload, "version"),
			SourceType: getStringPayload(payload, "source_type"),
		},
	}
	if archived, ok := payload["is_archived"].(bool); ok {
		chunk.Metadata.IsArchived = archived
	}
	if raw := getStringPayload(payload, "effective_date"); raw != "" {
		ts, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return domain.Chunk{}, fmt.Errorf("parse effective date %q: %w", raw, err)
		}
		chunk.Metadata.EffectiveDate = &ts
	}
	if nodeJSON := getStringPayload(payload, "node"); nodeJSON != "" {
		if err := json.Unmarshal([]byte(nodeJSON), &chunk.Node); err != nil {
			return domain.Chunk{}, fmt.Errorf("unmarshal node ref: %w", err)
		}
	}
	return chunk, nil
}

func filterConditions(filter domain.MetadataFilter) []map[string]any {
	var must []map[string]any
	if filter.Version != "" {
		must = append(must, map[string]any{
			"key": "version", "match": map[string]any{"value": filter.Version},
		})
	}
	if filter.SourceType != "" {
		must = append(must, map[string]any{
			"key": "source_type", "match": map[string]any{"value": filter.SourceType},
		})
	}
	if filter.IsArchived != nil {
		must = append(must, map[string]any{
			"key": "is_archived", "match": map[string]any{"value": *filter.IsArchived},
		})
	}
	if filter.EffectiveFrom != nil || filter.EffectiveTo != nil {
		rangeCond := map[string]any{}
		if filter.EffectiveFrom != nil {
			rangeCond["gte"] = filter.EffectiveFrom.Unix()
		}
		if filter.EffectiveTo != nil {
			rangeCond["lte"] = filter.EffectiveTo.Unix()
		}
		must = append(must, map[string]any{"key": "effective_date_unix", "range": rangeCond})
	}
	return must
}

func denseFromVectorMap(vector map[string]any) []float32 {
	raw, ok := vector[denseVectorName].([]any)
	if !ok {
		return nil
	}
	out := make([]float32, 0, len(raw))
	for _, v := range raw {
		f, ok := v.(float64)
		if !ok {
			return nil
		}
		out = append(out, float32(f))
	}
	return out
}

func getStringPayload(payload map[string]any, key string) string {
	v, ok := payload[key]
	if !ok {
		return ""
	}
	s, ok := v.(string)
	if ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}
