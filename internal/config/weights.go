package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/kirillkom/confident-retrieval/internal/core/domain"
)

// LoadWeights reads a confidence-weight deployment profile. An empty path
// returns the documented reference weights. Profiles with weights that do
// not sum to 1.0 are rejected at startup, not silently renormalized.
func LoadWeights(path string) (domain.ConfidenceWeights, error) {
	if path == "" {
		return domain.ReferenceWeights(), nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return domain.ConfidenceWeights{}, fmt.Errorf("read weights file: %w", err)
	}

	var weights domain.ConfidenceWeights
	if err := yaml.Unmarshal(raw, &weights); err != nil {
		return domain.ConfidenceWeights{}, fmt.Errorf("parse weights file: %w", err)
	}
	if err := weights.Validate(); err != nil {
		return domain.ConfidenceWeights{}, fmt.Errorf("validate weights file %s: %w", path, err)
	}
	return weights, nil
}
