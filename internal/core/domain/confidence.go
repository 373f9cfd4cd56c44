package domain

import (
	"fmt"
	"math"
)

// ConfidenceWeights is the fixed weight vector combining the five confidence
// components into the composite. Weights must sum to 1.0.
type ConfidenceWeights struct {
	Semantic  float64 `yaml:"semantic" json:"semantic"`
	Authority float64 `yaml:"authority" json:"authority"`
	Relevance float64 `yaml:"relevance" json:"relevance"`
	Structure float64 `yaml:"structure" json:"structure"`
	Model     float64 `yaml:"model" json:"model"`
}

// ReferenceWeights returns the documented default weight vector.
func ReferenceWeights() ConfidenceWeights {
	return ConfidenceWeights{
		Semantic:  0.35,
		Authority: 0.25,
		Relevance: 0.20,
		Structure: 0.15,
		Model:     0.05,
	}
}

const weightSumTolerance = 1e-9

func (w ConfidenceWeights) Validate() error {
	for name, v := range map[string]float64{
		"semantic":  w.Semantic,
		"authority": w.Authority,
		"relevance": w.Relevance,
		"structure": w.Structure,
		"model":     w.Model,
	} {
		if v < 0 || v > 1 {
			return fmt.Errorf("weight %s=%v out of [0,1]", name, v)
		}
	}
	sum := w.Semantic + w.Authority + w.Relevance + w.Structure + w.Model
	if math.Abs(sum-1.0) > weightSumTolerance {
		return fmt.Errorf("weights sum to %v, want 1.0", sum)
	}
	return nil
}

// ConfidenceProfile is the per-candidate 5-factor confidence breakdown.
// Every component and the composite lie in [0,1].
type ConfidenceProfile struct {
	Semantic  float64 `json:"semantic"`
	Authority float64 `json:"authority"`
	Relevance float64 `json:"relevance"`
	Structure float64 `json:"structure"`
	Model     float64 `json:"model"`
	Composite float64 `json:"composite"`
}
