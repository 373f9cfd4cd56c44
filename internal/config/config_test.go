package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/kirillkom/confident-retrieval/internal/core/domain"
)

func TestLoadIncludesRetrievalDefaults(t *testing.T) {
	t.Setenv("SEARCH_TOP_K", "")
	t.Setenv("CONFIDENCE_THRESHOLD", "")
	t.Setenv("MODEL_TRUST", "")
	t.Setenv("FALLBACK_WINDOW_SIZE", "")
	t.Setenv("VECTOR_BACKEND", "")

	cfg := Load()
	if cfg.SearchTopK != 100 {
		t.Fatalf("expected default top k 100, got %d", cfg.SearchTopK)
	}
	if cfg.ConfidenceThreshold != 0.80 {
		t.Fatalf("expected default threshold 0.80, got %v", cfg.ConfidenceThreshold)
	}
	if cfg.ModelTrust != 0.90 {
		t.Fatalf("expected default model trust 0.90, got %v", cfg.ModelTrust)
	}
	if cfg.FallbackWindowSize != 1500 {
		t.Fatalf("expected default fallback window 1500, got %d", cfg.FallbackWindowSize)
	}
	if cfg.VectorBackend != "memory" {
		t.Fatalf("expected default vector backend memory, got %q", cfg.VectorBackend)
	}
}

func TestLoadParsesOverrides(t *testing.T) {
	t.Setenv("SEARCH_TOP_K", "50")
	t.Setenv("CONFIDENCE_THRESHOLD", "0.9")
	t.Setenv("VECTOR_BACKEND", "qdrant")
	t.Setenv("QDRANT_COLLECTION", "policies")
	t.Setenv("COLLABORATOR_RPS", "25")

	cfg := Load()
	if cfg.SearchTopK != 50 {
		t.Fatalf("expected top k 50, got %d", cfg.SearchTopK)
	}
	if cfg.ConfidenceThreshold != 0.9 {
		t.Fatalf("expected threshold 0.9, got %v", cfg.ConfidenceThreshold)
	}
	if cfg.VectorBackend != "qdrant" {
		t.Fatalf("expected vector backend qdrant, got %q", cfg.VectorBackend)
	}
	if cfg.QdrantCollection != "policies" {
		t.Fatalf("expected collection policies, got %q", cfg.QdrantCollection)
	}
	if cfg.CollaboratorRPS != 25 {
		t.Fatalf("expected collaborator rps 25, got %v", cfg.CollaboratorRPS)
	}
}

func TestLoadFallsBackOnMalformedNumbers(t *testing.T) {
	t.Setenv("SEARCH_TOP_K", "many")
	t.Setenv("CONFIDENCE_THRESHOLD", "high")

	cfg := Load()
	if cfg.SearchTopK != 100 {
		t.Fatalf("expected fallback top k 100, got %d", cfg.SearchTopK)
	}
	if cfg.ConfidenceThreshold != 0.80 {
		t.Fatalf("expected fallback threshold 0.80, got %v", cfg.ConfidenceThreshold)
	}
}

func TestLoadWeightsEmptyPathUsesReference(t *testing.T) {
	weights, err := LoadWeights("")
	if err != nil {
		t.Fatalf("LoadWeights() error = %v", err)
	}
	if weights != domain.ReferenceWeights() {
		t.Fatalf("expected reference weights, got %+v", weights)
	}
}

func TestLoadWeightsParsesProfile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "weights.yaml")
	profile := "semantic: 0.4\nauthority: 0.2\nrelevance: 0.2\nstructure: 0.15\nmodel: 0.05\n"
	if err := os.WriteFile(path, []byte(profile), 0o600); err != nil {
		t.Fatalf("write profile: %v", err)
	}

	weights, err := LoadWeights(path)
	if err != nil {
		t.Fatalf("LoadWeights() error = %v", err)
	}
	if weights.Semantic != 0.4 || weights.Authority != 0.2 {
		t.Fatalf("unexpected weights: %+v", weights)
	}
}

func TestLoadWeightsRejectsBadSum(t *testing.T) {
	path := filepath.Join(t.TempDir(), "weights.yaml")
	profile := "semantic: 0.9\nauthority: 0.9\nrelevance: 0\nstructure: 0\nmodel: 0\n"
	if err := os.WriteFile(path, []byte(profile), 0o600); err != nil {
		t.Fatalf("write profile: %v", err)
	}

	if _, err := LoadWeights(path); err == nil {
		t.Fatal("expected weights that do not sum to 1.0 to be rejected")
	}
}
