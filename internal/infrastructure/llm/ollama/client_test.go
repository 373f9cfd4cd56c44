package ollama

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/kirillkom/confident-retrieval/internal/core/domain"
	"github.com/kirillkom/confident-retrieval/internal/infrastructure/resilience"
)

func TestExtractOutlineParsesSections(t *testing.T) {
	var capturedPrompt string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/generate" {
			http.NotFound(w, r)
			return
		}
		var payload map[string]any
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		capturedPrompt, _ = payload["prompt"].(string)
		response := `{"title":"Doc","confidence":0.95,"sections":[{"label":"Intro","content":"hello","confidence":0.9}]}`
		_, _ = w.Write([]byte(`{"response":` + jsonString(response) + `}`))
	}))
	defer server.Close()

	client := New(server.URL, "outline", "embed", 100)
	extractor := NewOutlineExtractor(client)
	outline, err := extractor.ExtractOutline(context.Background(), "document body")
	if err != nil {
		t.Fatalf("ExtractOutline() error = %v", err)
	}
	if outline.Title != "Doc" || len(outline.Sections) != 1 {
		t.Fatalf("unexpected outline: %+v", outline)
	}
	if outline.Sections[0].Confidence != 0.9 {
		t.Fatalf("expected section confidence 0.9, got %v", outline.Sections[0].Confidence)
	}
	if !strings.Contains(capturedPrompt, "document body") {
		t.Fatalf("prompt missing document text: %s", capturedPrompt)
	}
}

func jsonString(s string) string {
	raw, _ := json.Marshal(s)
	return string(raw)
}

func TestExtractOutlineRejectsEmptySections(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"response":"{\"title\":\"Doc\",\"sections\":[]}"}`))
	}))
	defer server.Close()

	extractor := NewOutlineExtractor(New(server.URL, "outline", "embed", 100))
	_, err := extractor.ExtractOutline(context.Background(), "text")
	if err == nil {
		t.Fatalf("expected error for empty sections")
	}
}

func TestEmbedIncludesHTTPBodyInError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "model unavailable", http.StatusBadGateway)
	}))
	defer server.Close()

	embedder := NewEmbedder(New(server.URL, "outline", "embed", 100))
	_, err := embedder.Embed(context.Background(), []string{"hello"})
	if err == nil {
		t.Fatalf("expected error")
	}
	if !strings.Contains(err.Error(), "model unavailable") {
		t.Fatalf("expected response body in error, got %v", err)
	}
}

func TestEmbedRejectsCountMismatch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"embeddings":[[0.1,0.2]]}`))
	}))
	defer server.Close()

	embedder := NewEmbedder(New(server.URL, "outline", "embed", 100))
	_, err := embedder.Embed(context.Background(), []string{"a", "b"})
	if err == nil || !strings.Contains(err.Error(), "mismatch") {
		t.Fatalf("expected mismatch error, got %v", err)
	}
}

func TestResilientEmbedderWrapsCollaboratorFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "down", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	executor := resilience.NewExecutor(resilience.Config{
		RetryMaxAttempts:    2,
		RetryInitialBackoff: 1,
		RetryMaxBackoff:     1,
		RetryMultiplier:     2,
		BreakerEnabled:      false,
	})
	embedder := NewResilientEmbedder(NewEmbedder(New(server.URL, "outline", "embed", 100)), executor)

	_, err := embedder.EmbedQuery(context.Background(), "q")
	if err == nil {
		t.Fatalf("expected error")
	}
	if !domain.IsKind(err, domain.ErrCollaboratorUnavailable) {
		t.Fatalf("expected ErrCollaboratorUnavailable, got %v", err)
	}
}
