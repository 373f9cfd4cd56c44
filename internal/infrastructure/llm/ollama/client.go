package ollama

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/kirillkom/confident-retrieval/internal/core/domain"
)

// Client talks to an Ollama instance hosting both the embedding model and
// the structure-reasoning model. Collaborator calls are rate limited so a
// burst of ingestions cannot starve interactive queries.
type Client struct {
	baseURL      string
	outlineModel string
	embedModel   string
	httpClient   *http.Client
	limiter      *rate.Limiter
}

func New(baseURL, outlineModel, embedModel string, rps float64) *Client {
	if rps <= 0 {
		rps = 10
	}
	return &Client{
		baseURL:      strings.TrimRight(baseURL, "/"),
		outlineModel: outlineModel,
		embedModel:   embedModel,
		httpClient:   &http.Client{Timeout: 120 * time.Second},
		limiter:      rate.NewLimiter(rate.Limit(rps), int(rps)+1),
	}
}

type Embedder struct {
	client *Client
}

func NewEmbedder(client *Client) *Embedder {
	return &Embedder{client: client}
}

func (e *Embedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	request := map[string]any{
		"model": e.client.embedModel,
		"input": texts,
	}

	var response struct {
		Embeddings [][]float32 `json:"embeddings"`
	}
	if err := e.client.postJSON(ctx, "/api/embed", request, &response, "embed"); err != nil {
		return nil, err
	}
	if len(response.Embeddings) != len(texts) {
		return nil, fmt.Errorf("embeddings/texts mismatch: %d/%d", len(response.Embeddings), len(texts))
	}
	return response.Embeddings, nil
}

func (e *Embedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vectors) == 0 {
		return nil, fmt.Errorf("empty embedding result")
	}
	return vectors[0], nil
}

// ModelVersion keys case memory entries to one embedding space; entries are
// never matched across incompatible spaces.
func (e *Embedder) ModelVersion() string {
	return e.client.embedModel
}

// OutlineExtractor asks the reasoning model for a hierarchical outline with
// per-node confidence.
type OutlineExtractor struct {
	client *Client
}

func NewOutlineExtractor(client *Client) *OutlineExtractor {
	return &OutlineExtractor{client: client}
}

func (o *OutlineExtractor) ExtractOutline(ctx context.Context, text string) (domain.Outline, error) {
	respText, err := o.client.generateJSON(ctx, buildOutlinePrompt(text))
	if err != nil {
		return domain.Outline{}, err
	}

	var outline domain.Outline
	if err := json.Unmarshal([]byte(extractJSONObject(respText)), &outline); err != nil {
		return domain.Outline{}, fmt.Errorf("parse outline json: %w", err)
	}
	if outline.Empty() {
		return domain.Outline{}, fmt.Errorf("outline has no sections")
	}
	return outline, nil
}

func (c *Client) generateJSON(ctx context.Context, prompt string) (string, error) {
	reqBody := map[string]any{
		"model":  c.outlineModel,
		"prompt": prompt,
		"stream": false,
		"format": "json",
	}

	var response struct {
		Response string `json:"response"`
	}
	if err := c.postJSON(ctx, "/api/generate", reqBody, &response, "outline"); err != nil {
		return "", err
	}
	return strings.TrimSpace(response.Response), nil
}

func extractJSONObject(raw string) string {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start >= 0 && end > start {
		return raw[start : end+1]
	}
	return raw
}
