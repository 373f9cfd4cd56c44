package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/kirillkom/confident-retrieval/internal/core/domain"
)

// fallbackDenseSize is used when the collection has to be created before the
// first embedded batch arrives (degraded ingest can precede any dense
// vector). 768 matches nomic-embed-text.
const fallbackDenseSize = 768

const (
	denseVectorName  = "dense"
	sparseVectorName = "lexical"
)

// Client is a Qdrant-backed VectorIndex over the REST API. Each chunk is one
// point carrying a dense vector (when embedded), a hashed sparse vector for
// lexical retrieval, and the chunk payload.
type Client struct {
	baseURL    string
	collection string
	httpClient *http.Client

	ensureMu          sync.Mutex
	ensuredCollection bool
	ensuredVectorSize int
}

func New(baseURL, collection string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		collection: collection,
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
}

func (c *Client) ReplaceDocument(ctx context.Context, documentID string, chunks []domain.Chunk) error {
	if documentID == "" {
		return domain.WrapError(domain.ErrInvalidInput, "replace document", fmt.Errorf("empty document id"))
	}
	if err := c.ensureCollection(ctx, denseSize(chunks)); err != nil {
		return err
	}
	if err := c.deleteByDocument(ctx, documentID); err != nil {
		return err
	}
	return c.upsert(ctx, chunks)
}

func (c *Client) Add(ctx context.Context, chunks []domain.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	if err := c.ensureCollection(ctx, denseSize(chunks)); err != nil {
		return err
	}
	return c.upsert(ctx, chunks)
}

func (c *Client) Reembed(ctx context.Context, chunkID string, embedding []float32) error {
	reqBody := map[string]any{
		"points": []map[string]any{
			{
				"id":     chunkID,
				"vector": map[string]any{denseVectorName: embedding},
			},
		},
	}
	url := fmt.Sprintf("%s/collections/%s/points/vectors?wait=true", c.baseURL, c.collection)
	return c.do(ctx, http.MethodPut, url, reqBody, nil)
}

func (c *Client) GetChunk(ctx context.Context, chunkID string) (domain.Chunk, error) {
	url := fmt.Sprintf("%s/collections/%s/points/%s", c.baseURL, c.collection, chunkID)
	var resp struct {
		Result *struct {
			Payload map[string]any `json:"payload"`
			Vector  map[string]any `json:"vector"`
		} `json:"result"`
	}
	if err := c.do(ctx, http.MethodGet, url, nil, &resp); err != nil {
		if isNotFoundStatus(err) {
			return domain.Chunk{}, domain.WrapError(domain.ErrChunkNotFound, "get chunk", fmt.Errorf("chunk %s", chunkID))
		}
		return domain.Chunk{}, err
	}
	if resp.Result == nil {
		return domain.Chunk{}, domain.WrapError(domain.ErrChunkNotFound, "get chunk", fmt.Errorf("chunk %s", chunkID))
	}
	chunk, err := chunkFromPayload(chunkID, resp.Result.Payload)
	if err != nil {
		return domain.Chunk{}, err
	}
	chunk.Embedding = denseFromVectorMap(resp.Result.Vector)
	return chunk, nil
}

func (c *Client) Search(ctx context.Context, queryVector []float32, k int, filter domain.MetadataFilter) ([]domain.Candidate, error) {
	if len(queryVector) == 0 {
		return nil, domain.WrapError(domain.ErrInvalidQuery, "search", fmt.Errorf("empty query vector"))
	}
	reqBody := map[string]any{
		"vector":       map[string]any{"name": denseVectorName, "vector": queryVector},
		"limit":        k,
		"with_payload": true,
	}
	return c.searchPoints(ctx, reqBody, filter, true)
}

func (c *Client) SearchLexical(ctx context.Context, queryText string, k int, filter domain.MetadataFilter) ([]domain.Candidate, error) {
	sparse := encodeSparseQuery(queryText)
	if len(sparse.Indices) == 0 {
		return nil, domain.WrapError(domain.ErrInvalidQuery, "lexical search", fmt.Errorf("no query tokens"))
	}
	reqBody := map[string]any{
		"vector":       map[string]any{"name": sparseVectorName, "vector": sparse},
		"limit":        k,
		"with_payload": true,
	}
	return c.searchPoints(ctx, reqBody, filter, false)
}

func (c *Client) searchPoints(ctx context.Context, reqBody map[string]any, filter domain.MetadataFilter, semantic bool) ([]domain.Candidate, error) {
	if conditions := filterConditions(filter); len(conditions) > 0 {
		reqBody["filter"] = map[string]any{"must": conditions}
	}

	url := fmt.Sprintf("%s/collections/%s/points/search", c.baseURL, c.collection)
	var searchResp struct {
		Result []struct {
			ID      string         `json:"id"`
			Score   float64        `json:"score"`
			Payload map[string]any `json:"payload"`
		} `json:"result"`
	}
	if err := c.do(ctx, http.MethodPost, url, reqBody, &searchResp); err != nil {
		return nil, err
	}

	out := make([]domain.Candidate, 0, len(searchResp.Result))
	for _, r := range searchResp.Result {
		chunk, err := chunkFromPayload(r.ID, r.Payload)
		if err != nil {
			return nil, err
		}
		cand := domain.Candidate{Chunk: chunk}
		if semantic {
			cand.RawSimilarity = r.Score
			cand.HasSimilarity = true
		}
		out = append(out, cand)
	}
	return out, nil
}

func (c *Client) upsert(ctx context.Context, chunks []domain.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	type point struct {
		ID      string         `json:"id"`
		Vector  map[string]any `json:"vector"`
		Payload map[string]any `json:"payload"`
	}
	points := make([]point, 0, len(chunks))
	for _, chunk := range chunks {
		if chunk.ID == "" {
			return domain.WrapError(domain.ErrInvalidInput, "index chunk", fmt.Errorf("empty chunk id"))
		}
		vector := map[string]any{
			sparseVectorName: encodeSparseDocument(chunk.Text),
		}
		if len(chunk.Embedding) > 0 {
			vector[denseVectorName] = chunk.Embedding
		}
		payload, err := payloadFromChunk(chunk)
		if err != nil {
			return err
		}
		points = append(points, point{ID: chunk.ID, Vector: vector, Payload: payload})
	}

	url := fmt.Sprintf("%s/collections/%s/points?wait=true", c.baseURL, c.collection)
	return c.do(ctx, http.MethodPut, url, map[string]any{"points": points}, nil)
}

func (c *Client) deleteByDocument(ctx context.Context, documentID string) error {
	reqBody := map[string]any{
		"filter": map[string]any{
			"must": []map[string]any{
				{"key": "doc_id", "match": map[string]any{"value": documentID}},
			},
		},
	}
	url := fmt.Sprintf("%s/collections/%s/points/delete?wait=true", c.baseURL, c.collection)
	return c.do(ctx, http.MethodPost, url, reqBody, nil)
}

func (c *Client) ensureCollection(ctx context.Context, vectorSize int) error {
	if vectorSize == 0 {
		vectorSize = fallbackDenseSize
	}
	c.ensureMu.Lock()
	if c.ensuredCollection && c.ensuredVectorSize == vectorSize {
		c.ensureMu.Unlock()
		return nil
	}
	c.ensureMu.Unlock()

	reqBody := map[string]any{
		"vectors": map[string]any{
			denseVectorName: map[string]any{
				"size":     vectorSize,
				"distance": "Cosine",
			},
		},
		"sparse_vectors": map[string]any{
			sparseVectorName: map[string]any{},
		},
	}

	url := fmt.Sprintf("%s/collections/%s", c.baseURL, c.collection)
	body, err := json.Marshal(reqBody)
	if err != nil {
		return fmt.Errorf("marshal create collection body: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create collection request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("qdrant ensure collection request: %w", err)
	}
	defer resp.Body.Close()

	// 200/201 for create, 409 if the collection already exists.
	if resp.StatusCode == http.StatusConflict {
		c.markCollectionEnsured(vectorSize)
		return nil
	}
	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		if msg := strings.TrimSpace(string(body)); msg != "" {
			return fmt.Errorf("qdrant ensure collection status: %s: %s", resp.Status, msg)
		}
		return fmt.Errorf("qdrant ensure collection status: %s", resp.Status)
	}
	c.markCollectionEnsured(vectorSize)
	return nil
}

func (c *Client) markCollectionEnsured(vectorSize int) {
	c.ensureMu.Lock()
	defer c.ensureMu.Unlock()
	c.ensuredCollection = true
	c.ensuredVectorSize = vectorSize
}

type statusError struct {
	code   int
	status string
	body   string
}

func (e *statusError) Error() string {
	if e.body != "" {
		return fmt.Sprintf("qdrant status: %s: %s", e.status, e.body)
	}
	return fmt.Sprintf("qdrant status: %s", e.status)
}

func isNotFoundStatus(err error) bool {
	var se *statusError
	return errors.As(err, &se) && se.code == http.StatusNotFound
}

func (c *Client) do(ctx context.Context, method, url string, reqBody any, out any) error {
	var reader io.Reader
	if reqBody != nil {
		body, err := json.Marshal(reqBody)
		if err != nil {
			return fmt.Errorf("marshal qdrant request: %w", err)
		}
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return fmt.Errorf("create qdrant request: %w", err)
	}
	if reqBody != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("qdrant request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return &statusError{code: resp.StatusCode, status: resp.Status, body: strings.TrimSpace(string(body))}
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode qdrant response: %w", err)
		}
	}
	return nil
}

func denseSize(chunks []domain.Chunk) int {
	for _, chunk := range chunks {
		if len(chunk.Embedding) > 0 {
			return len(chunk.Embedding)
		}
	}
	return 0
}
