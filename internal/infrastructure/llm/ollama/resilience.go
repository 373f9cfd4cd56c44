package ollama

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"

	"github.com/kirillkom/confident-retrieval/internal/core/domain"
	"github.com/kirillkom/confident-retrieval/internal/infrastructure/resilience"
)

type HTTPStatusError struct {
	Operation  string
	StatusCode int
	Status     string
	Body       string
}

func (e *HTTPStatusError) Error() string {
	if e == nil {
		return "ollama status error"
	}
	if strings.TrimSpace(e.Body) == "" {
		return fmt.Sprintf("ollama %s status: %s", e.Operation, e.Status)
	}
	return fmt.Sprintf("ollama %s status: %s: %s", e.Operation, e.Status, strings.TrimSpace(e.Body))
}

func classifyOllamaError(err error) resilience.ErrorClassification {
	if err == nil {
		return resilience.ErrorClassification{}
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return resilience.ErrorClassification{
			Retryable:     false,
			RecordFailure: false,
		}
	}
	if resilience.IsCircuitOpen(err) {
		return resilience.ErrorClassification{
			Retryable:     true,
			RecordFailure: true,
		}
	}

	var statusErr *HTTPStatusError
	if errors.As(err, &statusErr) {
		if isRetryableHTTPStatus(statusErr.StatusCode) {
			return resilience.ErrorClassification{
				Retryable:     true,
				RecordFailure: true,
			}
		}
		return resilience.ErrorClassification{
			Retryable:     false,
			RecordFailure: false,
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return resilience.ErrorClassification{
			Retryable:     true,
			RecordFailure: true,
		}
	}

	return resilience.ErrorClassification{
		Retryable:     false,
		RecordFailure: true,
	}
}

// ResilientEmbedder wraps the embedder with retry and circuit breaking.
// Failures surface as ErrCollaboratorUnavailable so callers can take the
// lexical fallback path rather than failing the request.
type ResilientEmbedder struct {
	inner    *Embedder
	executor *resilience.Executor
}

func NewResilientEmbedder(inner *Embedder, executor *resilience.Executor) *ResilientEmbedder {
	return &ResilientEmbedder{inner: inner, executor: executor}
}

func (e *ResilientEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	var out [][]float32
	err := e.executor.Execute(ctx, "ollama.embed", func(callCtx context.Context) error {
		vectors, callErr := e.inner.Embed(callCtx, texts)
		if callErr != nil {
			return callErr
		}
		out = vectors
		return nil
	}, classifyOllamaError)
	if err != nil {
		return nil, wrapCollaboratorIfNeeded("embed chunks", err)
	}
	return out, nil
}

func (e *ResilientEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	var out []float32
	err := e.executor.Execute(ctx, "ollama.embed_query", func(callCtx context.Context) error {
		vector, callErr := e.inner.EmbedQuery(callCtx, text)
		if callErr != nil {
			return callErr
		}
		out = vector
		return nil
	}, classifyOllamaError)
	if err != nil {
		return nil, wrapCollaboratorIfNeeded("embed query", err)
	}
	return out, nil
}

func (e *ResilientEmbedder) ModelVersion() string {
	return e.inner.ModelVersion()
}

// ResilientOutlineExtractor wraps the outline collaborator the same way.
type ResilientOutlineExtractor struct {
	inner    *OutlineExtractor
	executor *resilience.Executor
}

func NewResilientOutlineExtractor(inner *OutlineExtractor, executor *resilience.Executor) *ResilientOutlineExtractor {
	return &ResilientOutlineExtractor{inner: inner, executor: executor}
}

func (o *ResilientOutlineExtractor) ExtractOutline(ctx context.Context, text string) (domain.Outline, error) {
	var out domain.Outline
	err := o.executor.Execute(ctx, "ollama.outline", func(callCtx context.Context) error {
		outline, callErr := o.inner.ExtractOutline(callCtx, text)
		if callErr != nil {
			return callErr
		}
		out = outline
		return nil
	}, classifyOllamaError)
	if err != nil {
		return domain.Outline{}, wrapCollaboratorIfNeeded("extract outline", err)
	}
	return out, nil
}

func wrapCollaboratorIfNeeded(operation string, err error) error {
	if err == nil {
		return nil
	}
	if domain.IsKind(err, domain.ErrCollaboratorUnavailable) {
		return err
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return domain.WrapError(domain.ErrCollaboratorUnavailable, operation, err)
}

func isRetryableHTTPStatus(statusCode int) bool {
	switch statusCode {
	case http.StatusRequestTimeout, http.StatusTooManyRequests, http.StatusInternalServerError, http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}
