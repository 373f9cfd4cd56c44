package extractor

import (
	"context"
	"fmt"
	"strings"

	"github.com/kirillkom/confident-retrieval/internal/core/domain"
	"github.com/kirillkom/confident-retrieval/internal/core/ports"
)

// Registry routes extraction by MIME type. Unknown types fail at upload
// validation already; this is the second line of defense.
type Registry struct {
	byMIME   map[string]ports.TextExtractor
	fallback ports.TextExtractor
}

func NewRegistry(plain ports.TextExtractor) *Registry {
	return &Registry{
		byMIME:   map[string]ports.TextExtractor{},
		fallback: plain,
	}
}

func (r *Registry) Register(mimeType string, extractor ports.TextExtractor) {
	r.byMIME[strings.ToLower(mimeType)] = extractor
}

// Supported reports whether a MIME type can be extracted.
func (r *Registry) Supported(mimeType string) bool {
	mime := normalizeMIME(mimeType)
	if _, ok := r.byMIME[mime]; ok {
		return true
	}
	return strings.HasPrefix(mime, "text/")
}

func (r *Registry) Extract(ctx context.Context, doc *domain.Document) (string, error) {
	mime := normalizeMIME(doc.MimeType)
	if ext, ok := r.byMIME[mime]; ok {
		return ext.Extract(ctx, doc)
	}
	if strings.HasPrefix(mime, "text/") {
		return r.fallback.Extract(ctx, doc)
	}
	return "", domain.WrapError(domain.ErrInvalidInput, "extract text",
		fmt.Errorf("unsupported mime type %q", doc.MimeType))
}

func normalizeMIME(mimeType string) string {
	mime := strings.ToLower(strings.TrimSpace(mimeType))
	if i := strings.IndexByte(mime, ';'); i >= 0 {
		mime = strings.TrimSpace(mime[:i])
	}
	return mime
}
