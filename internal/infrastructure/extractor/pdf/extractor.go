package pdf

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	pdflib "github.com/ledongthuc/pdf"

	"github.com/kirillkom/confident-retrieval/internal/core/domain"
	"github.com/kirillkom/confident-retrieval/internal/core/ports"
)

// maxPDFSize caps in-memory extraction.
const maxPDFSize = 200 << 20

type Extractor struct {
	storage ports.ObjectStorage
}

func NewExtractor(storage ports.ObjectStorage) *Extractor {
	return &Extractor{storage: storage}
}

func (e *Extractor) Extract(ctx context.Context, doc *domain.Document) (string, error) {
	reader, err := e.storage.Open(ctx, doc.StoragePath)
	if err != nil {
		return "", fmt.Errorf("open source document: %w", err)
	}
	defer reader.Close()

	content, err := io.ReadAll(io.LimitReader(reader, maxPDFSize+1))
	if err != nil {
		return "", fmt.Errorf("read source document: %w", err)
	}
	if len(content) > maxPDFSize {
		return "", fmt.Errorf("pdf %s too large for in-memory extraction", doc.Filename)
	}

	pdfReader, err := pdflib.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return "", fmt.Errorf("parse pdf %s: %w", doc.Filename, err)
	}

	var text strings.Builder
	for i := 1; i <= pdfReader.NumPage(); i++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		page := pdfReader.Page(i)
		if page.V.IsNull() {
			continue
		}
		fonts := make(map[string]*pdflib.Font)
		pageText, err := page.GetPlainText(fonts)
		if err != nil {
			// A single unreadable page must not lose the rest of the document.
			continue
		}
		if text.Len() > 0 {
			text.WriteString("\n\n")
		}
		text.WriteString(pageText)
	}

	return strings.TrimSpace(text.String()), nil
}
