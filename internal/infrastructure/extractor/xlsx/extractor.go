package xlsx

import (
	"context"
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/kirillkom/confident-retrieval/internal/core/domain"
	"github.com/kirillkom/confident-retrieval/internal/core/ports"
)

// Extractor flattens a workbook to text: one line per row, cells joined by
// tabs, sheets prefixed with their name so structure extraction can treat
// them as sections.
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

	workbook, err := excelize.OpenReader(reader)
	if err != nil {
		return "", fmt.Errorf("parse workbook %s: %w", doc.Filename, err)
	}
	defer workbook.Close()

	var text strings.Builder
	for _, sheet := range workbook.GetSheetList() {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		rows, err := workbook.GetRows(sheet)
		if err != nil {
			return "", fmt.Errorf("read sheet %s: %w", sheet, err)
		}
		if text.Len() > 0 {
			text.WriteString("\n\n")
		}
		text.WriteString(sheet)
		for _, row := range rows {
			line := strings.TrimSpace(strings.Join(row, "\t"))
			if line == "" {
				continue
			}
			text.WriteString("\n")
			text.WriteString(line)
		}
	}

	return strings.TrimSpace(text.String()), nil
}
