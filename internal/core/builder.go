package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/JonMunkholm/sheetvault/internal/classify"
	"github.com/JonMunkholm/sheetvault/internal/logging"
	"github.com/JonMunkholm/sheetvault/internal/store"
	"github.com/JonMunkholm/sheetvault/internal/workbook"
)

const (
	sampleWindow    = 5
	maxSampleValues = 3
	maxSampleLength = 50
)

// SheetBuilder rebuilds the cached content of one sheet from a workbook.
type SheetBuilder struct {
	sheets     *store.Sheets
	classifier *classify.Classifier
	maxRow     int
}

// NewSheetBuilder returns a builder reading rows 2..maxRow.
func NewSheetBuilder(db store.DBTX, classifier *classify.Classifier, maxRow int) *SheetBuilder {
	if classifier == nil {
		classifier = classify.Default()
	}
	return &SheetBuilder{sheets: store.NewSheets(db), classifier: classifier, maxRow: maxRow}
}

// Build reads sheet from wb, classifies its columns and overwrites the cache
// of (file, sheet). A missing sheet yields ErrSheetNotFound.
func (b *SheetBuilder) Build(ctx context.Context, file *store.FileCache, wb *workbook.Workbook, sheet string) (*store.SheetCache, error) {
	sc, err := b.Compute(wb, sheet)
	if err != nil {
		return nil, err
	}
	sc.FileID = file.ID

	if err := b.sheets.Upsert(ctx, sc); err != nil {
		return nil, fmt.Errorf("cache sheet %s of %s: %w", sheet, file.Filename, err)
	}

	logging.FromContext(ctx).Debug("sheet cached",
		"filename", file.Filename,
		"sheet", sheet,
		"rows", sc.RowsCount,
		"columns", len(sc.Columns),
	)
	return sc, nil
}

// Compute builds the sheet cache content without persisting it.
func (b *SheetBuilder) Compute(wb *workbook.Workbook, sheet string) (*store.SheetCache, error) {
	s, err := wb.ReadSheet(sheet, b.maxRow)
	if err != nil {
		if errors.Is(err, workbook.ErrSheetNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrSheetNotFound, sheet)
		}
		return nil, err
	}

	sc := &store.SheetCache{
		SheetName: sheet,
		Headers:   make([]string, len(s.Headers)),
		Columns:   make([]store.Column, len(s.Headers)),
		Data:      make([]map[string]any, 0, len(s.Rows)),
	}
	for i, h := range s.Headers {
		sc.Headers[i] = h.Name
	}

	for _, row := range s.Rows {
		entry := make(map[string]any, len(s.Headers)+1)
		for i, h := range s.Headers {
			entry[h.Name] = row.Cells[i].Serialize()
		}
		entry[store.RowIDKey] = row.Number
		sc.Data = append(sc.Data, entry)
	}
	sc.RowsCount = len(sc.Data)

	for i, h := range s.Headers {
		var values []any
		raw := make([]workbook.Cell, 0, len(s.Rows))
		for _, row := range s.Rows {
			c := row.Cells[i]
			raw = append(raw, c)
			if !c.IsNull() {
				values = append(values, c.Native())
			}
		}
		t := b.classifier.Classify(values, h.Name)
		sc.Columns[i] = store.Column{
			Index:        i + 1,
			Name:         h.Name,
			FieldType:    t.Field,
			DataType:     t.Data,
			Required:     b.classifier.Required(h.Name),
			SampleValues: sampleValues(raw),
		}
	}
	return sc, nil
}

// HeaderColumns describes the headers of sheet from their names alone, for
// sheets that have no cache.
func (b *SheetBuilder) HeaderColumns(wb *workbook.Workbook, sheet string) ([]store.Column, error) {
	headers, err := wb.Headers(sheet)
	if err != nil {
		if errors.Is(err, workbook.ErrSheetNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrSheetNotFound, sheet)
		}
		return nil, err
	}
	cols := make([]store.Column, len(headers))
	for i, h := range headers {
		t := b.classifier.ByHeader(h.Name)
		cols[i] = store.Column{
			Index:     h.Column,
			Name:      h.Name,
			FieldType: t.Field,
			DataType:  t.Data,
			Required:  b.classifier.Required(h.Name),
		}
	}
	return cols, nil
}

// sampleValues keeps the non-blank values among the first few cells of a
// column, truncated. Null cells count toward the window.
func sampleValues(cells []workbook.Cell) []string {
	out := []string{}
	for i, c := range cells {
		if i == sampleWindow || len(out) == maxSampleValues {
			break
		}
		s := c.String()
		if strings.TrimSpace(s) == "" {
			continue
		}
		out = append(out, truncateRunes(s, maxSampleLength))
	}
	return out
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
