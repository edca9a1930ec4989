package workbook

import (
	"fmt"
	"unicode/utf8"

	"github.com/xuri/excelize/v2"
)

// HeaderStyle is applied to header rows of created sheets.
var HeaderStyle = &excelize.Style{
	Font: &excelize.Font{Bold: true, Color: "FFFFFF", Size: 11},
	Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"2E7D32"}},
	Alignment: &excelize.Alignment{
		Horizontal: "center",
		Vertical:   "center",
		WrapText:   true,
	},
	Border: []excelize.Border{
		{Type: "left", Color: "000000", Style: 1},
		{Type: "right", Color: "000000", Style: 1},
		{Type: "top", Color: "000000", Style: 1},
		{Type: "bottom", Color: "000000", Style: 1},
	},
}

// Create makes a new workbook at path with a single sheet holding a styled
// header row. The file is written before Create returns.
func Create(path, sheet string, columns []string) (*Workbook, error) {
	f := excelize.NewFile()
	first := f.GetSheetList()[0]
	if first != sheet {
		if err := f.SetSheetName(first, sheet); err != nil {
			f.Close()
			return nil, fmt.Errorf("rename sheet: %w", err)
		}
	}
	w := wrap(f, "")
	if err := w.writeHeader(sheet, columns); err != nil {
		f.Close()
		return nil, err
	}
	if err := w.SaveAs(path); err != nil {
		f.Close()
		return nil, err
	}
	return w, nil
}

// AddSheet appends a sheet with a styled header row. The workbook is not
// saved.
func (w *Workbook) AddSheet(name string, columns []string) error {
	if w.HasSheet(name) {
		return fmt.Errorf("%w: %s", ErrSheetExists, name)
	}
	if _, err := w.f.NewSheet(name); err != nil {
		return fmt.Errorf("new sheet %s: %w", name, err)
	}
	return w.writeHeader(name, columns)
}

func (w *Workbook) writeHeader(sheet string, columns []string) error {
	style, err := w.f.NewStyle(HeaderStyle)
	if err != nil {
		return fmt.Errorf("header style: %w", err)
	}
	for i, name := range columns {
		ref, err := excelize.CoordinatesToCellName(i+1, 1)
		if err != nil {
			return err
		}
		if err := w.f.SetCellStr(sheet, ref, name); err != nil {
			return fmt.Errorf("write header %s: %w", ref, err)
		}
		if err := w.f.SetCellStyle(sheet, ref, ref, style); err != nil {
			return fmt.Errorf("style header %s: %w", ref, err)
		}
		col, err := excelize.ColumnNumberToName(i + 1)
		if err != nil {
			return err
		}
		if err := w.f.SetColWidth(sheet, col, col, ColumnWidth(name)); err != nil {
			return fmt.Errorf("column width %s: %w", col, err)
		}
	}
	return nil
}

// ColumnWidth is the width given to a header column: max(15, len+5).
func ColumnWidth(name string) float64 {
	return float64(max(15, utf8.RuneCountInString(name)+5))
}

// AppendRow writes values after the last used row, one per header. Headers
// missing from values are left empty. It returns the new row number.
func (w *Workbook) AppendRow(sheet string, values map[string]any) (int, error) {
	last, err := w.LastRow(sheet)
	if err != nil {
		return 0, err
	}
	row := max(last, 1) + 1
	headers, err := w.Headers(sheet)
	if err != nil {
		return 0, err
	}
	for _, h := range headers {
		v, ok := values[h.Name]
		if !ok {
			continue
		}
		if err := w.setCell(sheet, h.Column, row, v); err != nil {
			return 0, err
		}
	}
	return row, nil
}

// UpdateRow overwrites the cells of row whose header appears in values.
func (w *Workbook) UpdateRow(sheet string, row int, values map[string]any) error {
	if row < 2 {
		return fmt.Errorf("update row %d: header row is read-only", row)
	}
	headers, err := w.Headers(sheet)
	if err != nil {
		return err
	}
	for _, h := range headers {
		v, ok := values[h.Name]
		if !ok {
			continue
		}
		if err := w.setCell(sheet, h.Column, row, v); err != nil {
			return err
		}
	}
	return nil
}

// DeleteRow removes a physical row and shifts the rows below it up.
func (w *Workbook) DeleteRow(sheet string, row int) error {
	if !w.HasSheet(sheet) {
		return fmt.Errorf("%w: %s", ErrSheetNotFound, sheet)
	}
	if row < 2 {
		return fmt.Errorf("delete row %d: header row is read-only", row)
	}
	if err := w.f.RemoveRow(sheet, row); err != nil {
		return fmt.Errorf("remove row %d: %w", row, err)
	}
	return nil
}

// setCell writes v; the empty string clears the cell.
func (w *Workbook) setCell(sheet string, col, row int, v any) error {
	ref, err := excelize.CoordinatesToCellName(col, row)
	if err != nil {
		return err
	}
	if s, ok := v.(string); ok && s == "" {
		v = nil
	}
	if err := w.f.SetCellValue(sheet, ref, v); err != nil {
		return fmt.Errorf("write %s!%s: %w", sheet, ref, err)
	}
	return nil
}
