// Package workbook reads and writes .xlsx workbooks through excelize.
//
// Row 1 of every sheet holds the headers. Cells are returned with their
// native type (number, bool, date, time of day, duration, string) so callers
// can classify columns without re-parsing formatted text.
package workbook

import (
	"errors"
	"fmt"
	"io"
	"math"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"
)

var (
	// ErrSheetNotFound is returned when a named sheet is absent.
	ErrSheetNotFound = errors.New("sheet not found")

	// ErrSheetExists is returned when creating a sheet whose name is taken.
	ErrSheetExists = errors.New("sheet already exists")
)

// Header is a non-blank cell of row 1.
type Header struct {
	Column int // 1-based physical column
	Name   string
}

// Row is one data row. Cells are aligned with the sheet's headers.
type Row struct {
	Number int
	Cells  []Cell
}

// Sheet is the content of one worksheet up to a row bound.
type Sheet struct {
	Name    string
	Headers []Header
	Rows    []Row
}

// Summary holds the counts cached for a sheet in a file summary.
type Summary struct {
	Name    string `json:"name"`
	Columns int    `json:"columns"`
	Entries int    `json:"rows"`
}

// Workbook is an open workbook.
type Workbook struct {
	f        *excelize.File
	path     string
	date1904 bool
	formats  map[int]Kind
}

// Open opens the workbook at path.
func Open(path string) (*Workbook, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open workbook %s: %w", path, err)
	}
	return wrap(f, path), nil
}

// OpenReader reads a workbook from r. It has no path until SaveAs.
func OpenReader(r io.Reader) (*Workbook, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("read workbook: %w", err)
	}
	return wrap(f, ""), nil
}

func wrap(f *excelize.File, path string) *Workbook {
	w := &Workbook{f: f, path: path, formats: make(map[int]Kind)}
	if props, err := f.GetWorkbookProps(); err == nil && props.Date1904 != nil {
		w.date1904 = *props.Date1904
	}
	return w
}

// Close releases the workbook.
func (w *Workbook) Close() error { return w.f.Close() }

// Path returns the file path the workbook was opened from or saved to.
func (w *Workbook) Path() string { return w.path }

// Sheets returns sheet names in workbook order.
func (w *Workbook) Sheets() []string { return w.f.GetSheetList() }

// HasSheet reports whether the sheet exists.
func (w *Workbook) HasSheet(name string) bool {
	return slices.Contains(w.f.GetSheetList(), name)
}

// Save writes the workbook back to its path.
func (w *Workbook) Save() error {
	if w.path == "" {
		return errors.New("save workbook: no path")
	}
	if err := w.f.Save(); err != nil {
		return fmt.Errorf("save workbook %s: %w", w.path, err)
	}
	return nil
}

// SaveAs writes the workbook to path and makes it the workbook's path.
func (w *Workbook) SaveAs(path string) error {
	if err := w.f.SaveAs(path); err != nil {
		return fmt.Errorf("save workbook %s: %w", path, err)
	}
	w.path = path
	return nil
}

// rawRows returns the raw cell text of a sheet. Index i is physical row i+1.
func (w *Workbook) rawRows(sheet string) ([][]string, error) {
	if !w.HasSheet(sheet) {
		return nil, fmt.Errorf("%w: %s", ErrSheetNotFound, sheet)
	}
	rows, err := w.f.GetRows(sheet, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, fmt.Errorf("read sheet %s: %w", sheet, err)
	}
	return rows, nil
}

// Headers returns the non-blank header cells of row 1, trimmed with
// newlines folded to spaces.
func (w *Workbook) Headers(sheet string) ([]Header, error) {
	rows, err := w.rawRows(sheet)
	if err != nil {
		return nil, err
	}
	return w.headers(sheet, rows)
}

func (w *Workbook) headers(sheet string, rows [][]string) ([]Header, error) {
	if len(rows) == 0 {
		return nil, nil
	}
	var headers []Header
	for i, raw := range rows[0] {
		if raw == "" {
			continue
		}
		c, err := w.typedCell(sheet, i+1, 1, raw)
		if err != nil {
			return nil, err
		}
		name := strings.ReplaceAll(strings.TrimSpace(c.String()), "\n", " ")
		if name == "" {
			continue
		}
		headers = append(headers, Header{Column: i + 1, Name: name})
	}
	return headers, nil
}

// ReadSheet reads headers and rows 2..maxRow. Rows without any value are
// skipped; each kept row keeps its physical row number.
func (w *Workbook) ReadSheet(sheet string, maxRow int) (*Sheet, error) {
	rows, err := w.rawRows(sheet)
	if err != nil {
		return nil, err
	}
	headers, err := w.headers(sheet, rows)
	if err != nil {
		return nil, err
	}

	s := &Sheet{Name: sheet, Headers: headers}
	for i := 1; i < len(rows) && i < maxRow; i++ {
		raw := rows[i]
		if !hasValue(raw) {
			continue
		}
		rowNum := i + 1
		cells := make([]Cell, len(headers))
		for j, h := range headers {
			if h.Column > len(raw) || raw[h.Column-1] == "" {
				continue
			}
			c, err := w.typedCell(sheet, h.Column, rowNum, raw[h.Column-1])
			if err != nil {
				return nil, err
			}
			cells[j] = c
		}
		s.Rows = append(s.Rows, Row{Number: rowNum, Cells: cells})
	}
	return s, nil
}

// Summaries counts non-blank headers and non-blank rows in 2..maxRow for
// every sheet.
func (w *Workbook) Summaries(maxRow int) ([]Summary, error) {
	var out []Summary
	for _, name := range w.Sheets() {
		rows, err := w.rawRows(name)
		if err != nil {
			return nil, err
		}
		sum := Summary{Name: name}
		if len(rows) > 0 {
			for _, v := range rows[0] {
				if v != "" {
					sum.Columns++
				}
			}
		}
		for i := 1; i < len(rows) && i < maxRow; i++ {
			if hasValue(rows[i]) {
				sum.Entries++
			}
		}
		out = append(out, sum)
	}
	return out, nil
}

// LastRow returns the last physical row holding a value, 0 for an empty
// sheet.
func (w *Workbook) LastRow(sheet string) (int, error) {
	rows, err := w.rawRows(sheet)
	if err != nil {
		return 0, err
	}
	for i := len(rows) - 1; i >= 0; i-- {
		if hasValue(rows[i]) {
			return i + 1, nil
		}
	}
	return 0, nil
}

func hasValue(row []string) bool {
	for _, v := range row {
		if v != "" {
			return true
		}
	}
	return false
}

// typedCell converts the raw text of a non-empty cell to its native type.
func (w *Workbook) typedCell(sheet string, col, row int, raw string) (Cell, error) {
	ref, err := excelize.CoordinatesToCellName(col, row)
	if err != nil {
		return Cell{}, err
	}
	typ, err := w.f.GetCellType(sheet, ref)
	if err != nil {
		return Cell{}, fmt.Errorf("cell type %s!%s: %w", sheet, ref, err)
	}

	switch typ {
	case excelize.CellTypeBool:
		return Cell{Kind: Bool, Value: raw == "1" || strings.EqualFold(raw, "true")}, nil
	case excelize.CellTypeDate:
		if t, err := parseISODate(raw); err == nil {
			return Cell{Kind: DateTime, Value: t}, nil
		}
		return Cell{Kind: String, Value: raw}, nil
	case excelize.CellTypeSharedString, excelize.CellTypeInlineString,
		excelize.CellTypeFormula, excelize.CellTypeError:
		return Cell{Kind: String, Value: raw}, nil
	}

	num, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return Cell{Kind: String, Value: raw}, nil
	}
	kind, err := w.numberKind(sheet, ref)
	if err != nil {
		return Cell{}, err
	}
	return w.fromSerial(num, kind), nil
}

func (w *Workbook) fromSerial(num float64, kind Kind) Cell {
	switch kind {
	case Duration:
		return Cell{Kind: Duration, Value: time.Duration(math.Round(num*86400)) * time.Second}
	case DateTime, TimeOfDay:
		if num >= 0 && num < 1 {
			secs := int(math.Round(num * 86400))
			return Cell{Kind: TimeOfDay, Value: time.Date(0, 1, 1, secs/3600, secs%3600/60, secs%60, 0, time.UTC)}
		}
		t, err := excelize.ExcelDateToTime(num, w.date1904)
		if err != nil {
			return Cell{Kind: Number, Value: num}
		}
		return Cell{Kind: DateTime, Value: t.Round(time.Second)}
	}
	return Cell{Kind: Number, Value: num}
}

// numberKind reports how the number format of a cell presents its value.
func (w *Workbook) numberKind(sheet, ref string) (Kind, error) {
	idx, err := w.f.GetCellStyle(sheet, ref)
	if err != nil {
		return Number, fmt.Errorf("cell style %s!%s: %w", sheet, ref, err)
	}
	if k, ok := w.formats[idx]; ok {
		return k, nil
	}
	kind := Number
	if style, err := w.f.GetStyle(idx); err == nil && style != nil {
		if style.CustomNumFmt != nil {
			kind = customFormatKind(*style.CustomNumFmt)
		} else {
			kind = builtinFormatKind(style.NumFmt)
		}
	}
	w.formats[idx] = kind
	return kind, nil
}

func builtinFormatKind(id int) Kind {
	switch {
	case id >= 14 && id <= 17, id == 22, id >= 27 && id <= 31, id >= 34 && id <= 36, id >= 50 && id <= 58:
		return DateTime
	case id >= 18 && id <= 21, id == 32, id == 33, id == 45, id == 47:
		return TimeOfDay
	case id == 46:
		return Duration
	}
	return Number
}

// customFormatKind inspects the first section of a custom number format,
// ignoring quoted literals, escapes and bracketed modifiers.
func customFormatKind(code string) Kind {
	code = strings.ToLower(code)
	if i := strings.IndexByte(code, ';'); i >= 0 {
		code = code[:i]
	}

	var b strings.Builder
	elapsed := false
	inQuote := false
	for i := 0; i < len(code); i++ {
		c := code[i]
		switch {
		case c == '"':
			inQuote = !inQuote
		case inQuote:
		case c == '\\':
			i++
		case c == '[':
			end := strings.IndexByte(code[i:], ']')
			if end < 0 {
				i = len(code)
				continue
			}
			switch strings.Trim(code[i+1:i+end], "hms") {
			case "":
				if end > 1 {
					elapsed = true
				}
			}
			i += end
		default:
			b.WriteByte(c)
		}
	}
	s := b.String()

	switch {
	case elapsed:
		return Duration
	case strings.ContainsAny(s, "yd"):
		return DateTime
	case strings.ContainsAny(s, "hs"):
		return TimeOfDay
	case strings.Contains(s, "m") && !strings.ContainsAny(s, "0#?"):
		return DateTime
	}
	return Number
}

func parseISODate(s string) (time.Time, error) {
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("not an ISO date: %q", s)
}
