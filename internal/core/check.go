package core

import (
	"path/filepath"

	"github.com/JonMunkholm/sheetvault/internal/workbook"
)

// SheetCheck describes one sheet found by CheckFiles.
type SheetCheck struct {
	Name    string   `json:"name"`
	Headers []string `json:"headers"`
	Rows    int      `json:"rows"`
}

// FileCheck describes one workbook found by CheckFiles. Err is set when the
// workbook or one of its sheets could not be read.
type FileCheck struct {
	Filename string       `json:"filename"`
	Sheets   []SheetCheck `json:"sheets"`
	Err      error        `json:"-"`
}

// CheckFiles reads the headers and non-blank row counts of every workbook
// in folder without touching the cache.
func CheckFiles(folder string, maxRow int) ([]FileCheck, error) {
	names, err := listWorkbooks(folder)
	if err != nil {
		return nil, err
	}
	out := make([]FileCheck, 0, len(names))
	for _, name := range names {
		out = append(out, checkFile(filepath.Join(folder, name), maxRow))
	}
	return out, nil
}

func checkFile(path string, maxRow int) FileCheck {
	fc := FileCheck{Filename: filepath.Base(path)}
	wb, err := workbook.Open(path)
	if err != nil {
		fc.Err = err
		return fc
	}
	defer wb.Close()

	for _, name := range wb.Sheets() {
		s, err := wb.ReadSheet(name, maxRow)
		if err != nil {
			fc.Err = err
			return fc
		}
		sc := SheetCheck{Name: name, Headers: make([]string, len(s.Headers)), Rows: len(s.Rows)}
		for i, h := range s.Headers {
			sc.Headers[i] = h.Name
		}
		fc.Sheets = append(fc.Sheets, sc)
	}
	return fc
}
