package core

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/JonMunkholm/sheetvault/internal/logging"
	"github.com/JonMunkholm/sheetvault/internal/store"
	"github.com/JonMunkholm/sheetvault/internal/workbook"
)

// path returns the location of filename in the workbook folder.
func (s *Service) path(filename string) string {
	return filepath.Join(s.folder, filename)
}

// physical reports whether filename is a regular file of the folder.
func (s *Service) physical(filename string) bool {
	info, err := os.Stat(s.path(filename))
	return err == nil && info.Mode().IsRegular()
}

// FileID is the identifier shown for a workbook in listings.
func FileID(filename string) string {
	return strings.TrimSuffix(strings.ReplaceAll(filename, " ", "_"), workbookExt)
}

// lookup resolves a non-deleted entry for a filename taken from a URL.
func (s *Service) lookup(ctx context.Context, filename string, fuzzy bool) (*store.FileCache, error) {
	return resolveFile(ctx, s.files, filename, fuzzy)
}

// ListFiles returns the non-deleted entries, syncing the folder first unless
// list sync is disabled.
func (s *Service) ListFiles(ctx context.Context) (*FileList, error) {
	if !s.skipListSync && s.sync.HasWorkbooks() {
		if _, err := s.sync.Sync(ctx); err != nil {
			logging.FromContext(ctx).Warn("sync before listing failed", "error", err)
		}
	}

	entries, err := s.files.ListActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("list files: %w", err)
	}

	var ids []int64
	for _, e := range entries {
		if e.LastModifiedBy != nil {
			ids = append(ids, *e.LastModifiedBy)
		}
	}
	users, err := s.users.Summaries(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("resolve modifiers: %w", err)
	}

	files := make([]FileInfo, 0, len(entries))
	for _, e := range entries {
		info := FileInfo{
			ID:           FileID(e.Filename),
			Name:         e.Name,
			Filename:     e.Filename,
			Path:         e.FilePath,
			SheetsCount:  e.SheetsCount,
			Sheets:       e.Sheets,
			TotalEntries: e.TotalEntries,
			Size:         e.FileSize,
			Modified:     e.FileModified,
		}
		if info.Sheets == nil {
			info.Sheets = []string{}
		}
		if e.LastModifiedBy != nil {
			info.LastModifiedBy = userRef(users[*e.LastModifiedBy])
		}
		files = append(files, info)
	}
	return &FileList{Files: files, TotalFiles: len(files)}, nil
}

// ListSheets returns the cached sheets of a file with their counts.
func (s *Service) ListSheets(ctx context.Context, filename string) (*SheetList, error) {
	entry, err := s.lookup(ctx, filename, true)
	if err != nil {
		return nil, err
	}
	cached, err := s.sheets.ListByFile(ctx, entry.ID)
	if err != nil {
		return nil, fmt.Errorf("list sheets: %w", err)
	}
	byName := make(map[string]*store.SheetCache, len(cached))
	for _, sc := range cached {
		byName[sc.SheetName] = sc
	}

	out := &SheetList{Filename: entry.Filename, FileName: entry.Name, Sheets: []SheetInfo{}}
	for _, name := range entry.Sheets {
		info := SheetInfo{Name: name}
		if sc, ok := byName[name]; ok {
			info.ColumnsCount = len(sc.Headers)
			info.EntriesCount = sc.RowsCount
		} else if d, ok := entry.SheetsDetails[name]; ok {
			info.ColumnsCount = d.Columns
			info.EntriesCount = d.Entries
		}
		out.Sheets = append(out.Sheets, info)
	}
	return out, nil
}

// SheetColumns returns the column metadata of a sheet. Without a cache it
// builds one from the file, and falls back to classifying the headers alone
// when the sheet cannot be cached.
func (s *Service) SheetColumns(ctx context.Context, filename, sheet string) (*SheetColumns, error) {
	sc, entry, err := s.sheetCache(ctx, filename, sheet)
	if err == nil {
		return &SheetColumns{Filename: entry.Filename, SheetName: sc.SheetName, Columns: nonNilColumns(sc.Columns)}, nil
	}
	if !errors.Is(err, ErrSheetNotFound) && !errors.Is(err, ErrFileNotFound) {
		return nil, err
	}

	decoded := decodeName(filename)
	if checkFilename(decoded) != nil || !s.physical(decoded) {
		return nil, err
	}
	sheetName := decodeName(sheet)

	if _, rerr := s.sync.RefreshFile(ctx, decoded, nil); rerr != nil {
		logging.FromContext(ctx).Warn("cache build for columns failed", "filename", decoded, "error", rerr)
	} else if sc, entry, err := s.sheetCache(ctx, decoded, sheetName); err == nil {
		return &SheetColumns{Filename: entry.Filename, SheetName: sc.SheetName, Columns: nonNilColumns(sc.Columns)}, nil
	}

	wb, err := workbook.Open(s.path(decoded))
	if err != nil {
		return nil, err
	}
	defer wb.Close()
	columns, err := s.builder.HeaderColumns(wb, sheetName)
	if err != nil {
		return nil, err
	}
	return &SheetColumns{Filename: decoded, SheetName: sheetName, Columns: nonNilColumns(columns)}, nil
}

// SheetData returns the cached rows of a sheet.
func (s *Service) SheetData(ctx context.Context, filename, sheet string) (*SheetData, error) {
	sc, entry, err := s.sheetCache(ctx, filename, sheet)
	if err != nil {
		return nil, err
	}
	data := sc.Data
	if data == nil {
		data = []map[string]any{}
	}
	headers := sc.Headers
	if headers == nil {
		headers = []string{}
	}
	return &SheetData{
		Filename:  entry.Filename,
		SheetName: sc.SheetName,
		Headers:   headers,
		Data:      data,
		TotalRows: len(data),
	}, nil
}

func (s *Service) sheetCache(ctx context.Context, filename, sheet string) (*store.SheetCache, *store.FileCache, error) {
	entry, err := s.lookup(ctx, filename, false)
	if err != nil {
		return nil, nil, err
	}
	sc, err := resolveSheet(ctx, s.sheets, entry, sheet)
	if err != nil {
		return nil, nil, err
	}
	return sc, entry, nil
}

func nonNilColumns(c []store.Column) []store.Column {
	if c == nil {
		return []store.Column{}
	}
	return c
}
