package core

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/JonMunkholm/sheetvault/internal/logging"
	"github.com/JonMunkholm/sheetvault/internal/store"
	"github.com/JonMunkholm/sheetvault/internal/workbook"
)

const legacyExt = ".xls"

// CreateFile creates a workbook with one sheet whose header row holds
// columns, then caches it.
func (s *Service) CreateFile(ctx context.Context, name string, columns []string, user *store.User) (*CreateFileResult, error) {
	if user == nil {
		return nil, ErrUnauthenticated
	}
	filename, err := workbookFilename(name)
	if err != nil {
		return nil, err
	}
	columns, err = columnNames(columns)
	if err != nil {
		return nil, err
	}

	unlock := s.reconciler.locks.lock(filename)
	defer unlock()

	taken, err := s.nameTaken(ctx, filename)
	if err != nil {
		return nil, err
	}
	if taken {
		return nil, fmt.Errorf("%w: %s", ErrFileExists, filename)
	}
	path := s.path(filename)

	wb, err := workbook.Create(path, DefaultSheetName, columns)
	if err != nil {
		return nil, fmt.Errorf("create workbook: %w", err)
	}
	wb.Close()

	if _, err := s.sync.RefreshFile(ctx, filename, user); err != nil {
		logging.FromContext(ctx).Error("cache new workbook failed", "filename", filename, "error", err)
	}

	s.audit.Record(ctx, user, AuditLogParams{
		Action:   ActionFileCreate,
		Filename: filename,
		Detail:   map[string]any{"columns": columns},
	})
	return &CreateFileResult{
		Message:      fmt.Sprintf("File %s created", filename),
		Filename:     filename,
		ColumnsCount: len(columns),
	}, nil
}

// ImportFile stores an uploaded workbook under a free name and caches it.
// Concurrent imports are bounded by the limiter.
func (s *Service) ImportFile(ctx context.Context, filename string, r io.Reader, user *store.User) (*ImportResult, error) {
	if user == nil {
		return nil, ErrUnauthenticated
	}
	base, err := importBase(filename)
	if err != nil {
		return nil, err
	}

	if err := s.limiter.Acquire(ctx); err != nil {
		return nil, err
	}
	defer s.limiter.Release()

	ctx, cancel := context.WithTimeout(ctx, ImportTimeout)
	defer cancel()
	ctx = logging.ContextWith(ctx, "import_id", uuid.NewString())
	log := logging.FromContext(ctx)

	wb, err := workbook.OpenReader(r)
	if err != nil {
		log.Warn("rejected upload", "filename", filename, "error", err)
		return nil, ErrInvalidWorkbook
	}
	defer wb.Close()

	summaries, err := wb.Summaries(s.maxRow)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidWorkbook, err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	target, unlock, err := s.reserve(ctx, base)
	if err != nil {
		return nil, err
	}
	defer unlock()

	if err := wb.SaveAs(s.path(target)); err != nil {
		return nil, fmt.Errorf("save import: %w", err)
	}
	log.Info("workbook imported", "filename", target, "sheets", len(summaries))

	if _, err := s.sync.RefreshFile(ctx, target, user); err != nil {
		log.Error("cache imported workbook failed", "filename", target, "error", err)
	}

	s.audit.Record(ctx, user, AuditLogParams{
		Action:   ActionFileImport,
		Filename: target,
		Detail:   map[string]any{"original_name": filename, "sheets": len(summaries)},
	})
	if summaries == nil {
		summaries = []workbook.Summary{}
	}
	return &ImportResult{
		Message:     fmt.Sprintf("File %s imported", target),
		Filename:    target,
		Sheets:      summaries,
		TotalSheets: len(summaries),
	}, nil
}

// reserve picks the first free name among base.xlsx, base (1).xlsx, ... and
// holds its lock until the returned func is called.
func (s *Service) reserve(ctx context.Context, base string) (string, func(), error) {
	for n := 0; ; n++ {
		name := base + workbookExt
		if n > 0 {
			name = fmt.Sprintf("%s (%d)%s", base, n, workbookExt)
		}
		unlock := s.reconciler.locks.lock(name)
		taken, err := s.nameTaken(ctx, name)
		if err != nil {
			unlock()
			return "", nil, err
		}
		if !taken {
			return name, unlock, nil
		}
		unlock()
	}
}

// nameTaken reports whether filename is held by a file in the folder or by
// a cache entry, archived entries included.
func (s *Service) nameTaken(ctx context.Context, filename string) (bool, error) {
	if _, err := os.Stat(s.path(filename)); !errors.Is(err, os.ErrNotExist) {
		return true, nil
	}
	_, err := s.files.GetByFilename(ctx, filename)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, store.ErrNotFound):
		return false, nil
	default:
		return false, err
	}
}

// AddSheet appends a sheet with a header row to an existing workbook.
func (s *Service) AddSheet(ctx context.Context, filename, name string, columns []string, user *store.User) (*AddSheetResult, error) {
	if user == nil {
		return nil, ErrUnauthenticated
	}
	decoded := decodeName(filename)
	if err := checkFilename(decoded); err != nil {
		return nil, err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, invalid("sheet name is required")
	}
	columns, err := columnNames(columns)
	if err != nil {
		return nil, err
	}

	unlock := s.reconciler.locks.lock(decoded)
	defer unlock()

	if !s.physical(decoded) {
		return nil, fmt.Errorf("%w: %s", ErrFileNotFound, decoded)
	}
	wb, err := workbook.Open(s.path(decoded))
	if err != nil {
		return nil, err
	}
	defer wb.Close()

	if err := wb.AddSheet(name, columns); err != nil {
		if errors.Is(err, workbook.ErrSheetExists) {
			return nil, fmt.Errorf("%w: %s", ErrSheetExists, name)
		}
		return nil, err
	}
	if err := wb.Save(); err != nil {
		return nil, fmt.Errorf("save workbook: %w", err)
	}
	if _, err := s.sync.RefreshFile(ctx, decoded, user); err != nil {
		logging.FromContext(ctx).Error("cache refresh after new sheet failed", "filename", decoded, "error", err)
	}

	s.audit.Record(ctx, user, AuditLogParams{
		Action:    ActionSheetCreate,
		Filename:  decoded,
		SheetName: name,
		Detail:    map[string]any{"columns": columns},
	})
	return &AddSheetResult{
		Message:      fmt.Sprintf("Sheet %s created", name),
		SheetName:    name,
		ColumnsCount: len(columns),
	}, nil
}

// workbookFilename turns a display name into a workbook filename.
func workbookFilename(name string) (string, error) {
	name = strings.TrimSpace(name)
	name = strings.NewReplacer("/", "-", `\`, "-").Replace(name)
	if name == "" || name == workbookExt {
		return "", invalid("file name is required")
	}
	if !strings.HasSuffix(strings.ToLower(name), workbookExt) {
		name += workbookExt
	}
	if err := checkFilename(name); err != nil {
		return "", err
	}
	return name, nil
}

// importBase validates an uploaded filename and returns it without its
// extension.
func importBase(filename string) (string, error) {
	name := filepath.Base(strings.ReplaceAll(strings.TrimSpace(filename), `\`, "/"))
	ext := strings.ToLower(filepath.Ext(name))
	if ext != workbookExt && ext != legacyExt {
		return "", invalid("only .xlsx and .xls files are accepted")
	}
	base := strings.TrimSpace(strings.TrimSuffix(name, filepath.Ext(name)))
	if base == "" || strings.HasPrefix(base, lockFilePrefix) {
		return "", invalid("invalid file name %q", filename)
	}
	if err := checkFilename(base); err != nil {
		return "", err
	}
	return base, nil
}

// columnNames names blank columns by position and requires at least one.
func columnNames(columns []string) ([]string, error) {
	if len(columns) == 0 {
		return nil, invalid("at least one column is required")
	}
	out := make([]string, len(columns))
	for i, c := range columns {
		c = strings.TrimSpace(c)
		if c == "" {
			c = fmt.Sprintf("Colonne %d", i+1)
		}
		out[i] = c
	}
	return out, nil
}

// archiveName is the name a deleted workbook is archived under.
func archiveName(filename string, at time.Time) string {
	base := strings.TrimSuffix(filename, workbookExt)
	return fmt.Sprintf("%s_%s%s", base, at.Format("20060102_150405"), workbookExt)
}
