package core

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/JonMunkholm/sheetvault/internal/logging"
	"github.com/JonMunkholm/sheetvault/internal/store"
	"github.com/JonMunkholm/sheetvault/internal/workbook"
)

const (
	workbookExt    = ".xlsx"
	lockFilePrefix = "~$"
)

// SyncReport summarizes one synchronization pass.
type SyncReport struct {
	Scanned     int `json:"scanned"`
	Rebuilt     int `json:"rebuilt"`
	Skipped     int `json:"skipped"`
	SoftDeleted int `json:"soft_deleted"`
	Failed      int `json:"failed"`
	Purged      int `json:"purged"`
}

// Synchronizer keeps the file and sheet caches in line with the workbook
// folder.
type Synchronizer struct {
	folder  string
	maxRow  int
	files   *store.Files
	sheets  *store.Sheets
	builder *SheetBuilder
	now     func() time.Time
}

// NewSynchronizer returns a synchronizer over folder.
func NewSynchronizer(db store.DBTX, folder string, builder *SheetBuilder, maxRow int) *Synchronizer {
	return &Synchronizer{
		folder:  folder,
		maxRow:  maxRow,
		files:   store.NewFiles(db),
		sheets:  store.NewSheets(db),
		builder: builder,
		now:     time.Now,
	}
}

// Folder returns the workbook folder.
func (s *Synchronizer) Folder() string { return s.folder }

// Candidates lists the workbook filenames of the folder, skipping Excel
// lock files. A missing folder has no candidates.
func (s *Synchronizer) Candidates() ([]string, error) {
	return listWorkbooks(s.folder)
}

func listWorkbooks(folder string) ([]string, error) {
	entries, err := os.ReadDir(folder)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read folder %s: %w", folder, err)
	}
	var names []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, workbookExt) || strings.HasPrefix(name, lockFilePrefix) {
			continue
		}
		names = append(names, name)
	}
	return names, nil
}

// HasWorkbooks reports whether the folder holds at least one workbook.
func (s *Synchronizer) HasWorkbooks() bool {
	names, err := s.Candidates()
	return err == nil && len(names) > 0
}

// Sync rebuilds the cache of every new or modified workbook, soft-deletes
// entries whose file disappeared and purges orphaned sheet caches.
func (s *Synchronizer) Sync(ctx context.Context) (SyncReport, error) {
	var report SyncReport
	log := logging.WithFields(ctx, "folder", s.folder)
	start := time.Now()

	names, err := s.Candidates()
	if err != nil {
		return report, err
	}

	seen := make([]string, 0, len(names))
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		report.Scanned++
		seen = append(seen, name)

		stale, err := s.stale(ctx, name)
		if err != nil {
			log.Error("sync check failed", "filename", name, "error", err)
			report.Failed++
			continue
		}
		if !stale {
			report.Skipped++
			continue
		}
		if _, err := s.RefreshFile(ctx, name, nil); err != nil {
			log.Error("cache rebuild failed", "filename", name, "error", err)
			report.Failed++
			continue
		}
		report.Rebuilt++
	}

	// Keep API-imported entries when the folder is empty.
	if len(seen) > 0 {
		n, err := s.files.SoftDeleteMissing(ctx, seen, s.now())
		if err != nil {
			return report, fmt.Errorf("soft-delete missing files: %w", err)
		}
		report.SoftDeleted = n
	}

	purged, err := s.sheets.PurgeOrphans(ctx)
	if err != nil {
		return report, fmt.Errorf("purge orphaned sheets: %w", err)
	}
	report.Purged = purged

	log.Info("sync completed",
		"scanned", report.Scanned,
		"rebuilt", report.Rebuilt,
		"skipped", report.Skipped,
		"soft_deleted", report.SoftDeleted,
		"failed", report.Failed,
		"purged", report.Purged,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return report, nil
}

// stale reports whether name has no entry or changed after it was cached.
func (s *Synchronizer) stale(ctx context.Context, name string) (bool, error) {
	info, err := os.Stat(filepath.Join(s.folder, name))
	if err != nil {
		return false, err
	}
	entry, err := s.files.GetByFilename(ctx, name)
	if errors.Is(err, store.ErrNotFound) {
		return true, nil
	}
	if err != nil {
		return false, err
	}
	return store.Truncate(info.ModTime()).After(entry.FileModified), nil
}

// RefreshFile rebuilds the summary of one workbook and the cache of each of
// its sheets. by, when set, is recorded as the last modifier.
func (s *Synchronizer) RefreshFile(ctx context.Context, filename string, by *store.User) (*store.FileCache, error) {
	path := filepath.Join(s.folder, filename)
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrFileNotFound, filename)
		}
		return nil, err
	}

	wb, err := workbook.Open(path)
	if err != nil {
		return nil, err
	}
	defer wb.Close()

	summaries, err := wb.Summaries(s.maxRow)
	if err != nil {
		return nil, err
	}

	entry := &store.FileCache{
		Filename:      filename,
		Name:          strings.TrimSuffix(filename, workbookExt),
		FilePath:      path,
		SheetsCount:   len(summaries),
		Sheets:        make([]string, 0, len(summaries)),
		SheetsDetails: make(map[string]store.SheetDetail, len(summaries)),
		FileSize:      info.Size(),
		FileModified:  info.ModTime(),
	}
	for _, sum := range summaries {
		entry.Sheets = append(entry.Sheets, sum.Name)
		entry.SheetsDetails[sum.Name] = store.SheetDetail{Columns: sum.Columns, Entries: sum.Entries}
		entry.TotalEntries += sum.Entries
	}
	if by != nil {
		id := by.ID
		entry.LastModifiedBy = &id
	}

	if err := s.files.Upsert(ctx, entry); err != nil {
		return nil, fmt.Errorf("cache file %s: %w", filename, err)
	}

	var errs []error
	for _, sheet := range entry.Sheets {
		if _, err := s.builder.Build(ctx, entry, wb, sheet); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		return entry, err
	}

	logging.FromContext(ctx).Info("file cached",
		"filename", filename,
		"sheets", entry.SheetsCount,
		"entries", entry.TotalEntries,
	)
	return entry, nil
}
