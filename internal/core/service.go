package core

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/JonMunkholm/sheetvault/internal/archive"
	"github.com/JonMunkholm/sheetvault/internal/classify"
	"github.com/JonMunkholm/sheetvault/internal/store"
)

// ImportTimeout is the maximum duration of an import once a slot is held.
var ImportTimeout = 5 * time.Minute

// DefaultSheetName names the sheet of a created workbook.
const DefaultSheetName = "Données"

// Options configures a Service.
type Options struct {
	Folder       string
	MaxRow       int
	SkipListSync bool
	Classifier   *classify.Classifier
	Limiter      *ImportLimiter
}

// Service provides the workbook operations behind the API.
type Service struct {
	db         *store.DB
	files      *store.Files
	sheets     *store.Sheets
	users      *store.Users
	archive    archive.Archiver
	audit      *AuditService
	builder    *SheetBuilder
	sync       *Synchronizer
	reconciler *Reconciler
	limiter    *ImportLimiter

	folder       string
	maxRow       int
	skipListSync bool
	now          func() time.Time
}

// NewService creates the workbook folder if needed and wires the cache
// components around db.
func NewService(db *store.DB, arch archive.Archiver, opts Options) (*Service, error) {
	if opts.Folder == "" {
		return nil, fmt.Errorf("workbook folder is required")
	}
	if opts.MaxRow < 2 {
		opts.MaxRow = 1000
	}
	if err := os.MkdirAll(opts.Folder, 0o755); err != nil {
		return nil, fmt.Errorf("create workbook folder: %w", err)
	}
	if opts.Limiter == nil {
		opts.Limiter = NewImportLimiter(DefaultMaxConcurrentImports, DefaultMaxWaitTime)
	}

	builder := NewSheetBuilder(db, opts.Classifier, opts.MaxRow)
	sync := NewSynchronizer(db, opts.Folder, builder, opts.MaxRow)

	return &Service{
		db:           db,
		files:        store.NewFiles(db),
		sheets:       store.NewSheets(db),
		users:        store.NewUsers(db),
		archive:      arch,
		audit:        NewAuditService(db),
		builder:      builder,
		sync:         sync,
		reconciler:   NewReconciler(db, sync),
		limiter:      opts.Limiter,
		folder:       opts.Folder,
		maxRow:       opts.MaxRow,
		skipListSync: opts.SkipListSync,
		now:          time.Now,
	}, nil
}

// Synchronizer returns the cache synchronizer.
func (s *Service) Synchronizer() *Synchronizer { return s.sync }

// Audit returns the audit service.
func (s *Service) Audit() *AuditService { return s.audit }

// Limiter returns the import limiter.
func (s *Service) Limiter() *ImportLimiter { return s.limiter }

// RefreshCache syncs the folder and reports the number of entries.
func (s *Service) RefreshCache(ctx context.Context, user *store.User) (*RefreshResult, error) {
	report, err := s.sync.Sync(ctx)
	if err != nil {
		return nil, fmt.Errorf("refresh cache: %w", err)
	}
	n, err := s.files.Count(ctx)
	if err != nil {
		return nil, err
	}
	s.audit.Record(ctx, user, AuditLogParams{
		Action: ActionCacheRefresh,
		Detail: map[string]any{"rebuilt": report.Rebuilt, "soft_deleted": report.SoftDeleted},
	})
	return &RefreshResult{Message: "Cache refreshed", FilesCount: n, Report: report}, nil
}

// RefreshTypes rebuilds the sheet caches of every non-deleted entry whose
// file exists, re-running column classification. It returns the number of
// sheets rebuilt.
func (s *Service) RefreshTypes(ctx context.Context) (int, error) {
	entries, err := s.files.ListActive(ctx)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, e := range entries {
		if _, err := os.Stat(s.path(e.Filename)); err != nil {
			continue
		}
		refreshed, err := s.sync.RefreshFile(ctx, e.Filename, nil)
		if err != nil {
			return n, err
		}
		n += len(refreshed.Sheets)
	}
	return n, nil
}
