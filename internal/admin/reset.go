// Package admin provides administrative operations for database management.
package admin

import (
	"context"
	"log/slog"
	"time"

	"github.com/JonMunkholm/sheetvault/internal/store"
)

// ResetTimeout is the maximum duration for database reset operations.
const ResetTimeout = 30 * time.Second

// ResetReport counts the rows removed by a reset.
type ResetReport struct {
	Files      int `json:"files"`
	Orphans    int `json:"orphan_sheets"`
	AuditLines int `json:"audit_entries"`
}

// Resetter handles database reset operations.
type Resetter struct {
	DB *store.DB
}

type resetFn func(ctx context.Context, tx store.DBTX, r *ResetReport) error

// ResetCache drops every active file entry together with its sheet caches so
// the next synchronization rebuilds them from the workbooks. Archived
// entries survive so they can still be restored. This is destructive.
func (r *Resetter) ResetCache(ctx context.Context) (ResetReport, error) {
	return r.run(ctx, []resetFn{
		func(ctx context.Context, tx store.DBTX, rep *ResetReport) (err error) {
			rep.Files, err = store.NewFiles(tx).DeleteActive(ctx)
			return err
		},
		func(ctx context.Context, tx store.DBTX, rep *ResetReport) (err error) {
			rep.Orphans, err = store.NewSheets(tx).PurgeOrphans(ctx)
			return err
		},
	})
}

// PruneAudit removes audit entries older than keep.
func (r *Resetter) PruneAudit(ctx context.Context, keep time.Duration) (ResetReport, error) {
	cutoff := time.Now().Add(-keep)
	return r.run(ctx, []resetFn{
		func(ctx context.Context, tx store.DBTX, rep *ResetReport) (err error) {
			rep.AuditLines, err = store.NewAudit(tx).DeleteBefore(ctx, cutoff)
			return err
		},
	})
}

func (r *Resetter) run(ctx context.Context, resets []resetFn) (ResetReport, error) {
	ctx, cancel := context.WithTimeout(ctx, ResetTimeout)
	defer cancel()

	var rep ResetReport
	err := r.DB.WithTx(ctx, func(ctx context.Context, tx store.DBTX) error {
		for _, reset := range resets {
			if err := reset(ctx, tx, &rep); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return ResetReport{}, err
	}
	slog.Info("database reset", "files", rep.Files, "orphan_sheets", rep.Orphans, "audit_entries", rep.AuditLines)
	return rep, nil
}
