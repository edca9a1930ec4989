package core

// scheduler.go runs the cache synchronizer periodically.
//
// The scheduler is long-running and stops when its context is cancelled. A
// failed pass is logged and the next tick runs normally.

import (
	"context"
	"log/slog"
	"time"
)

// StartSyncScheduler syncs immediately, then every interval, until ctx is
// cancelled. A non-positive interval returns at once.
func (s *Synchronizer) StartSyncScheduler(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	slog.Info("sync scheduler started", "interval", interval.String(), "folder", s.folder)

	s.runSyncJob(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("sync scheduler stopped")
			return
		case <-ticker.C:
			s.runSyncJob(ctx)
		}
	}
}

// runSyncJob performs one sync pass.
func (s *Synchronizer) runSyncJob(ctx context.Context) {
	slog.Debug("sync job started")
	if _, err := s.Sync(ctx); err != nil && ctx.Err() == nil {
		slog.Error("scheduled sync failed", "error", err)
	}
}
