package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/example/staffboard/internal/persistence"
)

// SyncRunner executes one bootstrap run.
type SyncRunner interface {
	RunSync(ctx context.Context) (SyncReport, error)
}

// SyncHistory reads stored bootstrap reports.
type SyncHistory interface {
	LatestSyncRun(ctx context.Context) (SyncReport, error)
}

// SnapshotRefresher recomputes stored statuses after fresh data arrives.
type SnapshotRefresher interface {
	RefreshSnapshots(ctx context.Context) (int, error)
}

// SyncService serializes bootstrap runs. Only one run may be active at a time.
type SyncService struct {
	runner    SyncRunner
	history   SyncHistory
	refresher SnapshotRefresher
	logger    *slog.Logger
	running   sync.Mutex
}

// NewSyncService wires the pipeline and its report store. refresher may be nil.
func NewSyncService(runner SyncRunner, history SyncHistory, refresher SnapshotRefresher, logger *slog.Logger) *SyncService {
	return &SyncService{runner: runner, history: history, refresher: refresher, logger: defaultLogger(logger)}
}

// Run executes the pipeline and returns its report. When another run is
// active it fails fast with ErrSyncInProgress.
func (s *SyncService) Run(ctx context.Context) (report SyncReport, err error) {
	if s == nil {
		err = fmt.Errorf("SyncService is nil")
		return
	}
	if s.runner == nil {
		err = fmt.Errorf("sync runner not configured")
		return
	}
	if !s.running.TryLock() {
		err = ErrSyncInProgress
		return
	}
	defer s.running.Unlock()

	logger := serviceLogger(ctx, s.logger, "SyncService", "Run")
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "sync failed", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("run_id", report.RunID, "skipped", report.Skipped()).InfoContext(ctx, "sync completed")
	}()

	report, err = s.runner.RunSync(ctx)
	if err != nil {
		return
	}

	if s.refresher != nil {
		if _, rerr := s.refresher.RefreshSnapshots(ctx); rerr != nil {
			logger.WarnContext(ctx, "failed to refresh status snapshots after sync", "error", rerr)
		}
	}
	return
}

// Running reports whether a run is active.
func (s *SyncService) Running() bool {
	if s == nil {
		return false
	}
	if s.running.TryLock() {
		s.running.Unlock()
		return false
	}
	return true
}

// Latest returns the most recent stored report.
func (s *SyncService) Latest(ctx context.Context) (SyncReport, error) {
	if s == nil {
		return SyncReport{}, fmt.Errorf("SyncService is nil")
	}
	if s.history == nil {
		return SyncReport{}, fmt.Errorf("sync history not configured")
	}
	report, err := s.history.LatestSyncRun(ctx)
	if err != nil {
		if errors.Is(err, persistence.ErrNotFound) {
			return SyncReport{}, ErrNotFound
		}
		return SyncReport{}, err
	}
	return report, nil
}
