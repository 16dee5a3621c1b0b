package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/example/staffboard/internal/persistence"
	"github.com/jmoiron/sqlx"
)

type snapshotRow struct {
	UserID      string         `db:"user_id"`
	Status      string         `db:"status"`
	Progress    int            `db:"progress"`
	Source      string         `db:"source"`
	Reason      string         `db:"reason"`
	WindowStart sql.NullString `db:"window_start"`
	WindowEnd   sql.NullString `db:"window_end"`
	ComputedAt  string         `db:"computed_at"`
}

// ReplaceStatusSnapshots swaps the stored status snapshots.
func (s *Storage) ReplaceStatusSnapshots(ctx context.Context, snapshots []persistence.StatusSnapshot) error {
	rows := make([]snapshotRow, 0, len(snapshots))
	for _, snap := range snapshots {
		rows = append(rows, snapshotRow{
			UserID:      snap.UserID,
			Status:      snap.Status,
			Progress:    snap.Progress,
			Source:      snap.Source,
			Reason:      snap.Reason,
			WindowStart: formatOptionalTime(snap.WindowStart),
			WindowEnd:   formatOptionalTime(snap.WindowEnd),
			ComputedAt:  formatTime(snap.ComputedAt),
		})
	}

	return s.replaceAll(ctx, "status_snapshots", func(tx *sqlx.Tx) error {
		return insertRows(ctx, tx, `
			INSERT INTO status_snapshots (user_id, status, progress, source, reason, window_start, window_end, computed_at)
			VALUES (:user_id, :status, :progress, :source, :reason, :window_start, :window_end, :computed_at)`, rows)
	})
}

// ListStatusSnapshots returns every stored snapshot ordered by user id.
func (s *Storage) ListStatusSnapshots(ctx context.Context) ([]persistence.StatusSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var rows []snapshotRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT user_id, status, progress, source, reason, window_start, window_end, computed_at
		FROM status_snapshots ORDER BY user_id`)
	if err != nil {
		return nil, mapError(err)
	}

	out := make([]persistence.StatusSnapshot, 0, len(rows))
	for _, row := range rows {
		computed, err := parseTime(row.ComputedAt)
		if err != nil {
			return nil, err
		}
		windowStart, err := parseOptionalTime(row.WindowStart)
		if err != nil {
			return nil, err
		}
		windowEnd, err := parseOptionalTime(row.WindowEnd)
		if err != nil {
			return nil, err
		}
		out = append(out, persistence.StatusSnapshot{
			UserID:      row.UserID,
			Status:      row.Status,
			Progress:    row.Progress,
			Source:      row.Source,
			Reason:      row.Reason,
			WindowStart: windowStart,
			WindowEnd:   windowEnd,
			ComputedAt:  computed,
		})
	}
	return out, nil
}

type syncRunRow struct {
	ID         string `db:"id"`
	StartedAt  string `db:"started_at"`
	FinishedAt string `db:"finished_at"`
	Stages     string `db:"stages"`
}

// CreateSyncRun stores a pipeline report.
func (s *Storage) CreateSyncRun(ctx context.Context, run persistence.SyncRun) error {
	if run.ID == "" {
		return fmt.Errorf("%w: sync run id is required", persistence.ErrConstraintViolation)
	}
	stages := run.Stages
	if stages == nil {
		stages = []persistence.SyncStage{}
	}
	encoded, err := json.Marshal(stages)
	if err != nil {
		return fmt.Errorf("sqlite: encode sync stages: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.withTx(ctx, func(tx *sqlx.Tx) error {
		_, err := tx.NamedExecContext(ctx, `
			INSERT INTO sync_runs (id, started_at, finished_at, stages)
			VALUES (:id, :started_at, :finished_at, :stages)`, syncRunRow{
			ID:         run.ID,
			StartedAt:  formatTime(run.StartedAt),
			FinishedAt: formatTime(run.FinishedAt),
			Stages:     string(encoded),
		})
		return err
	})
}

// LatestSyncRun returns the most recently started pipeline report.
func (s *Storage) LatestSyncRun(ctx context.Context) (persistence.SyncRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var row syncRunRow
	err := s.db.GetContext(ctx, &row, `
		SELECT id, started_at, finished_at, stages
		FROM sync_runs ORDER BY started_at DESC, rowid DESC LIMIT 1`)
	if err != nil {
		return persistence.SyncRun{}, mapError(err)
	}

	started, err := parseTime(row.StartedAt)
	if err != nil {
		return persistence.SyncRun{}, err
	}
	finished, err := parseTime(row.FinishedAt)
	if err != nil {
		return persistence.SyncRun{}, err
	}
	var stages []persistence.SyncStage
	if err := json.Unmarshal([]byte(row.Stages), &stages); err != nil {
		return persistence.SyncRun{}, fmt.Errorf("sqlite: decode sync stages: %w", err)
	}
	return persistence.SyncRun{ID: row.ID, StartedAt: started, FinishedAt: finished, Stages: stages}, nil
}
