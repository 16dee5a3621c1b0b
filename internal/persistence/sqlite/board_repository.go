package sqlite

import (
	"context"
	"fmt"

	"github.com/example/staffboard/internal/persistence"
	"github.com/jmoiron/sqlx"
)

type boardRow struct {
	ID       string `db:"id"`
	UserID   string `db:"user_id"`
	Status   string `db:"status"`
	Note     string `db:"note"`
	StartAt  string `db:"start_at"`
	EndAt    string `db:"end_at"`
	CachedAt string `db:"cached_at"`
}

// ReplaceBoardEntries swaps the cached board of a single user. Entries of
// other users are left untouched.
func (s *Storage) ReplaceBoardEntries(ctx context.Context, userID string, entries []persistence.BoardEntry) error {
	cachedAt := formatTime(s.now())
	rows := make([]boardRow, 0, len(entries))
	for _, entry := range entries {
		if entry.UserID != "" && entry.UserID != userID {
			return fmt.Errorf("%w: board entry %s belongs to %s", persistence.ErrConstraintViolation, entry.ID, entry.UserID)
		}
		rows = append(rows, boardRow{
			ID:       entry.ID,
			UserID:   userID,
			Status:   entry.Status,
			Note:     entry.Note,
			StartAt:  formatTime(entry.Start),
			EndAt:    formatTime(entry.End),
			CachedAt: cachedAt,
		})
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.withTx(ctx, func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM board_entries WHERE user_id = ?`, userID); err != nil {
			return err
		}
		return insertRows(ctx, tx, `
			INSERT INTO board_entries (id, user_id, status, note, start_at, end_at, cached_at)
			VALUES (:id, :user_id, :status, :note, :start_at, :end_at, :cached_at)`, rows)
	})
}

// ListBoardEntries returns the cached board of a user ordered by start.
func (s *Storage) ListBoardEntries(ctx context.Context, userID string) ([]persistence.BoardEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var rows []boardRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT id, user_id, status, note, start_at, end_at, cached_at
		FROM board_entries WHERE user_id = ? ORDER BY start_at, id`, userID)
	if err != nil {
		return nil, mapError(err)
	}

	out := make([]persistence.BoardEntry, 0, len(rows))
	for _, row := range rows {
		start, err := parseTime(row.StartAt)
		if err != nil {
			return nil, err
		}
		end, err := parseTime(row.EndAt)
		if err != nil {
			return nil, err
		}
		cached, err := parseTime(row.CachedAt)
		if err != nil {
			return nil, err
		}
		out = append(out, persistence.BoardEntry{
			ID:       row.ID,
			UserID:   row.UserID,
			Status:   row.Status,
			Note:     row.Note,
			Start:    start,
			End:      end,
			CachedAt: cached,
		})
	}
	return out, nil
}
