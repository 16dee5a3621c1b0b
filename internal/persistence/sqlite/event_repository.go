package sqlite

import (
	"context"
	"fmt"
	"strings"

	"github.com/example/staffboard/internal/persistence"
	"github.com/jmoiron/sqlx"
)

type eventRow struct {
	ID           string `db:"id"`
	Title        string `db:"title"`
	Description  string `db:"description"`
	DepartmentID string `db:"department_id"`
	StartAt      string `db:"start_at"`
	EndAt        string `db:"end_at"`
	Pattern      string `db:"pattern"`
	CreatedAt    string `db:"created_at"`
	UpdatedAt    string `db:"updated_at"`
}

func toEventRow(ev persistence.Event) eventRow {
	return eventRow{
		ID:           ev.ID,
		Title:        ev.Title,
		Description:  ev.Description,
		DepartmentID: ev.DepartmentID,
		StartAt:      formatTime(ev.Start),
		EndAt:        formatTime(ev.End),
		Pattern:      ev.Pattern,
		CreatedAt:    formatTime(ev.CreatedAt),
		UpdatedAt:    formatTime(ev.UpdatedAt),
	}
}

func (r eventRow) model() (persistence.Event, error) {
	var (
		ev  persistence.Event
		err error
	)
	ev.ID = r.ID
	ev.Title = r.Title
	ev.Description = r.Description
	ev.DepartmentID = r.DepartmentID
	ev.Pattern = r.Pattern
	if ev.Start, err = parseTime(r.StartAt); err != nil {
		return persistence.Event{}, err
	}
	if ev.End, err = parseTime(r.EndAt); err != nil {
		return persistence.Event{}, err
	}
	if ev.CreatedAt, err = parseTime(r.CreatedAt); err != nil {
		return persistence.Event{}, err
	}
	if ev.UpdatedAt, err = parseTime(r.UpdatedAt); err != nil {
		return persistence.Event{}, err
	}
	return ev, nil
}

const eventColumns = `id, title, description, department_id, start_at, end_at, pattern, created_at, updated_at`

// CreateEvent inserts a new event.
func (s *Storage) CreateEvent(ctx context.Context, event persistence.Event) error {
	if event.ID == "" {
		return fmt.Errorf("%w: event id is required", persistence.ErrConstraintViolation)
	}
	now := s.now()
	if event.CreatedAt.IsZero() {
		event.CreatedAt = now
	}
	if event.UpdatedAt.IsZero() {
		event.UpdatedAt = event.CreatedAt
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.withTx(ctx, func(tx *sqlx.Tx) error {
		_, err := tx.NamedExecContext(ctx, `
			INSERT INTO events (`+eventColumns+`)
			VALUES (:id, :title, :description, :department_id, :start_at, :end_at, :pattern, :created_at, :updated_at)`,
			toEventRow(event))
		return err
	})
}

// UpdateEvent overwrites the mutable fields of an existing event. CreatedAt is
// preserved.
func (s *Storage) UpdateEvent(ctx context.Context, event persistence.Event) error {
	if event.UpdatedAt.IsZero() {
		event.UpdatedAt = s.now()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.withTx(ctx, func(tx *sqlx.Tx) error {
		res, err := tx.NamedExecContext(ctx, `
			UPDATE events
			SET title = :title, description = :description, department_id = :department_id,
			    start_at = :start_at, end_at = :end_at, pattern = :pattern, updated_at = :updated_at
			WHERE id = :id`, toEventRow(event))
		if err != nil {
			return err
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("sqlite: rows affected: %w", err)
		}
		if affected == 0 {
			return persistence.ErrNotFound
		}
		return nil
	})
}

// GetEvent retrieves an event by id.
func (s *Storage) GetEvent(ctx context.Context, id string) (persistence.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var row eventRow
	if err := s.db.GetContext(ctx, &row, `SELECT `+eventColumns+` FROM events WHERE id = ?`, id); err != nil {
		return persistence.Event{}, mapError(err)
	}
	return row.model()
}

// ListEvents returns the events matching filter ordered by start then id.
func (s *Storage) ListEvents(ctx context.Context, filter persistence.EventFilter) ([]persistence.Event, error) {
	var (
		clauses []string
		args    []any
	)
	if filter.DepartmentID != "" {
		clauses = append(clauses, "department_id = ?")
		args = append(args, filter.DepartmentID)
	}
	if filter.To != nil {
		clauses = append(clauses, "start_at < ?")
		args = append(args, formatTime(*filter.To))
	}
	if filter.From != nil {
		clauses = append(clauses, "end_at > ?")
		args = append(args, formatTime(*filter.From))
	}

	query := `SELECT ` + eventColumns + ` FROM events`
	if len(clauses) > 0 {
		query += ` WHERE ` + strings.Join(clauses, " AND ")
	}
	query += ` ORDER BY start_at, id`

	s.mu.RLock()
	defer s.mu.RUnlock()

	var rows []eventRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, mapError(err)
	}

	events := make([]persistence.Event, 0, len(rows))
	for _, row := range rows {
		ev, err := row.model()
		if err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	return events, nil
}

// DeleteEvent removes an event by id.
func (s *Storage) DeleteEvent(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.withTx(ctx, func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx, `DELETE FROM events WHERE id = ?`, id)
		if err != nil {
			return err
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("sqlite: rows affected: %w", err)
		}
		if affected == 0 {
			return persistence.ErrNotFound
		}
		return nil
	})
}
