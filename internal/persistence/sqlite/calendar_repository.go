package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/example/staffboard/internal/persistence"
	"github.com/jmoiron/sqlx"
)

type workScheduleRow struct {
	UserID     string `db:"user_id"`
	Weekday    int    `db:"weekday"`
	WorkStart  string `db:"work_start"`
	LunchStart string `db:"lunch_start"`
	LunchEnd   string `db:"lunch_end"`
	WorkEnd    string `db:"work_end"`
}

// ReplaceWorkSchedules swaps the cached weekly schedules of every user.
func (s *Storage) ReplaceWorkSchedules(ctx context.Context, schedules []persistence.WorkSchedule) error {
	rows := make([]workScheduleRow, 0, len(schedules))
	for _, ws := range schedules {
		rows = append(rows, workScheduleRow{
			UserID:     ws.UserID,
			Weekday:    int(ws.Weekday),
			WorkStart:  ws.WorkStart,
			LunchStart: ws.LunchStart,
			LunchEnd:   ws.LunchEnd,
			WorkEnd:    ws.WorkEnd,
		})
	}

	return s.replaceAll(ctx, "work_schedules", func(tx *sqlx.Tx) error {
		return insertRows(ctx, tx, `
			INSERT INTO work_schedules (user_id, weekday, work_start, lunch_start, lunch_end, work_end)
			VALUES (:user_id, :weekday, :work_start, :lunch_start, :lunch_end, :work_end)`, rows)
	})
}

// ListWorkSchedules returns the weekly schedule of a user ordered by weekday.
func (s *Storage) ListWorkSchedules(ctx context.Context, userID string) ([]persistence.WorkSchedule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var rows []workScheduleRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT user_id, weekday, work_start, lunch_start, lunch_end, work_end
		FROM work_schedules WHERE user_id = ? ORDER BY weekday`, userID)
	if err != nil {
		return nil, mapError(err)
	}

	out := make([]persistence.WorkSchedule, 0, len(rows))
	for _, row := range rows {
		out = append(out, persistence.WorkSchedule{
			UserID:     row.UserID,
			Weekday:    time.Weekday(row.Weekday),
			WorkStart:  row.WorkStart,
			LunchStart: row.LunchStart,
			LunchEnd:   row.LunchEnd,
			WorkEnd:    row.WorkEnd,
		})
	}
	return out, nil
}

type remoteRow struct {
	ID        string `db:"id"`
	UserID    string `db:"user_id"`
	StartDate string `db:"start_date"`
	EndDate   string `db:"end_date"`
	Mode      string `db:"mode"`
}

// ReplaceRemoteAuthorizations swaps the cached remote work authorizations.
func (s *Storage) ReplaceRemoteAuthorizations(ctx context.Context, auths []persistence.RemoteAuthorization) error {
	rows := make([]remoteRow, 0, len(auths))
	for _, auth := range auths {
		rows = append(rows, remoteRow{
			ID:        auth.ID,
			UserID:    auth.UserID,
			StartDate: formatDate(auth.StartDate),
			EndDate:   formatDate(auth.EndDate),
			Mode:      auth.Mode,
		})
	}

	return s.replaceAll(ctx, "remote_authorizations", func(tx *sqlx.Tx) error {
		return insertRows(ctx, tx, `
			INSERT INTO remote_authorizations (id, user_id, start_date, end_date, mode)
			VALUES (:id, :user_id, :start_date, :end_date, :mode)`, rows)
	})
}

// RemoteAuthorizationsOn returns the authorizations of a user covering day.
func (s *Storage) RemoteAuthorizationsOn(ctx context.Context, userID string, day time.Time) ([]persistence.RemoteAuthorization, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	date := formatDate(day)
	var rows []remoteRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT id, user_id, start_date, end_date, mode
		FROM remote_authorizations
		WHERE user_id = ? AND start_date <= ? AND end_date >= ?
		ORDER BY start_date, id`, userID, date, date)
	if err != nil {
		return nil, mapError(err)
	}

	out := make([]persistence.RemoteAuthorization, 0, len(rows))
	for _, row := range rows {
		start, end, err := parseDateRange(row.StartDate, row.EndDate)
		if err != nil {
			return nil, err
		}
		out = append(out, persistence.RemoteAuthorization{
			ID:        row.ID,
			UserID:    row.UserID,
			StartDate: start,
			EndDate:   end,
			Mode:      row.Mode,
		})
	}
	return out, nil
}

type vacationRow struct {
	ID        string `db:"id"`
	UserID    string `db:"user_id"`
	StartDate string `db:"start_date"`
	EndDate   string `db:"end_date"`
}

// ReplaceVacations swaps the cached vacation periods.
func (s *Storage) ReplaceVacations(ctx context.Context, vacations []persistence.Vacation) error {
	rows := make([]vacationRow, 0, len(vacations))
	for _, v := range vacations {
		rows = append(rows, vacationRow{
			ID:        v.ID,
			UserID:    v.UserID,
			StartDate: formatDate(v.StartDate),
			EndDate:   formatDate(v.EndDate),
		})
	}

	return s.replaceAll(ctx, "vacations", func(tx *sqlx.Tx) error {
		return insertRows(ctx, tx, `
			INSERT INTO vacations (id, user_id, start_date, end_date)
			VALUES (:id, :user_id, :start_date, :end_date)`, rows)
	})
}

// VacationsOn returns the vacation periods of a user covering day.
func (s *Storage) VacationsOn(ctx context.Context, userID string, day time.Time) ([]persistence.Vacation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	date := formatDate(day)
	var rows []vacationRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT id, user_id, start_date, end_date
		FROM vacations
		WHERE user_id = ? AND start_date <= ? AND end_date >= ?
		ORDER BY start_date, id`, userID, date, date)
	if err != nil {
		return nil, mapError(err)
	}

	out := make([]persistence.Vacation, 0, len(rows))
	for _, row := range rows {
		start, end, err := parseDateRange(row.StartDate, row.EndDate)
		if err != nil {
			return nil, err
		}
		out = append(out, persistence.Vacation{ID: row.ID, UserID: row.UserID, StartDate: start, EndDate: end})
	}
	return out, nil
}

type holidayRow struct {
	Date string `db:"date"`
	Name string `db:"name"`
}

// ReplaceHolidays swaps the cached holiday calendar.
func (s *Storage) ReplaceHolidays(ctx context.Context, holidays []persistence.Holiday) error {
	rows := make([]holidayRow, 0, len(holidays))
	for _, h := range holidays {
		rows = append(rows, holidayRow{Date: formatDate(h.Date), Name: h.Name})
	}

	return s.replaceAll(ctx, "holidays", func(tx *sqlx.Tx) error {
		return insertRows(ctx, tx, `INSERT INTO holidays (date, name) VALUES (:date, :name)`, rows)
	})
}

// HolidayOn returns the holiday falling on day or persistence.ErrNotFound.
func (s *Storage) HolidayOn(ctx context.Context, day time.Time) (persistence.Holiday, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var row holidayRow
	if err := s.db.GetContext(ctx, &row, `SELECT date, name FROM holidays WHERE date = ?`, formatDate(day)); err != nil {
		return persistence.Holiday{}, mapError(err)
	}
	date, err := parseDate(row.Date)
	if err != nil {
		return persistence.Holiday{}, err
	}
	return persistence.Holiday{Date: date, Name: row.Name}, nil
}

type exceptionRow struct {
	ID         string `db:"id"`
	UserID     string `db:"user_id"`
	Date       string `db:"date"`
	DayOff     bool   `db:"day_off"`
	WorkStart  string `db:"work_start"`
	LunchStart string `db:"lunch_start"`
	LunchEnd   string `db:"lunch_end"`
	WorkEnd    string `db:"work_end"`
	Reason     string `db:"reason"`
}

// ReplaceScheduleExceptions swaps the cached one-day schedule overrides.
func (s *Storage) ReplaceScheduleExceptions(ctx context.Context, exceptions []persistence.ScheduleException) error {
	rows := make([]exceptionRow, 0, len(exceptions))
	for _, ex := range exceptions {
		rows = append(rows, exceptionRow{
			ID:         ex.ID,
			UserID:     ex.UserID,
			Date:       formatDate(ex.Date),
			DayOff:     ex.DayOff,
			WorkStart:  ex.WorkStart,
			LunchStart: ex.LunchStart,
			LunchEnd:   ex.LunchEnd,
			WorkEnd:    ex.WorkEnd,
			Reason:     ex.Reason,
		})
	}

	return s.replaceAll(ctx, "schedule_exceptions", func(tx *sqlx.Tx) error {
		return insertRows(ctx, tx, `
			INSERT INTO schedule_exceptions (id, user_id, date, day_off, work_start, lunch_start, lunch_end, work_end, reason)
			VALUES (:id, :user_id, :date, :day_off, :work_start, :lunch_start, :lunch_end, :work_end, :reason)`, rows)
	})
}

// ExceptionOn returns the schedule override of a user for day or
// persistence.ErrNotFound.
func (s *Storage) ExceptionOn(ctx context.Context, userID string, day time.Time) (persistence.ScheduleException, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var row exceptionRow
	err := s.db.GetContext(ctx, &row, `
		SELECT id, user_id, date, day_off, work_start, lunch_start, lunch_end, work_end, reason
		FROM schedule_exceptions WHERE user_id = ? AND date = ?`, userID, formatDate(day))
	if err != nil {
		return persistence.ScheduleException{}, mapError(err)
	}

	date, err := parseDate(row.Date)
	if err != nil {
		return persistence.ScheduleException{}, err
	}
	return persistence.ScheduleException{
		ID:         row.ID,
		UserID:     row.UserID,
		Date:       date,
		DayOff:     row.DayOff,
		WorkStart:  row.WorkStart,
		LunchStart: row.LunchStart,
		LunchEnd:   row.LunchEnd,
		WorkEnd:    row.WorkEnd,
		Reason:     row.Reason,
	}, nil
}

func parseDateRange(start, end string) (time.Time, time.Time, error) {
	s, err := parseDate(start)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	e, err := parseDate(end)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	if e.Before(s) {
		return time.Time{}, time.Time{}, fmt.Errorf("sqlite: inverted date range %s..%s", start, end)
	}
	return s, e, nil
}
