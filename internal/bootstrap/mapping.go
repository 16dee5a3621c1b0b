package bootstrap

import (
	"fmt"
	"strings"
	"time"

	"github.com/example/staffboard/internal/backend"
	"github.com/example/staffboard/internal/persistence"
	"github.com/example/staffboard/internal/status"
)

var weekdayCodes = map[string]time.Weekday{
	"SU": time.Sunday,
	"MO": time.Monday,
	"TU": time.Tuesday,
	"WE": time.Wednesday,
	"TH": time.Thursday,
	"FR": time.Friday,
	"SA": time.Saturday,
}

func mapUser(u backend.User, now time.Time) (persistence.User, error) {
	if strings.TrimSpace(u.ID) == "" {
		return persistence.User{}, fmt.Errorf("user without id")
	}
	active := true
	if u.Active != nil {
		active = *u.Active
	}
	return persistence.User{
		ID:           u.ID,
		Name:         strings.TrimSpace(u.Name),
		Email:        strings.TrimSpace(u.Email),
		DepartmentID: u.DepartmentID,
		Position:     u.Position,
		ImageURL:     strings.TrimSpace(u.ImageURL),
		Active:       active,
		UpdatedAt:    now,
	}, nil
}

func mapAuthorization(a backend.Authorization) (persistence.RemoteAuthorization, error) {
	start, end, err := parseRange(a.StartDate, a.EndDate)
	if err != nil {
		return persistence.RemoteAuthorization{}, fmt.Errorf("authorization %s: %w", a.ID, err)
	}
	mode := status.ParseRemoteMode(a.Mode)
	if mode == status.RemoteNone {
		return persistence.RemoteAuthorization{}, fmt.Errorf("authorization %s: invalid mode %q", a.ID, a.Mode)
	}
	return persistence.RemoteAuthorization{
		ID:        a.ID,
		UserID:    a.UserID,
		StartDate: start,
		EndDate:   end,
		Mode:      string(mode),
	}, nil
}

func mapVacation(v backend.Vacation) (persistence.Vacation, error) {
	start, end, err := parseRange(v.StartDate, v.EndDate)
	if err != nil {
		return persistence.Vacation{}, fmt.Errorf("vacation %s: %w", v.ID, err)
	}
	return persistence.Vacation{ID: v.ID, UserID: v.UserID, StartDate: start, EndDate: end}, nil
}

func mapHoliday(h backend.Holiday) (persistence.Holiday, error) {
	date, err := time.Parse(persistence.DateLayout, strings.TrimSpace(h.Date))
	if err != nil {
		return persistence.Holiday{}, fmt.Errorf("holiday %q: invalid date", h.Date)
	}
	return persistence.Holiday{Date: date, Name: h.Name}, nil
}

func mapSchedule(s backend.Schedule) (persistence.WorkSchedule, error) {
	day, ok := weekdayCodes[strings.ToUpper(strings.TrimSpace(s.Weekday))]
	if !ok {
		return persistence.WorkSchedule{}, fmt.Errorf("schedule for %s: invalid weekday %q", s.UserID, s.Weekday)
	}
	ds, err := parseDay(s.WorkStart, s.LunchStart, s.LunchEnd, s.WorkEnd)
	if err != nil {
		return persistence.WorkSchedule{}, fmt.Errorf("schedule for %s on %s: %w", s.UserID, s.Weekday, err)
	}
	return persistence.WorkSchedule{
		UserID:     s.UserID,
		Weekday:    day,
		WorkStart:  ds.WorkStart.String(),
		LunchStart: ds.LunchStart.String(),
		LunchEnd:   ds.LunchEnd.String(),
		WorkEnd:    ds.WorkEnd.String(),
	}, nil
}

func mapException(e backend.Exception) (persistence.ScheduleException, error) {
	date, err := time.Parse(persistence.DateLayout, strings.TrimSpace(e.Date))
	if err != nil {
		return persistence.ScheduleException{}, fmt.Errorf("exception %s: invalid date %q", e.ID, e.Date)
	}
	out := persistence.ScheduleException{
		ID:     e.ID,
		UserID: e.UserID,
		Date:   date,
		DayOff: e.DayOff,
		Reason: e.Reason,
	}
	if e.DayOff {
		return out, nil
	}
	ds, err := parseDay(e.WorkStart, e.LunchStart, e.LunchEnd, e.WorkEnd)
	if err != nil {
		return persistence.ScheduleException{}, fmt.Errorf("exception %s: %w", e.ID, err)
	}
	out.WorkStart = ds.WorkStart.String()
	out.LunchStart = ds.LunchStart.String()
	out.LunchEnd = ds.LunchEnd.String()
	out.WorkEnd = ds.WorkEnd.String()
	return out, nil
}

func parseRange(start, end string) (time.Time, time.Time, error) {
	s, err := time.Parse(persistence.DateLayout, strings.TrimSpace(start))
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid start date %q", start)
	}
	e, err := time.Parse(persistence.DateLayout, strings.TrimSpace(end))
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid end date %q", end)
	}
	if e.Before(s) {
		return time.Time{}, time.Time{}, fmt.Errorf("end date %s before start date %s", end, start)
	}
	return s, e, nil
}

func parseDay(workStart, lunchStart, lunchEnd, workEnd string) (status.DaySchedule, error) {
	var (
		ds  status.DaySchedule
		err error
	)
	if ds.WorkStart, err = status.ParseClock(workStart); err != nil {
		return ds, err
	}
	if ds.LunchStart, err = status.ParseClock(lunchStart); err != nil {
		return ds, err
	}
	if ds.LunchEnd, err = status.ParseClock(lunchEnd); err != nil {
		return ds, err
	}
	if ds.WorkEnd, err = status.ParseClock(workEnd); err != nil {
		return ds, err
	}
	return ds, ds.Validate()
}
