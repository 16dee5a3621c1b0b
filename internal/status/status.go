package status

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Status is the classification shown for an employee at a point in time.
type Status string

const (
	// StatusHome indicates the employee is outside working hours.
	StatusHome Status = "HOME"
	// StatusLunch indicates the employee is inside the lunch window.
	StatusLunch Status = "LUNCH"
	// StatusInOffice indicates the employee is working on site.
	StatusInOffice Status = "IN_OFFICE"
	// StatusRemoteWork indicates the employee is working remotely.
	StatusRemoteWork Status = "REMOTE_WORK"
	// StatusNotAvailable indicates the employee has no working day.
	StatusNotAvailable Status = "NOT_AVAILABLE"
)

// Source identifies which input produced a Result.
type Source string

const (
	SourceSchedule Source = "schedule"
	SourceBoard    Source = "board"
	SourceCalendar Source = "calendar"
)

// RemoteMode describes an approved remote-work authorization for a day.
type RemoteMode string

const (
	RemoteNone    RemoteMode = "NONE"
	RemoteAM      RemoteMode = "AM"
	RemotePM      RemoteMode = "PM"
	RemoteFullDay RemoteMode = "FULL_DAY"
)

// ParseRemoteMode normalizes a remote mode label. Unknown labels map to RemoteNone.
func ParseRemoteMode(value string) RemoteMode {
	switch strings.ToUpper(strings.TrimSpace(value)) {
	case "AM":
		return RemoteAM
	case "PM":
		return RemotePM
	case "FULL_DAY", "FULL", "FULLDAY":
		return RemoteFullDay
	default:
		return RemoteNone
	}
}

// ErrInvalidClock indicates a malformed HH:MM value.
var ErrInvalidClock = errors.New("status: invalid clock time")

// ErrInvalidSchedule indicates the day schedule boundaries are out of order.
var ErrInvalidSchedule = errors.New("status: schedule boundaries out of order")

// ClockTime is a wall clock time expressed in minutes after midnight.
type ClockTime int

// ParseClock parses "HH:MM" (or "HH:MM:SS", seconds are ignored).
func ParseClock(value string) (ClockTime, error) {
	parts := strings.Split(strings.TrimSpace(value), ":")
	if len(parts) < 2 || len(parts) > 3 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidClock, value)
	}
	hour, err := strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 24 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidClock, value)
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidClock, value)
	}
	if hour == 24 && minute != 0 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidClock, value)
	}
	return ClockTime(hour*60 + minute), nil
}

// MustClock is ParseClock for literals known to be valid.
func MustClock(value string) ClockTime {
	c, err := ParseClock(value)
	if err != nil {
		panic(err)
	}
	return c
}

// String renders the clock time as HH:MM.
func (c ClockTime) String() string {
	return fmt.Sprintf("%02d:%02d", int(c)/60, int(c)%60)
}

// On returns the instant of the clock time on the calendar day of ref.
func (c ClockTime) On(ref time.Time) time.Time {
	y, m, d := ref.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, ref.Location()).Add(time.Duration(c) * time.Minute)
}

// DaySchedule is the planned working day of an employee.
type DaySchedule struct {
	WorkStart  ClockTime
	LunchStart ClockTime
	LunchEnd   ClockTime
	WorkEnd    ClockTime
}

// Validate checks the boundaries are ordered.
func (d DaySchedule) Validate() error {
	if d.WorkStart >= d.WorkEnd ||
		d.LunchStart < d.WorkStart ||
		d.LunchEnd < d.LunchStart ||
		d.WorkEnd < d.LunchEnd {
		return ErrInvalidSchedule
	}
	return nil
}

// WeekSchedule maps weekdays to working days. Missing weekdays are days off.
type WeekSchedule map[time.Weekday]DaySchedule

// For returns the schedule for the weekday of t.
func (w WeekSchedule) For(t time.Time) (DaySchedule, bool) {
	day, ok := w[t.Weekday()]
	return day, ok
}

// BoardEntry is an explicit status override published on the status board.
type BoardEntry struct {
	ID     string
	Status string
	Note   string
	Start  time.Time
	End    time.Time
}

// Contains reports whether t falls inside [Start, End).
func (b BoardEntry) Contains(t time.Time) bool {
	return !t.Before(b.Start) && t.Before(b.End)
}

// Input gathers everything Derive needs for one employee.
type Input struct {
	Now        time.Time
	Schedule   *DaySchedule
	Remote     RemoteMode
	Flexible   bool
	OnVacation bool
	Holiday    bool
	Board      []BoardEntry
}

// Result is the derived status.
type Result struct {
	Status      Status
	Progress    int
	Source      Source
	WindowStart time.Time
	WindowEnd   time.Time
	Reason      string
}

// Derive classifies the employee's status at in.Now.
//
// Precedence, highest first: an active board entry, a holiday or vacation,
// a missing schedule, the schedule itself (with remote and flexible
// adjustments).
func Derive(in Input) Result {
	now := in.Now

	if entry, ok := activeBoardEntry(in.Board, now); ok {
		label := strings.ToUpper(strings.TrimSpace(entry.Status))
		if label == "" {
			label = string(StatusNotAvailable)
		}
		return Result{
			Status:      Status(label),
			Progress:    Progress(entry.Start, entry.End, now),
			Source:      SourceBoard,
			WindowStart: entry.Start,
			WindowEnd:   entry.End,
			Reason:      entry.Note,
		}
	}

	if in.Holiday {
		return Result{Status: StatusNotAvailable, Source: SourceCalendar, Reason: "holiday"}
	}
	if in.OnVacation {
		return Result{Status: StatusNotAvailable, Source: SourceCalendar, Reason: "vacation"}
	}
	if in.Schedule == nil {
		return Result{Status: StatusNotAvailable, Source: SourceSchedule, Reason: "no schedule"}
	}

	day := *in.Schedule
	workStart := day.WorkStart.On(now)
	workEnd := day.WorkEnd.On(now)

	if now.Before(workStart) {
		return Result{Status: StatusHome, Source: SourceSchedule, WindowEnd: workStart, Reason: "before work"}
	}
	if !now.Before(workEnd) {
		return Result{Status: StatusHome, Source: SourceSchedule, WindowStart: workEnd, Reason: "after work"}
	}

	if in.Flexible {
		st := StatusInOffice
		if in.Remote == RemoteFullDay {
			st = StatusRemoteWork
		}
		return windowResult(st, workStart, workEnd, now, "flexible schedule")
	}

	lunchStart := day.LunchStart.On(now)
	lunchEnd := day.LunchEnd.On(now)

	switch {
	case now.Before(lunchStart):
		st := StatusInOffice
		if in.Remote == RemoteAM || in.Remote == RemoteFullDay {
			st = StatusRemoteWork
		}
		return windowResult(st, workStart, lunchStart, now, "morning")
	case now.Before(lunchEnd):
		return windowResult(StatusLunch, lunchStart, lunchEnd, now, "lunch")
	default:
		st := StatusInOffice
		if in.Remote == RemotePM || in.Remote == RemoteFullDay {
			st = StatusRemoteWork
		}
		return windowResult(st, lunchEnd, workEnd, now, "afternoon")
	}
}

func windowResult(st Status, start, end, now time.Time, reason string) Result {
	return Result{
		Status:      st,
		Progress:    Progress(start, end, now),
		Source:      SourceSchedule,
		WindowStart: start,
		WindowEnd:   end,
		Reason:      reason,
	}
}

// Progress returns the elapsed share of [start, end) at now as 0..100.
func Progress(start, end, now time.Time) int {
	total := end.Sub(start).Seconds()
	if total <= 0 {
		return 0
	}
	elapsed := now.Sub(start).Seconds()
	pct := int(elapsed * 100 / total)
	if pct < 0 {
		return 0
	}
	if pct > 100 {
		return 100
	}
	return pct
}

func activeBoardEntry(entries []BoardEntry, now time.Time) (BoardEntry, bool) {
	if len(entries) == 0 {
		return BoardEntry{}, false
	}
	ordered := make([]BoardEntry, len(entries))
	copy(ordered, entries)
	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].Start.Equal(ordered[j].Start) {
			return ordered[i].ID < ordered[j].ID
		}
		return ordered[i].Start.Before(ordered[j].Start)
	})
	for _, entry := range ordered {
		if entry.Contains(now) {
			return entry, true
		}
	}
	return BoardEntry{}, false
}
