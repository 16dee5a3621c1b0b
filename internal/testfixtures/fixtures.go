package testfixtures

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/example/staffboard/internal/application"
	"github.com/example/staffboard/internal/persistence"
	"github.com/example/staffboard/internal/status"
)

var (
	userCounter  uint64
	eventCounter uint64
)

// Location is the office timezone used by fixtures.
var Location = time.FixedZone("CLT", -3*60*60)

// Monday 2024-03-04, mid morning.
var referenceTime = time.Date(2024, time.March, 4, 10, 0, 0, 0, Location)

// ReferenceTime returns the canonical baseline timestamp used by fixtures.
func ReferenceTime() time.Time {
	return referenceTime
}

// ----------------------------- User fixtures -----------------------------

// UserFixture is a deterministic mirrored employee.
type UserFixture struct {
	ID           string
	Name         string
	Email        string
	DepartmentID string
	Position     string
	ImageURL     string
	Active       bool
	UpdatedAt    time.Time
}

type UserOption func(*UserFixture)

func NewUserFixture(opts ...UserOption) UserFixture {
	idx := atomic.AddUint64(&userCounter, 1)
	id := fmt.Sprintf("user-%03d", idx)
	fixture := UserFixture{
		ID:           id,
		Name:         fmt.Sprintf("User %03d", idx),
		Email:        fmt.Sprintf("%s@example.com", id),
		DepartmentID: "engineering",
		Active:       true,
		UpdatedAt:    referenceTime.UTC(),
	}
	for _, opt := range opts {
		opt(&fixture)
	}
	return fixture
}

func WithUserID(id string) UserOption {
	return func(f *UserFixture) { f.ID = id }
}

func WithUserName(name string) UserOption {
	return func(f *UserFixture) { f.Name = name }
}

func WithUserDepartment(departmentID string) UserOption {
	return func(f *UserFixture) { f.DepartmentID = departmentID }
}

func WithUserImage(url string) UserOption {
	return func(f *UserFixture) { f.ImageURL = url }
}

// WithUserInactive marks the user as no longer employed.
func WithUserInactive() UserOption {
	return func(f *UserFixture) { f.Active = false }
}

func (f UserFixture) Persistence() persistence.User {
	return persistence.User{
		ID:           f.ID,
		Name:         f.Name,
		Email:        f.Email,
		DepartmentID: f.DepartmentID,
		Position:     f.Position,
		ImageURL:     f.ImageURL,
		Active:       f.Active,
		UpdatedAt:    f.UpdatedAt,
	}
}

func (f UserFixture) Application() application.User {
	return application.User{
		ID:           f.ID,
		Name:         f.Name,
		Email:        f.Email,
		DepartmentID: f.DepartmentID,
		Position:     f.Position,
		HasImage:     f.ImageURL != "",
		Active:       f.Active,
		UpdatedAt:    f.UpdatedAt,
	}
}

// ----------------------------- Event fixtures ----------------------------

// EventFixture is a deterministic department event. By default it is a one
// hour meeting starting at the reference time.
type EventFixture struct {
	ID           string
	Title        string
	Description  string
	DepartmentID string
	Start        time.Time
	End          time.Time
	Pattern      string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type EventOption func(*EventFixture)

func NewEventFixture(opts ...EventOption) EventFixture {
	idx := atomic.AddUint64(&eventCounter, 1)
	fixture := EventFixture{
		ID:           fmt.Sprintf("event-%03d", idx),
		Title:        fmt.Sprintf("Event %03d", idx),
		DepartmentID: "engineering",
		Start:        referenceTime,
		End:          referenceTime.Add(time.Hour),
		CreatedAt:    referenceTime.UTC(),
		UpdatedAt:    referenceTime.UTC(),
	}
	for _, opt := range opts {
		opt(&fixture)
	}
	return fixture
}

func WithEventID(id string) EventOption {
	return func(f *EventFixture) { f.ID = id }
}

func WithEventTitle(title string) EventOption {
	return func(f *EventFixture) { f.Title = title }
}

func WithEventDepartment(departmentID string) EventOption {
	return func(f *EventFixture) { f.DepartmentID = departmentID }
}

// WithEventWindow sets the base start and end. For recurring events the end
// bounds the last calendar day of the series.
func WithEventWindow(start, end time.Time) EventOption {
	return func(f *EventFixture) {
		f.Start = start
		f.End = end
	}
}

// WithEventPattern makes the event repeat on the given weekday codes.
func WithEventPattern(pattern string) EventOption {
	return func(f *EventFixture) { f.Pattern = pattern }
}

func (f EventFixture) Persistence() persistence.Event {
	return persistence.Event{
		ID:           f.ID,
		Title:        f.Title,
		Description:  f.Description,
		DepartmentID: f.DepartmentID,
		Start:        f.Start.UTC(),
		End:          f.End.UTC(),
		Pattern:      f.Pattern,
		CreatedAt:    f.CreatedAt,
		UpdatedAt:    f.UpdatedAt,
	}
}

func (f EventFixture) Application() application.Event {
	return application.Event{
		ID:           f.ID,
		Title:        f.Title,
		Description:  f.Description,
		DepartmentID: f.DepartmentID,
		Start:        f.Start,
		End:          f.End,
		Pattern:      f.Pattern,
		CreatedAt:    f.CreatedAt,
		UpdatedAt:    f.UpdatedAt,
	}
}

// Input returns the caller supplied fields of the fixture.
func (f EventFixture) Input() application.EventInput {
	return application.EventInput{
		Title:        f.Title,
		Description:  f.Description,
		DepartmentID: f.DepartmentID,
		Start:        f.Start,
		End:          f.End,
		Pattern:      f.Pattern,
	}
}

// --------------------------- Calendar fixtures ---------------------------

// OfficeDay is the default 09:00-18:00 day with lunch from 13:00 to 14:00.
func OfficeDay() status.DaySchedule {
	return status.DaySchedule{
		WorkStart:  status.MustClock("09:00"),
		LunchStart: status.MustClock("13:00"),
		LunchEnd:   status.MustClock("14:00"),
		WorkEnd:    status.MustClock("18:00"),
	}
}

// OfficeWeek returns Monday to Friday office days for userID.
func OfficeWeek(userID string) []persistence.WorkSchedule {
	day := OfficeDay()
	out := make([]persistence.WorkSchedule, 0, 5)
	for wd := time.Monday; wd <= time.Friday; wd++ {
		out = append(out, persistence.WorkSchedule{
			UserID:     userID,
			Weekday:    wd,
			WorkStart:  day.WorkStart.String(),
			LunchStart: day.LunchStart.String(),
			LunchEnd:   day.LunchEnd.String(),
			WorkEnd:    day.WorkEnd.String(),
		})
	}
	return out
}

// Day returns midnight UTC of the given calendar day, the storage form of dates.
func Day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
