package persistence

import (
	"context"
	"time"
)

// UserRepository stores the mirrored employee directory.
type UserRepository interface {
	ReplaceUsers(ctx context.Context, users []User) error
	GetUser(ctx context.Context, id string) (User, error)
	ListUsers(ctx context.Context) ([]User, error)
}

// ImageRepository stores downloaded profile pictures.
type ImageRepository interface {
	ReplaceUserImages(ctx context.Context, images []UserImage) error
	GetUserImage(ctx context.Context, userID string) (UserImage, error)
}

// CalendarRepository stores the per-user working calendar data.
type CalendarRepository interface {
	ReplaceWorkSchedules(ctx context.Context, schedules []WorkSchedule) error
	ListWorkSchedules(ctx context.Context, userID string) ([]WorkSchedule, error)

	ReplaceRemoteAuthorizations(ctx context.Context, auths []RemoteAuthorization) error
	RemoteAuthorizationsOn(ctx context.Context, userID string, day time.Time) ([]RemoteAuthorization, error)

	ReplaceVacations(ctx context.Context, vacations []Vacation) error
	VacationsOn(ctx context.Context, userID string, day time.Time) ([]Vacation, error)

	ReplaceHolidays(ctx context.Context, holidays []Holiday) error
	HolidayOn(ctx context.Context, day time.Time) (Holiday, error)

	ReplaceScheduleExceptions(ctx context.Context, exceptions []ScheduleException) error
	ExceptionOn(ctx context.Context, userID string, day time.Time) (ScheduleException, error)
}

// BoardRepository caches the last successfully fetched status board.
type BoardRepository interface {
	ReplaceBoardEntries(ctx context.Context, userID string, entries []BoardEntry) error
	ListBoardEntries(ctx context.Context, userID string) ([]BoardEntry, error)
}

// EventFilter narrows event queries. Events overlapping [From, To) match.
type EventFilter struct {
	DepartmentID string
	From         *time.Time
	To           *time.Time
}

// EventRepository stores department calendar events.
type EventRepository interface {
	CreateEvent(ctx context.Context, event Event) error
	UpdateEvent(ctx context.Context, event Event) error
	GetEvent(ctx context.Context, id string) (Event, error)
	ListEvents(ctx context.Context, filter EventFilter) ([]Event, error)
	DeleteEvent(ctx context.Context, id string) error
}

// SnapshotRepository stores periodically derived statuses.
type SnapshotRepository interface {
	ReplaceStatusSnapshots(ctx context.Context, snapshots []StatusSnapshot) error
	ListStatusSnapshots(ctx context.Context) ([]StatusSnapshot, error)
}

// SyncRunRepository stores bootstrap pipeline reports.
type SyncRunRepository interface {
	CreateSyncRun(ctx context.Context, run SyncRun) error
	LatestSyncRun(ctx context.Context) (SyncRun, error)
}

// SaleFilter narrows sale searches. From and To are inclusive calendar days;
// empty lists match everything.
type SaleFilter struct {
	From           time.Time
	To             time.Time
	Branches       []string
	DocumentTypes  []string
	Products       []string
	DocumentNumber string
	Limit          int
}

// SalesRepository stores counter sales.
type SalesRepository interface {
	CreateSale(ctx context.Context, sale Sale) error
	GetSale(ctx context.Context, id string) (Sale, error)
	SearchSales(ctx context.Context, filter SaleFilter) ([]Sale, error)
	SaleTotals(ctx context.Context, from, to time.Time) ([]SaleTotal, error)
	DailySaleTotals(ctx context.Context, from, to time.Time) ([]DailySaleTotal, error)
}
