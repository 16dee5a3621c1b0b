package application

import (
	"time"

	"github.com/example/staffboard/internal/sales"
	"github.com/example/staffboard/internal/status"
	"github.com/example/staffboard/internal/timeline"
)

// User is a cached employee.
type User struct {
	ID           string
	Name         string
	Email        string
	DepartmentID string
	Position     string
	HasImage     bool
	Active       bool
	UpdatedAt    time.Time
}

// UserImage is a cached profile picture.
type UserImage struct {
	UserID      string
	ContentType string
	Data        []byte
	FetchedAt   time.Time
}

// ScheduleException replaces the weekday schedule of a user for a day.
type ScheduleException struct {
	DayOff   bool
	Schedule status.DaySchedule
	Reason   string
}

// StatusView is the derived status of a user at a point in time.
type StatusView struct {
	UserID      string
	Status      status.Status
	Progress    int
	Source      status.Source
	Reason      string
	WindowStart *time.Time
	WindowEnd   *time.Time
	ComputedAt  time.Time
	// BoardStale is set when the live status board could not be fetched and
	// the cached copy was used instead.
	BoardStale bool
}

// StatusSnapshot is a persisted StatusView.
type StatusSnapshot = StatusView

// EventInput captures caller provided event fields.
type EventInput struct {
	Title        string
	Description  string
	DepartmentID string
	Start        time.Time
	End          time.Time
	// Pattern is a comma separated list of weekday codes; empty means the
	// event does not repeat.
	Pattern string
}

// Event is a department calendar entry.
type Event struct {
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

// Recurring reports whether the event repeats.
func (e Event) Recurring() bool {
	return e.Pattern != ""
}

// ConflictWarning describes an overlapping event of the same department.
type ConflictWarning struct {
	EventID      string
	DepartmentID string
	Start        time.Time
	End          time.Time
}

// EventRepositoryFilter narrows event queries.
type EventRepositoryFilter struct {
	DepartmentID string
	From         *time.Time
	To           *time.Time
}

// RangeQuery bounds occurrence, timeline and feed queries.
type RangeQuery struct {
	From         time.Time
	To           time.Time
	DepartmentID string
}

// Occurrence is a concrete instance of an event.
type Occurrence struct {
	ID           string
	EventID      string
	Title        string
	DepartmentID string
	Start        time.Time
	End          time.Time
	Recurring    bool
}

// TimelineQuery requests clustered timeline blocks.
type TimelineQuery struct {
	RangeQuery
	Zoom timeline.Zoom
}

// SyncStageResult is the outcome of one bootstrap stage.
type SyncStageResult struct {
	Name     string
	Status   string
	Attempts int
	Records  int
	Failures int
	Error    string
	Duration time.Duration
}

// SyncReport summarizes a bootstrap run.
type SyncReport struct {
	RunID      string
	StartedAt  time.Time
	FinishedAt time.Time
	Stages     []SyncStageResult
}

// Skipped lists the stages that gave up.
func (r SyncReport) Skipped() []string {
	var names []string
	for _, st := range r.Stages {
		if st.Status == "skipped" {
			names = append(names, st.Name)
		}
	}
	return names
}

// SaleInput is a sale as typed at the counter. Date is a calendar day and
// Units is always positive; the document type decides the sign.
type SaleInput struct {
	Date           time.Time
	Branch         string
	Product        string
	DocumentType   string
	DocumentNumber string
	PaymentMethod  string
	Units          int64
	Discount       int64
}

// Sale is a recorded sale with its priced amounts.
type Sale struct {
	ID             string
	Date           time.Time
	Branch         string
	Product        string
	DocumentType   string
	DocumentNumber string
	PaymentMethod  string
	sales.Amounts
	CreatedAt time.Time
}

// SalesQuery filters recorded sales. From and To are inclusive days and
// empty lists match everything.
type SalesQuery struct {
	From           time.Time
	To             time.Time
	Branches       []string
	DocumentTypes  []string
	Products       []string
	DocumentNumber string
	Limit          int
}

// DailySales totals one calendar day.
type DailySales struct {
	Date  time.Time
	Units int64
	Kilos float64
	Total int64
}

// SalesReport analyzes the sales of an inclusive day range. The month
// figures cover the whole calendar months the range touches.
type SalesReport struct {
	From        time.Time
	To          time.Time
	MonthFrom   time.Time
	MonthTo     time.Time
	Rates       sales.Rates
	Period      sales.Summary
	PeriodKPI   sales.KPI
	Financials  sales.Financials
	Month       sales.Summary
	MonthKPI    sales.KPI
	Branches    []sales.BranchTotals
	Performance sales.Performance
	Insights    sales.Insights
	Daily       []DailySales
	Trend       sales.Trend
	Quality     sales.ValidationReport
	GeneratedAt time.Time
}
