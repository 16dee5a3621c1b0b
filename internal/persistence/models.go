package persistence

import "time"

// DateLayout is the storage format for calendar days.
const DateLayout = time.DateOnly

// User is an employee mirrored from the upstream backend.
type User struct {
	ID           string
	Name         string
	Email        string
	DepartmentID string
	Position     string
	ImageURL     string
	Active       bool
	UpdatedAt    time.Time
}

// UserImage is the downloaded profile picture of a user.
type UserImage struct {
	UserID      string
	ContentType string
	Data        []byte
	FetchedAt   time.Time
}

// WorkSchedule is the working day of a user for one weekday. Clock fields use
// the "HH:MM" format.
type WorkSchedule struct {
	UserID     string
	Weekday    time.Weekday
	WorkStart  string
	LunchStart string
	LunchEnd   string
	WorkEnd    string
}

// RemoteAuthorization allows a user to work remotely for part or all of the
// days between StartDate and EndDate inclusive.
type RemoteAuthorization struct {
	ID        string
	UserID    string
	StartDate time.Time
	EndDate   time.Time
	Mode      string
}

// Vacation is an approved leave period, inclusive on both days.
type Vacation struct {
	ID        string
	UserID    string
	StartDate time.Time
	EndDate   time.Time
}

// Holiday is a company-wide day off.
type Holiday struct {
	Date time.Time
	Name string
}

// ScheduleException replaces the weekday schedule of a user for one day.
// When DayOff is set the clock fields are ignored.
type ScheduleException struct {
	ID         string
	UserID     string
	Date       time.Time
	DayOff     bool
	WorkStart  string
	LunchStart string
	LunchEnd   string
	WorkEnd    string
	Reason     string
}

// BoardEntry is a cached status board override.
type BoardEntry struct {
	ID       string
	UserID   string
	Status   string
	Note     string
	Start    time.Time
	End      time.Time
	CachedAt time.Time
}

// Event is a department calendar entry. Pattern holds comma separated
// weekday codes; empty means the event does not repeat.
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

// StatusSnapshot is the last derived status of a user.
type StatusSnapshot struct {
	UserID      string
	Status      string
	Progress    int
	Source      string
	Reason      string
	WindowStart *time.Time
	WindowEnd   *time.Time
	ComputedAt  time.Time
}

// SyncStage is the outcome of one bootstrap stage.
type SyncStage struct {
	Name     string `json:"name"`
	Status   string `json:"status"`
	Attempts int    `json:"attempts"`
	Records  int    `json:"records"`
	Failures int    `json:"failures,omitempty"`
	Error    string `json:"error,omitempty"`
}

// SyncRun records one execution of the bootstrap pipeline.
type SyncRun struct {
	ID         string
	StartedAt  time.Time
	FinishedAt time.Time
	Stages     []SyncStage
}

// Sale is one recorded counter sale. Amounts are whole pesos; credit notes
// carry negative units, kilos and amounts.
type Sale struct {
	ID             string
	Date           time.Time
	Branch         string
	Product        string
	DocumentType   string
	DocumentNumber string
	Units          int64
	Kilos          float64
	UnitPrice      int64
	Discount       int64
	Net            int64
	VAT            int64
	Total          int64
	PaymentMethod  string
	CreatedAt      time.Time
}

// SaleTotal aggregates the sales of one product at one branch.
type SaleTotal struct {
	Branch  string
	Product string
	Units   int64
	Kilos   float64
	Net     int64
	Total   int64
}

// DailySaleTotal aggregates every sale of one calendar day.
type DailySaleTotal struct {
	Date  time.Time
	Units int64
	Kilos float64
	Total int64
}
