package backend

import "time"

// User is an employee as published by the backend.
type User struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Email        string `json:"email"`
	DepartmentID string `json:"department_id"`
	Position     string `json:"position"`
	ImageURL     string `json:"image_url"`
	// Active defaults to true when omitted.
	Active *bool `json:"active,omitempty"`
}

// Image is a downloaded profile picture.
type Image struct {
	ContentType string
	Data        []byte
}

// Authorization grants remote work between two dates inclusive. Mode is AM,
// PM or FULL_DAY.
type Authorization struct {
	ID        string `json:"id"`
	UserID    string `json:"user_id"`
	StartDate string `json:"start_date"`
	EndDate   string `json:"end_date"`
	Mode      string `json:"mode"`
}

// Vacation is an approved leave period, inclusive on both dates.
type Vacation struct {
	ID        string `json:"id"`
	UserID    string `json:"user_id"`
	StartDate string `json:"start_date"`
	EndDate   string `json:"end_date"`
}

// Holiday is a company-wide day off.
type Holiday struct {
	Date string `json:"date"`
	Name string `json:"name"`
}

// Schedule is the working day of a user for one weekday code (MO..SU).
type Schedule struct {
	UserID     string `json:"user_id"`
	Weekday    string `json:"weekday"`
	WorkStart  string `json:"work_start"`
	LunchStart string `json:"lunch_start"`
	LunchEnd   string `json:"lunch_end"`
	WorkEnd    string `json:"work_end"`
}

// Exception overrides the schedule of a user for one date.
type Exception struct {
	ID         string `json:"id"`
	UserID     string `json:"user_id"`
	Date       string `json:"date"`
	DayOff     bool   `json:"day_off"`
	WorkStart  string `json:"work_start,omitempty"`
	LunchStart string `json:"lunch_start,omitempty"`
	LunchEnd   string `json:"lunch_end,omitempty"`
	WorkEnd    string `json:"work_end,omitempty"`
	Reason     string `json:"reason,omitempty"`
}

// BoardEntry is an explicit status override with a time window.
type BoardEntry struct {
	ID     string    `json:"id"`
	UserID string    `json:"user_id"`
	Status string    `json:"status"`
	Note   string    `json:"note,omitempty"`
	Start  time.Time `json:"start"`
	End    time.Time `json:"end"`
}
