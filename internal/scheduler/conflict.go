package scheduler

import (
	"sort"
	"time"
)

// Event is the slice of a department calendar entry needed to spot overlaps.
type Event struct {
	ID           string
	DepartmentID string
	Start        time.Time
	End          time.Time
}

// Conflict details an overlapping event that callers can present to users.
type Conflict struct {
	WithEventID  string
	DepartmentID string
	Start        time.Time
	End          time.Time
}

// DetectConflicts reports existing events of the candidate's department whose
// time range overlaps the candidate. Ranges are half-open, so events that only
// touch do not conflict. The candidate itself is ignored when present in
// existing, which lets callers pass the full list on update.
func DetectConflicts(existing []Event, candidate Event) []Conflict {
	if candidate.DepartmentID == "" || !candidate.End.After(candidate.Start) {
		return nil
	}

	var conflicts []Conflict
	for _, ev := range existing {
		if ev.ID == candidate.ID || ev.DepartmentID != candidate.DepartmentID {
			continue
		}
		if !overlaps(ev.Start, ev.End, candidate.Start, candidate.End) {
			continue
		}
		conflicts = append(conflicts, Conflict{
			WithEventID:  ev.ID,
			DepartmentID: ev.DepartmentID,
			Start:        ev.Start,
			End:          ev.End,
		})
	}

	sort.Slice(conflicts, func(i, j int) bool {
		if conflicts[i].Start.Equal(conflicts[j].Start) {
			return conflicts[i].WithEventID < conflicts[j].WithEventID
		}
		return conflicts[i].Start.Before(conflicts[j].Start)
	})
	return conflicts
}

func overlaps(aStart, aEnd, bStart, bEnd time.Time) bool {
	return aStart.Before(bEnd) && bStart.Before(aEnd)
}
