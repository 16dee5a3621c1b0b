package recurrence

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/teambition/rrule-go"
)

const (
	// DefaultInstanceDuration is the length given to every generated instance.
	DefaultInstanceDuration = 3 * time.Hour
	// DefaultMaxOccurrences caps the number of instances produced for one event.
	DefaultMaxOccurrences = 5000
)

var dayCodes = map[string]rrule.Weekday{
	"MO": rrule.MO,
	"TU": rrule.TU,
	"WE": rrule.WE,
	"TH": rrule.TH,
	"FR": rrule.FR,
	"SA": rrule.SA,
	"SU": rrule.SU,
}

// ErrInvalidDayCode indicates a recurrence pattern contains an unknown weekday code.
var ErrInvalidDayCode = errors.New("recurrence: invalid day code")

// ErrInvalidDuration indicates the base event does not end after it starts.
var ErrInvalidDuration = errors.New("recurrence: event end must be after start")

// Event is the recurrence-relevant view of a calendar event.
type Event struct {
	ID           string
	Title        string
	DepartmentID string
	Start        time.Time
	End          time.Time
	// Pattern is a comma separated list of weekday codes, e.g. "MO,WE,FR".
	// An empty pattern means the event does not repeat.
	Pattern string
}

// Occurrence is a concrete instance of an Event.
type Occurrence struct {
	ID           string
	ParentID     string
	Title        string
	DepartmentID string
	Start        time.Time
	End          time.Time
	Recurring    bool
}

// Options bounds the expansion window. Zero values leave the side open.
type Options struct {
	RangeStart time.Time
	RangeEnd   time.Time
}

// Engine expands recurring events into occurrences.
type Engine struct {
	location       *time.Location
	duration       time.Duration
	maxOccurrences int
}

// Option customizes an Engine.
type Option func(*Engine)

// WithInstanceDuration overrides the fixed length of generated instances.
func WithInstanceDuration(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.duration = d
		}
	}
}

// WithMaxOccurrences overrides the per-event occurrence cap.
func WithMaxOccurrences(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.maxOccurrences = n
		}
	}
}

// NewEngine constructs an Engine that evaluates calendar days in loc.
// If loc is nil, time.Local is used.
func NewEngine(loc *time.Location, opts ...Option) *Engine {
	if loc == nil {
		loc = time.Local
	}
	e := &Engine{location: loc, duration: DefaultInstanceDuration, maxOccurrences: DefaultMaxOccurrences}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Location returns the engine's calendar timezone.
func (e *Engine) Location() *time.Location {
	return e.location
}

// InstanceDuration returns the fixed length of recurring instances.
func (e *Engine) InstanceDuration() time.Duration {
	return e.duration
}

// ParsePattern converts "MO,WE,FR" style patterns to rrule weekdays.
// Duplicates are dropped while preserving the first-seen order.
func ParsePattern(pattern string) ([]rrule.Weekday, error) {
	pattern = strings.TrimSpace(pattern)
	if pattern == "" {
		return nil, nil
	}
	seen := make(map[string]struct{}, 7)
	out := make([]rrule.Weekday, 0, 7)
	for _, raw := range strings.Split(pattern, ",") {
		code := strings.ToUpper(strings.TrimSpace(raw))
		if code == "" {
			continue
		}
		day, ok := dayCodes[code]
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrInvalidDayCode, raw)
		}
		if _, dup := seen[code]; dup {
			continue
		}
		seen[code] = struct{}{}
		out = append(out, day)
	}
	return out, nil
}

// Expand produces the occurrences of ev.
//
// Recurring events walk every calendar day in [start date, end date + 1 day)
// and emit an instance on each day whose weekday is in the pattern. Instances
// keep the original start time-of-day, last the engine's fixed duration and
// are identified as "<parent id>-<YYYY-MM-DD>". Non-recurring events expand
// to a single occurrence carrying the event's own id and times.
func (e *Engine) Expand(ev Event, opts Options) ([]Occurrence, error) {
	if !ev.End.After(ev.Start) {
		return nil, ErrInvalidDuration
	}

	days, err := ParsePattern(ev.Pattern)
	if err != nil {
		return nil, err
	}

	if len(days) == 0 {
		occ := Occurrence{
			ID:           ev.ID,
			ParentID:     ev.ID,
			Title:        ev.Title,
			DepartmentID: ev.DepartmentID,
			Start:        ev.Start.In(e.location),
			End:          ev.End.In(e.location),
		}
		if !overlaps(occ.Start, occ.End, opts) {
			return nil, nil
		}
		return []Occurrence{occ}, nil
	}

	start := ev.Start.In(e.location)
	end := ev.End.In(e.location)
	y, m, d := end.Date()
	limit := time.Date(y, m, d, 0, 0, 0, 0, e.location).AddDate(0, 0, 1)

	rule, err := rrule.NewRRule(rrule.ROption{
		Freq:      rrule.DAILY,
		Dtstart:   start,
		Until:     limit.Add(-time.Second),
		Byweekday: days,
	})
	if err != nil {
		return nil, fmt.Errorf("recurrence: build rule for %s: %w", ev.ID, err)
	}

	iter := rule.Iterator()
	out := make([]Occurrence, 0)
	for {
		instant, ok := iter()
		if !ok {
			break
		}
		if !instant.Before(limit) {
			break
		}
		occStart := instant.In(e.location)
		if !opts.RangeEnd.IsZero() && !occStart.Before(opts.RangeEnd) {
			break
		}
		occEnd := occStart.Add(e.duration)
		if !overlaps(occStart, occEnd, opts) {
			continue
		}
		out = append(out, Occurrence{
			ID:           ev.ID + "-" + occStart.Format(time.DateOnly),
			ParentID:     ev.ID,
			Title:        ev.Title,
			DepartmentID: ev.DepartmentID,
			Start:        occStart,
			End:          occEnd,
			Recurring:    true,
		})
		if len(out) >= e.maxOccurrences {
			break
		}
	}
	return out, nil
}

// ExpandAll expands every event and concatenates the results. Events that
// fail to expand are reported in the returned error map by id and skipped.
func (e *Engine) ExpandAll(events []Event, opts Options) ([]Occurrence, map[string]error) {
	out := make([]Occurrence, 0, len(events))
	var failures map[string]error
	for _, ev := range events {
		occ, err := e.Expand(ev, opts)
		if err != nil {
			if failures == nil {
				failures = make(map[string]error)
			}
			failures[ev.ID] = err
			continue
		}
		out = append(out, occ...)
	}
	return out, failures
}

func overlaps(start, end time.Time, opts Options) bool {
	if !opts.RangeEnd.IsZero() && !start.Before(opts.RangeEnd) {
		return false
	}
	if !opts.RangeStart.IsZero() && !end.After(opts.RangeStart) {
		return false
	}
	return true
}
