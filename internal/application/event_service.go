package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/example/staffboard/internal/icalendar"
	"github.com/example/staffboard/internal/persistence"
	"github.com/example/staffboard/internal/recurrence"
	"github.com/example/staffboard/internal/scheduler"
	"github.com/example/staffboard/internal/timeline"
)

const (
	maxEventTitleLength = 200
	// maxQuerySpan bounds occurrence, timeline and feed queries.
	maxQuerySpan = 366 * 24 * time.Hour

	defaultOccurrenceCacheSize = 128
	defaultOccurrenceCacheTTL  = 30 * time.Second
)

// EventRepository captures the persistence operations needed by the service.
type EventRepository interface {
	CreateEvent(ctx context.Context, event Event) (Event, error)
	UpdateEvent(ctx context.Context, event Event) (Event, error)
	GetEvent(ctx context.Context, id string) (Event, error)
	ListEvents(ctx context.Context, filter EventRepositoryFilter) ([]Event, error)
	DeleteEvent(ctx context.Context, id string) error
}

// EventServiceConfig tunes expansion and caching.
type EventServiceConfig struct {
	// CacheSize is the number of occurrence queries kept. Zero uses a default.
	CacheSize int
	// CacheTTL bounds how long an expanded query stays cached.
	CacheTTL time.Duration
	// FeedName is published as the calendar name of iCalendar exports.
	FeedName string
}

// EventService validates department events and serves their expansions.
type EventService struct {
	events      EventRepository
	engine      *recurrence.Engine
	idGenerator func() string
	now         func() time.Time
	logger      *slog.Logger
	feedName    string

	// cacheMu orders cache fills against invalidations; generation counts
	// invalidations so an expansion that raced a write is not stored.
	cacheMu    sync.Mutex
	generation uint64
	cache      *expirable.LRU[string, []Occurrence]
}

// NewEventService constructs an event service. A nil engine expands in time.Local.
func NewEventService(events EventRepository, engine *recurrence.Engine, idGenerator func() string, now func() time.Time, cfg EventServiceConfig, logger *slog.Logger) *EventService {
	if engine == nil {
		engine = recurrence.NewEngine(nil)
	}
	if idGenerator == nil {
		idGenerator = func() string { return "" }
	}
	if now == nil {
		now = time.Now
	}
	size := cfg.CacheSize
	if size <= 0 {
		size = defaultOccurrenceCacheSize
	}
	ttl := cfg.CacheTTL
	if ttl <= 0 {
		ttl = defaultOccurrenceCacheTTL
	}
	return &EventService{
		events:      events,
		engine:      engine,
		idGenerator: idGenerator,
		now:         now,
		logger:      defaultLogger(logger),
		cache:       expirable.NewLRU[string, []Occurrence](size, nil, ttl),
		feedName:    cfg.FeedName,
	}
}

func (s *EventService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "EventService", operation, attrs...)
}

// CreateEvent validates input and persists a new event. Overlapping events of
// the same department are returned as warnings and do not block creation.
func (s *EventService) CreateEvent(ctx context.Context, input EventInput) (event Event, warnings []ConflictWarning, err error) {
	if s == nil {
		err = fmt.Errorf("EventService is nil")
		return
	}

	logger := s.loggerWith(ctx, "CreateEvent", "department_id", input.DepartmentID)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to create event", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("event_id", event.ID, "conflicts", len(warnings)).InfoContext(ctx, "event created")
	}()

	if s.events == nil {
		err = fmt.Errorf("event repository not configured")
		return
	}

	input = normalizeEventInput(input)
	if vErr := validateEventInput(input); vErr.HasErrors() {
		err = vErr
		return
	}

	now := s.now()
	event = Event{
		ID:           s.idGenerator(),
		Title:        input.Title,
		Description:  input.Description,
		DepartmentID: input.DepartmentID,
		Start:        input.Start,
		End:          input.End,
		Pattern:      input.Pattern,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	warnings, err = s.conflictsFor(ctx, event)
	if err != nil {
		return
	}

	var persisted Event
	persisted, err = s.events.CreateEvent(ctx, event)
	if err != nil {
		err = mapEventRepoError(err)
		return
	}
	s.invalidate()
	event = persisted
	return
}

// UpdateEvent replaces the mutable fields of an existing event.
func (s *EventService) UpdateEvent(ctx context.Context, id string, input EventInput) (event Event, warnings []ConflictWarning, err error) {
	if s == nil {
		err = fmt.Errorf("EventService is nil")
		return
	}

	logger := s.loggerWith(ctx, "UpdateEvent", "event_id", id)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to update event", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("conflicts", len(warnings)).InfoContext(ctx, "event updated")
	}()

	if s.events == nil {
		err = fmt.Errorf("event repository not configured")
		return
	}

	input = normalizeEventInput(input)
	if vErr := validateEventInput(input); vErr.HasErrors() {
		err = vErr
		return
	}

	var existing Event
	existing, err = s.events.GetEvent(ctx, id)
	if err != nil {
		err = mapEventRepoError(err)
		return
	}

	event = existing
	event.Title = input.Title
	event.Description = input.Description
	event.DepartmentID = input.DepartmentID
	event.Start = input.Start
	event.End = input.End
	event.Pattern = input.Pattern
	event.UpdatedAt = s.now()

	warnings, err = s.conflictsFor(ctx, event)
	if err != nil {
		return
	}

	var persisted Event
	persisted, err = s.events.UpdateEvent(ctx, event)
	if err != nil {
		err = mapEventRepoError(err)
		return
	}
	s.invalidate()
	event = persisted
	return
}

// GetEvent returns a single event.
func (s *EventService) GetEvent(ctx context.Context, id string) (Event, error) {
	if s == nil {
		return Event{}, fmt.Errorf("EventService is nil")
	}
	if s.events == nil {
		return Event{}, fmt.Errorf("event repository not configured")
	}
	event, err := s.events.GetEvent(ctx, id)
	if err != nil {
		return Event{}, mapEventRepoError(err)
	}
	return event, nil
}

// ListEvents returns events matching filter ordered by start then id.
func (s *EventService) ListEvents(ctx context.Context, filter EventRepositoryFilter) ([]Event, error) {
	if s == nil {
		return nil, fmt.Errorf("EventService is nil")
	}
	if s.events == nil {
		return nil, fmt.Errorf("event repository not configured")
	}
	if filter.From != nil && filter.To != nil && !filter.To.After(*filter.From) {
		vErr := &ValidationError{}
		vErr.add("to", "to must be after from")
		return nil, vErr
	}

	events, err := s.events.ListEvents(ctx, filter)
	if err != nil {
		s.loggerWith(ctx, "ListEvents").ErrorContext(ctx, "failed to list events", "error", err, "error_kind", ErrorKind(err))
		return nil, mapEventRepoError(err)
	}
	sortEvents(events)
	return events, nil
}

// DeleteEvent removes an event and every instance it expands to.
func (s *EventService) DeleteEvent(ctx context.Context, id string) (err error) {
	if s == nil {
		return fmt.Errorf("EventService is nil")
	}

	logger := s.loggerWith(ctx, "DeleteEvent", "event_id", id)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to delete event", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "event deleted")
	}()

	if s.events == nil {
		return fmt.Errorf("event repository not configured")
	}
	if err = s.events.DeleteEvent(ctx, id); err != nil {
		return mapEventRepoError(err)
	}
	s.invalidate()
	return nil
}

// Occurrences expands every event overlapping the query range into its
// concrete instances, clipped to the range and ordered by start then id.
func (s *EventService) Occurrences(ctx context.Context, query RangeQuery) ([]Occurrence, error) {
	if s == nil {
		return nil, fmt.Errorf("EventService is nil")
	}
	if s.events == nil {
		return nil, fmt.Errorf("event repository not configured")
	}
	if vErr := validateRangeQuery(query); vErr.HasErrors() {
		return nil, vErr
	}

	key := occurrenceCacheKey(query)
	if cached, ok := s.cache.Get(key); ok {
		return cloneOccurrences(cached), nil
	}

	generation := s.currentGeneration()
	occurrences, err := s.expandRange(ctx, query)
	if err != nil {
		return nil, err
	}
	s.store(key, occurrences, generation)
	return cloneOccurrences(occurrences), nil
}

func (s *EventService) currentGeneration() uint64 {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	return s.generation
}

// store caches occurrences unless an event was written since generation.
func (s *EventService) store(key string, occurrences []Occurrence, generation uint64) {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	if s.generation != generation {
		return
	}
	s.cache.Add(key, occurrences)
}

func (s *EventService) invalidate() {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	s.generation++
	s.cache.Purge()
}

// overhang is how far a recurring instance may run past its event's end:
// the last instance starts on the end date at the event's time of day, and a
// calendar day lasts up to 25h across a DST change.
func (s *EventService) overhang() time.Duration {
	return 25*time.Hour + s.engine.InstanceDuration()
}

// Timeline clusters the occurrences of the query range into display blocks.
func (s *EventService) Timeline(ctx context.Context, query TimelineQuery) ([]timeline.Block, error) {
	if s == nil {
		return nil, fmt.Errorf("EventService is nil")
	}
	zoom, err := timeline.ParseZoom(string(query.Zoom))
	if err != nil {
		vErr := &ValidationError{}
		vErr.add("zoom", "zoom must be one of day, week, month, quarter, year")
		return nil, vErr
	}

	occurrences, err := s.Occurrences(ctx, query.RangeQuery)
	if err != nil {
		return nil, err
	}

	items := make([]timeline.Item, 0, len(occurrences))
	for _, occ := range occurrences {
		items = append(items, timeline.Item{
			ID:           occ.ID,
			Title:        occ.Title,
			DepartmentID: occ.DepartmentID,
			Start:        occ.Start,
			End:          occ.End,
		})
	}
	return timeline.Cluster(items, zoom), nil
}

// CalendarFeed renders the occurrences of the query range as iCalendar text.
func (s *EventService) CalendarFeed(ctx context.Context, query RangeQuery) (string, error) {
	if s == nil {
		return "", fmt.Errorf("EventService is nil")
	}
	occurrences, err := s.Occurrences(ctx, query)
	if err != nil {
		return "", err
	}

	descriptions := make(map[string]string)
	if len(occurrences) > 0 {
		events, err := s.events.ListEvents(ctx, s.filterFor(query))
		if err != nil {
			return "", mapEventRepoError(err)
		}
		for _, ev := range events {
			descriptions[ev.ID] = ev.Description
		}
	}

	entries := make([]icalendar.Entry, 0, len(occurrences))
	for _, occ := range occurrences {
		entries = append(entries, icalendar.Entry{
			UID:          occ.ID,
			Summary:      occ.Title,
			Description:  descriptions[occ.EventID],
			DepartmentID: occ.DepartmentID,
			Start:        occ.Start,
			End:          occ.End,
		})
	}
	return icalendar.Build(entries, icalendar.Options{Name: s.feedName, Stamp: s.now()}), nil
}

func (s *EventService) expandRange(ctx context.Context, query RangeQuery) ([]Occurrence, error) {
	events, err := s.events.ListEvents(ctx, s.filterFor(query))
	if err != nil {
		return nil, mapEventRepoError(err)
	}

	inputs := make([]recurrence.Event, 0, len(events))
	for _, ev := range events {
		inputs = append(inputs, toRecurrenceEvent(ev))
	}
	expanded, failures := s.engine.ExpandAll(inputs, recurrence.Options{RangeStart: query.From, RangeEnd: query.To})
	if len(failures) > 0 {
		logger := s.loggerWith(ctx, "Occurrences")
		for id, ferr := range failures {
			logger.WarnContext(ctx, "skipping event that cannot be expanded", "event_id", id, "error", ferr)
		}
	}

	out := make([]Occurrence, 0, len(expanded))
	for _, occ := range expanded {
		out = append(out, Occurrence{
			ID:           occ.ID,
			EventID:      occ.ParentID,
			Title:        occ.Title,
			DepartmentID: occ.DepartmentID,
			Start:        occ.Start,
			End:          occ.End,
			Recurring:    occ.Recurring,
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Start.Equal(out[j].Start) {
			return out[i].ID < out[j].ID
		}
		return out[i].Start.Before(out[j].Start)
	})
	return out, nil
}

// conflictsFor compares the instances of candidate with the instances of
// other events of its department over the candidate's span.
func (s *EventService) conflictsFor(ctx context.Context, candidate Event) ([]ConflictWarning, error) {
	candidateOccurrences, err := s.engine.Expand(toRecurrenceEvent(candidate), recurrence.Options{})
	if err != nil {
		return nil, err
	}
	if len(candidateOccurrences) == 0 {
		return nil, nil
	}

	from := candidateOccurrences[0].Start
	to := candidateOccurrences[len(candidateOccurrences)-1].End
	for _, occ := range candidateOccurrences {
		if occ.End.After(to) {
			to = occ.End
		}
	}

	lookback := from.Add(-s.overhang())
	others, err := s.events.ListEvents(ctx, EventRepositoryFilter{DepartmentID: candidate.DepartmentID, From: &lookback, To: &to})
	if err != nil {
		return nil, mapEventRepoError(err)
	}

	inputs := make([]recurrence.Event, 0, len(others))
	for _, ev := range others {
		if ev.ID == candidate.ID {
			continue
		}
		inputs = append(inputs, toRecurrenceEvent(ev))
	}
	existing, _ := s.engine.ExpandAll(inputs, recurrence.Options{RangeStart: from, RangeEnd: to})
	if len(existing) == 0 {
		return nil, nil
	}

	existingEvents := make([]scheduler.Event, 0, len(existing))
	parents := make(map[string]string, len(existing))
	for _, occ := range existing {
		existingEvents = append(existingEvents, scheduler.Event{ID: occ.ID, DepartmentID: occ.DepartmentID, Start: occ.Start, End: occ.End})
		parents[occ.ID] = occ.ParentID
	}

	seen := make(map[string]struct{})
	var warnings []ConflictWarning
	for _, occ := range candidateOccurrences {
		instance := scheduler.Event{ID: occ.ID, DepartmentID: occ.DepartmentID, Start: occ.Start, End: occ.End}
		for _, conflict := range scheduler.DetectConflicts(existingEvents, instance) {
			if _, dup := seen[conflict.WithEventID]; dup {
				continue
			}
			seen[conflict.WithEventID] = struct{}{}
			warnings = append(warnings, ConflictWarning{
				EventID:      parents[conflict.WithEventID],
				DepartmentID: conflict.DepartmentID,
				Start:        conflict.Start,
				End:          conflict.End,
			})
		}
	}
	sort.SliceStable(warnings, func(i, j int) bool {
		if warnings[i].Start.Equal(warnings[j].Start) {
			return warnings[i].EventID < warnings[j].EventID
		}
		return warnings[i].Start.Before(warnings[j].Start)
	})
	return warnings, nil
}

func normalizeEventInput(input EventInput) EventInput {
	input.Title = strings.TrimSpace(input.Title)
	input.Description = strings.TrimSpace(input.Description)
	input.DepartmentID = strings.TrimSpace(input.DepartmentID)
	input.Pattern = normalizePattern(input.Pattern)
	return input
}

// normalizePattern upper-cases codes and drops blanks and duplicates. Invalid
// codes are left for validation to report.
func normalizePattern(pattern string) string {
	parts := strings.Split(pattern, ",")
	seen := make(map[string]struct{}, len(parts))
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		code := strings.ToUpper(strings.TrimSpace(part))
		if code == "" {
			continue
		}
		if _, dup := seen[code]; dup {
			continue
		}
		seen[code] = struct{}{}
		out = append(out, code)
	}
	return strings.Join(out, ",")
}

func validateEventInput(input EventInput) *ValidationError {
	vErr := &ValidationError{}

	if input.Title == "" {
		vErr.add("title", "title is required")
	} else if utf8.RuneCountInString(input.Title) > maxEventTitleLength {
		vErr.add("title", fmt.Sprintf("title must be at most %d characters", maxEventTitleLength))
	}
	if input.DepartmentID == "" {
		vErr.add("department_id", "department is required")
	}
	if input.Start.IsZero() {
		vErr.add("start", "start is required")
	}
	if input.End.IsZero() {
		vErr.add("end", "end is required")
	}
	if !input.Start.IsZero() && !input.End.IsZero() && !input.End.After(input.Start) {
		vErr.add("end", "end must be after start")
	}
	if _, err := recurrence.ParsePattern(input.Pattern); err != nil {
		vErr.add("pattern", "pattern must list weekday codes MO, TU, WE, TH, FR, SA, SU")
	}

	return vErr
}

func validateRangeQuery(query RangeQuery) *ValidationError {
	vErr := &ValidationError{}
	if query.From.IsZero() {
		vErr.add("from", "from is required")
	}
	if query.To.IsZero() {
		vErr.add("to", "to is required")
	}
	if vErr.HasErrors() {
		return vErr
	}
	if !query.To.After(query.From) {
		vErr.add("to", "to must be after from")
	} else if query.To.Sub(query.From) > maxQuerySpan {
		vErr.add("to", "range must not exceed one year")
	}
	return vErr
}

// filterFor widens the lower bound by the overhang so events whose last
// instance outlasts the stored end still match.
func (s *EventService) filterFor(query RangeQuery) EventRepositoryFilter {
	from := query.From.Add(-s.overhang())
	to := query.To
	return EventRepositoryFilter{DepartmentID: strings.TrimSpace(query.DepartmentID), From: &from, To: &to}
}

func occurrenceCacheKey(query RangeQuery) string {
	return strings.Join([]string{
		query.From.UTC().Format(time.RFC3339Nano),
		query.To.UTC().Format(time.RFC3339Nano),
		strings.TrimSpace(query.DepartmentID),
	}, "|")
}

func cloneOccurrences(in []Occurrence) []Occurrence {
	if in == nil {
		return nil
	}
	out := make([]Occurrence, len(in))
	copy(out, in)
	return out
}

func toRecurrenceEvent(ev Event) recurrence.Event {
	return recurrence.Event{
		ID:           ev.ID,
		Title:        ev.Title,
		DepartmentID: ev.DepartmentID,
		Start:        ev.Start,
		End:          ev.End,
		Pattern:      ev.Pattern,
	}
}

func sortEvents(events []Event) {
	sort.SliceStable(events, func(i, j int) bool {
		if events[i].Start.Equal(events[j].Start) {
			return events[i].ID < events[j].ID
		}
		return events[i].Start.Before(events[j].Start)
	})
}

func mapEventRepoError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrNotFound) || errors.Is(err, persistence.ErrNotFound) {
		return ErrNotFound
	}
	if errors.Is(err, persistence.ErrDuplicate) {
		return ErrAlreadyExists
	}
	if errors.Is(err, persistence.ErrConstraintViolation) {
		vErr := &ValidationError{}
		vErr.add("event", "event violates storage constraints")
		return vErr
	}
	return err
}
