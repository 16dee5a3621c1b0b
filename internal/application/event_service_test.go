package application

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/example/staffboard/internal/persistence"
	"github.com/example/staffboard/internal/recurrence"
	"github.com/example/staffboard/internal/timeline"
)

type memoryEventRepository struct {
	mu        sync.Mutex
	events    map[string]Event
	listCalls int
	createErr error
}

func newMemoryEventRepository(events ...Event) *memoryEventRepository {
	repo := &memoryEventRepository{events: make(map[string]Event)}
	for _, ev := range events {
		repo.events[ev.ID] = ev
	}
	return repo
}

func (r *memoryEventRepository) CreateEvent(_ context.Context, event Event) (Event, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.createErr != nil {
		return Event{}, r.createErr
	}
	if _, exists := r.events[event.ID]; exists {
		return Event{}, persistence.ErrDuplicate
	}
	r.events[event.ID] = event
	return event, nil
}

func (r *memoryEventRepository) UpdateEvent(_ context.Context, event Event) (Event, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.events[event.ID]; !exists {
		return Event{}, persistence.ErrNotFound
	}
	r.events[event.ID] = event
	return event, nil
}

func (r *memoryEventRepository) GetEvent(_ context.Context, id string) (Event, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	event, ok := r.events[id]
	if !ok {
		return Event{}, persistence.ErrNotFound
	}
	return event, nil
}

func (r *memoryEventRepository) ListEvents(_ context.Context, filter EventRepositoryFilter) ([]Event, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listCalls++
	var out []Event
	for _, ev := range r.events {
		if filter.DepartmentID != "" && ev.DepartmentID != filter.DepartmentID {
			continue
		}
		if filter.From != nil && !ev.End.After(*filter.From) {
			continue
		}
		if filter.To != nil && !ev.Start.Before(*filter.To) {
			continue
		}
		out = append(out, ev)
	}
	return out, nil
}

func (r *memoryEventRepository) DeleteEvent(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.events[id]; !ok {
		return persistence.ErrNotFound
	}
	delete(r.events, id)
	return nil
}

func (r *memoryEventRepository) lists() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.listCalls
}

// hookedEventRepository runs afterList once, after the first listing
// returned, to interleave a write with an expansion.
type hookedEventRepository struct {
	*memoryEventRepository
	once      sync.Once
	afterList func()
}

func (r *hookedEventRepository) ListEvents(ctx context.Context, filter EventRepositoryFilter) ([]Event, error) {
	events, err := r.memoryEventRepository.ListEvents(ctx, filter)
	if r.afterList != nil {
		r.once.Do(r.afterList)
	}
	return events, err
}

func sequentialIDs(prefix string) func() string {
	var mu sync.Mutex
	n := 0
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		n++
		return fmt.Sprintf("%s-%d", prefix, n)
	}
}

func newTestEventService(repo EventRepository) *EventService {
	now := time.Date(2024, time.March, 1, 8, 0, 0, 0, testLocation)
	return NewEventService(
		repo,
		recurrence.NewEngine(testLocation),
		sequentialIDs("evt"),
		func() time.Time { return now },
		EventServiceConfig{CacheTTL: time.Minute, FeedName: "Department events"},
		nil,
	)
}

func at(day, hour, minute int) time.Time {
	return time.Date(2024, time.March, day, hour, minute, 0, 0, testLocation)
}

func TestEventService_CreateEvent(t *testing.T) {
	t.Parallel()

	t.Run("persists normalized events", func(t *testing.T) {
		t.Parallel()

		repo := newMemoryEventRepository()
		svc := newTestEventService(repo)

		event, warnings, err := svc.CreateEvent(context.Background(), EventInput{
			Title:        "  Planning ",
			DepartmentID: "finance",
			Start:        at(4, 9, 0),
			End:          at(15, 10, 0),
			Pattern:      "mo, we,fr,MO",
		})
		if err != nil {
			t.Fatalf("CreateEvent returned error: %v", err)
		}
		if len(warnings) != 0 {
			t.Fatalf("expected no warnings, got %+v", warnings)
		}
		if event.ID != "evt-1" || event.Title != "Planning" || event.Pattern != "MO,WE,FR" {
			t.Fatalf("unexpected event %+v", event)
		}
		if !event.Recurring() || event.CreatedAt.IsZero() {
			t.Fatalf("expected recurring event with timestamps, got %+v", event)
		}
		if _, err := repo.GetEvent(context.Background(), "evt-1"); err != nil {
			t.Fatalf("expected event to be stored: %v", err)
		}
	})

	t.Run("collects field errors", func(t *testing.T) {
		t.Parallel()

		svc := newTestEventService(newMemoryEventRepository())
		_, _, err := svc.CreateEvent(context.Background(), EventInput{
			Title:   strings.Repeat("x", maxEventTitleLength+1),
			Start:   at(4, 10, 0),
			End:     at(4, 9, 0),
			Pattern: "MO,XX",
		})

		var vErr *ValidationError
		if !errors.As(err, &vErr) {
			t.Fatalf("expected ValidationError, got %v", err)
		}
		for _, field := range []string{"title", "department_id", "end", "pattern"} {
			if _, ok := vErr.FieldErrors[field]; !ok {
				t.Fatalf("expected %s error, got %v", field, vErr.FieldErrors)
			}
		}
	})

	t.Run("warns about overlapping instances of the same department", func(t *testing.T) {
		t.Parallel()

		repo := newMemoryEventRepository(
			Event{ID: "standup", Title: "Stand-up", DepartmentID: "finance", Start: at(4, 9, 0), End: at(15, 10, 0), Pattern: "WE"},
			Event{ID: "other-dept", Title: "HR sync", DepartmentID: "hr", Start: at(6, 10, 0), End: at(6, 11, 0)},
			Event{ID: "touching", Title: "Close", DepartmentID: "finance", Start: at(6, 12, 0), End: at(6, 13, 0)},
		)
		svc := newTestEventService(repo)

		_, warnings, err := svc.CreateEvent(context.Background(), EventInput{
			Title:        "Budget review",
			DepartmentID: "finance",
			Start:        at(6, 10, 0),
			End:          at(6, 12, 0),
		})
		if err != nil {
			t.Fatalf("CreateEvent returned error: %v", err)
		}
		if len(warnings) != 1 {
			t.Fatalf("expected one warning, got %+v", warnings)
		}
		if warnings[0].EventID != "standup" || !warnings[0].Start.Equal(at(6, 9, 0)) {
			t.Fatalf("unexpected warning %+v", warnings[0])
		}
	})

	t.Run("maps duplicate identifiers", func(t *testing.T) {
		t.Parallel()

		repo := newMemoryEventRepository()
		repo.createErr = persistence.ErrDuplicate
		svc := newTestEventService(repo)
		_, _, err := svc.CreateEvent(context.Background(), EventInput{Title: "x", DepartmentID: "d", Start: at(4, 9, 0), End: at(4, 10, 0)})
		if !errors.Is(err, ErrAlreadyExists) {
			t.Fatalf("expected ErrAlreadyExists, got %v", err)
		}
	})
}

func TestEventService_UpdateAndDelete(t *testing.T) {
	t.Parallel()

	t.Run("updates keep creation time and skip self conflicts", func(t *testing.T) {
		t.Parallel()

		created := at(1, 7, 0)
		repo := newMemoryEventRepository(Event{ID: "e1", Title: "Old", DepartmentID: "finance", Start: at(4, 9, 0), End: at(4, 10, 0), CreatedAt: created})
		svc := newTestEventService(repo)

		event, warnings, err := svc.UpdateEvent(context.Background(), "e1", EventInput{Title: "New", DepartmentID: "finance", Start: at(4, 9, 30), End: at(4, 11, 0)})
		if err != nil {
			t.Fatalf("UpdateEvent returned error: %v", err)
		}
		if len(warnings) != 0 {
			t.Fatalf("expected no self conflict, got %+v", warnings)
		}
		if event.Title != "New" || !event.CreatedAt.Equal(created) || event.UpdatedAt.Equal(created) {
			t.Fatalf("unexpected updated event %+v", event)
		}
	})

	t.Run("missing events surface ErrNotFound", func(t *testing.T) {
		t.Parallel()

		svc := newTestEventService(newMemoryEventRepository())
		_, _, err := svc.UpdateEvent(context.Background(), "ghost", EventInput{Title: "x", DepartmentID: "d", Start: at(4, 9, 0), End: at(4, 10, 0)})
		if !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected ErrNotFound on update, got %v", err)
		}
		if err := svc.DeleteEvent(context.Background(), "ghost"); !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected ErrNotFound on delete, got %v", err)
		}
		if _, err := svc.GetEvent(context.Background(), "ghost"); !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected ErrNotFound on get, got %v", err)
		}
	})
}

func TestEventService_Occurrences(t *testing.T) {
	t.Parallel()

	t.Run("expands recurring events inside the range", func(t *testing.T) {
		t.Parallel()

		repo := newMemoryEventRepository(
			Event{ID: "plan", Title: "Planning", DepartmentID: "finance", Start: at(4, 9, 0), End: at(15, 10, 0), Pattern: "MO,WE,FR"},
			Event{ID: "once", Title: "Audit", DepartmentID: "finance", Start: at(5, 14, 0), End: at(5, 15, 0)},
		)
		svc := newTestEventService(repo)

		occurrences, err := svc.Occurrences(context.Background(), RangeQuery{From: at(1, 0, 0), To: at(31, 0, 0)})
		if err != nil {
			t.Fatalf("Occurrences returned error: %v", err)
		}
		if len(occurrences) != 7 {
			t.Fatalf("expected 6 recurring instances plus one single event, got %d", len(occurrences))
		}
		if occurrences[0].ID != "plan-2024-03-04" || occurrences[1].ID != "once" {
			t.Fatalf("unexpected ordering %s, %s", occurrences[0].ID, occurrences[1].ID)
		}
		for _, occ := range occurrences {
			if occ.Recurring && occ.End.Sub(occ.Start) != 3*time.Hour {
				t.Fatalf("expected 3h instances, got %s for %s", occ.End.Sub(occ.Start), occ.ID)
			}
		}
	})

	t.Run("serves repeated queries from cache until a write", func(t *testing.T) {
		t.Parallel()

		repo := newMemoryEventRepository(Event{ID: "once", Title: "Audit", DepartmentID: "finance", Start: at(5, 14, 0), End: at(5, 15, 0)})
		svc := newTestEventService(repo)
		query := RangeQuery{From: at(1, 0, 0), To: at(31, 0, 0)}

		if _, err := svc.Occurrences(context.Background(), query); err != nil {
			t.Fatalf("Occurrences returned error: %v", err)
		}
		first := repo.lists()
		if _, err := svc.Occurrences(context.Background(), query); err != nil {
			t.Fatalf("Occurrences returned error: %v", err)
		}
		if repo.lists() != first {
			t.Fatalf("expected cached result without another repository call")
		}

		if err := svc.DeleteEvent(context.Background(), "once"); err != nil {
			t.Fatalf("DeleteEvent returned error: %v", err)
		}
		occurrences, err := svc.Occurrences(context.Background(), query)
		if err != nil {
			t.Fatalf("Occurrences returned error: %v", err)
		}
		if len(occurrences) != 0 {
			t.Fatalf("expected cache to be invalidated, got %+v", occurrences)
		}
	})

	t.Run("includes instances running past the event end", func(t *testing.T) {
		t.Parallel()

		// The Friday instance starts at 23:00 and ends Saturday 02:00, a day
		// after the stored end.
		repo := newMemoryEventRepository(
			Event{ID: "late", Title: "Night deploy", DepartmentID: "ops", Start: at(4, 23, 0), End: at(8, 0, 30), Pattern: "FR"},
		)
		svc := newTestEventService(repo)

		occurrences, err := svc.Occurrences(context.Background(), RangeQuery{From: at(9, 1, 0), To: at(9, 5, 0)})
		if err != nil {
			t.Fatalf("Occurrences returned error: %v", err)
		}
		if len(occurrences) != 1 || occurrences[0].ID != "late-2024-03-08" {
			t.Fatalf("expected the Friday instance, got %+v", occurrences)
		}

		_, warnings, err := svc.CreateEvent(context.Background(), EventInput{
			Title:        "Backup window",
			DepartmentID: "ops",
			Start:        at(9, 1, 0),
			End:          at(9, 2, 0),
		})
		if err != nil {
			t.Fatalf("CreateEvent returned error: %v", err)
		}
		if len(warnings) != 1 || warnings[0].EventID != "late" {
			t.Fatalf("expected a conflict with the late instance, got %+v", warnings)
		}
	})

	t.Run("does not cache an expansion that raced a write", func(t *testing.T) {
		t.Parallel()

		inner := newMemoryEventRepository(Event{ID: "once", Title: "Audit", DepartmentID: "finance", Start: at(5, 14, 0), End: at(5, 15, 0)})
		repo := &hookedEventRepository{memoryEventRepository: inner}
		svc := newTestEventService(repo)
		repo.afterList = func() {
			if err := svc.DeleteEvent(context.Background(), "once"); err != nil {
				t.Errorf("DeleteEvent returned error: %v", err)
			}
		}
		query := RangeQuery{From: at(1, 0, 0), To: at(31, 0, 0)}

		if _, err := svc.Occurrences(context.Background(), query); err != nil {
			t.Fatalf("Occurrences returned error: %v", err)
		}
		occurrences, err := svc.Occurrences(context.Background(), query)
		if err != nil {
			t.Fatalf("Occurrences returned error: %v", err)
		}
		if len(occurrences) != 0 {
			t.Fatalf("expected the deleted event to be gone, got %+v", occurrences)
		}
	})

	t.Run("rejects invalid ranges", func(t *testing.T) {
		t.Parallel()

		svc := newTestEventService(newMemoryEventRepository())
		cases := []RangeQuery{
			{},
			{From: at(10, 0, 0), To: at(9, 0, 0)},
			{From: at(1, 0, 0), To: at(1, 0, 0).AddDate(2, 0, 0)},
		}
		for _, query := range cases {
			var vErr *ValidationError
			if _, err := svc.Occurrences(context.Background(), query); !errors.As(err, &vErr) {
				t.Fatalf("expected ValidationError for %+v, got %v", query, err)
			}
		}
	})
}

func TestEventService_Timeline(t *testing.T) {
	t.Parallel()

	repo := newMemoryEventRepository(
		Event{ID: "a", Title: "Budget review", DepartmentID: "finance", Start: at(4, 9, 0), End: at(4, 10, 0)},
		Event{ID: "b", Title: "Payroll close", DepartmentID: "finance", Start: at(4, 10, 30), End: at(4, 11, 30)},
	)
	svc := newTestEventService(repo)
	query := RangeQuery{From: at(1, 0, 0), To: at(31, 0, 0)}

	blocks, err := svc.Timeline(context.Background(), TimelineQuery{RangeQuery: query, Zoom: timeline.ZoomMonth})
	if err != nil {
		t.Fatalf("Timeline returned error: %v", err)
	}
	if len(blocks) != 1 || !blocks[0].Merged() {
		t.Fatalf("expected one merged block at month zoom, got %+v", blocks)
	}

	blocks, err = svc.Timeline(context.Background(), TimelineQuery{RangeQuery: query, Zoom: timeline.ZoomDay})
	if err != nil {
		t.Fatalf("Timeline returned error: %v", err)
	}
	if len(blocks) != 2 {
		t.Fatalf("expected separate blocks at day zoom, got %+v", blocks)
	}

	var vErr *ValidationError
	if _, err := svc.Timeline(context.Background(), TimelineQuery{RangeQuery: query, Zoom: "decade"}); !errors.As(err, &vErr) {
		t.Fatalf("expected ValidationError for unknown zoom, got %v", err)
	}
}

func TestEventService_CalendarFeed(t *testing.T) {
	t.Parallel()

	repo := newMemoryEventRepository(Event{ID: "once", Title: "Audit", Description: "Quarterly audit", DepartmentID: "finance", Start: at(5, 14, 0), End: at(5, 15, 0)})
	svc := newTestEventService(repo)

	feed, err := svc.CalendarFeed(context.Background(), RangeQuery{From: at(1, 0, 0), To: at(31, 0, 0)})
	if err != nil {
		t.Fatalf("CalendarFeed returned error: %v", err)
	}
	for _, want := range []string{"BEGIN:VCALENDAR", "UID:once", "SUMMARY:Audit", "DESCRIPTION:Quarterly audit", "X-WR-CALNAME:Department events"} {
		if !strings.Contains(feed, want) {
			t.Fatalf("expected feed to contain %q:\n%s", want, feed)
		}
	}
}
