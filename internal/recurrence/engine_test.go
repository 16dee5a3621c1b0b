package recurrence

import (
	"errors"
	"testing"
	"time"
	_ "time/tzdata"
)

var clt = time.FixedZone("CLT", -3*60*60)

func TestEngine_Expand(t *testing.T) {
	t.Parallel()

	// Monday 2024-03-04 09:00 through Friday 2024-03-15 10:00.
	baseStart := time.Date(2024, time.March, 4, 9, 0, 0, 0, clt)
	baseEnd := time.Date(2024, time.March, 15, 10, 0, 0, 0, clt)

	t.Run("respects weekday selections over two weeks", func(t *testing.T) {
		t.Parallel()

		engine := NewEngine(clt)
		occurrences, err := engine.Expand(Event{
			ID:      "evt-9",
			Title:   "Planning",
			Start:   baseStart,
			End:     baseEnd,
			Pattern: "MO,WE,FR",
		}, Options{})
		if err != nil {
			t.Fatalf("Expand returned error: %v", err)
		}
		if len(occurrences) != 6 {
			t.Fatalf("expected 6 occurrences, got %d", len(occurrences))
		}

		wantDays := []int{4, 6, 8, 11, 13, 15}
		for i, occ := range occurrences {
			if occ.Start.Day() != wantDays[i] {
				t.Fatalf("occurrence %d: expected day %d, got %d", i, wantDays[i], occ.Start.Day())
			}
			if occ.Start.Hour() != 9 || occ.Start.Minute() != 0 {
				t.Fatalf("occurrence %d: expected 09:00 start, got %s", i, occ.Start.Format("15:04"))
			}
			if got := occ.End.Sub(occ.Start); got != 3*time.Hour {
				t.Fatalf("occurrence %d: expected 3h duration, got %s", i, got)
			}
			if !occ.Recurring || occ.ParentID != "evt-9" {
				t.Fatalf("occurrence %d: expected recurring child of evt-9, got %+v", i, occ)
			}
		}
		if occurrences[0].ID != "evt-9-2024-03-04" {
			t.Fatalf("unexpected instance id %q", occurrences[0].ID)
		}
	})

	t.Run("includes the final calendar day regardless of end time", func(t *testing.T) {
		t.Parallel()

		engine := NewEngine(clt)
		occurrences, err := engine.Expand(Event{
			ID:      "evt-late",
			Start:   time.Date(2024, time.March, 4, 15, 0, 0, 0, clt),
			End:     time.Date(2024, time.March, 8, 10, 0, 0, 0, clt),
			Pattern: "FR",
		}, Options{})
		if err != nil {
			t.Fatalf("Expand returned error: %v", err)
		}
		if len(occurrences) != 1 || occurrences[0].Start.Day() != 8 || occurrences[0].Start.Hour() != 15 {
			t.Fatalf("expected a single Friday 15:00 instance, got %+v", occurrences)
		}
	})

	t.Run("clips occurrences to the requested range", func(t *testing.T) {
		t.Parallel()

		engine := NewEngine(clt)
		occurrences, err := engine.Expand(Event{
			ID:      "evt-clip",
			Start:   baseStart,
			End:     baseEnd,
			Pattern: "MO,TU,WE,TH,FR",
		}, Options{
			RangeStart: time.Date(2024, time.March, 7, 0, 0, 0, 0, clt),
			RangeEnd:   time.Date(2024, time.March, 12, 0, 0, 0, 0, clt),
		})
		if err != nil {
			t.Fatalf("Expand returned error: %v", err)
		}
		if len(occurrences) != 3 {
			t.Fatalf("expected Thu, Fri, Mon inside range, got %d", len(occurrences))
		}
		if occurrences[0].Start.Day() != 7 || occurrences[2].Start.Day() != 11 {
			t.Fatalf("unexpected bounds: first %s last %s", occurrences[0].Start, occurrences[2].Start)
		}
	})

	t.Run("normalizes to the engine timezone", func(t *testing.T) {
		t.Parallel()

		engine := NewEngine(clt)
		occurrences, err := engine.Expand(Event{
			ID:      "evt-utc",
			Start:   baseStart.In(time.UTC),
			End:     baseEnd.In(time.UTC),
			Pattern: "MO",
		}, Options{})
		if err != nil {
			t.Fatalf("Expand returned error: %v", err)
		}
		if len(occurrences) != 2 {
			t.Fatalf("expected 2 Monday instances, got %d", len(occurrences))
		}
		for _, occ := range occurrences {
			if occ.Start.Location() != clt || occ.Start.Hour() != 9 {
				t.Fatalf("expected 09:00 CLT, got %s", occ.Start)
			}
		}
	})

	t.Run("non recurring events expand to themselves", func(t *testing.T) {
		t.Parallel()

		engine := NewEngine(clt)
		occurrences, err := engine.Expand(Event{ID: "single", Start: baseStart, End: baseStart.Add(time.Hour)}, Options{})
		if err != nil {
			t.Fatalf("Expand returned error: %v", err)
		}
		if len(occurrences) != 1 || occurrences[0].ID != "single" || occurrences[0].Recurring {
			t.Fatalf("unexpected occurrences %+v", occurrences)
		}
		if occurrences[0].End.Sub(occurrences[0].Start) != time.Hour {
			t.Fatalf("expected original duration to be kept")
		}
	})

	t.Run("honors custom duration and cap", func(t *testing.T) {
		t.Parallel()

		engine := NewEngine(clt, WithInstanceDuration(time.Hour), WithMaxOccurrences(2))
		occurrences, err := engine.Expand(Event{ID: "cap", Start: baseStart, End: baseEnd, Pattern: "MO,TU,WE,TH,FR"}, Options{})
		if err != nil {
			t.Fatalf("Expand returned error: %v", err)
		}
		if len(occurrences) != 2 {
			t.Fatalf("expected cap of 2, got %d", len(occurrences))
		}
		if occurrences[0].End.Sub(occurrences[0].Start) != time.Hour {
			t.Fatalf("expected 1h instances")
		}
	})

	t.Run("rejects inverted events and bad codes", func(t *testing.T) {
		t.Parallel()

		engine := NewEngine(clt)
		if _, err := engine.Expand(Event{ID: "x", Start: baseEnd, End: baseStart}, Options{}); !errors.Is(err, ErrInvalidDuration) {
			t.Fatalf("expected ErrInvalidDuration, got %v", err)
		}
		if _, err := engine.Expand(Event{ID: "y", Start: baseStart, End: baseEnd, Pattern: "MO,XX"}, Options{}); !errors.Is(err, ErrInvalidDayCode) {
			t.Fatalf("expected ErrInvalidDayCode, got %v", err)
		}
	})
}

func TestEngine_ExpandAcrossDSTChange(t *testing.T) {
	t.Parallel()

	santiago, err := time.LoadLocation("America/Santiago")
	if err != nil {
		t.Fatalf("LoadLocation: %v", err)
	}

	// Chile leaves summer time on Sunday 2024-04-07.
	engine := NewEngine(santiago)
	occurrences, err := engine.Expand(Event{
		ID:      "weekly",
		Start:   time.Date(2024, time.April, 1, 9, 0, 0, 0, santiago),
		End:     time.Date(2024, time.April, 15, 10, 0, 0, 0, santiago),
		Pattern: "MO",
	}, Options{})
	if err != nil {
		t.Fatalf("Expand returned error: %v", err)
	}
	if len(occurrences) != 3 {
		t.Fatalf("expected 3 Monday instances, got %d", len(occurrences))
	}
	for _, occ := range occurrences {
		if occ.Start.Hour() != 9 || occ.Start.Minute() != 0 {
			t.Fatalf("expected 09:00 wall clock, got %s", occ.Start)
		}
		if occ.End.Sub(occ.Start) != DefaultInstanceDuration {
			t.Fatalf("expected %s instances, got %s", DefaultInstanceDuration, occ.End.Sub(occ.Start))
		}
	}
	_, before := occurrences[0].Start.Zone()
	_, after := occurrences[1].Start.Zone()
	if before == after {
		t.Fatalf("expected the UTC offset to change between %s and %s", occurrences[0].Start, occurrences[1].Start)
	}
	if got := occurrences[1].Start.Sub(occurrences[0].Start); got != 7*24*time.Hour+time.Hour {
		t.Fatalf("expected a 169h gap across the change, got %s", got)
	}
}

func TestEngine_ExpandStopsAtRangeEnd(t *testing.T) {
	t.Parallel()

	start := time.Date(2024, time.March, 4, 9, 0, 0, 0, clt)
	event := Event{
		ID:      "decade",
		Start:   start,
		End:     start.AddDate(10, 0, 0),
		Pattern: "MO,TU,WE,TH,FR,SA,SU",
	}

	engine := NewEngine(clt, WithMaxOccurrences(1_000_000))
	occurrences, err := engine.Expand(event, Options{
		RangeStart: start,
		RangeEnd:   start.AddDate(0, 0, 7),
	})
	if err != nil {
		t.Fatalf("Expand returned error: %v", err)
	}
	if len(occurrences) != 7 {
		t.Fatalf("expected one week of daily instances, got %d", len(occurrences))
	}
	if last := occurrences[len(occurrences)-1]; last.ID != "decade-2024-03-10" {
		t.Fatalf("unexpected last instance %s", last.ID)
	}
}

func TestParsePattern(t *testing.T) {
	t.Parallel()

	days, err := ParsePattern(" mo, we ,MO,fr,")
	if err != nil {
		t.Fatalf("ParsePattern returned error: %v", err)
	}
	if len(days) != 3 {
		t.Fatalf("expected 3 distinct days, got %d", len(days))
	}

	days, err = ParsePattern("")
	if err != nil || days != nil {
		t.Fatalf("expected empty pattern to yield nil, got %v %v", days, err)
	}
}

func TestEngine_ExpandAll(t *testing.T) {
	t.Parallel()

	engine := NewEngine(clt)
	start := time.Date(2024, time.March, 4, 9, 0, 0, 0, clt)
	occurrences, failures := engine.ExpandAll([]Event{
		{ID: "ok", Start: start, End: start.Add(time.Hour)},
		{ID: "bad", Start: start, End: start.Add(time.Hour), Pattern: "ZZ"},
	}, Options{})

	if len(occurrences) != 1 {
		t.Fatalf("expected 1 occurrence, got %d", len(occurrences))
	}
	if _, ok := failures["bad"]; !ok {
		t.Fatalf("expected failure for bad event, got %v", failures)
	}
}
