package bootstrap_test

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/example/staffboard/internal/backend"
	"github.com/example/staffboard/internal/bootstrap"
	"github.com/example/staffboard/internal/persistence/sqlite"
)

var errUpstream = errors.New("upstream unavailable")

// fakeSource fails the named endpoints a configurable number of times.
type fakeSource struct {
	mu       sync.Mutex
	failures map[string]int
	calls    map[string]int
	images   map[string]backend.Image
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		failures: make(map[string]int),
		calls:    make(map[string]int),
		images: map[string]backend.Image{
			"https://img/ana.png": {ContentType: "image/png", Data: []byte{0x89, 'P', 'N', 'G'}},
		},
	}
}

func (f *fakeSource) hit(endpoint string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[endpoint]++
	if f.failures[endpoint] != 0 {
		if f.failures[endpoint] > 0 {
			f.failures[endpoint]--
		}
		return errUpstream
	}
	return nil
}

func (f *fakeSource) callCount(endpoint string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[endpoint]
}

func (f *fakeSource) Users(context.Context) ([]backend.User, error) {
	if err := f.hit("users"); err != nil {
		return nil, err
	}
	inactive := false
	return []backend.User{
		{ID: "u-1", Name: "Ana", DepartmentID: "finance", ImageURL: "https://img/ana.png"},
		{ID: "u-2", Name: "Bruno", DepartmentID: "ops", ImageURL: "https://img/missing.png"},
		{ID: "u-3", Name: "Carla", DepartmentID: "ops", Active: &inactive},
		{ID: "", Name: "Nobody"},
	}, nil
}

func (f *fakeSource) Image(_ context.Context, ref string) (backend.Image, error) {
	if err := f.hit("image"); err != nil {
		return backend.Image{}, err
	}
	img, ok := f.images[ref]
	if !ok {
		return backend.Image{}, &backend.StatusError{Code: 404, Endpoint: ref}
	}
	return img, nil
}

func (f *fakeSource) Authorizations(context.Context) ([]backend.Authorization, error) {
	if err := f.hit("authorizations"); err != nil {
		return nil, err
	}
	return []backend.Authorization{
		{ID: "a-1", UserID: "u-1", StartDate: "2024-03-04", EndDate: "2024-03-08", Mode: "AM"},
		{ID: "a-2", UserID: "u-1", StartDate: "2024-03-04", EndDate: "2024-03-08", Mode: "SOMETIMES"},
	}, nil
}

func (f *fakeSource) Vacations(context.Context) ([]backend.Vacation, error) {
	if err := f.hit("vacations"); err != nil {
		return nil, err
	}
	return []backend.Vacation{{ID: "v-1", UserID: "u-2", StartDate: "2024-03-11", EndDate: "2024-03-15"}}, nil
}

func (f *fakeSource) Holidays(context.Context) ([]backend.Holiday, error) {
	if err := f.hit("holidays"); err != nil {
		return nil, err
	}
	return []backend.Holiday{{Date: "2024-03-29", Name: "Good Friday"}}, nil
}

func (f *fakeSource) Schedules(context.Context) ([]backend.Schedule, error) {
	if err := f.hit("schedules"); err != nil {
		return nil, err
	}
	return []backend.Schedule{
		{UserID: "u-1", Weekday: "MO", WorkStart: "09:00", LunchStart: "13:00", LunchEnd: "14:00", WorkEnd: "18:00"},
		{UserID: "u-1", Weekday: "XX", WorkStart: "09:00", LunchStart: "13:00", LunchEnd: "14:00", WorkEnd: "18:00"},
	}, nil
}

func (f *fakeSource) Exceptions(context.Context) ([]backend.Exception, error) {
	if err := f.hit("exceptions"); err != nil {
		return nil, err
	}
	return []backend.Exception{{ID: "e-1", UserID: "u-1", Date: "2024-03-06", DayOff: true, Reason: "compensation"}}, nil
}

func newStorage(t *testing.T) *sqlite.Storage {
	t.Helper()

	storage, err := sqlite.Open(filepath.Join(t.TempDir(), "staffboard.db"))
	if err != nil {
		t.Fatalf("failed to open storage: %v", err)
	}
	t.Cleanup(func() { _ = storage.Close() })
	if err := storage.Migrate(context.Background()); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	return storage
}

func newPipeline(t *testing.T, source bootstrap.Source, store bootstrap.Store) *bootstrap.Pipeline {
	t.Helper()

	now := time.Date(2024, time.March, 1, 3, 0, 0, 0, time.UTC)
	pipeline, err := bootstrap.New(source, store, bootstrap.Config{StageAttempts: 3, StageDelay: time.Millisecond},
		bootstrap.WithNow(func() time.Time { return now }),
		bootstrap.WithIDGenerator(func() string { return "run-1" }),
	)
	if err != nil {
		t.Fatalf("failed to build pipeline: %v", err)
	}
	return pipeline
}

func stageByName(t *testing.T, report bootstrap.Report, name string) bootstrap.StageResult {
	t.Helper()
	for _, st := range report.Stages {
		if st.Name == name {
			return st
		}
	}
	t.Fatalf("stage %s missing from report", name)
	return bootstrap.StageResult{}
}

func TestPipeline_Run(t *testing.T) {
	t.Run("mirrors every stage in order", func(t *testing.T) {
		ctx := context.Background()
		storage := newStorage(t)
		source := newFakeSource()

		report, err := newPipeline(t, source, storage).Run(ctx)
		if err != nil {
			t.Fatalf("Run returned error: %v", err)
		}

		wantOrder := []string{
			bootstrap.StageUsers, bootstrap.StageImages, bootstrap.StageAuthorizations,
			bootstrap.StageVacations, bootstrap.StageHolidays, bootstrap.StageSchedules, bootstrap.StageExceptions,
		}
		if len(report.Stages) != len(wantOrder) {
			t.Fatalf("expected %d stages, got %d", len(wantOrder), len(report.Stages))
		}
		for i, name := range wantOrder {
			if report.Stages[i].Name != name || report.Stages[i].Status != bootstrap.StatusOK {
				t.Fatalf("stage %d: expected %s ok, got %+v", i, name, report.Stages[i])
			}
		}

		users := stageByName(t, report, bootstrap.StageUsers)
		if users.Records != 3 || users.Failures != 1 {
			t.Fatalf("expected 3 users and 1 dropped record, got %+v", users)
		}
		images := stageByName(t, report, bootstrap.StageImages)
		if images.Records != 1 || images.Failures != 1 {
			t.Fatalf("expected one image and one failed download, got %+v", images)
		}
		if auths := stageByName(t, report, bootstrap.StageAuthorizations); auths.Records != 1 || auths.Failures != 1 {
			t.Fatalf("expected invalid mode to be dropped, got %+v", auths)
		}

		stored, err := storage.GetUser(ctx, "u-3")
		if err != nil || stored.Active {
			t.Fatalf("expected inactive user to be stored, got %+v, %v", stored, err)
		}
		if _, err := storage.GetUserImage(ctx, "u-1"); err != nil {
			t.Fatalf("expected image to be cached: %v", err)
		}
		if _, err := storage.ExceptionOn(ctx, "u-1", time.Date(2024, time.March, 6, 0, 0, 0, 0, time.UTC)); err != nil {
			t.Fatalf("expected exception to be cached: %v", err)
		}

		run, err := storage.LatestSyncRun(ctx)
		if err != nil {
			t.Fatalf("LatestSyncRun returned error: %v", err)
		}
		if run.ID != "run-1" || len(run.Stages) != len(wantOrder) {
			t.Fatalf("unexpected stored run %+v", run)
		}
	})

	t.Run("retries transient failures", func(t *testing.T) {
		storage := newStorage(t)
		source := newFakeSource()
		source.failures["holidays"] = 2

		report, err := newPipeline(t, source, storage).Run(context.Background())
		if err != nil {
			t.Fatalf("Run returned error: %v", err)
		}
		holidays := stageByName(t, report, bootstrap.StageHolidays)
		if holidays.Status != bootstrap.StatusOK || holidays.Attempts != 3 {
			t.Fatalf("expected success on the third attempt, got %+v", holidays)
		}
	})

	t.Run("skips a stage after the last attempt and continues", func(t *testing.T) {
		storage := newStorage(t)
		source := newFakeSource()
		source.failures["vacations"] = -1

		report, err := newPipeline(t, source, storage).Run(context.Background())
		if err != nil {
			t.Fatalf("Run returned error: %v", err)
		}
		vacations := stageByName(t, report, bootstrap.StageVacations)
		if vacations.Status != bootstrap.StatusSkipped || vacations.Attempts != 3 || vacations.Error == "" {
			t.Fatalf("expected skipped stage after 3 attempts, got %+v", vacations)
		}
		if source.callCount("vacations") != 3 {
			t.Fatalf("expected 3 calls, got %d", source.callCount("vacations"))
		}
		if got := report.Skipped(); len(got) != 1 || got[0] != bootstrap.StageVacations {
			t.Fatalf("unexpected skipped stages %v", got)
		}
		if holidays := stageByName(t, report, bootstrap.StageHolidays); holidays.Status != bootstrap.StatusOK {
			t.Fatalf("expected later stages to run, got %+v", holidays)
		}
	})

	t.Run("aborts on cancellation and still stores the report", func(t *testing.T) {
		storage := newStorage(t)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		report, err := newPipeline(t, newFakeSource(), storage).Run(ctx)
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
		if len(report.Stages) != 1 || report.Stages[0].Status != bootstrap.StatusSkipped {
			t.Fatalf("expected the first stage to be recorded as aborted, got %+v", report.Stages)
		}
		if _, err := storage.LatestSyncRun(context.Background()); err != nil {
			t.Fatalf("expected partial report to be stored: %v", err)
		}
	})
}

func TestNew_RequiresCollaborators(t *testing.T) {
	if _, err := bootstrap.New(nil, nil, bootstrap.Config{}); err == nil {
		t.Fatalf("expected error without source")
	}
	if _, err := bootstrap.New(newFakeSource(), nil, bootstrap.Config{}); err == nil {
		t.Fatalf("expected error without store")
	}
}
