package sqlite

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/example/staffboard/internal/persistence"
)

func newTestStorage(t *testing.T) *Storage {
	t.Helper()

	dir := t.TempDir()
	dsn := filepath.Join(dir, "staffboard.db")
	storage, err := Open(dsn)
	if err != nil {
		t.Fatalf("failed to open storage: %v", err)
	}

	t.Cleanup(func() {
		_ = storage.Close()
	})

	if err := storage.Migrate(context.Background()); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}

	return storage
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestUserRepository(t *testing.T) {
	ctx := context.Background()
	storage := newTestStorage(t)

	now := time.Now().UTC().Truncate(time.Second)
	users := []persistence.User{
		{ID: "u-2", Name: "Bruno", DepartmentID: "ops", Active: true, UpdatedAt: now},
		{ID: "u-1", Name: "Ana", Email: "ana@example.com", DepartmentID: "hr", ImageURL: "https://img/1", Active: true, UpdatedAt: now},
	}
	if err := storage.ReplaceUsers(ctx, users); err != nil {
		t.Fatalf("ReplaceUsers failed: %v", err)
	}

	listed, err := storage.ListUsers(ctx)
	if err != nil {
		t.Fatalf("ListUsers failed: %v", err)
	}
	if len(listed) != 2 || listed[0].ID != "u-1" || listed[1].ID != "u-2" {
		t.Fatalf("expected users ordered by name, got %#v", listed)
	}

	fetched, err := storage.GetUser(ctx, "u-1")
	if err != nil {
		t.Fatalf("GetUser failed: %v", err)
	}
	if fetched.Email != "ana@example.com" || !fetched.Active || !fetched.UpdatedAt.Equal(now) {
		t.Fatalf("unexpected user retrieved: %#v", fetched)
	}

	if err := storage.ReplaceUsers(ctx, users[:1]); err != nil {
		t.Fatalf("second ReplaceUsers failed: %v", err)
	}
	if _, err := storage.GetUser(ctx, "u-1"); !errors.Is(err, persistence.ErrNotFound) {
		t.Fatalf("expected replaced user to be gone, got %v", err)
	}

	duplicate := []persistence.User{{ID: "dup", Name: "A"}, {ID: "dup", Name: "B"}}
	if err := storage.ReplaceUsers(ctx, duplicate); !errors.Is(err, persistence.ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}
	if _, err := storage.GetUser(ctx, "u-2"); err != nil {
		t.Fatalf("failed replace must keep previous rows, got %v", err)
	}
}

func TestImageRepository(t *testing.T) {
	ctx := context.Background()
	storage := newTestStorage(t)

	img := persistence.UserImage{UserID: "u-1", ContentType: "image/png", Data: []byte{0x89, 'P', 'N', 'G'}}
	if err := storage.ReplaceUserImages(ctx, []persistence.UserImage{img}); err != nil {
		t.Fatalf("ReplaceUserImages failed: %v", err)
	}

	fetched, err := storage.GetUserImage(ctx, "u-1")
	if err != nil {
		t.Fatalf("GetUserImage failed: %v", err)
	}
	if fetched.ContentType != "image/png" || string(fetched.Data) != string(img.Data) || fetched.FetchedAt.IsZero() {
		t.Fatalf("unexpected image: %#v", fetched)
	}

	if _, err := storage.GetUserImage(ctx, "missing"); !errors.Is(err, persistence.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestCalendarRepository(t *testing.T) {
	ctx := context.Background()
	storage := newTestStorage(t)

	schedules := []persistence.WorkSchedule{
		{UserID: "u-1", Weekday: time.Wednesday, WorkStart: "09:00", LunchStart: "13:00", LunchEnd: "14:00", WorkEnd: "18:00"},
		{UserID: "u-1", Weekday: time.Monday, WorkStart: "08:30", LunchStart: "13:00", LunchEnd: "14:00", WorkEnd: "17:30"},
		{UserID: "u-2", Weekday: time.Monday, WorkStart: "10:00", LunchStart: "14:00", LunchEnd: "15:00", WorkEnd: "19:00"},
	}
	if err := storage.ReplaceWorkSchedules(ctx, schedules); err != nil {
		t.Fatalf("ReplaceWorkSchedules failed: %v", err)
	}
	week, err := storage.ListWorkSchedules(ctx, "u-1")
	if err != nil {
		t.Fatalf("ListWorkSchedules failed: %v", err)
	}
	if len(week) != 2 || week[0].Weekday != time.Monday || week[1].WorkEnd != "18:00" {
		t.Fatalf("unexpected schedules: %#v", week)
	}

	auths := []persistence.RemoteAuthorization{
		{ID: "a-1", UserID: "u-1", StartDate: day(2024, 3, 11), EndDate: day(2024, 3, 15), Mode: "AM"},
		{ID: "a-2", UserID: "u-1", StartDate: day(2024, 4, 1), EndDate: day(2024, 4, 1), Mode: "FULL_DAY"},
	}
	if err := storage.ReplaceRemoteAuthorizations(ctx, auths); err != nil {
		t.Fatalf("ReplaceRemoteAuthorizations failed: %v", err)
	}
	covering, err := storage.RemoteAuthorizationsOn(ctx, "u-1", day(2024, 3, 15))
	if err != nil {
		t.Fatalf("RemoteAuthorizationsOn failed: %v", err)
	}
	if len(covering) != 1 || covering[0].Mode != "AM" {
		t.Fatalf("expected inclusive end date match, got %#v", covering)
	}
	bad := []persistence.RemoteAuthorization{{ID: "a-3", UserID: "u-1", StartDate: day(2024, 3, 1), EndDate: day(2024, 3, 2), Mode: "EVENING"}}
	if err := storage.ReplaceRemoteAuthorizations(ctx, bad); !errors.Is(err, persistence.ErrConstraintViolation) {
		t.Fatalf("expected ErrConstraintViolation for unknown mode, got %v", err)
	}

	vacations := []persistence.Vacation{{ID: "v-1", UserID: "u-2", StartDate: day(2024, 3, 4), EndDate: day(2024, 3, 8)}}
	if err := storage.ReplaceVacations(ctx, vacations); err != nil {
		t.Fatalf("ReplaceVacations failed: %v", err)
	}
	if got, err := storage.VacationsOn(ctx, "u-2", day(2024, 3, 4)); err != nil || len(got) != 1 {
		t.Fatalf("expected vacation on first day, got %v %v", got, err)
	}
	if got, err := storage.VacationsOn(ctx, "u-2", day(2024, 3, 9)); err != nil || len(got) != 0 {
		t.Fatalf("expected no vacation after last day, got %v %v", got, err)
	}

	if err := storage.ReplaceHolidays(ctx, []persistence.Holiday{{Date: day(2024, 5, 1), Name: "Labour Day"}}); err != nil {
		t.Fatalf("ReplaceHolidays failed: %v", err)
	}
	holiday, err := storage.HolidayOn(ctx, time.Date(2024, 5, 1, 15, 0, 0, 0, time.UTC))
	if err != nil || holiday.Name != "Labour Day" {
		t.Fatalf("expected holiday, got %#v %v", holiday, err)
	}
	if _, err := storage.HolidayOn(ctx, day(2024, 5, 2)); !errors.Is(err, persistence.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	exceptions := []persistence.ScheduleException{
		{ID: "e-1", UserID: "u-1", Date: day(2024, 3, 13), WorkStart: "07:00", LunchStart: "12:00", LunchEnd: "12:30", WorkEnd: "15:00", Reason: "early shift"},
		{ID: "e-2", UserID: "u-1", Date: day(2024, 3, 14), DayOff: true},
	}
	if err := storage.ReplaceScheduleExceptions(ctx, exceptions); err != nil {
		t.Fatalf("ReplaceScheduleExceptions failed: %v", err)
	}
	ex, err := storage.ExceptionOn(ctx, "u-1", day(2024, 3, 14))
	if err != nil || !ex.DayOff {
		t.Fatalf("expected day-off exception, got %#v %v", ex, err)
	}
	if _, err := storage.ExceptionOn(ctx, "u-2", day(2024, 3, 14)); !errors.Is(err, persistence.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestBoardRepository(t *testing.T) {
	ctx := context.Background()
	storage := newTestStorage(t)

	start := time.Date(2024, 3, 13, 13, 0, 0, 0, time.UTC)
	if err := storage.ReplaceBoardEntries(ctx, "u-1", []persistence.BoardEntry{
		{ID: "b-2", Status: "TRAVEL", Start: start.Add(24 * time.Hour), End: start.Add(48 * time.Hour)},
		{ID: "b-1", Status: "MEETING", Note: "board", Start: start, End: start.Add(2 * time.Hour)},
	}); err != nil {
		t.Fatalf("ReplaceBoardEntries failed: %v", err)
	}
	if err := storage.ReplaceBoardEntries(ctx, "u-2", []persistence.BoardEntry{
		{ID: "b-1", Status: "VACATION", Start: start, End: start.Add(time.Hour)},
	}); err != nil {
		t.Fatalf("ReplaceBoardEntries for second user failed: %v", err)
	}

	entries, err := storage.ListBoardEntries(ctx, "u-1")
	if err != nil {
		t.Fatalf("ListBoardEntries failed: %v", err)
	}
	if len(entries) != 2 || entries[0].ID != "b-1" || entries[0].UserID != "u-1" || entries[0].CachedAt.IsZero() {
		t.Fatalf("unexpected entries: %#v", entries)
	}

	if err := storage.ReplaceBoardEntries(ctx, "u-1", nil); err != nil {
		t.Fatalf("clearing board failed: %v", err)
	}
	if entries, _ := storage.ListBoardEntries(ctx, "u-1"); len(entries) != 0 {
		t.Fatalf("expected cleared board, got %#v", entries)
	}
	if entries, _ := storage.ListBoardEntries(ctx, "u-2"); len(entries) != 1 {
		t.Fatalf("expected other user's board untouched, got %#v", entries)
	}
}

func TestEventRepository(t *testing.T) {
	ctx := context.Background()
	storage := newTestStorage(t)

	base := time.Date(2024, 3, 4, 12, 0, 0, 0, time.UTC)
	for i, dept := range []string{"ops", "hr", "ops"} {
		ev := persistence.Event{
			ID:           fmt.Sprintf("ev-%d", i+1),
			Title:        fmt.Sprintf("Event %d", i+1),
			DepartmentID: dept,
			Start:        base.AddDate(0, 0, i),
			End:          base.AddDate(0, 0, i).Add(time.Hour),
		}
		if err := storage.CreateEvent(ctx, ev); err != nil {
			t.Fatalf("CreateEvent failed: %v", err)
		}
	}

	if err := storage.CreateEvent(ctx, persistence.Event{ID: "ev-1", Title: "x", DepartmentID: "ops", Start: base, End: base.Add(time.Hour)}); !errors.Is(err, persistence.ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}
	if err := storage.CreateEvent(ctx, persistence.Event{ID: "ev-bad", Title: "x", DepartmentID: "ops", Start: base, End: base}); !errors.Is(err, persistence.ErrConstraintViolation) {
		t.Fatalf("expected ErrConstraintViolation, got %v", err)
	}

	from := base.AddDate(0, 0, 1)
	events, err := storage.ListEvents(ctx, persistence.EventFilter{DepartmentID: "ops", From: &from})
	if err != nil {
		t.Fatalf("ListEvents failed: %v", err)
	}
	if len(events) != 1 || events[0].ID != "ev-3" {
		t.Fatalf("unexpected filtered events: %#v", events)
	}

	ev, err := storage.GetEvent(ctx, "ev-2")
	if err != nil {
		t.Fatalf("GetEvent failed: %v", err)
	}
	created := ev.CreatedAt
	ev.Title = "Renamed"
	ev.Pattern = "MO,WE"
	ev.UpdatedAt = time.Time{}
	if err := storage.UpdateEvent(ctx, ev); err != nil {
		t.Fatalf("UpdateEvent failed: %v", err)
	}
	ev, _ = storage.GetEvent(ctx, "ev-2")
	if ev.Title != "Renamed" || ev.Pattern != "MO,WE" || !ev.CreatedAt.Equal(created) {
		t.Fatalf("unexpected updated event: %#v", ev)
	}

	if err := storage.UpdateEvent(ctx, persistence.Event{ID: "missing", Title: "x", DepartmentID: "ops", Start: base, End: base.Add(time.Hour)}); !errors.Is(err, persistence.ErrNotFound) {
		t.Fatalf("expected ErrNotFound on update, got %v", err)
	}

	if err := storage.DeleteEvent(ctx, "ev-2"); err != nil {
		t.Fatalf("DeleteEvent failed: %v", err)
	}
	if err := storage.DeleteEvent(ctx, "ev-2"); !errors.Is(err, persistence.ErrNotFound) {
		t.Fatalf("expected ErrNotFound on second delete, got %v", err)
	}
}

func TestSnapshotAndSyncRunRepository(t *testing.T) {
	ctx := context.Background()
	storage := newTestStorage(t)

	now := time.Now().UTC().Truncate(time.Second)
	windowEnd := now.Add(time.Hour)
	snaps := []persistence.StatusSnapshot{
		{UserID: "u-2", Status: "HOME", Source: "schedule", ComputedAt: now},
		{UserID: "u-1", Status: "LUNCH", Progress: 50, Source: "schedule", WindowStart: &now, WindowEnd: &windowEnd, ComputedAt: now},
	}
	if err := storage.ReplaceStatusSnapshots(ctx, snaps); err != nil {
		t.Fatalf("ReplaceStatusSnapshots failed: %v", err)
	}
	listed, err := storage.ListStatusSnapshots(ctx)
	if err != nil {
		t.Fatalf("ListStatusSnapshots failed: %v", err)
	}
	if len(listed) != 2 || listed[0].UserID != "u-1" || listed[0].WindowEnd == nil || !listed[0].WindowEnd.Equal(windowEnd) {
		t.Fatalf("unexpected snapshots: %#v", listed)
	}
	if listed[1].WindowStart != nil {
		t.Fatalf("expected nil window for HOME snapshot")
	}

	if _, err := storage.LatestSyncRun(ctx); !errors.Is(err, persistence.ErrNotFound) {
		t.Fatalf("expected ErrNotFound before any run, got %v", err)
	}

	for i := 0; i < 2; i++ {
		started := now.Add(time.Duration(i) * time.Hour)
		run := persistence.SyncRun{
			ID:         fmt.Sprintf("run-%d", i),
			StartedAt:  started,
			FinishedAt: started.Add(time.Minute),
			Stages:     []persistence.SyncStage{{Name: "users", Status: "ok", Attempts: 1, Records: 3}},
		}
		if err := storage.CreateSyncRun(ctx, run); err != nil {
			t.Fatalf("CreateSyncRun failed: %v", err)
		}
	}
	latest, err := storage.LatestSyncRun(ctx)
	if err != nil {
		t.Fatalf("LatestSyncRun failed: %v", err)
	}
	if latest.ID != "run-1" || len(latest.Stages) != 1 || latest.Stages[0].Records != 3 {
		t.Fatalf("unexpected latest run: %#v", latest)
	}
}

func TestSalesRepository(t *testing.T) {
	ctx := context.Background()
	storage := newTestStorage(t)

	sales := []persistence.Sale{
		{ID: "s-1", Date: day(2024, 5, 2), Branch: "Osorno", Product: "Retiro", DocumentType: "invoice", DocumentNumber: "100", Units: 10, Kilos: 150, UnitPrice: 5490, Net: 46134, VAT: 8766, Total: 54900},
		{ID: "s-2", Date: day(2024, 5, 2), Branch: "La Unión", Product: "Despacho", DocumentType: "receipt", DocumentNumber: "0", Units: 1, Kilos: 15, UnitPrice: 5990, Net: 5034, VAT: 956, Total: 5990},
		{ID: "s-3", Date: day(2024, 5, 3), Branch: "Osorno", Product: "Retiro", DocumentType: "credit_note", DocumentNumber: "7", Units: -2, Kilos: -30, UnitPrice: 5490, Net: -9227, VAT: -1753, Total: -10980},
		{ID: "s-4", Date: day(2024, 6, 1), Branch: "Osorno", Product: "Retiro", DocumentType: "receipt", DocumentNumber: "0", Units: 1, Kilos: 15, UnitPrice: 5490, Net: 4613, VAT: 877, Total: 5490},
	}
	for _, sale := range sales {
		if err := storage.CreateSale(ctx, sale); err != nil {
			t.Fatalf("CreateSale %s failed: %v", sale.ID, err)
		}
	}

	reused := sales[0]
	reused.ID = "s-dup"
	if err := storage.CreateSale(ctx, reused); !errors.Is(err, persistence.ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate for a reused document number, got %v", err)
	}
	unbalanced := sales[0]
	unbalanced.ID, unbalanced.DocumentNumber, unbalanced.VAT = "s-bad", "101", 1
	if err := storage.CreateSale(ctx, unbalanced); !errors.Is(err, persistence.ErrConstraintViolation) {
		t.Fatalf("expected ErrConstraintViolation for unbalanced amounts, got %v", err)
	}

	fetched, err := storage.GetSale(ctx, "s-3")
	if err != nil {
		t.Fatalf("GetSale failed: %v", err)
	}
	if !fetched.Date.Equal(day(2024, 5, 3)) || fetched.Units != -2 || fetched.Kilos != -30 || fetched.CreatedAt.IsZero() {
		t.Fatalf("unexpected sale: %#v", fetched)
	}
	if _, err := storage.GetSale(ctx, "missing"); !errors.Is(err, persistence.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	tests := []struct {
		name   string
		filter persistence.SaleFilter
		want   []string
	}{
		{name: "everything newest first", filter: persistence.SaleFilter{}, want: []string{"s-4", "s-3", "s-2", "s-1"}},
		{name: "single day", filter: persistence.SaleFilter{From: day(2024, 5, 2), To: day(2024, 5, 2)}, want: []string{"s-2", "s-1"}},
		{name: "branches", filter: persistence.SaleFilter{Branches: []string{"La Unión", "Puerto Montt"}}, want: []string{"s-2"}},
		{name: "document types", filter: persistence.SaleFilter{DocumentTypes: []string{"invoice", "credit_note"}}, want: []string{"s-3", "s-1"}},
		{name: "document number", filter: persistence.SaleFilter{DocumentNumber: " 7 "}, want: []string{"s-3"}},
		{name: "combined with limit", filter: persistence.SaleFilter{From: day(2024, 5, 1), To: day(2024, 5, 31), Products: []string{"Retiro"}, Limit: 1}, want: []string{"s-3"}},
		{name: "quoted values stay parameters", filter: persistence.SaleFilter{Branches: []string{"Osorno' OR '1'='1"}}, want: nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			found, err := storage.SearchSales(ctx, tt.filter)
			if err != nil {
				t.Fatalf("SearchSales failed: %v", err)
			}
			var ids []string
			for _, sale := range found {
				ids = append(ids, sale.ID)
			}
			if fmt.Sprint(ids) != fmt.Sprint(tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, ids)
			}
		})
	}

	totals, err := storage.SaleTotals(ctx, day(2024, 5, 1), day(2024, 5, 31))
	if err != nil {
		t.Fatalf("SaleTotals failed: %v", err)
	}
	if len(totals) != 2 {
		t.Fatalf("expected two branch/product totals, got %#v", totals)
	}
	if totals[0].Branch != "La Unión" || totals[1].Branch != "Osorno" || totals[1].Units != 8 || totals[1].Kilos != 120 || totals[1].Total != 43920 {
		t.Fatalf("unexpected totals: %#v", totals)
	}

	daily, err := storage.DailySaleTotals(ctx, day(2024, 5, 1), day(2024, 6, 30))
	if err != nil {
		t.Fatalf("DailySaleTotals failed: %v", err)
	}
	if len(daily) != 3 || !daily[0].Date.Equal(day(2024, 5, 2)) || daily[0].Total != 60890 || daily[2].Units != 1 {
		t.Fatalf("unexpected daily totals: %#v", daily)
	}

	empty, err := storage.SaleTotals(ctx, day(2023, 1, 1), day(2023, 1, 31))
	if err != nil || len(empty) != 0 {
		t.Fatalf("expected no totals before the first sale, got %#v, %v", empty, err)
	}
}

func TestMapError(t *testing.T) {
	if !errors.Is(mapError(errors.New("UNIQUE constraint failed: users.id")), persistence.ErrDuplicate) {
		t.Fatalf("expected unique violation to map to ErrDuplicate")
	}
	if !errors.Is(mapError(errors.New("CHECK constraint failed: progress")), persistence.ErrConstraintViolation) {
		t.Fatalf("expected check violation to map to ErrConstraintViolation")
	}
	plain := errors.New("boom")
	if mapError(plain) != plain {
		t.Fatalf("expected unknown errors to pass through")
	}
}

func TestWithPragmas(t *testing.T) {
	if got := withPragmas("file.db"); got != "file.db?"+defaultPragmas {
		t.Fatalf("unexpected dsn %q", got)
	}
	if got := withPragmas("file.db?mode=ro"); got != "file.db?mode=ro&"+defaultPragmas {
		t.Fatalf("unexpected dsn %q", got)
	}
	custom := "file.db?_pragma=foreign_keys(0)"
	if got := withPragmas(custom); got != custom {
		t.Fatalf("expected custom pragmas to be kept, got %q", got)
	}
}
