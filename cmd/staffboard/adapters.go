package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/example/staffboard/internal/application"
	"github.com/example/staffboard/internal/backend"
	"github.com/example/staffboard/internal/bootstrap"
	"github.com/example/staffboard/internal/persistence"
	"github.com/example/staffboard/internal/sales"
	"github.com/example/staffboard/internal/status"
)

// userDirectoryAdapter serves the mirrored directory to the application layer.
type userDirectoryAdapter struct {
	users  persistence.UserRepository
	images persistence.ImageRepository
}

func newUserDirectoryAdapter(users persistence.UserRepository, images persistence.ImageRepository) *userDirectoryAdapter {
	return &userDirectoryAdapter{users: users, images: images}
}

func (a *userDirectoryAdapter) GetUser(ctx context.Context, id string) (application.User, error) {
	stored, err := a.users.GetUser(ctx, id)
	if err != nil {
		return application.User{}, err
	}
	return toApplicationUser(stored), nil
}

func (a *userDirectoryAdapter) ListUsers(ctx context.Context) ([]application.User, error) {
	models, err := a.users.ListUsers(ctx)
	if err != nil {
		return nil, err
	}
	if len(models) == 0 {
		return nil, nil
	}
	users := make([]application.User, 0, len(models))
	for _, model := range models {
		users = append(users, toApplicationUser(model))
	}
	return users, nil
}

func (a *userDirectoryAdapter) GetUserImage(ctx context.Context, id string) (application.UserImage, error) {
	if a.images == nil {
		return application.UserImage{}, application.ErrNotFound
	}
	stored, err := a.images.GetUserImage(ctx, id)
	if err != nil {
		return application.UserImage{}, err
	}
	return application.UserImage{
		UserID:      stored.UserID,
		ContentType: stored.ContentType,
		Data:        stored.Data,
		FetchedAt:   stored.FetchedAt,
	}, nil
}

func toApplicationUser(model persistence.User) application.User {
	return application.User{
		ID:           model.ID,
		Name:         model.Name,
		Email:        model.Email,
		DepartmentID: model.DepartmentID,
		Position:     model.Position,
		HasImage:     model.ImageURL != "",
		Active:       model.Active,
		UpdatedAt:    model.UpdatedAt,
	}
}

// workCalendarAdapter answers per-day calendar questions from the cache.
type workCalendarAdapter struct {
	repo persistence.CalendarRepository
}

func newWorkCalendarAdapter(repo persistence.CalendarRepository) *workCalendarAdapter {
	return &workCalendarAdapter{repo: repo}
}

func (a *workCalendarAdapter) WeekSchedule(ctx context.Context, userID string) (status.WeekSchedule, error) {
	rows, err := a.repo.ListWorkSchedules(ctx, userID)
	if err != nil {
		return nil, err
	}
	week := make(status.WeekSchedule, len(rows))
	for _, row := range rows {
		ds, err := parseDaySchedule(row.WorkStart, row.LunchStart, row.LunchEnd, row.WorkEnd)
		if err != nil {
			return nil, fmt.Errorf("work schedule of %s on %s: %w", userID, row.Weekday, err)
		}
		week[row.Weekday] = ds
	}
	return week, nil
}

func (a *workCalendarAdapter) ExceptionOn(ctx context.Context, userID string, day time.Time) (application.ScheduleException, error) {
	stored, err := a.repo.ExceptionOn(ctx, userID, day)
	if err != nil {
		if errors.Is(err, persistence.ErrNotFound) {
			return application.ScheduleException{}, application.ErrNotFound
		}
		return application.ScheduleException{}, err
	}

	out := application.ScheduleException{DayOff: stored.DayOff, Reason: stored.Reason}
	if stored.DayOff {
		return out, nil
	}
	out.Schedule, err = parseDaySchedule(stored.WorkStart, stored.LunchStart, stored.LunchEnd, stored.WorkEnd)
	if err != nil {
		return application.ScheduleException{}, fmt.Errorf("schedule exception %s: %w", stored.ID, err)
	}
	return out, nil
}

func (a *workCalendarAdapter) RemoteModesOn(ctx context.Context, userID string, day time.Time) ([]status.RemoteMode, error) {
	auths, err := a.repo.RemoteAuthorizationsOn(ctx, userID, day)
	if err != nil {
		return nil, err
	}
	modes := make([]status.RemoteMode, 0, len(auths))
	for _, auth := range auths {
		if mode := status.ParseRemoteMode(auth.Mode); mode != status.RemoteNone {
			modes = append(modes, mode)
		}
	}
	return modes, nil
}

func (a *workCalendarAdapter) OnVacation(ctx context.Context, userID string, day time.Time) (bool, error) {
	vacations, err := a.repo.VacationsOn(ctx, userID, day)
	if err != nil {
		return false, err
	}
	return len(vacations) > 0, nil
}

func (a *workCalendarAdapter) HolidayOn(ctx context.Context, day time.Time) (string, bool, error) {
	holiday, err := a.repo.HolidayOn(ctx, day)
	if err != nil {
		if errors.Is(err, persistence.ErrNotFound) {
			return "", false, nil
		}
		return "", false, err
	}
	return holiday.Name, true, nil
}

func parseDaySchedule(workStart, lunchStart, lunchEnd, workEnd string) (status.DaySchedule, error) {
	var (
		ds  status.DaySchedule
		err error
	)
	if ds.WorkStart, err = status.ParseClock(workStart); err != nil {
		return ds, err
	}
	if ds.LunchStart, err = status.ParseClock(lunchStart); err != nil {
		return ds, err
	}
	if ds.LunchEnd, err = status.ParseClock(lunchEnd); err != nil {
		return ds, err
	}
	if ds.WorkEnd, err = status.ParseClock(workEnd); err != nil {
		return ds, err
	}
	return ds, ds.Validate()
}

// boardFeedAdapter reads the live status board from the backend.
type boardFeedAdapter struct {
	client *backend.Client
}

func (a boardFeedAdapter) StatusBoard(ctx context.Context, userID string) ([]status.BoardEntry, error) {
	entries, err := a.client.StatusBoard(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", application.ErrUpstreamUnavailable, err)
	}
	out := make([]status.BoardEntry, 0, len(entries))
	for _, e := range entries {
		out = append(out, status.BoardEntry{ID: e.ID, Status: e.Status, Note: e.Note, Start: e.Start, End: e.End})
	}
	return out, nil
}

// boardCacheAdapter keeps the last fetched board per user.
type boardCacheAdapter struct {
	repo persistence.BoardRepository
}

func (a boardCacheAdapter) ReplaceBoard(ctx context.Context, userID string, entries []status.BoardEntry) error {
	rows := make([]persistence.BoardEntry, 0, len(entries))
	for _, e := range entries {
		rows = append(rows, persistence.BoardEntry{ID: e.ID, UserID: userID, Status: e.Status, Note: e.Note, Start: e.Start, End: e.End})
	}
	return a.repo.ReplaceBoardEntries(ctx, userID, rows)
}

func (a boardCacheAdapter) CachedBoard(ctx context.Context, userID string) ([]status.BoardEntry, error) {
	rows, err := a.repo.ListBoardEntries(ctx, userID)
	if err != nil {
		return nil, err
	}
	out := make([]status.BoardEntry, 0, len(rows))
	for _, r := range rows {
		out = append(out, status.BoardEntry{ID: r.ID, Status: r.Status, Note: r.Note, Start: r.Start, End: r.End})
	}
	return out, nil
}

// snapshotStoreAdapter persists derived statuses.
type snapshotStoreAdapter struct {
	repo persistence.SnapshotRepository
}

func (a snapshotStoreAdapter) ReplaceSnapshots(ctx context.Context, snapshots []application.StatusSnapshot) error {
	rows := make([]persistence.StatusSnapshot, 0, len(snapshots))
	for _, s := range snapshots {
		rows = append(rows, persistence.StatusSnapshot{
			UserID:      s.UserID,
			Status:      string(s.Status),
			Progress:    s.Progress,
			Source:      string(s.Source),
			Reason:      s.Reason,
			WindowStart: s.WindowStart,
			WindowEnd:   s.WindowEnd,
			ComputedAt:  s.ComputedAt,
		})
	}
	return a.repo.ReplaceStatusSnapshots(ctx, rows)
}

func (a snapshotStoreAdapter) ListSnapshots(ctx context.Context) ([]application.StatusSnapshot, error) {
	rows, err := a.repo.ListStatusSnapshots(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]application.StatusSnapshot, 0, len(rows))
	for _, r := range rows {
		out = append(out, application.StatusSnapshot{
			UserID:      r.UserID,
			Status:      status.Status(r.Status),
			Progress:    r.Progress,
			Source:      status.Source(r.Source),
			Reason:      r.Reason,
			WindowStart: r.WindowStart,
			WindowEnd:   r.WindowEnd,
			ComputedAt:  r.ComputedAt,
		})
	}
	return out, nil
}

// eventRepositoryAdapter stores events and reads them back in UTC.
type eventRepositoryAdapter struct {
	repo persistence.EventRepository
}

func newEventRepositoryAdapter(repo persistence.EventRepository) *eventRepositoryAdapter {
	return &eventRepositoryAdapter{repo: repo}
}

func (a *eventRepositoryAdapter) CreateEvent(ctx context.Context, event application.Event) (application.Event, error) {
	if err := a.repo.CreateEvent(ctx, toPersistenceEvent(event)); err != nil {
		return application.Event{}, err
	}
	return a.GetEvent(ctx, event.ID)
}

func (a *eventRepositoryAdapter) UpdateEvent(ctx context.Context, event application.Event) (application.Event, error) {
	if err := a.repo.UpdateEvent(ctx, toPersistenceEvent(event)); err != nil {
		return application.Event{}, err
	}
	return a.GetEvent(ctx, event.ID)
}

func (a *eventRepositoryAdapter) GetEvent(ctx context.Context, id string) (application.Event, error) {
	stored, err := a.repo.GetEvent(ctx, id)
	if err != nil {
		return application.Event{}, err
	}
	return toApplicationEvent(stored), nil
}

func (a *eventRepositoryAdapter) ListEvents(ctx context.Context, filter application.EventRepositoryFilter) ([]application.Event, error) {
	models, err := a.repo.ListEvents(ctx, persistence.EventFilter{
		DepartmentID: filter.DepartmentID,
		From:         filter.From,
		To:           filter.To,
	})
	if err != nil {
		return nil, err
	}
	events := make([]application.Event, 0, len(models))
	for _, model := range models {
		events = append(events, toApplicationEvent(model))
	}
	return events, nil
}

func (a *eventRepositoryAdapter) DeleteEvent(ctx context.Context, id string) error {
	return a.repo.DeleteEvent(ctx, id)
}

func toPersistenceEvent(event application.Event) persistence.Event {
	return persistence.Event{
		ID:           event.ID,
		Title:        event.Title,
		Description:  event.Description,
		DepartmentID: event.DepartmentID,
		Start:        event.Start,
		End:          event.End,
		Pattern:      event.Pattern,
		CreatedAt:    event.CreatedAt,
		UpdatedAt:    event.UpdatedAt,
	}
}

func toApplicationEvent(model persistence.Event) application.Event {
	return application.Event{
		ID:           model.ID,
		Title:        model.Title,
		Description:  model.Description,
		DepartmentID: model.DepartmentID,
		Start:        model.Start,
		End:          model.End,
		Pattern:      model.Pattern,
		CreatedAt:    model.CreatedAt,
		UpdatedAt:    model.UpdatedAt,
	}
}

// salesRepositoryAdapter stores sales and feeds their totals to reports.
type salesRepositoryAdapter struct {
	repo persistence.SalesRepository
}

func newSalesRepositoryAdapter(repo persistence.SalesRepository) *salesRepositoryAdapter {
	return &salesRepositoryAdapter{repo: repo}
}

func (a *salesRepositoryAdapter) CreateSale(ctx context.Context, sale application.Sale) (application.Sale, error) {
	if err := a.repo.CreateSale(ctx, persistence.Sale{
		ID:             sale.ID,
		Date:           sale.Date,
		Branch:         sale.Branch,
		Product:        sale.Product,
		DocumentType:   sale.DocumentType,
		DocumentNumber: sale.DocumentNumber,
		Units:          sale.Units,
		Kilos:          sale.Kilos,
		UnitPrice:      sale.UnitPrice,
		Discount:       sale.Discount,
		Net:            sale.Net,
		VAT:            sale.VAT,
		Total:          sale.Total,
		PaymentMethod:  sale.PaymentMethod,
		CreatedAt:      sale.CreatedAt,
	}); err != nil {
		return application.Sale{}, err
	}
	stored, err := a.repo.GetSale(ctx, sale.ID)
	if err != nil {
		return application.Sale{}, err
	}
	return toApplicationSale(stored), nil
}

func (a *salesRepositoryAdapter) SearchSales(ctx context.Context, query application.SalesQuery) ([]application.Sale, error) {
	models, err := a.repo.SearchSales(ctx, persistence.SaleFilter{
		From:           query.From,
		To:             query.To,
		Branches:       query.Branches,
		DocumentTypes:  query.DocumentTypes,
		Products:       query.Products,
		DocumentNumber: query.DocumentNumber,
		Limit:          query.Limit,
	})
	if err != nil {
		return nil, err
	}
	out := make([]application.Sale, 0, len(models))
	for _, model := range models {
		out = append(out, toApplicationSale(model))
	}
	return out, nil
}

func (a *salesRepositoryAdapter) SalesTotals(ctx context.Context, from, to time.Time) ([]sales.Line, error) {
	totals, err := a.repo.SaleTotals(ctx, from, to)
	if err != nil {
		return nil, err
	}
	lines := make([]sales.Line, 0, len(totals))
	for _, t := range totals {
		lines = append(lines, sales.Line{
			Branch:  t.Branch,
			Product: t.Product,
			Units:   t.Units,
			Kilos:   t.Kilos,
			Gross:   t.Total,
			Net:     t.Net,
		})
	}
	return lines, nil
}

func (a *salesRepositoryAdapter) DailySales(ctx context.Context, from, to time.Time) ([]application.DailySales, error) {
	totals, err := a.repo.DailySaleTotals(ctx, from, to)
	if err != nil {
		return nil, err
	}
	out := make([]application.DailySales, 0, len(totals))
	for _, t := range totals {
		out = append(out, application.DailySales(t))
	}
	return out, nil
}

func toApplicationSale(model persistence.Sale) application.Sale {
	return application.Sale{
		ID:             model.ID,
		Date:           model.Date,
		Branch:         model.Branch,
		Product:        model.Product,
		DocumentType:   model.DocumentType,
		DocumentNumber: model.DocumentNumber,
		PaymentMethod:  model.PaymentMethod,
		Amounts: sales.Amounts{
			Units:     model.Units,
			Kilos:     model.Kilos,
			UnitPrice: model.UnitPrice,
			Discount:  model.Discount,
			Net:       model.Net,
			VAT:       model.VAT,
			Total:     model.Total,
		},
		CreatedAt: model.CreatedAt,
	}
}

// syncRunnerAdapter exposes the bootstrap pipeline as a SyncRunner.
type syncRunnerAdapter struct {
	pipeline *bootstrap.Pipeline
}

func (a syncRunnerAdapter) RunSync(ctx context.Context) (application.SyncReport, error) {
	report, err := a.pipeline.Run(ctx)
	return toSyncReport(report), err
}

func toSyncReport(report bootstrap.Report) application.SyncReport {
	out := application.SyncReport{
		RunID:      report.RunID,
		StartedAt:  report.StartedAt,
		FinishedAt: report.FinishedAt,
		Stages:     make([]application.SyncStageResult, 0, len(report.Stages)),
	}
	for _, st := range report.Stages {
		out.Stages = append(out.Stages, application.SyncStageResult{
			Name:     st.Name,
			Status:   st.Status,
			Attempts: st.Attempts,
			Records:  st.Records,
			Failures: st.Failures,
			Error:    st.Error,
			Duration: st.Duration,
		})
	}
	return out
}

// syncHistoryAdapter reads stored pipeline reports.
type syncHistoryAdapter struct {
	repo persistence.SyncRunRepository
}

func (a syncHistoryAdapter) LatestSyncRun(ctx context.Context) (application.SyncReport, error) {
	run, err := a.repo.LatestSyncRun(ctx)
	if err != nil {
		return application.SyncReport{}, err
	}
	out := application.SyncReport{
		RunID:      run.ID,
		StartedAt:  run.StartedAt,
		FinishedAt: run.FinishedAt,
		Stages:     make([]application.SyncStageResult, 0, len(run.Stages)),
	}
	for _, st := range run.Stages {
		out.Stages = append(out.Stages, application.SyncStageResult{
			Name:     st.Name,
			Status:   st.Status,
			Attempts: st.Attempts,
			Records:  st.Records,
			Failures: st.Failures,
			Error:    st.Error,
		})
	}
	return out, nil
}
