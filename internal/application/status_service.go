package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/example/staffboard/internal/status"
)

// UserDirectory exposes the cached employee directory.
type UserDirectory interface {
	GetUser(ctx context.Context, id string) (User, error)
	ListUsers(ctx context.Context) ([]User, error)
}

// WorkCalendar exposes the cached per-user calendar data.
type WorkCalendar interface {
	WeekSchedule(ctx context.Context, userID string) (status.WeekSchedule, error)
	// ExceptionOn returns ErrNotFound when the day follows the weekly schedule.
	ExceptionOn(ctx context.Context, userID string, day time.Time) (ScheduleException, error)
	RemoteModesOn(ctx context.Context, userID string, day time.Time) ([]status.RemoteMode, error)
	OnVacation(ctx context.Context, userID string, day time.Time) (bool, error)
	// HolidayOn reports the holiday name when day is a holiday.
	HolidayOn(ctx context.Context, day time.Time) (string, bool, error)
}

// BoardFeed fetches the live status board.
type BoardFeed interface {
	StatusBoard(ctx context.Context, userID string) ([]status.BoardEntry, error)
}

// BoardCache keeps the last successfully fetched board per user.
type BoardCache interface {
	ReplaceBoard(ctx context.Context, userID string, entries []status.BoardEntry) error
	CachedBoard(ctx context.Context, userID string) ([]status.BoardEntry, error)
}

// SnapshotStore persists periodically derived statuses.
type SnapshotStore interface {
	ReplaceSnapshots(ctx context.Context, snapshots []StatusSnapshot) error
	ListSnapshots(ctx context.Context) ([]StatusSnapshot, error)
}

// StatusServiceDeps wires the collaborators of StatusService. Board and
// Snapshots are optional.
type StatusServiceDeps struct {
	Users      UserDirectory
	Calendar   WorkCalendar
	Board      BoardFeed
	BoardCache BoardCache
	Snapshots  SnapshotStore
	Now        func() time.Time
	Logger     *slog.Logger
}

// StatusServiceConfig holds the policy knobs of StatusService.
type StatusServiceConfig struct {
	// Location is the timezone working hours are expressed in.
	Location *time.Location
	// FlexibleUsers lists users whose whole working window counts as one
	// interval regardless of lunch.
	FlexibleUsers []string
}

// StatusService derives employee statuses from cached data and the live board.
type StatusService struct {
	users      UserDirectory
	calendar   WorkCalendar
	board      BoardFeed
	boardCache BoardCache
	snapshots  SnapshotStore
	location   *time.Location
	flexible   map[string]struct{}
	now        func() time.Time
	logger     *slog.Logger
}

// NewStatusService wires dependencies for status derivation.
func NewStatusService(deps StatusServiceDeps, cfg StatusServiceConfig) *StatusService {
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	loc := cfg.Location
	if loc == nil {
		loc = time.Local
	}
	flexible := make(map[string]struct{}, len(cfg.FlexibleUsers))
	for _, id := range cfg.FlexibleUsers {
		flexible[id] = struct{}{}
	}
	return &StatusService{
		users:      deps.Users,
		calendar:   deps.Calendar,
		board:      deps.Board,
		boardCache: deps.BoardCache,
		snapshots:  deps.Snapshots,
		location:   loc,
		flexible:   flexible,
		now:        now,
		logger:     defaultLogger(deps.Logger),
	}
}

// CurrentStatus derives the status of userID at the current instant.
func (s *StatusService) CurrentStatus(ctx context.Context, userID string) (StatusView, error) {
	if s == nil {
		return StatusView{}, fmt.Errorf("StatusService is nil")
	}
	logger := serviceLogger(ctx, s.logger, "status", "current", "user_id", userID)

	user, err := s.users.GetUser(ctx, userID)
	if err != nil {
		err = mapUserRepoError(err)
		if !errors.Is(err, ErrNotFound) {
			logger.ErrorContext(ctx, "failed to load user", "error", err, "error_kind", ErrorKind(err))
		}
		return StatusView{}, err
	}

	view, err := s.derive(ctx, logger, user.ID, s.now().In(s.location))
	if err != nil {
		logger.ErrorContext(ctx, "failed to derive status", "error", err, "error_kind", ErrorKind(err))
		return StatusView{}, err
	}
	return view, nil
}

// RefreshSnapshots derives and stores the status of every active user. Users
// whose derivation fails are logged and left out. It returns the number of
// stored snapshots.
func (s *StatusService) RefreshSnapshots(ctx context.Context) (int, error) {
	if s == nil {
		return 0, fmt.Errorf("StatusService is nil")
	}
	if s.snapshots == nil {
		return 0, fmt.Errorf("snapshot store not configured")
	}
	logger := serviceLogger(ctx, s.logger, "status", "refresh_snapshots")

	users, err := s.users.ListUsers(ctx)
	if err != nil {
		logger.ErrorContext(ctx, "failed to list users", "error", err, "error_kind", ErrorKind(err))
		return 0, err
	}

	now := s.now().In(s.location)
	snapshots := make([]StatusSnapshot, 0, len(users))
	for _, user := range users {
		if !user.Active {
			continue
		}
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		view, err := s.derive(ctx, logger, user.ID, now)
		if err != nil {
			logger.WarnContext(ctx, "skipping user snapshot", "user_id", user.ID, "error", err)
			continue
		}
		snapshots = append(snapshots, view)
	}

	if err := s.snapshots.ReplaceSnapshots(ctx, snapshots); err != nil {
		logger.ErrorContext(ctx, "failed to store snapshots", "error", err, "error_kind", ErrorKind(err))
		return 0, err
	}
	logger.InfoContext(ctx, "status snapshots refreshed", "count", len(snapshots))
	return len(snapshots), nil
}

// ListSnapshots returns the last stored snapshots.
func (s *StatusService) ListSnapshots(ctx context.Context) ([]StatusSnapshot, error) {
	if s == nil {
		return nil, fmt.Errorf("StatusService is nil")
	}
	if s.snapshots == nil {
		return nil, nil
	}
	return s.snapshots.ListSnapshots(ctx)
}

func (s *StatusService) derive(ctx context.Context, logger *slog.Logger, userID string, now time.Time) (StatusView, error) {
	in := status.Input{Now: now}
	_, in.Flexible = s.flexible[userID]

	holidayName, holiday, err := s.calendar.HolidayOn(ctx, now)
	if err != nil {
		return StatusView{}, fmt.Errorf("holiday lookup: %w", err)
	}
	in.Holiday = holiday

	if in.OnVacation, err = s.calendar.OnVacation(ctx, userID, now); err != nil {
		return StatusView{}, fmt.Errorf("vacation lookup: %w", err)
	}

	schedule, err := s.daySchedule(ctx, userID, now)
	if err != nil {
		return StatusView{}, err
	}
	in.Schedule = schedule

	modes, err := s.calendar.RemoteModesOn(ctx, userID, now)
	if err != nil {
		return StatusView{}, fmt.Errorf("remote authorization lookup: %w", err)
	}
	in.Remote = mergeRemoteModes(modes)

	board, stale := s.boardEntries(ctx, logger, userID)
	in.Board = board

	result := status.Derive(in)
	view := StatusView{
		UserID:      userID,
		Status:      result.Status,
		Progress:    result.Progress,
		Source:      result.Source,
		Reason:      result.Reason,
		WindowStart: optionalTime(result.WindowStart),
		WindowEnd:   optionalTime(result.WindowEnd),
		ComputedAt:  now,
		BoardStale:  stale,
	}
	if result.Source == status.SourceCalendar && holiday && holidayName != "" {
		view.Reason = holidayName
	}
	return view, nil
}

// daySchedule resolves the working day: a schedule exception for the day wins
// over the weekly schedule and may mark the day off.
func (s *StatusService) daySchedule(ctx context.Context, userID string, day time.Time) (*status.DaySchedule, error) {
	exception, err := s.calendar.ExceptionOn(ctx, userID, day)
	switch {
	case err == nil:
		if exception.DayOff {
			return nil, nil
		}
		ds := exception.Schedule
		return &ds, nil
	case !errors.Is(err, ErrNotFound):
		return nil, fmt.Errorf("schedule exception lookup: %w", err)
	}

	week, err := s.calendar.WeekSchedule(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("schedule lookup: %w", err)
	}
	ds, ok := week.For(day)
	if !ok {
		return nil, nil
	}
	return &ds, nil
}

// boardEntries prefers the live board and refreshes the cache with it. When
// the feed fails the cached board is used and reported as stale.
func (s *StatusService) boardEntries(ctx context.Context, logger *slog.Logger, userID string) ([]status.BoardEntry, bool) {
	if s.board != nil {
		entries, err := s.board.StatusBoard(ctx, userID)
		if err == nil {
			if s.boardCache != nil {
				if err := s.boardCache.ReplaceBoard(ctx, userID, entries); err != nil {
					logger.WarnContext(ctx, "failed to cache status board", "error", err)
				}
			}
			return entries, false
		}
		logger.WarnContext(ctx, "status board unavailable, using cached entries", "error", err)
	}

	if s.boardCache == nil {
		return nil, s.board != nil
	}
	cached, err := s.boardCache.CachedBoard(ctx, userID)
	if err != nil {
		logger.WarnContext(ctx, "failed to read cached status board", "error", err)
		return nil, true
	}
	return cached, s.board != nil
}

// mergeRemoteModes folds several authorizations covering the same day. AM and
// PM together amount to a full remote day.
func mergeRemoteModes(modes []status.RemoteMode) status.RemoteMode {
	var am, pm bool
	for _, mode := range modes {
		switch mode {
		case status.RemoteFullDay:
			return status.RemoteFullDay
		case status.RemoteAM:
			am = true
		case status.RemotePM:
			pm = true
		}
	}
	switch {
	case am && pm:
		return status.RemoteFullDay
	case am:
		return status.RemoteAM
	case pm:
		return status.RemotePM
	default:
		return status.RemoteNone
	}
}

func optionalTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
