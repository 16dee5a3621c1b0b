// Package bootstrap mirrors the upstream backend into the local cache through
// a fixed sequence of stages. A stage that keeps failing is skipped so later
// stages still run.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/example/staffboard/internal/backend"
	"github.com/example/staffboard/internal/logging"
	"github.com/example/staffboard/internal/persistence"
	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"
)

// Stage names in execution order.
const (
	StageUsers          = "users"
	StageImages         = "images"
	StageAuthorizations = "authorizations"
	StageVacations      = "vacations"
	StageHolidays       = "holidays"
	StageSchedules      = "schedules"
	StageExceptions     = "exceptions"
)

// Stage outcomes.
const (
	StatusOK      = "ok"
	StatusSkipped = "skipped"
)

// DefaultStageAttempts is used when Config.StageAttempts is not positive.
const DefaultStageAttempts = 3

// Source is the upstream data feed.
type Source interface {
	Users(ctx context.Context) ([]backend.User, error)
	Image(ctx context.Context, ref string) (backend.Image, error)
	Authorizations(ctx context.Context) ([]backend.Authorization, error)
	Vacations(ctx context.Context) ([]backend.Vacation, error)
	Holidays(ctx context.Context) ([]backend.Holiday, error)
	Schedules(ctx context.Context) ([]backend.Schedule, error)
	Exceptions(ctx context.Context) ([]backend.Exception, error)
}

// Store is the cache written by the pipeline.
type Store interface {
	ReplaceUsers(ctx context.Context, users []persistence.User) error
	ListUsers(ctx context.Context) ([]persistence.User, error)
	ReplaceUserImages(ctx context.Context, images []persistence.UserImage) error
	ReplaceRemoteAuthorizations(ctx context.Context, auths []persistence.RemoteAuthorization) error
	ReplaceVacations(ctx context.Context, vacations []persistence.Vacation) error
	ReplaceHolidays(ctx context.Context, holidays []persistence.Holiday) error
	ReplaceWorkSchedules(ctx context.Context, schedules []persistence.WorkSchedule) error
	ReplaceScheduleExceptions(ctx context.Context, exceptions []persistence.ScheduleException) error
	CreateSyncRun(ctx context.Context, run persistence.SyncRun) error
}

// Config tunes retry behaviour.
type Config struct {
	StageAttempts int
	StageDelay    time.Duration
}

// StageResult is the outcome of one stage.
type StageResult struct {
	Name     string        `json:"name" yaml:"name"`
	Status   string        `json:"status" yaml:"status"`
	Attempts int           `json:"attempts" yaml:"attempts"`
	Records  int           `json:"records" yaml:"records"`
	Failures int           `json:"failures,omitempty" yaml:"failures,omitempty"`
	Error    string        `json:"error,omitempty" yaml:"error,omitempty"`
	Duration time.Duration `json:"duration" yaml:"duration"`
}

// Report summarizes a pipeline run.
type Report struct {
	RunID      string        `json:"run_id" yaml:"run_id"`
	StartedAt  time.Time     `json:"started_at" yaml:"started_at"`
	FinishedAt time.Time     `json:"finished_at" yaml:"finished_at"`
	Stages     []StageResult `json:"stages" yaml:"stages"`
}

// Skipped lists the names of the stages that gave up.
func (r Report) Skipped() []string {
	var names []string
	for _, st := range r.Stages {
		if st.Status == StatusSkipped {
			names = append(names, st.Name)
		}
	}
	return names
}

// Option customizes a Pipeline.
type Option func(*Pipeline)

// WithLogger sets the fallback logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) {
		p.logger = logger
	}
}

// WithNow overrides the clock.
func WithNow(now func() time.Time) Option {
	return func(p *Pipeline) {
		if now != nil {
			p.now = now
		}
	}
}

// WithIDGenerator overrides run id generation.
func WithIDGenerator(next func() string) Option {
	return func(p *Pipeline) {
		if next != nil {
			p.newID = next
		}
	}
}

// Pipeline runs the bootstrap stages sequentially.
type Pipeline struct {
	source Source
	store  Store
	cfg    Config
	logger *slog.Logger
	now    func() time.Time
	newID  func() string
}

// New constructs a Pipeline.
func New(source Source, store Store, cfg Config, opts ...Option) (*Pipeline, error) {
	if source == nil {
		return nil, errors.New("bootstrap: source is required")
	}
	if store == nil {
		return nil, errors.New("bootstrap: store is required")
	}
	if cfg.StageAttempts <= 0 {
		cfg.StageAttempts = DefaultStageAttempts
	}
	if cfg.StageDelay < 0 {
		cfg.StageDelay = 0
	}

	p := &Pipeline{
		source: source,
		store:  store,
		cfg:    cfg,
		now:    time.Now,
		newID:  uuid.NewString,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

type stage struct {
	name string
	run  func(ctx context.Context) (records, failures int, err error)
}

func (p *Pipeline) stages() []stage {
	return []stage{
		{StageUsers, p.syncUsers},
		{StageImages, p.syncImages},
		{StageAuthorizations, p.syncAuthorizations},
		{StageVacations, p.syncVacations},
		{StageHolidays, p.syncHolidays},
		{StageSchedules, p.syncSchedules},
		{StageExceptions, p.syncExceptions},
	}
}

// Run executes every stage in order. A failing stage is retried up to
// StageAttempts times with StageDelay between attempts and then skipped.
// Cancelling ctx aborts the run; the partial report is still stored and
// returned together with the context error.
func (p *Pipeline) Run(ctx context.Context) (Report, error) {
	report := Report{RunID: p.newID(), StartedAt: p.now()}
	logger := logging.FromContextOr(ctx, p.logger).With("component", "bootstrap", "run_id", report.RunID)
	logger.InfoContext(ctx, "sync started")

	var runErr error
	for _, st := range p.stages() {
		result, err := p.runStage(ctx, logger, st)
		report.Stages = append(report.Stages, result)
		if err != nil {
			runErr = err
			break
		}
	}
	report.FinishedAt = p.now()

	if err := p.store.CreateSyncRun(context.WithoutCancel(ctx), toSyncRun(report)); err != nil {
		logger.ErrorContext(ctx, "failed to store sync report", "error", err)
		if runErr == nil {
			runErr = fmt.Errorf("bootstrap: store report: %w", err)
		}
	}

	logger.InfoContext(ctx, "sync finished",
		"duration", report.FinishedAt.Sub(report.StartedAt),
		"skipped", report.Skipped(),
	)
	return report, runErr
}

func (p *Pipeline) runStage(ctx context.Context, logger *slog.Logger, st stage) (StageResult, error) {
	result := StageResult{Name: st.name}
	stageLogger := logger.With("stage", st.name)
	started := p.now()

	delay := p.cfg.StageDelay
	if delay <= 0 {
		delay = time.Nanosecond
	}
	backoff := retry.WithMaxRetries(uint64(p.cfg.StageAttempts-1), retry.NewConstant(delay))

	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		result.Attempts++
		records, failures, err := st.run(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return err
			}
			stageLogger.WarnContext(ctx, "stage attempt failed", "attempt", result.Attempts, "error", err)
			return retry.RetryableError(err)
		}
		result.Records = records
		result.Failures = failures
		return nil
	})
	result.Duration = p.now().Sub(started)

	if ctxErr := ctx.Err(); ctxErr != nil {
		result.Status = StatusSkipped
		result.Error = ctxErr.Error()
		stageLogger.WarnContext(ctx, "sync cancelled", "error", ctxErr)
		return result, ctxErr
	}
	if err != nil {
		result.Status = StatusSkipped
		result.Error = err.Error()
		stageLogger.ErrorContext(ctx, "stage skipped", "attempts", result.Attempts, "error", err)
		return result, nil
	}

	result.Status = StatusOK
	stageLogger.InfoContext(ctx, "stage completed", "records", result.Records, "failures", result.Failures, "attempts", result.Attempts)
	return result, nil
}

func (p *Pipeline) syncUsers(ctx context.Context) (int, int, error) {
	remote, err := p.source.Users(ctx)
	if err != nil {
		return 0, 0, err
	}
	now := p.now()
	users, failures := mapAll(ctx, p.logger, remote, func(u backend.User) (persistence.User, error) {
		return mapUser(u, now)
	})
	if err := p.store.ReplaceUsers(ctx, users); err != nil {
		return 0, 0, err
	}
	return len(users), failures, nil
}

// syncImages downloads the picture of every cached user that has one. A
// failed download is counted and does not fail the stage.
func (p *Pipeline) syncImages(ctx context.Context) (int, int, error) {
	users, err := p.store.ListUsers(ctx)
	if err != nil {
		return 0, 0, err
	}

	logger := logging.FromContextOr(ctx, p.logger)
	images := make([]persistence.UserImage, 0, len(users))
	failures := 0
	for _, user := range users {
		if user.ImageURL == "" {
			continue
		}
		if err := ctx.Err(); err != nil {
			return 0, 0, err
		}
		img, err := p.source.Image(ctx, user.ImageURL)
		if err != nil {
			failures++
			logger.WarnContext(ctx, "image download failed", "user_id", user.ID, "error", err)
			continue
		}
		images = append(images, persistence.UserImage{
			UserID:      user.ID,
			ContentType: img.ContentType,
			Data:        img.Data,
			FetchedAt:   p.now(),
		})
	}

	if err := p.store.ReplaceUserImages(ctx, images); err != nil {
		return 0, 0, err
	}
	return len(images), failures, nil
}

func (p *Pipeline) syncAuthorizations(ctx context.Context) (int, int, error) {
	remote, err := p.source.Authorizations(ctx)
	if err != nil {
		return 0, 0, err
	}
	auths, failures := mapAll(ctx, p.logger, remote, mapAuthorization)
	if err := p.store.ReplaceRemoteAuthorizations(ctx, auths); err != nil {
		return 0, 0, err
	}
	return len(auths), failures, nil
}

func (p *Pipeline) syncVacations(ctx context.Context) (int, int, error) {
	remote, err := p.source.Vacations(ctx)
	if err != nil {
		return 0, 0, err
	}
	vacations, failures := mapAll(ctx, p.logger, remote, mapVacation)
	if err := p.store.ReplaceVacations(ctx, vacations); err != nil {
		return 0, 0, err
	}
	return len(vacations), failures, nil
}

func (p *Pipeline) syncHolidays(ctx context.Context) (int, int, error) {
	remote, err := p.source.Holidays(ctx)
	if err != nil {
		return 0, 0, err
	}
	holidays, failures := mapAll(ctx, p.logger, remote, mapHoliday)
	if err := p.store.ReplaceHolidays(ctx, holidays); err != nil {
		return 0, 0, err
	}
	return len(holidays), failures, nil
}

func (p *Pipeline) syncSchedules(ctx context.Context) (int, int, error) {
	remote, err := p.source.Schedules(ctx)
	if err != nil {
		return 0, 0, err
	}
	schedules, failures := mapAll(ctx, p.logger, remote, mapSchedule)
	if err := p.store.ReplaceWorkSchedules(ctx, schedules); err != nil {
		return 0, 0, err
	}
	return len(schedules), failures, nil
}

func (p *Pipeline) syncExceptions(ctx context.Context) (int, int, error) {
	remote, err := p.source.Exceptions(ctx)
	if err != nil {
		return 0, 0, err
	}
	exceptions, failures := mapAll(ctx, p.logger, remote, mapException)
	if err := p.store.ReplaceScheduleExceptions(ctx, exceptions); err != nil {
		return 0, 0, err
	}
	return len(exceptions), failures, nil
}

// mapAll converts upstream records, dropping and counting the invalid ones.
func mapAll[In, Out any](ctx context.Context, base *slog.Logger, in []In, fn func(In) (Out, error)) ([]Out, int) {
	out := make([]Out, 0, len(in))
	failures := 0
	for _, item := range in {
		mapped, err := fn(item)
		if err != nil {
			failures++
			logging.FromContextOr(ctx, base).WarnContext(ctx, "dropping invalid record", "error", err)
			continue
		}
		out = append(out, mapped)
	}
	return out, failures
}

func toSyncRun(r Report) persistence.SyncRun {
	stages := make([]persistence.SyncStage, 0, len(r.Stages))
	for _, st := range r.Stages {
		stages = append(stages, persistence.SyncStage{
			Name:     st.Name,
			Status:   st.Status,
			Attempts: st.Attempts,
			Records:  st.Records,
			Failures: st.Failures,
			Error:    st.Error,
		})
	}
	return persistence.SyncRun{
		ID:         r.RunID,
		StartedAt:  r.StartedAt,
		FinishedAt: r.FinishedAt,
		Stages:     stages,
	}
}
