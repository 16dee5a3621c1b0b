package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/example/staffboard/internal/application"
	"github.com/example/staffboard/internal/backend"
	"github.com/example/staffboard/internal/bootstrap"
	"github.com/example/staffboard/internal/config"
	httptransport "github.com/example/staffboard/internal/http"
	"github.com/example/staffboard/internal/jobs"
	"github.com/example/staffboard/internal/persistence/sqlite"
	"github.com/example/staffboard/internal/recurrence"
)

// app holds the wired services shared by every subcommand.
type app struct {
	cfg     config.Config
	logger  *slog.Logger
	storage *sqlite.Storage
	client  *backend.Client

	users    *application.UserService
	status   *application.StatusService
	events   *application.EventService
	sales    *application.SalesService
	sync     *application.SyncService
	verifier *application.APIKeyVerifier
}

// newApp opens and migrates the cache, then wires the services. The backend
// client and the sync service are only built when a base url is configured.
func newApp(ctx context.Context, cfg config.Config, logger *slog.Logger) (*app, error) {
	storage, err := sqlite.Open(cfg.Database.DSN)
	if err != nil {
		return nil, err
	}
	if err := storage.Migrate(ctx); err != nil {
		_ = storage.Close()
		return nil, err
	}

	a := &app{cfg: cfg, logger: logger, storage: storage}

	if cfg.Backend.BaseURL != "" {
		a.client, err = backend.New(backend.Config{
			BaseURL: cfg.Backend.BaseURL,
			Token:   cfg.Backend.Token,
			Timeout: cfg.Backend.Timeout,
			Retry:   backend.RetryPolicy{MaxRetries: uint64(cfg.Backend.MaxRetries)},
		}, backend.WithLogger(logger))
		if err != nil {
			_ = storage.Close()
			return nil, err
		}
	}

	directory := newUserDirectoryAdapter(storage, storage)
	a.users = application.NewUserService(directory, logger)

	deps := application.StatusServiceDeps{
		Users:      directory,
		Calendar:   newWorkCalendarAdapter(storage),
		BoardCache: boardCacheAdapter{repo: storage},
		Snapshots:  snapshotStoreAdapter{repo: storage},
		Logger:     logger,
	}
	if a.client != nil {
		deps.Board = boardFeedAdapter{client: a.client}
	}
	a.status = application.NewStatusService(deps, application.StatusServiceConfig{
		Location:      cfg.Status.Location,
		FlexibleUsers: cfg.Status.FlexibleUsers,
	})

	engine := recurrence.NewEngine(cfg.Status.Location, recurrence.WithInstanceDuration(cfg.Events.InstanceDuration))
	a.events = application.NewEventService(newEventRepositoryAdapter(storage), engine, uuid.NewString, nil, application.EventServiceConfig{
		CacheSize: cfg.Events.CacheSize,
		CacheTTL:  cfg.Events.CacheTTL,
	}, logger)

	a.sales = application.NewSalesService(newSalesRepositoryAdapter(storage), uuid.NewString, nil, application.SalesServiceConfig{
		Rates:         cfg.Sales.Rates,
		BusinessStart: cfg.Sales.BusinessStart,
		Branches:      cfg.Sales.Branches,
		Location:      cfg.Status.Location,
		ForecastDays:  cfg.Sales.ForecastDays,
		CacheTTL:      cfg.Sales.CacheTTL,
	}, logger)

	if a.client != nil {
		pipeline, err := bootstrap.New(a.client, storage, bootstrap.Config{
			StageAttempts: cfg.Sync.StageAttempts,
			StageDelay:    cfg.Sync.StageDelay,
		}, bootstrap.WithLogger(logger))
		if err != nil {
			_ = storage.Close()
			return nil, err
		}
		a.sync = application.NewSyncService(syncRunnerAdapter{pipeline: pipeline}, syncHistoryAdapter{repo: storage}, a.status, logger)
	}

	if cfg.Security.APIKeyHash != "" {
		a.verifier, err = application.NewAPIKeyVerifier(cfg.Security.APIKeyHash, 0)
		if err != nil {
			_ = storage.Close()
			return nil, fmt.Errorf("security.api_key_hash: %w", err)
		}
	}

	return a, nil
}

func (a *app) Close() error {
	if a == nil {
		return nil
	}
	return a.storage.Close()
}

// handler builds the routed HTTP API.
func (a *app) handler() http.Handler {
	cfg := httptransport.RouterConfig{
		Health: httptransport.NewHealthHandler(a.storage.Ping, a.logger),
		Users:  httptransport.NewUserHandler(a.users, a.logger),
		Status: httptransport.NewStatusHandler(a.status, a.logger),
		Events: httptransport.NewEventHandler(a.events, a.cfg.Status.Location, nil, a.logger),
		Sales:  httptransport.NewSalesHandler(a.sales, a.cfg.Status.Location, a.logger),
		Logger: a.logger,
	}
	if a.sync != nil {
		cfg.Sync = httptransport.NewSyncHandler(a.sync, a.logger)
	}
	if a.verifier != nil {
		cfg.Keys = a.verifier
	}
	return httptransport.NewRouter(cfg)
}

// scheduler registers the nightly sync and the snapshot refresh.
func (a *app) scheduler() (*jobs.Scheduler, error) {
	s := jobs.New(a.cfg.Status.Location, a.logger)

	if a.sync != nil {
		err := s.Add(jobs.Job{Name: "sync", Spec: a.cfg.Sync.Cron, Task: func(ctx context.Context) error {
			_, err := a.sync.Run(ctx)
			if errors.Is(err, application.ErrSyncInProgress) {
				return nil
			}
			return err
		}})
		if err != nil {
			return nil, err
		}
	}

	err := s.Add(jobs.Job{Name: "status-refresh", Spec: a.cfg.Status.RefreshCron, Task: func(ctx context.Context) error {
		_, err := a.status.RefreshSnapshots(ctx)
		return err
	}})
	if err != nil {
		return nil, err
	}
	return s, nil
}
