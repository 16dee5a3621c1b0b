package testfixtures

import (
	"log/slog"
	"time"

	"github.com/example/staffboard/internal/application"
	"github.com/example/staffboard/internal/recurrence"
)

// ServiceFactory builds application services with deterministic ids and clocks.
type ServiceFactory struct {
	Clock       *Clock
	IDGenerator *IDGenerator
	Location    *time.Location
	Logger      *slog.Logger
}

type ServiceFactoryOption func(*ServiceFactory)

func NewServiceFactory(opts ...ServiceFactoryOption) *ServiceFactory {
	factory := &ServiceFactory{
		Clock:       NewClock(time.Time{}),
		IDGenerator: NewIDGenerator("id"),
		Location:    Location,
	}
	for _, opt := range opts {
		opt(factory)
	}
	if factory.Clock == nil {
		factory.Clock = NewClock(time.Time{})
	}
	if factory.IDGenerator == nil {
		factory.IDGenerator = NewIDGenerator("id")
	}
	if factory.Location == nil {
		factory.Location = Location
	}
	return factory
}

func WithClock(clock *Clock) ServiceFactoryOption {
	return func(factory *ServiceFactory) {
		factory.Clock = clock
	}
}

func WithIDGenerator(generator *IDGenerator) ServiceFactoryOption {
	return func(factory *ServiceFactory) {
		factory.IDGenerator = generator
	}
}

func WithLogger(logger *slog.Logger) ServiceFactoryOption {
	return func(factory *ServiceFactory) {
		factory.Logger = logger
	}
}

// NewEventService builds an event service over events with a fresh
// recurrence engine in the factory location.
func (f *ServiceFactory) NewEventService(events application.EventRepository, cfg application.EventServiceConfig) *application.EventService {
	return application.NewEventService(
		events,
		recurrence.NewEngine(f.Location),
		f.IDGenerator.NextFunc(),
		f.Clock.NowFunc(),
		cfg,
		f.Logger,
	)
}

// NewSalesService builds a sales service over repo, defaulting the location
// to the factory's.
func (f *ServiceFactory) NewSalesService(repo application.SalesRepository, cfg application.SalesServiceConfig) *application.SalesService {
	if cfg.Location == nil {
		cfg.Location = f.Location
	}
	return application.NewSalesService(repo, f.IDGenerator.NextFunc(), f.Clock.NowFunc(), cfg, f.Logger)
}

func (f *ServiceFactory) NewUserService(users application.UserRepository) *application.UserService {
	return application.NewUserService(users, f.Logger)
}

// NewStatusService fills Now and Logger from the factory when deps leaves them unset.
func (f *ServiceFactory) NewStatusService(deps application.StatusServiceDeps, flexible ...string) *application.StatusService {
	if deps.Now == nil {
		deps.Now = f.Clock.NowFunc()
	}
	if deps.Logger == nil {
		deps.Logger = f.Logger
	}
	return application.NewStatusService(deps, application.StatusServiceConfig{
		Location:      f.Location,
		FlexibleUsers: flexible,
	})
}
