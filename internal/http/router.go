package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"

	"github.com/example/staffboard/internal/application"
)

type RouterConfig struct {
	Health *HealthHandler
	Users  *UserHandler
	Status *StatusHandler
	Events *EventHandler
	Sales  *SalesHandler
	Sync   *SyncHandler
	// Keys guards every route except /health. A nil verifier leaves the API open.
	Keys       KeyVerifier
	Logger     *slog.Logger
	Middleware []func(http.Handler) http.Handler
}

func NewRouter(cfg RouterConfig) http.Handler {
	logger := defaultLogger(cfg.Logger)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(RequestLogger(logger))
	r.Use(Recovery(logger))
	for _, mw := range cfg.Middleware {
		if mw != nil {
			r.Use(mw)
		}
	}

	r.NotFound(func(w http.ResponseWriter, req *http.Request) {
		newResponder(logger).handleServiceError(req.Context(), w, application.ErrNotFound)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, req *http.Request) {
		newResponder(logger).writeJSON(req.Context(), w, http.StatusMethodNotAllowed, errorResponse{
			ErrorCode: "METHOD_NOT_ALLOWED",
			Message:   http.StatusText(http.StatusMethodNotAllowed),
		})
	})

	if cfg.Health != nil {
		r.Get("/health", cfg.Health.Check)
	}

	r.Group(func(r chi.Router) {
		if cfg.Keys != nil {
			r.Use(RequireAPIKey(cfg.Keys, logger))
		}

		if cfg.Users != nil {
			r.Get("/users", cfg.Users.List)
			r.Get("/users/{id}", cfg.Users.Get)
			r.Get("/users/{id}/image", cfg.Users.Image)
		}

		if cfg.Status != nil {
			r.Get("/users/{id}/status", cfg.Status.Current)
			r.Get("/statuses", cfg.Status.Snapshots)
		}

		if cfg.Events != nil {
			r.Route("/events", func(r chi.Router) {
				r.Get("/", cfg.Events.List)
				r.Post("/", cfg.Events.Create)
				r.Get("/{id}", cfg.Events.Get)
				r.Put("/{id}", cfg.Events.Update)
				r.Delete("/{id}", cfg.Events.Delete)
			})
			r.Get("/occurrences", cfg.Events.Occurrences)
			r.Get("/occurrences.ics", cfg.Events.Feed)
			r.Get("/timeline", cfg.Events.Timeline)
		}

		if cfg.Sales != nil {
			r.Route("/sales", func(r chi.Router) {
				r.Get("/", cfg.Sales.Search)
				r.Post("/", cfg.Sales.Create)
				r.Get("/products", cfg.Sales.Products)
				r.Get("/report", cfg.Sales.Report)
			})
		}

		if cfg.Sync != nil {
			r.Post("/sync", cfg.Sync.Run)
			r.Get("/sync/latest", cfg.Sync.Latest)
		}
	})

	return r
}
