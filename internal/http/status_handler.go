package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi"

	"github.com/example/staffboard/internal/application"
)

type statusService interface {
	CurrentStatus(ctx context.Context, userID string) (application.StatusView, error)
	ListSnapshots(ctx context.Context) ([]application.StatusSnapshot, error)
}

type StatusHandler struct {
	service   statusService
	responder responder
	logger    *slog.Logger
}

func NewStatusHandler(service statusService, logger *slog.Logger) *StatusHandler {
	base := defaultLogger(logger)
	return &StatusHandler{service: service, responder: newResponder(base), logger: base}
}

func (h *StatusHandler) log(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	if h == nil {
		return slog.Default()
	}
	return handlerLogger(ctx, h.logger, "StatusHandler", operation, attrs...)
}

// Current serves GET /users/{id}/status, derived at request time.
func (h *StatusHandler) Current(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	userID := chi.URLParam(r, "id")
	view, err := h.service.CurrentStatus(r.Context(), userID)
	if err != nil {
		h.log(r.Context(), "Current", "user_id", userID).WarnContext(r.Context(), "status derivation failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	if view.BoardStale {
		w.Header().Set("Warning", `110 - "status board served from cache"`)
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, statusResponse{Status: toStatusDTO(view)})
}

// Snapshots serves GET /statuses with the last stored snapshots.
func (h *StatusHandler) Snapshots(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	snapshots, err := h.service.ListSnapshots(r.Context())
	if err != nil {
		h.log(r.Context(), "Snapshots").ErrorContext(r.Context(), "snapshot listing failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	resp := statusListResponse{Statuses: make([]statusDTO, 0, len(snapshots))}
	for _, snapshot := range snapshots {
		resp.Statuses = append(resp.Statuses, toStatusDTO(snapshot))
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, resp)
}

type statusDTO struct {
	UserID      string     `json:"user_id"`
	Status      string     `json:"status"`
	Progress    int        `json:"progress"`
	Source      string     `json:"source"`
	Reason      string     `json:"reason,omitempty"`
	WindowStart *time.Time `json:"window_start,omitempty"`
	WindowEnd   *time.Time `json:"window_end,omitempty"`
	ComputedAt  time.Time  `json:"computed_at"`
	BoardStale  bool       `json:"board_stale,omitempty"`
}

type statusResponse struct {
	Status statusDTO `json:"status"`
}

type statusListResponse struct {
	Statuses []statusDTO `json:"statuses"`
}

func toStatusDTO(view application.StatusView) statusDTO {
	return statusDTO{
		UserID:      view.UserID,
		Status:      string(view.Status),
		Progress:    view.Progress,
		Source:      string(view.Source),
		Reason:      view.Reason,
		WindowStart: view.WindowStart,
		WindowEnd:   view.WindowEnd,
		ComputedAt:  view.ComputedAt,
		BoardStale:  view.BoardStale,
	}
}
