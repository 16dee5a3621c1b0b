package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"
)

const healthTimeout = 2 * time.Second

// PingFunc reports whether a dependency is reachable.
type PingFunc func(ctx context.Context) error

type HealthHandler struct {
	ping      PingFunc
	responder responder
	logger    *slog.Logger
}

func NewHealthHandler(ping PingFunc, logger *slog.Logger) *HealthHandler {
	base := defaultLogger(logger)
	return &HealthHandler{ping: ping, responder: newResponder(base), logger: base}
}

// Check serves GET /health. It answers 503 when the database does not respond.
func (h *HealthHandler) Check(w http.ResponseWriter, r *http.Request) {
	if h == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	resp := healthResponse{Status: "ok", Database: "ok"}
	if h.ping != nil {
		ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
		defer cancel()
		if err := h.ping(ctx); err != nil {
			handlerLogger(r.Context(), h.logger, "HealthHandler", "Check").WarnContext(r.Context(), "database ping failed", "error", err)
			resp = healthResponse{Status: "degraded", Database: "unavailable"}
			h.responder.writeJSON(r.Context(), w, http.StatusServiceUnavailable, resp)
			return
		}
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, resp)
}

type healthResponse struct {
	Status   string `json:"status"`
	Database string `json:"database"`
}
