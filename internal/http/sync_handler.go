package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/example/staffboard/internal/application"
)

type syncService interface {
	Run(ctx context.Context) (application.SyncReport, error)
	Latest(ctx context.Context) (application.SyncReport, error)
}

type SyncHandler struct {
	service   syncService
	responder responder
	logger    *slog.Logger
}

func NewSyncHandler(service syncService, logger *slog.Logger) *SyncHandler {
	base := defaultLogger(logger)
	return &SyncHandler{service: service, responder: newResponder(base), logger: base}
}

func (h *SyncHandler) log(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	if h == nil {
		return slog.Default()
	}
	return handlerLogger(ctx, h.logger, "SyncHandler", operation, attrs...)
}

// Run serves POST /sync. The pipeline keeps running if the client goes away.
func (h *SyncHandler) Run(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	report, err := h.service.Run(context.WithoutCancel(r.Context()))
	if err != nil {
		h.log(r.Context(), "Run").ErrorContext(r.Context(), "sync run failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, syncResponse{Report: toSyncReportDTO(report)})
}

// Latest serves GET /sync/latest.
func (h *SyncHandler) Latest(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	report, err := h.service.Latest(r.Context())
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, syncResponse{Report: toSyncReportDTO(report)})
}

type syncStageDTO struct {
	Name       string `json:"name"`
	Status     string `json:"status"`
	Attempts   int    `json:"attempts"`
	Records    int    `json:"records"`
	Failures   int    `json:"failures"`
	Error      string `json:"error,omitempty"`
	DurationMS int64  `json:"duration_ms"`
}

type syncReportDTO struct {
	RunID      string         `json:"run_id"`
	StartedAt  string         `json:"started_at"`
	FinishedAt string         `json:"finished_at"`
	Skipped    []string       `json:"skipped,omitempty"`
	Stages     []syncStageDTO `json:"stages"`
}

type syncResponse struct {
	Report syncReportDTO `json:"report"`
}

func toSyncReportDTO(report application.SyncReport) syncReportDTO {
	dto := syncReportDTO{
		RunID:      report.RunID,
		StartedAt:  report.StartedAt.UTC().Format(time.RFC3339Nano),
		FinishedAt: report.FinishedAt.UTC().Format(time.RFC3339Nano),
		Skipped:    report.Skipped(),
		Stages:     make([]syncStageDTO, 0, len(report.Stages)),
	}
	for _, stage := range report.Stages {
		dto.Stages = append(dto.Stages, syncStageDTO{
			Name:       stage.Name,
			Status:     stage.Status,
			Attempts:   stage.Attempts,
			Records:    stage.Records,
			Failures:   stage.Failures,
			Error:      stage.Error,
			DurationMS: stage.Duration.Milliseconds(),
		})
	}
	return dto
}
