package http

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi"

	"github.com/example/staffboard/internal/application"
	"github.com/example/staffboard/internal/timeline"
)

type eventService interface {
	CreateEvent(ctx context.Context, input application.EventInput) (application.Event, []application.ConflictWarning, error)
	UpdateEvent(ctx context.Context, id string, input application.EventInput) (application.Event, []application.ConflictWarning, error)
	GetEvent(ctx context.Context, id string) (application.Event, error)
	ListEvents(ctx context.Context, filter application.EventRepositoryFilter) ([]application.Event, error)
	DeleteEvent(ctx context.Context, id string) error
	Occurrences(ctx context.Context, query application.RangeQuery) ([]application.Occurrence, error)
	Timeline(ctx context.Context, query application.TimelineQuery) ([]timeline.Block, error)
	CalendarFeed(ctx context.Context, query application.RangeQuery) (string, error)
}

type EventHandler struct {
	service   eventService
	responder responder
	logger    *slog.Logger
	location  *time.Location
	now       func() time.Time
}

// NewEventHandler builds the event handler. Bare dates in queries are read in loc.
func NewEventHandler(service eventService, loc *time.Location, now func() time.Time, logger *slog.Logger) *EventHandler {
	base := defaultLogger(logger)
	if loc == nil {
		loc = time.Local
	}
	if now == nil {
		now = time.Now
	}
	return &EventHandler{service: service, responder: newResponder(base), logger: base, location: loc, now: now}
}

func (h *EventHandler) log(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	if h == nil {
		return slog.Default()
	}
	return handlerLogger(ctx, h.logger, "EventHandler", operation, attrs...)
}

func (h *EventHandler) ready(w http.ResponseWriter) bool {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return false
	}
	return true
}

// Create serves POST /events.
func (h *EventHandler) Create(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}

	var req eventRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.log(r.Context(), "Create", "error_kind", "bad_request").WarnContext(r.Context(), "failed to decode event request", "error", err)
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	event, warnings, err := h.service.CreateEvent(r.Context(), req.toInput())
	if err != nil {
		h.log(r.Context(), "Create").ErrorContext(r.Context(), "event creation failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	w.Header().Set("Location", "/events/"+event.ID)
	h.responder.writeJSON(r.Context(), w, http.StatusCreated, eventResponse{Event: toEventDTO(event), Warnings: toWarningDTOs(warnings)})
}

// Update serves PUT /events/{id}.
func (h *EventHandler) Update(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}

	eventID := chi.URLParam(r, "id")
	var req eventRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.log(r.Context(), "Update", "event_id", eventID, "error_kind", "bad_request").WarnContext(r.Context(), "failed to decode event update", "error", err)
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	event, warnings, err := h.service.UpdateEvent(r.Context(), eventID, req.toInput())
	if err != nil {
		h.log(r.Context(), "Update", "event_id", eventID).ErrorContext(r.Context(), "event update failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, eventResponse{Event: toEventDTO(event), Warnings: toWarningDTOs(warnings)})
}

// Get serves GET /events/{id}.
func (h *EventHandler) Get(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}

	eventID := chi.URLParam(r, "id")
	event, err := h.service.GetEvent(r.Context(), eventID)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, eventResponse{Event: toEventDTO(event)})
}

// Delete serves DELETE /events/{id}.
func (h *EventHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}

	eventID := chi.URLParam(r, "id")
	if err := h.service.DeleteEvent(r.Context(), eventID); err != nil {
		h.log(r.Context(), "Delete", "event_id", eventID).ErrorContext(r.Context(), "event deletion failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusNoContent, nil)
}

// List serves GET /events?from&to&department. Bounds are optional.
func (h *EventHandler) List(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}

	q := r.URL.Query()
	filter := application.EventRepositoryFilter{DepartmentID: strings.TrimSpace(q.Get("department"))}
	vErr := &application.ValidationError{FieldErrors: map[string]string{}}
	for _, bound := range []struct {
		name string
		dst  **time.Time
	}{{"from", &filter.From}, {"to", &filter.To}} {
		raw := q.Get(bound.name)
		if raw == "" {
			continue
		}
		t, err := parseInstant(raw, h.location)
		if err != nil {
			vErr.FieldErrors[bound.name] = err.Error()
			continue
		}
		*bound.dst = &t
	}
	if vErr.HasErrors() {
		h.responder.handleServiceError(r.Context(), w, vErr)
		return
	}

	events, err := h.service.ListEvents(r.Context(), filter)
	if err != nil {
		h.log(r.Context(), "List").ErrorContext(r.Context(), "event listing failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	resp := eventListResponse{Events: make([]eventDTO, 0, len(events))}
	for _, event := range events {
		resp.Events = append(resp.Events, toEventDTO(event))
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, resp)
}

// Occurrences serves GET /occurrences with expanded instances.
func (h *EventHandler) Occurrences(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}

	query, err := rangeFromQuery(r, h.now(), h.location)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	occurrences, err := h.service.Occurrences(r.Context(), query)
	if err != nil {
		h.log(r.Context(), "Occurrences").ErrorContext(r.Context(), "occurrence expansion failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	resp := occurrenceListResponse{
		From:        query.From.UTC().Format(time.RFC3339Nano),
		To:          query.To.UTC().Format(time.RFC3339Nano),
		Occurrences: make([]occurrenceDTO, 0, len(occurrences)),
	}
	for _, occ := range occurrences {
		resp.Occurrences = append(resp.Occurrences, toOccurrenceDTO(occ))
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, resp)
}

// Feed serves GET /occurrences.ics.
func (h *EventHandler) Feed(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}

	query, err := rangeFromQuery(r, h.now(), h.location)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	feed, err := h.service.CalendarFeed(r.Context(), query)
	if err != nil {
		h.log(r.Context(), "Feed").ErrorContext(r.Context(), "calendar export failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Header().Set("Content-Disposition", `inline; filename="occurrences.ics"`)
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte(feed)); err != nil {
		h.log(r.Context(), "Feed").WarnContext(r.Context(), "failed to write calendar", "error", err)
	}
}

// Timeline serves GET /timeline?from&to&zoom&department.
func (h *EventHandler) Timeline(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}

	query, err := rangeFromQuery(r, h.now(), h.location)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	zoom := timeline.Zoom(r.URL.Query().Get("zoom"))

	blocks, err := h.service.Timeline(r.Context(), application.TimelineQuery{RangeQuery: query, Zoom: zoom})
	if err != nil {
		h.log(r.Context(), "Timeline").ErrorContext(r.Context(), "timeline build failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	parsedZoom, _ := timeline.ParseZoom(string(zoom))
	resp := timelineResponse{Zoom: string(parsedZoom), Blocks: make([]blockDTO, 0, len(blocks))}
	for _, block := range blocks {
		resp.Blocks = append(resp.Blocks, blockDTO{
			DepartmentID:  block.DepartmentID,
			Start:         block.Start.UTC().Format(time.RFC3339Nano),
			End:           block.End.UTC().Format(time.RFC3339Nano),
			Titles:        append([]string(nil), block.Titles...),
			OccurrenceIDs: append([]string(nil), block.ItemIDs...),
			Merged:        block.Merged(),
		})
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, resp)
}

type eventRequest struct {
	Title        string    `json:"title"`
	Description  string    `json:"description"`
	DepartmentID string    `json:"department_id"`
	Start        time.Time `json:"start"`
	End          time.Time `json:"end"`
	Pattern      string    `json:"pattern"`
}

func (r eventRequest) toInput() application.EventInput {
	return application.EventInput{
		Title:        r.Title,
		Description:  r.Description,
		DepartmentID: r.DepartmentID,
		Start:        r.Start,
		End:          r.End,
		Pattern:      r.Pattern,
	}
}

type eventDTO struct {
	ID           string `json:"id"`
	Title        string `json:"title"`
	Description  string `json:"description,omitempty"`
	DepartmentID string `json:"department_id"`
	Start        string `json:"start"`
	End          string `json:"end"`
	Pattern      string `json:"pattern,omitempty"`
	Recurring    bool   `json:"recurring"`
	CreatedAt    string `json:"created_at"`
	UpdatedAt    string `json:"updated_at"`
}

func toEventDTO(event application.Event) eventDTO {
	return eventDTO{
		ID:           event.ID,
		Title:        event.Title,
		Description:  event.Description,
		DepartmentID: event.DepartmentID,
		Start:        event.Start.UTC().Format(time.RFC3339Nano),
		End:          event.End.UTC().Format(time.RFC3339Nano),
		Pattern:      event.Pattern,
		Recurring:    event.Recurring(),
		CreatedAt:    event.CreatedAt.UTC().Format(time.RFC3339Nano),
		UpdatedAt:    event.UpdatedAt.UTC().Format(time.RFC3339Nano),
	}
}

type conflictWarningDTO struct {
	EventID      string `json:"event_id"`
	DepartmentID string `json:"department_id"`
	Start        string `json:"start"`
	End          string `json:"end"`
}

func toWarningDTOs(warnings []application.ConflictWarning) []conflictWarningDTO {
	if len(warnings) == 0 {
		return nil
	}

	out := make([]conflictWarningDTO, 0, len(warnings))
	for _, warning := range warnings {
		out = append(out, conflictWarningDTO{
			EventID:      warning.EventID,
			DepartmentID: warning.DepartmentID,
			Start:        warning.Start.UTC().Format(time.RFC3339Nano),
			End:          warning.End.UTC().Format(time.RFC3339Nano),
		})
	}
	return out
}

type eventResponse struct {
	Event    eventDTO             `json:"event"`
	Warnings []conflictWarningDTO `json:"warnings,omitempty"`
}

type eventListResponse struct {
	Events []eventDTO `json:"events"`
}

type occurrenceDTO struct {
	ID           string `json:"id"`
	EventID      string `json:"event_id"`
	Title        string `json:"title"`
	DepartmentID string `json:"department_id"`
	Start        string `json:"start"`
	End          string `json:"end"`
	Recurring    bool   `json:"recurring"`
}

func toOccurrenceDTO(occ application.Occurrence) occurrenceDTO {
	return occurrenceDTO{
		ID:           occ.ID,
		EventID:      occ.EventID,
		Title:        occ.Title,
		DepartmentID: occ.DepartmentID,
		Start:        occ.Start.UTC().Format(time.RFC3339Nano),
		End:          occ.End.UTC().Format(time.RFC3339Nano),
		Recurring:    occ.Recurring,
	}
}

type occurrenceListResponse struct {
	From        string          `json:"from"`
	To          string          `json:"to"`
	Occurrences []occurrenceDTO `json:"occurrences"`
}

type blockDTO struct {
	DepartmentID  string   `json:"department_id"`
	Start         string   `json:"start"`
	End           string   `json:"end"`
	Titles        []string `json:"titles"`
	OccurrenceIDs []string `json:"occurrence_ids"`
	Merged        bool     `json:"merged"`
}

type timelineResponse struct {
	Zoom   string     `json:"zoom"`
	Blocks []blockDTO `json:"blocks"`
}
