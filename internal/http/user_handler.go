package http

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi"

	"github.com/example/staffboard/internal/application"
)

type userService interface {
	ListUsers(ctx context.Context, filter application.UserFilter) ([]application.User, error)
	GetUser(ctx context.Context, id string) (application.User, error)
	GetUserImage(ctx context.Context, id string) (application.UserImage, error)
}

type UserHandler struct {
	service   userService
	responder responder
	logger    *slog.Logger
}

func NewUserHandler(service userService, logger *slog.Logger) *UserHandler {
	base := defaultLogger(logger)
	return &UserHandler{service: service, responder: newResponder(base), logger: base}
}

func (h *UserHandler) log(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	if h == nil {
		return slog.Default()
	}
	return handlerLogger(ctx, h.logger, "UserHandler", operation, attrs...)
}

// List serves GET /users?department=&include_inactive=.
func (h *UserHandler) List(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	filter := application.UserFilter{DepartmentID: r.URL.Query().Get("department")}
	if raw := r.URL.Query().Get("include_inactive"); raw != "" {
		include, err := strconv.ParseBool(raw)
		if err != nil {
			vErr := &application.ValidationError{FieldErrors: map[string]string{"include_inactive": "must be a boolean"}}
			h.responder.handleServiceError(r.Context(), w, vErr)
			return
		}
		filter.IncludeInactive = include
	}

	users, err := h.service.ListUsers(r.Context(), filter)
	if err != nil {
		h.log(r.Context(), "List").ErrorContext(r.Context(), "user listing failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	resp := userListResponse{Users: make([]userDTO, 0, len(users))}
	for _, user := range users {
		resp.Users = append(resp.Users, toUserDTO(user))
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, resp)
}

// Get serves GET /users/{id}.
func (h *UserHandler) Get(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	userID := chi.URLParam(r, "id")
	user, err := h.service.GetUser(r.Context(), userID)
	if err != nil {
		h.log(r.Context(), "Get", "user_id", userID).WarnContext(r.Context(), "user lookup failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, userResponse{User: toUserDTO(user)})
}

// Image serves GET /users/{id}/image with the cached picture bytes.
func (h *UserHandler) Image(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	userID := chi.URLParam(r, "id")
	image, err := h.service.GetUserImage(r.Context(), userID)
	if err != nil {
		h.log(r.Context(), "Image", "user_id", userID).WarnContext(r.Context(), "image lookup failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	contentType := strings.TrimSpace(image.ContentType)
	if contentType == "" {
		contentType = http.DetectContentType(image.Data)
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(image.Data)))
	w.Header().Set("Cache-Control", "private, max-age=3600")
	if !image.FetchedAt.IsZero() {
		w.Header().Set("Last-Modified", image.FetchedAt.UTC().Format(http.TimeFormat))
	}
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(image.Data); err != nil {
		h.log(r.Context(), "Image", "user_id", userID).WarnContext(r.Context(), "failed to write image", "error", err)
	}
}

type userDTO struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email,omitempty"`
	DepartmentID string    `json:"department_id"`
	Position     string    `json:"position,omitempty"`
	HasImage     bool      `json:"has_image"`
	Active       bool      `json:"active"`
	UpdatedAt    time.Time `json:"updated_at"`
}

type userResponse struct {
	User userDTO `json:"user"`
}

type userListResponse struct {
	Users []userDTO `json:"users"`
}

func toUserDTO(user application.User) userDTO {
	return userDTO{
		ID:           user.ID,
		Name:         user.Name,
		Email:        user.Email,
		DepartmentID: user.DepartmentID,
		Position:     user.Position,
		HasImage:     user.HasImage,
		Active:       user.Active,
		UpdatedAt:    user.UpdatedAt,
	}
}
