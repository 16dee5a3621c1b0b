package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/example/staffboard/internal/persistence"
)

// UserRepository captures the cached directory reads needed by the user service.
type UserRepository interface {
	UserDirectory
	GetUserImage(ctx context.Context, userID string) (UserImage, error)
}

// UserFilter narrows ListUsers.
type UserFilter struct {
	DepartmentID    string
	IncludeInactive bool
}

// UserService serves the mirrored employee directory.
type UserService struct {
	users  UserRepository
	logger *slog.Logger
}

// NewUserService wires dependencies for the user service.
func NewUserService(users UserRepository, logger *slog.Logger) *UserService {
	return &UserService{users: users, logger: defaultLogger(logger)}
}

// ListUsers returns cached users ordered by name then id. Inactive users are
// left out unless the filter asks for them.
func (s *UserService) ListUsers(ctx context.Context, filter UserFilter) ([]User, error) {
	if s == nil {
		return nil, fmt.Errorf("UserService is nil")
	}
	if s.users == nil {
		return nil, fmt.Errorf("user repository not configured")
	}

	users, err := s.users.ListUsers(ctx)
	if err != nil {
		serviceLogger(ctx, s.logger, "UserService", "ListUsers").ErrorContext(ctx, "failed to list users", "error", err, "error_kind", ErrorKind(err))
		return nil, mapUserRepoError(err)
	}

	department := strings.TrimSpace(filter.DepartmentID)
	out := make([]User, 0, len(users))
	for _, user := range users {
		if !user.Active && !filter.IncludeInactive {
			continue
		}
		if department != "" && user.DepartmentID != department {
			continue
		}
		out = append(out, user)
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Name == out[j].Name {
			return out[i].ID < out[j].ID
		}
		return out[i].Name < out[j].Name
	})
	return out, nil
}

// GetUser returns a single cached user.
func (s *UserService) GetUser(ctx context.Context, id string) (User, error) {
	if s == nil {
		return User{}, fmt.Errorf("UserService is nil")
	}
	if s.users == nil {
		return User{}, fmt.Errorf("user repository not configured")
	}
	if strings.TrimSpace(id) == "" {
		return User{}, ErrNotFound
	}

	user, err := s.users.GetUser(ctx, id)
	if err != nil {
		return User{}, mapUserRepoError(err)
	}
	return user, nil
}

// GetUserImage returns the cached profile picture of a user.
func (s *UserService) GetUserImage(ctx context.Context, id string) (UserImage, error) {
	if s == nil {
		return UserImage{}, fmt.Errorf("UserService is nil")
	}
	if s.users == nil {
		return UserImage{}, fmt.Errorf("user repository not configured")
	}

	image, err := s.users.GetUserImage(ctx, id)
	if err != nil {
		return UserImage{}, mapUserRepoError(err)
	}
	if len(image.Data) == 0 {
		return UserImage{}, ErrNotFound
	}
	return image, nil
}

func mapUserRepoError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrNotFound) || errors.Is(err, persistence.ErrNotFound) {
		return ErrNotFound
	}
	return err
}
