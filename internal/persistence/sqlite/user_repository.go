package sqlite

import (
	"context"
	"fmt"

	"github.com/example/staffboard/internal/persistence"
	"github.com/jmoiron/sqlx"
)

type userRow struct {
	ID           string `db:"id"`
	Name         string `db:"name"`
	Email        string `db:"email"`
	DepartmentID string `db:"department_id"`
	Position     string `db:"position"`
	ImageURL     string `db:"image_url"`
	Active       bool   `db:"active"`
	UpdatedAt    string `db:"updated_at"`
}

func toUserRow(user persistence.User) userRow {
	return userRow{
		ID:           user.ID,
		Name:         user.Name,
		Email:        user.Email,
		DepartmentID: user.DepartmentID,
		Position:     user.Position,
		ImageURL:     user.ImageURL,
		Active:       user.Active,
		UpdatedAt:    formatTime(user.UpdatedAt),
	}
}

func (r userRow) model() (persistence.User, error) {
	updated, err := parseTime(r.UpdatedAt)
	if err != nil {
		return persistence.User{}, err
	}
	return persistence.User{
		ID:           r.ID,
		Name:         r.Name,
		Email:        r.Email,
		DepartmentID: r.DepartmentID,
		Position:     r.Position,
		ImageURL:     r.ImageURL,
		Active:       r.Active,
		UpdatedAt:    updated,
	}, nil
}

const userColumns = `id, name, email, department_id, position, image_url, active, updated_at`

// ReplaceUsers swaps the cached directory for users.
func (s *Storage) ReplaceUsers(ctx context.Context, users []persistence.User) error {
	rows := make([]userRow, 0, len(users))
	for _, user := range users {
		if user.ID == "" {
			return fmt.Errorf("%w: user id is required", persistence.ErrConstraintViolation)
		}
		if user.UpdatedAt.IsZero() {
			user.UpdatedAt = s.now()
		}
		rows = append(rows, toUserRow(user))
	}

	return s.replaceAll(ctx, "users", func(tx *sqlx.Tx) error {
		return insertRows(ctx, tx, `
			INSERT INTO users (`+userColumns+`)
			VALUES (:id, :name, :email, :department_id, :position, :image_url, :active, :updated_at)`, rows)
	})
}

// GetUser retrieves a cached user by id.
func (s *Storage) GetUser(ctx context.Context, id string) (persistence.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var row userRow
	if err := s.db.GetContext(ctx, &row, `SELECT `+userColumns+` FROM users WHERE id = ?`, id); err != nil {
		return persistence.User{}, mapError(err)
	}
	return row.model()
}

// ListUsers returns every cached user ordered by name then id.
func (s *Storage) ListUsers(ctx context.Context) ([]persistence.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var rows []userRow
	if err := s.db.SelectContext(ctx, &rows, `SELECT `+userColumns+` FROM users ORDER BY name, id`); err != nil {
		return nil, mapError(err)
	}

	users := make([]persistence.User, 0, len(rows))
	for _, row := range rows {
		user, err := row.model()
		if err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	return users, nil
}

type imageRow struct {
	UserID      string `db:"user_id"`
	ContentType string `db:"content_type"`
	Data        []byte `db:"data"`
	FetchedAt   string `db:"fetched_at"`
}

// ReplaceUserImages swaps the cached profile pictures.
func (s *Storage) ReplaceUserImages(ctx context.Context, images []persistence.UserImage) error {
	rows := make([]imageRow, 0, len(images))
	for _, img := range images {
		if img.FetchedAt.IsZero() {
			img.FetchedAt = s.now()
		}
		if img.Data == nil {
			img.Data = []byte{}
		}
		rows = append(rows, imageRow{
			UserID:      img.UserID,
			ContentType: img.ContentType,
			Data:        img.Data,
			FetchedAt:   formatTime(img.FetchedAt),
		})
	}

	return s.replaceAll(ctx, "user_images", func(tx *sqlx.Tx) error {
		return insertRows(ctx, tx, `
			INSERT INTO user_images (user_id, content_type, data, fetched_at)
			VALUES (:user_id, :content_type, :data, :fetched_at)`, rows)
	})
}

// GetUserImage returns the cached picture of a user.
func (s *Storage) GetUserImage(ctx context.Context, userID string) (persistence.UserImage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var row imageRow
	err := s.db.GetContext(ctx, &row, `
		SELECT user_id, content_type, data, fetched_at
		FROM user_images WHERE user_id = ?`, userID)
	if err != nil {
		return persistence.UserImage{}, mapError(err)
	}

	fetched, err := parseTime(row.FetchedAt)
	if err != nil {
		return persistence.UserImage{}, err
	}
	return persistence.UserImage{
		UserID:      row.UserID,
		ContentType: row.ContentType,
		Data:        row.Data,
		FetchedAt:   fetched,
	}, nil
}
