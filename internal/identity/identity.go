// Package identity resolves user accounts for other subsystems.
package identity

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrUserNotFound is returned when no account matches the given id.
var ErrUserNotFound = errors.New("user not found")

// Service looks up accounts from the users table.
type Service struct {
	db *pgxpool.Pool
}

// NewService creates an identity service.
func NewService(db *pgxpool.Pool) *Service {
	return &Service{db: db}
}

// ResolveUser returns the email address and display name for a user id.
func (s *Service) ResolveUser(ctx context.Context, userID string) (string, string, error) {
	var email, name string
	err := s.db.QueryRow(ctx, `
		SELECT email, display_name FROM users WHERE id = $1
	`, userID).Scan(&email, &name)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", "", ErrUserNotFound
		}
		return "", "", fmt.Errorf("resolve user: %w", err)
	}
	return email, name, nil
}
