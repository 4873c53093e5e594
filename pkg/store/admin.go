package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/droverhq/drover/pkg/models"
)

// InsertIgnoredUser adds userID to the ignore list, recording the slash
// command that requested it. Re-ignoring an already ignored user is a no-op.
func (s *Store) InsertIgnoredUser(ctx context.Context, userID string, command models.SlackCommand) error {
	raw, err := json.Marshal(command)
	if err != nil {
		return fmt.Errorf("encoding command: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO ignored_user (user_id, command)
		VALUES ($1, $2::jsonb)
		ON CONFLICT (user_id) DO NOTHING`, userID, raw)
	if err != nil {
		return fmt.Errorf("ignoring user %s: %w", userID, err)
	}
	return nil
}

// DeleteIgnoredUser removes userID from the ignore list.
func (s *Store) DeleteIgnoredUser(ctx context.Context, userID string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM ignored_user WHERE user_id = $1`, userID)
	if err != nil {
		return fmt.Errorf("unignoring user %s: %w", userID, err)
	}
	return nil
}

// ListIgnoredUsers returns the ignore list ordered by when each user was
// added.
func (s *Store) ListIgnoredUsers(ctx context.Context) ([]models.IgnoredUser, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT user_id, event_ts FROM ignored_user ORDER BY event_ts`)
	if err != nil {
		return nil, fmt.Errorf("listing ignored users: %w", err)
	}
	defer rows.Close()

	var users []models.IgnoredUser
	for rows.Next() {
		var u models.IgnoredUser
		if err := rows.Scan(&u.UserID, &u.EventTS); err != nil {
			return nil, fmt.Errorf("scanning ignored user: %w", err)
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// IsIgnoredUser reports whether userID is on the ignore list.
func (s *Store) IsIgnoredUser(ctx context.Context, userID string) (bool, error) {
	var ignored bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM ignored_user WHERE user_id = $1)`, userID).Scan(&ignored)
	if err != nil {
		return false, fmt.Errorf("checking ignore list for %s: %w", userID, err)
	}
	return ignored, nil
}

// IsAdmin reports whether userID may use slash commands. An empty admin
// table means nobody is.
func (s *Store) IsAdmin(ctx context.Context, userID string) (bool, error) {
	var admin bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM admin_user WHERE user_id = $1)`, userID).Scan(&admin)
	if err != nil {
		return false, fmt.Errorf("checking admin for %s: %w", userID, err)
	}
	return admin, nil
}
