package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// GetOrCreateUser looks up a user by external chat identity, creating the
// record on first contact. Existing users get their last_active_at bumped.
func (s *SQLiteStore) GetOrCreateUser(ctx context.Context, externalID string) (*User, error) {
	if externalID == "" {
		return nil, fmt.Errorf("external user id cannot be empty")
	}

	u := &User{}
	var email, displayName sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT id, external_id, display_name, email, created_at, last_active_at
		 FROM users WHERE external_id = ?`, externalID,
	).Scan(&u.ID, &u.ExternalID, &displayName, &email, &u.CreatedAt, &u.LastActiveAt)

	switch {
	case err == sql.ErrNoRows:
		now := time.Now().UTC()
		u = &User{
			ID:           uuid.NewString(),
			ExternalID:   externalID,
			CreatedAt:    now,
			LastActiveAt: now,
		}
		if _, err := s.db.ExecContext(ctx,
			`INSERT INTO users (id, external_id, created_at, last_active_at) VALUES (?, ?, ?, ?)`,
			u.ID, u.ExternalID, now, now,
		); err != nil {
			return nil, fmt.Errorf("creating user: %w", err)
		}
		return u, nil

	case err != nil:
		return nil, fmt.Errorf("looking up user %q: %w", externalID, err)
	}

	u.DisplayName = displayName.String
	u.Email = email.String

	now := time.Now().UTC()
	if _, err := s.db.ExecContext(ctx,
		`UPDATE users SET last_active_at = ? WHERE id = ?`, now, u.ID,
	); err != nil {
		return nil, fmt.Errorf("touching user %q: %w", u.ID, err)
	}
	u.LastActiveAt = now
	return u, nil
}

// SetUserEmail records the delivery address for a user.
func (s *SQLiteStore) SetUserEmail(ctx context.Context, userID, email string) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE users SET email = ? WHERE id = ?`, email, userID,
	)
	if err != nil {
		return fmt.Errorf("setting email for user %q: %w", userID, err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking email update: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("user %q not found", userID)
	}
	return nil
}
