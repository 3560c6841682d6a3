package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/nkorolev/authd/internal/apperrors"
)

// SessionRepo keeps the refresh token slot on the users table itself:
// one row per user, one token per row
type SessionRepo struct {
	DB DBTX
}

const rotateRefreshToken = `-- name: RotateRefreshToken
UPDATE users
SET refresh_token = $3
WHERE id = $1 AND refresh_token = $2
`

// Rotate compares and swaps in a single UPDATE, the database does the
// linearization. No row updated means the slot held something else (or the
// user is gone), both deny the attempt.
func (r *SessionRepo) RotateRefreshToken(ctx context.Context, userID uuid.UUID, previous string, next string) error {
	tag, err := r.DB.Exec(ctx, rotateRefreshToken, userID, previous, next)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return apperrors.ErrRotateMismatch
	}

	return nil
}

const replaceRefreshToken = `-- name: ReplaceRefreshToken
UPDATE users
SET refresh_token = $2
WHERE id = $1
`

func (r *SessionRepo) ReplaceRefreshToken(ctx context.Context, userID uuid.UUID, token string) error {
	tag, err := r.DB.Exec(ctx, replaceRefreshToken, userID, token)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return apperrors.ErrUserNotFound
	}

	return nil
}

const clearRefreshToken = `-- name: ClearRefreshToken
UPDATE users
SET refresh_token = ''
WHERE id = $1
`

func (r *SessionRepo) ClearRefreshToken(ctx context.Context, userID uuid.UUID) error {
	// Logout must always succeed, a missing user is not an error here
	_, err := r.DB.Exec(ctx, clearRefreshToken, userID)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}

	return nil
}

const currentRefreshToken = `-- name: CurrentRefreshToken
SELECT refresh_token FROM users
WHERE id = $1
`

func (r *SessionRepo) CurrentRefreshToken(ctx context.Context, userID uuid.UUID) (string, error) {
	rows, _ := r.DB.Query(ctx, currentRefreshToken, userID)
	token, err := pgx.CollectOneRow(rows, pgx.RowTo[string])

	switch {
	case err == nil:
		return token, nil
	case errors.Is(err, pgx.ErrNoRows):
		return "", apperrors.ErrUserNotFound
	default:
		return "", fmt.Errorf("db error: %w", err)
	}
}
