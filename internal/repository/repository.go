package repository

import (
	"context"

	"github.com/google/uuid"

	"github.com/nkorolev/authd/internal/models"
)

// User repository interface
type UserRepo interface {
	// Create user
	// If user with email exists already has to return error apperrors.ErrUserAlreadyExists
	CreateUser(ctx context.Context, email string, hashedPassword string) (models.User, error)

	// Get user by it's id or email
	// If user not found must return apperrors.ErrUserNotFound
	GetUserByID(ctx context.Context, userID uuid.UUID) (models.User, error)
	GetUserByEmail(ctx context.Context, email string) (models.User, error)
}

// Session repository: the single currently valid refresh token per user.
//
// The slot holds at most one value. Auth decisions on the renewal path must go
// through RotateRefreshToken only: it compares and swaps in one step, so two
// concurrent renewals with the same stale token can't both win.
type SessionRepo interface {
	// Atomically replace the stored token with next if the stored value equals
	// previous. Empty previous matches an empty (or never written) slot.
	// Returns apperrors.ErrRotateMismatch and changes nothing otherwise.
	RotateRefreshToken(ctx context.Context, userID uuid.UUID, previous string, next string) error

	// Unconditionally set the stored token. Used on login, where the fresh
	// pair replaces whatever session existed before.
	ReplaceRefreshToken(ctx context.Context, userID uuid.UUID, token string) error

	// Remove the stored token. Idempotent, used on logout.
	ClearRefreshToken(ctx context.Context, userID uuid.UUID) error

	// Read-only lookup for diagnostics and tests. Never use it to decide
	// authentication: read-then-write races with concurrent rotations.
	// Returns empty string when no token is stored.
	CurrentRefreshToken(ctx context.Context, userID uuid.UUID) (string, error)
}
