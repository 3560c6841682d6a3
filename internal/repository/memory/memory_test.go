package memory

import (
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/nkorolev/authd/internal/apperrors"
)

func Test_UserRepo(t *testing.T) {
	t.Parallel()

	t.Run("create and get user", func(t *testing.T) {
		s := NewStorage()

		created, err := s.CreateUser(t.Context(), "nk@example.com", "hashed")
		require.NoError(t, err)
		require.NotEqual(t, uuid.Nil, created.ID, "user should get an id")

		byID, err := s.GetUserByID(t.Context(), created.ID)
		require.NoError(t, err)
		require.Equal(t, created, byID)

		byEmail, err := s.GetUserByEmail(t.Context(), "nk@example.com")
		require.NoError(t, err)
		require.Equal(t, created, byEmail)
	})

	t.Run("fail if user exists", func(t *testing.T) {
		s := NewStorage()

		_, err := s.CreateUser(t.Context(), "nk@example.com", "hashed")
		require.NoError(t, err)

		_, err = s.CreateUser(t.Context(), "nk@example.com", "other-hash")
		require.ErrorIs(t, err, apperrors.ErrUserAlreadyExists)
	})

	t.Run("fail if user not found", func(t *testing.T) {
		s := NewStorage()

		_, err := s.GetUserByID(t.Context(), uuid.New())
		require.ErrorIs(t, err, apperrors.ErrUserNotFound)

		_, err = s.GetUserByEmail(t.Context(), "missing@example.com")
		require.ErrorIs(t, err, apperrors.ErrUserNotFound)
	})
}

func Test_SessionRepo(t *testing.T) {
	t.Parallel()

	// Create storage with single user and return it's id
	newStorageWithUser := func(t *testing.T) (*Storage, uuid.UUID) {
		s := NewStorage()
		user, err := s.CreateUser(t.Context(), "nk@example.com", "hashed")
		require.NoError(t, err)
		return s, user.ID
	}

	t.Run("rotate from empty slot", func(t *testing.T) {
		s, userID := newStorageWithUser(t)

		err := s.RotateRefreshToken(t.Context(), userID, "", "first-token")
		require.NoError(t, err, "empty previous should match a never written slot")

		current, err := s.CurrentRefreshToken(t.Context(), userID)
		require.NoError(t, err)
		require.Equal(t, "first-token", current)
	})

	t.Run("rotate same empty previous twice fails", func(t *testing.T) {
		s, userID := newStorageWithUser(t)

		require.NoError(t, s.RotateRefreshToken(t.Context(), userID, "", "first-token"))

		err := s.RotateRefreshToken(t.Context(), userID, "", "second-token")
		require.ErrorIs(t, err, apperrors.ErrRotateMismatch)

		current, err := s.CurrentRefreshToken(t.Context(), userID)
		require.NoError(t, err)
		require.Equal(t, "first-token", current, "failed rotation must not change the slot")
	})

	t.Run("rotate mismatch leaves slot intact", func(t *testing.T) {
		s, userID := newStorageWithUser(t)
		require.NoError(t, s.ReplaceRefreshToken(t.Context(), userID, "current-token"))

		err := s.RotateRefreshToken(t.Context(), userID, "stale-token", "next-token")
		require.ErrorIs(t, err, apperrors.ErrRotateMismatch)

		current, err := s.CurrentRefreshToken(t.Context(), userID)
		require.NoError(t, err)
		require.Equal(t, "current-token", current)
	})

	t.Run("rotate unknown user fails", func(t *testing.T) {
		s, _ := newStorageWithUser(t)

		err := s.RotateRefreshToken(t.Context(), uuid.New(), "", "token")
		require.ErrorIs(t, err, apperrors.ErrRotateMismatch)
	})

	t.Run("replace overwrites unconditionally", func(t *testing.T) {
		s, userID := newStorageWithUser(t)

		require.NoError(t, s.ReplaceRefreshToken(t.Context(), userID, "first-token"))
		require.NoError(t, s.ReplaceRefreshToken(t.Context(), userID, "second-token"))

		current, err := s.CurrentRefreshToken(t.Context(), userID)
		require.NoError(t, err)
		require.Equal(t, "second-token", current)
	})

	t.Run("clear is idempotent", func(t *testing.T) {
		s, userID := newStorageWithUser(t)
		require.NoError(t, s.ReplaceRefreshToken(t.Context(), userID, "token"))

		require.NoError(t, s.ClearRefreshToken(t.Context(), userID))
		require.NoError(t, s.ClearRefreshToken(t.Context(), userID))
		require.NoError(t, s.ClearRefreshToken(t.Context(), uuid.New()), "unknown user is not an error")

		current, err := s.CurrentRefreshToken(t.Context(), userID)
		require.NoError(t, err)
		require.Equal(t, "", current)
	})

	t.Run("concurrent rotations single winner", func(t *testing.T) {
		s, userID := newStorageWithUser(t)
		require.NoError(t, s.ReplaceRefreshToken(t.Context(), userID, "stale-token"))

		const workers = 32

		var wg sync.WaitGroup
		results := make(chan error, workers)

		for range workers {
			wg.Add(1)
			go func() {
				defer wg.Done()
				results <- s.RotateRefreshToken(t.Context(), userID, "stale-token", uuid.NewString())
			}()
		}
		wg.Wait()
		close(results)

		wins := 0
		for err := range results {
			if err == nil {
				wins++
			} else {
				require.ErrorIs(t, err, apperrors.ErrRotateMismatch)
			}
		}
		require.Equal(t, 1, wins, "exactly one concurrent rotation should win")
	})
}
