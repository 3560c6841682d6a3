package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nkorolev/authd/internal/apperrors"
	"github.com/nkorolev/authd/internal/models"
)

// Storage keeps users and their refresh token slots in process memory.
// It implements both repository.UserRepo and repository.SessionRepo and is
// intended for development and tests, where a database is an overkill.
//
// A single mutex guards every read-modify-write, so RotateRefreshToken is
// linearizable: of N concurrent rotations with the same stale previous token
// exactly one wins.
type Storage struct {
	mu      sync.Mutex
	byID    map[uuid.UUID]*record
	byEmail map[string]*record
}

type record struct {
	user         models.User
	refreshToken string
}

func NewStorage() *Storage {
	return &Storage{
		byID:    make(map[uuid.UUID]*record),
		byEmail: make(map[string]*record),
	}
}

func (s *Storage) CreateUser(ctx context.Context, email string, hashedPassword string) (models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byEmail[email]; ok {
		return models.User{}, apperrors.ErrUserAlreadyExists
	}

	rec := &record{
		user: models.User{
			ID:             uuid.New(),
			CreatedAt:      time.Now().Truncate(time.Second),
			Email:          email,
			HashedPassword: hashedPassword,
		},
	}
	s.byID[rec.user.ID] = rec
	s.byEmail[email] = rec

	return rec.user, nil
}

func (s *Storage) GetUserByID(ctx context.Context, userID uuid.UUID) (models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.byID[userID]
	if !ok {
		return models.User{}, apperrors.ErrUserNotFound
	}
	return rec.user, nil
}

func (s *Storage) GetUserByEmail(ctx context.Context, email string) (models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.byEmail[email]
	if !ok {
		return models.User{}, apperrors.ErrUserNotFound
	}
	return rec.user, nil
}

func (s *Storage) RotateRefreshToken(ctx context.Context, userID uuid.UUID, previous string, next string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.byID[userID]
	if !ok || rec.refreshToken != previous {
		return apperrors.ErrRotateMismatch
	}

	rec.refreshToken = next
	return nil
}

func (s *Storage) ReplaceRefreshToken(ctx context.Context, userID uuid.UUID, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.byID[userID]
	if !ok {
		return apperrors.ErrUserNotFound
	}

	rec.refreshToken = token
	return nil
}

func (s *Storage) ClearRefreshToken(ctx context.Context, userID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rec, ok := s.byID[userID]; ok {
		rec.refreshToken = ""
	}
	return nil
}

func (s *Storage) CurrentRefreshToken(ctx context.Context, userID uuid.UUID) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.byID[userID]
	if !ok {
		return "", apperrors.ErrUserNotFound
	}
	return rec.refreshToken, nil
}
