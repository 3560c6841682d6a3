package redisstore

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/nkorolev/authd/internal/apperrors"
)

const defaultKeyPrefix = "authd:refresh:"

const rotateScript = `
local cur = redis.call("GET", KEYS[1])
if cur == false then
  cur = ""
end
if cur ~= ARGV[1] then
  return 0
end
if ARGV[2] == "" then
  redis.call("DEL", KEYS[1])
else
  redis.call("SET", KEYS[1], ARGV[2], "PX", ARGV[3])
end
return 1
`

var rotateLua = redis.NewScript(rotateScript)

// SessionRepo keeps refresh token slots in Redis, one key per user.
// The compare step of rotation runs inside a Lua script: Redis executes
// scripts atomically, so the slot behaves the same as the SQL
// conditional UPDATE even when the store is shared between instances.
type SessionRepo struct {
	client *redis.Client
	ttl    time.Duration
}

// New creates repo with the given refresh token lifetime.
// Keys expire on their own, an abandoned session doesn't need a cleanup job.
func New(client *redis.Client, ttl time.Duration) *SessionRepo {
	return &SessionRepo{
		client: client,
		ttl:    ttl,
	}
}

func (r *SessionRepo) RotateRefreshToken(ctx context.Context, userID uuid.UUID, previous string, next string) error {
	status, err := rotateLua.Run(ctx, r.client,
		[]string{r.key(userID)},
		previous, next, r.ttl.Milliseconds(),
	).Int64()
	if err != nil {
		return fmt.Errorf("redis error: %w", err)
	}

	if status == 0 {
		return apperrors.ErrRotateMismatch
	}

	return nil
}

func (r *SessionRepo) ReplaceRefreshToken(ctx context.Context, userID uuid.UUID, token string) error {
	err := r.client.Set(ctx, r.key(userID), token, r.ttl).Err()
	if err != nil {
		return fmt.Errorf("redis error: %w", err)
	}

	return nil
}

func (r *SessionRepo) ClearRefreshToken(ctx context.Context, userID uuid.UUID) error {
	err := r.client.Del(ctx, r.key(userID)).Err()
	if err != nil {
		return fmt.Errorf("redis error: %w", err)
	}

	return nil
}

func (r *SessionRepo) CurrentRefreshToken(ctx context.Context, userID uuid.UUID) (string, error) {
	token, err := r.client.Get(ctx, r.key(userID)).Result()

	switch {
	case err == nil:
		return token, nil
	case err == redis.Nil:
		return "", nil
	default:
		return "", fmt.Errorf("redis error: %w", err)
	}
}

func (r *SessionRepo) key(userID uuid.UUID) string {
	return defaultKeyPrefix + userID.String()
}
