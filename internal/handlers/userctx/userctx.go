package userctx

import (
	"context"

	"github.com/nkorolev/authd/internal/models"
)

// Unexported key type so no other package can collide with it
type ctxKey struct{}

// New returns a context carrying the authenticated user
func New(ctx context.Context, u models.User) context.Context {
	return context.WithValue(ctx, ctxKey{}, u)
}

// FromContext extracts the user set by the auth middleware.
// ok is false on requests that never passed through it
func FromContext(ctx context.Context) (models.User, bool) {
	u, ok := ctx.Value(ctxKey{}).(models.User)
	return u, ok
}
