package middleware

import (
	"context"
	"net/http"

	"github.com/nkorolev/authd/internal/handlers/render"
	"github.com/nkorolev/authd/internal/handlers/userctx"
	"github.com/nkorolev/authd/internal/models"
)

type authService interface {
	Authenticate(ctx context.Context, r *http.Request) (models.User, error)
}

// Auth gates protected endpoints on the access token.
//
// The guard also resolves the user behind the token: a token whose user no
// longer exists is rejected even before its expiry. Never touches the refresh
// session slot. Any failure produces the same uniform 401.
func Auth(as authService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, err := as.Authenticate(r.Context(), r)
			if err != nil {
				render.ServiceError(w, "Unauthorized", http.StatusUnauthorized)
				return
			}
			ctx := userctx.New(r.Context(), user)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
