package handlers

import (
	"context"
	"net/http"

	"github.com/go-chi/cors"

	"github.com/nkorolev/authd/internal/handlers/middleware"
	"github.com/nkorolev/authd/internal/logger"
	"github.com/nkorolev/authd/internal/models"
)

// chain applies middlewares in the given order: m1(m2(...(h)))
func chain(h http.Handler, mds ...func(next http.Handler) http.Handler) http.Handler {
	for i := len(mds) - 1; i >= 0; i-- {
		h = mds[i](h)
	}
	return h
}

type RouterConfig struct {
	// Frontend origin allowed to send credentialed requests.
	// CORS layer is skipped when empty (same origin deployments)
	CORSOrigin string
}

func NewRouter(cfg RouterConfig, as authService, l logger.Logger) http.Handler {
	withAuth := middleware.Auth(as)

	mux := http.NewServeMux()

	mux.Handle("POST /register", handleRegister(as, l))
	mux.Handle("POST /login", handleLogin(as, l))
	mux.Handle("POST /logout", handleLogout(as, l))
	mux.Handle("POST /refresh_token", handleTokenRefresh(as, l))

	mux.Handle("GET /protected", withAuth(handleProtected()))

	mds := []func(http.Handler) http.Handler{
		middleware.Logger(l),
	}

	if cfg.CORSOrigin != "" {
		mds = append(mds, cors.Handler(cors.Options{
			AllowedOrigins:   []string{cfg.CORSOrigin},
			AllowedMethods:   []string{http.MethodGet, http.MethodPost},
			AllowedHeaders:   []string{"Authorization", "Content-Type"},
			AllowCredentials: true,
		}))
	}

	return chain(mux, mds...)
}

type authService interface {
	// Register user with email and password
	// Has to return apperrors.ErrUserAlreadyExists if user already exists
	Register(ctx context.Context, email string, password string) (models.User, error)

	// Login user with email and password
	// Has to return apperrors.ErrUserNotFound if user not found or password wrong
	Login(ctx context.Context, email string, password string) (models.TokenPair, error)

	// Refresh tokens using refresh token
	// Every failure has to collapse into apperrors.ErrRefreshDenied
	RefreshPair(ctx context.Context, refresh string) (models.TokenPair, error)

	// Invalidate the session the refresh token belongs to
	Logout(ctx context.Context, refresh string) error

	// Authenticate the access token presented on the request
	Authenticate(ctx context.Context, r *http.Request) (models.User, error)

	// Refresh cookie transport
	GetRefreshString(r *http.Request) string
	SetRefreshCookie(w http.ResponseWriter, refresh models.IssuedToken)
	ClearRefreshCookie(w http.ResponseWriter)
}
