package auth

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/nkorolev/authd/internal/apperrors"
	"github.com/nkorolev/authd/internal/models"
	"github.com/nkorolev/authd/internal/repository"
	"github.com/nkorolev/authd/internal/service/auth/tokenmanager"
)

const (
	defaultAccessHeaderName  = "Authorization"
	defaultAccessAuthScheme  = "Bearer"
	defaultRefreshCookieName = "refreshtoken"

	// The refresh cookie is scoped to the renewal endpoint only: the browser
	// never attaches it to other requests. The path is the isolation
	// mechanism, change it together with the route or clearing breaks.
	defaultRefreshCookiePath = "/refresh_token"
)

type Config struct {
	// Hasher to use during user registration or login process
	// Default bcrypt hasher is used if not set
	Hasher PasswordHasher

	// Transport details. Defaults are used if not set
	AccessHeaderName  string
	AccessAuthScheme  string
	RefreshCookieName string
	RefreshCookiePath string
}

// Auth service: mints token pairs, keeps the per user refresh slot rotated
// and moves tokens in and out of http requests and responses
type AuthService struct {
	token  *tokenmanager.TokenManager
	hasher PasswordHasher

	userRepo    repository.UserRepo
	sessionRepo repository.SessionRepo

	accessHeaderName  string
	accessAuthScheme  string
	refreshCookieName string
	refreshCookiePath string
}

func NewService(cfg Config, token *tokenmanager.TokenManager, userRepo repository.UserRepo, sessionRepo repository.SessionRepo) (*AuthService, error) {
	hasher := cfg.Hasher
	if hasher == nil {
		hasher = DefaultHasher
	}

	setDefaultString := func(field *string, def string) {
		if *field == "" {
			*field = def
		}
	}
	setDefaultString(&cfg.AccessHeaderName, defaultAccessHeaderName)
	setDefaultString(&cfg.AccessAuthScheme, defaultAccessAuthScheme)
	setDefaultString(&cfg.RefreshCookieName, defaultRefreshCookieName)
	setDefaultString(&cfg.RefreshCookiePath, defaultRefreshCookiePath)

	return &AuthService{
		token:             token,
		hasher:            hasher,
		userRepo:          userRepo,
		sessionRepo:       sessionRepo,
		accessHeaderName:  cfg.AccessHeaderName,
		accessAuthScheme:  cfg.AccessAuthScheme,
		refreshCookieName: cfg.RefreshCookieName,
		refreshCookiePath: cfg.RefreshCookiePath,
	}, nil
}

// Register creates user with hashed password. It doesn't log the user in:
// no tokens are issued until the first login
func (s *AuthService) Register(ctx context.Context, email string, password string) (models.User, error) {
	hash, err := s.hasher.Hash(password)
	if err != nil {
		return models.User{}, fmt.Errorf("can't use this as password, error=%w", err)
	}

	user, err := s.userRepo.CreateUser(ctx, email, hash)
	if err != nil {
		return user, err
	}

	return user, nil
}

// Login checks the password and issues a fresh token pair. The refresh token
// replaces whatever session the user had before: one live session per user.
func (s *AuthService) Login(ctx context.Context, email string, password string) (models.TokenPair, error) {
	user, err := s.userRepo.GetUserByEmail(ctx, email)
	if err != nil {
		return models.TokenPair{}, apperrors.ErrUserNotFound
	}

	if err := s.hasher.Compare(user.HashedPassword, password); err != nil {
		return models.TokenPair{}, apperrors.ErrUserNotFound
	}

	pair, err := s.token.IssuePair(user.ID)
	if err != nil {
		return models.TokenPair{}, fmt.Errorf("token could not generated, sorry. %w", err)
	}

	if err := s.sessionRepo.ReplaceRefreshToken(ctx, user.ID, pair.Refresh.Value); err != nil {
		return models.TokenPair{}, fmt.Errorf("error while saving refresh token. Err: %w", err)
	}

	return pair, nil
}

// RefreshPair runs the renewal flow: parse the presented refresh token, find
// the user, mint a new pair and atomically swap old token for new in the
// session slot.
//
// Every failure collapses into apperrors.ErrRefreshDenied. The caller must not
// learn whether the token was absent, forged, expired, rotated away or lost a
// race, all of that distinguishes live sessions from dead ones.
func (s *AuthService) RefreshPair(ctx context.Context, refresh string) (models.TokenPair, error) {
	var pair models.TokenPair

	if refresh == "" {
		return pair, apperrors.ErrRefreshDenied
	}

	userID, err := s.token.ParseRefresh(refresh)
	if err != nil {
		return pair, fmt.Errorf("%w: %w", apperrors.ErrRefreshDenied, err)
	}

	user, err := s.userRepo.GetUserByID(ctx, userID)
	if err != nil {
		return pair, fmt.Errorf("%w: %w", apperrors.ErrRefreshDenied, err)
	}

	pair, err = s.token.IssuePair(user.ID)
	if err != nil {
		return models.TokenPair{}, fmt.Errorf("token could not generated, sorry. %w", err)
	}

	// Compare and swap in the store. No separate read: a read-then-write pair
	// would let two concurrent renewals both pass the check.
	err = s.sessionRepo.RotateRefreshToken(ctx, user.ID, refresh, pair.Refresh.Value)
	if err != nil {
		return models.TokenPair{}, fmt.Errorf("%w: %w", apperrors.ErrRefreshDenied, err)
	}

	return pair, nil
}

// Logout invalidates the session the presented refresh token belongs to.
// Best effort on purpose: an invalid or missing token still logs "out".
func (s *AuthService) Logout(ctx context.Context, refresh string) error {
	userID, err := s.token.ParseRefresh(refresh)
	if err != nil {
		return nil
	}

	return s.sessionRepo.ClearRefreshToken(ctx, userID)
}

// Authenticate verifies the access token presented on the request and returns
// the user it belongs to. It never consults the session slot: access tokens
// are stateless and die only by expiry.
func (s *AuthService) Authenticate(ctx context.Context, r *http.Request) (models.User, error) {
	header := r.Header.Get(s.accessHeaderName)
	if header == "" {
		return models.User{}, apperrors.ErrTokenInvalid
	}

	access, ok := strings.CutPrefix(header, s.accessAuthScheme+" ")
	if !ok {
		return models.User{}, apperrors.ErrTokenInvalid
	}

	userID, err := s.token.ParseAccess(access)
	if err != nil {
		return models.User{}, fmt.Errorf("%w: %w", apperrors.ErrTokenInvalid, err)
	}

	user, err := s.userRepo.GetUserByID(ctx, userID)
	if err != nil {
		return models.User{}, fmt.Errorf("%w: %w", apperrors.ErrTokenInvalid, err)
	}

	return user, nil
}

// GetRefreshString reads the refresh token cookie from the request
func (s *AuthService) GetRefreshString(r *http.Request) string {
	cookie, err := r.Cookie(s.refreshCookieName)
	if err != nil {
		return ""
	}
	return cookie.Value
}

// SetRefreshCookie attaches the refresh token to the response as an HttpOnly
// cookie scoped to the renewal endpoint
func (s *AuthService) SetRefreshCookie(w http.ResponseWriter, refresh models.IssuedToken) {
	http.SetCookie(w, &http.Cookie{
		Name:     s.refreshCookieName,
		Value:    refresh.Value,
		Path:     s.refreshCookiePath,
		MaxAge:   int(time.Until(refresh.ExpiresAt).Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
	})
}

// ClearRefreshCookie removes the refresh cookie using the same path scope it
// was set with. A different path would silently fail to clear.
func (s *AuthService) ClearRefreshCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     s.refreshCookieName,
		Value:    "",
		Path:     s.refreshCookiePath,
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
	})
}

// SetTokenPairToRequest attaches both tokens to an outgoing request the same
// way a browser client would. Used by tests and diagnostics.
func (s *AuthService) SetTokenPairToRequest(r *http.Request, pair models.TokenPair) {
	r.Header.Set(s.accessHeaderName, s.accessAuthScheme+" "+pair.Access.Value)
	r.AddCookie(&http.Cookie{
		Name:  s.refreshCookieName,
		Value: pair.Refresh.Value,
	})
}
