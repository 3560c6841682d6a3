package tokenmanager

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/nkorolev/authd/internal/models"
)

const (
	defaultAccessTokenTTL  = 15 * time.Minute
	defaultRefreshTokenTTL = 7 * 24 * time.Hour
	defaultSigningMethod   = "HS256"
)

type Claims struct {
	jwt.RegisteredClaims
	UserID uuid.UUID `json:"uid"`
}

// Token manager config with sensible defaults
type Config struct {
	// Secrets to sign token payloads. Both required, must differ: an access
	// token must never verify as a refresh token and vice versa
	AccessSecret  string
	RefreshSecret string

	// JWT MAC (Message Authentication Code) algorithm
	// If not set than default is used
	Alg string

	// Access and refresh token lifetimes
	// If not set than default is used
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

// TokenManager signs and verifies both token kinds. It owns no storage:
// persisting refresh tokens is the caller's job.
type TokenManager struct {
	accessKey  string
	refreshKey string

	// JWT MAC (Message Authentication Code) algorithm
	alg jwt.SigningMethod

	// Access and refresh token lifetimes
	accessTTL  time.Duration
	refreshTTL time.Duration
}

func New(cfg Config) (*TokenManager, error) {
	if cfg.AccessSecret == "" || cfg.RefreshSecret == "" {
		return nil, errors.New("both token secrets must not be empty")
	}
	if cfg.AccessSecret == cfg.RefreshSecret {
		return nil, errors.New("access and refresh secrets must differ")
	}

	if cfg.Alg == "" {
		cfg.Alg = defaultSigningMethod
	}

	setDefaultDuration := func(field *time.Duration, def time.Duration) {
		if *field == 0 {
			*field = def
		}
	}
	setDefaultDuration(&cfg.AccessTTL, defaultAccessTokenTTL)
	setDefaultDuration(&cfg.RefreshTTL, defaultRefreshTokenTTL)

	return &TokenManager{
		accessKey:  cfg.AccessSecret,
		refreshKey: cfg.RefreshSecret,
		alg:        jwt.GetSigningMethod(cfg.Alg),
		accessTTL:  cfg.AccessTTL,
		refreshTTL: cfg.RefreshTTL,
	}, nil
}

// IssueAccess signs a short lived access token for the user. No side effects.
func (m *TokenManager) IssueAccess(userID uuid.UUID) (models.IssuedToken, error) {
	return m.issue(userID, m.accessKey, m.accessTTL)
}

// IssueRefresh signs a long lived refresh token for the user. No side effects:
// the token is not valid for renewal until the caller stores it.
func (m *TokenManager) IssueRefresh(userID uuid.UUID) (models.IssuedToken, error) {
	return m.issue(userID, m.refreshKey, m.refreshTTL)
}

// IssuePair issues both tokens at once, as login and refresh always do.
func (m *TokenManager) IssuePair(userID uuid.UUID) (models.TokenPair, error) {
	access, err := m.IssueAccess(userID)
	if err != nil {
		return models.TokenPair{}, err
	}

	refresh, err := m.IssueRefresh(userID)
	if err != nil {
		return models.TokenPair{}, err
	}

	return models.TokenPair{Access: access, Refresh: refresh}, nil
}

// ParseAccess verifies signature and expiry against the access secret
func (m *TokenManager) ParseAccess(access string) (userID uuid.UUID, err error) {
	return m.parse(access, m.accessKey)
}

// ParseRefresh verifies signature and expiry against the refresh secret.
// A valid signature alone does not make the token usable for renewal: the
// caller must still compare it with the stored value.
func (m *TokenManager) ParseRefresh(refresh string) (userID uuid.UUID, err error) {
	return m.parse(refresh, m.refreshKey)
}

func (m *TokenManager) issue(userID uuid.UUID, key string, ttl time.Duration) (models.IssuedToken, error) {
	now := time.Now().Truncate(time.Second)
	expiresAt := now.Add(ttl)

	token := jwt.NewWithClaims(
		m.alg,
		Claims{
			RegisteredClaims: jwt.RegisteredClaims{
				ID:        uuid.NewString(),
				IssuedAt:  jwt.NewNumericDate(now),
				ExpiresAt: jwt.NewNumericDate(expiresAt),
			},
			UserID: userID,
		},
	)

	signed, err := token.SignedString([]byte(key))
	if err != nil {
		return models.IssuedToken{}, fmt.Errorf("error while signing token. Err: %w", err)
	}

	return models.IssuedToken{Value: signed, ExpiresAt: expiresAt}, nil
}

func (m *TokenManager) parse(tokenString string, key string) (uuid.UUID, error) {
	claims := &Claims{}

	_, err := jwt.ParseWithClaims(
		tokenString,
		claims,
		func(t *jwt.Token) (any, error) { return []byte(key), nil },
		jwt.WithValidMethods([]string{m.alg.Alg()}),
	)
	if err != nil {
		return uuid.Nil, fmt.Errorf("error while parsing or validating token. Err: %w", err)
	}

	return claims.UserID, nil
}
