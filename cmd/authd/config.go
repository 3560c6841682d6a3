package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"

	"github.com/nkorolev/authd/internal/logger"
)

const (
	defaultListenAddr      = "localhost:4001"
	defaultLoggingLevel    = logger.LevelInfo
	defaultEnvironment     = logger.EnvProduction
	defaultStore           = StorePostgres
	defaultAccessTokenTTL  = 15 * time.Minute
	defaultRefreshTokenTTL = 7 * 24 * time.Hour
)

// Supported storage backends
const (
	StorePostgres = "postgres"
	StoreMemory   = "memory"
)

type Config struct {
	// Default logging level
	LogLevel string

	// Address on which the authd service will be run
	ListenAddr string

	// Storage backend for users and sessions: postgres or memory
	Store string

	// Database to connect to (postgres store only)
	DatabaseDSN string

	// Redis address. When set the refresh session slots move to Redis,
	// users stay in the selected store
	RedisAddr string

	// Secret key to sign access token payloads
	SecretKey string

	// Separate secret for refresh tokens. An access token must never pass
	// as a refresh token, so the keys may not match
	RefreshSecretKey string

	// Token lifetimes
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration

	// Frontend origin allowed to send credentialed requests
	CORSOrigin string

	// Environment
	Environment string
}

func NewConfig() *Config {
	return &Config{
		LogLevel:        defaultLoggingLevel,
		ListenAddr:      defaultListenAddr,
		Store:           defaultStore,
		AccessTokenTTL:  defaultAccessTokenTTL,
		RefreshTokenTTL: defaultRefreshTokenTTL,
		Environment:     defaultEnvironment,
	}
}

// Load variable from '.env' file (should be located at working directory)
func (c *Config) LoadDotEnv(getwd func() (string, error)) error {
	wd, err := getwd()
	if err != nil {
		return err
	}

	envMap, err := godotenv.Read(filepath.Join(wd, ".env"))

	switch {
	case err == nil:
		c.LoadEnv(func(key string) string {
			return envMap[key]
		})
		return nil
	case errors.Is(err, os.ErrNotExist):
		return nil
	default:
		return err
	}
}

func (c *Config) LoadEnv(getenv func(string) string) {
	// Set option to value if it not empty
	setString := func(o *string) func(value string) {
		return func(value string) {
			if value != "" {
				*o = value
			}
		}
	}
	setDuration := func(o *time.Duration) func(value string) {
		return func(value string) {
			if d, err := time.ParseDuration(value); err == nil {
				*o = d
			}
		}
	}

	envMap := map[string]func(string){
		"RUN_ADDRESS":        setString(&c.ListenAddr),
		"STORE":              setString(&c.Store),
		"DATABASE_URI":       setString(&c.DatabaseDSN),
		"REDIS_ADDRESS":      setString(&c.RedisAddr),
		"SECRET_KEY":         setString(&c.SecretKey),
		"REFRESH_SECRET_KEY": setString(&c.RefreshSecretKey),
		"ACCESS_TOKEN_TTL":   setDuration(&c.AccessTokenTTL),
		"REFRESH_TOKEN_TTL":  setDuration(&c.RefreshTokenTTL),
		"CORS_ORIGIN":        setString(&c.CORSOrigin),
		"LOG_LEVEL":          setString(&c.LogLevel),
		"ENVIRONMENT":        setString(&c.Environment),
	}

	for key, parseFn := range envMap {
		parseFn(getenv(key))
	}
}

func (c *Config) ParseFlags(args []string) error {
	fs := pflag.NewFlagSet("authd", pflag.ContinueOnError)

	fs.StringVarP(&c.ListenAddr, "address", "a", c.ListenAddr, "Server listen address")
	fs.StringVar(&c.Store, "store", c.Store, "Storage backend (postgres, memory)")
	fs.StringVarP(&c.DatabaseDSN, "database", "d", c.DatabaseDSN, "Database connection string")
	fs.StringVar(&c.RedisAddr, "redis", c.RedisAddr, "Redis address for session slots")
	fs.StringVarP(&c.SecretKey, "secret-key", "s", c.SecretKey, "Secret key for access tokens")
	fs.StringVar(&c.RefreshSecretKey, "refresh-secret-key", c.RefreshSecretKey, "Secret key for refresh tokens")
	fs.DurationVar(&c.AccessTokenTTL, "access-ttl", c.AccessTokenTTL, "Access token lifetime")
	fs.DurationVar(&c.RefreshTokenTTL, "refresh-ttl", c.RefreshTokenTTL, "Refresh token lifetime")
	fs.StringVar(&c.CORSOrigin, "cors-origin", c.CORSOrigin, "Frontend origin allowed to send credentials")
	fs.StringVarP(&c.LogLevel, "log-level", "l", c.LogLevel, "Logging level (debug, info, warn, error)")
	fs.StringVarP(&c.Environment, "environment", "e", c.Environment, "Environment (dev, production)")

	return fs.Parse(args)
}

func (c *Config) Validate() error {
	switch c.Store {
	case StorePostgres:
		if c.DatabaseDSN == "" {
			return errors.New("database DSN is required for the postgres store")
		}
	case StoreMemory:
	default:
		return fmt.Errorf("unknown store: %q", c.Store)
	}

	return nil
}
