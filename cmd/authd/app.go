package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/nkorolev/authd/internal/db"
	"github.com/nkorolev/authd/internal/handlers"
	"github.com/nkorolev/authd/internal/logger"
	"github.com/nkorolev/authd/internal/repository"
	"github.com/nkorolev/authd/internal/repository/memory"
	"github.com/nkorolev/authd/internal/repository/postgres"
	"github.com/nkorolev/authd/internal/repository/redisstore"
	"github.com/nkorolev/authd/internal/service/auth"
	"github.com/nkorolev/authd/internal/service/auth/tokenmanager"
)

type ServerApp struct {
	ListenAddr string
	Handler    http.Handler
}

func NewServerApp(ctx context.Context, c *Config) (*ServerApp, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}

	// Initialize logger
	logger, err := logger.New(c.Environment, c.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("error while initializing logger: %w", err)
	}

	// Initialize repositories
	var userRepo repository.UserRepo
	var sessionRepo repository.SessionRepo

	switch c.Store {
	case StorePostgres:
		// Connect to the database and run migrations
		pool, err := db.ConnectAndMigrate(ctx, c.DatabaseDSN)
		if err != nil {
			return nil, fmt.Errorf("error while connecting to db. Err: %w", err)
		}
		userRepo = &postgres.UserRepo{DB: pool}
		sessionRepo = &postgres.SessionRepo{DB: pool}
	case StoreMemory:
		storage := memory.NewStorage()
		userRepo = storage
		sessionRepo = storage
	}

	// Session slots may live in Redis regardless of the user store
	if c.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{Addr: c.RedisAddr})
		if err := client.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("error while connecting to redis. Err: %w", err)
		}
		sessionRepo = redisstore.New(client, c.RefreshTokenTTL)
	}

	// Initialize services
	// Missing or equal secrets is a configuration error, refuse to start
	tokenManager, err := tokenmanager.New(tokenmanager.Config{
		AccessSecret:  c.SecretKey,
		RefreshSecret: c.RefreshSecretKey,
		AccessTTL:     c.AccessTokenTTL,
		RefreshTTL:    c.RefreshTokenTTL,
	})
	if err != nil {
		return nil, fmt.Errorf("error while creating token manager. Err: %w", err)
	}

	authService, err := auth.NewService(auth.Config{}, tokenManager, userRepo, sessionRepo)
	if err != nil {
		return nil, fmt.Errorf("error while creating auth service. Err: %w", err)
	}

	mux := handlers.NewRouter(
		handlers.RouterConfig{CORSOrigin: c.CORSOrigin},
		authService,
		logger,
	)

	return &ServerApp{
		ListenAddr: c.ListenAddr,
		Handler:    mux,
	}, nil
}

// Run starts http server and closes gracefully on context cancellation
func (s *ServerApp) Run(ctx context.Context) error {
	httpServer := &http.Server{
		Addr:    s.ListenAddr,
		Handler: s.Handler,
	}

	idleConnsClosed := make(chan struct{})
	srvCtx, srvCtxCancel := context.WithCancel(ctx)
	defer srvCtxCancel()

	go func() {
		<-srvCtx.Done()

		timeoutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := httpServer.Shutdown(timeoutCtx); err == context.DeadlineExceeded {
			slog.Error("HTTP server shutdown timeout exceeded, forcing shutdown...")
		}
		slog.Info("HTTP server stopped")
		close(idleConnsClosed)
	}()

	// Listen and serve until context is cancelled; then close gracefully connections
	slog.Info("Starting server", "address", s.ListenAddr)
	err := httpServer.ListenAndServe()
	srvCtxCancel()
	<-idleConnsClosed

	return err
}
