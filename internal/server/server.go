// Package server provides the HTTP server for the Haven credential API.
// It handles routing, middleware configuration, and server lifecycle
// management with graceful shutdown.
//
// Initialization follows a fixed dependency order: database → repositories
// → auth providers → rate limiting → services → handlers → routes. Every
// component is constructed here and injected; nothing reaches for package
// globals.
package server

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/havenhomes/haven-backend/internal/auth"
	"github.com/havenhomes/haven-backend/internal/config"
	"github.com/havenhomes/haven-backend/internal/constants"
	"github.com/havenhomes/haven-backend/internal/database"
	"github.com/havenhomes/haven-backend/internal/handlers"
	"github.com/havenhomes/haven-backend/internal/ratelimit"
	"github.com/havenhomes/haven-backend/internal/repository"
	"github.com/havenhomes/haven-backend/internal/service"
	"github.com/havenhomes/haven-backend/migrations"
)

// Handlers contains all HTTP handlers for the application.
type Handlers struct {
	AuthHandler *handlers.AuthHandler
}

// Server represents the credential API server. It owns every component's
// lifecycle, including the notification outbox worker and the periodic
// maintenance loop.
type Server struct {
	Config   *config.AppConfig
	Db       *database.Pool
	Handlers *Handlers

	router     chi.Router
	httpServer *http.Server

	store       repository.CredentialStore
	jwtService  *auth.JWTService
	hasher      *auth.PasswordHasher
	tokens      *auth.ResetTokenManager
	authService *service.AuthService
	outbox      *service.NotificationOutbox

	redisClient *redis.Client
	memBackend  *ratelimit.MemoryBackend
	backoff     *ratelimit.Backoff
	limiters    struct {
		origin  *ratelimit.Limiter
		account *ratelimit.Limiter
	}

	maintenanceStop chan struct{}
}

// NewServer creates a fully wired server from configuration.
func NewServer(cfg *config.AppConfig) (*Server, error) {
	s := &Server{
		Config:          cfg,
		maintenanceStop: make(chan struct{}),
	}

	if err := s.setupDatabase(); err != nil {
		return nil, fmt.Errorf("failed to set up database: %w", err)
	}

	s.setupAuthProviders()

	if err := s.setupRateLimiting(); err != nil {
		return nil, fmt.Errorf("failed to set up rate limiting: %w", err)
	}

	s.setupServices()
	s.setupHandlers()
	s.SetupRoutes()

	s.httpServer = &http.Server{
		Addr:         cfg.Server.ServerAddress(),
		Handler:      s.router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  constants.DefaultIdleTimeout,
	}

	return s, nil
}

// setupDatabase connects to MySQL, runs migrations and builds the
// credential store.
func (s *Server) setupDatabase() error {
	db, err := database.Connect(s.Config)
	if err != nil {
		return err
	}
	s.Db = db

	migrator := migrations.NewMigrator(db)
	if err := migrator.RunMigrations(context.Background()); err != nil {
		return fmt.Errorf("failed to run database migrations: %w", err)
	}

	s.store = repository.NewCredentialRepository(db)

	return nil
}

func (s *Server) setupAuthProviders() {
	s.jwtService = auth.NewJWTService(&s.Config.JWT)
	s.hasher = auth.NewPasswordHasher(auth.ConfigFromAppConfig(s.Config))
	s.tokens = auth.NewResetTokenManager(s.store, s.Config.ResetToken.TTL)
}

// setupRateLimiting builds the shared attempt-counter backend. The redis
// backend coordinates limits across instances; the memory backend serves
// single-instance deployments and tests.
func (s *Server) setupRateLimiting() error {
	var backend ratelimit.Backend

	switch s.Config.RateLimit.Backend {
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     s.Config.Redis.Addr,
			Password: s.Config.Redis.Password,
			DB:       s.Config.Redis.DB,
		})

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := client.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("failed to connect to redis at %s: %w", s.Config.Redis.Addr, err)
		}

		s.redisClient = client
		backend = ratelimit.NewRedisBackend(client)
	case "memory":
		s.memBackend = ratelimit.NewMemoryBackend()
		backend = s.memBackend
	default:
		return fmt.Errorf("unknown rate limit backend %q", s.Config.RateLimit.Backend)
	}

	rl := &s.Config.RateLimit
	s.backoff = ratelimit.NewBackoff(rl.BackoffBase, rl.BackoffCap, rl.BackoffJitter)

	// The two limiters share the backend but keep independent budgets.
	originLimiter := ratelimit.NewLimiter(backend, rl.OriginMaxRequests, rl.OriginWindow)
	accountLimiter := ratelimit.NewLimiter(backend, rl.AccountMaxRequests, rl.AccountWindow)

	s.limiters.origin = originLimiter
	s.limiters.account = accountLimiter

	return nil
}

func (s *Server) setupServices() {
	sessions := service.NewSessionRegistry(s.store, s.Config.Sessions.MaxPerAccount)

	var sender service.NotificationSender
	sgSender, err := service.NewSendGridSender(&s.Config.Notifications)
	if err != nil {
		if s.Config.App.IsProduction() {
			log.Error().Err(err).Msg("No notification provider configured in production")
		}
		sender = service.LogSender{}
	} else {
		sender = sgSender
	}

	s.outbox = service.NewNotificationOutbox(
		sender,
		s.Config.Notifications.QueueSize,
		s.Config.Notifications.MaxRetries,
	)

	s.authService = service.NewAuthService(
		s.store,
		s.hasher,
		s.tokens,
		sessions,
		s.jwtService,
		s.outbox,
		s.limiters.origin,
		s.limiters.account,
		s.backoff,
		!s.Config.Sessions.KeepOthersOnChange,
		s.Config.RateLimit.AccountWindow,
	)
}

func (s *Server) setupHandlers() {
	s.Handlers = &Handlers{
		AuthHandler: handlers.NewAuthHandler(s.authService),
	}
}

// Start runs the HTTP server until it fails or a shutdown signal arrives,
// then shuts down gracefully.
func (s *Server) Start() error {
	s.outbox.Start()
	s.setupMaintenanceTasks()

	serverErrors := make(chan error, 1)

	go func() {
		log.Info().
			Str("address", s.Config.Server.ServerAddress()).
			Msg("Starting server")

		serverErrors <- s.httpServer.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		return fmt.Errorf("server error: %w", err)
	case sig := <-shutdown:
		log.Info().
			Str("signal", sig.String()).
			Msg("Shutdown signal received")

		ctx, cancel := context.WithTimeout(context.Background(), s.Config.Server.ShutdownTimeout)
		defer cancel()

		if err := s.Shutdown(ctx); err != nil {
			if closeErr := s.httpServer.Close(); closeErr != nil {
				log.Error().Err(closeErr).Msg("failed to close server")
			}
			return fmt.Errorf("could not stop server gracefully: %w", err)
		}
	}

	return nil
}

// Shutdown stops the HTTP server, the maintenance loop, the notification
// outbox and all backing connections, in that order.
func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown error: %w", err)
	}
	log.Info().Msg("Server stopped gracefully")

	close(s.maintenanceStop)

	// Stop the notification workers; jobs still queued are abandoned.
	s.outbox.Stop()

	if s.redisClient != nil {
		if err := s.redisClient.Close(); err != nil {
			log.Warn().Err(err).Msg("Failed to close redis client")
		}
	}

	if err := s.Db.Close(); err != nil {
		log.Warn().Err(err).Msg("Failed to close database connection")
	} else {
		log.Info().Msg("Database connection closed")
	}

	return nil
}

// setupMaintenanceTasks starts the periodic cleanup loop: in-process rate
// limit state, spent or expired reset tokens, and idle sessions. The redis
// backend expires its own keys.
func (s *Server) setupMaintenanceTasks() {
	ticker := time.NewTicker(constants.MaintenanceInterval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-s.maintenanceStop:
				return
			case <-ticker.C:
				if s.memBackend != nil {
					s.memBackend.Prune(s.Config.RateLimit.OriginWindow)
				}
				s.backoff.Prune(s.Config.RateLimit.BackoffCap * 2)

				ctx, cancel := context.WithTimeout(context.Background(), constants.DefaultStoreTimeout)
				tokens, sessions, err := s.store.CleanupExpired(ctx, constants.DefaultSessionMaxIdle)
				cancel()
				if err != nil {
					log.Warn().Err(err).Msg("Store cleanup failed")
				} else if tokens > 0 || sessions > 0 {
					log.Info().
						Int64("tokens_cleared", tokens).
						Int64("sessions_removed", sessions).
						Msg("Store cleanup completed")
				}
			}
		}
	}()
}
