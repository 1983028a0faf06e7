// Package server is the composition root: it opens the store, builds the
// services and handlers, mounts the routes and runs the HTTP server.
//
// DEPENDENCY FLOW:
//
//	config.Config
//	  → store (sqlite or postgres) → repositories
//	  → services (auth, events, admission, profile)
//	  → handlers → chi routes
//
// Handlers never see a repository and services never see HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sakif/eventhub/internal/auth"
	"github.com/sakif/eventhub/internal/config"
	"github.com/sakif/eventhub/internal/handler"
	"github.com/sakif/eventhub/internal/metrics"
	"github.com/sakif/eventhub/internal/middleware"
	"github.com/sakif/eventhub/internal/ratelimit"
	"github.com/sakif/eventhub/internal/repository"
	pgRepo "github.com/sakif/eventhub/internal/repository/postgres"
	sqliteRepo "github.com/sakif/eventhub/internal/repository/sqlite"
	"github.com/sakif/eventhub/internal/service"
)

// Route labels for rate limiting and the rate-limit metric.
const (
	routeRegister = "auth_register"
	routeLogin    = "auth_login"
)

// store is what the server needs from either backend.
type store struct {
	events repository.EventRepository
	users  repository.UserRepository
	pinger repository.Pinger
	close  func() error
}

// Server owns the router and every long-lived resource behind it. Start
// releases them on shutdown.
type Server struct {
	router  *chi.Mux
	config  *config.Config
	logger  *slog.Logger
	store   store
	limiter ratelimit.Limiter
	cleanup []func()
}

// New opens the configured store and rate limiter and wires all routes.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Server, error) {
	st, err := openStore(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	s := &Server{
		router: chi.NewRouter(),
		config: cfg,
		logger: logger,
		store:  st,
	}
	s.cleanup = append(s.cleanup, func() {
		if err := st.close(); err != nil {
			logger.Error("closing store", slog.String("error", err.Error()))
		}
	})

	if err := s.openLimiter(ctx); err != nil {
		s.Close()
		return nil, err
	}

	if err := s.setupRoutes(); err != nil {
		s.Close()
		return nil, fmt.Errorf("setting up routes: %w", err)
	}

	return s, nil
}

func openStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (store, error) {
	switch cfg.StoreDriver {
	case config.DriverPostgres:
		db, err := pgRepo.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return store{}, fmt.Errorf("opening postgres: %w", err)
		}
		logger.Info("store opened", slog.String("driver", config.DriverPostgres))
		return store{events: db.Events(), users: db.Users(), pinger: db, close: db.Close}, nil

	default:
		if dir := filepath.Dir(cfg.DBPath); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return store{}, fmt.Errorf("creating database directory %s: %w", dir, err)
			}
		}
		db, err := sqliteRepo.New(cfg.DBPath)
		if err != nil {
			return store{}, fmt.Errorf("opening sqlite: %w", err)
		}
		logger.Info("store opened",
			slog.String("driver", config.DriverSQLite),
			slog.String("path", cfg.DBPath),
		)
		return store{events: db.Events(), users: db.Users(), pinger: db, close: db.Close}, nil
	}
}

// openLimiter uses Redis when REDIS_URL is set so that every replica
// shares one budget, and an in-process limiter otherwise.
func (s *Server) openLimiter(ctx context.Context) error {
	if s.config.RedisURL == "" {
		mem := ratelimit.NewMemory(s.config.RateLimitRequests, s.config.RateLimitWindow)
		s.limiter = mem
		s.cleanup = append(s.cleanup, mem.Stop)
		return nil
	}

	client, err := ratelimit.NewRedisClient(ctx, s.config.RedisURL)
	if err != nil {
		return fmt.Errorf("opening rate limiter: %w", err)
	}
	s.limiter = ratelimit.NewRedis(client, s.config.RateLimitRequests, s.config.RateLimitWindow)
	s.cleanup = append(s.cleanup, func() { _ = client.Close() })
	s.logger.Info("rate limiter backed by redis")
	return nil
}

// setupRoutes mounts every route.
//
// ROUTES:
//
//	GET    /health                    → store ping
//	GET    /metrics                   → Prometheus
//	POST   /api/auth/register         → Register (rate limited)
//	POST   /api/auth/login            → Login (rate limited)
//	POST   /api/auth/logout           → clear cookie
//	GET    /api/auth/github/login     → GitHub sign-in (if configured)
//	GET    /api/auth/github/callback
//	GET    /api/auth/profile          → current user        [auth]
//	GET    /api/profile               → profile aggregate   [auth]
//	GET    /api/events                → list                [optional auth]
//	GET    /api/events/{id}           → get                 [optional auth]
//	POST   /api/events                → create              [auth]
//	GET    /api/events/my-events      → organizer's events  [auth]
//	DELETE /api/events/{id}           → delete              [auth]
//	POST   /api/events/rsvp/{id}      → join                [auth]
//	DELETE /api/events/rsvp/{id}      → leave               [auth]
//
// Middleware order: request ID, real IP (TRUST_PROXY only), metrics,
// logging, panic recovery, CORS. Metrics and logging wrap Recoverer's 500s.
func (s *Server) setupRoutes() error {
	tokens, err := auth.NewTokenService(s.config.JWTSecret, s.config.TokenTTL)
	if err != nil {
		return fmt.Errorf("creating token service: %w", err)
	}

	var github *auth.GitHubProvider
	if s.config.GitHubEnabled() {
		github = auth.NewGitHubProvider(s.config.GitHubClientID, s.config.GitHubClientSecret, s.config.GitHubCallbackURL)
	}

	events, users := s.store.events, s.store.users

	authService := service.NewAuthService(users, tokens, auth.NewPasswordService(), s.logger)
	authHandler := handler.NewAuthHandler(authService, github, tokens.TTL(), s.config.SecureCookies, s.logger)
	eventHandler := handler.NewEventHandler(
		service.NewEventService(events, users, s.logger),
		service.NewAdmissionController(events, s.logger),
		s.logger,
	)
	profileHandler := handler.NewProfileHandler(service.NewProfileService(users, events, s.logger), s.logger)

	r := s.router
	r.Use(chimiddleware.RequestID)
	if s.config.TrustProxy {
		r.Use(chimiddleware.RealIP)
	}
	r.Use(metrics.HTTPMetricsMiddleware)
	r.Use(middleware.Logger(s.logger))
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS(s.config.CORSAllowedOrigins))

	r.Get("/health", handler.Health(s.store.pinger, s.logger))
	r.Handle("/metrics", promhttp.Handler())

	requireAuth := auth.RequireAuth(tokens)
	optionalAuth := auth.OptionalAuth(tokens)

	r.Route("/api", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			r.With(middleware.RateLimit(s.limiter, routeRegister, s.logger)).Post("/register", authHandler.HandleRegister)
			r.With(middleware.RateLimit(s.limiter, routeLogin, s.logger)).Post("/login", authHandler.HandleLogin)
			r.Post("/logout", authHandler.HandleLogout)
			r.With(requireAuth).Get("/profile", authHandler.HandleMe)

			if authHandler.GitHubEnabled() {
				r.Get("/github/login", authHandler.HandleGitHubLogin)
				r.Get("/github/callback", authHandler.HandleGitHubCallback)
			}
		})

		r.With(requireAuth).Get("/profile", profileHandler.HandleGet)

		r.Route("/events", func(r chi.Router) {
			r.With(optionalAuth).Get("/", eventHandler.HandleList)
			r.With(requireAuth).Post("/", eventHandler.HandleCreate)
			r.With(requireAuth).Get("/my-events", eventHandler.HandleListMine)
			r.With(optionalAuth).Get("/{id}", eventHandler.HandleGet)
			r.With(requireAuth).Delete("/{id}", eventHandler.HandleDelete)
			r.With(requireAuth).Post("/rsvp/{id}", eventHandler.HandleJoin)
			r.With(requireAuth).Delete("/rsvp/{id}", eventHandler.HandleLeave)
		})
	})

	return nil
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Close releases the store and rate limiter in reverse order of opening.
func (s *Server) Close() {
	for i := len(s.cleanup) - 1; i >= 0; i-- {
		s.cleanup[i]()
	}
	s.cleanup = nil
}

// Start serves until SIGINT or SIGTERM, then drains in-flight requests for
// up to 30 seconds and closes the store.
func (s *Server) Start() error {
	defer s.Close()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.config.Port),
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("server starting",
			slog.Int("port", s.config.Port),
			slog.String("store", s.config.StoreDriver),
			slog.Bool("githubSignIn", s.config.GitHubEnabled()),
		)
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}

	case sig := <-quit:
		s.logger.Info("shutdown signal received", slog.String("signal", sig.String()))

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		s.logger.Info("server stopped gracefully")
	}

	return nil
}
