// Пакет server — HTTP-сервер API реестра с graceful shutdown.
// Без TLS — TLS termination на внешнем балансировщике.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/drdator/ccm/internal/api/handlers"
	"github.com/drdator/ccm/internal/api/middleware"
	"github.com/drdator/ccm/internal/config"
)

// Handlers — зависимости маршрутизатора.
type Handlers struct {
	API    *handlers.APIHandler
	Health *handlers.HealthHandler
	Auth   *middleware.Auth
	// RateLimiter — nil отключает ограничение частоты
	RateLimiter *middleware.RateLimiter
}

// Server — HTTP-сервер API реестра.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
	cfg        *config.Config
}

// NewRouter собирает маршруты и middleware.
func NewRouter(cfg *config.Config, logger *slog.Logger, h Handlers) http.Handler {
	router := chi.NewRouter()

	// Глобальные middleware (применяются ко ВСЕМ маршрутам)
	router.Use(chimw.Recoverer)
	router.Use(chimw.RealIP)
	router.Use(middleware.RequestID())
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.CORSOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Authorization", "Content-Type", middleware.HeaderAPIKey, middleware.HeaderRequestID},
		ExposedHeaders: []string{middleware.HeaderRequestID, "Retry-After"},
		MaxAge:         300,
	}))
	router.Use(middleware.MetricsMiddleware())
	router.Use(middleware.RequestLogger(logger))

	// Health и metrics — без лимитов и аутентификации
	router.Get("/health/live", h.Health.HealthLive)
	router.Get("/health/ready", h.Health.HealthReady)
	router.Get("/metrics", h.Health.GetMetrics)

	router.Route("/api", func(r chi.Router) {
		r.Get("/openapi.yaml", h.Health.GetOpenAPI)

		r.Route("/commands", func(r chi.Router) {
			if h.RateLimiter != nil {
				r.Use(h.RateLimiter.Middleware(""))
			}
			r.Get("/", h.API.ListCommands)
			r.Get("/search", h.API.SearchCommands)
			r.Get("/{name}", h.API.GetCommand)
			r.Get("/{name}/versions", h.API.ListVersions)
			r.With(h.Auth.Optional()).Get("/{name}/download", h.API.DownloadCommand)
			r.With(h.Auth.Required()).Post("/", h.API.PublishCommand)
		})

		r.Route("/auth", func(r chi.Router) {
			if h.RateLimiter != nil {
				r.Use(h.RateLimiter.Middleware(middleware.ScopeAuth))
			}
			r.Post("/register", h.API.Register)
			r.Post("/login", h.API.Login)
			r.With(h.Auth.Required()).Get("/me", h.API.Me)
			r.With(h.Auth.Required()).Post("/regenerate-api-key", h.API.RegenerateAPIKey)
		})
	})

	return router
}

// New создаёт HTTP-сервер поверх готового маршрутизатора.
func New(cfg *config.Config, logger *slog.Logger, handler http.Handler) *Server {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	return &Server{
		httpServer: srv,
		logger:     logger,
		cfg:        cfg,
	}
}

// Run запускает сервер и ожидает сигнала завершения (SIGINT, SIGTERM).
// При получении сигнала выполняется graceful shutdown.
func (s *Server) Run() error {
	errCh := make(chan error, 1)

	go func() {
		s.logger.Info("HTTP-сервер запущен",
			slog.String("addr", s.httpServer.Addr),
		)

		err := s.httpServer.ListenAndServe()
		if err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		s.logger.Info("Получен сигнал завершения", slog.String("signal", sig.String()))
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("ошибка HTTP-сервера: %w", err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()

	s.logger.Info("Выполняется graceful shutdown...")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("ошибка при graceful shutdown: %w", err)
	}

	s.logger.Info("HTTP-сервер остановлен")
	return nil
}
