package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/francisco-leal/ModBot/internal/app"
	"github.com/francisco-leal/ModBot/internal/config"
	"github.com/francisco-leal/ModBot/internal/logger"
)

type Server struct {
	app      *app.App
	validate *validator.Validate
	router   *chi.Mux
}

func NewServer(a *app.App) *Server {
	s := &Server{
		app:      a,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/api/v1/health", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	// Registries, for configuration tooling
	r.Get("/api/v1/rules", s.handleListRuleDefinitions)
	r.Get("/api/v1/actions", s.handleListActionDefinitions)

	r.Post("/api/v1/webhooks/casts", s.handleCastWebhook)

	r.Route("/api/v1/channels", func(r chi.Router) {
		r.Get("/", s.handleListChannels)
		r.Post("/", s.handleCreateChannel)

		r.Route("/{channelId}", func(r chi.Router) {
			r.Get("/", s.handleGetChannel)
			r.Put("/", s.handleUpdateChannel)

			r.Post("/simulations", s.handleSimulate)
			r.Get("/logs", s.handleListLogs)

			r.Get("/bans", s.handleListBans)
			r.Delete("/bans/{fid}", s.handleDeleteBan)
		})
	})

	s.router = r
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Failed to load configuration", "err", err)
	}
	if level, err := logger.ParseLevel(cfg.LogLevel); err == nil {
		logger.SetLevel(level)
	}

	a, err := app.New(context.Background(), cfg)
	if err != nil {
		logger.Fatal("Failed to create application", "err", err)
	}
	defer a.Close()

	server := NewServer(a)

	httpServer := &http.Server{
		Addr:         ":" + strconv.Itoa(cfg.Port),
		Handler:      server,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.EvaluationTimeout + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown handling
	go func() {
		logger.Info("Server starting", "port", cfg.Port, "persistent", a.DB != nil, "executeOnProtocol", cfg.ExecuteOnProtocol)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Server failed to start", "err", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down server...")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("Server shutdown error", "err", err)
	}
	if err := logger.Shutdown(ctx); err != nil {
		logger.Error("Logger shutdown error", "err", err)
	}

	logger.Info("Server stopped")
}
