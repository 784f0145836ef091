package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/adi-253/parley/backend/internal/config"
	"github.com/adi-253/parley/backend/internal/handlers"
	"github.com/adi-253/parley/backend/internal/models"
	"github.com/adi-253/parley/backend/internal/presence"
	"github.com/adi-253/parley/backend/internal/services"
	"github.com/adi-253/parley/backend/internal/websocket"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/mama165/sdk-go/logs"
	"github.com/spf13/cobra"
)

const shutdownTimeout = 10 * time.Second

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the relay",
		Long: `Start the HTTP server exposing the WebSocket relay at /ws,
the health check and the polling fallback endpoints.

Configuration is read from the environment and an optional .env file.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve()
		},
	}
}

// serve wires every component and blocks until SIGINT or SIGTERM.
// Deferred cleanups run before returning so the store is always closed.
func serve() error {
	// 1. Configuration & Logger
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	log := logs.GetLoggerFromString(cfg.LogLevel)
	if !cfg.DotEnvLoaded {
		log.Debug("No .env file found, using environment variables")
	}

	// 2. Context & Signals
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 3. History store
	messageStore, closeStore, err := openStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		log.Info("Closing history store...", "driver", cfg.StoreDriver)
		if err := closeStore(); err != nil {
			log.Warn("Closing history store failed", "error", err)
		}
	}()

	history := services.NewHistoryService(messageStore, log, cfg.HistoryLimit, cfg.PersistenceTimeout,
		models.Message{Sender: cfg.WelcomeSender, Body: cfg.WelcomeMessage})
	registry := presence.NewRegistry()

	// 4. Relay
	hub := websocket.NewHub(history, registry, log, websocket.Options{
		SendBufferSize: cfg.SendBufferSize,
		MaxMessageSize: int64(cfg.MaxMessageSize),
		MaxBodyLength:  cfg.MaxBodyLength,
	})
	go hub.Run(ctx)

	// 5. HTTP
	server := &http.Server{
		Addr:              cfg.Address(),
		Handler:           newRouter(cfg, hub, history, registry, log),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errChan := make(chan error, 1)
	go func() {
		log.Info("Parley relay starting", "address", server.Addr, "driver", cfg.StoreDriver)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("http server error: %w", err)
		}
	}()

	// 6. Wait for Stop or Error
	select {
	case <-ctx.Done():
		log.Info("Shutting down gracefully...")
	case err := <-errChan:
		stop()
		<-hub.Done()
		return err
	}

	// 7. Final Cleanup
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Warn("HTTP shutdown incomplete", "error", err)
	}
	<-hub.Done()
	log.Info("Program stopped cleanly")
	return nil
}

func newRouter(cfg *config.Config, hub *websocket.Hub, history *services.HistoryService,
	registry *presence.Registry, log *slog.Logger) http.Handler {
	r := chi.NewRouter()

	// Middleware stack
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)

	origins := cfg.AllowedOrigins()
	log.Info("CORS allowed origins", "origins", origins)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", handlers.NewHealthHandler(cfg.StoreDriver, hub.ClientCount).HealthCheck)

	r.Route("/api", func(r chi.Router) {
		r.Get("/messages", handlers.NewMessageHandler(history, log).GetMessages)
		r.Get("/presence", handlers.NewPresenceHandler(registry).ListActive)
	})

	// WebSocket relay
	r.Get("/ws", websocket.NewHandler(hub).ServeWS)
	return r
}
