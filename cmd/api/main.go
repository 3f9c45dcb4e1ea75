package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/TaranshG/Receipt-Identifer/internal/api/handlers"
	"github.com/TaranshG/Receipt-Identifer/internal/api/middleware"
	"github.com/TaranshG/Receipt-Identifer/internal/app"
	"github.com/TaranshG/Receipt-Identifer/internal/config"
	"github.com/TaranshG/Receipt-Identifer/internal/logger"
)

func main() {
	configPath := flag.String("config", "", "Path to YAML config (or set RECEIPTID_CONFIG)")
	port := flag.Int("port", 0, "HTTP server port (overrides config)")
	flag.Parse()

	cfg, err := config.Load(*configPath, os.Getenv)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	if *port != 0 {
		cfg.Server.Port = *port
	}

	log, err := app.Logger(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}

	ctx := logger.WithContext(context.Background(), log)

	a, err := app.Build(ctx, cfg, app.Options{Ledger: true})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize service")
	}
	defer a.Close()

	receiptsHandler := handlers.NewReceiptsHandler(a.Service, log)

	r := chi.NewRouter()
	r.Use(
		middleware.Recovery(log),
		middleware.RequestID,
		middleware.Logger(log),
		middleware.CORS(cfg.Server.AllowedOrigin),
	)
	receiptsHandler.Routes(r)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		log.Info().
			Int("port", cfg.Server.Port).
			Str("network", a.Service.Network()).
			Str("store", cfg.Store.Backend).
			Msg("Starting API server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server exited")
}
