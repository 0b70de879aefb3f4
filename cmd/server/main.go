// Growen AI orchestration core.
//
// Serves the customer chat over WebSocket, routes generation between the
// local and hosted model providers, and answers product and price questions
// through the internal tool protocol with a local resolver fallback.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/BioTRaX/Growen-sub001/internal/config"
	"github.com/BioTRaX/Growen-sub001/pkg/server"
)

func main() {
	cfg, err := config.Load()
	setupLogging(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}

	log.Info().Str("version", cfg.Version).Msg("🌱 Growen AI core starting...")

	ctx := context.Background()
	srv, err := server.NewWithConfig(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize server")
	}
	defer srv.Close(ctx)

	// WebSocket sessions manage their own deadlines, so no write timeout here.
	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", srv.Port),
		Handler:           srv.Handler,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	// Graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		log.Info().Msg("🛑 Shutting down gracefully...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		httpServer.Shutdown(shutdownCtx)
	}()

	log.Info().
		Int("port", srv.Port).
		Msg("🔥 Growen AI core is ready!")

	if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		log.Fatal().Err(err).Msg("Server failed")
	}
}

// setupLogging configures the global logger. cfg may be nil when the
// configuration failed to load.
func setupLogging(cfg *config.Config) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	format, level := "console", "info"
	if cfg != nil {
		format, level = cfg.LogFormat, cfg.LogLevel
	}
	if format == "console" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
}
