package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/org/servercatalog/internal/api"
	"github.com/org/servercatalog/internal/audit"
	"github.com/org/servercatalog/internal/catalog"
	"github.com/org/servercatalog/internal/config"
)

func main() {
	// Configure zerolog
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	cfgFile := "config.yaml"
	if v := os.Getenv("CATALOG_CONFIG"); v != "" {
		cfgFile = v
	}
	cfg, err := config.Load(cfgFile)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	logger, err := audit.NewLogger(cfg.LogDir)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open security logs")
	}

	repo := catalog.NewMemoryStore(cfg.PublicBaseURL)
	srv, err := api.NewServer(cfg, repo, logger)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build server")
	}

	bgCtx, stopBackground := context.WithCancel(context.Background())
	go srv.RunBackground(bgCtx)

	// Handle graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	log.Info().
		Str("addr", cfg.ListenAddr).
		Str("environment", cfg.Environment).
		Msg("server started")
	<-quit

	log.Info().Msg("shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("shutdown error")
	}
	stopBackground()
	if err := logger.Close(); err != nil {
		log.Error().Err(err).Msg("closing security logs")
	}
	log.Info().Msg("server stopped")
}
