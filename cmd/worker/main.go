package main

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"vidflex-worker-go/internal/api"
	"vidflex-worker-go/internal/config"
	"vidflex-worker-go/internal/framestore"
	"vidflex-worker-go/internal/logging"
	"vidflex-worker-go/internal/metrics"
	"vidflex-worker-go/internal/services/capture"
	"vidflex-worker-go/internal/services/detect"
	"vidflex-worker-go/internal/services/messaging"
	"vidflex-worker-go/internal/store"
)

func main() {
	// Setup structured logging
	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	// Load configuration
	cfg := config.Load()

	// Set log level
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		log.Warn().Str("level", cfg.LogLevel).Msg("Invalid log level, using info")
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	// Tee logs into the embedded Logdy UI when enabled
	if cfg.LogdyEnabled {
		if logdyWriter, _, err := logging.StartLogdy(cfg); err == nil {
			console := zerolog.ConsoleWriter{Out: os.Stderr}
			log.Logger = log.Output(io.MultiWriter(console, logdyWriter))
		}
	}

	log.Info().
		Str("worker_id", cfg.WorkerID).
		Str("version", cfg.Version).
		Str("environment", cfg.Environment).
		Int("port", cfg.Port).
		Msg("Starting Vidflex capture worker")

	db, err := store.Open(cfg.DatabasePath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open database")
	}

	configStore := store.NewConfigStore(db)
	clipStore := store.NewClipStore(db)
	detectionStore := store.NewDetectionStore(db)

	if err := detectionStore.BootstrapEntityTypes(cfg.EntityTypesPath); err != nil {
		log.Fatal().Err(err).Msg("Failed to bootstrap entity types")
	}

	messageSvc, err := messaging.NewService(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to NATS")
	}

	frameStore, err := framestore.NewNatsStore(messageSvc.Conn(), cfg.FrameBucket)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to bind frame store bucket")
	}

	codes, err := detectionStore.EntityCodes()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load entity types")
	}

	m := metrics.New()
	captureSvc := capture.NewService(cfg, configStore, clipStore, frameStore, messageSvc, m)
	detectSvc := detect.NewService(cfg, configStore, detectionStore, frameStore,
		detect.NewPlaceholderDetector(codes), messageSvc, m)

	// Configs active before a restart are surfaced through list output but
	// stay stopped until the operator starts them again.
	if err := captureSvc.LoadActiveConfigs(); err != nil {
		log.Warn().Err(err).Msg("Failed to load previously active configs")
	}

	server := api.NewServer(cfg, captureSvc, detectSvc, m)

	// Start server in goroutine
	go func() {
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Server failed to start")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutdown signal received")

	// Graceful shutdown
	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	if err := detectSvc.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Detection shutdown failed")
	}
	if err := captureSvc.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Capture shutdown failed")
	}
	if err := messageSvc.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Messaging shutdown failed")
	}

	log.Info().Msg("Shutdown complete")
}
