// Package main provides the entry point for the goal matching worker.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/thebtf/goalmatch/internal/config"
	gormdb "github.com/thebtf/goalmatch/internal/db/gorm"
	"github.com/thebtf/goalmatch/internal/embedding"
	"github.com/thebtf/goalmatch/internal/matcher"
	"github.com/thebtf/goalmatch/internal/similarity"
	"github.com/thebtf/goalmatch/internal/sweep"
	"github.com/thebtf/goalmatch/internal/worker"
)

var Version = "dev"

func main() {
	// Setup logging
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	log.Info().
		Str("version", Version).
		Msg("Starting goalmatch worker")

	cfg := config.Get()

	// Database
	store, err := gormdb.NewStore(gormdb.Config{
		DSN:      cfg.DatabaseDSN,
		MaxConns: cfg.MaxConns,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open database")
	}
	goalStore := gormdb.NewGoalStore(store)
	scoreStore := gormdb.NewScoreStore(store)

	// Embedding provider and similarity engine
	embedSvc, err := embedding.NewService(log.Logger)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create embedding service")
	}
	engine := similarity.NewEngine(embedSvc, log.Logger)

	// Matching service
	matchSvc := matcher.NewService(goalStore, engine, log.Logger)

	// Background cache sweep
	sweepSvc := sweep.NewService(goalStore, scoreStore, store, engine, cfg, log.Logger)
	sweepCtx, cancelSweep := context.WithCancel(context.Background())
	go sweepSvc.Start(sweepCtx)

	// HTTP server
	svc := worker.NewService(Version, matchSvc, sweepSvc, log.Logger)
	if err := svc.Start(); err != nil {
		log.Fatal().Err(err).Msg("Failed to start service")
	}

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Received shutdown signal")

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := svc.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Shutdown error")
	}

	sweepSvc.Stop()
	cancelSweep()
	sweepSvc.Wait()

	if err := embedSvc.Close(); err != nil {
		log.Error().Err(err).Msg("Embedding service close error")
	}
	if err := store.Close(); err != nil {
		log.Error().Err(err).Msg("Database close error")
	}

	log.Info().Msg("Worker shutdown complete")
}
