// Command server runs the cards API: it loads configuration, opens the
// SQLite store, wires observability, starts the background deadline sweeper,
// and serves the HTTP API until interrupted.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/tbourn/go-cards-backend/internal/config"
	"github.com/tbourn/go-cards-backend/internal/events"
	httpapi "github.com/tbourn/go-cards-backend/internal/http"
	"github.com/tbourn/go-cards-backend/internal/observability"
	"github.com/tbourn/go-cards-backend/internal/repo"
	"github.com/tbourn/go-cards-backend/internal/services"
	"github.com/tbourn/go-cards-backend/internal/sweeper"
	"github.com/tbourn/go-cards-backend/internal/sysutil"
)

// version is injected at build time via -ldflags.
var version = "dev"

func main() {
	// Local development convenience; a missing .env is not an error.
	_ = godotenv.Load()

	cfg := config.MustLoad()

	sysutil.SetLogLevel(cfg.LogLevel)
	zerolog.TimeFieldFormat = time.RFC3339Nano
	if cfg.LogPretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}
	logger := log.With().Str("service", cfg.OTEL.ServiceName).Logger()

	gin.SetMode(cfg.GinMode)

	db, err := repo.OpenSQLite(cfg.DBPath)
	if err != nil {
		logger.Fatal().Err(err).Str("path", cfg.DBPath).Msg("failed to open database")
	}
	if err := repo.AutoMigrate(db); err != nil {
		logger.Fatal().Err(err).Msg("failed to run migrations")
	}
	logger.Info().Str("path", cfg.DBPath).Msg("database ready")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownOTel, err := observability.SetupOTel(ctx, cfg.OTEL, version)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to set up telemetry")
	}

	emitter := events.NewEmitter(db, logger, 0)

	ownSvc := &services.OwnershipService{
		DB:            db,
		Emitter:       emitter,
		Clock:         services.SystemClock{},
		Log:           logger,
		ClaimDeadline: cfg.Cards.ClaimDeadline,
		VaultOwnerID:  cfg.Cards.VaultOwnerID,
	}
	sw := sweeper.New(sweeper.Config{
		Interval:  cfg.Cards.SweepInterval,
		BatchSize: cfg.Cards.SweepBatch,
		Workers:   cfg.Cards.SweepWorkers,
	}, db, ownSvc, logger)
	go func() {
		if err := sw.Start(ctx); err != nil {
			logger.Error().Err(err).Msg("deadline sweeper exited with error")
		}
	}()

	engine := gin.New()
	httpapi.RegisterRoutes(engine, db, emitter, cfg, logger)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           engine,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}

	go func() {
		logger.Info().Str("addr", srv.Addr).Str("version", version).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("server stopped unexpectedly")
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("http shutdown failed")
	}
	if err := sw.Stop(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("sweeper shutdown failed")
	}
	emitter.Close()
	if err := shutdownOTel(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("telemetry shutdown failed")
	}
	logger.Info().Msg("shutdown complete")
}
