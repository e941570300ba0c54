package main

import (
	"context"
	"fmt"
	"math"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/gosuda/sentinel/internal/alert"
	"github.com/gosuda/sentinel/internal/config"
	"github.com/gosuda/sentinel/internal/credential"
	"github.com/gosuda/sentinel/internal/engine"
	"github.com/gosuda/sentinel/internal/ledger"
	"github.com/gosuda/sentinel/internal/notify"
	"github.com/gosuda/sentinel/internal/server"
	"github.com/gosuda/sentinel/internal/session"
	"github.com/gosuda/sentinel/internal/store/postgres"
	redisstore "github.com/gosuda/sentinel/internal/store/redis"
	"github.com/gosuda/sentinel/internal/threat"
	"github.com/gosuda/sentinel/internal/window"
)

func main() {
	if err := run(); err != nil {
		log.Fatal().Err(err).Msg("startup failed")
	}
}

func run() error {
	// Initialize structured logging from environment.
	logLevel := os.Getenv("SENTINEL_LOG_LEVEL")
	level, parseErr := zerolog.ParseLevel(logLevel)
	if parseErr != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	logFormat := os.Getenv("SENTINEL_LOG_FORMAT")
	if logFormat == "text" {
		log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	} else {
		log.Logger = zerolog.New(os.Stdout).With().Timestamp().Logger()
	}

	ctx := context.Background()

	// Load configuration from environment.
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	if cfg.Database.MaxConns < 0 || cfg.Database.MaxConns > math.MaxInt32 {
		return fmt.Errorf("database max_conns %d out of int32 range", cfg.Database.MaxConns)
	}

	// Connect to PostgreSQL.
	store, err := postgres.New(ctx, cfg.Database.DSN(), int32(cfg.Database.MaxConns)) //nolint:gosec // bounds checked above
	if err != nil {
		return err
	}
	defer store.Close()

	// Connect to Redis.
	pubsub, err := redisstore.New(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		return err
	}
	defer pubsub.Close()

	// Ledger: durable fallback journal feeding the hash chain.
	fallback := ledger.NewFallback(cfg.Ledger.FallbackPath, store.Ledger(), log.Logger)

	chainCfg := ledger.DefaultConfig()
	chainCfg.WriteTimeout = cfg.Ledger.WriteTimeout
	chain, err := ledger.NewChain(ctx, store.Ledger(), fallback, chainCfg, log.Logger)
	if err != nil {
		return fmt.Errorf("ledger chain: %w", err)
	}

	// Sliding-window tracker shared by the threshold detectors.
	tracker := window.New(24*time.Hour, 10000)

	// Notification fan-out: register whichever channels are configured.
	senders := notify.NewRegistry()
	if cfg.Notify.SlackWebhookURL != "" {
		senders.Register(notify.NewSlackSender(cfg.Notify.SlackWebhookURL))
	}
	if cfg.Notify.WebhookURL != "" {
		senders.Register(notify.NewWebhookSender(cfg.Notify.WebhookURL, cfg.Notify.Timeout))
	}
	notifier := notify.New(senders, log.Logger)

	// Alert dispatcher: severity floor, repeat escalation, live feed.
	dispatcher := alert.NewDispatcher(
		store.Incidents(),
		tracker,
		notifier,
		pubsub,
		alert.DefaultConfig(),
		log.Logger,
	)

	// Threat detectors feed the dispatcher and record blocked requests.
	detector := threat.NewDetector(tracker, dispatcher, chain, threat.DefaultConfig(), log.Logger)

	// Session registry with concurrency limits and expiry sweeps.
	sessionCfg := session.DefaultConfig(cfg.Session.JWTSecret)
	sessionCfg.MaxConcurrent = cfg.Session.MaxConcurrent
	sessionCfg.IdleTimeout = cfg.Session.IdleTimeout
	sessionCfg.AbsoluteTimeout = cfg.Session.AbsoluteTimeout
	sessionCfg.WarnThreshold = cfg.Session.WarnThreshold
	sessionCfg.SweepInterval = cfg.Session.SweepInterval
	registry := session.NewRegistry(store.Sessions(), chain, sessionCfg, log.Logger)

	// Credential policy with optional breach corpus lookups.
	var breach credential.BreachClient
	if cfg.Breach.Enabled {
		breach = credential.NewRangeClient(cfg.Breach.BaseURL, cfg.Breach.Timeout)
	}
	creds := credential.NewEngine(store.Credentials(), breach, chain, credential.DefaultConfig(), log.Logger)

	// Engine facade over all of the above.
	eng := engine.New(
		chain,
		fallback,
		tracker,
		registry,
		detector,
		creds,
		dispatcher,
		store.Sessions(),
		store.Ledger(),
		store.Incidents(),
		engine.DefaultConfig(),
		log.Logger,
	)

	// Graceful shutdown on SIGINT / SIGTERM.
	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Background jobs: session sweeps, window pruning, fallback replay,
	// metric rollups, scheduled integrity scans.
	go eng.Run(ctx)

	// Create HTTP server with all routes wired.
	srv := server.New(cfg, eng, pubsub)

	go func() {
		log.Info().Str("addr", cfg.Server.Addr).Msg("starting server")
		if startErr := srv.Start(ctx); startErr != nil {
			log.Error().Err(startErr).Msg("server error")
		}
	}()

	// Block until shutdown signal.
	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if shutdownErr := srv.Shutdown(shutdownCtx); shutdownErr != nil {
		return shutdownErr
	}

	log.Info().Msg("stopped")
	return nil
}
