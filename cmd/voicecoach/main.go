package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/voicecoach/voicecoach"
	"github.com/voicecoach/voicecoach/internal/analyzer"
	"github.com/voicecoach/voicecoach/internal/api"
	"github.com/voicecoach/voicecoach/internal/config"
	"github.com/voicecoach/voicecoach/internal/database"
	"github.com/voicecoach/voicecoach/internal/events"
	"github.com/voicecoach/voicecoach/internal/inbox"
	"github.com/voicecoach/voicecoach/internal/metrics"
	"github.com/voicecoach/voicecoach/internal/recordings"
	"github.com/voicecoach/voicecoach/internal/storage"
	"github.com/voicecoach/voicecoach/internal/transcribe"
)

var version = "dev"

func main() {
	startTime := time.Now()

	var overrides config.Overrides
	flag.StringVar(&overrides.EnvFile, "env-file", "", "path to .env file (default .env)")
	flag.StringVar(&overrides.HTTPAddr, "listen", "", "HTTP listen address (overrides HTTP_ADDR)")
	flag.StringVar(&overrides.LogLevel, "log-level", "", "log level (overrides LOG_LEVEL)")
	flag.StringVar(&overrides.DatabaseURL, "database-url", "", "Postgres URL (overrides DATABASE_URL)")
	flag.StringVar(&overrides.StoreBackend, "store", "", "metadata store: file or postgres (overrides STORE_BACKEND)")
	flag.StringVar(&overrides.DataDir, "data-dir", "", "library directory (overrides DATA_DIR)")
	flag.StringVar(&overrides.InboxDir, "inbox", "", "directory to watch for new recordings (overrides INBOX_DIR)")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(version)
		return
	}

	// Config
	cfg, err := config.Load(overrides)
	if err != nil {
		early := zerolog.New(os.Stderr).With().Timestamp().Logger()
		early.Fatal().Err(err).Msg("failed to load config")
	}

	// Logger
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	log := zerolog.New(os.Stdout).With().Timestamp().Logger().Level(level)
	log.Info().Str("version", version).Str("store", cfg.StoreBackend).Msg("voicecoach starting")

	// Context for graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Metadata store
	var (
		kv   recordings.KV
		db   *database.DB
		pool *pgxpool.Pool
	)
	switch cfg.StoreBackend {
	case "postgres":
		db, err = database.Connect(ctx, cfg.DatabaseURL, log)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to database")
		}
		defer db.Close()
		if err := db.Migrate(ctx); err != nil {
			log.Fatal().Err(err).Msg("database migration failed")
		}
		kv, pool = db, db.Pool
	default:
		fkv, err := recordings.NewFileKV(cfg.DataDir)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to open data directory")
		}
		kv = fkv
	}

	// Audio store
	audio, err := storage.New(cfg.S3, filepath.Join(cfg.DataDir, "audio"), log.With().Str("component", "storage").Logger())
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize audio storage")
	}

	// Provider and analysis pipeline
	client := transcribe.NewClient(cfg.AssemblyAIBaseURL, cfg.AssemblyAIKey, cfg.ProviderTimeout)
	poller := transcribe.NewPoller(client, transcribe.PollerOptions{
		Interval:    cfg.PollInterval,
		MaxAttempts: cfg.PollMaxAttempts,
		Deadline:    cfg.PollDeadline,
		Log:         log,
		OnAttempt: func(_ int, status transcribe.JobStatus) {
			metrics.PollRequestsTotal.WithLabelValues(string(status)).Inc()
		},
	})
	log.Info().
		Dur("interval", poller.Interval()).
		Int("max_attempts", poller.MaxAttempts()).
		Dur("deadline", poller.Deadline()).
		Msg("transcription polling configured")
	pipeline := analyzer.New(analyzer.Options{Provider: client, Poller: poller, Log: log})

	// Events
	var (
		sink events.Sink
		mqtt *events.MQTTSink
	)
	if cfg.MQTTBrokerURL != "" {
		mqtt, err = events.ConnectMQTT(events.MQTTOptions{
			BrokerURL:   cfg.MQTTBrokerURL,
			ClientID:    cfg.MQTTClientID,
			TopicPrefix: cfg.MQTTTopic,
			Username:    cfg.MQTTUsername,
			Password:    cfg.MQTTPassword,
			Log:         log,
		})
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to mqtt broker")
		}
		defer mqtt.Close()
		sink = mqtt
	}
	bus := events.NewBus(256)
	publisher := events.NewPublisher(bus, sink, log)

	// Library
	store := recordings.NewStore(kv, audio, log)
	library := recordings.NewService(store, kv, pipeline, publisher, log)

	prometheus.MustRegister(metrics.NewCollector(pool, pipeline, store))

	// Inbox
	health := api.HealthDeps{AudioType: audio.Type(), Analyzer: pipeline}
	if db != nil {
		health.DB = db
	}
	if mqtt != nil {
		health.MQTT = mqtt
	}
	if cfg.InboxDir != "" {
		watcher := inbox.New(library, cfg.InboxDir, log)
		if err := watcher.Start(ctx); err != nil {
			log.Fatal().Err(err).Str("dir", cfg.InboxDir).Msg("failed to start inbox watcher")
		}
		defer watcher.Stop()
		health.Inbox = watcher
	}

	// HTTP Server
	httpLog := log.With().Str("component", "http").Logger()
	srv := api.NewServer(api.ServerOptions{
		Config:      cfg,
		Analyzer:    pipeline,
		Library:     library,
		Events:      bus,
		Health:      health,
		OpenAPISpec: voicecoach.OpenAPISpec,
		Version:     version,
		StartTime:   startTime,
		Log:         httpLog,
	})

	// Start HTTP server in background
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	// Wait for shutdown signal or server error
	select {
	case <-ctx.Done():
		log.Info().Msg("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			log.Error().Err(err).Msg("http server error")
		}
	}

	// Graceful shutdown with 10s timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http server shutdown error")
	}

	log.Info().Msg("voicecoach stopped")
}
