package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	clengine "github.com/classlens/cl-engine"
	"github.com/classlens/cl-engine/internal/analyze"
	"github.com/classlens/cl-engine/internal/api"
	"github.com/classlens/cl-engine/internal/config"
	"github.com/classlens/cl-engine/internal/database"
	"github.com/classlens/cl-engine/internal/ingest"
	"github.com/classlens/cl-engine/internal/metrics"
	"github.com/classlens/cl-engine/internal/mqttclient"
	"github.com/classlens/cl-engine/internal/roster"
	"github.com/classlens/cl-engine/internal/score"
	"github.com/classlens/cl-engine/internal/storage"
)

var version = "dev"

func main() {
	startTime := time.Now()

	var (
		envFile     = flag.String("env", "", "path to .env file (default .env)")
		addr        = flag.String("addr", "", "HTTP listen address (overrides HTTP_ADDR)")
		logLevel    = flag.String("log-level", "", "log level (overrides LOG_LEVEL)")
		logFormat   = flag.String("log-format", "", "log format, json or console (overrides LOG_FORMAT)")
		dbURL       = flag.String("db", "", "database URL (overrides DATABASE_URL)")
		mqttURL     = flag.String("mqtt", "", "MQTT broker URL (overrides MQTT_BROKER_URL)")
		watchDir    = flag.String("watch-dir", "", "transcript drop directory (overrides WATCH_DIR)")
		clipDir     = flag.String("clip-dir", "", "pronunciation clip directory (overrides CLIP_DIR)")
		showVersion = flag.Bool("version", false, "print version and exit")
	)
	flag.Parse()

	if *showVersion {
		fmt.Println("cl-engine", version)
		return
	}

	cfg, err := config.Load(config.Overrides{
		EnvFile:       *envFile,
		HTTPAddr:      *addr,
		LogLevel:      *logLevel,
		LogFormat:     *logFormat,
		DatabaseURL:   *dbURL,
		MQTTBrokerURL: *mqttURL,
		WatchDir:      *watchDir,
		ClipDir:       *clipDir,
	})
	if err != nil {
		early := zerolog.New(os.Stderr).With().Timestamp().Logger()
		early.Fatal().Err(err).Msg("failed to load config")
	}

	log := newLogger(cfg)
	log.Info().Str("version", version).Msg("cl-engine starting")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Database
	db, err := database.Connect(ctx, cfg.DatabaseURL, log.With().Str("component", "database").Logger())
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	if err := db.InitSchema(ctx, clengine.SchemaSQL); err != nil {
		log.Fatal().Err(err).Msg("failed to initialize schema")
	}
	if err := db.Migrate(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to run migrations")
	}

	// Room/course roster
	var rost *roster.Roster
	if cfg.RosterDir != "" {
		var dropped int
		rost, dropped, err = roster.Load(cfg.RosterDir)
		if err != nil {
			log.Fatal().Err(err).Str("dir", cfg.RosterDir).Msg("failed to load roster")
		}
		courses, rooms := rost.Counts()
		evt := log.Info().Int("courses", courses).Int("rooms", rooms)
		if dropped > 0 {
			evt = evt.Int("dropped_csv_rows", dropped)
		}
		evt.Msg("roster loaded")
	}

	// Pronunciation clip storage, only needed when scoring is on.
	var clips storage.ClipStore
	if cfg.ScoreURL != "" {
		clips, err = storage.New(cfg.S3, cfg.ClipDir, log)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to initialize clip store")
		}
		log.Info().Str("type", clips.Type()).Msg("clip store ready")
	}

	// The pipeline is created after the pool and score service but both
	// publish through it; the closures resolve at call time.
	var pipeline *ingest.Pipeline

	// Analysis worker pool
	var pool *analyze.Pool
	if cfg.AnalyzeURL != "" {
		provider := analyze.NewLessonAPI(cfg.AnalyzeURL, cfg.AnalyzeModel, cfg.AnalyzeAPIKey, cfg.AnalyzeTimeout, cfg.MaxTranscriptBytes)
		pool = analyze.NewPool(analyze.PoolOptions{
			Store:     db,
			Provider:  provider,
			Workers:   cfg.AnalyzeWorkers,
			QueueSize: cfg.AnalyzeQueueSize,
			Timeout:   cfg.AnalyzeTimeout,
			PublishEvent: func(eventType string, transcriptID int64, payload map[string]any) {
				if pipeline != nil {
					pipeline.PublishAnalysisEvent(eventType, transcriptID, payload)
				}
			},
			Log: log.With().Str("component", "analyze").Logger(),
		})
	} else {
		log.Info().Msg("ANALYZE_URL not set, analysis disabled")
	}

	// Pronunciation scoring
	var scorer *score.Service
	if cfg.ScoreURL != "" {
		scorer = score.NewService(score.ServiceOptions{
			Store:         db,
			Scorer:        score.NewSpeechAPI(cfg.ScoreURL, cfg.ScoreAPIKey, cfg.ScoreTimeout),
			Clips:         clips,
			DefaultAccent: cfg.ScoreAccent,
			MaxAudioBytes: cfg.MaxAudioBytes,
			Timeout:       cfg.ScoreTimeout,
			PublishEvent: func(eventType string, payload map[string]any) {
				if pipeline != nil {
					pipeline.PublishEvent(ingest.EventData{Type: eventType, Payload: payload})
				}
			},
			Log: log.With().Str("component", "score").Logger(),
		})
	} else {
		log.Info().Msg("SCORE_URL not set, scoring disabled")
	}

	// Ingest pipeline
	pipeline = ingest.NewPipeline(ingest.PipelineOptions{
		DB:                 db,
		Pool:               pool,
		Roster:             rost,
		Clips:              clips,
		WindowMinutes:      cfg.WindowMinutes,
		MaxTranscriptBytes: cfg.MaxTranscriptBytes,
		AutoAnalyze:        cfg.AutoAnalyze,
		RawStore:           cfg.RawStore,
		RawExclude:         cfg.RawExclude,
		RawRetentionDays:   cfg.RawRetentionDays,
		SessionIdleTimeout: cfg.SessionIdleTimeout,
		Log:                log,
	})
	pipeline.Start()

	if pool != nil {
		pool.Start()
	}

	// Live capture via MQTT
	var mqtt *mqttclient.Client
	if cfg.MQTTBrokerURL != "" {
		mqtt, err = mqttclient.Connect(mqttclient.Options{
			BrokerURL: cfg.MQTTBrokerURL,
			ClientID:  cfg.MQTTClientID,
			Topics:    cfg.MQTTTopics,
			Username:  cfg.MQTTUsername,
			Password:  cfg.MQTTPassword,
			Log:       log,
		})
		if err != nil {
			log.Fatal().Err(err).Str("broker", cfg.MQTTBrokerURL).Msg("failed to connect to mqtt broker")
		}
		mqtt.SetMessageHandler(pipeline.HandleMessage)
	} else {
		log.Info().Msg("MQTT_BROKER_URL not set, live capture disabled")
	}

	// Drop-directory watcher
	var watcher *ingest.FileWatcher
	if cfg.WatchDir != "" {
		watcher = ingest.NewFileWatcher(pipeline, cfg.WatchDir, cfg.BackfillDays)
		if err := watcher.Start(); err != nil {
			log.Fatal().Err(err).Str("dir", cfg.WatchDir).Msg("failed to start file watcher")
		}
	} else {
		log.Info().Msg("WATCH_DIR not set, drop-directory ingestion disabled")
	}

	prometheus.MustRegister(metrics.NewCollector(db.Pool, pipeline))

	// HTTP server
	srv := api.NewServer(api.ServerOptions{
		Config:    cfg,
		DB:        db,
		MQTT:      mqtt,
		Live:      pipeline,
		Ingester:  pipeline,
		Pool:      pool,
		Scorer:    scorer,
		Clips:     clips,
		Version:   version,
		StartTime: startTime,
		Log:       log.With().Str("component", "http").Logger(),
	})

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			log.Error().Err(err).Msg("http server error")
		}
	}

	// Graceful shutdown: stop taking requests, stop sources, drain the
	// pool, then flush the pipeline.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http server shutdown error")
	}
	if watcher != nil {
		watcher.Stop()
	}
	if mqtt != nil {
		mqtt.Close()
	}
	if pool != nil {
		pool.Stop()
	}
	pipeline.Stop()

	log.Info().Msg("cl-engine stopped")
}

// newLogger builds the process logger from LOG_LEVEL and LOG_FORMAT.
func newLogger(cfg *config.Config) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	var log zerolog.Logger
	if cfg.LogFormat == "console" {
		log = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.TimeOnly})
	} else {
		log = zerolog.New(os.Stdout)
	}
	return log.With().Timestamp().Logger().Level(level)
}
