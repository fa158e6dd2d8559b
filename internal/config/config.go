package config

import (
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	DatabaseURL string `env:"DATABASE_URL,required"`

	HTTPAddr     string        `env:"HTTP_ADDR" envDefault:":8087"`
	ReadTimeout  time.Duration `env:"HTTP_READ_TIMEOUT" envDefault:"5s"`
	WriteTimeout time.Duration `env:"HTTP_WRITE_TIMEOUT" envDefault:"30s"`
	IdleTimeout  time.Duration `env:"HTTP_IDLE_TIMEOUT" envDefault:"120s"`
	CORSOrigins  string        `env:"CORS_ORIGINS" envDefault:"*"`
	AuthToken    string        `env:"AUTH_TOKEN"`
	RateLimitRPS float64       `env:"RATE_LIMIT_RPS" envDefault:"5"`
	RateBurst    int           `env:"RATE_LIMIT_BURST" envDefault:"10"`

	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"` // "json" or "console"

	WindowMinutes      int `env:"WINDOW_MINUTES" envDefault:"20"`
	MaxTranscriptBytes int `env:"MAX_TRANSCRIPT_BYTES" envDefault:"1048576"`

	// Analysis backend. Empty URL disables the worker pool.
	AnalyzeURL       string        `env:"ANALYZE_URL"`
	AnalyzeModel     string        `env:"ANALYZE_MODEL" envDefault:"lesson-v2"`
	AnalyzeAPIKey    string        `env:"ANALYZE_API_KEY"`
	AnalyzeTimeout   time.Duration `env:"ANALYZE_TIMEOUT" envDefault:"60s"`
	AnalyzeWorkers   int           `env:"ANALYZE_WORKERS" envDefault:"3"`
	AnalyzeQueueSize int           `env:"ANALYZE_QUEUE_SIZE" envDefault:"256"`
	AutoAnalyze      bool          `env:"AUTO_ANALYZE" envDefault:"true"`

	// Pronunciation scoring backend. Empty URL disables scoring.
	ScoreURL      string        `env:"SCORE_URL"`
	ScoreAPIKey   string        `env:"SCORE_API_KEY"`
	ScoreTimeout  time.Duration `env:"SCORE_TIMEOUT" envDefault:"30s"`
	ScoreAccent   string        `env:"SCORE_ACCENT" envDefault:"us"`
	MaxAudioBytes int           `env:"MAX_AUDIO_BYTES" envDefault:"5242880"`

	// Live capture via MQTT. Empty broker URL disables it.
	MQTTBrokerURL      string        `env:"MQTT_BROKER_URL"`
	MQTTTopics         string        `env:"MQTT_TOPICS" envDefault:"classroom/#"`
	MQTTClientID       string        `env:"MQTT_CLIENT_ID" envDefault:"cl-engine"`
	MQTTUsername       string        `env:"MQTT_USERNAME"`
	MQTTPassword       string        `env:"MQTT_PASSWORD"`
	SessionIdleTimeout time.Duration `env:"SESSION_IDLE_TIMEOUT" envDefault:"10m"`

	// Raw MQTT archive.
	RawStore         bool   `env:"RAW_STORE" envDefault:"true"`
	RawExclude       string `env:"RAW_EXCLUDE" envDefault:"status"` // comma-separated message kinds
	RawRetentionDays int    `env:"RAW_RETENTION_DAYS" envDefault:"14"`

	// Drop-directory ingestion. Empty dir disables the watcher.
	WatchDir     string `env:"WATCH_DIR"`
	BackfillDays int    `env:"BACKFILL_DAYS" envDefault:"7"`

	// Room/course roster. Empty dir means no default objectives.
	RosterDir string `env:"ROSTER_DIR"`

	// Pronunciation clip storage.
	ClipDir string `env:"CLIP_DIR" envDefault:"./clips"`
	S3      S3Config
}

// S3Config configures the S3 clip backend. Bucket empty = local-only.
type S3Config struct {
	Endpoint       string        `env:"S3_ENDPOINT"` // custom endpoint for MinIO etc.
	Region         string        `env:"S3_REGION" envDefault:"us-east-1"`
	Bucket         string        `env:"S3_BUCKET"`
	AccessKey      string        `env:"S3_ACCESS_KEY"`
	SecretKey      string        `env:"S3_SECRET_KEY"`
	Prefix         string        `env:"S3_PREFIX"`
	ForcePathStyle bool          `env:"S3_FORCE_PATH_STYLE" envDefault:"true"`
	PresignExpiry  time.Duration `env:"S3_PRESIGN_EXPIRY" envDefault:"15m"`
	LocalCache     bool          `env:"S3_LOCAL_CACHE" envDefault:"true"`
}

// Enabled reports whether the S3 backend is configured.
func (c S3Config) Enabled() bool { return c.Bucket != "" }

// Overrides holds CLI flag values that take priority over env vars.
type Overrides struct {
	EnvFile       string
	HTTPAddr      string
	LogLevel      string
	LogFormat     string
	DatabaseURL   string
	MQTTBrokerURL string
	WatchDir      string
	ClipDir       string
}

// Load reads configuration from .env file, environment variables, and CLI overrides.
// Priority: CLI flags > environment variables > .env file > struct defaults.
func Load(overrides Overrides) (*Config, error) {
	// Load .env file (silent if missing)
	envFile := overrides.EnvFile
	if envFile == "" {
		envFile = ".env"
	}
	if _, err := os.Stat(envFile); err == nil {
		_ = godotenv.Load(envFile)
	}

	// Parse environment variables into config struct
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}

	// Apply CLI overrides (non-empty values win)
	if overrides.HTTPAddr != "" {
		cfg.HTTPAddr = overrides.HTTPAddr
	}
	if overrides.LogLevel != "" {
		cfg.LogLevel = overrides.LogLevel
	}
	if overrides.LogFormat != "" {
		cfg.LogFormat = overrides.LogFormat
	}
	if overrides.DatabaseURL != "" {
		cfg.DatabaseURL = overrides.DatabaseURL
	}
	if overrides.MQTTBrokerURL != "" {
		cfg.MQTTBrokerURL = overrides.MQTTBrokerURL
	}
	if overrides.WatchDir != "" {
		cfg.WatchDir = overrides.WatchDir
	}
	if overrides.ClipDir != "" {
		cfg.ClipDir = overrides.ClipDir
	}

	return cfg, nil
}
