package config

import (
	"os"
	"testing"
	"time"
)

func TestLoad(t *testing.T) {
	cleanup := setEnvs(t, map[string]string{
		"DATABASE_URL": "postgres://localhost/test",
	})
	defer cleanup()

	t.Run("defaults", func(t *testing.T) {
		cfg, err := Load(Overrides{EnvFile: "nonexistent.env"})
		if err != nil {
			t.Fatalf("Load: %v", err)
		}
		if cfg.HTTPAddr != ":8087" {
			t.Errorf("HTTPAddr = %q, want :8087", cfg.HTTPAddr)
		}
		if cfg.LogLevel != "info" {
			t.Errorf("LogLevel = %q, want info", cfg.LogLevel)
		}
		if cfg.WindowMinutes != 20 {
			t.Errorf("WindowMinutes = %d, want 20", cfg.WindowMinutes)
		}
		if cfg.MaxTranscriptBytes != 1048576 {
			t.Errorf("MaxTranscriptBytes = %d, want 1048576", cfg.MaxTranscriptBytes)
		}
		if cfg.MQTTTopics != "classroom/#" {
			t.Errorf("MQTTTopics = %q, want classroom/#", cfg.MQTTTopics)
		}
		if cfg.MQTTClientID != "cl-engine" {
			t.Errorf("MQTTClientID = %q, want cl-engine", cfg.MQTTClientID)
		}
		if cfg.SessionIdleTimeout != 10*time.Minute {
			t.Errorf("SessionIdleTimeout = %v, want 10m", cfg.SessionIdleTimeout)
		}
		if !cfg.RawStore {
			t.Error("RawStore = false, want true")
		}
		if cfg.RawExclude != "status" {
			t.Errorf("RawExclude = %q, want status", cfg.RawExclude)
		}
		if cfg.AnalyzeModel != "lesson-v2" {
			t.Errorf("AnalyzeModel = %q, want lesson-v2", cfg.AnalyzeModel)
		}
		if cfg.AnalyzeWorkers != 3 {
			t.Errorf("AnalyzeWorkers = %d, want 3", cfg.AnalyzeWorkers)
		}
		if !cfg.AutoAnalyze {
			t.Error("AutoAnalyze = false, want true")
		}
		if cfg.ScoreAccent != "us" {
			t.Errorf("ScoreAccent = %q, want us", cfg.ScoreAccent)
		}
		if cfg.ClipDir != "./clips" {
			t.Errorf("ClipDir = %q, want ./clips", cfg.ClipDir)
		}
		if cfg.S3.Enabled() {
			t.Error("S3 enabled without a bucket")
		}
	})

	t.Run("cli_overrides_take_priority", func(t *testing.T) {
		cfg, err := Load(Overrides{
			EnvFile:       "nonexistent.env",
			HTTPAddr:      ":9090",
			LogLevel:      "debug",
			DatabaseURL:   "postgres://override/db",
			MQTTBrokerURL: "tcp://override:1883",
			WatchDir:      "/tmp/drop",
			ClipDir:       "/tmp/clips",
		})
		if err != nil {
			t.Fatalf("Load: %v", err)
		}
		if cfg.HTTPAddr != ":9090" {
			t.Errorf("HTTPAddr = %q, want :9090", cfg.HTTPAddr)
		}
		if cfg.LogLevel != "debug" {
			t.Errorf("LogLevel = %q, want debug", cfg.LogLevel)
		}
		if cfg.DatabaseURL != "postgres://override/db" {
			t.Errorf("DatabaseURL = %q, want override", cfg.DatabaseURL)
		}
		if cfg.MQTTBrokerURL != "tcp://override:1883" {
			t.Errorf("MQTTBrokerURL = %q, want override", cfg.MQTTBrokerURL)
		}
		if cfg.WatchDir != "/tmp/drop" {
			t.Errorf("WatchDir = %q, want /tmp/drop", cfg.WatchDir)
		}
		if cfg.ClipDir != "/tmp/clips" {
			t.Errorf("ClipDir = %q, want /tmp/clips", cfg.ClipDir)
		}
	})

	t.Run("env_vars_read", func(t *testing.T) {
		extra := setEnvs(t, map[string]string{
			"S3_BUCKET":       "lesson-clips",
			"ANALYZE_URL":     "https://analysis.example.com/v1",
			"WINDOW_MINUTES":  "15",
			"SCORE_TIMEOUT":   "45s",
			"MQTT_BROKER_URL": "tcp://broker:1883",
		})
		defer extra()

		cfg, err := Load(Overrides{EnvFile: "nonexistent.env"})
		if err != nil {
			t.Fatalf("Load: %v", err)
		}
		if cfg.DatabaseURL != "postgres://localhost/test" {
			t.Errorf("DatabaseURL = %q, want postgres://localhost/test", cfg.DatabaseURL)
		}
		if !cfg.S3.Enabled() || cfg.S3.Bucket != "lesson-clips" {
			t.Errorf("S3.Bucket = %q, want lesson-clips", cfg.S3.Bucket)
		}
		if cfg.AnalyzeURL != "https://analysis.example.com/v1" {
			t.Errorf("AnalyzeURL = %q", cfg.AnalyzeURL)
		}
		if cfg.WindowMinutes != 15 {
			t.Errorf("WindowMinutes = %d, want 15", cfg.WindowMinutes)
		}
		if cfg.ScoreTimeout != 45*time.Second {
			t.Errorf("ScoreTimeout = %v, want 45s", cfg.ScoreTimeout)
		}
		if cfg.MQTTBrokerURL != "tcp://broker:1883" {
			t.Errorf("MQTTBrokerURL = %q, want tcp://broker:1883", cfg.MQTTBrokerURL)
		}
	})

	t.Run("empty_overrides_use_env", func(t *testing.T) {
		cfg, err := Load(Overrides{EnvFile: "nonexistent.env"})
		if err != nil {
			t.Fatalf("Load: %v", err)
		}
		if cfg.DatabaseURL != "postgres://localhost/test" {
			t.Errorf("DatabaseURL = %q, want env value", cfg.DatabaseURL)
		}
	})
}

func TestLoadMissingRequired(t *testing.T) {
	cleanup := setEnvs(t, map[string]string{
		"DATABASE_URL": "",
	})
	defer cleanup()
	os.Unsetenv("DATABASE_URL")

	_, err := Load(Overrides{EnvFile: "nonexistent.env"})
	if err == nil {
		t.Error("expected error when DATABASE_URL is missing")
	}
}

// setEnvs sets environment variables and returns a cleanup function.
func setEnvs(t *testing.T, envs map[string]string) func() {
	t.Helper()
	originals := make(map[string]string)
	unset := make([]string, 0)

	for k, v := range envs {
		if orig, ok := os.LookupEnv(k); ok {
			originals[k] = orig
		} else {
			unset = append(unset, k)
		}
		os.Setenv(k, v)
	}

	return func() {
		for k, v := range originals {
			os.Setenv(k, v)
		}
		for _, k := range unset {
			os.Unsetenv(k)
		}
	}
}
