// Package config loads runtime configuration from the environment. A .env
// file in the working directory is honoured for local development; real
// deployments set plain environment variables.
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds every tunable the server reads at startup.
type Config struct {
	ListenAddr    string
	RedisAddr     string
	PostgresDSN   string // empty disables the report archive
	NATSURL       string // empty disables cross-replica fanout
	ClassifierURL string // empty disables gender verification

	Cooldown         time.Duration // re-queue cooldown after a pairing
	DailyFilterLimit int           // specific-gender pairings per UTC day
	ReportThreshold  int           // reports that trigger an auto-ban
	BanDuration      time.Duration

	WriteTimeout      time.Duration
	HeartbeatInterval time.Duration
	HeartbeatTimeout  time.Duration
}

// Default returns the production defaults.
func Default() Config {
	return Config{
		ListenAddr:        ":8080",
		RedisAddr:         "localhost:6379",
		Cooldown:          30 * time.Second,
		DailyFilterLimit:  5,
		ReportThreshold:   3,
		BanDuration:       24 * time.Hour,
		WriteTimeout:      10 * time.Second,
		HeartbeatInterval: 30 * time.Second,
		HeartbeatTimeout:  10 * time.Second,
	}
}

// Load reads the environment (and an optional .env file) over the defaults.
func Load() Config {
	_ = godotenv.Load()

	cfg := Default()
	if v := os.Getenv("LISTEN_ADDR"); v != "" {
		cfg.ListenAddr = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.RedisAddr = v
	}
	if v := os.Getenv("POSTGRES_DSN"); v != "" {
		cfg.PostgresDSN = v
	}
	if v := os.Getenv("NATS_URL"); v != "" {
		cfg.NATSURL = v
	}
	if v := os.Getenv("CLASSIFIER_URL"); v != "" {
		cfg.ClassifierURL = v
	}
	cfg.Cooldown = durationEnv("MATCH_COOLDOWN", cfg.Cooldown)
	cfg.DailyFilterLimit = intEnv("DAILY_FILTER_LIMIT", cfg.DailyFilterLimit)
	cfg.ReportThreshold = intEnv("REPORT_THRESHOLD", cfg.ReportThreshold)
	cfg.BanDuration = durationEnv("BAN_DURATION", cfg.BanDuration)
	cfg.WriteTimeout = durationEnv("WRITE_TIMEOUT", cfg.WriteTimeout)
	cfg.HeartbeatInterval = durationEnv("HEARTBEAT_INTERVAL", cfg.HeartbeatInterval)
	cfg.HeartbeatTimeout = durationEnv("HEARTBEAT_TIMEOUT", cfg.HeartbeatTimeout)
	return cfg
}

func durationEnv(name string, fallback time.Duration) time.Duration {
	if v := os.Getenv(name); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			return d
		}
	}
	return fallback
}

func intEnv(name string, fallback int) int {
	if v := os.Getenv(name); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return fallback
}
