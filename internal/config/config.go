// Package config gathers every construction-time knob in one place. Nothing
// in the evaluation core reads the environment itself; the binary builds a
// Config and passes it down.
package config

import (
	"os"
	"strconv"
	"time"
)

const envPrefix = "ENDGAMELAB_"

// Config holds all tunables for the trainer daemon.
type Config struct {
	ListenAddr string

	// Oracle transport.
	OracleBaseURL  string
	OracleTimeout  time.Duration
	MaxRetries     int
	BackoffBase    time.Duration
	BackoffCeiling time.Duration

	// In-memory evaluation cache.
	CacheCapacity int
	CacheTTL      time.Duration

	// Move ranking.
	TopMoveLimit int

	// Persistent evaluation store.
	StoreEnabled bool
	StoreDir     string // empty = platform data dir
	StoreTTL     time.Duration
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		ListenAddr:     ":8790",
		OracleBaseURL:  "https://tablebase.lichess.ovh/standard",
		OracleTimeout:  5 * time.Second,
		MaxRetries:     4,
		BackoffBase:    250 * time.Millisecond,
		BackoffCeiling: 8 * time.Second,
		CacheCapacity:  4096,
		CacheTTL:       time.Hour,
		TopMoveLimit:   3,
		StoreEnabled:   true,
		StoreTTL:       7 * 24 * time.Hour,
	}
}

// FromEnv returns Default overridden by ENDGAMELAB_* environment variables.
func FromEnv() Config {
	cfg := Default()
	envString(&cfg.ListenAddr, "LISTEN_ADDR")
	envString(&cfg.OracleBaseURL, "ORACLE_URL")
	envDuration(&cfg.OracleTimeout, "ORACLE_TIMEOUT")
	envInt(&cfg.MaxRetries, "MAX_RETRIES")
	envDuration(&cfg.BackoffBase, "BACKOFF_BASE")
	envDuration(&cfg.BackoffCeiling, "BACKOFF_CEILING")
	envInt(&cfg.CacheCapacity, "CACHE_CAPACITY")
	envDuration(&cfg.CacheTTL, "CACHE_TTL")
	envInt(&cfg.TopMoveLimit, "TOP_MOVE_LIMIT")
	envBool(&cfg.StoreEnabled, "STORE_ENABLED")
	envString(&cfg.StoreDir, "STORE_DIR")
	envDuration(&cfg.StoreTTL, "STORE_TTL")
	return cfg
}

func envString(dst *string, name string) {
	if v := os.Getenv(envPrefix + name); v != "" {
		*dst = v
	}
}

func envInt(dst *int, name string) {
	if v := os.Getenv(envPrefix + name); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func envBool(dst *bool, name string) {
	if v := os.Getenv(envPrefix + name); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func envDuration(dst *time.Duration, name string) {
	if v := os.Getenv(envPrefix + name); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}
