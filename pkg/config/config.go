// Package config loads collector settings from the environment and
// resolves target lists from CLI arguments or an inputs file.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

// Settings holds the runtime configuration of the collector process.
// Values come from the environment (optionally seeded from a .env file);
// CLI flags override individual fields afterwards.
type Settings struct {
	// BearerToken authorizes upstream GraphQL requests.
	BearerToken string

	// Cookie is the session cookie string (ct0 inside it is the CSRF token).
	Cookie string

	// MaxPosts caps collected posts per target.
	MaxPosts int

	// RequestDelay is the courtesy wait between page fetches.
	RequestDelay time.Duration

	// Concurrency is the number of targets collected in parallel.
	Concurrency int

	// OutputDir is where export files are written.
	OutputDir string

	// Format names the export encoding (json, ndjson, csv).
	Format string

	// RedisAddr enables shared rate limit state when non-empty.
	RedisAddr string

	// MetricsAddr serves Prometheus metrics when non-empty.
	MetricsAddr string

	// LogLevel is the minimum log level.
	LogLevel string

	// Pretty switches logs to human-readable console output.
	Pretty bool
}

// Defaults mirrored by the CLI flag defaults.
const (
	DefaultMaxPosts     = 100
	DefaultRequestDelay = 1 * time.Second
	DefaultConcurrency  = 2
	DefaultOutputDir    = "out"
	DefaultFormat       = "json"
	DefaultLogLevel     = "info"
)

// Load reads settings from the environment. When envFile is non-empty
// it is loaded first without overriding variables already set; a missing
// default ".env" is not an error.
func Load(envFile string) (*Settings, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			if !os.IsNotExist(err) || envFile != ".env" {
				return nil, fmt.Errorf("load env file %s: %w", envFile, err)
			}
		} else {
			log.Debug().Str("component", "config").Str("file", envFile).Msg("Loaded env file")
		}
	}

	s := &Settings{
		BearerToken: os.Getenv("TIMELINE_BEARER_TOKEN"),
		Cookie:      os.Getenv("TIMELINE_COOKIE"),
		OutputDir:   envOr("TIMELINE_OUTPUT_DIR", DefaultOutputDir),
		Format:      envOr("TIMELINE_FORMAT", DefaultFormat),
		RedisAddr:   os.Getenv("TIMELINE_REDIS_ADDR"),
		MetricsAddr: os.Getenv("TIMELINE_METRICS_ADDR"),
		LogLevel:    envOr("TIMELINE_LOG_LEVEL", DefaultLogLevel),
	}

	var err error
	if s.MaxPosts, err = envInt("TIMELINE_MAX_POSTS", DefaultMaxPosts); err != nil {
		return nil, err
	}
	if s.Concurrency, err = envInt("TIMELINE_CONCURRENCY", DefaultConcurrency); err != nil {
		return nil, err
	}
	if s.RequestDelay, err = envDuration("TIMELINE_REQUEST_DELAY", DefaultRequestDelay); err != nil {
		return nil, err
	}
	if v := os.Getenv("TIMELINE_PRETTY"); v != "" {
		s.Pretty, err = strconv.ParseBool(v)
		if err != nil {
			return nil, fmt.Errorf("TIMELINE_PRETTY: %w", err)
		}
	}

	return s, nil
}

// Validate checks settings that have no usable default.
func (s *Settings) Validate() error {
	if s.BearerToken == "" {
		return fmt.Errorf("bearer token is required (set TIMELINE_BEARER_TOKEN)")
	}
	if s.MaxPosts < 0 {
		return fmt.Errorf("max posts must be >= 0 (got %d)", s.MaxPosts)
	}
	if s.Concurrency < 1 {
		return fmt.Errorf("concurrency must be >= 1 (got %d)", s.Concurrency)
	}
	return nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}

func envDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}
