// Package config loads process configuration from the environment and an
// optional .env file. Command-line flags override these values.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"github.com/roach88/plcsim/internal/engine"
)

// Environment variable names.
const (
	EnvDB            = "PLCSIM_DB"
	EnvScanTime      = "PLCSIM_SCAN_TIME"
	EnvFaultInterval = "PLCSIM_FAULT_INTERVAL"
	EnvHistoryLimit  = "PLCSIM_HISTORY_LIMIT"
	EnvLogFile       = "PLCSIM_LOG_FILE"
	EnvLogJournal    = "PLCSIM_LOG_JOURNAL"
	EnvLogLevel      = "PLCSIM_LOG_LEVEL"
)

// DefaultDB is the journal path used when PLCSIM_DB is unset.
const DefaultDB = "plcsim.db"

// Config is the resolved process configuration.
type Config struct {
	DB            string
	ScanTime      time.Duration
	FaultInterval time.Duration
	HistoryLimit  int
	Logging       LoggingConfig
}

// LoggingConfig selects log sinks.
type LoggingConfig struct {
	Level   string // debug, info, warn, error
	File    string // JSON log file; empty disables it
	Journal bool   // also log to the systemd journal
}

// Load reads the given .env files (default ".env") into the environment,
// then resolves every PLCSIM_* variable. Missing .env files are not an
// error; variables already set in the environment win over the file.
func Load(envFiles ...string) (*Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", f, err)
		}
	}

	cfg := &Config{
		DB: getEnv(EnvDB, DefaultDB),
		Logging: LoggingConfig{
			Level: getEnv(EnvLogLevel, "info"),
			File:  getEnv(EnvLogFile, ""),
		},
	}

	var err error
	if cfg.ScanTime, err = getEnvAsDuration(EnvScanTime, engine.DefaultScanTime); err != nil {
		return nil, err
	}
	if cfg.FaultInterval, err = getEnvAsDuration(EnvFaultInterval, engine.DefaultFaultInterval); err != nil {
		return nil, err
	}
	if cfg.HistoryLimit, err = getEnvAsInt(EnvHistoryLimit, engine.DefaultHistoryLimit); err != nil {
		return nil, err
	}
	if cfg.Logging.Journal, err = getEnvAsBool(EnvLogJournal, false); err != nil {
		return nil, err
	}
	return cfg, nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return fallback
}

// getEnvAsDuration accepts Go durations ("250ms") or a bare number of
// milliseconds ("250").
func getEnvAsDuration(key string, fallback time.Duration) (time.Duration, error) {
	raw := getEnv(key, "")
	if raw == "" {
		return fallback, nil
	}
	if ms, err := strconv.Atoi(raw); err == nil {
		raw = strconv.Itoa(ms) + "ms"
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%s: %v: %w", key, d, engine.ErrInvalidPeriod)
	}
	return d, nil
}

func getEnvAsInt(key string, fallback int) (int, error) {
	raw := getEnv(key, "")
	if raw == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	if n <= 0 {
		return 0, fmt.Errorf("%s: must be positive, got %d", key, n)
	}
	return n, nil
}

func getEnvAsBool(key string, fallback bool) (bool, error) {
	raw := getEnv(key, "")
	if raw == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("%s: %w", key, err)
	}
	return b, nil
}
