package config

import (
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// AppConfig holds all application configuration loaded from environment variables.
// These are populated at startup by the LoadConfig function.
var (
	// LogLevel is one of debug, info, warn, error.
	LogLevel string
	// LogFormat is "console" or "json".
	LogFormat string

	// DataDir is the directory holding the BadgerDB state store.
	DataDir string

	// EpochGenesis is the start time of epoch 1.
	EpochGenesis time.Time
	// EpochDuration is the length of every epoch.
	EpochDuration time.Duration
	// LoopInterval is how often the clock is polled for a new epoch.
	LoopInterval time.Duration

	// EnableTxEndpoint exposes POST /api/tx. Only for operators driving the engine directly.
	EnableTxEndpoint bool
)

// LoadConfig loads configuration from environment variables and sets the global config vars.
func LoadConfig() error {
	log.Info().Msg("Loading application configuration from environment variables...")

	var err error

	LogLevel = getEnvOrDefault("LOG_LEVEL", "info")
	LogFormat = getEnvOrDefault("LOG_FORMAT", "console")

	DataDir, err = getEnv("DATA_DIR")
	if err != nil {
		return err
	}

	genesis, err := getEnv("EPOCH_GENESIS")
	if err != nil {
		return err
	}
	EpochGenesis, err = time.Parse(time.RFC3339, genesis)
	if err != nil {
		return errors.New("environment variable EPOCH_GENESIS must be an RFC3339 timestamp, got: " + genesis)
	}

	EpochDuration, err = getEnvAsDuration("EPOCH_DURATION")
	if err != nil {
		return err
	}

	LoopInterval, err = getEnvAsDurationOrDefault("LOOP_INTERVAL", time.Minute)
	if err != nil {
		return err
	}

	EnableTxEndpoint, err = getEnvAsBoolOrDefault("ENABLE_TX_ENDPOINT", false)
	if err != nil {
		return err
	}

	if err := loadEndpointConfig(); err != nil {
		return err
	}

	// Expand the tilde (~) in the data directory path to the user's home directory.
	if strings.HasPrefix(DataDir, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return err
		}
		DataDir = filepath.Join(home, DataDir[2:])
	}

	log.Debug().
		Str("DataDir", DataDir).
		Time("EpochGenesis", EpochGenesis).
		Dur("EpochDuration", EpochDuration).
		Bool("EnableTxEndpoint", EnableTxEndpoint).
		Msg("Configuration loaded successfully.")

	return nil
}

// getEnv retrieves a string environment variable. Returns error if not set.
func getEnv(key string) (string, error) {
	if value, exists := os.LookupEnv(key); exists {
		return value, nil
	}
	return "", errors.New("environment variable " + key + " is required but not set")
}

// getEnvOrDefault retrieves a string environment variable, falling back to def when unset or empty.
func getEnvOrDefault(key, def string) string {
	if value, exists := os.LookupEnv(key); exists && value != "" {
		return value
	}
	return def
}

// getEnvAsUint64 retrieves an environment variable as a uint64. Returns error if not set or invalid.
func getEnvAsUint64(key string) (uint64, error) {
	valueStr, err := getEnv(key)
	if err != nil {
		return 0, err
	}
	value, err := strconv.ParseUint(valueStr, 10, 64)
	if err != nil {
		return 0, errors.New("environment variable " + key + " must be a valid uint64, got: " + valueStr)
	}
	return value, nil
}

// getEnvAsDuration retrieves an environment variable as a time.Duration. Returns error if not set or invalid.
func getEnvAsDuration(key string) (time.Duration, error) {
	valueStr, err := getEnv(key)
	if err != nil {
		return 0, err
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil || value <= 0 {
		return 0, errors.New("environment variable " + key + " must be a positive duration, got: " + valueStr)
	}
	return value, nil
}

// getEnvAsDurationOrDefault is getEnvAsDuration with a fallback when the variable is unset.
func getEnvAsDurationOrDefault(key string, def time.Duration) (time.Duration, error) {
	if _, exists := os.LookupEnv(key); !exists {
		return def, nil
	}
	return getEnvAsDuration(key)
}

// getEnvAsBoolOrDefault retrieves an environment variable as a bool, falling back to def when unset.
func getEnvAsBoolOrDefault(key string, def bool) (bool, error) {
	valueStr, exists := os.LookupEnv(key)
	if !exists || valueStr == "" {
		return def, nil
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return false, errors.New("environment variable " + key + " must be a valid bool, got: " + valueStr)
	}
	return value, nil
}
