package config

import (
	"fmt"
	"strconv"

	"github.com/rs/zerolog/log"
)

// Endpoint configuration loaded from environment variables.
// These are populated at startup by the LoadConfig function.
var (
	// WebPort is the port of the query API.
	WebPort string
	// SettlementAddress pays out transfer intents. When set, POST /api/tx returns bank messages.
	SettlementAddress string

	// DBHost is the PostgreSQL host of the receipt journal. Empty disables the journal.
	DBHost     string
	DBPort     int
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string
)

// loadEndpointConfig loads endpoint configuration from environment variables.
// This function is called by LoadConfig() in General.go.
func loadEndpointConfig() error {
	log.Info().Msg("Loading endpoint configuration from environment variables...")

	WebPort = getEnvOrDefault("WEB_PORT", "8080")
	SettlementAddress = getEnvOrDefault("SETTLEMENT_ADDRESS", "")

	DBHost = getEnvOrDefault("DB_HOST", "")
	port, err := strconv.Atoi(getEnvOrDefault("DB_PORT", "5432"))
	if err != nil {
		return fmt.Errorf("environment variable DB_PORT must be an integer: %w", err)
	}
	DBPort = port
	DBUser = getEnvOrDefault("DB_USER", "")
	DBPassword = getEnvOrDefault("DB_PASSWORD", "")
	DBName = getEnvOrDefault("DB_NAME", "lpfarm")
	DBSSLMode = getEnvOrDefault("DB_SSLMODE", "disable")

	log.Debug().
		Str("WebPort", WebPort).
		Str("DBHost", DBHost).
		Int("DBPort", DBPort).
		Str("DBName", DBName).
		Msg("Endpoint configuration loaded successfully.")

	return nil
}

// JournalEnabled reports whether a PostgreSQL journal was configured.
func JournalEnabled() bool {
	return DBHost != ""
}
