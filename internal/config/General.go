package config

import (
	"errors"
	"os"
	"strconv"

	"github.com/rs/zerolog/log"
)

// Process configuration loaded from environment variables.
// These are populated at startup by the LoadConfig function.
var (
	// LogLevel is the zerolog level name (debug, info, warn, error).
	LogLevel string

	// ScenarioPath is the path to the YAML scenario file to simulate.
	ScenarioPath string

	// Workers is the number of parallel simulation workers. Zero means
	// one worker per CPU.
	Workers int
)

// LoadConfig loads configuration from environment variables and sets the
// global config vars. Only SCENARIO_PATH is required.
func LoadConfig() error {
	log.Info().Msg("Loading application configuration from environment variables...")

	var err error

	LogLevel = getEnvOr("LOG_LEVEL", "info")

	ScenarioPath, err = getEnv("SCENARIO_PATH")
	if err != nil {
		return err
	}

	Workers, err = getEnvAsIntOr("SIM_WORKERS", 0)
	if err != nil {
		return err
	}
	if Workers < 0 {
		return errors.New("SIM_WORKERS must not be negative")
	}

	if err := loadDatabaseConfig(); err != nil {
		return err
	}

	log.Debug().
		Str("LogLevel", LogLevel).
		Str("ScenarioPath", ScenarioPath).
		Int("Workers", Workers).
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

// getEnvOr retrieves a string environment variable with a fallback.
func getEnvOr(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

// getEnvAsIntOr retrieves an integer environment variable with a fallback.
// Returns error if set but invalid.
func getEnvAsIntOr(key string, fallback int) (int, error) {
	value, exists := os.LookupEnv(key)
	if !exists {
		return fallback, nil
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return 0, errors.New("environment variable " + key + " must be an integer, got " + value)
	}
	return parsed, nil
}
