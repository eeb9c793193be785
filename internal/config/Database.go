package config

import (
	"github.com/rs/zerolog/log"
)

// Results database configuration loaded from environment variables.
// These are populated at startup by the LoadConfig function.
var (
	// DBEnabled reports whether a Postgres results sink is configured.
	// Persistence is optional; runs work without it.
	DBEnabled bool

	// DBHost is the Postgres host. Leaving it unset disables persistence.
	DBHost string
	// DBPort is the Postgres port.
	DBPort int
	// DBUser is the Postgres user.
	DBUser string
	// DBPassword is the Postgres password.
	DBPassword string
	// DBName is the Postgres database name.
	DBName string
	// DBSSLMode is the Postgres sslmode ("disable", "require", ...).
	DBSSLMode string
)

// loadDatabaseConfig loads the optional results database configuration.
// This function is called by LoadConfig() in General.go.
func loadDatabaseConfig() error {
	DBHost = getEnvOr("DB_HOST", "")
	if DBHost == "" {
		DBEnabled = false
		log.Debug().Msg("DB_HOST not set; result persistence disabled.")
		return nil
	}

	var err error

	DBPort, err = getEnvAsIntOr("DB_PORT", 5432)
	if err != nil {
		return err
	}

	DBUser, err = getEnv("DB_USER")
	if err != nil {
		return err
	}

	DBPassword, err = getEnv("DB_PASSWORD")
	if err != nil {
		return err
	}

	DBName, err = getEnv("DB_NAME")
	if err != nil {
		return err
	}

	DBSSLMode = getEnvOr("DB_SSLMODE", "disable")
	DBEnabled = true

	log.Debug().
		Str("DBHost", DBHost).
		Int("DBPort", DBPort).
		Str("DBName", DBName).
		Msg("Database configuration loaded successfully.")

	return nil
}
