// ./internal/state/db.go
package state

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/rs/zerolog/log"
)

// DB is a global database connection pool.
var DB *sql.DB

// DBConfig holds database connection parameters.
type DBConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string // "disable", "require", "verify-full", etc.
}

// InitDB initializes the database connection pool.
func InitDB(cfg DBConfig) error {
	psqlInfo := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DBName, cfg.SSLMode)

	var err error
	DB, err = sql.Open("postgres", psqlInfo)
	if err != nil {
		return fmt.Errorf("failed to open database connection: %w", err)
	}

	DB.SetMaxOpenConns(25)
	DB.SetMaxIdleConns(25)
	DB.SetConnMaxLifetime(5 * time.Minute)

	err = DB.Ping()
	if err != nil {
		DB.Close()
		return fmt.Errorf("failed to ping database: %w", err)
	}

	log.Info().Msg("Successfully connected to the PostgreSQL database!")
	return nil
}

// CloseDB closes the database connection pool.
func CloseDB() {
	if DB != nil {
		log.Info().Msg("Closing database connection...")
		if err := DB.Close(); err != nil {
			log.Error().Err(err).Msg("Error closing database connection")
		}
	}
}

// EnsureSchema applies the necessary DDL to create tables if they don't exist.
func EnsureSchema() error {
	if DB == nil {
		return fmt.Errorf("database not initialized")
	}

	schemaSQL := `
		CREATE TABLE IF NOT EXISTS sim_runs (
			sweep_id SERIAL PRIMARY KEY,
			scenario_name VARCHAR(255) NOT NULL,
			pool_type VARCHAR(50) NOT NULL,
			strategy VARCHAR(50) NOT NULL,
			run_count INTEGER NOT NULL,
			timesteps INTEGER NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
		CREATE INDEX IF NOT EXISTS idx_sim_runs_created_at ON sim_runs(created_at DESC);
		CREATE INDEX IF NOT EXISTS idx_sim_runs_scenario ON sim_runs(scenario_name);

		CREATE TABLE IF NOT EXISTS run_results (
			result_id SERIAL PRIMARY KEY,
			sweep_id INTEGER NOT NULL REFERENCES sim_runs(sweep_id) ON DELETE CASCADE,
			run_index INTEGER NOT NULL,
			params TEXT NOT NULL,
			final_pool_value DOUBLE PRECISION NOT NULL,
			total_volume_usd DOUBLE PRECISION NOT NULL,
			mean_abs_price_error DOUBLE PRECISION NOT NULL,
			trade_count INTEGER NOT NULL,
			timestep_log JSONB,
			CONSTRAINT uq_run_results_sweep_run UNIQUE (sweep_id, run_index)
		);
		CREATE INDEX IF NOT EXISTS idx_run_results_sweep ON run_results(sweep_id, run_index);
		CREATE INDEX IF NOT EXISTS idx_run_results_value ON run_results(sweep_id, final_pool_value DESC);
	`
	if _, err := DB.Exec(schemaSQL); err != nil {
		return fmt.Errorf("failed to ensure schema: %w", err)
	}

	log.Info().Msg("Database schema ensured.")
	return nil
}
