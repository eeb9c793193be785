// ./internal/state/results_store.go
package state

import (
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/ammlabs/poolsim/internal/types"
)

// SweepInfo describes a parameter sweep being persisted.
type SweepInfo struct {
	ScenarioName string
	PoolType     string
	Strategy     string
	Timesteps    int
}

// SaveSweep persists a finished sweep and all its run results in one
// transaction. Returns the new sweep id.
func SaveSweep(info SweepInfo, results []types.RunResult) (int64, error) {
	if DB == nil {
		return 0, fmt.Errorf("database not initialized")
	}

	tx, err := DB.Begin()
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p) // Re-panic after rollback
		} else if err != nil {
			tx.Rollback() // Rollback if error occurred
		}
	}()

	var sweepID int64
	err = tx.QueryRow(`
		INSERT INTO sim_runs (scenario_name, pool_type, strategy, run_count, timesteps)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING sweep_id;`,
		info.ScenarioName, info.PoolType, info.Strategy, len(results), info.Timesteps,
	).Scan(&sweepID)
	if err != nil {
		return 0, fmt.Errorf("failed to insert sweep row: %w", err)
	}

	stmt, err := tx.Prepare(`
		INSERT INTO run_results (
			sweep_id, run_index, params,
			final_pool_value, total_volume_usd, mean_abs_price_error, trade_count,
			timestep_log
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8);`)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare result insert: %w", err)
	}
	defer stmt.Close()

	for _, res := range results {
		var logJSON []byte
		logJSON, err = json.Marshal(res.Log)
		if err != nil {
			return 0, fmt.Errorf("failed to marshal timestep log for run %d: %w", res.RunIndex, err)
		}
		_, err = stmt.Exec(
			sweepID, res.RunIndex, res.Params.String(),
			res.Summary.FinalPoolValue, res.Summary.TotalVolumeUSD,
			res.Summary.MeanAbsPriceError, res.Summary.TradeCount,
			logJSON,
		)
		if err != nil {
			return 0, fmt.Errorf("failed to insert result for run %d: %w", res.RunIndex, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit sweep: %w", err)
	}

	log.Info().
		Int64("sweep_id", sweepID).
		Int("runs", len(results)).
		Msg("Sweep results saved to database.")
	return sweepID, nil
}

// RunRow is a stored run summary, used for ranking parameter sets.
type RunRow struct {
	RunIndex          int
	Params            string
	FinalPoolValue    float64
	TotalVolumeUSD    float64
	MeanAbsPriceError float64
	TradeCount        int
}

// TopRuns returns a sweep's runs ordered by final pool value, best first.
func TopRuns(sweepID int64, limit int) ([]RunRow, error) {
	if DB == nil {
		return nil, fmt.Errorf("database not initialized")
	}

	rows, err := DB.Query(`
		SELECT run_index, params, final_pool_value, total_volume_usd, mean_abs_price_error, trade_count
		FROM run_results
		WHERE sweep_id = $1
		ORDER BY final_pool_value DESC, run_index ASC
		LIMIT $2;`, sweepID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query top runs: %w", err)
	}
	defer rows.Close()

	var out []RunRow
	for rows.Next() {
		var r RunRow
		if err := rows.Scan(
			&r.RunIndex, &r.Params,
			&r.FinalPoolValue, &r.TotalVolumeUSD, &r.MeanAbsPriceError, &r.TradeCount,
		); err != nil {
			return nil, fmt.Errorf("failed to scan run row: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
