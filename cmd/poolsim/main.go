package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/ammlabs/poolsim/internal/config"
	"github.com/ammlabs/poolsim/internal/datafeed"
	"github.com/ammlabs/poolsim/internal/logger"
	"github.com/ammlabs/poolsim/internal/orchestrator"
	"github.com/ammlabs/poolsim/internal/samplers"
	"github.com/ammlabs/poolsim/internal/state"
	"github.com/ammlabs/poolsim/internal/strategy"
	"github.com/ammlabs/poolsim/internal/types"
)

// topRunsShown caps the ranking printed after a sweep.
const topRunsShown = 10

// main is the entry point for the pool simulator.
func main() {
	// --- 1. Initialization Phase ---
	if err := godotenv.Load(); err != nil {
		log.Warn().Msg("Warning: .env file not found. Relying on OS environment variables.")
	}

	if err := config.LoadConfig(); err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logger.Initialize(config.LogLevel)
	log.Info().Msg("Pool simulator starting...")

	// Optional Postgres results sink.
	if config.DBEnabled {
		dbCfg := state.DBConfig{
			Host: config.DBHost, Port: config.DBPort,
			User: config.DBUser, Password: config.DBPassword,
			DBName: config.DBName, SSLMode: config.DBSSLMode,
		}
		if err := state.InitDB(dbCfg); err != nil {
			log.Fatal().Err(err).Msg("Failed to initialize database")
		}
		defer state.CloseDB()
		if err := state.EnsureSchema(); err != nil {
			log.Fatal().Err(err).Msg("Failed to ensure database schema")
		}
	}

	// --- 2. Scenario and Market Data ---
	scenario, err := config.LoadScenario(config.ScenarioPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load scenario")
	}
	log.Info().
		Str("scenario", scenario.Name).
		Str("pool_type", scenario.Pool.Type).
		Str("strategy", scenario.Strategy.Type).
		Msg("Scenario loaded")

	rawSamples, err := datafeed.LoadCSV(scenario.DataFile)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load market data")
	}
	series, err := samplers.NewPriceVolume(rawSamples)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid market data series")
	}

	grid, err := scenario.Grid()
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid parameter grid")
	}

	var strat strategy.Strategy
	if scenario.Strategy.Type == config.StrategySimple {
		strat = strategy.Simple()
	} else {
		strat = strategy.VolumeLimited(scenario.Strategy.VolMult)
	}

	// --- 3. Run the Sweep ---
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	results, err := orchestrator.Run(
		ctx,
		scenario.Pool.BuildPool,
		strat,
		grid.ParamSets(),
		series.Samples(),
		config.Workers,
	)
	if err != nil {
		log.Fatal().Err(err).Msg("Sweep failed")
	}

	// --- 4. Report and Persist ---
	printRanking(results)

	if config.DBEnabled {
		info := state.SweepInfo{
			ScenarioName: scenario.Name,
			PoolType:     scenario.Pool.Type,
			Strategy:     scenario.Strategy.Type,
			Timesteps:    series.Len(),
		}
		sweepID, err := state.SaveSweep(info, results)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to save sweep results")
		}
		log.Info().Int64("sweep_id", sweepID).Msg("Results persisted")
	}

	log.Info().Msg("Pool simulator finished.")
}

// printRanking logs the best parameter sets by final pool value.
func printRanking(results []types.RunResult) {
	ranked := make([]types.RunResult, len(results))
	copy(ranked, results)
	sort.SliceStable(ranked, func(a, b int) bool {
		return ranked[a].Summary.FinalPoolValue > ranked[b].Summary.FinalPoolValue
	})

	shown := len(ranked)
	if shown > topRunsShown {
		shown = topRunsShown
	}
	for k := 0; k < shown; k++ {
		res := ranked[k]
		params := res.Params.String()
		if params == "" {
			params = "baseline"
		}
		log.Info().
			Int("rank", k+1).
			Int("run", res.RunIndex).
			Str("params", params).
			Str("final_value", fmt.Sprintf("%.2f", res.Summary.FinalPoolValue)).
			Str("volume", fmt.Sprintf("%.2f", res.Summary.TotalVolumeUSD)).
			Str("mean_abs_err", fmt.Sprintf("%.6f", res.Summary.MeanAbsPriceError)).
			Int("trades", res.Summary.TradeCount).
			Msg("Run result")
	}
}
