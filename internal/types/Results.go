/*

Per-run simulation output: one state-log row per timestep plus an aggregate
summary. These are what the orchestrator returns and the results store saves.

*/

package types

// TimestepLog records the pool state after the trader acted on one
// price/volume sample.
type TimestepLog struct {
	Timestamp   int64            `json:"timestamp"`
	PriceErrors map[Pair]float64 `json:"price_errors"` // pool price minus market price, per pair
	PoolValue   float64          `json:"pool_value"`   // in units of D
	VolumeUSD   float64          `json:"volume_usd"`   // D-unit volume traded this timestep
	Trades      []TradeResult    `json:"trades"`
}

// RunSummary aggregates a full run for ranking parameter sets.
type RunSummary struct {
	FinalPoolValue    float64 `json:"final_pool_value"`
	TotalVolumeUSD    float64 `json:"total_volume_usd"`
	MeanAbsPriceError float64 `json:"mean_abs_price_error"`
	Timesteps         int     `json:"timesteps"`
	TradeCount        int     `json:"trade_count"`
}

// RunResult is the complete output of one simulation run. RunIndex is the
// run's position in the sampler's grid order; orchestrator output is sorted
// by it so parallel and sequential execution agree exactly.
type RunResult struct {
	RunIndex int           `json:"run_index"`
	Params   ParamSet      `json:"params"`
	Log      []TimestepLog `json:"log"`
	Summary  RunSummary    `json:"summary"`
}
