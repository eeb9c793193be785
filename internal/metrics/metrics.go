/*

Per-run metrics: one state-log row per timestep, folded into an aggregate
summary at the end of the run. The recorder reads pool value through the
SimPool interface and converts trade volume to units of D, so all pool
families report on the same scale.

*/

package metrics

import (
	"math"

	"github.com/ammlabs/poolsim/internal/pool"
	"github.com/ammlabs/poolsim/internal/types"
)

// Recorder accumulates the timestep log for a single simulation run.
type Recorder struct {
	pool pool.SimPool

	log         []types.TimestepLog
	absErrSum   float64
	errCount    int
	totalVolume float64
	tradeCount  int
}

// NewRecorder returns a recorder bound to the run's pool.
func NewRecorder(p pool.SimPool) *Recorder {
	return &Recorder{pool: p}
}

// Update appends one timestep row after the trader acted on a sample.
func (r *Recorder) Update(
	sample types.PriceVolumeSample,
	trades []types.TradeResult,
	priceErrors map[types.Pair]float64,
) error {
	value, err := r.pool.Value()
	if err != nil {
		return err
	}

	var volume float64
	for _, tr := range trades {
		volume += pool.ValueOf(r.pool, tr.CoinIn, tr.AmountIn)
	}

	errs := make(map[types.Pair]float64, len(priceErrors))
	for pair, e := range priceErrors {
		errs[pair] = e
		r.absErrSum += math.Abs(e)
		r.errCount++
	}

	r.log = append(r.log, types.TimestepLog{
		Timestamp:   sample.Timestamp,
		PriceErrors: errs,
		PoolValue:   value,
		VolumeUSD:   volume,
		Trades:      trades,
	})
	r.totalVolume += volume
	r.tradeCount += len(trades)
	return nil
}

// Log returns the accumulated timestep rows.
func (r *Recorder) Log() []types.TimestepLog {
	return r.log
}

// Summary folds the log into the per-run aggregate.
func (r *Recorder) Summary() types.RunSummary {
	s := types.RunSummary{
		Timesteps:      len(r.log),
		TradeCount:     r.tradeCount,
		TotalVolumeUSD: r.totalVolume,
	}
	if len(r.log) > 0 {
		s.FinalPoolValue = r.log[len(r.log)-1].PoolValue
	}
	if r.errCount > 0 {
		s.MeanAbsPriceError = r.absErrSum / float64(r.errCount)
	}
	return s
}
