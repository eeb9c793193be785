/*

Per-run simulation loop.

A Strategy consumes the price/volume series one sample at a time: advance the
pool's logical clock, let the arbitrageur close the price gaps, record the
resulting state. The volume-limited variant caps each pair's trading at the
sampled market volume times a multiplier; the simple variant trades without
budgets.

*/

package strategy

import (
	"fmt"

	"github.com/ammlabs/poolsim/internal/logger"
	"github.com/ammlabs/poolsim/internal/metrics"
	"github.com/ammlabs/poolsim/internal/pool"
	"github.com/ammlabs/poolsim/internal/trader"
	"github.com/ammlabs/poolsim/internal/types"
)

var log = logger.GetForComponent("strategy")

// Strategy fixes how trader budgets are derived from each market sample.
type Strategy struct {
	volMult float64
	limited bool
}

// VolumeLimited budgets each pair at the sampled market volume times volMult.
func VolumeLimited(volMult float64) Strategy {
	return Strategy{volMult: volMult, limited: true}
}

// Simple trades without volume budgets; only pool depth bounds trade size.
func Simple() Strategy {
	return Strategy{}
}

// Run executes the strategy over the sample series. The pool must be freshly
// built for this run; the loop mutates it throughout.
func (s Strategy) Run(
	p pool.SimPool,
	params types.ParamSet,
	samples []types.PriceVolumeSample,
) ([]types.TimestepLog, types.RunSummary, error) {
	arb := trader.New(p)
	rec := metrics.NewRecorder(p)

	log.Debug().
		Str("params", params.String()).
		Int("samples", len(samples)).
		Msg("starting run")

	for _, sample := range samples {
		p.PrepareForTrades(sample.Timestamp)
		trades, priceErrors, err := arb.ProcessSample(sample.Prices, s.limits(sample))
		if err != nil {
			return nil, types.RunSummary{}, fmt.Errorf("timestep %d: %w", sample.Timestamp, err)
		}
		if err := rec.Update(sample, trades, priceErrors); err != nil {
			return nil, types.RunSummary{}, fmt.Errorf("timestep %d: %w", sample.Timestamp, err)
		}
	}

	summary := rec.Summary()
	log.Debug().
		Str("params", params.String()).
		Float64("final_value", summary.FinalPoolValue).
		Int("trades", summary.TradeCount).
		Msg("run finished")
	return rec.Log(), summary, nil
}

// limits converts one sample's volumes into per-pair trade budgets in D
// units. Nil means unconstrained.
func (s Strategy) limits(sample types.PriceVolumeSample) map[types.Pair]float64 {
	if !s.limited {
		return nil
	}
	out := make(map[types.Pair]float64, len(sample.Volumes))
	for pair, v := range sample.Volumes {
		out[pair] = v * s.volMult
	}
	return out
}
