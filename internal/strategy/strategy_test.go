package strategy

import (
	"testing"

	sdkmath "cosmossdk.io/math"
	"github.com/stretchr/testify/require"

	"github.com/ammlabs/poolsim/internal/pool/stableswap"
	"github.com/ammlabs/poolsim/internal/types"
)

func newTestPool(t *testing.T) *stableswap.Pool {
	t.Helper()
	p, err := stableswap.New(stableswap.Config{
		A:     250,
		N:     2,
		D:     sdkmath.NewIntWithDecimal(1_000_000, 18),
		Rates: []sdkmath.Int{sdkmath.NewIntWithDecimal(1, 30), sdkmath.NewIntWithDecimal(1, 30)},
		Fee:   4_000_000,
	})
	require.NoError(t, err)
	return p
}

func depegSamples() []types.PriceVolumeSample {
	pair := types.Pair{I: 0, J: 1}
	samples := make([]types.PriceVolumeSample, 3)
	prices := []float64{0.995, 0.99, 1.0}
	for k := range samples {
		samples[k] = types.PriceVolumeSample{
			Timestamp: int64(3600 * (k + 1)),
			Prices:    map[types.Pair]float64{pair: prices[k]},
			Volumes:   map[types.Pair]float64{pair: 500_000},
		}
	}
	return samples
}

func TestSimpleStrategyTracksPrices(t *testing.T) {
	p := newTestPool(t)
	pair := types.Pair{I: 0, J: 1}

	logRows, summary, err := Simple().Run(p, nil, depegSamples())
	require.NoError(t, err)
	require.Len(t, logRows, 3)
	require.Equal(t, 3, summary.Timesteps)
	require.Positive(t, summary.TradeCount)
	require.Positive(t, summary.TotalVolumeUSD)

	// Unconstrained, the trader pins each timestep's pool price to the
	// sampled market price.
	for _, row := range logRows {
		require.Less(t, row.PriceErrors[pair], 1e-4)
	}
	require.InDelta(t, 1_000_000, summary.FinalPoolValue, 2_000)
}

func TestVolumeLimitedStrategyCapsTrading(t *testing.T) {
	limited := newTestPool(t)
	free := newTestPool(t)
	samples := depegSamples()

	// A tight budget (0.0005 x 500k = 250 D per step) must trade less
	// than the unconstrained strategy.
	_, limSummary, err := VolumeLimited(0.0005).Run(limited, nil, samples)
	require.NoError(t, err)
	_, freeSummary, err := Simple().Run(free, nil, samples)
	require.NoError(t, err)

	require.Less(t, limSummary.TotalVolumeUSD, freeSummary.TotalVolumeUSD)
	require.Greater(t, limSummary.MeanAbsPriceError, freeSummary.MeanAbsPriceError)
}

func TestStrategyAdvancesPoolClock(t *testing.T) {
	p := newTestPool(t)
	// Ramp A from 250 to 500 across the sample window; mid-run trades see
	// the interpolated value only if the clock advances per timestep.
	require.NoError(t, p.RampA(500, 7200))

	_, _, err := Simple().Run(p, nil, depegSamples())
	require.NoError(t, err)
	require.Equal(t, int64(500), p.A())
}
