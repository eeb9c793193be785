package orchestrator

import (
	"context"
	"errors"
	"testing"

	sdkmath "cosmossdk.io/math"
	"github.com/stretchr/testify/require"

	"github.com/ammlabs/poolsim/internal/pool"
	"github.com/ammlabs/poolsim/internal/pool/stableswap"
	"github.com/ammlabs/poolsim/internal/samplers"
	"github.com/ammlabs/poolsim/internal/strategy"
	"github.com/ammlabs/poolsim/internal/types"
)

func testFactory(params types.ParamSet) (pool.SimPool, error) {
	cfg := stableswap.Config{
		A:     250,
		N:     2,
		D:     sdkmath.NewIntWithDecimal(1_000_000, 18),
		Rates: []sdkmath.Int{sdkmath.NewIntWithDecimal(1, 30), sdkmath.NewIntWithDecimal(1, 30)},
		Fee:   4_000_000,
	}
	if a, ok := params.Get("A"); ok {
		cfg.A = a
	}
	if fee, ok := params.Get("fee"); ok {
		cfg.Fee = fee
	}
	return stableswap.New(cfg)
}

func testSamples() []types.PriceVolumeSample {
	pair := types.Pair{I: 0, J: 1}
	prices := []float64{0.997, 0.994, 0.999, 1.003}
	samples := make([]types.PriceVolumeSample, len(prices))
	for k, price := range prices {
		samples[k] = types.PriceVolumeSample{
			Timestamp: int64(3600 * (k + 1)),
			Prices:    map[types.Pair]float64{pair: price},
			Volumes:   map[types.Pair]float64{pair: 50_000},
		}
	}
	return samples
}

func testGrid(t *testing.T) []types.ParamSet {
	t.Helper()
	g, err := samplers.NewGrid([]samplers.Variable{
		{Name: "A", Values: samplers.TestA()},
		{Name: "fee", Values: samplers.TestFee()},
	})
	require.NoError(t, err)
	return g.ParamSets()
}

func TestRunOrdersResultsByIndex(t *testing.T) {
	results, err := Run(context.Background(), testFactory, strategy.VolumeLimited(0.5), testGrid(t), testSamples(), 4)
	require.NoError(t, err)
	require.Len(t, results, 4)
	for idx, res := range results {
		require.Equal(t, idx, res.RunIndex)
		require.Equal(t, 4, res.Summary.Timesteps)
		require.Positive(t, res.Summary.FinalPoolValue)
	}
}

func TestParallelMatchesSequential(t *testing.T) {
	grid := testGrid(t)
	samples := testSamples()
	strat := strategy.VolumeLimited(0.5)

	sequential, err := Run(context.Background(), testFactory, strat, grid, samples, 1)
	require.NoError(t, err)
	parallel, err := Run(context.Background(), testFactory, strat, grid, samples, 4)
	require.NoError(t, err)

	require.Equal(t, sequential, parallel)
}

func TestRunPropagatesFactoryError(t *testing.T) {
	boom := errors.New("bad template")
	factory := func(params types.ParamSet) (pool.SimPool, error) {
		if _, ok := params.Get("A"); ok {
			return nil, boom
		}
		return testFactory(params)
	}

	_, err := Run(context.Background(), factory, strategy.Simple(), testGrid(t), testSamples(), 2)
	require.ErrorIs(t, err, boom)
}

func TestRunHonorsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Run(ctx, testFactory, strategy.Simple(), testGrid(t), testSamples(), 2)
	require.ErrorIs(t, err, context.Canceled)
}
