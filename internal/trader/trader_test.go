package trader

import (
	"testing"

	sdkmath "cosmossdk.io/math"
	"github.com/stretchr/testify/require"

	"github.com/ammlabs/poolsim/internal/pool/cryptoswap"
	"github.com/ammlabs/poolsim/internal/pool/stableswap"
	"github.com/ammlabs/poolsim/internal/types"
)

// Two 6-decimal coins at peg, 0.04% fee.
func newStablePool(t *testing.T) *stableswap.Pool {
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

func TestTraderClosesPriceGap(t *testing.T) {
	p := newStablePool(t)
	arb := New(p)
	pair := types.Pair{I: 0, J: 1}

	trades, errors, err := arb.ProcessSample(map[types.Pair]float64{pair: 0.99}, nil)
	require.NoError(t, err)
	require.Len(t, trades, 1)
	require.Equal(t, 0, trades[0].CoinIn)
	require.Equal(t, 1, trades[0].CoinOut)

	// The bisection stops just short of the target, so the residual error
	// is tiny but never negative.
	price, perr := p.Price(0, 1, true)
	require.NoError(t, perr)
	require.InDelta(t, 0.99, price, 1e-6)
	require.GreaterOrEqual(t, errors[pair], 0.0)
	require.Less(t, errors[pair], 1e-6)
}

func TestTraderTradesReverseDirection(t *testing.T) {
	p := newStablePool(t)
	arb := New(p)
	pair := types.Pair{I: 0, J: 1}

	// Market says coin 0 is worth more than the pool does, so the trader
	// sells coin 1 into the pool.
	trades, _, err := arb.ProcessSample(map[types.Pair]float64{pair: 1.02}, nil)
	require.NoError(t, err)
	require.Len(t, trades, 1)
	require.Equal(t, 1, trades[0].CoinIn)
	require.Equal(t, 0, trades[0].CoinOut)

	price, perr := p.Price(1, 0, true)
	require.NoError(t, perr)
	require.InDelta(t, 1/1.02, price, 1e-6)
}

func TestTraderStaysInsideFeeBand(t *testing.T) {
	p := newStablePool(t)
	arb := New(p)
	pair := types.Pair{I: 0, J: 1}

	// At peg both fee-inclusive quotes sit below 1.0; there is no
	// profitable direction.
	trades, errors, err := arb.ProcessSample(map[types.Pair]float64{pair: 1.0}, nil)
	require.NoError(t, err)
	require.Empty(t, trades)
	require.Contains(t, errors, pair)
	require.Negative(t, errors[pair])
}

func TestTraderRespectsVolumeLimit(t *testing.T) {
	p := newStablePool(t)
	arb := New(p)
	pair := types.Pair{I: 0, J: 1}

	// A 100 D budget is 100 tokens of a 6-decimal coin, far too little to
	// close a 1% gap: the trader spends exactly the budget.
	trades, errors, err := arb.ProcessSample(
		map[types.Pair]float64{pair: 0.99},
		map[types.Pair]float64{pair: 100.0},
	)
	require.NoError(t, err)
	require.Len(t, trades, 1)
	require.Equal(t, sdkmath.NewInt(100_000_000), trades[0].AmountIn)
	require.Greater(t, errors[pair], 0.001)
}

func TestTraderSkipsDustBudget(t *testing.T) {
	p := newStablePool(t)
	arb := New(p)
	pair := types.Pair{I: 0, J: 1}

	// A budget of one min-trade cannot produce a trade above the noise
	// floor, whatever the gap.
	trades, _, err := arb.ProcessSample(
		map[types.Pair]float64{pair: 0.9},
		map[types.Pair]float64{pair: 0.001},
	)
	require.NoError(t, err)
	require.Empty(t, trades)
}

func TestTraderThreeCoinPoolTradesEachPair(t *testing.T) {
	p, err := stableswap.New(stableswap.Config{
		A: 2000,
		N: 3,
		Balances: []sdkmath.Int{
			sdkmath.NewIntWithDecimal(200_000, 18),
			sdkmath.NewIntWithDecimal(200_000, 6),
			sdkmath.NewIntWithDecimal(200_000, 6),
		},
		Rates: []sdkmath.Int{
			sdkmath.NewIntWithDecimal(1, 18),
			sdkmath.NewIntWithDecimal(1, 30),
			sdkmath.NewIntWithDecimal(1, 30),
		},
		Fee: 1_000_000,
	})
	require.NoError(t, err)
	arb := New(p)

	prices := map[types.Pair]float64{
		{I: 0, J: 1}: 0.995,
		{I: 0, J: 2}: 1.0,
		{I: 1, J: 2}: 1.0,
	}
	trades, errors, err := arb.ProcessSample(prices, nil)
	require.NoError(t, err)
	require.NotEmpty(t, trades)

	for pair, target := range prices {
		price, perr := p.Price(pair.I, pair.J, true)
		require.NoError(t, perr)
		require.InDelta(t, price-target, errors[pair], 1e-12)
		// Every pair ends within a fee-width of its market price.
		require.InDelta(t, target, price, 5e-4)
	}
}

func TestTraderCryptoswapPool(t *testing.T) {
	p, err := cryptoswap.New(cryptoswap.Config{
		A:                  400_000,
		Gamma:              145_000_000_000_000,
		N:                  2,
		Precisions:         []int64{1, 1},
		MidFee:             26_000_000,
		OutFee:             45_000_000,
		FeeGamma:           230_000_000_000_000,
		AllowedExtraProfit: 2_000_000_000_000,
		AdjustmentStep:     146_000_000_000_000,
		AdminFee:           5_000_000_000,
		MAHalfTime:         600,
		PriceScale:         []sdkmath.Int{sdkmath.NewIntWithDecimal(2000, 18)},
		D:                  sdkmath.NewIntWithDecimal(2_000_000, 18),
	})
	require.NoError(t, err)
	p.PrepareForTrades(600)
	arb := New(p)
	pair := types.Pair{I: 0, J: 1}

	// Market moves the volatile coin up ~4%: the pool quote of coin 0 in
	// coin 1 must come down to meet it.
	target := 1.0 / 2083.0
	trades, _, err := arb.ProcessSample(map[types.Pair]float64{pair: target}, nil)
	require.NoError(t, err)
	require.Len(t, trades, 1)
	require.Equal(t, 0, trades[0].CoinIn)

	price, perr := p.Price(0, 1, true)
	require.NoError(t, perr)
	require.InEpsilon(t, target, price, 0.01)
}
