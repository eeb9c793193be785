package stableswap

import (
	"testing"

	sdkmath "cosmossdk.io/math"
	"github.com/stretchr/testify/require"

	"github.com/ammlabs/poolsim/internal/pool"
)

func newGoldenPool(t *testing.T) *Pool {
	t.Helper()
	p, err := New(Config{
		A:     250,
		N:     2,
		D:     sdkmath.NewIntWithDecimal(1_000_000, 18),
		Rates: []sdkmath.Int{sdkmath.NewIntWithDecimal(1, 30), sdkmath.NewIntWithDecimal(1, 30)},
		Fee:   4_000_000,
	})
	require.NoError(t, err)
	return p
}

// Two 6-decimal coins, A=250, D=1M: the exchange output and fee are pinned to
// the on-chain contract's exact integer results.
func TestExchangeGoldenValues(t *testing.T) {
	p := newGoldenPool(t)

	dy, fee, err := p.Exchange(0, 1, sdkmath.NewInt(150_000_000), sdkmath.ZeroInt())
	require.NoError(t, err)
	require.Equal(t, int64(149_939_820), dy.Int64())
	require.Equal(t, int64(59_999), fee.Int64())
}

func TestExchangeThreeCoinPool(t *testing.T) {
	p, err := New(Config{
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

	balancesBefore := p.Balances()
	dx := sdkmath.NewIntWithDecimal(1_000, 18)
	dy, fee, err := p.Exchange(0, 1, dx, sdkmath.ZeroInt())
	require.NoError(t, err)

	// Near peg the output tracks the rate-adjusted input minus the 0.01%
	// fee and a little curvature slippage.
	require.True(t, dy.GT(sdkmath.NewInt(999_000_000)), "dy = %s", dy)
	require.True(t, dy.LT(sdkmath.NewInt(1_000_000_000)), "dy = %s", dy)
	require.True(t, fee.IsPositive())

	balancesAfter := p.Balances()
	require.Equal(t, balancesBefore[0].Add(dx), balancesAfter[0])
	require.Equal(t, balancesBefore[1].Sub(dy), balancesAfter[1]) // zero admin fee
	require.Equal(t, balancesBefore[2], balancesAfter[2])
}

func TestExchangePreconditions(t *testing.T) {
	p := newGoldenPool(t)
	before := p.Balances()

	_, _, err := p.Exchange(1, 1, sdkmath.NewInt(100), sdkmath.ZeroInt())
	require.ErrorIs(t, err, pool.ErrSameCoin)

	_, _, err = p.Exchange(0, 5, sdkmath.NewInt(100), sdkmath.ZeroInt())
	require.ErrorIs(t, err, pool.ErrCoinIndex)

	_, _, err = p.Exchange(0, 1, sdkmath.ZeroInt(), sdkmath.ZeroInt())
	require.ErrorIs(t, err, pool.ErrZeroTradeAmount)

	require.Equal(t, before, p.Balances())
}

func TestExchangeSlippageLeavesStateUntouched(t *testing.T) {
	p := newGoldenPool(t)
	before := p.Balances()
	supply := p.LPSupply()

	_, _, err := p.Exchange(0, 1, sdkmath.NewInt(150_000_000), sdkmath.NewInt(200_000_000))
	require.ErrorIs(t, err, pool.ErrSlippage)
	require.Equal(t, before, p.Balances())
	require.Equal(t, supply, p.LPSupply())
}

func TestRoundTripNeverProfits(t *testing.T) {
	p := newGoldenPool(t)

	dx := sdkmath.NewInt(500_000_000)
	dy, _, err := p.Exchange(0, 1, dx, sdkmath.ZeroInt())
	require.NoError(t, err)

	back, _, err := p.Exchange(1, 0, dy, sdkmath.ZeroInt())
	require.NoError(t, err)
	require.True(t, back.LT(dx), "round trip returned %s for %s", back, dx)
}

func TestFirstDepositMintsInvariant(t *testing.T) {
	p, err := New(Config{
		A: 100,
		N: 2,
		Balances: []sdkmath.Int{
			sdkmath.ZeroInt(),
			sdkmath.ZeroInt(),
		},
		Fee: 4_000_000,
	})
	require.NoError(t, err)
	require.True(t, p.LPSupply().IsZero())

	amounts := []sdkmath.Int{
		sdkmath.NewIntWithDecimal(100_000, 18),
		sdkmath.NewIntWithDecimal(100_000, 18),
	}
	mint, err := p.AddLiquidity(amounts, sdkmath.ZeroInt())
	require.NoError(t, err)
	require.Equal(t, p.D(), mint)
	require.Equal(t, mint, p.LPSupply())

	// No imbalance fee on the first deposit.
	for _, b := range p.AdminBalances() {
		require.True(t, b.IsZero())
	}

	// An imbalanced first deposit also mints exactly D.
	p2, err := New(Config{
		A:        100,
		N:        2,
		Balances: []sdkmath.Int{sdkmath.ZeroInt(), sdkmath.ZeroInt()},
		Fee:      4_000_000,
	})
	require.NoError(t, err)
	mint2, err := p2.AddLiquidity([]sdkmath.Int{
		sdkmath.NewIntWithDecimal(150_000, 18),
		sdkmath.NewIntWithDecimal(50_000, 18),
	}, sdkmath.ZeroInt())
	require.NoError(t, err)
	require.Equal(t, p2.D(), mint2)
}

func TestAddLiquidityMatchesCalcTokenAmount(t *testing.T) {
	p := newGoldenPool(t)
	amounts := []sdkmath.Int{
		sdkmath.NewIntWithDecimal(50_000, 6),
		sdkmath.NewIntWithDecimal(10_000, 6),
	}

	expected, err := p.CalcTokenAmount(amounts, true)
	require.NoError(t, err)

	mint, err := p.AddLiquidity(amounts, sdkmath.ZeroInt())
	require.NoError(t, err)
	require.Equal(t, expected, mint)
}

func TestRemoveLiquidityProportional(t *testing.T) {
	p := newGoldenPool(t)
	supply := p.LPSupply()
	before := p.Balances()

	burn := supply.QuoRaw(2)
	out, err := p.RemoveLiquidity(burn, nil)
	require.NoError(t, err)

	// The burn is haircut by one unit, so each payout rounds below the
	// exact proportional share and the dust stays with remaining LPs.
	for i := range out {
		require.Equal(t, before[i].Mul(burn.SubRaw(1)).Quo(supply), out[i])
		require.True(t, out[i].LT(before[i].Mul(burn).Quo(supply)),
			"coin %d payout %s not rounded down", i, out[i])
	}
	require.Equal(t, supply.Sub(burn), p.LPSupply())
}

func TestRemoveLiquidityOneCoinMatchesCalc(t *testing.T) {
	p := newGoldenPool(t)
	burn := p.LPSupply().QuoRaw(10)

	wantDy, wantFee, err := p.CalcWithdrawOneCoin(burn, 0)
	require.NoError(t, err)
	require.True(t, wantDy.IsPositive())
	require.True(t, wantFee.IsPositive())

	dy, fee, err := p.RemoveLiquidityOneCoin(burn, 0, sdkmath.ZeroInt())
	require.NoError(t, err)
	require.Equal(t, wantDy, dy)
	require.Equal(t, wantFee, fee)
}

func TestRemoveLiquidityImbalanceBurnCeiling(t *testing.T) {
	p := newGoldenPool(t)
	before := p.Balances()
	supply := p.LPSupply()

	amounts := []sdkmath.Int{sdkmath.NewIntWithDecimal(10_000, 6), sdkmath.ZeroInt()}
	_, err := p.RemoveLiquidityImbalance(amounts, sdkmath.NewInt(1))
	require.ErrorIs(t, err, pool.ErrSlippage)
	require.Equal(t, before, p.Balances())
	require.Equal(t, supply, p.LPSupply())

	burn, err := p.RemoveLiquidityImbalance(amounts, sdkmath.ZeroInt())
	require.NoError(t, err)
	require.True(t, burn.IsPositive())
	require.Equal(t, before[0].Sub(amounts[0]), p.Balances()[0])
	require.Equal(t, supply.Sub(burn), p.LPSupply())
}

func TestVirtualPriceGrowsWithTrading(t *testing.T) {
	p := newGoldenPool(t)
	vp0, err := p.VirtualPrice()
	require.NoError(t, err)

	for k := 0; k < 5; k++ {
		_, _, err := p.Exchange(k%2, (k+1)%2, sdkmath.NewInt(1_000_000_000), sdkmath.ZeroInt())
		require.NoError(t, err)
	}

	vp1, err := p.VirtualPrice()
	require.NoError(t, err)
	require.True(t, vp1.GT(vp0), "virtual price %s -> %s", vp0, vp1)
}

func TestDynamicFeeBounds(t *testing.T) {
	mk := func(feeMul int64, balances []sdkmath.Int) *Pool {
		p, err := New(Config{
			A:        250,
			N:        2,
			Balances: balances,
			Fee:      4_000_000,
			FeeMul:   feeMul,
		})
		require.NoError(t, err)
		return p
	}
	balanced := []sdkmath.Int{
		sdkmath.NewIntWithDecimal(500_000, 18),
		sdkmath.NewIntWithDecimal(500_000, 18),
	}
	skewed := []sdkmath.Int{
		sdkmath.NewIntWithDecimal(900_000, 18),
		sdkmath.NewIntWithDecimal(100_000, 18),
	}

	// A balanced pool charges essentially the base fee.
	flat := mk(0, balanced)
	dyn := mk(2*1e10, balanced)
	dx := sdkmath.NewIntWithDecimal(1_000, 18)
	_, feeFlat, err := flat.Exchange(0, 1, dx, sdkmath.ZeroInt())
	require.NoError(t, err)
	_, feeDyn, err := dyn.Exchange(0, 1, dx, sdkmath.ZeroInt())
	require.NoError(t, err)
	require.True(t, feeDyn.GTE(feeFlat))
	require.True(t, feeDyn.LTE(feeFlat.MulRaw(101).QuoRaw(100)))

	// A skewed pool charges more, but never above feeMul times the base.
	flatSkew := mk(0, skewed)
	dynSkew := mk(2*1e10, skewed)
	_, feeFlatSkew, err := flatSkew.Exchange(0, 1, dx, sdkmath.ZeroInt())
	require.NoError(t, err)
	_, feeDynSkew, err := dynSkew.Exchange(0, 1, dx, sdkmath.ZeroInt())
	require.NoError(t, err)
	require.True(t, feeDynSkew.GT(feeFlatSkew))
	require.True(t, feeDynSkew.LTE(feeFlatSkew.MulRaw(2)))
}

func TestRampAInterpolation(t *testing.T) {
	p := newGoldenPool(t)
	require.Equal(t, int64(250), p.A())

	require.NoError(t, p.RampA(450, 1_000))
	require.Equal(t, int64(250), p.A())

	prev := p.A()
	for _, ts := range []int64{100, 250, 500, 750, 999} {
		p.PrepareForTrades(ts)
		a := p.A()
		require.GreaterOrEqual(t, a, prev, "ramp must be monotonic")
		prev = a
	}
	p.PrepareForTrades(500_000)
	require.Equal(t, int64(450), p.A())

	// Clock never runs backward.
	p.PrepareForTrades(10)
	require.Equal(t, int64(450), p.A())

	// Downward ramps interpolate too.
	require.NoError(t, p.RampA(225, 600_000))
	p.PrepareForTrades(550_000)
	a := p.A()
	require.Less(t, a, int64(450))
	require.Greater(t, a, int64(225))
}

func TestSnapshotRevertRestoresState(t *testing.T) {
	p := newGoldenPool(t)
	snap := p.Snapshot()
	before := p.Balances()
	supply := p.LPSupply()

	_, _, err := p.Exchange(0, 1, sdkmath.NewInt(250_000_000), sdkmath.ZeroInt())
	require.NoError(t, err)
	_, err = p.AddLiquidity([]sdkmath.Int{sdkmath.NewInt(1_000_000), sdkmath.NewInt(2_000_000)}, sdkmath.ZeroInt())
	require.NoError(t, err)
	require.NotEqual(t, before, p.Balances())

	require.NoError(t, p.Revert(snap))
	require.Equal(t, before, p.Balances())
	require.Equal(t, supply, p.LPSupply())

	// Snapshots from another pool type are rejected.
	other := newGoldenPool(t)
	require.Error(t, p.Revert(struct{}{}))
	require.NoError(t, p.Revert(other.Snapshot()))
}

func TestMaxTradeSizeLeavesDust(t *testing.T) {
	p := newGoldenPool(t)

	maxDx, err := p.MaxTradeSize(0, 1)
	require.NoError(t, err)
	require.True(t, maxDx.IsPositive())

	_, _, err = p.Exchange(0, 1, maxDx, sdkmath.ZeroInt())
	require.NoError(t, err)

	// The out-coin should be close to drained, to roughly 1% of the
	// original balance.
	left := p.Balances()[1]
	require.True(t, left.IsPositive())
	require.True(t, left.LT(sdkmath.NewIntWithDecimal(20_000, 6)), "left = %s", left)
}

func TestDydxMatchesExecutionPrice(t *testing.T) {
	p := newGoldenPool(t)

	price, err := p.Dydx(0, 1, false)
	require.NoError(t, err)
	require.InDelta(t, 1.0, price, 0.001)

	// A tiny probe trade on a snapshot must realize approximately the
	// quoted spot price.
	snap := p.Snapshot()
	dx := sdkmath.NewInt(10_000_000)
	dy, _, err := p.Exchange(0, 1, dx, sdkmath.ZeroInt())
	require.NoError(t, err)
	require.NoError(t, p.Revert(snap))

	withFee, err := p.Dydx(0, 1, true)
	require.NoError(t, err)
	exec := float64(dy.Int64()) / float64(dx.Int64())
	require.InDelta(t, withFee, exec, 0.0005)
}

func TestNonConvergenceIsObservable(t *testing.T) {
	p := newGoldenPool(t)
	require.Zero(t, p.NonConvergedCount())
	_ = p.D()
	// Well-conditioned pools converge well inside the budget.
	require.Zero(t, p.NonConvergedCount())
}
