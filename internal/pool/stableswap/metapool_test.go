package stableswap

import (
	"testing"

	sdkmath "cosmossdk.io/math"
	"github.com/stretchr/testify/require"

	"github.com/ammlabs/poolsim/internal/pool"
)

// newTestMeta builds an 18-decimal primary paired against a two-coin base
// pool of 6-decimal stables.
func newTestMeta(t *testing.T) *MetaPool {
	t.Helper()
	base, err := New(Config{
		A:     1000,
		N:     2,
		D:     sdkmath.NewIntWithDecimal(2_000_000, 18),
		Rates: []sdkmath.Int{sdkmath.NewIntWithDecimal(1, 30), sdkmath.NewIntWithDecimal(1, 30)},
		Fee:   4_000_000,
	})
	require.NoError(t, err)

	m, err := NewMeta(MetaConfig{
		A:    250,
		N:    2,
		D:    sdkmath.NewIntWithDecimal(1_000_000, 18),
		Fee:  4_000_000,
		Base: base,
	})
	require.NoError(t, err)
	return m
}

func TestMetaNumCoinsAndMaxCoin(t *testing.T) {
	m := newTestMeta(t)
	require.Equal(t, 3, m.NumCoins()) // primary + 2 base underlyers
	require.Equal(t, 1, m.MaxCoin())
}

func TestMetaRatesTrackBaseVirtualPrice(t *testing.T) {
	m := newTestMeta(t)
	d0, err := m.D()
	require.NoError(t, err)
	vp0, err := m.base.VirtualPrice()
	require.NoError(t, err)

	// Trading in the base pool accrues fees to base LPs, raising the
	// virtual price and therefore the metapool's valuation of its LP leg.
	for k := 0; k < 10; k++ {
		_, _, err := m.base.Exchange(k%2, (k+1)%2, sdkmath.NewIntWithDecimal(50_000, 6), sdkmath.ZeroInt())
		require.NoError(t, err)
	}

	vp1, err := m.base.VirtualPrice()
	require.NoError(t, err)
	require.True(t, vp1.GT(vp0))

	d1, err := m.D()
	require.NoError(t, err)
	require.True(t, d1.GT(d0), "meta D %s -> %s", d0, d1)
}

func TestExchangeUnderlyingPrimaryToBase(t *testing.T) {
	m := newTestMeta(t)
	metaBefore := m.Balances()
	baseSupplyBefore := m.base.LPSupply()

	dx := sdkmath.NewIntWithDecimal(1_000, 18)
	dy, fee, err := m.ExchangeUnderlying(0, 1, dx, sdkmath.ZeroInt())
	require.NoError(t, err)

	// Out coin is a 6-decimal base stable near peg.
	require.True(t, dy.GT(sdkmath.NewInt(990_000_000)), "dy = %s", dy)
	require.True(t, dy.LT(sdkmath.NewInt(1_001_000_000)), "dy = %s", dy)
	require.True(t, fee.IsPositive())

	metaAfter := m.Balances()
	require.Equal(t, metaBefore[0].Add(dx), metaAfter[0])
	// The LP leg was withdrawn from the base pool, burning base LP.
	require.True(t, m.base.LPSupply().LT(baseSupplyBefore))
}

func TestExchangeUnderlyingBaseToPrimary(t *testing.T) {
	m := newTestMeta(t)
	baseBefore := m.base.Balances()

	dx := sdkmath.NewIntWithDecimal(1_000, 6)
	dy, _, err := m.ExchangeUnderlying(1, 0, dx, sdkmath.ZeroInt())
	require.NoError(t, err)

	// Out coin is the 18-decimal primary.
	require.True(t, dy.GT(sdkmath.NewIntWithDecimal(990, 18)), "dy = %s", dy)
	require.True(t, dy.LT(sdkmath.NewIntWithDecimal(1_001, 18)), "dy = %s", dy)

	// The base deposit landed in the base pool.
	require.Equal(t, baseBefore[0].Add(dx), m.base.Balances()[0])
}

func TestExchangeUnderlyingBothBaseDelegates(t *testing.T) {
	m := newTestMeta(t)
	metaBefore := m.Balances()
	baseBefore := m.base.Balances()

	dx := sdkmath.NewIntWithDecimal(1_000, 6)
	dy, _, err := m.ExchangeUnderlying(1, 2, dx, sdkmath.ZeroInt())
	require.NoError(t, err)
	require.True(t, dy.IsPositive())

	// Meta-level balances are untouched; only the base pool moved.
	require.Equal(t, metaBefore, m.Balances())
	require.Equal(t, baseBefore[0].Add(dx), m.base.Balances()[0])
	require.True(t, m.base.Balances()[1].LT(baseBefore[1]))
}

func TestExchangeUnderlyingAtomicOnSlippage(t *testing.T) {
	m := newTestMeta(t)
	metaBefore := m.Balances()
	baseBefore := m.base.Balances()
	baseSupply := m.base.LPSupply()

	// Base-to-primary routes through a base deposit before the meta swap;
	// the slippage failure must unwind the deposit too.
	dx := sdkmath.NewIntWithDecimal(1_000, 6)
	_, _, err := m.ExchangeUnderlying(1, 0, dx, sdkmath.NewIntWithDecimal(2_000, 18))
	require.ErrorIs(t, err, pool.ErrSlippage)

	require.Equal(t, metaBefore, m.Balances())
	require.Equal(t, baseBefore, m.base.Balances())
	require.Equal(t, baseSupply, m.base.LPSupply())
}

func TestMetaPriceMatchesExecution(t *testing.T) {
	m := newTestMeta(t)

	for _, pair := range [][2]int{{0, 1}, {1, 0}, {1, 2}} {
		i, j := pair[0], pair[1]
		price, err := m.Price(i, j, true)
		require.NoError(t, err)
		require.InDelta(t, 1.0, price, 0.01)

		snap := m.Snapshot()
		dx := m.MinTradeSize(i).MulRaw(1000)
		res, err := m.Trade(i, j, dx)
		require.NoError(t, err)
		require.NoError(t, m.Revert(snap))

		exec := res.AmountOut.ToLegacyDec().MustFloat64() / dx.ToLegacyDec().MustFloat64()
		// Adjust for decimal difference between legs.
		switch {
		case i == 0 && j > 0:
			exec *= 1e12
		case i > 0 && j == 0:
			exec /= 1e12
		}
		require.InDelta(t, price, exec, 0.01, "pair %d->%d", i, j)
	}
}

func TestMetaSnapshotCoversBase(t *testing.T) {
	m := newTestMeta(t)
	snap := m.Snapshot()
	metaBefore := m.Balances()
	baseBefore := m.base.Balances()

	_, _, err := m.ExchangeUnderlying(0, 1, sdkmath.NewIntWithDecimal(5_000, 18), sdkmath.ZeroInt())
	require.NoError(t, err)
	_, _, err = m.base.Exchange(0, 1, sdkmath.NewIntWithDecimal(5_000, 6), sdkmath.ZeroInt())
	require.NoError(t, err)

	require.NoError(t, m.Revert(snap))
	require.Equal(t, metaBefore, m.Balances())
	require.Equal(t, baseBefore, m.base.Balances())
}

func TestMetaAddRemoveLiquidity(t *testing.T) {
	m := newTestMeta(t)
	supply := m.LPSupply()

	amounts := []sdkmath.Int{sdkmath.NewIntWithDecimal(10_000, 18), sdkmath.ZeroInt()}
	mint, err := m.AddLiquidity(amounts, sdkmath.ZeroInt())
	require.NoError(t, err)
	require.True(t, mint.IsPositive())
	require.Equal(t, supply.Add(mint), m.LPSupply())

	dy, fee, err := m.RemoveLiquidityOneCoin(mint, 0, sdkmath.ZeroInt())
	require.NoError(t, err)
	require.True(t, dy.IsPositive())
	require.True(t, fee.IsPositive())
	// Imbalance fees make the round trip lossy.
	require.True(t, dy.LT(amounts[0]))
	require.Equal(t, supply, m.LPSupply())
}
