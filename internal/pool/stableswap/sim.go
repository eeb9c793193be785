package stableswap

import (
	"fmt"
	"math/big"

	sdkmath "cosmossdk.io/math"

	fp "github.com/ammlabs/poolsim/internal/fixedpoint"
	"github.com/ammlabs/poolsim/internal/pool"
	"github.com/ammlabs/poolsim/internal/types"
)

// outBalancePerc leaves 1% of the out-coin's normalized balance when sizing
// the largest trade the arbitrageur will consider.
const outBalancePerc = 100 // denominator; max trade drains to 1/100th

// minTradeD is the smallest trade worth executing, in 10^18 units of D.
var minTradeD = fp.Pow10(15)

// Price implements pool.SimPool via the closed-form spot price.
func (p *Pool) Price(i, j int, useFee bool) (float64, error) {
	return p.Dydx(i, j, useFee)
}

// Trade implements pool.SimPool: an exchange with no slippage floor, the
// trader having already sized the trade against a snapshot.
func (p *Pool) Trade(i, j int, dx sdkmath.Int) (types.TradeResult, error) {
	dy, fee, err := p.Exchange(i, j, dx, sdkmath.ZeroInt())
	if err != nil {
		return types.TradeResult{}, err
	}
	return types.TradeResult{
		Trade:     types.Trade{CoinIn: i, CoinOut: j, AmountIn: dx},
		AmountOut: dy,
		Fee:       fee,
		Timestamp: p.now,
	}, nil
}

// MaxTradeSize returns the in-amount of coin i that would leave coin j with
// 1% of its current normalized balance, in native units of coin i.
func (p *Pool) MaxTradeSize(i, j int) (sdkmath.Int, error) {
	if err := p.checkCoins(i, j); err != nil {
		return sdkmath.ZeroInt(), err
	}
	if err := p.checkLive(); err != nil {
		return sdkmath.ZeroInt(), err
	}
	xp := p.xp()
	xpJ := fp.FloorDiv(xp[j], big.NewInt(outBalancePerc))
	// Solving for the in-balance with the roles swapped gives the
	// post-trade balance of coin i directly.
	inBalance := p.getY(j, i, xpJ, xp)
	inAmount := new(big.Int).Sub(inBalance, xp[i])
	if inAmount.Sign() <= 0 {
		return sdkmath.ZeroInt(), fmt.Errorf("max trade size i=%d j=%d: %w", i, j, pool.ErrZeroTradeAmount)
	}
	return fp.ToSDK(fp.MulDiv(inAmount, fp.Precision, p.rates[i])), nil
}

// MinTradeSize returns the native amount of coin i worth 10^15 D units.
func (p *Pool) MinTradeSize(i int) sdkmath.Int {
	if i < 0 || i >= p.n {
		return sdkmath.ZeroInt()
	}
	return fp.ToSDK(fp.MulDiv(minTradeD, fp.Precision, p.rates[i]))
}

// Value returns the invariant D as the pool's total value.
func (p *Pool) Value() (float64, error) {
	return fp.BigToFloat(p.dInternal(p.xp())) / 1e18, nil
}

var _ pool.SimPool = (*Pool)(nil)
