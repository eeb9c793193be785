package cryptoswap

import (
	"fmt"
	"math/big"

	sdkmath "cosmossdk.io/math"

	fp "github.com/ammlabs/poolsim/internal/fixedpoint"
	"github.com/ammlabs/poolsim/internal/pool"
	"github.com/ammlabs/poolsim/internal/types"
)

// outBalancePerc leaves 5% of the out-coin's normalized balance when sizing
// the largest trade the arbitrageur will consider. The solver rejects
// balances below 1% of D, which rules out the deeper drain stableswap uses.
const outBalancePerc = 20 // denominator; max trade drains to 1/20th

// minTradeD is the smallest trade worth executing, in 10^18 units of D.
var minTradeD = fp.Pow10(15)

// priceProbeDiv sizes the spot price probe as a millionth of the in-coin
// balance, matching the probe the repeg uses to infer prices.
var priceProbeDiv = fp.Pow10(6)

// Price implements pool.SimPool by difference quotient: the invariant has no
// tractable closed-form derivative once gamma is involved, so a probe trade
// a millionth of the in-balance stands in for the infinitesimal one.
func (p *Pool) Price(i, j int, useFee bool) (float64, error) {
	if err := p.checkCoins(i, j); err != nil {
		return 0, err
	}
	if err := p.checkLive(); err != nil {
		return 0, err
	}
	dx := fp.FloorDiv(p.balances[i], priceProbeDiv)
	if dx.Sign() <= 0 {
		return 0, fmt.Errorf("coin %d balance too small to probe: %w", i, pool.ErrZeroLiquidity)
	}
	dy, err := p.getDy(i, j, dx, useFee)
	if err != nil {
		return 0, err
	}
	num := new(big.Int).Mul(dy, p.precisions[j])
	den := new(big.Int).Mul(dx, p.precisions[i])
	return fp.RatioFloat(num, den), nil
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
// 5% of its current normalized balance, in native units of coin i.
func (p *Pool) MaxTradeSize(i, j int) (sdkmath.Int, error) {
	if err := p.checkCoins(i, j); err != nil {
		return sdkmath.ZeroInt(), err
	}
	if err := p.checkLive(); err != nil {
		return sdkmath.ZeroInt(), err
	}
	xp := p.xp()
	drained := fp.CloneSlice(xp)
	drained[j] = fp.FloorDiv(xp[j], big.NewInt(outBalancePerc))

	// Solving for the in-balance consistent with the drained out-balance
	// gives the post-trade balance of coin i directly.
	inBalance, err := newtonY(p.a, p.gamma, drained, p.d, i)
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	inAmount := new(big.Int).Sub(inBalance, xp[i])
	if inAmount.Sign() <= 0 {
		return sdkmath.ZeroInt(), fmt.Errorf("max trade size i=%d j=%d: %w", i, j, pool.ErrZeroTradeAmount)
	}
	return fp.ToSDK(p.fromNormalized(inAmount, i)), nil
}

// MinTradeSize returns the native amount of coin i worth 10^15 D units.
func (p *Pool) MinTradeSize(i int) sdkmath.Int {
	if i < 0 || i >= p.n {
		return sdkmath.ZeroInt()
	}
	return fp.ToSDK(p.fromNormalized(minTradeD, i))
}

// fromNormalized converts an amount in 10^18 D units to native units of
// coin i at the current price scale.
func (p *Pool) fromNormalized(amount *big.Int, i int) *big.Int {
	if i == 0 {
		return fp.FloorDiv(amount, p.precisions[0])
	}
	return fp.MulDiv(amount, fp.Precision, new(big.Int).Mul(p.priceScale[i-1], p.precisions[i]))
}

// Value returns the invariant D as the pool's total value: the coin 0 worth
// of the balanced holdings at the current price scale.
func (p *Pool) Value() (float64, error) {
	return fp.BigToFloat(p.d) / 1e18, nil
}

var _ pool.SimPool = (*Pool)(nil)
