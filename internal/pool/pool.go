/*

Shared interfaces implemented by every simulated pool.

The trader and strategy only see SimPool; the concrete stableswap, metapool
and cryptoswap types live in subpackages.

*/

package pool

import (
	sdkmath "cosmossdk.io/math"

	fp "github.com/ammlabs/poolsim/internal/fixedpoint"
	"github.com/ammlabs/poolsim/internal/types"
	"github.com/ammlabs/poolsim/internal/utils"
)

// Snapshot is an opaque capture of a pool's full mutable state. Each pool
// implementation returns its own concrete type and only accepts that type
// back in Revert.
type Snapshot interface{}

// SimPool is the trading surface the arbitrage trader drives.
//
// Price quotes are floats for the optimizer; all trade execution is integer
// exact. Implementations must be atomic: a Trade that returns an error leaves
// the pool state untouched.
type SimPool interface {
	// NumCoins returns the number of tradable coins.
	NumCoins() int

	// Price returns the spot price of coin i quoted in coin j for an
	// infinitesimal trade, optionally with the trading fee deducted.
	Price(i, j int, useFee bool) (float64, error)

	// Trade sells dx of coin i for coin j with no minimum-output floor.
	Trade(i, j int, dx sdkmath.Int) (types.TradeResult, error)

	// MaxTradeSize returns the largest in-amount of coin i (native units)
	// the trader will consider for the i->j direction.
	MaxTradeSize(i, j int) (sdkmath.Int, error)

	// MinTradeSize returns the smallest in-amount of coin i worth trading;
	// anything below is optimizer noise.
	MinTradeSize(i int) sdkmath.Int

	// PrepareForTrades advances the pool's logical clock to the sample
	// timestamp before any trades for that timestep.
	PrepareForTrades(timestamp int64)

	// Value returns the pool's total value in units of D.
	Value() (float64, error)

	// Snapshot captures the full mutable state; Revert restores it.
	Snapshot() Snapshot
	Revert(Snapshot) error
}

// Every pool quotes MinTradeSize as the native amount worth 10^15 of the
// 10^18-scaled invariant, which makes it the exchange rate between native
// units of a coin and units of D.
const minTradeWorthD = 0.001

// NativeAmount converts a value in units of D to native units of coin i.
func NativeAmount(p SimPool, i int, value float64) sdkmath.Int {
	if value <= 0 {
		return sdkmath.ZeroInt()
	}
	units, err := utils.Float64ToSDKInt(value/minTradeWorthD, 0)
	if err != nil {
		return sdkmath.Int{}
	}
	return p.MinTradeSize(i).Mul(units)
}

// ValueOf converts a native amount of coin i to units of D.
func ValueOf(p SimPool, i int, amount sdkmath.Int) float64 {
	min := p.MinTradeSize(i)
	if !min.IsPositive() {
		return 0
	}
	return fp.RatioFloat(amount.BigInt(), min.BigInt()) * minTradeWorthD
}

// Pairs enumerates the unordered coin pairs of an n-coin pool in (i<j) order.
func Pairs(n int) []types.Pair {
	var out []types.Pair
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			out = append(out, types.Pair{I: i, J: j})
		}
	}
	return out
}
