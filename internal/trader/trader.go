/*

Arbitrage trader.

Each timestep the trader compares the pool's fee-inclusive spot price of every
coin pair with the external market price, sizes the trade that closes the gap
by integer bisection against pool snapshots, and executes the sized trades
largest first. A failed probe or execution never leaves partial state behind;
the pools guarantee atomicity per trade.

*/

package trader

import (
	"fmt"
	"math"
	"sort"

	sdkmath "cosmossdk.io/math"

	"github.com/ammlabs/poolsim/internal/logger"
	"github.com/ammlabs/poolsim/internal/pool"
	"github.com/ammlabs/poolsim/internal/types"
)

var log = logger.GetForComponent("trader")

// maxBisectIters bounds the integer bisection. Trade sizes fit well inside
// 2^96 native units, so the bracket always collapses to adjacent integers
// before the cap is hit.
const maxBisectIters = 96

// arbTrade is a sized trade candidate: sell Size of coin In for coin Out to
// move the pool's In/Out price down to Target.
type arbTrade struct {
	In, Out int
	Size    sdkmath.Int
	Target  float64
}

// Arbitrageur computes and executes arbitrage trades on one pool.
type Arbitrageur struct {
	pool  pool.SimPool
	pairs []types.Pair
}

// New returns an arbitrageur for the given pool.
func New(p pool.SimPool) *Arbitrageur {
	return &Arbitrageur{pool: p, pairs: pool.Pairs(p.NumCoins())}
}

// ProcessSample arbitrages the pool against one market sample. limits carries
// the per-pair trade budget in units of D; a nil map means unconstrained.
// It returns the executed trades and the post-trade price error per pair
// (pool price minus market price, fee included).
func (a *Arbitrageur) ProcessSample(
	prices map[types.Pair]float64,
	limits map[types.Pair]float64,
) ([]types.TradeResult, map[types.Pair]float64, error) {
	candidates, err := a.computeTrades(prices, limits)
	if err != nil {
		return nil, nil, err
	}

	// Largest first: the big trade moves the shared balances most, so the
	// smaller ones should be sized against a state as close as possible to
	// the one they will execute in. Ties break on pair order to keep
	// parallel and sequential runs identical.
	sort.SliceStable(candidates, func(x, y int) bool {
		return candidates[x].Size.GT(candidates[y].Size)
	})

	var results []types.TradeResult
	for _, c := range candidates {
		res, err := a.pool.Trade(c.In, c.Out, c.Size)
		if err != nil {
			log.Warn().
				Int("coin_in", c.In).
				Int("coin_out", c.Out).
				Str("size", c.Size.String()).
				Err(err).
				Msg("sized trade rejected on execution, skipping")
			continue
		}
		results = append(results, res)
	}

	errors := make(map[types.Pair]float64, len(a.pairs))
	for _, pr := range a.pairs {
		target, ok := prices[pr]
		if !ok {
			continue
		}
		price, err := a.pool.Price(pr.I, pr.J, true)
		if err != nil {
			return nil, nil, fmt.Errorf("post-trade price %d/%d: %w", pr.I, pr.J, err)
		}
		errors[pr] = price - target
	}
	return results, errors, nil
}

// computeTrades sizes one candidate trade per mispriced pair, each against
// the current (pre-trade) pool state.
func (a *Arbitrageur) computeTrades(
	prices map[types.Pair]float64,
	limits map[types.Pair]float64,
) ([]arbTrade, error) {
	var out []arbTrade
	for _, pr := range a.pairs {
		market, ok := prices[pr]
		if !ok || market <= 0 {
			continue
		}

		// Pick the profitable direction: sell whichever coin the pool
		// overprices relative to the market.
		in, outCoin, target := pr.I, pr.J, market
		price, err := a.pool.Price(pr.I, pr.J, true)
		if err != nil {
			return nil, fmt.Errorf("price %d/%d: %w", pr.I, pr.J, err)
		}
		if price <= market {
			reverse, err := a.pool.Price(pr.J, pr.I, true)
			if err != nil {
				return nil, fmt.Errorf("price %d/%d: %w", pr.J, pr.I, err)
			}
			if reverse <= 1/market {
				continue // inside the fee band, nothing to close
			}
			in, outCoin, target = pr.J, pr.I, 1/market
		}

		size, err := a.sizeTrade(in, outCoin, target, limits[pr])
		if err != nil {
			return nil, err
		}
		if size.LTE(a.pool.MinTradeSize(in)) {
			continue
		}
		out = append(out, arbTrade{In: in, Out: outCoin, Size: size, Target: target})
	}
	return out, nil
}

// sizeTrade bisects the in-amount that brings the pool's fee-inclusive
// in/out price down to target, bounded above by the pool's max trade size
// and the volume limit. limit <= 0 means unlimited.
func (a *Arbitrageur) sizeTrade(in, out int, target, limit float64) (sdkmath.Int, error) {
	zero := sdkmath.ZeroInt()
	hi, err := a.pool.MaxTradeSize(in, out)
	if err != nil {
		return zero, fmt.Errorf("max trade size %d/%d: %w", in, out, err)
	}
	if budget := a.volumeCap(in, limit); !budget.IsNil() && budget.LT(hi) {
		hi = budget
	}
	if !hi.IsPositive() {
		return zero, nil
	}

	errHi, err := a.postTradeError(in, out, hi, target)
	if err != nil {
		return zero, err
	}
	if errHi > 0 {
		// The bound binds before the target is reached: trade it all.
		return hi, nil
	}

	lo := zero // error at zero is positive by direction choice
	for iter := 0; iter < maxBisectIters && hi.Sub(lo).GT(sdkmath.OneInt()); iter++ {
		mid := lo.Add(hi).QuoRaw(2)
		e, err := a.postTradeError(in, out, mid, target)
		if err != nil {
			return zero, err
		}
		if e > 0 {
			lo = mid
		} else {
			hi = mid
		}
	}
	// lo never crosses the target, so the trader stops just short of it.
	return lo, nil
}

// postTradeError probes the fee-inclusive price after a hypothetical trade
// and restores the pool. A probe the pool rejects reads as overshot, which
// steers the bisection back down.
func (a *Arbitrageur) postTradeError(in, out int, dx sdkmath.Int, target float64) (float64, error) {
	snap := a.pool.Snapshot()
	defer func() {
		if err := a.pool.Revert(snap); err != nil {
			log.Error().Err(err).Msg("snapshot revert failed after probe")
		}
	}()

	if dx.IsPositive() {
		if _, err := a.pool.Trade(in, out, dx); err != nil {
			return math.Inf(-1), nil
		}
	}
	price, err := a.pool.Price(in, out, true)
	if err != nil {
		return 0, fmt.Errorf("probe price %d/%d: %w", in, out, err)
	}
	return price - target, nil
}

// volumeCap converts a volume limit in D units to native units of the in
// coin. Zero and negative limits mean unconstrained.
func (a *Arbitrageur) volumeCap(in int, limit float64) sdkmath.Int {
	if limit <= 0 {
		return sdkmath.Int{} // no cap
	}
	return pool.NativeAmount(a.pool, in, limit)
}
