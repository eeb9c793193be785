package stableswap

import (
	"fmt"
	"math/big"

	sdkmath "cosmossdk.io/math"

	fp "github.com/ammlabs/poolsim/internal/fixedpoint"
	"github.com/ammlabs/poolsim/internal/pool"
	"github.com/ammlabs/poolsim/internal/types"
)

// metaSnapshot pairs the meta-level state with a base pool snapshot so a
// routed underlying trade can be rolled back across both pools.
type metaSnapshot struct {
	balances      []*big.Int
	adminBalances []*big.Int
	lpSupply      *big.Int
	initialA      int64
	futureA       int64
	initialATime  int64
	futureATime   int64
	now           int64
	nonConverged  uint64
	base          pool.Snapshot
}

// Snapshot captures both the meta-level and base pool state.
func (m *MetaPool) Snapshot() pool.Snapshot {
	return &metaSnapshot{
		balances:      fp.CloneSlice(m.balances),
		adminBalances: fp.CloneSlice(m.adminBalances),
		lpSupply:      fp.Clone(m.lpSupply),
		initialA:      m.initialA,
		futureA:       m.futureA,
		initialATime:  m.initialATime,
		futureATime:   m.futureATime,
		now:           m.now,
		nonConverged:  m.nonConverged,
		base:          m.base.Snapshot(),
	}
}

// Revert restores state captured by Snapshot on this metapool.
func (m *MetaPool) Revert(s pool.Snapshot) error {
	snap, ok := s.(*metaSnapshot)
	if !ok {
		return fmt.Errorf("snapshot type %T does not belong to a metapool", s)
	}
	if len(snap.balances) != m.n {
		return fmt.Errorf("snapshot holds %d coins, pool has %d", len(snap.balances), m.n)
	}
	if err := m.base.Revert(snap.base); err != nil {
		return fmt.Errorf("base pool: %w", err)
	}
	m.balances = fp.CloneSlice(snap.balances)
	m.adminBalances = fp.CloneSlice(snap.adminBalances)
	m.lpSupply = fp.Clone(snap.lpSupply)
	m.initialA = snap.initialA
	m.futureA = snap.futureA
	m.initialATime = snap.initialATime
	m.futureATime = snap.futureATime
	m.now = snap.now
	m.nonConverged = snap.nonConverged
	return nil
}

// Price implements pool.SimPool over underlying coin indices.
func (m *MetaPool) Price(i, j int, useFee bool) (float64, error) {
	return m.Dydx(i, j, useFee)
}

// Trade implements pool.SimPool: an underlying exchange with no floor.
func (m *MetaPool) Trade(i, j int, dx sdkmath.Int) (types.TradeResult, error) {
	dy, fee, err := m.ExchangeUnderlying(i, j, dx, sdkmath.ZeroInt())
	if err != nil {
		return types.TradeResult{}, err
	}
	return types.TradeResult{
		Trade:     types.Trade{CoinIn: i, CoinOut: j, AmountIn: dx},
		AmountOut: dy,
		Fee:       fee,
		Timestamp: m.now,
	}, nil
}

// MaxTradeSize bounds an underlying trade. Base pairs delegate to the base
// pool; routed pairs are bounded at the meta level, with the LP leg
// converted to underlying units by the base virtual price.
func (m *MetaPool) MaxTradeSize(i, j int) (sdkmath.Int, error) {
	zero := sdkmath.ZeroInt()
	total := m.NumCoins()
	if i == j {
		return zero, pool.ErrSameCoin
	}
	if i < 0 || i >= total || j < 0 || j >= total {
		return zero, fmt.Errorf("%w: i=%d j=%d n=%d", pool.ErrCoinIndex, i, j, total)
	}
	baseI := i - m.maxCoin
	baseJ := j - m.maxCoin
	if baseI >= 0 && baseJ >= 0 {
		return m.base.MaxTradeSize(baseI, baseJ)
	}
	if err := m.checkMetaLive(); err != nil {
		return zero, err
	}
	rates, err := m.rates()
	if err != nil {
		return zero, err
	}

	metaI, metaJ := m.maxCoin, m.maxCoin
	if baseI < 0 {
		metaI = i
	}
	if baseJ < 0 {
		metaJ = j
	}

	xp := m.xpMem(rates, m.balances)
	xpJ := fp.FloorDiv(xp[metaJ], big.NewInt(outBalancePerc))
	inBalance := m.getY(metaJ, metaI, xpJ, xp)
	inAmount := new(big.Int).Sub(inBalance, xp[metaI])
	if inAmount.Sign() <= 0 {
		return zero, fmt.Errorf("max trade size i=%d j=%d: %w", i, j, pool.ErrZeroTradeAmount)
	}

	if baseI < 0 {
		return fp.ToSDK(fp.MulDiv(inAmount, fp.Precision, rates[metaI])), nil
	}
	// The in-leg is a base coin: the bound is in LP units, convert through
	// the base coin's rate.
	return fp.ToSDK(fp.MulDiv(inAmount, fp.Precision, m.base.rates[baseI])), nil
}

// MinTradeSize returns the noise floor for underlying coin i.
func (m *MetaPool) MinTradeSize(i int) sdkmath.Int {
	baseI := i - m.maxCoin
	if baseI >= 0 {
		return m.base.MinTradeSize(baseI)
	}
	if i < 0 || i >= m.maxCoin {
		return sdkmath.ZeroInt()
	}
	return fp.ToSDK(fp.MulDiv(minTradeD, fp.Precision, m.rateMul[i]))
}

// Value returns the meta-level invariant, which already prices the base LP
// leg at the base virtual price.
func (m *MetaPool) Value() (float64, error) {
	d, err := m.D()
	if err != nil {
		return 0, err
	}
	return fp.BigToFloat(fp.FromSDK(d)) / 1e18, nil
}

var _ pool.SimPool = (*MetaPool)(nil)
