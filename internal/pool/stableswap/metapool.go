/*

Stableswap metapool: a primary stable paired with the LP token of a base
pool. Underlying-index operations route through the base pool; the base LP
token is priced by the base pool's live virtual price.

*/

package stableswap

import (
	"fmt"
	"math/big"

	sdkmath "cosmossdk.io/math"

	fp "github.com/ammlabs/poolsim/internal/fixedpoint"
	"github.com/ammlabs/poolsim/internal/pool"
)

// MetaConfig describes a metapool. The last meta coin is always the base
// pool's LP token.
type MetaConfig struct {
	A int64
	// N is the number of meta-level coins including the base LP, usually 2.
	N int
	// D is the virtual total balance used to derive even starting balances.
	D sdkmath.Int
	// Balances are explicit meta-level starting balances in native units.
	Balances []sdkmath.Int
	// Rates are meta-level rate multipliers; the base LP slot is ignored
	// and replaced by the live virtual price. Defaults to 10^18 each.
	Rates []sdkmath.Int
	// LPSupply is the starting meta LP supply; defaults to D of the
	// starting balances.
	LPSupply sdkmath.Int
	Fee      int64
	FeeMul   int64
	AdminFee int64
	// Base is the underlying pool. Its coins must have at least 6
	// decimals (rate <= 10^30); coarser coins break the difference
	// quotient used for base->primary pricing.
	Base *Pool
}

// MetaPool is a stableswap metapool. Not safe for concurrent use.
type MetaPool struct {
	n        int // meta-level coins
	maxCoin  int // index of the base LP slot
	balances []*big.Int
	rateMul  []*big.Int // static meta-level multipliers
	fee      int64
	feeMul   int64
	adminFee int64

	lpSupply      *big.Int
	adminBalances []*big.Int

	base *Pool

	initialA     int64
	futureA      int64
	initialATime int64
	futureATime  int64
	now          int64

	nonConverged uint64
}

// NewMeta validates cfg and builds the metapool.
func NewMeta(cfg MetaConfig) (*MetaPool, error) {
	if cfg.Base == nil {
		return nil, fmt.Errorf("metapool requires a base pool")
	}
	if cfg.N < 2 {
		return nil, fmt.Errorf("%w: need at least 2 meta coins, got %d", pool.ErrCoinIndex, cfg.N)
	}
	if cfg.A <= 0 {
		return nil, fmt.Errorf("amplification must be positive, got %d", cfg.A)
	}
	if cfg.Fee == 0 {
		cfg.Fee = DefaultFee
	}
	if cfg.Fee < 0 || cfg.Fee > 1e10 {
		return nil, fmt.Errorf("fee out of range: %d", cfg.Fee)
	}
	if cfg.AdminFee < 0 || cfg.AdminFee > 1e10 {
		return nil, fmt.Errorf("admin fee out of range: %d", cfg.AdminFee)
	}
	if cfg.FeeMul < 0 || (cfg.FeeMul > 0 && cfg.FeeMul < 1e10) {
		return nil, fmt.Errorf("fee multiplier must be 0 or >= 10^10, got %d", cfg.FeeMul)
	}
	maxRate := fp.Pow10(30)
	for i, r := range cfg.Base.rates {
		if r.Cmp(maxRate) > 0 {
			return nil, fmt.Errorf("base coin %d rate %s too high: decimals must be >= 6", i, r)
		}
	}

	rateMul := make([]*big.Int, cfg.N)
	for i := range rateMul {
		if cfg.Rates == nil {
			rateMul[i] = fp.Clone(fp.Precision)
			continue
		}
		if len(cfg.Rates) != cfg.N {
			return nil, fmt.Errorf("got %d rates for %d coins", len(cfg.Rates), cfg.N)
		}
		if !cfg.Rates[i].IsPositive() {
			return nil, fmt.Errorf("rate for coin %d must be positive", i)
		}
		rateMul[i] = fp.FromSDK(cfg.Rates[i])
	}

	m := &MetaPool{
		n:        cfg.N,
		maxCoin:  cfg.N - 1,
		rateMul:  rateMul,
		fee:      cfg.Fee,
		feeMul:   cfg.FeeMul,
		adminFee: cfg.AdminFee,
		base:     cfg.Base,
		initialA: cfg.A,
		futureA:  cfg.A,
	}

	rates, err := m.rates()
	if err != nil {
		return nil, err
	}

	balances := make([]*big.Int, cfg.N)
	switch {
	case cfg.Balances != nil:
		if len(cfg.Balances) != cfg.N {
			return nil, fmt.Errorf("got %d balances for %d coins", len(cfg.Balances), cfg.N)
		}
		for i := range balances {
			if cfg.Balances[i].IsNegative() {
				return nil, fmt.Errorf("balance for coin %d: %w", i, pool.ErrNegativeBalance)
			}
			balances[i] = fp.FromSDK(cfg.Balances[i])
		}
	case !cfg.D.IsNil() && cfg.D.IsPositive():
		share := fp.FloorDiv(fp.FromSDK(cfg.D), big.NewInt(int64(cfg.N)))
		for i := range balances {
			balances[i] = fp.MulDiv(share, fp.Precision, rates[i])
		}
	default:
		return nil, fmt.Errorf("either D or Balances must be provided")
	}
	m.balances = balances

	m.adminBalances = make([]*big.Int, cfg.N)
	for i := range m.adminBalances {
		m.adminBalances[i] = new(big.Int)
	}

	if !cfg.LPSupply.IsNil() && cfg.LPSupply.IsPositive() {
		m.lpSupply = fp.FromSDK(cfg.LPSupply)
	} else {
		d, ok := solveD(m.xpMem(rates, m.balances), m.ann())
		m.noteConvergence("D", ok)
		m.lpSupply = d
	}
	return m, nil
}

// NumCoins returns the number of underlying coins: the primaries plus every
// base pool coin.
func (m *MetaPool) NumCoins() int { return m.n + m.base.n - 1 }

// MaxCoin returns the meta-level index of the base LP slot.
func (m *MetaPool) MaxCoin() int { return m.maxCoin }

// Base returns the underlying base pool.
func (m *MetaPool) Base() *Pool { return m.base }

// Balances returns the meta-level balances in native units.
func (m *MetaPool) Balances() []sdkmath.Int {
	out := make([]sdkmath.Int, m.n)
	for i, b := range m.balances {
		out[i] = fp.ToSDK(b)
	}
	return out
}

// LPSupply returns the meta LP token supply.
func (m *MetaPool) LPSupply() sdkmath.Int { return fp.ToSDK(m.lpSupply) }

// NonConvergedCount returns meta-level solver exhaustions; the base pool
// keeps its own count.
func (m *MetaPool) NonConvergedCount() uint64 { return m.nonConverged }

// PrepareForTrades advances both the meta and base logical clocks.
func (m *MetaPool) PrepareForTrades(timestamp int64) {
	if timestamp > m.now {
		m.now = timestamp
	}
	m.base.PrepareForTrades(timestamp)
}

// A returns the meta-level amplification at the current logical time.
func (m *MetaPool) A() int64 {
	t1 := m.futureATime
	if m.now >= t1 {
		return m.futureA
	}
	a0, a1 := m.initialA, m.futureA
	t0 := m.initialATime
	if a1 > a0 {
		return a0 + (a1-a0)*(m.now-t0)/(t1-t0)
	}
	return a0 - (a0-a1)*(m.now-t0)/(t1-t0)
}

// RampA schedules a linear meta-level amplification ramp.
func (m *MetaPool) RampA(futureA int64, futureTime int64) error {
	if futureA <= 0 {
		return fmt.Errorf("ramp target must be positive, got %d", futureA)
	}
	if futureTime <= m.now {
		return fmt.Errorf("ramp end %d not after current time %d", futureTime, m.now)
	}
	m.initialA = m.A()
	m.initialATime = m.now
	m.futureA = futureA
	m.futureATime = futureTime
	return nil
}

func (m *MetaPool) ann() int64 { return m.A() * int64(m.n) }

// rates returns the live meta-level rate multipliers: the static multipliers
// with the base LP slot replaced by the base pool's virtual price.
func (m *MetaPool) rates() ([]*big.Int, error) {
	vp, err := m.base.VirtualPrice()
	if err != nil {
		return nil, fmt.Errorf("base pool virtual price: %w", err)
	}
	out := fp.CloneSlice(m.rateMul)
	out[m.maxCoin] = fp.FromSDK(vp)
	return out, nil
}

func (m *MetaPool) xpMem(rates, balances []*big.Int) []*big.Int {
	out := make([]*big.Int, len(balances))
	for i := range out {
		out[i] = fp.MulDiv(balances[i], rates[i], fp.Precision)
	}
	return out
}

func (m *MetaPool) noteConvergence(op string, converged bool) {
	if converged {
		return
	}
	m.nonConverged++
	log.Warn().
		Str("op", op).
		Uint64("total", m.nonConverged).
		Int("max_iterations", MaxIterations).
		Msg("metapool newton solve kept last iterate after exhausting iteration budget")
}

func (m *MetaPool) dInternal(xp []*big.Int) *big.Int {
	d, ok := solveD(xp, m.ann())
	m.noteConvergence("D", ok)
	return d
}

// D returns the meta-level invariant.
func (m *MetaPool) D() (sdkmath.Int, error) {
	rates, err := m.rates()
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	return fp.ToSDK(m.dInternal(m.xpMem(rates, m.balances))), nil
}

func (m *MetaPool) getY(i, j int, x *big.Int, xp []*big.Int) *big.Int {
	d := m.dInternal(xp)
	y, ok := solveY(m.ann(), i, j, x, xp, d)
	m.noteConvergence("y", ok)
	return y
}

func (m *MetaPool) getYD(ann int64, i int, xp []*big.Int, d *big.Int) *big.Int {
	y, ok := solveYD(ann, i, xp, d)
	m.noteConvergence("y_D", ok)
	return y
}

func (m *MetaPool) checkMetaLive() error {
	for i, b := range m.balances {
		if b.Sign() <= 0 {
			return fmt.Errorf("meta coin %d: %w", i, pool.ErrZeroLiquidity)
		}
	}
	return nil
}

func (m *MetaPool) dynamicFee(xpi, xpj *big.Int) *big.Int {
	feeMul := big.NewInt(m.feeMul)
	fee := big.NewInt(m.fee)
	xps2 := new(big.Int).Add(xpi, xpj)
	xps2.Mul(xps2, xps2)

	num := new(big.Int).Mul(feeMul, fee)
	den := new(big.Int).Sub(feeMul, fp.FeeDenominator)
	den.Mul(den, big.NewInt(4))
	den.Mul(den, xpi)
	den.Mul(den, xpj)
	den = fp.FloorDiv(den, xps2)
	den.Add(den, fp.FeeDenominator)
	return fp.FloorDiv(num, den)
}

// Exchange swaps between meta-level coins (primary and base LP).
func (m *MetaPool) Exchange(i, j int, dx, minDy sdkmath.Int) (dy, fee sdkmath.Int, err error) {
	zero := sdkmath.ZeroInt()
	if i == j {
		return zero, zero, pool.ErrSameCoin
	}
	if i < 0 || i >= m.n || j < 0 || j >= m.n {
		return zero, zero, fmt.Errorf("%w: i=%d j=%d n=%d", pool.ErrCoinIndex, i, j, m.n)
	}
	if dx.IsNil() || !dx.IsPositive() {
		return zero, zero, pool.ErrZeroTradeAmount
	}
	if err := m.checkMetaLive(); err != nil {
		return zero, zero, err
	}
	rates, err := m.rates()
	if err != nil {
		return zero, zero, err
	}

	xp := m.xpMem(rates, m.balances)
	dxBig := fp.FromSDK(dx)
	x := new(big.Int).Add(xp[i], fp.MulDiv(dxBig, rates[i], fp.Precision))
	y := m.getY(i, j, x, xp)
	dyNorm := new(big.Int).Sub(xp[j], y)
	dyNorm.Sub(dyNorm, fp.One)

	var feeNorm *big.Int
	if m.feeMul == 0 {
		feeNorm = fp.MulDiv(dyNorm, big.NewInt(m.fee), fp.FeeDenominator)
	} else {
		avgI := fp.FloorDiv(new(big.Int).Add(xp[i], x), fp.Two)
		avgJ := fp.FloorDiv(new(big.Int).Add(xp[j], y), fp.Two)
		feeNorm = fp.MulDiv(dyNorm, m.dynamicFee(avgI, avgJ), fp.FeeDenominator)
	}
	adminFeeNorm := fp.MulDiv(feeNorm, big.NewInt(m.adminFee), fp.FeeDenominator)

	dyOut := fp.MulDiv(new(big.Int).Sub(dyNorm, feeNorm), fp.Precision, rates[j])
	feeOut := fp.MulDiv(feeNorm, fp.Precision, rates[j])
	adminOut := fp.MulDiv(adminFeeNorm, fp.Precision, rates[j])

	if dyOut.Sign() < 0 {
		return zero, zero, fmt.Errorf("exchange output: %w", pool.ErrNegativeBalance)
	}
	if !minDy.IsNil() && minDy.IsPositive() && dyOut.Cmp(fp.FromSDK(minDy)) < 0 {
		return zero, zero, fmt.Errorf("%w: dy %s below minimum %s", pool.ErrSlippage, dyOut, minDy)
	}

	m.balances[i] = new(big.Int).Add(m.balances[i], dxBig)
	m.balances[j] = new(big.Int).Sub(m.balances[j], new(big.Int).Add(dyOut, adminOut))
	m.adminBalances[j] = new(big.Int).Add(m.adminBalances[j], adminOut)
	return fp.ToSDK(dyOut), fp.ToSDK(feeOut), nil
}

// ExchangeUnderlying swaps between underlying coins. Index 0..MaxCoin-1 are
// the primaries; MaxCoin onward are base pool coins offset by MaxCoin.
// Routing: primary->base swaps into the base LP then withdraws one coin;
// base->primary deposits into the base pool first; base->base delegates
// entirely to the base pool. Both pools are reverted on any error.
func (m *MetaPool) ExchangeUnderlying(i, j int, dx, minDy sdkmath.Int) (dy, fee sdkmath.Int, err error) {
	zero := sdkmath.ZeroInt()
	total := m.NumCoins()
	if i == j {
		return zero, zero, pool.ErrSameCoin
	}
	if i < 0 || i >= total || j < 0 || j >= total {
		return zero, zero, fmt.Errorf("%w: i=%d j=%d n=%d", pool.ErrCoinIndex, i, j, total)
	}
	if dx.IsNil() || !dx.IsPositive() {
		return zero, zero, pool.ErrZeroTradeAmount
	}

	baseI := i - m.maxCoin
	baseJ := j - m.maxCoin

	// Both legs inside the base pool.
	if baseI >= 0 && baseJ >= 0 {
		return m.base.Exchange(baseI, baseJ, dx, minDy)
	}

	// The routed legs mutate the base pool before the meta swap resolves,
	// so roll everything back if any step fails.
	snap := m.Snapshot()
	dy, fee, err = m.exchangeUnderlyingRouted(i, j, baseI, baseJ, dx, minDy)
	if err != nil {
		if revertErr := m.Revert(snap); revertErr != nil {
			return zero, zero, fmt.Errorf("%w (revert also failed: %v)", err, revertErr)
		}
		return zero, zero, err
	}
	return dy, fee, nil
}

func (m *MetaPool) exchangeUnderlyingRouted(i, j, baseI, baseJ int, dx, minDy sdkmath.Int) (sdkmath.Int, sdkmath.Int, error) {
	zero := sdkmath.ZeroInt()
	if err := m.checkMetaLive(); err != nil {
		return zero, zero, err
	}
	rates, err := m.rates()
	if err != nil {
		return zero, zero, err
	}

	metaI, metaJ := m.maxCoin, m.maxCoin
	if baseI < 0 {
		metaI = i
	}
	if baseJ < 0 {
		metaJ = j
	}

	xp := m.xpMem(rates, m.balances)
	dxBig := fp.FromSDK(dx)

	var x *big.Int
	if baseI < 0 {
		x = new(big.Int).Add(xp[i], fp.MulDiv(dxBig, rates[i], fp.Precision))
	} else {
		// Deposit the base coin for LP and swap the LP at the meta level.
		baseInputs := make([]sdkmath.Int, m.base.n)
		for k := range baseInputs {
			baseInputs[k] = sdkmath.ZeroInt()
		}
		baseInputs[baseI] = dx
		minted, err := m.base.AddLiquidity(baseInputs, sdkmath.ZeroInt())
		if err != nil {
			return zero, zero, fmt.Errorf("base deposit: %w", err)
		}
		dxBig = fp.FromSDK(minted)
		x = fp.MulDiv(dxBig, rates[m.maxCoin], fp.Precision)
		x.Add(x, xp[m.maxCoin])
	}

	y := m.getY(metaI, metaJ, x, xp)
	dyNorm := new(big.Int).Sub(xp[metaJ], y)
	dyNorm.Sub(dyNorm, fp.One)
	feeNorm := fp.MulDiv(dyNorm, big.NewInt(m.fee), fp.FeeDenominator)

	dyOut := fp.MulDiv(new(big.Int).Sub(dyNorm, feeNorm), fp.Precision, rates[metaJ])
	adminOut := fp.MulDiv(fp.MulDiv(feeNorm, big.NewInt(m.adminFee), fp.FeeDenominator), fp.Precision, rates[metaJ])
	feeOut := fp.MulDiv(feeNorm, fp.Precision, rates[metaJ])

	if dyOut.Sign() < 0 {
		return zero, zero, fmt.Errorf("exchange output: %w", pool.ErrNegativeBalance)
	}

	m.balances[metaI] = new(big.Int).Add(m.balances[metaI], dxBig)
	m.balances[metaJ] = new(big.Int).Sub(m.balances[metaJ], new(big.Int).Add(dyOut, adminOut))
	m.adminBalances[metaJ] = new(big.Int).Add(m.adminBalances[metaJ], adminOut)

	dyFinal := fp.ToSDK(dyOut)
	feeFinal := fp.ToSDK(feeOut)
	if baseJ >= 0 {
		// Withdraw the LP leg into the requested base coin.
		dyFinal, feeFinal, err = m.base.RemoveLiquidityOneCoin(dyFinal, baseJ, sdkmath.ZeroInt())
		if err != nil {
			return zero, zero, fmt.Errorf("base withdraw: %w", err)
		}
	}
	if !minDy.IsNil() && minDy.IsPositive() && dyFinal.LT(minDy) {
		return zero, zero, fmt.Errorf("%w: dy %s below minimum %s", pool.ErrSlippage, dyFinal, minDy)
	}
	return dyFinal, feeFinal, nil
}

// calcTokenAmount mirrors the plain pool version but prices the base LP slot
// at the live virtual price.
func (m *MetaPool) calcTokenAmount(amounts []*big.Int, useFee bool) (*big.Int, []*big.Int, error) {
	rates, err := m.rates()
	if err != nil {
		return nil, nil, err
	}
	d0 := m.dInternal(m.xpMem(rates, m.balances))
	if d0.Sign() == 0 || m.lpSupply.Sign() == 0 {
		return nil, nil, pool.ErrZeroLiquidity
	}

	newBalances := make([]*big.Int, m.n)
	for i := range newBalances {
		newBalances[i] = new(big.Int).Add(m.balances[i], amounts[i])
	}
	d1 := m.dInternal(m.xpMem(rates, newBalances))

	mintBalances := fp.CloneSlice(newBalances)
	fees := make([]*big.Int, m.n)
	for i := range fees {
		fees[i] = new(big.Int)
	}
	if useFee {
		feeRate := big.NewInt(m.fee * int64(m.n) / (4 * int64(m.n-1)))
		for i := 0; i < m.n; i++ {
			ideal := fp.MulDiv(d1, m.balances[i], d0)
			diff := fp.AbsDiff(ideal, newBalances[i])
			fees[i] = fp.MulDiv(feeRate, diff, fp.FeeDenominator)
			mintBalances[i].Sub(mintBalances[i], fees[i])
		}
	}

	d2 := m.dInternal(m.xpMem(rates, mintBalances))
	mint := fp.MulDiv(m.lpSupply, new(big.Int).Sub(d2, d0), d0)
	return mint, fees, nil
}

// CalcTokenAmount computes the meta LP minted for meta-level deposit amounts.
func (m *MetaPool) CalcTokenAmount(amounts []sdkmath.Int, useFee bool) (sdkmath.Int, error) {
	zero := sdkmath.ZeroInt()
	amts, err := m.checkAmounts(amounts)
	if err != nil {
		return zero, err
	}
	mint, _, err := m.calcTokenAmount(amts, useFee)
	if err != nil {
		return zero, err
	}
	return fp.ToSDK(mint), nil
}

func (m *MetaPool) checkAmounts(amounts []sdkmath.Int) ([]*big.Int, error) {
	if len(amounts) != m.n {
		return nil, fmt.Errorf("got %d amounts for %d coins", len(amounts), m.n)
	}
	out := make([]*big.Int, m.n)
	for i, a := range amounts {
		if a.IsNil() || a.IsNegative() {
			return nil, fmt.Errorf("amount for coin %d: %w", i, pool.ErrZeroTradeAmount)
		}
		out[i] = fp.FromSDK(a)
	}
	return out, nil
}

// AddLiquidity deposits meta-level amounts and mints meta LP tokens.
func (m *MetaPool) AddLiquidity(amounts []sdkmath.Int, minMint sdkmath.Int) (sdkmath.Int, error) {
	zero := sdkmath.ZeroInt()
	amts, err := m.checkAmounts(amounts)
	if err != nil {
		return zero, err
	}

	if m.lpSupply.Sign() == 0 {
		rates, err := m.rates()
		if err != nil {
			return zero, err
		}
		for i, a := range amts {
			if a.Sign() <= 0 {
				return zero, fmt.Errorf("first deposit requires coin %d: %w", i, pool.ErrZeroTradeAmount)
			}
		}
		newBalances := make([]*big.Int, m.n)
		for i := range newBalances {
			newBalances[i] = new(big.Int).Add(m.balances[i], amts[i])
		}
		d1 := m.dInternal(m.xpMem(rates, newBalances))
		if !minMint.IsNil() && minMint.IsPositive() && d1.Cmp(fp.FromSDK(minMint)) < 0 {
			return zero, fmt.Errorf("%w: mint %s below minimum %s", pool.ErrSlippage, d1, minMint)
		}
		m.balances = newBalances
		m.lpSupply = d1
		return fp.ToSDK(d1), nil
	}

	mint, fees, err := m.calcTokenAmount(amts, true)
	if err != nil {
		return zero, err
	}
	if mint.Sign() <= 0 {
		return zero, fmt.Errorf("deposit mints nothing: %w", pool.ErrZeroTradeAmount)
	}
	if !minMint.IsNil() && minMint.IsPositive() && mint.Cmp(fp.FromSDK(minMint)) < 0 {
		return zero, fmt.Errorf("%w: mint %s below minimum %s", pool.ErrSlippage, mint, minMint)
	}

	for i := 0; i < m.n; i++ {
		adminCut := fp.MulDiv(fees[i], big.NewInt(m.adminFee), fp.FeeDenominator)
		m.balances[i] = new(big.Int).Add(m.balances[i], new(big.Int).Sub(amts[i], adminCut))
		m.adminBalances[i] = new(big.Int).Add(m.adminBalances[i], adminCut)
	}
	m.lpSupply = new(big.Int).Add(m.lpSupply, mint)
	return fp.ToSDK(mint), nil
}

func (m *MetaPool) calcWithdrawOneCoin(burn *big.Int, i int, useFee bool) (*big.Int, *big.Int, error) {
	if m.lpSupply.Sign() == 0 {
		return nil, nil, pool.ErrZeroLiquidity
	}
	rates, err := m.rates()
	if err != nil {
		return nil, nil, err
	}
	ann := m.ann()
	xp := m.xpMem(rates, m.balances)
	d0 := m.dInternal(xp)
	d1 := new(big.Int).Sub(d0, fp.MulDiv(burn, d0, m.lpSupply))

	newY := m.getYD(ann, i, xp, d1)
	dyBeforeFee := fp.MulDiv(new(big.Int).Sub(xp[i], newY), fp.Precision, rates[i])

	xpReduced := fp.CloneSlice(xp)
	if m.fee > 0 && useFee {
		feeRate := big.NewInt(m.fee * int64(m.n) / (4 * int64(m.n-1)))
		for j := 0; j < m.n; j++ {
			var dxExpected *big.Int
			if j == i {
				dxExpected = new(big.Int).Sub(fp.MulDiv(xp[j], d1, d0), newY)
			} else {
				dxExpected = new(big.Int).Sub(xp[j], fp.MulDiv(xp[j], d1, d0))
			}
			xpReduced[j].Sub(xpReduced[j], fp.MulDiv(feeRate, dxExpected, fp.FeeDenominator))
		}
	}

	dyNorm := new(big.Int).Sub(xpReduced[i], m.getYD(ann, i, xpReduced, d1))
	dy := fp.MulDiv(new(big.Int).Sub(dyNorm, fp.One), fp.Precision, rates[i])
	if !useFee {
		return dy, new(big.Int), nil
	}
	return dy, new(big.Int).Sub(dyBeforeFee, dy), nil
}

// CalcWithdrawOneCoin computes the meta coin i payout for burning meta LP.
func (m *MetaPool) CalcWithdrawOneCoin(burn sdkmath.Int, i int) (dy, fee sdkmath.Int, err error) {
	zero := sdkmath.ZeroInt()
	if i < 0 || i >= m.n {
		return zero, zero, fmt.Errorf("%w: i=%d n=%d", pool.ErrCoinIndex, i, m.n)
	}
	if burn.IsNil() || !burn.IsPositive() {
		return zero, zero, pool.ErrZeroTradeAmount
	}
	d, f, err := m.calcWithdrawOneCoin(fp.FromSDK(burn), i, true)
	if err != nil {
		return zero, zero, err
	}
	return fp.ToSDK(d), fp.ToSDK(f), nil
}

// RemoveLiquidityOneCoin burns meta LP for a single meta-level coin.
func (m *MetaPool) RemoveLiquidityOneCoin(burn sdkmath.Int, i int, minDy sdkmath.Int) (dy, fee sdkmath.Int, err error) {
	zero := sdkmath.ZeroInt()
	if i < 0 || i >= m.n {
		return zero, zero, fmt.Errorf("%w: i=%d n=%d", pool.ErrCoinIndex, i, m.n)
	}
	if burn.IsNil() || !burn.IsPositive() {
		return zero, zero, pool.ErrZeroTradeAmount
	}
	burnBig := fp.FromSDK(burn)
	if burnBig.Cmp(m.lpSupply) > 0 {
		return zero, zero, fmt.Errorf("burn exceeds supply: %w", pool.ErrNegativeBalance)
	}

	dyBig, dyFee, err := m.calcWithdrawOneCoin(burnBig, i, true)
	if err != nil {
		return zero, zero, err
	}
	if dyBig.Sign() < 0 {
		return zero, zero, fmt.Errorf("withdraw payout: %w", pool.ErrNegativeBalance)
	}
	if !minDy.IsNil() && minDy.IsPositive() && dyBig.Cmp(fp.FromSDK(minDy)) < 0 {
		return zero, zero, fmt.Errorf("%w: dy %s below minimum %s", pool.ErrSlippage, dyBig, minDy)
	}

	adminCut := fp.MulDiv(dyFee, big.NewInt(m.adminFee), fp.FeeDenominator)
	m.balances[i] = new(big.Int).Sub(m.balances[i], new(big.Int).Add(dyBig, adminCut))
	m.adminBalances[i] = new(big.Int).Add(m.adminBalances[i], adminCut)
	m.lpSupply = new(big.Int).Sub(m.lpSupply, burnBig)
	return fp.ToSDK(dyBig), fp.ToSDK(dyFee), nil
}

// VirtualPrice returns the D value backing one meta LP token.
func (m *MetaPool) VirtualPrice() (sdkmath.Int, error) {
	if m.lpSupply.Sign() == 0 {
		return sdkmath.ZeroInt(), pool.ErrZeroLiquidity
	}
	d, err := m.D()
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	return fp.ToSDK(fp.MulDiv(fp.FromSDK(d), fp.Precision, m.lpSupply)), nil
}
