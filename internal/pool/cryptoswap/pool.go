/*

Cryptoswap pool with concentrated liquidity around an internal price scale.
The integer arithmetic matches the on-chain contract operation for operation,
including the EMA price oracle, the profit counters and the price scale
repeg, so simulated outputs equal on-chain outputs for identical state.

*/

package cryptoswap

import (
	"fmt"
	"math/big"

	sdkmath "cosmossdk.io/math"

	fp "github.com/ammlabs/poolsim/internal/fixedpoint"
	"github.com/ammlabs/poolsim/internal/logger"
	"github.com/ammlabs/poolsim/internal/pool"
)

var log = logger.GetForComponent("cryptoswap")

const (
	// AMultiplier scales the amplification parameter for extra precision;
	// Config.A is A*n^n in whitepaper terms times this factor.
	AMultiplier = 10000

	// MinGamma and MaxGamma bound the invariant's decay factor.
	MinGamma = 1e10
	MaxGamma = 2 * 1e16

	// NoiseFee is a 0.1 bp floor added to the deposit imbalance fee.
	NoiseFee = 1e5

	// DefaultAdminFee is the admin's half share of profits, out of 10^10.
	DefaultAdminFee = 5 * 1e9

	// DefaultMAHalfTime is the oracle EMA half-life in seconds.
	DefaultMAHalfTime = 600
)

// Config describes a cryptoswap pool. PriceScale needs one entry per coin
// beyond the first, quoting that coin in units of coin 0 at 10^18 scale.
// Either D (split evenly across the price scale) or Balances must be set.
type Config struct {
	// A is the amplification coefficient, A*n^n*10^4.
	A int64
	// Gamma is the decay factor for concentration away from the scale.
	Gamma int64
	// N is the number of coins, 2 or 3.
	N int
	// Precisions convert native units to 18 decimals, one per coin.
	// Defaults to 1 each (18-decimal coins).
	Precisions []int64
	// MidFee applies to trades near the price scale, out of 10^10.
	MidFee int64
	// OutFee applies far from the price scale, out of 10^10.
	OutFee int64
	// FeeGamma controls the mid-to-out fee transition.
	FeeGamma int64
	// AllowedExtraProfit is the profit buffer required before a repeg.
	AllowedExtraProfit int64
	// AdjustmentStep is the minimum price scale move, at 10^18 scale.
	AdjustmentStep int64
	// AdminFee is the admin's share of profits, out of 10^10.
	AdminFee int64
	// MAHalfTime is the oracle EMA half-life in seconds. Defaults to
	// DefaultMAHalfTime.
	MAHalfTime int64
	// PriceScale holds n-1 prices of coin k in coin 0, 10^18 scale.
	PriceScale []sdkmath.Int
	// Balances are explicit starting balances in native token units.
	Balances []sdkmath.Int
	// D is the invariant used to derive balances centered on PriceScale.
	D sdkmath.Int
	// Tokens overrides the starting LP supply. Defaults to the xcp value,
	// which sets the initial virtual price to 1.
	Tokens sdkmath.Int
}

// Pool is a cryptoswap pool. Not safe for concurrent use; the orchestrator
// gives each run its own instance.
type Pool struct {
	a          int64
	gamma      int64
	n          int
	precisions []*big.Int

	midFee             int64
	outFee             int64
	adminFee           int64
	feeGamma           *big.Int
	allowedExtraProfit *big.Int
	adjustmentStep     *big.Int
	maHalfTime         int64

	priceScale          []*big.Int // n-1 entries
	priceOracle         []*big.Int
	lastPrices          []*big.Int
	lastPricesTimestamp int64
	now                 int64

	balances     []*big.Int // native token units
	d            *big.Int
	lpSupply     *big.Int
	virtualPrice *big.Int
	xcpProfit    *big.Int
	xcpProfitA   *big.Int
	notAdjusted  bool
}

// New validates cfg and builds the pool.
func New(cfg Config) (*Pool, error) {
	if cfg.N != 2 && cfg.N != 3 {
		return nil, fmt.Errorf("%w: cryptoswap supports 2 or 3 coins, got %d", pool.ErrCoinIndex, cfg.N)
	}
	if err := checkAmpGamma(cfg.N, cfg.A, cfg.Gamma); err != nil {
		return nil, err
	}
	if cfg.MidFee <= 0 || cfg.MidFee > 1e10 {
		return nil, fmt.Errorf("mid fee out of range: %d", cfg.MidFee)
	}
	if cfg.OutFee < cfg.MidFee || cfg.OutFee > 1e10 {
		return nil, fmt.Errorf("out fee %d not in [mid fee, 10^10]", cfg.OutFee)
	}
	if cfg.FeeGamma <= 0 || cfg.FeeGamma > 1e18 {
		return nil, fmt.Errorf("fee gamma out of range: %d", cfg.FeeGamma)
	}
	if cfg.AdjustmentStep <= 0 {
		return nil, fmt.Errorf("adjustment step must be positive, got %d", cfg.AdjustmentStep)
	}
	if cfg.AllowedExtraProfit < 0 {
		return nil, fmt.Errorf("allowed extra profit must not be negative, got %d", cfg.AllowedExtraProfit)
	}
	if cfg.AdminFee < 0 || cfg.AdminFee > 1e10 {
		return nil, fmt.Errorf("admin fee out of range: %d", cfg.AdminFee)
	}
	if len(cfg.PriceScale) != cfg.N-1 {
		return nil, fmt.Errorf("got %d price scale entries for %d coins", len(cfg.PriceScale), cfg.N)
	}
	if cfg.MAHalfTime == 0 {
		cfg.MAHalfTime = DefaultMAHalfTime
	}
	if cfg.MAHalfTime < 0 {
		return nil, fmt.Errorf("ma half time must be positive, got %d", cfg.MAHalfTime)
	}

	priceScale := make([]*big.Int, cfg.N-1)
	for k, ps := range cfg.PriceScale {
		if ps.IsNil() || !ps.IsPositive() {
			return nil, fmt.Errorf("price scale entry %d must be positive", k)
		}
		priceScale[k] = fp.FromSDK(ps)
	}

	precisions := make([]*big.Int, cfg.N)
	for i := range precisions {
		if cfg.Precisions == nil {
			precisions[i] = fp.Clone(fp.One)
			continue
		}
		if len(cfg.Precisions) != cfg.N {
			return nil, fmt.Errorf("got %d precisions for %d coins", len(cfg.Precisions), cfg.N)
		}
		if cfg.Precisions[i] <= 0 {
			return nil, fmt.Errorf("precision for coin %d must be positive", i)
		}
		precisions[i] = big.NewInt(cfg.Precisions[i])
	}

	p := &Pool{
		a:                  cfg.A,
		gamma:              cfg.Gamma,
		n:                  cfg.N,
		precisions:         precisions,
		midFee:             cfg.MidFee,
		outFee:             cfg.OutFee,
		adminFee:           cfg.AdminFee,
		feeGamma:           big.NewInt(cfg.FeeGamma),
		allowedExtraProfit: big.NewInt(cfg.AllowedExtraProfit),
		adjustmentStep:     big.NewInt(cfg.AdjustmentStep),
		maHalfTime:         cfg.MAHalfTime,
		priceScale:         priceScale,
		priceOracle:        fp.CloneSlice(priceScale),
		lastPrices:         fp.CloneSlice(priceScale),
		xcpProfit:          fp.Clone(fp.Precision),
		xcpProfitA:         fp.Clone(fp.Precision),
	}

	haveBalances := cfg.Balances != nil
	haveD := !cfg.D.IsNil() && cfg.D.IsPositive()
	switch {
	case haveBalances:
		if len(cfg.Balances) != cfg.N {
			return nil, fmt.Errorf("got %d balances for %d coins", len(cfg.Balances), cfg.N)
		}
		p.balances = make([]*big.Int, cfg.N)
		for i := range p.balances {
			if cfg.Balances[i].IsNegative() {
				return nil, fmt.Errorf("balance for coin %d: %w", i, pool.ErrNegativeBalance)
			}
			p.balances[i] = fp.FromSDK(cfg.Balances[i])
		}
		if haveD {
			log.Warn().Msg("both D and balances provided; inconsistent values may skew profit accounting")
			p.d = fp.FromSDK(cfg.D)
		} else {
			d, err := newtonD(p.a, p.gamma, p.xp())
			if err != nil {
				return nil, err
			}
			p.d = d
		}
	case haveD:
		p.d = fp.FromSDK(cfg.D)
		p.balances = p.convertDToBalances(p.d)
	default:
		return nil, fmt.Errorf("either D or Balances must be provided")
	}

	xcp, err := p.getXcp(p.d)
	if err != nil {
		return nil, err
	}
	if !cfg.Tokens.IsNil() && cfg.Tokens.IsPositive() {
		p.lpSupply = fp.FromSDK(cfg.Tokens)
	} else {
		p.lpSupply = xcp
	}
	p.virtualPrice = fp.MulDiv(fp.Precision, xcp, p.lpSupply)
	return p, nil
}

// convertDToBalances splits D across the coins at the current price scale,
// in native token units.
func (p *Pool) convertDToBalances(d *big.Int) []*big.Int {
	nBig := big.NewInt(int64(p.n))
	out := make([]*big.Int, p.n)
	out[0] = fp.FloorDiv(fp.FloorDiv(d, nBig), p.precisions[0])
	for k := 1; k < p.n; k++ {
		b := fp.MulDiv(d, fp.Precision, new(big.Int).Mul(p.priceScale[k-1], nBig))
		out[k] = fp.FloorDiv(b, p.precisions[k])
	}
	return out
}

// NumCoins returns the number of coins in the pool.
func (p *Pool) NumCoins() int { return p.n }

// Balances returns the native-unit coin balances.
func (p *Pool) Balances() []sdkmath.Int {
	out := make([]sdkmath.Int, p.n)
	for i, b := range p.balances {
		out[i] = fp.ToSDK(b)
	}
	return out
}

// LPSupply returns the LP token supply.
func (p *Pool) LPSupply() sdkmath.Int { return fp.ToSDK(p.lpSupply) }

// D returns the current invariant.
func (p *Pool) D() sdkmath.Int { return fp.ToSDK(p.d) }

// XcpProfit returns the accumulated profit counter at 10^18 scale.
func (p *Pool) XcpProfit() sdkmath.Int { return fp.ToSDK(p.xcpProfit) }

// PriceScale returns the prices liquidity is currently centered on, one per
// coin beyond the first, at 10^18 scale.
func (p *Pool) PriceScale() []sdkmath.Int {
	out := make([]sdkmath.Int, p.n-1)
	for k, ps := range p.priceScale {
		out[k] = fp.ToSDK(ps)
	}
	return out
}

// LastPrices returns the most recent trade prices at 10^18 scale.
func (p *Pool) LastPrices() []sdkmath.Int {
	out := make([]sdkmath.Int, p.n-1)
	for k, lp := range p.lastPrices {
		out[k] = fp.ToSDK(lp)
	}
	return out
}

// PrepareForTrades advances the pool's logical clock. The clock only moves
// forward; the EMA oracle folds in the last trade prices once per advance.
func (p *Pool) PrepareForTrades(timestamp int64) {
	if timestamp > p.now {
		p.now = timestamp
	}
}

// PriceOracle returns the EMA price oracle advanced to the current logical
// time, one entry per coin beyond the first, at 10^18 scale. View only.
func (p *Pool) PriceOracle() ([]sdkmath.Int, error) {
	out := make([]sdkmath.Int, p.n-1)
	if p.lastPricesTimestamp >= p.now {
		for k, op := range p.priceOracle {
			out[k] = fp.ToSDK(op)
		}
		return out, nil
	}
	alpha, err := p.emaAlpha()
	if err != nil {
		return nil, err
	}
	for k := range out {
		out[k] = fp.ToSDK(p.emaStep(p.lastPrices[k], p.priceOracle[k], alpha))
	}
	return out, nil
}

func (p *Pool) emaAlpha() (*big.Int, error) {
	power := big.NewInt(p.now - p.lastPricesTimestamp)
	power.Mul(power, fp.Precision)
	return halfpow(fp.FloorDiv(power, big.NewInt(p.maHalfTime)))
}

func (p *Pool) emaStep(last, oracle, alpha *big.Int) *big.Int {
	out := new(big.Int).Mul(last, new(big.Int).Sub(fp.Precision, alpha))
	out.Add(out, new(big.Int).Mul(oracle, alpha))
	return fp.FloorDiv(out, fp.Precision)
}

func (p *Pool) checkCoins(i, j int) error {
	if i == j {
		return pool.ErrSameCoin
	}
	if i < 0 || i >= p.n || j < 0 || j >= p.n {
		return fmt.Errorf("%w: i=%d j=%d n=%d", pool.ErrCoinIndex, i, j, p.n)
	}
	return nil
}

func (p *Pool) checkLive() error {
	for i, b := range p.balances {
		if b.Sign() <= 0 {
			return fmt.Errorf("coin %d: %w", i, pool.ErrZeroLiquidity)
		}
	}
	return nil
}

// xp returns balances normalized to 10^18 precision and scaled by price so a
// unit of every coin carries equal value.
func (p *Pool) xp() []*big.Int {
	return p.xpMem(p.balances)
}

func (p *Pool) xpMem(balances []*big.Int) []*big.Int {
	out := make([]*big.Int, p.n)
	out[0] = new(big.Int).Mul(balances[0], p.precisions[0])
	for k := 1; k < p.n; k++ {
		b := new(big.Int).Mul(balances[k], p.precisions[k])
		out[k] = fp.MulDiv(b, p.priceScale[k-1], fp.Precision)
	}
	return out
}

// getXcp values the pool as a constant-product AMM holding the equilibrium
// balances for invariant d.
func (p *Pool) getXcp(d *big.Int) (*big.Int, error) {
	return geometricMean(p.equilibrium(d, p.priceScale), true)
}

// equilibrium returns the balanced holdings for invariant d at the given
// price scale, in normalized units.
func (p *Pool) equilibrium(d *big.Int, priceScale []*big.Int) []*big.Int {
	nBig := big.NewInt(int64(p.n))
	out := make([]*big.Int, p.n)
	out[0] = fp.FloorDiv(d, nBig)
	for k := 1; k < p.n; k++ {
		out[k] = fp.MulDiv(d, fp.Precision, new(big.Int).Mul(priceScale[k-1], nBig))
	}
	return out
}

// feeRate blends mid and out fee by how far the normalized balances sit from
// perfect balance. Returns the fee out of 10^10.
func (p *Pool) feeRate(xp []*big.Int) *big.Int {
	nBig := big.NewInt(int64(p.n))
	sum := fp.Sum(xp)

	// K = prod(x) / (sum(x)/n)^n at 10^18 scale.
	k := fp.Clone(fp.Precision)
	for _, xk := range xp {
		k.Mul(k, nBig)
		k.Mul(k, xk)
		k = fp.FloorDiv(k, sum)
	}

	den := new(big.Int).Add(p.feeGamma, fp.Precision)
	den.Sub(den, k)
	f := fp.FloorDiv(new(big.Int).Mul(p.feeGamma, fp.Precision), den)

	out := new(big.Int).Mul(big.NewInt(p.midFee), f)
	out.Add(out, new(big.Int).Mul(big.NewInt(p.outFee), new(big.Int).Sub(fp.Precision, f)))
	return fp.FloorDiv(out, fp.Precision)
}

// getDy quotes the out-amount for selling dx of coin i, in native units of
// coin j. View only.
func (p *Pool) getDy(i, j int, dx *big.Int, useFee bool) (*big.Int, error) {
	balances := fp.CloneSlice(p.balances)
	balances[i].Add(balances[i], dx)
	xp := p.xpMem(balances)

	y, err := newtonY(p.a, p.gamma, xp, p.d, j)
	if err != nil {
		return nil, err
	}
	dy := new(big.Int).Sub(xp[j], y)
	dy.Sub(dy, fp.One)
	xp[j] = y

	if j > 0 {
		dy = fp.MulDiv(dy, fp.Precision, p.priceScale[j-1])
	}
	dy = fp.FloorDiv(dy, p.precisions[j])
	if useFee {
		dy.Sub(dy, fp.MulDiv(p.feeRate(xp), dy, fp.FeeDenominator))
	}
	return dy, nil
}

// GetDy quotes the native out-amount, after fees, for selling dx of coin i
// for coin j. View only.
func (p *Pool) GetDy(i, j int, dx sdkmath.Int) (sdkmath.Int, error) {
	zero := sdkmath.ZeroInt()
	if err := p.checkCoins(i, j); err != nil {
		return zero, err
	}
	if dx.IsNil() || !dx.IsPositive() {
		return zero, pool.ErrZeroTradeAmount
	}
	dy, err := p.getDy(i, j, fp.FromSDK(dx), true)
	if err != nil {
		return zero, err
	}
	return fp.ToSDK(dy), nil
}

// Exchange sells dx of coin i for coin j. Returns the amount of coin j
// received and the fee charged, both in native units of coin j. minDy of
// zero disables the slippage floor. The trade, the oracle update and the
// possible repeg apply atomically; any error leaves the pool untouched.
func (p *Pool) Exchange(i, j int, dx, minDy sdkmath.Int) (dy, fee sdkmath.Int, err error) {
	zero := sdkmath.ZeroInt()
	if err := p.checkCoins(i, j); err != nil {
		return zero, zero, err
	}
	if dx.IsNil() || !dx.IsPositive() {
		return zero, zero, pool.ErrZeroTradeAmount
	}
	if err := p.checkLive(); err != nil {
		return zero, zero, err
	}

	var minDyBig *big.Int
	if !minDy.IsNil() && minDy.IsPositive() {
		minDyBig = fp.FromSDK(minDy)
	}

	snap := p.Snapshot()
	dyBig, feeBig, err := p.exchange(i, j, fp.FromSDK(dx), minDyBig)
	if err != nil {
		if rerr := p.Revert(snap); rerr != nil {
			return zero, zero, rerr
		}
		return zero, zero, err
	}
	return fp.ToSDK(dyBig), fp.ToSDK(feeBig), nil
}

func (p *Pool) exchange(i, j int, dx, minDy *big.Int) (*big.Int, *big.Int, error) {
	yNative := fp.Clone(p.balances[j])

	balances := fp.CloneSlice(p.balances)
	balances[i].Add(balances[i], dx)
	p.balances[i] = fp.Clone(balances[i])
	xp := p.xpMem(balances)

	y, err := newtonY(p.a, p.gamma, xp, p.d, j)
	if err != nil {
		return nil, nil, err
	}
	dy := new(big.Int).Sub(xp[j], y)
	xp[j].Sub(xp[j], dy)
	dy.Sub(dy, fp.One)

	if j > 0 {
		dy = fp.MulDiv(dy, fp.Precision, p.priceScale[j-1])
	}
	dy = fp.FloorDiv(dy, p.precisions[j])

	fee := fp.MulDiv(p.feeRate(xp), dy, fp.FeeDenominator)
	dy.Sub(dy, fee)
	if minDy != nil && dy.Cmp(minDy) < 0 {
		return nil, nil, fmt.Errorf("%w: dy %s below minimum %s", pool.ErrSlippage, dy, minDy)
	}
	yNative.Sub(yNative, dy)
	if yNative.Sign() < 0 {
		return nil, nil, fmt.Errorf("exchange output: %w", pool.ErrNegativeBalance)
	}
	p.balances[j] = fp.Clone(yNative)

	// Rebuild xp[j] from the post-fee native balance for the repeg.
	yNorm := new(big.Int).Mul(yNative, p.precisions[j])
	if j > 0 {
		yNorm = fp.MulDiv(yNorm, p.priceScale[j-1], fp.Precision)
	}
	xp[j] = yNorm

	// Record the execution price when the trade is large enough to carry
	// signal. A trade into coin 0 reprices coin i instead of coin j.
	ix := j
	pLast := new(big.Int)
	if dx.Cmp(big.NewInt(1e5)) > 0 && dy.Cmp(big.NewInt(1e5)) > 0 {
		dxFull := new(big.Int).Mul(dx, p.precisions[i])
		dyFull := new(big.Int).Mul(dy, p.precisions[j])
		switch {
		case i != 0 && j != 0:
			pLast = fp.MulDiv(p.lastPrices[i-1], dxFull, dyFull)
		case i == 0:
			pLast = fp.MulDiv(dxFull, fp.Precision, dyFull)
		default:
			pLast = fp.MulDiv(dyFull, fp.Precision, dxFull)
			ix = i
		}
	}

	if err := p.tweakPrice(xp, ix, pLast, nil); err != nil {
		return nil, nil, err
	}
	return dy, fee, nil
}

// tweakPrice folds the last trade price into the EMA oracle, rolls the
// profit counters forward and, when enough profit has accrued and the oracle
// has drifted, moves the price scale toward the oracle.
func (p *Pool) tweakPrice(xp []*big.Int, ix int, pIx, newD *big.Int) error {
	// EMA update happens once per clock advance, using the previous
	// oracle value and the last trade prices.
	if p.lastPricesTimestamp < p.now {
		alpha, err := p.emaAlpha()
		if err != nil {
			return err
		}
		newOracle := make([]*big.Int, p.n-1)
		for k := range newOracle {
			newOracle[k] = p.emaStep(p.lastPrices[k], p.priceOracle[k], alpha)
		}
		p.priceOracle = newOracle
		p.lastPricesTimestamp = p.now
	}

	dUnadjusted := newD
	if dUnadjusted == nil {
		d, err := newtonD(p.a, p.gamma, xp)
		if err != nil {
			return err
		}
		dUnadjusted = d
	}

	if pIx.Sign() > 0 {
		if ix > 0 {
			p.lastPrices[ix-1] = fp.Clone(pIx)
		} else {
			// Coin 0 repriced: rescale every quote against it.
			for k := range p.lastPrices {
				p.lastPrices[k] = fp.MulDiv(p.lastPrices[k], fp.Precision, pIx)
			}
		}
	} else {
		// No usable execution price; infer spot prices from a small
		// probe of coin 0.
		probe := fp.CloneSlice(xp)
		dxPrice := fp.FloorDiv(probe[0], fp.Pow10(6))
		probe[0].Add(probe[0], dxPrice)
		for k := 1; k < p.n; k++ {
			yK, err := newtonY(p.a, p.gamma, probe, dUnadjusted, k)
			if err != nil {
				return err
			}
			p.lastPrices[k-1] = fp.MulDiv(p.priceScale[k-1], dxPrice, new(big.Int).Sub(probe[k], yK))
		}
	}

	oldXcpProfit := p.xcpProfit
	oldVirtualPrice := p.virtualPrice

	xcpProfit := fp.Clone(fp.Precision)
	virtualPrice := fp.Clone(fp.Precision)
	if oldVirtualPrice.Sign() > 0 {
		xcp, err := geometricMean(p.equilibrium(dUnadjusted, p.priceScale), true)
		if err != nil {
			return err
		}
		virtualPrice = fp.MulDiv(fp.Precision, xcp, p.lpSupply)
		if virtualPrice.Cmp(oldVirtualPrice) < 0 {
			return fmt.Errorf("%w: %s -> %s", pool.ErrLoss, oldVirtualPrice, virtualPrice)
		}
		xcpProfit = fp.MulDiv(oldXcpProfit, virtualPrice, oldVirtualPrice)
	}
	p.xcpProfit = xcpProfit

	// Distance between oracle and scale across all quote coins.
	norm := new(big.Int)
	for k := 0; k < p.n-1; k++ {
		ratio := fp.MulDiv(p.priceOracle[k], fp.Precision, p.priceScale[k])
		ratio = fp.AbsDiff(ratio, fp.Precision)
		norm.Add(norm, new(big.Int).Mul(ratio, ratio))
	}
	norm.Sqrt(norm)
	adjustmentStep := bmax(p.adjustmentStep, fp.FloorDiv(norm, big.NewInt(5)))

	needsAdjustment := p.notAdjusted
	if !needsAdjustment && oldVirtualPrice.Sign() > 0 && norm.Cmp(adjustmentStep) > 0 {
		// virtual_price - 1 > (xcp_profit - 1)/2 + allowed_extra_profit,
		// rearranged to avoid the halving.
		lhs := new(big.Int).Mul(virtualPrice, fp.Two)
		lhs.Sub(lhs, fp.Precision)
		rhs := new(big.Int).Add(xcpProfit, new(big.Int).Mul(fp.Two, p.allowedExtraProfit))
		if lhs.Cmp(rhs) > 0 {
			needsAdjustment = true
			p.notAdjusted = true
		}
	}

	if needsAdjustment && norm.Cmp(adjustmentStep) > 0 && oldVirtualPrice.Sign() > 0 {
		newPrices := make([]*big.Int, p.n-1)
		for k := range newPrices {
			np := new(big.Int).Mul(p.priceScale[k], new(big.Int).Sub(norm, adjustmentStep))
			np.Add(np, new(big.Int).Mul(adjustmentStep, p.priceOracle[k]))
			newPrices[k] = fp.FloorDiv(np, norm)
		}

		scaled := make([]*big.Int, p.n)
		scaled[0] = fp.Clone(xp[0])
		for k := 1; k < p.n; k++ {
			scaled[k] = fp.MulDiv(xp[k], newPrices[k-1], p.priceScale[k-1])
		}
		d, err := newtonD(p.a, p.gamma, scaled)
		if err != nil {
			return err
		}
		xcp, err := geometricMean(p.equilibrium(d, newPrices), true)
		if err != nil {
			return err
		}
		newVirtualPrice := fp.MulDiv(fp.Precision, xcp, p.lpSupply)

		// Move the scale only while keeping half the profit realized.
		keep := new(big.Int).Mul(fp.Two, newVirtualPrice)
		keep.Sub(keep, fp.Precision)
		if newVirtualPrice.Cmp(fp.Precision) > 0 && keep.Cmp(xcpProfit) > 0 {
			log.Debug().
				Stringer("old_scale", p.priceScale[0]).
				Stringer("new_scale", newPrices[0]).
				Msg("price scale moved toward oracle")
			p.priceScale = newPrices
			p.d = d
			p.virtualPrice = newVirtualPrice
			return nil
		}
	}

	p.d = dUnadjusted
	p.virtualPrice = virtualPrice

	if needsAdjustment {
		p.notAdjusted = false
		return p.claimAdminFees()
	}
	return nil
}

// claimAdminFees dilutes LPs by the admin's share of profit since the last
// claim and resets the claim marker.
func (p *Pool) claimAdminFees() error {
	xcpProfit := fp.Clone(p.xcpProfit)

	if xcpProfit.Cmp(p.xcpProfitA) > 0 {
		fees := new(big.Int).Sub(xcpProfit, p.xcpProfitA)
		fees.Mul(fees, big.NewInt(p.adminFee))
		fees = fp.FloorDiv(fees, new(big.Int).Mul(fp.Two, fp.FeeDenominator))
		if fees.Sign() > 0 {
			frac := fp.MulDiv(p.virtualPrice, fp.Precision, new(big.Int).Sub(p.virtualPrice, fees))
			frac.Sub(frac, fp.Precision)
			dSupply := fp.MulDiv(p.lpSupply, frac, fp.Precision)
			p.lpSupply = new(big.Int).Add(p.lpSupply, dSupply)
			xcpProfit.Sub(xcpProfit, new(big.Int).Mul(fees, fp.Two))
			p.xcpProfit = xcpProfit
		}
	}

	d, err := newtonD(p.a, p.gamma, p.xp())
	if err != nil {
		return err
	}
	p.d = d
	xcp, err := p.getXcp(d)
	if err != nil {
		return err
	}
	p.virtualPrice = fp.MulDiv(fp.Precision, xcp, p.lpSupply)

	if xcpProfit.Cmp(p.xcpProfitA) > 0 {
		p.xcpProfitA = fp.Clone(xcpProfit)
	}
	return nil
}

// VirtualPrice returns the xcp value backing one LP token, in 10^18 units.
func (p *Pool) VirtualPrice() (sdkmath.Int, error) {
	if p.lpSupply.Sign() == 0 {
		return sdkmath.ZeroInt(), pool.ErrZeroLiquidity
	}
	xcp, err := p.getXcp(p.d)
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	return fp.ToSDK(fp.MulDiv(fp.Precision, xcp, p.lpSupply)), nil
}

// LPPrice approximates the LP token price in coin 0 as if the pool were a
// constant-product AMM. Two-coin pools only.
func (p *Pool) LPPrice() (sdkmath.Int, error) {
	if p.n != 2 {
		return sdkmath.ZeroInt(), fmt.Errorf("lp price supports 2-coin pools, have %d", p.n)
	}
	oracle, err := p.PriceOracle()
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	root, err := sqrtInt(fp.FromSDK(oracle[0]))
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	out := new(big.Int).Mul(fp.Two, p.virtualPrice)
	out.Mul(out, root)
	return fp.ToSDK(fp.FloorDiv(out, fp.Precision)), nil
}
