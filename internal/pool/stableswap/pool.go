/*

Stableswap pool with integer arithmetic that matches the on-chain contract
operation for operation: every division floors exactly where the contract
floors, so simulated outputs equal on-chain outputs for identical state.

*/

package stableswap

import (
	"fmt"
	"math/big"

	sdkmath "cosmossdk.io/math"

	fp "github.com/ammlabs/poolsim/internal/fixedpoint"
	"github.com/ammlabs/poolsim/internal/logger"
	"github.com/ammlabs/poolsim/internal/pool"
)

var log = logger.GetForComponent("stableswap")

// DefaultFee is 0.04% out of 10^10.
const DefaultFee = 4 * 1e6

// Config describes a stableswap pool. Either D (a virtual total balance in
// 10^18 units, split evenly) or Balances (native units per coin) must be set.
type Config struct {
	// A is the amplification coefficient, A*n^(n-1) in whitepaper terms.
	A int64
	// N is the number of coins, at least 2.
	N int
	// D is the virtual total balance used to derive even starting balances.
	D sdkmath.Int
	// Balances are explicit starting balances in native token units.
	Balances []sdkmath.Int
	// Rates are 10^18-normalized precision/rate multipliers per coin
	// (10^30 for a 6-decimal coin). Defaults to 10^18 each.
	Rates []sdkmath.Int
	// LPSupply is the starting LP token supply. Defaults to D of the
	// starting balances.
	LPSupply sdkmath.Int
	// Fee is the exchange fee out of 10^10. Defaults to DefaultFee.
	Fee int64
	// FeeMul enables the dynamic fee ("fee_mul" pools) when >= 10^10;
	// zero keeps the flat fee.
	FeeMul int64
	// AdminFee is the admin's cut of collected fees, out of 10^10.
	AdminFee int64
}

// Pool is a stableswap pool. Not safe for concurrent use; the orchestrator
// gives each run its own instance.
type Pool struct {
	n        int
	balances []*big.Int // native token units
	rates    []*big.Int
	fee      int64
	feeMul   int64
	adminFee int64

	lpSupply      *big.Int
	adminBalances []*big.Int

	// A ramp state, interpolated against the logical clock.
	initialA     int64
	futureA      int64
	initialATime int64
	futureATime  int64
	now          int64

	nonConverged uint64
}

// New validates cfg and builds the pool.
func New(cfg Config) (*Pool, error) {
	if cfg.N < 2 {
		return nil, fmt.Errorf("%w: need at least 2 coins, got %d", pool.ErrCoinIndex, cfg.N)
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

	rates := make([]*big.Int, cfg.N)
	for i := range rates {
		if cfg.Rates == nil {
			rates[i] = fp.Clone(fp.Precision)
			continue
		}
		if len(cfg.Rates) != cfg.N {
			return nil, fmt.Errorf("got %d rates for %d coins", len(cfg.Rates), cfg.N)
		}
		if !cfg.Rates[i].IsPositive() {
			return nil, fmt.Errorf("rate for coin %d must be positive", i)
		}
		rates[i] = fp.FromSDK(cfg.Rates[i])
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
		// Even split: x_i = D/n * 10^18 / rate_i.
		share := fp.FloorDiv(fp.FromSDK(cfg.D), big.NewInt(int64(cfg.N)))
		for i := range balances {
			balances[i] = fp.MulDiv(share, fp.Precision, rates[i])
		}
	default:
		return nil, fmt.Errorf("either D or Balances must be provided")
	}

	p := &Pool{
		n:        cfg.N,
		balances: balances,
		rates:    rates,
		fee:      cfg.Fee,
		feeMul:   cfg.FeeMul,
		adminFee: cfg.AdminFee,
		initialA: cfg.A,
		futureA:  cfg.A,
	}
	p.adminBalances = make([]*big.Int, cfg.N)
	for i := range p.adminBalances {
		p.adminBalances[i] = new(big.Int)
	}

	if !cfg.LPSupply.IsNil() && cfg.LPSupply.IsPositive() {
		p.lpSupply = fp.FromSDK(cfg.LPSupply)
	} else {
		d, ok := solveD(p.xp(), p.ann())
		p.noteConvergence("D", ok)
		p.lpSupply = d
	}
	return p, nil
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

// AdminBalances returns fees accrued to the admin, in native units.
func (p *Pool) AdminBalances() []sdkmath.Int {
	out := make([]sdkmath.Int, p.n)
	for i, b := range p.adminBalances {
		out[i] = fp.ToSDK(b)
	}
	return out
}

// LPSupply returns the LP token supply.
func (p *Pool) LPSupply() sdkmath.Int { return fp.ToSDK(p.lpSupply) }

// Fee returns the base exchange fee out of 10^10.
func (p *Pool) Fee() int64 { return p.fee }

// NonConvergedCount returns how many Newton solves exhausted their iteration
// budget over the pool's lifetime.
func (p *Pool) NonConvergedCount() uint64 { return p.nonConverged }

// PrepareForTrades advances the pool's logical clock. The clock only moves
// forward.
func (p *Pool) PrepareForTrades(timestamp int64) {
	if timestamp > p.now {
		p.now = timestamp
	}
}

// A returns the amplification coefficient at the current logical time,
// linearly interpolated between ramp endpoints.
func (p *Pool) A() int64 {
	t1 := p.futureATime
	if p.now >= t1 {
		return p.futureA
	}
	a0, a1 := p.initialA, p.futureA
	t0 := p.initialATime
	// Endpoints are exact; interior points interpolate linearly.
	if a1 > a0 {
		return a0 + (a1-a0)*(p.now-t0)/(t1-t0)
	}
	return a0 - (a0-a1)*(p.now-t0)/(t1-t0)
}

// RampA schedules a linear amplification ramp from the current A to futureA
// at futureTime on the logical clock.
func (p *Pool) RampA(futureA int64, futureTime int64) error {
	if futureA <= 0 {
		return fmt.Errorf("ramp target must be positive, got %d", futureA)
	}
	if futureTime <= p.now {
		return fmt.Errorf("ramp end %d not after current time %d", futureTime, p.now)
	}
	p.initialA = p.A()
	p.initialATime = p.now
	p.futureA = futureA
	p.futureATime = futureTime
	log.Debug().
		Int64("initial_a", p.initialA).
		Int64("future_a", futureA).
		Int64("future_time", futureTime).
		Msg("amplification ramp scheduled")
	return nil
}

func (p *Pool) ann() int64 { return p.A() * int64(p.n) }

// xp returns balances normalized to 10^18 precision units of D.
func (p *Pool) xp() []*big.Int {
	out := make([]*big.Int, p.n)
	for i := range out {
		out[i] = fp.MulDiv(p.balances[i], p.rates[i], fp.Precision)
	}
	return out
}

func (p *Pool) xpMem(balances []*big.Int) []*big.Int {
	out := make([]*big.Int, p.n)
	for i := range out {
		out[i] = fp.MulDiv(balances[i], p.rates[i], fp.Precision)
	}
	return out
}

func (p *Pool) noteConvergence(op string, converged bool) {
	if converged {
		return
	}
	p.nonConverged++
	log.Warn().
		Str("op", op).
		Uint64("total", p.nonConverged).
		Int("max_iterations", MaxIterations).
		Msg("newton solve kept last iterate after exhausting iteration budget")
}

// D returns the stableswap invariant for the current balances.
func (p *Pool) D() sdkmath.Int {
	return fp.ToSDK(p.dInternal(p.xp()))
}

func (p *Pool) dInternal(xp []*big.Int) *big.Int {
	d, ok := solveD(xp, p.ann())
	p.noteConvergence("D", ok)
	return d
}

func (p *Pool) dMem(balances []*big.Int) *big.Int {
	return p.dInternal(p.xpMem(balances))
}

func (p *Pool) getY(i, j int, x *big.Int, xp []*big.Int) *big.Int {
	d := p.dInternal(xp)
	y, ok := solveY(p.ann(), i, j, x, xp, d)
	p.noteConvergence("y", ok)
	return y
}

func (p *Pool) getYD(ann int64, i int, xp []*big.Int, d *big.Int) *big.Int {
	y, ok := solveYD(ann, i, xp, d)
	p.noteConvergence("y_D", ok)
	return y
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

// dynamicFee computes the balance-dependent fee for fee_mul pools, given the
// average normalized balances of the two coins over the trade.
func (p *Pool) dynamicFee(xpi, xpj *big.Int) *big.Int {
	feeMul := big.NewInt(p.feeMul)
	fee := big.NewInt(p.fee)
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

// Exchange sells dx of coin i for coin j. Returns the amount of coin j
// received and the fee charged, both in native units of coin j. minDy of
// zero disables the slippage floor. State changes only on success.
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

	xp := p.xp()
	dxBig := fp.FromSDK(dx)
	x := new(big.Int).Add(xp[i], fp.MulDiv(dxBig, p.rates[i], fp.Precision))
	y := p.getY(i, j, x, xp)
	dyNorm := new(big.Int).Sub(xp[j], y)
	dyNorm.Sub(dyNorm, fp.One)

	var feeNorm *big.Int
	if p.feeMul == 0 {
		feeNorm = fp.MulDiv(dyNorm, big.NewInt(p.fee), fp.FeeDenominator)
	} else {
		avgI := fp.FloorDiv(new(big.Int).Add(xp[i], x), fp.Two)
		avgJ := fp.FloorDiv(new(big.Int).Add(xp[j], y), fp.Two)
		feeNorm = fp.MulDiv(dyNorm, p.dynamicFee(avgI, avgJ), fp.FeeDenominator)
	}
	adminFeeNorm := fp.MulDiv(feeNorm, big.NewInt(p.adminFee), fp.FeeDenominator)

	// Back to native units of coin j.
	dyOut := fp.MulDiv(new(big.Int).Sub(dyNorm, feeNorm), fp.Precision, p.rates[j])
	feeOut := fp.MulDiv(feeNorm, fp.Precision, p.rates[j])
	adminOut := fp.MulDiv(adminFeeNorm, fp.Precision, p.rates[j])

	if dyOut.Sign() < 0 {
		return zero, zero, fmt.Errorf("exchange output: %w", pool.ErrNegativeBalance)
	}
	if !minDy.IsNil() && minDy.IsPositive() && dyOut.Cmp(fp.FromSDK(minDy)) < 0 {
		return zero, zero, fmt.Errorf("%w: dy %s below minimum %s", pool.ErrSlippage, dyOut, minDy)
	}

	p.balances[i] = new(big.Int).Add(p.balances[i], dxBig)
	p.balances[j] = new(big.Int).Sub(p.balances[j], new(big.Int).Add(dyOut, adminOut))
	p.adminBalances[j] = new(big.Int).Add(p.adminBalances[j], adminOut)

	return fp.ToSDK(dyOut), fp.ToSDK(feeOut), nil
}

// calcTokenAmount computes the LP amount minted for a deposit and, with
// useFee, the imbalance fee taken from each coin. View only.
func (p *Pool) calcTokenAmount(amounts []*big.Int, useFee bool) (mint *big.Int, fees []*big.Int, err error) {
	d0 := p.dMem(p.balances)
	if d0.Sign() == 0 || p.lpSupply.Sign() == 0 {
		return nil, nil, pool.ErrZeroLiquidity
	}

	newBalances := make([]*big.Int, p.n)
	for i := range newBalances {
		newBalances[i] = new(big.Int).Add(p.balances[i], amounts[i])
	}
	d1 := p.dMem(newBalances)

	mintBalances := fp.CloneSlice(newBalances)
	fees = make([]*big.Int, p.n)
	for i := range fees {
		fees[i] = new(big.Int)
	}

	if useFee {
		// Imbalance fee: fee * n / (4 * (n-1)) applied to the deviation
		// from a proportional deposit.
		feeRate := big.NewInt(p.fee * int64(p.n) / (4 * int64(p.n-1)))
		for i := 0; i < p.n; i++ {
			ideal := fp.MulDiv(d1, p.balances[i], d0)
			diff := fp.AbsDiff(ideal, newBalances[i])
			fees[i] = fp.MulDiv(feeRate, diff, fp.FeeDenominator)
			mintBalances[i].Sub(mintBalances[i], fees[i])
		}
	}

	d2 := p.dMem(mintBalances)
	mint = fp.MulDiv(p.lpSupply, new(big.Int).Sub(d2, d0), d0)
	return mint, fees, nil
}

// CalcTokenAmount computes the LP amount minted for the deposit amounts,
// with the imbalance fee applied when useFee is set. View only.
func (p *Pool) CalcTokenAmount(amounts []sdkmath.Int, useFee bool) (sdkmath.Int, error) {
	zero := sdkmath.ZeroInt()
	amts, err := p.checkAmounts(amounts, false)
	if err != nil {
		return zero, err
	}
	mint, _, err := p.calcTokenAmount(amts, useFee)
	if err != nil {
		return zero, err
	}
	return fp.ToSDK(mint), nil
}

func (p *Pool) checkAmounts(amounts []sdkmath.Int, requirePositive bool) ([]*big.Int, error) {
	if len(amounts) != p.n {
		return nil, fmt.Errorf("got %d amounts for %d coins", len(amounts), p.n)
	}
	out := make([]*big.Int, p.n)
	for i, a := range amounts {
		if a.IsNil() || a.IsNegative() {
			return nil, fmt.Errorf("amount for coin %d: %w", i, pool.ErrZeroTradeAmount)
		}
		if requirePositive && a.IsZero() {
			return nil, fmt.Errorf("amount for coin %d: %w", i, pool.ErrZeroTradeAmount)
		}
		out[i] = fp.FromSDK(a)
	}
	return out, nil
}

// AddLiquidity deposits amounts (native units per coin) and mints LP tokens.
// The first deposit into an empty pool mints exactly D with no imbalance
// fee and requires every coin to be funded.
func (p *Pool) AddLiquidity(amounts []sdkmath.Int, minMint sdkmath.Int) (sdkmath.Int, error) {
	zero := sdkmath.ZeroInt()
	amts, err := p.checkAmounts(amounts, false)
	if err != nil {
		return zero, err
	}

	if p.lpSupply.Sign() == 0 {
		for i, a := range amts {
			if a.Sign() <= 0 {
				return zero, fmt.Errorf("first deposit requires coin %d: %w", i, pool.ErrZeroTradeAmount)
			}
		}
		newBalances := make([]*big.Int, p.n)
		for i := range newBalances {
			newBalances[i] = new(big.Int).Add(p.balances[i], amts[i])
		}
		d1 := p.dMem(newBalances)
		if !minMint.IsNil() && minMint.IsPositive() && d1.Cmp(fp.FromSDK(minMint)) < 0 {
			return zero, fmt.Errorf("%w: mint %s below minimum %s", pool.ErrSlippage, d1, minMint)
		}
		p.balances = newBalances
		p.lpSupply = d1
		return fp.ToSDK(d1), nil
	}

	mint, fees, err := p.calcTokenAmount(amts, true)
	if err != nil {
		return zero, err
	}
	if mint.Sign() <= 0 {
		return zero, fmt.Errorf("deposit mints nothing: %w", pool.ErrZeroTradeAmount)
	}
	if !minMint.IsNil() && minMint.IsPositive() && mint.Cmp(fp.FromSDK(minMint)) < 0 {
		return zero, fmt.Errorf("%w: mint %s below minimum %s", pool.ErrSlippage, mint, minMint)
	}

	for i := 0; i < p.n; i++ {
		adminCut := fp.MulDiv(fees[i], big.NewInt(p.adminFee), fp.FeeDenominator)
		p.balances[i] = new(big.Int).Add(p.balances[i], new(big.Int).Sub(amts[i], adminCut))
		p.adminBalances[i] = new(big.Int).Add(p.adminBalances[i], adminCut)
	}
	p.lpSupply = new(big.Int).Add(p.lpSupply, mint)
	return fp.ToSDK(mint), nil
}

// RemoveLiquidity burns LP tokens for a proportional share of every coin.
// minAmounts may be nil to disable the floors.
func (p *Pool) RemoveLiquidity(burn sdkmath.Int, minAmounts []sdkmath.Int) ([]sdkmath.Int, error) {
	if burn.IsNil() || !burn.IsPositive() {
		return nil, pool.ErrZeroTradeAmount
	}
	if p.lpSupply.Sign() == 0 {
		return nil, pool.ErrZeroLiquidity
	}
	burnBig := fp.FromSDK(burn)
	if burnBig.Cmp(p.lpSupply) > 0 {
		return nil, fmt.Errorf("burn %s exceeds supply %s: %w", burnBig, p.lpSupply, pool.ErrNegativeBalance)
	}
	if minAmounts != nil && len(minAmounts) != p.n {
		return nil, fmt.Errorf("got %d minimums for %d coins", len(minAmounts), p.n)
	}

	// The unit haircut rounds in favor of remaining LPs.
	amount := new(big.Int).Sub(burnBig, fp.One)
	withdrawn := make([]*big.Int, p.n)
	for i := 0; i < p.n; i++ {
		withdrawn[i] = fp.MulDiv(p.balances[i], amount, p.lpSupply)
		if minAmounts != nil && withdrawn[i].Cmp(fp.FromSDK(minAmounts[i])) < 0 {
			return nil, fmt.Errorf("%w: coin %d payout %s below minimum", pool.ErrSlippage, i, withdrawn[i])
		}
	}

	out := make([]sdkmath.Int, p.n)
	for i := 0; i < p.n; i++ {
		p.balances[i] = new(big.Int).Sub(p.balances[i], withdrawn[i])
		out[i] = fp.ToSDK(withdrawn[i])
	}
	p.lpSupply = new(big.Int).Sub(p.lpSupply, burnBig)
	return out, nil
}

// RemoveLiquidityImbalance withdraws exact coin amounts, burning whatever LP
// amount that costs (plus the imbalance fee). maxBurn of zero disables the
// burn ceiling.
func (p *Pool) RemoveLiquidityImbalance(amounts []sdkmath.Int, maxBurn sdkmath.Int) (sdkmath.Int, error) {
	zero := sdkmath.ZeroInt()
	amts, err := p.checkAmounts(amounts, false)
	if err != nil {
		return zero, err
	}
	if p.lpSupply.Sign() == 0 {
		return zero, pool.ErrZeroLiquidity
	}

	d0 := p.dMem(p.balances)
	newBalances := make([]*big.Int, p.n)
	for i := range newBalances {
		newBalances[i] = new(big.Int).Sub(p.balances[i], amts[i])
		if newBalances[i].Sign() < 0 {
			return zero, fmt.Errorf("coin %d: %w", i, pool.ErrNegativeBalance)
		}
	}
	d1 := p.dMem(newBalances)

	feeRate := big.NewInt(p.fee * int64(p.n) / (4 * int64(p.n-1)))
	reduced := fp.CloneSlice(newBalances)
	adminCuts := make([]*big.Int, p.n)
	for i := 0; i < p.n; i++ {
		ideal := fp.MulDiv(d1, p.balances[i], d0)
		diff := fp.AbsDiff(ideal, newBalances[i])
		feeI := fp.MulDiv(feeRate, diff, fp.FeeDenominator)
		adminCuts[i] = fp.MulDiv(feeI, big.NewInt(p.adminFee), fp.FeeDenominator)
		reduced[i].Sub(reduced[i], feeI)
	}
	d2 := p.dMem(reduced)

	burn := fp.MulDiv(new(big.Int).Sub(d0, d2), p.lpSupply, d0)
	burn.Add(burn, fp.One) // round against the withdrawer
	if burn.Cmp(p.lpSupply) > 0 {
		return zero, fmt.Errorf("burn %s exceeds supply: %w", burn, pool.ErrNegativeBalance)
	}
	if !maxBurn.IsNil() && maxBurn.IsPositive() && burn.Cmp(fp.FromSDK(maxBurn)) > 0 {
		return zero, fmt.Errorf("%w: burn %s above maximum %s", pool.ErrSlippage, burn, maxBurn)
	}

	for i := 0; i < p.n; i++ {
		p.balances[i] = new(big.Int).Sub(newBalances[i], adminCuts[i])
		p.adminBalances[i] = new(big.Int).Add(p.adminBalances[i], adminCuts[i])
	}
	p.lpSupply = new(big.Int).Sub(p.lpSupply, burn)
	return fp.ToSDK(burn), nil
}

// calcWithdrawOneCoin computes the payout for redeeming burn LP tokens in
// coin i only, and the fee withheld. View only.
func (p *Pool) calcWithdrawOneCoin(burn *big.Int, i int, useFee bool) (dy, dyFee *big.Int, err error) {
	if p.lpSupply.Sign() == 0 {
		return nil, nil, pool.ErrZeroLiquidity
	}
	ann := p.ann()
	xp := p.xp()
	d0 := p.dInternal(xp)
	d1 := new(big.Int).Sub(d0, fp.MulDiv(burn, d0, p.lpSupply))

	newY := p.getYD(ann, i, xp, d1)
	dyBeforeFee := fp.MulDiv(new(big.Int).Sub(xp[i], newY), fp.Precision, p.rates[i])

	xpReduced := fp.CloneSlice(xp)
	if p.fee > 0 && useFee {
		feeRate := big.NewInt(p.fee * int64(p.n) / (4 * int64(p.n-1)))
		for j := 0; j < p.n; j++ {
			var dxExpected *big.Int
			if j == i {
				dxExpected = new(big.Int).Sub(fp.MulDiv(xp[j], d1, d0), newY)
			} else {
				dxExpected = new(big.Int).Sub(xp[j], fp.MulDiv(xp[j], d1, d0))
			}
			xpReduced[j].Sub(xpReduced[j], fp.MulDiv(feeRate, dxExpected, fp.FeeDenominator))
		}
	}

	dyNorm := new(big.Int).Sub(xpReduced[i], p.getYD(ann, i, xpReduced, d1))
	dy = fp.MulDiv(new(big.Int).Sub(dyNorm, fp.One), fp.Precision, p.rates[i])
	if !useFee {
		return dy, new(big.Int), nil
	}
	return dy, new(big.Int).Sub(dyBeforeFee, dy), nil
}

// CalcWithdrawOneCoin computes the coin i payout for burning LP tokens, and
// the fee withheld. View only.
func (p *Pool) CalcWithdrawOneCoin(burn sdkmath.Int, i int) (dy, fee sdkmath.Int, err error) {
	zero := sdkmath.ZeroInt()
	if i < 0 || i >= p.n {
		return zero, zero, fmt.Errorf("%w: i=%d n=%d", pool.ErrCoinIndex, i, p.n)
	}
	if burn.IsNil() || !burn.IsPositive() {
		return zero, zero, pool.ErrZeroTradeAmount
	}
	d, f, err := p.calcWithdrawOneCoin(fp.FromSDK(burn), i, true)
	if err != nil {
		return zero, zero, err
	}
	return fp.ToSDK(d), fp.ToSDK(f), nil
}

// RemoveLiquidityOneCoin burns LP tokens and pays out entirely in coin i.
func (p *Pool) RemoveLiquidityOneCoin(burn sdkmath.Int, i int, minDy sdkmath.Int) (dy, fee sdkmath.Int, err error) {
	zero := sdkmath.ZeroInt()
	if i < 0 || i >= p.n {
		return zero, zero, fmt.Errorf("%w: i=%d n=%d", pool.ErrCoinIndex, i, p.n)
	}
	if burn.IsNil() || !burn.IsPositive() {
		return zero, zero, pool.ErrZeroTradeAmount
	}
	burnBig := fp.FromSDK(burn)
	if burnBig.Cmp(p.lpSupply) > 0 {
		return zero, zero, fmt.Errorf("burn exceeds supply: %w", pool.ErrNegativeBalance)
	}

	dyBig, dyFee, err := p.calcWithdrawOneCoin(burnBig, i, true)
	if err != nil {
		return zero, zero, err
	}
	if dyBig.Sign() < 0 {
		return zero, zero, fmt.Errorf("withdraw payout: %w", pool.ErrNegativeBalance)
	}
	if !minDy.IsNil() && minDy.IsPositive() && dyBig.Cmp(fp.FromSDK(minDy)) < 0 {
		return zero, zero, fmt.Errorf("%w: dy %s below minimum %s", pool.ErrSlippage, dyBig, minDy)
	}

	adminCut := fp.MulDiv(dyFee, big.NewInt(p.adminFee), fp.FeeDenominator)
	p.balances[i] = new(big.Int).Sub(p.balances[i], new(big.Int).Add(dyBig, adminCut))
	p.adminBalances[i] = new(big.Int).Add(p.adminBalances[i], adminCut)
	p.lpSupply = new(big.Int).Sub(p.lpSupply, burnBig)
	return fp.ToSDK(dyBig), fp.ToSDK(dyFee), nil
}

// VirtualPrice returns the D value backing one LP token, in 10^18 units.
// Monotonically non-decreasing under trading; deposits and withdrawals leave
// it unchanged up to rounding.
func (p *Pool) VirtualPrice() (sdkmath.Int, error) {
	if p.lpSupply.Sign() == 0 {
		return sdkmath.ZeroInt(), pool.ErrZeroLiquidity
	}
	d := p.dInternal(p.xp())
	return fp.ToSDK(fp.MulDiv(d, fp.Precision, p.lpSupply)), nil
}

// Dydx returns the spot price of coin i quoted in coin j for an
// infinitesimal trade, via the closed form of the invariant's derivative.
func (p *Pool) Dydx(i, j int, useFee bool) (float64, error) {
	if err := p.checkCoins(i, j); err != nil {
		return 0, err
	}
	if err := p.checkLive(); err != nil {
		return 0, err
	}

	xp := p.xp()
	xi, xj := xp[i], xp[j]
	n := int64(p.n)
	d := p.dInternal(xp)

	dPow := new(big.Int).Exp(d, big.NewInt(n+1), nil)
	xProd := fp.Prod(xp)
	aPow := new(big.Int).Mul(big.NewInt(p.A()), new(big.Int).Exp(big.NewInt(n), big.NewInt(n+1), nil))

	num := new(big.Int).Mul(xi, aPow)
	num.Mul(num, xProd)
	num.Add(num, dPow)
	num.Mul(num, xj)

	den := new(big.Int).Mul(xj, aPow)
	den.Mul(den, xProd)
	den.Add(den, dPow)
	den.Mul(den, xi)

	price := fp.RatioFloat(num, den)

	if useFee {
		var feeFactor float64
		if p.feeMul == 0 {
			feeFactor = float64(p.fee) / 1e10
		} else {
			feeFactor = fp.BigToFloat(p.dynamicFee(xi, xj)) / 1e10
		}
		price *= 1 - feeFactor
	}
	return price, nil
}
