package cryptoswap

import (
	"fmt"
	"math/big"

	sdkmath "cosmossdk.io/math"

	fp "github.com/ammlabs/poolsim/internal/fixedpoint"
	"github.com/ammlabs/poolsim/internal/pool"
)

func (p *Pool) checkAmounts(amounts []sdkmath.Int) ([]*big.Int, error) {
	if len(amounts) != p.n {
		return nil, fmt.Errorf("got %d amounts for %d coins", len(amounts), p.n)
	}
	out := make([]*big.Int, p.n)
	anyPositive := false
	for i, a := range amounts {
		if a.IsNil() || a.IsNegative() {
			return nil, fmt.Errorf("amount for coin %d: %w", i, pool.ErrZeroTradeAmount)
		}
		if a.IsPositive() {
			anyPositive = true
		}
		out[i] = fp.FromSDK(a)
	}
	if !anyPositive {
		return nil, fmt.Errorf("all deposit amounts zero: %w", pool.ErrZeroTradeAmount)
	}
	return out, nil
}

// calcTokenFee is the deposit imbalance fee out of 10^10: the blended fee
// scaled by how far the deposit deviates from proportional, plus NoiseFee.
func (p *Pool) calcTokenFee(amounts, xp []*big.Int) *big.Int {
	nBig := big.NewInt(int64(p.n))
	fee := big.NewInt(p.feeRate(xp).Int64() * int64(p.n) / (4 * int64(p.n-1)))

	s := fp.Sum(amounts)
	avg := fp.FloorDiv(s, nBig)
	sdiff := new(big.Int)
	for _, a := range amounts {
		sdiff.Add(sdiff, fp.AbsDiff(a, avg))
	}
	out := fp.MulDiv(fee, sdiff, s)
	return out.Add(out, big.NewInt(NoiseFee))
}

// CalcTokenAmount computes the LP amount minted for the deposit amounts,
// imbalance fee included. View only.
func (p *Pool) CalcTokenAmount(amounts []sdkmath.Int) (sdkmath.Int, error) {
	zero := sdkmath.ZeroInt()
	amts, err := p.checkAmounts(amounts)
	if err != nil {
		return zero, err
	}

	xp := p.xp()
	amountsp := p.xpMem(amts)
	for i := range xp {
		xp[i].Add(xp[i], amountsp[i])
	}
	d, err := newtonD(p.a, p.gamma, xp)
	if err != nil {
		return zero, err
	}
	dToken := fp.MulDiv(p.lpSupply, d, p.d)
	dToken.Sub(dToken, p.lpSupply)
	dToken.Sub(dToken, fp.MulDiv(p.calcTokenFee(amountsp, xp), dToken, fp.FeeDenominator))
	dToken.Sub(dToken, fp.One)
	return fp.ToSDK(dToken), nil
}

// AddLiquidity deposits amounts (native units per coin) and mints LP tokens.
// The deposit, the fee and the repeg apply atomically; any error leaves the
// pool untouched.
func (p *Pool) AddLiquidity(amounts []sdkmath.Int, minMint sdkmath.Int) (sdkmath.Int, error) {
	zero := sdkmath.ZeroInt()
	amts, err := p.checkAmounts(amounts)
	if err != nil {
		return zero, err
	}

	snap := p.Snapshot()
	mint, err := p.addLiquidity(amts)
	if err == nil && !minMint.IsNil() && minMint.IsPositive() && mint.Cmp(fp.FromSDK(minMint)) < 0 {
		err = fmt.Errorf("%w: mint %s below minimum %s", pool.ErrSlippage, mint, minMint)
	}
	if err != nil {
		if rerr := p.Revert(snap); rerr != nil {
			return zero, rerr
		}
		return zero, err
	}
	return fp.ToSDK(mint), nil
}

func (p *Pool) addLiquidity(amounts []*big.Int) (*big.Int, error) {
	xpOld := p.xp()
	for i := range p.balances {
		p.balances[i] = new(big.Int).Add(p.balances[i], amounts[i])
	}
	xp := p.xp()
	amountsp := make([]*big.Int, p.n)
	for i := range amountsp {
		amountsp[i] = new(big.Int).Sub(xp[i], xpOld[i])
	}

	oldD := p.d
	d, err := newtonD(p.a, p.gamma, xp)
	if err != nil {
		return nil, err
	}

	dToken := fp.MulDiv(p.lpSupply, d, oldD)
	dToken.Sub(dToken, p.lpSupply)
	if dToken.Sign() <= 0 {
		return nil, fmt.Errorf("deposit mints nothing: %w", pool.ErrZeroTradeAmount)
	}

	fee := fp.MulDiv(p.calcTokenFee(amountsp, xp), dToken, fp.FeeDenominator)
	fee.Add(fee, fp.One)
	dToken.Sub(dToken, fee)
	p.lpSupply = new(big.Int).Add(p.lpSupply, dToken)

	// A single-sided deposit carries an execution price for the untouched
	// coin. Two-coin pools only; a balanced deposit carries none.
	ix := -1
	pDep := new(big.Int)
	if p.n == 2 && dToken.Cmp(big.NewInt(1e5)) > 0 {
		nonzero := 0
		for _, a := range amounts {
			if a.Sign() != 0 {
				nonzero++
			}
		}
		if nonzero == 1 {
			for k, a := range amounts {
				if a.Sign() != 0 {
					ix = k
				}
			}
			// p_ix * (dx_ix - dtoken/supply * x_ix) =
			//   dtoken/supply * sum_{k != ix}(p_k * x_k)
			other := 1 - ix
			s := new(big.Int).Mul(p.balances[other], p.precisions[other])
			if other > 0 {
				s = fp.MulDiv(s, p.lastPrices[other-1], fp.Precision)
			}
			s = fp.MulDiv(s, dToken, p.lpSupply)
			den := new(big.Int).Mul(amounts[ix], p.precisions[ix])
			den.Sub(den, fp.MulDiv(new(big.Int).Mul(p.balances[ix], p.precisions[ix]), dToken, p.lpSupply))
			pDep = fp.MulDiv(s, fp.Precision, den)
		}
	}

	if err := p.tweakPrice(xp, ix, pDep, d); err != nil {
		return nil, err
	}
	return dToken, nil
}

// RemoveLiquidity burns LP tokens for a proportional share of every coin,
// with no solver involvement. minAmounts may be nil to disable the floors.
func (p *Pool) RemoveLiquidity(burn sdkmath.Int, minAmounts []sdkmath.Int) ([]sdkmath.Int, error) {
	if burn.IsNil() || !burn.IsPositive() {
		return nil, pool.ErrZeroTradeAmount
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
	p.d = new(big.Int).Sub(p.d, fp.MulDiv(p.d, amount, p.lpSupply))
	p.lpSupply = new(big.Int).Sub(p.lpSupply, burnBig)
	return out, nil
}

// calcWithdrawOneCoin prices a one-coin withdrawal. The fee is charged on D
// rather than on the payout, reducing the invariant less than it charges the
// withdrawer. Returns the native payout, the execution price for the repeg,
// the post-withdrawal invariant and the normalized balances.
func (p *Pool) calcWithdrawOneCoin(tokenAmount *big.Int, i int, updateD, calcPrice bool) (*big.Int, *big.Int, *big.Int, []*big.Int, error) {
	if tokenAmount.Cmp(p.lpSupply) > 0 {
		return nil, nil, nil, nil, fmt.Errorf("burn exceeds supply: %w", pool.ErrNegativeBalance)
	}

	xx := fp.CloneSlice(p.balances)
	xp := p.xpMem(xx)

	d0 := p.d
	if updateD {
		var err error
		d0, err = newtonD(p.a, p.gamma, xp)
		if err != nil {
			return nil, nil, nil, nil, err
		}
	}

	fee := p.feeRate(xp)
	dD := fp.MulDiv(tokenAmount, d0, p.lpSupply)
	feeCut := fp.FloorDiv(new(big.Int).Mul(fee, dD), new(big.Int).Mul(fp.Two, fp.FeeDenominator))
	feeCut.Add(feeCut, fp.One)
	d := new(big.Int).Sub(d0, new(big.Int).Sub(dD, feeCut))

	y, err := newtonY(p.a, p.gamma, xp, d, i)
	if err != nil {
		return nil, nil, nil, nil, err
	}
	var dy *big.Int
	if i == 0 {
		dy = fp.FloorDiv(new(big.Int).Sub(xp[i], y), p.precisions[i])
	} else {
		dy = fp.MulDiv(new(big.Int).Sub(xp[i], y), fp.Precision,
			new(big.Int).Mul(p.precisions[i], p.priceScale[i-1]))
	}
	xp[i] = y

	pOut := new(big.Int)
	if calcPrice && p.n == 2 && dy.Cmp(big.NewInt(1e5)) > 0 && tokenAmount.Cmp(big.NewInt(1e5)) > 0 {
		// p_i = dD/D0 * sum'(p_k * x_k) / (dy - dD/D0 * y0)
		other := 1 - i
		s := new(big.Int).Mul(xx[other], p.precisions[other])
		s = fp.MulDiv(s, dD, d0)
		den := new(big.Int).Mul(dy, p.precisions[i])
		den.Sub(den, fp.MulDiv(new(big.Int).Mul(dD, xx[i]), p.precisions[i], d0))
		pOut = fp.MulDiv(s, fp.Precision, den)
		if i == 0 {
			pOut = fp.FloorDiv(new(big.Int).Mul(fp.Precision, fp.Precision), pOut)
		}
	}
	return dy, pOut, d, xp, nil
}

// CalcWithdrawOneCoin computes the coin i payout for burning LP tokens.
// View only.
func (p *Pool) CalcWithdrawOneCoin(burn sdkmath.Int, i int) (sdkmath.Int, error) {
	zero := sdkmath.ZeroInt()
	if i < 0 || i >= p.n {
		return zero, fmt.Errorf("%w: i=%d n=%d", pool.ErrCoinIndex, i, p.n)
	}
	if burn.IsNil() || !burn.IsPositive() {
		return zero, pool.ErrZeroTradeAmount
	}
	dy, _, _, _, err := p.calcWithdrawOneCoin(fp.FromSDK(burn), i, true, false)
	if err != nil {
		return zero, err
	}
	return fp.ToSDK(dy), nil
}

// RemoveLiquidityOneCoin burns LP tokens and pays out entirely in coin i.
// The withdrawal and the repeg apply atomically; any error leaves the pool
// untouched.
func (p *Pool) RemoveLiquidityOneCoin(burn sdkmath.Int, i int, minDy sdkmath.Int) (sdkmath.Int, error) {
	zero := sdkmath.ZeroInt()
	if i < 0 || i >= p.n {
		return zero, fmt.Errorf("%w: i=%d n=%d", pool.ErrCoinIndex, i, p.n)
	}
	if burn.IsNil() || !burn.IsPositive() {
		return zero, pool.ErrZeroTradeAmount
	}

	snap := p.Snapshot()
	dy, err := p.removeLiquidityOneCoin(fp.FromSDK(burn), i, minDy)
	if err != nil {
		if rerr := p.Revert(snap); rerr != nil {
			return zero, rerr
		}
		return zero, err
	}
	return fp.ToSDK(dy), nil
}

func (p *Pool) removeLiquidityOneCoin(burn *big.Int, i int, minDy sdkmath.Int) (*big.Int, error) {
	dy, pCalc, d, xp, err := p.calcWithdrawOneCoin(burn, i, false, true)
	if err != nil {
		return nil, err
	}
	if !minDy.IsNil() && minDy.IsPositive() && dy.Cmp(fp.FromSDK(minDy)) < 0 {
		return nil, fmt.Errorf("%w: dy %s below minimum %s", pool.ErrSlippage, dy, minDy)
	}

	p.balances[i] = new(big.Int).Sub(p.balances[i], dy)
	if p.balances[i].Sign() < 0 {
		return nil, fmt.Errorf("coin %d: %w", i, pool.ErrNegativeBalance)
	}
	p.lpSupply = new(big.Int).Sub(p.lpSupply, burn)

	// The execution price always quotes the paired coin in coin 0, so a
	// coin 0 withdrawal reprices the other leg.
	ix := i
	if i == 0 && p.n == 2 && pCalc.Sign() > 0 {
		ix = 1
	}
	if err := p.tweakPrice(xp, ix, pCalc, d); err != nil {
		return nil, err
	}
	return dy, nil
}
