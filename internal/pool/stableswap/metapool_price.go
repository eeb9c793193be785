package stableswap

import (
	"fmt"
	"math/big"

	fp "github.com/ammlabs/poolsim/internal/fixedpoint"
	"github.com/ammlabs/poolsim/internal/pool"
)

// priceProbeDx is the normalized in-amount used where a spot price has no
// closed form and a difference quotient stands in.
var priceProbeDx = fp.Pow10(12)

// Dydx returns the spot price of underlying coin i quoted in underlying coin
// j. Base-to-base pairs delegate to the base pool; primary-to-base uses the
// chain rule through the base invariant's derivative; base-to-primary uses a
// difference quotient with a small probe deposit.
func (m *MetaPool) Dydx(i, j int, useFee bool) (float64, error) {
	total := m.NumCoins()
	if i == j {
		return 0, pool.ErrSameCoin
	}
	if i < 0 || i >= total || j < 0 || j >= total {
		return 0, fmt.Errorf("%w: i=%d j=%d n=%d", pool.ErrCoinIndex, i, j, total)
	}

	baseI := i - m.maxCoin
	baseJ := j - m.maxCoin
	if baseI >= 0 && baseJ >= 0 {
		return m.base.Dydx(baseI, baseJ, useFee)
	}
	if err := m.checkMetaLive(); err != nil {
		return 0, err
	}
	if err := m.base.checkLive(); err != nil {
		return 0, err
	}

	rates, err := m.rates()
	if err != nil {
		return 0, err
	}
	xp := m.xpMem(rates, m.balances)

	bp := m.base
	baseXp := bp.xp()
	xProd := fp.Prod(baseXp)
	n := int64(bp.n)
	d := bp.dInternal(baseXp)
	dPow := new(big.Int).Exp(d, big.NewInt(n+1), nil)
	aPow := new(big.Int).Mul(big.NewInt(bp.A()), new(big.Int).Exp(big.NewInt(n), big.NewInt(n+1), nil))
	aProd := new(big.Int).Mul(aPow, xProd)

	if baseI < 0 {
		// Primary in, base coin out. dz/dx_j = (dz/dw) / D'(x_j) where w
		// is the base LP leg and D' the base invariant's derivative.
		xj := baseXp[baseJ]

		num := new(big.Float).Add(
			new(big.Float).SetInt(aProd),
			new(big.Float).Quo(new(big.Float).SetInt(dPow), new(big.Float).SetInt(xj)),
		)
		den := new(big.Int).Mul(new(big.Int).Exp(big.NewInt(n), big.NewInt(n), nil), xProd)
		den.Sub(den, aProd)
		den.Sub(den, new(big.Int).Mul(big.NewInt(n+1), new(big.Int).Exp(d, big.NewInt(n), nil)))

		dPrimeF := new(big.Float).Quo(new(big.Float).Neg(num), new(big.Float).SetInt(den))
		dPrime, _ := dPrimeF.Float64()

		dwdz, err := m.metaDydx(i, m.maxCoin, xp, useFee)
		if err != nil {
			return 0, err
		}
		price := dwdz / dPrime

		if useFee && bp.fee > 0 {
			feeBig := big.NewInt(bp.fee)
			fee := new(big.Int).Sub(feeBig, fp.MulDiv(feeBig, xj, fp.Sum(baseXp)))
			fee.Add(fee, big.NewInt(5*1e5))
			price *= 1 - fp.BigToFloat(fee)/1e10
		}
		return price, nil
	}

	// Base coin in, primary out: probe with a small deposit and quote the
	// resulting meta-level swap.
	baseInputs := make([]*big.Int, bp.n)
	for k := range baseInputs {
		baseInputs[k] = new(big.Int)
	}
	baseInputs[baseI] = fp.MulDiv(priceProbeDx, fp.Precision, bp.rates[baseI])

	dw, _, err := bp.calcTokenAmount(baseInputs, true)
	if err != nil {
		return 0, err
	}
	dw = fp.MulDiv(dw, rates[m.maxCoin], fp.Precision)
	x := new(big.Int).Add(xp[m.maxCoin], dw)

	y := m.getY(m.maxCoin, j, x, xp)
	dy := new(big.Int).Sub(xp[j], y)
	dy.Sub(dy, fp.One)
	if useFee {
		dy.Sub(dy, fp.MulDiv(dy, big.NewInt(m.fee), fp.FeeDenominator))
	}
	return fp.RatioFloat(dy, priceProbeDx), nil
}

// metaDydx is the plain closed-form spot price over meta-level balances,
// with no underlying routing.
func (m *MetaPool) metaDydx(i, j int, xp []*big.Int, useFee bool) (float64, error) {
	xi, xj := xp[i], xp[j]
	n := int64(m.n)
	d := m.dInternal(xp)

	dPow := new(big.Int).Exp(d, big.NewInt(n+1), nil)
	xProd := fp.Prod(xp)
	aPow := new(big.Int).Mul(big.NewInt(m.A()), new(big.Int).Exp(big.NewInt(n), big.NewInt(n+1), nil))

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
		if m.feeMul == 0 {
			feeFactor = float64(m.fee) / 1e10
		} else {
			// Average the balances over a probe-sized trade, as the
			// dynamic fee is quoted mid-trade.
			dxHalf := fp.FloorDiv(priceProbeDx, fp.Two)
			dyHalf := big.NewInt(int64(price * 1e12 / 2))
			xiAvg := new(big.Int).Add(xi, dxHalf)
			xjAvg := new(big.Int).Sub(xj, dyHalf)
			feeFactor = fp.BigToFloat(m.dynamicFee(xiAvg, xjAvg)) / 1e10
		}
		price *= 1 - feeFactor
	}
	return price, nil
}
