package cryptoswap

import (
	"fmt"
	"math/big"
	"sort"

	fp "github.com/ammlabs/poolsim/internal/fixedpoint"
	"github.com/ammlabs/poolsim/internal/pool"
)

// MaxIterations bounds every Newton solve and series expansion. Unlike the
// stableswap solvers, exhausting the budget here is an error: the cryptoswap
// invariant has regions where a stale iterate is not a usable answer.
const MaxIterations = 255

// expPrecision terminates the halfpow series once a term drops below it.
var expPrecision = fp.Pow10(10)

var (
	minX0   = fp.Pow10(9)
	maxX0   = new(big.Int).Mul(fp.Pow10(15), fp.Pow10(18))
	minFrac = fp.Pow10(16)
	maxFrac = fp.Pow10(20)
	minD    = fp.Pow10(17)
)

func bmax(a, b *big.Int) *big.Int {
	if a.Cmp(b) >= 0 {
		return a
	}
	return b
}

func checkAmpGamma(n int, ann, gamma int64) error {
	nPowN := int64(1)
	for k := 0; k < n; k++ {
		nPowN *= int64(n)
	}
	minA := nPowN * AMultiplier / 10
	maxA := nPowN * AMultiplier * 100000
	if ann < minA || ann > maxA {
		return fmt.Errorf("%w: amplification %d outside [%d, %d]", pool.ErrUnsafeValue, ann, minA, maxA)
	}
	if gamma < MinGamma || gamma > MaxGamma {
		return fmt.Errorf("%w: gamma %d outside [%d, %d]", pool.ErrUnsafeValue, gamma, int64(MinGamma), int64(MaxGamma))
	}
	return nil
}

func sortedDesc(x []*big.Int) []*big.Int {
	out := fp.CloneSlice(x)
	sort.Slice(out, func(a, b int) bool { return out[a].Cmp(out[b]) > 0 })
	return out
}

// newtonD finds the invariant D for normalized balances x via Newton's
// method. ann is A*n^n scaled by AMultiplier.
func newtonD(ann, gamma int64, xUnsorted []*big.Int) (*big.Int, error) {
	n := int64(len(xUnsorted))
	if err := checkAmpGamma(len(xUnsorted), ann, gamma); err != nil {
		return nil, err
	}

	x := sortedDesc(xUnsorted)
	if x[0].Cmp(minX0) < 0 || x[0].Cmp(maxX0) > 0 {
		return nil, fmt.Errorf("%w: largest balance %s", pool.ErrUnsafeValue, x[0])
	}
	for k := 1; k < len(x); k++ {
		frac := fp.MulDiv(x[k], fp.Precision, x[0])
		if frac.Cmp(fp.Pow10(14)) < 0 {
			return nil, fmt.Errorf("%w: balance %d too small next to largest", pool.ErrUnsafeValue, k)
		}
	}

	gm, err := geometricMean(x, false)
	if err != nil {
		return nil, err
	}
	d := new(big.Int).Mul(big.NewInt(n), gm)
	s := fp.Sum(x)

	for iter := 0; iter < MaxIterations; iter++ {
		dPrev := fp.Clone(d)

		var k0 *big.Int
		if n == 2 {
			k0 = new(big.Int).Mul(fp.Precision, big.NewInt(4))
			k0.Mul(k0, x[0])
			k0 = fp.FloorDiv(k0, d)
			k0.Mul(k0, x[1])
			k0 = fp.FloorDiv(k0, d)
		} else {
			k0 = fp.Clone(fp.Precision)
			for _, xk := range x {
				k0.Mul(k0, xk)
				k0.Mul(k0, big.NewInt(n))
				k0 = fp.FloorDiv(k0, d)
			}
		}

		g1k0 := new(big.Int).Add(big.NewInt(gamma), fp.Precision)
		if g1k0.Cmp(k0) > 0 {
			g1k0.Sub(g1k0, k0)
			g1k0.Add(g1k0, fp.One)
		} else {
			g1k0 = new(big.Int).Sub(k0, g1k0)
			g1k0.Add(g1k0, fp.One)
		}

		// D / (A*n^n) * g1k0^2 / gamma^2, in 10^18 units.
		mul1 := fp.FloorDiv(new(big.Int).Mul(fp.Precision, d), big.NewInt(gamma))
		mul1 = fp.FloorDiv(new(big.Int).Mul(mul1, g1k0), big.NewInt(gamma))
		mul1.Mul(mul1, g1k0)
		mul1.Mul(mul1, big.NewInt(AMultiplier))
		mul1 = fp.FloorDiv(mul1, big.NewInt(ann))

		// 2*n*K0 / g1k0.
		mul2 := new(big.Int).Mul(fp.Two, fp.Precision)
		mul2.Mul(mul2, big.NewInt(n))
		mul2.Mul(mul2, k0)
		mul2 = fp.FloorDiv(mul2, g1k0)

		negFprime := new(big.Int).Add(s, fp.MulDiv(s, mul2, fp.Precision))
		negFprime.Add(negFprime, fp.FloorDiv(new(big.Int).Mul(mul1, big.NewInt(n)), k0))
		negFprime.Sub(negFprime, fp.MulDiv(mul2, d, fp.Precision))

		dPlus := fp.MulDiv(d, new(big.Int).Add(negFprime, s), negFprime)
		dMinus := fp.MulDiv(d, d, negFprime)
		adj := fp.FloorDiv(new(big.Int).Mul(d, fp.FloorDiv(mul1, negFprime)), fp.Precision)
		if fp.Precision.Cmp(k0) > 0 {
			adj.Mul(adj, new(big.Int).Sub(fp.Precision, k0))
			dMinus.Add(dMinus, fp.FloorDiv(adj, k0))
		} else {
			adj.Mul(adj, new(big.Int).Sub(k0, fp.Precision))
			dMinus.Sub(dMinus, fp.FloorDiv(adj, k0))
		}

		if dPlus.Cmp(dMinus) > 0 {
			d = new(big.Int).Sub(dPlus, dMinus)
		} else {
			d = fp.FloorDiv(new(big.Int).Sub(dMinus, dPlus), fp.Two)
		}

		diff := fp.AbsDiff(d, dPrev)
		if new(big.Int).Mul(diff, fp.Pow10(14)).Cmp(bmax(fp.Pow10(16), d)) < 0 {
			// The next y solve needs every balance fraction in range.
			for k, xk := range x {
				frac := fp.MulDiv(xk, fp.Precision, d)
				if frac.Cmp(minFrac) < 0 || frac.Cmp(maxFrac) > 0 {
					return nil, fmt.Errorf("%w: balance %d fraction %s of D", pool.ErrUnsafeValue, k, frac)
				}
			}
			return d, nil
		}
	}
	return nil, fmt.Errorf("invariant solve: %w", pool.ErrDidNotConverge)
}

// newtonY solves for balance i given the other normalized balances and the
// invariant D.
func newtonY(ann, gamma int64, x []*big.Int, d *big.Int, i int) (*big.Int, error) {
	n := int64(len(x))
	if err := checkAmpGamma(len(x), ann, gamma); err != nil {
		return nil, err
	}
	if d.Cmp(minD) < 0 || d.Cmp(maxX0) > 0 {
		return nil, fmt.Errorf("%w: invariant %s", pool.ErrUnsafeValue, d)
	}
	for k := range x {
		if k == i {
			continue
		}
		frac := fp.MulDiv(x[k], fp.Precision, d)
		if frac.Cmp(minFrac) < 0 || frac.Cmp(maxFrac) > 0 {
			return nil, fmt.Errorf("%w: balance %d fraction %s of D", pool.ErrUnsafeValue, k, frac)
		}
	}

	others := fp.CloneSlice(x)
	others[i] = new(big.Int)
	others = sortedDesc(others)

	convergenceLimit := bmax(
		bmax(fp.FloorDiv(others[0], fp.Pow10(14)), fp.FloorDiv(d, fp.Pow10(14))),
		big.NewInt(100),
	)

	y := fp.FloorDiv(d, big.NewInt(n))
	k0i := fp.Clone(fp.Precision)
	si := new(big.Int)
	if n == 2 {
		si = fp.Clone(x[1-i])
		y = fp.FloorDiv(new(big.Int).Mul(d, d), new(big.Int).Mul(si, big.NewInt(4)))
		k0i = fp.FloorDiv(new(big.Int).Mul(new(big.Int).Mul(fp.Precision, fp.Two), si), d)
	} else {
		// Smallest balances first for y, largest first for K0.
		for j := int64(2); j <= n; j++ {
			xk := others[n-j]
			y = fp.FloorDiv(new(big.Int).Mul(y, d), new(big.Int).Mul(xk, big.NewInt(n)))
			si.Add(si, xk)
		}
		for j := int64(0); j < n-1; j++ {
			k0i.Mul(k0i, others[j])
			k0i.Mul(k0i, big.NewInt(n))
			k0i = fp.FloorDiv(k0i, d)
		}
	}

	for iter := 0; iter < MaxIterations; iter++ {
		yPrev := fp.Clone(y)

		k0 := fp.FloorDiv(new(big.Int).Mul(new(big.Int).Mul(k0i, y), big.NewInt(n)), d)
		s := new(big.Int).Add(si, y)

		g1k0 := new(big.Int).Add(big.NewInt(gamma), fp.Precision)
		if g1k0.Cmp(k0) > 0 {
			g1k0.Sub(g1k0, k0)
			g1k0.Add(g1k0, fp.One)
		} else {
			g1k0 = new(big.Int).Sub(k0, g1k0)
			g1k0.Add(g1k0, fp.One)
		}

		mul1 := fp.FloorDiv(new(big.Int).Mul(fp.Precision, d), big.NewInt(gamma))
		mul1 = fp.FloorDiv(new(big.Int).Mul(mul1, g1k0), big.NewInt(gamma))
		mul1.Mul(mul1, g1k0)
		mul1.Mul(mul1, big.NewInt(AMultiplier))
		mul1 = fp.FloorDiv(mul1, big.NewInt(ann))

		// 1 + 2*K0 / g1k0.
		mul2 := new(big.Int).Mul(fp.Two, fp.Precision)
		mul2.Mul(mul2, k0)
		mul2 = fp.FloorDiv(mul2, g1k0)
		mul2.Add(mul2, fp.Precision)

		yfprime := new(big.Int).Mul(fp.Precision, y)
		yfprime.Add(yfprime, new(big.Int).Mul(s, mul2))
		yfprime.Add(yfprime, mul1)
		dyfprime := new(big.Int).Mul(d, mul2)
		if yfprime.Cmp(dyfprime) < 0 {
			y = fp.FloorDiv(yPrev, fp.Two)
			continue
		}
		yfprime.Sub(yfprime, dyfprime)
		fprime := fp.FloorDiv(yfprime, y)

		yMinus := fp.FloorDiv(mul1, fprime)
		yPlus := fp.FloorDiv(new(big.Int).Add(yfprime, new(big.Int).Mul(fp.Precision, d)), fprime)
		yPlus.Add(yPlus, fp.FloorDiv(new(big.Int).Mul(yMinus, fp.Precision), k0))
		yMinus.Add(yMinus, fp.FloorDiv(new(big.Int).Mul(fp.Precision, s), fprime))

		if yPlus.Cmp(yMinus) < 0 {
			y = fp.FloorDiv(yPrev, fp.Two)
		} else {
			y = new(big.Int).Sub(yPlus, yMinus)
		}

		diff := fp.AbsDiff(y, yPrev)
		if diff.Cmp(bmax(convergenceLimit, fp.FloorDiv(y, fp.Pow10(14)))) < 0 {
			frac := fp.MulDiv(y, fp.Precision, d)
			if frac.Cmp(minFrac) < 0 || frac.Cmp(maxFrac) > 0 {
				return nil, fmt.Errorf("%w: solved balance fraction %s of D", pool.ErrUnsafeValue, frac)
			}
			return y, nil
		}
	}
	return nil, fmt.Errorf("balance solve: %w", pool.ErrDidNotConverge)
}

// geometricMean computes (x[0] * x[1] * ...)^(1/n) by Newton iteration.
// Pass sortDesc when the input is not already sorted high to low.
func geometricMean(unsorted []*big.Int, sortDesc bool) (*big.Int, error) {
	n := int64(len(unsorted))
	x := unsorted
	if sortDesc {
		x = sortedDesc(unsorted)
	}

	d := fp.Clone(x[0])
	for iter := 0; iter < MaxIterations; iter++ {
		dPrev := fp.Clone(d)
		if n == 2 {
			d.Add(d, fp.MulDiv(x[0], x[1], d))
			d = fp.FloorDiv(d, fp.Two)
		} else {
			tmp := fp.Clone(fp.Precision)
			for _, xk := range x {
				tmp.Mul(tmp, xk)
				tmp = fp.FloorDiv(tmp, d)
			}
			d.Mul(d, new(big.Int).Add(new(big.Int).Mul(big.NewInt(n-1), fp.Precision), tmp))
			d = fp.FloorDiv(d, new(big.Int).Mul(big.NewInt(n), fp.Precision))
		}
		diff := fp.AbsDiff(d, dPrev)
		if diff.Cmp(fp.One) <= 0 || new(big.Int).Mul(diff, fp.Precision).Cmp(d) < 0 {
			return d, nil
		}
	}
	return nil, fmt.Errorf("geometric mean: %w", pool.ErrDidNotConverge)
}

// halfpow computes 10^18 * 0.5^(power/10^18) by binomial series.
func halfpow(power *big.Int) (*big.Int, error) {
	intPow := fp.FloorDiv(power, fp.Precision)
	otherPow := new(big.Int).Sub(power, new(big.Int).Mul(intPow, fp.Precision))
	if intPow.Cmp(big.NewInt(59)) > 0 {
		return new(big.Int), nil
	}
	result := fp.FloorDiv(fp.Precision, new(big.Int).Lsh(fp.One, uint(intPow.Int64())))
	if otherPow.Sign() == 0 {
		return result, nil
	}

	term := fp.Clone(fp.Precision)
	x := new(big.Int).Mul(big.NewInt(5), fp.Pow10(17))
	s := fp.Clone(fp.Precision)
	neg := false

	for i := int64(1); i < 256; i++ {
		k := new(big.Int).Mul(big.NewInt(i), fp.Precision)
		c := new(big.Int).Sub(k, fp.Precision)
		if otherPow.Cmp(c) > 0 {
			c.Sub(otherPow, c)
			neg = !neg
		} else {
			c.Sub(c, otherPow)
		}
		term = fp.FloorDiv(new(big.Int).Mul(term, fp.MulDiv(c, x, fp.Precision)), k)
		if neg {
			s.Sub(s, term)
		} else {
			s.Add(s, term)
		}
		if term.Cmp(expPrecision) < 0 {
			return fp.MulDiv(result, s, fp.Precision), nil
		}
	}
	return nil, fmt.Errorf("halfpow: %w", pool.ErrDidNotConverge)
}

// sqrtInt computes sqrt(x * 10^18), i.e. the square root of a 10^18-scaled
// value back in 10^18 scale.
func sqrtInt(x *big.Int) (*big.Int, error) {
	if x.Sign() == 0 {
		return new(big.Int), nil
	}
	z := fp.FloorDiv(new(big.Int).Add(x, fp.Precision), fp.Two)
	y := fp.Clone(x)
	for iter := 0; iter < 256; iter++ {
		if z.Cmp(y) == 0 {
			return y, nil
		}
		y = z
		z = fp.FloorDiv(new(big.Int).Add(fp.MulDiv(x, fp.Precision, z), z), fp.Two)
	}
	return nil, fmt.Errorf("integer sqrt: %w", pool.ErrDidNotConverge)
}
