package stableswap

import (
	"math/big"

	fp "github.com/ammlabs/poolsim/internal/fixedpoint"
)

// MaxIterations caps every Newton solve, matching the on-chain contracts.
// Stableswap solves that exhaust the budget keep the last iterate; the event
// is counted on the pool and logged, never raised as an error.
const MaxIterations = 255

// solveD computes the invariant D for normalized balances xp and
// amplification ann (A*n). Newton iteration on
//
//	D = (ann*S + n*D_P) * D / ((ann-1)*D + (n+1)*D_P)
//
// with D_P = D^(n+1) / (n^n * prod(xp)), stopping when successive iterates
// differ by at most 1. Division order follows the contract exactly.
func solveD(xp []*big.Int, ann int64) (*big.Int, bool) {
	s := fp.Sum(xp)
	if s.Sign() == 0 {
		return new(big.Int), true
	}

	n := int64(len(xp))
	nBig := big.NewInt(n)
	annBig := big.NewInt(ann)
	d := fp.Clone(s)

	for iter := 0; iter < MaxIterations; iter++ {
		dP := fp.Clone(d)
		for _, x := range xp {
			dP = fp.FloorDiv(new(big.Int).Mul(dP, d), new(big.Int).Mul(nBig, x))
		}
		dPrev := d

		num := new(big.Int).Mul(annBig, s)
		num.Add(num, new(big.Int).Mul(dP, nBig))
		num.Mul(num, d)

		den := new(big.Int).Mul(new(big.Int).Sub(annBig, fp.One), d)
		den.Add(den, new(big.Int).Mul(big.NewInt(n+1), dP))

		d = fp.FloorDiv(num, den)
		if fp.WithinOne(d, dPrev) {
			return d, true
		}
	}
	return d, false
}

// solveY computes the balance of coin j that satisfies the invariant d when
// coin i's normalized balance is set to x and all other balances are taken
// from xp. Newton iteration on y = (y^2 + c) / (2y + b - D).
func solveY(ann int64, i, j int, x *big.Int, xp []*big.Int, d *big.Int) (*big.Int, bool) {
	n := int64(len(xp))
	nBig := big.NewInt(n)
	annBig := big.NewInt(ann)

	c := fp.Clone(d)
	s := new(big.Int)
	for k := range xp {
		if k == j {
			continue
		}
		xk := xp[k]
		if k == i {
			xk = x
		}
		s.Add(s, xk)
		c = fp.FloorDiv(new(big.Int).Mul(c, d), new(big.Int).Mul(nBig, xk))
	}
	c = fp.FloorDiv(new(big.Int).Mul(c, d), new(big.Int).Mul(nBig, annBig))
	b := new(big.Int).Add(s, fp.FloorDiv(d, annBig))

	y := fp.Clone(d)
	for iter := 0; iter < MaxIterations; iter++ {
		yPrev := y
		num := new(big.Int).Mul(y, y)
		num.Add(num, c)
		den := new(big.Int).Mul(fp.Two, y)
		den.Add(den, b)
		den.Sub(den, d)
		y = fp.FloorDiv(num, den)
		if fp.WithinOne(y, yPrev) {
			return y, true
		}
	}
	return y, false
}

// solveYD computes the balance of coin i consistent with a reduced invariant
// d, holding the other balances in xp fixed. Same iteration as solveY with
// coin i excluded from the sums.
func solveYD(ann int64, i int, xp []*big.Int, d *big.Int) (*big.Int, bool) {
	n := int64(len(xp))
	nBig := big.NewInt(n)
	annBig := big.NewInt(ann)

	c := fp.Clone(d)
	s := new(big.Int)
	for k := range xp {
		if k == i {
			continue
		}
		s.Add(s, xp[k])
		c = fp.FloorDiv(new(big.Int).Mul(c, d), new(big.Int).Mul(nBig, xp[k]))
	}
	c = fp.FloorDiv(new(big.Int).Mul(c, d), new(big.Int).Mul(nBig, annBig))
	b := new(big.Int).Add(s, fp.FloorDiv(d, annBig))

	y := fp.Clone(d)
	for iter := 0; iter < MaxIterations; iter++ {
		yPrev := y
		num := new(big.Int).Mul(y, y)
		num.Add(num, c)
		den := new(big.Int).Mul(fp.Two, y)
		den.Add(den, b)
		den.Sub(den, d)
		y = fp.FloorDiv(num, den)
		if fp.WithinOne(y, yPrev) {
			return y, true
		}
	}
	return y, false
}
