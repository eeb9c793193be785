/*
Integer helpers for pool math.

All pool arithmetic runs on big.Int with floor division, matching the EVM
contracts the pools replicate. Operation order is never rearranged; every
division truncates exactly where the contract truncates.
*/

package fixedpoint

import (
	"math/big"

	sdkmath "cosmossdk.io/math"
)

// Shared scaling constants. Fees are denominated out of 10^10, balances and
// rates out of 10^18.
var (
	Precision      = Pow10(18)
	FeeDenominator = Pow10(10)

	Zero = big.NewInt(0)
	One  = big.NewInt(1)
	Two  = big.NewInt(2)
)

// Pow10 returns 10^exp as a fresh big.Int.
func Pow10(exp int64) *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(exp), nil)
}

// Clone returns a deep copy of x.
func Clone(x *big.Int) *big.Int {
	return new(big.Int).Set(x)
}

// CloneSlice returns a deep copy of xs.
func CloneSlice(xs []*big.Int) []*big.Int {
	out := make([]*big.Int, len(xs))
	for i, x := range xs {
		out[i] = new(big.Int).Set(x)
	}
	return out
}

// FloorDiv returns x // y with floor semantics (rounding toward negative
// infinity), matching Python's //. The pool math only passes non-negative
// operands, where floor and plain truncation agree.
// Panics if y is zero, as the contracts would revert.
func FloorDiv(x, y *big.Int) *big.Int {
	q, r := new(big.Int).QuoRem(x, y, new(big.Int))
	if r.Sign() != 0 && (r.Sign() < 0) != (y.Sign() < 0) {
		q.Sub(q, One)
	}
	return q
}

// MulDiv returns x*y // den without intermediate truncation.
func MulDiv(x, y, den *big.Int) *big.Int {
	return FloorDiv(new(big.Int).Mul(x, y), den)
}

// AbsDiff returns |x - y|.
func AbsDiff(x, y *big.Int) *big.Int {
	return new(big.Int).Abs(new(big.Int).Sub(x, y))
}

// WithinOne reports whether |x - y| <= 1, the convergence tolerance used by
// every Newton solver in this module.
func WithinOne(x, y *big.Int) bool {
	return AbsDiff(x, y).Cmp(One) <= 0
}

// Sum returns the sum of xs.
func Sum(xs []*big.Int) *big.Int {
	s := new(big.Int)
	for _, x := range xs {
		s.Add(s, x)
	}
	return s
}

// Prod returns the product of xs.
func Prod(xs []*big.Int) *big.Int {
	p := big.NewInt(1)
	for _, x := range xs {
		p.Mul(p, x)
	}
	return p
}

// ToSDK converts a non-negative big.Int into an overflow-checked sdk Int.
// Values beyond 256 bits panic inside sdkmath, which is the fatal-overflow
// behavior pool amounts require at the API boundary.
func ToSDK(x *big.Int) sdkmath.Int {
	return sdkmath.NewIntFromBigInt(new(big.Int).Set(x))
}

// FromSDK extracts a fresh big.Int from an sdk Int.
func FromSDK(x sdkmath.Int) *big.Int {
	return new(big.Int).Set(x.BigInt())
}

// BigToFloat converts x to float64 with round-to-nearest. Only used for
// reporting and spot-price quotes, never inside state-changing math.
func BigToFloat(x *big.Int) float64 {
	f, _ := new(big.Float).SetInt(x).Float64()
	return f
}

// RatioFloat returns num/den as a float64.
func RatioFloat(num, den *big.Int) float64 {
	q := new(big.Float).Quo(new(big.Float).SetInt(num), new(big.Float).SetInt(den))
	f, _ := q.Float64()
	return f
}
