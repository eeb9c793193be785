package pool

import "errors"

// Error taxonomy shared by all pool implementations.
//
// Precondition errors are returned before any state is read or written.
// Outcome errors (slippage, loss floors) are returned after the result is
// computed but before it is applied; a pool that returns an error is always
// left exactly as it was.
var (
	// ErrSameCoin is returned when the in and out coin indices are equal.
	ErrSameCoin = errors.New("in and out coin must differ")

	// ErrCoinIndex is returned for a coin index outside [0, n).
	ErrCoinIndex = errors.New("coin index out of range")

	// ErrZeroTradeAmount is returned for a zero or negative trade amount.
	ErrZeroTradeAmount = errors.New("trade amount must be positive")

	// ErrNegativeBalance is returned when an operation would drive a
	// balance or output below zero.
	ErrNegativeBalance = errors.New("operation would produce a negative balance")

	// ErrSlippage is returned when an output falls below the caller's
	// minimum (or a burn exceeds the caller's maximum).
	ErrSlippage = errors.New("slippage limit exceeded")

	// ErrZeroLiquidity is returned for operations that require a non-empty
	// pool or a non-zero LP supply.
	ErrZeroLiquidity = errors.New("pool has no liquidity")

	// ErrUnsafeValue is returned by cryptoswap solvers when inputs fall
	// outside the contract's accepted ranges.
	ErrUnsafeValue = errors.New("value outside safe range")

	// ErrDidNotConverge is returned by cryptoswap solvers that exhaust
	// their iteration budget. Stableswap solvers never return this; they
	// keep the last iterate and count the event instead.
	ErrDidNotConverge = errors.New("solver did not converge")

	// ErrLoss is returned when a cryptoswap state update would lower the
	// virtual price, which the profit accounting forbids.
	ErrLoss = errors.New("virtual price decreased")
)
