package amm

import "errors"

// Error taxonomy for pool arithmetic and trade construction.
// All of these are unrecoverable for the current operation; callers wrap
// them with pool addresses and amounts and surface them without retrying.
var (
	// ErrUnsupportedFeeTier means the fee value is not one of the canonical tiers.
	ErrUnsupportedFeeTier = errors.New("unsupported fee tier")

	// ErrDivisionByZero means a price ratio was requested with a zero denominator.
	ErrDivisionByZero = errors.New("division by zero in price ratio")

	// ErrInvalidSpacing means a tick spacing was zero or negative.
	ErrInvalidSpacing = errors.New("invalid tick spacing")

	// ErrInvalidTick means a tick is outside the curve's supported range.
	ErrInvalidTick = errors.New("tick out of bounds")

	// ErrInvalidSqrtRatio means a sqrt price is outside the curve's supported range.
	ErrInvalidSqrtRatio = errors.New("sqrt ratio out of bounds")

	// ErrPoolNotFound means the pool address could not be resolved on chain.
	ErrPoolNotFound = errors.New("pool not found")

	// ErrStaleQuery means snapshot sub-queries returned an inconsistent
	// tick/price pair, e.g. the reported tick does not bracket the reported
	// sqrt price.
	ErrStaleQuery = errors.New("inconsistent pool snapshot")

	// ErrInsufficientLiquidity means the snapshot cannot support the
	// requested input within its single bracketing tick.
	ErrInsufficientLiquidity = errors.New("insufficient liquidity")

	// ErrExpiredDeadline means the trade deadline already passed at build time.
	ErrExpiredDeadline = errors.New("deadline expired")
)
