package amm

import (
	"fmt"
	"math/big"
)

// Fraction is an exact rational used for slippage tolerances. Tolerances
// are kept as integer fractions rather than floats so repeated
// applications never accumulate rounding drift.
type Fraction struct {
	Num uint64
	Den uint64
}

// DefaultSlippage is 0.1%.
var DefaultSlippage = Fraction{Num: 1, Den: 1000}

// Validate checks the fraction denotes a tolerance in [0, 1).
func (f Fraction) Validate() error {
	if f.Den == 0 {
		return fmt.Errorf("%w: slippage denominator is zero", ErrDivisionByZero)
	}
	if f.Num >= f.Den {
		return fmt.Errorf("slippage tolerance %d/%d must be below 1", f.Num, f.Den)
	}
	return nil
}

// IsZero reports whether the tolerance is exactly zero.
func (f Fraction) IsZero() bool {
	return f.Num == 0
}

// ApplyFloor scales an amount down by (1 - tolerance), rounding toward
// zero: x * (den - num) / den. For any positive x and nonzero tolerance
// the result is strictly below x.
func (f Fraction) ApplyFloor(x *big.Int) *big.Int {
	out := new(big.Int).Mul(x, new(big.Int).SetUint64(f.Den-f.Num))
	return out.Div(out, new(big.Int).SetUint64(f.Den))
}

// String renders the tolerance as a fraction, e.g. "1/1000".
func (f Fraction) String() string {
	return fmt.Sprintf("%d/%d", f.Num, f.Den)
}

// ParseFraction parses "num/den" into a validated Fraction.
func ParseFraction(s string) (Fraction, error) {
	var f Fraction
	if _, err := fmt.Sscanf(s, "%d/%d", &f.Num, &f.Den); err != nil {
		return Fraction{}, fmt.Errorf("parse slippage %q: %w", s, err)
	}
	if err := f.Validate(); err != nil {
		return Fraction{}, err
	}
	return f, nil
}
