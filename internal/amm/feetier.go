package amm

import "fmt"

// Canonical fee tiers in hundredths of a basis point.
const (
	FeeLow    uint32 = 500   // 0.05%
	FeeMedium uint32 = 3000  // 0.3%
	FeeHigh   uint32 = 10000 // 1%
)

// tickSpacings maps each fee tier to the tick spacing enforced by the
// factory for pools at that tier.
var tickSpacings = map[uint32]int{
	FeeLow:    10,
	FeeMedium: 60,
	FeeHigh:   200,
}

// SpacingFor returns the tick spacing for a fee tier. A fee value outside
// the canonical tiers is a configuration error, not something to default.
func SpacingFor(fee uint32) (int, error) {
	spacing, ok := tickSpacings[fee]
	if !ok {
		return 0, fmt.Errorf("%w: %d", ErrUnsupportedFeeTier, fee)
	}
	return spacing, nil
}

// SupportedFeeTiers returns the canonical fee tiers in ascending order.
func SupportedFeeTiers() []uint32 {
	return []uint32{FeeLow, FeeMedium, FeeHigh}
}
