package amm

// PositionRange is a pair of usable tick bounds for a liquidity position.
// Lower is always strictly below Upper and both are multiples of the
// pool's tick spacing.
type PositionRange struct {
	Lower int
	Upper int
}

// RangeAround derives a symmetric, one-spacing-wide band centered on the
// target tick: the target is snapped to the nearest usable tick and the
// bounds sit one spacing to either side, clamped to the usable ticks
// inside [MinTick, MaxTick]. Full-range or custom-width positions are
// deliberately not supported here.
func RangeAround(targetTick, spacing int) (PositionRange, error) {
	center, err := NearestUsableTick(targetTick, spacing)
	if err != nil {
		return PositionRange{}, err
	}

	minUsable := -(floorDiv(-MinTick, spacing) * spacing)
	maxUsable := floorDiv(MaxTick, spacing) * spacing

	lower := center - spacing
	if lower < minUsable {
		lower = minUsable
	}
	upper := center + spacing
	if upper > maxUsable {
		upper = maxUsable
	}
	return PositionRange{Lower: lower, Upper: upper}, nil
}
