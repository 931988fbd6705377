package amm

import (
	"fmt"
	"math/big"
)

// Tick bounds of the price curve, from the deployed TickMath library.
const (
	MinTick = -887272
	MaxTick = 887272
)

var (
	// Q96 is the fixed-point scale of sqrt prices: 2^96.
	Q96 = new(big.Int).Lsh(big.NewInt(1), 96)

	// MinSqrtRatio is the sqrt price at MinTick.
	MinSqrtRatio = big.NewInt(4295128739)

	// MaxSqrtRatio is the sqrt price at MaxTick.
	MaxSqrtRatio = mustBig("1461446703485210103287273052203988822378723970342")
)

// Multiplier ladder for SqrtRatioAtTick: sqrt(1.0001^-(2^i)) in Q128,
// for i = 0..19. These are protocol constants; any deviation produces
// prices the deployed contracts disagree with.
var sqrtRatioMultipliers = [...]*big.Int{
	mustBig("0xfffcb933bd6fad37aa2d162d1a594001"),
	mustBig("0xfff97272373d413259a46990580e213a"),
	mustBig("0xfff2e50f5f656932ef12357cf3c7fdcc"),
	mustBig("0xffe5caca7e10e4e61c3624eaa0941cd0"),
	mustBig("0xffcb9843d60f6159c9db58835c926644"),
	mustBig("0xff973b41fa98c081472e6896dfb254c0"),
	mustBig("0xff2ea16466c96a3843ec78b326b52861"),
	mustBig("0xfe5dee046a99a2a811c461f1969c3053"),
	mustBig("0xfcbe86c7900a88aedcffc83b479aa3a4"),
	mustBig("0xf987a7253ac413176f2b074cf7815e54"),
	mustBig("0xf3392b0822b70005940c7a398e4b70f3"),
	mustBig("0xe7159475a2c29b7443b29c7fa6e889d9"),
	mustBig("0xd097f3bdfd2022b8845ad8f792aa5825"),
	mustBig("0xa9f746462d870fdf8a65dc1f90e061e5"),
	mustBig("0x70d869a156d2a1b890bb3df62baf32f7"),
	mustBig("0x31be135f97d08fd981231505542fcfa6"),
	mustBig("0x9aa508b5b7a84e1c677de54f3e99bc9"),
	mustBig("0x5d6af8dedb81196699c329225ee604"),
	mustBig("0x2216e584f5fa1ea926041bedfe98"),
	mustBig("0x48a170391f7dc42444e8fa2"),
}

var (
	q128       = new(big.Int).Lsh(big.NewInt(1), 128)
	maxUint256 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))
)

// mustBig parses a decimal or 0x-prefixed hex literal, panicking on bad input.
// Only used for package-level constants.
func mustBig(s string) *big.Int {
	n, ok := new(big.Int).SetString(s, 0)
	if !ok {
		panic("amm: bad big literal " + s)
	}
	return n
}

// SqrtRatioAtTick computes sqrt(1.0001^tick) * 2^96, matching the on-chain
// TickMath library bit for bit.
func SqrtRatioAtTick(tick int) (*big.Int, error) {
	if tick < MinTick || tick > MaxTick {
		return nil, fmt.Errorf("%w: %d", ErrInvalidTick, tick)
	}

	absTick := tick
	if absTick < 0 {
		absTick = -absTick
	}

	ratio := q128
	if absTick&1 != 0 {
		ratio = sqrtRatioMultipliers[0]
	}
	for i := 1; i < len(sqrtRatioMultipliers); i++ {
		if absTick&(1<<uint(i)) != 0 {
			ratio = mulShift128(ratio, sqrtRatioMultipliers[i])
		}
	}

	if tick > 0 {
		ratio = new(big.Int).Div(maxUint256, ratio)
	}

	// Round up on downscale from Q128 to Q96 so the round trip through
	// TickAtSqrtRatio lands on the same tick the contract computes.
	result := new(big.Int).Rsh(ratio, 32)
	if new(big.Int).And(ratio, mustBig("0xffffffff")).Sign() != 0 {
		result.Add(result, big.NewInt(1))
	}
	return result, nil
}

// TickAtSqrtRatio returns the greatest tick whose sqrt ratio is less than
// or equal to the given sqrt price. Inverse of SqrtRatioAtTick.
func TickAtSqrtRatio(sqrtPriceX96 *big.Int) (int, error) {
	if sqrtPriceX96 == nil || sqrtPriceX96.Cmp(MinSqrtRatio) < 0 || sqrtPriceX96.Cmp(MaxSqrtRatio) >= 0 {
		return 0, fmt.Errorf("%w: %v", ErrInvalidSqrtRatio, sqrtPriceX96)
	}

	lo, hi := MinTick, MaxTick
	for lo < hi {
		mid := lo + (hi-lo+1)/2
		ratio, err := SqrtRatioAtTick(mid)
		if err != nil {
			return 0, err
		}
		if ratio.Cmp(sqrtPriceX96) <= 0 {
			lo = mid
		} else {
			hi = mid - 1
		}
	}
	return lo, nil
}

// EncodePriceRatio converts a token amount ratio into the sqrt price
// representation: sqrt(amount1/amount0) * 2^96. Amounts are in each
// token's smallest unit. This is the canonical way to express the price
// of token0 in terms of token1 for pool initialization and position
// targeting.
func EncodePriceRatio(amount1, amount0 *big.Int) (*big.Int, error) {
	if amount0 == nil || amount0.Sign() == 0 {
		return nil, fmt.Errorf("%w: amount0 is zero", ErrDivisionByZero)
	}
	if amount0.Sign() < 0 || amount1 == nil || amount1.Sign() <= 0 {
		return nil, fmt.Errorf("amounts must be positive: amount1=%v amount0=%v", amount1, amount0)
	}

	// sqrt((amount1 << 192) / amount0) keeps full precision before the
	// square root: the result is sqrt(ratio) << 96.
	ratioX192 := new(big.Int).Lsh(amount1, 192)
	ratioX192.Div(ratioX192, amount0)
	return new(big.Int).Sqrt(ratioX192), nil
}

// NearestUsableTick rounds a raw tick to the nearest multiple of spacing,
// breaking ties toward positive infinity, and clamps the result into the
// usable range. The rounding must match the on-chain curve so that queries
// and contract calls agree on position identity.
func NearestUsableTick(tick, spacing int) (int, error) {
	if spacing <= 0 {
		return 0, fmt.Errorf("%w: %d", ErrInvalidSpacing, spacing)
	}
	if tick < MinTick || tick > MaxTick {
		return 0, fmt.Errorf("%w: %d", ErrInvalidTick, tick)
	}

	rounded := floorDiv(2*tick+spacing, 2*spacing) * spacing
	if rounded < MinTick {
		rounded += spacing
	} else if rounded > MaxTick {
		rounded -= spacing
	}
	return rounded, nil
}

// floorDiv divides rounding toward negative infinity. Go's integer
// division truncates toward zero, which is wrong for negative ticks.
func floorDiv(a, b int) int {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}

// mulShift128 multiplies two Q128 values and renormalizes: (a*b) >> 128.
func mulShift128(a, b *big.Int) *big.Int {
	return new(big.Int).Rsh(new(big.Int).Mul(a, b), 128)
}
