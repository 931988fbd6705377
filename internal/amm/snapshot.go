package amm

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// TickInfo is the liquidity bookkeeping a pool records per initialized tick.
type TickInfo struct {
	LiquidityGross *big.Int
	LiquidityNet   *big.Int
}

// PoolIdentity names a pool and the static facts needed to interpret its
// state.
type PoolIdentity struct {
	Address common.Address
	Token0  common.Address
	Token1  common.Address
	Fee     uint32
}

// PoolDataSource issues the read-only pool queries the snapshot is built
// from. Implementations go through the chain; tests supply fakes.
type PoolDataSource interface {
	// PoolExists reports whether contract code is present at the address.
	PoolExists(ctx context.Context, pool common.Address) (bool, error)

	// PoolState returns the current sqrt price, tick, and in-range
	// liquidity, read together so all three describe one state.
	PoolState(ctx context.Context, pool common.Address) (sqrtPriceX96 *big.Int, tick int, liquidity *big.Int, err error)

	// TickInfo returns the liquidity deltas recorded at a tick index.
	TickInfo(ctx context.Context, pool common.Address, tick int) (TickInfo, error)
}

// PoolSnapshot is a pool's tradable state at one instant. It is built
// fresh for every swap, read-only while the trade is constructed, and
// stale the moment any other transaction touches the pool — never cache
// one across calls.
//
// Only the single usable tick bracketing the current price is captured;
// the consuming trade is a same-tick, single-pool swap, and multi-tick
// crossings are rejected rather than estimated.
type PoolSnapshot struct {
	Token0       common.Address
	Token1       common.Address
	Fee          uint32
	SqrtPriceX96 *big.Int
	Liquidity    *big.Int
	CurrentTick  int
	Ticks        map[int]TickInfo
}

// FetchSnapshot assembles a PoolSnapshot from live queries.
func FetchSnapshot(ctx context.Context, src PoolDataSource, pool PoolIdentity) (*PoolSnapshot, error) {
	if pool.Address == (common.Address{}) {
		return nil, fmt.Errorf("%w: zero pool address for %s/%s fee %d",
			ErrPoolNotFound, pool.Token0.Hex(), pool.Token1.Hex(), pool.Fee)
	}

	exists, err := src.PoolExists(ctx, pool.Address)
	if err != nil {
		return nil, fmt.Errorf("resolve pool %s: %w", pool.Address.Hex(), err)
	}
	if !exists {
		return nil, fmt.Errorf("%w: no code at %s", ErrPoolNotFound, pool.Address.Hex())
	}

	spacing, err := SpacingFor(pool.Fee)
	if err != nil {
		return nil, err
	}

	sqrtPrice, tick, liquidity, err := src.PoolState(ctx, pool.Address)
	if err != nil {
		return nil, fmt.Errorf("query pool state of %s: %w", pool.Address.Hex(), err)
	}
	if sqrtPrice == nil || sqrtPrice.Sign() <= 0 {
		return nil, fmt.Errorf("%w: pool %s reports sqrtPriceX96=%v (uninitialized?)",
			ErrStaleQuery, pool.Address.Hex(), sqrtPrice)
	}

	// The reported tick must bracket the reported price:
	// ratio(tick) <= sqrtPrice < ratio(tick+1). Sub-reads landing on
	// different states violate this.
	if err := checkBracketing(tick, sqrtPrice); err != nil {
		return nil, fmt.Errorf("pool %s: %w", pool.Address.Hex(), err)
	}

	bracket := floorDiv(tick, spacing) * spacing
	info, err := src.TickInfo(ctx, pool.Address, bracket)
	if err != nil {
		return nil, fmt.Errorf("query ticks(%d) of %s: %w", bracket, pool.Address.Hex(), err)
	}

	return &PoolSnapshot{
		Token0:       pool.Token0,
		Token1:       pool.Token1,
		Fee:          pool.Fee,
		SqrtPriceX96: sqrtPrice,
		Liquidity:    liquidity,
		CurrentTick:  tick,
		Ticks:        map[int]TickInfo{bracket: info},
	}, nil
}

// checkBracketing verifies tick and sqrt price describe the same state.
func checkBracketing(tick int, sqrtPrice *big.Int) error {
	lower, err := SqrtRatioAtTick(tick)
	if err != nil {
		return fmt.Errorf("%w: reported tick %d: %v", ErrStaleQuery, tick, err)
	}
	if sqrtPrice.Cmp(lower) < 0 {
		return fmt.Errorf("%w: sqrtPriceX96 %s below tick %d", ErrStaleQuery, sqrtPrice, tick)
	}
	if tick < MaxTick {
		upper, err := SqrtRatioAtTick(tick + 1)
		if err != nil {
			return err
		}
		if sqrtPrice.Cmp(upper) >= 0 {
			return fmt.Errorf("%w: sqrtPriceX96 %s at or above tick %d", ErrStaleQuery, sqrtPrice, tick+1)
		}
	}
	return nil
}
