package amm

import (
	"github.com/ethereum/go-ethereum/common"
)

// Token identifies an ERC-20 token on a specific chain. Decimals come
// from the token contract itself, never from caller assumptions.
// Immutable once constructed.
type Token struct {
	Address  common.Address
	Symbol   string
	Decimals uint8
	ChainID  int64
}

// SortTokens returns the pair in pool order (lower address first), the
// ordering the factory uses for token0/token1.
func SortTokens(tokenA, tokenB common.Address) (common.Address, common.Address) {
	if tokenA.Cmp(tokenB) < 0 {
		return tokenA, tokenB
	}
	return tokenB, tokenA
}
