package amm

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"
)

// PoolInitCodeHash is the keccak256 of the pool creation bytecode, used by
// the factory for CREATE2 addressing. Pools deployed from locally compiled
// sources may hash differently, so callers should prefer querying the
// factory and use this only for sanity checks.
var PoolInitCodeHash = common.HexToHash("0xe34f199b19b2b4f47f68442619d555527d244f78a3297ea89325f843f87b8b54")

// ComputePoolAddress computes the deterministic CREATE2 address of a pool
// from factory, token pair, and fee tier.
func ComputePoolAddress(factory, tokenA, tokenB common.Address, fee uint32) common.Address {
	token0, token1 := SortTokens(tokenA, tokenB)

	// salt = keccak256(abi.encode(token0, token1, fee))
	salt := crypto.Keccak256Hash(
		common.LeftPadBytes(token0.Bytes(), 32),
		common.LeftPadBytes(token1.Bytes(), 32),
		common.LeftPadBytes(big.NewInt(int64(fee)).Bytes(), 32),
	)

	// keccak256(0xff ++ factory ++ salt ++ initCodeHash)[12:]
	data := make([]byte, 1+20+32+32)
	data[0] = 0xff
	copy(data[1:21], factory.Bytes())
	copy(data[21:53], salt.Bytes())
	copy(data[53:85], PoolInitCodeHash.Bytes())

	hash := crypto.Keccak256Hash(data)
	return common.BytesToAddress(hash[12:])
}

// ComputeContractAddress computes the CREATE address for a deployment:
// keccak256(rlp([sender, nonce]))[12:].
func ComputeContractAddress(sender common.Address, nonce uint64) common.Address {
	data, _ := rlp.EncodeToBytes([]interface{}{sender, nonce})
	hash := crypto.Keccak256Hash(data)
	return common.BytesToAddress(hash[12:])
}
