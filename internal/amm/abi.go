package amm

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Function selectors (first 4 bytes of keccak256(signature))
var (
	// WETH9 selectors
	SelectorDeposit  = selector("deposit()")
	SelectorWithdraw = selector("withdraw(uint256)")

	// ERC20 selectors
	SelectorApprove   = selector("approve(address,uint256)")
	SelectorBalanceOf = selector("balanceOf(address)")
	SelectorAllowance = selector("allowance(address,address)")
	SelectorDecimals  = selector("decimals()")
	SelectorSymbol    = selector("symbol()")

	// Factory selectors
	SelectorGetPool = selector("getPool(address,address,uint24)")

	// Pool selectors
	SelectorSlot0     = selector("slot0()")
	SelectorLiquidity = selector("liquidity()")
	SelectorTicks     = selector("ticks(int24)")

	// SwapRouter selectors
	SelectorExactInputSingle = selector("exactInputSingle((address,address,uint24,address,uint256,uint256,uint256,uint160))")

	// NonfungiblePositionManager selectors
	SelectorMintPosition            = selector("mint((address,address,uint24,int24,int24,uint256,uint256,uint256,uint256,address,uint256))")
	SelectorCreateAndInitializePool = selector("createAndInitializePoolIfNecessary(address,address,uint24,uint160)")
)

// MaxUint256 is the maximum uint256 value (used for approvals).
var MaxUint256 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))

// selector computes the 4-byte function selector from a signature.
func selector(sig string) []byte {
	return crypto.Keccak256([]byte(sig))[:4]
}

// EncodeDeposit encodes WETH9.deposit() (no args, ETH carried as value).
func EncodeDeposit() []byte {
	return SelectorDeposit
}

// EncodeWithdraw encodes WETH9.withdraw(uint256).
func EncodeWithdraw(amount *big.Int) []byte {
	data := make([]byte, 4+32)
	copy(data[:4], SelectorWithdraw)
	amount.FillBytes(data[4:36])
	return data
}

// EncodeApprove encodes ERC20.approve(address,uint256).
func EncodeApprove(spender common.Address, amount *big.Int) []byte {
	data := make([]byte, 4+32+32)
	copy(data[:4], SelectorApprove)
	copy(data[4+12:36], spender.Bytes())
	amount.FillBytes(data[36:68])
	return data
}

// EncodeBalanceOf encodes ERC20.balanceOf(address).
func EncodeBalanceOf(account common.Address) []byte {
	data := make([]byte, 4+32)
	copy(data[:4], SelectorBalanceOf)
	copy(data[4+12:36], account.Bytes())
	return data
}

// EncodeAllowance encodes ERC20.allowance(address,address).
func EncodeAllowance(owner, spender common.Address) []byte {
	data := make([]byte, 4+32+32)
	copy(data[:4], SelectorAllowance)
	copy(data[4+12:36], owner.Bytes())
	copy(data[36+12:68], spender.Bytes())
	return data
}

// EncodeGetPool encodes Factory.getPool(address,address,uint24).
func EncodeGetPool(tokenA, tokenB common.Address, fee uint32) []byte {
	data := make([]byte, 4+32+32+32)
	copy(data[:4], SelectorGetPool)
	copy(data[4+12:36], tokenA.Bytes())
	copy(data[36+12:68], tokenB.Bytes())
	big.NewInt(int64(fee)).FillBytes(data[68:100])
	return data
}

// EncodeTicks encodes Pool.ticks(int24) for a tick index.
func EncodeTicks(tick int) []byte {
	data := make([]byte, 4+32)
	copy(data[:4], SelectorTicks)
	fillSigned(data[4:36], int64(tick))
	return data
}

// EncodeCreateAndInitializePool encodes
// PositionManager.createAndInitializePoolIfNecessary(address,address,uint24,uint160).
// Tokens must already be in pool order.
func EncodeCreateAndInitializePool(token0, token1 common.Address, fee uint32, sqrtPriceX96 *big.Int) []byte {
	data := make([]byte, 4+4*32)
	copy(data[:4], SelectorCreateAndInitializePool)
	copy(data[4+12:36], token0.Bytes())
	copy(data[36+12:68], token1.Bytes())
	big.NewInt(int64(fee)).FillBytes(data[68:100])
	sqrtPriceX96.FillBytes(data[100:132])
	return data
}

// ExactInputSingleParams holds parameters for SwapRouter.exactInputSingle.
type ExactInputSingleParams struct {
	TokenIn           common.Address
	TokenOut          common.Address
	Fee               uint32
	Recipient         common.Address
	Deadline          *big.Int
	AmountIn          *big.Int
	AmountOutMinimum  *big.Int
	SqrtPriceLimitX96 *big.Int
}

// EncodeExactInputSingle encodes SwapRouter.exactInputSingle(...).
// The struct has all static types, so fields are encoded in place with no
// offset pointer.
func EncodeExactInputSingle(params ExactInputSingleParams) []byte {
	data := make([]byte, 4+8*32)
	copy(data[:4], SelectorExactInputSingle)

	offset := 4
	copy(data[offset+12:offset+32], params.TokenIn.Bytes())
	offset += 32
	copy(data[offset+12:offset+32], params.TokenOut.Bytes())
	offset += 32
	big.NewInt(int64(params.Fee)).FillBytes(data[offset : offset+32])
	offset += 32
	copy(data[offset+12:offset+32], params.Recipient.Bytes())
	offset += 32
	params.Deadline.FillBytes(data[offset : offset+32])
	offset += 32
	params.AmountIn.FillBytes(data[offset : offset+32])
	offset += 32
	params.AmountOutMinimum.FillBytes(data[offset : offset+32])
	offset += 32
	if params.SqrtPriceLimitX96 != nil {
		params.SqrtPriceLimitX96.FillBytes(data[offset : offset+32])
	}

	return data
}

// MintParams holds parameters for PositionManager.mint.
type MintParams struct {
	Token0         common.Address
	Token1         common.Address
	Fee            uint32
	TickLower      int
	TickUpper      int
	Amount0Desired *big.Int
	Amount1Desired *big.Int
	Amount0Min     *big.Int
	Amount1Min     *big.Int
	Recipient      common.Address
	Deadline       *big.Int
}

// NewMintParams builds validated mint parameters. Minimum amounts are
// derived from the desired amounts by the slippage tolerance, preserving
// the invariant min <= desired.
func NewMintParams(token0, token1 common.Address, fee uint32, r PositionRange, amount0, amount1 *big.Int, tolerance Fraction, recipient common.Address, deadline *big.Int) (MintParams, error) {
	if _, err := SpacingFor(fee); err != nil {
		return MintParams{}, err
	}
	if r.Lower >= r.Upper {
		return MintParams{}, fmt.Errorf("tickLower %d must be below tickUpper %d", r.Lower, r.Upper)
	}
	if amount0 == nil || amount0.Sign() <= 0 || amount1 == nil || amount1.Sign() <= 0 {
		return MintParams{}, fmt.Errorf("desired amounts must be positive: amount0=%v amount1=%v", amount0, amount1)
	}
	if err := tolerance.Validate(); err != nil {
		return MintParams{}, err
	}

	return MintParams{
		Token0:         token0,
		Token1:         token1,
		Fee:            fee,
		TickLower:      r.Lower,
		TickUpper:      r.Upper,
		Amount0Desired: amount0,
		Amount1Desired: amount1,
		Amount0Min:     tolerance.ApplyFloor(amount0),
		Amount1Min:     tolerance.ApplyFloor(amount1),
		Recipient:      recipient,
		Deadline:       deadline,
	}, nil
}

// EncodeMintPosition encodes PositionManager.mint(...). All fields are
// static, encoded in place; int24 ticks are sign-extended to 256 bits.
func EncodeMintPosition(params MintParams) []byte {
	data := make([]byte, 4+11*32)
	copy(data[:4], SelectorMintPosition)

	offset := 4
	copy(data[offset+12:offset+32], params.Token0.Bytes())
	offset += 32
	copy(data[offset+12:offset+32], params.Token1.Bytes())
	offset += 32
	big.NewInt(int64(params.Fee)).FillBytes(data[offset : offset+32])
	offset += 32
	fillSigned(data[offset:offset+32], int64(params.TickLower))
	offset += 32
	fillSigned(data[offset:offset+32], int64(params.TickUpper))
	offset += 32
	params.Amount0Desired.FillBytes(data[offset : offset+32])
	offset += 32
	params.Amount1Desired.FillBytes(data[offset : offset+32])
	offset += 32
	params.Amount0Min.FillBytes(data[offset : offset+32])
	offset += 32
	params.Amount1Min.FillBytes(data[offset : offset+32])
	offset += 32
	copy(data[offset+12:offset+32], params.Recipient.Bytes())
	offset += 32
	params.Deadline.FillBytes(data[offset : offset+32])

	return data
}

// fillSigned writes a signed value as 256-bit two's complement.
func fillSigned(dst []byte, v int64) {
	n := big.NewInt(v)
	if v < 0 {
		n.Add(n, new(big.Int).Lsh(big.NewInt(1), 256))
	}
	n.FillBytes(dst)
}
