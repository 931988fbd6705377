// Package chain implements on-chain reads over the JSON-RPC client:
// pool state queries, factory lookups, and ERC-20 metadata.
package chain

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/gateway-fm/poolkit/internal/amm"
	"github.com/gateway-fm/poolkit/internal/rpc"
)

var (
	twoTo255 = new(big.Int).Lsh(big.NewInt(1), 255)
	twoTo256 = new(big.Int).Lsh(big.NewInt(1), 256)
)

// Source issues read-only contract calls. It implements amm.PoolDataSource.
type Source struct {
	client rpc.Client
}

// NewSource creates a Source over an RPC client.
func NewSource(client rpc.Client) *Source {
	return &Source{client: client}
}

// PoolExists reports whether contract code is present at the address.
func (s *Source) PoolExists(ctx context.Context, pool common.Address) (bool, error) {
	code, err := s.client.GetCode(ctx, pool.Hex())
	if err != nil {
		return false, fmt.Errorf("get code at %s: %w", pool.Hex(), err)
	}
	return code != "" && code != "0x", nil
}

// Slot0 returns the pool's current sqrt price and tick.
func (s *Source) Slot0(ctx context.Context, pool common.Address) (*big.Int, int, error) {
	data, err := s.client.CallContract(ctx, pool.Hex(), amm.SelectorSlot0)
	if err != nil {
		return nil, 0, fmt.Errorf("call slot0 on %s: %w", pool.Hex(), err)
	}
	if len(data) < 2*32 {
		return nil, 0, fmt.Errorf("slot0 returned %d bytes, want at least 64", len(data))
	}

	sqrtPrice := new(big.Int).SetBytes(data[:32])
	tick, err := decodeSigned(data[32:64])
	if err != nil {
		return nil, 0, fmt.Errorf("decode slot0 tick: %w", err)
	}
	return sqrtPrice, int(tick.Int64()), nil
}

// PoolState returns the pool's sqrt price, tick, and in-range liquidity.
// The slot0 and liquidity reads go out as one batched request, so both
// answers come from the same node and the window for them to straddle a
// state change is a single round trip.
func (s *Source) PoolState(ctx context.Context, pool common.Address) (*big.Int, int, *big.Int, error) {
	responses, err := s.client.BatchCall(ctx, []rpc.BatchRequest{
		batchEthCall(pool, amm.SelectorSlot0),
		batchEthCall(pool, amm.SelectorLiquidity),
	})
	if err != nil {
		return nil, 0, nil, fmt.Errorf("batch slot0/liquidity on %s: %w", pool.Hex(), err)
	}
	if len(responses) != 2 {
		return nil, 0, nil, fmt.Errorf("batch returned %d responses, want 2", len(responses))
	}

	slotData, err := decodeBatchReturn(responses[0])
	if err != nil {
		return nil, 0, nil, fmt.Errorf("call slot0 on %s: %w", pool.Hex(), err)
	}
	if len(slotData) < 2*32 {
		return nil, 0, nil, fmt.Errorf("slot0 returned %d bytes, want at least 64", len(slotData))
	}
	sqrtPrice := new(big.Int).SetBytes(slotData[:32])
	tick, err := decodeSigned(slotData[32:64])
	if err != nil {
		return nil, 0, nil, fmt.Errorf("decode slot0 tick: %w", err)
	}

	liqData, err := decodeBatchReturn(responses[1])
	if err != nil {
		return nil, 0, nil, fmt.Errorf("call liquidity on %s: %w", pool.Hex(), err)
	}
	if len(liqData) < 32 {
		return nil, 0, nil, fmt.Errorf("liquidity returned %d bytes, want 32", len(liqData))
	}

	return sqrtPrice, int(tick.Int64()), new(big.Int).SetBytes(liqData[:32]), nil
}

// batchEthCall builds the eth_call batch entry for a read against a
// contract, in the same shape CallContract uses.
func batchEthCall(to common.Address, data []byte) rpc.BatchRequest {
	return rpc.BatchRequest{
		Method: "eth_call",
		Params: []interface{}{map[string]string{
			"to":   to.Hex(),
			"data": hexutil.Encode(data),
		}, "latest"},
	}
}

// decodeBatchReturn unwraps one eth_call result from a batch.
func decodeBatchReturn(resp rpc.BatchResponse) ([]byte, error) {
	if resp.Error != nil {
		return nil, resp.Error
	}
	var returnData string
	if err := json.Unmarshal(resp.Result, &returnData); err != nil {
		return nil, fmt.Errorf("unmarshal call result: %w", err)
	}
	return hexutil.Decode(returnData)
}

// TickInfo returns the liquidity deltas recorded at a tick index.
func (s *Source) TickInfo(ctx context.Context, pool common.Address, tick int) (amm.TickInfo, error) {
	data, err := s.client.CallContract(ctx, pool.Hex(), amm.EncodeTicks(tick))
	if err != nil {
		return amm.TickInfo{}, fmt.Errorf("call ticks(%d) on %s: %w", tick, pool.Hex(), err)
	}
	if len(data) < 2*32 {
		return amm.TickInfo{}, fmt.Errorf("ticks(%d) returned %d bytes, want at least 64", tick, len(data))
	}

	net, err := decodeSigned(data[32:64])
	if err != nil {
		return amm.TickInfo{}, fmt.Errorf("decode liquidityNet: %w", err)
	}
	return amm.TickInfo{
		LiquidityGross: new(big.Int).SetBytes(data[:32]),
		LiquidityNet:   net,
	}, nil
}

// ResolvePool asks the factory for the pool of a token pair and fee tier.
// Returns amm.ErrPoolNotFound if the factory has no such pool.
func (s *Source) ResolvePool(ctx context.Context, factory, tokenA, tokenB common.Address, fee uint32) (common.Address, error) {
	data, err := s.client.CallContract(ctx, factory.Hex(), amm.EncodeGetPool(tokenA, tokenB, fee))
	if err != nil {
		return common.Address{}, fmt.Errorf("call getPool on factory %s: %w", factory.Hex(), err)
	}
	if len(data) < 32 {
		return common.Address{}, fmt.Errorf("getPool returned %d bytes, want 32", len(data))
	}

	pool := common.BytesToAddress(data[12:32])
	if pool == (common.Address{}) {
		return common.Address{}, fmt.Errorf("%w: %s/%s fee %d not registered with factory",
			amm.ErrPoolNotFound, tokenA.Hex(), tokenB.Hex(), fee)
	}
	return pool, nil
}

// TokenMetadata queries an ERC-20 for its symbol and decimals and returns
// the assembled Token.
func (s *Source) TokenMetadata(ctx context.Context, addr common.Address, chainID int64) (amm.Token, error) {
	decData, err := s.client.CallContract(ctx, addr.Hex(), amm.SelectorDecimals)
	if err != nil {
		return amm.Token{}, fmt.Errorf("call decimals on %s: %w", addr.Hex(), err)
	}
	if len(decData) < 32 {
		return amm.Token{}, fmt.Errorf("decimals returned %d bytes, want 32", len(decData))
	}
	decimals := new(big.Int).SetBytes(decData[:32])
	if !decimals.IsUint64() || decimals.Uint64() > 255 {
		return amm.Token{}, fmt.Errorf("token %s reports decimals %s", addr.Hex(), decimals)
	}

	symData, err := s.client.CallContract(ctx, addr.Hex(), amm.SelectorSymbol)
	if err != nil {
		return amm.Token{}, fmt.Errorf("call symbol on %s: %w", addr.Hex(), err)
	}
	symbol, err := decodeString(symData)
	if err != nil {
		return amm.Token{}, fmt.Errorf("decode symbol of %s: %w", addr.Hex(), err)
	}

	return amm.Token{
		Address:  addr,
		Symbol:   symbol,
		Decimals: uint8(decimals.Uint64()),
		ChainID:  chainID,
	}, nil
}

// BalanceOf queries an ERC-20 balance.
func (s *Source) BalanceOf(ctx context.Context, token, holder common.Address) (*big.Int, error) {
	data, err := s.client.CallContract(ctx, token.Hex(), amm.EncodeBalanceOf(holder))
	if err != nil {
		return nil, fmt.Errorf("call balanceOf on %s: %w", token.Hex(), err)
	}
	if len(data) < 32 {
		return nil, fmt.Errorf("balanceOf returned %d bytes, want 32", len(data))
	}
	return new(big.Int).SetBytes(data[:32]), nil
}

// Allowance queries an ERC-20 allowance.
func (s *Source) Allowance(ctx context.Context, token, owner, spender common.Address) (*big.Int, error) {
	data, err := s.client.CallContract(ctx, token.Hex(), amm.EncodeAllowance(owner, spender))
	if err != nil {
		return nil, fmt.Errorf("call allowance on %s: %w", token.Hex(), err)
	}
	if len(data) < 32 {
		return nil, fmt.Errorf("allowance returned %d bytes, want 32", len(data))
	}
	return new(big.Int).SetBytes(data[:32]), nil
}

// decodeSigned interprets a 32-byte word as a two's complement signed
// integer.
func decodeSigned(word []byte) (*big.Int, error) {
	if len(word) != 32 {
		return nil, fmt.Errorf("signed word is %d bytes, want 32", len(word))
	}
	n := new(big.Int).SetBytes(word)
	if n.Cmp(twoTo255) >= 0 {
		n.Sub(n, twoTo256)
	}
	return n, nil
}

// decodeString decodes an ABI-encoded dynamic string return value. Some
// legacy tokens return a bytes32 instead; that shape is handled too.
func decodeString(data []byte) (string, error) {
	if len(data) == 32 {
		// bytes32 symbol, right-padded with zeros
		end := 32
		for end > 0 && data[end-1] == 0 {
			end--
		}
		return string(data[:end]), nil
	}
	if len(data) < 64 {
		return "", fmt.Errorf("string return is %d bytes, want at least 64", len(data))
	}

	offset := new(big.Int).SetBytes(data[:32])
	if !offset.IsInt64() || offset.Int64()+32 > int64(len(data)) {
		return "", fmt.Errorf("string offset %s out of range", offset)
	}
	start := offset.Int64()
	length := new(big.Int).SetBytes(data[start : start+32])
	if !length.IsInt64() || start+32+length.Int64() > int64(len(data)) {
		return "", fmt.Errorf("string length %s out of range", length)
	}
	return string(data[start+32 : start+32+length.Int64()]), nil
}
