package chain

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/gateway-fm/poolkit/internal/amm"
	"github.com/gateway-fm/poolkit/internal/rpc"
)

// fakeRPC answers CallContract by matching the 4-byte selector and
// GetCode from a canned map.
type fakeRPC struct {
	rpc.Client
	code    map[string]string
	returns map[string][]byte
}

func (f *fakeRPC) GetCode(ctx context.Context, address string) (string, error) {
	return f.code[address], nil
}

func (f *fakeRPC) CallContract(ctx context.Context, to string, data []byte) ([]byte, error) {
	if len(data) < 4 {
		return nil, fmt.Errorf("calldata too short")
	}
	ret, ok := f.returns[string(data[:4])]
	if !ok {
		return nil, fmt.Errorf("execution reverted")
	}
	return ret, nil
}

// BatchCall serves each batched eth_call from the same selector map,
// answering in wire shape: a JSON-quoted hex string per entry.
func (f *fakeRPC) BatchCall(ctx context.Context, reqs []rpc.BatchRequest) ([]rpc.BatchResponse, error) {
	responses := make([]rpc.BatchResponse, len(reqs))
	for i, req := range reqs {
		call, ok := req.Params[0].(map[string]string)
		if !ok {
			return nil, fmt.Errorf("batch entry %d: unexpected params shape", i)
		}
		data, err := hexutil.Decode(call["data"])
		if err != nil {
			return nil, fmt.Errorf("batch entry %d: %w", i, err)
		}
		ret, err := f.CallContract(ctx, call["to"], data)
		if err != nil {
			responses[i] = rpc.BatchResponse{Error: err}
			continue
		}
		encoded, err := json.Marshal(hexutil.Encode(ret))
		if err != nil {
			return nil, err
		}
		responses[i] = rpc.BatchResponse{Result: encoded}
	}
	return responses, nil
}

func word(n *big.Int) []byte {
	out := make([]byte, 32)
	n.FillBytes(out)
	return out
}

func signedWord(v int64) []byte {
	n := big.NewInt(v)
	if v < 0 {
		n.Add(n, new(big.Int).Lsh(big.NewInt(1), 256))
	}
	return word(n)
}

var testPool = common.HexToAddress("0x6666666666666666666666666666666666666666")

func TestPoolExists(t *testing.T) {
	src := NewSource(&fakeRPC{code: map[string]string{
		testPool.Hex(): "0x6080604052",
	}})

	exists, err := src.PoolExists(context.Background(), testPool)
	if err != nil {
		t.Fatalf("PoolExists error = %v", err)
	}
	if !exists {
		t.Error("PoolExists = false for address with code")
	}

	empty := common.HexToAddress("0x7777777777777777777777777777777777777777")
	src = NewSource(&fakeRPC{code: map[string]string{empty.Hex(): "0x"}})
	exists, err = src.PoolExists(context.Background(), empty)
	if err != nil {
		t.Fatalf("PoolExists error = %v", err)
	}
	if exists {
		t.Error("PoolExists = true for empty code")
	}
}

func TestSlot0(t *testing.T) {
	tests := []struct {
		name      string
		sqrtPrice *big.Int
		tick      int64
	}{
		{name: "positive tick", sqrtPrice: big.NewInt(12345), tick: 100},
		{name: "negative tick", sqrtPrice: new(big.Int).Lsh(big.NewInt(1), 96), tick: -200310},
		{name: "zero tick", sqrtPrice: new(big.Int).Lsh(big.NewInt(1), 96), tick: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ret := append(word(tt.sqrtPrice), signedWord(tt.tick)...)
			// slot0 returns 7 words; trailing fields are ignored.
			for i := 0; i < 5; i++ {
				ret = append(ret, word(big.NewInt(0))...)
			}
			src := NewSource(&fakeRPC{returns: map[string][]byte{
				string(amm.SelectorSlot0): ret,
			}})

			sqrtPrice, tick, err := src.Slot0(context.Background(), testPool)
			if err != nil {
				t.Fatalf("Slot0 error = %v", err)
			}
			if sqrtPrice.Cmp(tt.sqrtPrice) != 0 {
				t.Errorf("sqrtPrice = %s, want %s", sqrtPrice, tt.sqrtPrice)
			}
			if int64(tick) != tt.tick {
				t.Errorf("tick = %d, want %d", tick, tt.tick)
			}
		})
	}
}

func TestSlot0ShortReturn(t *testing.T) {
	src := NewSource(&fakeRPC{returns: map[string][]byte{
		string(amm.SelectorSlot0): make([]byte, 32),
	}})
	if _, _, err := src.Slot0(context.Background(), testPool); err == nil {
		t.Error("short slot0 return accepted")
	}
}

func TestPoolState(t *testing.T) {
	sqrtPrice := new(big.Int).Lsh(big.NewInt(1), 96)
	liquidity := big.NewInt(1_000_000_000)

	slot0Ret := append(word(sqrtPrice), signedWord(-200310)...)
	for i := 0; i < 5; i++ {
		slot0Ret = append(slot0Ret, word(big.NewInt(0))...)
	}
	src := NewSource(&fakeRPC{returns: map[string][]byte{
		string(amm.SelectorSlot0):     slot0Ret,
		string(amm.SelectorLiquidity): word(liquidity),
	}})

	gotPrice, gotTick, gotLiq, err := src.PoolState(context.Background(), testPool)
	if err != nil {
		t.Fatalf("PoolState error = %v", err)
	}
	if gotPrice.Cmp(sqrtPrice) != 0 {
		t.Errorf("sqrtPrice = %s, want %s", gotPrice, sqrtPrice)
	}
	if gotTick != -200310 {
		t.Errorf("tick = %d, want -200310", gotTick)
	}
	if gotLiq.Cmp(liquidity) != 0 {
		t.Errorf("liquidity = %s, want %s", gotLiq, liquidity)
	}
}

func TestPoolStateRevertedSubcall(t *testing.T) {
	// Only slot0 answers; the liquidity entry reverts inside the batch
	// and the whole read must fail.
	slot0Ret := append(word(big.NewInt(1)), signedWord(0)...)
	src := NewSource(&fakeRPC{returns: map[string][]byte{
		string(amm.SelectorSlot0): slot0Ret,
	}})

	if _, _, _, err := src.PoolState(context.Background(), testPool); err == nil {
		t.Error("reverted liquidity subcall accepted")
	}
}

func TestBalanceOf(t *testing.T) {
	balance := big.NewInt(42_000_000)
	src := NewSource(&fakeRPC{returns: map[string][]byte{
		string(amm.SelectorBalanceOf): word(balance),
	}})

	got, err := src.BalanceOf(context.Background(), testPool,
		common.HexToAddress("0x1111111111111111111111111111111111111111"))
	if err != nil {
		t.Fatalf("BalanceOf error = %v", err)
	}
	if got.Cmp(balance) != 0 {
		t.Errorf("BalanceOf = %s, want %s", got, balance)
	}
}

func TestTickInfo(t *testing.T) {
	gross := big.NewInt(5_000_000)
	ret := append(word(gross), signedWord(-5_000_000)...)
	src := NewSource(&fakeRPC{returns: map[string][]byte{
		string(amm.SelectorTicks): ret,
	}})

	info, err := src.TickInfo(context.Background(), testPool, -200340)
	if err != nil {
		t.Fatalf("TickInfo error = %v", err)
	}
	if info.LiquidityGross.Cmp(gross) != 0 {
		t.Errorf("LiquidityGross = %s, want %s", info.LiquidityGross, gross)
	}
	if info.LiquidityNet.Int64() != -5_000_000 {
		t.Errorf("LiquidityNet = %s, want -5000000", info.LiquidityNet)
	}
}

func TestResolvePool(t *testing.T) {
	factory := common.HexToAddress("0x8888888888888888888888888888888888888888")

	t.Run("registered pool", func(t *testing.T) {
		ret := make([]byte, 32)
		copy(ret[12:], testPool.Bytes())
		src := NewSource(&fakeRPC{returns: map[string][]byte{
			string(amm.SelectorGetPool): ret,
		}})

		pool, err := src.ResolvePool(context.Background(), factory,
			common.HexToAddress("0x1111111111111111111111111111111111111111"),
			common.HexToAddress("0x2222222222222222222222222222222222222222"),
			amm.FeeMedium)
		if err != nil {
			t.Fatalf("ResolvePool error = %v", err)
		}
		if pool != testPool {
			t.Errorf("pool = %s, want %s", pool.Hex(), testPool.Hex())
		}
	})

	t.Run("unregistered pool", func(t *testing.T) {
		src := NewSource(&fakeRPC{returns: map[string][]byte{
			string(amm.SelectorGetPool): make([]byte, 32),
		}})

		_, err := src.ResolvePool(context.Background(), factory,
			common.HexToAddress("0x1111111111111111111111111111111111111111"),
			common.HexToAddress("0x2222222222222222222222222222222222222222"),
			amm.FeeMedium)
		if err == nil || !bytes.Contains([]byte(err.Error()), []byte("not registered")) {
			t.Errorf("error = %v, want pool-not-found", err)
		}
	})
}

func TestTokenMetadata(t *testing.T) {
	symbolRet := func(s string) []byte {
		out := make([]byte, 0, 96)
		out = append(out, word(big.NewInt(32))...)            // offset
		out = append(out, word(big.NewInt(int64(len(s))))...) // length
		padded := make([]byte, 32)
		copy(padded, s)
		return append(out, padded...)
	}

	src := NewSource(&fakeRPC{returns: map[string][]byte{
		string(amm.SelectorDecimals): word(big.NewInt(6)),
		string(amm.SelectorSymbol):   symbolRet("USDC"),
	}})

	token, err := src.TokenMetadata(context.Background(),
		common.HexToAddress("0x9999999999999999999999999999999999999999"), 1337)
	if err != nil {
		t.Fatalf("TokenMetadata error = %v", err)
	}
	if token.Decimals != 6 {
		t.Errorf("Decimals = %d, want 6", token.Decimals)
	}
	if token.Symbol != "USDC" {
		t.Errorf("Symbol = %q, want USDC", token.Symbol)
	}
	if token.ChainID != 1337 {
		t.Errorf("ChainID = %d, want 1337", token.ChainID)
	}
}

func TestDecodeStringBytes32(t *testing.T) {
	// Legacy tokens return symbol as right-padded bytes32.
	raw := make([]byte, 32)
	copy(raw, "MKR")
	got, err := decodeString(raw)
	if err != nil {
		t.Fatalf("decodeString error = %v", err)
	}
	if got != "MKR" {
		t.Errorf("decodeString = %q, want MKR", got)
	}
}

func TestDecodeSigned(t *testing.T) {
	tests := []struct {
		name string
		v    int64
	}{
		{name: "positive", v: 887272},
		{name: "zero", v: 0},
		{name: "negative", v: -887272},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := decodeSigned(signedWord(tt.v))
			if err != nil {
				t.Fatalf("decodeSigned error = %v", err)
			}
			if got.Int64() != tt.v {
				t.Errorf("decodeSigned = %s, want %d", got, tt.v)
			}
		})
	}

	if _, err := decodeSigned([]byte{1, 2, 3}); err == nil {
		t.Error("short word accepted")
	}
}
