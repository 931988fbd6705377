package deploy

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/gateway-fm/poolkit/internal/account"
	"github.com/gateway-fm/poolkit/internal/amm"
	"github.com/gateway-fm/poolkit/internal/chain"
	"github.com/gateway-fm/poolkit/internal/rpc"
)

// fakeRPC answers the read calls DeployAll makes and rejects every send,
// counting the attempts. Unimplemented Client methods panic: nothing here
// should wait on receipts.
type fakeRPC struct {
	rpc.Client
	nonce   uint64
	code    map[string]string
	balance *big.Int
	returns map[string][]byte
	sent    int
}

func (f *fakeRPC) GetNonce(ctx context.Context, address string) (uint64, error) {
	return f.nonce, nil
}

func (f *fakeRPC) GetCode(ctx context.Context, address string) (string, error) {
	return f.code[address], nil
}

func (f *fakeRPC) GetBalance(ctx context.Context, address string) (*big.Int, error) {
	if f.balance == nil {
		return big.NewInt(0), nil
	}
	return f.balance, nil
}

func (f *fakeRPC) CallContract(ctx context.Context, to string, data []byte) ([]byte, error) {
	if len(data) < 4 {
		return nil, errors.New("calldata too short")
	}
	ret, ok := f.returns[string(data[:4])]
	if !ok {
		return nil, errors.New("execution reverted")
	}
	return ret, nil
}

func (f *fakeRPC) SendRawTransaction(ctx context.Context, txRLP []byte) error {
	f.sent++
	return errors.New("sending disabled in test")
}

func balanceWord(n *big.Int) []byte {
	out := make([]byte, 32)
	n.FillBytes(out)
	return out
}

func testOperator(t *testing.T) *account.Account {
	t.Helper()
	op, err := account.NewAccountFromHex(account.DefaultDevPrivateKey)
	if err != nil {
		t.Fatalf("NewAccountFromHex error = %v", err)
	}
	return op
}

func newTestDeployer(client rpc.Client) *Deployer {
	return NewDeployer(client, chain.NewSource(client), big.NewInt(1337), big.NewInt(1_000_000_000), nil)
}

func TestDeployAllSkipsExistingContracts(t *testing.T) {
	op := testOperator(t)
	const startNonce = 7

	// Code is already present at every expected CREATE address, so all
	// four steps skip instead of deploying.
	code := make(map[string]string, len(deployOrder))
	for i := range deployOrder {
		addr := amm.ComputeContractAddress(op.Address, startNonce+uint64(i))
		code[addr.Hex()] = "0x6080604052"
	}
	client := &fakeRPC{nonce: startNonce, code: code}
	d := newTestDeployer(client)

	arts, err := LoadArtifacts(writeArtifacts(t, fullArtifactSet(`{"bytecode":"0x60"}`)))
	if err != nil {
		t.Fatalf("LoadArtifacts error = %v", err)
	}

	var progress []string
	contracts, err := d.DeployAllWithProgress(context.Background(), op, arts, func(name string, deployed, total int) {
		progress = append(progress, name)
		if total != len(deployOrder) {
			t.Errorf("total = %d, want %d", total, len(deployOrder))
		}
	})
	if err != nil {
		t.Fatalf("DeployAllWithProgress error = %v", err)
	}

	if client.sent != 0 {
		t.Errorf("sent %d transactions, want 0", client.sent)
	}
	if len(progress) != len(deployOrder) {
		t.Fatalf("progress callbacks = %d, want %d", len(progress), len(deployOrder))
	}
	for i, name := range deployOrder {
		if progress[i] != name {
			t.Errorf("progress[%d] = %s, want %s", i, progress[i], name)
		}
	}

	wantWETH := amm.ComputeContractAddress(op.Address, startNonce)
	if contracts.WETH9 != wantWETH {
		t.Errorf("WETH9 = %s, want %s", contracts.WETH9.Hex(), wantWETH.Hex())
	}
	wantManager := amm.ComputeContractAddress(op.Address, startNonce+3)
	if contracts.PositionManager != wantManager {
		t.Errorf("PositionManager = %s, want %s", contracts.PositionManager.Hex(), wantManager.Hex())
	}

	// Skipped steps consume no nonces: the counter stays at the chain
	// value it was resynced to.
	if got := op.PeekNonce(); got != startNonce {
		t.Errorf("PeekNonce = %d, want %d after all-skip run", got, startNonce)
	}
}

func TestDeployRollsBackNonceOnFailedSend(t *testing.T) {
	op := testOperator(t)
	client := &fakeRPC{nonce: 3}
	d := newTestDeployer(client)

	arts, err := LoadArtifacts(writeArtifacts(t, fullArtifactSet(`{"bytecode":"0x60"}`)))
	if err != nil {
		t.Fatalf("LoadArtifacts error = %v", err)
	}

	// No code anywhere, so the first step deploys; the fake rejects the
	// send, and the issued nonce must be returned to the counter.
	if _, err := d.DeployAll(context.Background(), op, arts); err == nil {
		t.Fatal("DeployAll succeeded with sends disabled")
	}
	if client.sent != 1 {
		t.Errorf("sent %d transactions, want 1", client.sent)
	}
	if got := op.PeekNonce(); got != 3 {
		t.Errorf("PeekNonce = %d, want 3 after rollback", got)
	}
}

func TestCreatePoolValidation(t *testing.T) {
	op := testOperator(t)
	d := newTestDeployer(&fakeRPC{})
	contracts := &Contracts{}
	tokenA := amm.ComputeContractAddress(op.Address, 100)
	tokenB := amm.ComputeContractAddress(op.Address, 101)

	t.Run("unsupported fee", func(t *testing.T) {
		_, err := d.CreatePool(context.Background(), op, contracts, tokenA, tokenB, 1234, big.NewInt(1))
		if !errors.Is(err, amm.ErrUnsupportedFeeTier) {
			t.Errorf("error = %v, want ErrUnsupportedFeeTier", err)
		}
	})

	t.Run("nil price", func(t *testing.T) {
		if _, err := d.CreatePool(context.Background(), op, contracts, tokenA, tokenB, amm.FeeMedium, nil); err == nil {
			t.Error("nil sqrt price accepted")
		}
	})

	t.Run("zero price", func(t *testing.T) {
		if _, err := d.CreatePool(context.Background(), op, contracts, tokenA, tokenB, amm.FeeMedium, big.NewInt(0)); err == nil {
			t.Error("zero sqrt price accepted")
		}
	})
}

func TestAddLiquidityUnsupportedFee(t *testing.T) {
	op := testOperator(t)
	d := newTestDeployer(&fakeRPC{})

	err := d.AddLiquidity(context.Background(), op, &Contracts{}, LiquidityRequest{
		TokenA:  amm.ComputeContractAddress(op.Address, 100),
		TokenB:  amm.ComputeContractAddress(op.Address, 101),
		Fee:     42,
		AmountA: big.NewInt(1),
		AmountB: big.NewInt(1),
	})
	if !errors.Is(err, amm.ErrUnsupportedFeeTier) {
		t.Errorf("error = %v, want ErrUnsupportedFeeTier", err)
	}
}

func TestWrapETHValidation(t *testing.T) {
	op := testOperator(t)
	d := newTestDeployer(&fakeRPC{})
	weth := amm.ComputeContractAddress(op.Address, 100)

	if err := d.WrapETH(context.Background(), op, weth, nil); err == nil {
		t.Error("nil amount accepted")
	}
	if err := d.WrapETH(context.Background(), op, weth, big.NewInt(-1)); err == nil {
		t.Error("negative amount accepted")
	}
}

func TestWrapETHInsufficientBalance(t *testing.T) {
	op := testOperator(t)
	client := &fakeRPC{balance: big.NewInt(5)}
	d := newTestDeployer(client)
	weth := amm.ComputeContractAddress(op.Address, 100)

	err := d.WrapETH(context.Background(), op, weth, big.NewInt(10))
	if err == nil {
		t.Fatal("wrap exceeding native balance accepted")
	}
	if client.sent != 0 {
		t.Errorf("sent %d transactions, want 0", client.sent)
	}
}

func TestUnwrapWETH(t *testing.T) {
	op := testOperator(t)
	weth := amm.ComputeContractAddress(op.Address, 100)

	t.Run("validation", func(t *testing.T) {
		d := newTestDeployer(&fakeRPC{})
		if err := d.UnwrapWETH(context.Background(), op, weth, nil); err == nil {
			t.Error("nil amount accepted")
		}
		if err := d.UnwrapWETH(context.Background(), op, weth, big.NewInt(0)); err == nil {
			t.Error("zero amount accepted")
		}
	})

	t.Run("insufficient wrapped balance", func(t *testing.T) {
		client := &fakeRPC{returns: map[string][]byte{
			string(amm.SelectorBalanceOf): balanceWord(big.NewInt(5)),
		}}
		d := newTestDeployer(client)

		if err := d.UnwrapWETH(context.Background(), op, weth, big.NewInt(10)); err == nil {
			t.Fatal("unwrap exceeding WETH balance accepted")
		}
		if client.sent != 0 {
			t.Errorf("sent %d transactions, want 0", client.sent)
		}
	})
}

func TestSwapInsufficientBalance(t *testing.T) {
	op := testOperator(t)
	client := &fakeRPC{returns: map[string][]byte{
		string(amm.SelectorBalanceOf): balanceWord(big.NewInt(1)),
	}}
	d := newTestDeployer(client)

	_, err := d.Swap(context.Background(), op, &Contracts{}, amm.FeeMedium, amm.TradeRequest{
		InputToken:  amm.ComputeContractAddress(op.Address, 100),
		OutputToken: amm.ComputeContractAddress(op.Address, 101),
		AmountIn:    big.NewInt(1_000_000),
	})
	if err == nil {
		t.Fatal("swap exceeding input balance accepted")
	}
	if client.sent != 0 {
		t.Errorf("sent %d transactions, want 0", client.sent)
	}
}

func TestAddLiquidityInsufficientBalance(t *testing.T) {
	op := testOperator(t)
	client := &fakeRPC{returns: map[string][]byte{
		string(amm.SelectorBalanceOf): balanceWord(big.NewInt(1)),
	}}
	d := newTestDeployer(client)

	err := d.AddLiquidity(context.Background(), op, &Contracts{}, LiquidityRequest{
		TokenA:  amm.ComputeContractAddress(op.Address, 100),
		TokenB:  amm.ComputeContractAddress(op.Address, 101),
		Fee:     amm.FeeMedium,
		AmountA: big.NewInt(1_000_000),
		AmountB: big.NewInt(2_000_000),
	})
	if err == nil {
		t.Fatal("mint exceeding token balances accepted")
	}
	if client.sent != 0 {
		t.Errorf("sent %d transactions, want 0", client.sent)
	}
}
