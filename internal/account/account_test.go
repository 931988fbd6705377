package account

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
)

func TestNextNonce(t *testing.T) {
	acc, err := NewAccountFromHex(DefaultDevPrivateKey)
	if err != nil {
		t.Fatalf("failed to create account: %v", err)
	}

	acc.SetNonce(100)

	if got := acc.NextNonce(); got != 100 {
		t.Errorf("NextNonce() = %d, want 100", got)
	}
	if got := acc.NextNonce(); got != 101 {
		t.Errorf("NextNonce() = %d, want 101", got)
	}
	if got := acc.PeekNonce(); got != 102 {
		t.Errorf("PeekNonce() = %d, want 102", got)
	}
}

func TestPeekNonce(t *testing.T) {
	acc, err := NewAccountFromHex(DefaultDevPrivateKey)
	if err != nil {
		t.Fatalf("failed to create account: %v", err)
	}

	acc.SetNonce(50)

	// PeekNonce should not increment
	if got := acc.PeekNonce(); got != 50 {
		t.Errorf("PeekNonce() = %d, want 50", got)
	}
	if got := acc.PeekNonce(); got != 50 {
		t.Errorf("PeekNonce() = %d, want 50 (should not change)", got)
	}
}

func TestRollback(t *testing.T) {
	acc, err := NewAccountFromHex(DefaultDevPrivateKey)
	if err != nil {
		t.Fatalf("failed to create account: %v", err)
	}

	acc.SetNonce(10)

	// Failed send returns the nonce.
	n := acc.NextNonce()
	acc.Rollback(n)
	if got := acc.PeekNonce(); got != 10 {
		t.Errorf("after rollback, PeekNonce() = %d, want 10", got)
	}

	// Rollback of a stale nonce is ignored once a later one was issued.
	first := acc.NextNonce()
	acc.NextNonce()
	acc.Rollback(first)
	if got := acc.PeekNonce(); got != 12 {
		t.Errorf("after stale rollback, PeekNonce() = %d, want 12", got)
	}
}

func TestNewAccountFromHex(t *testing.T) {
	acc, err := NewAccountFromHex(DefaultDevPrivateKey)
	if err != nil {
		t.Fatalf("NewAccountFromHex error = %v", err)
	}

	// First Anvil account address.
	want := common.HexToAddress("0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266")
	if acc.Address != want {
		t.Errorf("Address = %s, want %s", acc.Address.Hex(), want.Hex())
	}

	// The 0x prefix is accepted.
	prefixed, err := NewAccountFromHex("0x" + DefaultDevPrivateKey)
	if err != nil {
		t.Fatalf("NewAccountFromHex with prefix error = %v", err)
	}
	if prefixed.Address != acc.Address {
		t.Errorf("prefixed key produced %s, want %s", prefixed.Address.Hex(), acc.Address.Hex())
	}
}

func TestNewAccountFromHexInvalid(t *testing.T) {
	if _, err := NewAccountFromHex("not-a-key"); err == nil {
		t.Error("invalid key accepted")
	}
	if _, err := NewAccountFromHex(""); err == nil {
		t.Error("empty key accepted")
	}
}
