package tx

import (
	"errors"
	"fmt"
	"testing"

	"github.com/Klingon-tech/klingnet-chain/pkg/crypto"
	"github.com/Klingon-tech/klingnet-chain/pkg/types"
)

// mockUTXOProvider is a simple in-memory UTXO provider for testing.
type mockUTXOProvider struct {
	utxos map[types.Outpoint]mockUTXO
}

type mockUTXO struct {
	value  uint64
	script types.Script
}

func newMockProvider() *mockUTXOProvider {
	return &mockUTXOProvider{utxos: make(map[types.Outpoint]mockUTXO)}
}

func (m *mockUTXOProvider) add(op types.Outpoint, value uint64, script types.Script) {
	m.utxos[op] = mockUTXO{value: value, script: script}
}

func (m *mockUTXOProvider) GetUTXO(op types.Outpoint) (uint64, types.Script, error) {
	u, ok := m.utxos[op]
	if !ok {
		return 0, nil, fmt.Errorf("not found")
	}
	return u.value, u.script, nil
}

func (m *mockUTXOProvider) HasUTXO(op types.Outpoint) bool {
	_, ok := m.utxos[op]
	return ok
}

func TestValidateWithUTXOs_Valid(t *testing.T) {
	key, _ := crypto.GenerateKey()
	addr := crypto.AddressFromPubKey(key.PublicKey())

	prevOut := types.Outpoint{TxID: types.Hash{0x01}, Index: 0}
	provider := newMockProvider()
	provider.add(prevOut, 5000, types.NewPubkeyHashScript(addr))

	b := NewBuilder().
		AddInput(prevOut).
		AddOutput(4000, types.NewPubkeyHashScript(types.Address{}))
	b.Sign(key)
	transaction := b.Build()

	fee, err := transaction.ValidateWithUTXOs(provider)
	if err != nil {
		t.Fatalf("ValidateWithUTXOs: %v", err)
	}
	if fee != 1000 {
		t.Errorf("fee = %d, want 1000", fee)
	}
}

func TestValidateWithUTXOs_ZeroFee(t *testing.T) {
	key, _ := crypto.GenerateKey()
	addr := crypto.AddressFromPubKey(key.PublicKey())

	prevOut := types.Outpoint{TxID: types.Hash{0x01}, Index: 0}
	provider := newMockProvider()
	provider.add(prevOut, 3000, types.NewPubkeyHashScript(addr))

	b := NewBuilder().
		AddInput(prevOut).
		AddOutput(3000, types.NewPubkeyHashScript(types.Address{}))
	b.Sign(key)
	transaction := b.Build()

	fee, err := transaction.ValidateWithUTXOs(provider)
	if err != nil {
		t.Fatalf("ValidateWithUTXOs: %v", err)
	}
	if fee != 0 {
		t.Errorf("fee = %d, want 0", fee)
	}
}

func TestValidateWithUTXOs_InputNotFound(t *testing.T) {
	key, _ := crypto.GenerateKey()

	prevOut := types.Outpoint{TxID: types.Hash{0x01}, Index: 0}
	provider := newMockProvider()

	b := NewBuilder().
		AddInput(prevOut).
		AddOutput(1000, types.NewPubkeyHashScript(types.Address{}))
	b.Sign(key)
	transaction := b.Build()

	_, err := transaction.ValidateWithUTXOs(provider)
	if !errors.Is(err, ErrInputNotFound) {
		t.Errorf("expected ErrInputNotFound, got: %v", err)
	}
}

func TestValidateWithUTXOs_InsufficientFunds(t *testing.T) {
	key, _ := crypto.GenerateKey()
	addr := crypto.AddressFromPubKey(key.PublicKey())

	prevOut := types.Outpoint{TxID: types.Hash{0x01}, Index: 0}
	provider := newMockProvider()
	provider.add(prevOut, 1000, types.NewPubkeyHashScript(addr))

	b := NewBuilder().
		AddInput(prevOut).
		AddOutput(2000, types.NewPubkeyHashScript(types.Address{}))
	b.Sign(key)
	transaction := b.Build()

	_, err := transaction.ValidateWithUTXOs(provider)
	if !errors.Is(err, ErrInsufficientFee) {
		t.Errorf("expected ErrInsufficientFee, got: %v", err)
	}
}

func TestValidateWithUTXOs_ScriptMismatch(t *testing.T) {
	key, _ := crypto.GenerateKey()
	wrongAddr := types.Address{0xff}

	prevOut := types.Outpoint{TxID: types.Hash{0x01}, Index: 0}
	provider := newMockProvider()
	provider.add(prevOut, 5000, types.NewPubkeyHashScript(wrongAddr))

	b := NewBuilder().
		AddInput(prevOut).
		AddOutput(4000, types.NewPubkeyHashScript(types.Address{}))
	b.Sign(key)
	transaction := b.Build()

	_, err := transaction.ValidateWithUTXOs(provider)
	if !errors.Is(err, ErrScriptMismatch) {
		t.Errorf("expected ErrScriptMismatch, got: %v", err)
	}
}

func TestValidateWithUTXOs_MultipleInputs(t *testing.T) {
	key, _ := crypto.GenerateKey()
	addr := crypto.AddressFromPubKey(key.PublicKey())

	prevOut1 := types.Outpoint{TxID: types.Hash{0x01}, Index: 0}
	prevOut2 := types.Outpoint{TxID: types.Hash{0x02}, Index: 0}
	provider := newMockProvider()
	provider.add(prevOut1, 3000, types.NewPubkeyHashScript(addr))
	provider.add(prevOut2, 2000, types.NewPubkeyHashScript(addr))

	b := NewBuilder().
		AddInput(prevOut1).
		AddInput(prevOut2).
		AddOutput(4500, types.NewPubkeyHashScript(types.Address{}))
	b.Sign(key)
	transaction := b.Build()

	fee, err := transaction.ValidateWithUTXOs(provider)
	if err != nil {
		t.Fatalf("ValidateWithUTXOs: %v", err)
	}
	if fee != 500 {
		t.Errorf("fee = %d, want 500", fee)
	}
}

func TestValidateWithUTXOs_InvalidSignature(t *testing.T) {
	key1, _ := crypto.GenerateKey()
	key2, _ := crypto.GenerateKey()
	addr2 := crypto.AddressFromPubKey(key2.PublicKey())

	prevOut := types.Outpoint{TxID: types.Hash{0x01}, Index: 0}
	provider := newMockProvider()
	// UTXO is locked to key2's address...
	provider.add(prevOut, 5000, types.NewPubkeyHashScript(addr2))

	// ...but signed with key1. The pubkey-hash check catches the mismatch.
	b := NewBuilder().
		AddInput(prevOut).
		AddOutput(4000, types.NewPubkeyHashScript(types.Address{}))
	b.Sign(key1)
	transaction := b.Build()

	_, err := transaction.ValidateWithUTXOs(provider)
	if !errors.Is(err, ErrScriptMismatch) {
		t.Errorf("expected ErrScriptMismatch, got: %v", err)
	}
}

func TestValidateWithUTXOs_StructuralFailure(t *testing.T) {
	transaction := &Transaction{
		Version: 1,
		Outputs: []Output{{Value: 1000, Script: types.NewPubkeyHashScript(types.Address{})}},
	}
	provider := newMockProvider()

	_, err := transaction.ValidateWithUTXOs(provider)
	if !errors.Is(err, ErrNoInputs) {
		t.Errorf("expected ErrNoInputs, got: %v", err)
	}
}

func TestVerifyPubkeyHash(t *testing.T) {
	key, _ := crypto.GenerateKey()
	addr := crypto.AddressFromPubKey(key.PublicKey())

	if err := verifyPubkeyHash(key.PublicKey(), addr[:]); err != nil {
		t.Errorf("valid pubkey hash should pass: %v", err)
	}

	key2, _ := crypto.GenerateKey()
	err := verifyPubkeyHash(key2.PublicKey(), addr[:])
	if !errors.Is(err, ErrScriptMismatch) {
		t.Errorf("expected ErrScriptMismatch for wrong pubkey, got: %v", err)
	}

	err = verifyPubkeyHash(nil, addr[:])
	if !errors.Is(err, ErrMissingPubKey) {
		t.Errorf("expected ErrMissingPubKey, got: %v", err)
	}

	err = verifyPubkeyHash(key.PublicKey(), []byte{0x01, 0x02})
	if !errors.Is(err, ErrScriptMismatch) {
		t.Errorf("expected ErrScriptMismatch for wrong length, got: %v", err)
	}
}

func TestValidateWithUTXOs_UnspendableOutput(t *testing.T) {
	key, _ := crypto.GenerateKey()

	prevOut := types.Outpoint{TxID: types.Hash{0x01}, Index: 0}
	provider := newMockProvider()
	provider.add(prevOut, 5000, types.Script{0x6a, 0x01, 0x02}) // OP_RETURN

	b := NewBuilder().
		AddInput(prevOut).
		AddOutput(4000, types.NewPubkeyHashScript(types.Address{}))
	b.Sign(key)
	transaction := b.Build()

	_, err := transaction.ValidateWithUTXOs(provider)
	if !errors.Is(err, ErrUnspendableOutput) {
		t.Errorf("expected ErrUnspendableOutput, got: %v", err)
	}
}
