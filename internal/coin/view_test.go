package coin

import (
	"testing"

	"github.com/Klingon-tech/klingnet-chain/pkg/crypto"
	"github.com/Klingon-tech/klingnet-chain/pkg/tx"
	"github.com/Klingon-tech/klingnet-chain/pkg/types"
)

// memBacking is a trivial map-backed Backing for tests.
type memBacking map[types.Outpoint]*Coin

func (m memBacking) GetCoin(outpoint types.Outpoint) (*Coin, error) {
	c, ok := m[outpoint]
	if !ok {
		return nil, ErrCoinNotFound
	}
	return c, nil
}

func TestView_AddCoinAndGet(t *testing.T) {
	v := NewView(nil)
	op := types.Outpoint{TxID: types.Hash{0x01}, Index: 0}
	v.AddCoin(op, &Coin{Value: 500, Script: types.NewPubkeyHashScript(testAddress(0x01))})

	got, ok := v.Get(op)
	if !ok {
		t.Fatal("Get() should find the added coin")
	}
	if got.Value != 500 {
		t.Errorf("Value = %d, want 500", got.Value)
	}
}

func TestView_FallsThroughToBacking(t *testing.T) {
	op := types.Outpoint{TxID: types.Hash{0x02}, Index: 1}
	backing := memBacking{op: {Value: 750, Script: types.NewPubkeyHashScript(testAddress(0x02))}}
	v := NewView(backing)

	if !v.Has(op) {
		t.Fatal("Has() should fall through to backing")
	}
	c, ok := v.Get(op)
	if !ok || c.Value != 750 {
		t.Fatalf("Get() = %+v, %v; want value 750", c, ok)
	}
}

func TestView_SpendHidesBackingCoin(t *testing.T) {
	op := types.Outpoint{TxID: types.Hash{0x03}, Index: 0}
	backing := memBacking{op: {Value: 100, Script: types.NewPubkeyHashScript(testAddress(0x03))}}
	v := NewView(backing)

	spent := v.Spend(op)
	if spent == nil || spent.Value != 100 {
		t.Fatalf("Spend() = %+v, want value 100", spent)
	}
	if v.Has(op) {
		t.Error("outpoint should no longer resolve after Spend")
	}
}

func TestView_SpendUnknownReturnsNil(t *testing.T) {
	v := NewView(nil)
	if got := v.Spend(types.Outpoint{TxID: types.Hash{0x09}}); got != nil {
		t.Errorf("Spend() of unknown outpoint = %+v, want nil", got)
	}
}

func TestView_AddTxThenFillCoins(t *testing.T) {
	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey() error: %v", err)
	}

	b := tx.NewBuilder().
		AddInput(types.Outpoint{TxID: types.Hash{0x04}, Index: 0}).
		AddOutput(1000, types.NewPubkeyHashScript(testAddress(0x04)))
	b.Sign(key)
	funding := b.Build()

	v := NewView(nil)
	v.AddTx(funding, 10)

	spender := tx.NewBuilder().
		AddInput(types.Outpoint{TxID: funding.Hash(), Index: 0}).
		AddOutput(900, types.NewPubkeyHashScript(testAddress(0x05)))
	spender.Sign(key)
	spendingTx := spender.Build()

	if !v.FillCoins(spendingTx) {
		t.Fatal("FillCoins() should resolve the input added via AddTx")
	}
}

func TestView_FillCoinsMissingInput(t *testing.T) {
	v := NewView(nil)
	txn := &tx.Transaction{
		Inputs: []tx.Input{{PrevOut: types.Outpoint{TxID: types.Hash{0xff}, Index: 3}}},
	}
	if v.FillCoins(txn) {
		t.Error("FillCoins() should fail when an input cannot be resolved")
	}
}

func TestView_FillCoinsSkipsCoinbase(t *testing.T) {
	v := NewView(nil)
	coinbase := &tx.Transaction{
		Inputs: []tx.Input{{PrevOut: types.Outpoint{Index: types.NullIndex}}},
	}
	if !v.FillCoins(coinbase) {
		t.Error("FillCoins() should ignore the coinbase's null outpoint")
	}
}

func TestView_ToArrayIsSortedAndExcludesSpent(t *testing.T) {
	v := NewView(nil)
	opA := types.Outpoint{TxID: types.Hash{0x01}, Index: 0}
	opB := types.Outpoint{TxID: types.Hash{0x02}, Index: 0}
	v.AddCoin(opA, &Coin{Value: 1})
	v.AddCoin(opB, &Coin{Value: 2})
	v.Spend(opA)

	arr := v.ToArray()
	if len(arr) != 1 {
		t.Fatalf("ToArray() len = %d, want 1", len(arr))
	}
	if arr[0].Value != 2 {
		t.Errorf("ToArray()[0].Value = %d, want 2", arr[0].Value)
	}
}

func TestView_SatisfiesUTXOProvider(t *testing.T) {
	op := types.Outpoint{TxID: types.Hash{0x06}, Index: 0}
	v := NewView(nil)
	v.AddCoin(op, &Coin{Value: 42, Script: types.NewPubkeyHashScript(testAddress(0x06))})

	var provider tx.UTXOProvider = v
	if !provider.HasUTXO(op) {
		t.Error("HasUTXO() should report the added coin")
	}
	value, _, err := provider.GetUTXO(op)
	if err != nil {
		t.Fatalf("GetUTXO() error: %v", err)
	}
	if value != 42 {
		t.Errorf("GetUTXO() value = %d, want 42", value)
	}
}
