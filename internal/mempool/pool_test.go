package mempool

import (
	"testing"

	"github.com/Klingon-tech/klingnet-chain/internal/chainstate"
	"github.com/Klingon-tech/klingnet-chain/internal/coin"
	"github.com/Klingon-tech/klingnet-chain/pkg/crypto"
	"github.com/Klingon-tech/klingnet-chain/pkg/tx"
	"github.com/Klingon-tech/klingnet-chain/pkg/types"
)

// fakeChainSource is a minimal, in-memory ChainSource test double.
type fakeChainSource struct {
	coins   map[types.Outpoint]*coin.Coin
	height  uint32
	mtp     uint64
	csv     bool
	segwit  bool
}

func newFakeChainSource() *fakeChainSource {
	return &fakeChainSource{
		coins:  make(map[types.Outpoint]*coin.Coin),
		height: 100,
		mtp:    1_700_000_000,
		csv:    true,
		segwit: true,
	}
}

func (f *fakeChainSource) GetCoin(op types.Outpoint) (*coin.Coin, error) {
	c, ok := f.coins[op]
	if !ok {
		return nil, coin.ErrCoinNotFound
	}
	return c, nil
}

func (f *fakeChainSource) Tip() (*chainstate.Entry, error) {
	return &chainstate.Entry{Height: f.height}, nil
}

func (f *fakeChainSource) MedianTime() (uint64, error) { return f.mtp, nil }

func (f *fakeChainSource) DeploymentActive(name string) (bool, error) {
	switch name {
	case "csv":
		return f.csv, nil
	case "segwit":
		return f.segwit, nil
	default:
		return false, nil
	}
}

func testKeyAndAddress(t *testing.T) (*crypto.PrivateKey, types.Address) {
	t.Helper()
	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey() error: %v", err)
	}
	return key, crypto.AddressFromPubKey(key.PublicKey())
}

func fundCoin(src *fakeChainSource, value uint64, addr types.Address) types.Outpoint {
	op := types.Outpoint{TxID: types.Hash{0x01}, Index: 0}
	src.coins[op] = &coin.Coin{Value: value, Script: types.NewPubkeyHashScript(addr), Height: 1}
	return op
}

func signedSpend(t *testing.T, key *crypto.PrivateKey, op types.Outpoint, value uint64, to types.Address) *tx.Transaction {
	t.Helper()
	b := tx.NewBuilder().AddInput(op).AddOutput(value, types.NewPubkeyHashScript(to))
	if err := b.Sign(key); err != nil {
		t.Fatalf("Sign() error: %v", err)
	}
	return b.Build()
}

func TestAdd_AcceptsValidSpend(t *testing.T) {
	key, addr := testKeyAndAddress(t)
	src := newFakeChainSource()
	op := fundCoin(src, 1000, addr)

	p := New(src, 0, WithPolicy(&Policy{MaxTxSize: DefaultMaxTxSize, RequireStandard: true, AncestorLimit: 25}))
	spend := signedSpend(t, key, op, 900, addr)

	fee, err := p.Add(spend)
	if err != nil {
		t.Fatalf("Add() error: %v", err)
	}
	if fee != 100 {
		t.Errorf("fee = %d, want 100", fee)
	}
	if p.Count() != 1 {
		t.Errorf("Count() = %d, want 1", p.Count())
	}
	if !p.Has(spend.Hash()) {
		t.Error("pool should contain the admitted transaction")
	}
}

func TestAdd_RejectsDuplicate(t *testing.T) {
	key, addr := testKeyAndAddress(t)
	src := newFakeChainSource()
	op := fundCoin(src, 1000, addr)
	p := New(src, 0)
	spend := signedSpend(t, key, op, 900, addr)

	if _, err := p.Add(spend); err != nil {
		t.Fatalf("first Add() error: %v", err)
	}
	_, err := p.Add(spend)
	ve, ok := err.(*ValidationError)
	if !ok || ve.Kind != KindAlreadyKnown {
		t.Errorf("second Add() = %v, want ValidationError{Kind: alreadyknown}", err)
	}
}

func TestAdd_NewerConflictReplacesOlder(t *testing.T) {
	key, addr := testKeyAndAddress(t)
	_, otherAddr := testKeyAndAddress(t)
	src := newFakeChainSource()
	op := fundCoin(src, 1000, addr)
	p := New(src, 0)

	first := signedSpend(t, key, op, 900, addr)
	second := signedSpend(t, key, op, 800, otherAddr)

	if _, err := p.Add(first); err != nil {
		t.Fatalf("Add(first) error: %v", err)
	}
	if _, err := p.Add(second); err != nil {
		t.Fatalf("Add(second) error: %v", err)
	}

	if p.Has(first.Hash()) {
		t.Error("first transaction should have been evicted by the later conflicting one")
	}
	if !p.Has(second.Hash()) {
		t.Error("second transaction should now occupy the input")
	}
}

func TestAdd_OrphanParkedThenResolved(t *testing.T) {
	key, addr := testKeyAndAddress(t)
	src := newFakeChainSource()
	op := fundCoin(src, 1000, addr)
	p := New(src, 0)

	funding := signedSpend(t, key, op, 900, addr)
	child := signedSpend(t, key, types.Outpoint{TxID: funding.Hash(), Index: 0}, 800, addr)

	if _, err := p.Add(child); err != ErrOrphan {
		t.Fatalf("Add(child) = %v, want ErrOrphan", err)
	}
	if p.OrphanCount() != 1 {
		t.Fatalf("OrphanCount() = %d, want 1", p.OrphanCount())
	}

	if _, err := p.Add(funding); err != nil {
		t.Fatalf("Add(funding) error: %v", err)
	}
	if p.OrphanCount() != 0 {
		t.Errorf("OrphanCount() after resolution = %d, want 0", p.OrphanCount())
	}
	if !p.Has(child.Hash()) {
		t.Error("child transaction should have been admitted once its parent arrived")
	}
}

func TestAddBlock_RemovesConfirmedTransactions(t *testing.T) {
	key, addr := testKeyAndAddress(t)
	src := newFakeChainSource()
	op := fundCoin(src, 1000, addr)
	p := New(src, 0)
	spend := signedSpend(t, key, op, 900, addr)

	if _, err := p.Add(spend); err != nil {
		t.Fatalf("Add() error: %v", err)
	}

	p.AddBlock(src.height+1, []*tx.Transaction{spend})

	if p.Count() != 0 {
		t.Errorf("Count() after confirmation = %d, want 0", p.Count())
	}
	if p.Has(spend.Hash()) {
		t.Error("confirmed transaction should no longer be pooled")
	}
}

func TestRemoveBlock_ReinsertsDisconnectedTransactions(t *testing.T) {
	key, addr := testKeyAndAddress(t)
	src := newFakeChainSource()
	op := fundCoin(src, 1000, addr)
	p := New(src, 0)
	spend := signedSpend(t, key, op, 900, addr)

	p.RemoveBlock(src.height, []*tx.Transaction{spend})

	if !p.Has(spend.Hash()) {
		t.Error("disconnected transaction should be reinserted into the pool")
	}
}
