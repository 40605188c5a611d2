package coin

import (
	"errors"
	"fmt"
	"sort"

	"github.com/Klingon-tech/klingnet-chain/pkg/tx"
	"github.com/Klingon-tech/klingnet-chain/pkg/types"
)

// ErrCoinNotFound is returned by a Backing when an outpoint has no known coin.
var ErrCoinNotFound = errors.New("coin: not found")

// Backing is the durable lookup a View falls back to once its own overlay
// has been checked; ChainDB (and the mempool's chain-tip snapshot) satisfy it.
type Backing interface {
	GetCoin(outpoint types.Outpoint) (*Coin, error)
}

// View is a block-local (or mempool-local) overlay on top of a Backing coin
// source. Reads check the overlay first, then fall through to Backing; every
// write — add or spend — only ever touches the overlay, so a failed block or
// a rejected transaction can be discarded by dropping the View without
// touching durable state.
type View struct {
	backing Backing
	overlay map[types.Outpoint]*Coin // nil entry marks "spent since view was seeded"
}

// NewView creates a coin view layered on top of backing. backing may be nil
// for a view that only ever operates on coins added directly to it (e.g. a
// single transaction's own outputs feeding its own inputs).
func NewView(backing Backing) *View {
	return &View{backing: backing, overlay: make(map[types.Outpoint]*Coin)}
}

// AddCoin records a single coin at outpoint, overwriting anything already
// held for it in the overlay.
func (v *View) AddCoin(outpoint types.Outpoint, c *Coin) {
	v.overlay[outpoint] = c
}

// Add merges every entry of a decoded Coins bundle for txid into the view.
func (v *View) Add(txid types.Hash, bundle *Coins) {
	for i, c := range bundle.Outputs {
		if c == nil {
			continue
		}
		v.AddCoin(types.Outpoint{TxID: txid, Index: uint32(i)}, c)
	}
}

// AddTx adds every spendable output of a confirmed (or mempool-accepted)
// transaction as a new coin, so later transactions in the same block —
// or later calls against the same view — can spend them without a round
// trip to Backing.
func (v *View) AddTx(t *tx.Transaction, height uint32) {
	txid := t.Hash()
	coinbase := t.IsCoinbase()
	for i, out := range t.Outputs {
		if out.Script.IsUnspendable() {
			continue
		}
		v.AddCoin(types.Outpoint{TxID: txid, Index: uint32(i)}, &Coin{
			Value:    out.Value,
			Script:   out.Script,
			Height:   height,
			Coinbase: coinbase,
		})
	}
}

// Get resolves an outpoint, checking the overlay before falling through to
// Backing. A coin found through Backing is cached in the overlay so repeated
// lookups within the same view don't repeat the trip.
func (v *View) Get(outpoint types.Outpoint) (*Coin, bool) {
	if c, ok := v.overlay[outpoint]; ok {
		return c, c != nil
	}
	if v.backing == nil {
		return nil, false
	}
	c, err := v.backing.GetCoin(outpoint)
	if err != nil {
		return nil, false
	}
	v.overlay[outpoint] = c
	return c, true
}

// Has reports whether outpoint currently resolves to an unspent coin.
func (v *View) Has(outpoint types.Outpoint) bool {
	_, ok := v.Get(outpoint)
	return ok
}

// Spend removes a coin from the view and returns it, marking the outpoint as
// spent so a later Get in the same view (a double-spend within the same
// block) correctly fails rather than falling through to Backing again.
func (v *View) Spend(outpoint types.Outpoint) *Coin {
	c, ok := v.Get(outpoint)
	if !ok {
		return nil
	}
	v.overlay[outpoint] = nil
	return c
}

// FillCoins resolves every non-coinbase input of t into the view, returning
// false if any input cannot be resolved. It does not spend them — callers
// that go on to accept t call Spend explicitly once every check has passed,
// keeping resolution and mutation separable.
func (v *View) FillCoins(t *tx.Transaction) bool {
	for _, in := range t.Inputs {
		if in.PrevOut.IsZero() {
			continue
		}
		if !v.Has(in.PrevOut) {
			return false
		}
	}
	return true
}

// ToArray returns every coin currently visible in the overlay, sorted by
// outpoint so repeated calls over the same view are reproducible in tests.
func (v *View) ToArray() []*Coin {
	outpoints := make([]types.Outpoint, 0, len(v.overlay))
	for op, c := range v.overlay {
		if c != nil {
			outpoints = append(outpoints, op)
		}
	}
	sort.Slice(outpoints, func(i, j int) bool {
		a, b := outpoints[i], outpoints[j]
		if a.TxID != b.TxID {
			return a.TxID.String() < b.TxID.String()
		}
		return a.Index < b.Index
	})

	out := make([]*Coin, len(outpoints))
	for i, op := range outpoints {
		out[i] = v.overlay[op]
	}
	return out
}

// Overlay exposes the view's raw change-set: every outpoint touched since
// creation, with a nil value marking a spend. ChainDB persists exactly this
// set when a block connects — grouping it back into per-tx Coins bundles is
// ChainDB's job, not View's, since View has no notion of a bundle's total
// output count.
func (v *View) Overlay() map[types.Outpoint]*Coin {
	return v.overlay
}

// GetUTXO and HasUTXO satisfy tx.UTXOProvider, letting a View feed
// transaction validation directly.
func (v *View) GetUTXO(outpoint types.Outpoint) (uint64, types.Script, error) {
	c, ok := v.Get(outpoint)
	if !ok {
		return 0, nil, fmt.Errorf("outpoint %s: %w", outpoint, ErrCoinNotFound)
	}
	return c.Value, c.Script, nil
}

func (v *View) HasUTXO(outpoint types.Outpoint) bool {
	return v.Has(outpoint)
}

var _ tx.UTXOProvider = (*View)(nil)
