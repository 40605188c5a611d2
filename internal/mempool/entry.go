package mempool

import (
	"time"

	"github.com/Klingon-tech/klingnet-chain/pkg/tx"
	"github.com/Klingon-tech/klingnet-chain/pkg/types"
)

// Entry wraps an admitted transaction with the bookkeeping the admission
// pipeline, eviction, and conflict resolution all need.
type Entry struct {
	Tx              *tx.Transaction
	Hash            types.Hash
	Fee             uint64
	Size            int       // signing-byte length, the fee-rate and policy denominator.
	Rate            float64   // fee per signing byte.
	Height          uint32    // chain height at admission time (candidate next-block height).
	Ps              time.Time // receive time ("ps" per the mempool entry's index list).
	PriorityAtEntry float64   // value*age/size, frozen at admission time.
	ChainValue      uint64    // sum of resolved input values spent by this entry.
	Dependencies    bool      // true if any input spends a still-unconfirmed mempool parent.

	// Count, Sizes, and Fees are package aggregates: this entry plus every
	// currently-pooled descendant. They start equal to the entry's own
	// size/fee and are folded into every ancestor's totals as descendants
	// are admitted or removed, the way ancestorCount already walks the
	// same parent-child edges to bound chain length.
	Count int
	Sizes int
	Fees  uint64
}

func newEntry(t *tx.Transaction, fee uint64, height uint32, ps time.Time, priority float64, chainValue uint64, dependencies bool) *Entry {
	size := len(t.SigningBytes())
	var rate float64
	if size > 0 {
		rate = float64(fee) / float64(size)
	}
	return &Entry{
		Tx:              t,
		Hash:            t.Hash(),
		Fee:             fee,
		Size:            size,
		Rate:            rate,
		Height:          height,
		Ps:              ps,
		PriorityAtEntry: priority,
		ChainValue:      chainValue,
		Dependencies:    dependencies,
		Count:           1,
		Sizes:           size,
		Fees:            fee,
	}
}
