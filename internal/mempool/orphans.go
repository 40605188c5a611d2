package mempool

import (
	"math/rand"

	"github.com/Klingon-tech/klingnet-chain/pkg/tx"
	"github.com/Klingon-tech/klingnet-chain/pkg/types"
)

// MaxOrphanTx bounds the orphan pool; once full, admitting a new orphan
// evicts a uniformly random victim rather than the pipeline rejecting it
// outright, matching §4.6 step 6.
const MaxOrphanTx = 100

// orphanPool holds transactions parked on an unresolved input, indexed both
// by their own hash and by every prevout txid they're still waiting on.
type orphanPool struct {
	txs     map[types.Hash]*tx.Transaction
	waiting map[types.Hash][]types.Hash
}

func newOrphanPool() *orphanPool {
	return &orphanPool{
		txs:     make(map[types.Hash]*tx.Transaction),
		waiting: make(map[types.Hash][]types.Hash),
	}
}

// missingInputs returns the set of prevout txids t depends on that view
// cannot currently resolve.
func missingInputs(t *tx.Transaction, resolved func(types.Outpoint) bool) []types.Hash {
	seen := make(map[types.Hash]bool)
	var missing []types.Hash
	for _, in := range t.Inputs {
		if in.PrevOut.IsZero() || resolved(in.PrevOut) {
			continue
		}
		if !seen[in.PrevOut.TxID] {
			seen[in.PrevOut.TxID] = true
			missing = append(missing, in.PrevOut.TxID)
		}
	}
	return missing
}

func (o *orphanPool) add(t *tx.Transaction, missing []types.Hash) {
	if len(o.txs) >= MaxOrphanTx {
		o.evictRandom()
	}
	hash := t.Hash()
	o.txs[hash] = t
	for _, prev := range missing {
		o.waiting[prev] = append(o.waiting[prev], hash)
	}
}

func (o *orphanPool) evictRandom() {
	if len(o.txs) == 0 {
		return
	}
	victims := make([]types.Hash, 0, len(o.txs))
	for h := range o.txs {
		victims = append(victims, h)
	}
	o.remove(victims[rand.Intn(len(victims))])
}

func (o *orphanPool) remove(hash types.Hash) {
	t, ok := o.txs[hash]
	if !ok {
		return
	}
	delete(o.txs, hash)
	for _, in := range t.Inputs {
		waiters := o.waiting[in.PrevOut.TxID]
		for i, h := range waiters {
			if h == hash {
				o.waiting[in.PrevOut.TxID] = append(waiters[:i], waiters[i+1:]...)
				break
			}
		}
		if len(o.waiting[in.PrevOut.TxID]) == 0 {
			delete(o.waiting, in.PrevOut.TxID)
		}
	}
}

// ready returns every orphan waiting on newlyKnown and fully removes it
// from the pool (including any other prevout it was also parked under),
// for the caller to re-run through step 7 of the admission pipeline.
func (o *orphanPool) ready(newlyKnown types.Hash) []*tx.Transaction {
	waiting := o.waiting[newlyKnown]
	if len(waiting) == 0 {
		return nil
	}
	hashes := append([]types.Hash(nil), waiting...)
	out := make([]*tx.Transaction, 0, len(hashes))
	for _, h := range hashes {
		if t, ok := o.txs[h]; ok {
			out = append(out, t)
			o.remove(h)
		}
	}
	return out
}

func (o *orphanPool) count() int { return len(o.txs) }
