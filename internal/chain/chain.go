// Package chain implements the block connection state machine: receiving a
// header-and-body pair, resolving its parent, running contextual checks,
// and deciding whether it extends the main chain, opens or extends a side
// chain, or triggers a reorganization. It owns no storage of its own —
// every durable fact goes through chaindb.ChainDB — and no opinion about
// which peer sent a block or how it arrived.
package chain

import (
	"fmt"
	"sync"

	"github.com/Klingon-tech/klingnet-chain/internal/chaindb"
	"github.com/Klingon-tech/klingnet-chain/internal/chainstate"
	"github.com/Klingon-tech/klingnet-chain/internal/coin"
	"github.com/Klingon-tech/klingnet-chain/internal/log"
	"github.com/Klingon-tech/klingnet-chain/pkg/block"
	"github.com/Klingon-tech/klingnet-chain/pkg/tx"
	"github.com/Klingon-tech/klingnet-chain/pkg/types"
)

// Notifier is the external event sink a peer pool, wallet, or miner
// registers to observe chain activity. All calls happen with the chain
// lock held, in the order §5 mandates: block/connect pairs for a plain
// extension, then during a reorg the full disconnect run followed by the
// full connect run, then a single reorg call.
type Notifier interface {
	OnBlock(entry *chainstate.Entry, blk *block.Block)
	OnConnect(entry *chainstate.Entry, blk *block.Block)
	OnDisconnect(entry *chainstate.Entry, blk *block.Block)
	OnReorg(oldTip, newTip types.Hash)
}

// NopNotifier discards every event; useful for tests and callers that
// don't need to observe chain activity.
type NopNotifier struct{}

func (NopNotifier) OnBlock(*chainstate.Entry, *block.Block)      {}
func (NopNotifier) OnConnect(*chainstate.Entry, *block.Block)    {}
func (NopNotifier) OnDisconnect(*chainstate.Entry, *block.Block) {}
func (NopNotifier) OnReorg(types.Hash, types.Hash)               {}

// Chain drives block connection over a ChainDB. A single mutex serializes
// every mutating call, matching §5's single-worker model: the lock is held
// across an entire connect or disconnect, including transaction
// verification, so no observer ever sees a half-applied block.
type Chain struct {
	mu       sync.Mutex
	db       *chaindb.ChainDB
	params   Params
	notifier Notifier

	orphans map[types.Hash]*block.Block   // orphan hash -> block, keyed by the orphan's own hash
	waiting map[types.Hash][]types.Hash   // missing prev hash -> orphan hashes parked on it
}

// New wires a Chain on top of an already-open ChainDB.
func New(db *chaindb.ChainDB, params Params, notifier Notifier) *Chain {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	return &Chain{
		db:       db,
		params:   params,
		notifier: notifier,
		orphans:  make(map[types.Hash]*block.Block),
		waiting:  make(map[types.Hash][]types.Hash),
	}
}

// Tip returns the current main-chain tip entry.
func (c *Chain) Tip() (*chainstate.Entry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tipLocked()
}

func (c *Chain) tipLocked() (*chainstate.Entry, error) {
	hash, err := c.db.Tip()
	if err != nil {
		return nil, err
	}
	return c.db.Get(hash)
}

// GetBlock retrieves a block by hash, main chain or side chain.
func (c *Chain) GetBlock(hash types.Hash) (*block.Block, error) {
	return c.db.GetBlock(hash)
}

// GetTransaction looks up a confirmed transaction by scanning the block it
// was mined in. ChainDB carries no separate transaction index (§4.1
// reserves that to an optional wallet-facing layer), so this walks the
// block once its hash is known through some other channel — callers that
// need a hash-only lookup should keep their own index.
func (c *Chain) GetTransaction(blockHash, txHash types.Hash) (*tx.Transaction, error) {
	blk, err := c.db.GetBlock(blockHash)
	if err != nil {
		return nil, err
	}
	for _, t := range blk.Transactions {
		if t.Hash() == txHash {
			return t, nil
		}
	}
	return nil, fmt.Errorf("tx %s not found in block %s", txHash, blockHash)
}

// GetCoin exposes the chain database's UTXO lookup so a mempool can resolve
// inputs against confirmed state without holding its own ChainDB reference.
func (c *Chain) GetCoin(outpoint types.Outpoint) (*coin.Coin, error) {
	return c.db.GetCoin(outpoint)
}

// MedianTime returns the median-time-past of the current tip, the same
// value contextualChecks uses to gate a candidate block's own timestamp;
// a mempool uses it to decide whether a transaction's locktime has expired.
func (c *Chain) MedianTime() (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	tip, err := c.tipLocked()
	if err != nil {
		return 0, err
	}
	ancestors, err := chainstate.GetAncestors(c.db, tip, chainstate.MedianTimeSpan)
	if err != nil {
		return 0, err
	}
	return chainstate.GetMedianTime(ancestors), nil
}

// OrphanCount reports how many blocks are currently parked waiting on an
// unseen parent — a back-pressure signal, not an error (§7).
func (c *Chain) OrphanCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.orphans)
}

var chainLog = log.Chain
