package chain

import (
	"errors"
	"fmt"

	"github.com/Klingon-tech/klingnet-chain/internal/chainstate"
	"github.com/Klingon-tech/klingnet-chain/internal/chaindb"
	"github.com/Klingon-tech/klingnet-chain/internal/consensus"
	"github.com/Klingon-tech/klingnet-chain/pkg/block"
	"github.com/Klingon-tech/klingnet-chain/pkg/types"
)

// reorganize walks back from both the current tip and to until it finds
// their common ancestor, disconnects every main-chain block above the
// fork, then re-verifies and reconnects every block of the new branch from
// the fork up to to. The whole operation runs under the chain lock, so
// nothing observes an in-between state (§5).
func (c *Chain) reorganize(to *chainstate.Entry, toBlock *block.Block) error {
	tipHash, err := c.db.Tip()
	if err != nil {
		return fmt.Errorf("chain: reorg: read tip: %w", err)
	}
	tipEntry, err := c.db.Get(tipHash)
	if err != nil {
		return fmt.Errorf("chain: reorg: read tip entry: %w", err)
	}

	mainSet := make(map[types.Hash]*chainstate.Entry)
	var oldPath []*chainstate.Entry
	for cur := tipEntry; ; {
		mainSet[cur.Hash] = cur
		oldPath = append(oldPath, cur)
		if cur.Height == 0 {
			break
		}
		parent, err := c.db.Get(cur.PrevHash)
		if err != nil {
			return fmt.Errorf("chain: reorg: walk old chain: %w", err)
		}
		cur = parent
	}

	var newPath []*chainstate.Entry
	cur := to
	for {
		newPath = append(newPath, cur)
		if fork, ok := mainSet[cur.PrevHash]; ok {
			newPath = reverseEntries(newPath)
			return c.applyReorg(fork, oldPath, newPath, to, toBlock, tipHash)
		}
		parent, err := c.db.Get(cur.PrevHash)
		if err != nil {
			return fmt.Errorf("chain: reorg: walk new chain: %w", err)
		}
		cur = parent
	}
}

func (c *Chain) applyReorg(fork *chainstate.Entry, oldPath, newPath []*chainstate.Entry, to *chainstate.Entry, toBlock *block.Block, tipHash types.Hash) error {
	if c.params.UseCheckpoints {
		if last := lastCheckpointHeight(c.params); fork.Height < last {
			return reject(KindReorgDepth, 0, ErrReorgDepthExceeded)
		}
	}

	// to arrives here straight from block processing without having been
	// stored as a side-chain entry; record its entry, block and height index
	// first, since Reconnect and ReconnectPointerOnly write only the
	// main-chain pointers.
	if err := c.db.Save(to, toBlock, nil, false); err != nil {
		return fmt.Errorf("chain: reorg: store new tip %s: %w", to.Hash, err)
	}

	if err := c.db.PutReorgCheckpoint(chaindb.ReorgCheckpoint{
		OldTip:     tipHash,
		ForkHash:   fork.Hash,
		NewTip:     to.Hash,
		ForkHeight: fork.Height,
	}); err != nil {
		return fmt.Errorf("chain: reorg: record checkpoint: %w", err)
	}

	rebuildNeeded := false
	for _, e := range oldPath {
		if e.Height <= fork.Height {
			break
		}
		blk, err := c.db.GetBlock(e.Hash)
		if errors.Is(err, chaindb.ErrNotFound) {
			// The old branch's block (or its undo record) has already been
			// pruned; unwind the pointers only and rebuild the coin set
			// from genesis once both branches have been walked.
			if err := c.db.DisconnectPointerOnly(e); err != nil {
				return fmt.Errorf("chain: reorg: disconnect pruned %s: %w", e.Hash, err)
			}
			rebuildNeeded = true
			chainLog.Warn().Uint32("height", e.Height).Str("hash", e.Hash.String()).
				Msg("disconnecting pruned block, utxo set will be rebuilt")
			continue
		}
		if err != nil {
			return fmt.Errorf("chain: reorg: load old block %s: %w", e.Hash, err)
		}
		if err := c.db.Disconnect(e); err != nil {
			return fmt.Errorf("chain: reorg: disconnect %s: %w", e.Hash, err)
		}
		chainLog.Debug().Uint32("height", e.Height).Str("hash", e.Hash.String()).Msg("block disconnected")
		c.notifier.OnDisconnect(e, blk)
	}

	skipHeight := lastCheckpointHeight(c.params)
	for _, e := range newPath {
		var blk *block.Block
		if e.Hash == to.Hash {
			blk = toBlock
		} else {
			b, err := c.db.GetBlock(e.Hash)
			if err != nil {
				return fmt.Errorf("chain: reorg: load new block %s: %w", e.Hash, err)
			}
			blk = b
		}

		if rebuildNeeded {
			// The coin set is already known stale from the pruned-disconnect
			// path above; re-verifying against it would see a fork-side
			// snapshot that fits neither branch. These blocks were already
			// fully validated the first time they connected as a side
			// chain, so just fast-forward the pointers and let the rebuild
			// pass reconstruct the coin set once every pointer is in place.
			if err := c.db.ReconnectPointerOnly(e); err != nil {
				return fmt.Errorf("chain: reorg: reconnect pruned %s: %w", e.Hash, err)
			}
			chainLog.Debug().Uint32("height", e.Height).Str("hash", e.Hash.String()).Msg("block reconnected (pointer only)")
			c.notifier.OnBlock(e, blk)
			c.notifier.OnConnect(e, blk)
			continue
		}

		// GetUndoView seeds the view from e's own undo record when one
		// exists — the case a block reconnects after previously having
		// been connected and disconnected itself, where current chain
		// state may have since spent one of its inputs again on the
		// branch that just lost. A block connecting for the first time
		// has no undo record yet and this falls back to a plain view.
		view, err := c.db.GetUndoView(blk)
		if err != nil {
			return fmt.Errorf("chain: reorg: undo view for %s: %w", e.Hash, err)
		}
		skipScripts := consensus.SkipsScriptVerification(c.params.UseCheckpoints, e.Height, skipHeight)
		if err := verifyAndApplyBlock(view, blk, e.Height, c.params.CoinbaseMaturity, skipScripts); err != nil {
			return fmt.Errorf("chain: reorg re-verify %s: %w", e.Hash, err)
		}
		if err := c.db.Reconnect(e, blk, view); err != nil {
			return fmt.Errorf("chain: reorg: reconnect %s: %w", e.Hash, err)
		}
		chainLog.Debug().Uint32("height", e.Height).Str("hash", e.Hash.String()).Msg("block reconnected")
		c.notifier.OnBlock(e, blk)
		c.notifier.OnConnect(e, blk)
	}

	if rebuildNeeded {
		if err := c.db.RebuildUTXOs(); err != nil {
			return fmt.Errorf("chain: reorg: rebuild utxos: %w", err)
		}
	}

	if err := c.db.ClearReorgCheckpoint(); err != nil {
		return fmt.Errorf("chain: reorg: clear checkpoint: %w", err)
	}

	c.notifier.OnReorg(tipHash, to.Hash)
	return nil
}

func reverseEntries(entries []*chainstate.Entry) []*chainstate.Entry {
	for i, j := 0, len(entries)-1; i < j; i, j = i+1, j-1 {
		entries[i], entries[j] = entries[j], entries[i]
	}
	return entries
}
