package chain

import (
	"github.com/Klingon-tech/klingnet-chain/pkg/block"
	"github.com/Klingon-tech/klingnet-chain/pkg/types"
)

// parkOrphan records blk, keyed by its own hash, and indexes it under the
// parent it's waiting on. Both maps are cleared together when the block is
// re-entered by resolveOrphans, so a block can never be parked twice.
func (c *Chain) parkOrphan(blk *block.Block) error {
	if len(c.orphans) >= MaxOrphanBlocks {
		return ErrOrphanPoolFull
	}
	hash := blk.Hash()
	c.orphans[hash] = blk
	prev := blk.Header.PrevHash
	c.waiting[prev] = append(c.waiting[prev], hash)
	return nil
}

// resolveOrphans re-enters every orphan waiting on newlyKnown at step 3 of
// the state machine, recursively unlocking any orphan chained off of them.
func (c *Chain) resolveOrphans(newlyKnown types.Hash) {
	ready := c.waiting[newlyKnown]
	if len(ready) == 0 {
		return
	}
	delete(c.waiting, newlyKnown)

	for _, hash := range ready {
		blk, ok := c.orphans[hash]
		if !ok {
			continue
		}
		delete(c.orphans, hash)
		if err := c.processBlockLocked(blk); err != nil {
			chainLog.Warn().Str("hash", hash.String()).Err(err).Msg("orphan re-entry failed")
		}
	}
}
