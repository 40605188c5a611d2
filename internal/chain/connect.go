package chain

import (
	"fmt"

	"github.com/Klingon-tech/klingnet-chain/internal/chainstate"
	"github.com/Klingon-tech/klingnet-chain/internal/coin"
	"github.com/Klingon-tech/klingnet-chain/internal/consensus"
	"github.com/Klingon-tech/klingnet-chain/pkg/block"
	"github.com/Klingon-tech/klingnet-chain/pkg/tx"
	"github.com/Klingon-tech/klingnet-chain/pkg/types"
)

// ProcessBlock runs a received block through the connection state machine:
// receive -> resolve prev -> contextual checks -> construct entry -> choose
// branch. A block whose parent is unknown is parked as an orphan and
// re-entered automatically once that parent becomes known.
func (c *Chain) ProcessBlock(blk *block.Block) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.processBlockLocked(blk)
}

func (c *Chain) processBlockLocked(blk *block.Block) error {
	if blk == nil || blk.Header == nil {
		return fmt.Errorf("chain: nil block or header")
	}
	hash := blk.Hash()

	// 1. Receive: reject anything already known, verify proof of work.
	if _, err := c.db.Get(hash); err == nil {
		return reject(KindKnown, 0, ErrBlockKnown)
	}
	if err := consensus.VerifyHeader(blk.Header, c.params.PowLimit); err != nil {
		return reject(KindBadPoW, 100, fmt.Errorf("%w: %v", ErrBadPoW, err))
	}

	// 2. Resolve prev.
	prevEntry, err := c.db.Get(blk.Header.PrevHash)
	if err != nil {
		if err := c.parkOrphan(blk); err != nil {
			return err
		}
		return reject(KindOrphan, 0, ErrOrphan)
	}

	if err := c.acceptKnownParent(blk, hash, prevEntry); err != nil {
		return err
	}

	// Orphan resolution: anything waiting on this hash can now proceed.
	c.resolveOrphans(hash)
	return nil
}

// acceptKnownParent runs steps 3-5 once prevEntry is resolved: contextual
// checks, entry construction, and branch selection.
func (c *Chain) acceptKnownParent(blk *block.Block, hash types.Hash, prevEntry *chainstate.Entry) error {
	if err := c.contextualChecks(blk, prevEntry); err != nil {
		return err
	}

	entry := chainstate.FromBlock(blk.Header, prevEntry)

	if last, ok := c.params.Checkpoints.LastBefore(entry.Height); ok {
		if entry.Height == last.Height && last.Hash != hash {
			return reject(KindBadCheckpoint, 100, fmt.Errorf("%w: height %d", ErrBadCheckpoint, entry.Height))
		}
	}

	tip, err := c.tipLocked()
	if err != nil {
		return fmt.Errorf("chain: read tip: %w", err)
	}

	if entry.Chainwork.Cmp(tip.Chainwork) <= 0 {
		// Side chain: record it but don't connect.
		return c.db.Save(entry, blk, coin.NewView(nil), false)
	}

	if entry.PrevHash == tip.Hash {
		return c.connect(entry, blk)
	}
	return c.reorganize(entry, blk)
}

// contextualChecks verifies timestamp ordering, the retarget rule, and
// version-majority thresholds against prevEntry's ancestry.
func (c *Chain) contextualChecks(blk *block.Block, prevEntry *chainstate.Entry) error {
	ancestors, err := chainstate.GetAncestors(c.db, prevEntry, chainstate.MedianTimeSpan)
	if err != nil {
		return err
	}
	mtp := chainstate.GetMedianTime(ancestors)
	if blk.Header.Timestamp <= mtp {
		return reject(KindBadTimestamp, 100, fmt.Errorf("%w: timestamp %d, median %d", ErrBadTimestamp, blk.Header.Timestamp, mtp))
	}

	height := prevEntry.Height + 1
	var intervalStart, intervalEnd uint64
	if c.params.RetargetInterval > 0 && height%c.params.RetargetInterval == 0 {
		intervalEnd = prevEntry.Header.Timestamp
		startHeight := height - c.params.RetargetInterval
		startEntry, err := c.db.GetByHeight(startHeight)
		if err != nil {
			return fmt.Errorf("chain: retarget window start at height %d: %w", startHeight, err)
		}
		intervalStart = startEntry.Header.Timestamp
	}
	if err := consensus.VerifyRetarget(blk.Header, height, prevEntry.Header.Bits, c.params.RetargetParams, intervalStart, intervalEnd); err != nil {
		return reject(KindBadRetarget, 100, fmt.Errorf("%w: %v", ErrBadRetarget, err))
	}

	if c.params.MajorityWindow > 0 && (c.params.MajorityEnforceUpgrade > 0 || c.params.MajorityRejectOutdated > 0) {
		window, err := chainstate.GetAncestors(c.db, prevEntry, c.params.MajorityWindow)
		if err != nil {
			return err
		}
		// Once enough of the window already signals the next version, a
		// block still on the old one is refused outright — enforcement
		// trips at a lower majority than the harder rejection below.
		if c.params.MajorityEnforceUpgrade > 0 && chainstate.IsSuperMajority(blk.Header.Version+1, c.params.MajorityEnforceUpgrade, window) {
			return reject(KindBadVersion, 0, fmt.Errorf("%w: version %d has not upgraded past the network's enforced majority", ErrBadVersion, blk.Header.Version))
		}
		// A block signaling a version below the current majority is
		// rejected once enough of the network has already upgraded.
		if c.params.MajorityRejectOutdated > 0 && chainstate.IsSuperMajority(blk.Header.Version+1, c.params.MajorityRejectOutdated, window) {
			return reject(KindBadVersion, 0, fmt.Errorf("%w: version %d is outdated relative to network majority", ErrBadVersion, blk.Header.Version))
		}
	}
	return nil
}

// connect applies entry's block directly on top of the current tip: build
// a coin view from the block's own prevouts, verify every non-coinbase
// transaction, apply the view, and persist atomically.
func (c *Chain) connect(entry *chainstate.Entry, blk *block.Block) error {
	view := coin.NewView(c.db)
	skipScripts := consensus.SkipsScriptVerification(c.params.UseCheckpoints, entry.Height, lastCheckpointHeight(c.params))

	if err := verifyAndApplyBlock(view, blk, entry.Height, c.params.CoinbaseMaturity, skipScripts); err != nil {
		return fmt.Errorf("chain: connect %s: %w", entry.Hash, err)
	}

	if err := c.db.Save(entry, blk, view, true); err != nil {
		return fmt.Errorf("chain: save connected block: %w", err)
	}

	chainLog.Debug().Uint32("height", entry.Height).Str("hash", entry.Hash.String()).Msg("block connected")
	c.notifier.OnBlock(entry, blk)
	c.notifier.OnConnect(entry, blk)
	return nil
}

func lastCheckpointHeight(p Params) uint32 {
	var last uint32
	for _, cp := range p.Checkpoints {
		if cp.Height > last {
			last = cp.Height
		}
	}
	return last
}

// MaxBlockSigOpsCost bounds the total signature-operation cost a connecting
// block may carry across its coinbase and every transaction, counted from
// each output script (and, for spends, the resolved previous output
// script) once per input and output touched.
const MaxBlockSigOpsCost = 80_000

// verifyAndApplyBlock resolves and validates every non-coinbase transaction
// against view, spending each one's inputs in view as soon as it checks out,
// then adds every transaction's outputs once the last one has. A
// verification failure can leave view holding the spends of the transactions
// before the failing one; callers drop the view on error, and disk is
// untouched since Save has not been called.
func verifyAndApplyBlock(view *coin.View, blk *block.Block, height uint32, coinbaseMaturity uint32, skipScripts bool) error {
	if len(blk.Transactions) == 0 {
		return fmt.Errorf("block has no transactions")
	}
	coinbase := blk.Transactions[0]
	if !coinbase.IsCoinbase() {
		return reject(KindBadCoinbase, 100, ErrBadCoinbase)
	}

	sigOpsCost := coinbase.SigOpsCost()

	for i, t := range blk.Transactions {
		if i == 0 {
			continue
		}
		if t.IsCoinbase() {
			return reject(KindBadCoinbase, 100, fmt.Errorf("%w: tx %d carries a coinbase input", ErrBadCoinbase, i))
		}
		if !view.FillCoins(t) {
			return fmt.Errorf("tx %d: unresolved input", i)
		}
		if err := checkCoinbaseMaturity(view, t, height, coinbaseMaturity); err != nil {
			return reject(KindImmatureSpend, 100, err)
		}

		cost, err := t.SigOpsCostWithUTXOs(view)
		if err != nil {
			return fmt.Errorf("tx %d: %w", i, err)
		}
		sigOpsCost += cost
		if sigOpsCost > MaxBlockSigOpsCost {
			return reject(KindTooManySigOps, 100, fmt.Errorf("%w: %d after tx %d", ErrTooManySigOps, sigOpsCost, i))
		}

		if !skipScripts {
			if _, err := t.ValidateWithUTXOs(view); err != nil {
				return reject(KindTxValidation, 100, fmt.Errorf("%w: tx %d: %v", ErrTxValidation, i, err))
			}
		}
		for _, in := range t.Inputs {
			view.Spend(in.PrevOut)
		}
	}

	for _, t := range blk.Transactions {
		view.AddTx(t, height)
	}
	return nil
}

// checkCoinbaseMaturity rejects any input that spends a coinbase output
// fewer than maturity confirmations old.
func checkCoinbaseMaturity(view *coin.View, t *tx.Transaction, height uint32, maturity uint32) error {
	for _, in := range t.Inputs {
		if in.PrevOut.IsZero() {
			continue
		}
		c, ok := view.Get(in.PrevOut)
		if !ok || !c.Coinbase {
			continue
		}
		if height-c.Height < maturity {
			return fmt.Errorf("%w: output at height %d needs %d confirmations, have %d",
				ErrCoinbaseImmature, c.Height, maturity, height-c.Height)
		}
	}
	return nil
}
