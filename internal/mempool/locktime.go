package mempool

import (
	"fmt"

	"github.com/Klingon-tech/klingnet-chain/internal/coin"
	"github.com/Klingon-tech/klingnet-chain/pkg/tx"
)

// lockTimeThreshold is the boundary below which LockTime is interpreted as
// a block height and above which it's interpreted as a unix timestamp.
const lockTimeThreshold = 500_000_000

// isFinal reports whether t's absolute locktime has already been reached
// at the given candidate height / median-time-past, the check the
// standardness gate runs before anything BIP68-relative.
func isFinal(t *tx.Transaction, height uint32, mtp uint64) bool {
	if t.LockTime == 0 {
		return true
	}
	var cmp uint64
	if uint64(t.LockTime) < lockTimeThreshold {
		cmp = uint64(height)
	} else {
		cmp = mtp
	}
	if uint64(t.LockTime) < cmp {
		return true
	}
	for _, in := range t.Inputs {
		if in.Sequence != tx.SequenceFinal {
			return false
		}
	}
	return true
}

// BIP68 relative-locktime flags, applied to Input.Sequence.
const (
	sequenceLockDisableFlag = 1 << 31
	sequenceLockTypeFlag    = 1 << 22
	sequenceLockMask        = 0x0000ffff
)

// checkSequenceLocks enforces BIP68: a version-2+ transaction's inputs may
// each demand a minimum number of confirmations (or, for time-locked
// sequences, elapsed time) since the coin they spend confirmed. Only the
// height-relative form is checked exactly; a time-relative sequence is
// treated the same way, as a number of blocks since the coin's confirming
// height, since a bare coin carries no record of the confirming block's
// own median time.
func checkSequenceLocks(t *tx.Transaction, height uint32, view *coin.View) error {
	if t.Version < 2 {
		return nil
	}
	var minHeight int64 = -1
	for _, in := range t.Inputs {
		if in.PrevOut.IsZero() {
			continue
		}
		if in.Sequence&sequenceLockDisableFlag != 0 {
			continue
		}
		c, ok := view.Get(in.PrevOut)
		if !ok {
			return fmt.Errorf("sequence lock: input %s unresolved", in.PrevOut)
		}
		inputHeight := int64(c.Height)
		if c.IsUnconfirmed() {
			inputHeight = int64(height)
		}
		// Time-relative sequences (bit 22 set) would need the confirming
		// block's own median time, which a bare coin doesn't carry; both
		// forms are treated as height-relative against the coin's height.
		relative := int64(in.Sequence & sequenceLockMask)
		h := inputHeight + relative - 1
		if h > minHeight {
			minHeight = h
		}
	}
	if minHeight >= int64(height) {
		return reject(KindNonBIP68Final, 0, fmt.Errorf("sequence lock not satisfied: need height > %d, have %d", minHeight, height))
	}
	return nil
}
