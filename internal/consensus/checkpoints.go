package consensus

import "github.com/Klingon-tech/klingnet-chain/pkg/types"

// Checkpoint pins a known-good block hash at a given height. A node that
// has synced past a checkpoint refuses to reorg below it and skips
// script verification for blocks at or below it, since their validity was
// already established by the rest of the network before the checkpoint
// was published.
type Checkpoint struct {
	Height uint32
	Hash   types.Hash
}

// CheckpointSet is an ordered list of checkpoints for one network.
type CheckpointSet []Checkpoint

// LastBefore returns the highest checkpoint at or below height, or false if
// none applies yet.
func (cs CheckpointSet) LastBefore(height uint32) (Checkpoint, bool) {
	var best Checkpoint
	found := false
	for _, c := range cs {
		if c.Height <= height && (!found || c.Height > best.Height) {
			best = c
			found = true
		}
	}
	return best, found
}

// Verify checks hash against the checkpoint at height, if one is defined.
// Returns true if there is no checkpoint at exactly this height (nothing to
// verify) or if the hash matches; false if a checkpoint exists and
// disagrees.
func (cs CheckpointSet) Verify(height uint32, hash types.Hash) bool {
	for _, c := range cs {
		if c.Height == height {
			return c.Hash == hash
		}
	}
	return true
}

// SkipsScriptVerification reports whether a block at height, guarded by
// checkpoints up to lastCheckpointHeight, can skip script verification —
// still checked for structure and proof of work, per the connection state
// machine's checkpoint rule.
func SkipsScriptVerification(useCheckpoints bool, height, lastCheckpointHeight uint32) bool {
	return useCheckpoints && height <= lastCheckpointHeight
}
