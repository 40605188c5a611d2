package chaindb

import (
	"encoding/binary"
	"fmt"

	"github.com/Klingon-tech/klingnet-chain/internal/coin"
	"github.com/Klingon-tech/klingnet-chain/internal/log"
	"github.com/Klingon-tech/klingnet-chain/pkg/types"
)

// ReorgCheckpoint marks a reorganization in flight: the tip being abandoned,
// the fork point both branches share, and the tip being adopted. Chain
// writes one before it starts disconnecting the old branch and clears it
// once the new branch is fully reconnected, so a crash midway through is
// visible the next time the database is opened (I4).
type ReorgCheckpoint struct {
	OldTip     types.Hash
	ForkHash   types.Hash
	NewTip     types.Hash
	ForkHeight uint32
}

func encodeReorgCheckpoint(cp ReorgCheckpoint) []byte {
	buf := make([]byte, types.HashSize*3+4)
	copy(buf, cp.OldTip[:])
	copy(buf[types.HashSize:], cp.ForkHash[:])
	copy(buf[types.HashSize*2:], cp.NewTip[:])
	binary.BigEndian.PutUint32(buf[types.HashSize*3:], cp.ForkHeight)
	return buf
}

func decodeReorgCheckpoint(data []byte) (ReorgCheckpoint, error) {
	if len(data) != types.HashSize*3+4 {
		return ReorgCheckpoint{}, fmt.Errorf("chaindb: corrupt reorg checkpoint: %d bytes", len(data))
	}
	var cp ReorgCheckpoint
	copy(cp.OldTip[:], data[:types.HashSize])
	copy(cp.ForkHash[:], data[types.HashSize:types.HashSize*2])
	copy(cp.NewTip[:], data[types.HashSize*2:types.HashSize*3])
	cp.ForkHeight = binary.BigEndian.Uint32(data[types.HashSize*3:])
	return cp, nil
}

// PutReorgCheckpoint durably records that a reorg touching the given
// branches is starting. It is committed on its own, ahead of any
// disconnect/reconnect writes, so it is visible even if the process dies
// before the first block of the reorg finishes applying.
func (cdb *ChainDB) PutReorgCheckpoint(cp ReorgCheckpoint) error {
	return cdb.db.Put(prefixReorgCheckpoint, encodeReorgCheckpoint(cp))
}

// GetReorgCheckpoint returns the in-flight checkpoint, if one is recorded.
func (cdb *ChainDB) GetReorgCheckpoint() (ReorgCheckpoint, bool, error) {
	has, err := cdb.db.Has(prefixReorgCheckpoint)
	if err != nil || !has {
		return ReorgCheckpoint{}, false, err
	}
	data, err := cdb.db.Get(prefixReorgCheckpoint)
	if err != nil {
		return ReorgCheckpoint{}, false, err
	}
	cp, err := decodeReorgCheckpoint(data)
	if err != nil {
		return ReorgCheckpoint{}, false, err
	}
	return cp, true, nil
}

// ClearReorgCheckpoint removes the in-flight marker once a reorg has fully
// committed.
func (cdb *ChainDB) ClearReorgCheckpoint() error {
	return cdb.db.Delete(prefixReorgCheckpoint)
}

// RebuildUTXOs discards the entire coin set and replays every main-chain
// block from genesis to the current tip to reconstruct it from scratch. It
// is the fallback used when a reorg is interrupted mid-flight and the undo
// data needed to unwind the abandoned branch cleanly has already been
// pruned — rather than fail, the node pays the cost of a full rescan once.
func (cdb *ChainDB) RebuildUTXOs() error {
	tipHash, err := cdb.Tip()
	if err != nil {
		return fmt.Errorf("chaindb: rebuild utxos: %w", err)
	}
	tipEntry, err := cdb.Get(tipHash)
	if err != nil {
		return fmt.Errorf("chaindb: rebuild utxos: %w", err)
	}

	var coinKeys [][]byte
	if err := cdb.db.ForEach(prefixCoins, func(k, _ []byte) error {
		coinKeys = append(coinKeys, append([]byte{}, k...))
		return nil
	}); err != nil {
		return fmt.Errorf("chaindb: rebuild utxos: list existing coins: %w", err)
	}
	wipe := cdb.newBatch()
	for _, k := range coinKeys {
		if err := wipe.Delete(k); err != nil {
			return fmt.Errorf("chaindb: rebuild utxos: wipe coins: %w", err)
		}
	}
	if err := wipe.Commit(); err != nil {
		return fmt.Errorf("chaindb: rebuild utxos: wipe coins: %w", err)
	}
	cdb.coins.Clear()

	for height := uint32(0); height <= tipEntry.Height; height++ {
		entry, err := cdb.GetByHeight(height)
		if err != nil {
			return fmt.Errorf("chaindb: rebuild utxos: entry at height %d: %w", height, err)
		}
		blk, err := cdb.GetBlock(entry.Hash)
		if err != nil {
			return fmt.Errorf("chaindb: rebuild utxos: block at height %d: %w", height, err)
		}

		view := coin.NewView(cdb)
		for _, t := range blk.Transactions {
			if !t.IsCoinbase() {
				for _, in := range t.Inputs {
					view.Spend(in.PrevOut)
				}
			}
			view.AddTx(t, height)
		}

		batch := cdb.newBatch()
		if _, err := cdb.applyView(batch, blk, view, height); err != nil {
			return fmt.Errorf("chaindb: rebuild utxos: apply block at height %d: %w", height, err)
		}
		if err := batch.Commit(); err != nil {
			return fmt.Errorf("chaindb: rebuild utxos: commit block at height %d: %w", height, err)
		}
	}

	log.ChainDB.Warn().Uint32("height", tipEntry.Height).Msg("rebuilt utxo set from genesis")
	return nil
}
