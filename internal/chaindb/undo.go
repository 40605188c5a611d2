package chaindb

import (
	"bytes"
	"fmt"
	"io"

	"github.com/btcsuite/btcd/wire"

	"github.com/Klingon-tech/klingnet-chain/internal/coin"
	"github.com/Klingon-tech/klingnet-chain/pkg/types"
)

// undoEntry is the pre-image of one coin a block's connection spent: the
// outpoint it lived at and the coin itself, exactly as it looked the moment
// before the spend. Disconnecting a block replays these in reverse order to
// reconstruct the UTXO set as it stood before the block connected (I4).
type undoEntry struct {
	Outpoint    types.Outpoint
	OutputCount int // total output count of the transaction the coin belonged to
	Coin        *coin.Coin
}

// undoCoinsVersion is the bundle version stamped on the single-output Coins
// wrapper used to serialize each undo entry's coin payload — a distinct
// constant from coins.go's own so a schema change to one doesn't silently
// reinterpret the other.
const undoCoinsVersion = 1

// serializeUndo encodes the coins a block's connection spent (coinbase
// excluded — it has nothing to undo), in the order applyView collected them,
// which follows map iteration rather than the order they were spent.
func serializeUndo(entries []undoEntry) ([]byte, error) {
	var buf bytes.Buffer
	if err := wire.WriteVarInt(&buf, 0, uint64(len(entries))); err != nil {
		return nil, fmt.Errorf("chaindb: write undo count: %w", err)
	}
	for i, e := range entries {
		buf.Write(e.Outpoint.TxID[:])
		if err := binaryWriteUint32(&buf, e.Outpoint.Index); err != nil {
			return nil, fmt.Errorf("chaindb: write undo entry %d index: %w", i, err)
		}
		if err := wire.WriteVarInt(&buf, 0, uint64(e.OutputCount)); err != nil {
			return nil, fmt.Errorf("chaindb: write undo entry %d output count: %w", i, err)
		}
		bundle := &coin.Coins{Version: undoCoinsVersion, Height: e.Coin.Height, Coinbase: e.Coin.Coinbase, Outputs: []*coin.Coin{e.Coin}}
		raw, err := bundle.Serialize()
		if err != nil {
			return nil, fmt.Errorf("chaindb: encode undo entry %d: %w", i, err)
		}
		if err := wire.WriteVarBytes(&buf, 0, raw); err != nil {
			return nil, fmt.Errorf("chaindb: write undo entry %d payload: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}

// deserializeUndo decodes a block's undo record.
func deserializeUndo(data []byte) ([]undoEntry, error) {
	r := bytes.NewReader(data)
	count, err := wire.ReadVarInt(r, 0)
	if err != nil {
		return nil, fmt.Errorf("chaindb: read undo count: %w", err)
	}

	entries := make([]undoEntry, count)
	for i := range entries {
		var op types.Outpoint
		if _, err := io.ReadFull(r, op.TxID[:]); err != nil {
			return nil, fmt.Errorf("chaindb: read undo entry %d txid: %w", i, err)
		}
		idx, err := binaryReadUint32(r)
		if err != nil {
			return nil, fmt.Errorf("chaindb: read undo entry %d index: %w", i, err)
		}
		op.Index = idx

		outputCount, err := wire.ReadVarInt(r, 0)
		if err != nil {
			return nil, fmt.Errorf("chaindb: read undo entry %d output count: %w", i, err)
		}

		raw, err := wire.ReadVarBytes(r, 0, wireMaxUndoEntry, "undo coin")
		if err != nil {
			return nil, fmt.Errorf("chaindb: read undo entry %d payload: %w", i, err)
		}
		bundle, err := coin.Deserialize(raw, 1)
		if err != nil {
			return nil, fmt.Errorf("chaindb: decode undo entry %d: %w", i, err)
		}
		entries[i] = undoEntry{Outpoint: op, OutputCount: int(outputCount), Coin: bundle.Outputs[0]}
	}
	return entries, nil
}

// wireMaxUndoEntry bounds a single undo entry's encoded coin, matching the
// cap coins.go places on an individual script.
const wireMaxUndoEntry = 65536 + 64
