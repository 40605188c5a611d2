// Package chaindb is the persistent store behind the chain state machine:
// headers positioned in the chain (ChainEntry records), raw blocks, the
// compressed unspent-output set, and the undo records that let a connected
// block be unwound during a reorg. Everything above this package —
// connection, disconnection, reorganization — treats it as the single
// source of truth for what has been durably committed; nothing here decides
// which chain is the main one, it only records what Chain tells it to.
package chaindb

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/Klingon-tech/klingnet-chain/internal/chainstate"
	"github.com/Klingon-tech/klingnet-chain/internal/coin"
	"github.com/Klingon-tech/klingnet-chain/internal/log"
	"github.com/Klingon-tech/klingnet-chain/internal/storage"
	"github.com/Klingon-tech/klingnet-chain/pkg/block"
	"github.com/Klingon-tech/klingnet-chain/pkg/types"
)

// ErrNotFound is returned when a hash, height or txid has no known record.
var ErrNotFound = errors.New("chaindb: not found")

// defaultCoinCacheSize is used when Options.CoinCacheSize is left at zero.
const defaultCoinCacheSize = 100_000

// coinsBundleVersion stamps every bundle ChainDB itself constructs (as
// opposed to one decoded off the wire, which carries its own stored
// version). Kept distinct from internal/coin's own constant so a future
// change to either doesn't silently reinterpret the other.
const coinsBundleVersion = 1

// Options configures a newly opened ChainDB.
type Options struct {
	// RetargetInterval sizes the entry cache (see entryCacheSize) and has
	// no other effect here — it is the network's retarget interval, not a
	// ChainDB-owned constant.
	RetargetInterval uint32
	CoinCacheSize    int
	Prune            bool
	PruneAfterHeight uint32
	KeepBlocks       uint32
}

// ChainDB is the persistent key/value store described by the chain
// database's key schema, backed by any storage.DB implementation.
type ChainDB struct {
	db      storage.DB
	entries *EntryCache
	coins   *CoinCache
	opts    Options
}

// Open opens db as a ChainDB. If db has no recorded tip yet, genesis is
// written as the chain's first entry at height 0; genesis must be non-nil
// in that case.
func Open(db storage.DB, genesis *block.Block, opts Options) (*ChainDB, error) {
	if opts.CoinCacheSize <= 0 {
		opts.CoinCacheSize = defaultCoinCacheSize
	}
	cdb := &ChainDB{
		db:      db,
		entries: NewEntryCache(opts.RetargetInterval),
		coins:   NewCoinCache(opts.CoinCacheSize),
		opts:    opts,
	}

	hasTip, err := db.Has(prefixTip)
	if err != nil {
		return nil, fmt.Errorf("chaindb: open: %w", err)
	}
	if hasTip {
		if cp, found, err := cdb.GetReorgCheckpoint(); err != nil {
			return nil, fmt.Errorf("chaindb: open: read reorg checkpoint: %w", err)
		} else if found {
			log.ChainDB.Warn().
				Str("old_tip", cp.OldTip.String()).
				Str("new_tip", cp.NewTip.String()).
				Uint32("fork_height", cp.ForkHeight).
				Msg("found in-flight reorg checkpoint from a previous run, rebuilding utxo set")
			if err := cdb.RebuildUTXOs(); err != nil {
				return nil, fmt.Errorf("chaindb: open: recover from interrupted reorg: %w", err)
			}
			if err := cdb.ClearReorgCheckpoint(); err != nil {
				return nil, fmt.Errorf("chaindb: open: clear reorg checkpoint: %w", err)
			}
		}
		log.ChainDB.Info().Bool("prune", opts.Prune).Msg("opened existing chain database")
		return cdb, nil
	}
	if genesis == nil {
		return nil, fmt.Errorf("chaindb: no chain state on disk and no genesis block provided")
	}

	entry := chainstate.FromBlock(genesis.Header, nil)
	view := coin.NewView(nil)
	for _, t := range genesis.Transactions {
		view.AddTx(t, 0)
	}
	if err := cdb.Save(entry, genesis, view, true); err != nil {
		return nil, fmt.Errorf("chaindb: write genesis: %w", err)
	}
	log.ChainDB.Info().Str("genesis", entry.Hash.String()).Msg("initialized chain database from genesis")
	return cdb, nil
}

// Tip returns the current main-chain tip hash.
func (cdb *ChainDB) Tip() (types.Hash, error) {
	data, err := cdb.db.Get(prefixTip)
	if err != nil {
		return types.Hash{}, fmt.Errorf("%w: tip", ErrNotFound)
	}
	var h types.Hash
	copy(h[:], data)
	return h, nil
}

// Get returns the entry for hash, consulting the entry cache first.
func (cdb *ChainDB) Get(hash types.Hash) (*chainstate.Entry, error) {
	if e, ok := cdb.entries.Get(hash); ok {
		return e, nil
	}
	data, err := cdb.db.Get(entryKey(hash))
	if err != nil {
		return nil, fmt.Errorf("%w: entry %s", ErrNotFound, hash)
	}
	e, err := decodeEntry(data)
	if err != nil {
		return nil, err
	}
	cdb.entries.Add(e, false)
	return e, nil
}

// GetEntry satisfies chainstate.AncestorSource.
func (cdb *ChainDB) GetEntry(hash types.Hash) (*chainstate.Entry, error) {
	return cdb.Get(hash)
}

// GetByHeight returns the main-chain entry at height.
func (cdb *ChainDB) GetByHeight(height uint32) (*chainstate.Entry, error) {
	if e, ok := cdb.entries.GetByHeight(height); ok {
		return e, nil
	}
	hashBytes, err := cdb.db.Get(hashAtKey(height))
	if err != nil {
		return nil, fmt.Errorf("%w: height %d", ErrNotFound, height)
	}
	var hash types.Hash
	copy(hash[:], hashBytes)
	e, err := cdb.Get(hash)
	if err != nil {
		return nil, err
	}
	cdb.entries.Add(e, true)
	return e, nil
}

// IsMainChain reports whether hash is the hash recorded at its own height on
// the main chain (equivalently, whether it is an ancestor of the tip).
func (cdb *ChainDB) IsMainChain(hash types.Hash) (bool, error) {
	if tip, err := cdb.Tip(); err == nil && tip == hash {
		return true, nil
	}
	heightBytes, err := cdb.db.Get(heightOfKey(hash))
	if err != nil {
		return false, nil
	}
	height := binary.BigEndian.Uint32(heightBytes)
	atHash, err := cdb.db.Get(hashAtKey(height))
	if err != nil {
		return false, nil
	}
	var h types.Hash
	copy(h[:], atHash)
	return h == hash, nil
}

// GetBlock retrieves the raw block stored under hash.
func (cdb *ChainDB) GetBlock(hash types.Hash) (*block.Block, error) {
	data, err := cdb.db.Get(blockKey(hash))
	if err != nil {
		return nil, fmt.Errorf("%w: block %s", ErrNotFound, hash)
	}
	var blk block.Block
	if err := json.Unmarshal(data, &blk); err != nil {
		return nil, fmt.Errorf("chaindb: corrupt block %s: %w", hash, err)
	}
	return &blk, nil
}

// GetCoin satisfies coin.Backing, letting a coin.View layered on ChainDB
// resolve any outpoint not already sitting in its own overlay.
func (cdb *ChainDB) GetCoin(outpoint types.Outpoint) (*coin.Coin, error) {
	outputCount, raw, err := cdb.loadCoinsRecord(outpoint.TxID)
	if err != nil {
		return nil, err
	}
	dc, err := coin.NewDeferredCoins(raw, outputCount)
	if err != nil {
		return nil, fmt.Errorf("chaindb: decode coins for %s: %w", outpoint.TxID, err)
	}
	c, err := dc.ToCoin(int(outpoint.Index))
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, fmt.Errorf("%w: outpoint %s", coin.ErrCoinNotFound, outpoint)
	}
	return c, nil
}

var _ coin.Backing = (*ChainDB)(nil)

func (cdb *ChainDB) loadCoinsRecord(txid types.Hash) (int, []byte, error) {
	if rec, ok := cdb.coins.Get(txid); ok {
		return decodeCoinsRecord(rec)
	}
	rec, err := cdb.db.Get(coinsKey(txid))
	if err != nil {
		return 0, nil, fmt.Errorf("%w: coins for %s", ErrNotFound, txid)
	}
	cdb.coins.Add(txid, rec)
	return decodeCoinsRecord(rec)
}

// batchWriter is the minimal surface Save/Reconnect/Disconnect need. It is
// satisfied directly by storage.Batch; a database that doesn't implement
// storage.Batcher falls back to applying writes one at a time, mirroring
// storage.PrefixDB's own non-atomic fallback for the same case.
type batchWriter interface {
	Put(key, value []byte) error
	Delete(key []byte) error
	Commit() error
}

type sequentialWriter struct{ db storage.DB }

func (w *sequentialWriter) Put(key, value []byte) error { return w.db.Put(key, value) }
func (w *sequentialWriter) Delete(key []byte) error     { return w.db.Delete(key) }
func (w *sequentialWriter) Commit() error               { return nil }

func (cdb *ChainDB) newBatch() batchWriter {
	if b, ok := cdb.db.(storage.Batcher); ok {
		return b.NewBatch()
	}
	return &sequentialWriter{db: cdb.db}
}

// Save persists entry and its block. If connect is true it also advances
// the main chain: next-hash pointer, height index, tip, and the coin view's
// changes are all written in the same batch, alongside an undo record of
// every coin the block's connection actually spent.
func (cdb *ChainDB) Save(entry *chainstate.Entry, blk *block.Block, view *coin.View, connect bool) error {
	batch := cdb.newBatch()

	blockData, err := json.Marshal(blk)
	if err != nil {
		return fmt.Errorf("chaindb: marshal block: %w", err)
	}
	if err := batch.Put(blockKey(entry.Hash), blockData); err != nil {
		return err
	}
	if err := batch.Put(entryKey(entry.Hash), encodeEntry(entry)); err != nil {
		return err
	}
	var heightBuf [4]byte
	binary.BigEndian.PutUint32(heightBuf[:], entry.Height)
	if err := batch.Put(heightOfKey(entry.Hash), heightBuf[:]); err != nil {
		return err
	}

	if connect {
		if err := cdb.applyConnection(batch, entry, blk, view); err != nil {
			return err
		}
	}

	if err := batch.Commit(); err != nil {
		return fmt.Errorf("chaindb: commit: %w", err)
	}
	cdb.entries.Add(entry, connect)
	return nil
}

// Reconnect applies a previously-stored side-chain entry's block and coin
// view to the main chain during a reorganization. Unlike Save it never
// writes b/e/h — the entry, block and height index were already recorded
// when the block first arrived as a side-chain candidate.
func (cdb *ChainDB) Reconnect(entry *chainstate.Entry, blk *block.Block, view *coin.View) error {
	batch := cdb.newBatch()
	if err := cdb.applyConnection(batch, entry, blk, view); err != nil {
		return err
	}
	if err := batch.Commit(); err != nil {
		return fmt.Errorf("chaindb: commit: %w", err)
	}
	cdb.entries.Add(entry, true)
	return nil
}

// applyConnection writes the pointers that make entry the new tip and folds
// view's changes into the on-disk Coins bundles, producing an undo record
// for whatever the block actually spent.
func (cdb *ChainDB) applyConnection(batch batchWriter, entry *chainstate.Entry, blk *block.Block, view *coin.View) error {
	if entry.Height > 0 {
		if err := batch.Put(nextKey(entry.PrevHash), entry.Hash[:]); err != nil {
			return err
		}
	}
	if err := batch.Put(hashAtKey(entry.Height), entry.Hash[:]); err != nil {
		return err
	}
	if err := batch.Put(prefixTip, entry.Hash[:]); err != nil {
		return err
	}

	undoEntries, err := cdb.applyView(batch, blk, view, entry.Height)
	if err != nil {
		return err
	}
	if len(undoEntries) > 0 {
		undoData, err := serializeUndo(undoEntries)
		if err != nil {
			return err
		}
		if err := batch.Put(undoKey(entry.Hash), undoData); err != nil {
			return err
		}
	}

	if cdb.opts.Prune {
		if entry.Height > cdb.opts.PruneAfterHeight {
			target := entry.Height + cdb.opts.KeepBlocks
			if err := batch.Put(pruneQueueKey(target), entry.Hash[:]); err != nil {
				return err
			}
		}
		if err := cdb.dequeuePrune(batch, entry.Height); err != nil {
			return err
		}
	}
	return nil
}

// applyView groups a view's touched outpoints back into per-tx Coins
// bundles, writing (or deleting, if now fully spent) each one, and returns
// the undo entries needed to reverse every spend of a coin that existed
// before this block.
func (cdb *ChainDB) applyView(batch batchWriter, blk *block.Block, view *coin.View, height uint32) ([]undoEntry, error) {
	newTxOutputs := make(map[types.Hash]int, len(blk.Transactions))
	for _, t := range blk.Transactions {
		newTxOutputs[t.Hash()] = len(t.Outputs)
	}

	grouped := make(map[types.Hash]map[uint32]*coin.Coin)
	for op, c := range view.Overlay() {
		g, ok := grouped[op.TxID]
		if !ok {
			g = make(map[uint32]*coin.Coin)
			grouped[op.TxID] = g
		}
		g[op.Index] = c
	}

	var undoEntries []undoEntry

	for txid, changes := range grouped {
		if outputCount, isNew := newTxOutputs[txid]; isNew {
			bundle := &coin.Coins{Version: coinsBundleVersion, Height: height, Outputs: make([]*coin.Coin, outputCount)}
			for idx, c := range changes {
				if c == nil || int(idx) >= outputCount {
					continue
				}
				bundle.Outputs[idx] = c
				bundle.Coinbase = c.Coinbase
			}
			if err := cdb.writeOrDeleteBundle(batch, txid, bundle); err != nil {
				return nil, err
			}
			continue
		}

		outputCount, raw, err := cdb.loadCoinsRecord(txid)
		if err != nil {
			return nil, fmt.Errorf("chaindb: view touches unknown tx %s: %w", txid, err)
		}
		bundle, err := coin.Deserialize(raw, outputCount)
		if err != nil {
			return nil, fmt.Errorf("chaindb: decode coins for %s: %w", txid, err)
		}
		for idx, c := range changes {
			if int(idx) >= len(bundle.Outputs) {
				continue
			}
			if c == nil {
				if old := bundle.Outputs[idx]; old != nil {
					undoEntries = append(undoEntries, undoEntry{
						Outpoint:    types.Outpoint{TxID: txid, Index: idx},
						OutputCount: len(bundle.Outputs),
						Coin:        old,
					})
				}
				bundle.Outputs[idx] = nil
				continue
			}
			bundle.Outputs[idx] = c
		}
		if err := cdb.writeOrDeleteBundle(batch, txid, bundle); err != nil {
			return nil, err
		}
	}

	return undoEntries, nil
}

func (cdb *ChainDB) writeOrDeleteBundle(batch batchWriter, txid types.Hash, bundle *coin.Coins) error {
	if bundle.IsEmpty() {
		if err := batch.Delete(coinsKey(txid)); err != nil {
			return err
		}
		cdb.coins.Remove(txid)
		return nil
	}
	raw, err := bundle.Serialize()
	if err != nil {
		return fmt.Errorf("chaindb: serialize coins for %s: %w", txid, err)
	}
	rec, err := encodeCoinsRecord(len(bundle.Outputs), raw)
	if err != nil {
		return err
	}
	if err := batch.Put(coinsKey(txid), rec); err != nil {
		return err
	}
	cdb.coins.Add(txid, rec)
	return nil
}

// Disconnect unwinds the main chain's tip block: pointers roll back to
// entry's parent, the block's own outputs are removed, and every coin the
// block's undo record recorded is pushed back into the UTXO set (I4).
func (cdb *ChainDB) Disconnect(entry *chainstate.Entry) error {
	batch := cdb.newBatch()
	if err := batch.Delete(nextKey(entry.PrevHash)); err != nil {
		return err
	}
	if err := batch.Delete(hashAtKey(entry.Height)); err != nil {
		return err
	}
	if err := batch.Put(prefixTip, entry.PrevHash[:]); err != nil {
		return err
	}

	blk, err := cdb.GetBlock(entry.Hash)
	if err != nil {
		return fmt.Errorf("chaindb: disconnect: %w", err)
	}
	for _, t := range blk.Transactions {
		txid := t.Hash()
		if err := batch.Delete(coinsKey(txid)); err != nil {
			return err
		}
		cdb.coins.Remove(txid)
	}

	undoData, err := cdb.db.Get(undoKey(entry.Hash))
	if err == nil {
		entries, derr := deserializeUndo(undoData)
		if derr != nil {
			return fmt.Errorf("chaindb: disconnect: %w", derr)
		}
		for i := len(entries) - 1; i >= 0; i-- {
			if err := cdb.restoreCoin(batch, entries[i]); err != nil {
				return err
			}
		}
		if err := batch.Delete(undoKey(entry.Hash)); err != nil {
			return err
		}
	}

	if err := batch.Commit(); err != nil {
		return fmt.Errorf("chaindb: commit: %w", err)
	}
	cdb.entries.RemoveHeight(entry.Height)
	return nil
}

// DisconnectPointerOnly rewinds the main-chain pointers for entry without
// touching the coin set — used when the block or undo data needed to unwind
// its spends normally has already been pruned. A caller that takes this path
// must follow up with RebuildUTXOs once every block in the reorg has been
// disconnected/reconnected, since the coin set is left stale until then.
func (cdb *ChainDB) DisconnectPointerOnly(entry *chainstate.Entry) error {
	batch := cdb.newBatch()
	if err := batch.Delete(nextKey(entry.PrevHash)); err != nil {
		return err
	}
	if err := batch.Delete(hashAtKey(entry.Height)); err != nil {
		return err
	}
	if err := batch.Put(prefixTip, entry.PrevHash[:]); err != nil {
		return err
	}
	if err := batch.Commit(); err != nil {
		return fmt.Errorf("chaindb: commit: %w", err)
	}
	cdb.entries.RemoveHeight(entry.Height)
	return nil
}

// ReconnectPointerOnly advances the main-chain pointers to entry without
// touching the coin set — the counterpart to DisconnectPointerOnly used
// while walking a reorg whose coin state is already known to be stale and
// pending a RebuildUTXOs pass.
func (cdb *ChainDB) ReconnectPointerOnly(entry *chainstate.Entry) error {
	batch := cdb.newBatch()
	if entry.Height > 0 {
		if err := batch.Put(nextKey(entry.PrevHash), entry.Hash[:]); err != nil {
			return err
		}
	}
	if err := batch.Put(hashAtKey(entry.Height), entry.Hash[:]); err != nil {
		return err
	}
	if err := batch.Put(prefixTip, entry.Hash[:]); err != nil {
		return err
	}
	if err := batch.Commit(); err != nil {
		return fmt.Errorf("chaindb: commit: %w", err)
	}
	cdb.entries.Add(entry, true)
	return nil
}

func (cdb *ChainDB) restoreCoin(batch batchWriter, e undoEntry) error {
	outputCount, raw, err := cdb.loadCoinsRecord(e.Outpoint.TxID)
	if err != nil {
		bundle := &coin.Coins{Version: coinsBundleVersion, Height: e.Coin.Height, Coinbase: e.Coin.Coinbase, Outputs: make([]*coin.Coin, e.OutputCount)}
		bundle.Outputs[e.Outpoint.Index] = e.Coin
		return cdb.writeOrDeleteBundle(batch, e.Outpoint.TxID, bundle)
	}
	bundle, err := coin.Deserialize(raw, outputCount)
	if err != nil {
		return fmt.Errorf("chaindb: restore coin: decode %s: %w", e.Outpoint.TxID, err)
	}
	bundle.Outputs[e.Outpoint.Index] = e.Coin
	return cdb.writeOrDeleteBundle(batch, e.Outpoint.TxID, bundle)
}

// GetUndoView builds a coin.View seeded with a block's undo coins layered
// over ChainDB itself, so re-verifying the block during a reorg sees
// exactly the inputs it saw the first time it connected — even for coins
// that have since been spent again by a later, still-connected block.
func (cdb *ChainDB) GetUndoView(blk *block.Block) (*coin.View, error) {
	view := coin.NewView(cdb)
	undoData, err := cdb.db.Get(undoKey(blk.Hash()))
	if err != nil {
		return view, nil
	}
	entries, err := deserializeUndo(undoData)
	if err != nil {
		return nil, fmt.Errorf("chaindb: get undo view: %w", err)
	}
	for _, e := range entries {
		view.AddCoin(e.Outpoint, e.Coin)
	}
	return view, nil
}

// dequeuePrune processes any prune target scheduled for height: the raw
// block and undo record for the dequeued hash are removed. Entries, coins,
// and index records are never pruned (§4.1).
func (cdb *ChainDB) dequeuePrune(batch batchWriter, height uint32) error {
	key := pruneQueueKey(height)
	hashBytes, err := cdb.db.Get(key)
	if err != nil {
		return nil
	}
	var hash types.Hash
	copy(hash[:], hashBytes)
	if err := batch.Delete(blockKey(hash)); err != nil {
		return err
	}
	if err := batch.Delete(undoKey(hash)); err != nil {
		return err
	}
	return batch.Delete(key)
}
