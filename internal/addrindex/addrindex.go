// Package addrindex implements the optional address index a wallet-facing
// caller uses to look up "what has this address touched" without a full
// chain scan. It lives outside ChainDB proper — ChainDB's own key schema
// reserves the T and C prefixes for exactly this layer and never writes
// them itself — built on the same PrefixDB namespacing ChainDB uses
// internally for its own tables.
package addrindex

import (
	"encoding/binary"

	"github.com/Klingon-tech/klingnet-chain/internal/chainstate"
	"github.com/Klingon-tech/klingnet-chain/internal/storage"
	"github.com/Klingon-tech/klingnet-chain/pkg/block"
	"github.com/Klingon-tech/klingnet-chain/pkg/types"
)

var (
	txPrefix    = []byte("T")
	coinsPrefix = []byte("C")
)

// Index tracks, per address, which transactions touched it (T[addr][tx_hash])
// and which of its outpoints have been seen holding value
// (C[addr][tx_hash][index]) — a caller cross-references the latter against
// the live coin set to know what's still spendable.
type Index struct {
	tx    *storage.PrefixDB
	coins *storage.PrefixDB
}

// New wraps db, the same underlying store ChainDB itself opens, with the
// T/C namespaces. The index lives beside chain state without either
// package needing to know the other's schema.
func New(db storage.DB) *Index {
	return &Index{
		tx:    storage.NewPrefixDB(db, txPrefix),
		coins: storage.NewPrefixDB(db, coinsPrefix),
	}
}

func txKey(addr types.Address, txHash types.Hash) []byte {
	k := make([]byte, 0, types.AddressSize+types.HashSize)
	k = append(k, addr[:]...)
	return append(k, txHash[:]...)
}

func coinsKey(addr types.Address, txHash types.Hash, index uint32) []byte {
	k := make([]byte, 0, types.AddressSize+types.HashSize+4)
	k = append(k, addr[:]...)
	k = append(k, txHash[:]...)
	idx := make([]byte, 4)
	binary.BigEndian.PutUint32(idx, index)
	return append(k, idx...)
}

// OnConnect indexes every standard-template output a connected block's
// transactions create. Spending inputs aren't indexed here: a script
// carries no record of the address it spent from, and resolving that
// would mean re-deriving ChainDB's own coin lookups inside an optional,
// best-effort layer — not a cost worth paying on every connected block.
func (ix *Index) OnConnect(entry *chainstate.Entry, blk *block.Block) {
	for _, t := range blk.Transactions {
		hash := t.Hash()
		for i, out := range t.Outputs {
			addr, ok := addressOf(out.Script)
			if !ok {
				continue
			}
			_ = ix.tx.Put(txKey(addr, hash), []byte{1})
			value := make([]byte, 8)
			binary.BigEndian.PutUint64(value, out.Value)
			_ = ix.coins.Put(coinsKey(addr, hash, uint32(i)), value)
		}
	}
}

// OnDisconnect reverses OnConnect for a block leaving the main chain.
func (ix *Index) OnDisconnect(entry *chainstate.Entry, blk *block.Block) {
	for _, t := range blk.Transactions {
		hash := t.Hash()
		for i, out := range t.Outputs {
			addr, ok := addressOf(out.Script)
			if !ok {
				continue
			}
			_ = ix.tx.Delete(txKey(addr, hash))
			_ = ix.coins.Delete(coinsKey(addr, hash, uint32(i)))
		}
	}
}

// TxsByAddress returns every transaction hash indexed as having touched
// addr.
func (ix *Index) TxsByAddress(addr types.Address) ([]types.Hash, error) {
	var hashes []types.Hash
	err := ix.tx.ForEach(addr[:], func(key, _ []byte) error {
		if len(key) != types.HashSize {
			return nil
		}
		var h types.Hash
		copy(h[:], key)
		hashes = append(hashes, h)
		return nil
	})
	return hashes, err
}

// Outpoints returns every outpoint indexed for addr. Some may since have
// been spent; callers cross-reference against the live coin set.
func (ix *Index) Outpoints(addr types.Address) ([]types.Outpoint, error) {
	var outs []types.Outpoint
	err := ix.coins.ForEach(addr[:], func(key, _ []byte) error {
		if len(key) != types.HashSize+4 {
			return nil
		}
		var op types.Outpoint
		copy(op.TxID[:], key[:types.HashSize])
		op.Index = binary.BigEndian.Uint32(key[types.HashSize:])
		outs = append(outs, op)
		return nil
	})
	return outs, err
}

func addressOf(script types.Script) (types.Address, bool) {
	tmpl, payload := script.Classify()
	if tmpl != types.TemplatePubkeyHash && tmpl != types.TemplateScriptHash {
		return types.Address{}, false
	}
	if len(payload) != types.AddressSize {
		return types.Address{}, false
	}
	var addr types.Address
	copy(addr[:], payload)
	return addr, true
}
