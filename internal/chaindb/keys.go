package chaindb

import (
	"encoding/binary"

	"github.com/Klingon-tech/klingnet-chain/pkg/types"
)

// Key prefixes, one byte each so the schema stays range-scannable under a
// big-endian integer suffix. Address-index prefixes (T/C/W) are reserved for
// a wallet-facing layer built outside this package; ChainDB itself never
// writes them.
var (
	prefixTip             = []byte("R") // R -> current tip hash
	prefixEntry           = []byte("e") // e<hash(32)> -> encoded ChainEntry
	prefixHeightOf        = []byte("h") // h<hash(32)> -> height u32
	prefixHashAt          = []byte("H") // H<height(4)> -> hash(32), main chain only
	prefixNext            = []byte("n") // n<hash(32)> -> next main-chain hash
	prefixBlock           = []byte("b") // b<hash(32)> -> raw block bytes
	prefixCoins           = []byte("c") // c<txhash(32)> -> serialized Coins
	prefixUndo            = []byte("u") // u<blockhash(32)> -> undo record
	prefixPruneQueue      = []byte("q") // q<height(4)> -> block hash queued for pruning
	prefixReorgCheckpoint = []byte("Z") // Z -> in-flight reorg marker, absent once a reorg commits cleanly
)

func entryKey(hash types.Hash) []byte  { return append(append([]byte{}, prefixEntry...), hash[:]...) }
func heightOfKey(hash types.Hash) []byte {
	return append(append([]byte{}, prefixHeightOf...), hash[:]...)
}
func hashAtKey(height uint32) []byte {
	b := make([]byte, len(prefixHashAt)+4)
	copy(b, prefixHashAt)
	binary.BigEndian.PutUint32(b[len(prefixHashAt):], height)
	return b
}
func nextKey(hash types.Hash) []byte { return append(append([]byte{}, prefixNext...), hash[:]...) }
func blockKey(hash types.Hash) []byte {
	return append(append([]byte{}, prefixBlock...), hash[:]...)
}
func coinsKey(txHash types.Hash) []byte {
	return append(append([]byte{}, prefixCoins...), txHash[:]...)
}
func undoKey(blockHash types.Hash) []byte {
	return append(append([]byte{}, prefixUndo...), blockHash[:]...)
}
func pruneQueueKey(height uint32) []byte {
	b := make([]byte, len(prefixPruneQueue)+4)
	copy(b, prefixPruneQueue)
	binary.BigEndian.PutUint32(b[len(prefixPruneQueue):], height)
	return b
}
