package chaindb

import (
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/Klingon-tech/klingnet-chain/internal/chainstate"
	"github.com/Klingon-tech/klingnet-chain/pkg/types"
)

// entryCacheSize follows the same rule of thumb the retarget window itself
// does: enough entries that retargeting, majority-window checks, locator
// construction, and a reasonable reorg depth all hit cache rather than disk.
func entryCacheSize(retargetInterval uint32) int {
	return int(retargetInterval+1)*2 + 100
}

// EntryCache holds recently touched chain entries, indexed both by hash and
// by main-chain height, so ChainDB.Get and ChainDB.GetByHeight rarely need
// to fall through to the underlying store.
type EntryCache struct {
	byHash   *lru.Cache[types.Hash, *chainstate.Entry]
	byHeight *lru.Cache[uint32, types.Hash]
}

// NewEntryCache builds an EntryCache sized for a network with the given
// retarget interval (see entryCacheSize).
func NewEntryCache(retargetInterval uint32) *EntryCache {
	size := entryCacheSize(retargetInterval)
	byHash, _ := lru.New[types.Hash, *chainstate.Entry](size)
	byHeight, _ := lru.New[uint32, types.Hash](size)
	return &EntryCache{byHash: byHash, byHeight: byHeight}
}

// Get returns a cached entry by hash.
func (c *EntryCache) Get(hash types.Hash) (*chainstate.Entry, bool) {
	return c.byHash.Get(hash)
}

// GetByHeight returns the main-chain entry cached at height, if any.
func (c *EntryCache) GetByHeight(height uint32) (*chainstate.Entry, bool) {
	hash, ok := c.byHeight.Get(height)
	if !ok {
		return nil, false
	}
	return c.byHash.Get(hash)
}

// Add records e under its own hash. mainChain also indexes it by height —
// callers should pass false for side-chain entries, whose height cache slot
// belongs to whichever branch is actually main at that height.
func (c *EntryCache) Add(e *chainstate.Entry, mainChain bool) {
	c.byHash.Add(e.Hash, e)
	if mainChain {
		c.byHeight.Add(e.Height, e.Hash)
	}
}

// RemoveHeight evicts a stale height->hash mapping, used when a branch stops
// being the main chain during a reorg.
func (c *EntryCache) RemoveHeight(height uint32) {
	c.byHeight.Remove(height)
}

// CoinCache caches a transaction's serialized Coins bundle, keyed by txid.
// Values are kept on the wire rather than decoded, matching the deferred
// read path the coin package's DeferredCoins was built for.
type CoinCache struct {
	buf *lru.Cache[types.Hash, []byte]
}

// NewCoinCache builds a coin cache holding up to size serialized bundles.
func NewCoinCache(size int) *CoinCache {
	buf, _ := lru.New[types.Hash, []byte](size)
	return &CoinCache{buf: buf}
}

func (c *CoinCache) Get(txHash types.Hash) ([]byte, bool) {
	return c.buf.Get(txHash)
}

func (c *CoinCache) Add(txHash types.Hash, raw []byte) {
	c.buf.Add(txHash, raw)
}

func (c *CoinCache) Remove(txHash types.Hash) {
	c.buf.Remove(txHash)
}

// Clear evicts every cached bundle, used after a full UTXO rebuild makes
// every previously cached record stale.
func (c *CoinCache) Clear() {
	c.buf.Purge()
}
