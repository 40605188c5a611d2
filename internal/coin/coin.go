// Package coin implements the compressed unspent-output representation and
// the block-local overlay view used during transaction and block validation.
package coin

import "github.com/Klingon-tech/klingnet-chain/pkg/types"

// Coin is a single unspent output together with the metadata needed to
// validate a spend of it: the height it confirmed at (for coinbase maturity
// and BIP68-style relative locktimes) and whether it originated from a
// coinbase transaction.
type Coin struct {
	Value    uint64
	Script   types.Script
	Height   uint32
	Coinbase bool
}

// UnconfirmedHeight marks a coin belonging to a transaction that has not
// yet been included in a block (used by the mempool's coin view).
const UnconfirmedHeight = 0x7FFFFFFF

// IsUnconfirmed reports whether the coin's height marks a mempool-only spend.
func (c *Coin) IsUnconfirmed() bool {
	return c.Height == UnconfirmedHeight
}
