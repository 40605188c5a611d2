// Package chainstate tracks where a header sits in a particular chain:
// height, cumulative work, and the derived properties (median time,
// version-bit majorities) the connection state machine needs but a bare
// block.Header does not carry.
package chainstate

import (
	"math/big"

	"github.com/Klingon-tech/klingnet-chain/internal/consensus"
	"github.com/Klingon-tech/klingnet-chain/pkg/block"
	"github.com/Klingon-tech/klingnet-chain/pkg/types"
)

// MedianTimeSpan is the number of preceding blocks used to compute a
// block's median time past (MTP), the timestamp all its descendants must
// exceed.
const MedianTimeSpan = 11

// maxChainwork is the saturation ceiling for accumulated chainwork: 2^256.
var maxChainwork = new(big.Int).Lsh(big.NewInt(1), 256)

// Entry is a header positioned on a specific chain.
type Entry struct {
	Hash      types.Hash
	Header    *block.Header
	Height    uint32
	Chainwork *big.Int
	PrevHash  types.Hash
}

// FromBlock derives height and chainwork for a new block built on prev.
// prev may be nil only for the genesis entry (height 0).
func FromBlock(header *block.Header, prev *Entry) *Entry {
	e := &Entry{
		Hash:     header.Hash(),
		Header:   header,
		PrevHash: header.PrevHash,
	}
	if prev == nil {
		e.Height = 0
		e.Chainwork = e.GetProof()
	} else {
		e.Height = prev.Height + 1
		e.Chainwork = e.GetChainwork(prev)
	}
	return e
}

// GetProof returns the work represented by a single block at this entry's
// difficulty target: floor(2^256 / (target + 1)).
func (e *Entry) GetProof() *big.Int {
	target := consensus.CompactToTarget(e.Header.Bits)
	if target.Sign() <= 0 {
		return big.NewInt(0)
	}
	denom := new(big.Int).Add(target, big.NewInt(1))
	proof := new(big.Int).Div(maxChainwork, denom)
	return proof
}

// GetChainwork returns prev's cumulative chainwork plus this entry's own
// proof of work, saturating at 2^256.
func (e *Entry) GetChainwork(prev *Entry) *big.Int {
	sum := new(big.Int).Add(prev.Chainwork, e.GetProof())
	if sum.Cmp(maxChainwork) > 0 {
		return new(big.Int).Set(maxChainwork)
	}
	return sum
}

// AncestorSource resolves a header's parent by hash; ChainDB satisfies it.
// Implementations should serve from an in-memory cache when possible and
// fall back to disk otherwise — GetAncestors does not distinguish the two,
// it only bounds how many hops it will take.
type AncestorSource interface {
	GetEntry(hash types.Hash) (*Entry, error)
}

// GetAncestors walks prev_block links starting at e, returning up to max
// entries in descending-height order (e itself first).
func GetAncestors(src AncestorSource, e *Entry, max int) ([]*Entry, error) {
	ancestors := make([]*Entry, 0, max)
	cur := e
	for len(ancestors) < max {
		ancestors = append(ancestors, cur)
		if cur.Height == 0 {
			break
		}
		parent, err := src.GetEntry(cur.PrevHash)
		if err != nil {
			break
		}
		cur = parent
	}
	return ancestors, nil
}

// GetMedianTime returns the median timestamp of ancestors (most recent
// first), per BIP113's MTP rule.
func GetMedianTime(ancestors []*Entry) uint64 {
	n := len(ancestors)
	if n > MedianTimeSpan {
		n = MedianTimeSpan
	}
	times := make([]uint64, n)
	for i := 0; i < n; i++ {
		times[i] = ancestors[i].Header.Timestamp
	}
	sortUint64(times)
	return times[len(times)/2]
}

func sortUint64(s []uint64) {
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && s[j-1] > s[j]; j-- {
			s[j-1], s[j] = s[j], s[j-1]
		}
	}
}

// topMask and topBits identify a version-bits signaling header per BIP9:
// the top three bits must read 001.
const (
	topMask = 0xE0000000
	topBits = 0x20000000
)

// IsSuperMajority reports whether at least required of the given ancestors
// have a header version ≥ version. Used both for the old miner-signaled
// upgrade path and as a input to BIP9 state transitions.
func IsSuperMajority(version uint32, required int, ancestors []*Entry) bool {
	count := 0
	for _, a := range ancestors {
		if a.Header.Version >= version {
			count++
		}
	}
	return count >= required
}

// HasBit reports whether entry signals readiness for the version-bits
// deployment at bit position bit.
func (e *Entry) HasBit(bit uint) bool {
	v := e.Header.Version
	return v&topMask == topBits && v&(1<<bit) != 0
}
