package block

import (
	"encoding/binary"

	"github.com/Klingon-tech/klingnet-chain/pkg/crypto"
	"github.com/Klingon-tech/klingnet-chain/pkg/types"
)

// Header carries the fields committed to by proof of work. Height and
// cumulative chainwork are not part of the header: they are properties of
// a header's position in a particular chain, tracked alongside it rather
// than inside it.
type Header struct {
	Version    uint32     `json:"version"`
	PrevHash   types.Hash `json:"prev_hash"`
	MerkleRoot types.Hash `json:"merkle_root"`
	Timestamp  uint64     `json:"timestamp"`
	Bits       uint32     `json:"bits"`
	Nonce      uint64     `json:"nonce"`
}

// Hash computes the block header hash.
func (h *Header) Hash() types.Hash {
	return crypto.Hash(h.SigningBytes())
}

// SigningBytes returns the canonical byte representation of the header.
// Format: version(4) | prev_hash(32) | merkle_root(32) | timestamp(8) | bits(4) | nonce(8)
func (h *Header) SigningBytes() []byte {
	buf := make([]byte, 0, 88)
	buf = binary.LittleEndian.AppendUint32(buf, h.Version)
	buf = append(buf, h.PrevHash[:]...)
	buf = append(buf, h.MerkleRoot[:]...)
	buf = binary.LittleEndian.AppendUint64(buf, h.Timestamp)
	buf = binary.LittleEndian.AppendUint32(buf, h.Bits)
	buf = binary.LittleEndian.AppendUint64(buf, h.Nonce)
	return buf
}
