package chaindb

import (
	"encoding/binary"
	"fmt"
	"math/big"

	"github.com/Klingon-tech/klingnet-chain/internal/chainstate"
	"github.com/Klingon-tech/klingnet-chain/pkg/block"
	"github.com/Klingon-tech/klingnet-chain/pkg/types"
)

// chainworkSize is the fixed width a chainwork value is padded to on disk —
// wide enough for the 2^256 saturation ceiling.
const chainworkSize = 32

// encodeEntry lays an entry out as header-signing-bytes | height(4) |
// chainwork(32, big-endian, zero-padded). The hash and prev-hash are not
// stored separately: both are recoverable from the header itself.
func encodeEntry(e *chainstate.Entry) []byte {
	header := e.Header.SigningBytes()
	buf := make([]byte, len(header)+4+chainworkSize)
	copy(buf, header)
	binary.BigEndian.PutUint32(buf[len(header):], e.Height)

	work := e.Chainwork.Bytes()
	if len(work) > chainworkSize {
		work = work[len(work)-chainworkSize:] // should never happen below the 2^256 ceiling
	}
	copy(buf[len(header)+4+(chainworkSize-len(work)):], work)
	return buf
}

// decodeEntry is the inverse of encodeEntry.
func decodeEntry(data []byte) (*chainstate.Entry, error) {
	const headerSize = 4 + types.HashSize + types.HashSize + 8 + 4 + 8
	if len(data) != headerSize+4+chainworkSize {
		return nil, fmt.Errorf("chaindb: corrupt entry record: %d bytes", len(data))
	}

	h := &block.Header{
		Version:   binary.LittleEndian.Uint32(data[0:4]),
		Timestamp: binary.LittleEndian.Uint64(data[68:76]),
		Bits:      binary.LittleEndian.Uint32(data[76:80]),
		Nonce:     binary.LittleEndian.Uint64(data[80:88]),
	}
	copy(h.PrevHash[:], data[4:36])
	copy(h.MerkleRoot[:], data[36:68])

	height := binary.BigEndian.Uint32(data[headerSize : headerSize+4])
	work := new(big.Int).SetBytes(data[headerSize+4:])

	return &chainstate.Entry{
		Hash:      h.Hash(),
		Header:    h,
		Height:    height,
		Chainwork: work,
		PrevHash:  h.PrevHash,
	}, nil
}
