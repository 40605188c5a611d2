package coin

import (
	"encoding/binary"
	"io"
)

// binaryWriteUint32 and binaryReadUint32 handle the one fixed-width field in
// the Coins format (the height/coinbase code word); everything else in the
// bundle is variable-length, hence the wire.VarInt helpers used alongside
// these in coins.go.
func binaryWriteUint32(w io.Writer, v uint32) error {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	_, err := w.Write(b[:])
	return err
}

func binaryReadUint32(r io.Reader) (uint32, error) {
	var b [4]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b[:]), nil
}
