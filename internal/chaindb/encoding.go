package chaindb

import (
	"encoding/binary"
	"io"
)

// binaryWriteUint32 and binaryReadUint32 handle the one fixed-width field
// the undo-record format needs (an output index) — the same pattern
// internal/coin uses for its own fixed-width height/coinbase code word.
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
