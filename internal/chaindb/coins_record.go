package chaindb

import (
	"bytes"
	"fmt"

	"github.com/btcsuite/btcd/wire"
)

// coin.Coins.Serialize does not encode the bundle's own output count — the
// coin package's contract leaves that to the caller (§4.5's DeferredCoins
// is addressed the same way). ChainDB is that caller, and it is also the
// only thing that needs the count back later, so it prepends its own varint
// header before writing the bundle to disk or into the coin cache.
func encodeCoinsRecord(outputCount int, raw []byte) ([]byte, error) {
	var buf bytes.Buffer
	if err := wire.WriteVarInt(&buf, 0, uint64(outputCount)); err != nil {
		return nil, fmt.Errorf("chaindb: write coins record header: %w", err)
	}
	buf.Write(raw)
	return buf.Bytes(), nil
}

func decodeCoinsRecord(data []byte) (int, []byte, error) {
	r := bytes.NewReader(data)
	n, err := wire.ReadVarInt(r, 0)
	if err != nil {
		return 0, nil, fmt.Errorf("chaindb: read coins record header: %w", err)
	}
	rest := data[len(data)-r.Len():]
	return int(n), rest, nil
}
