package coin

import (
	"bytes"
	"fmt"

	"github.com/btcsuite/btcd/wire"

	"github.com/Klingon-tech/klingnet-chain/pkg/types"
)

// entrySpan records where a single output entry lives inside a Coins
// bundle's raw serialized buffer, so decoding it later costs one slice plus
// one decode rather than a full walk from the start of the buffer.
type entrySpan struct {
	offset int
	size   int
	spent  bool
}

// DeferredCoins wraps a Coins bundle's raw bytes and lazily decodes
// individual outputs. Reading a single output out of a many-output
// transaction — the hot path during input resolution — never allocates for
// the outputs it doesn't touch.
type DeferredCoins struct {
	raw      []byte
	height   uint32
	coinbase bool
	spans    []entrySpan
}

// NewDeferredCoins indexes a Coins bundle's serialized form without
// decoding any output payload.
func NewDeferredCoins(data []byte, outputCount int) (*DeferredCoins, error) {
	r := bytes.NewReader(data)

	if _, err := wire.ReadVarInt(r, 0); err != nil {
		return nil, fmt.Errorf("deferred coins: read version: %w", err)
	}
	code, err := binaryReadUint32(r)
	if err != nil {
		return nil, fmt.Errorf("deferred coins: read height code: %w", err)
	}

	dc := &DeferredCoins{
		raw:      data,
		height:   code >> 1,
		coinbase: code&1 == 1,
		spans:    make([]entrySpan, outputCount),
	}

	for i := 0; i < outputCount; i++ {
		start := len(data) - r.Len()
		prefix, err := r.ReadByte()
		if err != nil {
			return nil, fmt.Errorf("deferred coins: entry %d: %w", i, err)
		}
		if prefix == entrySpent {
			dc.spans[i] = entrySpan{offset: start, size: 1, spent: true}
			continue
		}

		switch prefix {
		case entryRaw:
			if _, err := wire.ReadVarBytes(r, 0, wireMaxScriptSize, "coins script"); err != nil {
				return nil, fmt.Errorf("deferred coins: entry %d script: %w", i, err)
			}
		case entryPubkeyHash, entryScriptHash:
			if _, err := r.Seek(int64(types.AddressSize), 1); err != nil {
				return nil, fmt.Errorf("deferred coins: entry %d payload: %w", i, err)
			}
		default:
			return nil, fmt.Errorf("deferred coins: entry %d: unknown template prefix %#x", i, prefix)
		}
		if _, err := wire.ReadVarInt(r, 0); err != nil {
			return nil, fmt.Errorf("deferred coins: entry %d value: %w", i, err)
		}

		end := len(data) - r.Len()
		dc.spans[i] = entrySpan{offset: start, size: end - start}
	}

	return dc, nil
}

// ToCoin decodes a single output on demand.
func (dc *DeferredCoins) ToCoin(index int) (*Coin, error) {
	if index < 0 || index >= len(dc.spans) {
		return nil, fmt.Errorf("deferred coins: index %d out of range", index)
	}
	span := dc.spans[index]
	if span.spent {
		return nil, nil
	}

	slice := dc.raw[span.offset : span.offset+span.size]
	bundle, err := Deserialize(prependHeader(dc, slice), 1)
	if err != nil {
		return nil, fmt.Errorf("deferred coins: decode index %d: %w", index, err)
	}
	return bundle.Outputs[0], nil
}

// prependHeader re-wraps a single entry's bytes with a minimal version/code
// header so it can be run back through Deserialize's single-entry path.
func prependHeader(dc *DeferredCoins, entry []byte) []byte {
	var buf bytes.Buffer
	wire.WriteVarInt(&buf, 0, coinsVersion)
	code := dc.height << 1
	if dc.coinbase {
		code |= 1
	}
	binaryWriteUint32(&buf, code)
	buf.Write(entry)
	return buf.Bytes()
}

// Height and Coinbase expose the bundle-level metadata without touching any
// individual output.
func (dc *DeferredCoins) Height() uint32 { return dc.height }
func (dc *DeferredCoins) Coinbase() bool { return dc.coinbase }
func (dc *DeferredCoins) Count() int     { return len(dc.spans) }
