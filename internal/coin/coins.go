package coin

import (
	"bytes"
	"fmt"
	"io"

	"github.com/btcsuite/btcd/wire"

	"github.com/Klingon-tech/klingnet-chain/pkg/tx"
	"github.com/Klingon-tech/klingnet-chain/pkg/types"
)

// Coins is the compressed, serializable bundle of every output a single
// transaction ever produced. It is the unit ChainDB persists per txid;
// individual spent outputs are marked rather than removed from the bundle
// until the whole thing goes empty, so a transaction with mixed
// spent/unspent outputs still round-trips correctly.
type Coins struct {
	Version  uint64
	Height   uint32
	Coinbase bool
	Outputs  []*Coin // nil entry == spent
}

const coinsVersion = 1

// entrySpent, entryPubkeyHash, entryScriptHash mark the compression applied
// to a single output entry on the wire (§4.5).
const (
	entrySpent      = 0xFF
	entryRaw        = 0
	entryPubkeyHash = 1
	entryScriptHash = 2
)

// FromTx builds a Coins bundle from every output of a confirmed transaction.
func FromTx(outputs []tx.Output, height uint32, coinbase bool) *Coins {
	c := &Coins{Version: coinsVersion, Height: height, Coinbase: coinbase}
	c.Outputs = make([]*Coin, len(outputs))
	for i, out := range outputs {
		if out.Script.IsUnspendable() {
			continue
		}
		c.Outputs[i] = &Coin{Value: out.Value, Script: out.Script, Height: height, Coinbase: coinbase}
	}
	return c
}

// IsEmpty reports whether every output has been spent, meaning the whole
// bundle is a candidate for deletion from the backing store.
func (c *Coins) IsEmpty() bool {
	for _, o := range c.Outputs {
		if o != nil {
			return false
		}
	}
	return true
}

// Get decodes the coin at index, or nil if that output was never present or
// has since been spent.
func (c *Coins) Get(index uint32) *Coin {
	if int(index) >= len(c.Outputs) {
		return nil
	}
	return c.Outputs[index]
}

// Spend removes and returns the coin at index. Returns nil if it was
// already spent or out of range.
func (c *Coins) Spend(index uint32) *Coin {
	if int(index) >= len(c.Outputs) {
		return nil
	}
	spent := c.Outputs[index]
	c.Outputs[index] = nil
	return spent
}

// Serialize encodes the bundle in the fixed on-disk format:
//
//	varint(version)
//	u32((height << 1) | coinbase_flag)
//	output_entry*
//
// where each output_entry is either 0xFF (spent) or a one-byte template
// prefix followed by the compressed payload and a varint value.
func (c *Coins) Serialize() ([]byte, error) {
	var buf bytes.Buffer
	if err := wire.WriteVarInt(&buf, 0, c.Version); err != nil {
		return nil, fmt.Errorf("coins: write version: %w", err)
	}

	code := c.Height << 1
	if c.Coinbase {
		code |= 1
	}
	if err := binaryWriteUint32(&buf, code); err != nil {
		return nil, fmt.Errorf("coins: write height code: %w", err)
	}

	for _, o := range c.Outputs {
		if o == nil {
			buf.WriteByte(entrySpent)
			continue
		}
		if err := writeOutputEntry(&buf, o); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}

func writeOutputEntry(buf *bytes.Buffer, o *Coin) error {
	tmpl, payload := o.Script.Classify()
	switch tmpl {
	case types.TemplatePubkeyHash:
		buf.WriteByte(entryPubkeyHash)
		buf.Write(payload)
	case types.TemplateScriptHash:
		buf.WriteByte(entryScriptHash)
		buf.Write(payload)
	default:
		buf.WriteByte(entryRaw)
		if err := wire.WriteVarBytes(buf, 0, o.Script); err != nil {
			return fmt.Errorf("coins: write script: %w", err)
		}
	}
	if err := wire.WriteVarInt(buf, 0, o.Value); err != nil {
		return fmt.Errorf("coins: write value: %w", err)
	}
	return nil
}

// Deserialize decodes a Coins bundle produced by Serialize. outputCount must
// be supplied by the caller (it is not stored on the wire — ChainDB derives
// it from the originating transaction's output count) so entries can be
// read positionally.
func Deserialize(data []byte, outputCount int) (*Coins, error) {
	r := bytes.NewReader(data)

	version, err := wire.ReadVarInt(r, 0)
	if err != nil {
		return nil, fmt.Errorf("coins: read version: %w", err)
	}

	code, err := binaryReadUint32(r)
	if err != nil {
		return nil, fmt.Errorf("coins: read height code: %w", err)
	}

	c := &Coins{
		Version:  version,
		Height:   code >> 1,
		Coinbase: code&1 == 1,
		Outputs:  make([]*Coin, outputCount),
	}

	for i := 0; i < outputCount; i++ {
		prefix, err := r.ReadByte()
		if err != nil {
			return nil, fmt.Errorf("coins: read entry %d prefix: %w", i, err)
		}
		if prefix == entrySpent {
			continue
		}

		var script types.Script
		switch prefix {
		case entryRaw:
			b, err := wire.ReadVarBytes(r, 0, wireMaxScriptSize, "coins script")
			if err != nil {
				return nil, fmt.Errorf("coins: read entry %d script: %w", i, err)
			}
			script = types.Script(b)
		case entryPubkeyHash:
			h := make([]byte, types.AddressSize)
			if _, err := io.ReadFull(r, h); err != nil {
				return nil, fmt.Errorf("coins: read entry %d pubkey hash: %w", i, err)
			}
			script = types.NewPubkeyHashScript(bytesToAddress(h))
		case entryScriptHash:
			h := make([]byte, types.AddressSize)
			if _, err := io.ReadFull(r, h); err != nil {
				return nil, fmt.Errorf("coins: read entry %d script hash: %w", i, err)
			}
			script = scriptHashScript(h)
		default:
			return nil, fmt.Errorf("coins: entry %d: unknown template prefix %#x", i, prefix)
		}

		value, err := wire.ReadVarInt(r, 0)
		if err != nil {
			return nil, fmt.Errorf("coins: read entry %d value: %w", i, err)
		}

		c.Outputs[i] = &Coin{Value: value, Script: script, Height: c.Height, Coinbase: c.Coinbase}
	}

	return c, nil
}

// wireMaxScriptSize bounds a single decoded script; matches config.MaxScriptData.
const wireMaxScriptSize = 65536

func bytesToAddress(b []byte) types.Address {
	var a types.Address
	copy(a[:], b)
	return a
}

// scriptHashScript rebuilds the canonical pay-to-script-hash locking
// script: OP_HASH160 <20 bytes> OP_EQUAL.
func scriptHashScript(hash []byte) types.Script {
	s := make(types.Script, 0, 23)
	s = append(s, 0xa9, 0x14)
	s = append(s, hash...)
	s = append(s, 0x87)
	return s
}
