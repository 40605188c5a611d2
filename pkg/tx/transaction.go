// Package tx defines transaction types, serialization and validation.
package tx

import (
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"

	"github.com/Klingon-tech/klingnet-chain/pkg/crypto"
	"github.com/Klingon-tech/klingnet-chain/pkg/types"
)

// MaxMoney is the maximum representable value of the currency (21e6 coins
// of 1e8 base units each), the ceiling every individual output value and
// every transaction's total output value must respect (§3).
const MaxMoney = 21_000_000 * 1_00000000

// SequenceFinal marks an input as not subject to relative-locktime or
// opt-in replace-by-fee semantics.
const SequenceFinal = 0xFFFFFFFF

// Transaction is a set of inputs spending prior outputs and a set of new
// outputs, optionally time-locked.
type Transaction struct {
	Version  uint32   `json:"version"`
	Inputs   []Input  `json:"inputs"`
	Outputs  []Output `json:"outputs"`
	LockTime uint32   `json:"locktime"`
}

// Input references a UTXO being spent and carries the data that satisfies
// its locking script. Script interpretation itself is a black-box
// predicate outside this package's scope (§1); Script here is opaque
// signature-script bytes built by SetSigScript / read by SigScript.
type Input struct {
	PrevOut  types.Outpoint `json:"prevout"`
	Script   types.Script   `json:"script"`
	Sequence uint32         `json:"sequence"`
	Witness  types.Witness  `json:"witness,omitempty"`
}

// SetSigScript packs a signature and compressed public key into the
// input's legacy script field.
func (in *Input) SetSigScript(sig, pubKey []byte) {
	buf := make([]byte, 0, 1+len(sig)+len(pubKey))
	buf = append(buf, byte(len(sig)))
	buf = append(buf, sig...)
	buf = append(buf, pubKey...)
	in.Script = buf
}

// SigScript unpacks the signature and public key from the input's legacy
// script field. Returns false if the script is not in the expected shape.
func (in Input) SigScript() (sig, pubKey []byte, ok bool) {
	if len(in.Script) < 1 {
		return nil, nil, false
	}
	sigLen := int(in.Script[0])
	if len(in.Script) < 1+sigLen {
		return nil, nil, false
	}
	sig = in.Script[1 : 1+sigLen]
	pubKey = in.Script[1+sigLen:]
	if len(pubKey) == 0 {
		return nil, nil, false
	}
	return sig, pubKey, true
}

// inputJSON hex-encodes Input for JSON dumps.
type inputJSON struct {
	PrevOut  types.Outpoint `json:"prevout"`
	Script   string         `json:"script"`
	Sequence uint32         `json:"sequence"`
}

func (in Input) MarshalJSON() ([]byte, error) {
	return json.Marshal(inputJSON{PrevOut: in.PrevOut, Script: hex.EncodeToString(in.Script), Sequence: in.Sequence})
}

func (in *Input) UnmarshalJSON(data []byte) error {
	var j inputJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return err
	}
	in.PrevOut = j.PrevOut
	in.Sequence = j.Sequence
	if j.Script != "" {
		b, err := hex.DecodeString(j.Script)
		if err != nil {
			return err
		}
		in.Script = b
	}
	return nil
}

// Output defines a new UTXO.
type Output struct {
	Value  uint64       `json:"value"`
	Script types.Script `json:"script"`
}

// IsCoinbase reports whether the transaction is a block-reward coinbase:
// exactly one input carrying the null outpoint marker.
func (t *Transaction) IsCoinbase() bool {
	return len(t.Inputs) == 1 && t.Inputs[0].PrevOut.IsZero()
}

// HasWitness reports whether any input carries witness data.
func (t *Transaction) HasWitness() bool {
	for _, in := range t.Inputs {
		if !in.Witness.IsEmpty() {
			return true
		}
	}
	return false
}

// Hash computes the transaction's legacy id: the hash of the
// non-witness serialization. This is stable across malleation of the
// witness stack and is the identifier used by inputs' PrevOut.
func (t *Transaction) Hash() types.Hash {
	return crypto.Hash(t.SigningBytes())
}

// WTxHash computes the witness transaction id: the hash of the
// serialization including witness data. Equals Hash() when the
// transaction carries no witness (§3, §6).
func (t *Transaction) WTxHash() types.Hash {
	if !t.HasWitness() {
		return t.Hash()
	}
	return crypto.Hash(t.witnessBytes())
}

// SigningBytes returns the canonical legacy byte representation used both
// as the transaction id preimage and, with every input's script blanked,
// as the preimage each input's signature commits to (a simplified
// stand-in for the sighash algorithm, which — like script execution — is
// treated as an external black-box concern here).
//
// Format: version(4) | in_count(4) | [prevout(36) script_len(4) script sequence(4)]... |
//
//	out_count(4) | [value(8) script_len(4) script]... | locktime(4)
func (t *Transaction) SigningBytes() []byte {
	var buf []byte

	buf = binary.LittleEndian.AppendUint32(buf, t.Version)

	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(t.Inputs)))
	for _, in := range t.Inputs {
		buf = append(buf, in.PrevOut.TxID[:]...)
		buf = binary.LittleEndian.AppendUint32(buf, in.PrevOut.Index)
		buf = binary.LittleEndian.AppendUint32(buf, uint32(len(in.Script)))
		buf = append(buf, in.Script...)
		buf = binary.LittleEndian.AppendUint32(buf, in.Sequence)
	}

	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(t.Outputs)))
	for _, out := range t.Outputs {
		buf = binary.LittleEndian.AppendUint64(buf, out.Value)
		buf = binary.LittleEndian.AppendUint32(buf, uint32(len(out.Script)))
		buf = append(buf, out.Script...)
	}

	buf = binary.LittleEndian.AppendUint32(buf, t.LockTime)

	return buf
}

// witnessBytes appends each input's witness stack after the legacy body,
// mirroring the marker/flag + per-input witness placement described in §6.
func (t *Transaction) witnessBytes() []byte {
	buf := t.SigningBytes()
	buf = append(buf, 0x00, 0x01) // marker, flag
	for _, in := range t.Inputs {
		buf = binary.LittleEndian.AppendUint32(buf, uint32(len(in.Witness)))
		for _, item := range in.Witness {
			buf = binary.LittleEndian.AppendUint32(buf, uint32(len(item)))
			buf = append(buf, item...)
		}
	}
	return buf
}

// signingBytesForInput returns SigningBytes with every input's script
// blanked, the preimage input i's signature commits to. Blanking all
// scripts avoids a circular dependency between a signature and the script
// bytes it lives in, so the preimage is the same for every input; it is
// what Builder.Sign and SignMulti sign before populating any script.
func (t *Transaction) signingBytesForInput(i int) []byte {
	clone := &Transaction{Version: t.Version, LockTime: t.LockTime}
	clone.Inputs = make([]Input, len(t.Inputs))
	for j, in := range t.Inputs {
		clone.Inputs[j] = Input{PrevOut: in.PrevOut, Sequence: in.Sequence}
	}
	clone.Outputs = t.Outputs
	return clone.SigningBytes()
}

// TotalOutputValue returns the sum of all output values.
// Returns an error if the sum overflows uint64 or exceeds MaxMoney.
func (t *Transaction) TotalOutputValue() (uint64, error) {
	var total uint64
	for _, out := range t.Outputs {
		if total > math.MaxUint64-out.Value {
			return 0, fmt.Errorf("output value overflow")
		}
		total += out.Value
		if total > MaxMoney {
			return 0, fmt.Errorf("total output value %d exceeds max money %d", total, MaxMoney)
		}
	}
	return total, nil
}
