package types

import (
	"encoding/hex"
	"encoding/json"
)

// ScriptTemplate classifies a script for the purposes of Coins compression
// (§4.5): pay-to-pubkey-hash and pay-to-script-hash have a fixed 20-byte
// payload and compress to a single-byte prefix, everything else is stored
// uncompressed.
type ScriptTemplate uint8

const (
	TemplateNonstandard ScriptTemplate = iota
	TemplatePubkeyHash
	TemplateScriptHash
)

// Script is the raw locking/unlocking script carried by an output or input.
// Script interpretation is out of scope here — Script is opaque bytes that
// the consuming interpreter (a black-box predicate, per the node's script
// engine) evaluates; the chain and mempool only need to classify it for
// compression and standardness, not execute it.
type Script []byte

// scriptJSON hex-encodes Script for readability in JSON dumps.
type scriptJSON string

// MarshalJSON encodes the script as a hex string.
func (s Script) MarshalJSON() ([]byte, error) {
	return json.Marshal(scriptJSON(hex.EncodeToString(s)))
}

// UnmarshalJSON decodes a hex string into a script.
func (s *Script) UnmarshalJSON(data []byte) error {
	var j scriptJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return err
	}
	if j == "" {
		*s = nil
		return nil
	}
	b, err := hex.DecodeString(string(j))
	if err != nil {
		return err
	}
	*s = b
	return nil
}

// pubkeyHashPrefix/pubkeyHashSuffix bracket the 20-byte hash in the
// canonical P2PKH template: OP_DUP OP_HASH160 <20 bytes> OP_EQUALVERIFY OP_CHECKSIG.
const (
	opDup           = 0x76
	opHash160       = 0xa9
	opEqualVerify   = 0x88
	opCheckSig      = 0xac
	opEqual         = 0x87
	pushHashLen     = 0x14 // OP_PUSHBYTES_20
)

// Classify identifies the script template used for Coins compression.
func (s Script) Classify() (ScriptTemplate, []byte) {
	if h, ok := s.pubkeyHash(); ok {
		return TemplatePubkeyHash, h
	}
	if h, ok := s.scriptHash(); ok {
		return TemplateScriptHash, h
	}
	return TemplateNonstandard, nil
}

func (s Script) pubkeyHash() ([]byte, bool) {
	if len(s) == 25 && s[0] == opDup && s[1] == opHash160 && s[2] == pushHashLen &&
		s[23] == opEqualVerify && s[24] == opCheckSig {
		return s[3:23], true
	}
	return nil, false
}

func (s Script) scriptHash() ([]byte, bool) {
	if len(s) == 23 && s[0] == opHash160 && s[1] == pushHashLen && s[22] == opEqual {
		return s[2:22], true
	}
	return nil, false
}

// NewPubkeyHashScript builds the canonical P2PKH locking script for a hash.
func NewPubkeyHashScript(hash Address) Script {
	s := make(Script, 0, 25)
	s = append(s, opDup, opHash160, pushHashLen)
	s = append(s, hash[:]...)
	s = append(s, opEqualVerify, opCheckSig)
	return s
}

// IsUnspendable reports whether a script can never be redeemed (OP_RETURN
// style data-carrier outputs use this to opt out of the UTXO set).
func (s Script) IsUnspendable() bool {
	return len(s) > 0 && s[0] == 0x6a // OP_RETURN
}

// CheckSigCostFactor scales a raw signature-check opcode count into the
// same cost units block and mempool sigops ceilings are expressed in,
// mirroring the weight scale factor legacy sigops are costed at.
const CheckSigCostFactor = 4

// SigOps counts signature-check opcodes appearing anywhere in the script.
// There is no redeem-script or multisig opcode in this template set, so a
// flat scan for OP_CHECKSIG is exact for the standard templates and a
// conservative catch-all for anything nonstandard.
func (s Script) SigOps() int {
	count := 0
	for _, b := range s {
		if b == opCheckSig {
			count++
		}
	}
	return count
}
