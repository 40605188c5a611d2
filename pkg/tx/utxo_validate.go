package tx

import (
	"errors"
	"fmt"
	"math"

	"github.com/Klingon-tech/klingnet-chain/pkg/crypto"
	"github.com/Klingon-tech/klingnet-chain/pkg/types"
)

// UTXO-aware validation errors.
var (
	ErrInputNotFound     = errors.New("input UTXO not found")
	ErrInputSpent        = errors.New("input UTXO already spent")
	ErrInsufficientFee   = errors.New("insufficient fee")
	ErrInputOverflow     = errors.New("input values overflow")
	ErrScriptMismatch    = errors.New("pubkey does not match UTXO script")
	ErrUnspendableOutput = errors.New("output is unspendable")
	ErrNonStandardInput  = errors.New("input spends a nonstandard script template")
)

// VerifyFlags selects how strictly ValidateWithUTXOsFlags treats each
// input's previous output. MandatoryVerifyFlags is the consensus baseline
// every block-connect enforces regardless of relay policy;
// StandardVerifyFlags adds the relay-only requirement that spent outputs
// use a recognized script template — a transaction can fail the standard
// pass while still being perfectly valid under the mandatory one.
type VerifyFlags uint32

const (
	MandatoryVerifyFlags VerifyFlags = 0

	// RequireStandardInputs rejects spending an output whose script
	// doesn't classify to a known template, unless it's unspendable.
	RequireStandardInputs VerifyFlags = 1 << 0
)

// StandardVerifyFlags is what mempool admission checks a transaction
// against before relaxing to MandatoryVerifyFlags to score a rejection.
const StandardVerifyFlags = RequireStandardInputs

// UTXOProvider provides read-only access to the coin set for validation.
// It is satisfied by a coin view's lookup surface.
type UTXOProvider interface {
	GetUTXO(outpoint types.Outpoint) (value uint64, script types.Script, err error)
	HasUTXO(outpoint types.Outpoint) bool
}

// ValidateWithUTXOs performs full validation of a transaction against the UTXO set,
// under MandatoryVerifyFlags — the consensus baseline a block connecting this
// transaction enforces regardless of relay policy.
// It checks that all inputs exist, are unspent, that the pubkey matches the
// UTXO script, that signatures are valid, and that inputs >= outputs.
// Returns the fee (inputs - outputs).
func (t *Transaction) ValidateWithUTXOs(provider UTXOProvider) (uint64, error) {
	return t.ValidateWithUTXOsFlags(provider, MandatoryVerifyFlags)
}

// ValidateWithUTXOsFlags is ValidateWithUTXOs parameterized by VerifyFlags.
// Mempool admission calls it once with StandardVerifyFlags and, on failure,
// again with MandatoryVerifyFlags to tell a relay-policy-only rejection
// (safe, low ban score) apart from a genuine consensus violation.
func (t *Transaction) ValidateWithUTXOsFlags(provider UTXOProvider, flags VerifyFlags) (uint64, error) {
	if err := t.ValidateStructure(); err != nil {
		return 0, err
	}

	var totalInput uint64
	for i, in := range t.Inputs {
		if in.PrevOut.IsZero() {
			continue
		}

		if !provider.HasUTXO(in.PrevOut) {
			return 0, fmt.Errorf("input %d (%s): %w", i, in.PrevOut, ErrInputNotFound)
		}

		value, script, err := provider.GetUTXO(in.PrevOut)
		if err != nil {
			return 0, fmt.Errorf("input %d: %w", i, err)
		}

		if script.IsUnspendable() {
			return 0, fmt.Errorf("input %d (%s): %w", i, in.PrevOut, ErrUnspendableOutput)
		}

		tmpl, payload := script.Classify()
		if flags&RequireStandardInputs != 0 && tmpl == types.TemplateNonstandard {
			return 0, fmt.Errorf("input %d (%s): %w", i, in.PrevOut, ErrNonStandardInput)
		}
		if tmpl == types.TemplatePubkeyHash {
			_, pubKey, ok := in.SigScript()
			if !ok {
				return 0, fmt.Errorf("input %d: %w", i, ErrMissingPubKey)
			}
			if err := verifyPubkeyHash(pubKey, payload); err != nil {
				return 0, fmt.Errorf("input %d: %w", i, err)
			}
		}

		if totalInput > math.MaxUint64-value {
			return 0, fmt.Errorf("input %d: %w", i, ErrInputOverflow)
		}
		totalInput += value
	}

	if err := t.VerifySignatures(); err != nil {
		return 0, err
	}

	totalOutput, ovfErr := t.TotalOutputValue()
	if ovfErr != nil {
		return 0, fmt.Errorf("output overflow: %w", ovfErr)
	}
	if totalInput < totalOutput {
		return 0, fmt.Errorf("%w: inputs=%d outputs=%d", ErrInsufficientFee, totalInput, totalOutput)
	}

	fee := totalInput - totalOutput
	return fee, nil
}

// SigOpsCostWithUTXOs adds the cost of each resolved input's previous
// output script to SigOpsCost, giving the full per-transaction ceiling a
// block-connect or mempool-admission path enforces once inputs resolve.
func (t *Transaction) SigOpsCostWithUTXOs(provider UTXOProvider) (int, error) {
	cost := t.SigOpsCost()
	for i, in := range t.Inputs {
		if in.PrevOut.IsZero() {
			continue
		}
		_, script, err := provider.GetUTXO(in.PrevOut)
		if err != nil {
			return 0, fmt.Errorf("input %d: %w", i, err)
		}
		cost += script.SigOps() * types.CheckSigCostFactor
	}
	return cost, nil
}

// ValidateStructure checks transaction structure without requiring UTXO access.
// Same as Validate() but renamed for clarity when used alongside ValidateWithUTXOs.
func (t *Transaction) ValidateStructure() error {
	return t.Validate()
}

// verifyPubkeyHash checks that a public key hashes to the address encoded
// in a pay-to-pubkey-hash script.
func verifyPubkeyHash(pubKey []byte, addrBytes []byte) error {
	if len(addrBytes) != types.AddressSize {
		return fmt.Errorf("%w: script payload length %d", ErrScriptMismatch, len(addrBytes))
	}
	if len(pubKey) == 0 {
		return ErrMissingPubKey
	}

	derived := crypto.AddressFromPubKey(pubKey)
	var expected types.Address
	copy(expected[:], addrBytes)

	if expected != derived {
		return fmt.Errorf("%w: expected %s, got %s", ErrScriptMismatch, expected, derived)
	}
	return nil
}
