package tx

import (
	"errors"
	"fmt"
	"math"

	"github.com/Klingon-tech/klingnet-chain/config"
	"github.com/Klingon-tech/klingnet-chain/pkg/crypto"
	"github.com/Klingon-tech/klingnet-chain/pkg/types"
)

// Validation errors.
var (
	ErrNoInputs           = errors.New("transaction has no inputs")
	ErrNoOutputs          = errors.New("transaction has no outputs")
	ErrDuplicateInput     = errors.New("duplicate input")
	ErrOutputOverflow     = errors.New("output values overflow")
	ErrNegativeOutput     = errors.New("output value is zero")
	ErrMissingPubKey      = errors.New("input missing public key")
	ErrMissingSig         = errors.New("input missing signature")
	ErrInvalidSig         = errors.New("invalid signature")
	ErrTooManyInputs      = errors.New("too many inputs")
	ErrTooManyOutputs     = errors.New("too many outputs")
	ErrScriptDataTooLarge = errors.New("script data too large")
	ErrMultipleCoinbaseIn = errors.New("coinbase transaction must have exactly one input")
)

// Validate checks transaction structure and basic rules.
// This does NOT check UTXO existence (that requires the UTXO set).
func (t *Transaction) Validate() error {
	if len(t.Inputs) == 0 {
		return ErrNoInputs
	}
	if len(t.Outputs) == 0 {
		return ErrNoOutputs
	}
	if len(t.Inputs) > config.MaxTxInputs {
		return fmt.Errorf("%w: %d inputs, max %d", ErrTooManyInputs, len(t.Inputs), config.MaxTxInputs)
	}
	if len(t.Outputs) > config.MaxTxOutputs {
		return fmt.Errorf("%w: %d outputs, max %d", ErrTooManyOutputs, len(t.Outputs), config.MaxTxOutputs)
	}

	isCoinbase := t.IsCoinbase()
	if !isCoinbase {
		for _, in := range t.Inputs {
			if in.PrevOut.IsZero() {
				return ErrMultipleCoinbaseIn
			}
		}
	}

	seen := make(map[types.Outpoint]bool, len(t.Inputs))
	for i, in := range t.Inputs {
		if seen[in.PrevOut] {
			return fmt.Errorf("input %d: %w", i, ErrDuplicateInput)
		}
		seen[in.PrevOut] = true
	}

	if !isCoinbase {
		for i, in := range t.Inputs {
			sig, pubKey, ok := in.SigScript()
			if !ok || len(pubKey) == 0 {
				return fmt.Errorf("input %d: %w", i, ErrMissingPubKey)
			}
			if len(sig) == 0 {
				return fmt.Errorf("input %d: %w", i, ErrMissingSig)
			}
		}
	}

	var totalOutput uint64
	for i, out := range t.Outputs {
		if out.Value == 0 {
			return fmt.Errorf("output %d: %w", i, ErrNegativeOutput)
		}
		if len(out.Script) > config.MaxScriptData {
			return fmt.Errorf("output %d: %w: %d bytes, max %d", i, ErrScriptDataTooLarge, len(out.Script), config.MaxScriptData)
		}
		if totalOutput > math.MaxUint64-out.Value {
			return fmt.Errorf("output %d: %w", i, ErrOutputOverflow)
		}
		totalOutput += out.Value
		if totalOutput > MaxMoney {
			return fmt.Errorf("output %d: %w", i, ErrOutputOverflow)
		}
	}

	return nil
}

// SigOpsCost returns the signature-operation cost this transaction commits
// to from its output scripts alone — the portion computable without
// resolving inputs, used as a cheap ceiling ahead of full validation.
func (t *Transaction) SigOpsCost() int {
	cost := 0
	for _, out := range t.Outputs {
		cost += out.Script.SigOps() * types.CheckSigCostFactor
	}
	return cost
}

// VerifySignatures checks that all non-coinbase input signatures are
// valid against the signing preimage: the transaction with every input's
// script blanked (see signingBytesForInput).
func (t *Transaction) VerifySignatures() error {
	if t.IsCoinbase() {
		return nil
	}
	for i, in := range t.Inputs {
		sig, pubKey, ok := in.SigScript()
		if !ok {
			return fmt.Errorf("input %d: %w", i, ErrMissingSig)
		}
		hash := crypto.Hash(t.signingBytesForInput(i))
		if !crypto.VerifySignature(hash[:], sig, pubKey) {
			return fmt.Errorf("input %d: %w", i, ErrInvalidSig)
		}
	}
	return nil
}
