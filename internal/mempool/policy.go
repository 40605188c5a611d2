package mempool

import (
	"fmt"

	"github.com/Klingon-tech/klingnet-chain/config"
	"github.com/Klingon-tech/klingnet-chain/pkg/tx"
	"github.com/Klingon-tech/klingnet-chain/pkg/types"
)

// DefaultMaxTxSize is the maximum transaction size in bytes (signing bytes)
// a standard (non-consensus-mandatory) relay policy accepts.
const DefaultMaxTxSize = 100_000

// FreeThreshold is the classic value*age/size priority a transaction paying
// below the minimum relay fee must clear to be admitted anyway: one coin
// aged a full day (144 blocks), amortized over a 250-byte transaction.
const FreeThreshold = float64(config.Coin) * 144 / 250

// Policy defines transaction acceptance rules that can vary per node
// without being a consensus rule enforced by block validation itself.
type Policy struct {
	MaxTxSize        int
	RequireStandard  bool
	AncestorLimit    int
	MaxSigOpsCost    int
	// CSVActive and SegwitActive gate version>=2 and witness-bearing
	// transactions respectively; Pool.refreshDeployments keeps them in
	// sync with the chain's BIP9 state on every tip change rather than
	// requiring a caller to set them by hand.
	CSVActive        bool
	SegwitActive     bool
	PrematureWitness bool // allow witness data before segwit activates.

	// RelayPriority admits a transaction paying below the raw minimum
	// relay fee anyway, provided its PriorityAtEntry clears FreeThreshold.
	// This is distinct from feeState's rolling free-relay budget, which
	// throttles how often that door opens rather than deciding whether it
	// applies to a given transaction at all.
	RelayPriority bool
}

// DefaultPolicy returns a policy with sensible defaults: standardness gates
// on, generous consensus-level ceilings enforced as defense in depth.
func DefaultPolicy() *Policy {
	return &Policy{
		MaxTxSize:       DefaultMaxTxSize,
		RequireStandard: true,
		AncestorLimit:   25,
		MaxSigOpsCost:   16_000,
		RelayPriority:   true,
	}
}

// CheckStructure enforces consensus-level size ceilings as defense in
// depth, ahead of full validation.
func (p *Policy) CheckStructure(t *tx.Transaction) error {
	size := len(t.SigningBytes())
	if p.MaxTxSize > 0 && size > p.MaxTxSize {
		return fmt.Errorf("transaction too large: %d bytes, max %d", size, p.MaxTxSize)
	}
	if len(t.Inputs) > config.MaxTxInputs {
		return fmt.Errorf("too many inputs: %d, max %d", len(t.Inputs), config.MaxTxInputs)
	}
	if len(t.Outputs) > config.MaxTxOutputs {
		return fmt.Errorf("too many outputs: %d, max %d", len(t.Outputs), config.MaxTxOutputs)
	}
	for i, out := range t.Outputs {
		if len(out.Script) > config.MaxScriptData {
			return fmt.Errorf("output %d script too large: %d bytes, max %d", i, len(out.Script), config.MaxScriptData)
		}
	}
	if p.MaxSigOpsCost > 0 {
		if cost := t.SigOpsCost(); cost > p.MaxSigOpsCost {
			return fmt.Errorf("sigops cost %d from output scripts exceeds max %d", cost, p.MaxSigOpsCost)
		}
	}
	return nil
}

// CheckStandard rejects transactions that don't match the templates this
// node relays even though they'd pass consensus validation: unrecognized
// script templates, and (unless PrematureWitness is set) witness data
// carried before segwit activation.
func (p *Policy) CheckStandard(t *tx.Transaction) error {
	if !p.RequireStandard {
		return nil
	}
	if t.Version >= 2 && !p.CSVActive {
		return fmt.Errorf("version-2 transaction requires CSV deployment active")
	}
	if !p.SegwitActive && !p.PrematureWitness && t.HasWitness() {
		return fmt.Errorf("witness data before segwit activation")
	}
	for i, out := range t.Outputs {
		tmpl, _ := out.Script.Classify()
		if tmpl == types.TemplateNonstandard && !out.Script.IsUnspendable() {
			return fmt.Errorf("output %d: nonstandard script template", i)
		}
	}
	return nil
}
