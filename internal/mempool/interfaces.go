package mempool

import (
	"github.com/Klingon-tech/klingnet-chain/internal/chainstate"
	"github.com/Klingon-tech/klingnet-chain/internal/coin"
	"github.com/Klingon-tech/klingnet-chain/pkg/tx"
)

// ChainSource is what the mempool needs from the confirmed chain: coin
// resolution for inputs that aren't themselves spending a mempool output,
// and the tip/median-time-past pair contextual checks are run against.
// *chain.Chain satisfies this directly.
type ChainSource interface {
	coin.Backing
	Tip() (*chainstate.Entry, error)
	MedianTime() (uint64, error)

	// DeploymentActive reports whether the named version-bits soft fork
	// (e.g. "csv", "segwit") has reached BIP9 StateActive at the current
	// tip. An unrecognized name reports false, nil rather than an error.
	DeploymentActive(name string) (bool, error)
}

// Notifier is the external event sink a wallet or peer-relay layer
// registers to observe mempool activity, matching the event names §6
// assigns to this component.
type Notifier interface {
	OnTx(t *tx.Transaction)
	OnAddTx(t *tx.Transaction)
	OnRemoveTx(t *tx.Transaction)
	OnConfirmed(t *tx.Transaction, height uint32)
	OnUnconfirmed(t *tx.Transaction, height uint32)
	OnConflict(t *tx.Transaction)
	OnBadOrphan(t *tx.Transaction)
}

// NopNotifier discards every event.
type NopNotifier struct{}

func (NopNotifier) OnTx(*tx.Transaction)                    {}
func (NopNotifier) OnAddTx(*tx.Transaction)                 {}
func (NopNotifier) OnRemoveTx(*tx.Transaction)              {}
func (NopNotifier) OnConfirmed(*tx.Transaction, uint32)     {}
func (NopNotifier) OnUnconfirmed(*tx.Transaction, uint32)   {}
func (NopNotifier) OnConflict(*tx.Transaction)              {}
func (NopNotifier) OnBadOrphan(*tx.Transaction)             {}

// FeeSink is the external fee-estimator that observes admitted transactions
// and confirmed blocks; the mempool feeds it samples but forms no opinion
// about how they're used.
type FeeSink interface {
	ObserveTx(feeRate float64, size int)
	ObserveBlock(height uint32, confirmed []*Entry)
}

// NopFeeSink discards every sample.
type NopFeeSink struct{}

func (NopFeeSink) ObserveTx(float64, int)          {}
func (NopFeeSink) ObserveBlock(uint32, []*Entry) {}
