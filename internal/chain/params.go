package chain

import (
	"math/big"

	"github.com/Klingon-tech/klingnet-chain/internal/consensus"
)

// Params bundles the network constants the connection state machine needs
// beyond what consensus.RetargetParams already covers: majority-version
// thresholds, coinbase maturity, and the checkpoint table. The node's
// wiring builds one value per network — main, testnet, regtest, segnet —
// from the plain-data config.NetworkParams registry.
type Params struct {
	consensus.RetargetParams

	// MajorityWindow is the number of recent blocks IsSuperMajority counts
	// over when deciding whether to enforce a version upgrade or reject
	// outdated blocks.
	MajorityWindow         int
	MajorityEnforceUpgrade int
	MajorityRejectOutdated int

	CoinbaseMaturity uint32

	UseCheckpoints bool
	Checkpoints    consensus.CheckpointSet

	Deployments []consensus.Deployment
}

// RegtestParams is a permissive parameter set useful for tests and local
// development: no retarget, no checkpoints, minimal maturity.
func RegtestParams() Params {
	return Params{
		RetargetParams: consensus.RetargetParams{
			PowLimit:         new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1)),
			TargetTimespan:   14 * 24 * 60 * 60,
			TargetSpacing:    600,
			RetargetInterval: 2016,
			NoRetarget:       true,
		},
		MajorityWindow:         100,
		MajorityEnforceUpgrade: 75,
		MajorityRejectOutdated: 95,
		CoinbaseMaturity:       1,
	}
}
