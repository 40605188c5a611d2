package config

// Checkpoint pins a known-good block hash (as hex) at a given height.
// Kept as a plain, dependency-free mirror of consensus.Checkpoint so this
// package never needs to import internal/chain or internal/consensus —
// callers (the node's own wiring) translate NetworkParams into whatever
// concrete types those packages expect.
type Checkpoint struct {
	Height uint32
	Hash   string // hex-encoded, big-endian
}

// Deployment mirrors consensus.Deployment as plain data.
type Deployment struct {
	Name          string
	Bit           uint
	StartHeight   uint32
	TimeoutHeight uint32
	Threshold     int
	Period        uint32
}

// NetworkParams is the full set of consensus-critical constants a network
// runs under, independent of the chain/consensus package types so this
// package stays free of a dependency edge back onto internal/chain (which
// itself depends on pkg/block, and pkg/block depends on this package for
// its own size-limit constants).
type NetworkParams struct {
	PowLimitBits           uint32
	TargetTimespan         int64
	TargetSpacing          int64
	RetargetInterval       uint32
	NoRetarget             bool
	MajorityWindow         int
	MajorityEnforceUpgrade int
	MajorityRejectOutdated int
	CoinbaseMaturity       uint32
	UseCheckpoints         bool
	Checkpoints            []Checkpoint
	Deployments            []Deployment
}

// ParamsFor builds the NetworkParams a network runs under, mirroring the
// corresponding Genesis's ConsensusRules field for field so the two never
// silently diverge.
func ParamsFor(network NetworkType) NetworkParams {
	switch network {
	case Testnet:
		return testnetParams()
	case Regtest:
		return regtestParams()
	case Segnet:
		return segnetParams()
	default:
		return mainnetParams()
	}
}

func mainnetParams() NetworkParams {
	rules := MainnetGenesis().Protocol.Consensus
	return NetworkParams{
		PowLimitBits:           rules.PowLimitBits,
		TargetTimespan:         rules.TargetTimespan,
		TargetSpacing:          rules.TargetSpacing,
		RetargetInterval:       rules.RetargetInterval,
		MajorityWindow:         rules.MajorityWindow,
		MajorityEnforceUpgrade: rules.MajorityEnforceUpgrade,
		MajorityRejectOutdated: rules.MajorityRejectOutdated,
		CoinbaseMaturity:       rules.CoinbaseMaturity,
		UseCheckpoints:         true,
		Deployments:            mainnetDeployments,
	}
}

func testnetParams() NetworkParams {
	rules := TestnetGenesis().Protocol.Consensus
	return NetworkParams{
		PowLimitBits:           rules.PowLimitBits,
		TargetTimespan:         rules.TargetTimespan,
		TargetSpacing:          rules.TargetSpacing,
		RetargetInterval:       rules.RetargetInterval,
		MajorityWindow:         rules.MajorityWindow,
		MajorityEnforceUpgrade: rules.MajorityEnforceUpgrade,
		MajorityRejectOutdated: rules.MajorityRejectOutdated,
		CoinbaseMaturity:       rules.CoinbaseMaturity,
		Deployments:            testnetDeployments,
	}
}

// regtestParams is a permissive parameter set useful for tests and local
// development: no retarget, no checkpoints, minimal maturity.
func regtestParams() NetworkParams {
	rules := RegtestGenesis().Protocol.Consensus
	return NetworkParams{
		PowLimitBits:           rules.PowLimitBits,
		TargetTimespan:         rules.TargetTimespan,
		TargetSpacing:          rules.TargetSpacing,
		RetargetInterval:       rules.RetargetInterval,
		NoRetarget:             rules.NoRetarget,
		MajorityWindow:         rules.MajorityWindow,
		MajorityEnforceUpgrade: rules.MajorityEnforceUpgrade,
		MajorityRejectOutdated: rules.MajorityRejectOutdated,
		CoinbaseMaturity:       rules.CoinbaseMaturity,
	}
}

// segnetParams starts from testnetParams but gives the witness deployment a
// zero threshold, a one-block period and no timeout, so it is started at
// height 0, locked in at height 1 and active from height 2, instead of
// leaving it to signal in over a period.
func segnetParams() NetworkParams {
	p := testnetParams()
	p.Deployments = []Deployment{
		{Name: "segwit", Bit: 1, StartHeight: 0, TimeoutHeight: ^uint32(0), Threshold: 0, Period: 1},
	}
	return p
}

// mainnetDeployments lists the version-bits soft forks mainnet nodes vote
// on. segwit occupies bit 1 with a one-year-equivalent signaling window
// sized in blocks (matching how this chain buckets retargets by height
// rather than median time).
var mainnetDeployments = []Deployment{
	{
		Name:          "segwit",
		Bit:           1,
		StartHeight:   0,
		TimeoutHeight: 2016 * 26, // ~26 retarget periods
		Threshold:     1916,      // 95% of a 2016-block period
		Period:        2016,
	},
	{
		Name:          "csv",
		Bit:           0,
		StartHeight:   0,
		TimeoutHeight: 2016 * 26,
		Threshold:     1916,
		Period:        2016,
	},
}

var testnetDeployments = []Deployment{
	{
		Name:          "segwit",
		Bit:           1,
		StartHeight:   0,
		TimeoutHeight: 2016 * 26,
		Threshold:     1512, // 75%, testnet activates sooner
		Period:        2016,
	},
	{
		Name:          "csv",
		Bit:           0,
		StartHeight:   0,
		TimeoutHeight: 2016 * 26,
		Threshold:     1512,
		Period:        2016,
	},
}
