package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/Klingon-tech/klingnet-chain/pkg/crypto"
	"github.com/Klingon-tech/klingnet-chain/pkg/types"
)

// =============================================================================
// Protocol Rules (immutable, defined in genesis)
// These MUST match across all nodes or consensus breaks.
// =============================================================================

// Denomination constants.
// 1 coin = 10^12 base units. All on-chain values are in base units.
const (
	Decimals  = 12
	Coin      = 1_000_000_000_000 // 10^12 base units per coin
	MilliCoin = 1_000_000_000     // 10^9
	MicroCoin = 1_000_000         // 10^6
)

// Block and transaction size limits (consensus-critical).
const (
	MaxBlockSize  = 2_000_000 // 2 MB max block size (header + all tx signing bytes)
	MaxBlockTxs   = 500       // Max transactions per block (including coinbase)
	MaxTxInputs   = 2500      // Max inputs per transaction
	MaxTxOutputs  = 2500      // Max outputs per transaction
	MaxScriptData = 65_536    // 64 KB max script data per output
)

// Genesis holds the genesis block configuration and protocol rules. This is
// immutable after chain launch; changing it requires a hard fork.
type Genesis struct {
	ChainName string `json:"chain_name"`
	Symbol    string `json:"symbol,omitempty"`

	Timestamp uint64 `json:"timestamp"`
	Bits      uint32 `json:"bits"`
	ExtraData string `json:"extra_data,omitempty"`

	// Initial allocations (address -> balance in base units), one P2PKH
	// coinbase output per entry.
	Alloc map[string]uint64 `json:"alloc"`

	Protocol ProtocolConfig `json:"protocol"`
}

// ForkSchedule defines block heights at which protocol upgrades activate.
// A zero value means the fork is not scheduled.
type ForkSchedule struct{}

// IsActive reports whether a fork scheduled at forkHeight has activated by
// currentHeight. A zero forkHeight means the fork is not scheduled, so it is
// never active.
func (f *ForkSchedule) IsActive(forkHeight, currentHeight uint64) bool {
	if forkHeight == 0 {
		return false
	}
	return currentHeight >= forkHeight
}

// ProtocolConfig holds the consensus-critical rules for a network.
type ProtocolConfig struct {
	Consensus ConsensusRules `json:"consensus"`
	Forks     ForkSchedule   `json:"forks,omitempty"`
}

// ConsensusRules mirrors the network parameter registry's values in a
// JSON/hash-friendly shape, so a genesis file fully pins the rules a node
// must run under, independent of what ParamsFor happens to hardcode.
type ConsensusRules struct {
	PowLimitBits           uint32 `json:"pow_limit_bits"`
	TargetTimespan         int64  `json:"target_timespan"`
	TargetSpacing          int64  `json:"target_spacing"`
	RetargetInterval       uint32 `json:"retarget_interval"`
	NoRetarget             bool   `json:"no_retarget"`
	MajorityWindow         int    `json:"majority_window"`
	MajorityEnforceUpgrade int    `json:"majority_enforce_upgrade"`
	MajorityRejectOutdated int    `json:"majority_reject_outdated"`
	CoinbaseMaturity       uint32 `json:"coinbase_maturity"`
}

// =============================================================================
// Testnet Identity
//
// Derived from the well-known BIP-39 test mnemonic (DO NOT use on mainnet):
//
//	abandon abandon abandon abandon abandon abandon abandon abandon
//	abandon abandon abandon abandon abandon abandon abandon abandon
//	abandon abandon abandon abandon abandon abandon abandon art
//
// Derivation path: m/44'/8888'/0'/0/0 (no passphrase)
// =============================================================================

const (
	// TestnetMnemonic is the well-known seed phrase behind TestnetAddress.
	TestnetMnemonic = "abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon art"

	// TestnetAddress is the address (bech32, tkgx) derived from TestnetMnemonic;
	// it receives the entire testnet faucet allocation.
	TestnetAddress = "tkgx13uayfwq9djh7cd5dagxtuzk3mx7r7sc9xv4h52"
)

// =============================================================================
// Pre-defined genesis configurations
// =============================================================================

// MainnetGenesis returns the mainnet genesis configuration.
func MainnetGenesis() *Genesis {
	return &Genesis{
		ChainName: "Klingnet Mainnet",
		Symbol:    "KGX",
		Timestamp: 1770734103, // 2026-02-10
		Bits:      0x1d00ffff,
		ExtraData: "Klingnet Genesis",
		Alloc: map[string]uint64{
			"kgx1a8tfl79jgres7t90tttkc7ytjmhs5lpdn5ag4l": 100_000 * Coin, // ERC-20 KGX swap allocation
		},
		Protocol: ProtocolConfig{
			Consensus: ConsensusRules{
				PowLimitBits:           0x1d00ffff,
				TargetTimespan:         14 * 24 * 60 * 60,
				TargetSpacing:          600,
				RetargetInterval:       2016,
				MajorityWindow:         1000,
				MajorityEnforceUpgrade: 750,
				MajorityRejectOutdated: 950,
				CoinbaseMaturity:       100,
			},
		},
	}
}

// TestnetGenesis returns the testnet genesis configuration: same rules as
// mainnet but with a much lower coinbase maturity and a small majority
// window, so a local cluster of nodes reaches consensus quickly.
func TestnetGenesis() *Genesis {
	g := MainnetGenesis()
	g.ChainName = "Klingnet Testnet"
	g.ExtraData = "Klingnet Testnet Genesis"
	g.Protocol.Consensus.CoinbaseMaturity = 10
	g.Protocol.Consensus.MajorityWindow = 100
	g.Protocol.Consensus.MajorityEnforceUpgrade = 75
	g.Protocol.Consensus.MajorityRejectOutdated = 95
	g.Alloc = map[string]uint64{
		TestnetAddress: 200_000 * Coin,
	}
	return g
}

// RegtestGenesis returns the regression-test genesis configuration: no
// retargeting, minimum difficulty, one-block coinbase maturity so a test
// harness can spend genesis coins immediately.
func RegtestGenesis() *Genesis {
	g := TestnetGenesis()
	g.ChainName = "Klingnet Regtest"
	g.ExtraData = "Klingnet Regtest Genesis"
	g.Bits = 0x207fffff
	g.Protocol.Consensus.PowLimitBits = 0x207fffff
	g.Protocol.Consensus.NoRetarget = true
	g.Protocol.Consensus.CoinbaseMaturity = 1
	return g
}

// SegnetGenesis returns the segwit-activation test network genesis: a
// public testnet-shaped network with the witness deployment already
// locked in, for exercising segwit-gated policy without waiting on a
// signaling window.
func SegnetGenesis() *Genesis {
	g := TestnetGenesis()
	g.ChainName = "Klingnet Segnet"
	g.ExtraData = "Klingnet Segnet Genesis"
	return g
}

// GenesisFor returns the genesis config for the given network.
func GenesisFor(network NetworkType) *Genesis {
	switch network {
	case Testnet:
		return TestnetGenesis()
	case Regtest:
		return RegtestGenesis()
	case Segnet:
		return SegnetGenesis()
	default:
		return MainnetGenesis()
	}
}

// =============================================================================
// Genesis file I/O
// =============================================================================

// LoadGenesis loads a genesis configuration from a file.
func LoadGenesis(path string) (*Genesis, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading genesis file: %w", err)
	}

	var g Genesis
	if err := json.Unmarshal(data, &g); err != nil {
		return nil, fmt.Errorf("parsing genesis file: %w", err)
	}

	if err := g.Validate(); err != nil {
		return nil, fmt.Errorf("invalid genesis: %w", err)
	}

	return &g, nil
}

// Save writes the genesis configuration to a file.
func (g *Genesis) Save(path string) error {
	data, err := json.MarshalIndent(g, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding genesis: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing genesis file: %w", err)
	}
	return nil
}

// Validate checks that the genesis configuration is internally consistent.
func (g *Genesis) Validate() error {
	if g.ChainName == "" {
		return fmt.Errorf("chain_name is required")
	}
	if g.Protocol.Consensus.TargetSpacing <= 0 {
		return fmt.Errorf("target_spacing must be positive")
	}
	if g.Protocol.Consensus.TargetTimespan <= 0 {
		return fmt.Errorf("target_timespan must be positive")
	}
	if !g.Protocol.Consensus.NoRetarget && g.Protocol.Consensus.RetargetInterval == 0 {
		return fmt.Errorf("retarget_interval must be positive when retargeting is enabled")
	}

	for addrStr := range g.Alloc {
		if _, err := types.ParseAddress(addrStr); err != nil {
			return fmt.Errorf("invalid alloc address %q: %w", addrStr, err)
		}
	}

	return nil
}

// Hash returns a hash of the genesis configuration, used to detect genesis
// mismatches between nodes claiming to run the same network.
func (g *Genesis) Hash() (types.Hash, error) {
	data, err := json.Marshal(g)
	if err != nil {
		return types.Hash{}, err
	}
	return crypto.Hash(data), nil
}
