// Package config handles application configuration.
//
// Configuration is split into two categories:
//   - Protocol rules: defined in genesis and the per-network parameter
//     registry, immutable, must match across every node on the network
//   - Node settings: runtime configuration, can vary per node
package config

import (
	"os"
	"path/filepath"
	"runtime"
)

// NetworkType selects which network a node connects to. main and testnet
// are long-lived public networks; regtest and segnet are local
// developer/test networks with permissive or scriptable difficulty.
type NetworkType string

const (
	Mainnet NetworkType = "main"
	Testnet NetworkType = "testnet"
	Regtest NetworkType = "regtest"
	Segnet  NetworkType = "segnet"
)

// =============================================================================
// Node Configuration (runtime, per-node settings)
// =============================================================================

// Config holds node-specific runtime configuration. These settings can
// vary between nodes without breaking consensus.
type Config struct {
	Network NetworkType `conf:"network"`
	DataDir string      `conf:"datadir"`

	Mempool MempoolConfig
	Log     LogConfig
}

// MempoolConfig holds operational mempool tuning knobs. The consensus-
// critical limits (max tx size, ancestor count, sigop cost) live in the
// network parameter registry; these are pure local policy.
type MempoolConfig struct {
	MaxBytes        int     `conf:"mempool.maxbytes"`
	MinRelayFeeRate float64 `conf:"mempool.minrelayfee"` // satoshis per byte
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level string `conf:"log.level"`
	File  string `conf:"log.file"`
	JSON  bool   `conf:"log.json"`
}

// =============================================================================
// Directory helpers
// =============================================================================

// DefaultDataDir returns the platform-specific default data directory.
//
//	Linux:   ~/.klingnet
//	macOS:   ~/Library/Application Support/Klingnet
//	Windows: %APPDATA%\Klingnet
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".klingnet"
	}
	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(home, "Library", "Application Support", "Klingnet")
	case "windows":
		appData := os.Getenv("APPDATA")
		if appData != "" {
			return filepath.Join(appData, "Klingnet")
		}
		return filepath.Join(home, "AppData", "Roaming", "Klingnet")
	default:
		return filepath.Join(home, ".klingnet")
	}
}

// ChainDataDir returns the chain-specific data directory.
func (c *Config) ChainDataDir() string {
	return filepath.Join(c.DataDir, string(c.Network))
}

// LogsDir returns the logs directory.
func (c *Config) LogsDir() string {
	return filepath.Join(c.DataDir, "logs")
}

// ConfigFile returns the config file path.
func (c *Config) ConfigFile() string {
	return filepath.Join(c.DataDir, "klingnet.conf")
}
