package config

// DefaultMainnet returns the default node configuration for mainnet.
func DefaultMainnet() *Config {
	return &Config{
		Network: Mainnet,
		DataDir: DefaultDataDir(),
		Mempool: MempoolConfig{
			MaxBytes:        0, // 0 = package default (mempool.DefaultMaxBytes)
			MinRelayFeeRate: 1,
		},
		Log: LogConfig{
			Level: "info",
			JSON:  false,
		},
	}
}

// DefaultTestnet returns the default node configuration for testnet.
func DefaultTestnet() *Config {
	cfg := DefaultMainnet()
	cfg.Network = Testnet
	return cfg
}

// DefaultRegtest returns the default node configuration for regtest.
func DefaultRegtest() *Config {
	cfg := DefaultMainnet()
	cfg.Network = Regtest
	cfg.Mempool.MinRelayFeeRate = 0
	return cfg
}

// DefaultSegnet returns the default node configuration for segnet.
func DefaultSegnet() *Config {
	cfg := DefaultMainnet()
	cfg.Network = Segnet
	return cfg
}

// Default returns the default node configuration for the given network.
func Default(network NetworkType) *Config {
	switch network {
	case Testnet:
		return DefaultTestnet()
	case Regtest:
		return DefaultRegtest()
	case Segnet:
		return DefaultSegnet()
	default:
		return DefaultMainnet()
	}
}
