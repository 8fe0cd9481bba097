package config

import (
	"time"

	"github.com/Klingon-tech/inscribe/pkg/address"
	"github.com/Klingon-tech/inscribe/pkg/inscription"
)

// DefaultMainnet returns the default configuration for mainnet.
func DefaultMainnet() *Config {
	return &Config{
		Network: address.Mainnet,
		DataDir: DefaultDataDir(),
		Quote: QuoteConfig{
			Endpoint:   "http://127.0.0.1:8080/api/inscriptions/create-commit",
			Timeout:    30 * time.Second,
			MinFeeRate: inscription.DefaultMinFeeRate,
			FeeRate:    1,
			Debounce:   time.Second,
		},
		API: APIConfig{
			Enabled:    true,
			Addr:       "127.0.0.1",
			Port:       8080,
			AllowedIPs: []string{"127.0.0.1"},
		},
		Wallet: WalletConfig{
			RPC:           "http://127.0.0.1:8332",
			UnlockTimeout: 60 * time.Second,
		},
		Compress: CompressConfig{
			MaxDimension: 2048,
		},
		Log: LogConfig{
			Level: "info",
			JSON:  false,
		},
	}
}

// DefaultTestnet returns the default configuration for testnet.
func DefaultTestnet() *Config {
	cfg := DefaultMainnet()
	cfg.Network = address.Testnet
	cfg.API.Port = 8180
	cfg.Quote.Endpoint = "http://127.0.0.1:8180/api/inscriptions/create-commit"
	cfg.Wallet.RPC = "http://127.0.0.1:18332"
	return cfg
}

// DefaultRegtest returns the default configuration for regtest.
func DefaultRegtest() *Config {
	cfg := DefaultTestnet()
	cfg.Network = address.Regtest
	cfg.Wallet.RPC = "http://127.0.0.1:18443"
	return cfg
}

// Default returns the default configuration for the given network.
func Default(network address.Network) *Config {
	switch network {
	case address.Testnet:
		return DefaultTestnet()
	case address.Regtest:
		return DefaultRegtest()
	default:
		return DefaultMainnet()
	}
}
