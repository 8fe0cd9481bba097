package config

import (
	"fmt"
	"math"
	"net/url"

	"github.com/hashicorp/go-multierror"

	"github.com/Klingon-tech/inscribe/pkg/address"
)

// Validate checks the config for operator mistakes. Every problem found is
// reported, not just the first.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}

	var result *multierror.Error
	add := func(format string, args ...interface{}) {
		result = multierror.Append(result, fmt.Errorf(format, args...))
	}

	switch cfg.Network {
	case address.Mainnet, address.Testnet, address.Regtest:
	default:
		add("network must be %q, %q or %q", address.Mainnet, address.Testnet, address.Regtest)
	}

	if err := checkURL(cfg.Quote.Endpoint); err != nil {
		add("quote.endpoint: %v", err)
	}
	if cfg.Quote.Timeout <= 0 {
		add("quote.timeout must be positive")
	}
	if !(cfg.Quote.MinFeeRate > 0) || math.IsInf(cfg.Quote.MinFeeRate, 0) {
		add("quote.minfeerate must be a positive number")
	}
	if !(cfg.Quote.FeeRate > 0) || math.IsInf(cfg.Quote.FeeRate, 0) {
		add("quote.feerate must be a positive number")
	}
	if cfg.Quote.Debounce < 0 {
		add("quote.debounce must not be negative")
	}

	if cfg.API.Port < 0 || cfg.API.Port > 65535 {
		add("api.port must be in range [0, 65535]")
	}
	if cfg.API.Upstream != "" {
		if err := checkURL(cfg.API.Upstream); err != nil {
			add("api.upstream: %v", err)
		}
	}

	if cfg.Wallet.RPC != "" {
		if err := checkURL(cfg.Wallet.RPC); err != nil {
			add("wallet.rpc: %v", err)
		}
	}
	if cfg.Wallet.Address != "" && address.Validate(cfg.Wallet.Address, cfg.Network) != nil {
		add("wallet.address is not a valid %s address", cfg.Network)
	}
	if cfg.Wallet.UnlockTimeout < 0 {
		add("wallet.unlocktimeout must not be negative")
	}

	if cfg.Compress.MaxDimension <= 0 {
		add("compress.maxdimension must be positive")
	}

	return result.ErrorOrNil()
}

func checkURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("scheme must be http or https")
	}
	if u.Host == "" {
		return fmt.Errorf("missing host")
	}
	return nil
}
