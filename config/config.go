// Package config handles application configuration.
//
// Settings are layered: built-in defaults, then the data directory's
// inscribe.conf, then command-line flags, then environment variables for
// secrets that should not live on disk or in shell history.
package config

import (
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/Klingon-tech/inscribe/pkg/address"
)

// Environment variables consulted after flags.
const (
	EnvAuthToken         = "INSCRIBE_AUTH_TOKEN"
	EnvWalletRPCPassword = "INSCRIBE_WALLET_RPC_PASSWORD"
)

// Config holds runtime configuration shared by inscribed and inscribe-cli.
type Config struct {
	// Core
	Network address.Network `conf:"network"`
	DataDir string          `conf:"datadir"`

	// Pricing service and recalculation
	Quote QuoteConfig

	// Create-commit proxy
	API APIConfig

	// Payment wallet
	Wallet WalletConfig

	// Image compression
	Compress CompressConfig

	// Logging
	Log LogConfig
}

// QuoteConfig holds pricing-service and recalculation settings.
type QuoteConfig struct {
	Endpoint   string        `conf:"quote.endpoint"`
	Timeout    time.Duration `conf:"quote.timeout"`
	MinFeeRate float64       `conf:"quote.minfeerate"` // Floor that lower fee rates are clamped to.
	FeeRate    float64       `conf:"quote.feerate"`    // Initial fee rate in sat/vB.
	Debounce   time.Duration `conf:"quote.debounce"`
}

// APIConfig holds create-commit proxy settings.
type APIConfig struct {
	Enabled     bool     `conf:"api.enabled"`
	Addr        string   `conf:"api.addr"`
	Port        int      `conf:"api.port"`
	AllowedIPs  []string `conf:"api.allowed"`
	CORSOrigins []string `conf:"api.cors"` // Allowed CORS origins ("*" = all).
	Upstream    string   `conf:"api.upstream"`
	AuthToken   string   `conf:"api.authtoken"`
}

// WalletConfig holds the bitcoind-style wallet RPC settings.
type WalletConfig struct {
	RPC           string        `conf:"wallet.rpc"`
	RPCUser       string        `conf:"wallet.rpcuser"`
	RPCPassword   string        `conf:"wallet.rpcpassword"`
	PasswordFile  string        `conf:"wallet.passwordfile"` // Sealed wallet passphrase.
	Address       string        `conf:"wallet.address"`      // Pin the sender instead of asking the wallet.
	UnlockTimeout time.Duration `conf:"wallet.unlocktimeout"`
}

// CompressConfig holds image re-encoding settings.
type CompressConfig struct {
	MaxDimension int `conf:"compress.maxdimension"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level string `conf:"log.level"`
	File  string `conf:"log.file"`
	JSON  bool   `conf:"log.json"`
}

// DefaultDataDir returns the platform-specific default data directory.
//
//	Linux:   ~/.inscribe
//	macOS:   ~/Library/Application Support/Inscribe
//	Windows: %APPDATA%\Inscribe
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".inscribe"
	}
	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(home, "Library", "Application Support", "Inscribe")
	case "windows":
		appData := os.Getenv("APPDATA")
		if appData != "" {
			return filepath.Join(appData, "Inscribe")
		}
		return filepath.Join(home, "AppData", "Roaming", "Inscribe")
	default:
		return filepath.Join(home, ".inscribe")
	}
}

// NetworkDataDir returns the network-specific data directory.
func (c *Config) NetworkDataDir() string {
	return filepath.Join(c.DataDir, string(c.Network))
}

// DatabaseDir returns the directory of the receipt and wallet database.
func (c *Config) DatabaseDir() string {
	return filepath.Join(c.NetworkDataDir(), "db")
}

// LogsDir returns the logs directory.
func (c *Config) LogsDir() string {
	return filepath.Join(c.DataDir, "logs")
}

// ConfigFile returns the config file path.
func (c *Config) ConfigFile() string {
	return filepath.Join(c.DataDir, "inscribe.conf")
}

// APIListenAddr joins api.addr and api.port.
func (c *Config) APIListenAddr() string {
	return joinHostPort(c.API.Addr, c.API.Port)
}
