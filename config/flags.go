package config

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/Klingon-tech/inscribe/pkg/address"
)

// Version is reported by --version.
const Version = "0.1.0"

// Flags holds parsed command-line flags.
type Flags struct {
	// Commands
	Help    bool
	Version bool

	// Core
	Network string
	DataDir string
	Config  string

	// Quote
	QuoteEndpoint string
	MinFeeRate    float64
	Debounce      time.Duration

	// API
	API         bool
	APIAddr     string
	APIPort     int
	APIAllowed  string
	APICORS     string
	APIUpstream string

	// Wallet
	WalletRPC     string
	WalletRPCUser string
	WalletAddress string

	// Logging
	LogLevel string
	LogFile  string
	LogJSON  bool

	// Remaining args
	Args []string

	// Explicitly-set bool flags (for true/false overrides).
	SetAPI     bool
	SetLogJSON bool
}

// ParseFlags parses command-line flags (without the program name).
// It returns flag.ErrHelp for -h/--help.
func ParseFlags(args []string) (*Flags, error) {
	f := &Flags{}
	fs := flag.NewFlagSet("inscribed", flag.ContinueOnError)
	fs.Usage = printUsage

	// Commands
	fs.BoolVar(&f.Help, "help", false, "Show help message")
	fs.BoolVar(&f.Help, "h", false, "Show help message (shorthand)")
	fs.BoolVar(&f.Version, "version", false, "Show version information")
	fs.BoolVar(&f.Version, "v", false, "Show version (shorthand)")

	// Core
	fs.StringVar(&f.Network, "network", "", "Network type (mainnet, testnet or regtest)")
	fs.StringVar(&f.DataDir, "datadir", "", "Data directory path")
	fs.StringVar(&f.Config, "config", "", "Config file path")
	fs.StringVar(&f.Config, "c", "", "Config file path (shorthand)")

	// Quote
	fs.StringVar(&f.QuoteEndpoint, "quote-endpoint", "", "Create-commit endpoint")
	fs.Float64Var(&f.MinFeeRate, "min-fee-rate", 0, "Fee rate floor in sat/vB")
	fs.DurationVar(&f.Debounce, "debounce", 0, "Quiet period before recalculating")

	// API
	fs.BoolVar(&f.API, "api", true, "Enable the create-commit proxy")
	fs.StringVar(&f.APIAddr, "api-addr", "", "API listen address")
	fs.IntVar(&f.APIPort, "api-port", 0, "API listen port")
	fs.StringVar(&f.APIAllowed, "api-allowed", "", "Allowed IPs for the API (comma-separated)")
	fs.StringVar(&f.APICORS, "api-cors", "", "Allowed CORS origins (comma-separated)")
	fs.StringVar(&f.APIUpstream, "api-upstream", "", "Upstream inscription service URL")

	// Wallet
	fs.StringVar(&f.WalletRPC, "wallet-rpc", "", "Wallet JSON-RPC URL")
	fs.StringVar(&f.WalletRPCUser, "wallet-rpcuser", "", "Wallet JSON-RPC user")
	fs.StringVar(&f.WalletAddress, "wallet-address", "", "Sender address to use instead of asking the wallet")

	// Logging
	fs.StringVar(&f.LogLevel, "log-level", "", "Log level (debug, info, warn, error)")
	fs.StringVar(&f.LogFile, "log-file", "", "Log file path")
	fs.BoolVar(&f.LogJSON, "log-json", false, "Output logs as JSON")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	f.SetAPI = isFlagSet(fs, "api")
	f.SetLogJSON = isFlagSet(fs, "log-json")
	f.Args = fs.Args()

	// A positional argument stops the parser; anything flag-like after it
	// would be silently ignored.
	for _, arg := range f.Args {
		if strings.HasPrefix(arg, "-") {
			return nil, fmt.Errorf("flag %q was not parsed (positional argument stopped parsing)", arg)
		}
	}

	return f, nil
}

// ApplyFlags applies command-line flags to a Config struct.
func ApplyFlags(cfg *Config, f *Flags) {
	// Core
	if f.Network != "" {
		cfg.Network = address.Network(strings.ToLower(f.Network))
	}
	if f.DataDir != "" {
		cfg.DataDir = f.DataDir
	}

	// Quote
	if f.QuoteEndpoint != "" {
		cfg.Quote.Endpoint = f.QuoteEndpoint
	}
	if f.MinFeeRate != 0 {
		cfg.Quote.MinFeeRate = f.MinFeeRate
	}
	if f.Debounce != 0 {
		cfg.Quote.Debounce = f.Debounce
	}

	// API
	if f.SetAPI {
		cfg.API.Enabled = f.API
	}
	if f.APIAddr != "" {
		cfg.API.Addr = f.APIAddr
	}
	if f.APIPort != 0 {
		cfg.API.Port = f.APIPort
	}
	if f.APIAllowed != "" {
		cfg.API.AllowedIPs = parseStringList(f.APIAllowed)
	}
	if f.APICORS != "" {
		cfg.API.CORSOrigins = parseStringList(f.APICORS)
	}
	if f.APIUpstream != "" {
		cfg.API.Upstream = f.APIUpstream
	}

	// Wallet
	if f.WalletRPC != "" {
		cfg.Wallet.RPC = f.WalletRPC
	}
	if f.WalletRPCUser != "" {
		cfg.Wallet.RPCUser = f.WalletRPCUser
	}
	if f.WalletAddress != "" {
		cfg.Wallet.Address = f.WalletAddress
	}

	// Logging
	if f.LogLevel != "" {
		cfg.Log.Level = f.LogLevel
	}
	if f.LogFile != "" {
		cfg.Log.File = f.LogFile
	}
	if f.SetLogJSON {
		cfg.Log.JSON = f.LogJSON
	}
}

// ApplyEnv applies secrets from the environment. lookup is os.LookupEnv
// outside of tests.
func ApplyEnv(cfg *Config, lookup func(string) (string, bool)) {
	if v, ok := lookup(EnvAuthToken); ok && v != "" {
		cfg.API.AuthToken = v
	}
	if v, ok := lookup(EnvWalletRPCPassword); ok && v != "" {
		cfg.Wallet.RPCPassword = v
	}
}

// isFlagSet checks if a flag was explicitly set.
func isFlagSet(fs *flag.FlagSet, name string) bool {
	found := false
	fs.Visit(func(f *flag.Flag) {
		if f.Name == name {
			found = true
		}
	})
	return found
}

func printUsage() {
	usage := `inscribed - inscription create-commit proxy

Usage:
  inscribed [options]
  inscribed --help

Commands:
  --help, -h      Show this help message
  --version, -v   Show version information

Core Options:
  --network       Network type: mainnet (default), testnet or regtest
  --datadir       Data directory (default: ~/.inscribe)
  --config, -c    Config file path (default: <datadir>/inscribe.conf)

Quote Options:
  --quote-endpoint  Create-commit endpoint used by clients
  --min-fee-rate    Fee rate floor in sat/vB (default: 0.1)
  --debounce        Quiet period before recalculating (default: 1s)

API Options:
  --api           Enable the create-commit proxy (default: true)
  --api-addr      Listen address (default: 127.0.0.1)
  --api-port      Listen port (mainnet: 8080, testnet: 8180)
  --api-allowed   Allowed client IPs (comma-separated)
  --api-cors      Allowed CORS origins (comma-separated)
  --api-upstream  Upstream inscription service URL

Wallet Options:
  --wallet-rpc      Wallet JSON-RPC URL
  --wallet-rpcuser  Wallet JSON-RPC user
  --wallet-address  Sender address to use instead of asking the wallet

Logging Options:
  --log-level     Log level: debug, info, warn, error (default: info)
  --log-file      Log file path (default: stderr)
  --log-json      Output logs as JSON

Environment:
  ` + EnvAuthToken + `           Bearer token for the upstream service
  ` + EnvWalletRPCPassword + `  Wallet JSON-RPC password

Examples:
  # Proxy testnet requests to an upstream service
  INSCRIBE_AUTH_TOKEN=... inscribed --network=testnet --api-upstream=https://svc.example/api/inscriptions/create-commit
`
	fmt.Print(usage)
}

// Load loads configuration with the following precedence:
// 1. Default values
// 2. Auto-create data dirs + default config (idempotent)
// 3. Config file
// 4. Command-line flags
// 5. Environment
func Load(args []string) (*Config, *Flags, error) {
	flags, err := ParseFlags(args)
	if errors.Is(err, flag.ErrHelp) {
		os.Exit(0)
	}
	if err != nil {
		return nil, nil, err
	}

	if flags.Help {
		printUsage()
		os.Exit(0)
	}
	if flags.Version {
		fmt.Printf("inscribed version %s\n", Version)
		os.Exit(0)
	}

	network := address.Network(strings.ToLower(flags.Network))
	if network == "" {
		network = address.Mainnet
	}
	cfg := Default(network)
	if flags.DataDir != "" {
		cfg.DataDir = flags.DataDir
	}

	configPath := flags.Config
	if configPath == "" {
		if err := EnsureDataDirs(cfg); err != nil {
			return nil, nil, fmt.Errorf("ensuring data dirs: %w", err)
		}
		configPath = cfg.ConfigFile()
	}

	if err := loadInto(cfg, configPath); err != nil {
		return nil, nil, err
	}
	ApplyFlags(cfg, flags)
	ApplyEnv(cfg, os.LookupEnv)

	if err := Validate(cfg); err != nil {
		return nil, nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, flags, nil
}

// LoadFromFile loads config from defaults, the conf file and the
// environment only. Used by inscribe-cli, which parses its own flags.
// An empty network defers to the file.
func LoadFromFile(dataDir string, network address.Network) (*Config, error) {
	cfg := Default(network)
	if dataDir != "" {
		cfg.DataDir = dataDir
	}
	if err := EnsureDataDirs(cfg); err != nil {
		return nil, fmt.Errorf("ensuring data dirs: %w", err)
	}
	if err := loadInto(cfg, cfg.ConfigFile()); err != nil {
		return nil, err
	}
	// An explicit network wins over the file.
	if network != "" {
		cfg.Network = network
	}
	ApplyEnv(cfg, os.LookupEnv)
	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func loadInto(cfg *Config, path string) error {
	values, err := LoadFile(path)
	if err != nil {
		return fmt.Errorf("loading config file: %w", err)
	}
	if err := ApplyFileConfig(cfg, values); err != nil {
		return fmt.Errorf("applying config file: %w", err)
	}
	return nil
}

// EnsureDataDirs creates the data directory structure and a default config
// file if they don't already exist. Safe to call on every startup.
func EnsureDataDirs(cfg *Config) error {
	dirs := []string{
		cfg.DataDir,
		cfg.NetworkDataDir(),
		cfg.DatabaseDir(),
		cfg.LogsDir(),
	}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("creating directory %s: %w", dir, err)
		}
	}

	configPath := cfg.ConfigFile()
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		if err := WriteDefaultConfig(configPath, cfg.Network); err != nil {
			return fmt.Errorf("writing config file: %w", err)
		}
	}
	return nil
}
