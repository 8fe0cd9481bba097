package config

import (
	"bufio"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/Klingon-tech/inscribe/pkg/address"
)

// LoadFile loads configuration from a .conf file.
// Format: key = value (one per line, # for comments). A missing file
// yields an empty map.
func LoadFile(path string) (map[string]string, error) {
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return make(map[string]string), nil
		}
		return nil, err
	}
	defer file.Close()

	values := make(map[string]string)
	scanner := bufio.NewScanner(file)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		key, value, ok := strings.Cut(line, "=")
		if !ok {
			return nil, fmt.Errorf("line %d: invalid format (expected key = value)", lineNum)
		}
		key = strings.TrimSpace(key)
		value = unquote(strings.TrimSpace(value))
		values[key] = value
	}

	return values, scanner.Err()
}

func unquote(value string) string {
	if len(value) >= 2 {
		if (value[0] == '"' && value[len(value)-1] == '"') ||
			(value[0] == '\'' && value[len(value)-1] == '\'') {
			return value[1 : len(value)-1]
		}
	}
	return value
}

// ApplyFileConfig applies file configuration to a Config struct.
func ApplyFileConfig(cfg *Config, values map[string]string) error {
	for key, value := range values {
		if err := setConfigValue(cfg, key, value); err != nil {
			return fmt.Errorf("config key %q: %w", key, err)
		}
	}
	return nil
}

// setConfigValue sets a config value by key. Unknown keys are ignored.
func setConfigValue(cfg *Config, key, value string) error {
	var err error
	switch key {
	// Core
	case "network":
		cfg.Network = address.Network(strings.ToLower(value))
	case "datadir":
		cfg.DataDir = value

	// Quote
	case "quote.endpoint":
		cfg.Quote.Endpoint = value
	case "quote.timeout":
		cfg.Quote.Timeout, err = time.ParseDuration(value)
	case "quote.minfeerate":
		cfg.Quote.MinFeeRate, err = strconv.ParseFloat(value, 64)
	case "quote.feerate":
		cfg.Quote.FeeRate, err = strconv.ParseFloat(value, 64)
	case "quote.debounce":
		cfg.Quote.Debounce, err = time.ParseDuration(value)

	// API
	case "api.enabled", "api":
		cfg.API.Enabled = parseBool(value)
	case "api.addr":
		cfg.API.Addr = value
	case "api.port":
		cfg.API.Port, err = strconv.Atoi(value)
	case "api.allowed":
		cfg.API.AllowedIPs = parseStringList(value)
	case "api.cors":
		cfg.API.CORSOrigins = parseStringList(value)
	case "api.upstream":
		cfg.API.Upstream = value
	case "api.authtoken":
		cfg.API.AuthToken = value

	// Wallet
	case "wallet.rpc":
		cfg.Wallet.RPC = value
	case "wallet.rpcuser":
		cfg.Wallet.RPCUser = value
	case "wallet.rpcpassword":
		cfg.Wallet.RPCPassword = value
	case "wallet.passwordfile":
		cfg.Wallet.PasswordFile = value
	case "wallet.address":
		cfg.Wallet.Address = value
	case "wallet.unlocktimeout":
		cfg.Wallet.UnlockTimeout, err = time.ParseDuration(value)

	// Compression
	case "compress.maxdimension":
		cfg.Compress.MaxDimension, err = strconv.Atoi(value)

	// Logging
	case "log.level":
		cfg.Log.Level = value
	case "log.file":
		cfg.Log.File = value
	case "log.json":
		cfg.Log.JSON = parseBool(value)
	}
	return err
}

// parseBool parses a boolean value.
func parseBool(s string) bool {
	s = strings.ToLower(s)
	return s == "true" || s == "1" || s == "yes" || s == "on"
}

// parseStringList parses a comma-separated list.
func parseStringList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			result = append(result, p)
		}
	}
	return result
}

func joinHostPort(host string, port int) string {
	return net.JoinHostPort(host, strconv.Itoa(port))
}

// WriteDefaultConfig writes a default configuration file.
func WriteDefaultConfig(path string, network address.Network) error {
	def := Default(network)
	content := `# Inscribe Configuration

# Network: mainnet, testnet or regtest
network = ` + string(network) + `

# Data directory (default: ~/.inscribe)
# datadir = ~/.inscribe

# ============================================================================
# Quote
# ============================================================================

# Create-commit endpoint used by inscribe-cli (usually a local inscribed)
quote.endpoint = ` + def.Quote.Endpoint + `
quote.timeout = 30s

# Fee rates below the floor are raised to it
quote.minfeerate = 0.1
quote.feerate = 1
quote.debounce = 1s

# ============================================================================
# Create-commit proxy (inscribed)
# ============================================================================

api.enabled = true
api.addr = 127.0.0.1
api.port = ` + strconv.Itoa(def.API.Port) + `
api.allowed = 127.0.0.1
# CORS allowed origins ("*" for all)
# api.cors = http://localhost:3000

# Upstream inscription service
# api.upstream = https://inscribe.example/api/inscriptions/create-commit
# Prefer the ` + EnvAuthToken + ` environment variable
# api.authtoken =

# ============================================================================
# Wallet
# ============================================================================

wallet.rpc = ` + def.Wallet.RPC + `
# wallet.rpcuser =
# Prefer the ` + EnvWalletRPCPassword + ` environment variable
# wallet.rpcpassword =
# Sealed wallet passphrase written by "inscribe-cli seal-password"
# wallet.passwordfile =
# wallet.address =
wallet.unlocktimeout = 60s

# ============================================================================
# Compression
# ============================================================================

compress.maxdimension = 2048

# ============================================================================
# Logging
# ============================================================================

log.level = info
# log.file =
log.json = false
`
	return os.WriteFile(path, []byte(content), 0644)
}
