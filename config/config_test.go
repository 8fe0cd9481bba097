package config

import (
	"errors"
	"flag"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/hashicorp/go-multierror"

	"github.com/Klingon-tech/inscribe/pkg/address"
)

func TestDefaultsValidate(t *testing.T) {
	for _, n := range []address.Network{address.Mainnet, address.Testnet, address.Regtest} {
		cfg := Default(n)
		if cfg.Network != n {
			t.Errorf("Default(%s).Network = %s", n, cfg.Network)
		}
		if err := Validate(cfg); err != nil {
			t.Errorf("Default(%s) invalid: %v", n, err)
		}
	}
}

func TestDefaultMinFeeRate(t *testing.T) {
	cfg := DefaultMainnet()
	if cfg.Quote.MinFeeRate != 0.1 {
		t.Errorf("MinFeeRate = %v, want 0.1", cfg.Quote.MinFeeRate)
	}
	if cfg.Quote.FeeRate != 1 {
		t.Errorf("FeeRate = %v, want 1", cfg.Quote.FeeRate)
	}
	if cfg.Quote.Debounce != time.Second {
		t.Errorf("Debounce = %v, want 1s", cfg.Quote.Debounce)
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "inscribe.conf")
	content := `# comment
network = testnet
quote.minfeerate = 0.5
quote.debounce = 250ms
api.cors = "http://a.example, http://b.example"
api.authtoken = 'secret'
compress.maxdimension = 1024
log.json = yes
unknown.key = whatever
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	values, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	cfg := DefaultMainnet()
	if err := ApplyFileConfig(cfg, values); err != nil {
		t.Fatalf("ApplyFileConfig: %v", err)
	}

	if cfg.Network != address.Testnet {
		t.Errorf("Network = %s", cfg.Network)
	}
	if cfg.Quote.MinFeeRate != 0.5 {
		t.Errorf("MinFeeRate = %v", cfg.Quote.MinFeeRate)
	}
	if cfg.Quote.Debounce != 250*time.Millisecond {
		t.Errorf("Debounce = %v", cfg.Quote.Debounce)
	}
	if len(cfg.API.CORSOrigins) != 2 || cfg.API.CORSOrigins[1] != "http://b.example" {
		t.Errorf("CORSOrigins = %v", cfg.API.CORSOrigins)
	}
	if cfg.API.AuthToken != "secret" {
		t.Errorf("AuthToken = %q", cfg.API.AuthToken)
	}
	if cfg.Compress.MaxDimension != 1024 {
		t.Errorf("MaxDimension = %d", cfg.Compress.MaxDimension)
	}
	if !cfg.Log.JSON {
		t.Error("Log.JSON not set")
	}
}

func TestLoadFile_Missing(t *testing.T) {
	values, err := LoadFile(filepath.Join(t.TempDir(), "nope.conf"))
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if len(values) != 0 {
		t.Errorf("values = %v", values)
	}
}

func TestLoadFile_BadLine(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.conf")
	os.WriteFile(path, []byte("network testnet\n"), 0644)
	if _, err := LoadFile(path); err == nil || !strings.Contains(err.Error(), "line 1") {
		t.Fatalf("err = %v", err)
	}
}

func TestApplyFileConfig_BadValue(t *testing.T) {
	cfg := DefaultMainnet()
	err := ApplyFileConfig(cfg, map[string]string{"quote.timeout": "soon"})
	if err == nil || !strings.Contains(err.Error(), "quote.timeout") {
		t.Fatalf("err = %v", err)
	}
}

func TestParseFlags(t *testing.T) {
	f, err := ParseFlags([]string{"--network=testnet", "--api=false", "--min-fee-rate=2", "--api-cors=*", "--log-json"})
	if err != nil {
		t.Fatalf("ParseFlags: %v", err)
	}
	cfg := DefaultMainnet()
	ApplyFlags(cfg, f)

	if cfg.Network != address.Testnet {
		t.Errorf("Network = %s", cfg.Network)
	}
	if cfg.API.Enabled {
		t.Error("API should be disabled")
	}
	if cfg.Quote.MinFeeRate != 2 {
		t.Errorf("MinFeeRate = %v", cfg.Quote.MinFeeRate)
	}
	if len(cfg.API.CORSOrigins) != 1 || cfg.API.CORSOrigins[0] != "*" {
		t.Errorf("CORSOrigins = %v", cfg.API.CORSOrigins)
	}
	if !cfg.Log.JSON {
		t.Error("Log.JSON not set")
	}
}

func TestParseFlags_Unset(t *testing.T) {
	f, err := ParseFlags(nil)
	if err != nil {
		t.Fatalf("ParseFlags: %v", err)
	}
	cfg := DefaultMainnet()
	cfg.API.Enabled = false
	ApplyFlags(cfg, f)
	if cfg.API.Enabled {
		t.Error("unset --api must not override the file value")
	}
}

func TestParseFlags_StrayFlag(t *testing.T) {
	if _, err := ParseFlags([]string{"extra", "--api-port=1"}); err == nil {
		t.Fatal("expected error for flag after positional argument")
	}
}

func TestParseFlags_Unknown(t *testing.T) {
	_, err := ParseFlags([]string{"--bogus"})
	if err == nil || errors.Is(err, flag.ErrHelp) {
		t.Fatalf("err = %v", err)
	}
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		EnvAuthToken:         "tok",
		EnvWalletRPCPassword: "",
	}
	cfg := DefaultMainnet()
	cfg.Wallet.RPCPassword = "fromfile"
	ApplyEnv(cfg, func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	})
	if cfg.API.AuthToken != "tok" {
		t.Errorf("AuthToken = %q", cfg.API.AuthToken)
	}
	if cfg.Wallet.RPCPassword != "fromfile" {
		t.Errorf("empty env var must not clear RPCPassword, got %q", cfg.Wallet.RPCPassword)
	}
}

func TestValidate_AggregatesErrors(t *testing.T) {
	cfg := DefaultMainnet()
	cfg.Network = "signet"
	cfg.Quote.MinFeeRate = 0
	cfg.API.Port = 70000
	cfg.Compress.MaxDimension = 0
	cfg.Wallet.RPC = "ftp://wallet"

	err := Validate(cfg)
	var merr *multierror.Error
	if !errors.As(err, &merr) {
		t.Fatalf("err = %v, want *multierror.Error", err)
	}
	if len(merr.Errors) != 5 {
		t.Fatalf("got %d errors, want 5: %v", len(merr.Errors), err)
	}
	for _, want := range []string{"network", "quote.minfeerate", "api.port", "compress.maxdimension", "wallet.rpc"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error missing %q: %v", want, err)
		}
	}
}

func TestValidate_WalletAddressNetwork(t *testing.T) {
	cfg := DefaultMainnet()
	cfg.Wallet.Address = "tb1qw508d6qejxtdg4y5r3zarvary0c5xw7kxpjzsx"
	if err := Validate(cfg); err == nil {
		t.Fatal("testnet address accepted on mainnet")
	}
	cfg.Network = address.Testnet
	if err := Validate(cfg); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	cfg, err := LoadFromFile(dir, address.Testnet)
	if err != nil {
		t.Fatalf("LoadFromFile: %v", err)
	}
	if _, err := os.Stat(cfg.ConfigFile()); err != nil {
		t.Fatalf("default config not written: %v", err)
	}
	if _, err := os.Stat(cfg.DatabaseDir()); err != nil {
		t.Fatalf("database dir not created: %v", err)
	}

	// The written default config must round-trip through the loader.
	again, err := LoadFromFile(dir, "")
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if again.Network != address.Testnet {
		t.Errorf("Network = %s, want testnet from file", again.Network)
	}
	if again.API.Port != 8180 {
		t.Errorf("API.Port = %d", again.API.Port)
	}
}

func TestAPIListenAddr(t *testing.T) {
	cfg := DefaultMainnet()
	if got := cfg.APIListenAddr(); got != "127.0.0.1:8080" {
		t.Errorf("APIListenAddr = %q", got)
	}
}
