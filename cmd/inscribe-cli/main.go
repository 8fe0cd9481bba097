// inscribe-cli prices and pays for inscriptions from the command line.
package main

import (
	"fmt"
	"os"
	"strings"
	"syscall"

	"golang.org/x/term"

	"github.com/Klingon-tech/inscribe/config"
	klog "github.com/Klingon-tech/inscribe/internal/log"
	"github.com/Klingon-tech/inscribe/pkg/address"
)

// globals are the flags accepted before the subcommand.
type globals struct {
	dataDir   string
	network   string
	endpoint  string
	walletRPC string
	verbose   bool
}

// parseGlobals consumes global flags from the front of args and returns
// the remaining arguments, starting at the subcommand.
func parseGlobals(args []string) (globals, []string) {
	var g globals
	for len(args) > 0 {
		name, value, hasValue := strings.Cut(args[0], "=")
		var dst *string
		switch name {
		case "--datadir":
			dst = &g.dataDir
		case "--network":
			dst = &g.network
		case "--endpoint":
			dst = &g.endpoint
		case "--wallet-rpc":
			dst = &g.walletRPC
		case "--verbose", "-V":
			g.verbose = true
			args = args[1:]
			continue
		default:
			return g, args
		}
		if hasValue {
			*dst = value
			args = args[1:]
			continue
		}
		if len(args) < 2 {
			return g, args
		}
		*dst = args[1]
		args = args[2:]
	}
	return g, args
}

func main() {
	g, args := parseGlobals(os.Args[1:])
	if len(args) == 0 {
		usage()
		os.Exit(1)
	}

	level := "warn"
	if g.verbose {
		level = "debug"
	}
	klog.Init(level, false, "")

	cmd := args[0]
	cmdArgs := args[1:]

	switch cmd {
	case "help", "--help", "-h":
		usage()
		return
	case "address":
		// Needs no data directory.
		cmdAddress(cmdArgs, address.Network(strings.ToLower(g.network)))
		return
	}

	cfg, err := config.LoadFromFile(g.dataDir, address.Network(strings.ToLower(g.network)))
	if err != nil {
		fatal("%v", err)
	}
	if g.endpoint != "" {
		cfg.Quote.Endpoint = g.endpoint
	}
	if g.walletRPC != "" {
		cfg.Wallet.RPC = g.walletRPC
	}

	switch cmd {
	case "check":
		cmdCheck(cfg, cmdArgs)
	case "quote":
		cmdQuote(cfg, cmdArgs)
	case "mint":
		cmdMint(cfg, cmdArgs)
	case "history":
		cmdHistory(cfg, cmdArgs)
	case "connect":
		cmdConnect(cfg)
	case "disconnect":
		cmdDisconnect(cfg)
	case "seal-password":
		cmdSealPassword(cfg, cmdArgs)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		usage()
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintf(os.Stderr, `Usage: inscribe-cli [global flags] <command> [flags]

Global flags:
  --datadir <path>      Data directory (default: ~/.inscribe)
  --network <net>       mainnet, testnet or regtest (default: from config)
  --endpoint <url>      Create-commit endpoint (default: quote.endpoint)
  --wallet-rpc <url>    Wallet JSON-RPC URL (default: wallet.rpc)
  --verbose, -V         Debug logging

Commands:
  check <file> [--quality <1-100> | --fit]
                                  Check a file against the 200kb-400kb window
  quote --file <f> [--fee-rate <r>] [--quality <q> | --fit] [--interactive]
                                  Calculate the inscription cost
  mint --file <f> [--fee-rate <r>] [--quality <q> | --fit] [--yes]
                                  Calculate the cost and pay it
  history [--limit <n>]           List sent inscription payments
  address <addr>                  Validate a payment address
  connect                         Connect the wallet's first account
  disconnect                      Forget the connected account
  seal-password [--out <path>]    Seal the wallet passphrase under an unlock password
`)
}

func readPassword(prompt string) ([]byte, error) {
	fmt.Fprint(os.Stderr, prompt)
	password, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Fprintln(os.Stderr) // newline after hidden input
	if err != nil {
		return nil, err
	}
	return password, nil
}

// ── Error helper ────────────────────────────────────────────────────────

func fatal(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	os.Exit(1)
}
