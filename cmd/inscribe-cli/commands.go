package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/Klingon-tech/inscribe/config"
	"github.com/Klingon-tech/inscribe/internal/compress"
	"github.com/Klingon-tech/inscribe/internal/mint"
	"github.com/Klingon-tech/inscribe/internal/storage"
	"github.com/Klingon-tech/inscribe/internal/wallet"
	"github.com/Klingon-tech/inscribe/pkg/address"
	"github.com/Klingon-tech/inscribe/pkg/inscription"
)

// signalContext is cancelled on SIGINT/SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// ── check ───────────────────────────────────────────────────────────────

func cmdCheck(cfg *config.Config, args []string) {
	fs := flag.NewFlagSet("check", flag.ExitOnError)
	quality := fs.Int("quality", 100, "JPEG quality (1-100, 100 = original)")
	fit := fs.Bool("fit", false, "Search for the highest quality that fits")
	fs.Parse(args)

	if fs.NArg() != 1 {
		fatal("Usage: inscribe-cli check <file> [--quality <q> | --fit]")
	}
	path := fs.Arg(0)
	data, err := os.ReadFile(path)
	if err != nil {
		fatal("%v", err)
	}
	f, err := inscription.NewFile(filepath.Base(path), data)
	if err != nil {
		fatal("%v", err)
	}

	ctx, cancel := signalContext()
	defer cancel()

	sess := compress.NewSession(compress.JPEGCompressor{MaxDimension: cfg.Compress.MaxDimension}, discardSink{})
	sess.Load(f)
	switch {
	case *fit:
		q, out, err := sess.FitQuality(ctx)
		if err != nil {
			fatal("%v", err)
		}
		fmt.Printf("Quality:  %d\n", q)
		f = out
	case *quality < 100:
		out, err := sess.SetQuality(ctx, *quality)
		if err != nil {
			fatal("%v", err)
		}
		f = out
	}

	fmt.Printf("File:     %s (%s)\n", f.Name, f.MimeType)
	fmt.Printf("Size:     %s (%d bytes)\n", inscription.FormatSize(f.Size()), f.Size())
	fmt.Printf("Status:   %s\n", inscription.SizeHint(f.Size(), false))
	if !inscription.IsSizeValid(f.Size()) {
		os.Exit(1)
	}
}

// discardSink ignores compression updates when no orchestrator is running.
type discardSink struct{}

func (discardSink) CompressionUpdate(*inscription.File, bool) {}

// ── quote / mint ────────────────────────────────────────────────────────

type quoteFlags struct {
	file    string
	feeRate float64
	opts    fileOptions
}

func bindQuoteFlags(fs *flag.FlagSet) *quoteFlags {
	qf := &quoteFlags{}
	fs.StringVar(&qf.file, "file", "", "Image to inscribe")
	fs.Float64Var(&qf.feeRate, "fee-rate", 0, "Fee rate in sat/vB (default: quote.feerate)")
	fs.IntVar(&qf.opts.quality, "quality", 100, "JPEG quality (1-100, 100 = original)")
	fs.BoolVar(&qf.opts.fit, "fit", false, "Search for the highest quality that fits")
	return qf
}

// startQuote opens the database, wires a session and feeds it the wallet,
// the file and the fee rate. The caller closes both.
func startQuote(ctx context.Context, cfg *config.Config, qf *quoteFlags, unlock bool) (*session, storage.DB) {
	if qf.file == "" {
		fatal("--file is required")
	}
	db, err := openDB(cfg)
	if err != nil {
		fatal("%v", err)
	}
	signer, err := newSigner(cfg, unlock)
	if err != nil {
		db.Close()
		fatal("%v", err)
	}

	s := newSession(cfg, db, newFetcher(cfg), signer)
	addr, err := s.connect(ctx)
	if err != nil {
		s.Close()
		db.Close()
		fatal("connect wallet: %v", err)
	}
	fmt.Fprintf(os.Stderr, "Wallet:   %s\n", addr)

	if qf.feeRate != 0 {
		if applied := s.orch.EditFeeRate(qf.feeRate); applied != qf.feeRate {
			fmt.Fprintf(os.Stderr, "Fee rate raised to %s sat/vB\n", strconv.FormatFloat(applied, 'f', -1, 64))
		}
	}
	f, err := s.loadFile(ctx, qf.file, qf.opts)
	if err != nil {
		s.Close()
		db.Close()
		fatal("%v", err)
	}
	fmt.Fprintf(os.Stderr, "File:     %s, %s\n", f.Name, inscription.FormatSize(f.Size()))
	return s, db
}

func cmdQuote(cfg *config.Config, args []string) {
	fs := flag.NewFlagSet("quote", flag.ExitOnError)
	qf := bindQuoteFlags(fs)
	interactive := fs.Bool("interactive", false, "Read fee rate edits from stdin")
	fs.Parse(args)

	ctx, cancel := signalContext()
	defer cancel()

	s, db := startQuote(ctx, cfg, qf, *interactive)
	defer db.Close()
	defer s.Close()

	if *interactive {
		if err := runInteractive(ctx, s, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
			fatal("%v", err)
		}
		return
	}

	v, err := s.waitForQuote(ctx, os.Stderr)
	if err != nil {
		fatal("%v", err)
	}
	printQuote(os.Stdout, v.Quote.AmountSats, v.Quote.PaymentAddress, v.Quote.InscriptionID)
}

func cmdMint(cfg *config.Config, args []string) {
	fs := flag.NewFlagSet("mint", flag.ExitOnError)
	qf := bindQuoteFlags(fs)
	yes := fs.Bool("yes", false, "Pay without asking for confirmation")
	fs.Parse(args)

	ctx, cancel := signalContext()
	defer cancel()

	s, db := startQuote(ctx, cfg, qf, true)
	defer db.Close()
	defer s.Close()

	v, err := s.waitForQuote(ctx, os.Stderr)
	if err != nil {
		fatal("%v", err)
	}
	printQuote(os.Stdout, v.Quote.AmountSats, v.Quote.PaymentAddress, v.Quote.InscriptionID)

	if !*yes && !confirm(os.Stdin, os.Stderr, fmt.Sprintf("Send %s to %s? [y/N] ", v.Quote.Amount, v.Quote.PaymentAddress)) {
		fmt.Fprintln(os.Stderr, "Aborted.")
		os.Exit(1)
	}
	mintAndReport(ctx, s)
}

func mintAndReport(ctx context.Context, s *session) {
	r, err := s.minter.Mint(ctx)
	if r != nil {
		fmt.Println("Transaction Sent!")
		fmt.Printf("TxID:     %s\n", r.TxID)
	}
	if err != nil {
		if errors.Is(err, mint.ErrPaymentAmountInvalid) {
			fatal("%v", err)
		}
		fatal("mint: %v", err)
	}
}

func printQuote(w io.Writer, sats uint64, payTo, inscriptionID string) {
	fmt.Fprintf(w, "Amount:   %s (%s BTC)\n", inscription.FormatSats(sats), inscription.FormatBTC(sats))
	fmt.Fprintf(w, "Pay to:   %s\n", payTo)
	if inscriptionID != "" {
		fmt.Fprintf(w, "ID:       %s\n", inscriptionID)
	}
}

func confirm(in io.Reader, out io.Writer, prompt string) bool {
	fmt.Fprint(out, prompt)
	line, _ := bufio.NewReader(in).ReadString('\n')
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes"
}

// runInteractive prints every status change and applies commands read from
// in until it is closed or "quit" is entered:
//
//	<number>     set the fee rate
//	quality <q>  re-encode the file
//	fit          search for a fitting quality
//	retry        retry a failed calculation
//	mint         pay the settled quote
func runInteractive(ctx context.Context, s *session, in io.Reader, out io.Writer) error {
	ch, unsubscribe := s.orch.Subscribe()
	defer unsubscribe()

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- strings.TrimSpace(scanner.Text()):
			case <-ctx.Done():
				return
			}
		}
	}()

	// Background quality changes report here so only this loop writes to out.
	done := make(chan struct{})
	defer close(done)
	bgErrs := make(chan error)
	report := func(err error) {
		select {
		case bgErrs <- err:
		case <-done:
		}
	}

	fmt.Fprintln(out, `Enter a fee rate, "quality <q>", "fit", "retry", "mint" or "quit".`)
	last := ""
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case p, ok := <-ch:
			if !ok {
				return errClosed
			}
			v := s.adapter.Render(p, s.minter.Minting())
			if v.Banner != "" {
				fmt.Fprintln(out, v.Banner)
			}
			if v.StatusLine != last {
				fmt.Fprintln(out, v.StatusLine)
				last = v.StatusLine
			}
		case err := <-bgErrs:
			fmt.Fprintf(out, "Error: %v\n", err)
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			if quit := handleLine(ctx, s, line, out, report); quit {
				return nil
			}
		}
	}
}

func handleLine(ctx context.Context, s *session, line string, out io.Writer, report func(error)) bool {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false
	}
	switch fields[0] {
	case "quit", "exit", "q":
		return true
	case "retry":
		s.orch.Retry()
	case "fit":
		if _, _, err := s.files.FitQuality(ctx); err != nil {
			fmt.Fprintf(out, "Error: %v\n", err)
		}
	case "quality":
		if len(fields) != 2 {
			fmt.Fprintln(out, "Usage: quality <1-100>")
			return false
		}
		q, err := strconv.Atoi(fields[1])
		if err != nil {
			fmt.Fprintf(out, "Error: invalid quality %q\n", fields[1])
			return false
		}
		// Runs in the background so fee edits stay responsive.
		go func() {
			_, err := s.files.SetQuality(ctx, q)
			if err != nil && !errors.Is(err, compress.ErrSuperseded) {
				report(err)
			}
		}()
	case "mint":
		r, err := s.minter.Mint(ctx)
		if r != nil {
			fmt.Fprintf(out, "Transaction Sent! TxID: %s\n", r.TxID)
		}
		if err != nil {
			fmt.Fprintf(out, "Error: %v\n", err)
		}
	default:
		rate, err := strconv.ParseFloat(fields[0], 64)
		if err != nil {
			fmt.Fprintf(out, "Unknown input %q\n", line)
			return false
		}
		applied := s.orch.EditFeeRate(rate)
		if applied != rate {
			fmt.Fprintf(out, "Fee rate raised to %s sat/vB\n", strconv.FormatFloat(applied, 'f', -1, 64))
		}
	}
	return false
}

// ── history ─────────────────────────────────────────────────────────────

func cmdHistory(cfg *config.Config, args []string) {
	fs := flag.NewFlagSet("history", flag.ExitOnError)
	limit := fs.Int("limit", 20, "Maximum receipts to show (0 = all)")
	fs.Parse(args)

	db, err := openDB(cfg)
	if err != nil {
		fatal("%v", err)
	}
	defer db.Close()

	s := newSession(cfg, db, newFetcher(cfg), nil)
	defer s.Close()

	list, err := s.receipts.List(*limit)
	if err != nil {
		fatal("list receipts: %v", err)
	}
	if len(list) == 0 {
		fmt.Println("No inscriptions sent yet.")
		return
	}
	fmt.Printf("%-20s  %-14s  %-8s  %-20s  %s\n", "TIME", "AMOUNT", "FEE", "FILE", "TXID")
	for _, r := range list {
		fmt.Printf("%-20s  %-14s  %-8s  %-20s  %s\n",
			r.CreatedAt.Local().Format(time.DateTime),
			inscription.FormatSats(r.AmountSats),
			strconv.FormatFloat(r.FeeRate, 'f', -1, 64),
			truncate(r.FileName, 20),
			r.TxID,
		)
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}

// ── address ─────────────────────────────────────────────────────────────

func cmdAddress(args []string, network address.Network) {
	if len(args) != 1 {
		fatal("Usage: inscribe-cli [--network <net>] address <addr>")
	}
	if network == "" {
		network = address.Mainnet
	}
	a, err := address.Parse(args[0], network)
	if err != nil {
		fatal("%v", err)
	}
	fmt.Printf("Network:  %s\n", network)
	fmt.Printf("Type:     %s\n", a.Kind)
	if a.WitnessVersion >= 0 {
		fmt.Printf("Witness:  v%d, %d-byte program\n", a.WitnessVersion, len(a.Program))
	}
}

// ── wallet ──────────────────────────────────────────────────────────────

func cmdConnect(cfg *config.Config) {
	ctx, cancel := signalContext()
	defer cancel()

	db, err := openDB(cfg)
	if err != nil {
		fatal("%v", err)
	}
	defer db.Close()

	signer, err := newSigner(cfg, false)
	if err != nil {
		fatal("%v", err)
	}
	s := newSession(cfg, db, newFetcher(cfg), signer)
	defer s.Close()

	addr, err := s.connector.Connect(ctx)
	if err != nil {
		fatal("connect wallet: %v", err)
	}
	fmt.Printf("Connected: %s\n", addr)
}

func cmdDisconnect(cfg *config.Config) {
	db, err := openDB(cfg)
	if err != nil {
		fatal("%v", err)
	}
	defer db.Close()

	s := newSession(cfg, db, newFetcher(cfg), nil)
	defer s.Close()

	if err := s.connector.Disconnect(); err != nil {
		fatal("%v", err)
	}
	fmt.Println("Disconnected.")
}

func cmdSealPassword(cfg *config.Config, args []string) {
	fs := flag.NewFlagSet("seal-password", flag.ExitOnError)
	out := fs.String("out", filepath.Join(cfg.NetworkDataDir(), "wallet.sealed"), "Output file")
	fs.Parse(args)

	passphrase, err := readPassword("Wallet passphrase: ")
	if err != nil {
		fatal("read password: %v", err)
	}
	pw, err := readPassword("Unlock password: ")
	if err != nil {
		fatal("read password: %v", err)
	}
	confirmPw, err := readPassword("Confirm unlock password: ")
	if err != nil {
		fatal("read password: %v", err)
	}
	if string(pw) != string(confirmPw) {
		fatal("passwords do not match")
	}

	if err := wallet.SealFile(*out, passphrase, pw, wallet.DefaultSealParams()); err != nil {
		fatal("%v", err)
	}
	fmt.Printf("Sealed passphrase written to %s\n", *out)
	fmt.Printf("Add to %s:\n  wallet.passwordfile = %s\n", cfg.ConfigFile(), *out)
}
