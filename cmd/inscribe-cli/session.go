package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/Klingon-tech/inscribe/config"
	"github.com/Klingon-tech/inscribe/internal/compress"
	"github.com/Klingon-tech/inscribe/internal/mint"
	"github.com/Klingon-tech/inscribe/internal/present"
	"github.com/Klingon-tech/inscribe/internal/quoteclient"
	"github.com/Klingon-tech/inscribe/internal/recalc"
	"github.com/Klingon-tech/inscribe/internal/receipts"
	"github.com/Klingon-tech/inscribe/internal/rpcclient"
	"github.com/Klingon-tech/inscribe/internal/storage"
	"github.com/Klingon-tech/inscribe/internal/wallet"
	"github.com/Klingon-tech/inscribe/pkg/inscription"
)

// Key prefixes inside the CLI database.
var (
	receiptsPrefix = []byte("r/")
	walletPrefix   = []byte("w/")
)

var errClosed = errors.New("session closed")

// session wires the recalculation pipeline for one CLI invocation.
type session struct {
	orch      *recalc.Orchestrator
	files     *compress.Session
	adapter   *present.Adapter
	connector *wallet.Connector
	minter    *mint.Service
	receipts  *receipts.Store
}

func newSession(cfg *config.Config, db storage.DB, fetcher recalc.Fetcher, signer wallet.Signer) *session {
	orch := recalc.New(fetcher, recalc.Config{
		Debounce:       cfg.Quote.Debounce,
		MinFeeRate:     cfg.Quote.MinFeeRate,
		InitialFeeRate: cfg.Quote.FeeRate,
	})
	store := receipts.NewStore(storage.NewPrefixDB(db, receiptsPrefix))
	return &session{
		orch:      orch,
		files:     compress.NewSession(compress.JPEGCompressor{MaxDimension: cfg.Compress.MaxDimension}, orch),
		adapter:   present.New(),
		connector: wallet.NewConnector(signer, orch, cfg.Network, storage.NewPrefixDB(db, walletPrefix)),
		minter:    mint.New(orch, signer, store, nil),
		receipts:  store,
	}
}

func (s *session) Close() {
	s.orch.Close()
}

// connect restores the remembered account or asks the wallet for one.
func (s *session) connect(ctx context.Context) (string, error) {
	addr, ok, err := s.connector.Restore()
	if err != nil {
		return "", err
	}
	if ok {
		return addr, nil
	}
	return s.connector.Connect(ctx)
}

// fileOptions select how the loaded file is re-encoded.
type fileOptions struct {
	quality int
	fit     bool
}

// loadFile reads path, hands it to the compression session and applies
// opts. It returns the file the orchestrator now sees.
func (s *session) loadFile(ctx context.Context, path string, opts fileOptions) (*inscription.File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	f, err := inscription.NewFile(filepath.Base(path), data)
	if err != nil {
		return nil, err
	}
	s.files.Load(f)

	switch {
	case opts.fit:
		q, out, err := s.files.FitQuality(ctx)
		if err != nil {
			return out, err
		}
		fmt.Fprintf(os.Stderr, "Quality %d gives %s\n", q, inscription.FormatSize(out.Size()))
		return out, nil
	case opts.quality > 0 && opts.quality < 100:
		out, err := s.files.SetQuality(ctx, opts.quality)
		if err != nil && out != nil {
			// The original stays selected.
			fmt.Fprintf(os.Stderr, "Warning: compression failed, using original: %v\n", err)
			return out, nil
		}
		return out, err
	default:
		return f, nil
	}
}

// waitForQuote follows the orchestrator until the current inputs settle,
// fail or turn out to be ineligible. Status changes are written to out.
func (s *session) waitForQuote(ctx context.Context, out io.Writer) (present.View, error) {
	ch, unsubscribe := s.orch.Subscribe()
	defer unsubscribe()

	last := ""
	for {
		select {
		case <-ctx.Done():
			return present.View{}, ctx.Err()
		case p, ok := <-ch:
			if !ok {
				return present.View{}, errClosed
			}
			v := s.adapter.Render(p, s.minter.Minting())
			if v.StatusLine != last {
				fmt.Fprintln(out, v.StatusLine)
				last = v.StatusLine
			}
			switch {
			case p.State.Kind == recalc.Settled:
				return v, nil
			case p.State.Kind == recalc.Failed:
				if v.Banner != "" {
					return v, errors.New(v.Banner)
				}
				return v, errors.New(v.DisabledReason)
			case p.State.Kind == recalc.Idle && !p.Compressing:
				return v, errors.New(v.DisabledReason)
			}
		}
	}
}

// openDB opens the badger database under the data directory.
func openDB(cfg *config.Config) (storage.DB, error) {
	db, err := storage.NewBadger(cfg.DatabaseDir())
	if err != nil {
		return nil, fmt.Errorf("open database at %s: %w", cfg.DatabaseDir(), err)
	}
	return db, nil
}

// newFetcher returns the quote client for cfg.
func newFetcher(cfg *config.Config) *quoteclient.Client {
	opts := []quoteclient.Option{quoteclient.WithTimeout(cfg.Quote.Timeout)}
	if cfg.API.AuthToken != "" {
		opts = append(opts, quoteclient.WithAuthToken(cfg.API.AuthToken))
	}
	return quoteclient.New(cfg.Quote.Endpoint, opts...)
}

// newSigner returns the wallet signer for cfg. With unlock set and a
// sealed password file configured, the wallet passphrase is recovered
// after prompting for the unlock password.
func newSigner(cfg *config.Config, unlock bool) (*wallet.RPCSigner, error) {
	var rpcOpts []rpcclient.Option
	if cfg.Wallet.RPCUser != "" {
		rpcOpts = append(rpcOpts, rpcclient.WithBasicAuth(cfg.Wallet.RPCUser, cfg.Wallet.RPCPassword))
	}
	client := rpcclient.NewWithTimeout(cfg.Wallet.RPC, cfg.Quote.Timeout, rpcOpts...)

	var opts []wallet.RPCOption
	if cfg.Wallet.Address != "" {
		opts = append(opts, wallet.WithAddress(cfg.Wallet.Address))
	}
	if unlock && cfg.Wallet.PasswordFile != "" {
		pw, err := readPassword("Unlock password: ")
		if err != nil {
			return nil, fmt.Errorf("read password: %w", err)
		}
		passphrase, err := wallet.OpenFile(cfg.Wallet.PasswordFile, pw)
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", cfg.Wallet.PasswordFile, err)
		}
		opts = append(opts, wallet.WithPassphrase(passphrase, cfg.Wallet.UnlockTimeout))
	}
	return wallet.NewRPCSigner(client, opts...), nil
}
