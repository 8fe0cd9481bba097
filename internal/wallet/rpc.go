package wallet

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	klog "github.com/Klingon-tech/inscribe/internal/log"
	"github.com/Klingon-tech/inscribe/internal/rpcclient"
	"github.com/Klingon-tech/inscribe/pkg/inscription"
)

// Wallet RPC error codes.
const (
	codeWalletUnlockNeeded    = -13
	codeWalletPassphraseWrong = -14
	codeWalletWrongEncState   = -15
)

// RPCSigner drives a bitcoind-compatible wallet over JSON-RPC.
type RPCSigner struct {
	client        *rpcclient.Client
	address       string
	passphrase    []byte
	unlockTimeout time.Duration
	logger        zerolog.Logger
}

// RPCOption configures an RPCSigner.
type RPCOption func(*RPCSigner)

// WithAddress pins the account instead of asking the wallet for one.
func WithAddress(addr string) RPCOption {
	return func(s *RPCSigner) { s.address = addr }
}

// WithPassphrase unlocks the wallet for unlockTimeout before each payment.
func WithPassphrase(passphrase []byte, unlockTimeout time.Duration) RPCOption {
	return func(s *RPCSigner) {
		s.passphrase = passphrase
		s.unlockTimeout = unlockTimeout
	}
}

// NewRPCSigner wraps a JSON-RPC client.
func NewRPCSigner(client *rpcclient.Client, opts ...RPCOption) *RPCSigner {
	s := &RPCSigner{
		client:        client,
		unlockTimeout: 60 * time.Second,
		logger:        klog.WithComponent("wallet"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type receivedByAddress struct {
	Address string `json:"address"`
}

// RequestAccounts returns the pinned address, or the wallet's receive
// addresses in wallet order.
func (s *RPCSigner) RequestAccounts(ctx context.Context) ([]string, error) {
	if s.address != "" {
		return []string{s.address}, nil
	}
	var entries []receivedByAddress
	if err := s.client.Call(ctx, "listreceivedbyaddress", []interface{}{0, true}, &entries); err != nil {
		return nil, fmt.Errorf("list addresses: %w", err)
	}
	accounts := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.Address != "" {
			accounts = append(accounts, e.Address)
		}
	}
	if len(accounts) == 0 {
		return nil, ErrNoAccounts
	}
	return accounts, nil
}

// SendBitcoin pays an integer satoshi amount. The amount is converted to
// an exact 8-decimal BTC literal; no floating point is involved.
func (s *RPCSigner) SendBitcoin(ctx context.Context, addr string, sats uint64) (string, error) {
	if err := inscription.CheckSats(sats); err != nil {
		return "", err
	}

	if len(s.passphrase) > 0 {
		secs := int64(s.unlockTimeout / time.Second)
		if secs < 1 {
			secs = 1
		}
		err := s.client.Call(ctx, "walletpassphrase", []interface{}{string(s.passphrase), secs}, nil)
		switch {
		case err == nil, rpcclient.IsCode(err, codeWalletWrongEncState):
			// Unencrypted wallets reject walletpassphrase; nothing to unlock.
		case rpcclient.IsCode(err, codeWalletPassphraseWrong):
			return "", fmt.Errorf("unlock wallet: %w", ErrBadPassphrase)
		default:
			return "", fmt.Errorf("unlock wallet: %w", err)
		}
	}

	amount := json.Number(inscription.FormatBTC(sats))
	var txid string
	if err := s.client.Call(ctx, "sendtoaddress", []interface{}{addr, amount}, &txid); err != nil {
		if rpcclient.IsCode(err, codeWalletUnlockNeeded) {
			return "", ErrWalletLocked
		}
		return "", fmt.Errorf("send payment: %w", err)
	}

	s.logger.Info().
		Str("address", addr).
		Uint64("sats", sats).
		Str("txid", txid).
		Msg("Payment sent")
	return txid, nil
}
