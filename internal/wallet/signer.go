// Package wallet connects to an external signing wallet, obtains the user's
// address and sends inscription payments. Keys never leave the wallet.
package wallet

import (
	"context"
	"errors"
)

var (
	// ErrNoAccounts is returned when the wallet exposes no address.
	ErrNoAccounts = errors.New("no accounts found")
	// ErrWalletLocked is returned when the wallet needs a passphrase.
	ErrWalletLocked = errors.New("wallet is locked")
)

// Signer is the external wallet. It owns keys, signing and broadcast.
type Signer interface {
	// RequestAccounts returns the wallet's addresses, first one primary.
	RequestAccounts(ctx context.Context) ([]string, error)
	// SendBitcoin pays sats to addr and returns the transaction id.
	SendBitcoin(ctx context.Context, addr string, sats uint64) (string, error)
}
