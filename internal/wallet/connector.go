package wallet

import (
	"context"
	"errors"
	"fmt"

	"github.com/Klingon-tech/inscribe/internal/storage"
	"github.com/Klingon-tech/inscribe/pkg/address"
)

var lastAccountKey = []byte("wallet/account")

// AccountSink receives wallet connection changes.
type AccountSink interface {
	ConnectWallet(addr string)
	DisconnectWallet()
}

// Connector obtains the user's address from a Signer, validates it and
// hands it to the sink. The last connected address is remembered in db so
// it can be restored without asking the wallet again.
type Connector struct {
	signer  Signer
	sink    AccountSink
	network address.Network
	db      storage.DB
}

// NewConnector creates a connector. db may be nil to disable Restore.
func NewConnector(signer Signer, sink AccountSink, network address.Network, db storage.DB) *Connector {
	return &Connector{signer: signer, sink: sink, network: network, db: db}
}

// Connect asks the wallet for its accounts and connects the first one.
func (c *Connector) Connect(ctx context.Context) (string, error) {
	accounts, err := c.signer.RequestAccounts(ctx)
	if err != nil {
		return "", err
	}
	if len(accounts) == 0 {
		return "", ErrNoAccounts
	}
	addr := accounts[0]
	if err := address.Validate(addr, c.network); err != nil {
		return "", fmt.Errorf("wallet account: %w", err)
	}

	if c.db != nil {
		if err := c.db.Put(lastAccountKey, []byte(addr)); err != nil {
			return "", fmt.Errorf("remember account: %w", err)
		}
	}
	c.sink.ConnectWallet(addr)
	return addr, nil
}

// Restore reconnects the previously connected address. It reports false
// when there is nothing to restore.
func (c *Connector) Restore() (string, bool, error) {
	if c.db == nil {
		return "", false, nil
	}
	data, err := c.db.Get(lastAccountKey)
	if errors.Is(err, storage.ErrNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("load account: %w", err)
	}
	addr := string(data)
	if err := address.Validate(addr, c.network); err != nil {
		// Stale entry from another network; forget it.
		_ = c.db.Delete(lastAccountKey)
		return "", false, nil
	}
	c.sink.ConnectWallet(addr)
	return addr, true, nil
}

// Disconnect clears the connection and the remembered address.
func (c *Connector) Disconnect() error {
	c.sink.DisconnectWallet()
	if c.db == nil {
		return nil
	}
	if err := c.db.Delete(lastAccountKey); err != nil && !errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("forget account: %w", err)
	}
	return nil
}
