package wallet

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/Klingon-tech/inscribe/internal/rpcclient"
	"github.com/Klingon-tech/inscribe/internal/storage"
	"github.com/Klingon-tech/inscribe/pkg/address"
	"github.com/Klingon-tech/inscribe/pkg/inscription"
)

const (
	mainnetAddr = "bc1qw508d6qejxtdg4y5r3zarvary0c5xw7kv8f3t4"
	testnetAddr = "tb1qw508d6qejxtdg4y5r3zarvary0c5xw7kxpjzsx"
)

// walletServer is a scripted JSON-RPC wallet that records raw requests.
type walletServer struct {
	mu       sync.Mutex
	methods  []string
	bodies   []string
	handlers map[string]func(params []json.RawMessage) (interface{}, *rpcErr)
}

type rpcErr struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func newWalletServer(t *testing.T) (*walletServer, *rpcclient.Client) {
	t.Helper()
	ws := &walletServer{handlers: make(map[string]func([]json.RawMessage) (interface{}, *rpcErr))}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		var req struct {
			Method string            `json:"method"`
			Params []json.RawMessage `json:"params"`
		}
		json.Unmarshal(body, &req)

		ws.mu.Lock()
		ws.methods = append(ws.methods, req.Method)
		ws.bodies = append(ws.bodies, string(body))
		h := ws.handlers[req.Method]
		ws.mu.Unlock()

		if h == nil {
			w.WriteHeader(http.StatusNotFound)
			json.NewEncoder(w).Encode(map[string]interface{}{"result": nil, "error": rpcErr{-32601, "Method not found"}})
			return
		}
		result, e := h(req.Params)
		if e != nil {
			w.WriteHeader(http.StatusInternalServerError)
		}
		json.NewEncoder(w).Encode(map[string]interface{}{"result": result, "error": e})
	}))
	t.Cleanup(srv.Close)
	return ws, rpcclient.New(srv.URL)
}

func TestRPCSigner_RequestAccounts(t *testing.T) {
	ws, client := newWalletServer(t)
	ws.handlers["listreceivedbyaddress"] = func([]json.RawMessage) (interface{}, *rpcErr) {
		return []map[string]interface{}{{"address": mainnetAddr, "amount": 0}, {"address": "bc1qother"}}, nil
	}

	accounts, err := NewRPCSigner(client).RequestAccounts(context.Background())
	if err != nil {
		t.Fatalf("RequestAccounts: %v", err)
	}
	if len(accounts) != 2 || accounts[0] != mainnetAddr {
		t.Errorf("accounts = %v", accounts)
	}

	pinned, err := NewRPCSigner(client, WithAddress("bc1qpinned")).RequestAccounts(context.Background())
	if err != nil || len(pinned) != 1 || pinned[0] != "bc1qpinned" {
		t.Errorf("pinned = %v, %v", pinned, err)
	}
}

func TestRPCSigner_NoAccounts(t *testing.T) {
	ws, client := newWalletServer(t)
	ws.handlers["listreceivedbyaddress"] = func([]json.RawMessage) (interface{}, *rpcErr) {
		return []interface{}{}, nil
	}
	if _, err := NewRPCSigner(client).RequestAccounts(context.Background()); !errors.Is(err, ErrNoAccounts) {
		t.Errorf("error = %v, want ErrNoAccounts", err)
	}
}

func TestRPCSigner_SendBitcoinExactAmount(t *testing.T) {
	ws, client := newWalletServer(t)
	ws.handlers["sendtoaddress"] = func(params []json.RawMessage) (interface{}, *rpcErr) {
		return "deadbeef", nil
	}

	txid, err := NewRPCSigner(client).SendBitcoin(context.Background(), "bc1qpay", 1500)
	if err != nil {
		t.Fatalf("SendBitcoin: %v", err)
	}
	if txid != "deadbeef" {
		t.Errorf("txid = %q", txid)
	}
	if len(ws.bodies) != 1 {
		t.Fatalf("requests = %v", ws.methods)
	}
	if !bytes.Contains([]byte(ws.bodies[0]), []byte(`"params":["bc1qpay",0.00001500]`)) {
		t.Errorf("body = %s, want exact 8-decimal amount", ws.bodies[0])
	}
}

func TestRPCSigner_SendBitcoinRejectsBadAmount(t *testing.T) {
	ws, client := newWalletServer(t)
	_, err := NewRPCSigner(client).SendBitcoin(context.Background(), "bc1qpay", 0)
	if !errors.Is(err, inscription.ErrInvalidAmount) {
		t.Errorf("error = %v, want ErrInvalidAmount", err)
	}
	if len(ws.methods) != 0 {
		t.Errorf("wallet was called: %v", ws.methods)
	}
}

func TestRPCSigner_UnlocksBeforeSending(t *testing.T) {
	ws, client := newWalletServer(t)
	ws.handlers["walletpassphrase"] = func(params []json.RawMessage) (interface{}, *rpcErr) {
		if string(params[0]) != `"hunter2"` || string(params[1]) != "30" {
			return nil, &rpcErr{-14, "The wallet passphrase entered was incorrect."}
		}
		return nil, nil
	}
	ws.handlers["sendtoaddress"] = func([]json.RawMessage) (interface{}, *rpcErr) {
		return "cafe", nil
	}

	signer := NewRPCSigner(client, WithPassphrase([]byte("hunter2"), 30*time.Second))
	if _, err := signer.SendBitcoin(context.Background(), "bc1qpay", 10); err != nil {
		t.Fatalf("SendBitcoin: %v", err)
	}
	if len(ws.methods) != 2 || ws.methods[0] != "walletpassphrase" || ws.methods[1] != "sendtoaddress" {
		t.Errorf("methods = %v", ws.methods)
	}

	wrong := NewRPCSigner(client, WithPassphrase([]byte("nope"), 30*time.Second))
	if _, err := wrong.SendBitcoin(context.Background(), "bc1qpay", 10); !errors.Is(err, ErrBadPassphrase) {
		t.Errorf("error = %v, want ErrBadPassphrase", err)
	}
}

func TestRPCSigner_Locked(t *testing.T) {
	ws, client := newWalletServer(t)
	ws.handlers["sendtoaddress"] = func([]json.RawMessage) (interface{}, *rpcErr) {
		return nil, &rpcErr{-13, "Error: Please enter the wallet passphrase with walletpassphrase first."}
	}
	if _, err := NewRPCSigner(client).SendBitcoin(context.Background(), "bc1qpay", 10); !errors.Is(err, ErrWalletLocked) {
		t.Errorf("error = %v, want ErrWalletLocked", err)
	}
}

type fakeSigner struct {
	accounts []string
	err      error
}

func (f *fakeSigner) RequestAccounts(context.Context) ([]string, error) {
	return f.accounts, f.err
}

func (f *fakeSigner) SendBitcoin(context.Context, string, uint64) (string, error) {
	return "", errors.New("not used")
}

type recordingSink struct {
	connected   []string
	disconnects int
}

func (r *recordingSink) ConnectWallet(addr string) { r.connected = append(r.connected, addr) }
func (r *recordingSink) DisconnectWallet()         { r.disconnects++ }

func TestConnector_ConnectRestoreDisconnect(t *testing.T) {
	db := storage.NewMemory()
	sink := &recordingSink{}
	c := NewConnector(&fakeSigner{accounts: []string{mainnetAddr}}, sink, address.Mainnet, db)

	if _, ok, err := c.Restore(); err != nil || ok {
		t.Fatalf("Restore on empty db = %v, %v", ok, err)
	}

	addr, err := c.Connect(context.Background())
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if addr != mainnetAddr || len(sink.connected) != 1 {
		t.Errorf("Connect = %q, sink = %v", addr, sink.connected)
	}

	// A fresh connector over the same db restores without the wallet.
	restored := NewConnector(&fakeSigner{err: errors.New("offline")}, sink, address.Mainnet, db)
	addr, ok, err := restored.Restore()
	if err != nil || !ok || addr != mainnetAddr {
		t.Fatalf("Restore = %q, %v, %v", addr, ok, err)
	}

	if err := restored.Disconnect(); err != nil {
		t.Fatalf("Disconnect: %v", err)
	}
	if sink.disconnects != 1 {
		t.Errorf("disconnects = %d", sink.disconnects)
	}
	if _, ok, _ := restored.Restore(); ok {
		t.Error("Restore after Disconnect should find nothing")
	}
}

func TestConnector_RejectsWrongNetwork(t *testing.T) {
	sink := &recordingSink{}
	c := NewConnector(&fakeSigner{accounts: []string{testnetAddr}}, sink, address.Mainnet, nil)
	_, err := c.Connect(context.Background())
	if !errors.Is(err, address.ErrWrongNetwork) {
		t.Errorf("error = %v, want ErrWrongNetwork", err)
	}
	if len(sink.connected) != 0 {
		t.Error("sink should not be notified")
	}
}

func TestConnector_NoAccounts(t *testing.T) {
	c := NewConnector(&fakeSigner{}, &recordingSink{}, address.Mainnet, nil)
	if _, err := c.Connect(context.Background()); !errors.Is(err, ErrNoAccounts) {
		t.Errorf("error = %v, want ErrNoAccounts", err)
	}
}

var fastSeal = SealParams{Memory: 64, Iterations: 1, Threads: 1}

func TestSealOpen(t *testing.T) {
	sealed, err := Seal([]byte("rpc-secret"), []byte("pass"), fastSeal)
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	if bytes.Contains(sealed, []byte("rpc-secret")) {
		t.Fatal("sealed output contains plaintext")
	}

	secret, err := Open(sealed, []byte("pass"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if string(secret) != "rpc-secret" {
		t.Errorf("secret = %q", secret)
	}

	if _, err := Open(sealed, []byte("wrong")); !errors.Is(err, ErrBadPassphrase) {
		t.Errorf("wrong passphrase error = %v", err)
	}

	// Tampering with the authenticated header is detected.
	tampered := append([]byte(nil), sealed...)
	tampered[1] ^= 0xff
	if _, err := Open(tampered, []byte("pass")); !errors.Is(err, ErrBadPassphrase) {
		t.Errorf("tampered error = %v", err)
	}

	if _, err := Open(sealed[:10], []byte("pass")); err == nil {
		t.Error("short input should fail")
	}
}

func TestSealFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rpcpassword.sealed")
	if err := SealFile(path, []byte("s3cret"), []byte("pass"), fastSeal); err != nil {
		t.Fatalf("SealFile: %v", err)
	}
	secret, err := OpenFile(path, []byte("pass"))
	if err != nil {
		t.Fatalf("OpenFile: %v", err)
	}
	if string(secret) != "s3cret" {
		t.Errorf("secret = %q", secret)
	}
}
