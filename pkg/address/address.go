// Package address validates bitcoin payment addresses: bech32/bech32m
// segwit addresses and legacy base58check P2PKH/P2SH addresses.
package address

import (
	"bytes"
	"crypto/sha256"
	"errors"
	"fmt"
	"strings"

	"github.com/mr-tron/base58"
)

// Network selects the HRP and base58 version bytes an address must carry.
type Network string

const (
	Mainnet Network = "mainnet"
	Testnet Network = "testnet"
	Regtest Network = "regtest"
)

// ErrWrongNetwork is returned for well-formed addresses of another network.
var ErrWrongNetwork = errors.New("address belongs to a different network")

// Kind classifies a parsed address.
type Kind int

const (
	P2PKH Kind = iota
	P2SH
	WitnessV0
	Taproot
	WitnessFuture
)

func (k Kind) String() string {
	switch k {
	case P2PKH:
		return "p2pkh"
	case P2SH:
		return "p2sh"
	case WitnessV0:
		return "witness_v0"
	case Taproot:
		return "taproot"
	default:
		return "witness_future"
	}
}

type params struct {
	hrp        string
	pubKeyHash byte
	scriptHash byte
}

var networkParams = map[Network]params{
	Mainnet: {hrp: "bc", pubKeyHash: 0x00, scriptHash: 0x05},
	Testnet: {hrp: "tb", pubKeyHash: 0x6f, scriptHash: 0xc4},
	Regtest: {hrp: "bcrt", pubKeyHash: 0x6f, scriptHash: 0xc4},
}

// HRP returns the bech32 human-readable part for the network.
func (n Network) HRP() string {
	return networkParams[n].hrp
}

// Address is a decoded payment address.
type Address struct {
	Kind           Kind
	WitnessVersion int    // -1 for base58 addresses
	Program        []byte // witness program or hash160
}

// Validate returns nil when s is a well-formed address for net.
func Validate(s string, net Network) error {
	_, err := Parse(s, net)
	return err
}

// Parse decodes s for the given network.
func Parse(s string, net Network) (*Address, error) {
	p, ok := networkParams[net]
	if !ok {
		return nil, fmt.Errorf("unknown network %q", net)
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("empty address")
	}

	if i := strings.LastIndex(strings.ToLower(s), "1"); i > 0 && isKnownHRP(strings.ToLower(s[:i])) {
		hrp := strings.ToLower(s[:i])
		if hrp != p.hrp {
			return nil, fmt.Errorf("%s: %w", s, ErrWrongNetwork)
		}
		return parseSegwit(s, p.hrp)
	}
	return parseBase58(s, p)
}

func isKnownHRP(hrp string) bool {
	for _, p := range networkParams {
		if p.hrp == hrp {
			return true
		}
	}
	return false
}

func parseSegwit(s, hrp string) (*Address, error) {
	gotHRP, data5, enc, err := bech32Decode(s)
	if err != nil {
		return nil, err
	}
	if gotHRP != hrp {
		return nil, fmt.Errorf("%s: %w", s, ErrWrongNetwork)
	}
	if len(data5) < 1 {
		return nil, fmt.Errorf("segwit: missing witness version")
	}
	version := int(data5[0])
	if version > 16 {
		return nil, fmt.Errorf("segwit: invalid witness version %d", version)
	}
	program, err := convertBits(data5[1:], 5, 8, false)
	if err != nil {
		return nil, fmt.Errorf("segwit: %w", err)
	}
	if len(program) < 2 || len(program) > 40 {
		return nil, fmt.Errorf("segwit: invalid program length %d", len(program))
	}

	kind := WitnessFuture
	switch version {
	case 0:
		if enc != Bech32 {
			return nil, fmt.Errorf("segwit: version 0 requires bech32 checksum")
		}
		if len(program) != 20 && len(program) != 32 {
			return nil, fmt.Errorf("segwit: invalid v0 program length %d", len(program))
		}
		kind = WitnessV0
	case 1:
		if len(program) == 32 {
			kind = Taproot
		}
		fallthrough
	default:
		if enc != Bech32m {
			return nil, fmt.Errorf("segwit: version %d requires bech32m checksum", version)
		}
	}

	return &Address{Kind: kind, WitnessVersion: version, Program: program}, nil
}

func parseBase58(s string, p params) (*Address, error) {
	raw, err := base58.Decode(s)
	if err != nil {
		return nil, fmt.Errorf("base58: %w", err)
	}
	if len(raw) != 25 {
		return nil, fmt.Errorf("base58: invalid length %d", len(raw))
	}
	payload, sum := raw[:21], raw[21:]
	if !bytes.Equal(checksum(payload), sum) {
		return nil, fmt.Errorf("base58: invalid checksum")
	}

	var kind Kind
	switch payload[0] {
	case p.pubKeyHash:
		kind = P2PKH
	case p.scriptHash:
		kind = P2SH
	default:
		for _, other := range networkParams {
			if payload[0] == other.pubKeyHash || payload[0] == other.scriptHash {
				return nil, fmt.Errorf("%s: %w", s, ErrWrongNetwork)
			}
		}
		return nil, fmt.Errorf("base58: unknown version byte 0x%02x", payload[0])
	}

	return &Address{Kind: kind, WitnessVersion: -1, Program: append([]byte(nil), payload[1:]...)}, nil
}

// EncodeSegwit encodes a witness program as a segwit address, choosing
// bech32 for version 0 and bech32m otherwise.
func EncodeSegwit(net Network, version byte, program []byte) (string, error) {
	p, ok := networkParams[net]
	if !ok {
		return "", fmt.Errorf("unknown network %q", net)
	}
	if version > 16 {
		return "", fmt.Errorf("segwit: invalid witness version %d", version)
	}
	conv, err := convertBits(program, 8, 5, true)
	if err != nil {
		return "", err
	}
	enc := Bech32m
	if version == 0 {
		enc = Bech32
	}
	return bech32Encode(p.hrp, append([]byte{version}, conv...), enc)
}

// EncodeBase58Check encodes a 20-byte hash with the network's P2PKH or P2SH version.
func EncodeBase58Check(net Network, kind Kind, hash []byte) (string, error) {
	p, ok := networkParams[net]
	if !ok {
		return "", fmt.Errorf("unknown network %q", net)
	}
	if len(hash) != 20 {
		return "", fmt.Errorf("base58: hash must be 20 bytes, got %d", len(hash))
	}
	version := p.pubKeyHash
	if kind == P2SH {
		version = p.scriptHash
	}
	payload := append([]byte{version}, hash...)
	return base58.Encode(append(payload, checksum(payload)...)), nil
}

// checksum is the first four bytes of double SHA-256.
func checksum(b []byte) []byte {
	first := sha256.Sum256(b)
	second := sha256.Sum256(first[:])
	return second[:4]
}
