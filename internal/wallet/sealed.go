package wallet

import (
	"crypto/cipher"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"os"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"
)

// Sealed secret layout:
// version(1) | salt(16) | memory(4) | iterations(4) | threads(1) | nonce(24) | ciphertext
const (
	sealVersion  = 1
	sealSaltSize = 16
	sealHeader   = 1 + sealSaltSize + 4 + 4 + 1

	// maxSealMemory bounds the KDF memory a sealed file may demand (1 GiB).
	maxSealMemory = 1 << 20
)

// ErrBadPassphrase is returned when a sealed secret cannot be opened.
var ErrBadPassphrase = errors.New("wrong passphrase or corrupted secret")

// SealParams are the Argon2id cost parameters for sealing.
type SealParams struct {
	Memory     uint32 // KiB
	Iterations uint32
	Threads    uint8
}

// DefaultSealParams returns the parameters used for new sealed secrets.
func DefaultSealParams() SealParams {
	return SealParams{Memory: 64 * 1024, Iterations: 3, Threads: 4}
}

// Seal encrypts secret under passphrase with Argon2id and
// XChaCha20-Poly1305. The header is authenticated as associated data.
func Seal(secret, passphrase []byte, p SealParams) ([]byte, error) {
	out := make([]byte, sealHeader, sealHeader+chacha20poly1305.NonceSizeX+len(secret)+chacha20poly1305.Overhead)
	out[0] = sealVersion
	salt := out[1 : 1+sealSaltSize]
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("generate salt: %w", err)
	}
	binary.BigEndian.PutUint32(out[1+sealSaltSize:], p.Memory)
	binary.BigEndian.PutUint32(out[5+sealSaltSize:], p.Iterations)
	out[9+sealSaltSize] = p.Threads

	aead, err := sealCipher(passphrase, salt, p)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, chacha20poly1305.NonceSizeX)
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}
	header := append([]byte(nil), out[:sealHeader]...)
	out = append(out, nonce...)
	return aead.Seal(out, nonce, secret, header), nil
}

// Open decrypts a secret produced by Seal.
func Open(sealed, passphrase []byte) ([]byte, error) {
	if len(sealed) < sealHeader+chacha20poly1305.NonceSizeX+chacha20poly1305.Overhead {
		return nil, fmt.Errorf("sealed secret too short (%d bytes)", len(sealed))
	}
	if sealed[0] != sealVersion {
		return nil, fmt.Errorf("unsupported sealed secret version %d", sealed[0])
	}
	salt := sealed[1 : 1+sealSaltSize]
	p := SealParams{
		Memory:     binary.BigEndian.Uint32(sealed[1+sealSaltSize:]),
		Iterations: binary.BigEndian.Uint32(sealed[5+sealSaltSize:]),
		Threads:    sealed[9+sealSaltSize],
	}
	if p.Memory == 0 || p.Memory > maxSealMemory || p.Iterations == 0 || p.Threads == 0 {
		return nil, fmt.Errorf("sealed secret has invalid parameters")
	}

	aead, err := sealCipher(passphrase, salt, p)
	if err != nil {
		return nil, err
	}
	header := sealed[:sealHeader]
	nonce := sealed[sealHeader : sealHeader+chacha20poly1305.NonceSizeX]
	secret, err := aead.Open(nil, nonce, sealed[sealHeader+chacha20poly1305.NonceSizeX:], header)
	if err != nil {
		return nil, ErrBadPassphrase
	}
	return secret, nil
}

// SealFile seals secret and writes it to path with owner-only permissions.
func SealFile(path string, secret, passphrase []byte, p SealParams) error {
	sealed, err := Seal(secret, passphrase, p)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, sealed, 0600); err != nil {
		return fmt.Errorf("write sealed secret: %w", err)
	}
	return nil
}

// OpenFile reads and opens a sealed secret file.
func OpenFile(path string, passphrase []byte) ([]byte, error) {
	sealed, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read sealed secret: %w", err)
	}
	return Open(sealed, passphrase)
}

func sealCipher(passphrase, salt []byte, p SealParams) (cipher.AEAD, error) {
	key := argon2.IDKey(passphrase, salt, p.Iterations, p.Memory, p.Threads, chacha20poly1305.KeySize)
	defer clear(key)
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	return aead, nil
}
