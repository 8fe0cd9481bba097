// Package receipts persists the outcome of completed inscription payments.
package receipts

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Klingon-tech/inscribe/internal/storage"
	"github.com/google/uuid"
)

// Key layout: "r/" + created_at (big-endian unix nanos) + "/" + id.
// Index layout: "t/" + txid -> primary key.
var (
	prefixReceipt = []byte("r/")
	prefixTxID    = []byte("t/")
)

// ErrNotFound is returned when no receipt matches a lookup.
var ErrNotFound = errors.New("receipt not found")

// Receipt records one payment sent for an inscription quote.
type Receipt struct {
	ID             string    `json:"id"`
	TxID           string    `json:"txid"`
	InscriptionID  string    `json:"inscription_id"`
	PaymentAddress string    `json:"payment_address"`
	AmountSats     uint64    `json:"amount_sats"`
	FeeRate        float64   `json:"fee_rate"`
	FileName       string    `json:"file_name"`
	FileSize       int64     `json:"file_size"`
	FileID         string    `json:"file_id"`
	Sender         string    `json:"sender"`
	Recipient      string    `json:"recipient"`
	CreatedAt      time.Time `json:"created_at"`
}

// Store saves receipts in a key-value database.
type Store struct {
	db  storage.DB
	now func() time.Time
}

// NewStore creates a receipt store over db.
func NewStore(db storage.DB) *Store {
	return &Store{db: db, now: time.Now}
}

// Put assigns an ID and timestamp when missing and persists r.
func (s *Store) Put(r *Receipt) error {
	if r.TxID == "" {
		return fmt.Errorf("receipt has no txid")
	}
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = s.now().UTC()
	}

	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("marshal receipt: %w", err)
	}
	key := receiptKey(r)
	if err := s.db.Put(key, data); err != nil {
		return fmt.Errorf("store receipt: %w", err)
	}
	if err := s.db.Put(append(append([]byte{}, prefixTxID...), r.TxID...), key); err != nil {
		return fmt.Errorf("index receipt: %w", err)
	}
	return nil
}

// ByTxID returns the receipt for a transaction id.
func (s *Store) ByTxID(txid string) (*Receipt, error) {
	key, err := s.db.Get(append(append([]byte{}, prefixTxID...), txid...))
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	data, err := s.db.Get(key)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var r Receipt
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("decode receipt: %w", err)
	}
	return &r, nil
}

// List returns receipts newest first. limit <= 0 returns all.
func (s *Store) List(limit int) ([]*Receipt, error) {
	var out []*Receipt
	err := s.db.ForEachReverse(prefixReceipt, func(_, value []byte) error {
		var r Receipt
		if err := json.Unmarshal(value, &r); err != nil {
			return fmt.Errorf("decode receipt: %w", err)
		}
		out = append(out, &r)
		if limit > 0 && len(out) >= limit {
			return storage.ErrStop
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func receiptKey(r *Receipt) []byte {
	key := make([]byte, 0, len(prefixReceipt)+8+1+len(r.ID))
	key = append(key, prefixReceipt...)
	key = binary.BigEndian.AppendUint64(key, uint64(r.CreatedAt.UnixNano()))
	key = append(key, '/')
	return append(key, r.ID...)
}
