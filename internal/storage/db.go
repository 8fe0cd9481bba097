// Package storage provides key-value database abstractions.
package storage

import "errors"

var (
	// ErrNotFound is returned by Get for missing keys.
	ErrNotFound = errors.New("key not found")
	// ErrStop may be returned by an iteration callback to end the walk
	// early; the iteration itself then returns nil.
	ErrStop = errors.New("stop iteration")
)

// DB is the interface for key-value storage.
type DB interface {
	Get(key []byte) ([]byte, error)
	Put(key, value []byte) error
	Delete(key []byte) error
	Has(key []byte) (bool, error)
	// ForEach visits all keys with the given prefix in ascending key order.
	// The callback receives copies of the key and value.
	// Return a non-nil error from fn to stop iteration early.
	ForEach(prefix []byte, fn func(key, value []byte) error) error
	// ForEachReverse is ForEach in descending key order.
	ForEachReverse(prefix []byte, fn func(key, value []byte) error) error
	Close() error
}

// stopped maps ErrStop to a clean end of iteration.
func stopped(err error) error {
	if errors.Is(err, ErrStop) {
		return nil
	}
	return err
}

// prefixEnd returns the smallest key greater than every key starting with
// prefix, or nil when no such key exists.
func prefixEnd(prefix []byte) []byte {
	end := append([]byte(nil), prefix...)
	for i := len(end) - 1; i >= 0; i-- {
		if end[i] < 0xFF {
			end[i]++
			return end[:i+1]
		}
	}
	return nil
}
