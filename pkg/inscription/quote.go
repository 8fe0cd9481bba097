package inscription

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// MaxSats is the total bitcoin supply in satoshis; no quote may exceed it.
const MaxSats uint64 = 21_000_000 * 100_000_000

// ErrInvalidAmount is returned when a satoshi amount is not a positive integer.
var ErrInvalidAmount = errors.New("amount must be a positive integer in satoshis")

// Quote is the pricing service's answer for one input snapshot.
type Quote struct {
	PaymentAddress     string `json:"payment_address"`
	RequiredAmountSats uint64 `json:"required_amount_sats"`
	RawAmount          string `json:"required_amount_in_sats"`
	InscriptionID      string `json:"inscription_id"`
}

// ParseSats parses a string-encoded satoshi amount. Only plain positive
// integers are accepted; decimals, signs and exponents are rejected.
func ParseSats(s string) (uint64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty amount: %w", ErrInvalidAmount)
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return 0, fmt.Errorf("%q: %w", s, ErrInvalidAmount)
		}
	}
	n, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%q: %w", s, ErrInvalidAmount)
	}
	if err := CheckSats(n); err != nil {
		return 0, err
	}
	return n, nil
}

// CheckSats verifies an amount is positive and within supply.
func CheckSats(n uint64) error {
	if n == 0 {
		return fmt.Errorf("zero amount: %w", ErrInvalidAmount)
	}
	if n > MaxSats {
		return fmt.Errorf("%d exceeds max supply: %w", n, ErrInvalidAmount)
	}
	return nil
}

// FormatSats renders an amount with thousands separators, e.g. "1,500 sats".
func FormatSats(n uint64) string {
	s := strconv.FormatUint(n, 10)
	var sb strings.Builder
	pre := len(s) % 3
	if pre > 0 {
		sb.WriteString(s[:pre])
	}
	for i := pre; i < len(s); i += 3 {
		if sb.Len() > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(s[i : i+3])
	}
	return sb.String() + " sats"
}

// FormatBTC renders satoshis as an exact 8-decimal BTC string.
func FormatBTC(n uint64) string {
	return fmt.Sprintf("%d.%08d", n/100_000_000, n%100_000_000)
}
