package recalc

import (
	"errors"

	"github.com/Klingon-tech/inscribe/pkg/inscription"
)

// ErrNoValidQuote is returned when payment terms are requested while no
// settled quote matches the current inputs.
var ErrNoValidQuote = errors.New("no valid quote for current inputs")

// Kind identifies which recalculation state is live.
type Kind int

const (
	Idle Kind = iota
	PendingDebounce
	InFlight
	Settled
	Failed
)

func (k Kind) String() string {
	switch k {
	case Idle:
		return "idle"
	case PendingDebounce:
		return "pending"
	case InFlight:
		return "in_flight"
	case Settled:
		return "settled"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// Busy reports whether a calculation is pending or running.
func (k Kind) Busy() bool {
	return k == PendingDebounce || k == InFlight
}

// Snapshot is the identity of one set of quote inputs. Any field change
// produces a different snapshot.
type Snapshot struct {
	FileID    string
	FileSize  int64
	FeeRate   float64
	Recipient string
	Sender    string
}

// Inputs are the user-controlled values a quote depends on.
type Inputs struct {
	Sender      string
	Recipient   string
	File        *inscription.File
	Compressing bool
	FeeRate     float64
}

// Eligible reports whether the inputs are complete enough to request a quote.
func (in Inputs) Eligible() bool {
	return in.Sender != "" &&
		in.Recipient != "" &&
		in.File != nil &&
		!in.Compressing &&
		inscription.IsSizeValid(in.File.Size()) &&
		in.FeeRate > 0
}

// Snapshot returns the identity of the inputs.
func (in Inputs) Snapshot() Snapshot {
	return Snapshot{
		FileID:    in.File.Identity(),
		FileSize:  in.File.Size(),
		FeeRate:   in.FeeRate,
		Recipient: in.Recipient,
		Sender:    in.Sender,
	}
}

// State is the single recalculation state value.
//
// Quote is set only in Settled and Err only in Failed. Attempt numbers the
// most recent debounce/request cycle; results carrying any other attempt
// are stale. Failures counts entries into Failed.
type State struct {
	Kind     Kind
	Snapshot Snapshot
	Quote    *inscription.Quote
	Err      error
	Attempt  uint64
	Failures uint64
}

// Projection is the read-only view of the orchestrator handed to
// presenters and subscribers.
type Projection struct {
	State           State
	WalletConnected bool
	Sender          string
	Recipient       string
	HasFile         bool
	FileName        string
	FileSize        int64
	Compressing     bool
	FeeRate         float64
}

// PaymentTerms are what a payment must satisfy for the settled quote.
type PaymentTerms struct {
	PaymentAddress string
	AmountSats     uint64
	InscriptionID  string
	FileName       string
	Snapshot       Snapshot
}
