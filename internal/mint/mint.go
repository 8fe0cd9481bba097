// Package mint pays for a settled inscription quote through the wallet and
// records the resulting transaction.
package mint

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	klog "github.com/Klingon-tech/inscribe/internal/log"
	"github.com/Klingon-tech/inscribe/internal/receipts"
	"github.com/Klingon-tech/inscribe/internal/recalc"
	"github.com/Klingon-tech/inscribe/internal/wallet"
	"github.com/Klingon-tech/inscribe/pkg/inscription"
)

var (
	// ErrPaymentAmountInvalid is returned when the settled amount is not a
	// positive integer number of satoshis. Only that mint attempt fails.
	ErrPaymentAmountInvalid = errors.New("invalid inscription amount, please recalculate the inscription cost")
	// ErrMintInProgress is returned when a payment is already being sent.
	ErrMintInProgress = errors.New("mint already in progress")
	// ErrAlreadyPaid is returned when the quote's payment address was
	// already paid by this service.
	ErrAlreadyPaid = errors.New("quote already paid")
)

// TermsSource provides the current payment terms.
type TermsSource interface {
	PaymentTerms() (recalc.PaymentTerms, error)
}

// Recorder counts mint attempts by status.
type Recorder interface {
	RecordMint(status string)
}

// Service sends inscription payments. At most one payment is in progress.
type Service struct {
	terms    TermsSource
	signer   wallet.Signer
	receipts *receipts.Store
	recorder Recorder
	logger   zerolog.Logger

	mu      sync.Mutex
	minting bool
	paid    map[string]string // payment address -> txid
}

// New creates a mint service. store and recorder may be nil.
func New(terms TermsSource, signer wallet.Signer, store *receipts.Store, recorder Recorder) *Service {
	return &Service{
		terms:    terms,
		signer:   signer,
		receipts: store,
		recorder: recorder,
		logger:   klog.WithComponent("mint"),
		paid:     make(map[string]string),
	}
}

// Minting reports whether a payment is in progress.
func (s *Service) Minting() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.minting
}

// Mint pays the current settled quote and returns its receipt. When the
// payment was sent but the receipt could not be stored, the receipt is
// returned together with the error so the txid is never lost.
func (s *Service) Mint(ctx context.Context) (*receipts.Receipt, error) {
	terms, err := s.terms.PaymentTerms()
	if err != nil {
		s.record("no_quote")
		return nil, err
	}
	if err := inscription.CheckSats(terms.AmountSats); err != nil {
		s.record("invalid_amount")
		return nil, fmt.Errorf("%w: %v", ErrPaymentAmountInvalid, err)
	}
	if terms.PaymentAddress == "" {
		s.record("invalid_amount")
		return nil, fmt.Errorf("%w: missing payment address", ErrPaymentAmountInvalid)
	}

	s.mu.Lock()
	if s.minting {
		s.mu.Unlock()
		s.record("in_progress")
		return nil, ErrMintInProgress
	}
	if txid, ok := s.paid[terms.PaymentAddress]; ok {
		s.mu.Unlock()
		s.record("already_paid")
		return nil, fmt.Errorf("%w: %s", ErrAlreadyPaid, txid)
	}
	s.minting = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.minting = false
		s.mu.Unlock()
	}()

	s.logger.Info().
		Str("address", terms.PaymentAddress).
		Uint64("sats", terms.AmountSats).
		Str("inscription_id", terms.InscriptionID).
		Msg("Sending payment")

	txid, err := s.signer.SendBitcoin(ctx, terms.PaymentAddress, terms.AmountSats)
	if err != nil {
		s.record("signer_error")
		return nil, fmt.Errorf("send payment: %w", err)
	}

	s.mu.Lock()
	s.paid[terms.PaymentAddress] = txid
	s.mu.Unlock()

	r := &receipts.Receipt{
		TxID:           txid,
		InscriptionID:  terms.InscriptionID,
		PaymentAddress: terms.PaymentAddress,
		AmountSats:     terms.AmountSats,
		FeeRate:        terms.Snapshot.FeeRate,
		FileName:       terms.FileName,
		FileSize:       terms.Snapshot.FileSize,
		FileID:         terms.Snapshot.FileID,
		Sender:         terms.Snapshot.Sender,
		Recipient:      terms.Snapshot.Recipient,
	}
	if s.receipts != nil {
		if err := s.receipts.Put(r); err != nil {
			s.record("store_error")
			s.logger.Error().Err(err).Str("txid", txid).Msg("Payment sent but receipt not stored")
			return r, fmt.Errorf("store receipt for %s: %w", txid, err)
		}
	}

	s.record("sent")
	s.logger.Info().Str("txid", txid).Msg("Transaction sent")
	return r, nil
}

func (s *Service) record(status string) {
	if s.recorder != nil {
		s.recorder.RecordMint(status)
	}
}
