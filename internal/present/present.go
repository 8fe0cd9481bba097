// Package present maps orchestrator projections to display-ready views.
package present

import (
	"fmt"
	"strconv"
	"sync"

	"github.com/Klingon-tech/inscribe/internal/quoteclient"
	"github.com/Klingon-tech/inscribe/internal/recalc"
	"github.com/Klingon-tech/inscribe/pkg/inscription"
)

// Disabled-submit reasons.
const (
	ReasonNoWallet    = "Connect wallet to continue"
	ReasonNoFile      = "Please upload an image file"
	ReasonInvalidSize = "File must be 200kb-400kb"
	ReasonCalculating = "Calculating..."
	ReasonCompressing = "Compressing..."
	ReasonFailed      = "Failed to calculate inscription cost"
	ReasonMinting     = "Minting..."
	bannerPrefix      = "Failed to calculate inscription cost: "
	bannerRetrySuffix = ". Please try again."
)

// QuoteSummary is the display form of a settled quote.
type QuoteSummary struct {
	PaymentAddress string
	AmountSats     uint64
	Amount         string
	InscriptionID  string
}

// View is everything a front end needs to render the mint panel.
type View struct {
	Calculating        bool
	CalculatingFeeRate float64
	SubmitEnabled      bool
	DisabledReason     string
	Quote              *QuoteSummary
	FileSize           string
	SizeHint           string
	Banner             string
	StatusLine         string
}

// Adapter renders views. It remembers which failure it last announced so
// the error banner appears once per entry into Failed.
type Adapter struct {
	mu          sync.Mutex
	lastFailure uint64
}

// New returns an Adapter.
func New() *Adapter {
	return &Adapter{}
}

// Render projects p into a View.
func (a *Adapter) Render(p recalc.Projection, minting bool) View {
	st := p.State
	v := View{
		Calculating: st.Kind.Busy(),
	}
	if v.Calculating {
		v.CalculatingFeeRate = st.Snapshot.FeeRate
	}
	if p.HasFile {
		v.FileSize = inscription.FormatSize(p.FileSize)
		v.SizeHint = inscription.SizeHint(p.FileSize, p.Compressing)
	}
	if st.Kind == recalc.Settled && st.Quote != nil {
		v.Quote = &QuoteSummary{
			PaymentAddress: st.Quote.PaymentAddress,
			AmountSats:     st.Quote.RequiredAmountSats,
			Amount:         inscription.FormatSats(st.Quote.RequiredAmountSats),
			InscriptionID:  st.Quote.InscriptionID,
		}
	}

	v.DisabledReason = disabledReason(p, minting)
	v.SubmitEnabled = v.DisabledReason == ""

	a.mu.Lock()
	if st.Kind == recalc.Failed && st.Failures > a.lastFailure {
		v.Banner = bannerPrefix + failureMessage(st.Err) + bannerRetrySuffix
	}
	if st.Failures > a.lastFailure {
		a.lastFailure = st.Failures
	}
	a.mu.Unlock()

	v.StatusLine = statusLine(p, v)
	return v
}

func disabledReason(p recalc.Projection, minting bool) string {
	switch {
	case !p.WalletConnected:
		return ReasonNoWallet
	case !p.HasFile:
		return ReasonNoFile
	case p.Compressing:
		return ReasonCompressing
	case !inscription.IsSizeValid(p.FileSize):
		return ReasonInvalidSize
	case minting:
		return ReasonMinting
	}
	switch p.State.Kind {
	case recalc.Settled:
		return ""
	case recalc.Failed:
		return ReasonFailed
	default:
		return ReasonCalculating
	}
}

func failureMessage(err error) string {
	if msg := quoteclient.UserMessage(err); msg != "" {
		return msg
	}
	return quoteclient.MsgRequestFailed
}

func statusLine(p recalc.Projection, v View) string {
	switch {
	case v.Calculating:
		return fmt.Sprintf("Calculating inscription cost at %s sat/vb...", formatRate(v.CalculatingFeeRate))
	case v.Quote != nil:
		return fmt.Sprintf("Required amount: %s to %s", v.Quote.Amount, v.Quote.PaymentAddress)
	case p.State.Kind == recalc.Failed:
		return "Error: " + failureMessage(p.State.Err)
	case v.SizeHint != "" && !inscription.IsSizeValid(p.FileSize):
		return v.SizeHint
	default:
		return v.DisabledReason
	}
}

func formatRate(rate float64) string {
	return strconv.FormatFloat(rate, 'f', -1, 64)
}
