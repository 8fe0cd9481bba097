package present

import (
	"strings"
	"testing"

	"github.com/Klingon-tech/inscribe/internal/quoteclient"
	"github.com/Klingon-tech/inscribe/internal/recalc"
	"github.com/Klingon-tech/inscribe/pkg/inscription"
)

func readyProjection(kind recalc.Kind) recalc.Projection {
	return recalc.Projection{
		State: recalc.State{
			Kind:     kind,
			Snapshot: recalc.Snapshot{FeeRate: 5, FileSize: 250 * 1024},
		},
		WalletConnected: true,
		Sender:          "bc1qsender",
		Recipient:       "bc1qsender",
		HasFile:         true,
		FileName:        "a.jpg",
		FileSize:        250 * 1024,
		FeeRate:         5,
	}
}

func TestRender_DisabledReason(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*recalc.Projection)
		minting bool
		want    string
	}{
		{"no wallet", func(p *recalc.Projection) { p.WalletConnected = false }, false, ReasonNoWallet},
		{"no file", func(p *recalc.Projection) { p.HasFile = false; p.FileSize = 0 }, false, ReasonNoFile},
		{"too small", func(p *recalc.Projection) { p.FileSize = 204799; p.State.Kind = recalc.Idle }, false, ReasonInvalidSize},
		{"too large", func(p *recalc.Projection) { p.FileSize = 409601; p.State.Kind = recalc.Idle }, false, ReasonInvalidSize},
		{"compressing", func(p *recalc.Projection) { p.Compressing = true; p.State.Kind = recalc.Idle }, false, ReasonCompressing},
		{"pending", func(p *recalc.Projection) { p.State.Kind = recalc.PendingDebounce }, false, ReasonCalculating},
		{"in flight", func(p *recalc.Projection) { p.State.Kind = recalc.InFlight }, false, ReasonCalculating},
		{"failed", func(p *recalc.Projection) { p.State.Kind = recalc.Failed; p.State.Failures = 1 }, false, ReasonFailed},
		{"minting", func(*recalc.Projection) {}, true, ReasonMinting},
		{"settled", func(*recalc.Projection) {}, false, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := readyProjection(recalc.Settled)
			p.State.Quote = &inscription.Quote{PaymentAddress: "bc1qpay", RequiredAmountSats: 1500}
			tt.mutate(&p)
			v := New().Render(p, tt.minting)
			if v.DisabledReason != tt.want {
				t.Errorf("DisabledReason = %q, want %q", v.DisabledReason, tt.want)
			}
			if v.SubmitEnabled != (tt.want == "") {
				t.Errorf("SubmitEnabled = %v with reason %q", v.SubmitEnabled, v.DisabledReason)
			}
		})
	}
}

func TestRender_CalculatingHasNoGap(t *testing.T) {
	a := New()
	for _, kind := range []recalc.Kind{recalc.PendingDebounce, recalc.InFlight} {
		v := a.Render(readyProjection(kind), false)
		if !v.Calculating {
			t.Errorf("%s: Calculating = false", kind)
		}
		if v.CalculatingFeeRate != 5 {
			t.Errorf("%s: CalculatingFeeRate = %v, want 5", kind, v.CalculatingFeeRate)
		}
		if v.Quote != nil {
			t.Errorf("%s: quote shown while calculating", kind)
		}
		if v.StatusLine != "Calculating inscription cost at 5 sat/vb..." {
			t.Errorf("%s: StatusLine = %q", kind, v.StatusLine)
		}
	}
	for _, kind := range []recalc.Kind{recalc.Idle, recalc.Settled, recalc.Failed} {
		if a.Render(readyProjection(kind), false).Calculating {
			t.Errorf("%s: Calculating = true", kind)
		}
	}
}

func TestRender_QuoteOnlyWhenSettled(t *testing.T) {
	p := readyProjection(recalc.Settled)
	p.State.Quote = &inscription.Quote{PaymentAddress: "bc1qpay", RequiredAmountSats: 1500, InscriptionID: "abc"}

	v := New().Render(p, false)
	if v.Quote == nil {
		t.Fatal("expected quote summary")
	}
	if v.Quote.Amount != "1,500 sats" {
		t.Errorf("Amount = %q", v.Quote.Amount)
	}
	if v.Quote.PaymentAddress != "bc1qpay" || v.Quote.InscriptionID != "abc" {
		t.Errorf("summary = %+v", v.Quote)
	}
	if v.StatusLine != "Required amount: 1,500 sats to bc1qpay" {
		t.Errorf("StatusLine = %q", v.StatusLine)
	}

	p.State.Kind = recalc.InFlight
	if New().Render(p, false).Quote != nil {
		t.Error("quote shown outside Settled")
	}
}

func TestRender_BannerOncePerFailure(t *testing.T) {
	a := New()
	p := readyProjection(recalc.Failed)
	p.State.Failures = 1
	p.State.Err = &quoteclient.RemoteError{StatusCode: 500, Message: "insufficient liquidity"}

	v := a.Render(p, false)
	if !strings.Contains(v.Banner, "insufficient liquidity") {
		t.Fatalf("Banner = %q, want remote message", v.Banner)
	}
	if v.StatusLine != "Error: insufficient liquidity" {
		t.Errorf("StatusLine = %q", v.StatusLine)
	}

	// Re-rendering the same failure shows no banner.
	for i := 0; i < 3; i++ {
		if v := a.Render(p, false); v.Banner != "" {
			t.Fatalf("render %d repeated banner %q", i, v.Banner)
		}
	}

	// A later, distinct failure is announced again.
	p.State.Failures = 2
	if v := a.Render(p, false); v.Banner == "" {
		t.Error("second failure not announced")
	}
}

func TestRender_NoBannerForCancellation(t *testing.T) {
	a := New()
	p := readyProjection(recalc.Idle)
	p.State.Err = quoteclient.ErrCancelled
	if v := a.Render(p, false); v.Banner != "" {
		t.Errorf("Banner = %q, want none", v.Banner)
	}
}

func TestRender_SizeHint(t *testing.T) {
	p := readyProjection(recalc.Idle)
	p.FileSize = 100 * 1024
	v := New().Render(p, false)
	if v.FileSize != "100kb" {
		t.Errorf("FileSize = %q", v.FileSize)
	}
	if v.SizeHint != "File too small. Increase quality slider." {
		t.Errorf("SizeHint = %q", v.SizeHint)
	}
	if v.StatusLine != v.SizeHint {
		t.Errorf("StatusLine = %q, want size hint", v.StatusLine)
	}
}
