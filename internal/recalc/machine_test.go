package recalc

import (
	"errors"
	"reflect"
	"testing"

	"github.com/Klingon-tech/inscribe/internal/quoteclient"
	"github.com/Klingon-tech/inscribe/pkg/inscription"
)

func sizedFile(name string, size int) *inscription.File {
	return &inscription.File{Name: name, MimeType: "image/jpeg", Data: make([]byte, size)}
}

func eligibleInputs(fee float64) Inputs {
	return Inputs{
		Sender:    "bc1qsender",
		Recipient: "bc1qsender",
		File:      sizedFile("a.jpg", 250*1024),
		FeeRate:   fee,
	}
}

func TestInputsEligible(t *testing.T) {
	base := eligibleInputs(1)
	tests := []struct {
		name   string
		mutate func(*Inputs)
		want   bool
	}{
		{"complete", func(*Inputs) {}, true},
		{"no sender", func(in *Inputs) { in.Sender = "" }, false},
		{"no recipient", func(in *Inputs) { in.Recipient = "" }, false},
		{"no file", func(in *Inputs) { in.File = nil }, false},
		{"compressing", func(in *Inputs) { in.Compressing = true }, false},
		{"zero fee", func(in *Inputs) { in.FeeRate = 0 }, false},
		{"size 204799", func(in *Inputs) { in.File = sizedFile("a.jpg", 204799) }, false},
		{"size 204800", func(in *Inputs) { in.File = sizedFile("a.jpg", 204800) }, true},
		{"size 409600", func(in *Inputs) { in.File = sizedFile("a.jpg", 409600) }, true},
		{"size 409601", func(in *Inputs) { in.File = sizedFile("a.jpg", 409601) }, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := base
			tt.mutate(&in)
			if got := in.Eligible(); got != tt.want {
				t.Errorf("Eligible() = %v, want %v", got, tt.want)
			}
		})
	}
}

func expectEffects(t *testing.T, got []Effect, want ...Effect) {
	t.Helper()
	if len(got) == 0 && len(want) == 0 {
		return
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("effects = %+v, want %+v", got, want)
	}
}

func expectKind(t *testing.T, m *Machine, want Kind) {
	t.Helper()
	if got := m.State().Kind; got != want {
		t.Fatalf("state = %s, want %s", got, want)
	}
}

func TestMachine_IneligibleStaysIdle(t *testing.T) {
	var m Machine
	expectKind(t, &m, Idle)

	in := eligibleInputs(1)
	in.Sender = ""
	expectEffects(t, m.Apply(InputsChanged{Inputs: in}))
	expectKind(t, &m, Idle)
}

func TestMachine_DebounceRestarts(t *testing.T) {
	var m Machine

	expectEffects(t, m.Apply(InputsChanged{Inputs: eligibleInputs(1)}),
		Effect{Kind: ArmTimer, Attempt: 1})
	expectKind(t, &m, PendingDebounce)

	// Same inputs: nothing to do.
	expectEffects(t, m.Apply(InputsChanged{Inputs: eligibleInputs(1)}))

	expectEffects(t, m.Apply(InputsChanged{Inputs: eligibleInputs(5)}),
		Effect{Kind: StopTimer},
		Effect{Kind: ArmTimer, Attempt: 2})

	// The first timer is stale.
	expectEffects(t, m.Apply(DebounceElapsed{Attempt: 1}))
	expectKind(t, &m, PendingDebounce)

	want := eligibleInputs(5).Snapshot()
	expectEffects(t, m.Apply(DebounceElapsed{Attempt: 2}),
		Effect{Kind: StartRequest, Attempt: 2, Snapshot: want})
	expectKind(t, &m, InFlight)
	if m.State().Snapshot.FeeRate != 5 {
		t.Errorf("snapshot fee rate = %v, want 5", m.State().Snapshot.FeeRate)
	}
}

func toInFlight(t *testing.T, m *Machine, in Inputs) uint64 {
	t.Helper()
	m.Apply(InputsChanged{Inputs: in})
	attempt := m.State().Attempt
	m.Apply(DebounceElapsed{Attempt: attempt})
	expectKind(t, m, InFlight)
	return attempt
}

func TestMachine_Settle(t *testing.T) {
	var m Machine
	attempt := toInFlight(t, &m, eligibleInputs(1))

	q := &inscription.Quote{PaymentAddress: "bc1qpay", RequiredAmountSats: 1500}
	expectEffects(t, m.Apply(QuoteResolved{Attempt: attempt, Quote: q}))
	expectKind(t, &m, Settled)
	if m.State().Quote != q {
		t.Error("settled quote not recorded")
	}

	// A change invalidates the settled quote.
	expectEffects(t, m.Apply(InputsChanged{Inputs: eligibleInputs(2)}),
		Effect{Kind: ArmTimer, Attempt: attempt + 1})
	expectKind(t, &m, PendingDebounce)
	if m.State().Quote != nil {
		t.Error("quote should be cleared on input change")
	}
}

func TestMachine_SupersededRequestIsCancelledAndDiscarded(t *testing.T) {
	var m Machine
	first := toInFlight(t, &m, eligibleInputs(1))

	expectEffects(t, m.Apply(InputsChanged{Inputs: eligibleInputs(5)}),
		Effect{Kind: CancelRequest},
		Effect{Kind: ArmTimer, Attempt: first + 1})

	for _, ev := range []QuoteResolved{
		{Attempt: first, Quote: &inscription.Quote{PaymentAddress: "x", RequiredAmountSats: 1}},
		{Attempt: first, Err: &quoteclient.RemoteError{StatusCode: 500, Message: "boom"}},
		{Attempt: first, Err: quoteclient.ErrCancelled},
	} {
		expectEffects(t, m.Apply(ev))
		expectKind(t, &m, PendingDebounce)
		if m.State().Quote != nil || m.State().Err != nil || m.State().Failures != 0 {
			t.Fatalf("stale result mutated state: %+v", m.State())
		}
	}
}

func TestMachine_FailureBlocksSameSnapshot(t *testing.T) {
	var m Machine
	attempt := toInFlight(t, &m, eligibleInputs(1))

	remote := &quoteclient.RemoteError{StatusCode: 500, Message: "insufficient liquidity"}
	m.Apply(QuoteResolved{Attempt: attempt, Err: remote})
	expectKind(t, &m, Failed)
	if m.State().Failures != 1 {
		t.Errorf("Failures = %d, want 1", m.State().Failures)
	}
	if !errors.Is(m.State().Err, remote) {
		t.Errorf("Err = %v", m.State().Err)
	}

	// Re-notifying the same inputs must not retry.
	expectEffects(t, m.Apply(InputsChanged{Inputs: eligibleInputs(1)}))
	expectKind(t, &m, Failed)

	// A new fee rate clears the failure.
	expectEffects(t, m.Apply(InputsChanged{Inputs: eligibleInputs(2)}),
		Effect{Kind: ArmTimer, Attempt: attempt + 1})
	if m.State().Err != nil {
		t.Error("error should clear on new snapshot")
	}
	if m.State().Failures != 1 {
		t.Errorf("Failures = %d, want 1", m.State().Failures)
	}
}

func TestMachine_Retry(t *testing.T) {
	var m Machine
	expectEffects(t, m.Apply(RetryRequested{}))

	attempt := toInFlight(t, &m, eligibleInputs(1))
	expectEffects(t, m.Apply(RetryRequested{}))
	expectKind(t, &m, InFlight)

	m.Apply(QuoteResolved{Attempt: attempt, Err: &quoteclient.InvalidResponseError{Reason: "bad"}})
	expectKind(t, &m, Failed)

	snap := m.State().Snapshot
	expectEffects(t, m.Apply(RetryRequested{}), Effect{Kind: ArmTimer, Attempt: attempt + 1})
	expectKind(t, &m, PendingDebounce)
	if m.State().Snapshot != snap {
		t.Error("retry should keep the failed snapshot")
	}
}

func TestMachine_CancellationIsSilent(t *testing.T) {
	var m Machine
	attempt := toInFlight(t, &m, eligibleInputs(1))

	m.Apply(QuoteResolved{Attempt: attempt, Err: quoteclient.ErrCancelled})
	expectKind(t, &m, Idle)
	if m.State().Err != nil || m.State().Failures != 0 {
		t.Errorf("cancellation surfaced as failure: %+v", m.State())
	}
}

func TestMachine_IneligibleWhileInFlight(t *testing.T) {
	var m Machine
	attempt := toInFlight(t, &m, eligibleInputs(1))

	in := eligibleInputs(1)
	in.Sender, in.Recipient = "", ""
	expectEffects(t, m.Apply(InputsChanged{Inputs: in}), Effect{Kind: CancelRequest})
	expectKind(t, &m, Idle)

	expectEffects(t, m.Apply(QuoteResolved{Attempt: attempt, Quote: &inscription.Quote{PaymentAddress: "x", RequiredAmountSats: 9}}))
	expectKind(t, &m, Idle)

	// Reconnecting with the same inputs requests again.
	expectEffects(t, m.Apply(InputsChanged{Inputs: eligibleInputs(1)}), Effect{Kind: ArmTimer, Attempt: attempt + 1})
}

func TestMachine_IneligibleWhilePending(t *testing.T) {
	var m Machine
	m.Apply(InputsChanged{Inputs: eligibleInputs(1)})

	in := eligibleInputs(1)
	in.Compressing = true
	expectEffects(t, m.Apply(InputsChanged{Inputs: in}), Effect{Kind: StopTimer})
	expectKind(t, &m, Idle)
	expectEffects(t, m.Apply(DebounceElapsed{Attempt: 1}))
	expectKind(t, &m, Idle)
}

func TestMachine_EmptyResultFails(t *testing.T) {
	var m Machine
	attempt := toInFlight(t, &m, eligibleInputs(1))
	m.Apply(QuoteResolved{Attempt: attempt})
	expectKind(t, &m, Failed)
	if m.State().Err == nil {
		t.Error("expected error for empty result")
	}
}

func TestKindBusy(t *testing.T) {
	busy := map[Kind]bool{Idle: false, PendingDebounce: true, InFlight: true, Settled: false, Failed: false}
	for k, want := range busy {
		if k.Busy() != want {
			t.Errorf("%s.Busy() = %v, want %v", k, k.Busy(), want)
		}
	}
}
