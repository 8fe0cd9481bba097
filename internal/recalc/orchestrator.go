package recalc

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog"

	klog "github.com/Klingon-tech/inscribe/internal/log"
	"github.com/Klingon-tech/inscribe/internal/quoteclient"
	"github.com/Klingon-tech/inscribe/pkg/inscription"
)

// DefaultDebounce is the quiet period after the last input change before a
// quote is requested.
const DefaultDebounce = time.Second

// DefaultFeeRate is the fee rate in sats/vbyte before the user edits it.
const DefaultFeeRate = 1.0

// Fetcher requests a quote. Implementations must return promptly once ctx
// is cancelled.
type Fetcher interface {
	FetchQuote(ctx context.Context, req quoteclient.Request) (*inscription.Quote, error)
}

// Observer receives state transitions and request outcomes. Outcome is one
// of "success", "cancelled", "invalid_response" or "remote_error".
type Observer interface {
	ObserveTransition(from, to string)
	ObserveQuote(outcome string, d time.Duration)
}

// Config configures an Orchestrator.
type Config struct {
	Debounce       time.Duration
	MinFeeRate     float64
	InitialFeeRate float64
	Clock          clock.Clock
	Observer       Observer
}

// Orchestrator owns the recalculation state. Every input event, timer fire
// and request completion is applied under one mutex, so each check of the
// current attempt and the transition that follows it are atomic.
type Orchestrator struct {
	mu sync.Mutex

	cfg     Config
	clock   clock.Clock
	fetcher Fetcher
	logger  zerolog.Logger

	machine Machine
	inputs  Inputs

	timer      *clock.Timer
	cancel     context.CancelFunc
	reqAttempt uint64

	ctx        context.Context
	rootCancel context.CancelFunc
	wg         sync.WaitGroup
	closed     bool

	subs    map[int]chan Projection
	nextSub int
}

// New creates an orchestrator that requests quotes through fetcher.
func New(fetcher Fetcher, cfg Config) *Orchestrator {
	if cfg.Debounce <= 0 {
		cfg.Debounce = DefaultDebounce
	}
	if cfg.MinFeeRate <= 0 {
		cfg.MinFeeRate = inscription.DefaultMinFeeRate
	}
	if cfg.InitialFeeRate <= 0 {
		cfg.InitialFeeRate = DefaultFeeRate
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.New()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Orchestrator{
		cfg:        cfg,
		clock:      cfg.Clock,
		fetcher:    fetcher,
		logger:     klog.WithComponent("recalc"),
		inputs:     Inputs{FeeRate: inscription.ClampFeeRate(cfg.InitialFeeRate, cfg.MinFeeRate)},
		ctx:        ctx,
		rootCancel: cancel,
		subs:       make(map[int]chan Projection),
	}
}

// ConnectWallet records the wallet address as both sender and recipient.
func (o *Orchestrator) ConnectWallet(addr string) {
	o.update(func(in *Inputs) {
		in.Sender = addr
		in.Recipient = addr
	})
}

// DisconnectWallet clears both addresses, forcing Idle.
func (o *Orchestrator) DisconnectWallet() {
	o.update(func(in *Inputs) {
		in.Sender = ""
		in.Recipient = ""
	})
}

// SelectFile replaces the candidate file. The file is taken as-is until a
// compression update says otherwise.
func (o *Orchestrator) SelectFile(f *inscription.File) {
	o.update(func(in *Inputs) {
		in.File = f
		in.Compressing = false
	})
}

// CompressionUpdate records a compression result. While compressing is
// true no quote is requested.
func (o *Orchestrator) CompressionUpdate(f *inscription.File, compressing bool) {
	o.update(func(in *Inputs) {
		in.File = f
		in.Compressing = compressing
	})
}

// EditFeeRate sets the fee rate, clamped to the configured floor, and
// returns the rate actually applied.
func (o *Orchestrator) EditFeeRate(rate float64) float64 {
	applied := inscription.ClampFeeRate(rate, o.cfg.MinFeeRate)
	o.update(func(in *Inputs) {
		in.FeeRate = applied
	})
	return applied
}

// NotifyInputsChanged replaces all inputs at once.
func (o *Orchestrator) NotifyInputsChanged(next Inputs) {
	next.FeeRate = inscription.ClampFeeRate(next.FeeRate, o.cfg.MinFeeRate)
	o.update(func(in *Inputs) {
		*in = next
	})
}

// Retry re-requests a quote for a snapshot whose last request failed.
// It has no effect in any other state.
func (o *Orchestrator) Retry() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return
	}
	o.applyLocked(RetryRequested{})
}

func (o *Orchestrator) update(fn func(*Inputs)) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return
	}
	fn(&o.inputs)
	o.applyLocked(InputsChanged{Inputs: o.inputs})
}

// Current returns the current projection.
func (o *Orchestrator) Current() Projection {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.projectionLocked()
}

// PaymentTerms returns the settled quote's payment requirements, or
// ErrNoValidQuote unless a quote is settled for the current inputs.
func (o *Orchestrator) PaymentTerms() (PaymentTerms, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	st := o.machine.State()
	if st.Kind != Settled || st.Quote == nil {
		return PaymentTerms{}, ErrNoValidQuote
	}
	if !o.inputs.Eligible() || o.inputs.Snapshot() != st.Snapshot {
		return PaymentTerms{}, ErrNoValidQuote
	}
	return PaymentTerms{
		PaymentAddress: st.Quote.PaymentAddress,
		AmountSats:     st.Quote.RequiredAmountSats,
		InscriptionID:  st.Quote.InscriptionID,
		FileName:       fileName(o.inputs.File),
		Snapshot:       st.Snapshot,
	}, nil
}

// Subscribe returns a channel that receives the latest projection after
// every state change. Slow readers only see the most recent value. The
// returned func unsubscribes and closes the channel.
func (o *Orchestrator) Subscribe() (<-chan Projection, func()) {
	o.mu.Lock()
	defer o.mu.Unlock()

	ch := make(chan Projection, 1)
	if o.closed {
		close(ch)
		return ch, func() {}
	}
	id := o.nextSub
	o.nextSub++
	o.subs[id] = ch
	ch <- o.projectionLocked()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			o.mu.Lock()
			defer o.mu.Unlock()
			if c, ok := o.subs[id]; ok {
				delete(o.subs, id)
				close(c)
			}
		})
	}
}

// Close stops the timer, cancels any in-flight request and waits for it to
// return. Subscriber channels are closed. Input events after Close are
// ignored.
func (o *Orchestrator) Close() {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return
	}
	o.closed = true
	if o.timer != nil {
		o.timer.Stop()
		o.timer = nil
	}
	if o.cancel != nil {
		o.cancel()
	}
	o.rootCancel()
	o.mu.Unlock()

	o.wg.Wait()

	o.mu.Lock()
	for id, ch := range o.subs {
		delete(o.subs, id)
		close(ch)
	}
	o.mu.Unlock()
}

func (o *Orchestrator) applyLocked(ev Event) {
	prev := o.machine.State()
	effects := o.machine.Apply(ev)
	for _, eff := range effects {
		o.runLocked(eff)
	}
	cur := o.machine.State()
	if cur.Kind == prev.Kind && cur.Attempt == prev.Attempt && cur.Snapshot == prev.Snapshot {
		if _, isInput := ev.(InputsChanged); isInput {
			// Input summary may still have changed (e.g. file while ineligible).
			o.publishLocked()
		}
		return
	}

	if cur.Kind != prev.Kind {
		o.logger.Debug().
			Str("from", prev.Kind.String()).
			Str("to", cur.Kind.String()).
			Uint64("attempt", cur.Attempt).
			Msg("Recalculation state changed")
		if o.cfg.Observer != nil {
			o.cfg.Observer.ObserveTransition(prev.Kind.String(), cur.Kind.String())
		}
	}
	if cur.Kind == Failed && prev.Kind != Failed {
		o.logger.Warn().Err(cur.Err).Uint64("attempt", cur.Attempt).Msg("Quote calculation failed")
	}
	o.publishLocked()
}

func (o *Orchestrator) runLocked(eff Effect) {
	switch eff.Kind {
	case StopTimer:
		if o.timer != nil {
			o.timer.Stop()
			o.timer = nil
		}
	case ArmTimer:
		if o.timer != nil {
			o.timer.Stop()
		}
		attempt := eff.Attempt
		o.timer = o.clock.AfterFunc(o.cfg.Debounce, func() {
			o.mu.Lock()
			defer o.mu.Unlock()
			if o.closed {
				return
			}
			o.applyLocked(DebounceElapsed{Attempt: attempt})
		})
	case CancelRequest:
		if o.cancel != nil {
			o.cancel()
			o.cancel = nil
		}
	case StartRequest:
		o.timer = nil
		o.startLocked(eff.Attempt)
	}
}

func (o *Orchestrator) startLocked(attempt uint64) {
	if o.cancel != nil {
		o.cancel()
	}
	ctx, cancel := context.WithCancel(o.ctx)
	o.cancel = cancel
	o.reqAttempt = attempt

	req := quoteclient.Request{
		File:      o.inputs.File,
		Recipient: o.inputs.Recipient,
		FeeRate:   o.inputs.FeeRate,
		Sender:    o.inputs.Sender,
	}
	o.logger.Debug().
		Uint64("attempt", attempt).
		Int64("size", req.File.Size()).
		Float64("fee_rate", req.FeeRate).
		Msg("Requesting quote")

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		defer cancel()

		start := o.clock.Now()
		quote, err := o.fetcher.FetchQuote(ctx, req)
		elapsed := o.clock.Since(start)

		o.mu.Lock()
		defer o.mu.Unlock()
		if o.reqAttempt == attempt {
			o.cancel = nil
		}
		if o.cfg.Observer != nil {
			o.cfg.Observer.ObserveQuote(outcome(err), elapsed)
		}
		o.applyLocked(QuoteResolved{Attempt: attempt, Quote: quote, Err: err})
	}()
}

func (o *Orchestrator) publishLocked() {
	if len(o.subs) == 0 || o.closed {
		return
	}
	p := o.projectionLocked()
	for _, ch := range o.subs {
		select {
		case ch <- p:
		default:
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- p:
			default:
			}
		}
	}
}

func (o *Orchestrator) projectionLocked() Projection {
	in := o.inputs
	return Projection{
		State:           o.machine.State(),
		WalletConnected: in.Sender != "",
		Sender:          in.Sender,
		Recipient:       in.Recipient,
		HasFile:         in.File != nil,
		FileName:        fileName(in.File),
		FileSize:        in.File.Size(),
		Compressing:     in.Compressing,
		FeeRate:         in.FeeRate,
	}
}

func fileName(f *inscription.File) string {
	if f == nil {
		return ""
	}
	return f.Name
}

func outcome(err error) string {
	var invalid *quoteclient.InvalidResponseError
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, context.Canceled):
		return "cancelled"
	case errors.As(err, &invalid):
		return "invalid_response"
	default:
		return "remote_error"
	}
}
