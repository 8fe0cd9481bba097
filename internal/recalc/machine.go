// Package recalc keeps an inscription quote synchronized with its inputs.
//
// Machine is the pure transition function: it consumes events and returns
// the effects the runtime must perform. Orchestrator is the runtime that
// owns the timer, the in-flight request and the single mutex that
// serializes every event.
package recalc

import (
	"context"
	"errors"

	"github.com/Klingon-tech/inscribe/pkg/inscription"
)

// Event is an input to the state machine.
type Event interface {
	isEvent()
}

// InputsChanged carries the full current inputs after any edit.
type InputsChanged struct {
	Inputs Inputs
}

// DebounceElapsed fires when the debounce timer armed for Attempt expires.
type DebounceElapsed struct {
	Attempt uint64
}

// QuoteResolved carries the outcome of the request started for Attempt.
type QuoteResolved struct {
	Attempt uint64
	Quote   *inscription.Quote
	Err     error
}

// RetryRequested is an explicit user request to retry a failed snapshot.
type RetryRequested struct{}

func (InputsChanged) isEvent()   {}
func (DebounceElapsed) isEvent() {}
func (QuoteResolved) isEvent()   {}
func (RetryRequested) isEvent()  {}

// EffectKind names a side effect requested by the machine.
type EffectKind int

const (
	StopTimer EffectKind = iota + 1
	ArmTimer
	CancelRequest
	StartRequest
)

func (k EffectKind) String() string {
	switch k {
	case StopTimer:
		return "stop_timer"
	case ArmTimer:
		return "arm_timer"
	case CancelRequest:
		return "cancel_request"
	case StartRequest:
		return "start_request"
	default:
		return "unknown"
	}
}

// Effect is a side effect for the runtime. Attempt is set for ArmTimer and
// StartRequest; Snapshot only for StartRequest.
type Effect struct {
	Kind     EffectKind
	Attempt  uint64
	Snapshot Snapshot
}

// errEmptyQuote is recorded when a fetcher reports neither quote nor error.
var errEmptyQuote = errors.New("empty quote")

// Machine is the recalculation state machine. The zero value is Idle.
type Machine struct {
	state    State
	eligible bool
}

// State returns the current state.
func (m *Machine) State() State {
	return m.state
}

// Apply advances the machine by one event and returns the effects to run,
// in order. Events that do not apply to the current state return nil.
func (m *Machine) Apply(ev Event) []Effect {
	switch ev := ev.(type) {
	case InputsChanged:
		return m.inputsChanged(ev.Inputs)
	case DebounceElapsed:
		if m.state.Kind != PendingDebounce || ev.Attempt != m.state.Attempt {
			return nil
		}
		m.state.Kind = InFlight
		return []Effect{{Kind: StartRequest, Attempt: m.state.Attempt, Snapshot: m.state.Snapshot}}
	case QuoteResolved:
		return m.resolved(ev)
	case RetryRequested:
		if m.state.Kind != Failed {
			return nil
		}
		m.state.Err = nil
		return m.arm()
	}
	return nil
}

func (m *Machine) inputsChanged(in Inputs) []Effect {
	eligible := in.Eligible()
	if !eligible && !m.eligible {
		return nil
	}
	var snap Snapshot
	if eligible {
		snap = in.Snapshot()
		if m.eligible && snap == m.state.Snapshot {
			return nil
		}
	}

	effects := m.leave()
	m.eligible = eligible
	m.state.Quote = nil
	m.state.Err = nil
	if !eligible {
		m.state.Kind = Idle
		m.state.Snapshot = Snapshot{}
		return effects
	}
	m.state.Snapshot = snap
	return append(effects, m.arm()...)
}

// leave releases whatever the current state holds.
func (m *Machine) leave() []Effect {
	switch m.state.Kind {
	case PendingDebounce:
		return []Effect{{Kind: StopTimer}}
	case InFlight:
		return []Effect{{Kind: CancelRequest}}
	}
	return nil
}

func (m *Machine) arm() []Effect {
	m.state.Attempt++
	m.state.Kind = PendingDebounce
	return []Effect{{Kind: ArmTimer, Attempt: m.state.Attempt}}
}

func (m *Machine) resolved(ev QuoteResolved) []Effect {
	if m.state.Kind != InFlight || ev.Attempt != m.state.Attempt {
		return nil
	}
	switch {
	case ev.Err == nil && ev.Quote != nil:
		m.state.Kind = Settled
		m.state.Quote = ev.Quote
	case errors.Is(ev.Err, context.Canceled):
		m.state.Kind = Idle
	default:
		err := ev.Err
		if err == nil {
			err = errEmptyQuote
		}
		m.state.Kind = Failed
		m.state.Err = err
		m.state.Failures++
	}
	return nil
}
