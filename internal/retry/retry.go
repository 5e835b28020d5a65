// Package retry models bounded retry-with-truncation as an explicit state
// machine. A call is attempted; on failure the input is shrunk (Truncate)
// and attempted again; when attempts run out the machine is Failed.
// Transitions are pure so the policy can be tested without I/O.
package retry

import (
	"context"
	"errors"
	"fmt"
)

// ErrExhausted is returned by Do when every attempt failed.
var ErrExhausted = errors.New("retry attempts exhausted")

// Kind is the state of a Machine.
type Kind int

const (
	Attempt Kind = iota
	Truncate
	Failed
	Succeeded
)

func (k Kind) String() string {
	switch k {
	case Attempt:
		return "attempt"
	case Truncate:
		return "truncate"
	case Failed:
		return "failed"
	case Succeeded:
		return "succeeded"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Policy bounds the machine. Prepare, when set, rewrites the input before
// the first attempt. Shrink turns a failed input into a smaller one; with
// a nil Shrink failures are retried on the same input.
type Policy struct {
	Attempts int
	Prepare  func(string) string
	Shrink   func(string) string
}

// State is a snapshot of the machine. N is the 1-based attempt number
// and Input is what the next or last attempt receives.
type State struct {
	Kind  Kind
	N     int
	Input string
}

func (s State) String() string {
	if s.Kind == Attempt {
		return fmt.Sprintf("attempt(%d)", s.N)
	}
	return s.Kind.String()
}

// Machine tracks one input through the policy.
type Machine struct {
	policy Policy
	state  State
	errs   []error
}

// New starts a machine at Attempt(1). At least one attempt is always made.
func New(p Policy, input string) *Machine {
	if p.Attempts < 1 {
		p.Attempts = 1
	}
	if p.Prepare != nil {
		input = p.Prepare(input)
	}
	return &Machine{policy: p, state: State{Kind: Attempt, N: 1, Input: input}}
}

func (m *Machine) State() State { return m.state }

// Errors returns the failure of every attempt so far, oldest first.
func (m *Machine) Errors() []error { return m.errs }

// Succeed finishes the current attempt. It has no effect outside Attempt.
func (m *Machine) Succeed() {
	if m.state.Kind == Attempt {
		m.state.Kind = Succeeded
	}
}

// Fail records the current attempt's error and moves to Truncate when
// attempts remain, or Failed otherwise. It has no effect outside Attempt.
func (m *Machine) Fail(err error) {
	if m.state.Kind != Attempt {
		return
	}
	m.errs = append(m.errs, err)
	if m.state.N >= m.policy.Attempts {
		m.state.Kind = Failed
		return
	}
	m.state.Kind = Truncate
}

// Shrink applies the policy's shrink function and moves to the next
// attempt. It has no effect outside Truncate.
func (m *Machine) Shrink() {
	if m.state.Kind != Truncate {
		return
	}
	if m.policy.Shrink != nil {
		m.state.Input = m.policy.Shrink(m.state.Input)
	}
	m.state.Kind = Attempt
	m.state.N++
}

// Do drives fn through the machine. It returns the first successful value
// and the final state, whose Input is the text that succeeded. When every
// attempt fails the error wraps ErrExhausted and the last failure.
// Context cancellation is returned as is and never counted as a failure.
func Do[T any](ctx context.Context, p Policy, input string, fn func(context.Context, string) (T, error)) (T, State, error) {
	var zero T
	m := New(p, input)
	for {
		if err := ctx.Err(); err != nil {
			return zero, m.State(), err
		}
		switch s := m.State(); s.Kind {
		case Attempt:
			v, err := fn(ctx, s.Input)
			if err == nil {
				m.Succeed()
				return v, m.State(), nil
			}
			if ctxErr := ctx.Err(); ctxErr != nil {
				return zero, s, ctxErr
			}
			m.Fail(err)
		case Truncate:
			m.Shrink()
		default:
			errs := m.Errors()
			return zero, s, fmt.Errorf("%w after %d attempts: %w", ErrExhausted, s.N, errs[len(errs)-1])
		}
	}
}
