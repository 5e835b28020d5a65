package retry

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func half(s string) string { return s[:len(s)/2] }

func TestMachine_Transitions(t *testing.T) {
	m := New(Policy{Attempts: 2, Shrink: half}, "abcdefgh")
	assert.Equal(t, State{Kind: Attempt, N: 1, Input: "abcdefgh"}, m.State())
	assert.Equal(t, "attempt(1)", m.State().String())

	m.Fail(errors.New("too long"))
	assert.Equal(t, Truncate, m.State().Kind)

	m.Shrink()
	assert.Equal(t, State{Kind: Attempt, N: 2, Input: "abcd"}, m.State())

	m.Fail(errors.New("still failing"))
	assert.Equal(t, Failed, m.State().Kind)
	assert.Len(t, m.Errors(), 2)

	// Terminal states ignore further events.
	m.Shrink()
	m.Succeed()
	assert.Equal(t, Failed, m.State().Kind)
}

func TestMachine_PrepareAppliesBeforeFirstAttempt(t *testing.T) {
	m := New(Policy{Attempts: 2, Prepare: half, Shrink: half}, "abcdefgh")
	assert.Equal(t, State{Kind: Attempt, N: 1, Input: "abcd"}, m.State())

	m.Fail(errors.New("too long"))
	m.Shrink()
	assert.Equal(t, State{Kind: Attempt, N: 2, Input: "ab"}, m.State())
}

func TestMachine_SucceedOnFirstAttempt(t *testing.T) {
	m := New(Policy{Attempts: 3}, "x")
	m.Succeed()
	assert.Equal(t, Succeeded, m.State().Kind)
	assert.Empty(t, m.Errors())
}

func TestMachine_AtLeastOneAttempt(t *testing.T) {
	m := New(Policy{}, "x")
	m.Fail(errors.New("boom"))
	assert.Equal(t, Failed, m.State().Kind)
}

func TestDo_SucceedsAfterTruncation(t *testing.T) {
	var seen []string
	v, st, err := Do(context.Background(), Policy{Attempts: 2, Shrink: half}, "abcdefgh",
		func(_ context.Context, in string) (int, error) {
			seen = append(seen, in)
			if len(in) > 4 {
				return 0, errors.New("oversized")
			}
			return len(in), nil
		})
	require.NoError(t, err)
	assert.Equal(t, 4, v)
	assert.Equal(t, Succeeded, st.Kind)
	assert.Equal(t, "abcd", st.Input)
	assert.Equal(t, []string{"abcdefgh", "abcd"}, seen)
}

func TestDo_Exhausted(t *testing.T) {
	sentinel := errors.New("model offline")
	calls := 0
	_, st, err := Do(context.Background(), Policy{Attempts: 2, Shrink: half}, "abcdefgh",
		func(context.Context, string) (string, error) {
			calls++
			return "", sentinel
		})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrExhausted)
	assert.ErrorIs(t, err, sentinel)
	assert.Equal(t, Failed, st.Kind)
	assert.Equal(t, 2, calls)
}

func TestDo_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	_, _, err := Do(ctx, Policy{Attempts: 3}, "x", func(context.Context, string) (int, error) {
		calls++
		cancel()
		return 0, errors.New("interrupted")
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, ErrExhausted)
	assert.Equal(t, 1, calls)
}
