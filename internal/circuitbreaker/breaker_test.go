package circuitbreaker

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock lets tests move time forward without sleeping.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestBreaker(threshold int) (*Breaker, *fakeClock) {
	clock := &fakeClock{now: time.Unix(1700000000, 0)}
	b := New(threshold, time.Minute)
	b.now = clock.Now
	return b, clock
}

func TestBreaker_TripsAfterThreshold(t *testing.T) {
	b, _ := newTestBreaker(3)

	b.RecordFailure("bsc")
	b.RecordFailure("bsc")
	assert.True(t, b.Allow("bsc"), "should still allow before threshold")

	b.RecordFailure("bsc")
	assert.False(t, b.Allow("bsc"))
	assert.Equal(t, StateOpen, b.State("bsc"))
}

func TestBreaker_HalfOpenProbe(t *testing.T) {
	b, clock := newTestBreaker(2)

	b.RecordFailure("bsc")
	b.RecordFailure("bsc")
	require.False(t, b.Allow("bsc"))

	clock.Advance(time.Minute)
	assert.True(t, b.Allow("bsc"), "should allow one probe")
	assert.Equal(t, StateHalfOpen, b.State("bsc"))
	assert.False(t, b.Allow("bsc"), "second request during probe is rejected")

	b.RecordSuccess("bsc")
	assert.Equal(t, StateClosed, b.State("bsc"))
	assert.True(t, b.Allow("bsc"))
}

func TestBreaker_HalfOpenFailureReopens(t *testing.T) {
	b, clock := newTestBreaker(2)

	b.RecordFailure("bsc")
	b.RecordFailure("bsc")
	clock.Advance(time.Minute)
	b.Allow("bsc")

	b.RecordFailure("bsc")
	assert.Equal(t, StateOpen, b.State("bsc"))
}

func TestBreaker_IndependentKeys(t *testing.T) {
	b, _ := newTestBreaker(2)

	b.RecordFailure("bsc")
	b.RecordFailure("bsc")

	assert.False(t, b.Allow("bsc"))
	assert.True(t, b.Allow("polygon"))
	assert.Equal(t, StateClosed, b.State("unknown"))
}

func TestBreaker_Execute(t *testing.T) {
	b, _ := newTestBreaker(2)
	rpcDown := errors.New("connection refused")
	badInput := errors.New("insufficient funds")
	isBadInput := func(err error) bool { return errors.Is(err, badInput) }

	// Caller errors do not trip the breaker.
	for i := 0; i < 3; i++ {
		err := b.Execute("bsc", func() error { return badInput }, isBadInput)
		assert.ErrorIs(t, err, badInput)
	}
	assert.Equal(t, StateClosed, b.State("bsc"))

	assert.ErrorIs(t, b.Execute("bsc", func() error { return rpcDown }, isBadInput), rpcDown)
	assert.ErrorIs(t, b.Execute("bsc", func() error { return rpcDown }, isBadInput), rpcDown)

	called := false
	err := b.Execute("bsc", func() error { called = true; return nil })
	assert.ErrorIs(t, err, ErrOpen)
	assert.Contains(t, err.Error(), "bsc")
	assert.False(t, called, "fn must not run while open")
}

func TestBreaker_OnTransitionCallback(t *testing.T) {
	b, _ := newTestBreaker(2)

	done := make(chan [2]State, 1)
	b.OnTransition(func(key string, from, to State) {
		done <- [2]State{from, to}
	})

	b.RecordFailure("bsc")
	b.RecordFailure("bsc")

	select {
	case got := <-done:
		assert.Equal(t, [2]State{StateClosed, StateOpen}, got)
	case <-time.After(time.Second):
		t.Fatal("expected a transition callback")
	}
}

func TestBreaker_CountsTransitions(t *testing.T) {
	b, clock := newTestBreaker(1)
	opened := transitionsTotal.WithLabelValues("avalanche", "closed", "open")
	closed := transitionsTotal.WithLabelValues("avalanche", "half_open", "closed")
	openedBefore, closedBefore := testutil.ToFloat64(opened), testutil.ToFloat64(closed)

	b.RecordFailure("avalanche")
	clock.Advance(time.Minute)
	require.True(t, b.Allow("avalanche"))
	b.RecordSuccess("avalanche")

	assert.Equal(t, openedBefore+1, testutil.ToFloat64(opened))
	assert.Equal(t, closedBefore+1, testutil.ToFloat64(closed))
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "closed", StateClosed.String())
	assert.Equal(t, "open", StateOpen.String())
	assert.Equal(t, "half_open", StateHalfOpen.String())
	assert.Equal(t, "unknown", State(99).String())
}
