// Package circuitbreaker keeps a dead chain RPC endpoint from stalling
// every tool call that touches it. Each chain slug gets its own circuit.
package circuitbreaker

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// ErrOpen is returned by Execute while a chain's circuit is open.
var ErrOpen = errors.New("circuit open")

// State of one circuit.
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

var stateNames = [...]string{
	StateClosed:   "closed",
	StateOpen:     "open",
	StateHalfOpen: "half_open",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

var transitionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "xreply",
	Subsystem: "rpc_breaker",
	Name:      "transitions_total",
	Help:      "RPC circuit state changes per chain.",
}, []string{"chain", "from", "to"})

func init() {
	prometheus.MustRegister(transitionsTotal)
}

// Transition describes one state change of a chain's circuit.
type Transition struct {
	Key      string
	From, To State
}

// circuit is the state of one key. Its methods return the transition
// they caused, if any; the Breaker publishes it.
type circuit struct {
	state     State
	failures  int
	trippedAt time.Time
}

func (c *circuit) move(to State) (State, bool) {
	from := c.state
	c.state = to
	return from, from != to
}

// admit decides whether a call may go through at now.
func (c *circuit) admit(now time.Time, cooldown time.Duration) (ok bool, from State, moved bool) {
	switch c.state {
	case StateClosed:
		return true, c.state, false
	case StateOpen:
		if now.Sub(c.trippedAt) < cooldown {
			return false, c.state, false
		}
		from, moved = c.move(StateHalfOpen)
		return true, from, moved
	default:
		// a probe is already in flight
		return false, c.state, false
	}
}

func (c *circuit) succeed() (State, bool) {
	c.failures = 0
	if c.state == StateHalfOpen {
		return c.move(StateClosed)
	}
	return c.state, false
}

func (c *circuit) fail(now time.Time, threshold int) (State, bool) {
	c.failures++
	c.trippedAt = now
	if c.state == StateHalfOpen || (c.state == StateClosed && c.failures >= threshold) {
		return c.move(StateOpen)
	}
	return c.state, false
}

// Breaker holds one circuit per key. A circuit opens after threshold
// consecutive failures, rejects calls for the cooldown, then admits a
// single half-open probe whose outcome closes or reopens it.
type Breaker struct {
	threshold int
	cooldown  time.Duration
	now       func() time.Time

	mu       sync.Mutex
	circuits map[string]*circuit
	notify   func(key string, from, to State)
}

// New returns a breaker. Non-positive arguments fall back to 5 failures
// and a 30s cooldown.
func New(threshold int, cooldown time.Duration) *Breaker {
	b := &Breaker{
		threshold: threshold,
		cooldown:  cooldown,
		now:       time.Now,
		circuits:  map[string]*circuit{},
	}
	if b.threshold <= 0 {
		b.threshold = 5
	}
	if b.cooldown <= 0 {
		b.cooldown = 30 * time.Second
	}
	return b
}

// OnTransition registers fn to be called, on its own goroutine, after
// every state change.
func (b *Breaker) OnTransition(fn func(key string, from, to State)) {
	b.mu.Lock()
	b.notify = fn
	b.mu.Unlock()
}

// Execute runs fn when key's circuit admits it and records the result.
// An error matched by any ignore predicate is returned as is but counts
// as a healthy endpoint: the node answered, the caller asked for
// something it could not do.
func (b *Breaker) Execute(key string, fn func() error, ignore ...func(error) bool) error {
	if !b.Allow(key) {
		return fmt.Errorf("%s: %w", key, ErrOpen)
	}
	err := fn()
	if err != nil && !matchesAny(err, ignore) {
		b.RecordFailure(key)
		return err
	}
	b.RecordSuccess(key)
	return err
}

func matchesAny(err error, preds []func(error) bool) bool {
	for _, p := range preds {
		if p(err) {
			return true
		}
	}
	return false
}

// Allow reports whether a call for key may proceed. An open circuit
// past its cooldown admits exactly one probe.
func (b *Breaker) Allow(key string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	c, ok := b.circuits[key]
	if !ok {
		return true
	}
	allowed, from, moved := c.admit(b.now(), b.cooldown)
	if moved {
		b.publish(Transition{Key: key, From: from, To: c.state})
	}
	return allowed
}

// RecordSuccess clears key's failure streak and closes a probing circuit.
func (b *Breaker) RecordSuccess(key string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	c, ok := b.circuits[key]
	if !ok {
		return
	}
	if from, moved := c.succeed(); moved {
		b.publish(Transition{Key: key, From: from, To: c.state})
	}
}

// RecordFailure extends key's failure streak, tripping the circuit at the
// threshold or immediately when a probe fails.
func (b *Breaker) RecordFailure(key string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	c, ok := b.circuits[key]
	if !ok {
		c = &circuit{}
		b.circuits[key] = c
	}
	if from, moved := c.fail(b.now(), b.threshold); moved {
		b.publish(Transition{Key: key, From: from, To: c.state})
	}
}

// State returns key's current state; keys never seen are closed.
func (b *Breaker) State(key string) State {
	b.mu.Lock()
	defer b.mu.Unlock()

	if c, ok := b.circuits[key]; ok {
		return c.state
	}
	return StateClosed
}

// publish must be called with b.mu held.
func (b *Breaker) publish(t Transition) {
	transitionsTotal.WithLabelValues(t.Key, t.From.String(), t.To.String()).Inc()
	if fn := b.notify; fn != nil {
		go fn(t.Key, t.From, t.To)
	}
}
