package retry

import (
	"context"
	"fmt"
	"sync"
	"time"

	"sharerelay/internal/errors"
)

// State is a [Breaker] state.
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	}
	return "unknown"
}

// Breaker short-circuits calls to a dependency after Threshold
// consecutive failures.  Once Cooldown has passed it lets calls
// through again as probes; Probes consecutive successes close it, a
// single failure re-opens it.
type Breaker struct {
	Threshold    int
	Cooldown     time.Duration
	Probes       int
	OnTransition func(from, to State) // called with the lock held

	mu       sync.Mutex
	state    State
	failures int
	passes   int
	openedAt time.Time
	now      func() time.Time
}

// NewBreaker returns a Breaker with the usual directory-store settings
// filled in for any zero argument.
func NewBreaker(threshold int, cooldown time.Duration, onTransition func(from, to State)) *Breaker {
	if threshold <= 0 {
		threshold = 5
	}
	if cooldown <= 0 {
		cooldown = 30 * time.Second
	}
	return &Breaker{
		Threshold:    threshold,
		Cooldown:     cooldown,
		Probes:       2,
		OnTransition: onTransition,
	}
}

// Do runs fn unless the breaker is open, in which case it fails fast
// with an error wrapping [errors.ErrCircuitOpen].  Context errors from
// fn do not count as failures.
func (b *Breaker) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := b.admit(); err != nil {
		return err
	}
	err := fn(ctx)
	if err != nil && ctx.Err() != nil {
		return err
	}
	b.record(err)
	return err
}

// State returns the current state, moving an expired open breaker to
// half-open first.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.maybeHalfOpen()
	return b.state
}

// Failures is the current run of consecutive failures.
func (b *Breaker) Failures() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.failures
}

// Reset closes the breaker and forgets the failure run.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures, b.passes = 0, 0
	b.moveTo(StateClosed)
}

// ── internal ─────────────────────────────────────────────────────────

func (b *Breaker) clock() time.Time {
	if b.now != nil {
		return b.now()
	}
	return time.Now()
}

func (b *Breaker) maybeHalfOpen() {
	if b.state == StateOpen && b.clock().Sub(b.openedAt) >= b.Cooldown {
		b.passes = 0
		b.moveTo(StateHalfOpen)
	}
}

func (b *Breaker) admit() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.maybeHalfOpen()
	if b.state != StateOpen {
		return nil
	}
	wait := b.Cooldown - b.clock().Sub(b.openedAt)
	return fmt.Errorf("%w after %d failures, retry in %v",
		errors.ErrCircuitOpen, b.failures, wait.Round(time.Second))
}

func (b *Breaker) record(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err != nil {
		b.failures++
		b.passes = 0
		if b.state == StateHalfOpen || b.failures >= b.Threshold {
			b.openedAt = b.clock()
			b.moveTo(StateOpen)
		}
		return
	}

	b.passes++
	probes := b.Probes
	if probes <= 0 {
		probes = 1
	}
	if b.state == StateClosed || b.passes >= probes {
		b.failures = 0
		b.moveTo(StateClosed)
	}
}

func (b *Breaker) moveTo(to State) {
	from := b.state
	if from == to {
		return
	}
	b.state = to
	if b.OnTransition != nil {
		b.OnTransition(from, to)
	}
}
