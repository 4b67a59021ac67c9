// Package retry holds the two resilience helpers used on the client
// and directory paths: an exponential [Backoff] for re-dialling the
// stream port and a [Breaker] that stops hammering a dead Redis.
package retry

import (
	"context"
	stderrors "errors"
	"fmt"
	"math/rand"
	"time"

	"sharerelay/internal/errors"
)

// ── Permanent errors ─────────────────────────────────────────────────

// PermanentError stops a [Backoff] loop on the spot.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return e.Err.Error() }
func (e *PermanentError) Unwrap() error { return e.Err }

// Permanent marks err as not worth retrying.  Permanent(nil) is nil.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}

// IsPermanent reports whether err was produced by [Permanent].
func IsPermanent(err error) bool {
	var pe *PermanentError
	return stderrors.As(err, &pe)
}

// ── Backoff ──────────────────────────────────────────────────────────

// Backoff retries an operation with exponentially growing pauses.
// The zero value retries forever starting at 100ms, doubling up to 5s.
type Backoff struct {
	Initial  time.Duration
	Max      time.Duration
	Factor   float64
	Attempts int     // total tries including the first; 0 = until ctx ends
	Jitter   float64 // fraction of each pause to randomise, 0..1

	// Retryable, when set, decides whether a failed attempt is worth
	// another try.  Errors it rejects are returned as-is.
	Retryable func(error) bool
}

// StreamBackoff is used when opening a stream connection, where the
// relay is usually just restarting or still binding its port.
func StreamBackoff() *Backoff {
	return &Backoff{
		Initial:   100 * time.Millisecond,
		Max:       2 * time.Second,
		Factor:    2,
		Attempts:  5,
		Jitter:    0.2,
		Retryable: errors.IsRetryable,
	}
}

// StoreBackoff is used when connecting to an external directory store.
func StoreBackoff() *Backoff {
	return &Backoff{
		Initial:  250 * time.Millisecond,
		Max:      5 * time.Second,
		Factor:   2,
		Attempts: 4,
		Jitter:   0.25,
	}
}

// Delay returns the un-jittered pause after the given 1-based attempt.
func (b *Backoff) Delay(attempt int) time.Duration {
	d := b.Initial
	if d <= 0 {
		d = 100 * time.Millisecond
	}
	limit := b.Max
	if limit <= 0 {
		limit = 5 * time.Second
	}
	f := b.Factor
	if f < 1 {
		f = 2
	}
	for i := 1; i < attempt; i++ {
		d = time.Duration(float64(d) * f)
		if d >= limit {
			return limit
		}
	}
	if d > limit {
		d = limit
	}
	return d
}

// Do calls fn until it returns nil, a permanent or non-retryable
// error, the attempt budget runs out, or ctx is done.
func (b *Backoff) Do(ctx context.Context, fn func(ctx context.Context, attempt int) error) error {
	for attempt := 1; ; attempt++ {
		err := fn(ctx, attempt)
		switch {
		case err == nil:
			return nil
		case IsPermanent(err):
			return stderrors.Unwrap(err)
		case b.Retryable != nil && !b.Retryable(err):
			return err
		case b.Attempts > 0 && attempt >= b.Attempts:
			return fmt.Errorf("gave up after %d attempts: %w", attempt, err)
		}

		t := time.NewTimer(b.jittered(b.Delay(attempt)))
		select {
		case <-ctx.Done():
			t.Stop()
			return fmt.Errorf("retry cancelled: %w (last error: %v)", ctx.Err(), err)
		case <-t.C:
		}
	}
}

func (b *Backoff) jittered(d time.Duration) time.Duration {
	if b.Jitter <= 0 {
		return d
	}
	j := b.Jitter
	if j > 1 {
		j = 1
	}
	spread := float64(d) * j
	out := time.Duration(float64(d) - spread + rand.Float64()*2*spread)
	if out < time.Millisecond {
		out = time.Millisecond
	}
	return out
}
