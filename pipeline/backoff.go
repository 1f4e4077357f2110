package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// ErrAttemptTimeout is returned when an attempt exceeds its deadline.
var ErrAttemptTimeout = errors.New("request timed out")

// LinearBackOff grows the delay by a fixed step after each retry:
// Initial, Initial+Step, Initial+2*Step, ...
// Linear growth keeps the worst-case wait for a whole pipeline bounded.
type LinearBackOff struct {
	Initial time.Duration
	Step    time.Duration

	next time.Duration
}

// NewLinearBackOff returns a reset LinearBackOff.
func NewLinearBackOff(initial, step time.Duration) *LinearBackOff {
	b := &LinearBackOff{Initial: initial, Step: step}
	b.Reset()
	return b
}

// Reset restarts the sequence at Initial.
func (b *LinearBackOff) Reset() {
	b.next = b.Initial
}

// NextBackOff returns the current delay and advances by Step.
func (b *LinearBackOff) NextBackOff() time.Duration {
	d := b.next
	b.next += b.Step
	return d
}

var _ backoff.BackOff = (*LinearBackOff)(nil)

// Sleep waits for d or until ctx is done, whichever comes first.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

type outcome[T any] struct {
	value T
	err   error
}

// WithDeadline runs fn with a context that expires after d and returns
// whichever settles first: fn's result or the deadline. On expiry the
// returned error wraps ErrAttemptTimeout and fn's eventual result is
// dropped; fn is expected to honour its context but is not required to.
// A non-positive d disables the deadline.
func WithDeadline[T any](ctx context.Context, d time.Duration, fn func(context.Context) (T, error)) (T, error) {
	if d <= 0 {
		return fn(ctx)
	}

	attemptCtx, cancel := context.WithTimeout(ctx, d)
	defer cancel()

	// Buffered so a late send never blocks the abandoned goroutine.
	done := make(chan outcome[T], 1)
	go func() {
		v, err := fn(attemptCtx)
		done <- outcome[T]{value: v, err: err}
	}()

	var zero T
	select {
	case out := <-done:
		if out.err != nil && ctx.Err() == nil && errors.Is(attemptCtx.Err(), context.DeadlineExceeded) {
			return zero, timeoutError(d)
		}
		return out.value, out.err
	case <-attemptCtx.Done():
		if err := ctx.Err(); err != nil {
			return zero, err
		}
		return zero, timeoutError(d)
	}
}

func timeoutError(d time.Duration) error {
	return fmt.Errorf("%w after %s", ErrAttemptTimeout, d)
}
