package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
)

// Call performs one request against the named model and returns a parsed,
// validated result. It must not retry on its own.
type Call[T any] func(ctx context.Context, model string) (T, error)

// StatusFunc receives short human-readable progress updates. It is called
// synchronously; a panic inside it is recovered and logged.
type StatusFunc func(status string)

// Policy bounds the attempts made against a single model.
type Policy struct {
	// Timeout is the wall-clock budget for each call. Zero disables it.
	Timeout time.Duration
	// MaxRetries is the number of same-model retries for transient faults,
	// so a model sees at most 1+MaxRetries calls.
	MaxRetries int
	// BaseDelay is the wait before the first retry.
	BaseDelay time.Duration
	// DelayStep is added to the wait after every retry.
	DelayStep time.Duration
}

// DefaultPolicy is used when a pipeline is built without WithPolicy.
func DefaultPolicy() Policy {
	return Policy{
		Timeout:    25 * time.Second,
		MaxRetries: 2,
		BaseDelay:  time.Second,
		DelayStep:  time.Second,
	}
}

// Attempt runs call against one model under policy.
//
// Transient failures are retried after a linearly growing delay until
// MaxRetries is spent. Rate-limit, fatal and unclassified failures return at
// once. Every failure comes back as a *ClassifiedError naming the model,
// except cancellation of ctx, which is returned as is.
func Attempt[T any](ctx context.Context, policy Policy, model string, call Call[T], status StatusFunc) (T, error) {
	return attempt(ctx, policy, model, call, status, zap.NewNop())
}

func attempt[T any](ctx context.Context, policy Policy, model string, call Call[T], status StatusFunc, logger *zap.Logger) (T, error) {
	retries := policy.MaxRetries
	if retries < 0 {
		retries = 0
	}
	left := retries
	calls := 0

	op := func() (T, error) {
		calls++
		v, err := WithDeadline(ctx, policy.Timeout, func(callCtx context.Context) (T, error) {
			return call(callCtx, model)
		})
		if err == nil {
			return v, nil
		}
		if ctx.Err() != nil {
			return v, backoff.Permanent(ctx.Err())
		}

		ce := classify(model, err)
		logger.Debug("attempt failed",
			zap.String("model", model),
			zap.Int("call", calls),
			zap.Stringer("class", ce.Class),
			zap.Error(err))

		if ce.Class != ClassTransient {
			return v, backoff.Permanent(ce)
		}
		return v, ce
	}

	notify := func(err error, wait time.Duration) {
		left--
		logger.Info("retrying model",
			zap.String("model", model),
			zap.Int("retries_left", left),
			zap.Duration("wait", wait))
		report(status, fmt.Sprintf("Retrying %s (%d left)...", model, left), logger)
	}

	b := backoff.WithContext(
		backoff.WithMaxRetries(NewLinearBackOff(policy.BaseDelay, policy.DelayStep), uint64(retries)),
		ctx,
	)

	v, err := backoff.RetryNotifyWithData(op, b, notify)
	if err == nil {
		return v, nil
	}
	if errors.Is(err, context.Canceled) || (ctx.Err() != nil && errors.Is(err, ctx.Err())) {
		return v, err
	}
	return v, classify(model, err)
}

// report delivers a status update, containing any panic from the sink.
func report(status StatusFunc, msg string, logger *zap.Logger) {
	if status == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			logger.Warn("status callback panicked", zap.Any("panic", r), zap.String("status", msg))
		}
	}()
	status(msg)
}
