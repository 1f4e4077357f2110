package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
)

// ErrEnginesExhausted is matched by the error Run returns after every
// model in the pipeline has failed without a fatal fault.
var ErrEnginesExhausted = errors.New("all engines exhausted")

// ExhaustedError reports that every model was tried. Last is the failure
// of the final model.
type ExhaustedError struct {
	Models []string
	Last   error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("%s after trying %s: %v", ErrEnginesExhausted, strings.Join(e.Models, ", "), e.Last)
}

func (e *ExhaustedError) Unwrap() error { return e.Last }

// Is lets errors.Is match ErrEnginesExhausted as well as the last failure.
func (e *ExhaustedError) Is(target error) bool { return target == ErrEnginesExhausted }

// Result is a successful value and the model that produced it.
type Result[T any] struct {
	Value     T
	ModelUsed string
}

// Pipeline is an ordered, immutable list of models tried in turn.
type Pipeline struct {
	models   []string
	policy   Policy
	cooldown time.Duration
	logger   *zap.Logger
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithPolicy sets the per-model attempt policy.
func WithPolicy(policy Policy) Option {
	return func(p *Pipeline) { p.policy = policy }
}

// WithCooldown sets the pause before switching to the next model.
func WithCooldown(d time.Duration) Option {
	return func(p *Pipeline) { p.cooldown = d }
}

// WithLogger sets the logger. A nil logger is ignored.
func WithLogger(logger *zap.Logger) Option {
	return func(p *Pipeline) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// New builds a pipeline over models, most preferred first.
func New(models []string, opts ...Option) (*Pipeline, error) {
	if len(models) == 0 {
		return nil, errors.New("pipeline needs at least one model")
	}
	cleaned := make([]string, len(models))
	for i, m := range models {
		m = strings.TrimSpace(m)
		if m == "" {
			return nil, fmt.Errorf("pipeline model %d is blank", i)
		}
		cleaned[i] = m
	}

	p := &Pipeline{
		models:   cleaned,
		policy:   DefaultPolicy(),
		cooldown: time.Second,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Models returns a copy of the model order.
func (p *Pipeline) Models() []string {
	return append([]string(nil), p.models...)
}

// Policy returns the per-model attempt policy.
func (p *Pipeline) Policy() Policy { return p.policy }

// WithPolicy returns a copy of p that uses policy. p is not modified.
func (p *Pipeline) WithPolicy(policy Policy) *Pipeline {
	cp := *p
	cp.policy = policy
	return &cp
}

// Run tries call against each model in order until one succeeds.
//
// A fatal failure stops the run and is returned unchanged. Any other
// failure moves on to the next model after the cooldown; when none is left
// the result is an *ExhaustedError. Cancelling ctx stops the run with
// ctx's error.
func Run[T any](ctx context.Context, p *Pipeline, call Call[T], status StatusFunc) (Result[T], error) {
	var zero Result[T]
	logger := p.logger

	for i, model := range p.models {
		if err := ctx.Err(); err != nil {
			return zero, err
		}

		v, err := attempt(ctx, p.policy, model, call, status, logger)
		if err == nil {
			if i > 0 {
				logger.Info("backup engine succeeded", zap.String("model", model), zap.Int("index", i))
			}
			return Result[T]{Value: v, ModelUsed: model}, nil
		}

		var ce *ClassifiedError
		if !errors.As(err, &ce) {
			// Cancellation of the caller's context.
			return zero, err
		}

		logger.Warn("engine failed",
			zap.String("model", model),
			zap.Stringer("class", ce.Class),
			zap.Error(ce.Err))

		if ce.Class == ClassFatal {
			return zero, err
		}
		if i == len(p.models)-1 {
			return zero, &ExhaustedError{Models: p.Models(), Last: err}
		}

		next := p.models[i+1]
		report(status, fmt.Sprintf("Engaging backup engine: %s", next), logger)
		if err := Sleep(ctx, p.cooldown); err != nil {
			return zero, err
		}
	}

	// Unreachable: New rejects empty model lists.
	return zero, &ExhaustedError{Models: p.Models()}
}
