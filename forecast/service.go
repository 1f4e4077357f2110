// Package forecast implements the four chart operations on top of the
// model pipeline: chart analysis, market intelligence, scenario simulation
// and backtest scoring.
//
// Each operation builds one endpoint request from its inputs, hands a
// closure to pipeline.Run and turns the raw model text into a validated
// domain record tagged with the model that produced it.
package forecast

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	jsonutil "github.com/richinex/ghostcandle/internal/json"
	"github.com/richinex/ghostcandle/llm"
	"github.com/richinex/ghostcandle/pipeline"
	"go.uber.org/zap"
)

// ErrMalformedResponse marks model output that could not be parsed or
// failed validation. Such failures are classified Unknown so the pipeline
// moves on to the next model.
var ErrMalformedResponse = errors.New("malformed model response")

// Policies holds the per-operation attempt policy.
type Policies struct {
	Analysis   pipeline.Policy
	Market     pipeline.Policy
	Simulation pipeline.Policy
	Backtest   pipeline.Policy
}

// DefaultPolicies returns the built-in per-operation timeouts and retries.
// Market intelligence gets a shorter budget since it is auxiliary.
func DefaultPolicies() Policies {
	policy := func(timeout time.Duration, retries int) pipeline.Policy {
		return pipeline.Policy{Timeout: timeout, MaxRetries: retries, BaseDelay: time.Second, DelayStep: time.Second}
	}
	return Policies{
		Analysis:   policy(25*time.Second, 2),
		Market:     policy(15*time.Second, 1),
		Simulation: policy(25*time.Second, 2),
		Backtest:   policy(20*time.Second, 2),
	}
}

// Service runs the chart operations. It holds no mutable state and is safe
// for concurrent use.
type Service struct {
	gen      llm.Generator
	pipe     *pipeline.Pipeline
	policies Policies
	logger   *zap.Logger
	now      func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithPolicies overrides the per-operation policies.
func WithPolicies(p Policies) Option {
	return func(s *Service) { s.policies = p }
}

// WithLogger sets the service logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithClock sets the clock used to timestamp backtest scores.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// NewService creates a Service that sends requests through gen, trying the
// models of pipe in order.
func NewService(gen llm.Generator, pipe *pipeline.Pipeline, opts ...Option) (*Service, error) {
	if gen == nil {
		return nil, errors.New("forecast: generator is required")
	}
	if pipe == nil {
		return nil, errors.New("forecast: pipeline is required")
	}

	s := &Service{
		gen:      gen,
		pipe:     pipe,
		policies: DefaultPolicies(),
		logger:   zap.NewNop(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Pipeline returns the model pipeline the service runs on.
func (s *Service) Pipeline() *pipeline.Pipeline { return s.pipe }

// Policies returns the per-operation policies.
func (s *Service) Policies() Policies { return s.policies }

// generate sends req to model and adds the reported token usage to tokens.
// The request template is copied, never modified.
func (s *Service) generate(ctx context.Context, model string, req llm.Request, tokens *tokenTally) (llm.Response, error) {
	req.Model = model
	resp, err := s.gen.Generate(ctx, req)
	if err == nil {
		tokens.add(resp.Usage)
	}
	return resp, err
}

// tokenTally sums token usage over every attempt of one operation,
// including attempts whose output was rejected. An abandoned attempt may
// still report after its deadline, so the counters are atomic.
type tokenTally struct {
	prompt     atomic.Uint32
	completion atomic.Uint32
	total      atomic.Uint32
}

func (t *tokenTally) add(u *llm.TokenUsage) {
	if u == nil {
		return
	}
	t.prompt.Add(u.PromptTokens)
	t.completion.Add(u.CompletionTokens)
	t.total.Add(u.TotalTokens)
}

func (t *tokenTally) field() zap.Field {
	return zap.Dict("tokens",
		zap.Uint32("prompt", t.prompt.Load()),
		zap.Uint32("completion", t.completion.Load()),
		zap.Uint32("total", t.total.Load()))
}

// decode parses a model response into T and checks the required paths.
func decode[T any](model, text string, required ...string) (T, error) {
	v, err := jsonutil.DecodeRequired[T](text, required...)
	if err != nil {
		return v, malformed(model, text, err)
	}
	return v, nil
}

// malformed classifies a parse or validation failure. Text that carries no
// JSON at all may be an error message passed through as content, so it is
// checked for rate-limit and auth markers; anything else is Unknown.
func malformed(model, text string, err error) error {
	class := pipeline.ClassUnknown
	if text != "" {
		if _, extractErr := jsonutil.Extract(text); extractErr != nil {
			switch c := pipeline.Classify(text, 0); c {
			case pipeline.ClassFatal, pipeline.ClassRateLimited:
				class = c
			}
		}
	}
	return &pipeline.ClassifiedError{
		Class: class,
		Model: model,
		Err:   fmt.Errorf("%w: %w", ErrMalformedResponse, err),
	}
}

func imageOf(data []byte, mime string) *llm.Image {
	return &llm.Image{MIMEType: mime, Data: data}
}
