package forecast

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/richinex/ghostcandle/llm"
	"github.com/richinex/ghostcandle/model"
	"github.com/richinex/ghostcandle/pipeline"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeEndpoint answers each model from a queue of scripted replies; the
// last reply for a model repeats.
type fakeEndpoint struct {
	mu       sync.Mutex
	replies  map[string][]reply
	requests []llm.Request
}

type reply struct {
	resp  llm.Response
	err   error
	block bool
}

func text(s string) reply     { return reply{resp: llm.Response{Text: s}} }
func failure(err error) reply { return reply{err: err} }
func hang() reply             { return reply{block: true} }

func withUsage(r reply, prompt, completion uint32) reply {
	r.resp.Usage = &llm.TokenUsage{PromptTokens: prompt, CompletionTokens: completion, TotalTokens: prompt + completion}
	return r
}

func withSources(r reply, src ...llm.Source) reply {
	r.resp.Sources = src
	return r
}

func newFakeEndpoint() *fakeEndpoint {
	return &fakeEndpoint{replies: make(map[string][]reply)}
}

func (f *fakeEndpoint) on(model string, replies ...reply) *fakeEndpoint {
	f.replies[model] = append(f.replies[model], replies...)
	return f
}

func (f *fakeEndpoint) Generate(ctx context.Context, req llm.Request) (llm.Response, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	queue := f.replies[req.Model]
	var r reply
	if len(queue) == 0 {
		f.mu.Unlock()
		return llm.Response{}, fmt.Errorf("no reply scripted for %s", req.Model)
	}
	r = queue[0]
	if len(queue) > 1 {
		f.replies[req.Model] = queue[1:]
	}
	f.mu.Unlock()

	if r.block {
		<-ctx.Done()
		return llm.Response{}, ctx.Err()
	}
	return r.resp, r.err
}

func (f *fakeEndpoint) models() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.requests))
	for i, r := range f.requests {
		out[i] = r.Model
	}
	return out
}

func (f *fakeEndpoint) last() llm.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requests[len(f.requests)-1]
}

type apiErr struct{ code int }

func (e *apiErr) Error() string   { return fmt.Sprintf("status %d", e.code) }
func (e *apiErr) HTTPStatus() int { return e.code }

var fixedNow = time.Date(2026, 3, 2, 15, 4, 5, 0, time.UTC)

func testPolicies() Policies {
	p := pipeline.Policy{Timeout: time.Second, MaxRetries: 1, BaseDelay: time.Millisecond, DelayStep: time.Millisecond}
	return Policies{Analysis: p, Market: p, Simulation: p, Backtest: p}
}

func newTestService(t *testing.T, endpoint llm.Generator, models ...string) *Service {
	t.Helper()
	pipe, err := pipeline.New(models, pipeline.WithCooldown(time.Millisecond))
	require.NoError(t, err)
	svc, err := NewService(endpoint, pipe, WithPolicies(testPolicies()), WithClock(func() time.Time { return fixedNow }))
	require.NoError(t, err)
	return svc
}

var testChart = model.Chart{Data: []byte("\x89PNG\r\n\x1a\n"), MIMEType: "image/png"}

const analysisJSON = "```json\n" + `{"ticker":"aapl","technical_summary":"Higher highs above the 50 day average.","trend":"Bullish",
"support_resistance":"Support at 180, resistance at 195.","key_levels":{"support":180,"resistance":195}}` + "\n```"

func candlesJSON(n int) string {
	var parts []string
	for i := 0; i < n; i++ {
		parts = append(parts, fmt.Sprintf(`{"day":%d,"open":%d,"high":%d,"low":%d,"close":%d}`, 0, 100+i, 99+i, 98+i, 101+i))
	}
	return fmt.Sprintf(`{"analysis":"Steady grind higher.","ghost_candles":[%s]}`, strings.Join(parts, ","))
}

type statusRecorder struct {
	mu   sync.Mutex
	msgs []string
}

func (r *statusRecorder) sink(msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, msg)
}

func TestNewServiceValidates(t *testing.T) {
	pipe, err := pipeline.New([]string{"a"})
	require.NoError(t, err)

	_, err = NewService(nil, pipe)
	assert.Error(t, err)
	_, err = NewService(newFakeEndpoint(), nil)
	assert.Error(t, err)

	svc, err := NewService(newFakeEndpoint(), pipe)
	require.NoError(t, err)
	assert.Equal(t, DefaultPolicies(), svc.Policies())
	assert.Same(t, pipe, svc.Pipeline())
}

func TestMalformedClassification(t *testing.T) {
	var ce *pipeline.ClassifiedError

	err := malformed("a", `{"partial": true}`, errors.New("missing"))
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, pipeline.ClassUnknown, ce.Class)
	assert.ErrorIs(t, err, ErrMalformedResponse)

	err = malformed("a", "Resource has been exhausted (e.g. check quota).", errors.New("no json"))
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, pipeline.ClassRateLimited, ce.Class)

	// Markers inside a JSON payload are model prose, not an error.
	err = malformed("a", `{"summary":"quota cuts"}`, errors.New("bad"))
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, pipeline.ClassUnknown, ce.Class)
}

func TestIsBaseline(t *testing.T) {
	assert.True(t, IsBaseline(""))
	assert.True(t, IsBaseline("  Baseline "))
	assert.False(t, IsBaseline("Fed cuts rates"))
}
