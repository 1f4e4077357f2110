package forecast

import (
	"context"
	"testing"
	"time"

	"github.com/richinex/ghostcandle/model"
	"github.com/richinex/ghostcandle/pipeline"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestAnalyzeChartFallsBackOnRateLimit(t *testing.T) {
	endpoint := newFakeEndpoint().
		on("model-a", failure(&apiErr{code: 429})).
		on("model-b", text(analysisJSON))
	svc := newTestService(t, endpoint, "model-a", "model-b")
	var status statusRecorder

	a, err := svc.AnalyzeChart(context.Background(), testChart, status.sink)

	require.NoError(t, err)
	assert.Equal(t, "model-b", a.ModelUsed)
	require.NotNil(t, a.Ticker)
	assert.Equal(t, "AAPL", *a.Ticker)
	assert.Equal(t, model.TrendBullish, a.Trend)
	assert.Equal(t, model.KeyLevels{Support: 180, Resistance: 195}, a.KeyLevels)
	assert.Contains(t, status.msgs, "Engaging backup engine: model-b")
	assert.Equal(t, []string{"model-a", "model-b"}, endpoint.models())
}

func TestAnalyzeChartRequest(t *testing.T) {
	endpoint := newFakeEndpoint().on("m", text(analysisJSON))
	svc := newTestService(t, endpoint, "m")

	_, err := svc.AnalyzeChart(context.Background(), testChart, nil)
	require.NoError(t, err)

	req := endpoint.last()
	require.NotNil(t, req.Image)
	assert.Equal(t, "image/png", req.Image.MIMEType)
	assert.Equal(t, testChart.Data, req.Image.Data)
	assert.NotNil(t, req.Schema)
	assert.False(t, req.EnableSearch)
}

func TestAnalyzeChartNullTicker(t *testing.T) {
	endpoint := newFakeEndpoint().on("m", text(`{"ticker":null,"technical_summary":"Range bound.","trend":"neutral",
		"support_resistance":"Range 10-12","key_levels":{"support":10,"resistance":12}}`))
	svc := newTestService(t, endpoint, "m")

	a, err := svc.AnalyzeChart(context.Background(), testChart, nil)
	require.NoError(t, err)
	assert.Nil(t, a.Ticker)
}

func TestAnalyzeChartMalformedEverywhere(t *testing.T) {
	endpoint := newFakeEndpoint().
		on("a", text("I cannot read this chart.")).
		on("b", text(`{"trend":"bullish"}`))
	svc := newTestService(t, endpoint, "a", "b")

	_, err := svc.AnalyzeChart(context.Background(), testChart, nil)

	require.ErrorIs(t, err, pipeline.ErrEnginesExhausted)
	assert.ErrorIs(t, err, ErrMalformedResponse)
	// Malformed output is not retried on the same model.
	assert.Equal(t, []string{"a", "b"}, endpoint.models())
}

func TestAnalyzeChartFatalPropagates(t *testing.T) {
	endpoint := newFakeEndpoint().
		on("a", failure(&apiErr{code: 401})).
		on("b", text(analysisJSON))
	svc := newTestService(t, endpoint, "a", "b")

	_, err := svc.AnalyzeChart(context.Background(), testChart, nil)
	require.Error(t, err)
	assert.True(t, pipeline.IsFatal(err))
	assert.Equal(t, []string{"a"}, endpoint.models())
}

func TestAnalyzeChartEmptyImage(t *testing.T) {
	endpoint := newFakeEndpoint()
	svc := newTestService(t, endpoint, "a")

	_, err := svc.AnalyzeChart(context.Background(), model.Chart{}, nil)
	assert.Error(t, err)
	assert.Empty(t, endpoint.models())
}

func TestAnalyzeChartLogsTokenUsageAcrossAttempts(t *testing.T) {
	endpoint := newFakeEndpoint().
		on("a", withUsage(text("Sorry, no chart here."), 100, 20)).
		on("b", withUsage(text(analysisJSON), 120, 60))
	core, logs := observer.New(zapcore.InfoLevel)

	pipe, err := pipeline.New([]string{"a", "b"}, pipeline.WithCooldown(time.Millisecond))
	require.NoError(t, err)
	svc, err := NewService(endpoint, pipe, WithPolicies(testPolicies()), WithLogger(zap.New(core)))
	require.NoError(t, err)

	_, err = svc.AnalyzeChart(context.Background(), testChart, nil)
	require.NoError(t, err)

	entries := logs.FilterMessage("chart analyzed").All()
	require.Len(t, entries, 1)
	tokens, ok := entries[0].ContextMap()["tokens"].(map[string]interface{})
	require.True(t, ok, "expected tokens object, got %v", entries[0].ContextMap())
	assert.Equal(t, uint32(220), tokens["prompt"])
	assert.Equal(t, uint32(80), tokens["completion"])
	assert.Equal(t, uint32(300), tokens["total"])
}
