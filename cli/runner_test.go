package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/richinex/ghostcandle/config"
	"github.com/richinex/ghostcandle/llm"
	"github.com/richinex/ghostcandle/pipeline"
	"github.com/richinex/ghostcandle/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// operationEndpoint answers each operation with a canned reply chosen from
// the shape of the request.
type operationEndpoint struct {
	mu    sync.Mutex
	calls int
	fail  error
}

func (e *operationEndpoint) Generate(_ context.Context, req llm.Request) (llm.Response, error) {
	e.mu.Lock()
	e.calls++
	e.mu.Unlock()

	if e.fail != nil {
		return llm.Response{}, e.fail
	}
	if req.EnableSearch {
		return llm.Response{
			Text:    `{"summary":"Shares rallied on earnings.","headlines":["Earnings beat"]}`,
			Sources: []llm.Source{{Title: "Wire", URI: "https://example.com/a"}},
		}, nil
	}

	props, _ := req.Schema["properties"].(map[string]any)
	switch {
	case props["ghost_candles"] != nil:
		var candles []string
		for i := 0; i < 10; i++ {
			candles = append(candles, fmt.Sprintf(`{"day":%d,"open":%d,"high":%d,"low":%d,"close":%d}`, i+1, 100+i, 102+i, 99+i, 101+i))
		}
		return llm.Response{Text: `{"analysis":"Up we go.","ghost_candles":[` + strings.Join(candles, ",") + `]}`}, nil
	case props["score"] != nil:
		return llm.Response{Text: `{"score":73,"critique":"Direction right."}`}, nil
	default:
		return llm.Response{Text: `{"ticker":"AAPL","technical_summary":"Higher lows.","trend":"bullish",
			"support_resistance":"Support 180.","key_levels":{"support":180,"resistance":195}}`}, nil
	}
}

type testApp struct {
	*App
	out     *bytes.Buffer
	errOut  *bytes.Buffer
	history *storage.SqliteStorage
	chart   string
}

func newTestApp(t *testing.T, endpoint llm.Generator) *testApp {
	t.Helper()

	settings := config.Defaults()
	settings.Pipeline.Models = []string{"gemini-2.5-flash", "gemini-2.0-flash"}
	settings.Pipeline.BaseDelay = time.Millisecond
	settings.Pipeline.DelayStep = time.Millisecond
	settings.Pipeline.Cooldown = time.Millisecond

	history, err := storage.NewSqliteInMemory()
	require.NoError(t, err)

	chart := filepath.Join(t.TempDir(), "chart.png")
	require.NoError(t, os.WriteFile(chart, []byte("\x89PNG\r\n\x1a\n\x00\x00"), 0o600))

	var out, errOut bytes.Buffer
	app := New(settings, nil, WithGenerator(endpoint), WithHistory(history), WithOutput(&out, &errOut))
	t.Cleanup(func() { _ = app.Close() })

	return &testApp{App: app, out: &out, errOut: &errOut, history: history, chart: chart}
}

func TestAnalyzePrintsJSON(t *testing.T) {
	app := newTestApp(t, &operationEndpoint{})

	require.NoError(t, app.Analyze(context.Background(), app.chart))

	var got map[string]any
	require.NoError(t, json.Unmarshal(app.out.Bytes(), &got))
	assert.Equal(t, "AAPL", got["ticker"])
	assert.Equal(t, "gemini-2.5-flash", got["model_used"])
}

func TestAnalyzeReadsDataURL(t *testing.T) {
	app := newTestApp(t, &operationEndpoint{})
	path := filepath.Join(t.TempDir(), "chart.txt")
	require.NoError(t, os.WriteFile(path, []byte("data:image/png;base64,iVBORw0KGgo=\n"), 0o600))

	assert.NoError(t, app.Analyze(context.Background(), path))
}

func TestAnalyzeRejectsNonImage(t *testing.T) {
	endpoint := &operationEndpoint{}
	app := newTestApp(t, endpoint)
	path := filepath.Join(t.TempDir(), "notes.txt")
	require.NoError(t, os.WriteFile(path, []byte("hello"), 0o600))

	assert.Error(t, app.Analyze(context.Background(), path))
	assert.Zero(t, endpoint.calls)
}

func TestSimulateSaveAndBacktest(t *testing.T) {
	app := newTestApp(t, &operationEndpoint{})
	ctx := context.Background()

	require.NoError(t, app.Simulate(ctx, SimulateOptions{ImagePath: app.chart, WithNews: true, Save: true}))

	var result SimulateResult
	require.NoError(t, json.Unmarshal(app.out.Bytes(), &result))
	require.NotEmpty(t, result.ID)
	require.NotNil(t, result.Market)
	assert.Equal(t, "Shares rallied on earnings.", result.Market.Summary)
	assert.Len(t, result.Simulation.GhostCandles, 10)
	assert.Contains(t, app.errOut.String(), "Running simulation...")

	app.out.Reset()
	require.NoError(t, app.Backtest(ctx, result.ID, app.chart, true))
	assert.Contains(t, app.out.String(), `"score": 73`)

	backtests, err := app.history.ListBacktests(ctx, result.ID)
	require.NoError(t, err)
	assert.Len(t, backtests, 1)

	app.out.Reset()
	require.NoError(t, app.HistoryShow(ctx, result.ID[:8]))
	var entry HistoryEntry
	require.NoError(t, json.Unmarshal(app.out.Bytes(), &entry))
	assert.Equal(t, "baseline", entry.Scenario)
	assert.Equal(t, "AAPL", entry.Ticker)
	assert.Equal(t, result.ID, entry.ID)
	assert.Len(t, entry.Backtests, 1)
}

func TestBacktestUnknownSimulation(t *testing.T) {
	app := newTestApp(t, &operationEndpoint{})

	err := app.Backtest(context.Background(), "missing", app.chart, false)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestRescore(t *testing.T) {
	app := newTestApp(t, &operationEndpoint{})
	ctx := context.Background()

	var ids []string
	for i := 0; i < 3; i++ {
		app.out.Reset()
		require.NoError(t, app.Simulate(ctx, SimulateOptions{ImagePath: app.chart, Save: true}))
		var result SimulateResult
		require.NoError(t, json.Unmarshal(app.out.Bytes(), &result))
		ids = append(ids, result.ID)
	}
	ids = append(ids, "missing")

	app.out.Reset()
	require.NoError(t, app.Rescore(ctx, app.chart, ids, true))

	var results []RescoreResult
	require.NoError(t, json.Unmarshal(app.out.Bytes(), &results))
	require.Len(t, results, 4)
	for i, r := range results[:3] {
		assert.Equal(t, ids[i], r.SimulationID)
		require.NotNil(t, r.Score)
		assert.Equal(t, 73.0, r.Score.Score)
	}
	assert.Nil(t, results[3].Score)
	assert.Contains(t, results[3].Error, "not found")

	list, err := app.history.ListSimulations(ctx, 0)
	require.NoError(t, err)
	for _, s := range list {
		assert.Equal(t, 1, s.Backtests)
	}
}

func TestRescoreStopsOnFatal(t *testing.T) {
	app := newTestApp(t, &operationEndpoint{})
	ctx := context.Background()

	require.NoError(t, app.Simulate(ctx, SimulateOptions{ImagePath: app.chart, Save: true}))
	var result SimulateResult
	require.NoError(t, json.Unmarshal(app.out.Bytes(), &result))

	app.svc = nil
	app.newGenerator = func(config.Settings) (llm.Generator, error) {
		return &operationEndpoint{fail: errors.New("API key not valid")}, nil
	}

	err := app.Rescore(ctx, app.chart, []string{result.ID}, false)
	require.Error(t, err)
	assert.True(t, pipeline.IsFatal(err))
}

func TestHistoryListAndDelete(t *testing.T) {
	app := newTestApp(t, &operationEndpoint{})
	ctx := context.Background()

	require.NoError(t, app.Simulate(ctx, SimulateOptions{ImagePath: app.chart, Scenario: "Rate cut", Ticker: "msft", Save: true}))
	var result SimulateResult
	require.NoError(t, json.Unmarshal(app.out.Bytes(), &result))

	app.out.Reset()
	require.NoError(t, app.HistoryList(ctx, 10))
	var list []storage.SimulationSummary
	require.NoError(t, json.Unmarshal(app.out.Bytes(), &list))
	require.Len(t, list, 1)
	assert.Equal(t, "MSFT", list[0].Ticker)
	assert.Equal(t, "Rate cut", list[0].Scenario)

	app.out.Reset()
	require.NoError(t, app.HistoryDelete(ctx, result.ID))
	assert.ErrorIs(t, app.HistoryDelete(ctx, result.ID), storage.ErrNotFound)
}

func TestNewsNeverFails(t *testing.T) {
	app := newTestApp(t, &operationEndpoint{fail: errors.New("503 Service Unavailable")})

	require.NoError(t, app.News(context.Background(), "NVDA", ""))
	assert.Contains(t, app.out.String(), `"unavailable": true`)
}

func TestModels(t *testing.T) {
	app := newTestApp(t, &operationEndpoint{})

	require.NoError(t, app.Models())
	assert.Contains(t, app.out.String(), "gemini-2.0-flash")
	assert.Contains(t, app.out.String(), `"market"`)
}

func TestExplain(t *testing.T) {
	fatal := &pipeline.ClassifiedError{Class: pipeline.ClassFatal, Err: errors.New("bad key")}
	exhausted := &pipeline.ExhaustedError{Models: []string{"a"}, Last: errors.New("busy")}

	assert.Contains(t, Explain(fatal), "credentials")
	assert.Contains(t, Explain(exhausted), "retry")
	assert.Contains(t, Explain(fmt.Errorf("lookup: %w", storage.ErrAmbiguousID)), "more characters")
	assert.Empty(t, Explain(errors.New("other")))
	assert.Empty(t, Explain(nil))
}

func TestBuildClientRequiresKeys(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "")
	t.Setenv("GOOGLE_API_KEY", "")

	_, err := buildClient(config.Defaults())
	assert.ErrorContains(t, err, "GEMINI_API_KEY")
}

func TestNewLogger(t *testing.T) {
	logger, err := NewLogger("warn", false)
	require.NoError(t, err)
	assert.False(t, logger.Core().Enabled(-1))

	logger, err = NewLogger("warn", true)
	require.NoError(t, err)
	assert.True(t, logger.Core().Enabled(-1))

	_, err = NewLogger("loud", false)
	assert.Error(t, err)
}
