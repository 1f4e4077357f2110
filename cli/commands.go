package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/richinex/ghostcandle/forecast"
	"github.com/richinex/ghostcandle/model"
	"github.com/richinex/ghostcandle/pipeline"
	"github.com/richinex/ghostcandle/storage"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// rescoreConcurrency bounds parallel backtests so a batch does not trip
// the endpoint's rate limit on its own.
const rescoreConcurrency = 2

// Analyze prints the technical analysis of a chart image.
func (a *App) Analyze(ctx context.Context, imagePath string) error {
	chart, err := readChart(imagePath)
	if err != nil {
		return err
	}
	svc, err := a.service()
	if err != nil {
		return err
	}

	analysis, err := svc.AnalyzeChart(ctx, chart, a.status)
	if err != nil {
		return err
	}
	return a.printJSON(analysis)
}

// News prints market context for a ticker. It only fails when the
// endpoint cannot be configured.
func (a *App) News(ctx context.Context, ticker, technicalContext string) error {
	svc, err := a.service()
	if err != nil {
		return err
	}
	return a.printJSON(svc.FetchMarketContext(ctx, ticker, technicalContext, a.status))
}

// SimulateOptions are the inputs of the simulate command.
type SimulateOptions struct {
	ImagePath string
	Scenario  string
	Ticker    string
	WithNews  bool
	Save      bool
}

// SimulateResult is the simulate command output.
type SimulateResult struct {
	ID         string               `json:"id,omitempty"`
	Analysis   model.ChartAnalysis  `json:"analysis"`
	Market     *model.MarketContext `json:"market,omitempty"`
	Simulation model.Simulation     `json:"simulation"`
}

// Simulate analyzes a chart, optionally fetches news, projects ghost
// candles and optionally saves the result to history.
func (a *App) Simulate(ctx context.Context, opts SimulateOptions) error {
	chart, err := readChart(opts.ImagePath)
	if err != nil {
		return err
	}
	svc, err := a.service()
	if err != nil {
		return err
	}

	a.status("Analyzing chart...")
	analysis, err := svc.AnalyzeChart(ctx, chart, a.status)
	if err != nil {
		return err
	}

	var market *model.MarketContext
	if opts.WithNews {
		ticker := strings.TrimSpace(opts.Ticker)
		if ticker == "" {
			ticker = analysis.TickerOrEmpty()
		}
		a.status("Fetching market context...")
		mc := svc.FetchMarketContext(ctx, ticker, analysis.TechnicalSummary, a.status)
		market = &mc
	}

	a.status("Running simulation...")
	sim, err := svc.RunSimulation(ctx, forecast.SimulationInput{
		Chart:    chart,
		Analysis: analysis,
		Scenario: opts.Scenario,
		Market:   market,
		Ticker:   opts.Ticker,
	}, a.status)
	if err != nil {
		return err
	}

	result := SimulateResult{Analysis: analysis, Market: market, Simulation: sim}
	if opts.Save {
		h, err := a.store()
		if err != nil {
			return err
		}
		saved, err := h.SaveSimulation(ctx, storage.SavedSimulation{
			Ticker:     strings.ToUpper(strings.TrimSpace(opts.Ticker)),
			Scenario:   scenarioLabel(opts.Scenario),
			Analysis:   analysis,
			Market:     market,
			Simulation: sim,
			Chart:      chart,
		})
		if err != nil {
			return err
		}
		result.ID = saved.ID
		a.logger.Info("simulation saved", zap.String("id", saved.ID))
	}
	return a.printJSON(result)
}

// Backtest scores a saved simulation against a chart of the actual
// outcome.
func (a *App) Backtest(ctx context.Context, simulationID, actualPath string, save bool) error {
	actual, err := readChart(actualPath)
	if err != nil {
		return err
	}
	score, err := a.backtest(ctx, simulationID, actual, save)
	if err != nil {
		return err
	}
	return a.printJSON(score)
}

// RescoreResult is one line of rescore output.
type RescoreResult struct {
	SimulationID string               `json:"simulation_id"`
	Score        *model.BacktestScore `json:"score,omitempty"`
	Error        string               `json:"error,omitempty"`
}

// Rescore backtests several saved simulations against the same outcome
// chart concurrently. Individual failures are reported per simulation; a
// fatal credentials failure stops the batch.
func (a *App) Rescore(ctx context.Context, actualPath string, ids []string, save bool) error {
	actual, err := readChart(actualPath)
	if err != nil {
		return err
	}
	if _, err := a.service(); err != nil {
		return err
	}
	if _, err := a.store(); err != nil {
		return err
	}

	results := make([]RescoreResult, len(ids))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(rescoreConcurrency)

	for i, id := range ids {
		g.Go(func() error {
			results[i].SimulationID = id
			score, err := a.backtest(gctx, id, actual, save)
			if err != nil {
				if pipeline.IsFatal(err) || errors.Is(err, context.Canceled) {
					return err
				}
				results[i].Error = err.Error()
				return nil
			}
			results[i].Score = &score
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}
	return a.printJSON(results)
}

func (a *App) backtest(ctx context.Context, simulationID string, actual model.Chart, save bool) (model.BacktestScore, error) {
	svc, err := a.service()
	if err != nil {
		return model.BacktestScore{}, err
	}
	h, err := a.store()
	if err != nil {
		return model.BacktestScore{}, err
	}

	simulationID, err = h.ResolveID(ctx, simulationID)
	if err != nil {
		return model.BacktestScore{}, err
	}
	saved, err := h.GetSimulation(ctx, simulationID)
	if err != nil {
		return model.BacktestScore{}, err
	}

	score, err := svc.CalculateBacktestScore(ctx, forecast.BacktestInput{
		Predicted: saved.Simulation.GhostCandles,
		Actual:    actual,
		Scenario:  saved.Scenario,
	}, prefixed(simulationID, a.status))
	if err != nil {
		return model.BacktestScore{}, err
	}

	if save {
		if _, err := h.SaveBacktest(ctx, simulationID, score); err != nil {
			return model.BacktestScore{}, err
		}
	}
	return score, nil
}

// HistoryList prints the newest saved simulations.
func (a *App) HistoryList(ctx context.Context, limit int) error {
	h, err := a.store()
	if err != nil {
		return err
	}
	list, err := h.ListSimulations(ctx, limit)
	if err != nil {
		return err
	}
	return a.printJSON(list)
}

// HistoryEntry is the history show output.
type HistoryEntry struct {
	storage.SavedSimulation
	Backtests []storage.SavedBacktest `json:"backtests"`
}

// HistoryShow prints one saved simulation with its backtests. id may be
// any unambiguous prefix of the full ID.
func (a *App) HistoryShow(ctx context.Context, id string) error {
	h, err := a.store()
	if err != nil {
		return err
	}
	id, err = h.ResolveID(ctx, id)
	if err != nil {
		return err
	}
	sim, err := h.GetSimulation(ctx, id)
	if err != nil {
		return err
	}
	backtests, err := h.ListBacktests(ctx, id)
	if err != nil {
		return err
	}
	return a.printJSON(HistoryEntry{SavedSimulation: sim, Backtests: backtests})
}

// HistoryDelete removes a saved simulation and its backtests.
func (a *App) HistoryDelete(ctx context.Context, id string) error {
	h, err := a.store()
	if err != nil {
		return err
	}
	id, err = h.ResolveID(ctx, id)
	if err != nil {
		return err
	}
	if err := h.DeleteSimulation(ctx, id); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Deleted %s\n", id)
	return nil
}

type policyView struct {
	Timeout    string `json:"timeout"`
	MaxRetries int    `json:"max_retries"`
}

// Models prints the configured pipeline and per-operation policies.
func (a *App) Models() error {
	s := a.settings
	view := func(op time.Duration, retries int) policyView {
		return policyView{Timeout: op.String(), MaxRetries: retries}
	}
	return a.printJSON(map[string]any{
		"models":     s.Pipeline.Models,
		"base_delay": s.Pipeline.BaseDelay.String(),
		"delay_step": s.Pipeline.DelayStep.String(),
		"cooldown":   s.Pipeline.Cooldown.String(),
		"operations": map[string]policyView{
			"analysis":   view(s.Operations.Analysis.Timeout, s.Operations.Analysis.Retries),
			"market":     view(s.Operations.Market.Timeout, s.Operations.Market.Retries),
			"simulation": view(s.Operations.Simulation.Timeout, s.Operations.Simulation.Retries),
			"backtest":   view(s.Operations.Backtest.Timeout, s.Operations.Backtest.Retries),
		},
	})
}

func scenarioLabel(scenario string) string {
	if forecast.IsBaseline(scenario) {
		return "baseline"
	}
	return strings.TrimSpace(scenario)
}

// prefixed tags status updates with an ID so concurrent runs can be told
// apart.
func prefixed(id string, status func(string)) func(string) {
	short := id
	if len(short) > 8 {
		short = short[:8]
	}
	return func(msg string) { status(short + ": " + msg) }
}
