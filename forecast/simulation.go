package forecast

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/richinex/ghostcandle/llm"
	"github.com/richinex/ghostcandle/model"
	"github.com/richinex/ghostcandle/pipeline"
	"go.uber.org/zap"
)

// SimulationInput is everything a scenario simulation is built from.
type SimulationInput struct {
	Chart    model.Chart
	Analysis model.ChartAnalysis
	// Scenario is free text, or "baseline" (or empty) for the most probable
	// continuation.
	Scenario string
	// Market is optional news context. Placeholders are ignored.
	Market *model.MarketContext
	// Ticker overrides the ticker read from the chart when set.
	Ticker string
}

// RunSimulation projects exactly ten ghost candles past the end of the
// chart. Pipeline failures are returned unchanged.
func (s *Service) RunSimulation(ctx context.Context, in SimulationInput, status pipeline.StatusFunc) (model.Simulation, error) {
	if len(in.Chart.Data) == 0 {
		return model.Simulation{}, errors.New("chart image is empty")
	}

	req := llm.Request{
		SystemInstruction: simulationInstruction,
		Prompt:            simulationPrompt(in),
		Image:             imageOf(in.Chart.Data, in.Chart.MIMEType),
		Schema:            simulationSchema(),
		Temperature:       llm.Float32(0.7),
	}

	var tokens tokenTally
	call := func(ctx context.Context, m string) (model.Simulation, error) {
		resp, err := s.generate(ctx, m, req, &tokens)
		if err != nil {
			return model.Simulation{}, err
		}
		sim, err := decode[model.Simulation](m, resp.Text, "analysis", "ghost_candles")
		if err != nil {
			return sim, err
		}
		if len(sim.GhostCandles) != model.GhostCandleCount {
			return sim, malformed(m, "", fmt.Errorf("expected %d ghost candles, got %d", model.GhostCandleCount, len(sim.GhostCandles)))
		}
		sim = normalizeCandles(sim)
		if err := sim.Validate(); err != nil {
			return sim, malformed(m, "", err)
		}
		return sim, nil
	}

	res, err := pipeline.Run(ctx, s.pipe.WithPolicy(s.policies.Simulation), call, status)
	if err != nil {
		s.logger.Warn("simulation failed", zap.Error(err))
		return model.Simulation{}, err
	}

	sim := res.Value
	sim.ModelUsed = res.ModelUsed
	s.logger.Info("simulation complete",
		zap.String("model", res.ModelUsed),
		zap.Bool("baseline", IsBaseline(in.Scenario)),
		tokens.field())
	return sim, nil
}

// normalizeCandles numbers the candles 1..n in order and fixes inverted
// wicks.
func normalizeCandles(sim model.Simulation) model.Simulation {
	sim.Analysis = strings.TrimSpace(sim.Analysis)
	candles := make([]model.GhostCandle, len(sim.GhostCandles))
	for i, c := range sim.GhostCandles {
		c.Day = i + 1
		candles[i] = c.Normalize()
	}
	sim.GhostCandles = candles
	return sim
}
