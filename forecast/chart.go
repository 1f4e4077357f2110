package forecast

import (
	"context"
	"errors"
	"strings"

	"github.com/richinex/ghostcandle/llm"
	"github.com/richinex/ghostcandle/model"
	"github.com/richinex/ghostcandle/pipeline"
	"go.uber.org/zap"
)

// AnalyzeChart reads a chart screenshot into a technical analysis.
// Pipeline failures are returned unchanged.
func (s *Service) AnalyzeChart(ctx context.Context, chart model.Chart, status pipeline.StatusFunc) (model.ChartAnalysis, error) {
	if len(chart.Data) == 0 {
		return model.ChartAnalysis{}, errors.New("chart image is empty")
	}

	req := llm.Request{
		SystemInstruction: analystInstruction,
		Prompt:            analysisPrompt,
		Image:             imageOf(chart.Data, chart.MIMEType),
		Schema:            analysisSchema(),
		Temperature:       llm.Float32(0.2),
	}

	var tokens tokenTally
	call := func(ctx context.Context, m string) (model.ChartAnalysis, error) {
		resp, err := s.generate(ctx, m, req, &tokens)
		if err != nil {
			return model.ChartAnalysis{}, err
		}
		a, err := decode[model.ChartAnalysis](m, resp.Text,
			"technical_summary", "trend", "support_resistance", "key_levels.support", "key_levels.resistance")
		if err != nil {
			return a, err
		}
		if err := a.Validate(); err != nil {
			return a, malformed(m, "", err)
		}
		return normalizeAnalysis(a), nil
	}

	res, err := pipeline.Run(ctx, s.pipe.WithPolicy(s.policies.Analysis), call, status)
	if err != nil {
		s.logger.Warn("chart analysis failed", zap.Error(err))
		return model.ChartAnalysis{}, err
	}

	a := res.Value
	a.ModelUsed = res.ModelUsed
	s.logger.Info("chart analyzed",
		zap.String("model", res.ModelUsed),
		zap.String("ticker", a.TickerOrEmpty()),
		zap.String("trend", a.Trend),
		tokens.field())
	return a, nil
}

func normalizeAnalysis(a model.ChartAnalysis) model.ChartAnalysis {
	a.Trend = strings.ToLower(strings.TrimSpace(a.Trend))
	if a.Ticker != nil {
		t := strings.ToUpper(strings.TrimSpace(*a.Ticker))
		switch t {
		case "", "NULL", "N/A", "UNKNOWN":
			a.Ticker = nil
		default:
			a.Ticker = &t
		}
	}
	return a
}
