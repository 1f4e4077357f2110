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

// BacktestInput pairs a past prediction with a chart of what happened.
type BacktestInput struct {
	Predicted []model.GhostCandle
	Actual    model.Chart
	Scenario  string
}

type backtestReply struct {
	Score    float64 `json:"score"`
	Critique string  `json:"critique"`
}

// CalculateBacktestScore grades a prediction against the actual outcome.
// There is no placeholder result: pipeline failures are returned unchanged.
func (s *Service) CalculateBacktestScore(ctx context.Context, in BacktestInput, status pipeline.StatusFunc) (model.BacktestScore, error) {
	if len(in.Predicted) == 0 {
		return model.BacktestScore{}, errors.New("no predicted candles to score")
	}
	if len(in.Actual.Data) == 0 {
		return model.BacktestScore{}, errors.New("actual outcome image is empty")
	}

	req := llm.Request{
		SystemInstruction: backtestInstruction,
		Prompt:            backtestPrompt(in),
		Image:             imageOf(in.Actual.Data, in.Actual.MIMEType),
		Schema:            backtestSchema(),
		Temperature:       llm.Float32(0.2),
	}

	var tokens tokenTally
	call := func(ctx context.Context, m string) (backtestReply, error) {
		resp, err := s.generate(ctx, m, req, &tokens)
		if err != nil {
			return backtestReply{}, err
		}
		reply, err := decode[backtestReply](m, resp.Text, "score", "critique")
		if err != nil {
			return reply, err
		}
		if strings.TrimSpace(reply.Critique) == "" {
			return reply, malformed(m, "", errEmptyField("critique"))
		}
		return reply, nil
	}

	res, err := pipeline.Run(ctx, s.pipe.WithPolicy(s.policies.Backtest), call, status)
	if err != nil {
		s.logger.Warn("backtest scoring failed", zap.Error(err))
		return model.BacktestScore{}, err
	}

	score := model.BacktestScore{
		Score:     model.ClampScore(res.Value.Score),
		Critique:  strings.TrimSpace(res.Value.Critique),
		Timestamp: s.now().UTC(),
		ModelUsed: res.ModelUsed,
	}
	s.logger.Info("backtest scored", zap.String("model", res.ModelUsed), zap.Float64("score", score.Score), tokens.field())
	return score, nil
}

func errEmptyField(name string) error {
	return errors.New(name + " is empty")
}
