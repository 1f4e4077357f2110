package forecast

import (
	"context"
	"strings"

	"github.com/richinex/ghostcandle/llm"
	"github.com/richinex/ghostcandle/model"
	"github.com/richinex/ghostcandle/pipeline"
	"go.uber.org/zap"
)

type marketReply struct {
	Summary   string   `json:"summary"`
	Headlines []string `json:"headlines"`
}

// FetchMarketContext searches the web for news on ticker.
//
// It never fails. A blank ticker, cancellation or any pipeline failure
// yields model.UnavailableMarketContext.
func (s *Service) FetchMarketContext(ctx context.Context, ticker, technicalContext string, status pipeline.StatusFunc) model.MarketContext {
	ticker = strings.TrimSpace(ticker)
	if ticker == "" {
		return model.UnavailableMarketContext()
	}

	// Search grounding cannot be combined with a forced JSON response, so
	// the shape is requested in the prompt instead of a schema.
	req := llm.Request{
		SystemInstruction: marketInstruction,
		Prompt:            marketPrompt(ticker, strings.TrimSpace(technicalContext)),
		EnableSearch:      true,
		Temperature:       llm.Float32(0.3),
	}

	var tokens tokenTally
	call := func(ctx context.Context, m string) (model.MarketContext, error) {
		resp, err := s.generate(ctx, m, req, &tokens)
		if err != nil {
			return model.MarketContext{}, err
		}
		reply, err := decode[marketReply](m, resp.Text, "summary")
		if err != nil {
			return model.MarketContext{}, err
		}
		if strings.TrimSpace(reply.Summary) == "" {
			return model.MarketContext{}, malformed(m, "", errEmptyField("summary"))
		}
		return model.MarketContext{
			Summary:   strings.TrimSpace(reply.Summary),
			Headlines: cleanHeadlines(reply.Headlines),
			Sources:   dedupeSources(resp.Sources),
		}, nil
	}

	res, err := pipeline.Run(ctx, s.pipe.WithPolicy(s.policies.Market), call, status)
	if err != nil {
		s.logger.Warn("market context unavailable", zap.String("ticker", ticker), zap.Error(err))
		return model.UnavailableMarketContext()
	}

	mc := res.Value
	mc.ModelUsed = res.ModelUsed
	s.logger.Info("market context fetched",
		zap.String("ticker", ticker),
		zap.String("model", res.ModelUsed),
		zap.Int("sources", len(mc.Sources)),
		tokens.field())
	return mc
}

func cleanHeadlines(in []string) []string {
	out := make([]string, 0, model.MaxHeadlines)
	for _, h := range in {
		h = strings.TrimSpace(h)
		if h == "" {
			continue
		}
		out = append(out, h)
		if len(out) == model.MaxHeadlines {
			break
		}
	}
	return out
}

func dedupeSources(in []llm.Source) []model.Source {
	seen := make(map[string]bool, len(in))
	out := make([]model.Source, 0, len(in))
	for _, src := range in {
		uri := strings.TrimSpace(src.URI)
		if uri == "" || seen[uri] {
			continue
		}
		seen[uri] = true
		title := strings.TrimSpace(src.Title)
		if title == "" {
			title = uri
		}
		out = append(out, model.Source{Title: title, URI: uri})
	}
	return out
}
