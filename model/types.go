// Package model provides the domain records shared by the forecast
// operations, the history store and the CLI.
package model

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
)

// Trend values the analysis schema allows.
const (
	TrendBullish = "bullish"
	TrendBearish = "bearish"
	TrendNeutral = "neutral"
)

// GhostCandleCount is the number of candles every simulation projects.
const GhostCandleCount = 10

// KeyLevels are the nearest support and resistance prices read off a chart.
type KeyLevels struct {
	Support    float64 `json:"support"`
	Resistance float64 `json:"resistance"`
}

// ChartAnalysis is the technical reading of a chart screenshot.
// Ticker is nil when the symbol cannot be read from the image.
type ChartAnalysis struct {
	Ticker            *string   `json:"ticker"`
	TechnicalSummary  string    `json:"technical_summary"`
	Trend             string    `json:"trend"`
	SupportResistance string    `json:"support_resistance"`
	KeyLevels         KeyLevels `json:"key_levels"`
	ModelUsed         string    `json:"model_used"`
}

// TickerOrEmpty returns the ticker or "" when unknown.
func (a ChartAnalysis) TickerOrEmpty() string {
	if a.Ticker == nil {
		return ""
	}
	return *a.Ticker
}

// Validate checks the fields every downstream prompt relies on.
func (a ChartAnalysis) Validate() error {
	var errs []error
	if strings.TrimSpace(a.TechnicalSummary) == "" {
		errs = append(errs, errors.New("technical_summary is empty"))
	}
	if strings.TrimSpace(a.Trend) == "" {
		errs = append(errs, errors.New("trend is empty"))
	}
	if !finite(a.KeyLevels.Support) || !finite(a.KeyLevels.Resistance) {
		errs = append(errs, errors.New("key_levels must be finite numbers"))
	}
	return errors.Join(errs...)
}

// Source is a web page the endpoint cited while grounding an answer.
type Source struct {
	Title string `json:"title"`
	URI   string `json:"uri"`
}

// MarketContext is the news backdrop for a ticker.
type MarketContext struct {
	Summary   string   `json:"summary"`
	Headlines []string `json:"headlines"`
	Sources   []Source `json:"sources"`
	ModelUsed string   `json:"model_used"`
	// Unavailable marks the placeholder returned when no model could
	// produce a context.
	Unavailable bool `json:"unavailable,omitempty"`
}

// MaxHeadlines caps MarketContext.Headlines.
const MaxHeadlines = 4

// UnavailableSummary is the placeholder summary text.
const UnavailableSummary = "Market data is currently unavailable. Proceeding with technical analysis only."

// UnavailableMarketContext returns the placeholder used when market
// intelligence cannot be fetched.
func UnavailableMarketContext() MarketContext {
	return MarketContext{
		Summary:     UnavailableSummary,
		Headlines:   []string{},
		Sources:     []Source{},
		Unavailable: true,
	}
}

// GhostCandle is one projected daily candle.
type GhostCandle struct {
	Day   int     `json:"day"`
	Open  float64 `json:"open"`
	High  float64 `json:"high"`
	Low   float64 `json:"low"`
	Close float64 `json:"close"`
}

// Validate rejects candles with non-finite or non-positive prices.
func (c GhostCandle) Validate() error {
	for _, p := range []float64{c.Open, c.High, c.Low, c.Close} {
		if !finite(p) || p <= 0 {
			return fmt.Errorf("day %d: invalid price %v", c.Day, p)
		}
	}
	return nil
}

// Normalize widens High and Low so the candle body lies inside the wicks.
func (c GhostCandle) Normalize() GhostCandle {
	c.High = math.Max(c.High, math.Max(c.Open, c.Close))
	c.Low = math.Min(c.Low, math.Min(c.Open, c.Close))
	return c
}

// Simulation is a narrative projection plus its ghost candles.
type Simulation struct {
	Analysis     string        `json:"analysis"`
	GhostCandles []GhostCandle `json:"ghost_candles"`
	ModelUsed    string        `json:"model_used"`
}

// Validate checks the candle count and every candle.
func (s Simulation) Validate() error {
	if strings.TrimSpace(s.Analysis) == "" {
		return errors.New("analysis is empty")
	}
	if len(s.GhostCandles) != GhostCandleCount {
		return fmt.Errorf("expected %d ghost candles, got %d", GhostCandleCount, len(s.GhostCandles))
	}
	for _, c := range s.GhostCandles {
		if err := c.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// BacktestScore grades a past simulation against what actually happened.
type BacktestScore struct {
	Score     float64   `json:"score"`
	Critique  string    `json:"critique"`
	Timestamp time.Time `json:"timestamp"`
	ModelUsed string    `json:"model_used"`
}

// ClampScore limits s to the 0..100 range. NaN becomes 0.
func ClampScore(s float64) float64 {
	if math.IsNaN(s) {
		return 0
	}
	return math.Max(0, math.Min(100, s))
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
