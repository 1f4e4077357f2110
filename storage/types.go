package storage

import (
	"context"
	"errors"
	"time"

	"github.com/richinex/ghostcandle/internal/dsa"
	"github.com/richinex/ghostcandle/model"
)

var (
	// ErrNotFound is returned when a record does not exist.
	ErrNotFound = errors.New("not found")
	// ErrAmbiguousID is returned when an abbreviated ID matches more than
	// one simulation.
	ErrAmbiguousID = dsa.ErrAmbiguous
)

// SavedSimulation is a simulation kept in history together with everything
// needed to replay or backtest it.
type SavedSimulation struct {
	ID         string               `json:"id"`
	CreatedAt  time.Time            `json:"created_at"`
	Ticker     string               `json:"ticker,omitempty"`
	Scenario   string               `json:"scenario"`
	Analysis   model.ChartAnalysis  `json:"analysis"`
	Market     *model.MarketContext `json:"market,omitempty"`
	Simulation model.Simulation     `json:"simulation"`
	Chart      model.Chart          `json:"-"`
}

// SimulationSummary is one row of the history listing.
type SimulationSummary struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	Ticker    string    `json:"ticker,omitempty"`
	Scenario  string    `json:"scenario"`
	ModelUsed string    `json:"model_used"`
	Backtests int       `json:"backtests"`
	BestScore *float64  `json:"best_score,omitempty"`
}

// SavedBacktest is a score recorded against a saved simulation.
type SavedBacktest struct {
	ID           string              `json:"id"`
	SimulationID string              `json:"simulation_id"`
	Score        model.BacktestScore `json:"score"`
}

// History persists simulations and their backtest scores.
type History interface {
	SaveSimulation(ctx context.Context, sim SavedSimulation) (SavedSimulation, error)
	GetSimulation(ctx context.Context, id string) (SavedSimulation, error)
	ResolveID(ctx context.Context, prefix string) (string, error)
	ListSimulations(ctx context.Context, limit int) ([]SimulationSummary, error)
	DeleteSimulation(ctx context.Context, id string) error
	SaveBacktest(ctx context.Context, simulationID string, score model.BacktestScore) (SavedBacktest, error)
	ListBacktests(ctx context.Context, simulationID string) ([]SavedBacktest, error)
	Close() error
}
