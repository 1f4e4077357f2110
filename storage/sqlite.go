// Package storage provides SQLite simulation history.
//
// Information Hiding:
// - SQLite connection management hidden behind the History interface
// - Schema and JSON column encoding encapsulated
// - Thread-safe via sql.DB's built-in connection pooling

package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/richinex/ghostcandle/internal/dsa"
	"github.com/richinex/ghostcandle/model"
)

// SqliteStorage implements History using SQLite.
type SqliteStorage struct {
	db  *sql.DB
	now func() time.Time
}

// OpenSqlite opens or creates a SQLite database at the given path.
// Creates parent directories if they don't exist.
func OpenSqlite(path string) (*SqliteStorage, error) {
	// Create parent directory if needed
	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path+"?_foreign_keys=1&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database: %w", err)
	}

	return newSqlite(db)
}

// NewSqliteInMemory creates an in-memory database (useful for testing).
func NewSqliteInMemory() (*SqliteStorage, error) {
	db, err := sql.Open("sqlite3", ":memory:?_foreign_keys=1")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory SQLite: %w", err)
	}
	// Every connection to :memory: is a separate database.
	db.SetMaxOpenConns(1)

	return newSqlite(db)
}

func newSqlite(db *sql.DB) (*SqliteStorage, error) {
	storage := &SqliteStorage{db: db, now: time.Now}
	if err := storage.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return storage, nil
}

// Close closes the database connection.
func (s *SqliteStorage) Close() error {
	return s.db.Close()
}

func (s *SqliteStorage) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS simulations (
			id TEXT PRIMARY KEY,
			created_at INTEGER NOT NULL,
			ticker TEXT,
			scenario TEXT NOT NULL,
			model_used TEXT NOT NULL,
			analysis TEXT NOT NULL,
			market TEXT,
			simulation TEXT NOT NULL,
			chart_mime TEXT,
			chart BLOB
		);

		CREATE INDEX IF NOT EXISTS idx_simulations_created
		ON simulations(created_at DESC);

		CREATE TABLE IF NOT EXISTS backtests (
			id TEXT PRIMARY KEY,
			simulation_id TEXT NOT NULL,
			score REAL NOT NULL,
			critique TEXT NOT NULL,
			model_used TEXT NOT NULL,
			scored_at INTEGER NOT NULL,
			FOREIGN KEY (simulation_id) REFERENCES simulations(id) ON DELETE CASCADE
		);

		CREATE INDEX IF NOT EXISTS idx_backtests_simulation
		ON backtests(simulation_id, scored_at DESC);
	`

	_, err := s.db.Exec(schema)
	if err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// SaveSimulation stores sim under a new ID and returns it with ID and
// CreatedAt filled in.
func (s *SqliteStorage) SaveSimulation(ctx context.Context, sim SavedSimulation) (SavedSimulation, error) {
	if len(sim.Simulation.GhostCandles) == 0 {
		return SavedSimulation{}, errors.New("simulation has no ghost candles")
	}

	sim.ID = uuid.NewString()
	sim.CreatedAt = s.now().UTC()
	if sim.Ticker == "" {
		sim.Ticker = sim.Analysis.TickerOrEmpty()
	}

	analysis, err := json.Marshal(sim.Analysis)
	if err != nil {
		return SavedSimulation{}, fmt.Errorf("failed to encode analysis: %w", err)
	}
	simulation, err := json.Marshal(sim.Simulation)
	if err != nil {
		return SavedSimulation{}, fmt.Errorf("failed to encode simulation: %w", err)
	}

	// Convert empty values to NULL for optional fields
	var ticker, market, chartMIME, chart interface{}
	if sim.Ticker != "" {
		ticker = sim.Ticker
	}
	if sim.Market != nil {
		raw, err := json.Marshal(sim.Market)
		if err != nil {
			return SavedSimulation{}, fmt.Errorf("failed to encode market context: %w", err)
		}
		market = string(raw)
	}
	if len(sim.Chart.Data) > 0 {
		chartMIME = sim.Chart.MIMEType
		chart = sim.Chart.Data
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO simulations
		(id, created_at, ticker, scenario, model_used, analysis, market, simulation, chart_mime, chart)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sim.ID,
		sim.CreatedAt.UnixNano(),
		ticker,
		sim.Scenario,
		sim.Simulation.ModelUsed,
		string(analysis),
		market,
		string(simulation),
		chartMIME,
		chart,
	)
	if err != nil {
		return SavedSimulation{}, fmt.Errorf("failed to store simulation: %w", err)
	}

	return sim, nil
}

// GetSimulation loads a saved simulation. Returns ErrNotFound if the ID
// is unknown.
func (s *SqliteStorage) GetSimulation(ctx context.Context, id string) (SavedSimulation, error) {
	var (
		sim                  SavedSimulation
		createdAt            int64
		ticker, market, mime sql.NullString
		analysis, simulation string
		chart                []byte
	)

	err := s.db.QueryRowContext(ctx, `
		SELECT id, created_at, ticker, scenario, analysis, market, simulation, chart_mime, chart
		FROM simulations WHERE id = ?`, id).Scan(
		&sim.ID, &createdAt, &ticker, &sim.Scenario, &analysis, &market, &simulation, &mime, &chart,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return SavedSimulation{}, fmt.Errorf("simulation %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return SavedSimulation{}, fmt.Errorf("failed to load simulation: %w", err)
	}

	sim.CreatedAt = time.Unix(0, createdAt).UTC()
	sim.Ticker = ticker.String
	if err := json.Unmarshal([]byte(analysis), &sim.Analysis); err != nil {
		return SavedSimulation{}, fmt.Errorf("corrupt analysis for simulation %s: %w", id, err)
	}
	if err := json.Unmarshal([]byte(simulation), &sim.Simulation); err != nil {
		return SavedSimulation{}, fmt.Errorf("corrupt simulation %s: %w", id, err)
	}
	if market.Valid {
		var mc model.MarketContext
		if err := json.Unmarshal([]byte(market.String), &mc); err != nil {
			return SavedSimulation{}, fmt.Errorf("corrupt market context for simulation %s: %w", id, err)
		}
		sim.Market = &mc
	}
	if len(chart) > 0 {
		sim.Chart = model.Chart{Data: chart, MIMEType: mime.String}
	}

	return sim, nil
}

// ListSimulations returns the newest simulations first. A non-positive
// limit returns all of them.
func (s *SqliteStorage) ListSimulations(ctx context.Context, limit int) ([]SimulationSummary, error) {
	if limit <= 0 {
		limit = -1
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT s.id, s.created_at, s.ticker, s.scenario, s.model_used,
			COUNT(b.id), MAX(b.score)
		FROM simulations s
		LEFT JOIN backtests b ON b.simulation_id = s.id
		GROUP BY s.id
		ORDER BY s.created_at DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query simulations: %w", err)
	}
	defer rows.Close()

	summaries := []SimulationSummary{} // Start with empty slice, not nil
	for rows.Next() {
		var (
			sum       SimulationSummary
			createdAt int64
			ticker    sql.NullString
			best      sql.NullFloat64
		)
		if err := rows.Scan(&sum.ID, &createdAt, &ticker, &sum.Scenario, &sum.ModelUsed, &sum.Backtests, &best); err != nil {
			return nil, fmt.Errorf("failed to scan simulation: %w", err)
		}
		sum.CreatedAt = time.Unix(0, createdAt).UTC()
		sum.Ticker = ticker.String
		if best.Valid {
			score := best.Float64
			sum.BestScore = &score
		}
		summaries = append(summaries, sum)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating simulations: %w", err)
	}

	return summaries, nil
}

// ResolveID expands an abbreviated simulation ID the way git expands short
// hashes. A full ID resolves to itself.
func (s *SqliteStorage) ResolveID(ctx context.Context, prefix string) (string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT id FROM simulations")
	if err != nil {
		return "", fmt.Errorf("failed to query simulation ids: %w", err)
	}
	defer rows.Close()

	ids := dsa.NewTrie[struct{}]()
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return "", fmt.Errorf("failed to scan simulation id: %w", err)
		}
		ids.Insert(id, struct{}{})
	}
	if err := rows.Err(); err != nil {
		return "", fmt.Errorf("error iterating simulation ids: %w", err)
	}

	id, _, err := ids.Resolve(strings.ToLower(prefix))
	if errors.Is(err, dsa.ErrNoMatch) {
		return "", fmt.Errorf("simulation %s: %w", strings.TrimSpace(prefix), ErrNotFound)
	}
	return id, err
}

// DeleteSimulation removes a simulation and its backtests.
func (s *SqliteStorage) DeleteSimulation(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	// defer tx.Rollback() is safe even after Commit() - it becomes a no-op
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, "DELETE FROM backtests WHERE simulation_id = ?", id); err != nil {
		return fmt.Errorf("failed to delete backtests: %w", err)
	}
	res, err := tx.ExecContext(ctx, "DELETE FROM simulations WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete simulation: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("simulation %s: %w", id, ErrNotFound)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// SaveBacktest records a score against a saved simulation.
func (s *SqliteStorage) SaveBacktest(ctx context.Context, simulationID string, score model.BacktestScore) (SavedBacktest, error) {
	if score.Timestamp.IsZero() {
		score.Timestamp = s.now().UTC()
	}
	bt := SavedBacktest{
		ID:           uuid.NewString(),
		SimulationID: simulationID,
		Score:        score,
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO backtests (id, simulation_id, score, critique, model_used, scored_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		bt.ID, simulationID, score.Score, score.Critique, score.ModelUsed, score.Timestamp.UnixNano(),
	)
	if err != nil {
		if strings.Contains(err.Error(), "FOREIGN KEY") {
			return SavedBacktest{}, fmt.Errorf("simulation %s: %w", simulationID, ErrNotFound)
		}
		return SavedBacktest{}, fmt.Errorf("failed to store backtest: %w", err)
	}

	return bt, nil
}

// ListBacktests returns the scores recorded for a simulation, newest first.
func (s *SqliteStorage) ListBacktests(ctx context.Context, simulationID string) ([]SavedBacktest, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, simulation_id, score, critique, model_used, scored_at
		FROM backtests
		WHERE simulation_id = ?
		ORDER BY scored_at DESC`, simulationID)
	if err != nil {
		return nil, fmt.Errorf("failed to query backtests: %w", err)
	}
	defer rows.Close()

	backtests := []SavedBacktest{} // Start with empty slice, not nil
	for rows.Next() {
		var (
			bt       SavedBacktest
			scoredAt int64
		)
		if err := rows.Scan(&bt.ID, &bt.SimulationID, &bt.Score.Score, &bt.Score.Critique, &bt.Score.ModelUsed, &scoredAt); err != nil {
			return nil, fmt.Errorf("failed to scan backtest: %w", err)
		}
		bt.Score.Timestamp = time.Unix(0, scoredAt).UTC()
		backtests = append(backtests, bt)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating backtests: %w", err)
	}

	return backtests, nil
}

// Verify SqliteStorage implements History
var _ History = (*SqliteStorage)(nil)
