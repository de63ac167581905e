// Package store provides data persistence implementations.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mattn/go-sqlite3"

	apperrors "options-hedge/internal/errors"
	"options-hedge/internal/market"
	"options-hedge/internal/models"
)

// SQLiteStore implements DataStore using SQLite. Calendar dates are stored
// as YYYY-MM-DD text.
type SQLiteStore struct {
	db          *sql.DB
	mu          sync.RWMutex
	importTimes map[string]time.Time
}

// NewSQLiteStore creates a new SQLite-based data store.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool for concurrent access
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	store := &SQLiteStore{
		db:          db,
		importTimes: make(map[string]time.Time),
	}

	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return store, nil
}

// IsBusy reports whether err is SQLite lock contention that a retry can
// clear.
func IsBusy(err error) bool {
	var se sqlite3.Error
	if !errors.As(err, &se) {
		return false
	}
	return se.Code == sqlite3.ErrBusy || se.Code == sqlite3.ErrLocked
}

// initSchema creates all required tables and indexes.
func (s *SQLiteStore) initSchema() error {
	schema := `
	-- Daily closes per symbol
	CREATE TABLE IF NOT EXISTS bars (
		symbol TEXT NOT NULL,
		date TEXT NOT NULL,
		close REAL NOT NULL,
		PRIMARY KEY (symbol, date)
	);

	-- VIX levels and risk-free rates
	CREATE TABLE IF NOT EXISTS rates (
		kind TEXT NOT NULL,
		date TEXT NOT NULL,
		value REAL NOT NULL,
		PRIMARY KEY (kind, date)
	);

	-- Historical option quotes for quote-matched pricing
	CREATE TABLE IF NOT EXISTS option_quotes (
		date TEXT NOT NULL,
		expiry TEXT NOT NULL,
		strike REAL NOT NULL,
		call_put TEXT NOT NULL,
		best_bid REAL NOT NULL,
		best_ask REAL NOT NULL,
		PRIMARY KEY (date, expiry, strike, call_put)
	);

	-- Backtest runs
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		strategy TEXT NOT NULL,
		symbol TEXT NOT NULL,
		start_date TEXT NOT NULL,
		end_date TEXT NOT NULL,
		days INTEGER NOT NULL,
		initial_value REAL NOT NULL,
		final_value REAL NOT NULL,
		total_cost REAL NOT NULL,
		purchases INTEGER NOT NULL,
		params TEXT,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	-- Value ledger of each run
	CREATE TABLE IF NOT EXISTS run_history (
		run_id TEXT NOT NULL,
		date TEXT NOT NULL,
		value REAL NOT NULL,
		PRIMARY KEY (run_id, date),
		FOREIGN KEY (run_id) REFERENCES runs(id)
	);

	-- Import status table
	CREATE TABLE IF NOT EXISTS import_status (
		dataset TEXT PRIMARY KEY,
		last_import DATETIME NOT NULL,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_quotes_date ON option_quotes(date, call_put);
	CREATE INDEX IF NOT EXISTS idx_runs_strategy ON runs(strategy);
	CREATE INDEX IF NOT EXISTS idx_runs_created ON runs(created_at);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func dateText(t time.Time) string {
	return models.Day(t).Format(models.DateLayout)
}

func parseDate(raw string) (time.Time, error) {
	return time.Parse(models.DateLayout, raw)
}

// ============================================================================
// Market Data Methods
// ============================================================================

// SaveBars saves the closes of bars, replacing existing rows for the same
// dates. Returns are derived on load.
func (s *SQLiteStore) SaveBars(ctx context.Context, symbol string, bars []models.Bar) error {
	if len(bars) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO bars (symbol, date, close) VALUES (?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, b := range bars {
		if _, err := stmt.ExecContext(ctx, symbol, dateText(b.Date), b.Close); err != nil {
			return fmt.Errorf("failed to insert bar: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// SaveRatePoints saves a VIX or risk-free rate series.
func (s *SQLiteStore) SaveRatePoints(ctx context.Context, kind RateKind, points []models.RatePoint) error {
	if len(points) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO rates (kind, date, value) VALUES (?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, p := range points {
		if _, err := stmt.ExecContext(ctx, string(kind), dateText(p.Date), p.Value); err != nil {
			return fmt.Errorf("failed to insert %s point: %w", kind, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// LoadSeries builds a market series for symbol over dates. Stored VIX and
// rate points up to the end of the range are attached when present.
func (s *SQLiteStore) LoadSeries(ctx context.Context, symbol string, dates DateRange) (*market.Series, error) {
	query := "SELECT date, close FROM bars WHERE symbol = ?"
	args := []interface{}{symbol}
	if !dates.Start.IsZero() {
		query += " AND date >= ?"
		args = append(args, dateText(dates.Start))
	}
	if !dates.End.IsZero() {
		query += " AND date <= ?"
		args = append(args, dateText(dates.End))
	}
	query += " ORDER BY date ASC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query bars: %w", err)
	}
	defer rows.Close()

	var (
		days   []time.Time
		closes []float64
	)
	for rows.Next() {
		var raw string
		var c float64
		if err := rows.Scan(&raw, &c); err != nil {
			return nil, fmt.Errorf("failed to scan bar: %w", err)
		}
		d, err := parseDate(raw)
		if err != nil {
			return nil, fmt.Errorf("bad bar date %q: %w", raw, err)
		}
		days = append(days, d)
		closes = append(closes, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating bars: %w", err)
	}
	if len(days) == 0 {
		return nil, apperrors.Wrapf(apperrors.ErrDataNotFound, "no bars for %s", symbol)
	}

	series, err := market.NewSeries(symbol, days, closes)
	if err != nil {
		return nil, err
	}

	vix, err := s.ratePoints(ctx, RateVIX, dates.End)
	if err != nil {
		return nil, err
	}
	if len(vix) > 0 {
		series.WithVIX(vix)
	}
	rates, err := s.ratePoints(ctx, RateRiskFreeRate, dates.End)
	if err != nil {
		return nil, err
	}
	if len(rates) > 0 {
		series.WithRiskFreeRate(rates)
	}
	return series, nil
}

func (s *SQLiteStore) ratePoints(ctx context.Context, kind RateKind, end time.Time) ([]models.RatePoint, error) {
	query := "SELECT date, value FROM rates WHERE kind = ?"
	args := []interface{}{string(kind)}
	if !end.IsZero() {
		query += " AND date <= ?"
		args = append(args, dateText(end))
	}
	query += " ORDER BY date ASC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", kind, err)
	}
	defer rows.Close()

	var points []models.RatePoint
	for rows.Next() {
		var raw string
		var p models.RatePoint
		if err := rows.Scan(&raw, &p.Value); err != nil {
			return nil, fmt.Errorf("failed to scan %s point: %w", kind, err)
		}
		if p.Date, err = parseDate(raw); err != nil {
			return nil, fmt.Errorf("bad %s date %q: %w", kind, raw, err)
		}
		points = append(points, p)
	}
	return points, rows.Err()
}

// ListSymbols returns every stored symbol with its bar count and date span.
func (s *SQLiteStore) ListSymbols(ctx context.Context) ([]SymbolInfo, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT symbol, COUNT(*), MIN(date), MAX(date)
		FROM bars GROUP BY symbol ORDER BY symbol
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list symbols: %w", err)
	}
	defer rows.Close()

	var out []SymbolInfo
	for rows.Next() {
		var info SymbolInfo
		var first, last string
		if err := rows.Scan(&info.Symbol, &info.Bars, &first, &last); err != nil {
			return nil, fmt.Errorf("failed to scan symbol: %w", err)
		}
		info.First, _ = parseDate(first)
		info.Last, _ = parseDate(last)
		out = append(out, info)
	}
	return out, rows.Err()
}

// ============================================================================
// Option Quote Methods
// ============================================================================

// SaveQuotes saves option quotes, replacing duplicates.
func (s *SQLiteStore) SaveQuotes(ctx context.Context, quotes []models.OptionQuote) error {
	if len(quotes) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO option_quotes (date, expiry, strike, call_put, best_bid, best_ask)
		VALUES (?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, q := range quotes {
		if _, err := stmt.ExecContext(ctx, dateText(q.Date), dateText(q.Expiry), q.Strike, q.CallPut, q.BestBid, q.BestAsk); err != nil {
			return fmt.Errorf("failed to insert quote: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// QuotesOn returns the quotes of one side ("P" or "C") observed on date,
// ordered by expiry then strike.
func (s *SQLiteStore) QuotesOn(ctx context.Context, date time.Time, callPut string) ([]models.OptionQuote, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT date, expiry, strike, call_put, best_bid, best_ask
		FROM option_quotes
		WHERE date = ? AND call_put = ?
		ORDER BY expiry ASC, strike ASC
	`, dateText(date), callPut)
	if err != nil {
		return nil, fmt.Errorf("failed to query quotes: %w", err)
	}
	defer rows.Close()

	var quotes []models.OptionQuote
	for rows.Next() {
		var q models.OptionQuote
		var d, exp string
		if err := rows.Scan(&d, &exp, &q.Strike, &q.CallPut, &q.BestBid, &q.BestAsk); err != nil {
			return nil, fmt.Errorf("failed to scan quote: %w", err)
		}
		if q.Date, err = parseDate(d); err != nil {
			return nil, fmt.Errorf("bad quote date %q: %w", d, err)
		}
		if q.Expiry, err = parseDate(exp); err != nil {
			return nil, fmt.Errorf("bad quote expiry %q: %w", exp, err)
		}
		quotes = append(quotes, q)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating quotes: %w", err)
	}
	return quotes, nil
}

// ============================================================================
// Run Methods
// ============================================================================

// SaveRun stores run metadata and its ledger in one transaction. An empty
// run ID is filled with a new UUID; a zero CreatedAt is set to now.
func (s *SQLiteStore) SaveRun(ctx context.Context, run *RunRecord, history []models.HistoryRow) error {
	if run.ID == "" {
		run.ID = uuid.New().String()
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now().UTC()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO runs (id, strategy, symbol, start_date, end_date, days, initial_value, final_value, total_cost, purchases, params, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, run.ID, run.Strategy, run.Symbol, dateText(run.StartDate), dateText(run.EndDate), run.Days,
		run.InitialValue, run.FinalValue, run.TotalCost, run.Purchases, run.Params, run.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to save run: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO run_history (run_id, date, value) VALUES (?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, row := range history {
		if _, err := stmt.ExecContext(ctx, run.ID, dateText(row.Date), row.Value); err != nil {
			return fmt.Errorf("failed to insert history row: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

const runColumns = "id, strategy, symbol, start_date, end_date, days, initial_value, final_value, total_cost, purchases, params, created_at"

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRun(r rowScanner) (RunRecord, error) {
	var (
		run        RunRecord
		start, end string
		params     sql.NullString
	)
	err := r.Scan(&run.ID, &run.Strategy, &run.Symbol, &start, &end, &run.Days,
		&run.InitialValue, &run.FinalValue, &run.TotalCost, &run.Purchases, &params, &run.CreatedAt)
	if err != nil {
		return RunRecord{}, err
	}
	run.StartDate, _ = parseDate(start)
	run.EndDate, _ = parseDate(end)
	run.Params = params.String
	return run, nil
}

// GetRun retrieves a run and its ledger by ID.
func (s *SQLiteStore) GetRun(ctx context.Context, id string) (*RunRecord, []models.HistoryRow, error) {
	run, err := scanRun(s.db.QueryRowContext(ctx, "SELECT "+runColumns+" FROM runs WHERE id = ?", id))
	if err == sql.ErrNoRows {
		return nil, nil, apperrors.Wrapf(apperrors.ErrDataNotFound, "run %s", id)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get run: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT date, value FROM run_history WHERE run_id = ? ORDER BY date ASC
	`, id)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to query run history: %w", err)
	}
	defer rows.Close()

	var history []models.HistoryRow
	for rows.Next() {
		var raw string
		var h models.HistoryRow
		if err := rows.Scan(&raw, &h.Value); err != nil {
			return nil, nil, fmt.Errorf("failed to scan history row: %w", err)
		}
		if h.Date, err = parseDate(raw); err != nil {
			return nil, nil, fmt.Errorf("bad history date %q: %w", raw, err)
		}
		history = append(history, h)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("error iterating run history: %w", err)
	}
	return &run, history, nil
}

// ListRuns returns run metadata, newest first.
func (s *SQLiteStore) ListRuns(ctx context.Context, filter RunFilter) ([]RunRecord, error) {
	query := "SELECT " + runColumns + " FROM runs WHERE 1=1"
	args := []interface{}{}

	if filter.Strategy != "" {
		query += " AND strategy = ?"
		args = append(args, filter.Strategy)
	}
	if filter.Symbol != "" {
		query += " AND symbol = ?"
		args = append(args, filter.Symbol)
	}

	query += " ORDER BY created_at DESC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []RunRecord
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating runs: %w", err)
	}
	return runs, nil
}

// ============================================================================
// Import Methods
// ============================================================================

// GetLastImport returns the last import time for a dataset.
func (s *SQLiteStore) GetLastImport(dataset string) time.Time {
	s.mu.RLock()
	if t, ok := s.importTimes[dataset]; ok {
		s.mu.RUnlock()
		return t
	}
	s.mu.RUnlock()

	var last time.Time
	err := s.db.QueryRow(`
		SELECT last_import FROM import_status WHERE dataset = ?
	`, dataset).Scan(&last)
	if err != nil {
		return time.Time{}
	}

	s.mu.Lock()
	s.importTimes[dataset] = last
	s.mu.Unlock()

	return last
}

// SetLastImport records the import time for a dataset.
func (s *SQLiteStore) SetLastImport(dataset string, t time.Time) error {
	_, err := s.db.Exec(`
		INSERT OR REPLACE INTO import_status (dataset, last_import, updated_at)
		VALUES (?, ?, ?)
	`, dataset, t, time.Now())
	if err != nil {
		return fmt.Errorf("failed to set last import: %w", err)
	}

	s.mu.Lock()
	s.importTimes[dataset] = t
	s.mu.Unlock()

	return nil
}
