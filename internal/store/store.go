// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"
	"time"

	"options-hedge/internal/market"
	"options-hedge/internal/models"
)

// DataStore defines the interface for data persistence.
type DataStore interface {
	// Market data
	SaveBars(ctx context.Context, symbol string, bars []models.Bar) error
	SaveRatePoints(ctx context.Context, kind RateKind, points []models.RatePoint) error
	LoadSeries(ctx context.Context, symbol string, dates DateRange) (*market.Series, error)
	ListSymbols(ctx context.Context) ([]SymbolInfo, error)

	// Option quotes
	SaveQuotes(ctx context.Context, quotes []models.OptionQuote) error
	QuotesOn(ctx context.Context, date time.Time, callPut string) ([]models.OptionQuote, error)

	// Backtest runs
	SaveRun(ctx context.Context, run *RunRecord, history []models.HistoryRow) error
	GetRun(ctx context.Context, id string) (*RunRecord, []models.HistoryRow, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]RunRecord, error)

	// Imports
	GetLastImport(dataset string) time.Time
	SetLastImport(dataset string, t time.Time) error

	// Lifecycle
	Close() error
}

// RateKind names a dated scalar series.
type RateKind string

const (
	RateVIX          RateKind = "vix"
	RateRiskFreeRate RateKind = "rate"
)

// DateRange bounds a query. Zero ends are open.
type DateRange struct {
	Start time.Time
	End   time.Time
}

// SymbolInfo summarizes the stored bars of one symbol.
type SymbolInfo struct {
	Symbol string    `json:"symbol"`
	Bars   int       `json:"bars"`
	First  time.Time `json:"first"`
	Last   time.Time `json:"last"`
}

// RunRecord is the metadata of a persisted backtest run.
type RunRecord struct {
	ID           string    `json:"id"`
	Strategy     string    `json:"strategy"`
	Symbol       string    `json:"symbol"`
	StartDate    time.Time `json:"start_date"`
	EndDate      time.Time `json:"end_date"`
	Days         int       `json:"days"`
	InitialValue float64   `json:"initial_value"`
	FinalValue   float64   `json:"final_value"`
	TotalCost    float64   `json:"total_cost"`
	Purchases    int       `json:"purchases"`
	Params       string    `json:"params,omitempty"` // JSON of the strategy settings
	CreatedAt    time.Time `json:"created_at"`
}

// RunFilter represents filters for querying runs.
type RunFilter struct {
	Strategy string
	Symbol   string
	Limit    int
}
