// Package models provides domain models for the hedging backtester.
package models

import (
	"time"
)

// DateLayout is the calendar-date layout used for market series and ledgers.
const DateLayout = "2006-01-02"

// Day truncates t to its calendar date in UTC. All expiry and lookup
// comparisons are made on calendar days.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// DaysBetween returns the whole number of calendar days from a to b.
func DaysBetween(a, b time.Time) int {
	return int(Day(b).Sub(Day(a)).Hours() / 24)
}

// Bar is one row of a daily market series.
type Bar struct {
	Date   time.Time
	Close  float64
	Return float64
}

// HistoryRow is one entry of a portfolio value ledger.
type HistoryRow struct {
	Date  time.Time `json:"date"`
	Value float64   `json:"value"`
}

// RatePoint is a dated scalar observation (VIX level, risk-free rate).
type RatePoint struct {
	Date  time.Time
	Value float64
}
