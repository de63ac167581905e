// Package errors provides custom error types for domain-specific errors.
package errors

import (
	"errors"
	"fmt"
	"time"
)

// Standard sentinel errors
var (
	ErrInsufficientFunds     = errors.New("insufficient funds")
	ErrDateNotFound          = errors.New("date not found in market series")
	ErrCapabilityUnavailable = errors.New("market capability unavailable")
	ErrConfigInvalid         = errors.New("invalid configuration")
	ErrDataNotFound          = errors.New("data not found")
	ErrDatabaseError         = errors.New("database error")
	ErrSolverUnavailable     = errors.New("no LP solver available")
	ErrInputValidation       = errors.New("input validation failed")
)

// MarketDataError represents a failed lookup against a market series.
type MarketDataError struct {
	Series string
	Date   time.Time
	Err    error
}

func (e *MarketDataError) Error() string {
	return fmt.Sprintf("market data error [%s] %s: %v", e.Series, e.Date.Format("2006-01-02"), e.Err)
}

func (e *MarketDataError) Unwrap() error {
	return e.Err
}

// NewMarketDataError creates a new MarketDataError.
func NewMarketDataError(series string, date time.Time, err error) *MarketDataError {
	return &MarketDataError{
		Series: series,
		Date:   date,
		Err:    err,
	}
}

// FundingError represents a purchase that could not be paid for.
type FundingError struct {
	Operation string
	Required  float64
	Available float64
}

func (e *FundingError) Error() string {
	return fmt.Sprintf("%s: %v: need $%.2f, have $%.2f", e.Operation, ErrInsufficientFunds, e.Required, e.Available)
}

func (e *FundingError) Unwrap() error {
	return ErrInsufficientFunds
}

// NewFundingError creates a new FundingError.
func NewFundingError(operation string, required, available float64) *FundingError {
	return &FundingError{
		Operation: operation,
		Required:  required,
		Available: available,
	}
}

// ValidationError represents a validation error.
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error: %s (%v): %s", e.Field, e.Value, e.Message)
}

func (e *ValidationError) Unwrap() error {
	return ErrInputValidation
}

// NewValidationError creates a new ValidationError.
func NewValidationError(field string, value interface{}, message string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Value:   value,
		Message: message,
	}
}

// SolverError represents a non-optimal termination reported by an LP backend.
type SolverError struct {
	Model  string
	Status string
	Err    error
}

func (e *SolverError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("solver error [%s] status=%s: %v", e.Model, e.Status, e.Err)
	}
	return fmt.Sprintf("solver error [%s] status=%s", e.Model, e.Status)
}

func (e *SolverError) Unwrap() error {
	return e.Err
}

// NewSolverError creates a new SolverError.
func NewSolverError(model, status string, err error) *SolverError {
	return &SolverError{
		Model:  model,
		Status: status,
		Err:    err,
	}
}

// Wrap wraps an error with additional context.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf wraps an error with formatted context.
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target.
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}
