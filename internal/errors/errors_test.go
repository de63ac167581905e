package errors

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFundingErrorUnwrapsToInsufficientFunds(t *testing.T) {
	err := Wrap(NewFundingError("buy put", 10.5, 0), "hedge")

	assert.True(t, Is(err, ErrInsufficientFunds))

	var fe *FundingError
	assert.True(t, As(err, &fe))
	assert.Equal(t, 10.5, fe.Required)
	assert.Contains(t, err.Error(), "need $10.50")
}

func TestMarketDataErrorCarriesDate(t *testing.T) {
	d := time.Date(2020, 3, 16, 0, 0, 0, 0, time.UTC)
	err := NewMarketDataError("vix", d, ErrCapabilityUnavailable)

	assert.True(t, Is(err, ErrCapabilityUnavailable))
	assert.Equal(t, "market data error [vix] 2020-03-16: market capability unavailable", err.Error())
}

func TestWrapNil(t *testing.T) {
	assert.NoError(t, Wrap(nil, "ignored"))
	assert.NoError(t, Wrapf(nil, "ignored %d", 1))
}

func TestValidationErrorIsInputValidation(t *testing.T) {
	err := NewValidationError("floor_ratio", 1.2, "must be in [0,1)")
	assert.True(t, Is(err, ErrInputValidation))
}
