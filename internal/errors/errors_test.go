package errors

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPriceUnavailableIsRecoverable(t *testing.T) {
	err := fmt.Errorf("tick: %w", NewPriceUnavailableError("NIFTY", "missing"))

	assert.True(t, IsPriceUnavailable(err))
	assert.False(t, IsFatal(err))

	var pe *PriceUnavailableError
	assert.True(t, As(err, &pe))
	assert.Equal(t, "NIFTY", pe.Symbol)
}

func TestStalePriceMessage(t *testing.T) {
	err := &PriceUnavailableError{Symbol: "NIFTY24OCT2424500CE", Reason: "stale", Age: 95 * time.Second}
	assert.Contains(t, err.Error(), "age 1m35s")
}

func TestOrderPlacementIsFatal(t *testing.T) {
	cause := NewBrokerError("timeout", "place order", context.DeadlineExceeded)
	err := NewOrderPlacementError("NIFTY24OCT2424500CE", "SELL", 500, 3, cause)

	assert.True(t, IsFatal(err))
	assert.ErrorIs(t, err, ErrOrderRejected)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Contains(t, err.Error(), "after 3 attempt(s)")
}

func TestDuplicateTriggerIsFatal(t *testing.T) {
	err := &DuplicateTriggerError{Symbol: "NIFTY", Phase: "FIRST"}
	assert.True(t, IsFatal(err))
	assert.ErrorIs(t, err, ErrDuplicateTrigger)
}

func TestValidationErrorIsConfigError(t *testing.T) {
	err := Wrap(NewValidationError("strategy.days.monday.entry_time", "9.20", "want HH:MM"), "loading config")
	assert.ErrorIs(t, err, ErrConfigInvalid)
	assert.True(t, IsFatal(err))
}

func TestWrapNil(t *testing.T) {
	assert.Nil(t, Wrap(nil, "x"))
	assert.Nil(t, Wrapf(nil, "x %d", 1))
	assert.False(t, IsFatal(nil))
}
