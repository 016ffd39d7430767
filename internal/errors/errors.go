// Package errors provides custom error types for domain-specific errors.
package errors

import (
	"errors"
	"fmt"
	"time"
)

// Standard sentinel errors
var (
	ErrNotAuthenticated   = errors.New("not authenticated")
	ErrSessionExpired     = errors.New("session expired")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrOrderRejected      = errors.New("order rejected")
	ErrSymbolNotFound     = errors.New("symbol not found")
	ErrConnectionFailed   = errors.New("connection failed")
	ErrConfigInvalid      = errors.New("invalid configuration")
	ErrPriceUnavailable   = errors.New("price unavailable")
	ErrDuplicateTrigger   = errors.New("duplicate trigger")
	ErrSessionStopped     = errors.New("session stopped")
	ErrSessionRunning     = errors.New("session already running")
)

// BrokerError represents an error from the broker API.
type BrokerError struct {
	Code    string
	Message string
	Err     error
}

func (e *BrokerError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("broker error [%s]: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("broker error [%s]: %s", e.Code, e.Message)
}

func (e *BrokerError) Unwrap() error {
	return e.Err
}

// NewBrokerError creates a new BrokerError.
func NewBrokerError(code, message string, err error) *BrokerError {
	return &BrokerError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// OrderPlacementError is returned once an order could not be placed after
// every retry attempt. It ends the trading session.
type OrderPlacementError struct {
	Symbol   string
	Action   string
	Quantity int
	Attempts int
	Err      error
}

func (e *OrderPlacementError) Error() string {
	return fmt.Sprintf("order placement failed [%s %d %s] after %d attempt(s): %v",
		e.Action, e.Quantity, e.Symbol, e.Attempts, e.Err)
}

func (e *OrderPlacementError) Unwrap() []error {
	return []error{ErrOrderRejected, e.Err}
}

// NewOrderPlacementError creates a new OrderPlacementError.
func NewOrderPlacementError(symbol, action string, quantity, attempts int, err error) *OrderPlacementError {
	return &OrderPlacementError{
		Symbol:   symbol,
		Action:   action,
		Quantity: quantity,
		Attempts: attempts,
		Err:      err,
	}
}

// PriceUnavailableError means the cache had no usable price for a symbol.
type PriceUnavailableError struct {
	Symbol string
	Reason string
	// Age is set when the price existed but was older than allowed.
	Age time.Duration
}

func (e *PriceUnavailableError) Error() string {
	if e.Age > 0 {
		return fmt.Sprintf("price unavailable for %s: %s (age %s)", e.Symbol, e.Reason, e.Age.Round(time.Second))
	}
	return fmt.Sprintf("price unavailable for %s: %s", e.Symbol, e.Reason)
}

func (e *PriceUnavailableError) Unwrap() error {
	return ErrPriceUnavailable
}

// NewPriceUnavailableError creates a new PriceUnavailableError.
func NewPriceUnavailableError(symbol, reason string) *PriceUnavailableError {
	return &PriceUnavailableError{Symbol: symbol, Reason: reason}
}

// DuplicateTriggerError is returned when a live trigger already exists for
// the same symbol and phase.
type DuplicateTriggerError struct {
	Symbol string
	Phase  string
}

func (e *DuplicateTriggerError) Error() string {
	return fmt.Sprintf("duplicate trigger for %s in phase %s", e.Symbol, e.Phase)
}

func (e *DuplicateTriggerError) Unwrap() error {
	return ErrDuplicateTrigger
}

// ValidationError represents a validation error. A ValidationError raised
// while loading configuration is a configuration error.
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error: %s (%v): %s", e.Field, e.Value, e.Message)
}

func (e *ValidationError) Unwrap() error {
	return ErrConfigInvalid
}

// NewValidationError creates a new ValidationError.
func NewValidationError(field string, value interface{}, message string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Value:   value,
		Message: message,
	}
}

// IsPriceUnavailable reports whether err is a recoverable missing-price error.
func IsPriceUnavailable(err error) bool {
	return errors.Is(err, ErrPriceUnavailable)
}

// IsFatal reports whether err must end a trading session.
func IsFatal(err error) bool {
	if err == nil || IsPriceUnavailable(err) {
		return false
	}
	return errors.Is(err, ErrOrderRejected) ||
		errors.Is(err, ErrDuplicateTrigger) ||
		errors.Is(err, ErrConfigInvalid)
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
