package orders

import (
	"errors"
	"fmt"
)

var (
	// ErrOrderNotFound is returned for lookups of unknown order IDs.
	ErrOrderNotFound = errors.New("order not found")

	// ErrPriceUnavailable marks a transient inability to price an order.
	// The evaluation cycle records the check and moves on; nothing else
	// about the order changes.
	ErrPriceUnavailable = errors.New("price unavailable")

	// ErrPositionsUnavailable is returned when the brokerage cannot report
	// positions at all.
	ErrPositionsUnavailable = errors.New("unable to fetch positions")
)

// ValidationError reports malformed order parameters.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string { return e.Reason }

func newValidationError(format string, args ...interface{}) *ValidationError {
	return &ValidationError{Reason: fmt.Sprintf(format, args...)}
}

// InsufficientPositionError reports a sell order that the account cannot
// cover.
type InsufficientPositionError struct {
	StockCode string
	Sellable  float64
	Required  int
}

func (e *InsufficientPositionError) Error() string {
	return fmt.Sprintf("insufficient sellable shares for %s: own %g, required %d",
		e.StockCode, e.Sellable, e.Required)
}

// InvalidStateError reports a lifecycle action applied to an order whose
// status does not permit it.
type InvalidStateError struct {
	Action string
	Status Status
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("cannot %s order in status %s", e.Action, e.Status)
}

// ExecutionError reports a failed brokerage submission. Executions are
// never retried automatically: a submission whose outcome is unknown may
// have filled, and retrying would risk a double execution.
type ExecutionError struct {
	OrderID string
	Err     error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("failed to place order %s: %v", e.OrderID, e.Err)
}

func (e *ExecutionError) Unwrap() error { return e.Err }

// CorruptStoreError reports persisted order state that cannot be read
// back. Callers decide severity; the manager refuses to start on it.
type CorruptStoreError struct {
	Path string
	Err  error
}

func (e *CorruptStoreError) Error() string {
	return fmt.Sprintf("corrupt order store %s: %v", e.Path, e.Err)
}

func (e *CorruptStoreError) Unwrap() error { return e.Err }
