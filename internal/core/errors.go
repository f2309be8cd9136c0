package core

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// Sentinel errors shared across the engine. Adapters match on these with
// errors.Is to pick a response; everything else is an operational failure.
var (
	// ErrNotFound is returned when a referenced roll, order, payment or
	// material type does not exist.
	ErrNotFound = errors.New("not found")

	// ErrConflict is returned when an operation repeatedly loses a race
	// against concurrent writers and gives up. Retrying the request is safe.
	ErrConflict = errors.New("conflict")

	// ErrUnavailable is returned when the database cannot be reached or a
	// write cannot be durably applied.
	ErrUnavailable = errors.New("unavailable")
)

// ValidationError reports caller input that the engine refuses to act on.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// InsufficientStockError is an expected business outcome, not a failure: the
// requested length exceeds what the material has left. RollNumber is zero when
// the FIFO scan found no roll with capacity; in that case Available carries the
// best single-roll remainder of the material type.
type InsufficientStockError struct {
	MaterialType string
	RollNumber   int
	Required     decimal.Decimal
	Available    decimal.Decimal
}

func (e *InsufficientStockError) Error() string {
	if e.RollNumber > 0 {
		return fmt.Sprintf("insufficient stock on roll %d of %s: need %s, have %s",
			e.RollNumber, e.MaterialType, e.Required.StringFixed(2), e.Available.StringFixed(2))
	}
	return fmt.Sprintf("insufficient stock of %s: need %s, best roll has %s",
		e.MaterialType, e.Required.StringFixed(2), e.Available.StringFixed(2))
}

// OverpaymentError reports a payment that would push an order past its total.
// MaxAcceptable is the exact remaining balance, so the message tells the
// operator what amount would succeed.
type OverpaymentError struct {
	OrderID       int
	Attempted     decimal.Decimal
	MaxAcceptable decimal.Decimal
}

func (e *OverpaymentError) Error() string {
	return fmt.Sprintf("payment of %s exceeds the remaining balance of order %d: maximum acceptable is %s",
		e.Attempted.StringFixed(2), e.OrderID, e.MaxAcceptable.StringFixed(2))
}
