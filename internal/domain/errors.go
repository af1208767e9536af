package domain

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// Top-level failure classes. Every specific error below wraps one of these
// so callers can branch with errors.Is.
var (
	ErrValidation        = errors.New("validation failed")
	ErrNotFound          = errors.New("not found")
	ErrVersionConflict   = errors.New("optimistic lock conflict")
	ErrReservationFailed = errors.New("stock reservation failed")
)

var (
	ErrNegativeQuantity  = fmt.Errorf("%w: stock quantity cannot be negative", ErrValidation)
	ErrNegativeAmount    = fmt.Errorf("%w: amount cannot be negative", ErrValidation)
	ErrInsufficientStock = fmt.Errorf("%w: insufficient stock", ErrValidation)
	ErrCurrencyMismatch  = fmt.Errorf("%w: currency mismatch", ErrValidation)
	ErrInvalidCurrency   = fmt.Errorf("%w: invalid currency code", ErrValidation)
	ErrInvalidName       = fmt.Errorf("%w: invalid product name", ErrValidation)
	ErrInvalidQuantity   = fmt.Errorf("%w: quantity must be greater than zero", ErrValidation)
	ErrUseRemoveItem     = fmt.Errorf("%w: quantity cannot be zero, remove the item instead", ErrValidation)

	ErrProductNotFound = fmt.Errorf("product %w", ErrNotFound)
	ErrCartNotFound    = fmt.Errorf("cart %w", ErrNotFound)
	ErrItemNotFound    = fmt.Errorf("item %w in cart", ErrNotFound)

	// ErrCartExists means another request created the user's cart first.
	ErrCartExists = errors.New("cart already exists for user")
)

// StockReservationError is returned once every reservation attempt lost the
// version race.
type StockReservationError struct {
	ProductID uuid.UUID
	Attempts  int
}

func (e *StockReservationError) Error() string {
	return fmt.Sprintf("failed to reserve stock for product %s after %d attempts", e.ProductID, e.Attempts)
}

func (e *StockReservationError) Unwrap() error {
	return ErrReservationFailed
}
