package orders

import (
	"errors"
	"fmt"
)

// Error kinds. Every error returned by the engine matches exactly one of these
// with errors.Is.
var (
	ErrNotFound            = errors.New("not found")
	ErrInvalidTransition   = errors.New("invalid status transition")
	ErrOrderLocked         = errors.New("order is locked")
	ErrInsufficientStock   = errors.New("insufficient stock")
	ErrNotTracked          = errors.New("product does not track stock")
	ErrInvalidInput        = errors.New("invalid input")
	ErrAllocationExhausted = errors.New("order number allocation exhausted")
	ErrConflict            = errors.New("conflict")
	ErrUnavailable         = errors.New("storage unavailable")
)

var (
	ErrOrderNotFound    = fmt.Errorf("order %w", ErrNotFound)
	ErrCustomerNotFound = fmt.Errorf("customer %w", ErrNotFound)
	ErrProductNotFound  = fmt.Errorf("product %w", ErrNotFound)

	ErrInvalidDiscount = fmt.Errorf("%w: discount drives total below zero", ErrInvalidInput)

	// returned by stores when (tenant_id, order_number) is already taken
	ErrOrderNumberTaken = fmt.Errorf("order number %w", ErrConflict)
)

var businessErrors = []error{
	ErrNotFound, ErrInvalidTransition, ErrOrderLocked, ErrInsufficientStock,
	ErrNotTracked, ErrInvalidInput, ErrAllocationExhausted, ErrConflict, ErrUnavailable,
}

// IsBusiness reports whether err carries one of the error kinds above.
func IsBusiness(err error) bool {
	for _, k := range businessErrors {
		if errors.Is(err, k) {
			return true
		}
	}
	return false
}

// unavailable tags infrastructure failures so callers can tell them apart
// from rejected requests.
func unavailable(err error) error {
	if err == nil || IsBusiness(err) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrUnavailable, err)
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}
