package booking

import "errors"

var (
	// ErrInvalidRequest marks input that failed validation before any remote call.
	ErrInvalidRequest = errors.New("booking: invalid request")
	// ErrNotFound marks a requested service or staff member that does not exist.
	ErrNotFound = errors.New("booking: not found")
	// ErrNoBookableStaff is returned when no staff member can perform the selection.
	ErrNoBookableStaff = errors.New("booking: no bookable staff for the selected services")
	// ErrUnverifiedCustomer is returned when an existing customer checks out
	// without a valid verification token.
	ErrUnverifiedCustomer = errors.New("booking: customer phone not verified")
)
