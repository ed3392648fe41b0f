package orders

import "errors"

// Service-level error taxonomy. Callers match with errors.Is.
var (
	ErrValidation   = errors.New("validation failed")
	ErrAuth         = errors.New("unauthorized")
	ErrNotFound     = errors.New("order not found")
	ErrInvalidState = errors.New("invalid order state")
)

// Store-level errors.
var (
	// ErrStatusMismatch indicates a conditional write's precondition did not hold.
	ErrStatusMismatch = errors.New("status mismatch/conditional failed")
	// ErrOrderNotFound indicates the record targeted by a write does not exist.
	ErrOrderNotFound = errors.New("order record does not exist")
	// ErrDuplicateOrder indicates Create hit an existing order id.
	ErrDuplicateOrder = errors.New("order already exists")
)
