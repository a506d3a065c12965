package models

import "errors"

// Error taxonomy shared by the inventory, reservation and ledger layers.
// Callers match with errors.Is; layers wrap with fmt.Errorf("...: %w", err)
// to attach identifiers.
var (
	// ErrInsufficientStock means a reservation or subtraction would drive
	// availableQuantity below zero. User-correctable; nothing was written.
	ErrInsufficientStock = errors.New("insufficient stock")

	// ErrInvalidQuantity means a negative (or otherwise malformed) quantity
	// was supplied on an administrative path. Rejected before any write.
	ErrInvalidQuantity = errors.New("invalid quantity")

	// ErrNotFound means the referenced product, reservation or order does
	// not exist.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyResolved means the reservation is no longer Active.
	ErrAlreadyResolved = errors.New("reservation already resolved")

	// ErrInvalidTransition means the requested order status change is not
	// permitted by the state machine. Benign on idempotent callback paths.
	ErrInvalidTransition = errors.New("invalid order status transition")

	// ErrInvalidCallback means a gateway callback failed signature or shape
	// validation and was discarded without touching the ledger.
	ErrInvalidCallback = errors.New("invalid payment callback")

	// ErrConcurrencyConflict means an optimistic update kept losing the
	// version race past the bounded retry limit.
	ErrConcurrencyConflict = errors.New("concurrent update conflict")
)
