// Package inventory owns per-product stock levels. Every mutating operation
// is atomic per product: the memory store serializes on a mutex, the postgres
// store relies on conditional single-row updates so concurrent callers can
// never lose an increment or oversell.
package inventory

import (
	"context"

	"github.com/SumonaSupto/AgriBusket-sub001/internal/models"
)

// Store is the inventory persistence contract. The reservation manager is
// the only caller of ReserveStock/CommitStock/ReleaseStock; the stock
// adjustment API uses Adjust and SetAbsolute.
type Store interface {
	// Create inserts a new product record.
	Create(ctx context.Context, p *models.Product) error

	// Get fetches a product by ID, ErrNotFound if absent.
	Get(ctx context.Context, productID string) (models.Product, error)

	// GetAvailable returns the currently available quantity.
	GetAvailable(ctx context.Context, productID string) (int, error)

	// Adjust applies a signed delta to availableQuantity and returns the
	// old and new values. A delta that would drive the quantity negative
	// fails with ErrInsufficientStock unless allowNegative is set
	// (administrative override only).
	Adjust(ctx context.Context, productID string, delta int, allowNegative bool) (old, updated int, err error)

	// SetAbsolute replaces availableQuantity and returns old and new
	// values. Negative quantities fail with ErrInvalidQuantity.
	SetAbsolute(ctx context.Context, productID string, quantity int) (old, updated int, err error)

	// ReserveStock atomically moves quantity from available to reserved,
	// failing with ErrInsufficientStock when not enough is available.
	ReserveStock(ctx context.Context, productID string, quantity int) error

	// CommitStock permanently consumes reserved stock.
	CommitStock(ctx context.Context, productID string, quantity int) error

	// ReleaseStock returns reserved stock to available.
	ReleaseStock(ctx context.Context, productID string, quantity int) error

	// CountProducts returns the number of product records.
	CountProducts(ctx context.Context) (int, error)

	// CountLowStock returns the number of products whose available
	// quantity is at or below threshold.
	CountLowStock(ctx context.Context, threshold int) (int, error)
}
