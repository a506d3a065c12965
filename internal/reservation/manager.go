// Package reservation converts checkout requests into temporary holds on
// inventory and resolves them when payment settles or the hold expires.
package reservation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/SumonaSupto/AgriBusket-sub001/internal/inventory"
	"github.com/SumonaSupto/AgriBusket-sub001/internal/models"
)

// Manager owns reservation records and is the only writer of a product's
// reservedQuantity, which it moves through the inventory store's atomic
// reserve/commit/release primitives.
type Manager struct {
	store inventory.Store
	repo  Repo
	ttl   time.Duration
}

// NewManager creates a reservation manager. ttl bounds how long an Active
// reservation may lock stock before the sweeper returns it.
func NewManager(store inventory.Store, repo Repo, ttl time.Duration) *Manager {
	return &Manager{store: store, repo: repo, ttl: ttl}
}

// Reserve atomically checks and decrements available stock, then records an
// Active reservation owned by orderID. The check-and-decrement happens in a
// single store operation, so concurrent reservations on the same product
// cannot oversell.
func (m *Manager) Reserve(ctx context.Context, productID string, quantity int, orderID string) (*models.Reservation, error) {
	if quantity <= 0 {
		return nil, fmt.Errorf("reserve %d of %s: %w", quantity, productID, models.ErrInvalidQuantity)
	}

	if err := m.store.ReserveStock(ctx, productID, quantity); err != nil {
		return nil, err
	}

	now := time.Now()
	res := &models.Reservation{
		ID:        uuid.New().String(),
		ProductID: productID,
		OrderID:   orderID,
		Quantity:  quantity,
		Status:    models.ReservationActive,
		ExpiresAt: now.Add(m.ttl),
		CreatedAt: now,
	}
	if err := m.repo.Create(ctx, res); err != nil {
		// The stock hold must not leak; undo the decrement before failing.
		if relErr := m.store.ReleaseStock(ctx, productID, quantity); relErr != nil {
			log.Error().Err(relErr).Str("productId", productID).Msg("Failed to return stock after reservation insert failure")
		}
		return nil, fmt.Errorf("failed to record reservation: %w", err)
	}

	log.Debug().Str("reservationId", res.ID).Str("orderId", orderID).Str("productId", productID).Int("quantity", quantity).Msg("Stock reserved")
	return res, nil
}

// Commit permanently consumes the reserved stock. Fails with ErrNotFound or
// ErrAlreadyResolved if the reservation is missing or no longer Active.
func (m *Manager) Commit(ctx context.Context, reservationID string) error {
	res, err := m.repo.Resolve(ctx, reservationID, models.ReservationCommitted)
	if err != nil {
		return err
	}
	if err := m.store.CommitStock(ctx, res.ProductID, res.Quantity); err != nil {
		return fmt.Errorf("failed to commit stock for reservation %s: %w", reservationID, err)
	}
	log.Debug().Str("reservationId", reservationID).Str("orderId", res.OrderID).Msg("Reservation committed")
	return nil
}

// Release returns the reserved stock to availability. Same failure modes as
// Commit.
func (m *Manager) Release(ctx context.Context, reservationID string) error {
	res, err := m.repo.Resolve(ctx, reservationID, models.ReservationReleased)
	if err != nil {
		return err
	}
	if err := m.store.ReleaseStock(ctx, res.ProductID, res.Quantity); err != nil {
		return fmt.Errorf("failed to release stock for reservation %s: %w", reservationID, err)
	}
	log.Debug().Str("reservationId", reservationID).Str("orderId", res.OrderID).Msg("Reservation released")
	return nil
}

// CommitForOrder commits every Active reservation owned by the order.
func (m *Manager) CommitForOrder(ctx context.Context, orderID string) error {
	return m.resolveForOrder(ctx, orderID, m.Commit)
}

// ReleaseForOrder releases every Active reservation owned by the order.
func (m *Manager) ReleaseForOrder(ctx context.Context, orderID string) error {
	return m.resolveForOrder(ctx, orderID, m.Release)
}

func (m *Manager) resolveForOrder(ctx context.Context, orderID string, resolve func(context.Context, string) error) error {
	reservations, err := m.repo.ForOrder(ctx, orderID)
	if err != nil {
		return err
	}
	for _, res := range reservations {
		if res.Status != models.ReservationActive {
			continue
		}
		if err := resolve(ctx, res.ID); err != nil {
			// A concurrent resolver (e.g. the sweep) may have won the race;
			// that is the idempotent outcome we want.
			if isBenign(err) {
				continue
			}
			return err
		}
	}
	return nil
}

func isBenign(err error) bool {
	return errors.Is(err, models.ErrAlreadyResolved) || errors.Is(err, models.ErrNotFound)
}
