package ledger

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/SumonaSupto/AgriBusket-sub001/internal/models"
)

// OrderRepo persists order records. Transition is conditional on the current
// status, so concurrent callbacks racing on the same order apply exactly one
// status change.
type OrderRepo interface {
	Create(ctx context.Context, o *models.Order) error
	Get(ctx context.Context, id string) (models.Order, error)

	// Transition moves the order from -> to, stamping the transition time
	// and (optionally) the payment reference. ErrNotFound if the order is
	// absent, ErrInvalidTransition if its status is not `from`.
	Transition(ctx context.Context, id string, from, to models.OrderStatus, paymentRef string) (models.Order, error)

	// CountByStatus returns order counts keyed by status.
	CountByStatus(ctx context.Context) (map[models.OrderStatus]int, error)
}

// MemoryOrderRepo is the in-memory OrderRepo for unit tests and local runs.
type MemoryOrderRepo struct {
	mu     sync.Mutex
	orders map[string]*models.Order
}

func NewMemoryOrderRepo() *MemoryOrderRepo {
	return &MemoryOrderRepo{orders: make(map[string]*models.Order)}
}

func (r *MemoryOrderRepo) Create(ctx context.Context, o *models.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.orders[o.ID]; exists {
		return fmt.Errorf("order %s already exists", o.ID)
	}
	cp := *o
	cp.Items = append([]models.OrderItem(nil), o.Items...)
	r.orders[o.ID] = &cp
	return nil
}

func (r *MemoryOrderRepo) Get(ctx context.Context, id string) (models.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	o, ok := r.orders[id]
	if !ok {
		return models.Order{}, fmt.Errorf("order %s: %w", id, models.ErrNotFound)
	}
	cp := *o
	cp.Items = append([]models.OrderItem(nil), o.Items...)
	return cp, nil
}

func (r *MemoryOrderRepo) Transition(ctx context.Context, id string, from, to models.OrderStatus, paymentRef string) (models.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	o, ok := r.orders[id]
	if !ok {
		return models.Order{}, fmt.Errorf("order %s: %w", id, models.ErrNotFound)
	}
	if o.Status != from || !from.CanTransition(to) {
		return models.Order{}, fmt.Errorf("order %s is %s, cannot move %s -> %s: %w", id, o.Status, from, to, models.ErrInvalidTransition)
	}

	now := time.Now()
	o.Status = to
	if paymentRef != "" {
		o.PaymentRef = paymentRef
	}
	switch to {
	case models.OrderPaid:
		o.PaidAt = &now
	case models.OrderFailed:
		o.FailedAt = &now
	case models.OrderFulfilled:
		o.FulfilledAt = &now
	case models.OrderCancelled:
		o.CancelledAt = &now
	}

	cp := *o
	cp.Items = append([]models.OrderItem(nil), o.Items...)
	return cp, nil
}

func (r *MemoryOrderRepo) CountByStatus(ctx context.Context) (map[models.OrderStatus]int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	counts := make(map[models.OrderStatus]int)
	for _, o := range r.orders {
		counts[o.Status]++
	}
	return counts, nil
}
