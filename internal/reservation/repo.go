package reservation

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/SumonaSupto/AgriBusket-sub001/internal/models"
)

// Repo persists reservation records. Resolve is the concurrency gate: it
// transitions a reservation out of Active only if it is still Active, so a
// commit, a release and the expiry sweep racing on the same reservation
// resolve it exactly once.
type Repo interface {
	Create(ctx context.Context, r *models.Reservation) error
	Get(ctx context.Context, id string) (models.Reservation, error)
	ForOrder(ctx context.Context, orderID string) ([]models.Reservation, error)

	// Resolve atomically moves an Active reservation to the given terminal
	// status and returns the resolved snapshot. ErrNotFound if absent,
	// ErrAlreadyResolved if no longer Active.
	Resolve(ctx context.Context, id string, to models.ReservationStatus) (models.Reservation, error)

	// ExpiredActive lists Active reservations whose expiry is before now.
	ExpiredActive(ctx context.Context, now time.Time) ([]models.Reservation, error)
}

// MemoryRepo is the in-memory Repo used by unit tests and local runs.
type MemoryRepo struct {
	mu           sync.Mutex
	reservations map[string]*models.Reservation
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{reservations: make(map[string]*models.Reservation)}
}

func (r *MemoryRepo) Create(ctx context.Context, res *models.Reservation) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.reservations[res.ID]; exists {
		return fmt.Errorf("reservation %s already exists", res.ID)
	}
	cp := *res
	r.reservations[res.ID] = &cp
	return nil
}

func (r *MemoryRepo) Get(ctx context.Context, id string) (models.Reservation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	res, ok := r.reservations[id]
	if !ok {
		return models.Reservation{}, fmt.Errorf("reservation %s: %w", id, models.ErrNotFound)
	}
	return *res, nil
}

func (r *MemoryRepo) ForOrder(ctx context.Context, orderID string) ([]models.Reservation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []models.Reservation
	for _, res := range r.reservations {
		if res.OrderID == orderID {
			out = append(out, *res)
		}
	}
	return out, nil
}

func (r *MemoryRepo) Resolve(ctx context.Context, id string, to models.ReservationStatus) (models.Reservation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	res, ok := r.reservations[id]
	if !ok {
		return models.Reservation{}, fmt.Errorf("reservation %s: %w", id, models.ErrNotFound)
	}
	if res.Status != models.ReservationActive {
		return models.Reservation{}, fmt.Errorf("reservation %s is %s: %w", id, res.Status, models.ErrAlreadyResolved)
	}
	now := time.Now()
	res.Status = to
	res.ResolvedAt = &now
	return *res, nil
}

func (r *MemoryRepo) ExpiredActive(ctx context.Context, now time.Time) ([]models.Reservation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []models.Reservation
	for _, res := range r.reservations {
		if res.Expired(now) {
			out = append(out, *res)
		}
	}
	return out, nil
}
