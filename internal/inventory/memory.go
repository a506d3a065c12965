package inventory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/SumonaSupto/AgriBusket-sub001/internal/models"
)

// MemoryStore is a mutex-guarded in-memory Store used by unit tests and
// brokerless local runs. The single mutex serializes all product mutations,
// which satisfies the per-product atomicity contract trivially.
type MemoryStore struct {
	mu       sync.Mutex
	products map[string]*models.Product
}

// NewMemoryStore creates an empty in-memory inventory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{products: make(map[string]*models.Product)}
}

func (s *MemoryStore) Create(ctx context.Context, p *models.Product) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.products[p.ID]; exists {
		return fmt.Errorf("product %s already exists", p.ID)
	}
	now := time.Now()
	cp := *p
	cp.CreatedAt = now
	cp.UpdatedAt = now
	s.products[p.ID] = &cp
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, productID string) (models.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.products[productID]
	if !ok {
		return models.Product{}, fmt.Errorf("product %s: %w", productID, models.ErrNotFound)
	}
	return *p, nil
}

func (s *MemoryStore) GetAvailable(ctx context.Context, productID string) (int, error) {
	p, err := s.Get(ctx, productID)
	if err != nil {
		return 0, err
	}
	return p.AvailableQuantity, nil
}

func (s *MemoryStore) Adjust(ctx context.Context, productID string, delta int, allowNegative bool) (int, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.products[productID]
	if !ok {
		return 0, 0, fmt.Errorf("product %s: %w", productID, models.ErrNotFound)
	}
	old := p.AvailableQuantity
	updated := old + delta
	if updated < 0 && !allowNegative {
		return 0, 0, fmt.Errorf("adjust %s by %d from %d: %w", productID, delta, old, models.ErrInsufficientStock)
	}
	p.AvailableQuantity = updated
	p.Version++
	p.UpdatedAt = time.Now()
	return old, updated, nil
}

func (s *MemoryStore) SetAbsolute(ctx context.Context, productID string, quantity int) (int, int, error) {
	if quantity < 0 {
		return 0, 0, fmt.Errorf("set %s to %d: %w", productID, quantity, models.ErrInvalidQuantity)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.products[productID]
	if !ok {
		return 0, 0, fmt.Errorf("product %s: %w", productID, models.ErrNotFound)
	}
	old := p.AvailableQuantity
	p.AvailableQuantity = quantity
	p.Version++
	p.UpdatedAt = time.Now()
	return old, quantity, nil
}

func (s *MemoryStore) ReserveStock(ctx context.Context, productID string, quantity int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.products[productID]
	if !ok {
		return fmt.Errorf("product %s: %w", productID, models.ErrNotFound)
	}
	if p.AvailableQuantity < quantity {
		return fmt.Errorf("reserve %d of %s, %d available: %w", quantity, productID, p.AvailableQuantity, models.ErrInsufficientStock)
	}
	p.AvailableQuantity -= quantity
	p.ReservedQuantity += quantity
	p.Version++
	p.UpdatedAt = time.Now()
	return nil
}

func (s *MemoryStore) CommitStock(ctx context.Context, productID string, quantity int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.products[productID]
	if !ok {
		return fmt.Errorf("product %s: %w", productID, models.ErrNotFound)
	}
	if p.ReservedQuantity < quantity {
		return fmt.Errorf("commit %d of %s, %d reserved: %w", quantity, productID, p.ReservedQuantity, models.ErrInsufficientStock)
	}
	p.ReservedQuantity -= quantity
	p.Version++
	p.UpdatedAt = time.Now()
	return nil
}

func (s *MemoryStore) ReleaseStock(ctx context.Context, productID string, quantity int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.products[productID]
	if !ok {
		return fmt.Errorf("product %s: %w", productID, models.ErrNotFound)
	}
	if p.ReservedQuantity < quantity {
		return fmt.Errorf("release %d of %s, %d reserved: %w", quantity, productID, p.ReservedQuantity, models.ErrInsufficientStock)
	}
	p.ReservedQuantity -= quantity
	p.AvailableQuantity += quantity
	p.Version++
	p.UpdatedAt = time.Now()
	return nil
}

func (s *MemoryStore) CountProducts(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.products), nil
}

func (s *MemoryStore) CountLowStock(ctx context.Context, threshold int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	count := 0
	for _, p := range s.products {
		if p.AvailableQuantity <= threshold {
			count++
		}
	}
	return count, nil
}
