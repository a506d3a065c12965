package reservation

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SumonaSupto/AgriBusket-sub001/internal/inventory"
	"github.com/SumonaSupto/AgriBusket-sub001/internal/models"
)

func newManager(t *testing.T, productID string, quantity int, ttl time.Duration) (*Manager, inventory.Store) {
	t.Helper()
	store := inventory.NewMemoryStore()
	err := store.Create(context.Background(), &models.Product{
		ID:                productID,
		Name:              "Organic Honey 500g",
		AvailableQuantity: quantity,
	})
	require.NoError(t, err)
	return NewManager(store, NewMemoryRepo(), ttl), store
}

func TestReserveMovesStockToReserved(t *testing.T) {
	ctx := context.Background()
	m, store := newManager(t, "p1", 10, time.Minute)

	res, err := m.Reserve(ctx, "p1", 4, "order-1")
	require.NoError(t, err)
	assert.Equal(t, models.ReservationActive, res.Status)
	assert.Equal(t, "order-1", res.OrderID)

	p, err := store.Get(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, 6, p.AvailableQuantity)
	assert.Equal(t, 4, p.ReservedQuantity)
}

func TestReserveInsufficientStockLeavesInventoryUnchanged(t *testing.T) {
	ctx := context.Background()
	m, store := newManager(t, "p1", 3, time.Minute)

	_, err := m.Reserve(ctx, "p1", 4, "order-1")
	require.ErrorIs(t, err, models.ErrInsufficientStock)

	p, err := store.Get(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, 3, p.AvailableQuantity)
	assert.Equal(t, 0, p.ReservedQuantity)
}

func TestReserveRejectsNonPositiveQuantity(t *testing.T) {
	ctx := context.Background()
	m, _ := newManager(t, "p1", 3, time.Minute)

	_, err := m.Reserve(ctx, "p1", 0, "order-1")
	require.ErrorIs(t, err, models.ErrInvalidQuantity)
}

func TestCommitConsumesStockPermanently(t *testing.T) {
	ctx := context.Background()
	m, store := newManager(t, "p1", 10, time.Minute)

	res, err := m.Reserve(ctx, "p1", 10, "order-1")
	require.NoError(t, err)
	require.NoError(t, m.Commit(ctx, res.ID))

	p, err := store.Get(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, 0, p.AvailableQuantity)
	assert.Equal(t, 0, p.ReservedQuantity)

	// A second resolution attempt is refused.
	err = m.Commit(ctx, res.ID)
	require.ErrorIs(t, err, models.ErrAlreadyResolved)
	err = m.Release(ctx, res.ID)
	require.ErrorIs(t, err, models.ErrAlreadyResolved)
}

func TestReleaseReturnsStock(t *testing.T) {
	ctx := context.Background()
	m, store := newManager(t, "p1", 10, time.Minute)

	res, err := m.Reserve(ctx, "p1", 7, "order-1")
	require.NoError(t, err)
	require.NoError(t, m.Release(ctx, res.ID))

	p, err := store.Get(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, 10, p.AvailableQuantity)
	assert.Equal(t, 0, p.ReservedQuantity)
}

func TestResolveUnknownReservation(t *testing.T) {
	ctx := context.Background()
	m, _ := newManager(t, "p1", 10, time.Minute)

	require.ErrorIs(t, m.Commit(ctx, "missing"), models.ErrNotFound)
	require.ErrorIs(t, m.Release(ctx, "missing"), models.ErrNotFound)
}

func TestConcurrentReservationsNeverOversell(t *testing.T) {
	ctx := context.Background()
	const available = 10
	m, store := newManager(t, "p1", available, time.Minute)

	// 30 concurrent single-unit reservations against 10 units: exactly 10
	// succeed, the rest fail with ErrInsufficientStock.
	const attempts = 30
	var succeeded, failed int64
	var wg sync.WaitGroup
	wg.Add(attempts)
	for i := 0; i < attempts; i++ {
		go func() {
			defer wg.Done()
			_, err := m.Reserve(ctx, "p1", 1, "order-x")
			if err == nil {
				atomic.AddInt64(&succeeded, 1)
				return
			}
			assert.ErrorIs(t, err, models.ErrInsufficientStock)
			atomic.AddInt64(&failed, 1)
		}()
	}
	wg.Wait()

	assert.EqualValues(t, available, succeeded)
	assert.EqualValues(t, attempts-available, failed)

	p, err := store.Get(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, 0, p.AvailableQuantity)
	assert.Equal(t, available, p.ReservedQuantity)
}

func TestSweepHandsExpiredOrdersToCallback(t *testing.T) {
	ctx := context.Background()
	m, store := newManager(t, "p1", 10, -time.Second) // already expired on creation

	_, err := m.Reserve(ctx, "p1", 6, "order-1")
	require.NoError(t, err)

	// The callback owns resolution; the sweeper only reports. The holds stay
	// put until the callback moves them.
	var expiredOrders []string
	sweeper := NewSweeper(m, time.Hour, func(ctx context.Context, orderID string) {
		expiredOrders = append(expiredOrders, orderID)
		require.NoError(t, m.ReleaseForOrder(ctx, orderID))
	})

	assert.Equal(t, 1, sweeper.SweepOnce(ctx))
	assert.Equal(t, []string{"order-1"}, expiredOrders)

	p, err := store.Get(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, 10, p.AvailableQuantity)
	assert.Equal(t, 0, p.ReservedQuantity)

	// A second sweep finds nothing.
	assert.Equal(t, 0, sweeper.SweepOnce(ctx))
}

func TestSweepWithoutCallbackReleasesDirectly(t *testing.T) {
	ctx := context.Background()
	m, store := newManager(t, "p1", 10, -time.Second)

	_, err := m.Reserve(ctx, "p1", 6, "order-1")
	require.NoError(t, err)

	sweeper := NewSweeper(m, time.Hour, nil)
	assert.Equal(t, 1, sweeper.SweepOnce(ctx))

	p, err := store.Get(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, 10, p.AvailableQuantity)
	assert.Equal(t, 0, p.ReservedQuantity)
}

func TestSweepIgnoresUnexpiredAndResolved(t *testing.T) {
	ctx := context.Background()
	m, _ := newManager(t, "p1", 10, time.Hour)

	_, err := m.Reserve(ctx, "p1", 2, "order-1")
	require.NoError(t, err)
	committed, err := m.Reserve(ctx, "p1", 3, "order-2")
	require.NoError(t, err)
	require.NoError(t, m.Commit(ctx, committed.ID))

	sweeper := NewSweeper(m, time.Hour, nil)
	assert.Equal(t, 0, sweeper.SweepOnce(ctx))
}

func TestReleaseForOrderSkipsResolved(t *testing.T) {
	ctx := context.Background()
	m, store := newManager(t, "p1", 10, time.Minute)

	first, err := m.Reserve(ctx, "p1", 2, "order-1")
	require.NoError(t, err)
	_, err = m.Reserve(ctx, "p1", 3, "order-1")
	require.NoError(t, err)
	require.NoError(t, m.Commit(ctx, first.ID))

	require.NoError(t, m.ReleaseForOrder(ctx, "order-1"))

	p, err := store.Get(ctx, "p1")
	require.NoError(t, err)
	// 2 committed (consumed), 3 released back.
	assert.Equal(t, 8, p.AvailableQuantity)
	assert.Equal(t, 0, p.ReservedQuantity)
}
