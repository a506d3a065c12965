package inventory

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/SumonaSupto/AgriBusket-sub001/internal/eventbus"
	"github.com/SumonaSupto/AgriBusket-sub001/internal/models"
)

// Operation kinds accepted by the administrative stock API.
const (
	OpAdd      = "add"
	OpSubtract = "subtract"
	OpSet      = "set"
)

const topicStockAdjusted = "stock.adjusted"

// Adjuster is the administrative stock adjustment surface. It validates the
// operation before dispatching to the store and reports old and new
// quantities for the audit trail.
type Adjuster struct {
	store Store
	bus   eventbus.Publisher
}

func NewAdjuster(store Store, bus eventbus.Publisher) *Adjuster {
	return &Adjuster{store: store, bus: bus}
}

// Apply runs one adjustment operation. The quantity argument must be
// non-negative for every kind; subtract going below zero fails with
// ErrInsufficientStock and writes nothing.
func (a *Adjuster) Apply(ctx context.Context, actor, productID, operation string, quantity int) (old, updated int, err error) {
	if quantity < 0 {
		return 0, 0, fmt.Errorf("%s %d of %s: %w", operation, quantity, productID, models.ErrInvalidQuantity)
	}

	switch operation {
	case OpAdd:
		old, updated, err = a.store.Adjust(ctx, productID, quantity, false)
	case OpSubtract:
		old, updated, err = a.store.Adjust(ctx, productID, -quantity, false)
	case OpSet:
		old, updated, err = a.store.SetAbsolute(ctx, productID, quantity)
	default:
		return 0, 0, fmt.Errorf("unknown stock operation %q: %w", operation, models.ErrInvalidQuantity)
	}
	if err != nil {
		return 0, 0, err
	}

	log.Info().Str("actor", actor).Str("productId", productID).Str("operation", operation).Int("old", old).Int("new", updated).Msg("Stock adjusted")
	event := models.StockAdjustedEvent{
		EventID:     uuid.New().String(),
		ProductID:   productID,
		Operation:   operation,
		OldQuantity: old,
		NewQuantity: updated,
		Actor:       actor,
		Timestamp:   time.Now(),
	}
	if pubErr := a.bus.Publish(ctx, topicStockAdjusted, event); pubErr != nil {
		log.Error().Err(pubErr).Str("productId", productID).Msg("Failed to publish stock adjustment event")
	}
	return old, updated, nil
}
