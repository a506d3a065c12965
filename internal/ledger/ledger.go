// Package ledger records orders and drives their status transitions,
// consuming reservations on payment and returning them on failure.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/SumonaSupto/AgriBusket-sub001/internal/eventbus"
	"github.com/SumonaSupto/AgriBusket-sub001/internal/inventory"
	"github.com/SumonaSupto/AgriBusket-sub001/internal/models"
	"github.com/SumonaSupto/AgriBusket-sub001/internal/reservation"
)

// Routing keys for outbound ledger events.
const (
	TopicOrderPaid   = "order.paid"
	TopicOrderFailed = "order.failed"
)

// Ledger is the order ledger service.
type Ledger struct {
	orders            OrderRepo
	reservations      *reservation.Manager
	store             inventory.Store
	txns              TxnRefStore
	bus               eventbus.Publisher
	lowStockThreshold int
}

// New wires the ledger with its collaborators.
func New(orders OrderRepo, reservations *reservation.Manager, store inventory.Store, txns TxnRefStore, bus eventbus.Publisher, lowStockThreshold int) *Ledger {
	return &Ledger{
		orders:            orders,
		reservations:      reservations,
		store:             store,
		txns:              txns,
		bus:               bus,
		lowStockThreshold: lowStockThreshold,
	}
}

// CreateOrder reserves stock for every line item and records a pending
// order. All-or-nothing: if any reservation fails, every reservation already
// acquired for this order is released and no order is created.
func (l *Ledger) CreateOrder(ctx context.Context, customerID string, items []models.OrderItem) (*models.Order, error) {
	if len(items) == 0 {
		return nil, fmt.Errorf("order has no items: %w", models.ErrInvalidQuantity)
	}
	for _, item := range items {
		if item.Quantity <= 0 {
			return nil, fmt.Errorf("item %s quantity %d: %w", item.ProductID, item.Quantity, models.ErrInvalidQuantity)
		}
	}

	orderID := uuid.New().String()
	snapshotted := make([]models.OrderItem, 0, len(items))

	for _, item := range items {
		product, err := l.store.Get(ctx, item.ProductID)
		if err != nil {
			l.rollbackReservations(ctx, orderID)
			return nil, err
		}
		if _, err := l.reservations.Reserve(ctx, item.ProductID, item.Quantity, orderID); err != nil {
			l.rollbackReservations(ctx, orderID)
			return nil, fmt.Errorf("could not reserve %d of %s: %w", item.Quantity, item.ProductID, err)
		}
		snapshotted = append(snapshotted, models.OrderItem{
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			UnitPrice: product.UnitPrice,
		})
	}

	order := &models.Order{
		ID:         orderID,
		CustomerID: customerID,
		Items:      snapshotted,
		Status:     models.OrderPending,
		CreatedAt:  time.Now(),
	}
	if err := l.orders.Create(ctx, order); err != nil {
		l.rollbackReservations(ctx, orderID)
		return nil, fmt.Errorf("failed to record order: %w", err)
	}

	log.Info().Str("orderId", orderID).Str("customerId", customerID).Int("items", len(snapshotted)).Msg("Order created")
	return order, nil
}

func (l *Ledger) rollbackReservations(ctx context.Context, orderID string) {
	if err := l.reservations.ReleaseForOrder(ctx, orderID); err != nil {
		log.Error().Err(err).Str("orderId", orderID).Msg("Failed to roll back reservations")
	}
}

// RecordPayment applies a validated gateway outcome to the order. Idempotent
// by transaction reference: a reference seen before is a no-op regardless of
// outcome. A transition refused by the state machine (duplicate or late
// notification under a fresh reference) is logged and swallowed, never
// surfaced as fatal. On a transient failure the reference is given back so
// the gateway's retry is not mistaken for a duplicate.
func (l *Ledger) RecordPayment(ctx context.Context, orderID string, outcome models.PaymentOutcome, txnRef, rawPayload string) error {
	first, err := l.txns.MarkProcessed(ctx, models.PaymentNotification{
		TransactionID: txnRef,
		OrderID:       orderID,
		Outcome:       outcome,
		RawPayload:    rawPayload,
		ReceivedAt:    time.Now(),
	})
	if err != nil {
		return fmt.Errorf("failed to check transaction reference %s: %w", txnRef, err)
	}
	if !first {
		log.Info().Str("orderId", orderID).Str("txnRef", txnRef).Msg("Duplicate payment notification ignored")
		return nil
	}

	var applyErr error
	switch outcome {
	case models.PaymentSuccess:
		applyErr = l.applySuccess(ctx, orderID, txnRef)
	case models.PaymentFailure:
		applyErr = l.applyFailure(ctx, orderID, txnRef)
	default:
		applyErr = fmt.Errorf("unknown payment outcome %q for order %s", outcome, orderID)
	}
	if applyErr != nil {
		if unmarkErr := l.txns.Unmark(ctx, txnRef); unmarkErr != nil {
			log.Error().Err(unmarkErr).Str("txnRef", txnRef).Msg("Failed to return transaction reference after error")
		}
		return applyErr
	}
	return nil
}

func (l *Ledger) applySuccess(ctx context.Context, orderID, txnRef string) error {
	order, err := l.orders.Transition(ctx, orderID, models.OrderPending, models.OrderPaid, txnRef)
	if err != nil {
		if !errors.Is(err, models.ErrInvalidTransition) {
			return err
		}
		current, getErr := l.orders.Get(ctx, orderID)
		if getErr != nil {
			return getErr
		}
		if current.Status != models.OrderPaid {
			log.Warn().Str("orderId", orderID).Str("txnRef", txnRef).Str("status", string(current.Status)).Msg("Success notification for order not awaiting payment, ignoring")
			return nil
		}
		// Paid by an earlier attempt whose commit may have been cut short;
		// make sure the holds are consumed before acking the gateway.
		if err := l.reservations.CommitForOrder(ctx, orderID); err != nil {
			return fmt.Errorf("order %s paid but commit failed: %w", orderID, err)
		}
		return nil
	}
	if err := l.reservations.CommitForOrder(ctx, orderID); err != nil {
		return fmt.Errorf("order %s paid but commit failed: %w", orderID, err)
	}
	l.publish(ctx, TopicOrderPaid, models.OrderPaidEvent{
		EventID:       uuid.New().String(),
		OrderID:       orderID,
		CustomerID:    order.CustomerID,
		Items:         order.Items,
		TotalAmount:   order.Total(),
		TransactionID: txnRef,
		Timestamp:     time.Now(),
	})
	log.Info().Str("orderId", orderID).Str("txnRef", txnRef).Msg("Order paid")
	return nil
}

func (l *Ledger) applyFailure(ctx context.Context, orderID, txnRef string) error {
	if _, err := l.orders.Transition(ctx, orderID, models.OrderPending, models.OrderFailed, txnRef); err != nil {
		if !errors.Is(err, models.ErrInvalidTransition) {
			return err
		}
		current, getErr := l.orders.Get(ctx, orderID)
		if getErr != nil {
			return getErr
		}
		if current.Status != models.OrderFailed {
			log.Warn().Str("orderId", orderID).Str("txnRef", txnRef).Str("status", string(current.Status)).Msg("Failure notification for order not awaiting payment, ignoring")
			return nil
		}
		if err := l.reservations.ReleaseForOrder(ctx, orderID); err != nil {
			return fmt.Errorf("order %s failed but release failed: %w", orderID, err)
		}
		return nil
	}
	if err := l.reservations.ReleaseForOrder(ctx, orderID); err != nil {
		return fmt.Errorf("order %s failed but release failed: %w", orderID, err)
	}
	l.publish(ctx, TopicOrderFailed, models.OrderFailedEvent{
		EventID:   uuid.New().String(),
		OrderID:   orderID,
		Reason:    "payment failed",
		Timestamp: time.Now(),
	})
	log.Info().Str("orderId", orderID).Str("txnRef", txnRef).Msg("Order failed on payment")
	return nil
}

// MarkFulfilled moves a paid order to fulfilled on confirmation from the
// logistics collaborator.
func (l *Ledger) MarkFulfilled(ctx context.Context, orderID string) error {
	if _, err := l.orders.Transition(ctx, orderID, models.OrderPaid, models.OrderFulfilled, ""); err != nil {
		return err
	}
	log.Info().Str("orderId", orderID).Msg("Order fulfilled")
	return nil
}

// Cancel cancels a pending or paid order. A pending order gets its
// reservations released back to stock; a paid order's stock is already
// consumed. Fulfilled (and other terminal) orders refuse with
// ErrInvalidTransition.
func (l *Ledger) Cancel(ctx context.Context, orderID string) error {
	order, err := l.orders.Get(ctx, orderID)
	if err != nil {
		return err
	}

	if _, err := l.orders.Transition(ctx, orderID, order.Status, models.OrderCancelled, ""); err != nil {
		return err
	}
	if order.Status == models.OrderPending {
		if err := l.reservations.ReleaseForOrder(ctx, orderID); err != nil {
			return fmt.Errorf("order %s cancelled but release failed: %w", orderID, err)
		}
	}
	l.publish(ctx, TopicOrderFailed, models.OrderFailedEvent{
		EventID:   uuid.New().String(),
		OrderID:   orderID,
		Reason:    "cancelled",
		Timestamp: time.Now(),
	})
	log.Info().Str("orderId", orderID).Msg("Order cancelled")
	return nil
}

// FailExpired is the sweep callback for an order holding expired
// reservations. The state machine is settled first: only after the order
// leaves Pending do its holds move, so a payment callback racing the sweep
// can never pay for stock that went back on the shelf. Orders that
// progressed past Pending in the meantime get their leftover holds settled
// to match the state they reached.
func (l *Ledger) FailExpired(ctx context.Context, orderID string) {
	if _, err := l.orders.Transition(ctx, orderID, models.OrderPending, models.OrderFailed, ""); err != nil {
		if errors.Is(err, models.ErrInvalidTransition) {
			l.settleExpiredHolds(ctx, orderID)
		} else if !errors.Is(err, models.ErrNotFound) {
			log.Error().Err(err).Str("orderId", orderID).Msg("Failed to fail expired order")
		}
		return
	}
	if err := l.reservations.ReleaseForOrder(ctx, orderID); err != nil {
		log.Error().Err(err).Str("orderId", orderID).Msg("Failed to release reservations of expired order")
	}
	l.publish(ctx, TopicOrderFailed, models.OrderFailedEvent{
		EventID:   uuid.New().String(),
		OrderID:   orderID,
		Reason:    "reservation expired",
		Timestamp: time.Now(),
	})
	log.Info().Str("orderId", orderID).Msg("Order failed after reservation expiry")
}

// settleExpiredHolds resolves expired holds on an order the state machine
// already settled: a paid order consumes them, a failed or cancelled order
// returns them. Normally every hold is resolved by then and this is a no-op;
// it repairs a commit or release that was cut short.
func (l *Ledger) settleExpiredHolds(ctx context.Context, orderID string) {
	order, err := l.orders.Get(ctx, orderID)
	if err != nil {
		log.Error().Err(err).Str("orderId", orderID).Msg("Failed to load order with expired reservations")
		return
	}
	switch order.Status {
	case models.OrderPaid, models.OrderFulfilled:
		if err := l.reservations.CommitForOrder(ctx, orderID); err != nil {
			log.Error().Err(err).Str("orderId", orderID).Msg("Failed to commit leftover holds of paid order")
		}
	case models.OrderFailed, models.OrderCancelled:
		if err := l.reservations.ReleaseForOrder(ctx, orderID); err != nil {
			log.Error().Err(err).Str("orderId", orderID).Msg("Failed to release leftover holds of settled order")
		}
	}
}

// GetOrder returns the order record.
func (l *Ledger) GetOrder(ctx context.Context, orderID string) (models.Order, error) {
	return l.orders.Get(ctx, orderID)
}

// DashboardStats aggregates the counts shown on the admin dashboard.
func (l *Ledger) DashboardStats(ctx context.Context) (models.DashboardStats, error) {
	counts, err := l.orders.CountByStatus(ctx)
	if err != nil {
		return models.DashboardStats{}, err
	}
	products, err := l.store.CountProducts(ctx)
	if err != nil {
		return models.DashboardStats{}, err
	}
	lowStock, err := l.store.CountLowStock(ctx, l.lowStockThreshold)
	if err != nil {
		return models.DashboardStats{}, err
	}

	stats := models.DashboardStats{
		PendingOrders:   counts[models.OrderPending],
		PaidOrders:      counts[models.OrderPaid],
		FulfilledOrders: counts[models.OrderFulfilled],
		FailedOrders:    counts[models.OrderFailed],
		CancelledOrders: counts[models.OrderCancelled],
		TotalProducts:   products,
		LowStock:        lowStock,
	}
	stats.TotalOrders = stats.PendingOrders + stats.PaidOrders + stats.FulfilledOrders + stats.FailedOrders + stats.CancelledOrders
	return stats, nil
}

func (l *Ledger) publish(ctx context.Context, topic string, payload interface{}) {
	if err := l.bus.Publish(ctx, topic, payload); err != nil {
		// Event publication is best-effort; ledger state is already durable.
		log.Error().Err(err).Str("topic", topic).Msg("Failed to publish ledger event")
	}
}
