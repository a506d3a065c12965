package processor

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/streadway/amqp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SumonaSupto/AgriBusket-sub001/internal/eventbus"
	"github.com/SumonaSupto/AgriBusket-sub001/internal/inventory"
	"github.com/SumonaSupto/AgriBusket-sub001/internal/ledger"
	"github.com/SumonaSupto/AgriBusket-sub001/internal/models"
	"github.com/SumonaSupto/AgriBusket-sub001/internal/reservation"
)

func paidOrder(t *testing.T) (*Processor, *ledger.Ledger, string) {
	t.Helper()

	store := inventory.NewMemoryStore()
	require.NoError(t, store.Create(context.Background(), &models.Product{
		ID: "p1", Name: "Red Lentils 1kg", UnitPrice: 2, AvailableQuantity: 10,
	}))
	manager := reservation.NewManager(store, reservation.NewMemoryRepo(), time.Minute)
	l := ledger.New(ledger.NewMemoryOrderRepo(), manager, store, ledger.NewMemoryTxnRefStore(), eventbus.NopPublisher{}, 5)

	order, err := l.CreateOrder(context.Background(), "customer-1", []models.OrderItem{{ProductID: "p1", Quantity: 2}})
	require.NoError(t, err)
	require.NoError(t, l.RecordPayment(context.Background(), order.ID, models.PaymentSuccess, "txn-1", ""))

	return New(l), l, order.ID
}

func shipmentDelivery(t *testing.T, orderID string) amqp.Delivery {
	t.Helper()
	body, err := json.Marshal(models.ShipmentConfirmedEvent{
		EventID:    "evt-1",
		OrderID:    orderID,
		TrackingID: "trk-1",
		Timestamp:  time.Now().UTC(),
	})
	require.NoError(t, err)
	return amqp.Delivery{Body: body}
}

func TestShipmentConfirmationFulfillsOrder(t *testing.T) {
	p, l, orderID := paidOrder(t)

	require.NoError(t, p.MessageHandler(context.Background(), shipmentDelivery(t, orderID)))

	order, err := l.GetOrder(context.Background(), orderID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderFulfilled, order.Status)
}

func TestDuplicateConfirmationIsAcked(t *testing.T) {
	p, _, orderID := paidOrder(t)

	delivery := shipmentDelivery(t, orderID)
	require.NoError(t, p.MessageHandler(context.Background(), delivery))
	assert.NoError(t, p.MessageHandler(context.Background(), delivery))
}

func TestUnknownOrderIsAcked(t *testing.T) {
	p, _, _ := paidOrder(t)

	assert.NoError(t, p.MessageHandler(context.Background(), shipmentDelivery(t, "does-not-exist")))
}

func TestMalformedMessageIsPermanentFailure(t *testing.T) {
	p, _, _ := paidOrder(t)

	err := p.MessageHandler(context.Background(), amqp.Delivery{Body: []byte("not json")})
	assert.ErrorIs(t, err, eventbus.ErrPermanentFailure)

	err = p.MessageHandler(context.Background(), shipmentDelivery(t, ""))
	assert.ErrorIs(t, err, eventbus.ErrPermanentFailure)
}
