package processor

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/rs/zerolog/log"
	"github.com/streadway/amqp"

	"github.com/SumonaSupto/AgriBusket-sub001/internal/eventbus"
	"github.com/SumonaSupto/AgriBusket-sub001/internal/ledger"
	"github.com/SumonaSupto/AgriBusket-sub001/internal/models"
)

// Processor consumes shipment confirmations from the logistics collaborator
// and moves the corresponding paid orders to fulfilled.
type Processor struct {
	ledger *ledger.Ledger
}

func New(l *ledger.Ledger) *Processor {
	return &Processor{ledger: l}
}

// MessageHandler handles one shipment.confirmed delivery. A message that
// cannot be decoded is a permanent failure; a transition refused by the
// state machine (duplicate or out-of-order confirmation) is acked as a
// benign no-op.
func (p *Processor) MessageHandler(ctx context.Context, delivery amqp.Delivery) error {
	var event models.ShipmentConfirmedEvent
	if err := json.Unmarshal(delivery.Body, &event); err != nil {
		log.Error().Err(err).Msg("Failed to unmarshal ShipmentConfirmedEvent, this is a permanent failure.")
		return eventbus.ErrPermanentFailure
	}
	if event.OrderID == "" {
		log.Error().Str("eventId", event.EventID).Msg("ShipmentConfirmedEvent has no order ID, this is a permanent failure.")
		return eventbus.ErrPermanentFailure
	}

	if err := p.ledger.MarkFulfilled(ctx, event.OrderID); err != nil {
		if errors.Is(err, models.ErrInvalidTransition) || errors.Is(err, models.ErrNotFound) {
			log.Warn().Err(err).Str("orderId", event.OrderID).Msg("Shipment confirmation for order not awaiting fulfillment, ignoring")
			return nil
		}
		log.Error().Err(err).Str("orderId", event.OrderID).Msg("Failed to mark order fulfilled. This is a transient error.")
		return err
	}

	log.Info().Str("orderId", event.OrderID).Str("trackingId", event.TrackingID).Msg("Order marked fulfilled from shipment confirmation")
	return nil
}
