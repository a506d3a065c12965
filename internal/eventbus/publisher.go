package eventbus

import (
	"context"

	"github.com/rs/zerolog/log"
)

// Publisher sends a domain event to the outgoing exchange under a routing
// key. The ledger and the stock adjustment API depend on this interface so
// tests and brokerless runs can swap in NopPublisher.
type Publisher interface {
	Publish(ctx context.Context, routingKey string, payload interface{}) error
}

// NopPublisher drops events. Used when RABBITMQ_URL is unset.
type NopPublisher struct{}

func (NopPublisher) Publish(ctx context.Context, routingKey string, payload interface{}) error {
	log.Debug().Str("routingKey", routingKey).Msg("Event bus disabled, dropping event")
	return nil
}
