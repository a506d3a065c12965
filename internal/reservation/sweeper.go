package reservation

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

// ExpireFunc is invoked once per order that holds expired reservations. It
// owns resolution: the ledger settles the order state machine first and only
// then commits or releases the holds.
type ExpireFunc func(ctx context.Context, orderID string)

// Sweeper periodically releases Active reservations past their expiry,
// bounding how long an abandoned checkout can lock stock.
type Sweeper struct {
	manager  *Manager
	interval time.Duration
	onExpire ExpireFunc
}

func NewSweeper(manager *Manager, interval time.Duration, onExpire ExpireFunc) *Sweeper {
	return &Sweeper{manager: manager, interval: interval, onExpire: onExpire}
}

// Run blocks, sweeping on each tick until the context is cancelled. It is
// meant to be started as a goroutine from main.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	log.Info().Dur("interval", s.interval).Msg("Reservation expiry sweeper started")
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("Reservation expiry sweeper stopping")
			return
		case <-ticker.C:
			if n := s.SweepOnce(ctx); n > 0 {
				log.Info().Int("expired", n).Msg("Expired reservations resolved")
			}
		}
	}
}

// SweepOnce finds expired Active reservations and hands each affected order
// to the expiry callback. Without a callback the holds are released directly.
// Returns how many expired reservations were found.
func (s *Sweeper) SweepOnce(ctx context.Context) int {
	expired, err := s.manager.repo.ExpiredActive(ctx, time.Now())
	if err != nil {
		log.Error().Err(err).Msg("Failed to list expired reservations")
		return 0
	}
	if len(expired) == 0 {
		return 0
	}

	orders := make(map[string]struct{})
	for _, res := range expired {
		orders[res.OrderID] = struct{}{}
	}

	// The order must leave Pending before its holds move. Releasing first
	// would let a payment callback racing the sweep pay for stock that is
	// already back on the shelf.
	for orderID := range orders {
		if s.onExpire != nil {
			s.onExpire(ctx, orderID)
			continue
		}
		if err := s.manager.ReleaseForOrder(ctx, orderID); err != nil {
			log.Error().Err(err).Str("orderId", orderID).Msg("Failed to release expired reservations")
		}
	}
	return len(expired)
}
