package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/SumonaSupto/AgriBusket-sub001/internal/models"
)

// TxnRefStore records processed gateway transaction references. MarkProcessed
// must be a single atomic check-and-set: the first caller for a reference
// gets true, every later (or concurrent duplicate) caller gets false. Unmark
// removes a reference whose effect did not land, so the gateway's retry is
// not treated as a duplicate.
type TxnRefStore interface {
	MarkProcessed(ctx context.Context, n models.PaymentNotification) (bool, error)
	Unmark(ctx context.Context, txnRef string) error
}

// MemoryTxnRefStore keeps the processed set in a map. Unit tests and
// redisless local runs.
type MemoryTxnRefStore struct {
	mu   sync.Mutex
	seen map[string]models.PaymentNotification
}

func NewMemoryTxnRefStore() *MemoryTxnRefStore {
	return &MemoryTxnRefStore{seen: make(map[string]models.PaymentNotification)}
}

func (s *MemoryTxnRefStore) MarkProcessed(ctx context.Context, n models.PaymentNotification) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, dup := s.seen[n.TransactionID]; dup {
		return false, nil
	}
	s.seen[n.TransactionID] = n
	return true, nil
}

func (s *MemoryTxnRefStore) Unmark(ctx context.Context, txnRef string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.seen, txnRef)
	return nil
}

const txnKeyPrefix = "ledger:txn:"

// RedisTxnRefStore keeps the processed set in Redis via SETNX, which gives
// the atomic first-writer-wins semantics across processes.
type RedisTxnRefStore struct {
	client *redis.Client
}

// NewRedisTxnRefStore connects and pings the Redis instance at redisURL.
func NewRedisTxnRefStore(redisURL string) (*RedisTxnRefStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	return &RedisTxnRefStore{client: client}, nil
}

func (s *RedisTxnRefStore) Close() error {
	return s.client.Close()
}

func (s *RedisTxnRefStore) MarkProcessed(ctx context.Context, n models.PaymentNotification) (bool, error) {
	data, err := json.Marshal(n)
	if err != nil {
		return false, fmt.Errorf("failed to marshal payment notification: %w", err)
	}

	// No expiry: the processed set doubles as the idempotency audit trail.
	ok, err := s.client.SetNX(ctx, txnKeyPrefix+n.TransactionID, string(data), 0).Result()
	if err != nil {
		return false, fmt.Errorf("failed to record transaction reference: %w", err)
	}
	return ok, nil
}

func (s *RedisTxnRefStore) Unmark(ctx context.Context, txnRef string) error {
	if err := s.client.Del(ctx, txnKeyPrefix+txnRef).Err(); err != nil {
		return fmt.Errorf("failed to remove transaction reference: %w", err)
	}
	return nil
}
