package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/SumonaSupto/AgriBusket-sub001/internal/models"
)

// PostgresOrderRepo is the durable OrderRepo. Line items live in a separate
// order_items table and are snapshotted once at creation.
type PostgresOrderRepo struct {
	db *sqlx.DB
}

func NewPostgresOrderRepo(db *sqlx.DB) *PostgresOrderRepo {
	return &PostgresOrderRepo{db: db}
}

func (r *PostgresOrderRepo) Create(ctx context.Context, o *models.Order) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := `INSERT INTO orders (id, customer_id, status, payment_ref, created_at)
		VALUES ($1, $2, $3, $4, $5)`
	if _, err := tx.ExecContext(ctx, query, o.ID, o.CustomerID, o.Status, o.PaymentRef, o.CreatedAt); err != nil {
		return fmt.Errorf("failed to insert order %s: %w", o.ID, err)
	}

	itemQuery := `INSERT INTO order_items (order_id, product_id, quantity, unit_price) VALUES ($1, $2, $3, $4)`
	for _, item := range o.Items {
		if _, err := tx.ExecContext(ctx, itemQuery, o.ID, item.ProductID, item.Quantity, item.UnitPrice); err != nil {
			return fmt.Errorf("failed to insert item for order %s: %w", o.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit order %s: %w", o.ID, err)
	}
	return nil
}

func (r *PostgresOrderRepo) Get(ctx context.Context, id string) (models.Order, error) {
	var o models.Order
	query := `SELECT id, customer_id, status, payment_ref, created_at, paid_at, failed_at, fulfilled_at, cancelled_at
		FROM orders WHERE id = $1`
	err := r.db.GetContext(ctx, &o, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Order{}, fmt.Errorf("order %s: %w", id, models.ErrNotFound)
	}
	if err != nil {
		return models.Order{}, fmt.Errorf("could not get order %s: %w", id, err)
	}

	itemQuery := `SELECT product_id, quantity, unit_price FROM order_items WHERE order_id = $1`
	if err := r.db.SelectContext(ctx, &o.Items, itemQuery, id); err != nil {
		return models.Order{}, fmt.Errorf("could not get items for order %s: %w", id, err)
	}
	return o, nil
}

func (r *PostgresOrderRepo) Transition(ctx context.Context, id string, from, to models.OrderStatus, paymentRef string) (models.Order, error) {
	if !from.CanTransition(to) {
		return models.Order{}, fmt.Errorf("order %s cannot move %s -> %s: %w", id, from, to, models.ErrInvalidTransition)
	}

	stampColumn := map[models.OrderStatus]string{
		models.OrderPaid:      "paid_at",
		models.OrderFailed:    "failed_at",
		models.OrderFulfilled: "fulfilled_at",
		models.OrderCancelled: "cancelled_at",
	}[to]

	query := fmt.Sprintf(`UPDATE orders
		SET status = $1, %s = NOW(), payment_ref = CASE WHEN $2 = '' THEN payment_ref ELSE $2 END
		WHERE id = $3 AND status = $4
		RETURNING id`, stampColumn)

	var returned string
	err := r.db.GetContext(ctx, &returned, query, to, paymentRef, id, from)
	if errors.Is(err, sql.ErrNoRows) {
		// Disambiguate a missing order from a status race.
		if _, getErr := r.Get(ctx, id); getErr != nil {
			return models.Order{}, getErr
		}
		return models.Order{}, fmt.Errorf("order %s is not %s: %w", id, from, models.ErrInvalidTransition)
	}
	if err != nil {
		return models.Order{}, fmt.Errorf("could not transition order %s: %w", id, err)
	}
	return r.Get(ctx, id)
}

func (r *PostgresOrderRepo) CountByStatus(ctx context.Context) (map[models.OrderStatus]int, error) {
	rows, err := r.db.QueryxContext(ctx, `SELECT status, COUNT(*) FROM orders GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("could not count orders: %w", err)
	}
	defer rows.Close()

	counts := make(map[models.OrderStatus]int)
	for rows.Next() {
		var status models.OrderStatus
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("could not scan order count: %w", err)
		}
		counts[status] = count
	}
	return counts, rows.Err()
}

// PostgresTxnRefStore records processed transaction references in the
// payment_transactions table; the primary key makes the first insert win.
type PostgresTxnRefStore struct {
	db *sqlx.DB
}

func NewPostgresTxnRefStore(db *sqlx.DB) *PostgresTxnRefStore {
	return &PostgresTxnRefStore{db: db}
}

func (s *PostgresTxnRefStore) MarkProcessed(ctx context.Context, n models.PaymentNotification) (bool, error) {
	query := `INSERT INTO payment_transactions (transaction_id, order_id, outcome, raw_payload, received_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (transaction_id) DO NOTHING`
	result, err := s.db.ExecContext(ctx, query, n.TransactionID, n.OrderID, n.Outcome, n.RawPayload, n.ReceivedAt)
	if err != nil {
		return false, fmt.Errorf("failed to record transaction %s: %w", n.TransactionID, err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("error getting rows affected for transaction %s: %w", n.TransactionID, err)
	}
	return rows > 0, nil
}

func (s *PostgresTxnRefStore) Unmark(ctx context.Context, txnRef string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM payment_transactions WHERE transaction_id = $1`, txnRef); err != nil {
		return fmt.Errorf("failed to remove transaction %s: %w", txnRef, err)
	}
	return nil
}
