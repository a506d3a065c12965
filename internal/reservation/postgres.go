package reservation

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/SumonaSupto/AgriBusket-sub001/internal/models"
)

// PostgresRepo is the durable Repo. The Active-only guard in Resolve's WHERE
// clause is what keeps commit/release/sweep races single-winner.
type PostgresRepo struct {
	db *sqlx.DB
}

func NewPostgresRepo(db *sqlx.DB) *PostgresRepo {
	return &PostgresRepo{db: db}
}

func (r *PostgresRepo) Create(ctx context.Context, res *models.Reservation) error {
	query := `INSERT INTO reservations (id, product_id, order_id, quantity, status, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`
	_, err := r.db.ExecContext(ctx, query,
		res.ID, res.ProductID, res.OrderID, res.Quantity, res.Status, res.ExpiresAt, res.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert reservation %s: %w", res.ID, err)
	}
	return nil
}

func (r *PostgresRepo) Get(ctx context.Context, id string) (models.Reservation, error) {
	var res models.Reservation
	query := `SELECT id, product_id, order_id, quantity, status, expires_at, created_at, resolved_at
		FROM reservations WHERE id = $1`
	err := r.db.GetContext(ctx, &res, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Reservation{}, fmt.Errorf("reservation %s: %w", id, models.ErrNotFound)
	}
	if err != nil {
		return models.Reservation{}, fmt.Errorf("could not get reservation %s: %w", id, err)
	}
	return res, nil
}

func (r *PostgresRepo) ForOrder(ctx context.Context, orderID string) ([]models.Reservation, error) {
	var out []models.Reservation
	query := `SELECT id, product_id, order_id, quantity, status, expires_at, created_at, resolved_at
		FROM reservations WHERE order_id = $1`
	if err := r.db.SelectContext(ctx, &out, query, orderID); err != nil {
		return nil, fmt.Errorf("could not list reservations for order %s: %w", orderID, err)
	}
	return out, nil
}

func (r *PostgresRepo) Resolve(ctx context.Context, id string, to models.ReservationStatus) (models.Reservation, error) {
	var res models.Reservation
	query := `UPDATE reservations
		SET status = $1, resolved_at = NOW()
		WHERE id = $2 AND status = $3
		RETURNING id, product_id, order_id, quantity, status, expires_at, created_at, resolved_at`
	err := r.db.GetContext(ctx, &res, query, to, id, models.ReservationActive)
	if errors.Is(err, sql.ErrNoRows) {
		if _, getErr := r.Get(ctx, id); getErr != nil {
			return models.Reservation{}, getErr
		}
		return models.Reservation{}, fmt.Errorf("reservation %s: %w", id, models.ErrAlreadyResolved)
	}
	if err != nil {
		return models.Reservation{}, fmt.Errorf("could not resolve reservation %s: %w", id, err)
	}
	return res, nil
}

func (r *PostgresRepo) ExpiredActive(ctx context.Context, now time.Time) ([]models.Reservation, error) {
	var out []models.Reservation
	query := `SELECT id, product_id, order_id, quantity, status, expires_at, created_at, resolved_at
		FROM reservations WHERE status = $1 AND expires_at < $2`
	if err := r.db.SelectContext(ctx, &out, query, models.ReservationActive, now); err != nil {
		return nil, fmt.Errorf("could not list expired reservations: %w", err)
	}
	return out, nil
}
