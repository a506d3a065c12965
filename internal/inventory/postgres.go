package inventory

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/SumonaSupto/AgriBusket-sub001/internal/models"
)

// maxCASRetries bounds the optimistic-version retry loop in SetAbsolute.
const maxCASRetries = 3

// PostgresStore is the durable Store. All quantity mutations are single
// conditional UPDATE statements so concurrent requests for the same product
// serialize at the row level and can never oversell or lose an adjustment.
type PostgresStore struct {
	db *sqlx.DB
}

// NewPostgresStore wraps an existing sqlx connection pool.
func NewPostgresStore(db *sqlx.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Create(ctx context.Context, p *models.Product) error {
	query := `INSERT INTO products (id, name, unit_price, available_quantity, reserved_quantity, version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, 0, NOW(), NOW())`
	_, err := s.db.ExecContext(ctx, query, p.ID, p.Name, p.UnitPrice, p.AvailableQuantity, p.ReservedQuantity)
	if err != nil {
		return fmt.Errorf("failed to insert product %s: %w", p.ID, err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, productID string) (models.Product, error) {
	var p models.Product
	query := `SELECT id, name, unit_price, available_quantity, reserved_quantity, version, created_at, updated_at
		FROM products WHERE id = $1`
	err := s.db.GetContext(ctx, &p, query, productID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Product{}, fmt.Errorf("product %s: %w", productID, models.ErrNotFound)
	}
	if err != nil {
		return models.Product{}, fmt.Errorf("could not get product %s: %w", productID, err)
	}
	return p, nil
}

func (s *PostgresStore) GetAvailable(ctx context.Context, productID string) (int, error) {
	p, err := s.Get(ctx, productID)
	if err != nil {
		return 0, err
	}
	return p.AvailableQuantity, nil
}

// Adjust applies the delta with a guarded single-row UPDATE. The quantity
// floor lives in the WHERE clause, so two concurrent subtractions can never
// both succeed against the same remaining stock.
func (s *PostgresStore) Adjust(ctx context.Context, productID string, delta int, allowNegative bool) (int, int, error) {
	query := `UPDATE products
		SET available_quantity = available_quantity + $1, version = version + 1, updated_at = NOW()
		WHERE id = $2 AND (available_quantity + $1 >= 0 OR $3)
		RETURNING available_quantity`

	var updated int
	err := s.db.GetContext(ctx, &updated, query, delta, productID, allowNegative)
	if errors.Is(err, sql.ErrNoRows) {
		// Either the product is missing or the floor rejected the delta.
		if _, getErr := s.Get(ctx, productID); getErr != nil {
			return 0, 0, getErr
		}
		return 0, 0, fmt.Errorf("adjust %s by %d: %w", productID, delta, models.ErrInsufficientStock)
	}
	if err != nil {
		return 0, 0, fmt.Errorf("error adjusting stock for product %s: %w", productID, err)
	}
	return updated - delta, updated, nil
}

// SetAbsolute has no increment form, so it uses an optimistic version CAS
// with a bounded retry before surfacing ErrConcurrencyConflict.
func (s *PostgresStore) SetAbsolute(ctx context.Context, productID string, quantity int) (int, int, error) {
	if quantity < 0 {
		return 0, 0, fmt.Errorf("set %s to %d: %w", productID, quantity, models.ErrInvalidQuantity)
	}

	for attempt := 0; attempt < maxCASRetries; attempt++ {
		p, err := s.Get(ctx, productID)
		if err != nil {
			return 0, 0, err
		}

		query := `UPDATE products
			SET available_quantity = $1, version = version + 1, updated_at = NOW()
			WHERE id = $2 AND version = $3`
		result, err := s.db.ExecContext(ctx, query, quantity, productID, p.Version)
		if err != nil {
			return 0, 0, fmt.Errorf("error setting stock for product %s: %w", productID, err)
		}
		rows, err := result.RowsAffected()
		if err != nil {
			return 0, 0, fmt.Errorf("error getting rows affected for product %s: %w", productID, err)
		}
		if rows > 0 {
			return p.AvailableQuantity, quantity, nil
		}
		// Version moved under us; re-read and retry.
	}
	return 0, 0, fmt.Errorf("set stock for product %s: %w", productID, models.ErrConcurrencyConflict)
}

func (s *PostgresStore) ReserveStock(ctx context.Context, productID string, quantity int) error {
	query := `UPDATE products
		SET available_quantity = available_quantity - $1, reserved_quantity = reserved_quantity + $1,
		    version = version + 1, updated_at = NOW()
		WHERE id = $2 AND available_quantity >= $1`
	return s.guardedUpdate(ctx, query, productID, quantity, "reserve")
}

func (s *PostgresStore) CommitStock(ctx context.Context, productID string, quantity int) error {
	query := `UPDATE products
		SET reserved_quantity = reserved_quantity - $1, version = version + 1, updated_at = NOW()
		WHERE id = $2 AND reserved_quantity >= $1`
	return s.guardedUpdate(ctx, query, productID, quantity, "commit")
}

func (s *PostgresStore) ReleaseStock(ctx context.Context, productID string, quantity int) error {
	query := `UPDATE products
		SET reserved_quantity = reserved_quantity - $1, available_quantity = available_quantity + $1,
		    version = version + 1, updated_at = NOW()
		WHERE id = $2 AND reserved_quantity >= $1`
	return s.guardedUpdate(ctx, query, productID, quantity, "release")
}

func (s *PostgresStore) guardedUpdate(ctx context.Context, query, productID string, quantity int, op string) error {
	result, err := s.db.ExecContext(ctx, query, quantity, productID)
	if err != nil {
		return fmt.Errorf("error on %s of %d for product %s: %w", op, quantity, productID, err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("error getting rows affected for product %s: %w", productID, err)
	}
	if rows == 0 {
		if _, getErr := s.Get(ctx, productID); getErr != nil {
			return getErr
		}
		return fmt.Errorf("%s %d of %s: %w", op, quantity, productID, models.ErrInsufficientStock)
	}
	return nil
}

func (s *PostgresStore) CountProducts(ctx context.Context) (int, error) {
	var count int
	if err := s.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM products`); err != nil {
		return 0, fmt.Errorf("could not count products: %w", err)
	}
	return count, nil
}

func (s *PostgresStore) CountLowStock(ctx context.Context, threshold int) (int, error) {
	var count int
	query := `SELECT COUNT(*) FROM products WHERE available_quantity <= $1`
	if err := s.db.GetContext(ctx, &count, query, threshold); err != nil {
		return 0, fmt.Errorf("could not count low-stock products: %w", err)
	}
	return count, nil
}
