package database

import (
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq" // The blank import is for the PostgreSQL driver
	"github.com/rs/zerolog/log"

	"github.com/SumonaSupto/AgriBusket-sub001/config"
)

// DB represents the database connection pool.
type DB struct {
	SQL *sqlx.DB
}

// New creates a new database connection pool.
func New(cfg config.Config) (*DB, error) {
	connStr := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.DBHost, cfg.DBPort, cfg.DBUser, cfg.DBPassword, cfg.DBName, cfg.DBSSLMode)

	log.Info().Msg("Connecting to database...")
	db, err := sqlx.Connect("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetConnMaxLifetime(time.Minute * 3)
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)

	log.Info().Msg("Database connection successful.")
	return &DB{SQL: db}, nil
}

// Close gracefully closes the database connection.
func (db *DB) Close() {
	log.Info().Msg("Closing database connection.")
	db.SQL.Close()
}

// Migrate creates the ledger schema if it does not exist yet.
func (db *DB) Migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS products (
			id VARCHAR(64) PRIMARY KEY,
			name TEXT NOT NULL,
			unit_price NUMERIC(12,2) NOT NULL DEFAULT 0,
			available_quantity INTEGER NOT NULL DEFAULT 0,
			reserved_quantity INTEGER NOT NULL DEFAULT 0 CHECK (reserved_quantity >= 0),
			version BIGINT NOT NULL DEFAULT 0,
			created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
			updated_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
		)`,

		`CREATE TABLE IF NOT EXISTS reservations (
			id UUID PRIMARY KEY,
			product_id VARCHAR(64) NOT NULL REFERENCES products(id),
			order_id UUID NOT NULL,
			quantity INTEGER NOT NULL CHECK (quantity > 0),
			status VARCHAR(16) NOT NULL,
			expires_at TIMESTAMP WITH TIME ZONE NOT NULL,
			created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
			resolved_at TIMESTAMP WITH TIME ZONE
		)`,
		`CREATE INDEX IF NOT EXISTS idx_reservations_order_id ON reservations(order_id)`,
		`CREATE INDEX IF NOT EXISTS idx_reservations_status_expires_at ON reservations(status, expires_at)`,

		`CREATE TABLE IF NOT EXISTS orders (
			id UUID PRIMARY KEY,
			customer_id VARCHAR(128) NOT NULL,
			status VARCHAR(16) NOT NULL,
			payment_ref VARCHAR(128) NOT NULL DEFAULT '',
			created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
			paid_at TIMESTAMP WITH TIME ZONE,
			failed_at TIMESTAMP WITH TIME ZONE,
			fulfilled_at TIMESTAMP WITH TIME ZONE,
			cancelled_at TIMESTAMP WITH TIME ZONE
		)`,
		`CREATE INDEX IF NOT EXISTS idx_orders_status ON orders(status)`,
		`CREATE INDEX IF NOT EXISTS idx_orders_customer_id ON orders(customer_id)`,

		`CREATE TABLE IF NOT EXISTS order_items (
			order_id UUID NOT NULL REFERENCES orders(id) ON DELETE CASCADE,
			product_id VARCHAR(64) NOT NULL,
			quantity INTEGER NOT NULL CHECK (quantity > 0),
			unit_price NUMERIC(12,2) NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_order_items_order_id ON order_items(order_id)`,

		`CREATE TABLE IF NOT EXISTS payment_transactions (
			transaction_id VARCHAR(128) PRIMARY KEY,
			order_id UUID NOT NULL,
			outcome VARCHAR(16) NOT NULL,
			raw_payload TEXT NOT NULL DEFAULT '',
			received_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
		)`,
	}

	for _, migration := range migrations {
		if _, err := db.SQL.Exec(migration); err != nil {
			return fmt.Errorf("failed to run migration: %w", err)
		}
	}
	log.Info().Msg("Database migrations applied.")
	return nil
}
