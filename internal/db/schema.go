package db

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/locknd/tochka-exchange/internal/models"
)

// schemaStatements is executed in order on startup. Statements are
// idempotent; pgx sends one statement per exec.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id UUID PRIMARY KEY,
		name TEXT NOT NULL,
		role TEXT NOT NULL DEFAULT 'USER',
		api_key TEXT NOT NULL UNIQUE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,

	`CREATE TABLE IF NOT EXISTS instruments (
		ticker TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		type TEXT NOT NULL DEFAULT 'STOCK',
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,

	`CREATE TABLE IF NOT EXISTS balances (
		user_id UUID NOT NULL REFERENCES users(id),
		ticker TEXT NOT NULL REFERENCES instruments(ticker),
		amount BIGINT NOT NULL DEFAULT 0 CHECK (amount >= 0),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		PRIMARY KEY (user_id, ticker)
	)`,

	`CREATE TABLE IF NOT EXISTS orders (
		id UUID PRIMARY KEY,
		user_id UUID NOT NULL REFERENCES users(id),
		ticker TEXT NOT NULL REFERENCES instruments(ticker),
		direction TEXT NOT NULL CHECK (direction IN ('BUY', 'SELL')),
		order_type TEXT NOT NULL CHECK (order_type IN ('LIMIT', 'MARKET')),
		qty BIGINT NOT NULL CHECK (qty > 0),
		price BIGINT CHECK (price > 0),
		status TEXT NOT NULL,
		filled BIGINT NOT NULL DEFAULT 0 CHECK (filled >= 0),
		created_at TIMESTAMPTZ NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS trades (
		id BIGSERIAL PRIMARY KEY,
		ticker TEXT NOT NULL REFERENCES instruments(ticker),
		amount BIGINT NOT NULL CHECK (amount > 0),
		price BIGINT NOT NULL CHECK (price > 0),
		buy_order_id UUID NOT NULL REFERENCES orders(id),
		sell_order_id UUID NOT NULL REFERENCES orders(id),
		buyer_id UUID NOT NULL REFERENCES users(id),
		seller_id UUID NOT NULL REFERENCES users(id),
		executed_at TIMESTAMPTZ NOT NULL
	)`,

	`CREATE INDEX IF NOT EXISTS idx_orders_book
		ON orders (ticker, direction, status)`,

	`CREATE INDEX IF NOT EXISTS idx_orders_user
		ON orders (user_id, created_at)`,

	`CREATE INDEX IF NOT EXISTS idx_trades_ticker
		ON trades (ticker, executed_at DESC, id DESC)`,
}

// EnsureSchema creates all tables and indexes if they do not exist yet.
func EnsureSchema(ctx context.Context, conn *sqlx.DB) error {
	for _, stmt := range schemaStatements {
		if _, err := conn.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema statement: %w", err)
		}
	}
	return nil
}

// Bootstrap seeds the admin account and the base currencies. Safe to run on
// every startup.
func Bootstrap(ctx context.Context, conn *sqlx.DB, adminToken string) error {
	_, err := conn.ExecContext(ctx, `
		INSERT INTO users (id, name, role, api_key)
		VALUES ($1, 'admin', $2, $3)
		ON CONFLICT (api_key) DO NOTHING`,
		uuid.New(), models.RoleAdmin, adminToken)
	if err != nil {
		return fmt.Errorf("failed to seed admin user: %w", err)
	}

	currencies := []struct {
		ticker string
		name   string
	}{
		{"RUB", "Russian Ruble"},
		{"USD", "US Dollar"},
	}
	for _, c := range currencies {
		_, err := conn.ExecContext(ctx, `
			INSERT INTO instruments (ticker, name, type)
			VALUES ($1, $2, $3)
			ON CONFLICT (ticker) DO NOTHING`,
			c.ticker, c.name, models.InstrumentTypeCurrency)
		if err != nil {
			return fmt.Errorf("failed to seed currency %s: %w", c.ticker, err)
		}
	}
	return nil
}
