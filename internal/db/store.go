package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jmoiron/sqlx"

	"github.com/locknd/tochka-exchange/internal/models"
)

// Store wraps the connection pool with typed queries. Methods take a
// sqlx.ExtContext so they run equally inside or outside a transaction.
type Store struct {
	DB *sqlx.DB
}

// NewStore creates a store over an open connection pool.
func NewStore(conn *sqlx.DB) *Store {
	return &Store{DB: conn}
}

// WithTx runs fn inside a transaction, committing on success and rolling
// back on error or panic. Database errors are mapped to sentinel errors.
func (s *Store) WithTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := s.DB.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		tx.Rollback()
		return mapError(err)
	}

	if err := tx.Commit(); err != nil {
		return mapError(fmt.Errorf("failed to commit transaction: %w", err))
	}
	return nil
}

// mapError translates PostgreSQL error codes into sentinel errors the
// layers above understand.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23514": // check constraint, balance went negative
			return fmt.Errorf("%w: %s", models.ErrInsufficientFunds, pgErr.ConstraintName)
		case "23505": // unique constraint
			return fmt.Errorf("%w: %s", models.ErrDuplicate, pgErr.ConstraintName)
		case "40P01", "40001": // deadlock or serialization failure
			return fmt.Errorf("%w: %s", models.ErrConflict, pgErr.Code)
		}
	}
	return err
}

// --- instruments ---

func (s *Store) Instrument(ctx context.Context, q sqlx.ExtContext, ticker string) (*models.Instrument, error) {
	var inst models.Instrument
	err := sqlx.GetContext(ctx, q, &inst,
		`SELECT ticker, name, type, created_at FROM instruments WHERE ticker = $1`, ticker)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("instrument %s: %w", ticker, models.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query instrument: %w", err)
	}
	return &inst, nil
}

func (s *Store) Instruments(ctx context.Context, q sqlx.ExtContext) ([]models.Instrument, error) {
	instruments := []models.Instrument{}
	err := sqlx.SelectContext(ctx, q, &instruments,
		`SELECT ticker, name, type, created_at FROM instruments ORDER BY ticker`)
	if err != nil {
		return nil, fmt.Errorf("failed to list instruments: %w", err)
	}
	return instruments, nil
}

func (s *Store) InsertInstrument(ctx context.Context, q sqlx.ExtContext, inst *models.Instrument) error {
	_, err := q.ExecContext(ctx,
		`INSERT INTO instruments (ticker, name, type) VALUES ($1, $2, $3)`,
		inst.Ticker, inst.Name, inst.Type)
	if err != nil {
		return mapError(fmt.Errorf("failed to insert instrument: %w", err))
	}
	return nil
}

// DeleteInstrumentCascade removes an instrument together with its trades,
// orders and balances. Children go first to keep foreign keys satisfied.
func (s *Store) DeleteInstrumentCascade(ctx context.Context, q sqlx.ExtContext, ticker string) error {
	if _, err := q.ExecContext(ctx, `DELETE FROM trades WHERE ticker = $1`, ticker); err != nil {
		return fmt.Errorf("failed to delete trades for %s: %w", ticker, err)
	}
	if _, err := q.ExecContext(ctx, `DELETE FROM orders WHERE ticker = $1`, ticker); err != nil {
		return fmt.Errorf("failed to delete orders for %s: %w", ticker, err)
	}
	if _, err := q.ExecContext(ctx, `DELETE FROM balances WHERE ticker = $1`, ticker); err != nil {
		return fmt.Errorf("failed to delete balances for %s: %w", ticker, err)
	}
	res, err := q.ExecContext(ctx, `DELETE FROM instruments WHERE ticker = $1`, ticker)
	if err != nil {
		return fmt.Errorf("failed to delete instrument %s: %w", ticker, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("instrument %s: %w", ticker, models.ErrNotFound)
	}
	return nil
}

// --- users ---

func (s *Store) UserByID(ctx context.Context, q sqlx.ExtContext, id uuid.UUID) (*models.User, error) {
	var u models.User
	err := sqlx.GetContext(ctx, q, &u,
		`SELECT id, name, role, api_key, created_at FROM users WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("user %s: %w", id, models.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query user: %w", err)
	}
	return &u, nil
}

func (s *Store) UserByAPIKey(ctx context.Context, q sqlx.ExtContext, apiKey string) (*models.User, error) {
	var u models.User
	err := sqlx.GetContext(ctx, q, &u,
		`SELECT id, name, role, api_key, created_at FROM users WHERE api_key = $1`, apiKey)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query user by api key: %w", err)
	}
	return &u, nil
}

func (s *Store) InsertUser(ctx context.Context, q sqlx.ExtContext, u *models.User) error {
	_, err := q.ExecContext(ctx,
		`INSERT INTO users (id, name, role, api_key) VALUES ($1, $2, $3, $4)`,
		u.ID, u.Name, u.Role, u.APIKey)
	if err != nil {
		return mapError(fmt.Errorf("failed to insert user: %w", err))
	}
	return nil
}

// DeleteUserCascade removes a user together with every trade the user took
// part in, their orders and balances.
func (s *Store) DeleteUserCascade(ctx context.Context, q sqlx.ExtContext, id uuid.UUID) error {
	if _, err := q.ExecContext(ctx,
		`DELETE FROM trades WHERE buyer_id = $1 OR seller_id = $1`, id); err != nil {
		return fmt.Errorf("failed to delete trades for user %s: %w", id, err)
	}
	if _, err := q.ExecContext(ctx, `DELETE FROM orders WHERE user_id = $1`, id); err != nil {
		return fmt.Errorf("failed to delete orders for user %s: %w", id, err)
	}
	if _, err := q.ExecContext(ctx, `DELETE FROM balances WHERE user_id = $1`, id); err != nil {
		return fmt.Errorf("failed to delete balances for user %s: %w", id, err)
	}
	res, err := q.ExecContext(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete user %s: %w", id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("user %s: %w", id, models.ErrNotFound)
	}
	return nil
}

// --- balances ---

// Balance returns the amount of one ticker held by a user, zero when the
// user holds none.
func (s *Store) Balance(ctx context.Context, q sqlx.ExtContext, userID uuid.UUID, ticker string) (int64, error) {
	var amount int64
	err := sqlx.GetContext(ctx, q, &amount,
		`SELECT amount FROM balances WHERE user_id = $1 AND ticker = $2`, userID, ticker)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to query balance: %w", err)
	}
	return amount, nil
}

func (s *Store) Balances(ctx context.Context, q sqlx.ExtContext, userID uuid.UUID) (map[string]int64, error) {
	rows := []models.Balance{}
	err := sqlx.SelectContext(ctx, q, &rows,
		`SELECT user_id, ticker, amount, updated_at FROM balances WHERE user_id = $1 ORDER BY ticker`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list balances: %w", err)
	}
	out := make(map[string]int64, len(rows))
	for _, b := range rows {
		out[b.Ticker] = b.Amount
	}
	return out, nil
}

// UpsertBalance adds delta to a balance, creating the row when missing. A
// negative result trips the amount >= 0 check constraint, which mapError
// turns into ErrInsufficientFunds.
func (s *Store) UpsertBalance(ctx context.Context, q sqlx.ExtContext, userID uuid.UUID, ticker string, delta int64) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO balances (user_id, ticker, amount, updated_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (user_id, ticker)
		DO UPDATE SET amount = balances.amount + EXCLUDED.amount, updated_at = now()`,
		userID, ticker, delta)
	if err != nil {
		return mapError(fmt.Errorf("failed to upsert balance %s/%s: %w", userID, ticker, err))
	}
	return nil
}

// --- orders ---

func (s *Store) InsertOrder(ctx context.Context, q sqlx.ExtContext, o *models.Order) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO orders (id, user_id, ticker, direction, order_type, qty, price, status, filled, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		o.ID, o.UserID, o.Ticker, o.Direction, o.Type, o.Qty, o.Price, o.Status, o.Filled, o.CreatedAt)
	if err != nil {
		return mapError(fmt.Errorf("failed to insert order: %w", err))
	}
	return nil
}

func (s *Store) OrderOwnedBy(ctx context.Context, q sqlx.ExtContext, id, userID uuid.UUID) (*models.Order, error) {
	var o models.Order
	err := sqlx.GetContext(ctx, q, &o, `
		SELECT id, user_id, ticker, direction, order_type, qty, price, status, filled, created_at
		FROM orders WHERE id = $1 AND user_id = $2`, id, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("order %s: %w", id, models.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query order: %w", err)
	}
	return &o, nil
}

func (s *Store) OrdersByUser(ctx context.Context, q sqlx.ExtContext, userID uuid.UUID) ([]models.Order, error) {
	orders := []models.Order{}
	err := sqlx.SelectContext(ctx, q, &orders, `
		SELECT id, user_id, ticker, direction, order_type, qty, price, status, filled, created_at
		FROM orders WHERE user_id = $1 ORDER BY created_at, id`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}
	return orders, nil
}

// UpdateOrderFill persists the fill progress and status of an order after
// matching.
func (s *Store) UpdateOrderFill(ctx context.Context, q sqlx.ExtContext, id uuid.UUID, filled int64, status models.OrderStatus) error {
	_, err := q.ExecContext(ctx,
		`UPDATE orders SET filled = $2, status = $3 WHERE id = $1`, id, filled, status)
	if err != nil {
		return mapError(fmt.Errorf("failed to update order %s: %w", id, err))
	}
	return nil
}

// CancelOrder flips an active order owned by userID to CANCELLED. The status
// guard makes the operation idempotent-safe: terminal orders report false.
func (s *Store) CancelOrder(ctx context.Context, q sqlx.ExtContext, id, userID uuid.UUID) (bool, error) {
	res, err := q.ExecContext(ctx, `
		UPDATE orders SET status = $3
		WHERE id = $1 AND user_id = $2 AND status IN ($4, $5)`,
		id, userID, models.OrderStatusCancelled, models.OrderStatusNew, models.OrderStatusPartiallyExecuted)
	if err != nil {
		return false, mapError(fmt.Errorf("failed to cancel order %s: %w", id, err))
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read rows affected: %w", err)
	}
	return affected > 0, nil
}

// RestingOrders returns the active limit orders on one side of the book in
// match priority: best price first, then admission order. For SELL
// candidates the best price is the lowest; for BUY the highest. A non-nil
// bound keeps only candidates crossing the incoming limit price. With lock
// set, rows are taken FOR UPDATE.
func (s *Store) RestingOrders(ctx context.Context, q sqlx.ExtContext, ticker string, side models.Direction, priceBound *int64, lock bool) ([]models.Order, error) {
	query := `
		SELECT id, user_id, ticker, direction, order_type, qty, price, status, filled, created_at
		FROM orders
		WHERE ticker = $1 AND direction = $2
		  AND order_type = 'LIMIT'
		  AND status IN ('NEW', 'PARTIALLY_EXECUTED')`

	args := []interface{}{ticker, side}
	if priceBound != nil {
		if side == models.DirectionSell {
			query += ` AND price <= $3`
		} else {
			query += ` AND price >= $3`
		}
		args = append(args, *priceBound)
	}

	if side == models.DirectionSell {
		query += ` ORDER BY price ASC, created_at ASC, id ASC`
	} else {
		query += ` ORDER BY price DESC, created_at ASC, id ASC`
	}
	if lock {
		query += ` FOR UPDATE`
	}

	orders := []models.Order{}
	if err := sqlx.SelectContext(ctx, q, &orders, query, args...); err != nil {
		return nil, fmt.Errorf("failed to query resting orders: %w", err)
	}
	return orders, nil
}

// --- trades ---

func (s *Store) InsertTrade(ctx context.Context, q sqlx.ExtContext, t *models.Trade) error {
	err := q.QueryRowxContext(ctx, `
		INSERT INTO trades (ticker, amount, price, buy_order_id, sell_order_id, buyer_id, seller_id, executed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id`,
		t.Ticker, t.Amount, t.Price, t.BuyOrderID, t.SellOrderID, t.BuyerID, t.SellerID, t.ExecutedAt).Scan(&t.ID)
	if err != nil {
		return mapError(fmt.Errorf("failed to insert trade: %w", err))
	}
	return nil
}

// TradesByTicker returns the most recent trades for a ticker, newest first.
func (s *Store) TradesByTicker(ctx context.Context, q sqlx.ExtContext, ticker string, limit int) ([]models.Trade, error) {
	trades := []models.Trade{}
	err := sqlx.SelectContext(ctx, q, &trades, `
		SELECT id, ticker, amount, price, buy_order_id, sell_order_id, buyer_id, seller_id, executed_at
		FROM trades WHERE ticker = $1
		ORDER BY executed_at DESC, id DESC
		LIMIT $2`, ticker, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list trades: %w", err)
	}
	return trades, nil
}
