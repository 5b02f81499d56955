package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/sasha-s/go-deadlock"
	"go.uber.org/zap"

	"github.com/locknd/tochka-exchange/internal/db"
	"github.com/locknd/tochka-exchange/internal/metrics"
	"github.com/locknd/tochka-exchange/internal/models"
)

// maxPlacementAttempts bounds how often a placement is retried after the
// database aborts it with a deadlock or serialization failure.
const maxPlacementAttempts = 3

// Engine is the trading core: it admits orders, matches them against the
// book and settles balances, all inside one database transaction per order.
type Engine struct {
	store   *db.Store
	logger  *zap.Logger
	matcher *Matcher
	clock   admissionClock
	metrics *metrics.Collector

	// gate serializes every mutation that reads balances before writing
	// them. Funds are checked at admission rather than escrowed, so the
	// check and the settlement that relies on it must not interleave with
	// another mutation.
	gate deadlock.Mutex
}

// New constructs an Engine. logger may be nil, collector may be nil when
// metrics are disabled.
func New(store *db.Store, logger *zap.Logger, collector *metrics.Collector) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		store:   store,
		logger:  logger,
		matcher: NewMatcher(),
		metrics: collector,
	}
}

// CreateOrder admits, matches and settles a new order. On a transaction
// conflict the whole placement is retried from scratch with backoff, which
// re-reads the book; after maxPlacementAttempts the conflict surfaces to
// the caller.
func (e *Engine) CreateOrder(ctx context.Context, userID uuid.UUID, req *models.CreateOrderRequest) (*models.Order, error) {
	order := &models.Order{
		ID:        uuid.New(),
		UserID:    userID,
		Ticker:    req.Ticker,
		Direction: req.Direction,
		Type:      req.Kind(),
		Qty:       req.Qty,
		Price:     req.Price,
		Status:    models.OrderStatusNew,
	}

	var lastErr error
	for attempt := 0; attempt < maxPlacementAttempts; attempt++ {
		if attempt > 0 {
			if e.metrics != nil {
				e.metrics.PlacementRetries.Inc()
			}
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(retryBackoff(attempt - 1)):
			}
			order.Filled = 0
			order.Status = models.OrderStatusNew
		}

		trades, err := e.placeOrder(ctx, order)
		if err != nil {
			if errors.Is(err, models.ErrConflict) {
				e.logger.Warn("placement conflict, retrying",
					zap.String("order_id", order.ID.String()),
					zap.Int("attempt", attempt+1))
				lastErr = err
				continue
			}
			return nil, err
		}

		e.observePlacement(order, trades)
		return order, nil
	}

	if e.metrics != nil {
		e.metrics.PlacementConflicts.Inc()
	}
	return nil, fmt.Errorf("placement failed after %d attempts: %w", maxPlacementAttempts, lastErr)
}

// placeOrder runs one placement attempt: funds check, admission, matching
// and settlement inside a single transaction under the gate.
func (e *Engine) placeOrder(ctx context.Context, order *models.Order) ([]*models.Trade, error) {
	e.gate.Lock()
	defer e.gate.Unlock()

	var trades []*models.Trade
	err := e.store.WithTx(ctx, func(tx *sqlx.Tx) error {
		if _, err := e.store.Instrument(ctx, tx, order.Ticker); err != nil {
			return err
		}

		quoteBudget, err := e.admissionCheck(ctx, tx, order)
		if err != nil {
			return err
		}

		order.CreatedAt = e.clock.Now()
		if err := e.store.InsertOrder(ctx, tx, order); err != nil {
			return err
		}

		var bound *int64
		if order.Type == models.OrderTypeLimit {
			bound = order.Price
		}
		rows, err := e.store.RestingOrders(ctx, tx, order.Ticker, order.Direction.Opposite(), bound, true)
		if err != nil {
			return err
		}
		candidates := make([]*models.Order, len(rows))
		for i := range rows {
			candidates[i] = &rows[i]
		}

		result := e.matcher.Match(order, candidates, quoteBudget, order.CreatedAt)

		for _, trade := range result.Trades {
			if err := e.store.InsertTrade(ctx, tx, trade); err != nil {
				return err
			}
		}
		for _, touched := range result.Touched {
			if err := e.store.UpdateOrderFill(ctx, tx, touched.ID, touched.Filled, touched.Status); err != nil {
				return err
			}
		}
		if err := e.store.UpdateOrderFill(ctx, tx, order.ID, order.Filled, order.Status); err != nil {
			return err
		}

		if err := e.applyDeltas(ctx, tx, result.Deltas); err != nil {
			return err
		}

		trades = result.Trades
		return nil
	})
	if err != nil {
		return nil, err
	}
	return trades, nil
}

// admissionCheck verifies the submitter can pay for the order. A buy needs
// quote currency for the full quantity, a market buy at least one ruble per
// unit; a sell needs the asset itself. Returns the buyer's quote balance,
// which caps a market buy during matching.
func (e *Engine) admissionCheck(ctx context.Context, tx *sqlx.Tx, order *models.Order) (int64, error) {
	if order.Direction == models.DirectionBuy {
		budget, err := e.store.Balance(ctx, tx, order.UserID, models.QuoteTicker)
		if err != nil {
			return 0, err
		}
		unit := int64(1)
		if order.Price != nil {
			unit = *order.Price
		}
		if budget < order.Qty*unit {
			return 0, fmt.Errorf("need %d %s, have %d: %w",
				order.Qty*unit, models.QuoteTicker, budget, models.ErrInsufficientFunds)
		}
		return budget, nil
	}

	held, err := e.store.Balance(ctx, tx, order.UserID, order.Ticker)
	if err != nil {
		return 0, err
	}
	if held < order.Qty {
		return 0, fmt.Errorf("need %d %s, have %d: %w",
			order.Qty, order.Ticker, held, models.ErrInsufficientFunds)
	}
	return 0, nil
}

// applyDeltas settles the net balance movements in canonical order.
func (e *Engine) applyDeltas(ctx context.Context, tx *sqlx.Tx, deltas DeltaSet) error {
	for _, key := range deltas.SortedKeys() {
		if err := e.store.UpsertBalance(ctx, tx, key.UserID, key.Ticker, deltas[key]); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) observePlacement(order *models.Order, trades []*models.Trade) {
	e.logger.Info("order placed",
		zap.String("order_id", order.ID.String()),
		zap.String("ticker", order.Ticker),
		zap.String("direction", string(order.Direction)),
		zap.String("type", string(order.Type)),
		zap.Int64("qty", order.Qty),
		zap.Int64("filled", order.Filled),
		zap.String("status", string(order.Status)),
		zap.Int("trades", len(trades)))

	if e.metrics == nil {
		return
	}
	e.metrics.OrdersTotal.WithLabelValues(
		order.Ticker, string(order.Direction), string(order.Type), string(order.Status)).Inc()
	for _, t := range trades {
		e.metrics.TradesTotal.WithLabelValues(t.Ticker).Inc()
		e.metrics.TradeVolume.WithLabelValues(t.Ticker).Add(float64(t.Amount))
		e.metrics.TradeValue.WithLabelValues(t.Ticker).Add(float64(t.Amount * t.Price))
	}
}

// CancelOrder cancels an order owned by userID that is still NEW or
// PARTIALLY_EXECUTED; the accumulated fill survives. Terminal orders report
// not found.
func (e *Engine) CancelOrder(ctx context.Context, userID, orderID uuid.UUID) error {
	err := e.store.WithTx(ctx, func(tx *sqlx.Tx) error {
		order, err := e.store.OrderOwnedBy(ctx, tx, orderID, userID)
		if err != nil {
			return err
		}
		cancelled, err := e.store.CancelOrder(ctx, tx, orderID, userID)
		if err != nil {
			return err
		}
		if !cancelled {
			return fmt.Errorf("order %s is already %s: %w", orderID, order.Status, models.ErrNotFound)
		}
		return nil
	})
	if err != nil {
		return err
	}

	e.logger.Info("order cancelled",
		zap.String("order_id", orderID.String()),
		zap.String("user_id", userID.String()))
	return nil
}

// Order returns one order owned by userID.
func (e *Engine) Order(ctx context.Context, userID, orderID uuid.UUID) (*models.Order, error) {
	return e.store.OrderOwnedBy(ctx, e.store.DB, orderID, userID)
}

// Orders returns every order of one user in admission order.
func (e *Engine) Orders(ctx context.Context, userID uuid.UUID) ([]models.Order, error) {
	return e.store.OrdersByUser(ctx, e.store.DB, userID)
}

// Balances returns all balances of one user keyed by ticker.
func (e *Engine) Balances(ctx context.Context, userID uuid.UUID) (map[string]int64, error) {
	return e.store.Balances(ctx, e.store.DB, userID)
}

// OrderBook returns the aggregated L2 book for a ticker. limit is clamped
// to [1, 25]; an unknown ticker yields an empty book.
func (e *Engine) OrderBook(ctx context.Context, ticker string, limit int) (*models.L2OrderBook, error) {
	if limit < 1 {
		limit = 1
	}
	if limit > 25 {
		limit = 25
	}

	bids, err := e.store.RestingOrders(ctx, e.store.DB, ticker, models.DirectionBuy, nil, false)
	if err != nil {
		return nil, err
	}
	asks, err := e.store.RestingOrders(ctx, e.store.DB, ticker, models.DirectionSell, nil, false)
	if err != nil {
		return nil, err
	}
	return BuildL2(bids, asks, limit), nil
}

// Transactions returns the most recent trades for a ticker, newest first.
// limit is clamped to [1, 100]; an unknown ticker yields an empty list.
func (e *Engine) Transactions(ctx context.Context, ticker string, limit int) ([]models.Trade, error) {
	if limit < 1 {
		limit = 1
	}
	if limit > 100 {
		limit = 100
	}
	return e.store.TradesByTicker(ctx, e.store.DB, ticker, limit)
}

// Instruments lists every tradable instrument.
func (e *Engine) Instruments(ctx context.Context) ([]models.Instrument, error) {
	return e.store.Instruments(ctx, e.store.DB)
}

// UserByAPIKey resolves an API key to its user.
func (e *Engine) UserByAPIKey(ctx context.Context, apiKey string) (*models.User, error) {
	return e.store.UserByAPIKey(ctx, e.store.DB, apiKey)
}

// CreateUser registers a new user and issues an API key.
func (e *Engine) CreateUser(ctx context.Context, name string) (*models.User, error) {
	user := &models.User{
		ID:     uuid.New(),
		Name:   name,
		Role:   models.RoleUser,
		APIKey: "key-" + uuid.New().String(),
	}
	if err := e.store.InsertUser(ctx, e.store.DB, user); err != nil {
		return nil, err
	}
	e.logger.Info("user registered", zap.String("user_id", user.ID.String()))
	return user, nil
}

// DeleteUser removes a user with all their orders, trades and balances, and
// returns the deleted record.
func (e *Engine) DeleteUser(ctx context.Context, id uuid.UUID) (*models.User, error) {
	e.gate.Lock()
	defer e.gate.Unlock()

	var user *models.User
	err := e.store.WithTx(ctx, func(tx *sqlx.Tx) error {
		u, err := e.store.UserByID(ctx, tx, id)
		if err != nil {
			return err
		}
		user = u
		return e.store.DeleteUserCascade(ctx, tx, id)
	})
	if err != nil {
		return nil, err
	}

	e.logger.Info("user deleted", zap.String("user_id", id.String()))
	return user, nil
}

// CreateInstrument registers a new tradable instrument.
func (e *Engine) CreateInstrument(ctx context.Context, payload *models.InstrumentPayload) (*models.Instrument, error) {
	inst := &models.Instrument{
		Ticker: payload.Ticker,
		Name:   payload.Name,
		Type:   models.InstrumentTypeStock,
	}
	if err := e.store.InsertInstrument(ctx, e.store.DB, inst); err != nil {
		return nil, err
	}
	e.logger.Info("instrument created", zap.String("ticker", inst.Ticker))
	return inst, nil
}

// DeleteInstrument delists an instrument, dropping its orders, trades and
// balances with it.
func (e *Engine) DeleteInstrument(ctx context.Context, ticker string) error {
	e.gate.Lock()
	defer e.gate.Unlock()

	err := e.store.WithTx(ctx, func(tx *sqlx.Tx) error {
		return e.store.DeleteInstrumentCascade(ctx, tx, ticker)
	})
	if err != nil {
		return err
	}

	e.logger.Info("instrument deleted", zap.String("ticker", ticker))
	return nil
}

// Deposit credits amount of ticker to a user.
func (e *Engine) Deposit(ctx context.Context, userID uuid.UUID, ticker string, amount int64) error {
	e.gate.Lock()
	defer e.gate.Unlock()

	return e.store.WithTx(ctx, func(tx *sqlx.Tx) error {
		if _, err := e.store.UserByID(ctx, tx, userID); err != nil {
			return err
		}
		if _, err := e.store.Instrument(ctx, tx, ticker); err != nil {
			return err
		}
		return e.store.UpsertBalance(ctx, tx, userID, ticker, amount)
	})
}

// Withdraw debits amount of ticker from a user. Overdrawing fails with
// ErrInsufficientFunds.
func (e *Engine) Withdraw(ctx context.Context, userID uuid.UUID, ticker string, amount int64) error {
	e.gate.Lock()
	defer e.gate.Unlock()

	return e.store.WithTx(ctx, func(tx *sqlx.Tx) error {
		if _, err := e.store.UserByID(ctx, tx, userID); err != nil {
			return err
		}
		return e.store.UpsertBalance(ctx, tx, userID, ticker, -amount)
	})
}
