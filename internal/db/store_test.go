package db

import (
	"context"
	"errors"
	"math/rand"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/locknd/tochka-exchange/internal/models"
)

// These tests need a live PostgreSQL instance and are skipped unless
// TEST_DATABASE_URL is set.

func testStore(t *testing.T) *Store {
	t.Helper()

	databaseURL := os.Getenv("TEST_DATABASE_URL")
	if databaseURL == "" {
		t.Skip("TEST_DATABASE_URL environment variable not set, skipping integration test")
	}

	conn, err := Connect(databaseURL)
	require.NoError(t, err, "failed to connect to test database")
	t.Cleanup(func() { conn.Close() })

	require.NoError(t, EnsureSchema(context.Background(), conn))
	return NewStore(conn)
}

func seedUser(t *testing.T, store *Store) *models.User {
	t.Helper()
	user := &models.User{
		ID:     uuid.New(),
		Name:   "store test user",
		Role:   models.RoleUser,
		APIKey: "key-" + uuid.New().String(),
	}
	require.NoError(t, store.InsertUser(context.Background(), store.DB, user))
	t.Cleanup(func() {
		store.DeleteUserCascade(context.Background(), store.DB, user.ID)
	})
	return user
}

func seedInstrument(t *testing.T, store *Store) string {
	t.Helper()
	letters := []rune("ABCDEFGHIJKLMNOPQRSTUVWXYZ")
	b := make([]rune, 6)
	for i := range b {
		b[i] = letters[rand.Intn(len(letters))]
	}
	ticker := string(b)

	require.NoError(t, store.InsertInstrument(context.Background(), store.DB, &models.Instrument{
		Ticker: ticker,
		Name:   "Store Test Asset",
		Type:   models.InstrumentTypeStock,
	}))
	t.Cleanup(func() {
		store.DeleteInstrumentCascade(context.Background(), store.DB, ticker)
	})
	return ticker
}

func TestStore_BalanceUpsertAndCheck(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()
	user := seedUser(t, store)
	ticker := seedInstrument(t, store)

	// Missing row reads as zero.
	amount, err := store.Balance(ctx, store.DB, user.ID, ticker)
	require.NoError(t, err)
	assert.Equal(t, int64(0), amount)

	require.NoError(t, store.UpsertBalance(ctx, store.DB, user.ID, ticker, 100))
	require.NoError(t, store.UpsertBalance(ctx, store.DB, user.ID, ticker, -40))

	amount, err = store.Balance(ctx, store.DB, user.ID, ticker)
	require.NoError(t, err)
	assert.Equal(t, int64(60), amount)

	// Overdraw must trip the check constraint and map to the sentinel.
	err = store.UpsertBalance(ctx, store.DB, user.ID, ticker, -100)
	require.Error(t, err)
	assert.True(t, errors.Is(err, models.ErrInsufficientFunds), "got %v", err)

	// The failed upsert must not have changed the row.
	amount, err = store.Balance(ctx, store.DB, user.ID, ticker)
	require.NoError(t, err)
	assert.Equal(t, int64(60), amount)
}

func TestStore_DuplicateInstrument(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()
	ticker := seedInstrument(t, store)

	err := store.InsertInstrument(ctx, store.DB, &models.Instrument{
		Ticker: ticker,
		Name:   "Duplicate",
		Type:   models.InstrumentTypeStock,
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, models.ErrDuplicate), "got %v", err)
}

func TestStore_CancelGuard(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()
	user := seedUser(t, store)
	ticker := seedInstrument(t, store)

	p := int64(50)
	order := &models.Order{
		ID:        uuid.New(),
		UserID:    user.ID,
		Ticker:    ticker,
		Direction: models.DirectionBuy,
		Type:      models.OrderTypeLimit,
		Qty:       10,
		Price:     &p,
		Status:    models.OrderStatusNew,
		CreatedAt: time.Now().UTC(),
	}
	require.NoError(t, store.InsertOrder(ctx, store.DB, order))

	// Wrong owner cannot cancel.
	cancelled, err := store.CancelOrder(ctx, store.DB, order.ID, uuid.New())
	require.NoError(t, err)
	assert.False(t, cancelled)

	cancelled, err = store.CancelOrder(ctx, store.DB, order.ID, user.ID)
	require.NoError(t, err)
	assert.True(t, cancelled)

	// Terminal order cannot be cancelled again.
	cancelled, err = store.CancelOrder(ctx, store.DB, order.ID, user.ID)
	require.NoError(t, err)
	assert.False(t, cancelled)

	stored, err := store.OrderOwnedBy(ctx, store.DB, order.ID, user.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusCancelled, stored.Status)
}

func TestStore_RestingOrdersPriority(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()
	user := seedUser(t, store)
	ticker := seedInstrument(t, store)

	insert := func(direction models.Direction, p int64, createdAt time.Time) uuid.UUID {
		order := &models.Order{
			ID:        uuid.New(),
			UserID:    user.ID,
			Ticker:    ticker,
			Direction: direction,
			Type:      models.OrderTypeLimit,
			Qty:       5,
			Price:     &p,
			Status:    models.OrderStatusNew,
			CreatedAt: createdAt,
		}
		require.NoError(t, store.InsertOrder(ctx, store.DB, order))
		return order.ID
	}

	base := time.Now().UTC().Truncate(time.Microsecond)
	cheapLate := insert(models.DirectionSell, 50, base.Add(2*time.Microsecond))
	cheapEarly := insert(models.DirectionSell, 50, base.Add(time.Microsecond))
	expensive := insert(models.DirectionSell, 52, base)

	asks, err := store.RestingOrders(ctx, store.DB, ticker, models.DirectionSell, nil, false)
	require.NoError(t, err)
	require.Len(t, asks, 3)
	assert.Equal(t, cheapEarly, asks[0].ID, "lowest price, earliest admission first")
	assert.Equal(t, cheapLate, asks[1].ID)
	assert.Equal(t, expensive, asks[2].ID)

	// A price bound keeps only crossing candidates.
	bound := int64(50)
	crossing, err := store.RestingOrders(ctx, store.DB, ticker, models.DirectionSell, &bound, false)
	require.NoError(t, err)
	require.Len(t, crossing, 2)

	// The bid side sorts descending.
	bidHigh := insert(models.DirectionBuy, 49, base)
	insert(models.DirectionBuy, 48, base)
	bids, err := store.RestingOrders(ctx, store.DB, ticker, models.DirectionBuy, nil, false)
	require.NoError(t, err)
	require.Len(t, bids, 2)
	assert.Equal(t, bidHigh, bids[0].ID, "highest bid first")
}

func TestStore_UserCascade(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()
	user := seedUser(t, store)
	counterparty := seedUser(t, store)
	ticker := seedInstrument(t, store)

	p := int64(50)
	buy := &models.Order{
		ID: uuid.New(), UserID: user.ID, Ticker: ticker,
		Direction: models.DirectionBuy, Type: models.OrderTypeLimit,
		Qty: 5, Price: &p, Status: models.OrderStatusExecuted, Filled: 5,
		CreatedAt: time.Now().UTC(),
	}
	sell := &models.Order{
		ID: uuid.New(), UserID: counterparty.ID, Ticker: ticker,
		Direction: models.DirectionSell, Type: models.OrderTypeLimit,
		Qty: 5, Price: &p, Status: models.OrderStatusExecuted, Filled: 5,
		CreatedAt: time.Now().UTC(),
	}
	require.NoError(t, store.InsertOrder(ctx, store.DB, buy))
	require.NoError(t, store.InsertOrder(ctx, store.DB, sell))
	require.NoError(t, store.InsertTrade(ctx, store.DB, &models.Trade{
		Ticker: ticker, Amount: 5, Price: p,
		BuyOrderID: buy.ID, SellOrderID: sell.ID,
		BuyerID: user.ID, SellerID: counterparty.ID,
		ExecutedAt: time.Now().UTC(),
	}))
	require.NoError(t, store.UpsertBalance(ctx, store.DB, user.ID, ticker, 5))

	require.NoError(t, store.DeleteUserCascade(ctx, store.DB, user.ID))

	_, err := store.UserByID(ctx, store.DB, user.ID)
	assert.True(t, errors.Is(err, models.ErrNotFound), "got %v", err)

	// The counterparty survives, their trade history does not.
	_, err = store.UserByID(ctx, store.DB, counterparty.ID)
	require.NoError(t, err)
	trades, err := store.TradesByTicker(ctx, store.DB, ticker, 10)
	require.NoError(t, err)
	assert.Empty(t, trades)

	// Deleting a missing user reports not found.
	err = store.DeleteUserCascade(ctx, store.DB, user.ID)
	assert.True(t, errors.Is(err, models.ErrNotFound), "got %v", err)
}

func TestStore_UserByAPIKey(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()
	user := seedUser(t, store)

	found, err := store.UserByAPIKey(ctx, store.DB, user.APIKey)
	require.NoError(t, err)
	assert.Equal(t, user.ID, found.ID)

	_, err = store.UserByAPIKey(ctx, store.DB, "key-"+uuid.New().String())
	assert.True(t, errors.Is(err, models.ErrNotFound), "got %v", err)
}
