package models

import (
	"time"

	"github.com/google/uuid"
)

// QuoteTicker is the fixed settlement currency: every trade moves the asset
// leg against this ticker.
const QuoteTicker = "RUB"

// Direction represents the side of an order (BUY or SELL)
type Direction string

const (
	DirectionBuy  Direction = "BUY"
	DirectionSell Direction = "SELL"
)

// Opposite returns the other side of the book.
func (d Direction) Opposite() Direction {
	if d == DirectionBuy {
		return DirectionSell
	}
	return DirectionBuy
}

// OrderType represents the type of an order (limit or market)
type OrderType string

const (
	OrderTypeLimit  OrderType = "LIMIT"
	OrderTypeMarket OrderType = "MARKET"
)

// OrderStatus represents the current status of an order
type OrderStatus string

const (
	OrderStatusNew               OrderStatus = "NEW"
	OrderStatusPartiallyExecuted OrderStatus = "PARTIALLY_EXECUTED"
	OrderStatusExecuted          OrderStatus = "EXECUTED"
	OrderStatusCancelled         OrderStatus = "CANCELLED"
)

// UserRole separates regular users from administrators.
type UserRole string

const (
	RoleUser  UserRole = "USER"
	RoleAdmin UserRole = "ADMIN"
)

// Instrument types. The set is open-ended; these are the ones the platform
// creates itself.
const (
	InstrumentTypeStock    = "STOCK"
	InstrumentTypeCurrency = "CURRENCY"
)

// User represents a registered account. Identity only: the engine never
// mutates users outside of the administrative cascade delete.
type User struct {
	ID        uuid.UUID `json:"id" db:"id"`
	Name      string    `json:"name" db:"name"`
	Role      UserRole  `json:"role" db:"role"`
	APIKey    string    `json:"api_key" db:"api_key"`
	CreatedAt time.Time `json:"-" db:"created_at"`
}

// Instrument is a tradable asset identified by its ticker.
type Instrument struct {
	Ticker    string    `json:"ticker" db:"ticker"`
	Name      string    `json:"name" db:"name"`
	Type      string    `json:"type" db:"type"`
	CreatedAt time.Time `json:"-" db:"created_at"`
}

// Balance is the amount of one ticker held by one user. Amounts are whole
// units and never negative after a committed transaction.
type Balance struct {
	UserID    uuid.UUID `json:"user_id" db:"user_id"`
	Ticker    string    `json:"ticker" db:"ticker"`
	Amount    int64     `json:"amount" db:"amount"`
	UpdatedAt time.Time `json:"-" db:"updated_at"`
}

// Order represents a limit or market order. Price is present only for limit
// orders; that is the discriminator between the two kinds.
type Order struct {
	ID        uuid.UUID   `json:"id" db:"id"`
	UserID    uuid.UUID   `json:"user_id" db:"user_id"`
	Ticker    string      `json:"ticker" db:"ticker"`
	Direction Direction   `json:"direction" db:"direction"`
	Type      OrderType   `json:"type" db:"order_type"`
	Qty       int64       `json:"qty" db:"qty"`
	Price     *int64      `json:"price,omitempty" db:"price"`
	Status    OrderStatus `json:"status" db:"status"`
	Filled    int64       `json:"filled" db:"filled"`
	CreatedAt time.Time   `json:"timestamp" db:"created_at"`
}

// Remaining returns the unfilled quantity.
func (o *Order) Remaining() int64 { return o.Qty - o.Filled }

// Resting reports whether the order can still sit on the book: only limit
// orders with remaining quantity in a non-terminal status rest.
func (o *Order) Resting() bool {
	return o.Type == OrderTypeLimit &&
		(o.Status == OrderStatusNew || o.Status == OrderStatusPartiallyExecuted)
}

// Trade represents a completed match between two orders. Trades are
// immutable once recorded; ids increase monotonically.
type Trade struct {
	ID          int64     `json:"id" db:"id"`
	Ticker      string    `json:"ticker" db:"ticker"`
	Amount      int64     `json:"amount" db:"amount"`
	Price       int64     `json:"price" db:"price"`
	BuyOrderID  uuid.UUID `json:"buy_order_id" db:"buy_order_id"`
	SellOrderID uuid.UUID `json:"sell_order_id" db:"sell_order_id"`
	BuyerID     uuid.UUID `json:"buyer_id" db:"buyer_id"`
	SellerID    uuid.UUID `json:"seller_id" db:"seller_id"`
	ExecutedAt  time.Time `json:"timestamp" db:"executed_at"`
}

// Level is one aggregated price level of the L2 book.
type Level struct {
	Price int64 `json:"price"`
	Qty   int64 `json:"qty"`
}

// L2OrderBook is the aggregated view of resting limit orders for one ticker:
// bids descending by price, asks ascending.
type L2OrderBook struct {
	BidLevels []Level `json:"bid_levels"`
	AskLevels []Level `json:"ask_levels"`
}
