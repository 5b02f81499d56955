package engine

import (
	"time"

	"github.com/locknd/tochka-exchange/internal/models"
)

// MatchResult is the result of matching an incoming order against the book.
type MatchResult struct {
	// Trades holds the executions in the order they happened.
	Trades []*models.Trade
	// Touched holds the resting orders whose fill or status changed.
	Touched []*models.Order
	// Deltas holds the net balance movements of all trades.
	Deltas DeltaSet
}

// Matcher implements the order matching algorithm using price-time priority.
// It is pure: candidates come in pre-sorted and row-locked, the caller
// persists the result.
type Matcher struct{}

// NewMatcher returns a new Matcher instance.
func NewMatcher() *Matcher { return &Matcher{} }

// Match fills incoming against the candidate orders in priority order.
// Every trade executes at the resting order's price.
//
// quoteBudget caps the spend of a market buy, which has no limit price to
// bound it: the walk stops once the remaining budget cannot afford a single
// unit at the next price level. Limit buys are admitted only when the full
// qty*price is covered, so the cap never binds for them.
//
// On return incoming carries its final fill and status: EXECUTED when fully
// filled, PARTIALLY_EXECUTED on a partial fill, and when nothing filled
// CANCELLED for market orders, NEW for limit orders.
func (m *Matcher) Match(incoming *models.Order, candidates []*models.Order, quoteBudget int64, executedAt time.Time) *MatchResult {
	result := &MatchResult{
		Trades:  make([]*models.Trade, 0),
		Touched: make([]*models.Order, 0),
		Deltas:  DeltaSet{},
	}

	marketBuy := incoming.Type == models.OrderTypeMarket && incoming.Direction == models.DirectionBuy
	var spent int64

	for _, resting := range candidates {
		if incoming.Remaining() == 0 {
			break
		}

		quantity := incoming.Remaining()
		if r := resting.Remaining(); r < quantity {
			quantity = r
		}
		if quantity == 0 {
			continue
		}

		price := *resting.Price
		if marketBuy {
			affordable := (quoteBudget - spent) / price
			if affordable <= 0 {
				break
			}
			if quantity > affordable {
				quantity = affordable
			}
		}

		trade := m.executeTrade(incoming, resting, quantity, price, executedAt)
		spent += quantity * price

		result.Trades = append(result.Trades, trade)
		result.Touched = append(result.Touched, resting)
		result.Deltas.AddTrade(trade)
	}

	m.finalize(incoming)
	return result
}

// executeTrade records one execution of quantity units at the resting
// order's price and advances both orders.
func (m *Matcher) executeTrade(incoming, resting *models.Order, quantity, price int64, executedAt time.Time) *models.Trade {
	trade := &models.Trade{
		Ticker:     incoming.Ticker,
		Amount:     quantity,
		Price:      price,
		ExecutedAt: executedAt,
	}
	if incoming.Direction == models.DirectionBuy {
		trade.BuyOrderID = incoming.ID
		trade.BuyerID = incoming.UserID
		trade.SellOrderID = resting.ID
		trade.SellerID = resting.UserID
	} else {
		trade.BuyOrderID = resting.ID
		trade.BuyerID = resting.UserID
		trade.SellOrderID = incoming.ID
		trade.SellerID = incoming.UserID
	}

	incoming.Filled += quantity
	resting.Filled += quantity
	if resting.Remaining() == 0 {
		resting.Status = models.OrderStatusExecuted
	} else {
		resting.Status = models.OrderStatusPartiallyExecuted
	}
	return trade
}

// finalize assigns the incoming order its post-match status. A market order
// never rests: whatever could not fill immediately is gone.
func (m *Matcher) finalize(incoming *models.Order) {
	switch {
	case incoming.Remaining() == 0:
		incoming.Status = models.OrderStatusExecuted
	case incoming.Filled > 0:
		incoming.Status = models.OrderStatusPartiallyExecuted
	case incoming.Type == models.OrderTypeMarket:
		incoming.Status = models.OrderStatusCancelled
	default:
		incoming.Status = models.OrderStatusNew
	}
}
