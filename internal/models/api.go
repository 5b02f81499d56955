package models

import "github.com/google/uuid"

// NewUserRequest is the body of POST /api/v1/public/register.
type NewUserRequest struct {
	Name string `json:"name" binding:"required,min=3"`
}

// InstrumentPayload is the body of POST /api/v1/admin/instrument. The ticker
// rule (2-10 uppercase Latin letters) is enforced by a custom validator.
type InstrumentPayload struct {
	Name   string `json:"name" binding:"required"`
	Ticker string `json:"ticker" binding:"required,ticker"`
}

// CreateOrderRequest is the body of POST /api/v1/order. Price present means
// limit, absent means market.
type CreateOrderRequest struct {
	Direction Direction `json:"direction" binding:"required,oneof=BUY SELL"`
	Ticker    string    `json:"ticker" binding:"required,ticker"`
	Qty       int64     `json:"qty" binding:"required,min=1"`
	Price     *int64    `json:"price,omitempty" binding:"omitempty,gt=0"`
}

// Kind returns the order type encoded by the presence of Price.
func (r *CreateOrderRequest) Kind() OrderType {
	if r.Price != nil {
		return OrderTypeLimit
	}
	return OrderTypeMarket
}

// CreateOrderResponse acknowledges order admission.
type CreateOrderResponse struct {
	Success bool      `json:"success"`
	OrderID uuid.UUID `json:"order_id"`
}

// OrderBody mirrors the submitted order fields inside an OrderResponse.
type OrderBody struct {
	Direction Direction `json:"direction"`
	Ticker    string    `json:"ticker"`
	Qty       int64     `json:"qty"`
	Price     *int64    `json:"price,omitempty"`
}

// OrderResponse is the API view of an order. Filled is reported for limit
// orders only: a market order either executes on arrival or dies, so its
// fill is implied by the status.
type OrderResponse struct {
	ID        uuid.UUID   `json:"id"`
	Status    OrderStatus `json:"status"`
	UserID    uuid.UUID   `json:"user_id"`
	Timestamp string      `json:"timestamp"`
	Body      OrderBody   `json:"body"`
	Filled    *int64      `json:"filled,omitempty"`
}

// NewOrderResponse converts a stored order into its API shape.
func NewOrderResponse(o *Order) OrderResponse {
	resp := OrderResponse{
		ID:        o.ID,
		Status:    o.Status,
		UserID:    o.UserID,
		Timestamp: o.CreatedAt.UTC().Format("2006-01-02T15:04:05.999999Z07:00"),
		Body: OrderBody{
			Direction: o.Direction,
			Ticker:    o.Ticker,
			Qty:       o.Qty,
			Price:     o.Price,
		},
	}
	if o.Type == OrderTypeLimit {
		filled := o.Filled
		resp.Filled = &filled
	}
	return resp
}

// TransactionResponse is the public view of a trade.
type TransactionResponse struct {
	Ticker    string `json:"ticker"`
	Amount    int64  `json:"amount"`
	Price     int64  `json:"price"`
	Timestamp string `json:"timestamp"`
}

// NewTransactionResponse converts a trade into its public shape.
func NewTransactionResponse(t *Trade) TransactionResponse {
	return TransactionResponse{
		Ticker:    t.Ticker,
		Amount:    t.Amount,
		Price:     t.Price,
		Timestamp: t.ExecutedAt.UTC().Format("2006-01-02T15:04:05.999999Z07:00"),
	}
}

// DepositWithdrawRequest is the body of the admin balance endpoints.
type DepositWithdrawRequest struct {
	UserID uuid.UUID `json:"user_id" binding:"required"`
	Ticker string    `json:"ticker" binding:"required,ticker"`
	Amount int64     `json:"amount" binding:"required,gt=0"`
}

// OkResponse is the generic success acknowledgement.
type OkResponse struct {
	Success bool `json:"success"`
}

// Ok is the canonical success body.
func Ok() OkResponse { return OkResponse{Success: true} }
