package server

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/locknd/tochka-exchange/internal/auth"
	"github.com/locknd/tochka-exchange/internal/models"
)

func (s *Server) register(c *gin.Context) {
	var req models.NewUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": err.Error()})
		return
	}

	user, err := s.exchange.CreateUser(c.Request.Context(), req.Name)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, user)
}

// listInstruments serves the instrument list from a short-lived cache: the
// list changes only on admin action, which invalidates it.
func (s *Server) listInstruments(c *gin.Context) {
	if cached, ok := s.cache.Get(instrumentsCacheKey); ok {
		c.JSON(http.StatusOK, cached)
		return
	}

	instruments, err := s.exchange.Instruments(c.Request.Context())
	if err != nil {
		s.writeError(c, err)
		return
	}
	s.cache.SetDefault(instrumentsCacheKey, instruments)
	c.JSON(http.StatusOK, instruments)
}

func (s *Server) orderBook(c *gin.Context) {
	book, err := s.exchange.OrderBook(c.Request.Context(), c.Param("ticker"), queryLimit(c, 10))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, book)
}

func (s *Server) transactions(c *gin.Context) {
	trades, err := s.exchange.Transactions(c.Request.Context(), c.Param("ticker"), queryLimit(c, 10))
	if err != nil {
		s.writeError(c, err)
		return
	}

	out := make([]models.TransactionResponse, 0, len(trades))
	for i := range trades {
		out = append(out, models.NewTransactionResponse(&trades[i]))
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) balances(c *gin.Context) {
	user := auth.CurrentUser(c)
	balances, err := s.exchange.Balances(c.Request.Context(), user.ID)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, balances)
}

func (s *Server) createOrder(c *gin.Context) {
	var req models.CreateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": err.Error()})
		return
	}

	user := auth.CurrentUser(c)
	order, err := s.exchange.CreateOrder(c.Request.Context(), user.ID, &req)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, models.CreateOrderResponse{Success: true, OrderID: order.ID})
}

func (s *Server) listOrders(c *gin.Context) {
	user := auth.CurrentUser(c)
	orders, err := s.exchange.Orders(c.Request.Context(), user.ID)
	if err != nil {
		s.writeError(c, err)
		return
	}

	out := make([]models.OrderResponse, 0, len(orders))
	for i := range orders {
		out = append(out, models.NewOrderResponse(&orders[i]))
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) getOrder(c *gin.Context) {
	orderID, ok := pathUUID(c, "order_id")
	if !ok {
		return
	}

	user := auth.CurrentUser(c)
	order, err := s.exchange.Order(c.Request.Context(), user.ID, orderID)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, models.NewOrderResponse(order))
}

func (s *Server) cancelOrder(c *gin.Context) {
	orderID, ok := pathUUID(c, "order_id")
	if !ok {
		return
	}

	user := auth.CurrentUser(c)
	if err := s.exchange.CancelOrder(c.Request.Context(), user.ID, orderID); err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, models.Ok())
}

// pathUUID parses a uuid path parameter, answering 400 on garbage.
func pathUUID(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "invalid " + name + " format"})
		return uuid.Nil, false
	}
	return id, true
}

// queryLimit reads the limit query parameter, falling back on garbage.
func queryLimit(c *gin.Context, fallback int) int {
	raw := c.Query("limit")
	if raw == "" {
		return fallback
	}
	limit, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return limit
}
