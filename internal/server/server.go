package server

import (
	"context"
	"errors"
	"net/http"
	"regexp"
	"strconv"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	gocache "github.com/patrickmn/go-cache"
	"go.uber.org/zap"

	"github.com/locknd/tochka-exchange/internal/auth"
	"github.com/locknd/tochka-exchange/internal/metrics"
	"github.com/locknd/tochka-exchange/internal/models"
)

// Exchange is everything the HTTP layer needs from the trading core.
type Exchange interface {
	CreateOrder(ctx context.Context, userID uuid.UUID, req *models.CreateOrderRequest) (*models.Order, error)
	CancelOrder(ctx context.Context, userID, orderID uuid.UUID) error
	Order(ctx context.Context, userID, orderID uuid.UUID) (*models.Order, error)
	Orders(ctx context.Context, userID uuid.UUID) ([]models.Order, error)
	Balances(ctx context.Context, userID uuid.UUID) (map[string]int64, error)
	OrderBook(ctx context.Context, ticker string, limit int) (*models.L2OrderBook, error)
	Transactions(ctx context.Context, ticker string, limit int) ([]models.Trade, error)
	Instruments(ctx context.Context) ([]models.Instrument, error)

	UserByAPIKey(ctx context.Context, apiKey string) (*models.User, error)
	CreateUser(ctx context.Context, name string) (*models.User, error)
	DeleteUser(ctx context.Context, id uuid.UUID) (*models.User, error)
	CreateInstrument(ctx context.Context, payload *models.InstrumentPayload) (*models.Instrument, error)
	DeleteInstrument(ctx context.Context, ticker string) error
	Deposit(ctx context.Context, userID uuid.UUID, ticker string, amount int64) error
	Withdraw(ctx context.Context, userID uuid.UUID, ticker string, amount int64) error
}

var tickerPattern = regexp.MustCompile(`^[A-Z]{2,10}$`)

const instrumentsCacheKey = "instruments"

// Server wires the HTTP API onto an Exchange.
type Server struct {
	exchange Exchange
	logger   *zap.Logger
	metrics  *metrics.Collector
	cache    *gocache.Cache
	router   *gin.Engine
}

// New builds the router with all routes registered. logger may be nil,
// collector may be nil when metrics are disabled.
func New(exchange Exchange, logger *zap.Logger, collector *metrics.Collector) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		exchange: exchange,
		logger:   logger,
		metrics:  collector,
		cache:    gocache.New(time.Minute, 5*time.Minute),
	}

	registerTickerValidator()

	router := gin.New()
	router.Use(s.requestObserver(), gin.Recovery(), cors.Default())

	router.GET("/health", s.health)
	if collector != nil {
		router.GET("/metrics", gin.WrapH(metrics.Handler()))
	}

	public := router.Group("/api/v1/public")
	{
		public.POST("/register", s.register)
		public.GET("/instrument", s.listInstruments)
		public.GET("/orderbook/:ticker", s.orderBook)
		public.GET("/transactions/:ticker", s.transactions)
	}

	authed := router.Group("/api/v1", auth.Middleware(exchange))
	{
		authed.GET("/balance", s.balances)
		authed.POST("/order", s.createOrder)
		authed.GET("/order", s.listOrders)
		authed.GET("/order/:order_id", s.getOrder)
		authed.DELETE("/order/:order_id", s.cancelOrder)
	}

	admin := router.Group("/api/v1/admin", auth.Middleware(exchange), auth.RequireAdmin())
	{
		admin.DELETE("/user/:user_id", s.deleteUser)
		admin.POST("/instrument", s.createInstrument)
		admin.DELETE("/instrument/:ticker", s.deleteInstrument)
		admin.POST("/balance/deposit", s.deposit)
		admin.POST("/balance/withdraw", s.withdraw)
	}

	s.router = router
	return s
}

// Handler returns the http handler for the server.
func (s *Server) Handler() http.Handler { return s.router }

// registerTickerValidator teaches the binding validator the ticker format:
// 2-10 uppercase Latin letters.
func registerTickerValidator() {
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		v.RegisterValidation("ticker", func(fl validator.FieldLevel) bool {
			return tickerPattern.MatchString(fl.Field().String())
		})
	}
}

// requestObserver logs every request and feeds the API metrics.
func (s *Server) requestObserver() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		elapsed := time.Since(start)
		status := c.Writer.Status()

		s.logger.Info("request",
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.Int("status", status),
			zap.Duration("elapsed", elapsed))

		if s.metrics != nil {
			s.metrics.APIRequestsTotal.WithLabelValues(
				c.Request.Method, path, strconv.Itoa(status)).Inc()
			s.metrics.APIRequestLatency.WithLabelValues(
				c.Request.Method, path).Observe(elapsed.Seconds())
		}
	}
}

// writeError maps sentinel errors onto HTTP status codes. Anything
// unrecognized is a 500 and gets logged.
func (s *Server) writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, models.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"detail": err.Error()})
	case errors.Is(err, models.ErrInsufficientFunds),
		errors.Is(err, models.ErrDuplicate),
		errors.Is(err, models.ErrValidation):
		c.JSON(http.StatusBadRequest, gin.H{"detail": err.Error()})
	default:
		s.logger.Error("request failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"detail": "internal error"})
	}
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy"})
}
