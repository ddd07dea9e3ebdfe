package http

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"

	"github.com/olyamironova/trade-gateway/internal/api/dto"
	"github.com/olyamironova/trade-gateway/internal/core"
	"github.com/olyamironova/trade-gateway/internal/domain"
	"github.com/olyamironova/trade-gateway/internal/gateway"
	"github.com/olyamironova/trade-gateway/internal/middleware"
)

const shutdownTimeout = 10 * time.Second

var registerOnce sync.Once

type HTTPServer struct {
	Eng        *core.Engine
	Dispatcher *gateway.Dispatcher
	WS         http.Handler
	Limiter    *middleware.RateLimiter
	Health     func(ctx context.Context) error
	Log        logrus.FieldLogger
}

func NewHTTPServer(eng *core.Engine, d *gateway.Dispatcher, ws http.Handler, rl *middleware.RateLimiter,
	health func(ctx context.Context) error, log logrus.FieldLogger) *HTTPServer {
	registerOnce.Do(func() {
		if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
			if err := gateway.RegisterValidations(v); err != nil {
				log.WithError(err).Error("register binding validations")
			}
		}
	})
	return &HTTPServer{Eng: eng, Dispatcher: d, WS: ws, Limiter: rl, Health: health, Log: log}
}

func (s *HTTPServer) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), middleware.Logger(s.Log))

	r.GET("/health", s.health)
	if s.WS != nil {
		r.GET("/ws", gin.WrapH(s.WS))
	}

	v1 := r.Group("/v1")
	if s.Limiter != nil {
		v1.Use(s.Limiter.Middleware())
	}
	v1.POST("/orders", s.createOrder)
	v1.GET("/orders/:id", s.getOrder)
	v1.POST("/orders/:id/cancel", s.cancelOrder)
	v1.POST("/orders/:id/fill", s.fillOrder)
	v1.GET("/pairs/:pair/orderbook", s.getOrderbook)
	v1.POST("/pairs/:pair/match", s.matchTopOrders)
	v1.GET("/pairs/:pair/trades", s.getRecentTrades)
	v1.GET("/trades/:id", s.getTrade)
	v1.DELETE("/admin/pairs/:pair/orderbook", s.clearOrderbook)

	return r
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *HTTPServer) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		s.Log.WithField("addr", addr).Info("http server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func (s *HTTPServer) health(c *gin.Context) {
	if s.Health != nil {
		if err := s.Health(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, dto.HealthResponse{Status: "unavailable", Error: err.Error()})
			return
		}
	}
	c.JSON(http.StatusOK, dto.HealthResponse{Status: "ok"})
}

func (s *HTTPServer) createOrder(c *gin.Context) {
	var req dto.CreateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	f := s.Dispatcher.Dispatch(c.Request.Context(), nil, gateway.CreateOrder{
		Pair:     domain.Pair(req.Pair),
		Side:     domain.Side(req.Side),
		Type:     domain.OrderType(req.Type),
		Price:    req.Price,
		Quantity: req.Quantity,
	})
	if s.failed(c, f) {
		return
	}
	c.JSON(http.StatusCreated, dto.OrderResponse{Order: convertOrder(f.Payload.Data.(*domain.Order)), Message: f.Payload.Message})
}

func (s *HTTPServer) getOrder(c *gin.Context) {
	o, err := s.Eng.Orders.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, dto.OrderResponse{Order: convertOrder(o)})
}

func (s *HTTPServer) cancelOrder(c *gin.Context) {
	f := s.Dispatcher.Dispatch(c.Request.Context(), nil, gateway.CancelOrder{OrderID: c.Param("id")})
	if s.failed(c, f) {
		return
	}
	c.JSON(http.StatusOK, dto.OrderResponse{Order: convertOrder(f.Payload.Data.(*domain.Order)), Message: f.Payload.Message})
}

func (s *HTTPServer) fillOrder(c *gin.Context) {
	f := s.Dispatcher.Dispatch(c.Request.Context(), nil, gateway.FillOrder{OrderID: c.Param("id")})
	if s.failed(c, f) {
		return
	}
	c.JSON(http.StatusOK, dto.OrderResponse{Order: convertOrder(f.Payload.Data.(*domain.Order)), Message: f.Payload.Message})
}

func (s *HTTPServer) getOrderbook(c *gin.Context) {
	var uri dto.PairURI
	var q dto.LimitQuery
	if !bindPairAndLimit(c, &uri, &q) {
		return
	}
	f := s.Dispatcher.Dispatch(c.Request.Context(), nil, gateway.GetTopOrderBook{Pair: domain.Pair(uri.Pair), Limit: q.Limit})
	if s.failed(c, f) {
		return
	}
	top := f.Payload.Data.(domain.TopOrderBook)
	c.JSON(http.StatusOK, dto.OrderBookResponse{
		Pair:      uri.Pair,
		Bids:      convertOrders(top.Bids),
		Asks:      convertOrders(top.Asks),
		Timestamp: time.Now().UTC(),
	})
}

func (s *HTTPServer) matchTopOrders(c *gin.Context) {
	var uri dto.PairURI
	if err := c.ShouldBindUri(&uri); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	f := s.Dispatcher.Dispatch(c.Request.Context(), nil, gateway.MatchTopOrders{Pair: domain.Pair(uri.Pair)})
	if s.failed(c, f) {
		return
	}
	t, ok := f.Payload.Data.(*domain.Trade)
	if !ok {
		c.JSON(http.StatusOK, dto.MatchResponse{Matched: false, Message: f.Payload.Message})
		return
	}
	trade := convertTrade(t)
	c.JSON(http.StatusOK, dto.MatchResponse{Matched: true, Trade: &trade, Message: f.Payload.Message})
}

func (s *HTTPServer) getRecentTrades(c *gin.Context) {
	var uri dto.PairURI
	var q dto.LimitQuery
	if !bindPairAndLimit(c, &uri, &q) {
		return
	}
	f := s.Dispatcher.Dispatch(c.Request.Context(), nil, gateway.GetRecentTrades{Pair: domain.Pair(uri.Pair), Limit: q.Limit})
	if s.failed(c, f) {
		return
	}
	recent := f.Payload.Data.(domain.RecentTrades)
	c.JSON(http.StatusOK, dto.TradesResponse{Pair: uri.Pair, Trades: convertTrades(recent.Trades)})
}

func (s *HTTPServer) getTrade(c *gin.Context) {
	t, err := s.Eng.Ledger.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, dto.TradeResponse{Trade: convertTrade(t)})
}

func (s *HTTPServer) clearOrderbook(c *gin.Context) {
	var uri dto.PairURI
	if err := c.ShouldBindUri(&uri); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := s.Eng.Orders.ClearBook(c.Request.Context(), domain.Pair(uri.Pair)); err != nil {
		s.Log.WithError(err).WithField("pair", uri.Pair).Error("clear order book")
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	s.Log.WithField("pair", uri.Pair).Warn("order book cleared")
	c.Status(http.StatusNoContent)
}

// failed writes the error response for an unsuccessful frame.
func (s *HTTPServer) failed(c *gin.Context, f gateway.Frame) bool {
	if f.Payload.Success {
		return false
	}
	c.JSON(statusFor(f.Err()), gin.H{"error": f.Payload.Error, "event": f.Event, "message": f.Payload.Message})
	return true
}

func bindPairAndLimit(c *gin.Context, uri *dto.PairURI, q *dto.LimitQuery) bool {
	if err := c.ShouldBindUri(uri); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return false
	}
	if err := c.ShouldBindQuery(q); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return false
	}
	return true
}

func statusFor(err error) int {
	var verr *gateway.ValidationError
	switch {
	case errors.As(err, &verr), errors.Is(err, domain.ErrUnsupportedPair):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrOrderNotOpen):
		return http.StatusConflict
	case errors.Is(err, domain.ErrOrderNotFound), errors.Is(err, domain.ErrTradeNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func convertOrder(o *domain.Order) dto.Order {
	return dto.Order{
		ID:        o.ID,
		Pair:      string(o.Pair),
		Side:      dto.Side(o.Side),
		Type:      dto.OrderType(o.Type),
		Price:     o.Price,
		Quantity:  o.Quantity,
		Status:    string(o.Status),
		CreatedAt: o.CreatedAt,
	}
}

func convertOrders(orders []*domain.Order) []dto.Order {
	res := make([]dto.Order, len(orders))
	for i, o := range orders {
		res[i] = convertOrder(o)
	}
	return res
}

func convertTrade(t *domain.Trade) dto.Trade {
	return dto.Trade{
		ID:          t.ID,
		Pair:        string(t.Pair),
		BuyOrderID:  t.BuyOrderID,
		SellOrderID: t.SellOrderID,
		Price:       t.Price,
		Quantity:    t.Quantity,
		Timestamp:   t.Timestamp,
	}
}

func convertTrades(trades []*domain.Trade) []dto.Trade {
	res := make([]dto.Trade, len(trades))
	for i, t := range trades {
		res[i] = convertTrade(t)
	}
	return res
}
