package dto

import (
	"time"

	"github.com/shopspring/decimal"
)

type OrderType string

const (
	Limit  OrderType = "LIMIT"
	Market OrderType = "MARKET"
)

type Side string

const (
	Buy  Side = "BUY"
	Sell Side = "SELL"
)

type CreateOrderRequest struct {
	Pair     string          `json:"pair" binding:"required,pair"`
	Side     Side            `json:"side" binding:"required,oneof=BUY SELL"`
	Type     OrderType       `json:"orderType" binding:"omitempty,oneof=LIMIT MARKET"`
	Price    decimal.Decimal `json:"price" binding:"required_unless=Type MARKET,gte=0"` // optional for MARKET
	Quantity decimal.Decimal `json:"quantity" binding:"gt=0"`
}

type PairURI struct {
	Pair string `uri:"pair" binding:"required,pair"`
}

type LimitQuery struct {
	Limit int `form:"limit" binding:"gte=0"`
}

type OrderResponse struct {
	Order   Order  `json:"order"`
	Message string `json:"message,omitempty"`
}

type OrderBookResponse struct {
	Pair      string    `json:"pair"`
	Bids      []Order   `json:"bids"`
	Asks      []Order   `json:"asks"`
	Timestamp time.Time `json:"timestamp"`
}

type MatchResponse struct {
	Matched bool   `json:"matched"`
	Trade   *Trade `json:"trade,omitempty"`
	Message string `json:"message,omitempty"`
}

type TradeResponse struct {
	Trade Trade `json:"trade"`
}

type TradesResponse struct {
	Pair   string  `json:"pair"`
	Trades []Trade `json:"trades"`
}

type HealthResponse struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

type Order struct {
	ID        string          `json:"orderId"`
	Pair      string          `json:"pair"`
	Side      Side            `json:"side"`
	Type      OrderType       `json:"orderType"`
	Price     decimal.Decimal `json:"price"`
	Quantity  decimal.Decimal `json:"quantity"`
	Status    string          `json:"status"`
	CreatedAt time.Time       `json:"createdAt"`
}

type Trade struct {
	ID          string          `json:"tradeId"`
	Pair        string          `json:"pair"`
	BuyOrderID  string          `json:"buyOrderId"`
	SellOrderID string          `json:"sellOrderId"`
	Price       decimal.Decimal `json:"price"`
	Quantity    decimal.Decimal `json:"quantity"`
	Timestamp   time.Time       `json:"timestamp"`
}
