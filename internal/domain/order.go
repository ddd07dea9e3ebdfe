package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type Side string
type OrderType string
type OrderStatus string

const (
	Buy       Side        = "BUY"
	Sell      Side        = "SELL"
	Limit     OrderType   = "LIMIT"
	Market    OrderType   = "MARKET"
	Open      OrderStatus = "OPEN"
	Filled    OrderStatus = "FILLED"
	Cancelled OrderStatus = "CANCELLED"
)

type Order struct {
	ID        string          `json:"orderId"`
	Pair      Pair            `json:"pair"`
	Side      Side            `json:"side"`
	Type      OrderType       `json:"orderType"`
	Price     decimal.Decimal `json:"price"`
	Quantity  decimal.Decimal `json:"quantity"`
	Status    OrderStatus     `json:"status"`
	CreatedAt time.Time       `json:"createdAt"`
}

// Terminal reports whether no further transition is allowed.
func (s OrderStatus) Terminal() bool {
	return s == Filled || s == Cancelled
}

func (s Side) Valid() bool { return s == Buy || s == Sell }

func (t OrderType) Valid() bool { return t == Limit || t == Market }

// Opposite returns the side an order of s trades against.
func (s Side) Opposite() Side {
	if s == Buy {
		return Sell
	}
	return Buy
}

// OrderUpdate is a partial update. Nil fields are left untouched.
type OrderUpdate struct {
	Quantity *decimal.Decimal
	Price    *decimal.Decimal
	Status   *OrderStatus
}
