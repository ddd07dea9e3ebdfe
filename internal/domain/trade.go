package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type Trade struct {
	ID          string          `json:"tradeId"`
	Pair        Pair            `json:"pair"`
	BuyOrderID  string          `json:"buyOrderId"`
	SellOrderID string          `json:"sellOrderId"`
	Price       decimal.Decimal `json:"price"`
	Quantity    decimal.Decimal `json:"quantity"`
	Timestamp   time.Time       `json:"timestamp"`
}
