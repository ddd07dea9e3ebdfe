package core

import (
	"github.com/sirupsen/logrus"

	"github.com/olyamironova/trade-gateway/internal/port"
)

// Engine bundles the order book, trade ledger, order service and matcher
// over one store.
type Engine struct {
	Book    *OrderBook
	Ledger  *TradeLedger
	Orders  *OrderService
	Matcher *Matcher
}

func NewEngine(store port.Store, log logrus.FieldLogger) *Engine {
	ledger := NewTradeLedger(store)
	book := NewOrderBook(store, ledger)
	orders := NewOrderService(book, log)
	matcher := NewMatcher(orders, ledger, log)
	orders.SetMatchFunc(matcher.matchLocked)
	return &Engine{Book: book, Ledger: ledger, Orders: orders, Matcher: matcher}
}
