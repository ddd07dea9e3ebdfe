package core

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/olyamironova/trade-gateway/internal/domain"
)

var two = decimal.NewFromInt(2)

// Matcher crosses the best bid against the best ask of a pair.
type Matcher struct {
	orders *OrderService
	ledger *TradeLedger
	log    logrus.FieldLogger
	now    func() time.Time
}

func NewMatcher(orders *OrderService, ledger *TradeLedger, log logrus.FieldLogger) *Matcher {
	return &Matcher{orders: orders, ledger: ledger, log: log, now: time.Now}
}

// MatchTopOrders runs one pass at the top of the book. It returns a nil
// trade when either side is empty or the best bid is below the best ask.
func (m *Matcher) MatchTopOrders(ctx context.Context, pair domain.Pair) (*domain.Trade, error) {
	unlock := m.orders.locks.lock(pair)
	defer unlock()
	return m.matchLocked(ctx, pair)
}

// RecentTrades lists the newest trades of pair.
func (m *Matcher) RecentTrades(ctx context.Context, pair domain.Pair, limit int) ([]*domain.Trade, error) {
	return m.ledger.Recent(ctx, pair, limit)
}

func (m *Matcher) matchLocked(ctx context.Context, pair domain.Pair) (*domain.Trade, error) {
	bids, err := m.orders.book.TopBids(ctx, pair, 1)
	if err != nil {
		return nil, err
	}
	asks, err := m.orders.book.TopAsks(ctx, pair, 1)
	if err != nil {
		return nil, err
	}
	if len(bids) == 0 || len(asks) == 0 {
		return nil, nil
	}
	bid, ask := bids[0], asks[0]
	if bid.Price.LessThan(ask.Price) || bid.Status != domain.Open || ask.Status != domain.Open {
		return nil, nil
	}

	trade := &domain.Trade{
		ID:          uuid.NewString(),
		Pair:        pair,
		BuyOrderID:  bid.ID,
		SellOrderID: ask.ID,
		Price:       bid.Price.Add(ask.Price).Div(two),
		Quantity:    decimal.Min(bid.Quantity, ask.Quantity),
		Timestamp:   time.UnixMilli(m.now().UnixMilli()),
	}
	if err := m.ledger.Store(ctx, trade); err != nil {
		return nil, err
	}
	if err := m.settle(ctx, bid, trade.Quantity); err != nil {
		return nil, err
	}
	if err := m.settle(ctx, ask, trade.Quantity); err != nil {
		return nil, err
	}
	m.log.WithFields(logrus.Fields{
		"pair":     pair,
		"trade":    trade.ID,
		"price":    trade.Price,
		"quantity": trade.Quantity,
	}).Info("trade executed")
	return trade, nil
}

// settle fills o when qty exhausts it and otherwise shrinks it in place.
func (m *Matcher) settle(ctx context.Context, o *domain.Order, qty decimal.Decimal) error {
	remaining := o.Quantity.Sub(qty)
	if !remaining.IsPositive() {
		if _, err := m.orders.transition(ctx, o.ID, domain.Filled); err != nil {
			return fmt.Errorf("fill %s: %w", o.ID, err)
		}
		return nil
	}
	if _, err := m.orders.update(ctx, o.ID, domain.OrderUpdate{Quantity: &remaining}); err != nil {
		return fmt.Errorf("reduce %s: %w", o.ID, err)
	}
	return nil
}
