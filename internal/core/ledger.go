package core

import (
	"context"
	"errors"
	"fmt"

	"github.com/olyamironova/trade-gateway/internal/domain"
	"github.com/olyamironova/trade-gateway/internal/port"
)

const DefaultRecentTrades = 10

// TradeLedger persists executed trades and indexes them per pair by time.
type TradeLedger struct {
	store port.Store
}

func NewTradeLedger(store port.Store) *TradeLedger {
	return &TradeLedger{store: store}
}

// Store writes the trade record and its index entry in one batch.
func (l *TradeLedger) Store(ctx context.Context, t *domain.Trade) error {
	err := l.store.Atomic(ctx, func(tx port.Batch) {
		tx.HSet(tradeKey(t.ID), encodeTrade(t))
		tx.ZAdd(tradesKey(t.Pair), float64(t.Timestamp.UnixMilli()), t.ID)
	})
	if err != nil {
		return fmt.Errorf("store trade %s: %w", t.ID, err)
	}
	return nil
}

func (l *TradeLedger) Get(ctx context.Context, id string) (*domain.Trade, error) {
	fields, err := l.store.HGetAll(ctx, tradeKey(id))
	if err != nil {
		return nil, fmt.Errorf("get trade %s: %w", id, err)
	}
	if len(fields) == 0 || fields["tradeId"] == "" {
		return nil, domain.ErrTradeNotFound
	}
	t, err := decodeTrade(fields)
	if err != nil {
		return nil, fmt.Errorf("decode trade %s: %w", id, err)
	}
	return t, nil
}

// Recent returns up to limit trades of pair, newest first. Index entries
// whose record is gone are skipped.
func (l *TradeLedger) Recent(ctx context.Context, pair domain.Pair, limit int) ([]*domain.Trade, error) {
	if limit <= 0 {
		limit = DefaultRecentTrades
	}
	entries, err := l.store.ZRevRange(ctx, tradesKey(pair), 0, int64(limit-1))
	if err != nil {
		return nil, fmt.Errorf("recent trades %s: %w", pair, err)
	}
	out := make([]*domain.Trade, 0, len(entries))
	for _, z := range entries {
		t, err := l.Get(ctx, z.Member)
		if errors.Is(err, domain.ErrTradeNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

func encodeTrade(t *domain.Trade) map[string]string {
	return map[string]string{
		"tradeId":     t.ID,
		"pair":        string(t.Pair),
		"buyOrderId":  t.BuyOrderID,
		"sellOrderId": t.SellOrderID,
		"price":       t.Price.String(),
		"quantity":    t.Quantity.String(),
		"timestamp":   formatMillis(t.Timestamp),
	}
}

func decodeTrade(f map[string]string) (*domain.Trade, error) {
	price, err := parseDecimal(f["price"])
	if err != nil {
		return nil, fmt.Errorf("price: %w", err)
	}
	qty, err := parseDecimal(f["quantity"])
	if err != nil {
		return nil, fmt.Errorf("quantity: %w", err)
	}
	ts, err := parseMillis(f["timestamp"])
	if err != nil {
		return nil, fmt.Errorf("timestamp: %w", err)
	}
	return &domain.Trade{
		ID:          f["tradeId"],
		Pair:        domain.Pair(f["pair"]),
		BuyOrderID:  f["buyOrderId"],
		SellOrderID: f["sellOrderId"],
		Price:       price,
		Quantity:    qty,
		Timestamp:   ts,
	}, nil
}
