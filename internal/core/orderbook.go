package core

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/olyamironova/trade-gateway/internal/domain"
	"github.com/olyamironova/trade-gateway/internal/port"
)

const DefaultTopLimit = 5

var (
	// Sentinel prices for a MARKET order with nothing to price against, so
	// it always sorts as the most aggressive order on its side.
	marketBuyFallback  = decimal.NewFromInt(99999999)
	marketSellFallback = decimal.RequireFromString("0.0001")
)

// OrderBook owns order records and the per-pair bid/ask queues. It is the
// only writer of both.
type OrderBook struct {
	store  port.Store
	ledger *TradeLedger
}

func NewOrderBook(store port.Store, ledger *TradeLedger) *OrderBook {
	return &OrderBook{store: store, ledger: ledger}
}

// Save upserts the whole order record.
func (b *OrderBook) Save(ctx context.Context, o *domain.Order) error {
	if err := b.store.HSet(ctx, orderKey(o.ID), encodeOrder(o)); err != nil {
		return fmt.Errorf("save order %s: %w", o.ID, err)
	}
	return nil
}

func (b *OrderBook) Get(ctx context.Context, id string) (*domain.Order, error) {
	fields, err := b.store.HGetAll(ctx, orderKey(id))
	if err != nil {
		return nil, fmt.Errorf("get order %s: %w", id, err)
	}
	if len(fields) == 0 || fields["orderId"] == "" {
		return nil, domain.ErrOrderNotFound
	}
	o, err := decodeOrder(fields)
	if err != nil {
		return nil, fmt.Errorf("decode order %s: %w", id, err)
	}
	return o, nil
}

// AddToBook saves the record and queues the order on its side. A MARKET
// order is priced from the opposing top of book, then the last trade, then
// a sentinel; the resolved price is written back to o.
func (b *OrderBook) AddToBook(ctx context.Context, o *domain.Order) error {
	if o.Type == domain.Market {
		price, err := b.marketPrice(ctx, o.Pair, o.Side)
		if err != nil {
			return err
		}
		o.Price = price
	}
	err := b.store.Atomic(ctx, func(tx port.Batch) {
		tx.HSet(orderKey(o.ID), encodeOrder(o))
		tx.ZAdd(bookKey(o.Pair, o.Side), score(o.Side, o.Price), o.ID)
	})
	if err != nil {
		return fmt.Errorf("add order %s to book: %w", o.ID, err)
	}
	return nil
}

func (b *OrderBook) marketPrice(ctx context.Context, pair domain.Pair, side domain.Side) (decimal.Decimal, error) {
	top, err := b.TopOfBook(ctx, pair, side.Opposite(), 1)
	if err != nil {
		return decimal.Zero, err
	}
	if len(top) > 0 {
		return top[0].Price, nil
	}
	if b.ledger != nil {
		last, err := b.ledger.Recent(ctx, pair, 1)
		if err != nil {
			return decimal.Zero, err
		}
		if len(last) > 0 {
			return last[0].Price, nil
		}
	}
	if side == domain.Buy {
		return marketBuyFallback, nil
	}
	return marketSellFallback, nil
}

// RemoveFromBook drops the order from its queue. Removing an order that is
// not queued is a no-op.
func (b *OrderBook) RemoveFromBook(ctx context.Context, o *domain.Order) error {
	if err := b.store.ZRem(ctx, bookKey(o.Pair, o.Side), o.ID); err != nil {
		return fmt.Errorf("remove order %s from book: %w", o.ID, err)
	}
	return nil
}

// UpdatePrice moves an open order to a new score and rewrites its record in
// one batch, so it is never visible at both prices or at neither.
func (b *OrderBook) UpdatePrice(ctx context.Context, o *domain.Order, price decimal.Decimal) error {
	o.Price = price
	key := bookKey(o.Pair, o.Side)
	err := b.store.Atomic(ctx, func(tx port.Batch) {
		tx.ZRem(key, o.ID)
		if o.Status == domain.Open {
			tx.ZAdd(key, score(o.Side, price), o.ID)
		}
		tx.HSet(orderKey(o.ID), encodeOrder(o))
	})
	if err != nil {
		return fmt.Errorf("update price of order %s: %w", o.ID, err)
	}
	return nil
}

// UpdateFields merges upd into the stored order and returns the result.
func (b *OrderBook) UpdateFields(ctx context.Context, id string, upd domain.OrderUpdate) (*domain.Order, error) {
	o, err := b.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if upd.Quantity != nil {
		o.Quantity = *upd.Quantity
	}
	if upd.Status != nil {
		o.Status = *upd.Status
	}
	if upd.Price != nil && !upd.Price.Equal(o.Price) {
		if err := b.UpdatePrice(ctx, o, *upd.Price); err != nil {
			return nil, err
		}
		return o, nil
	}
	err = b.store.Atomic(ctx, func(tx port.Batch) {
		if o.Status.Terminal() {
			tx.ZRem(bookKey(o.Pair, o.Side), o.ID)
		}
		tx.HSet(orderKey(o.ID), encodeOrder(o))
	})
	if err != nil {
		return nil, fmt.Errorf("update order %s: %w", id, err)
	}
	return o, nil
}

// SetStatus transitions the order. FILLED and CANCELLED also take it off
// the book; the record itself is kept.
func (b *OrderBook) SetStatus(ctx context.Context, id string, status domain.OrderStatus) (*domain.Order, error) {
	o, err := b.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	o.Status = status
	err = b.store.Atomic(ctx, func(tx port.Batch) {
		if status.Terminal() {
			tx.ZRem(bookKey(o.Pair, o.Side), o.ID)
		}
		tx.HSet(orderKey(o.ID), encodeOrder(o))
	})
	if err != nil {
		return nil, fmt.Errorf("set status of order %s: %w", id, err)
	}
	return o, nil
}

// TopOfBook returns up to limit queued orders of one side in priority order.
// Prices come from the queue scores; the record's exact decimal is kept when
// it maps to the same score. A queued id without a record fails
// with domain.ErrInconsistentBook.
func (b *OrderBook) TopOfBook(ctx context.Context, pair domain.Pair, side domain.Side, limit int) ([]*domain.Order, error) {
	if limit <= 0 {
		limit = DefaultTopLimit
	}
	key := bookKey(pair, side)
	entries, err := b.store.ZRange(ctx, key, 0, int64(limit-1))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", key, err)
	}
	out := make([]*domain.Order, 0, len(entries))
	for _, z := range entries {
		o, err := b.Get(ctx, z.Member)
		if errors.Is(err, domain.ErrOrderNotFound) {
			return nil, fmt.Errorf("%w: %s in %s", domain.ErrInconsistentBook, z.Member, key)
		}
		if err != nil {
			return nil, err
		}
		if score(side, o.Price) != z.Score {
			o.Price = priceFromScore(side, z.Score)
		}
		out = append(out, o)
	}
	return out, nil
}

func (b *OrderBook) TopBids(ctx context.Context, pair domain.Pair, limit int) ([]*domain.Order, error) {
	return b.TopOfBook(ctx, pair, domain.Buy, limit)
}

func (b *OrderBook) TopAsks(ctx context.Context, pair domain.Pair, limit int) ([]*domain.Order, error) {
	return b.TopOfBook(ctx, pair, domain.Sell, limit)
}

// Depth is the number of queued orders on one side.
func (b *OrderBook) Depth(ctx context.Context, pair domain.Pair, side domain.Side) (int64, error) {
	n, err := b.store.ZCard(ctx, bookKey(pair, side))
	if err != nil {
		return 0, fmt.Errorf("depth of %s: %w", bookKey(pair, side), err)
	}
	return n, nil
}

// Clear empties both queues of a pair. Order records are left alone.
func (b *OrderBook) Clear(ctx context.Context, pair domain.Pair) error {
	if err := b.store.Del(ctx, bookKey(pair, domain.Buy), bookKey(pair, domain.Sell)); err != nil {
		return fmt.Errorf("clear book %s: %w", pair, err)
	}
	return nil
}

func encodeOrder(o *domain.Order) map[string]string {
	fields := map[string]string{
		"orderId":   o.ID,
		"pair":      string(o.Pair),
		"side":      string(o.Side),
		"orderType": string(o.Type),
		"price":     o.Price.String(),
		"quantity":  o.Quantity.String(),
		"status":    string(o.Status),
	}
	if !o.CreatedAt.IsZero() {
		fields["createdAt"] = formatMillis(o.CreatedAt)
	}
	return fields
}

func decodeOrder(f map[string]string) (*domain.Order, error) {
	price, err := parseDecimal(f["price"])
	if err != nil {
		return nil, fmt.Errorf("price: %w", err)
	}
	qty, err := parseDecimal(f["quantity"])
	if err != nil {
		return nil, fmt.Errorf("quantity: %w", err)
	}
	created, err := parseMillis(f["createdAt"])
	if err != nil {
		return nil, fmt.Errorf("createdAt: %w", err)
	}
	return &domain.Order{
		ID:        f["orderId"],
		Pair:      domain.Pair(f["pair"]),
		Side:      domain.Side(f["side"]),
		Type:      domain.OrderType(f["orderType"]),
		Price:     price,
		Quantity:  qty,
		Status:    domain.OrderStatus(f["status"]),
		CreatedAt: created,
	}, nil
}
