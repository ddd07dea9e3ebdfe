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

// MatchFunc runs one matching pass on pair. It is called with the pair
// lock already held.
type MatchFunc func(ctx context.Context, pair domain.Pair) (*domain.Trade, error)

type CreateOrder struct {
	Pair     domain.Pair
	Side     domain.Side
	Type     domain.OrderType
	Price    decimal.Decimal
	Quantity decimal.Decimal
}

// OrderService owns the order lifecycle. All mutations of a pair's book go
// through its pair lock.
type OrderService struct {
	book  *OrderBook
	locks *pairLocks
	match MatchFunc
	log   logrus.FieldLogger
	now   func() time.Time
}

func NewOrderService(book *OrderBook, log logrus.FieldLogger) *OrderService {
	return &OrderService{
		book:  book,
		locks: newPairLocks(),
		log:   log,
		now:   time.Now,
	}
}

// SetMatchFunc wires the matcher in after both are constructed.
func (s *OrderService) SetMatchFunc(fn MatchFunc) { s.match = fn }

// Create opens a new order. A MARKET order first tries one match on its
// pair; if that trades, the order is recorded as FILLED, never queued, and
// the trade is returned with it. Everything else is queued on its side of
// the book and the trade is nil.
func (s *OrderService) Create(ctx context.Context, cmd CreateOrder) (*domain.Order, *domain.Trade, error) {
	if !cmd.Pair.Valid() {
		return nil, nil, fmt.Errorf("%w: %s", domain.ErrUnsupportedPair, cmd.Pair)
	}
	o := &domain.Order{
		ID:        uuid.NewString(),
		Pair:      cmd.Pair,
		Side:      cmd.Side,
		Type:      cmd.Type,
		Price:     cmd.Price,
		Quantity:  cmd.Quantity,
		Status:    domain.Open,
		CreatedAt: time.UnixMilli(s.now().UnixMilli()),
	}

	unlock := s.locks.lock(o.Pair)
	defer unlock()

	if o.Type == domain.Market && s.match != nil {
		trade, err := s.match(ctx, o.Pair)
		if err != nil {
			return nil, nil, fmt.Errorf("match market order: %w", err)
		}
		if trade != nil {
			o.Status = domain.Filled
			if err := s.book.Save(ctx, o); err != nil {
				return nil, nil, err
			}
			s.log.WithFields(logrus.Fields{"order": o.ID, "pair": o.Pair, "trade": trade.ID}).
				Debug("market order filled on create")
			return o, trade, nil
		}
	}
	if err := s.book.AddToBook(ctx, o); err != nil {
		return nil, nil, err
	}
	s.log.WithFields(logrus.Fields{"order": o.ID, "pair": o.Pair, "side": o.Side, "price": o.Price}).
		Debug("order booked")
	return o, nil, nil
}

func (s *OrderService) Get(ctx context.Context, id string) (*domain.Order, error) {
	return s.book.Get(ctx, id)
}

// Cancel moves an OPEN order to CANCELLED. Terminal orders are rejected
// with domain.ErrOrderNotOpen.
func (s *OrderService) Cancel(ctx context.Context, id string) (*domain.Order, error) {
	unlock, err := s.lockOrder(ctx, id)
	if err != nil {
		return nil, err
	}
	defer unlock()
	return s.transition(ctx, id, domain.Cancelled)
}

// Fill moves an OPEN order to FILLED.
func (s *OrderService) Fill(ctx context.Context, id string) (*domain.Order, error) {
	unlock, err := s.lockOrder(ctx, id)
	if err != nil {
		return nil, err
	}
	defer unlock()
	return s.transition(ctx, id, domain.Filled)
}

func (s *OrderService) Update(ctx context.Context, id string, upd domain.OrderUpdate) (*domain.Order, error) {
	unlock, err := s.lockOrder(ctx, id)
	if err != nil {
		return nil, err
	}
	defer unlock()
	return s.update(ctx, id, upd)
}

func (s *OrderService) TopBids(ctx context.Context, pair domain.Pair, limit int) ([]*domain.Order, error) {
	return s.book.TopBids(ctx, pair, limit)
}

func (s *OrderService) TopAsks(ctx context.Context, pair domain.Pair, limit int) ([]*domain.Order, error) {
	return s.book.TopAsks(ctx, pair, limit)
}

// ClearBook empties both queues of pair.
func (s *OrderService) ClearBook(ctx context.Context, pair domain.Pair) error {
	unlock := s.locks.lock(pair)
	defer unlock()
	return s.book.Clear(ctx, pair)
}

// lockOrder takes the lock of the order's pair. The pair of an order never
// changes, so reading it before locking is safe.
func (s *OrderService) lockOrder(ctx context.Context, id string) (func(), error) {
	o, err := s.book.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.locks.lock(o.Pair), nil
}

// transition expects the pair lock to be held.
func (s *OrderService) transition(ctx context.Context, id string, to domain.OrderStatus) (*domain.Order, error) {
	o, err := s.book.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if o.Status != domain.Open {
		return nil, fmt.Errorf("%w: %s is %s", domain.ErrOrderNotOpen, id, o.Status)
	}
	o, err = s.book.SetStatus(ctx, id, to)
	if err != nil {
		return nil, err
	}
	s.log.WithFields(logrus.Fields{"order": id, "pair": o.Pair, "status": to}).Debug("order status changed")
	return o, nil
}

// update expects the pair lock to be held.
func (s *OrderService) update(ctx context.Context, id string, upd domain.OrderUpdate) (*domain.Order, error) {
	o, err := s.book.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if o.Status != domain.Open {
		return nil, fmt.Errorf("%w: %s is %s", domain.ErrOrderNotOpen, id, o.Status)
	}
	return s.book.UpdateFields(ctx, id, upd)
}
