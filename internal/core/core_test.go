package core

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/olyamironova/trade-gateway/internal/adapter/in_memory"
	"github.com/olyamironova/trade-gateway/internal/domain"
	"github.com/olyamironova/trade-gateway/internal/port"
)

func newTestEngine(t *testing.T) (*Engine, *in_memory.Store) {
	t.Helper()
	log, _ := test.NewNullLogger()
	log.SetLevel(logrus.DebugLevel)
	store := in_memory.NewStore()
	return NewEngine(store, log), store
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func limit(pair domain.Pair, side domain.Side, price, qty string) CreateOrder {
	return CreateOrder{Pair: pair, Side: side, Type: domain.Limit, Price: dec(price), Quantity: dec(qty)}
}

func TestOrderBook_SaveGetRoundTrip(t *testing.T) {
	ctx := context.Background()
	e, _ := newTestEngine(t)

	o := &domain.Order{
		ID:        "o-1",
		Pair:      domain.ETHUSD,
		Side:      domain.Sell,
		Type:      domain.Limit,
		Price:     dec("3120.5"),
		Quantity:  dec("0.25"),
		Status:    domain.Open,
		CreatedAt: time.UnixMilli(1700000000123),
	}
	require.NoError(t, e.Book.Save(ctx, o))

	got, err := e.Book.Get(ctx, "o-1")
	require.NoError(t, err)
	assert.Equal(t, o.ID, got.ID)
	assert.Equal(t, o.Pair, got.Pair)
	assert.Equal(t, o.Side, got.Side)
	assert.Equal(t, o.Type, got.Type)
	assert.Equal(t, "3120.5", got.Price.String())
	assert.Equal(t, "0.25", got.Quantity.String())
	assert.Equal(t, o.Status, got.Status)
	assert.True(t, o.CreatedAt.Equal(got.CreatedAt))

	_, err = e.Book.Get(ctx, "nope")
	assert.ErrorIs(t, err, domain.ErrOrderNotFound)
}

func TestOrderBook_PriceOrdering(t *testing.T) {
	ctx := context.Background()
	e, _ := newTestEngine(t)

	for _, p := range []string{"100", "300", "200"} {
		_, _, err := e.Orders.Create(ctx, limit(domain.BTCUSD, domain.Buy, p, "1"))
		require.NoError(t, err)
		_, _, err = e.Orders.Create(ctx, limit(domain.BTCUSD, domain.Sell, p, "1"))
		require.NoError(t, err)
	}

	bids, err := e.Orders.TopBids(ctx, domain.BTCUSD, 0)
	require.NoError(t, err)
	asks, err := e.Orders.TopAsks(ctx, domain.BTCUSD, 0)
	require.NoError(t, err)

	prices := func(orders []*domain.Order) []string {
		out := make([]string, 0, len(orders))
		for _, o := range orders {
			out = append(out, o.Price.String())
		}
		return out
	}
	assert.Equal(t, []string{"300", "200", "100"}, prices(bids))
	assert.Equal(t, []string{"100", "200", "300"}, prices(asks))

	top, err := e.Orders.TopBids(ctx, domain.BTCUSD, 2)
	require.NoError(t, err)
	assert.Len(t, top, 2)
}

func TestOrderBook_TopOfBookKeepsExactPrice(t *testing.T) {
	ctx := context.Background()
	e, store := newTestEngine(t)

	o := &domain.Order{ID: "o-1", Pair: domain.BTCUSD, Side: domain.Buy, Type: domain.Limit,
		Price: dec("50000.1234567890123456"), Quantity: dec("1"), Status: domain.Open}
	require.NoError(t, e.Book.AddToBook(ctx, o))

	bids, err := e.Book.TopBids(ctx, domain.BTCUSD, 1)
	require.NoError(t, err)
	require.Len(t, bids, 1)
	assert.Equal(t, "50000.1234567890123456", bids[0].Price.String())

	// the score wins when it disagrees with the record
	require.NoError(t, store.ZAdd(ctx, "orderbook:BTC_USD:bids", -49000, "o-1"))
	bids, err = e.Book.TopBids(ctx, domain.BTCUSD, 1)
	require.NoError(t, err)
	require.Len(t, bids, 1)
	assert.Equal(t, "49000", bids[0].Price.String())
}

func TestOrderBook_UpdatePriceRequeues(t *testing.T) {
	ctx := context.Background()
	e, _ := newTestEngine(t)

	low, _, err := e.Orders.Create(ctx, limit(domain.BTCUSD, domain.Buy, "100", "1"))
	require.NoError(t, err)
	_, _, err = e.Orders.Create(ctx, limit(domain.BTCUSD, domain.Buy, "200", "1"))
	require.NoError(t, err)

	price := dec("250")
	updated, err := e.Orders.Update(ctx, low.ID, domain.OrderUpdate{Price: &price})
	require.NoError(t, err)
	assert.Equal(t, "250", updated.Price.String())

	bids, err := e.Orders.TopBids(ctx, domain.BTCUSD, 10)
	require.NoError(t, err)
	require.Len(t, bids, 2)
	assert.Equal(t, low.ID, bids[0].ID)
	assert.Equal(t, "250", bids[0].Price.String())

	depth, err := e.Book.Depth(ctx, domain.BTCUSD, domain.Buy)
	require.NoError(t, err)
	assert.EqualValues(t, 2, depth)

	got, err := e.Orders.Get(ctx, low.ID)
	require.NoError(t, err)
	assert.Equal(t, "250", got.Price.String())
}

func TestOrderBook_RemoveIsIdempotent(t *testing.T) {
	ctx := context.Background()
	e, _ := newTestEngine(t)

	a, _, err := e.Orders.Create(ctx, limit(domain.BTCUSD, domain.Sell, "100", "1"))
	require.NoError(t, err)
	_, _, err = e.Orders.Create(ctx, limit(domain.BTCUSD, domain.Sell, "101", "1"))
	require.NoError(t, err)

	require.NoError(t, e.Book.RemoveFromBook(ctx, a))
	require.NoError(t, e.Book.RemoveFromBook(ctx, a))

	depth, err := e.Book.Depth(ctx, domain.BTCUSD, domain.Sell)
	require.NoError(t, err)
	assert.EqualValues(t, 1, depth)
}

func TestOrderBook_TopOfBookInconsistent(t *testing.T) {
	ctx := context.Background()
	e, store := newTestEngine(t)

	require.NoError(t, store.ZAdd(ctx, "orderbook:BTC_USD:asks", 100, "ghost"))

	_, err := e.Orders.TopAsks(ctx, domain.BTCUSD, 5)
	assert.ErrorIs(t, err, domain.ErrInconsistentBook)
	assert.Contains(t, err.Error(), "ghost")
}

func TestOrderBook_ClearKeepsRecords(t *testing.T) {
	ctx := context.Background()
	e, _ := newTestEngine(t)

	o, _, err := e.Orders.Create(ctx, limit(domain.XRPUSD, domain.Buy, "0.5", "100"))
	require.NoError(t, err)
	_, _, err = e.Orders.Create(ctx, limit(domain.XRPUSD, domain.Sell, "0.6", "100"))
	require.NoError(t, err)

	require.NoError(t, e.Orders.ClearBook(ctx, domain.XRPUSD))

	bids, err := e.Orders.TopBids(ctx, domain.XRPUSD, 5)
	require.NoError(t, err)
	asks, err := e.Orders.TopAsks(ctx, domain.XRPUSD, 5)
	require.NoError(t, err)
	assert.Empty(t, bids)
	assert.Empty(t, asks)

	_, err = e.Orders.Get(ctx, o.ID)
	assert.NoError(t, err)
}

func TestOrderService_CreateRejectsUnknownPair(t *testing.T) {
	e, _ := newTestEngine(t)
	_, _, err := e.Orders.Create(context.Background(), limit("DOGE_USD", domain.Buy, "1", "1"))
	assert.ErrorIs(t, err, domain.ErrUnsupportedPair)
}

func TestOrderService_MarketPriceResolution(t *testing.T) {
	ctx := context.Background()

	t.Run("sentinels on an empty book", func(t *testing.T) {
		e, _ := newTestEngine(t)
		buy, _, err := e.Orders.Create(ctx, CreateOrder{Pair: domain.BTCUSD, Side: domain.Buy, Type: domain.Market, Quantity: dec("1")})
		require.NoError(t, err)
		assert.Equal(t, "99999999", buy.Price.String())
		assert.Equal(t, domain.Open, buy.Status)

		sell, _, err := e.Orders.Create(ctx, CreateOrder{Pair: domain.ETHUSD, Side: domain.Sell, Type: domain.Market, Quantity: dec("1")})
		require.NoError(t, err)
		assert.Equal(t, "0.0001", sell.Price.String())

		asks, err := e.Orders.TopAsks(ctx, domain.ETHUSD, 1)
		require.NoError(t, err)
		require.Len(t, asks, 1)
		assert.Equal(t, "0.0001", asks[0].Price.String())
	})

	t.Run("opposite top of book", func(t *testing.T) {
		e, _ := newTestEngine(t)
		_, _, err := e.Orders.Create(ctx, limit(domain.BTCUSD, domain.Sell, "50100", "1"))
		require.NoError(t, err)

		buy, _, err := e.Orders.Create(ctx, CreateOrder{Pair: domain.BTCUSD, Side: domain.Buy, Type: domain.Market, Quantity: dec("1")})
		require.NoError(t, err)
		assert.Equal(t, "50100", buy.Price.String())
		assert.Equal(t, domain.Open, buy.Status)
	})

	t.Run("last trade price", func(t *testing.T) {
		e, _ := newTestEngine(t)
		require.NoError(t, e.Ledger.Store(ctx, &domain.Trade{
			ID: "t-1", Pair: domain.LTCUSD, BuyOrderID: "b", SellOrderID: "s",
			Price: dec("72.5"), Quantity: dec("1"), Timestamp: time.UnixMilli(1000),
		}))

		sell, _, err := e.Orders.Create(ctx, CreateOrder{Pair: domain.LTCUSD, Side: domain.Sell, Type: domain.Market, Quantity: dec("1")})
		require.NoError(t, err)
		assert.Equal(t, "72.5", sell.Price.String())
	})
}

func TestOrderService_MarketOrderFilledOnCreate(t *testing.T) {
	ctx := context.Background()
	e, _ := newTestEngine(t)

	_, _, err := e.Orders.Create(ctx, limit(domain.BTCUSD, domain.Buy, "50000", "1"))
	require.NoError(t, err)
	_, _, err = e.Orders.Create(ctx, limit(domain.BTCUSD, domain.Sell, "49000", "1"))
	require.NoError(t, err)

	o, trade, err := e.Orders.Create(ctx, CreateOrder{Pair: domain.BTCUSD, Side: domain.Buy, Type: domain.Market, Quantity: dec("1")})
	require.NoError(t, err)
	assert.Equal(t, domain.Filled, o.Status)
	require.NotNil(t, trade)
	assert.Equal(t, "49500", trade.Price.String())

	stored, err := e.Orders.Get(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.Filled, stored.Status)

	for _, side := range []domain.Side{domain.Buy, domain.Sell} {
		depth, err := e.Book.Depth(ctx, domain.BTCUSD, side)
		require.NoError(t, err)
		assert.Zero(t, depth, side)
	}
}

func TestOrderService_TerminalOrdersAreImmutable(t *testing.T) {
	ctx := context.Background()
	e, _ := newTestEngine(t)

	o, _, err := e.Orders.Create(ctx, limit(domain.BTCUSD, domain.Buy, "100", "1"))
	require.NoError(t, err)

	filled, err := e.Orders.Fill(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.Filled, filled.Status)

	_, err = e.Orders.Cancel(ctx, o.ID)
	assert.ErrorIs(t, err, domain.ErrOrderNotOpen)
	assert.ErrorIs(t, err, domain.ErrOrderNotFound)

	_, err = e.Orders.Fill(ctx, o.ID)
	assert.ErrorIs(t, err, domain.ErrOrderNotOpen)

	qty := dec("5")
	_, err = e.Orders.Update(ctx, o.ID, domain.OrderUpdate{Quantity: &qty})
	assert.ErrorIs(t, err, domain.ErrOrderNotOpen)

	got, err := e.Orders.Get(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.Filled, got.Status)
	assert.Equal(t, "1", got.Quantity.String())

	depth, err := e.Book.Depth(ctx, domain.BTCUSD, domain.Buy)
	require.NoError(t, err)
	assert.Zero(t, depth)
}

// writeCounter tells single writes apart from atomic batches.
type writeCounter struct {
	*in_memory.Store
	writes  int
	batches int
}

func (c *writeCounter) HSet(ctx context.Context, key string, fields map[string]string) error {
	c.writes++
	return c.Store.HSet(ctx, key, fields)
}

func (c *writeCounter) ZRem(ctx context.Context, key string, member string) error {
	c.writes++
	return c.Store.ZRem(ctx, key, member)
}

func (c *writeCounter) Atomic(ctx context.Context, fn func(b port.Batch)) error {
	c.batches++
	return c.Store.Atomic(ctx, fn)
}

func TestOrderBook_UpdateFieldsTerminalIsOneBatch(t *testing.T) {
	ctx := context.Background()
	store := &writeCounter{Store: in_memory.NewStore()}
	book := NewOrderBook(store, NewTradeLedger(store))

	o := &domain.Order{ID: "o-1", Pair: domain.BNBUSD, Side: domain.Sell, Type: domain.Limit,
		Price: dec("600"), Quantity: dec("2"), Status: domain.Open}
	require.NoError(t, book.AddToBook(ctx, o))
	store.writes, store.batches = 0, 0

	qty, status := dec("1"), domain.Cancelled
	got, err := book.UpdateFields(ctx, o.ID, domain.OrderUpdate{Quantity: &qty, Status: &status})
	require.NoError(t, err)
	assert.Equal(t, domain.Cancelled, got.Status)
	assert.Equal(t, "1", got.Quantity.String())
	assert.Zero(t, store.writes)
	assert.Equal(t, 1, store.batches)

	depth, err := book.Depth(ctx, domain.BNBUSD, domain.Sell)
	require.NoError(t, err)
	assert.Zero(t, depth)

	stored, err := book.Get(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.Cancelled, stored.Status)
	assert.Equal(t, "1", stored.Quantity.String())
}

func TestOrderService_CancelRemovesFromBook(t *testing.T) {
	ctx := context.Background()
	e, _ := newTestEngine(t)

	o, _, err := e.Orders.Create(ctx, limit(domain.BNBUSD, domain.Sell, "600", "2"))
	require.NoError(t, err)

	cancelled, err := e.Orders.Cancel(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.Cancelled, cancelled.Status)

	asks, err := e.Orders.TopAsks(ctx, domain.BNBUSD, 5)
	require.NoError(t, err)
	assert.Empty(t, asks)

	_, err = e.Orders.Cancel(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrOrderNotFound)
	assert.False(t, errors.Is(err, domain.ErrOrderNotOpen))
}

func TestMatcher_PartialFillAtMidpoint(t *testing.T) {
	ctx := context.Background()
	e, _ := newTestEngine(t)

	bid, _, err := e.Orders.Create(ctx, limit(domain.BTCUSD, domain.Buy, "50000", "2"))
	require.NoError(t, err)
	ask, _, err := e.Orders.Create(ctx, limit(domain.BTCUSD, domain.Sell, "50000", "1"))
	require.NoError(t, err)

	trade, err := e.Matcher.MatchTopOrders(ctx, domain.BTCUSD)
	require.NoError(t, err)
	require.NotNil(t, trade)
	assert.Equal(t, "50000", trade.Price.String())
	assert.Equal(t, "1", trade.Quantity.String())
	assert.Equal(t, bid.ID, trade.BuyOrderID)
	assert.Equal(t, ask.ID, trade.SellOrderID)

	gotAsk, err := e.Orders.Get(ctx, ask.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.Filled, gotAsk.Status)

	gotBid, err := e.Orders.Get(ctx, bid.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.Open, gotBid.Status)
	assert.Equal(t, "1", gotBid.Quantity.String())

	bids, err := e.Orders.TopBids(ctx, domain.BTCUSD, 5)
	require.NoError(t, err)
	require.Len(t, bids, 1)
	assert.Equal(t, bid.ID, bids[0].ID)

	stored, err := e.Ledger.Get(ctx, trade.ID)
	require.NoError(t, err)
	assert.Equal(t, trade.BuyOrderID, stored.BuyOrderID)
	assert.True(t, trade.Timestamp.Equal(stored.Timestamp))
}

func TestMatcher_MidpointOfCrossedBook(t *testing.T) {
	ctx := context.Background()
	e, _ := newTestEngine(t)

	_, _, err := e.Orders.Create(ctx, limit(domain.ETHUSD, domain.Buy, "51000", "3"))
	require.NoError(t, err)
	_, _, err = e.Orders.Create(ctx, limit(domain.ETHUSD, domain.Sell, "49000", "3"))
	require.NoError(t, err)

	trade, err := e.Matcher.MatchTopOrders(ctx, domain.ETHUSD)
	require.NoError(t, err)
	require.NotNil(t, trade)
	assert.Equal(t, "50000", trade.Price.String())
	assert.Equal(t, "3", trade.Quantity.String())

	for _, side := range []domain.Side{domain.Buy, domain.Sell} {
		depth, err := e.Book.Depth(ctx, domain.ETHUSD, side)
		require.NoError(t, err)
		assert.Zero(t, depth)
	}
}

func TestMatcher_NoCross(t *testing.T) {
	ctx := context.Background()
	e, _ := newTestEngine(t)

	trade, err := e.Matcher.MatchTopOrders(ctx, domain.BTCUSD)
	require.NoError(t, err)
	assert.Nil(t, trade)

	bid, _, err := e.Orders.Create(ctx, limit(domain.BTCUSD, domain.Buy, "49000", "1"))
	require.NoError(t, err)
	ask, _, err := e.Orders.Create(ctx, limit(domain.BTCUSD, domain.Sell, "50000", "1"))
	require.NoError(t, err)

	trade, err = e.Matcher.MatchTopOrders(ctx, domain.BTCUSD)
	require.NoError(t, err)
	assert.Nil(t, trade)

	for _, id := range []string{bid.ID, ask.ID} {
		o, err := e.Orders.Get(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, domain.Open, o.Status)
		assert.Equal(t, "1", o.Quantity.String())
	}

	recent, err := e.Matcher.RecentTrades(ctx, domain.BTCUSD, 10)
	require.NoError(t, err)
	assert.Empty(t, recent)
}

func TestTradeLedger_RecentNewestFirst(t *testing.T) {
	ctx := context.Background()
	e, store := newTestEngine(t)

	for i, id := range []string{"t-1", "t-2", "t-3"} {
		require.NoError(t, e.Ledger.Store(ctx, &domain.Trade{
			ID: id, Pair: domain.BTCUSD, BuyOrderID: "b", SellOrderID: "s",
			Price: dec("100"), Quantity: dec("1"), Timestamp: time.UnixMilli(int64(1000 * (i + 1))),
		}))
	}
	// Index entry without a record.
	require.NoError(t, store.ZAdd(ctx, "trades:BTC_USD", 4000, "t-gone"))

	recent, err := e.Ledger.Recent(ctx, domain.BTCUSD, 0)
	require.NoError(t, err)
	ids := make([]string, 0, len(recent))
	for _, tr := range recent {
		ids = append(ids, tr.ID)
	}
	assert.Equal(t, []string{"t-3", "t-2", "t-1"}, ids)

	recent, err = e.Ledger.Recent(ctx, domain.BTCUSD, 2)
	require.NoError(t, err)
	assert.Len(t, recent, 1)

	_, err = e.Ledger.Get(ctx, "t-gone")
	assert.ErrorIs(t, err, domain.ErrTradeNotFound)
}

func TestOrderService_ConcurrentCreateAndMatch(t *testing.T) {
	ctx := context.Background()
	e, _ := newTestEngine(t)

	const n = 20
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, _, err := e.Orders.Create(ctx, limit(domain.BTCUSD, domain.Buy, "100", "1"))
			assert.NoError(t, err)
		}()
		go func() {
			defer wg.Done()
			_, _, err := e.Orders.Create(ctx, limit(domain.BTCUSD, domain.Sell, "100", "1"))
			assert.NoError(t, err)
			_, err = e.Matcher.MatchTopOrders(ctx, domain.BTCUSD)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	for {
		trade, err := e.Matcher.MatchTopOrders(ctx, domain.BTCUSD)
		require.NoError(t, err)
		if trade == nil {
			break
		}
	}

	recent, err := e.Matcher.RecentTrades(ctx, domain.BTCUSD, 2*n)
	require.NoError(t, err)
	assert.Len(t, recent, n)
	for _, side := range []domain.Side{domain.Buy, domain.Sell} {
		depth, err := e.Book.Depth(ctx, domain.BTCUSD, side)
		require.NoError(t, err)
		assert.Zero(t, depth)
	}
}
