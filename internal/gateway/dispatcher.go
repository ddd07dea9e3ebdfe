package gateway

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"

	"github.com/olyamironova/trade-gateway/internal/core"
	"github.com/olyamironova/trade-gateway/internal/domain"
	"github.com/olyamironova/trade-gateway/internal/port"
)

var ErrNoConnection = errors.New("subscriptions need a websocket connection")

type Options struct {
	// MatchOnCreate runs one matching pass after an order rests on the book.
	MatchOnCreate bool
	Publisher     port.EventPublisher
	Archive       port.Archive
}

// Dispatcher executes commands against the engine, answers the requester
// and broadcasts book and trade changes to the pair rooms.
type Dispatcher struct {
	orders   *core.OrderService
	matcher  *core.Matcher
	hub      *Hub
	validate *validator.Validate
	opts     Options
	log      logrus.FieldLogger
}

func NewDispatcher(engine *core.Engine, hub *Hub, log logrus.FieldLogger, opts Options) *Dispatcher {
	return &Dispatcher{
		orders:   engine.Orders,
		matcher:  engine.Matcher,
		hub:      hub,
		validate: NewValidator(),
		opts:     opts,
		log:      log,
	}
}

// Dispatch runs cmd on behalf of sub and returns the reply for it. sub is
// nil for requests that do not come over a websocket.
func (d *Dispatcher) Dispatch(ctx context.Context, sub Subscriber, cmd Command) Frame {
	if cmd == nil {
		return failure(domain.EventGatewayError, "gatewayError", ErrUnknownCommand)
	}
	if err := validateCommand(d.validate, cmd); err != nil {
		return failure(domain.EventValidationError, "Invalid request", err)
	}

	switch c := cmd.(type) {
	case CreateOrder:
		return d.createOrder(ctx, c)
	case CancelOrder:
		return d.transition(ctx, c.OrderID, domain.Cancelled)
	case FillOrder:
		return d.transition(ctx, c.OrderID, domain.Filled)
	case MatchTopOrders:
		return d.matchTopOrders(ctx, c.Pair)
	case GetRecentTrades:
		return d.recentTrades(ctx, c)
	case Subscribe:
		return d.subscribe(sub, c.Pair)
	case Unsubscribe:
		return d.unsubscribe(sub, c.Pair)
	case GetTopOrderBook:
		return d.topOrderBook(ctx, c)
	default:
		return failure(domain.EventGatewayError, "gatewayError", fmt.Errorf("%w: %T", ErrUnknownCommand, cmd))
	}
}

func (d *Dispatcher) createOrder(ctx context.Context, c CreateOrder) Frame {
	typ := c.Type
	if typ == "" {
		typ = domain.Limit
	}
	o, trade, err := d.orders.Create(ctx, core.CreateOrder{
		Pair:     c.Pair,
		Side:     c.Side,
		Type:     typ,
		Price:    c.Price,
		Quantity: c.Quantity,
	})
	if err != nil {
		return d.fail(domain.EventGatewayError, "createOrder error", err)
	}

	d.relay(ctx, domain.OrderCreated{Order: o})
	d.archiveOrder(ctx, o)
	d.hub.Broadcast(o.Pair, success(domain.EventOrderBookUpdate, domain.EventOrderCreated, "An order has been created.", o))

	if trade != nil {
		d.tradeExecuted(ctx, trade)
	} else if d.opts.MatchOnCreate && o.Status == domain.Open {
		trade, err := d.matcher.MatchTopOrders(ctx, o.Pair)
		if err != nil {
			d.log.WithError(err).WithField("pair", o.Pair).Error("auto match")
		} else if trade != nil {
			d.tradeExecuted(ctx, trade)
		}
	}
	return success(domain.EventOrderCreated, domain.EventOrderCreated, "Order has been created.", o)
}

func (d *Dispatcher) transition(ctx context.Context, id string, to domain.OrderStatus) Frame {
	var (
		o   *domain.Order
		err error
	)
	event, verb := domain.EventOrderFilled, "filled"
	if to == domain.Cancelled {
		o, err = d.orders.Cancel(ctx, id)
		event, verb = domain.EventOrderCancelled, "cancelled"
	} else {
		o, err = d.orders.Fill(ctx, id)
	}
	if errors.Is(err, domain.ErrOrderNotFound) {
		return failure(domain.EventOrderError, fmt.Sprintf("Order %s not found or can't be %s", id, verb), err)
	}
	if err != nil {
		return d.fail(domain.EventGatewayError, string(event)+" error", err)
	}

	if to == domain.Cancelled {
		d.relay(ctx, domain.OrderCancelled{Order: o})
	} else {
		d.relay(ctx, domain.OrderFilled{Order: o})
	}
	d.archiveOrder(ctx, o)
	msg := "An Order has been " + verb + "."
	d.hub.Broadcast(o.Pair, success(domain.EventOrderBookUpdate, event, msg, o))
	return success(event, event, msg, o)
}

func (d *Dispatcher) matchTopOrders(ctx context.Context, pair domain.Pair) Frame {
	trade, err := d.matcher.MatchTopOrders(ctx, pair)
	if err != nil {
		return d.fail(domain.EventTradeError, "matchTopOrders error", err)
	}
	if trade == nil {
		return success(domain.EventNoTrade, domain.EventNoTrade, "No matching orders", pair)
	}
	d.tradeExecuted(ctx, trade)
	return success(domain.EventTradeExecuted, domain.EventTradeExecuted, "Trade has been executed", trade)
}

// tradeExecuted relays a trade and tells the room about it.
func (d *Dispatcher) tradeExecuted(ctx context.Context, t *domain.Trade) {
	d.relay(ctx, domain.TradeExecuted{Trade: t})
	if d.opts.Archive != nil {
		if err := d.opts.Archive.SaveTrade(ctx, t); err != nil {
			d.log.WithError(err).WithField("trade", t.ID).Warn("archive trade")
		}
		for _, id := range []string{t.BuyOrderID, t.SellOrderID} {
			if o, err := d.orders.Get(ctx, id); err == nil {
				d.archiveOrder(ctx, o)
			}
		}
	}
	d.hub.Broadcast(t.Pair, success(domain.EventTradeUpdate, domain.EventTradeExecuted,
		"A trade has been executed for the pair "+string(t.Pair), t))
}

func (d *Dispatcher) recentTrades(ctx context.Context, c GetRecentTrades) Frame {
	trades, err := d.matcher.RecentTrades(ctx, c.Pair, c.Limit)
	if err != nil {
		return d.fail(domain.EventTradeError, "getRecentTrades error", err)
	}
	data := domain.RecentTrades{Pair: c.Pair, Trades: trades}
	return success(domain.EventRecentTrades, domain.EventRecentTrades, "Recent trades", data)
}

func (d *Dispatcher) subscribe(sub Subscriber, pair domain.Pair) Frame {
	if sub == nil {
		return failure(domain.EventSubscriptionError, "Cannot subscribe", ErrNoConnection)
	}
	if err := d.hub.Subscribe(sub, pair); err != nil {
		return failure(domain.EventSubscriptionError, "You already subscribed to "+string(pair), err)
	}
	return success(domain.EventSubscribed, domain.EventSubscribed, "Subscribing to "+string(pair)+" pair is successful", pair)
}

func (d *Dispatcher) unsubscribe(sub Subscriber, pair domain.Pair) Frame {
	if sub == nil {
		return failure(domain.EventSubscriptionError, "Cannot unsubscribe", ErrNoConnection)
	}
	if err := d.hub.Unsubscribe(sub, pair); err != nil {
		return failure(domain.EventSubscriptionError, "You are not subscribed to "+string(pair), err)
	}
	return success(domain.EventUnsubscribed, domain.EventUnsubscribed, "Unsubscribing from "+string(pair)+" pair is successful", pair)
}

func (d *Dispatcher) topOrderBook(ctx context.Context, c GetTopOrderBook) Frame {
	f, err := topOrderBook(ctx, d.orders, c.Pair, c.Limit)
	if err != nil {
		return d.fail(domain.EventGatewayError, "getTopOrderBook error", err)
	}
	return f
}

// fail logs an unexpected error and wraps it in an error frame.
func (d *Dispatcher) fail(event domain.EventName, msg string, err error) Frame {
	if errors.Is(err, domain.ErrUnsupportedPair) {
		return failure(domain.EventValidationError, msg, err)
	}
	d.log.WithError(err).WithField("event", event).Error(msg)
	return failure(event, msg, err)
}

func (d *Dispatcher) relay(ctx context.Context, ev domain.Event) {
	if d.opts.Publisher == nil {
		return
	}
	if err := d.opts.Publisher.Publish(ctx, ev); err != nil {
		d.log.WithError(err).WithFields(logrus.Fields{"event": ev.EventName(), "pair": ev.EventPair()}).
			Warn("publish event")
	}
}

func (d *Dispatcher) archiveOrder(ctx context.Context, o *domain.Order) {
	if d.opts.Archive == nil {
		return
	}
	if err := d.opts.Archive.SaveOrder(ctx, o); err != nil {
		d.log.WithError(err).WithField("order", o.ID).Warn("archive order")
	}
}
