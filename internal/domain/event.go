package domain

// EventName is the wire name of an event, shared by every transport.
type EventName string

const (
	EventOrderCreated    EventName = "orderCreated"
	EventOrderCancelled  EventName = "orderCancelled"
	EventOrderFilled     EventName = "orderFilled"
	EventOrderBookUpdate EventName = "orderBookUpdate"
	EventSubscribed      EventName = "subscribed"
	EventUnsubscribed    EventName = "unsubscribed"
	EventTopOrderBook    EventName = "topOrderBook"
	EventNoTrade         EventName = "noTrade"
	EventTradeExecuted   EventName = "tradeExecuted"
	EventRecentTrades    EventName = "recentTrades"
	EventTradeUpdate     EventName = "tradeUpdate"

	EventOrderError        EventName = "orderError"
	EventOrderBookError    EventName = "orderBookError"
	EventGatewayError      EventName = "gatewayError"
	EventSubscriptionError EventName = "subscriptionError"
	EventTradeError        EventName = "tradeError"
	EventValidationError   EventName = "validationError"
)

// Event is a domain event handed to the transport layer and the relays.
type Event interface {
	EventName() EventName
	EventPair() Pair
}

type OrderCreated struct{ Order *Order }
type OrderCancelled struct{ Order *Order }
type OrderFilled struct{ Order *Order }

type TradeExecuted struct{ Trade *Trade }

type TopOrderBook struct {
	Pair Pair     `json:"pair"`
	Bids []*Order `json:"bids"`
	Asks []*Order `json:"asks"`
}

type RecentTrades struct {
	Pair   Pair     `json:"pair"`
	Trades []*Trade `json:"trades"`
}

func (e OrderCreated) EventName() EventName   { return EventOrderCreated }
func (e OrderCancelled) EventName() EventName { return EventOrderCancelled }
func (e OrderFilled) EventName() EventName    { return EventOrderFilled }
func (e TradeExecuted) EventName() EventName  { return EventTradeExecuted }
func (e TopOrderBook) EventName() EventName   { return EventTopOrderBook }
func (e RecentTrades) EventName() EventName   { return EventRecentTrades }

func (e OrderCreated) EventPair() Pair   { return e.Order.Pair }
func (e OrderCancelled) EventPair() Pair { return e.Order.Pair }
func (e OrderFilled) EventPair() Pair    { return e.Order.Pair }
func (e TradeExecuted) EventPair() Pair  { return e.Trade.Pair }
func (e TopOrderBook) EventPair() Pair   { return e.Pair }
func (e RecentTrades) EventPair() Pair   { return e.Pair }
