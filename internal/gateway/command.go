package gateway

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/olyamironova/trade-gateway/internal/domain"
)

var ErrUnknownCommand = errors.New("unknown command")

// Command is a request a client can make. The set of variants is closed.
type Command interface {
	commandName() string
}

type CreateOrder struct {
	Pair     domain.Pair      `json:"pair" validate:"required,pair"`
	Side     domain.Side      `json:"side" validate:"required,oneof=BUY SELL"`
	Type     domain.OrderType `json:"orderType" validate:"omitempty,oneof=LIMIT MARKET"`
	Price    decimal.Decimal  `json:"price" validate:"required_unless=Type MARKET,gte=0"`
	Quantity decimal.Decimal  `json:"quantity" validate:"gt=0"`
}

type CancelOrder struct {
	OrderID string `json:"orderId" validate:"required"`
}

type FillOrder struct {
	OrderID string `json:"orderId" validate:"required"`
}

type MatchTopOrders struct {
	Pair domain.Pair `json:"pair" validate:"required,pair"`
}

type GetRecentTrades struct {
	Pair  domain.Pair `json:"pair" validate:"required,pair"`
	Limit int         `json:"limit" validate:"gte=0"`
}

type Subscribe struct {
	Pair domain.Pair `json:"pair" validate:"required,pair"`
}

type Unsubscribe struct {
	Pair domain.Pair `json:"pair" validate:"required,pair"`
}

type GetTopOrderBook struct {
	Pair  domain.Pair `json:"pair" validate:"required,pair"`
	Limit int         `json:"limit" validate:"gte=0"`
}

func (CreateOrder) commandName() string     { return "createOrder" }
func (CancelOrder) commandName() string     { return "cancelOrder" }
func (FillOrder) commandName() string       { return "fillOrder" }
func (MatchTopOrders) commandName() string  { return "matchTopOrders" }
func (GetRecentTrades) commandName() string { return "getRecentTrades" }
func (Subscribe) commandName() string       { return "subscribePair" }
func (Unsubscribe) commandName() string     { return "unsubscribePair" }
func (GetTopOrderBook) commandName() string { return "getTopOrderBook" }

// ParseCommand decodes the data of a client frame named event.
func ParseCommand(event string, data json.RawMessage) (Command, error) {
	switch event {
	case "createOrder":
		return decode[CreateOrder](event, data)
	case "cancelOrder":
		return decode[CancelOrder](event, data)
	case "fillOrder":
		return decode[FillOrder](event, data)
	case "matchTopOrders":
		return decode[MatchTopOrders](event, data)
	case "getRecentTrades":
		return decode[GetRecentTrades](event, data)
	case "subscribePair":
		return decode[Subscribe](event, data)
	case "unsubscribePair":
		return decode[Unsubscribe](event, data)
	case "getTopOrderBook":
		return decode[GetTopOrderBook](event, data)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownCommand, event)
	}
}

func decode[T Command](event string, data json.RawMessage) (Command, error) {
	var cmd T
	if len(data) == 0 || string(data) == "null" {
		return cmd, nil
	}
	if err := json.Unmarshal(data, &cmd); err != nil {
		return nil, &ValidationError{msg: fmt.Sprintf("%s: malformed data: %v", event, err)}
	}
	return cmd, nil
}
