package port

import (
	"context"

	"github.com/olyamironova/trade-gateway/internal/domain"
)

// EventPublisher relays domain events outside the process.
type EventPublisher interface {
	Publish(ctx context.Context, ev domain.Event) error
	Close() error
}

// Archive keeps an audit copy of orders and trades.
type Archive interface {
	SaveOrder(ctx context.Context, o *domain.Order) error
	SaveTrade(ctx context.Context, t *domain.Trade) error
	Close(ctx context.Context)
}
