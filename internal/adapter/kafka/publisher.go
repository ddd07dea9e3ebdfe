package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"

	"github.com/olyamironova/trade-gateway/internal/domain"
	"github.com/olyamironova/trade-gateway/internal/port"
)

var _ port.EventPublisher = (*Publisher)(nil)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Publisher relays domain events to one Kafka topic, keyed by pair so a
// pair's events stay ordered within a partition.
type Publisher struct {
	w   messageWriter
	now func() time.Time
}

// envelope is the JSON value of each message.
type envelope struct {
	Event       domain.EventName `json:"event"`
	Pair        domain.Pair      `json:"pair"`
	Data        interface{}      `json:"data"`
	PublishedAt time.Time        `json:"publishedAt"`
}

// NewPublisher builds an async writer for brokers, a comma separated list.
func NewPublisher(brokers, topic string, log logrus.FieldLogger) *Publisher {
	w := &kafka.Writer{
		Addr:         kafka.TCP(strings.Split(brokers, ",")...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchSize:    100,
		BatchTimeout: 10 * time.Millisecond,
		Async:        true,
		Compression:  kafka.Zstd,
		Completion: func(msgs []kafka.Message, err error) {
			if err != nil {
				log.WithError(err).WithField("messages", len(msgs)).Error("kafka delivery failed")
			}
		},
	}
	return &Publisher{w: w, now: time.Now}
}

func (p *Publisher) Publish(ctx context.Context, ev domain.Event) error {
	msg, err := p.encode(ev)
	if err != nil {
		return err
	}
	if err := p.w.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("kafka: publish %s: %w", ev.EventName(), err)
	}
	return nil
}

func (p *Publisher) Close() error {
	return p.w.Close()
}

func (p *Publisher) encode(ev domain.Event) (kafka.Message, error) {
	value, err := json.Marshal(envelope{
		Event:       ev.EventName(),
		Pair:        ev.EventPair(),
		Data:        payload(ev),
		PublishedAt: p.now().UTC(),
	})
	if err != nil {
		return kafka.Message{}, fmt.Errorf("kafka: encode %s: %w", ev.EventName(), err)
	}
	return kafka.Message{
		Key:   []byte(ev.EventPair()),
		Value: value,
		Headers: []kafka.Header{
			{Key: "event", Value: []byte(ev.EventName())},
		},
	}, nil
}

func payload(ev domain.Event) interface{} {
	switch e := ev.(type) {
	case domain.OrderCreated:
		return e.Order
	case domain.OrderCancelled:
		return e.Order
	case domain.OrderFilled:
		return e.Order
	case domain.TradeExecuted:
		return e.Trade
	default:
		return ev
	}
}
