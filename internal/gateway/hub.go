package gateway

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/olyamironova/trade-gateway/internal/domain"
)

var (
	ErrAlreadySubscribed = errors.New("already subscribed")
	ErrNotSubscribed     = errors.New("not subscribed")
)

// Subscriber is a connected client that can join pair rooms. Send must not
// block; it reports false when the frame was dropped.
type Subscriber interface {
	ID() string
	Send(f Frame) bool
}

// BookReader is the read side of the order book the broadcaster needs.
type BookReader interface {
	TopBids(ctx context.Context, pair domain.Pair, limit int) ([]*domain.Order, error)
	TopAsks(ctx context.Context, pair domain.Pair, limit int) ([]*domain.Order, error)
}

// Hub tracks pair rooms and runs one top-of-book broadcaster per room with
// at least one member.
type Hub struct {
	book     BookReader
	interval time.Duration
	log      logrus.FieldLogger

	mu           sync.Mutex
	rooms        map[domain.Pair]map[string]Subscriber
	broadcasters map[domain.Pair]context.CancelFunc

	base   context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewHub(book BookReader, interval time.Duration, log logrus.FieldLogger) *Hub {
	base, cancel := context.WithCancel(context.Background())
	return &Hub{
		book:         book,
		interval:     interval,
		log:          log,
		rooms:        make(map[domain.Pair]map[string]Subscriber),
		broadcasters: make(map[domain.Pair]context.CancelFunc),
		base:         base,
		cancel:       cancel,
	}
}

// Subscribe adds s to the room of pair, starting its broadcaster when s is
// the first member.
func (h *Hub) Subscribe(s Subscriber, pair domain.Pair) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	room, ok := h.rooms[pair]
	if !ok {
		room = make(map[string]Subscriber)
		h.rooms[pair] = room
	}
	if _, ok := room[s.ID()]; ok {
		return fmt.Errorf("%w to %s", ErrAlreadySubscribed, pair)
	}
	room[s.ID()] = s
	if len(room) == 1 {
		h.startLocked(pair)
	}
	h.log.WithFields(logrus.Fields{"client": s.ID(), "pair": pair}).Info("joined room")
	return nil
}

// Unsubscribe removes s from the room of pair, stopping its broadcaster
// when the room empties.
func (h *Hub) Unsubscribe(s Subscriber, pair domain.Pair) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.leaveLocked(s.ID(), pair) {
		return fmt.Errorf("%w to %s", ErrNotSubscribed, pair)
	}
	h.log.WithFields(logrus.Fields{"client": s.ID(), "pair": pair}).Info("left room")
	return nil
}

// Leave drops s from every room. Called on disconnect.
func (h *Hub) Leave(s Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for pair := range h.rooms {
		h.leaveLocked(s.ID(), pair)
	}
}

func (h *Hub) leaveLocked(id string, pair domain.Pair) bool {
	room, ok := h.rooms[pair]
	if !ok {
		return false
	}
	if _, ok := room[id]; !ok {
		return false
	}
	delete(room, id)
	if len(room) == 0 {
		delete(h.rooms, pair)
		h.stopLocked(pair)
	}
	return true
}

// Broadcast sends f to every member of the room of pair.
func (h *Hub) Broadcast(pair domain.Pair, f Frame) {
	h.mu.Lock()
	members := make([]Subscriber, 0, len(h.rooms[pair]))
	for _, s := range h.rooms[pair] {
		members = append(members, s)
	}
	h.mu.Unlock()

	for _, s := range members {
		if !s.Send(f) {
			h.log.WithFields(logrus.Fields{"client": s.ID(), "pair": pair, "event": f.Event}).
				Warn("dropped frame for slow client")
		}
	}
}

// Subscribers is the size of the room of pair.
func (h *Hub) Subscribers(pair domain.Pair) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.rooms[pair])
}

// Broadcasting reports whether the broadcaster of pair is running.
func (h *Hub) Broadcasting(pair domain.Pair) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	_, ok := h.broadcasters[pair]
	return ok
}

// Run blocks until ctx is done and then stops every broadcaster.
func (h *Hub) Run(ctx context.Context) error {
	<-ctx.Done()
	h.Close()
	return nil
}

func (h *Hub) Close() {
	h.cancel()
	h.mu.Lock()
	for pair, stop := range h.broadcasters {
		stop()
		delete(h.broadcasters, pair)
	}
	h.mu.Unlock()
	h.wg.Wait()
}

func (h *Hub) startLocked(pair domain.Pair) {
	if _, ok := h.broadcasters[pair]; ok {
		return
	}
	ctx, cancel := context.WithCancel(h.base)
	h.broadcasters[pair] = cancel
	h.wg.Add(1)
	go h.broadcast(ctx, pair)
	h.log.WithField("pair", pair).Debug("broadcaster started")
}

func (h *Hub) stopLocked(pair domain.Pair) {
	stop, ok := h.broadcasters[pair]
	if !ok {
		return
	}
	stop()
	delete(h.broadcasters, pair)
	h.log.WithField("pair", pair).Debug("broadcaster stopped")
}

func (h *Hub) broadcast(ctx context.Context, pair domain.Pair) {
	defer h.wg.Done()
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			f, err := topOrderBook(ctx, h.book, pair, 0)
			if err != nil {
				if ctx.Err() == nil {
					h.log.WithError(err).WithField("pair", pair).Error("top of book broadcast")
				}
				continue
			}
			h.Broadcast(pair, f)
		}
	}
}

func topOrderBook(ctx context.Context, book BookReader, pair domain.Pair, limit int) (Frame, error) {
	bids, err := book.TopBids(ctx, pair, limit)
	if err != nil {
		return Frame{}, err
	}
	asks, err := book.TopAsks(ctx, pair, limit)
	if err != nil {
		return Frame{}, err
	}
	top := domain.TopOrderBook{Pair: pair, Bids: bids, Asks: asks}
	return success(domain.EventTopOrderBook, domain.EventTopOrderBook, "Top of the order book for "+string(pair), top), nil
}
