package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/olyamironova/trade-gateway/internal/domain"
	"github.com/olyamironova/trade-gateway/internal/gateway"
	"github.com/olyamironova/trade-gateway/internal/middleware"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 30 * time.Second
	maxMessageSize = 64 << 10
	sendBuffer     = 64
)

var errRateLimited = errors.New("rate limit exceeded")

// inbound is a client frame.
type inbound struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// Handler upgrades HTTP requests to websocket sessions and feeds their
// frames to the dispatcher.
type Handler struct {
	dispatcher *gateway.Dispatcher
	hub        *gateway.Hub
	limiter    *middleware.RateLimiter
	upgrader   websocket.Upgrader
	log        logrus.FieldLogger
}

func NewHandler(d *gateway.Dispatcher, hub *gateway.Hub, limiter *middleware.RateLimiter, log logrus.FieldLogger) *Handler {
	return &Handler{
		dispatcher: d,
		hub:        hub,
		limiter:    limiter,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		log: log,
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.WithError(err).Debug("websocket upgrade")
		return
	}
	c := &client{
		id:   uuid.NewString(),
		conn: conn,
		send: make(chan gateway.Frame, sendBuffer),
		done: make(chan struct{}),
	}
	log := h.log.WithField("client", c.id)
	log.Debug("client connected")

	go c.writeLoop(log)
	h.readLoop(c, log)

	h.hub.Leave(c)
	c.close()
	log.Debug("client disconnected")
}

func (h *Handler) readLoop(c *client, log logrus.FieldLogger) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, msg, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.WithError(err).Warn("websocket read")
			}
			return
		}
		reply(c, h.handle(ctx, c, msg), log)
	}
}

// reply queues f for the requester and logs it when the queue is full.
func reply(c *client, f gateway.Frame, log logrus.FieldLogger) {
	if !c.Send(f) {
		log.WithField("event", f.Event).Warn("dropped reply for slow client")
	}
}

func (h *Handler) handle(ctx context.Context, c *client, msg []byte) gateway.Frame {
	if h.limiter != nil && !h.limiter.Allow(c.id) {
		return gateway.ErrorFrame(domain.EventGatewayError, "Too many requests", errRateLimited)
	}
	var in inbound
	if err := json.Unmarshal(msg, &in); err != nil {
		return gateway.ErrorFrame(domain.EventValidationError, "Malformed frame", err)
	}
	cmd, err := gateway.ParseCommand(in.Event, in.Data)
	if err != nil {
		return gateway.ErrorFrame(domain.EventValidationError, "Invalid request", err)
	}
	return h.dispatcher.Dispatch(ctx, c, cmd)
}

// client is one websocket session. Frames are queued on send and written
// by a single writer goroutine.
type client struct {
	id   string
	conn *websocket.Conn
	send chan gateway.Frame

	done      chan struct{}
	closeOnce sync.Once
}

func (c *client) ID() string { return c.id }

func (c *client) Send(f gateway.Frame) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- f:
		return true
	default:
		return false
	}
}

func (c *client) close() {
	c.closeOnce.Do(func() { close(c.done) })
}

func (c *client) writeLoop(log logrus.FieldLogger) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case f := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(f); err != nil {
				log.WithError(err).Debug("websocket write")
				c.close()
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.close()
				return
			}
		case <-c.done:
			_ = c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
			return
		}
	}
}
