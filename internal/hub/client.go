package hub

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/nebulo-im/nebulo/pkg/log"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 54 * time.Second
	maxMessageSize = 8192
	sendBufferSize = 256
)

// Client is one WebSocket connection. A user may hold several at once.
type Client struct {
	ID       string
	UserID   string
	Username string

	hub    *Hub
	conn   *websocket.Conn
	send   chan []byte
	logger zerolog.Logger

	// rooms is guarded by the hub's mutex.
	rooms map[string]struct{}

	closeOnce sync.Once
}

func NewClient(h *Hub, conn *websocket.Conn, logger zerolog.Logger) *Client {
	return &Client{
		ID:     uuid.New().String(),
		hub:    h,
		conn:   conn,
		send:   make(chan []byte, sendBufferSize),
		logger: logger,
		rooms:  make(map[string]struct{}),
	}
}

// Authenticated reports whether the connection has completed the
// authenticate handshake.
func (c *Client) Authenticated() bool {
	return c.UserID != ""
}

// SendEvent marshals and enqueues an event for this connection only.
func (c *Client) SendEvent(event interface{}) {
	payload, err := json.Marshal(event)
	if err != nil {
		c.logger.Error().Err(err).Msg("failed to marshal event")
		return
	}
	if !c.enqueue(payload) {
		c.logger.Warn().Str(log.FieldUserID, c.UserID).Msg("dropping slow connection")
		c.hub.Unregister(c)
	}
}

func (c *Client) enqueue(payload []byte) bool {
	select {
	case c.send <- payload:
		return true
	default:
		return false
	}
}

func (c *Client) closeSend() {
	c.closeOnce.Do(func() {
		close(c.send)
	})
}

// ReadPump reads frames until the connection drops and hands each one
// to handle. It must run in its own goroutine, one per connection.
func (c *Client) ReadPump(handle func(c *Client, payload []byte), onClose func(c *Client)) {
	defer func() {
		onClose(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, payload, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Debug().Err(err).Str(log.FieldUserID, c.UserID).Msg("websocket read error")
			}
			break
		}
		handle(c, payload)
	}
}

// WritePump drains the send queue onto the wire and keeps the
// connection alive with pings. It must run in its own goroutine, one
// per connection.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case payload, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
