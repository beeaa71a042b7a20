package websocket

import (
	"context"
	"log/slog"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/google/uuid"
	"github.com/rx3lixir/watchparty/internal/changefeed"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Send pings to peer with this period
	pingPeriod = 30 * time.Second

	// Maximum message size allowed from peer (clients only talk over REST)
	maxMessageSize = 512

	sendBufferSize = 256
)

// Client represents a single WebSocket connection
type Client struct {
	id     uuid.UUID
	roomID string
	tables map[changefeed.Table]bool
	conn   *websocket.Conn
	hub    *Hub
	send   chan *Message
	log    *slog.Logger

	// closeWith is set by the hub before it closes send and is written
	// to the peer as the last frame
	closeWith *Message
}

// NewClient creates a new client instance
func NewClient(roomID string, tables []changefeed.Table, conn *websocket.Conn, hub *Hub, log *slog.Logger) *Client {
	filter := make(map[changefeed.Table]bool, len(tables))
	for _, t := range tables {
		filter[t] = true
	}
	id := uuid.New()
	return &Client{
		id:     id,
		roomID: roomID,
		tables: filter,
		conn:   conn,
		hub:    hub,
		send:   make(chan *Message, sendBufferSize),
		log:    log.With("client_id", id),
	}
}

// Wants reports whether the client subscribed to table
func (c *Client) Wants(table changefeed.Table) bool {
	return c.tables[table]
}

// trySend queues msg unless the buffer is full
func (c *Client) trySend(msg *Message) bool {
	select {
	case c.send <- msg:
		return true
	default:
		return false
	}
}

func (c *Client) Tables() []changefeed.Table {
	out := make([]changefeed.Table, 0, len(c.tables))
	for _, t := range changefeed.AllTables {
		if c.tables[t] {
			out = append(out, t)
		}
	}
	return out
}

// readPump watches the connection for close frames and errors.
// The application runs readPump in a per-connection goroutine
func (c *Client) readPump(ctx context.Context) {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close(websocket.StatusNormalClosure, "")
	}()

	c.conn.SetReadLimit(maxMessageSize)

	// Nothing is expected from clients, but reading is what processes
	// pongs and notices disconnects
	for {
		_, _, err := c.conn.Read(ctx)
		if err != nil {
			status := websocket.CloseStatus(err)
			if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway {
				c.log.Debug("client disconnected normally", "room_id", c.roomID)
			} else {
				c.log.Warn("websocket read error",
					"room_id", c.roomID,
					"error", err,
				)
			}
			return
		}
	}
}

// writePump pumps messages from the hub to the WebSocket connection.
// The application runs writePump in a per-connection goroutine
func (c *Client) writePump(ctx context.Context) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close(websocket.StatusNormalClosure, "")
	}()

	for {
		select {
		case message, ok := <-c.send:
			if !ok {
				// Hub closed the channel
				c.close(ctx)
				return
			}

			writeCtx, cancel := context.WithTimeout(ctx, writeWait)
			err := wsjson.Write(writeCtx, c.conn, message)
			cancel()

			if err != nil {
				c.log.Error("failed to write message",
					"room_id", c.roomID,
					"error", err,
				)
				return
			}

		case <-ticker.C:
			writeCtx, cancel := context.WithTimeout(ctx, writeWait)
			err := c.conn.Ping(writeCtx)
			cancel()

			if err != nil {
				c.log.Warn("failed to send ping",
					"room_id", c.roomID,
					"error", err,
				)
				return
			}

		case <-ctx.Done():
			return
		}
	}
}

// close ends the connection after the hub dropped the client
func (c *Client) close(ctx context.Context) {
	if c.closeWith == nil {
		c.conn.Close(websocket.StatusGoingAway, "room closed")
		return
	}

	writeCtx, cancel := context.WithTimeout(ctx, writeWait)
	if err := wsjson.Write(writeCtx, c.conn, c.closeWith); err != nil {
		c.log.Debug("failed to write final frame", "error", err)
	}
	cancel()
	c.conn.Close(websocket.StatusPolicyViolation, "dropped by server")
}
