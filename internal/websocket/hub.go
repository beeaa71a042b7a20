package websocket

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/rx3lixir/watchparty/internal/changefeed"
)

const (
	defaultHealthCheckPeriod = 30 * time.Second
	defaultIdleTimeout       = 5 * time.Minute
)

// Error frame codes
const (
	ErrCodeSlowConsumer    = "slow_consumer"
	ErrCodeFeedUnavailable = "feed_unavailable"
)

// Hub fans one room's change feed out to the room's connected clients
type Hub struct {
	// Room identifier
	roomID string

	// Registered clients (only accessed by hub goroutine)
	clients map[*Client]bool

	// Events from the change feed
	broadcast chan changefeed.Event

	// Register requests from clients
	register chan *Client

	// Unregister requests from clients
	unregister chan *Client

	// Shutdown signal
	shutdown     chan struct{}
	shutdownOnce sync.Once

	// Closed once Run has returned
	done chan struct{}

	// Called from Run when the hub has been empty for idleTimeout.
	// Run returns right after it
	onIdle            func(*Hub)
	healthCheckPeriod time.Duration
	idleTimeout       time.Duration

	// Tables whose feed subscription failed (only accessed by hub goroutine)
	unavailable []changefeed.Table

	metricsMu sync.Mutex
	metrics   HubMetrics

	log *slog.Logger
}

type HubMetrics struct {
	ConnectedClients int
	MessagesSent     int64
	MessagesDropped  int64
	LastActivity     time.Time
}

func NewHub(roomID string, log *slog.Logger, onIdle func(*Hub)) *Hub {
	return &Hub{
		roomID:     roomID,
		clients:    make(map[*Client]bool),
		broadcast:  make(chan changefeed.Event, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		shutdown:   make(chan struct{}),
		done:       make(chan struct{}),
		onIdle:     onIdle,

		healthCheckPeriod: defaultHealthCheckPeriod,
		idleTimeout:       defaultIdleTimeout,

		metrics: HubMetrics{LastActivity: time.Now()},
		log:     log.With("room_id", roomID),
	}
}

// Run subscribes to the room's tables and then handles ALL state changes
// sequentially until Shutdown or ctx is done
func (h *Hub) Run(ctx context.Context, feed changefeed.Feed) {
	defer close(h.done)

	subCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	for _, table := range changefeed.AllTables {
		if _, err := feed.Subscribe(subCtx, h.roomID, table, h.Send); err != nil {
			h.log.Error("hub failed to subscribe", "table", table, "error", err)
			h.unavailable = append(h.unavailable, table)
		}
	}

	ticker := time.NewTicker(h.healthCheckPeriod)
	defer ticker.Stop()

	for {
		select {
		case client := <-h.register:
			h.handleRegister(client)

		case client := <-h.unregister:
			h.handleUnregister(client)

		case e := <-h.broadcast:
			h.handleBroadcast(e)

		case <-ticker.C:
			if h.handleHealthCheck() {
				h.handleShutdown()
				return
			}

		case <-h.shutdown:
			h.handleShutdown()
			return

		case <-ctx.Done():
			h.handleShutdown()
			return
		}
	}
}

// Register adds a client. It returns false if the hub has already stopped
func (h *Hub) Register(c *Client) bool {
	select {
	case h.register <- c:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) Unregister(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

func (h *Hub) handleRegister(client *Client) {
	h.clients[client] = true
	h.touch(func(m *HubMetrics) { m.ConnectedClients = len(h.clients) })

	h.log.Info("client registered",
		"client_id", client.id,
		"tables", client.Tables(),
		"total_clients", len(h.clients),
	)

	client.send <- NewConnected(h.roomID, client.id, client.Tables())

	for _, table := range h.unavailable {
		if client.Wants(table) {
			client.trySend(NewError(ErrCodeFeedUnavailable, "live updates unavailable for "+string(table)))
		}
	}
}

func (h *Hub) handleUnregister(client *Client) {
	if _, ok := h.clients[client]; ok {
		delete(h.clients, client)
		close(client.send) // Signal client to stop
		h.touch(func(m *HubMetrics) { m.ConnectedClients = len(h.clients) })

		h.log.Info("client unregistered",
			"client_id", client.id,
			"remaining_clients", len(h.clients),
		)
	}
}

func (h *Hub) handleBroadcast(e changefeed.Event) {
	msg := NewChange(e)

	var sent, dropped int64
	for client := range h.clients {
		if !client.Wants(e.Table) {
			continue
		}
		select {
		case client.send <- msg:
			sent++
		default:
			// Client is too slow, disconnect it
			h.log.Warn("client buffer full, disconnecting", "client_id", client.id)
			dropped++
			client.closeWith = NewError(ErrCodeSlowConsumer, "client too slow, disconnected")
			h.handleUnregister(client)
		}
	}

	h.touch(func(m *HubMetrics) {
		m.MessagesSent += sent
		m.MessagesDropped += dropped
	})
}

// handleHealthCheck reports whether the hub went idle and must stop
func (h *Hub) handleHealthCheck() bool {
	stats := h.Stats()
	if len(h.clients) > 0 || time.Since(stats.LastActivity) <= h.idleTimeout || h.onIdle == nil {
		return false
	}

	h.log.Info("hub idle, cleaning up")
	h.onIdle(h)
	return true
}

func (h *Hub) handleShutdown() {
	h.log.Info("shutting down hub")

	for client := range h.clients {
		close(client.send)
	}
	h.clients = nil
}

// Send queues a change event for broadcast. It never blocks the feed
func (h *Hub) Send(e changefeed.Event) {
	select {
	case h.broadcast <- e:
	default:
		h.log.Error("hub broadcast channel full", "table", e.Table)
		h.touch(func(m *HubMetrics) { m.MessagesDropped++ })
	}
}

func (h *Hub) Shutdown() {
	h.shutdownOnce.Do(func() { close(h.shutdown) })
}

// Done is closed when the hub has stopped
func (h *Hub) Done() <-chan struct{} {
	return h.done
}

func (h *Hub) Stats() HubMetrics {
	h.metricsMu.Lock()
	defer h.metricsMu.Unlock()
	return h.metrics
}

func (h *Hub) touch(update func(*HubMetrics)) {
	h.metricsMu.Lock()
	defer h.metricsMu.Unlock()
	update(&h.metrics)
	h.metrics.LastActivity = time.Now()
}
