package websocket

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/rx3lixir/watchparty/internal/changefeed"
)

// Manager owns one Hub per room with connected clients
type Manager struct {
	mu   sync.Mutex
	hubs map[string]*Hub

	feed           changefeed.Feed
	originPatterns []string

	// copied into every new hub
	healthCheckPeriod time.Duration
	idleTimeout       time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	log    *slog.Logger
}

// NewManager creates a manager whose hubs read from feed. originPatterns
// are passed to the websocket handshake; empty means same-origin only
func NewManager(feed changefeed.Feed, originPatterns []string, log *slog.Logger) *Manager {
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		hubs:           make(map[string]*Hub),
		feed:           feed,
		originPatterns: originPatterns,

		healthCheckPeriod: defaultHealthCheckPeriod,
		idleTimeout:       defaultIdleTimeout,

		ctx:    ctx,
		cancel: cancel,
		log:    log,
	}
}

// GetOrCreateHub returns existing hub or creates and starts a new one
func (m *Manager) GetOrCreateHub(roomID string) *Hub {
	m.mu.Lock()
	defer m.mu.Unlock()

	if hub, ok := m.hubs[roomID]; ok {
		return hub
	}

	hub := NewHub(roomID, m.log, m.removeHub)
	hub.healthCheckPeriod = m.healthCheckPeriod
	hub.idleTimeout = m.idleTimeout
	m.hubs[roomID] = hub

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		hub.Run(m.ctx, m.feed)
	}()

	m.log.Info("created new hub", "room_id", roomID)
	return hub
}

func (m *Manager) removeHub(hub *Hub) {
	m.mu.Lock()
	if m.hubs[hub.roomID] == hub {
		delete(m.hubs, hub.roomID)
	}
	m.mu.Unlock()

	hub.Shutdown()
}

// ServeWS upgrades the request and attaches the connection to the room's hub.
// It blocks until the connection is closed
func (m *Manager) ServeWS(w http.ResponseWriter, r *http.Request, roomID string, tables []changefeed.Table) error {
	// the server's read/write timeouts must not apply to a long-lived socket
	rc := http.NewResponseController(w)
	_ = rc.SetReadDeadline(time.Time{})
	_ = rc.SetWriteDeadline(time.Time{})

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: m.originPatterns,
	})
	if err != nil {
		return fmt.Errorf("failed to accept websocket: %w", err)
	}

	// a hub found in the map may be stopping after an idle check, retry once
	var client *Client
	for attempt := 0; attempt < 2 && client == nil; attempt++ {
		hub := m.GetOrCreateHub(roomID)
		c := NewClient(roomID, tables, conn, hub, m.log)
		if hub.Register(c) {
			client = c
		} else {
			m.removeHub(hub)
		}
	}
	if client == nil {
		conn.Close(websocket.StatusTryAgainLater, "room unavailable")
		return fmt.Errorf("no hub available for room %s", roomID)
	}

	ctx, cancel := context.WithCancel(m.ctx)
	defer cancel()

	go client.writePump(ctx)
	client.readPump(ctx)

	return nil
}

type Stats struct {
	Hubs    int `json:"hubs"`
	Clients int `json:"clients"`
}

func (m *Manager) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := Stats{Hubs: len(m.hubs)}
	for _, hub := range m.hubs {
		s.Clients += hub.Stats().ConnectedClients
	}
	return s
}

// Shutdown stops every hub, which closes every client connection
func (m *Manager) Shutdown() {
	m.cancel()
	m.wg.Wait()

	m.mu.Lock()
	m.hubs = make(map[string]*Hub)
	m.mu.Unlock()

	m.log.Info("websocket manager stopped")
}
