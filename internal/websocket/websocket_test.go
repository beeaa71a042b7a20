package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/go-chi/chi/v5"
	"github.com/rx3lixir/watchparty/internal/changefeed"
	"github.com/rx3lixir/watchparty/internal/room"
	"github.com/rx3lixir/watchparty/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testServer struct {
	srv     *httptest.Server
	broker  *changefeed.Broker
	manager *Manager
	store   *room.MemoryStore
}

func newTestServer(t *testing.T, opts ...func(*Manager)) *testServer {
	t.Helper()
	log := logger.Discard()
	broker := changefeed.NewBroker(log, 16)
	store := room.NewMemoryStore()
	manager := NewManager(broker, nil, log)
	for _, opt := range opts {
		opt(manager)
	}

	r := chi.NewRouter()
	r.Route("/ws", NewHandler(manager, store, time.Second, log).RegisterRoutes)
	srv := httptest.NewServer(r)

	t.Cleanup(func() {
		manager.Shutdown()
		srv.Close()
		broker.Close()
	})
	return &testServer{srv, broker, manager, store}
}

func (ts *testServer) url(query string) string {
	return "ws" + strings.TrimPrefix(ts.srv.URL, "http") + "/ws?" + query
}

func (ts *testServer) createRoom(t *testing.T) *room.Room {
	t.Helper()
	r, err := ts.store.CreateRoom(context.Background(), "https://youtu.be/dQw4w9WgXcQ")
	require.NoError(t, err)
	return r
}

func readMessage(t *testing.T, ctx context.Context, conn *websocket.Conn) IncomingMessage {
	t.Helper()
	var msg IncomingMessage
	require.NoError(t, wsjson.Read(ctx, conn, &msg))
	return msg
}

func publish(t *testing.T, b *changefeed.Broker, table changefeed.Table, roomID string, record any) {
	t.Helper()
	e, err := changefeed.NewEvent(table, changefeed.OpInsert, roomID, record)
	require.NoError(t, err)
	b.Publish(e)
}

func TestClientReceivesOnlyItsRoomAndTables(t *testing.T) {
	ts := newTestServer(t)
	r := ts.createRoom(t)
	other := ts.createRoom(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, ts.url("room_id="+r.ID+"&tables=messages"), nil)
	require.NoError(t, err)
	defer conn.CloseNow()

	hello := readMessage(t, ctx, conn)
	require.Equal(t, MessageTypeConnected, hello.Type)
	var connected ConnectedData
	require.NoError(t, json.Unmarshal(hello.Data, &connected))
	assert.Equal(t, r.ID, connected.RoomID)
	assert.Equal(t, []changefeed.Table{changefeed.TableMessages}, connected.Tables)

	publish(t, ts.broker, changefeed.TableVideoState, r.ID, map[string]any{"position": 1})
	publish(t, ts.broker, changefeed.TableMessages, other.ID, map[string]any{"message": "elsewhere"})
	publish(t, ts.broker, changefeed.TableMessages, r.ID, map[string]any{"message": "hello"})

	msg := readMessage(t, ctx, conn)
	require.Equal(t, MessageTypeChange, msg.Type)
	assert.NotZero(t, msg.Timestamp)

	var e changefeed.Event
	require.NoError(t, json.Unmarshal(msg.Data, &e))
	assert.Equal(t, changefeed.TableMessages, e.Table)
	assert.Equal(t, r.ID, e.RoomID)
	assert.JSONEq(t, `{"message":"hello"}`, string(e.Record))

	stats := ts.manager.Stats()
	assert.Equal(t, 1, stats.Hubs)
	assert.Equal(t, 1, stats.Clients)
}

func TestHandshakeRejections(t *testing.T) {
	ts := newTestServer(t)
	r := ts.createRoom(t)
	ctx := context.Background()

	_, resp, err := websocket.Dial(ctx, ts.url("room_id=missing"), nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	_, resp, err = websocket.Dial(ctx, ts.url("room_id="+r.ID+"&tables=users"), nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	_, resp, err = websocket.Dial(ctx, ts.url(""), nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestClientDisconnectUnregisters(t *testing.T) {
	ts := newTestServer(t)
	r := ts.createRoom(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, ts.url("room_id="+r.ID), nil)
	require.NoError(t, err)
	readMessage(t, ctx, conn)

	conn.Close(websocket.StatusNormalClosure, "bye")

	require.Eventually(t, func() bool {
		return ts.manager.Stats().Clients == 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestShutdownClosesClients(t *testing.T) {
	ts := newTestServer(t)
	r := ts.createRoom(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, ts.url("room_id="+r.ID), nil)
	require.NoError(t, err)
	defer conn.CloseNow()
	readMessage(t, ctx, conn)

	ts.manager.Shutdown()

	var msg IncomingMessage
	err = wsjson.Read(ctx, conn, &msg)
	assert.Error(t, err)
}

// connPair returns the server and client ends of one websocket connection
func connPair(t *testing.T) (server, client *websocket.Conn) {
	t.Helper()
	accepted := make(chan *websocket.Conn, 1)
	release := make(chan struct{})

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		accepted <- conn
		<-release
	}))
	t.Cleanup(srv.Close)
	t.Cleanup(func() { close(release) })

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	client, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { client.CloseNow() })

	select {
	case server = <-accepted:
	case <-ctx.Done():
		t.Fatal("server never accepted the connection")
	}
	t.Cleanup(func() { server.CloseNow() })
	return server, client
}

func runHub(t *testing.T, hub *Hub, feed changefeed.Feed) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx, feed)
	t.Cleanup(func() {
		cancel()
		<-hub.Done()
	})
}

func TestSlowClientIsDropped(t *testing.T) {
	log := logger.Discard()
	broker := changefeed.NewBroker(log, 8)
	t.Cleanup(broker.Close)

	serverConn, clientConn := connPair(t)

	hub := NewHub("room", log, nil)
	runHub(t, hub, broker)

	c := NewClient("room", changefeed.AllTables, serverConn, hub, log)
	c.send = make(chan *Message, 1)

	// the connected frame takes the only buffer slot
	require.True(t, hub.Register(c))

	e, err := changefeed.NewEvent(changefeed.TableMessages, changefeed.OpInsert, "room", map[string]any{"message": "hi"})
	require.NoError(t, err)
	hub.Send(e)

	require.Eventually(t, func() bool {
		return hub.Stats().MessagesDropped == 1
	}, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, 0, hub.Stats().ConnectedClients)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	go c.writePump(ctx)

	assert.Equal(t, MessageTypeConnected, readMessage(t, ctx, clientConn).Type)

	last := readMessage(t, ctx, clientConn)
	require.Equal(t, MessageTypeError, last.Type)
	var data ErrorData
	require.NoError(t, json.Unmarshal(last.Data, &data))
	assert.Equal(t, ErrCodeSlowConsumer, data.Code)

	_, _, err = clientConn.Read(ctx)
	assert.Equal(t, websocket.StatusPolicyViolation, websocket.CloseStatus(err))
}

type partialFeed struct {
	changefeed.Feed
	broken changefeed.Table
}

func (f partialFeed) Subscribe(ctx context.Context, roomID string, table changefeed.Table, h changefeed.Handler) (changefeed.Subscription, error) {
	if table == f.broken {
		return nil, errors.New("listener down")
	}
	return f.Feed.Subscribe(ctx, roomID, table, h)
}

func TestUnavailableTableIsReported(t *testing.T) {
	log := logger.Discard()
	broker := changefeed.NewBroker(log, 8)
	t.Cleanup(broker.Close)

	hub := NewHub("room", log, nil)
	runHub(t, hub, partialFeed{Feed: broker, broken: changefeed.TableVideoState})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// a client that skips the broken table hears nothing about it
	serverConn, clientConn := connPair(t)
	chat := NewClient("room", []changefeed.Table{changefeed.TableMessages}, serverConn, hub, log)
	go chat.writePump(ctx)
	require.True(t, hub.Register(chat))
	assert.Equal(t, MessageTypeConnected, readMessage(t, ctx, clientConn).Type)

	serverConn, clientConn = connPair(t)
	player := NewClient("room", []changefeed.Table{changefeed.TableVideoState}, serverConn, hub, log)
	go player.writePump(ctx)
	require.True(t, hub.Register(player))

	assert.Equal(t, MessageTypeConnected, readMessage(t, ctx, clientConn).Type)
	msg := readMessage(t, ctx, clientConn)
	require.Equal(t, MessageTypeError, msg.Type)
	var data ErrorData
	require.NoError(t, json.Unmarshal(msg.Data, &data))
	assert.Equal(t, ErrCodeFeedUnavailable, data.Code)
	assert.Contains(t, data.Message, string(changefeed.TableVideoState))
}

func TestIdleHubStopsAndRefusesClients(t *testing.T) {
	log := logger.Discard()
	broker := changefeed.NewBroker(log, 8)
	t.Cleanup(broker.Close)

	idle := make(chan *Hub, 1)
	hub := NewHub("room", log, func(h *Hub) { idle <- h })
	hub.healthCheckPeriod = 5 * time.Millisecond
	hub.idleTimeout = 10 * time.Millisecond
	runHub(t, hub, broker)

	select {
	case <-hub.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("hub kept running after going idle")
	}
	assert.Same(t, hub, <-idle)

	c := NewClient("room", changefeed.AllTables, nil, hub, log)
	assert.False(t, hub.Register(c))
	assert.Eventually(t, func() bool {
		return broker.SubscriberCount("room", changefeed.TableMessages) == 0
	}, 2*time.Second, 5*time.Millisecond)
}

func TestIdleHubIsRemovedAndRecreated(t *testing.T) {
	ts := newTestServer(t, func(m *Manager) {
		m.healthCheckPeriod = 10 * time.Millisecond
		m.idleTimeout = 50 * time.Millisecond
	})
	r := ts.createRoom(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, ts.url("room_id="+r.ID), nil)
	require.NoError(t, err)
	readMessage(t, ctx, conn)
	conn.Close(websocket.StatusNormalClosure, "bye")

	require.Eventually(t, func() bool {
		return ts.manager.Stats().Hubs == 0
	}, 2*time.Second, 10*time.Millisecond)

	conn, _, err = websocket.Dial(ctx, ts.url("room_id="+r.ID+"&tables=messages"), nil)
	require.NoError(t, err)
	defer conn.CloseNow()
	assert.Equal(t, MessageTypeConnected, readMessage(t, ctx, conn).Type)

	publish(t, ts.broker, changefeed.TableMessages, r.ID, map[string]any{"message": "back again"})
	msg := readMessage(t, ctx, conn)
	require.Equal(t, MessageTypeChange, msg.Type)
	assert.Equal(t, 1, ts.manager.Stats().Hubs)
}

func TestServeWSReplacesStoppedHub(t *testing.T) {
	ts := newTestServer(t)
	r := ts.createRoom(t)

	stale := NewHub(r.ID, logger.Discard(), nil)
	stale.Shutdown()
	go stale.Run(context.Background(), ts.broker)
	<-stale.Done()

	ts.manager.mu.Lock()
	ts.manager.hubs[r.ID] = stale
	ts.manager.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, ts.url("room_id="+r.ID), nil)
	require.NoError(t, err)
	defer conn.CloseNow()
	assert.Equal(t, MessageTypeConnected, readMessage(t, ctx, conn).Type)

	ts.manager.mu.Lock()
	current := ts.manager.hubs[r.ID]
	ts.manager.mu.Unlock()
	require.NotNil(t, current)
	assert.NotSame(t, stale, current)
	assert.Equal(t, 1, current.Stats().ConnectedClients)
}

func TestOriginRule(t *testing.T) {
	foreign := &websocket.DialOptions{
		HTTPHeader: http.Header{"Origin": {"http://evil.example"}},
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// no patterns: same origin only
	ts := newTestServer(t)
	r := ts.createRoom(t)
	_, resp, err := websocket.Dial(ctx, ts.url("room_id="+r.ID), foreign)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	ts = newTestServer(t, func(m *Manager) { m.originPatterns = []string{"*"} })
	r = ts.createRoom(t)
	conn, _, err := websocket.Dial(ctx, ts.url("room_id="+r.ID), foreign)
	require.NoError(t, err)
	defer conn.CloseNow()
	assert.Equal(t, MessageTypeConnected, readMessage(t, ctx, conn).Type)
}
