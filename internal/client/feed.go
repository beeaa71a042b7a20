package client

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/rx3lixir/watchparty/internal/changefeed"
	ws "github.com/rx3lixir/watchparty/internal/websocket"
)

// Feed is a changefeed.Feed reading a remote server's /ws endpoint.
// Each subscription holds its own connection filtered to one table
type Feed struct {
	wsURL string
	log   *slog.Logger
}

// NewFeed derives the websocket endpoint from the server's http(s) base URL
func NewFeed(baseURL string, log *slog.Logger) (*Feed, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid server url: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return nil, fmt.Errorf("unsupported server url scheme %q", u.Scheme)
	}
	u.Path += "/ws"

	return &Feed{wsURL: u.String(), log: log}, nil
}

type subscription struct {
	cancel context.CancelFunc
	conn   *websocket.Conn
	once   sync.Once
}

func (s *subscription) Unsubscribe() {
	s.once.Do(func() {
		s.cancel()
		s.conn.Close(websocket.StatusNormalClosure, "unsubscribed")
	})
}

// Subscribe dials the server and waits for its connected frame before
// returning. Delivery stops on Unsubscribe, ctx cancellation or a
// connection error; there is no reconnect
func (f *Feed) Subscribe(ctx context.Context, roomID string, table changefeed.Table, h changefeed.Handler) (changefeed.Subscription, error) {
	q := url.Values{}
	q.Set("room_id", roomID)
	q.Set("tables", string(table))

	conn, _, err := websocket.Dial(ctx, f.wsURL+"?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to connect change feed: %w", err)
	}

	var hello ws.IncomingMessage
	if err := wsjson.Read(ctx, conn, &hello); err != nil {
		conn.CloseNow()
		return nil, fmt.Errorf("failed to read handshake: %w", err)
	}
	if hello.Type != ws.MessageTypeConnected {
		conn.CloseNow()
		return nil, fmt.Errorf("unexpected first frame %q", hello.Type)
	}

	subCtx, cancel := context.WithCancel(ctx)
	sub := &subscription{cancel: cancel, conn: conn}

	go f.read(subCtx, sub, roomID, table, h)

	return sub, nil
}

func (f *Feed) read(ctx context.Context, sub *subscription, roomID string, table changefeed.Table, h changefeed.Handler) {
	defer sub.Unsubscribe()

	log := f.log.With("room_id", roomID, "table", table)

	for {
		var msg ws.IncomingMessage
		if err := wsjson.Read(ctx, sub.conn, &msg); err != nil {
			if ctx.Err() == nil {
				log.Warn("change feed connection lost", "error", err)
			}
			return
		}

		switch msg.Type {
		case ws.MessageTypeChange:
			var e changefeed.Event
			if err := json.Unmarshal(msg.Data, &e); err != nil {
				log.Warn("bad change frame", "error", err)
				continue
			}
			h(e)
		case ws.MessageTypeError:
			var e ws.ErrorData
			if err := json.Unmarshal(msg.Data, &e); err != nil {
				log.Warn("bad error frame", "error", err)
				continue
			}
			log.Warn("change feed error", "code", e.Code, "message", e.Message)
		}
	}
}
