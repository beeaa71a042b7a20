package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/rx3lixir/watchparty/internal/changefeed"
	"github.com/rx3lixir/watchparty/internal/playback"
	"github.com/rx3lixir/watchparty/internal/room"
	"github.com/rx3lixir/watchparty/pkg/logger"
)

const (
	historyLimit = room.DefaultMessageLimit
	storeTimeout = 5 * time.Second
)

var ErrInvalidVideo = errors.New("room has no playable video")

type Config struct {
	RoomID        string
	UserName      string
	PublicBaseURL string

	Store    room.Store
	Feed     changefeed.Feed
	Player   playback.Player
	Notifier playback.Notifier
	Clock    playback.Clock
	Log      *slog.Logger

	// OnMessage receives chat history on join and then every new message
	OnMessage func(*room.Message)
	// OnParticipantCount receives the refreshed count after each join
	OnParticipantCount func(int)
}

// Session is one participant's presence in a room, from Join to Leave
type Session struct {
	cfg        Config
	room       *room.Room
	videoID    string
	reconciler *playback.Reconciler
	log        *slog.Logger

	// subscriptions live until Leave, not as long as Join's ctx
	subCtx    context.Context
	subCancel context.CancelFunc

	mu   sync.Mutex
	subs []changefeed.Subscription
	left bool
}

// Join enters the room: registers the participant, replays history, starts
// listening to the room's feeds, announces the arrival and syncs the player
func Join(ctx context.Context, cfg Config) (*Session, error) {
	if cfg.Notifier == nil {
		cfg.Notifier = playback.NotifierFunc(func(playback.Level, string) {})
	}
	if cfg.Log == nil {
		cfg.Log = logger.Discard()
	}
	if cfg.OnMessage == nil {
		cfg.OnMessage = func(*room.Message) {}
	}
	if cfg.OnParticipantCount == nil {
		cfg.OnParticipantCount = func(int) {}
	}
	log := cfg.Log.With("room_id", cfg.RoomID)

	r, err := cfg.Store.GetRoom(ctx, cfg.RoomID)
	if err != nil {
		log.Error("failed to load room", "error", err)
		cfg.Notifier.Notify(playback.LevelError, "Failed to load room")
		return nil, fmt.Errorf("failed to load room: %w", err)
	}

	videoID, ok := room.ExtractVideoID(r.VideoURL)
	if !ok {
		log.Error("room video url is not playable", "video_url", r.VideoURL)
		cfg.Notifier.Notify(playback.LevelError, "Failed to load room")
		return nil, ErrInvalidVideo
	}

	p, err := cfg.Store.AddParticipant(ctx, r.ID, cfg.UserName)
	if err != nil {
		log.Error("failed to join room", "name", cfg.UserName, "error", err)
		cfg.Notifier.Notify(playback.LevelError, "Failed to join room")
		return nil, fmt.Errorf("failed to join room: %w", err)
	}
	cfg.UserName = p.Name

	subCtx, subCancel := context.WithCancel(context.Background())
	s := &Session{
		cfg:     cfg,
		room:    r,
		videoID: videoID,
		log:     log,
		reconciler: playback.NewReconciler(playback.Config{
			RoomID:   r.ID,
			Player:   cfg.Player,
			Writer:   cfg.Store,
			Notifier: cfg.Notifier,
			Clock:    cfg.Clock,
			Log:      log,
		}),
		subCtx:    subCtx,
		subCancel: subCancel,
	}

	s.loadHistory(ctx)
	s.subscribe()
	s.refreshParticipantCount()
	s.announce(ctx, room.JoinedMessage(p.Name))
	cfg.Notifier.Notify(playback.LevelSuccess, fmt.Sprintf("Welcome, %s!", p.Name))

	if err := s.Resync(ctx); err != nil {
		log.Warn("initial video state sync failed", "error", err)
	}

	log.Info("joined room", "name", p.Name, "video_id", videoID)
	return s, nil
}

func (s *Session) loadHistory(ctx context.Context) {
	messages, err := s.cfg.Store.ListMessages(ctx, s.room.ID, historyLimit)
	if err != nil {
		s.log.Error("failed to load messages", "error", err)
		s.cfg.Notifier.Notify(playback.LevelError, "Failed to load messages")
		return
	}
	for _, m := range messages {
		s.cfg.OnMessage(m)
	}
}

func (s *Session) subscribe() {
	handlers := map[changefeed.Table]changefeed.Handler{
		changefeed.TableMessages:     s.handleMessage,
		changefeed.TableVideoState:   s.handleVideoState,
		changefeed.TableParticipants: s.handleParticipant,
	}

	for _, table := range changefeed.AllTables {
		sub, err := s.cfg.Feed.Subscribe(s.subCtx, s.room.ID, table, handlers[table])
		if err != nil {
			s.log.Error("failed to subscribe", "table", table, "error", err)
			s.cfg.Notifier.Notify(playback.LevelError, "Live updates unavailable")
			continue
		}
		s.mu.Lock()
		s.subs = append(s.subs, sub)
		s.mu.Unlock()
	}
}

func (s *Session) handleMessage(e changefeed.Event) {
	m, err := e.Message()
	if err != nil {
		s.log.Warn("bad message event", "error", err)
		return
	}
	s.cfg.OnMessage(m)
}

func (s *Session) handleVideoState(e changefeed.Event) {
	vs, err := e.VideoState()
	if err != nil {
		s.log.Warn("bad video state event", "error", err)
		return
	}
	s.reconciler.OnRemoteUpdate(vs)
}

func (s *Session) handleParticipant(changefeed.Event) {
	s.refreshParticipantCount()
}

func (s *Session) refreshParticipantCount() {
	ctx, cancel := context.WithTimeout(s.subCtx, storeTimeout)
	defer cancel()

	count, err := s.cfg.Store.CountParticipants(ctx, s.room.ID)
	if err != nil {
		s.log.Error("failed to count participants", "error", err)
		return
	}
	s.cfg.OnParticipantCount(count)
}

// announce posts a system message; failures are only logged
func (s *Session) announce(ctx context.Context, text string) {
	if _, err := s.cfg.Store.AppendMessage(ctx, s.room.ID, room.SystemSender, text); err != nil {
		s.log.Error("failed to send system message", "error", err)
	}
}

// SendMessage posts a chat message as the session's participant
func (s *Session) SendMessage(ctx context.Context, body string) error {
	body = strings.TrimSpace(body)
	if body == "" {
		return nil
	}

	if _, err := s.cfg.Store.AppendMessage(ctx, s.room.ID, s.cfg.UserName, body); err != nil {
		s.log.Error("failed to send message", "error", err)
		s.cfg.Notifier.Notify(playback.LevelError, "Failed to send message")
		return err
	}
	return nil
}

// PlayerStateChanged is called by the UI on every local player event
func (s *Session) PlayerStateChanged(ctx context.Context) (bool, error) {
	return s.reconciler.OnLocalChange(ctx)
}

// Resync reloads the room's video state and applies it, as done when the
// page becomes visible again. A room without state yet is not an error
func (s *Session) Resync(ctx context.Context) error {
	vs, err := s.cfg.Store.GetVideoState(ctx, s.room.ID)
	if err != nil {
		if errors.Is(err, room.ErrVideoStateNotFound) {
			return nil
		}
		s.log.Error("failed to load video state", "error", err)
		return err
	}
	s.reconciler.OnRemoteUpdate(vs)
	return nil
}

// Leave announces the departure and releases every subscription.
// Calling it again does nothing
func (s *Session) Leave(ctx context.Context) {
	s.mu.Lock()
	if s.left {
		s.mu.Unlock()
		return
	}
	s.left = true
	subs := s.subs
	s.subs = nil
	s.mu.Unlock()

	s.announce(ctx, room.LeftMessage(s.cfg.UserName))

	for _, sub := range subs {
		sub.Unsubscribe()
	}
	s.subCancel()
	s.reconciler.Stop()

	s.log.Info("left room", "name", s.cfg.UserName)
}

func (s *Session) ShareLink() string {
	return room.ShareLink(s.cfg.PublicBaseURL, s.room.ID)
}

func (s *Session) VideoID() string { return s.videoID }

func (s *Session) Room() room.Room { return *s.room }

func (s *Session) Name() string { return s.cfg.UserName }

func (s *Session) Reconciler() *playback.Reconciler { return s.reconciler }
