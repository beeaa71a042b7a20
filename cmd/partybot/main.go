// Command partybot joins a watch party with a simulated player. It follows
// the room's playback, logs the chat and can act on its own every interval.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/rx3lixir/watchparty/internal/client"
	"github.com/rx3lixir/watchparty/internal/playback"
	"github.com/rx3lixir/watchparty/internal/room"
	"github.com/rx3lixir/watchparty/internal/session"
	"github.com/rx3lixir/watchparty/pkg/logger"
	flag "github.com/spf13/pflag"
)

const requestTimeout = 10 * time.Second

type options struct {
	server    string
	roomID    string
	videoURL  string
	name      string
	duration  float64
	interval  time.Duration
	env       string
	logLevel  string
	logSource bool
}

func parseFlags() options {
	var o options
	flag.StringVarP(&o.server, "server", "s", "http://localhost:8080", "watchparty server base URL")
	flag.StringVarP(&o.roomID, "room", "r", "", "room id to join")
	flag.StringVar(&o.videoURL, "video", "", "create a new room for this YouTube URL when --room is empty")
	flag.StringVarP(&o.name, "name", "n", "partybot", "participant name")
	flag.Float64Var(&o.duration, "duration", 212, "simulated video length in seconds, 0 for endless")
	flag.DurationVarP(&o.interval, "interval", "i", 0, "take a random action this often, 0 only follows the room")
	flag.StringVar(&o.env, "env", "dev", "log format: dev, prod or test")
	flag.StringVar(&o.logLevel, "log-level", "", "overrides the env default log level")
	flag.BoolVar(&o.logSource, "log-source", false, "add dir/file.go:line to every log line")
	flag.Parse()
	return o
}

func main() {
	opts := parseFlags()

	log := logger.Must(logger.New(logger.Config{
		Env:              opts.env,
		Level:            opts.logLevel,
		AddSource:        opts.logSource,
		SourcePathLength: 2,
	}))

	if err := run(opts, log.Logger); err != nil {
		log.Error("partybot stopped", logger.Err(err))
		os.Exit(1)
	}
}

func run(opts options, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store := client.NewStore(opts.server, &http.Client{Timeout: requestTimeout})
	feed, err := client.NewFeed(opts.server, log)
	if err != nil {
		return err
	}

	if opts.roomID == "" {
		if opts.videoURL == "" {
			return fmt.Errorf("either --room or --video is required")
		}
		r, err := store.CreateRoom(ctx, opts.videoURL)
		if err != nil {
			return fmt.Errorf("failed to create room: %w", err)
		}
		opts.roomID = r.ID
		log.Info("room created", "room_id", r.ID, "video_url", r.VideoURL)
	}

	player := playback.NewSimPlayer(opts.duration, nil)

	// player events before Join returns are the initial resync
	var current atomic.Pointer[session.Session]
	player.OnStateChange(func() {
		s := current.Load()
		if s == nil {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		s.PlayerStateChanged(ctx)
	})

	sess, err := session.Join(ctx, session.Config{
		RoomID:        opts.roomID,
		UserName:      opts.name,
		PublicBaseURL: opts.server,
		Store:         store,
		Feed:          feed,
		Player:        player,
		Notifier: playback.NotifierFunc(func(level playback.Level, msg string) {
			if level == playback.LevelError {
				log.Warn(msg, "notice", level)
				return
			}
			log.Info(msg, "notice", level)
		}),
		Log: log,
		OnMessage: func(m *room.Message) {
			log.Info("chat", "from", m.SenderName, "message", m.Body, "at", m.CreatedAt.Format(time.TimeOnly))
		},
		OnParticipantCount: func(n int) {
			log.Info("participants", "count", n)
		},
	})
	if err != nil {
		return err
	}
	current.Store(sess)

	log.Info("joined",
		"room_id", opts.roomID,
		"video_id", sess.VideoID(),
		"share_link", sess.ShareLink(),
	)

	if opts.interval > 0 {
		act(ctx, sess, player, opts, log)
	} else {
		<-ctx.Done()
	}

	leaveCtx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()
	sess.Leave(leaveCtx)
	return nil
}

// act drives the player like a restless viewer until ctx is done
func act(ctx context.Context, sess *session.Session, player *playback.SimPlayer, opts options, log *slog.Logger) {
	ticker := time.NewTicker(opts.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		switch rand.IntN(4) {
		case 0:
			log.Debug("action: play")
			player.Play()
		case 1:
			log.Debug("action: pause")
			player.Pause()
		case 2:
			span := opts.duration
			if span <= 0 {
				span = player.CurrentTime() + 60
			}
			to := rand.Float64() * span
			log.Debug("action: seek", "to", to)
			player.SeekTo(to)
		case 3:
			msgCtx, cancel := context.WithTimeout(ctx, requestTimeout)
			sess.SendMessage(msgCtx, fmt.Sprintf("at %.0fs and loving it", player.CurrentTime()))
			cancel()
		}
	}
}
