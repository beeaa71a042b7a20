package playback

import (
	"context"
	"time"

	"github.com/rx3lixir/watchparty/internal/room"
)

// Player is the local video player being kept in sync
type Player interface {
	CurrentTime() float64
	IsPlaying() bool
	SeekTo(seconds float64)
	Play()
	Pause()
}

// StateWriter persists the shared playback state
type StateWriter interface {
	UpsertVideoState(ctx context.Context, roomID string, position float64, playing bool) (*room.VideoState, error)
}

type Level string

const (
	LevelInfo    Level = "info"
	LevelSuccess Level = "success"
	LevelError   Level = "error"
)

// Notifier shows transient notifications to the user
type Notifier interface {
	Notify(level Level, msg string)
}

// NotifierFunc adapts a plain function to Notifier
type NotifierFunc func(level Level, msg string)

func (f NotifierFunc) Notify(level Level, msg string) { f(level, msg) }

type nopNotifier struct{}

func (nopNotifier) Notify(Level, string) {}

// Timer is the handle returned by Clock.AfterFunc
type Timer interface {
	Stop() bool
}

type Clock interface {
	AfterFunc(d time.Duration, f func()) Timer
}

type realClock struct{}

func (realClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}
