package playback

import (
	"context"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/rx3lixir/watchparty/internal/room"
	"github.com/rx3lixir/watchparty/pkg/logger"
)

const (
	// SeekThreshold is the drift in seconds tolerated before a remote update seeks
	SeekThreshold = 2.0

	// SuppressCooldown is how long local player events are ignored after
	// a remote update was applied
	SuppressCooldown = time.Second
)

type Config struct {
	RoomID   string
	Player   Player
	Writer   StateWriter
	Notifier Notifier
	Clock    Clock
	Log      *slog.Logger
}

// Reconciler keeps a local player in step with the room's VideoState.
//
// Remote updates are applied to the player; local player events are written
// back to the store. While a remote update is being applied, and for
// SuppressCooldown afterwards, local events are treated as echoes and
// dropped. A genuine user action inside that window is dropped too.
type Reconciler struct {
	roomID   string
	player   Player
	writer   StateWriter
	notifier Notifier
	clock    Clock
	log      *slog.Logger

	// writeMu is held across a local write so a concurrent echo of that
	// write is only checked once its timestamp is known
	writeMu sync.Mutex

	mu         sync.Mutex
	applying   bool
	generation uint64
	timer      Timer
	last       *room.VideoState
}

func NewReconciler(cfg Config) *Reconciler {
	if cfg.Notifier == nil {
		cfg.Notifier = nopNotifier{}
	}
	if cfg.Clock == nil {
		cfg.Clock = realClock{}
	}
	if cfg.Log == nil {
		cfg.Log = logger.Discard()
	}
	return &Reconciler{
		roomID:   cfg.RoomID,
		player:   cfg.Player,
		writer:   cfg.Writer,
		notifier: cfg.Notifier,
		clock:    cfg.Clock,
		log:      cfg.Log,
	}
}

// OnLocalChange writes the player's current position and play flag as the
// room's new state. It reports whether a write happened; suppressed events
// return false with a nil error
func (r *Reconciler) OnLocalChange(ctx context.Context) (bool, error) {
	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	r.mu.Lock()
	suppressed := r.applying
	r.mu.Unlock()

	if suppressed {
		r.log.Debug("local player change suppressed", "room_id", r.roomID)
		return false, nil
	}

	position := r.player.CurrentTime()
	playing := r.player.IsPlaying()

	vs, err := r.writer.UpsertVideoState(ctx, r.roomID, position, playing)
	if err != nil {
		r.log.Error("failed to write video state",
			"room_id", r.roomID,
			"position", position,
			"is_playing", playing,
			"error", err)
		r.notifier.Notify(LevelError, "Failed to sync video state")
		return false, err
	}

	r.mu.Lock()
	// our own write comes back through the feed; remembering it makes that a duplicate
	if r.last == nil || vs.UpdatedAt.After(r.last.UpdatedAt) {
		cp := *vs
		r.last = &cp
	}
	r.mu.Unlock()

	return true, nil
}

// OnRemoteUpdate applies a VideoState received from the store. It reports
// whether the update was applied. A state whose updated_at is not newer than
// the last one seen is a duplicate (or a late echo) and is ignored
func (r *Reconciler) OnRemoteUpdate(state *room.VideoState) bool {
	if state == nil {
		return false
	}

	r.writeMu.Lock()
	r.mu.Lock()
	if r.last != nil && !state.UpdatedAt.After(r.last.UpdatedAt) {
		r.mu.Unlock()
		r.writeMu.Unlock()
		return false
	}
	r.applying = true
	r.generation++
	gen := r.generation
	if r.timer != nil {
		r.timer.Stop()
		r.timer = nil
	}
	cp := *state
	r.last = &cp
	r.mu.Unlock()
	r.writeMu.Unlock()

	// player calls run unlocked: players may fire change events synchronously
	local := r.player.CurrentTime()
	if math.Abs(local-state.Position) > SeekThreshold {
		r.player.SeekTo(state.Position)
	}

	if state.IsPlaying != r.player.IsPlaying() {
		if state.IsPlaying {
			r.player.Play()
		} else {
			r.player.Pause()
		}
	}

	r.log.Debug("remote video state applied",
		"room_id", r.roomID,
		"local_position", local,
		"remote_position", state.Position,
		"is_playing", state.IsPlaying)

	r.mu.Lock()
	if r.generation == gen {
		r.timer = r.clock.AfterFunc(SuppressCooldown, func() {
			r.mu.Lock()
			defer r.mu.Unlock()
			if r.generation == gen {
				r.applying = false
				r.timer = nil
			}
		})
	}
	r.mu.Unlock()

	return true
}

// Applying reports whether local events are currently suppressed
func (r *Reconciler) Applying() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.applying
}

// LastApplied returns a copy of the last state seen, local or remote
func (r *Reconciler) LastApplied() *room.VideoState {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.last == nil {
		return nil
	}
	cp := *r.last
	return &cp
}

// Stop cancels a pending cooldown timer
func (r *Reconciler) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.timer != nil {
		r.timer.Stop()
		r.timer = nil
	}
}
