package playback

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/rx3lixir/watchparty/internal/room"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock fires timers only when advanced
type fakeClock struct {
	mu     sync.Mutex
	now    time.Duration
	timers []*fakeTimer
}

type fakeTimer struct {
	clock   *fakeClock
	at      time.Duration
	f       func()
	stopped bool
	fired   bool
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{clock: c, at: c.now + d, f: f}
	c.timers = append(c.timers, t)
	return t
}

func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	active := !t.stopped && !t.fired
	t.stopped = true
	return active
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now += d
	var due []*fakeTimer
	for _, t := range c.timers {
		if !t.stopped && !t.fired && t.at <= c.now {
			t.fired = true
			due = append(due, t)
		}
	}
	c.mu.Unlock()

	sort.Slice(due, func(i, j int) bool { return due[i].at < due[j].at })
	for _, t := range due {
		t.f()
	}
}

// recordingPlayer counts commands without moving time
type recordingPlayer struct {
	mu       sync.Mutex
	position float64
	playing  bool
	seeks    []float64
	plays    int
	pauses   int
	onChange func()
}

func (p *recordingPlayer) CurrentTime() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.position
}

func (p *recordingPlayer) IsPlaying() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.playing
}

func (p *recordingPlayer) SeekTo(s float64) {
	p.mu.Lock()
	p.position = s
	p.seeks = append(p.seeks, s)
	p.mu.Unlock()
	p.fire()
}

func (p *recordingPlayer) Play() {
	p.mu.Lock()
	p.playing = true
	p.plays++
	p.mu.Unlock()
	p.fire()
}

func (p *recordingPlayer) Pause() {
	p.mu.Lock()
	p.playing = false
	p.pauses++
	p.mu.Unlock()
	p.fire()
}

func (p *recordingPlayer) fire() {
	if p.onChange != nil {
		p.onChange()
	}
}

func (p *recordingPlayer) actions() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.seeks) + p.plays + p.pauses
}

// fakeWriter stamps states with strictly increasing times
type fakeWriter struct {
	mu     sync.Mutex
	base   time.Time
	writes []room.VideoState
	err    error
}

func (w *fakeWriter) UpsertVideoState(ctx context.Context, roomID string, position float64, playing bool) (*room.VideoState, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return nil, w.err
	}
	vs := room.VideoState{
		RoomID:    roomID,
		Position:  position,
		IsPlaying: playing,
		UpdatedAt: w.base.Add(time.Duration(len(w.writes)+1) * time.Millisecond),
	}
	w.writes = append(w.writes, vs)
	return &vs, nil
}

func (w *fakeWriter) count() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.writes)
}

type notification struct {
	level Level
	msg   string
}

type harness struct {
	r      *Reconciler
	player *recordingPlayer
	writer *fakeWriter
	clock  *fakeClock
	notes  *[]notification
}

func newHarness() *harness {
	player := &recordingPlayer{}
	writer := &fakeWriter{base: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	clock := &fakeClock{}
	var notes []notification
	r := NewReconciler(Config{
		RoomID: "room",
		Player: player,
		Writer: writer,
		Notifier: NotifierFunc(func(level Level, msg string) {
			notes = append(notes, notification{level, msg})
		}),
		Clock: clock,
	})
	return &harness{r, player, writer, clock, &notes}
}

var stamp = time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)

func remoteState(pos float64, playing bool, offset time.Duration) *room.VideoState {
	return &room.VideoState{
		RoomID:    "room",
		Position:  pos,
		IsPlaying: playing,
		UpdatedAt: stamp.Add(offset),
	}
}

func TestRemoteUpdateSeekThreshold(t *testing.T) {
	tests := []struct {
		name   string
		local  float64
		remote float64
		seek   bool
	}{
		{"equal", 10, 10, false},
		{"ahead within threshold", 10, 11.5, false},
		{"exactly threshold ahead", 10, 12, false},
		{"exactly threshold behind", 10, 8, false},
		{"just past threshold", 10, 12.001, true},
		{"far behind", 100, 3, true},
		{"far ahead", 0, 60, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness()
			h.player.position = tt.local

			applied := h.r.OnRemoteUpdate(remoteState(tt.remote, false, 0))
			require.True(t, applied)

			if tt.seek {
				require.Len(t, h.player.seeks, 1)
				assert.Equal(t, tt.remote, h.player.seeks[0])
			} else {
				assert.Empty(t, h.player.seeks)
			}
		})
	}
}

func TestRemoteUpdatePlayPause(t *testing.T) {
	tests := []struct {
		local, remote bool
		plays, pauses int
	}{
		{false, true, 1, 0},
		{true, false, 0, 1},
		{true, true, 0, 0},
		{false, false, 0, 0},
	}

	for _, tt := range tests {
		h := newHarness()
		h.player.playing = tt.local

		h.r.OnRemoteUpdate(remoteState(0, tt.remote, 0))

		assert.Equal(t, tt.plays, h.player.plays, "local=%v remote=%v", tt.local, tt.remote)
		assert.Equal(t, tt.pauses, h.player.pauses, "local=%v remote=%v", tt.local, tt.remote)
		assert.Equal(t, tt.remote, h.player.IsPlaying())
	}
}

func TestDuplicateRemoteUpdateIsIgnored(t *testing.T) {
	h := newHarness()
	h.player.position = 0

	state := remoteState(30, true, 0)
	require.True(t, h.r.OnRemoteUpdate(state))
	before := h.player.actions()
	require.Equal(t, 2, before)

	// local player drifts away, a duplicate must still not correct it
	h.player.position = 90
	h.player.playing = false

	dup := *state
	assert.False(t, h.r.OnRemoteUpdate(&dup))
	assert.Equal(t, before, h.player.actions())

	// a fresh timestamp is applied
	assert.True(t, h.r.OnRemoteUpdate(remoteState(30, true, time.Millisecond)))
	assert.Greater(t, h.player.actions(), before)
}

func TestLocalChangeSuppressedDuringCooldown(t *testing.T) {
	h := newHarness()
	h.r.OnRemoteUpdate(remoteState(50, true, 0))
	require.True(t, h.r.Applying())

	h.clock.Advance(SuppressCooldown / 2)
	wrote, err := h.r.OnLocalChange(context.Background())
	require.NoError(t, err)
	assert.False(t, wrote)
	assert.Zero(t, h.writer.count())

	h.clock.Advance(SuppressCooldown / 2)
	assert.False(t, h.r.Applying())

	wrote, err = h.r.OnLocalChange(context.Background())
	require.NoError(t, err)
	assert.True(t, wrote)
	require.Equal(t, 1, h.writer.count())
	assert.Equal(t, 50.0, h.writer.writes[0].Position)
	assert.True(t, h.writer.writes[0].IsPlaying)
}

func TestCooldownRestartsOnNewRemoteUpdate(t *testing.T) {
	h := newHarness()
	h.r.OnRemoteUpdate(remoteState(10, true, 0))

	h.clock.Advance(600 * time.Millisecond)
	h.r.OnRemoteUpdate(remoteState(20, true, time.Millisecond))

	// first cooldown would have ended here
	h.clock.Advance(600 * time.Millisecond)
	assert.True(t, h.r.Applying())

	h.clock.Advance(400 * time.Millisecond)
	assert.False(t, h.r.Applying())
}

func TestSynchronousPlayerEventsAreSuppressed(t *testing.T) {
	h := newHarness()
	var results []bool
	h.player.onChange = func() {
		wrote, err := h.r.OnLocalChange(context.Background())
		require.NoError(t, err)
		results = append(results, wrote)
	}

	h.r.OnRemoteUpdate(remoteState(42, true, 0))

	assert.Equal(t, []bool{false, false}, results, "seek and play both echo back")
	assert.Zero(t, h.writer.count())
}

func TestOwnWriteEchoIsDuplicate(t *testing.T) {
	h := newHarness()
	h.player.position = 12
	h.player.playing = true

	wrote, err := h.r.OnLocalChange(context.Background())
	require.NoError(t, err)
	require.True(t, wrote)

	echo := h.writer.writes[0]
	h.player.position = 40

	assert.False(t, h.r.OnRemoteUpdate(&echo))
	assert.Zero(t, h.player.actions())
	assert.False(t, h.r.Applying())
}

func TestLocalWriteFailureNotifies(t *testing.T) {
	h := newHarness()
	h.writer.err = errors.New("connection refused")
	h.player.position = 5

	wrote, err := h.r.OnLocalChange(context.Background())
	assert.False(t, wrote)
	assert.Error(t, err)

	require.Len(t, *h.notes, 1)
	assert.Equal(t, LevelError, (*h.notes)[0].level)
	// local player is left alone
	assert.Equal(t, 5.0, h.player.CurrentTime())
	assert.Nil(t, h.r.LastApplied())
}

func TestStopCancelsCooldown(t *testing.T) {
	h := newHarness()
	h.r.OnRemoteUpdate(remoteState(1, false, 0))
	h.r.Stop()

	h.clock.Advance(2 * SuppressCooldown)
	assert.True(t, h.r.Applying())
}

func TestNilRemoteUpdate(t *testing.T) {
	h := newHarness()
	assert.False(t, h.r.OnRemoteUpdate(nil))
	assert.False(t, h.r.Applying())
}

func TestStaleRemoteUpdateIsIgnored(t *testing.T) {
	h := newHarness()
	require.True(t, h.r.OnRemoteUpdate(remoteState(100, true, time.Second)))
	before := h.player.actions()

	// an older state delivered late must not rewind the player
	assert.False(t, h.r.OnRemoteUpdate(remoteState(5, false, 0)))
	assert.Equal(t, before, h.player.actions())
	assert.Equal(t, 100.0, h.player.CurrentTime())
}
