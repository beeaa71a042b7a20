package playback

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type manualTime struct {
	t time.Time
}

func (m *manualTime) now() time.Time { return m.t }

func (m *manualTime) add(d time.Duration) { m.t = m.t.Add(d) }

func TestSimPlayerAdvancesWhilePlaying(t *testing.T) {
	clock := &manualTime{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	p := NewSimPlayer(0, clock.now)

	clock.add(5 * time.Second)
	assert.Equal(t, 0.0, p.CurrentTime(), "paused player does not move")

	p.Play()
	clock.add(3 * time.Second)
	assert.InDelta(t, 3.0, p.CurrentTime(), 1e-9)

	p.Pause()
	clock.add(10 * time.Second)
	assert.InDelta(t, 3.0, p.CurrentTime(), 1e-9)

	p.SeekTo(60)
	assert.Equal(t, 60.0, p.CurrentTime())
	assert.False(t, p.IsPlaying())
}

func TestSimPlayerStopsAtEnd(t *testing.T) {
	clock := &manualTime{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	p := NewSimPlayer(10, clock.now)

	p.Play()
	clock.add(15 * time.Second)
	assert.Equal(t, 10.0, p.CurrentTime())
	assert.False(t, p.IsPlaying())

	p.SeekTo(-4)
	assert.Equal(t, 0.0, p.CurrentTime())
}

func TestSimPlayerFiresStateChange(t *testing.T) {
	p := NewSimPlayer(0, nil)
	calls := 0
	p.OnStateChange(func() { calls++ })

	p.Play()
	p.Play() // no transition
	p.SeekTo(5)
	p.Pause()
	p.Pause() // no transition

	assert.Equal(t, 3, calls)
}

func TestSimPlayerWithReconciler(t *testing.T) {
	p := NewSimPlayer(0, nil)
	writer := &fakeWriter{base: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	clock := &fakeClock{}
	r := NewReconciler(Config{RoomID: "room", Player: p, Writer: writer, Clock: clock})

	p.OnStateChange(func() {
		_, err := r.OnLocalChange(context.Background())
		require.NoError(t, err)
	})

	// a user presses play: written
	p.Play()
	require.Equal(t, 1, writer.count())

	// a remote pause is applied; the resulting pause event is not written back
	r.OnRemoteUpdate(remoteState(120, false, time.Hour))
	assert.False(t, p.IsPlaying())
	assert.InDelta(t, 120.0, p.CurrentTime(), 0.1)
	assert.Equal(t, 1, writer.count())

	clock.Advance(SuppressCooldown)
	p.Play()
	assert.Equal(t, 2, writer.count())
}
