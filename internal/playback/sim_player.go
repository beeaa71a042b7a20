package playback

import (
	"sync"
	"time"
)

// SimPlayer is a headless Player whose position advances with wall time
// while playing. Every command fires the state change callback synchronously,
// the way embedded web players report their own transitions
type SimPlayer struct {
	mu       sync.Mutex
	now      func() time.Time
	position float64
	playing  bool
	since    time.Time
	duration float64
	onChange func()
}

// NewSimPlayer creates a paused player at position 0. A duration of 0 means
// the video never ends
func NewSimPlayer(duration float64, now func() time.Time) *SimPlayer {
	if now == nil {
		now = time.Now
	}
	return &SimPlayer{now: now, duration: duration}
}

// OnStateChange sets the callback run after every command
func (p *SimPlayer) OnStateChange(f func()) {
	p.mu.Lock()
	p.onChange = f
	p.mu.Unlock()
}

func (p *SimPlayer) CurrentTime() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.positionLocked()
}

func (p *SimPlayer) IsPlaying() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.positionLocked()
	return p.playing
}

func (p *SimPlayer) SeekTo(seconds float64) {
	p.mu.Lock()
	if seconds < 0 {
		seconds = 0
	}
	if p.duration > 0 && seconds > p.duration {
		seconds = p.duration
	}
	p.position = seconds
	p.since = p.now()
	p.mu.Unlock()

	p.changed()
}

func (p *SimPlayer) Play() {
	p.mu.Lock()
	if p.playing {
		p.mu.Unlock()
		return
	}
	p.positionLocked()
	p.playing = true
	p.since = p.now()
	p.mu.Unlock()

	p.changed()
}

func (p *SimPlayer) Pause() {
	p.mu.Lock()
	if !p.playing {
		p.mu.Unlock()
		return
	}
	p.position = p.positionLocked()
	p.playing = false
	p.mu.Unlock()

	p.changed()
}

// positionLocked folds elapsed play time into position. Reaching the end
// of the video pauses the player
func (p *SimPlayer) positionLocked() float64 {
	if !p.playing {
		return p.position
	}
	now := p.now()
	p.position += now.Sub(p.since).Seconds()
	p.since = now
	if p.duration > 0 && p.position >= p.duration {
		p.position = p.duration
		p.playing = false
	}
	return p.position
}

func (p *SimPlayer) changed() {
	p.mu.Lock()
	f := p.onChange
	p.mu.Unlock()
	if f != nil {
		f()
	}
}
