// Package player provides a headless media player whose position follows
// the wall clock. It stands in for a rendering player in the CLI and in
// tests.
package player

import (
	"errors"
	"sync"
	"time"
)

// ErrNoSource is returned by Play when nothing is loaded.
var ErrNoSource = errors.New("no media loaded")

type mode int

const (
	modeStopped mode = iota
	modePlaying
	modePaused
)

// DurationFunc reports the length of a source; zero means unknown, in
// which case end-of-media never fires.
type DurationFunc func(source string) time.Duration

// Option configures a ClockPlayer.
type Option func(*ClockPlayer)

// WithDurations sets how source lengths are looked up.
func WithDurations(fn DurationFunc) Option {
	return func(p *ClockPlayer) { p.durationOf = fn }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(p *ClockPlayer) { p.now = now }
}

// ClockPlayer implements playback.Player on a clock.
type ClockPlayer struct {
	durationOf DurationFunc
	now        func() time.Time

	mu        sync.Mutex
	source    string
	mode      mode
	offset    time.Duration
	startedAt time.Time
	duration  time.Duration
	timer     *time.Timer
	gen       uint64
	onEnded   func()
}

// New creates a stopped player with nothing loaded.
func New(opts ...Option) *ClockPlayer {
	p := &ClockPlayer{
		durationOf: func(string) time.Duration { return 0 },
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Load replaces the source and leaves the player stopped at zero.
func (p *ClockPlayer) Load(source string) error {
	if source == "" {
		return ErrNoSource
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.disarm()
	p.source = source
	p.duration = p.durationOf(source)
	p.mode = modeStopped
	p.offset = 0
	return nil
}

// Play starts or resumes playback.
func (p *ClockPlayer) Play() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.source == "" {
		return ErrNoSource
	}
	if p.mode == modePlaying {
		return nil
	}
	p.mode = modePlaying
	p.startedAt = p.now()
	p.arm()
	return nil
}

// Pause holds the current position.
func (p *ClockPlayer) Pause() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.mode != modePlaying {
		return nil
	}
	p.offset = p.positionLocked()
	p.mode = modePaused
	p.disarm()
	return nil
}

// Stop rewinds to zero.
func (p *ClockPlayer) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.disarm()
	p.mode = modeStopped
	p.offset = 0
	return nil
}

// Seek moves to position, clamped to the known duration.
func (p *ClockPlayer) Seek(position time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.source == "" {
		return ErrNoSource
	}
	if position < 0 {
		position = 0
	}
	if p.duration > 0 && position > p.duration {
		position = p.duration
	}
	p.offset = position
	if p.mode == modePlaying {
		p.startedAt = p.now()
		p.disarm()
		p.arm()
	}
	return nil
}

// Position returns the current position.
func (p *ClockPlayer) Position() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.positionLocked()
}

// Source returns the loaded source.
func (p *ClockPlayer) Source() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.source
}

// Playing reports whether the clock is running.
func (p *ClockPlayer) Playing() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.mode == modePlaying
}

// OnEnded registers the end-of-media callback. It is never called with
// the player lock held.
func (p *ClockPlayer) OnEnded(fn func()) {
	p.mu.Lock()
	p.onEnded = fn
	p.mu.Unlock()
}

// End finishes the current source immediately, as if it had played out.
func (p *ClockPlayer) End() {
	p.mu.Lock()
	if p.source == "" {
		p.mu.Unlock()
		return
	}
	fn := p.finishLocked()
	p.mu.Unlock()
	if fn != nil {
		fn()
	}
}

func (p *ClockPlayer) positionLocked() time.Duration {
	pos := p.offset
	if p.mode == modePlaying {
		pos += p.now().Sub(p.startedAt)
	}
	if p.duration > 0 && pos > p.duration {
		pos = p.duration
	}
	return pos
}

func (p *ClockPlayer) arm() {
	if p.duration <= 0 {
		return
	}
	gen := p.gen
	remaining := p.duration - p.offset
	p.timer = time.AfterFunc(remaining, func() {
		p.mu.Lock()
		if p.gen != gen || p.mode != modePlaying {
			p.mu.Unlock()
			return
		}
		fn := p.finishLocked()
		p.mu.Unlock()
		if fn != nil {
			fn()
		}
	})
}

func (p *ClockPlayer) disarm() {
	p.gen++
	if p.timer != nil {
		p.timer.Stop()
		p.timer = nil
	}
}

func (p *ClockPlayer) finishLocked() func() {
	p.disarm()
	p.mode = modeStopped
	p.offset = p.duration
	return p.onEnded
}
