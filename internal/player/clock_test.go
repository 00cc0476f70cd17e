package player

import (
	"errors"
	"sync"
	"testing"
	"time"
)

// fakeClock is a manually advanced clock.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func TestPlayWithoutSource(t *testing.T) {
	p := New()
	if err := p.Play(); !errors.Is(err, ErrNoSource) {
		t.Errorf("Expected ErrNoSource, got %v", err)
	}
	if err := p.Load(""); !errors.Is(err, ErrNoSource) {
		t.Errorf("Expected ErrNoSource for empty source, got %v", err)
	}
}

func TestPositionFollowsClock(t *testing.T) {
	clock := newFakeClock()
	p := New(WithClock(clock.Now))
	if err := p.Load("a.mp4"); err != nil {
		t.Fatalf("Load: %v", err)
	}

	p.Play()
	clock.Advance(3 * time.Second)
	if got := p.Position(); got != 3*time.Second {
		t.Errorf("Expected 3s, got %v", got)
	}

	p.Pause()
	clock.Advance(5 * time.Second)
	if got := p.Position(); got != 3*time.Second {
		t.Errorf("Expected paused position 3s, got %v", got)
	}

	p.Play()
	clock.Advance(time.Second)
	if got := p.Position(); got != 4*time.Second {
		t.Errorf("Expected 4s after resume, got %v", got)
	}

	p.Seek(10 * time.Second)
	if got := p.Position(); got != 10*time.Second {
		t.Errorf("Expected 10s after seek, got %v", got)
	}

	p.Stop()
	if got := p.Position(); got != 0 {
		t.Errorf("Expected 0 after stop, got %v", got)
	}
	if p.Playing() {
		t.Error("Expected player to be stopped")
	}
}

func TestLoadResetsPosition(t *testing.T) {
	clock := newFakeClock()
	p := New(WithClock(clock.Now))
	p.Load("a.mp4")
	p.Play()
	clock.Advance(2 * time.Second)

	p.Load("b.mp4")
	if p.Source() != "b.mp4" {
		t.Errorf("Expected source b.mp4, got %s", p.Source())
	}
	if p.Playing() || p.Position() != 0 {
		t.Errorf("Expected b.mp4 stopped at zero, got playing=%v position=%v", p.Playing(), p.Position())
	}
}

func TestEndedFiresAfterDuration(t *testing.T) {
	p := New(WithDurations(func(string) time.Duration { return 20 * time.Millisecond }))
	ended := make(chan struct{}, 1)
	p.OnEnded(func() { ended <- struct{}{} })

	p.Load("short.mp3")
	p.Play()

	select {
	case <-ended:
	case <-time.After(2 * time.Second):
		t.Fatal("Expected end-of-media to fire")
	}
	if p.Playing() {
		t.Error("Expected player to stop at the end")
	}
}

func TestPauseCancelsEnd(t *testing.T) {
	p := New(WithDurations(func(string) time.Duration { return 30 * time.Millisecond }))
	ended := make(chan struct{}, 1)
	p.OnEnded(func() { ended <- struct{}{} })

	p.Load("short.mp3")
	p.Play()
	p.Pause()

	select {
	case <-ended:
		t.Error("Expected no end-of-media while paused")
	case <-time.After(80 * time.Millisecond):
	}
}

func TestEndNow(t *testing.T) {
	p := New()
	calls := 0
	p.OnEnded(func() { calls++ })

	p.End()
	if calls != 0 {
		t.Errorf("Expected no callback without a source, got %d", calls)
	}

	p.Load("a.mp4")
	p.Play()
	p.End()
	if calls != 1 {
		t.Errorf("Expected 1 callback, got %d", calls)
	}
}
